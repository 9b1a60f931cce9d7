package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/erlorenz/go-prefs/prefs"
	"github.com/spf13/cobra"
)

// EditResult is the output of the put, rm and clear commands.
type EditResult struct {
	Op    string   `json:"op"`
	Keys  []string `json:"keys,omitempty"`
	Async bool     `json:"async,omitempty"`
}

func (r EditResult) String() string {
	if len(r.Keys) == 0 {
		return r.Op
	}
	return r.Op + " " + strings.Join(r.Keys, " ")
}

// finish commits ed, or applies it when async is set. An applied batch is
// still written before the session closes.
func finish(ctx context.Context, ed *prefs.Editor, async bool) error {
	if async {
		ed.Apply()
		return nil
	}
	return ed.Commit(ctx)
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		typeName string
		async    bool
	)

	cmd := &cobra.Command{
		Use:   "put <key> <value>...",
		Short: "Store a value under a key",
		Long: `Store a value under a key, encoded as --type.

A string-set takes any number of values; duplicates are dropped and the
set is stored sorted. Every other type takes exactly one value.`,
		Example: `  prefs put key1 hoge
  prefs put key2 68 --type int
  prefs put tags read write --type string-set`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(cmd, rootOpts, args[0], args[1:], typeName, async)
		},
	}

	cmd.Flags().StringVarP(&typeName, "type", "t", "string", "value type: "+typeList())
	cmd.Flags().BoolVar(&async, "async", false, "apply in the background instead of committing")

	return cmd
}

func runPut(cmd *cobra.Command, opts *RootOptions, key string, args []string, typeName string, async bool) error {
	f := opts.formatter(cmd)

	t, err := prefs.ParseType(typeName)
	if err != nil {
		return failWith(f, ExitCommandError, ErrCodeUsage, err)
	}
	v, err := parseValue(t, args)
	if err != nil {
		return failWith(f, ExitCommandError, ErrCodeUsage, err)
	}

	return opts.withSession(cmd, f, func(ctx context.Context, s *session) error {
		ed := s.prefs.Edit()
		if err := ed.Put(key, t, v); err != nil {
			return err
		}
		if err := finish(ctx, ed, async); err != nil {
			return err
		}
		return f.Success(EditResult{Op: "put", Keys: []string{key}, Async: async})
	})
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:     "rm <key>...",
		Aliases: []string{"remove"},
		Short:   "Remove keys in one batch",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withSession(cmd, f, func(ctx context.Context, s *session) error {
				ed := s.prefs.Edit()
				for _, key := range args {
					if err := ed.Remove(key); err != nil {
						return err
					}
				}
				if err := finish(ctx, ed, async); err != nil {
					return err
				}
				return f.Success(EditResult{Op: "rm", Keys: args, Async: async})
			})
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "apply in the background instead of committing")

	return cmd
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			if !yes {
				return failWith(f, ExitCommandError, ErrCodeUsage, fmt.Errorf("clear removes every entry; pass --yes to confirm"))
			}
			return rootOpts.withSession(cmd, f, func(ctx context.Context, s *session) error {
				ed := s.prefs.Edit()
				if err := ed.Clear(); err != nil {
					return err
				}
				if err := ed.Commit(ctx); err != nil {
					return err
				}
				return f.Success(EditResult{Op: "clear"})
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm removing every entry")

	return cmd
}
