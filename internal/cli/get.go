package cli

import (
	"context"
	"fmt"

	"github.com/erlorenz/go-prefs/prefs"
	"github.com/spf13/cobra"
)

// GetResult is the output of the get command.
type GetResult struct {
	Key     string `json:"key"`
	Type    string `json:"type"`
	Value   any    `json:"value"`
	Default bool   `json:"default,omitempty"` // key not set, Value is the default
}

func (r GetResult) String() string {
	return formatValue(r.Value)
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		typeName string
		def      string
	)

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under a key",
		Long: `Print the value stored under a key, decoded as --type.

A key that is not set prints --default, or fails with exit code 3 when no
default was given. An entry that exists but cannot be decoded as --type is
an error, never the default.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, rootOpts, args[0], typeName, def, cmd.Flags().Changed("default"))
		},
	}

	cmd.Flags().StringVarP(&typeName, "type", "t", "string", "value type: "+typeList())
	cmd.Flags().StringVarP(&def, "default", "d", "", "value to print when the key is not set (string sets: comma separated)")

	return cmd
}

func runGet(cmd *cobra.Command, opts *RootOptions, key, typeName, def string, hasDefault bool) error {
	f := opts.formatter(cmd)

	t, err := prefs.ParseType(typeName)
	if err != nil {
		return failWith(f, ExitCommandError, ErrCodeUsage, err)
	}

	var defVal any
	if hasDefault {
		defVal, err = parseValue(t, splitDefault(t, def))
		if err != nil {
			return failWith(f, ExitCommandError, ErrCodeUsage, fmt.Errorf("--default: %w", err))
		}
	}

	return opts.withSession(cmd, f, func(ctx context.Context, s *session) error {
		ok, err := s.prefs.Contains(ctx, key)
		if err != nil {
			return err
		}
		if !ok && !hasDefault {
			return failWith(f, ExitNotFound, ErrCodeNotFound, fmt.Errorf("%q is not set", key))
		}

		v, err := s.prefs.Get(ctx, key, t, defVal)
		if err != nil {
			return err
		}
		return f.Success(GetResult{Key: key, Type: t.String(), Value: v, Default: !ok})
	})
}
