package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/erlorenz/go-prefs/internal/logging"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config is loaded before any subcommand runs.
	Config Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the prefs CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read and write encoded preferences",
		Long: `Read and write preferences through reversible key and value transforms.

The store only ever sees encoded keys and values. Settings come from, lowest
first: defaults, --config (TOML or YAML), .env and PREFS_* environment
variables, docker secrets and flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			if !slices.Contains(ValidFormats, opts.Format) {
				f.Format = "text"
				return failWith(f, ExitCommandError, ErrCodeUsage,
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			cfg, err := loadConfig(cmd, opts.ConfigFile)
			if err != nil {
				return failWith(f, ExitCommandError, ErrCodeConfig, err)
			}
			if err := logging.Init(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format); err != nil {
				return failWith(f, ExitCommandError, ErrCodeConfig, err)
			}
			if opts.Verbose {
				logging.SetLevel(slog.LevelDebug)
			}
			opts.Config = cfg
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "TOML or YAML config file")
	addConfigFlags(cmd)

	// Add subcommands
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// withSession opens the configured store, runs fn and closes the store.
// Errors from fn or from closing are reported through f.
func (o *RootOptions) withSession(cmd *cobra.Command, f *OutputFormatter, fn func(context.Context, *session) error) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, &o.Config)
	if err != nil {
		return failWith(f, ExitCommandError, ErrCodeStore, err)
	}
	f.VerboseLog("opened %s store (codec %s)", o.Config.Backend, o.Config.Codec)

	err = fn(ctx, s)
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fail(f, err)
	}
	return nil
}
