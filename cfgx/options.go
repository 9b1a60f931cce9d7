package cfgx

import (
	"flag"
	"os"
)

// Options holds options for the Parse function.
type Options struct {
	// ProgramName is the name of the running program (defaults to os.Args[0]).
	ProgramName string
	// EnvPrefix adds a prefix to environment variable lookups.
	EnvPrefix string
	// SkipFlags ignores command line flags.
	SkipFlags bool
	// SkipEnv ignores environment variables.
	SkipEnv bool
	// SkipBuildInfo leaves a Version field alone.
	SkipBuildInfo bool
	// Args provides command line arguments (defaults to os.Args[1:]).
	Args []string
	// Files are TOML or YAML config files, chosen by extension. Later
	// files override earlier ones. Missing files are skipped.
	Files []string
	// EnvFiles are .env files consulted when a variable is not set in
	// the process environment. Missing files are skipped.
	EnvFiles []string
	// ErrorHandling determines how parsing errors are handled.
	ErrorHandling flag.ErrorHandling
	// Sources adds additional sources.
	Sources []Source
}

// DefaultConfigOptions are the default set of configuration options.
// Each option can be overridden.
var DefaultConfigOptions = Options{
	ProgramName:   os.Args[0],
	Args:          os.Args[1:],
	ErrorHandling: flag.ContinueOnError,
}

func setOptions(options Options) Options {

	// Start with default options, then override with provided values
	opts := DefaultConfigOptions

	if options.ProgramName != "" {
		opts.ProgramName = options.ProgramName
	}
	if options.EnvPrefix != "" {
		opts.EnvPrefix = options.EnvPrefix
	}
	if options.SkipFlags {
		opts.SkipFlags = true
	}
	if options.SkipEnv {
		opts.SkipEnv = true
	}
	if options.SkipBuildInfo {
		opts.SkipBuildInfo = true
	}
	if options.Args != nil {
		opts.Args = options.Args
	}
	if options.ErrorHandling != flag.ContinueOnError {
		opts.ErrorHandling = options.ErrorHandling
	}
	opts.Files = options.Files
	opts.EnvFiles = options.EnvFiles
	opts.Sources = options.Sources

	return opts
}
