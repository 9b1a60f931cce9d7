package cli

import (
	"fmt"
	"os"

	"github.com/erlorenz/go-prefs/cfgx"
	"github.com/erlorenz/go-prefs/internal/casing"
	"github.com/spf13/cobra"
)

// EnvPrefix is prepended to every environment variable the CLI reads,
// e.g. PREFS_BACKEND or PREFS_DATABASE_URL.
const EnvPrefix = "PREFS"

// Config selects the store, the transforms and the ambient setup. Every
// field can come from a config file, the environment, a docker secret or
// the flag of the same kebab-case name (Log.Level is --log-level).
type Config struct {
	Backend string `default:"file" desc:"store: memory, file, bolt, badger or postgres"`
	Path    string `default:"prefs.yaml" desc:"location of the file, bolt or badger store"`
	Bucket  string `default:"prefs" desc:"bolt bucket"`
	Codec   string `default:"base64" desc:"transform: identity, base64, base64url, hex, aes or chacha"`
	Secret  string `optional:"true" dsec:"prefs_secret" desc:"secret the aes and chacha keys are derived from"`
	Topic   string `default:"prefs.changes" desc:"change notification topic"`

	Database struct {
		URL   string `optional:"true" dsec:"prefs_database_url" desc:"PostgreSQL connection string"`
		Table string `default:"prefs" desc:"PostgreSQL table"`
	}

	Log struct {
		Level  string `default:"warn" desc:"debug, info, warn or error"`
		Format string `default:"text" desc:"text or json"`
	}

	Metrics struct {
		Addr string `optional:"true" desc:"serve Prometheus metrics on this address"`
	}
}

// configFlags are the persistent flags that override Config fields.
var configFlags = []string{
	"Backend", "Path", "Bucket", "Codec", "Secret", "Topic",
	"Database.URL", "Database.Table",
	"Log.Level", "Log.Format",
	"Metrics.Addr",
}

// addConfigFlags registers one string flag per overridable Config field.
// The values are read back through the command's flag set by loadConfig.
func addConfigFlags(cmd *cobra.Command) {
	for _, path := range configFlags {
		cmd.PersistentFlags().String(casing.ToKebab(path), "", "overrides "+path)
	}
}

// loadConfig parses Config from, lowest first: defaults, the config file,
// .env and the environment, docker secrets and the flags set on cmd.
// An explicitly named config file must exist.
func loadConfig(cmd *cobra.Command, file string) (Config, error) {
	var cfg Config

	var files []string
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return cfg, fmt.Errorf("config file: %w", err)
		}
		files = append(files, file)
	}

	flags := &cfgx.LookupSource{
		PriorityLevel: cfgx.PriorityFlags,
		Lookup: func(path string) (string, bool) {
			f := cmd.Flags().Lookup(casing.ToKebab(path))
			if f == nil || !f.Changed {
				return "", false
			}
			return f.Value.String(), true
		},
	}

	err := cfgx.Parse(&cfg, cfgx.Options{
		EnvPrefix:     EnvPrefix,
		SkipFlags:     true,
		SkipBuildInfo: true,
		Files:         files,
		EnvFiles:      []string{".env"},
		Sources:       []cfgx.Source{cfgx.NewDockerSecretsSource(), flags},
	})
	return cfg, err
}
