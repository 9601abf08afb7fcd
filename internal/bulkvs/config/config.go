// Package config loads BulkVS settings from file and environment.
//
// Settings come from bulkvs.yaml (working directory or ~/.bulkvs) with
// BULKVS_* environment variables taking precedence, so credentials can
// stay out of the config file on shared hosts.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/provider"
)

// Config holds everything the CLI and server need to run.
type Config struct {
	// APIURL is the BulkVS API base URL.
	APIURL string

	// APIKey and APISecret are the basic-auth credentials.
	APIKey    string
	APISecret string

	// HTTPSecret authenticates the CNAM/LRN lookup hosts. Optional;
	// only the lookup command needs it.
	HTTPSecret string

	// TrunkGroup scopes number syncs when no explicit trunk group is
	// given. Empty means the whole inventory.
	TrunkGroup string

	// DatabasePath is the SQLite cache location.
	DatabasePath string

	// ListenAddr is the web server bind address.
	ListenAddr string

	// LogFile, when set, routes serve-mode logs to a rotating file
	// instead of stderr.
	LogFile string
}

// Load reads configuration. A non-empty path names an explicit config
// file and missing it is an error; otherwise bulkvs.yaml is searched for
// and absence is fine (env and defaults still apply).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api_url", provider.DefaultBaseURL)
	v.SetDefault("database_path", ".bulkvs/cache.db")
	v.SetDefault("listen_addr", ":8080")

	v.SetEnvPrefix("BULKVS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("bulkvs")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.bulkvs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	return &Config{
		APIURL:       v.GetString("api_url"),
		APIKey:       v.GetString("api_key"),
		APISecret:    v.GetString("api_secret"),
		HTTPSecret:   v.GetString("http_secret"),
		TrunkGroup:   v.GetString("trunk_group"),
		DatabasePath: v.GetString("database_path"),
		ListenAddr:   v.GetString("listen_addr"),
		LogFile:      v.GetString("log_file"),
	}, nil
}

// Validate checks that the credentials needed to reach the provider are
// present. Read-only cache commands don't need this.
func (c *Config) Validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return errors.New("api_key and api_secret are required (bulkvs.yaml or BULKVS_API_KEY/BULKVS_API_SECRET)")
	}
	return nil
}
