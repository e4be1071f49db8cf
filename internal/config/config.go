// Package config resolves the daemon's runtime configuration through
// layered koanf providers: built-in defaults, an optional YAML file,
// SERIALITED_* environment variables, and finally command-line flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variable names before they are
// mapped onto config keys: SERIALITED_LOG_LEVEL -> log_level.
const EnvPrefix = "SERIALITED_"

// Config holds the daemon's resolved runtime configuration.
type Config struct {
	DataDir     string `koanf:"data_dir"`
	SocketPath  string `koanf:"socket_path"`
	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"data_dir":     defaultDataDir(),
		"socket_path":  defaultSocketPath(),
		"log_level":    "info",
		"metrics_addr": "",
	}
}

func defaultDataDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func defaultSocketPath() string {
	return "/tmp/serialited-v1.sock"
}

// Load resolves configuration from, in increasing precedence: built-in
// defaults, an optional YAML file named by -config, SERIALITED_*
// environment variables, and flags parsed from args (normally
// os.Args[1:]).
func Load(args []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	fs := flag.NewFlagSet("serialited", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to an optional YAML config file")
	dataDir := fs.String("data-dir", "", "base directory for database files (also accepted as a bare positional argument)")
	socketPath := fs.String("socket", "", "path to the local-socket endpoint")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	metricsAddr := fs.String("metrics-addr", "", "host:port to serve Prometheus metrics on (empty disables)")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	if *configPath != "" {
		if err := k.Load(file.Provider(*configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", *configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKeyMap), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data-dir":
			cfg.DataDir = *dataDir
		case "socket":
			cfg.SocketPath = *socketPath
		case "log-level":
			cfg.LogLevel = *logLevel
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})

	// spec.md §6: "a single optional positional argument names the base
	// directory" — honored only when -data-dir was not also given.
	if fs.NArg() > 0 && !flagWasSet(fs, "data-dir") {
		cfg.DataDir = fs.Arg(0)
	}

	return &cfg, nil
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func envKeyMap(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// Validate checks the configuration and ensures DataDir exists.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("config: socket path is required")
	}
	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return fmt.Errorf("config: create data dir: %w", err)
	}
	return nil
}

// DBPath joins a client-supplied database name onto the configured data
// directory. Callers must validate name with internal/dbname first.
func (c *Config) DBPath(name string) string {
	return filepath.Join(c.DataDir, name)
}
