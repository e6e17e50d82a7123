// Package config loads fyn's settings.
//
// Sources are layered, later ones winning:
//
//  1. built-in defaults
//  2. a TOML file: an explicit path, else .fynrc.toml in the project
//     directory, else $XDG_CONFIG_HOME/fyn/config.toml
//  3. FYN_* environment variables (FYN_LOCK_ONLY, FYN_CACHE_BACKEND, ...)
//  4. command-line flags bound by the CLI
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/matzehuels/fyn/pkg/cache"
	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/integrations/npm"
)

const (
	// AppName names the config and cache directories.
	AppName = "fyn"

	// ProjectFile is the per-project config file name.
	ProjectFile = ".fynrc.toml"

	envPrefix = "FYN"
)

// Config is the effective configuration.
type Config struct {
	Registry         string `mapstructure:"registry" toml:"registry"`
	Token            string `mapstructure:"token" toml:"token,omitempty"`
	Concurrency      int    `mapstructure:"concurrency" toml:"concurrency"`
	LockOnly         bool   `mapstructure:"lock_only" toml:"lock_only"`
	LockTime         string `mapstructure:"lock_time" toml:"lock_time,omitempty"`
	Production       bool   `mapstructure:"production" toml:"production"`
	PreferLocal      bool   `mapstructure:"prefer_local" toml:"prefer_local"`
	RefreshOptionals bool   `mapstructure:"refresh_optionals" toml:"refresh_optionals"`
	ResolvePeers     bool   `mapstructure:"resolve_peers" toml:"resolve_peers"`
	Dedupe           bool   `mapstructure:"dedupe" toml:"dedupe"`
	LockFile         string `mapstructure:"lock_file" toml:"lock_file"`
	InstallDir       string `mapstructure:"install_dir" toml:"install_dir"`

	Cache CacheConfig `mapstructure:"cache" toml:"cache"`
}

// CacheConfig selects the packument cache backend.
type CacheConfig struct {
	Backend  string        `mapstructure:"backend" toml:"backend"`
	Dir      string        `mapstructure:"dir" toml:"dir,omitempty"`
	TTL      time.Duration `mapstructure:"ttl" toml:"ttl"`
	RedisURL string        `mapstructure:"redis_url" toml:"redis_url,omitempty"`
	MongoURI string        `mapstructure:"mongo_uri" toml:"mongo_uri,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Registry:    npm.DefaultRegistry,
		Concurrency: 15,
		Dedupe:      true,
		LockFile:    "fyn-lock.yaml",
		InstallDir:  "node_modules",
		Cache: CacheConfig{
			Backend: cache.BackendFile,
			TTL:     cache.TTLPackument,
		},
	}
}

// LoadOptions says where to look for settings.
type LoadOptions struct {
	ProjectDir string         // directory searched for .fynrc.toml
	File       string         // explicit config file; must exist when set
	ConfigDir  string         // overrides the user config directory
	Flags      *pflag.FlagSet // flags whose names match keys, dashes for underscores
}

// Load resolves the configuration and returns it with the file it read, ""
// when none.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := findFile(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
		}
	}

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, bindErr, "bind flags")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode config")
	}
	if cfg.Cache.Dir == "" && cfg.Cache.Backend == cache.BackendFile {
		if dir, err := CacheDir(); err == nil {
			cfg.Cache.Dir = dir
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, path, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("registry", d.Registry)
	v.SetDefault("token", d.Token)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("lock_only", d.LockOnly)
	v.SetDefault("lock_time", d.LockTime)
	v.SetDefault("production", d.Production)
	v.SetDefault("prefer_local", d.PreferLocal)
	v.SetDefault("refresh_optionals", d.RefreshOptionals)
	v.SetDefault("resolve_peers", d.ResolvePeers)
	v.SetDefault("dedupe", d.Dedupe)
	v.SetDefault("lock_file", d.LockFile)
	v.SetDefault("install_dir", d.InstallDir)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("cache.mongo_uri", d.Cache.MongoURI)
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"registry":          "registry",
	"concurrency":       "concurrency",
	"lock-only":         "lock_only",
	"lock-time":         "lock_time",
	"production":        "production",
	"prefer-local":      "prefer_local",
	"refresh-optionals": "refresh_optionals",
	"resolve-peers":     "resolve_peers",
	"dedupe":            "dedupe",
	"lock-file":         "lock_file",
	"install-dir":       "install_dir",
	"cache-backend":     "cache.backend",
	"cache-dir":         "cache.dir",
}

func findFile(opts LoadOptions) (string, error) {
	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return "", errors.Wrap(errors.ErrCodeFileNotFound, err, "config file %s", opts.File)
		}
		return opts.File, nil
	}
	if opts.ProjectDir != "" {
		p := filepath.Join(opts.ProjectDir, ProjectFile)
		if fileExists(p) {
			return p, nil
		}
	}
	dir := opts.ConfigDir
	if dir == "" {
		d, err := ConfigDir()
		if err != nil {
			return "", nil
		}
		dir = d
	}
	p := filepath.Join(dir, "config.toml")
	if fileExists(p) {
		return p, nil
	}
	return "", nil
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// Validate checks values that cannot be expressed by types alone.
func (c *Config) Validate() error {
	if err := errors.ValidateURL(c.Registry); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "registry")
	}
	if c.Concurrency < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "concurrency must be positive, got %d", c.Concurrency)
	}
	if _, err := c.LockTimeValue(); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case cache.BackendFile, cache.BackendNone:
	case cache.BackendRedis:
		if c.Cache.RedisURL == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_url is required for the redis backend")
		}
	case cache.BackendMongo:
		if c.Cache.MongoURI == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.mongo_uri is required for the mongo backend")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

// LockTimeValue parses lock_time as RFC 3339 or a plain date. Empty means
// no cutoff.
func (c *Config) LockTimeValue() (time.Time, error) {
	if c.LockTime == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, c.LockTime); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New(errors.ErrCodeInvalidConfig, "lock_time %q is not RFC 3339 or YYYY-MM-DD", c.LockTime)
}

// TOML renders c with the token redacted.
func (c *Config) TOML() ([]byte, error) {
	out := *c
	if out.Token != "" {
		out.Token = "********"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode config")
	}
	return buf.Bytes(), nil
}

// ConfigDir returns $XDG_CONFIG_HOME/fyn, defaulting to ~/.config/fyn.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// CacheDir returns $XDG_CACHE_HOME/fyn, defaulting to ~/.cache/fyn.
func CacheDir() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}
