// Package cli implements the fyn command-line interface.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/fyn/pkg/buildinfo"
	"github.com/matzehuels/fyn/pkg/cache"
	"github.com/matzehuels/fyn/pkg/config"
	"github.com/matzehuels/fyn/pkg/integrations/npm"
	"github.com/matzehuels/fyn/pkg/observability"
	"github.com/matzehuels/fyn/pkg/pipeline"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	projectDir string
	configFile string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          config.AppName,
		Short:        "fyn resolves npm dependencies into a reproducible lock",
		Long:         `fyn reads package.json, resolves every dependency against an npm registry and writes fyn-lock.yaml. An existing fyn lock, package-lock.json or yarn.lock is honoured.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVarP(&c.projectDir, "dir", "C", ".", "project directory")
	pf.StringVar(&c.configFile, "config", "", "config file (default .fynrc.toml, then the user config)")
	pf.String("registry", npm.DefaultRegistry, "npm registry URL")
	pf.Int("concurrency", config.Default().Concurrency, "concurrent registry requests")
	pf.String("cache-backend", cache.BackendFile, "packument cache: file, redis, mongo or none")
	pf.String("cache-dir", "", "file cache directory")

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.whyCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Config & Runner Factory
// =============================================================================

// loadConfig resolves the layered configuration for cmd.
func (c *CLI) loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	return config.Load(config.LoadOptions{
		ProjectDir: c.projectDir,
		File:       c.configFile,
		Flags:      cmd.Flags(),
	})
}

// newRunner creates a pipeline runner for CLI use. A cache backend that
// cannot be reached degrades to no caching.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config, hooks observability.Hooks) *pipeline.Runner {
	cc, err := cache.Open(ctx, cache.Config{
		Backend:  cfg.Cache.Backend,
		Dir:      cfg.Cache.Dir,
		RedisURL: cfg.Cache.RedisURL,
		MongoURI: cfg.Cache.MongoURI,
	})
	if err != nil {
		c.Logger.Warn("cache unavailable, continuing without it", "backend", cfg.Cache.Backend, "err", err)
		cc = cache.NewNullCache()
	}
	return pipeline.NewRunner(cc, hooks, c.Logger)
}

// =============================================================================
// Resolve Flags
// =============================================================================

// resolveFlags are shared by every command that runs a resolve.
type resolveFlags struct {
	refresh bool
}

func addResolveFlags(fs *pflag.FlagSet, rf *resolveFlags) {
	d := config.Default()
	fs.Bool("lock-only", false, "resolve from the lock only, never the registry")
	fs.String("lock-time", "", "ignore versions published after this time (RFC 3339 or YYYY-MM-DD)")
	fs.Bool("production", false, "skip devDependencies")
	fs.Bool("prefer-local", false, "resolve local and URL dependencies before the lock")
	fs.Bool("refresh-optionals", false, "re-check optional dependencies that failed before")
	fs.Bool("resolve-peers", false, "expand peerDependencies of dependencies")
	fs.Bool("dedupe", d.Dedupe, "re-resolve to remove duplicated lock entries")
	fs.String("lock-file", d.LockFile, "lock file path")
	fs.String("install-dir", d.InstallDir, "node_modules directory")
	fs.BoolVar(&rf.refresh, "refresh", false, "bypass cached registry metadata")
}

// pipelineOptions loads config for cmd and maps it onto pipeline options.
func (c *CLI) pipelineOptions(cmd *cobra.Command, rf *resolveFlags) (*config.Config, pipeline.Options, error) {
	cfg, path, err := c.loadConfig(cmd)
	if err != nil {
		return nil, pipeline.Options{}, err
	}
	if path != "" {
		c.Logger.Debug("loaded config", "path", path)
	}
	opts, err := pipeline.FromConfig(cfg, c.projectDir)
	if err != nil {
		return nil, pipeline.Options{}, err
	}
	opts.Refresh = rf.refresh
	return cfg, opts, nil
}

// stdout is where command results go; status lines use the print helpers.
func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}
