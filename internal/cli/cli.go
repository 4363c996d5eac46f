package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/buildinfo"
	"github.com/matzehuels/wheelhouse/pkg/cache"
	"github.com/matzehuels/wheelhouse/pkg/config"
	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "wheelhouse"

	// defaultPort is the port "serve" listens on.
	defaultPort = 8080
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
	Out    io.Writer
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Out:    os.Stdout,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Wheelhouse mirrors Python packages for restricted environments",
		Long:         `Wheelhouse mirrors a closed set of Python packages and their dependencies from a PEP 691 index into a local directory, restricted to a declared set of target environments, and serves it back as a simple repository.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.mirrorCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.envCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Cache Factory
// =============================================================================

// newCache builds the listing cache selected by opts.
func newCache(ctx context.Context, opts config.CacheOptions, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch opts.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendFile:
		dir := opts.Dir
		if dir == "" {
			var err error
			if dir, err = cacheDir(); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "locate cache directory")
			}
		}
		return cache.NewFileCache(dir)
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rc, err := cache.NewRedisCache(ctx, opts.RedisURL)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "connect to redis cache")
		}
		return rc, nil
	default:
		return cache.NewMemoryCache(), nil
	}
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/wheelhouse/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// indexPath resolves the --index-path flag, defaulting to the working directory.
func indexPath(flag string) (string, error) {
	if flag == "" {
		return os.Getwd()
	}
	return filepath.Abs(flag)
}
