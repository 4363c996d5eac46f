package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/cache"
	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the index listing cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var dirFlag string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached index listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveCacheDir(dirFlag)
			if err != nil {
				return err
			}

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			fc, err := cache.NewFileCache(dir)
			if err != nil {
				return err
			}
			if err := fc.Clear(); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "clear cache %s", dir)
			}

			printSuccess("Cleared cached listings")
			printDetail("Directory: %s", dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dirFlag, "dir", "", "cache directory (default: XDG cache directory)")
	return cmd
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveCacheDir("")
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Out, dir)
			return nil
		},
	}
}

func resolveCacheDir(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	dir, err := cacheDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "locate cache directory")
	}
	return dir, nil
}
