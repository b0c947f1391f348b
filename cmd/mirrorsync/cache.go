package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/cache"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the fingerprint cache",
	Long: `Commands for managing the fingerprint cache.

When enabled, the cache stores each file's fingerprint with its size and
modification time, so unchanged files are not read again on the next cycle.
Cache data is stored in the XDG cache directory (typically
~/.cache/mirrorsync/fingerprints).`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [root]",
	Short: "Clear cached fingerprints",
	Long:  `Removes cached fingerprints for one tree root, or for every root when none is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheClear,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Long:  `Displays the cache location and the number of cached fingerprints per tree root.`,
	RunE:  runCacheStats,
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache location",
	Long:  `Prints the path to the cache directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cachePath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

// cachePath returns the configured cache path or the default.
func cachePath() (string, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return "", err
	}
	if cfg.Cache.Path != "" {
		return cfg.Cache.Path, nil
	}
	return cache.DefaultPath(), nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	path, err := cachePath()
	if err != nil {
		return err
	}

	c, err := cache.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer func() {
		_ = c.Close()
	}()

	if len(args) == 0 {
		if err := c.ClearAll(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		printInfo("Cache cleared.")
		return nil
	}

	root, err := resolveRoot(args[0])
	if err != nil {
		return err
	}
	if err := c.Clear(root); err != nil {
		return fmt.Errorf("failed to clear cache for %s: %w", root, err)
	}
	printInfo("Cache cleared for %s.", root)
	return nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	path, err := cachePath()
	if err != nil {
		return err
	}

	c, err := cache.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer func() {
		_ = c.Close()
	}()

	stats, err := c.Stats()
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	fmt.Printf("Cache location: %s\n", path)
	fmt.Printf("Cached fingerprints: %s\n", humanize.Comma(int64(stats.Entries)))

	roots := make([]string, 0, len(stats.Roots))
	for root := range stats.Roots {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	for _, root := range roots {
		fmt.Printf("  %8s  %s\n", humanize.Comma(int64(stats.Roots[root])), root)
	}
	return nil
}

// resolveRoot matches the root form used as a cache key by snapshots.
func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
