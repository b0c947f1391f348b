package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/cache"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/config"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/logging"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/pidfile"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/poller"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Mirror the source into the replica until interrupted",
	Long: `Replace the replica with a copy of the source, then reconcile the two trees
every interval until interrupted.

Exits with status 0 on SIGINT/SIGTERM and 1 if the source disappears, the
initial copy fails, or another mirrorsync already owns the replica.`,
	Args: cobra.NoArgs,
	RunE: runMirror,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runMirror bootstraps the replica and polls until cancelled.
func runMirror(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer func() {
		_ = logging.Close()
	}()

	pidPath := cfg.PIDFile
	if pidPath == "" {
		pidPath = pidfile.DefaultPath(cfg.Replica)
	}
	if err := pidfile.Acquire(pidPath); err != nil {
		return err
	}
	defer func() {
		_ = pidfile.Remove(pidPath)
	}()

	opts, closeCache, err := pollerOptions(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	p, err := poller.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printInfo("Mirroring %s -> %s every %s", cfg.Source, cfg.Replica, cfg.Interval)
	return p.Run(ctx)
}

// pollerOptions translates the configuration into poller options. The
// returned func closes the fingerprint cache, if one was opened.
func pollerOptions(cfg *config.Config) (poller.Options, func(), error) {
	noop := func() {}

	hasher, err := cfg.Hasher()
	if err != nil {
		return poller.Options{}, noop, err
	}
	filter, err := cfg.Filter()
	if err != nil {
		return poller.Options{}, noop, err
	}
	bufferSize, err := cfg.BufferSize()
	if err != nil {
		return poller.Options{}, noop, err
	}

	opts := poller.Options{
		Source:         cfg.Source,
		Replica:        cfg.Replica,
		Interval:       cfg.Interval,
		Hasher:         hasher,
		Filter:         filter,
		Workers:        cfg.Workers,
		PruneEmptyDirs: cfg.ReplicaOptions.PruneEmptyDirs,
		BufferSize:     bufferSize,
	}

	if !cfg.Cache.Enabled {
		return opts, noop, nil
	}

	fpCache, err := openCache(cfg)
	if err != nil {
		// The mirror works without a cache, only slower.
		logging.Get("cli").Warn("fingerprint cache unavailable", "error", err)
		return opts, noop, nil
	}
	opts.Cache = fpCache
	return opts, func() { _ = fpCache.Close() }, nil
}

// openCache opens the fingerprint cache at the configured path.
func openCache(cfg *config.Config) (*cache.Cache, error) {
	path := cfg.Cache.Path
	if path == "" {
		path = cache.DefaultPath()
	}
	return cache.Open(path)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
