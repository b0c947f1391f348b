package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/config"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/logging"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "mirrorsync",
		Short: "Keep a replica directory identical to a source directory",
		Long: `Mirrorsync keeps a replica directory a one-way mirror of a source directory.

It copies the source once, then periodically fingerprints both trees and
applies the creates, modifications, renames and deletions needed to make
the replica match. Renamed files are moved rather than copied again.

Examples:
  mirrorsync --source ~/docs --replica /backup/docs        # Mirror every 30s
  mirrorsync run -s ~/docs -r /backup/docs -i 5m           # Custom interval
  mirrorsync plan -s ~/docs -r /backup/docs -o plain       # Preview changes
  mirrorsync config show                                   # Show configuration`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMirror,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/mirrorsync/config.yaml)")
	flags.StringP("source", "s", "", "source directory to mirror")
	flags.StringP("replica", "r", "", "replica directory kept identical to the source")
	flags.StringSliceP("exclude", "e", nil, "exclude glob patterns (can be specified multiple times)")
	flags.IntP("workers", "w", 0, "snapshot worker count (0=auto)")
	flags.String("algorithm", "", "fingerprint algorithm (sha256, sha512, md5, xxhash)")
	flags.String("chunk-size", "", "fingerprint read size (e.g. 64K, 1M)")
	flags.Bool("cache", false, "reuse fingerprints of unchanged files")
	flags.DurationP("interval", "i", 0, "time between reconciliation cycles (default 30s)")
	flags.Bool("prune-empty-dirs", true, "remove replica directories emptied by deletes and renames")
	flags.String("pid-file", "", "pid file guarding the replica")
	flags.String("log-file", "", "log file path")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.BoolP("quiet", "q", false, "minimal output")
	flags.BoolP("verbose", "v", false, "debug output on stderr")

	// Bind flags to viper
	_ = viper.BindPFlag("source", flags.Lookup("source"))
	_ = viper.BindPFlag("replica", flags.Lookup("replica"))
	_ = viper.BindPFlag("exclude", flags.Lookup("exclude"))
	_ = viper.BindPFlag("workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("fingerprint.algorithm", flags.Lookup("algorithm"))
	_ = viper.BindPFlag("fingerprint.chunk_size", flags.Lookup("chunk-size"))
	_ = viper.BindPFlag("cache.enabled", flags.Lookup("cache"))
	_ = viper.BindPFlag("interval", flags.Lookup("interval"))
	_ = viper.BindPFlag("replica_options.prune_empty_dirs", flags.Lookup("prune-empty-dirs"))
	_ = viper.BindPFlag("pid_file", flags.Lookup("pid-file"))
	_ = viper.BindPFlag("logging.path", flags.Lookup("log-file"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	config.Prepare(viper.GetViper(), cfgFile)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		return err
	}
	return nil
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogging starts file logging, mirroring records to stderr unless
// quiet.
func initLogging(cfg *config.Config) error {
	lc, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}

	switch {
	case getVerbose():
		lc.ConsoleLevel = "debug"
		lc.Level = "debug"
	case getQuiet():
		lc.ConsoleLevel = ""
	case lc.ConsoleLevel == "":
		lc.ConsoleLevel = "info"
	}

	return logging.Init(lc)
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
