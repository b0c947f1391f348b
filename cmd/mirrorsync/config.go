package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage mirrorsync configuration settings.

Configuration is loaded from $XDG_CONFIG_HOME/mirrorsync/config.yaml, or the
file given with --config.

Environment variables override config file settings using the MIRRORSYNC_ prefix:
  MIRRORSYNC_SOURCE=/data/src
  MIRRORSYNC_INTERVAL=5m
  MIRRORSYNC_FINGERPRINT_ALGORITHM=xxhash
  MIRRORSYNC_EXCLUDE="*.tmp,.git"`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration merged from all sources.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	Run:   runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the effective configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Printf("Config file: %s\n\n", configFile)
	} else {
		fmt.Print("Config file: (using defaults, no file found)\n\n")
	}

	settings := viper.AllSettings()
	delete(settings, "quiet")
	delete(settings, "verbose")

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	fmt.Print(string(data))

	if err := cfg.Validate(); err != nil {
		fmt.Printf("\nWarning: %v\n", err)
	}

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	var overrides []string
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, config.EnvPrefix+"_") {
			overrides = append(overrides, env)
		}
	}
	sort.Strings(overrides)
	if len(overrides) == 0 {
		fmt.Println("(none)")
	}
	for _, o := range overrides {
		fmt.Println(o)
	}

	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFilePath()

	created, err := config.WriteDefault(path)
	if err != nil {
		return err
	}
	if !created {
		printInfo("Config file already exists: %s", path)
		return nil
	}

	printInfo("Created config file: %s", path)
	return nil
}

// runConfigPath prints the config file path.
func runConfigPath(cmd *cobra.Command, args []string) {
	fmt.Println(configFilePath())
}

// configFilePath returns the --config value or the default location.
func configFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.ConfigPath()
}
