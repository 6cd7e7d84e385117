// Package cmd implements the ua-harvester command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/ua-harvester/cmd/episodes"
	"github.com/jonesrussell/north-cloud/ua-harvester/cmd/harvest"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// NewRootCommand builds the command tree around v.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	var (
		cfgFile string
		debug   bool
	)

	rootCmd := &cobra.Command{
		Use:   "ua-harvester",
		Short: "Matterhorn user action harvester and episode indexer",
		Long: `ua-harvester pulls user actions from Matterhorn, enriches them with episode
metadata and delivers them downstream. It also indexes the episode catalog into
Elasticsearch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return initConfig(v, cfgFile, debug)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ua-harvester version %s\n", Version)
		},
	})
	rootCmd.AddCommand(configCommand(v))
	rootCmd.AddCommand(harvest.Command(v))
	rootCmd.AddCommand(episodes.Command(v))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	// .env is optional
	_ = godotenv.Load()

	return NewRootCommand(viper.New()).ExecuteContext(context.Background())
}

// initConfig reads the config file and environment into v.
func initConfig(v *viper.Viper, cfgFile string, debug bool) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config.SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		// Config file is optional: defaults and environment still apply.
		fmt.Fprintf(os.Stderr, "Warning: config file not found: %v (using defaults and environment variables)\n", err)
	}

	if err := config.BindEnv(v); err != nil {
		return err
	}

	if debug {
		v.Set("logging.level", "debug")
		v.Set("logging.development", true)
	}
	return nil
}
