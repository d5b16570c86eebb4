// Package cmd implements the caravan command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/bootstrap"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug mode for all commands.
	Debug bool

	rootCmd = &cobra.Command{
		Use:           "caravan",
		Short:         "Earthquake scenario ground motion runs",
		Long:          `Caravan computes ground motion distributions for earthquake scenarios over exposure targets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command until it returns or SIGINT/SIGTERM.
func Execute() error {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or ./config.yml)")
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug mode")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "caravan version %s\n", Version)
		},
	})

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newHashCommand())
	rootCmd.AddCommand(newGMPEsCommand())
}

// initConfig binds flags and CARAVAN_* variables to viper keys.
func initConfig() {
	viper.SetEnvPrefix("caravan")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig loads the service configuration and applies command-line
// overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := bootstrap.LoadConfig(viper.GetString("config"))
	if err != nil {
		return nil, err
	}

	if viper.GetBool("debug") {
		cfg.Service.Debug = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "console"
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	cfg.Service.Version = Version

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
