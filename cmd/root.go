// Package cmd contains the CLI setup and commands exposed to the operator.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"amici-chat/internal/config"
	"amici-chat/internal/logging"
)

var configFile string

// v collects flag bindings before config.Load layers file and env on top.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:           "amici-chat",
	Short:         "Real-time chat delivery service for Amici",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (toml, yaml or json)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("service", cfg.Service, "env", cfg.Environment)
	return cfg, log, nil
}
