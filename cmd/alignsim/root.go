package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alignsim/alignsim/internal/config"
	"github.com/alignsim/alignsim/internal/logging"
)

var (
	cfgFile string
	debug   bool
	rootCmd = &cobra.Command{
		Use:   "alignsim",
		Short: "alignsim runs simulated-user alignment evaluations against a planning assistant",
	}
)

// Execute runs the root command.
func Execute() error {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", filepath.Join(".alignsim", "config.json"), "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.Init(debug)
	}
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(experimentCmd())
	rootCmd.AddCommand(serveCmd())
	return rootCmd.Execute()
}

func loadConfig() (config.Config, error) {
	if _, err := os.Stat(cfgFile); err != nil {
		if os.IsNotExist(err) {
			return config.Default(), nil
		}
		return config.Config{}, fmt.Errorf("stat config: %w", err)
	}
	return config.Load(cfgFile)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
