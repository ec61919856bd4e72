// Package main is the entry point for quotaproxy.
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/fang/v2"
	"github.com/spf13/cobra"
)

// defaultConfigFile matches the original implementation's CONFIG_FILE
// convention of a config.json living alongside the running process.
const defaultConfigFile = "config.json"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quotaproxy",
	Short: "Key and model selection proxy for the Generative Language API",
	Long: `quotaproxy sits in front of the Generative Language API, picking
which API key and model to use for each request according to tiered key
pools, per-model rate limits, and a daily reset schedule.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: "+defaultConfigFile+")")
}

// Execute runs the root command, rendering help and errors through fang.
func Execute() error {
	return fang.Execute(context.Background(), rootCmd)
}

// resolveConfigPath returns the --config flag value, falling back to
// defaultConfigFile in the current directory and then in
// ~/.config/quotaproxy/.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}

	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		p := filepath.Join(home, ".config", "quotaproxy", defaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return defaultConfigFile
}
