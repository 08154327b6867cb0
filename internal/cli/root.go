// Package cli provides the command-line interface for tgcollect.
package cli

import (
	"fmt"
	"os"

	"github.com/emily-news/tgcollect/internal/config"
	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tgcollect",
	Short: "Collect Telegram channel posts into the news store",
	Long:  "tgcollect watches public Telegram channels, scrapes new posts and their media, stores them in the news store, and queues them for downstream processing.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("tgcollect %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default "+config.DefaultConfigFile+")")
	rootCmd.AddCommand(versionCmd)
}

// resolveConfigPath is evaluated at command run time, after main has loaded
// any .env file: the flag wins, then TGCOLLECT_CONFIG, then the default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("TGCOLLECT_CONFIG"); p != "" {
		return p
	}
	return config.DefaultConfigFile
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
