// Package commands implements the CLI commands for mediacrawl.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/mediacrawl/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "mediacrawl",
	Short: "Browser-driven crawler for short-video platforms",
	Long: `Mediacrawl drives a real browser through search results, video pages
and creator profiles, captures the JSON the site loads in the background,
and stores normalized videos, comments and creators.

Examples:
  # Search two keywords and keep the comments
  mediacrawl crawl --type search --keywords "golang,rust"

  # Fetch specific videos into SQLite
  mediacrawl crawl --type detail \
      --video-url "https://www.tiktok.com/@user/video/7301234567890123456" \
      --save sqlite

  # Crawl creators and publish records to NATS
  mediacrawl crawl --type creator --creator-id someone --save nats`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.mediacrawl.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".mediacrawl")
		viper.SetConfigType("yaml")
	}

	// Environment variables, e.g. MEDIACRAWL_BROWSER_DRIVER
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file (a missing default file is fine)
	if err := viper.ReadInConfig(); err != nil && viper.GetString("config") != "" {
		logError("read config: %v", err)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
