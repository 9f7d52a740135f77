// Package cmd provides the CLI commands for the cloud cost advisor.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/softcane/cloud-cost-advisor/internal/config"
)

var (
	// Global flags
	verbose bool
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "advisor",
	Short: "Cloud Cost Advisor - compute right-sizing recommendations",
	Long: `Cloud Cost Advisor analyzes compute instance utilization and
recommends downsizing actions with projected monthly savings.

It ingests metrics from CloudWatch, Prometheus or a synthetic fleet,
scores instances with a trained classifier and serves recommendations,
cost trends and analytics over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose logging output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Path to configuration file (default: built-in defaults plus environment)")
}

// setupLogging configures structured JSON logging using slog.
func setupLogging() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig reads the configured file, or falls back to defaults plus
// environment variables when no file was given.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}
