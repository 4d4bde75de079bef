package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"briefcast/internal/config"
	"briefcast/internal/observability/logging"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "briefcast",
	Short:         "Daily audio news briefing pipeline",
	Long:          "briefcast fetches news sources, selects the day's top stories, and produces a published audio briefing episode.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is fine; explicit environment always wins.
		_ = godotenv.Load()
		initLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "briefcast.yaml", "path to the configuration file")
	rootCmd.AddCommand(runCmd, statusCmd, validateCmd)
}

// initLogger installs the default logger: human-readable for terminals
// when LOG_FORMAT=text, JSON otherwise.
func initLogger() {
	var logger *slog.Logger
	if os.Getenv("LOG_FORMAT") == "text" {
		logger = logging.NewDevLogger()
	} else {
		logger = logging.NewLogger()
	}
	slog.SetDefault(logger)
}

// loadConfig loads and logs configuration, surfacing fail-open warnings.
func loadConfig() (*config.Workflow, error) {
	cfg, warnings, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		slog.Warn("configuration warning", slog.String("warning", w))
	}
	return cfg, nil
}
