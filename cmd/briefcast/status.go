package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"briefcast/internal/app"
	"briefcast/internal/observability/metrics"
	"briefcast/internal/usecase/status"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline health and open error records",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit the report as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	led, cleanup, err := app.OpenLedger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	runLog, err := metrics.NewRunLog(cfg.MetricsLogPath)
	if err != nil {
		return err
	}

	report, err := status.NewService(led, runLog).Report(context.Background())
	if err != nil {
		return err
	}

	if statusJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal status report: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	report.Render(os.Stdout)
	return nil
}
