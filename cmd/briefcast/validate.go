package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file and exit",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	errs := cfg.Validate()
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, "invalid:", e)
		}
		return fmt.Errorf("configuration invalid: %d problem(s)", len(errs))
	}

	fmt.Printf("configuration valid: %d sources, provider %s, schedule %q (%s)\n",
		len(cfg.Sources), cfg.ScriptProvider, cfg.CronSchedule, cfg.Timezone)
	return nil
}
