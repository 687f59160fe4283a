package cli

import (
	"context"
	"encoding/json"
	"os"

	"growzzy/internal/app"

	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler batch and print the summary",
	Long:  `Run one scheduler batch against the configured database, for cron jobs that do not go through HTTP`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger := loadConfig()
		a, err := app.New(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize: %v", err)
		}
		defer a.Close()

		summary, err := a.Service.Tick(context.Background())
		if err != nil {
			logger.Fatalf("Tick failed: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	},
}

func init() {
	rootCmd.AddCommand(tickCmd)
}
