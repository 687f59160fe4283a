package cli

import (
	"context"
	"encoding/json"
	"os"

	"growzzy/internal/app"

	"github.com/spf13/cobra"
)

var optimizeOwner string

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Analyze one owner's active campaigns and store insights",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger := loadConfig()
		a, err := app.New(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize: %v", err)
		}
		defer a.Close()

		reports, err := a.Optimizer.Run(context.Background(), optimizeOwner)
		if err != nil {
			logger.Fatalf("Optimization failed: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(reports)
	},
}

func init() {
	optimizeCmd.Flags().StringVarP(&optimizeOwner, "user", "u", "", "owner id")
	_ = optimizeCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(optimizeCmd)
}
