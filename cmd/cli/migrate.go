package cli

import (
	"context"
	"time"

	"growzzy/internal/app"

	"github.com/spf13/cobra"
)

var (
	migrateSeed  bool
	migrateOwner string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger := loadConfig()
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		if err := app.Migrate(db); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		logger.Info("Database migrated")

		if !migrateSeed {
			return
		}
		res, err := app.SeedDemo(context.Background(), db, migrateOwner, time.Now())
		if err != nil {
			logger.Fatalf("Failed to seed demo data: %v", err)
		}
		logger.WithField("campaigns", res.CampaignIDs).Infof("Seeded demo data for %s (%d snapshots)", migrateOwner, res.Snapshots)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "insert demo campaigns, snapshots and leads")
	migrateCmd.Flags().StringVar(&migrateOwner, "owner", "demo-user", "owner id for seeded data")
	rootCmd.AddCommand(migrateCmd)
}
