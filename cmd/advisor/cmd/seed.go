package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/softcane/cloud-cost-advisor/internal/ingest"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

var (
	seedDays      int
	seedInstances int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a synthetic demo fleet",
	Long: `Seed registers a synthetic instance fleet and backfills hourly
utilization history, so the recommendation pipeline can be exercised
without cloud credentials.

Half the fleet lands in dev with low utilization and should be flagged
for downsizing; the other half runs prod-like load.

Example:
  advisor seed --days 7 --instances 100`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVar(&seedDays, "days", ingest.DefaultSeedDays,
		"Days of hourly utilization history to backfill")
	seedCmd.Flags().IntVar(&seedInstances, "instances", ingest.DefaultSeedInstances,
		"Number of synthetic instances to register")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url (or DATABASE_URL) is required")
	}

	st, err := store.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	seeder := ingest.NewSeeder(st.Instances, st.Metrics, logger)
	return seeder.Seed(ctx, seedDays, seedInstances)
}
