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
	syncCloudWatch    bool
	syncLookbackHours int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Discover cloud instances and optionally ingest their metrics",
	Long: `Sync lists running compute instances at the detected cloud provider
and upserts them into the registry. With --metrics, it also pulls the
trailing CloudWatch utilization window for the registered AWS fleet.

Example:
  advisor sync
  advisor sync --metrics --lookback-hours 48`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncCloudWatch, "metrics", false,
		"Also ingest CloudWatch metrics for the AWS fleet")
	syncCmd.Flags().IntVar(&syncLookbackHours, "lookback-hours", ingest.DefaultCloudWatchLookbackHours,
		"Trailing metric window to ingest with --metrics")
}

func runSync(cmd *cobra.Command, args []string) error {
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

	provider := newInventoryProvider(ctx, cfg, logger)
	if provider == nil {
		return fmt.Errorf("no cloud provider available; configure AWS or GCP credentials")
	}

	syncer := ingest.NewInventorySyncer(provider, st.Instances, logger)
	synced, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Synced %d instances\n", synced)

	if !syncCloudWatch {
		return nil
	}
	if cfg.AWS.Region == "" {
		return fmt.Errorf("aws.region (or AWS_REGION) is required for --metrics")
	}

	ingestor, err := ingest.NewCloudWatchIngestor(ctx, ingest.CloudWatchConfig{
		Region:    cfg.AWS.Region,
		Instances: st.Instances,
		Samples:   st.Metrics,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize CloudWatch ingestor: %w", err)
	}

	ids, err := cloudInstanceIDs(ctx, st, "aws")
	if err != nil {
		return err
	}
	samples, err := ingestor.Ingest(ctx, ids, syncLookbackHours)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d samples\n", samples)
	return nil
}
