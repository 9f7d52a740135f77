package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/softcane/cloud-cost-advisor/internal/cloudapi"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

// InventorySyncer discovers compute instances from a cloud provider
// and upserts them into the registry. Re-running is safe; instances
// are keyed by cloud instance ID.
type InventorySyncer struct {
	provider cloudapi.InventoryProvider
	writer   InstanceWriter
	logger   *slog.Logger
}

// NewInventorySyncer creates an inventory syncer.
func NewInventorySyncer(provider cloudapi.InventoryProvider, writer InstanceWriter, logger *slog.Logger) *InventorySyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventorySyncer{
		provider: provider,
		writer:   writer,
		logger:   logger,
	}
}

// Sync lists live instances and upserts each into the registry.
// Returns the number of instances synced.
func (s *InventorySyncer) Sync(ctx context.Context) (int, error) {
	records, err := s.provider.ListInstances(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list cloud instances: %w", err)
	}

	synced := 0
	for _, record := range records {
		inst := recordToInstance(record)
		if err := s.writer.Upsert(ctx, &inst); err != nil {
			s.logger.Warn("failed to upsert instance",
				"cloud_instance_id", record.CloudInstanceID,
				"error", err,
			)
			continue
		}
		synced++
	}

	s.logger.Info("inventory sync complete", "discovered", len(records), "synced", synced)
	return synced, nil
}

func recordToInstance(record cloudapi.InstanceRecord) store.Instance {
	inst := store.Instance{
		CloudInstanceID: record.CloudInstanceID,
		CloudProvider:   record.CloudProvider,
		Tags:            record.Tags,
	}
	if record.AccountID != "" {
		inst.AccountID = strPtr(record.AccountID)
	}
	if record.Region != "" {
		inst.Region = strPtr(record.Region)
	}
	if record.InstanceType != "" {
		inst.InstanceType = strPtr(record.InstanceType)
	}
	if record.Environment != "" {
		inst.Environment = strPtr(record.Environment)
	}
	if record.HourlyCost != nil {
		cost := decimal.NewFromFloat(*record.HourlyCost)
		inst.HourlyCost = &cost
	}
	return inst
}

func strPtr(s string) *string { return &s }
