package cloudapi

import (
	"context"
	"log/slog"
	"time"
)

// VerifierWrapper wraps an inventory provider with structured logging
// and nil-provider handling. The API layer depends on this wrapper so
// a deployment without cloud credentials degrades to explicit errors
// instead of nil dereferences.
type VerifierWrapper struct {
	provider InventoryProvider // nil when no credentials are configured
	logger   *slog.Logger
}

// VerifierWrapperConfig configures the VerifierWrapper.
type VerifierWrapperConfig struct {
	Provider InventoryProvider
	Logger   *slog.Logger
}

// NewVerifierWrapper creates a new logging wrapper for type
// verification lookups.
func NewVerifierWrapper(cfg VerifierWrapperConfig) *VerifierWrapper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifierWrapper{
		provider: cfg.Provider,
		logger:   logger,
	}
}

// CurrentInstanceType looks up the live instance type at the provider.
func (w *VerifierWrapper) CurrentInstanceType(ctx context.Context, cloudInstanceID, region string) (string, error) {
	start := time.Now()

	if w.provider == nil {
		w.logger.Error("no cloud provider configured for verification")
		return "", ErrNoProvider
	}

	instanceType, err := w.provider.CurrentInstanceType(ctx, cloudInstanceID, region)
	if err != nil {
		w.logger.Warn("instance type lookup failed",
			"cloud_instance_id", cloudInstanceID,
			"region", region,
			"error", err,
		)
		return "", err
	}

	w.logger.Info("instance type verified",
		"cloud_instance_id", cloudInstanceID,
		"region", region,
		"instance_type", instanceType,
		"duration", time.Since(start),
	)
	return instanceType, nil
}
