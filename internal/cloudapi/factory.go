package cloudapi

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/softcane/cloud-cost-advisor/internal/cloudapi/aws"
	"github.com/softcane/cloud-cost-advisor/internal/cloudapi/gcp"
)

// NewAutoDetectedInventoryProvider creates an inventory provider based
// on the detected cloud.
func NewAutoDetectedInventoryProvider(ctx context.Context, logger *slog.Logger) (InventoryProvider, CloudType, error) {
	cloud := DetectCloud(ctx)

	switch cloud {
	case CloudTypeAWS:
		provider, err := NewAWSInventoryProvider(ctx, getAWSRegion(), logger)
		return provider, cloud, err

	case CloudTypeGCP:
		provider, err := NewGCPInventoryProvider(ctx, getGCPProject(), logger)
		return provider, cloud, err

	default:
		return nil, cloud, fmt.Errorf("unsupported cloud: %s", cloud)
	}
}

// NewAWSInventoryProvider creates an AWS-backed inventory provider for
// a specific region.
func NewAWSInventoryProvider(ctx context.Context, region string, logger *slog.Logger) (InventoryProvider, error) {
	client, err := aws.NewInventoryClient(ctx, region, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS inventory client: %w", err)
	}
	return &awsInventoryAdapter{client: client, region: region}, nil
}

// NewGCPInventoryProvider creates a GCP-backed inventory provider for
// a specific project.
func NewGCPInventoryProvider(ctx context.Context, project string, logger *slog.Logger) (InventoryProvider, error) {
	if project == "" {
		return nil, fmt.Errorf("GCP project not configured")
	}
	client, err := gcp.NewInventoryClient(ctx, project, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP inventory client: %w", err)
	}
	return &gcpInventoryAdapter{client: client}, nil
}

// getAWSRegion returns the AWS region from environment or default.
func getAWSRegion() string {
	if region := os.Getenv("AWS_REGION"); region != "" {
		return region
	}
	if region := os.Getenv("AWS_DEFAULT_REGION"); region != "" {
		return region
	}
	return "us-east-1"
}

// getGCPProject returns the GCP project from environment.
func getGCPProject() string {
	if project := os.Getenv("GOOGLE_CLOUD_PROJECT"); project != "" {
		return project
	}
	if project := os.Getenv("GCP_PROJECT"); project != "" {
		return project
	}
	return ""
}

// awsInventoryAdapter adapts aws.InventoryClient to InventoryProvider.
type awsInventoryAdapter struct {
	client *aws.InventoryClient
	region string
}

func (a *awsInventoryAdapter) ListInstances(ctx context.Context) ([]InstanceRecord, error) {
	instances, err := a.client.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]InstanceRecord, 0, len(instances))
	for _, inst := range instances {
		records = append(records, InstanceRecord{
			CloudInstanceID: inst.InstanceID,
			CloudProvider:   string(CloudTypeAWS),
			AccountID:       inst.AccountID,
			Region:          inst.Region,
			Zone:            inst.Zone,
			InstanceType:    inst.InstanceType,
			Environment:     inst.Environment,
			Tags:            inst.Tags,
			HourlyCost:      inst.HourlyCost,
		})
	}
	return records, nil
}

func (a *awsInventoryAdapter) CurrentInstanceType(ctx context.Context, cloudInstanceID, region string) (string, error) {
	return a.client.CurrentInstanceType(ctx, cloudInstanceID, region)
}

// gcpInventoryAdapter adapts gcp.InventoryClient to InventoryProvider.
type gcpInventoryAdapter struct {
	client *gcp.InventoryClient
}

func (g *gcpInventoryAdapter) ListInstances(ctx context.Context) ([]InstanceRecord, error) {
	instances, err := g.client.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]InstanceRecord, 0, len(instances))
	for _, inst := range instances {
		records = append(records, InstanceRecord{
			CloudInstanceID: inst.InstanceID,
			CloudProvider:   string(CloudTypeGCP),
			Region:          inst.Region,
			Zone:            inst.Zone,
			InstanceType:    inst.MachineType,
			Environment:     inst.Environment,
			Tags:            inst.Labels,
			HourlyCost:      inst.HourlyCost,
		})
	}
	return records, nil
}

func (g *gcpInventoryAdapter) CurrentInstanceType(ctx context.Context, cloudInstanceID, region string) (string, error) {
	return g.client.CurrentInstanceType(ctx, cloudInstanceID, region)
}
