// Package gcp provides the Compute Engine inventory implementation.
// Uses Google Cloud SDK for real API calls.
package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	compute "cloud.google.com/go/compute/apiv1"
	computepb "cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/iterator"
)

// InstanceRecord is one Compute Engine instance from the aggregated
// listing.
type InstanceRecord struct {
	InstanceID   string
	MachineType  string
	Region       string
	Zone         string
	Environment  string
	Labels       map[string]string
	HourlyCost   *float64
}

// InventoryClient reads Compute Engine inventory for one project.
type InventoryClient struct {
	instancesClient    *compute.InstancesClient
	machineTypesClient *compute.MachineTypesClient
	logger             *slog.Logger
	project            string

	mu        sync.RWMutex
	costCache map[string]float64 // key: machineType:zone
}

// NewInventoryClient creates a new GCP inventory client.
func NewInventoryClient(ctx context.Context, project string, logger *slog.Logger) (*InventoryClient, error) {
	instancesClient, err := compute.NewInstancesRESTClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create instances client: %w", err)
	}
	machineTypesClient, err := compute.NewMachineTypesRESTClient(ctx)
	if err != nil {
		instancesClient.Close()
		return nil, fmt.Errorf("failed to create machine types client: %w", err)
	}

	return &InventoryClient{
		instancesClient:    instancesClient,
		machineTypesClient: machineTypesClient,
		logger:             logger,
		project:            project,
		costCache:          make(map[string]float64),
	}, nil
}

// Close releases resources.
func (c *InventoryClient) Close() error {
	err := c.instancesClient.Close()
	if cerr := c.machineTypesClient.Close(); err == nil {
		err = cerr
	}
	return err
}

// ListInstances returns all running instances in the project across
// zones.
func (c *InventoryClient) ListInstances(ctx context.Context) ([]InstanceRecord, error) {
	req := &computepb.AggregatedListInstancesRequest{
		Project: c.project,
	}

	var records []InstanceRecord
	it := c.instancesClient.AggregatedList(ctx, req)
	for {
		pair, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list instances: %w", err)
		}
		for _, inst := range pair.Value.GetInstances() {
			if inst.GetStatus() != "RUNNING" {
				continue
			}
			records = append(records, c.toRecord(ctx, inst))
		}
	}

	c.logger.Info("GCE inventory listed", "project", c.project, "instances", len(records))
	return records, nil
}

func (c *InventoryClient) toRecord(ctx context.Context, inst *computepb.Instance) InstanceRecord {
	zone := lastPathSegment(inst.GetZone())
	machineType := lastPathSegment(inst.GetMachineType())
	labels := inst.GetLabels()

	record := InstanceRecord{
		InstanceID:  inst.GetName(),
		MachineType: machineType,
		Zone:        zone,
		Region:      regionFromZone(zone),
		Environment: labels["environment"],
		Labels:      labels,
	}
	if record.Environment == "" {
		record.Environment = labels["env"]
	}

	if price, err := c.EstimateHourlyCost(ctx, machineType, zone); err == nil {
		record.HourlyCost = &price
	} else {
		c.logger.Warn("no cost estimate for machine type",
			"machine_type", machineType,
			"zone", zone,
			"error", err,
		)
	}
	return record
}

// CurrentInstanceType returns the live machine type of one instance.
// GCE identifies instances by name within a zone; region narrows the
// aggregated lookup.
func (c *InventoryClient) CurrentInstanceType(ctx context.Context, instanceID, region string) (string, error) {
	req := &computepb.AggregatedListInstancesRequest{
		Project: c.project,
	}

	it := c.instancesClient.AggregatedList(ctx, req)
	for {
		pair, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to list instances: %w", err)
		}
		for _, inst := range pair.Value.GetInstances() {
			if inst.GetName() != instanceID {
				continue
			}
			zone := lastPathSegment(inst.GetZone())
			if region != "" && regionFromZone(zone) != region {
				continue
			}
			return lastPathSegment(inst.GetMachineType()), nil
		}
	}
	return "", fmt.Errorf("instance %s not found in %s", instanceID, region)
}

// EstimateHourlyCost approximates the on-demand price of a machine
// type. GCP has no pricing API equivalent to AWS's, so the estimate is
// derived from the machine shape.
func (c *InventoryClient) EstimateHourlyCost(ctx context.Context, machineType, zone string) (float64, error) {
	cacheKey := machineType + ":" + zone
	c.mu.RLock()
	if price, ok := c.costCache[cacheKey]; ok {
		c.mu.RUnlock()
		return price, nil
	}
	c.mu.RUnlock()

	req := &computepb.GetMachineTypeRequest{
		Project:     c.project,
		Zone:        zone,
		MachineType: machineType,
	}
	mt, err := c.machineTypesClient.Get(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("failed to get machine type: %w", err)
	}

	// GCP pricing is roughly: $0.033 per vCPU/hour + $0.004 per GB/hour
	vcpus := mt.GetGuestCpus()
	memoryGB := float64(mt.GetMemoryMb()) / 1024.0

	pricePerVCPU := 0.033
	pricePerGBMemory := 0.004
	price := float64(vcpus)*pricePerVCPU + memoryGB*pricePerGBMemory

	c.mu.Lock()
	c.costCache[cacheKey] = price
	c.mu.Unlock()

	return price, nil
}

// lastPathSegment trims GCP resource URLs down to the resource name.
func lastPathSegment(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}

// regionFromZone drops the zone suffix: us-central1-a becomes
// us-central1.
func regionFromZone(zone string) string {
	if idx := strings.LastIndex(zone, "-"); idx > 0 {
		return zone[:idx]
	}
	return zone
}
