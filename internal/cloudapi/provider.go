// Package cloudapi provides abstractions for cloud provider inventory
// reads. Providers are read-only: the advisor observes instances and
// verifies types, it never mutates cloud resources.
package cloudapi

import (
	"context"
)

// InstanceRecord is a unified representation of a compute instance
// across clouds.
type InstanceRecord struct {
	CloudInstanceID string
	CloudProvider   string
	AccountID       string
	Region          string
	Zone            string
	InstanceType    string
	Environment     string
	Tags            map[string]string
	HourlyCost      *float64
}

// InventoryProvider defines the read-only interface for cloud
// inventory operations.
type InventoryProvider interface {
	// ListInstances returns the running instances visible to the
	// configured credentials.
	ListInstances(ctx context.Context) ([]InstanceRecord, error)

	// CurrentInstanceType returns the instance type currently live for
	// the given cloud instance ID.
	CurrentInstanceType(ctx context.Context, cloudInstanceID, region string) (string, error)
}
