package ingest

import (
	"context"
	"testing"

	"github.com/softcane/cloud-cost-advisor/internal/cloudapi"
)

func TestInventorySyncUpsertsDiscoveredInstances(t *testing.T) {
	cost := 0.192
	provider, err := cloudapi.NewFakeInventoryProvider(cloudapi.FakeInventoryScenario{
		Instances: []cloudapi.FakeInstance{
			{
				CloudInstanceID: "i-0aaa",
				CloudProvider:   "aws",
				AccountID:       "123456789012",
				Region:          "us-west-2",
				InstanceType:    "m5.xlarge",
				Environment:     "prod",
				Tags:            map[string]string{"team": "payments"},
				HourlyCost:      &cost,
			},
			{
				CloudInstanceID: "i-0bbb",
				InstanceType:    "m5.large",
			},
		},
	})
	if err != nil {
		t.Fatalf("NewFakeInventoryProvider failed: %v", err)
	}

	registry := &memRegistry{}
	syncer := NewInventorySyncer(provider, registry, nil)

	synced, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if synced != 2 {
		t.Fatalf("expected 2 synced, got %d", synced)
	}

	inst, ok := registry.byCloudID("i-0aaa")
	if !ok {
		t.Fatal("expected i-0aaa registered")
	}
	if inst.Region == nil || *inst.Region != "us-west-2" {
		t.Errorf("unexpected region %v", inst.Region)
	}
	if inst.InstanceType == nil || *inst.InstanceType != "m5.xlarge" {
		t.Errorf("unexpected instance type %v", inst.InstanceType)
	}
	if inst.Environment == nil || *inst.Environment != "prod" {
		t.Errorf("unexpected environment %v", inst.Environment)
	}
	if inst.Tags["team"] != "payments" {
		t.Errorf("tags not carried over: %v", inst.Tags)
	}
	if inst.HourlyCost == nil || inst.HourlyCost.String() != "0.192" {
		t.Errorf("unexpected hourly cost %v", inst.HourlyCost)
	}

	bare, ok := registry.byCloudID("i-0bbb")
	if !ok {
		t.Fatal("expected i-0bbb registered")
	}
	if bare.AccountID != nil || bare.Region != nil || bare.Environment != nil || bare.HourlyCost != nil {
		t.Error("expected empty optional fields to stay nil")
	}
}

func TestInventorySyncResyncIsIdempotent(t *testing.T) {
	provider, err := cloudapi.NewFakeInventoryProvider(cloudapi.FakeInventoryScenario{
		Instances: []cloudapi.FakeInstance{
			{CloudInstanceID: "i-0aaa", InstanceType: "m5.large"},
		},
	})
	if err != nil {
		t.Fatalf("NewFakeInventoryProvider failed: %v", err)
	}

	registry := &memRegistry{}
	syncer := NewInventorySyncer(provider, registry, nil)
	for i := 0; i < 2; i++ {
		if _, err := syncer.Sync(context.Background()); err != nil {
			t.Fatalf("Sync run %d failed: %v", i, err)
		}
	}
	if len(registry.instances) != 1 {
		t.Fatalf("expected 1 instance after resync, got %d", len(registry.instances))
	}
}

func TestInventorySyncProviderError(t *testing.T) {
	provider, err := cloudapi.NewFakeInventoryProvider(cloudapi.FakeInventoryScenario{
		Instances: []cloudapi.FakeInstance{
			{CloudInstanceID: "i-0aaa", InstanceType: "m5.large"},
		},
		Error: "list throttled",
	})
	if err != nil {
		t.Fatalf("NewFakeInventoryProvider failed: %v", err)
	}

	syncer := NewInventorySyncer(provider, &memRegistry{}, nil)
	if _, err := syncer.Sync(context.Background()); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestInventorySyncSkipsFailedUpserts(t *testing.T) {
	provider, err := cloudapi.NewFakeInventoryProvider(cloudapi.FakeInventoryScenario{
		Instances: []cloudapi.FakeInstance{
			{CloudInstanceID: "i-0aaa", InstanceType: "m5.large"},
		},
	})
	if err != nil {
		t.Fatalf("NewFakeInventoryProvider failed: %v", err)
	}

	syncer := NewInventorySyncer(provider, &memRegistry{upsertErr: errStub}, nil)
	synced, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("expected upsert failures to be skipped, got %v", err)
	}
	if synced != 0 {
		t.Fatalf("expected 0 synced, got %d", synced)
	}
}
