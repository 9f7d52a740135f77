package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FakeInventoryScenario describes deterministic inventory responses
// for local tests and e2e harnesses.
type FakeInventoryScenario struct {
	Instances  []FakeInstance      `json:"instances"`
	TypeSeries map[string][]string `json:"type_series,omitempty"`
	RepeatLast *bool               `json:"repeat_last,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// FakeInstance defines one scripted inventory entry.
type FakeInstance struct {
	CloudInstanceID string            `json:"cloud_instance_id"`
	CloudProvider   string            `json:"cloud_provider,omitempty"`
	AccountID       string            `json:"account_id,omitempty"`
	Region          string            `json:"region,omitempty"`
	Zone            string            `json:"zone,omitempty"`
	InstanceType    string            `json:"instance_type"`
	Environment     string            `json:"environment,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
	HourlyCost      *float64          `json:"hourly_cost,omitempty"`
}

// FakeInventoryProvider is a deterministic, script-driven
// InventoryProvider for tests. Type lookups can follow a per-instance
// sequence so verification flows can observe a resize landing.
type FakeInventoryProvider struct {
	mu         sync.Mutex
	scenario   FakeInventoryScenario
	repeatLast bool
	cursors    map[string]int
}

// NewFakeInventoryProvider builds a fake provider from an in-memory
// scenario.
func NewFakeInventoryProvider(scenario FakeInventoryScenario) (*FakeInventoryProvider, error) {
	if err := validateFakeInventoryScenario(scenario); err != nil {
		return nil, err
	}
	repeatLast := true
	if scenario.RepeatLast != nil {
		repeatLast = *scenario.RepeatLast
	}
	return &FakeInventoryProvider{
		scenario:   scenario,
		repeatLast: repeatLast,
		cursors:    make(map[string]int, len(scenario.TypeSeries)),
	}, nil
}

// NewFakeInventoryProviderFromFile loads a fake provider from a JSON
// file.
func NewFakeInventoryProviderFromFile(path string) (*FakeInventoryProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fake inventory scenario file %q: %w", path, err)
	}
	return NewFakeInventoryProviderFromJSONBytes(raw)
}

// NewFakeInventoryProviderFromJSONBytes loads a fake provider from
// JSON bytes.
func NewFakeInventoryProviderFromJSONBytes(raw []byte) (*FakeInventoryProvider, error) {
	var scenario FakeInventoryScenario
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("decode fake inventory scenario json: %w", err)
	}
	return NewFakeInventoryProvider(scenario)
}

// ListInstances returns the scripted inventory.
func (f *FakeInventoryProvider) ListInstances(ctx context.Context) ([]InstanceRecord, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.scenario.Error != "" {
		return nil, fmt.Errorf("fake inventory provider injected error: %s", f.scenario.Error)
	}

	records := make([]InstanceRecord, 0, len(f.scenario.Instances))
	for _, inst := range f.scenario.Instances {
		provider := inst.CloudProvider
		if provider == "" {
			provider = string(CloudTypeAWS)
		}
		records = append(records, InstanceRecord{
			CloudInstanceID: inst.CloudInstanceID,
			CloudProvider:   provider,
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

// CurrentInstanceType returns the scripted live type for an instance.
// When a type series exists for the instance, each call advances the
// cursor; otherwise the instance's listed type is returned.
func (f *FakeInventoryProvider) CurrentInstanceType(ctx context.Context, cloudInstanceID, region string) (string, error) {
	_ = ctx
	_ = region
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.scenario.Error != "" {
		return "", fmt.Errorf("fake inventory provider injected error: %s", f.scenario.Error)
	}

	if sequence, ok := f.scenario.TypeSeries[cloudInstanceID]; ok {
		index := f.cursors[cloudInstanceID]
		if index >= len(sequence) {
			if !f.repeatLast {
				return "", fmt.Errorf("fake type series exhausted for %q", cloudInstanceID)
			}
			index = len(sequence) - 1
		}
		if index < len(sequence)-1 {
			f.cursors[cloudInstanceID] = index + 1
		} else if !f.repeatLast {
			// Mark exhausted so the next call returns an exhaustion error.
			f.cursors[cloudInstanceID] = len(sequence)
		}
		return sequence[index], nil
	}

	for _, inst := range f.scenario.Instances {
		if inst.CloudInstanceID == cloudInstanceID {
			return inst.InstanceType, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInstanceNotFound, cloudInstanceID)
}

func validateFakeInventoryScenario(scenario FakeInventoryScenario) error {
	if len(scenario.Instances) == 0 && len(scenario.TypeSeries) == 0 && scenario.Error == "" {
		return fmt.Errorf("fake inventory scenario must define instances, type_series or error")
	}
	for i, inst := range scenario.Instances {
		if strings.TrimSpace(inst.CloudInstanceID) == "" {
			return fmt.Errorf("fake inventory instance %d missing cloud_instance_id", i)
		}
		if strings.TrimSpace(inst.InstanceType) == "" {
			return fmt.Errorf("fake inventory instance %q missing instance_type", inst.CloudInstanceID)
		}
	}
	for key, sequence := range scenario.TypeSeries {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("fake inventory scenario contains empty type series key")
		}
		if len(sequence) == 0 {
			return fmt.Errorf("fake type series %q must contain at least one step", key)
		}
	}
	return nil
}

// Compile-time interface check
var _ InventoryProvider = (*FakeInventoryProvider)(nil)
