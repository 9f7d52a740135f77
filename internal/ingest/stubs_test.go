package ingest

import (
	"context"
	"fmt"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

// memRegistry is an in-memory InstanceWriter keyed by cloud instance ID.
type memRegistry struct {
	nextID    int64
	instances []store.Instance
	upsertErr error
	listErr   error
}

func (r *memRegistry) Upsert(ctx context.Context, inst *store.Instance) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	for i := range r.instances {
		if r.instances[i].CloudInstanceID == inst.CloudInstanceID {
			inst.ID = r.instances[i].ID
			r.instances[i] = *inst
			return nil
		}
	}
	r.nextID++
	inst.ID = r.nextID
	r.instances = append(r.instances, *inst)
	return nil
}

func (r *memRegistry) List(ctx context.Context, filters engine.Filters) ([]store.Instance, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]store.Instance, len(r.instances))
	copy(out, r.instances)
	return out, nil
}

func (r *memRegistry) byCloudID(cloudID string) (store.Instance, bool) {
	for _, inst := range r.instances {
		if inst.CloudInstanceID == cloudID {
			return inst, true
		}
	}
	return store.Instance{}, false
}

// memSamples records inserted metric batches.
type memSamples struct {
	batches   [][]store.Metric
	insertErr error
}

func (m *memSamples) InsertBatch(ctx context.Context, samples []store.Metric) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.batches = append(m.batches, samples)
	return int64(len(samples)), nil
}

func (m *memSamples) all() []store.Metric {
	var out []store.Metric
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

var errStub = fmt.Errorf("stub failure")
