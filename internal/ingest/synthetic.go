package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/softcane/cloud-cost-advisor/internal/metrics"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

// Synthetic seed profile. Even-numbered instances land in dev with low
// CPU baselines so the demo fleet produces both actions.
const (
	DefaultSeedDays      = 7
	DefaultSeedInstances = 100

	seedRegion       = "us-west-2"
	seedInstanceType = "m5.large"
	seedAccountID    = "111111111111"
	seedHourlyCost   = "0.096"

	devBaseCPU  = 10.0
	prodBaseCPU = 35.0
	baseMem     = 20.0
)

// Seeder generates a synthetic fleet with hourly utilization history.
type Seeder struct {
	instances InstanceWriter
	samples   MetricWriter
	logger    *slog.Logger
	now       func() time.Time
	rand      *rand.Rand
}

// SeederOption adjusts seeding behavior.
type SeederOption func(*Seeder)

// WithSeedClock pins the generator's notion of now.
func WithSeedClock(now func() time.Time) SeederOption {
	return func(s *Seeder) { s.now = now }
}

// WithSeedRandSource makes the generated variation reproducible.
func WithSeedRandSource(src rand.Source) SeederOption {
	return func(s *Seeder) { s.rand = rand.New(src) }
}

// NewSeeder creates a synthetic data seeder.
func NewSeeder(instances InstanceWriter, samples MetricWriter, logger *slog.Logger, opts ...SeederOption) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Seeder{
		instances: instances,
		samples:   samples,
		logger:    logger,
		now:       time.Now,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed registers the synthetic fleet and backfills hourly samples over
// the trailing window. Instances are upserted by cloud instance ID, so
// reseeding refreshes rather than duplicates the fleet.
func (s *Seeder) Seed(ctx context.Context, days, instanceCount int) error {
	if days <= 0 {
		days = DefaultSeedDays
	}
	if instanceCount <= 0 {
		instanceCount = DefaultSeedInstances
	}

	cost := decimal.RequireFromString(seedHourlyCost)
	accountID := seedAccountID
	region := seedRegion
	instanceType := seedInstanceType

	seeded := make([]store.Instance, 0, instanceCount)
	for i := 0; i < instanceCount; i++ {
		env := "prod"
		if i%2 == 0 {
			env = "dev"
		}
		inst := store.Instance{
			CloudInstanceID: fmt.Sprintf("i-synth-%d", i),
			CloudProvider:   "aws",
			AccountID:       &accountID,
			Region:          &region,
			InstanceType:    &instanceType,
			Environment:     &env,
			Tags:            map[string]string{"project": "ccopt-demo"},
			HourlyCost:      &cost,
		}
		if err := s.instances.Upsert(ctx, &inst); err != nil {
			return fmt.Errorf("seed instance %s: %w", inst.CloudInstanceID, err)
		}
		seeded = append(seeded, inst)
	}

	now := s.now().UTC()
	start := now.Add(-time.Duration(days) * 24 * time.Hour)

	var batch []store.Metric
	for current := start; !current.After(now); current = current.Add(time.Hour) {
		for _, inst := range seeded {
			batch = append(batch, s.sampleFor(inst, current))
		}
	}

	inserted, err := s.samples.InsertBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("seed metrics: %w", err)
	}
	metrics.IngestedSamples.WithLabelValues("synthetic").Add(float64(inserted))

	s.logger.Info("synthetic fleet seeded",
		"instances", len(seeded),
		"samples", inserted,
		"days", days,
	)
	return nil
}

func (s *Seeder) sampleFor(inst store.Instance, ts time.Time) store.Metric {
	baseCPU := prodBaseCPU
	if inst.Environment != nil && *inst.Environment == "dev" {
		baseCPU = devBaseCPU
	}
	cpu := round2(math.Max(baseCPU+s.uniform(-5, 10), 0))
	mem := round2(math.Max(baseMem+s.uniform(-5, 15), 0))
	netIn := s.randBytes()
	netOut := s.randBytes()

	return store.Metric{
		InstanceID:      inst.ID,
		Timestamp:       ts,
		CPUUtilization:  &cpu,
		MemUtilization:  &mem,
		NetworkInBytes:  &netIn,
		NetworkOutBytes: &netOut,
	}
}

func (s *Seeder) uniform(lo, hi float64) float64 {
	return lo + s.rand.Float64()*(hi-lo)
}

func (s *Seeder) randBytes() int64 {
	return 10_000_000 + s.rand.Int63n(40_000_001)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
