package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

// Classifier scores feature matrices with the trained artifact. It
// implements engine.Scorer. Scoring aligns the live matrix against the
// training-time schema by column name: columns the training run never
// saw are dropped, columns the live matrix lacks score as the raw value
// zero. That keeps inference stable while the ingested instance-family
// mix drifts between training runs.
type Classifier struct {
	mu          sync.RWMutex
	session     Session
	meta        Metadata
	calibration *Calibration
	logger      *slog.Logger
}

// Config configures the classifier loader.
type Config struct {
	// Dir holds the artifact pair (and the optional calibration
	// equation).
	Dir    string
	Logger *slog.Logger
	// Session bypasses ONNX runtime initialization; tests inject a
	// stand-in here.
	Session Session
}

// Load reads the artifact pair from cfg.Dir. A missing artifact returns
// an error wrapping engine.ErrModelUnavailable; the serving layer keeps
// running and reports the model as untrained.
func Load(cfg Config) (*Classifier, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	meta, err := LoadMetadata(filepath.Join(cfg.Dir, MetaFileName))
	if err != nil {
		return nil, err
	}

	session := cfg.Session
	if session == nil {
		modelPath := filepath.Join(cfg.Dir, ModelFileName)
		if _, err := os.Stat(modelPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("model %s: %w", modelPath, engine.ErrModelUnavailable)
			}
			return nil, fmt.Errorf("stat model %s: %w", modelPath, err)
		}
		session, err = newORTSession(modelPath, len(meta.FeatureSchema))
		if err != nil {
			return nil, err
		}
	}

	calibration, err := LoadCalibration(filepath.Join(cfg.Dir, CalibrationFileName))
	if err != nil {
		logger.Warn("ignoring unusable calibration equation", "error", err)
	}

	logger.Info("classifier loaded",
		"model_version", meta.ModelVersion,
		"trained_at", meta.TrainedAt,
		"features", len(meta.FeatureSchema),
		"calibrated", calibration != nil,
	)

	return &Classifier{
		session:     session,
		meta:        meta,
		calibration: calibration,
		logger:      logger,
	}, nil
}

// ModelVersion reports the loaded artifact's version.
func (c *Classifier) ModelVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta.ModelVersion
}

// Meta returns a copy of the loaded metadata.
func (c *Classifier) Meta() Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta
}

// Score returns clamped P(downsize) per matrix row.
func (c *Classifier) Score(ctx context.Context, m engine.FeatureMatrix) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.session == nil {
		return nil, engine.ErrModelUnavailable
	}

	rows := standardizeRows(c.meta.FeatureSchema, m, nil)
	raw, err := c.session.Score(rows)
	if err != nil {
		return nil, err
	}
	if len(raw) != m.Len() {
		return nil, fmt.Errorf("model returned %d probabilities for %d rows", len(raw), m.Len())
	}

	probs := make([]float64, len(raw))
	for i, p := range raw {
		v := float64(p)
		if c.calibration != nil {
			if calibrated, ok := c.calibration.Apply(v); ok {
				v = calibrated
			}
		}
		probs[i] = clamp01(v)
	}
	return probs, nil
}

// Reload swaps in a freshly loaded artifact, destroying the old
// session. The classifier stays usable on failure.
func (c *Classifier) Reload(dir string) error {
	fresh, err := Load(Config{Dir: dir, Logger: c.logger})
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.session
	c.session = fresh.session
	c.meta = fresh.meta
	c.calibration = fresh.calibration
	c.mu.Unlock()

	if old != nil {
		if err := old.Destroy(); err != nil {
			c.logger.Warn("destroying replaced session", "error", err)
		}
	}
	return nil
}

// Close releases the underlying session.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	return err
}

// standardizeRows aligns m to the schema by column name and applies the
// training-time standardization. onlyRows selects a subset of matrix
// rows; nil takes all of them in order.
func standardizeRows(schema []FeatureStat, m engine.FeatureMatrix, onlyRows []int) [][]float32 {
	colIdx := make([]int, len(schema))
	for j, f := range schema {
		colIdx[j] = m.ColumnIndex(f.Name)
	}

	if onlyRows == nil {
		onlyRows = make([]int, m.Len())
		for i := range onlyRows {
			onlyRows[i] = i
		}
	}

	out := make([][]float32, len(onlyRows))
	for i, r := range onlyRows {
		row := make([]float32, len(schema))
		for j, f := range schema {
			raw := 0.0
			if colIdx[j] >= 0 {
				raw = m.Rows[r][colIdx[j]]
			}
			std := f.Std
			if std <= 0 {
				std = 1
			}
			row[j] = float32((raw - f.Mean) / std)
		}
		out[i] = row
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
