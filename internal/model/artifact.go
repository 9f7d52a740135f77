// Package model loads the trained downsize classifier and scores
// feature matrices with it. Training happens offline; this package only
// consumes the exported artifact pair: the ONNX graph plus a JSON
// metadata sidecar carrying the training-time feature schema.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

// Artifact file names inside the model directory.
const (
	ModelFileName       = "downsize_classifier.onnx"
	MetaFileName        = "downsize_classifier_meta.json"
	CalibrationFileName = "downsize_calibration.eq"
)

// Training rejects runs with fewer instances than this; the loader
// enforces the same floor so a hand-edited sidecar cannot smuggle a
// degenerate model into serving.
const minTrainingInstances = 10

// FeatureStat is one column of the training-time feature schema with
// its standardization parameters.
type FeatureStat struct {
	Name string  `json:"name"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Metadata mirrors the JSON sidecar written at training time.
type Metadata struct {
	ModelVersion                string         `json:"model_version"`
	TrainedAt                   time.Time      `json:"trained_at"`
	TrainSize                   int            `json:"train_size"`
	ValSize                     int            `json:"val_size"`
	ValidationAccuracy          float64        `json:"validation_accuracy"`
	ValidationPrecisionDownsize float64        `json:"validation_precision_downsize"`
	ValidationRecallDownsize    float64        `json:"validation_recall_downsize"`
	ValidationF1Downsize        float64        `json:"validation_f1_downsize"`
	TrainingRuntimeSec          float64        `json:"training_runtime_sec"`
	ClassCounts                 map[string]int `json:"class_counts"`
	FeatureSchema               []FeatureStat  `json:"feature_schema"`
}

// identity distinguishes artifacts for caching purposes.
func (m Metadata) identity() string {
	return fmt.Sprintf("%s@%d", m.ModelVersion, m.TrainedAt.UnixNano())
}

// LoadMetadata reads and validates the metadata sidecar. A missing file
// maps to engine.ErrModelUnavailable so callers can distinguish "not
// trained yet" from a corrupt artifact.
func LoadMetadata(path string) (Metadata, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, fmt.Errorf("metadata %s: %w", path, engine.ErrModelUnavailable)
		}
		return Metadata{}, fmt.Errorf("read metadata %s: %w", path, err)
	}

	var meta Metadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	if err := meta.validate(); err != nil {
		return Metadata{}, fmt.Errorf("metadata %s: %w", path, err)
	}
	return meta, nil
}

func (m Metadata) validate() error {
	if m.ModelVersion == "" {
		return fmt.Errorf("missing model_version: %w", engine.ErrModelUnavailable)
	}
	if len(m.FeatureSchema) == 0 {
		return fmt.Errorf("missing feature_schema: %w", engine.ErrModelUnavailable)
	}
	seen := make(map[string]struct{}, len(m.FeatureSchema))
	for _, f := range m.FeatureSchema {
		if f.Name == "" {
			return fmt.Errorf("feature_schema has an unnamed column: %w", engine.ErrModelUnavailable)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("feature_schema repeats column %q: %w", f.Name, engine.ErrModelUnavailable)
		}
		seen[f.Name] = struct{}{}
	}

	if m.TrainSize+m.ValSize < minTrainingInstances {
		return fmt.Errorf("trained on %d instances, need at least %d: %w",
			m.TrainSize+m.ValSize, minTrainingInstances, engine.ErrInsufficientData)
	}
	if len(m.ClassCounts) > 0 {
		nonEmpty := 0
		for _, n := range m.ClassCounts {
			if n > 0 {
				nonEmpty++
			}
		}
		if nonEmpty < 2 {
			return fmt.Errorf("single-class training labels: %w", engine.ErrInsufficientData)
		}
	}
	return nil
}
