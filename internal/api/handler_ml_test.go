package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softcane/cloud-cost-advisor/internal/model"
)

func TestGetMetadataUntrained(t *testing.T) {
	h := NewMLHandler(nil)

	c, w := newTestContext(http.MethodGet, "/ml/metadata", "")
	require.NoError(t, h.GetMetadata(c))

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Model not trained yet. Run the training pipeline first.", resp.Message)
}

func TestGetMetadata(t *testing.T) {
	src := &stubModelSource{meta: model.Metadata{
		ModelVersion:                "v0.1",
		TrainedAt:                   time.Date(2026, 8, 20, 9, 15, 0, 0, time.UTC),
		TrainSize:                   80,
		ValSize:                     20,
		ValidationAccuracy:          0.94,
		ValidationPrecisionDownsize: 0.92,
		ValidationRecallDownsize:    0.9,
		ValidationF1Downsize:        0.91,
		TrainingRuntimeSec:          12.5,
	}}
	h := NewMLHandler(src)

	c, w := newTestContext(http.MethodGet, "/ml/metadata", "")
	require.NoError(t, h.GetMetadata(c))
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "v0.1", got["model_version"])
	assert.Equal(t, float64(80), got["train_size"])
	assert.Equal(t, float64(20), got["val_size"])
	assert.Equal(t, 0.94, got["validation_accuracy"])
	assert.Equal(t, 0.92, got["validation_precision_downsize"])
	assert.Equal(t, 12.5, got["training_runtime_sec"])
}
