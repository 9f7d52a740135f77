package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

// modelUnavailableMessage matches what operators see when the artifact
// pair has not been produced yet.
const modelUnavailableMessage = "Model not trained yet. Run the training pipeline first."

// RecommendationHandler handles recommendation endpoints.
type RecommendationHandler struct {
	recommender Recommender
	llm         Explainer
	logger      *slog.Logger
}

// NewRecommendationHandler creates a new recommendation handler.
func NewRecommendationHandler(recommender Recommender, llm Explainer, logger *slog.Logger) *RecommendationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecommendationHandler{recommender: recommender, llm: llm, logger: logger}
}

// List handles GET /recommendations.
func (h *RecommendationHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	opts := engine.ListOptions{
		Filters: engine.Filters{
			Environment:  c.QueryParam("environment"),
			Region:       c.QueryParam("region"),
			InstanceType: c.QueryParam("instance_type"),
		},
		IncludeAttribution: c.QueryParam("include_attribution") == "true",
	}

	if raw := c.QueryParam("min_savings"); raw != "" {
		minSavings, err := strconv.ParseFloat(raw, 64)
		if err != nil || minSavings < 0 {
			return ErrorBadRequest(c, "min_savings must be a non-negative number")
		}
		opts.MinSavings = minSavings
	}

	recs, err := h.recommender.List(ctx, opts)
	if errors.Is(err, engine.ErrModelUnavailable) {
		return ErrorServiceUnavailable(c, modelUnavailableMessage)
	}
	if err != nil {
		h.logger.Error("generating recommendations", "error", err)
		return ErrorInternal(c, "Error generating recommendations: "+err.Error())
	}
	return c.JSON(http.StatusOK, recs)
}

// GetLLMExplanation handles GET /recommendations/:id/llm_explanation.
func (h *RecommendationHandler) GetLLMExplanation(c echo.Context) error {
	ctx := c.Request().Context()

	if h.llm == nil {
		return ErrorServiceUnavailable(c, "LLM explanations are not configured")
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		return ErrorBadRequest(c, "Invalid instance id")
	}

	recs, err := h.recommender.List(ctx, engine.ListOptions{})
	if errors.Is(err, engine.ErrModelUnavailable) {
		return ErrorServiceUnavailable(c, modelUnavailableMessage)
	}
	if err != nil {
		h.logger.Error("generating recommendation for explanation", "instance_id", id, "error", err)
		return ErrorInternal(c, "Error generating recommendation: "+err.Error())
	}

	var rec *engine.Recommendation
	for i := range recs {
		if recs[i].InstanceID == id {
			rec = &recs[i]
			break
		}
	}
	if rec == nil {
		return ErrorNotFound(c, "Instance not found or has no metrics")
	}

	explanation, err := h.llm.ExplainRecommendation(ctx, *rec)
	if errors.Is(err, engine.ErrUpstreamUnavailable) {
		return ErrorServiceUnavailable(c, "LLM explanations are not available: "+err.Error())
	}
	if err != nil {
		h.logger.Error("generating LLM explanation", "instance_id", id, "error", err)
		return ErrorInternal(c, "Error generating LLM explanation: "+err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"instance_id":       id,
		"cloud_instance_id": rec.CloudInstanceID,
		"llm_explanation":   explanation,
	})
}
