package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

// InstanceHandler handles instance registry endpoints.
type InstanceHandler struct {
	registry InstanceRegistry
	metrics  MetricReader
}

// NewInstanceHandler creates a new instance handler.
func NewInstanceHandler(registry InstanceRegistry, metrics MetricReader) *InstanceHandler {
	return &InstanceHandler{registry: registry, metrics: metrics}
}

// List handles GET /instances.
func (h *InstanceHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	filters := engine.Filters{
		Environment:  c.QueryParam("environment"),
		Region:       c.QueryParam("region"),
		InstanceType: c.QueryParam("instance_type"),
	}

	instances, err := h.registry.List(ctx, filters)
	if err != nil {
		return ErrorInternal(c, "Failed to list instances: "+err.Error())
	}
	return c.JSON(http.StatusOK, instances)
}

// Get handles GET /instances/:id.
func (h *InstanceHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c.Param("id"))
	if err != nil {
		return ErrorBadRequest(c, "Invalid instance id")
	}

	inst, err := h.registry.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrorNotFound(c, "Instance not found")
	}
	if err != nil {
		return ErrorInternal(c, "Failed to load instance: "+err.Error())
	}
	return c.JSON(http.StatusOK, inst)
}

// GetMetrics handles GET /instances/:id/metrics.
func (h *InstanceHandler) GetMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c.Param("id"))
	if err != nil {
		return ErrorBadRequest(c, "Invalid instance id")
	}

	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 || days > 30 {
			return ErrorBadRequest(c, "days must be between 1 and 30")
		}
	}

	if _, err := h.registry.GetByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrorNotFound(c, "Instance not found")
		}
		return ErrorInternal(c, "Failed to load instance: "+err.Error())
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	metrics, err := h.metrics.ListForInstance(ctx, id, since)
	if err != nil {
		return ErrorInternal(c, "Failed to list metrics: "+err.Error())
	}
	return c.JSON(http.StatusOK, metrics)
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
