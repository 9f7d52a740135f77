package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/softcane/cloud-cost-advisor/internal/metrics"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

// ActionHandler handles right-sizing action endpoints.
type ActionHandler struct {
	registry InstanceRegistry
	actions  ActionRecorder
	verifier TypeVerifier
	logger   *slog.Logger
}

// NewActionHandler creates a new action handler. verifier may be nil
// when no provider credentials are configured; verification then
// records an error outcome instead of calling out.
func NewActionHandler(registry InstanceRegistry, actions ActionRecorder, verifier TypeVerifier, logger *slog.Logger) *ActionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionHandler{
		registry: registry,
		actions:  actions,
		verifier: verifier,
		logger:   logger,
	}
}

// CreateActionRequest is the payload for recording a resize.
type CreateActionRequest struct {
	InstanceID      int64  `json:"instance_id" validate:"required"`
	NewInstanceType string `json:"new_instance_type" validate:"required"`
	CloudProvider   string `json:"cloud_provider"`
	CloudInstanceID string `json:"cloud_instance_id"`
	Region          string `json:"region"`
}

// List handles GET /actions, newest first. An instance_id query param
// narrows to one instance.
func (h *ActionHandler) List(c echo.Context) error {
	var instanceID int64
	if raw := c.QueryParam("instance_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return ErrorBadRequest(c, "instance_id must be an integer")
		}
		instanceID = id
	}

	actions, err := h.actions.List(c.Request().Context(), instanceID)
	if err != nil {
		return ErrorInternal(c, "Failed to list actions: "+err.Error())
	}
	return c.JSON(http.StatusOK, actions)
}

// Create handles POST /actions. The current instance type is captured
// as the action's old type, from the provider when a verifier is
// configured, otherwise from the registry. An action whose old and new
// types already match is recorded as verified immediately.
func (h *ActionHandler) Create(c echo.Context) error {
	var req CreateActionRequest
	if err := c.Bind(&req); err != nil {
		return ErrorBadRequest(c, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	inst, err := h.registry.GetByID(ctx, req.InstanceID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrorNotFound(c, "Instance not found")
	}
	if err != nil {
		return ErrorInternal(c, "Failed to load instance: "+err.Error())
	}

	provider := req.CloudProvider
	if provider == "" {
		provider = inst.CloudProvider
	}
	if provider == "" {
		provider = "aws"
	}
	cloudInstanceID := req.CloudInstanceID
	if cloudInstanceID == "" {
		cloudInstanceID = inst.CloudInstanceID
	}
	if cloudInstanceID == "" {
		return ErrorBadRequest(c, "cloud_instance_id is required when the instance has none on record")
	}
	region := req.Region
	if region == "" && inst.Region != nil {
		region = *inst.Region
	}

	oldType := h.lookupOldType(ctx, inst, provider, cloudInstanceID, region)

	action := &store.RightSizingAction{
		InstanceID:      req.InstanceID,
		CloudProvider:   provider,
		CloudInstanceID: cloudInstanceID,
		Status:          store.ActionStatusPending,
	}
	if region != "" {
		action.Region = &region
	}
	if oldType != "" {
		action.OldInstanceType = &oldType
	}
	newType := req.NewInstanceType
	action.NewInstanceType = &newType

	if oldType != "" && oldType == newType {
		now := time.Now().UTC()
		action.Status = store.ActionStatusVerified
		action.VerifiedAt = &now
	}

	if err := h.actions.Create(ctx, action); err != nil {
		return ErrorInternal(c, "Failed to record action: "+err.Error())
	}
	return c.JSON(http.StatusCreated, action)
}

// lookupOldType reads the live instance type from the provider,
// falling back to the registry record. Provider failures are tolerated
// here; verification surfaces them later.
func (h *ActionHandler) lookupOldType(ctx context.Context, inst *store.Instance, provider, cloudInstanceID, region string) string {
	if h.verifier != nil && provider == "aws" && region != "" {
		liveType, err := h.verifier.CurrentInstanceType(ctx, cloudInstanceID, region)
		if err == nil && liveType != "" {
			if inst.InstanceType == nil || *inst.InstanceType != liveType {
				if uerr := h.registry.UpdateInstanceType(ctx, inst.ID, liveType); uerr != nil {
					h.logger.Warn("failed to sync instance type", "instance_id", inst.ID, "error", uerr)
				}
			}
			return liveType
		}
		if err != nil {
			h.logger.Warn("provider lookup failed, using stored instance type",
				"cloud_instance_id", cloudInstanceID, "error", err)
		}
	}
	if inst.InstanceType != nil {
		return *inst.InstanceType
	}
	return ""
}

// Verify handles POST /actions/:id/verify. It compares the action's
// target type against what the provider reports now and records the
// outcome: verified on match, mismatch when a different type is live,
// error when the provider cannot be queried.
func (h *ActionHandler) Verify(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return ErrorBadRequest(c, "Invalid action ID")
	}

	ctx := c.Request().Context()
	action, err := h.actions.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrorNotFound(c, "Action not found")
	}
	if err != nil {
		return ErrorInternal(c, "Failed to load action: "+err.Error())
	}

	if action.CloudProvider != "aws" {
		return ErrorBadRequest(c, "Only AWS verification is supported")
	}
	if action.Region == nil || *action.Region == "" {
		return ErrorBadRequest(c, "Action has no region to verify against")
	}

	now := time.Now().UTC()
	status := store.ActionStatusError
	var errMsg *string
	var verifiedAt *time.Time

	switch {
	case h.verifier == nil:
		msg := "No cloud provider credentials configured"
		errMsg = &msg
	default:
		liveType, lerr := h.verifier.CurrentInstanceType(ctx, action.CloudInstanceID, *action.Region)
		switch {
		case lerr != nil:
			msg := lerr.Error()
			errMsg = &msg
		case action.NewInstanceType != nil && liveType == *action.NewInstanceType:
			status = store.ActionStatusVerified
			verifiedAt = &now
		default:
			status = store.ActionStatusMismatch
			expected := ""
			if action.NewInstanceType != nil {
				expected = *action.NewInstanceType
			}
			msg := fmt.Sprintf("Expected %s, found %s", expected, liveType)
			errMsg = &msg
		}
		if lerr == nil && liveType != "" {
			h.syncInstanceType(ctx, action.InstanceID, liveType)
		}
	}

	if err := h.actions.SetOutcome(ctx, id, status, errMsg, verifiedAt); err != nil {
		return ErrorInternal(c, "Failed to record verification: "+err.Error())
	}
	metrics.IncVerifyResult(status)

	action.Status = status
	action.ErrorMessage = errMsg
	action.VerifiedAt = verifiedAt
	return c.JSON(http.StatusOK, action)
}

func (h *ActionHandler) syncInstanceType(ctx context.Context, instanceID int64, liveType string) {
	inst, err := h.registry.GetByID(ctx, instanceID)
	if err != nil {
		return
	}
	if inst.InstanceType != nil && *inst.InstanceType == liveType {
		return
	}
	if err := h.registry.UpdateInstanceType(ctx, instanceID, liveType); err != nil {
		h.logger.Warn("failed to sync instance type", "instance_id", instanceID, "error", err)
	}
}
