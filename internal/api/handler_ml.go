package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// MLHandler exposes the loaded classifier artifact's metadata.
type MLHandler struct {
	model ModelSource
}

// NewMLHandler creates a new ML metadata handler.
func NewMLHandler(model ModelSource) *MLHandler {
	return &MLHandler{model: model}
}

// GetMetadata handles GET /ml/metadata. 404 until a trained artifact
// has been loaded.
func (h *MLHandler) GetMetadata(c echo.Context) error {
	if h.model == nil {
		return ErrorNotFound(c, modelUnavailableMessage)
	}
	return c.JSON(http.StatusOK, h.model.Meta())
}
