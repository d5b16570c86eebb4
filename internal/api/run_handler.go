// Package api provides HTTP handlers for the run engine.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/service"
)

// Runs defines the run operations needed by the handler.
type Runs interface {
	SubmitRun(ctx context.Context, event map[string]any) (service.RunHandle, error)
	Poll(ctx context.Context, runID string) (service.PollResult, error)
	PollSession(ctx context.Context, sessionID int64) (service.PollResult, error)
	Cancel(ctx context.Context, runID string) error
}

// RunHandler handles run HTTP requests.
type RunHandler struct {
	svc Runs
}

// NewRunHandler creates a new run handler.
func NewRunHandler(svc Runs) *RunHandler {
	return &RunHandler{svc: svc}
}

// SubmitRun handles POST /api/v1/runs.
func (h *RunHandler) SubmitRun(c *gin.Context) {
	var event map[string]any
	if bindErr := c.ShouldBindJSON(&event); bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
		return
	}

	handle, err := h.svc.SubmitRun(c.Request.Context(), event)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, handle)
}

// GetRun handles GET /api/v1/runs/:id.
func (h *RunHandler) GetRun(c *gin.Context) {
	res, err := h.svc.Poll(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// GetSession handles GET /api/v1/sessions/:id.
func (h *RunHandler) GetSession(c *gin.Context) {
	sessionID, parseErr := strconv.ParseInt(c.Param("id"), 10, 64)
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	res, err := h.svc.PollSession(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// CancelRun handles POST /api/v1/runs/:id/cancel and DELETE /api/v1/runs/:id.
func (h *RunHandler) CancelRun(c *gin.Context) {
	runID := c.Param("id")
	if err := h.svc.Cancel(c.Request.Context(), runID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "cancel_requested"})
}

// respondError maps domain errors to status codes.
func respondError(c *gin.Context, err error) {
	var (
		validation *domain.ValidationError
		illegal    *domain.IllegalStateError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.As(err, &illegal):
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
