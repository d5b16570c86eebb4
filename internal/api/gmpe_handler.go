package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/gmpe"
)

// GMPEResponse describes one intensity prediction equation.
type GMPEResponse struct {
	ID              int         `json:"id"`
	Name            string      `json:"name"`
	Reference       string      `json:"reference,omitempty"`
	SourceType      string      `json:"source_type"`
	DistanceBounds  gmpe.Bounds `json:"distance_bounds"`
	MagnitudeBounds gmpe.Bounds `json:"magnitude_bounds"`
}

// GMPEHandler lists the available models.
type GMPEHandler struct {
	models *gmpe.Registry
}

// NewGMPEHandler creates a new model handler.
func NewGMPEHandler(models *gmpe.Registry) *GMPEHandler {
	return &GMPEHandler{models: models}
}

// ListGMPEs handles GET /api/v1/gmpes.
func (h *GMPEHandler) ListGMPEs(c *gin.Context) {
	list := h.models.List()
	out := make([]GMPEResponse, 0, len(list))
	for _, m := range list {
		out = append(out, GMPEResponse{
			ID:              m.ID(),
			Name:            m.Name(),
			Reference:       m.Reference(),
			SourceType:      m.SourceType().String(),
			DistanceBounds:  m.DistanceBounds(),
			MagnitudeBounds: m.MagnitudeBounds(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"gmpes": out, "count": len(out)})
}
