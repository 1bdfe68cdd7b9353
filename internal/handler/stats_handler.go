package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type statsService interface {
	Stats(ctx context.Context, offeringID string) (*models.ApplicationStats, bool, error)
}

// StatsHandler serves the review dashboard counters.
type StatsHandler struct {
	service statsService
}

// NewStatsHandler builds a new handler.
func NewStatsHandler(service statsService) *StatsHandler {
	return &StatsHandler{service: service}
}

// Get godoc
// @Summary Application review statistics
// @Tags Applications
// @Produce json
// @Param offeringId query string false "Restrict counters to one offering"
// @Success 200 {object} response.Envelope
// @Router /applications/stats [get]
func (h *StatsHandler) Get(c *gin.Context) {
	stats, cacheHit, err := h.service.Stats(c.Request.Context(), c.Query("offeringId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}
