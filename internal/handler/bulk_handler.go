package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/dto"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type bulkProcessor interface {
	Apply(ctx context.Context, req dto.BulkActionRequest, actor string) (*dto.BulkActionResult, error)
}

type bulkJobService interface {
	Submit(ctx context.Context, req dto.BulkActionRequest, actor string) (*dto.BulkJob, error)
	Get(ctx context.Context, id string) (*dto.BulkJob, error)
}

// BulkHandler applies one action to many applications.
type BulkHandler struct {
	processor bulkProcessor
	jobs      bulkJobService
}

// NewBulkHandler builds a new handler.
func NewBulkHandler(processor bulkProcessor, jobs bulkJobService) *BulkHandler {
	return &BulkHandler{processor: processor, jobs: jobs}
}

// Apply godoc
// @Summary Apply a bulk action synchronously
// @Description Every application id appears in either succeeded or failed.
// @Tags Bulk
// @Accept json
// @Produce json
// @Param payload body dto.BulkActionRequest true "Bulk action"
// @Success 200 {object} response.Envelope
// @Router /applications/bulk [post]
func (h *BulkHandler) Apply(c *gin.Context) {
	var req dto.BulkActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}
	result, err := h.processor.Apply(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	}
	response.JSON(c, http.StatusOK, result, nil, meta)
}

// Enqueue godoc
// @Summary Queue a bulk action for background processing
// @Tags Bulk
// @Accept json
// @Produce json
// @Param payload body dto.BulkActionRequest true "Bulk action"
// @Success 202 {object} response.Envelope
// @Router /applications/bulk/jobs [post]
func (h *BulkHandler) Enqueue(c *gin.Context) {
	var req dto.BulkActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}
	job, err := h.jobs.Submit(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Location", c.FullPath()+"/"+job.ID)
	response.Accepted(c, job)
}

// Job godoc
// @Summary Poll a bulk job
// @Tags Bulk
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /applications/bulk/jobs/{id} [get]
func (h *BulkHandler) Job(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}
