package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type offeringService interface {
	Create(ctx context.Context, req dto.CreateOfferingRequest) (*models.ScholarshipOffering, error)
	Update(ctx context.Context, id string, req dto.UpdateOfferingRequest) (*dto.OfferingDetail, error)
	Approve(ctx context.Context, id, actor string) (*dto.OfferingDetail, error)
	ChangeStatus(ctx context.Context, id string, req dto.ChangeOfferingStatusRequest) (*models.ScholarshipOffering, error)
	Archive(ctx context.Context, id, actor string) (*dto.OfferingDetail, int64, error)
	Get(ctx context.Context, id string) (*dto.OfferingDetail, error)
	List(ctx context.Context, query dto.OfferingQuery) ([]models.ScholarshipOffering, error)
	Allocation(ctx context.Context, id string) (*models.Allocation, error)
}

// OfferingHandler manages scholarship offerings and their allocation ledgers.
type OfferingHandler struct {
	service offeringService
}

// NewOfferingHandler builds a new handler.
func NewOfferingHandler(service offeringService) *OfferingHandler {
	return &OfferingHandler{service: service}
}

// List godoc
// @Summary List offerings
// @Tags Offerings
// @Produce json
// @Param status query []string false "Status filter"
// @Param academicYear query string false "Academic year"
// @Param semester query int false "Semester"
// @Success 200 {object} response.Envelope
// @Router /offerings [get]
func (h *OfferingHandler) List(c *gin.Context) {
	query := dto.OfferingQuery{
		AcademicYear: c.Query("academicYear"),
		Semester:     parseQueryInt(c, "semester", 0),
	}
	for _, raw := range queryList(c, "status") {
		status := models.OfferingStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status "+raw))
			return
		}
		query.Status = append(query.Status, status)
	}
	items, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Draft an offering
// @Tags Offerings
// @Accept json
// @Produce json
// @Param payload body dto.CreateOfferingRequest true "Offering payload"
// @Success 201 {object} response.Envelope
// @Router /offerings [post]
func (h *OfferingHandler) Create(c *gin.Context) {
	var req dto.CreateOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid offering payload"))
		return
	}
	offering, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, offering)
}

// Get godoc
// @Summary Get offering with its allocation
// @Tags Offerings
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id} [get]
func (h *OfferingHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Edit a draft offering or resize an open one
// @Tags Offerings
// @Accept json
// @Produce json
// @Param id path string true "Offering ID"
// @Param payload body dto.UpdateOfferingRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id} [put]
func (h *OfferingHandler) Update(c *gin.Context) {
	var req dto.UpdateOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid offering payload"))
		return
	}
	detail, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Approve godoc
// @Summary Approve a draft offering and open its ledger
// @Tags Offerings
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/approve [post]
func (h *OfferingHandler) Approve(c *gin.Context) {
	detail, err := h.service.Approve(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ChangeStatus godoc
// @Summary Suspend, reopen or close an offering
// @Tags Offerings
// @Accept json
// @Produce json
// @Param id path string true "Offering ID"
// @Param payload body dto.ChangeOfferingStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/status [post]
func (h *OfferingHandler) ChangeStatus(c *gin.Context) {
	var req dto.ChangeOfferingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	offering, err := h.service.ChangeStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offering, nil)
}

// Archive godoc
// @Summary Archive a closed offering with its applications
// @Tags Offerings
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/archive [post]
func (h *OfferingHandler) Archive(c *gin.Context) {
	detail, archived, err := h.service.Archive(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil, map[string]interface{}{"archivedApplications": archived})
}

// Allocation godoc
// @Summary Allocation ledger of an offering
// @Tags Offerings
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/allocation [get]
func (h *OfferingHandler) Allocation(c *gin.Context) {
	alloc, err := h.service.Allocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alloc, nil)
}
