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

type applicationService interface {
	Submit(ctx context.Context, req dto.SubmitApplicationRequest, actor string) (*models.Application, error)
	Get(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error)
	UpdateSnapshot(ctx context.Context, id string, req dto.UpdateSnapshotRequest, actor string) (*models.Application, error)
	Review(ctx context.Context, id string, req dto.ReviewApplicationRequest, actor string) (*models.Application, error)
	Override(ctx context.Context, id string, req dto.OverrideRequest, actor *models.JWTClaims) (*models.Application, error)
	Delete(ctx context.Context, id string, confirm bool, actor *models.JWTClaims) error
	AuditTrail(ctx context.Context, id string) ([]models.AuditLog, error)
	ScoreBreakdown(ctx context.Context, id string) (*dto.ScoreBreakdown, error)
}

// ApplicationHandler exposes the application review endpoints.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler builds a new handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Param status query []string false "Status filter (repeat or comma separated)"
// @Param offeringId query string false "Offering ID"
// @Param facultyId query string false "Faculty ID"
// @Param priority query string false "Priority band (high, medium, low)"
// @Param gpaMin query number false "Minimum GPA"
// @Param gpaMax query number false "Maximum GPA"
// @Param incomeMin query number false "Minimum monthly family income"
// @Param incomeMax query number false "Maximum monthly family income"
// @Param includeArchived query bool false "Include archived applications"
// @Param sort query string false "submitted_at, priority_score, gpa or income"
// @Param order query string false "asc or desc"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	query, err := parseApplicationQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

func parseApplicationQuery(c *gin.Context) (dto.ApplicationQuery, error) {
	query := dto.ApplicationQuery{
		OfferingID:      c.Query("offeringId"),
		FacultyID:       c.Query("facultyId"),
		Priority:        models.PriorityBand(c.Query("priority")),
		IncludeArchived: parseQueryBool(c, "includeArchived"),
		SortBy:          c.Query("sort"),
		SortOrder:       c.Query("order"),
		Page:            parseQueryInt(c, "page", 1),
		PageSize:        parseQueryInt(c, "pageSize", 20),
	}
	for _, raw := range queryList(c, "status") {
		status, ok := models.ParseApplicationStatus(raw)
		if !ok {
			return query, appErrors.Clone(appErrors.ErrValidation, "unknown status "+raw)
		}
		query.Status = append(query.Status, status)
	}

	var err error
	if query.GPAMin, err = parseQueryFloat(c, "gpaMin"); err != nil {
		return query, err
	}
	if query.GPAMax, err = parseQueryFloat(c, "gpaMax"); err != nil {
		return query, err
	}
	if query.IncomeMin, err = parseQueryDecimal(c, "incomeMin"); err != nil {
		return query, err
	}
	if query.IncomeMax, err = parseQueryDecimal(c, "incomeMax"); err != nil {
		return query, err
	}
	return query, nil
}

// Submit godoc
// @Summary Submit an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.SubmitApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	app, err := h.service.Submit(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Get godoc
// @Summary Get application detail
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// UpdateSnapshot godoc
// @Summary Correct applicant data and rescore
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.UpdateSnapshotRequest true "Snapshot corrections"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/snapshot [put]
func (h *ApplicationHandler) UpdateSnapshot(c *gin.Context) {
	var req dto.UpdateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid snapshot payload"))
		return
	}
	app, err := h.service.UpdateSnapshot(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Review godoc
// @Summary Record a reviewer decision
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ReviewApplicationRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/review [post]
func (h *ApplicationHandler) Review(c *gin.Context) {
	var req dto.ReviewApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	app, err := h.service.Review(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Override godoc
// @Summary Reopen a decided application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.OverrideRequest true "Override reason"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/override [post]
func (h *ApplicationHandler) Override(c *gin.Context) {
	var req dto.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override payload"))
		return
	}
	app, err := h.service.Override(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Delete godoc
// @Summary Permanently delete an application
// @Tags Applications
// @Param id path string true "Application ID"
// @Param confirm query bool true "Must be true"
// @Success 204
// @Router /applications/{id} [delete]
func (h *ApplicationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), parseQueryBool(c, "confirm"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Audit godoc
// @Summary Application audit trail
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/audit [get]
func (h *ApplicationHandler) Audit(c *gin.Context) {
	logs, err := h.service.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Score godoc
// @Summary Priority score breakdown
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/score [get]
func (h *ApplicationHandler) Score(c *gin.Context) {
	breakdown, err := h.service.ScoreBreakdown(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, breakdown, nil)
}
