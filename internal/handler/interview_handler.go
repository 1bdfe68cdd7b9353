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

type interviewService interface {
	Book(ctx context.Context, req dto.BookInterviewRequest, actor string) (*models.InterviewSlot, error)
	Confirm(ctx context.Context, slotID string) (*models.InterviewSlot, error)
	Complete(ctx context.Context, slotID string, req dto.CompleteInterviewRequest, actor string) (*models.InterviewSlot, error)
	Cancel(ctx context.Context, slotID string) (*models.InterviewSlot, error)
	NoShow(ctx context.Context, slotID string) (*models.InterviewSlot, error)
	Reschedule(ctx context.Context, slotID string, req dto.RescheduleInterviewRequest, actor string) (*models.InterviewSlot, error)
	RecordResult(ctx context.Context, slotID string, req dto.InterviewResultRequest, actor string) (*models.InterviewSlot, error)
	Annotate(ctx context.Context, slotID string, req dto.AnnotateInterviewRequest, actor string) (*models.InterviewSlot, error)
	Get(ctx context.Context, slotID string) (*models.InterviewSlot, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.InterviewSlot, error)
}

// InterviewHandler exposes interview slot booking and lifecycle endpoints.
type InterviewHandler struct {
	service interviewService
}

// NewInterviewHandler builds a new handler.
func NewInterviewHandler(service interviewService) *InterviewHandler {
	return &InterviewHandler{service: service}
}

// Book godoc
// @Summary Book an interview slot
// @Tags Interviews
// @Accept json
// @Produce json
// @Param payload body dto.BookInterviewRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Router /interviews [post]
func (h *InterviewHandler) Book(c *gin.Context) {
	var req dto.BookInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}
	slot, err := h.service.Book(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Get godoc
// @Summary Get an interview slot
// @Tags Interviews
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id} [get]
func (h *InterviewHandler) Get(c *gin.Context) {
	h.respond(c)(h.service.Get(c.Request.Context(), c.Param("id")))
}

// ListForApplication godoc
// @Summary Interview history of an application
// @Tags Interviews
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/interviews [get]
func (h *InterviewHandler) ListForApplication(c *gin.Context) {
	slots, err := h.service.ListByApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Confirm godoc
// @Summary Confirm a scheduled slot
// @Tags Interviews
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/confirm [post]
func (h *InterviewHandler) Confirm(c *gin.Context) {
	h.respond(c)(h.service.Confirm(c.Request.Context(), c.Param("id")))
}

// Complete godoc
// @Summary Complete a confirmed slot, optionally with its result
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.CompleteInterviewRequest false "Optional result"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/complete [post]
func (h *InterviewHandler) Complete(c *gin.Context) {
	var req dto.CompleteInterviewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid completion payload"))
			return
		}
	}
	h.respond(c)(h.service.Complete(c.Request.Context(), c.Param("id"), req, actorID(c)))
}

// Cancel godoc
// @Summary Cancel a slot
// @Tags Interviews
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/cancel [post]
func (h *InterviewHandler) Cancel(c *gin.Context) {
	h.respond(c)(h.service.Cancel(c.Request.Context(), c.Param("id")))
}

// NoShow godoc
// @Summary Mark the applicant as absent
// @Tags Interviews
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/no-show [post]
func (h *InterviewHandler) NoShow(c *gin.Context) {
	h.respond(c)(h.service.NoShow(c.Request.Context(), c.Param("id")))
}

// Reschedule godoc
// @Summary Move a slot to a new time
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.RescheduleInterviewRequest true "New time and panel"
// @Success 201 {object} response.Envelope
// @Router /interviews/{id}/reschedule [post]
func (h *InterviewHandler) Reschedule(c *gin.Context) {
	var req dto.RescheduleInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}
	slot, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Result godoc
// @Summary Record the interview result
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.InterviewResultRequest true "Score and recommendation"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/result [post]
func (h *InterviewHandler) Result(c *gin.Context) {
	var req dto.InterviewResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid result payload"))
		return
	}
	h.respond(c)(h.service.RecordResult(c.Request.Context(), c.Param("id"), req, actorID(c)))
}

// Annotate godoc
// @Summary Append a correction note to a slot
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.AnnotateInterviewRequest true "Note"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/annotations [post]
func (h *InterviewHandler) Annotate(c *gin.Context) {
	var req dto.AnnotateInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid annotation payload"))
		return
	}
	h.respond(c)(h.service.Annotate(c.Request.Context(), c.Param("id"), req, actorID(c)))
}

func (h *InterviewHandler) respond(c *gin.Context) func(*models.InterviewSlot, error) {
	return func(slot *models.InterviewSlot, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, slot, nil)
	}
}
