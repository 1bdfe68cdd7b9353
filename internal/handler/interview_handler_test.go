package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

func ginParam(key, value string) gin.Param {
	return gin.Param{Key: key, Value: value}
}

type interviewMock struct {
	bookReq     dto.BookInterviewRequest
	bookErr     error
	completeReq dto.CompleteInterviewRequest
	cancelled   string
	resultErr   error
	calls       []string
}

func (m *interviewMock) slot(id string, status models.SlotStatus) *models.InterviewSlot {
	return &models.InterviewSlot{ID: id, Status: status}
}

func (m *interviewMock) Book(ctx context.Context, req dto.BookInterviewRequest, actor string) (*models.InterviewSlot, error) {
	m.bookReq = req
	if m.bookErr != nil {
		return nil, m.bookErr
	}
	return m.slot("slot-1", models.SlotStatusScheduled), nil
}

func (m *interviewMock) Confirm(ctx context.Context, slotID string) (*models.InterviewSlot, error) {
	m.calls = append(m.calls, "confirm")
	return m.slot(slotID, models.SlotStatusConfirmed), nil
}

func (m *interviewMock) Complete(ctx context.Context, slotID string, req dto.CompleteInterviewRequest, actor string) (*models.InterviewSlot, error) {
	m.calls = append(m.calls, "complete")
	m.completeReq = req
	return m.slot(slotID, models.SlotStatusCompleted), nil
}

func (m *interviewMock) Cancel(ctx context.Context, slotID string) (*models.InterviewSlot, error) {
	m.cancelled = slotID
	return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "slot already completed")
}

func (m *interviewMock) NoShow(ctx context.Context, slotID string) (*models.InterviewSlot, error) {
	return m.slot(slotID, models.SlotStatusNoShow), nil
}

func (m *interviewMock) Reschedule(ctx context.Context, slotID string, req dto.RescheduleInterviewRequest, actor string) (*models.InterviewSlot, error) {
	return m.slot("slot-2", models.SlotStatusScheduled), nil
}

func (m *interviewMock) RecordResult(ctx context.Context, slotID string, req dto.InterviewResultRequest, actor string) (*models.InterviewSlot, error) {
	return nil, m.resultErr
}

func (m *interviewMock) Annotate(ctx context.Context, slotID string, req dto.AnnotateInterviewRequest, actor string) (*models.InterviewSlot, error) {
	return m.slot(slotID, models.SlotStatusCompleted), nil
}

func (m *interviewMock) Get(ctx context.Context, slotID string) (*models.InterviewSlot, error) {
	return m.slot(slotID, models.SlotStatusScheduled), nil
}

func (m *interviewMock) ListByApplication(ctx context.Context, applicationID string) ([]models.InterviewSlot, error) {
	return []models.InterviewSlot{*m.slot("slot-1", models.SlotStatusScheduled)}, nil
}

func TestInterviewHandlerBook(t *testing.T) {
	mockSvc := &interviewMock{}
	handler := NewInterviewHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/interviews", `{"applicationId":"app-1","interviewerIds":["iv-1","iv-2"],"primaryInterviewerId":"iv-2","startsAt":"2026-11-10T09:00:00Z","durationMinutes":45,"location":"Room 3"}`, officerClaims())
	handler.Book(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"iv-1", "iv-2"}, mockSvc.bookReq.InterviewerIDs)
	assert.Equal(t, 45, mockSvc.bookReq.DurationMinutes)

	mockSvc.bookErr = appErrors.Clone(appErrors.ErrSlotConflict, "interviewer iv-2 is already booked")
	c, w = newTestContext(http.MethodPost, "/interviews", `{"applicationId":"app-1","interviewerIds":["iv-2"],"startsAt":"2026-11-10T09:00:00Z","durationMinutes":45,"location":"Room 3"}`, officerClaims())
	handler.Book(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "SLOT_CONFLICT")
}

func TestInterviewHandlerLifecycle(t *testing.T) {
	mockSvc := &interviewMock{}
	handler := NewInterviewHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/interviews/slot-1/confirm", "", officerClaims())
	c.Params = gin.Params{ginParam("id", "slot-1")}
	handler.Confirm(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newTestContext(http.MethodPost, "/interviews/slot-1/complete", "", officerClaims())
	c.Params = gin.Params{ginParam("id", "slot-1")}
	handler.Complete(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, mockSvc.completeReq.Result)

	c, w = newTestContext(http.MethodPost, "/interviews/slot-1/complete", `{"result":{"score":90,"recommendation":"recommend"}}`, officerClaims())
	c.Params = gin.Params{ginParam("id", "slot-1")}
	handler.Complete(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.completeReq.Result)
	assert.Equal(t, 90, mockSvc.completeReq.Result.Score)
	assert.Equal(t, []string{"confirm", "complete", "complete"}, mockSvc.calls)

	c, w = newTestContext(http.MethodPost, "/interviews/slot-1/cancel", "", officerClaims())
	c.Params = gin.Params{ginParam("id", "slot-1")}
	handler.Cancel(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "slot-1", mockSvc.cancelled)

	c, w = newTestContext(http.MethodPost, "/interviews/slot-1/reschedule", `{"startsAt":"2026-11-11T09:00:00Z"}`, officerClaims())
	c.Params = gin.Params{ginParam("id", "slot-1")}
	handler.Reschedule(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "slot-2")
}

func TestInterviewHandlerResultConflict(t *testing.T) {
	mockSvc := &interviewMock{resultErr: appErrors.Clone(appErrors.ErrConflict, "result already recorded")}
	handler := NewInterviewHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/interviews/slot-1/result", `{"score":70,"recommendation":"neutral"}`, officerClaims())
	c.Params = gin.Params{ginParam("id", "slot-1")}
	handler.Result(c)
	assert.Equal(t, http.StatusConflict, w.Code)

	c, w = newTestContext(http.MethodPost, "/interviews/slot-1/result", `{"score":"seventy"}`, officerClaims())
	handler.Result(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
