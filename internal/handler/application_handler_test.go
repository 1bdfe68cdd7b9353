package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type applicationServiceMock struct {
	listResp      []models.Application
	listErr       error
	lastQuery     dto.ApplicationQuery
	submitErr     error
	submitActor   string
	deleteErr     error
	deleteConfirm bool
	deleteActor   *models.JWTClaims
	reviewReq     dto.ReviewApplicationRequest
	listCalled    bool
	submitCalled  bool
	reviewCalled  bool
}

func (m *applicationServiceMock) Submit(ctx context.Context, req dto.SubmitApplicationRequest, actor string) (*models.Application, error) {
	m.submitCalled = true
	m.submitActor = actor
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return &models.Application{ID: "app-1", OfferingID: req.OfferingID, Status: models.ApplicationStatusSubmitted}, nil
}

func (m *applicationServiceMock) Get(ctx context.Context, id string) (*models.Application, error) {
	return &models.Application{ID: id}, nil
}

func (m *applicationServiceMock) List(ctx context.Context, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error) {
	m.listCalled = true
	m.lastQuery = query
	return m.listResp, &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: len(m.listResp)}, m.listErr
}

func (m *applicationServiceMock) UpdateSnapshot(ctx context.Context, id string, req dto.UpdateSnapshotRequest, actor string) (*models.Application, error) {
	return &models.Application{ID: id}, nil
}

func (m *applicationServiceMock) Review(ctx context.Context, id string, req dto.ReviewApplicationRequest, actor string) (*models.Application, error) {
	m.reviewCalled = true
	m.reviewReq = req
	return &models.Application{ID: id, Status: req.Status}, nil
}

func (m *applicationServiceMock) Override(ctx context.Context, id string, req dto.OverrideRequest, actor *models.JWTClaims) (*models.Application, error) {
	return &models.Application{ID: id}, nil
}

func (m *applicationServiceMock) Delete(ctx context.Context, id string, confirm bool, actor *models.JWTClaims) error {
	m.deleteConfirm = confirm
	m.deleteActor = actor
	return m.deleteErr
}

func (m *applicationServiceMock) AuditTrail(ctx context.Context, id string) ([]models.AuditLog, error) {
	return nil, nil
}

func (m *applicationServiceMock) ScoreBreakdown(ctx context.Context, id string) (*dto.ScoreBreakdown, error) {
	return &dto.ScoreBreakdown{Composite: 75.64}, nil
}

func newTestContext(method, target, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func officerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "officer-1", Role: models.RoleOfficer}
}

func TestApplicationHandlerListParsesFilters(t *testing.T) {
	mockSvc := &applicationServiceMock{listResp: []models.Application{{ID: "app-1"}}}
	handler := NewApplicationHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/applications?status=submitted,under_review&status=document_pending&priority=high&gpaMin=3.2&incomeMax=3000000&sort=priority_score&order=desc&page=2&pageSize=50&includeArchived=true", "", officerClaims())
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, mockSvc.listCalled)
	q := mockSvc.lastQuery
	assert.Equal(t, []models.ApplicationStatus{
		models.ApplicationStatusSubmitted, models.ApplicationStatusUnderReview, models.ApplicationStatusDocumentPending,
	}, q.Status)
	assert.Equal(t, models.PriorityBandHigh, q.Priority)
	require.NotNil(t, q.GPAMin)
	assert.Equal(t, 3.2, *q.GPAMin)
	assert.Nil(t, q.GPAMax)
	require.NotNil(t, q.IncomeMax)
	assert.Equal(t, "3000000", q.IncomeMax.String())
	assert.Equal(t, "priority_score", q.SortBy)
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 50, q.PageSize)
	assert.True(t, q.IncludeArchived)

	var envelope struct {
		Pagination models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 2, envelope.Pagination.Page)
}

func TestApplicationHandlerListRejectsBadFilters(t *testing.T) {
	for _, target := range []string{
		"/applications?status=pending",
		"/applications?gpaMin=high",
		"/applications?incomeMin=lots",
	} {
		mockSvc := &applicationServiceMock{}
		c, w := newTestContext(http.MethodGet, target, "", officerClaims())
		NewApplicationHandler(mockSvc).List(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.False(t, mockSvc.listCalled, target)
	}
}

func TestApplicationHandlerSubmit(t *testing.T) {
	mockSvc := &applicationServiceMock{}
	handler := NewApplicationHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/applications", `{"offeringId":"off-1"`, officerClaims())
	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.submitCalled)

	c, w = newTestContext(http.MethodPost, "/applications", `{"offeringId":"off-1","applicantId":"s-1","fullName":"Ayu","gpa":3.5,"monthlyFamilyIncome":"2500000","activityCount":2}`, officerClaims())
	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "officer-1", mockSvc.submitActor)

	mockSvc.submitErr = appErrors.Clone(appErrors.ErrConflict, "applicant already applied")
	c, w = newTestContext(http.MethodPost, "/applications", `{"offeringId":"off-1","applicantId":"s-1","fullName":"Ayu"}`, officerClaims())
	handler.Submit(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")
}

func TestApplicationHandlerReviewBindsPayload(t *testing.T) {
	mockSvc := &applicationServiceMock{}
	handler := NewApplicationHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/applications/app-1/review", `{"status":"document_pending","missingDocuments":["transcript"]}`, officerClaims())
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	handler.Review(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.reviewCalled)
	assert.Equal(t, models.ApplicationStatusDocumentPending, mockSvc.reviewReq.Status)
	assert.Equal(t, []string{"transcript"}, mockSvc.reviewReq.MissingDocuments)
}

func TestApplicationHandlerDelete(t *testing.T) {
	mockSvc := &applicationServiceMock{}
	handler := NewApplicationHandler(mockSvc)
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	c, w := newTestContext(http.MethodDelete, "/applications/app-1?confirm=true", "", admin)
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, mockSvc.deleteConfirm)
	assert.Equal(t, admin, mockSvc.deleteActor)

	mockSvc.deleteErr = appErrors.Clone(appErrors.ErrPreconditionFailed, "confirm=true is required")
	c, w = newTestContext(http.MethodDelete, "/applications/app-1", "", admin)
	handler.Delete(c)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.False(t, mockSvc.deleteConfirm)
}
