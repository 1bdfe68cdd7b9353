package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	"github.com/noah-isme/scholarship-api/internal/repository/memory"
)

type testEngine struct {
	store      repository.Store
	ledger     *AllocationLedger
	machine    *ApplicationStateMachine
	apps       *ApplicationService
	offerings  *OfferingService
	interviews *InterviewScheduler
	bulk       *BulkActionProcessor
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	return newTestEngineWithStore(t, memory.NewStore())
}

func newTestEngineWithStore(t *testing.T, store repository.Store) *testEngine {
	t.Helper()
	scorer := NewPriorityScorer()
	ledger := NewAllocationLedger(store, nil, nil)
	machine := NewApplicationStateMachine(store, ledger, scorer, nil, nil)
	return &testEngine{
		store:      store,
		ledger:     ledger,
		machine:    machine,
		apps:       NewApplicationService(store, machine, ledger, scorer, nil, nil, nil),
		offerings:  NewOfferingService(store, ledger, nil, nil, nil),
		interviews: NewInterviewScheduler(store, machine, nil, nil, nil),
		bulk:       NewBulkActionProcessor(machine, nil, nil, 10, nil),
	}
}

// openOffering drafts and approves an offering with the given quota and an award of 1000 out of quota*1000.
func (e *testEngine) openOffering(t *testing.T, quota int) *models.ScholarshipOffering {
	t.Helper()
	award := decimal.NewFromInt(1000)
	return e.openOfferingWith(t, quota, award.Mul(decimal.NewFromInt(int64(quota))), award)
}

func (e *testEngine) openOfferingWith(t *testing.T, quota int, budget, award decimal.Decimal) *models.ScholarshipOffering {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	offering, err := e.offerings.Create(ctx, dto.CreateOfferingRequest{
		Name:         "Merit Scholarship",
		AwardAmount:  award,
		TotalBudget:  budget,
		TotalQuota:   quota,
		AcademicYear: "2026/2027",
		Semester:     1,
		WindowStart:  now.Add(-time.Hour),
		WindowEnd:    now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	detail, err := e.offerings.Approve(ctx, offering.ID, "officer-1")
	require.NoError(t, err)
	return &detail.ScholarshipOffering
}

func (e *testEngine) submit(t *testing.T, offeringID, applicantID string) *models.Application {
	t.Helper()
	app, err := e.apps.Submit(context.Background(), dto.SubmitApplicationRequest{
		OfferingID:          offeringID,
		ApplicantID:         applicantID,
		FullName:            fmt.Sprintf("Applicant %s", applicantID),
		FacultyID:           "engineering",
		GPA:                 3.45,
		MonthlyFamilyIncome: decimal.NewFromInt(25000),
		ActivityCount:       3,
	}, "student-"+applicantID)
	require.NoError(t, err)
	return app
}

// underReview submits an application and moves it to under_review.
func (e *testEngine) underReview(t *testing.T, offeringID, applicantID string) *models.Application {
	t.Helper()
	app := e.submit(t, offeringID, applicantID)
	app, err := e.machine.Transition(context.Background(), TransitionRequest{ApplicationID: app.ID, Payload: ReviewPayload{}, Actor: "reviewer-1"})
	require.NoError(t, err)
	return app
}

func (e *testEngine) allocation(t *testing.T, offeringID string) *models.Allocation {
	t.Helper()
	alloc, err := e.ledger.Get(context.Background(), offeringID)
	require.NoError(t, err)
	return alloc
}

type failingAuditStore struct {
	*memory.Store
}

func (s failingAuditStore) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		return fn(failingAuditTx{Tx: tx})
	})
}

type failingAuditTx struct {
	repository.Tx
}

func (failingAuditTx) AppendAuditLog(ctx context.Context, log *models.AuditLog) error {
	return fmt.Errorf("audit table unavailable")
}

func admin() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func reviewer() *models.JWTClaims {
	return &models.JWTClaims{UserID: "reviewer-1", Role: models.RoleReviewer}
}
