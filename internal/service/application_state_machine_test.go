package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository/memory"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

func TestCanTransitionEdgeTable(t *testing.T) {
	assert.True(t, CanTransition(models.ApplicationStatusDraft, models.ApplicationStatusSubmitted))
	assert.True(t, CanTransition(models.ApplicationStatusSubmitted, models.ApplicationStatusUnderReview))
	assert.True(t, CanTransition(models.ApplicationStatusUnderReview, models.ApplicationStatusDocumentPending))
	assert.True(t, CanTransition(models.ApplicationStatusInterviewScheduled, models.ApplicationStatusUnderReview))

	assert.False(t, CanTransition(models.ApplicationStatusApproved, models.ApplicationStatusSubmitted))
	assert.False(t, CanTransition(models.ApplicationStatusRejected, models.ApplicationStatusUnderReview))
	assert.False(t, CanTransition(models.ApplicationStatusSubmitted, models.ApplicationStatusApproved))
	assert.False(t, CanTransition(models.ApplicationStatusDocumentPending, models.ApplicationStatusApproved))
}

func TestTransitionSubmittedToUnderReview(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	app := engine.submit(t, offering.ID, "s-1")

	updated, err := engine.machine.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Payload:       ReviewPayload{},
		Actor:         "reviewer-1",
		Notes:         "picking this up",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusUnderReview, updated.Status)
	assert.Equal(t, "picking this up", updated.ReviewerNotes)

	logs, err := engine.store.ListAuditLogs(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditActionSubmit, logs[0].Action)
	assert.Equal(t, models.AuditActionTransition, logs[1].Action)
	require.NotNil(t, logs[1].FromStatus)
	assert.Equal(t, models.ApplicationStatusSubmitted, *logs[1].FromStatus)
	assert.Equal(t, models.ApplicationStatusUnderReview, logs[1].ToStatus)
	assert.Equal(t, "reviewer-1", logs[1].Actor)
}

func TestTransitionFromApprovedToSubmittedIsInvalid(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	app := engine.underReview(t, offering.ID, "s-1")
	ctx := context.Background()

	_, err := engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID, Payload: ApprovePayload{}, Actor: "officer-1"})
	require.NoError(t, err)

	_, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID, Payload: SubmitPayload{}, Actor: "officer-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition.Code))

	stored, err := engine.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusApproved, stored.Status)
}

func TestTransitionPayloadValidation(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	app := engine.underReview(t, offering.ID, "s-1")
	ctx := context.Background()

	_, err := engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID, Payload: RejectPayload{Reason: "  "}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID, Payload: DocumentRequestPayload{MissingDocuments: []string{" ", ""}}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID, Payload: InterviewPayload{}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: "missing", Payload: ReviewPayload{}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	stored, err := engine.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusUnderReview, stored.Status)
}

func TestTransitionRejectStoresReason(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	app := engine.underReview(t, offering.ID, "s-1")

	updated, err := engine.machine.Transition(context.Background(), TransitionRequest{ApplicationID: app.ID, Payload: RejectPayload{Reason: " income above threshold "}})
	require.NoError(t, err)
	require.NotNil(t, updated.RejectionReason)
	assert.Equal(t, "income above threshold", *updated.RejectionReason)
	assert.Equal(t, 1, engine.allocation(t, offering.ID).RemainingQuota())
}

func TestTransitionDocumentRoundTrip(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	app := engine.underReview(t, offering.ID, "s-1")
	ctx := context.Background()

	updated, err := engine.machine.Transition(ctx, TransitionRequest{
		ApplicationID: app.ID,
		Payload:       DocumentRequestPayload{MissingDocuments: []string{"transcript", " transcript", "income statement"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"transcript", "income statement"}, []string(updated.MissingDocuments))

	updated, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID, Payload: ReviewPayload{}})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusUnderReview, updated.Status)
	assert.Empty(t, updated.MissingDocuments)
}

func TestTransitionInterviewDateFromPayloadOrSlot(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 2)
	ctx := context.Background()

	explicit := time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC)
	first := engine.underReview(t, offering.ID, "s-1")
	updated, err := engine.machine.Transition(ctx, TransitionRequest{ApplicationID: first.ID, Payload: InterviewPayload{InterviewDate: &explicit}})
	require.NoError(t, err)
	require.NotNil(t, updated.InterviewDate)
	assert.True(t, explicit.Equal(*updated.InterviewDate))

	updated, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: first.ID, Payload: ReviewPayload{}})
	require.NoError(t, err)
	assert.Nil(t, updated.InterviewDate, "returning to review clears the interview date")

	second := engine.underReview(t, offering.ID, "s-2")
	start := time.Date(2026, 11, 3, 13, 30, 0, 0, time.UTC)
	_, err = engine.interviews.Book(ctx, dto.BookInterviewRequest{
		ApplicationID:   second.ID,
		InterviewerIDs:  []string{"iv-1"},
		StartsAt:        start,
		DurationMinutes: 30,
		Location:        "Room 101",
	}, "officer-1")
	require.NoError(t, err)

	updated, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: second.ID, Payload: InterviewPayload{}})
	require.NoError(t, err)
	require.NotNil(t, updated.InterviewDate)
	assert.True(t, start.Equal(*updated.InterviewDate))
}

func TestApproveDrawsFromLedger(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 2)
	app := engine.underReview(t, offering.ID, "s-1")

	updated, err := engine.machine.Transition(context.Background(), TransitionRequest{ApplicationID: app.ID, Payload: ApprovePayload{}})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusApproved, updated.Status)

	alloc := engine.allocation(t, offering.ID)
	assert.Equal(t, 1, alloc.AllocatedQuota)
	assert.True(t, alloc.AllocatedAmount.Equal(offering.AwardAmount))
}

func TestApproveExhaustedLeavesApplicationUntouched(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	first := engine.underReview(t, offering.ID, "s-1")
	second := engine.underReview(t, offering.ID, "s-2")
	ctx := context.Background()

	_, err := engine.machine.Transition(ctx, TransitionRequest{ApplicationID: first.ID, Payload: ApprovePayload{}})
	require.NoError(t, err)

	_, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: second.ID, Payload: ApprovePayload{}})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrAllocationExhausted.Code))

	stored, err := engine.store.GetApplication(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusUnderReview, stored.Status)

	logs, err := engine.store.ListAuditLogs(ctx, second.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestApproveRequiresOpenOffering(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	app := engine.underReview(t, offering.ID, "s-1")
	ctx := context.Background()

	_, err := engine.offerings.ChangeStatus(ctx, offering.ID, dto.ChangeOfferingStatusRequest{Status: models.OfferingStatusSuspended})
	require.NoError(t, err)

	_, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID, Payload: ApprovePayload{}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.Equal(t, 0, engine.allocation(t, offering.ID).AllocatedQuota)
}

func TestConcurrentApprovalsAgainstLastUnit(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	apps := []*models.Application{
		engine.underReview(t, offering.ID, "s-1"),
		engine.underReview(t, offering.ID, "s-2"),
	}

	errs := make([]error, len(apps))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, app := range apps {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			_, errs[i] = engine.machine.Transition(context.Background(), TransitionRequest{ApplicationID: id, Payload: ApprovePayload{}})
		}(i, app.ID)
	}
	close(start)
	wg.Wait()

	var succeeded, exhausted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case appErrors.HasCode(err, appErrors.ErrAllocationExhausted.Code):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, exhausted)

	alloc := engine.allocation(t, offering.ID)
	assert.Equal(t, 0, alloc.RemainingQuota())
	assert.Equal(t, 1, alloc.AllocatedQuota)
}

func TestAuditFailureAbortsTransition(t *testing.T) {
	base := memory.NewStore()
	seed := newTestEngineWithStore(t, base)
	offering := seed.openOffering(t, 1)
	app := seed.underReview(t, offering.ID, "s-1")

	engine := newTestEngineWithStore(t, failingAuditStore{Store: base})
	_, err := engine.machine.Transition(context.Background(), TransitionRequest{ApplicationID: app.ID, Payload: ApprovePayload{}})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrIntegrityFault.Code))

	stored, err := base.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusUnderReview, stored.Status)
	assert.Equal(t, 0, seed.allocation(t, offering.ID).AllocatedQuota)
}

func TestReopenReleasesApprovedAward(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	app := engine.underReview(t, offering.ID, "s-1")
	ctx := context.Background()

	_, err := engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID, Payload: ApprovePayload{}})
	require.NoError(t, err)
	require.Equal(t, 0, engine.allocation(t, offering.ID).RemainingQuota())

	_, err = engine.machine.Reopen(ctx, app.ID, "admin-1", "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	reopened, err := engine.machine.Reopen(ctx, app.ID, "admin-1", "appeal upheld")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusUnderReview, reopened.Status)
	assert.Equal(t, 1, engine.allocation(t, offering.ID).RemainingQuota())

	logs, err := engine.store.ListAuditLogs(ctx, app.ID)
	require.NoError(t, err)
	last := logs[len(logs)-1]
	assert.Equal(t, models.AuditActionOverride, last.Action)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(last.Payload, &payload))
	assert.Equal(t, "appeal upheld", payload["reason"])

	_, err = engine.machine.Reopen(ctx, app.ID, "admin-1", "again")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition.Code))
}

func TestPayloadFromReview(t *testing.T) {
	payload, err := PayloadFromReview(dto.ReviewApplicationRequest{Status: models.ApplicationStatusRejected, RejectionReason: "late"})
	require.NoError(t, err)
	assert.Equal(t, RejectPayload{Reason: "late"}, payload)

	_, err = PayloadFromReview(dto.ReviewApplicationRequest{Status: "archived"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}
