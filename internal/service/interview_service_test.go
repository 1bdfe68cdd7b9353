package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

var interviewDay = time.Date(2026, 11, 10, 9, 0, 0, 0, time.UTC)

func bookRequest(applicationID string, start time.Time, minutes int, interviewers ...string) dto.BookInterviewRequest {
	return dto.BookInterviewRequest{
		ApplicationID:   applicationID,
		InterviewerIDs:  interviewers,
		StartsAt:        start,
		DurationMinutes: minutes,
		Location:        "Dean's office",
	}
}

func TestBookRejectsOverlappingInterviewer(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 3)
	ctx := context.Background()
	a := engine.underReview(t, offering.ID, "s-1")
	b := engine.underReview(t, offering.ID, "s-2")
	c := engine.underReview(t, offering.ID, "s-3")

	slot, err := engine.interviews.Book(ctx, bookRequest(a.ID, interviewDay, 60, "iv-1", "iv-2"), "officer-1")
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusScheduled, slot.Status)
	assert.Equal(t, "iv-1", slot.PrimaryInterviewer())

	_, err = engine.interviews.Book(ctx, bookRequest(b.ID, interviewDay.Add(30*time.Minute), 60, "iv-3", "iv-2"), "officer-1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotConflict.Code))

	adjacent, err := engine.interviews.Book(ctx, bookRequest(b.ID, interviewDay.Add(time.Hour), 60, "iv-1"), "officer-1")
	require.NoError(t, err, "half-open windows that only touch do not overlap")
	assert.Equal(t, b.ID, adjacent.ApplicationID)

	_, err = engine.interviews.Book(ctx, bookRequest(c.ID, interviewDay, 60, "iv-9"), "officer-1")
	require.NoError(t, err, "other interviewers stay bookable")
}

func TestBookRequiresOneActiveSlotPerApplication(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	ctx := context.Background()
	app := engine.underReview(t, offering.ID, "s-1")

	slot, err := engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay, 30, "iv-1"), "officer-1")
	require.NoError(t, err)

	_, err = engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay.Add(4*time.Hour), 30, "iv-2"), "officer-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotConflict.Code))

	_, err = engine.interviews.Cancel(ctx, slot.ID)
	require.NoError(t, err)

	_, err = engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay, 30, "iv-1"), "officer-1")
	require.NoError(t, err, "a cancelled slot frees the application and interviewer")
}

func TestBookValidatesInput(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	ctx := context.Background()
	app := engine.underReview(t, offering.ID, "s-1")

	_, err := engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay, 0, "iv-1"), "officer-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay, 481, "iv-1"), "officer-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay, 30), "officer-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	req := bookRequest(app.ID, interviewDay, 30, "iv-1", "iv-2")
	req.PrimaryInterviewer = "iv-7"
	_, err = engine.interviews.Book(ctx, req, "officer-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	req.PrimaryInterviewer = "iv-2"
	slot, err := engine.interviews.Book(ctx, req, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, "iv-2", slot.PrimaryInterviewer())
}

func TestBookRequiresBookableApplication(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	ctx := context.Background()
	app := engine.underReview(t, offering.ID, "s-1")

	slot, err := engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay, 30, "iv-1"), "officer-1")
	require.NoError(t, err)
	_, err = engine.apps.Review(ctx, app.ID, dto.ReviewApplicationRequest{Status: models.ApplicationStatusRejected, RejectionReason: "ineligible"}, "reviewer-1")
	require.NoError(t, err)

	_, err = engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay.Add(2*time.Hour), 30, "iv-2"), "officer-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition.Code))
	assert.False(t, appErrors.HasCode(err, appErrors.ErrSlotConflict.Code))

	_, err = engine.interviews.Reschedule(ctx, slot.ID, dto.RescheduleInterviewRequest{StartsAt: interviewDay.Add(3 * time.Hour)}, "officer-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition.Code))
}

func TestSlotLifecycleAndImmutableResult(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	ctx := context.Background()
	app := engine.underReview(t, offering.ID, "s-1")

	slot, err := engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay, 30, "iv-1"), "officer-1")
	require.NoError(t, err)

	_, err = engine.interviews.Complete(ctx, slot.ID, dto.CompleteInterviewRequest{}, "iv-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition.Code), "completion requires confirmation first")

	_, err = engine.interviews.Confirm(ctx, slot.ID)
	require.NoError(t, err)

	completed, err := engine.interviews.Complete(ctx, slot.ID, dto.CompleteInterviewRequest{}, "iv-1")
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusCompleted, completed.Status)
	assert.Nil(t, completed.Result)

	_, err = engine.interviews.RecordResult(ctx, slot.ID, dto.InterviewResultRequest{Score: 88, Recommendation: "maybe"}, "iv-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	scored, err := engine.interviews.RecordResult(ctx, slot.ID, dto.InterviewResultRequest{Score: 88, Recommendation: models.RecommendationRecommend}, "iv-1")
	require.NoError(t, err)
	require.NotNil(t, scored.Result)
	assert.Equal(t, 88, scored.Result.Score)
	assert.Equal(t, "iv-1", scored.Result.SubmittedBy)

	_, err = engine.interviews.RecordResult(ctx, slot.ID, dto.InterviewResultRequest{Score: 10, Recommendation: models.RecommendationNotRecommend}, "iv-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	annotated, err := engine.interviews.Annotate(ctx, slot.ID, dto.AnnotateInterviewRequest{Note: "score should read 86"}, "admin-1")
	require.NoError(t, err)
	require.Len(t, annotated.Annotations, 1)

	stored, err := engine.interviews.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 88, stored.Result.Score)
	require.Len(t, stored.Annotations, 1)
	assert.Equal(t, "score should read 86", stored.Annotations[0].Note)

	_, err = engine.interviews.Cancel(ctx, slot.ID)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition.Code))
}

func TestCompleteWithResult(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	ctx := context.Background()
	app := engine.underReview(t, offering.ID, "s-1")

	slot, err := engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay, 30, "iv-1"), "officer-1")
	require.NoError(t, err)
	_, err = engine.interviews.Confirm(ctx, slot.ID)
	require.NoError(t, err)

	completed, err := engine.interviews.Complete(ctx, slot.ID, dto.CompleteInterviewRequest{
		Result: &dto.InterviewResultRequest{Score: 95, Recommendation: models.RecommendationStronglyRecommend},
	}, "iv-1")
	require.NoError(t, err)
	require.NotNil(t, completed.Result)

	_, err = engine.interviews.RecordResult(ctx, slot.ID, dto.InterviewResultRequest{Score: 50, Recommendation: models.RecommendationNeutral}, "iv-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
}

func TestRescheduleIsAtomic(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 2)
	ctx := context.Background()
	app := engine.underReview(t, offering.ID, "s-1")
	other := engine.underReview(t, offering.ID, "s-2")

	slot, err := engine.interviews.Book(ctx, bookRequest(app.ID, interviewDay, 60, "iv-1"), "officer-1")
	require.NoError(t, err)
	_, err = engine.apps.Review(ctx, app.ID, dto.ReviewApplicationRequest{Status: models.ApplicationStatusInterviewScheduled}, "reviewer-1")
	require.NoError(t, err)
	_, err = engine.interviews.Book(ctx, bookRequest(other.ID, interviewDay.Add(3*time.Hour), 60, "iv-1"), "officer-1")
	require.NoError(t, err)

	_, err = engine.interviews.Reschedule(ctx, slot.ID, dto.RescheduleInterviewRequest{StartsAt: interviewDay.Add(3*time.Hour + 30*time.Minute)}, "officer-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotConflict.Code))

	unchanged, err := engine.interviews.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusScheduled, unchanged.Status, "a failed reschedule keeps the original slot")

	moved, err := engine.interviews.Reschedule(ctx, slot.ID, dto.RescheduleInterviewRequest{StartsAt: interviewDay.Add(30 * time.Minute)}, "officer-1")
	require.NoError(t, err, "the retired slot no longer blocks its own interviewer")
	require.NotNil(t, moved.RescheduledFrom)
	assert.Equal(t, slot.ID, *moved.RescheduledFrom)
	assert.Equal(t, 60, moved.DurationMinutes)
	assert.Equal(t, "iv-1", moved.PrimaryInterviewer())

	retired, err := engine.interviews.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusRescheduled, retired.Status)

	stored, err := engine.apps.Get(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.InterviewDate)
	assert.True(t, moved.StartsAt.Equal(*stored.InterviewDate))

	slots, err := engine.interviews.ListByApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func bookConcurrently(t *testing.T, engine *testEngine, requests []dto.BookInterviewRequest) (booked int, conflicts int) {
	t.Helper()
	ctx := context.Background()
	errs := make([]error, len(requests))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = engine.interviews.Book(ctx, requests[i], "officer-1")
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		switch {
		case err == nil:
			booked++
		case appErrors.HasCode(err, appErrors.ErrSlotConflict.Code):
			conflicts++
		default:
			t.Errorf("unexpected booking error: %v", err)
		}
	}
	return booked, conflicts
}

func TestConcurrentBookingsShareOneInterviewer(t *testing.T) {
	const contenders = 8
	engine := newTestEngine(t)
	offering := engine.openOffering(t, contenders)

	requests := make([]dto.BookInterviewRequest, contenders)
	for i := range requests {
		app := engine.underReview(t, offering.ID, fmt.Sprintf("s-%d", i))
		start := interviewDay.Add(time.Duration(i) * 5 * time.Minute)
		requests[i] = bookRequest(app.ID, start, 60, fmt.Sprintf("panel-%d", i), "iv-shared")
	}

	booked, conflicts := bookConcurrently(t, engine, requests)
	assert.Equal(t, 1, booked)
	assert.Equal(t, contenders-1, conflicts)
}

func TestConcurrentBookingsShareOneApplication(t *testing.T) {
	const contenders = 8
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	app := engine.underReview(t, offering.ID, "s-1")

	requests := make([]dto.BookInterviewRequest, contenders)
	for i := range requests {
		start := interviewDay.Add(time.Duration(i) * 2 * time.Hour)
		requests[i] = bookRequest(app.ID, start, 30, fmt.Sprintf("iv-%d", i))
	}

	booked, conflicts := bookConcurrently(t, engine, requests)
	assert.Equal(t, 1, booked)
	assert.Equal(t, contenders-1, conflicts)

	slots, err := engine.interviews.ListByApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}
