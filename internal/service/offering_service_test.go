package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

func draftRequest() dto.CreateOfferingRequest {
	now := time.Now().UTC()
	return dto.CreateOfferingRequest{
		Name:         "Need-based Grant",
		AwardAmount:  decimal.NewFromInt(2500),
		TotalBudget:  decimal.NewFromInt(25000),
		TotalQuota:   10,
		AcademicYear: "2026/2027",
		Semester:     2,
		WindowStart:  now.Add(-time.Hour),
		WindowEnd:    now.Add(72 * time.Hour),
	}
}

func TestOfferingApproveCreatesLedger(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	offering, err := engine.offerings.Create(ctx, draftRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OfferingStatusDraft, offering.Status)

	detail, err := engine.offerings.Get(ctx, offering.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Allocation)

	_, err = engine.offerings.Allocation(ctx, offering.ID)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	approved, err := engine.offerings.Approve(ctx, offering.ID, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, models.OfferingStatusOpen, approved.Status)
	require.NotNil(t, approved.Allocation)
	assert.Equal(t, 10, approved.Allocation.RemainingQuota())
	assert.True(t, approved.Allocation.RemainingBudget().Equal(decimal.NewFromInt(25000)))

	_, err = engine.offerings.Approve(ctx, offering.ID, "officer-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
}

func TestOfferingCreateValidation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	req := draftRequest()
	req.AwardAmount = decimal.Zero
	_, err := engine.offerings.Create(ctx, req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	req = draftRequest()
	req.TotalBudget = decimal.NewFromInt(-1)
	_, err = engine.offerings.Create(ctx, req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	req = draftRequest()
	req.WindowEnd = req.WindowStart.Add(-time.Minute)
	_, err = engine.offerings.Create(ctx, req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestOfferingUpdateDraftAndOpen(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	offering, err := engine.offerings.Create(ctx, draftRequest())
	require.NoError(t, err)

	award := decimal.NewFromInt(3000)
	quota := 4
	detail, err := engine.offerings.Update(ctx, offering.ID, dto.UpdateOfferingRequest{AwardAmount: &award, TotalQuota: &quota})
	require.NoError(t, err)
	assert.True(t, detail.AwardAmount.Equal(award))
	assert.Equal(t, 4, detail.TotalQuota)
	assert.Nil(t, detail.Allocation)

	_, err = engine.offerings.Approve(ctx, offering.ID, "officer-1")
	require.NoError(t, err)
	app := engine.underReview(t, offering.ID, "s-1")
	_, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID, Payload: ApprovePayload{}})
	require.NoError(t, err)

	other := decimal.NewFromInt(10)
	_, err = engine.offerings.Update(ctx, offering.ID, dto.UpdateOfferingRequest{AwardAmount: &other})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	zero := 0
	_, err = engine.offerings.Update(ctx, offering.ID, dto.UpdateOfferingRequest{TotalQuota: &zero})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidResize.Code))

	budget := decimal.NewFromInt(2999)
	_, err = engine.offerings.Update(ctx, offering.ID, dto.UpdateOfferingRequest{TotalBudget: &budget})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidResize.Code))

	grown := 6
	name := "Need-based Grant (extended)"
	detail, err = engine.offerings.Update(ctx, offering.ID, dto.UpdateOfferingRequest{TotalQuota: &grown, Name: &name})
	require.NoError(t, err)
	require.NotNil(t, detail.Allocation)
	assert.Equal(t, 5, detail.Allocation.RemainingQuota())
	assert.Equal(t, name, detail.Name)
	assert.Equal(t, 6, detail.TotalQuota)
}

func TestOfferingStatusChanges(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	offering, err := engine.offerings.Create(ctx, draftRequest())
	require.NoError(t, err)

	_, err = engine.offerings.ChangeStatus(ctx, offering.ID, dto.ChangeOfferingStatusRequest{Status: models.OfferingStatusClosed})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition.Code))

	_, err = engine.offerings.Approve(ctx, offering.ID, "officer-1")
	require.NoError(t, err)

	suspended, err := engine.offerings.ChangeStatus(ctx, offering.ID, dto.ChangeOfferingStatusRequest{Status: models.OfferingStatusSuspended})
	require.NoError(t, err)
	assert.Equal(t, models.OfferingStatusSuspended, suspended.Status)

	reopened, err := engine.offerings.ChangeStatus(ctx, offering.ID, dto.ChangeOfferingStatusRequest{Status: models.OfferingStatusOpen})
	require.NoError(t, err)
	assert.Equal(t, models.OfferingStatusOpen, reopened.Status)

	_, err = engine.offerings.ChangeStatus(ctx, offering.ID, dto.ChangeOfferingStatusRequest{Status: models.OfferingStatusDraft})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition.Code))

	open, err := engine.offerings.List(ctx, dto.OfferingQuery{Status: []models.OfferingStatus{models.OfferingStatusOpen}})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, offering.ID, open[0].ID)
}

func TestOfferingArchiveFreezesEverything(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	offering := engine.openOffering(t, 2)
	app := engine.underReview(t, offering.ID, "s-1")
	engine.submit(t, offering.ID, "s-2")

	_, _, err := engine.offerings.Archive(ctx, offering.ID, "admin-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrPreconditionFailed.Code))

	_, err = engine.offerings.ChangeStatus(ctx, offering.ID, dto.ChangeOfferingStatusRequest{Status: models.OfferingStatusClosed})
	require.NoError(t, err)

	detail, archived, err := engine.offerings.Archive(ctx, offering.ID, "admin-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, archived)
	assert.NotNil(t, detail.ArchivedAt)
	require.NotNil(t, detail.Allocation)
	assert.NotNil(t, detail.Allocation.ArchivedAt)

	_, err = engine.machine.Transition(ctx, TransitionRequest{ApplicationID: app.ID, Payload: RejectPayload{Reason: "late"}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	err = engine.apps.Delete(ctx, app.ID, true, admin())
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	_, err = engine.ledger.Reserve(ctx, offering.ID, decimal.NewFromInt(1000), 1)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	_, _, err = engine.offerings.Archive(ctx, offering.ID, "admin-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	visible, _, err := engine.apps.List(ctx, dto.ApplicationQuery{OfferingID: offering.ID})
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, _, err := engine.apps.List(ctx, dto.ApplicationQuery{OfferingID: offering.ID, IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
