package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

func TestAllocationLedgerReserveReleaseRestoresRemainders(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 3)
	ctx := context.Background()

	before := engine.allocation(t, offering.ID)
	amount := decimal.RequireFromString("1000.50")

	reserved, err := engine.ledger.Reserve(ctx, offering.ID, amount, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, reserved.RemainingQuota())
	assert.True(t, reserved.RemainingBudget().Equal(before.RemainingBudget().Sub(amount)))

	released, err := engine.ledger.Release(ctx, offering.ID, amount, 1)
	require.NoError(t, err)
	assert.Equal(t, before.RemainingQuota(), released.RemainingQuota())
	assert.True(t, released.RemainingBudget().Equal(before.RemainingBudget()))
	assert.True(t, released.AllocatedAmount.IsZero())
	assert.Equal(t, before.Version+2, released.Version)
}

func TestAllocationLedgerExhaustionChangesNothing(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 1)
	ctx := context.Background()

	_, err := engine.ledger.Reserve(ctx, offering.ID, decimal.NewFromInt(1000), 1)
	require.NoError(t, err)
	before := engine.allocation(t, offering.ID)

	_, err = engine.ledger.Reserve(ctx, offering.ID, decimal.NewFromInt(1), 1)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrAllocationExhausted.Code))

	after := engine.allocation(t, offering.ID)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 0, after.RemainingQuota())
}

func TestAllocationLedgerBudgetExhaustion(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOfferingWith(t, 5, decimal.NewFromInt(1500), decimal.NewFromInt(1000))

	_, err := engine.ledger.Reserve(context.Background(), offering.ID, decimal.NewFromInt(1000), 1)
	require.NoError(t, err)
	_, err = engine.ledger.Reserve(context.Background(), offering.ID, decimal.NewFromInt(1000), 1)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrAllocationExhausted.Code))
}

func TestAllocationLedgerReleaseBeyondCommitted(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 2)

	_, err := engine.ledger.Release(context.Background(), offering.ID, decimal.NewFromInt(1000), 1)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrIntegrityFault.Code))
	assert.Equal(t, 0, engine.allocation(t, offering.ID).AllocatedQuota)
}

func TestAllocationLedgerValidatesDraws(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 2)
	ctx := context.Background()

	_, err := engine.ledger.Reserve(ctx, offering.ID, decimal.NewFromInt(-5), 1)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = engine.ledger.Reserve(ctx, offering.ID, decimal.Zero, 0)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = engine.ledger.Reserve(ctx, "missing", decimal.NewFromInt(1), 1)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestAllocationLedgerResize(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 3)
	ctx := context.Background()

	_, err := engine.ledger.Reserve(ctx, offering.ID, decimal.NewFromInt(1000), 1)
	require.NoError(t, err)
	_, err = engine.ledger.Reserve(ctx, offering.ID, decimal.NewFromInt(1000), 1)
	require.NoError(t, err)

	_, err = engine.ledger.SetTotalQuota(ctx, offering.ID, 1)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidResize.Code))

	_, err = engine.ledger.SetTotalBudget(ctx, offering.ID, decimal.NewFromInt(1999))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidResize.Code))

	_, err = engine.ledger.SetTotalBudget(ctx, offering.ID, decimal.NewFromInt(-1))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	alloc, err := engine.ledger.SetTotalQuota(ctx, offering.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, alloc.RemainingQuota())

	alloc, err = engine.ledger.SetTotalBudget(ctx, offering.ID, decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.True(t, alloc.RemainingBudget().Equal(decimal.NewFromInt(8000)))

	detail, err := engine.offerings.Get(ctx, offering.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.TotalQuota)
	assert.True(t, detail.TotalBudget.Equal(decimal.NewFromInt(10000)))
}

func TestAllocationLedgerConcurrentReservations(t *testing.T) {
	engine := newTestEngine(t)
	offering := engine.openOffering(t, 3)

	var (
		wg        sync.WaitGroup
		succeeded int32
		exhausted int32
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.ledger.Reserve(context.Background(), offering.ID, decimal.NewFromInt(1000), 1)
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case appErrors.HasCode(err, appErrors.ErrAllocationExhausted.Code):
				atomic.AddInt32(&exhausted, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, succeeded)
	assert.EqualValues(t, 9, exhausted)
	alloc := engine.allocation(t, offering.ID)
	assert.Equal(t, 0, alloc.RemainingQuota())
	assert.True(t, alloc.RemainingBudget().IsZero())
}
