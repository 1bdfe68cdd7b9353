package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// Ledger operation labels.
const (
	ledgerOpReserve = "reserve"
	ledgerOpRelease = "release"
	ledgerOpResize  = "resize"
)

// AllocationLedger guards the budget and quota of every offering. All mutations run
// under the allocation row lock and a version check, so concurrent reservations
// against the last unit cannot both commit.
type AllocationLedger struct {
	store   repository.Store
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAllocationLedger constructs the ledger.
func NewAllocationLedger(store repository.Store, metrics *MetricsService, logger *zap.Logger) *AllocationLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationLedger{store: store, metrics: metrics, logger: logger}
}

// Get returns the ledger of an offering.
func (l *AllocationLedger) Get(ctx context.Context, offeringID string) (*models.Allocation, error) {
	alloc, err := l.store.GetAllocation(ctx, offeringID)
	if err != nil {
		return nil, allocationLookupError(err)
	}
	return alloc, nil
}

// Reserve commits amount and units against the offering in its own unit of work.
func (l *AllocationLedger) Reserve(ctx context.Context, offeringID string, amount decimal.Decimal, units int) (*models.Allocation, error) {
	var alloc *models.Allocation
	err := l.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		alloc, err = l.reserveTx(ctx, tx, offeringID, amount, units)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.publish(alloc)
	return alloc, nil
}

// Release returns amount and units to the offering in its own unit of work.
func (l *AllocationLedger) Release(ctx context.Context, offeringID string, amount decimal.Decimal, units int) (*models.Allocation, error) {
	var alloc *models.Allocation
	err := l.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		alloc, err = l.releaseTx(ctx, tx, offeringID, amount, units)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.publish(alloc)
	return alloc, nil
}

// SetTotalBudget resizes the offering budget. It never drops below the committed amount.
func (l *AllocationLedger) SetTotalBudget(ctx context.Context, offeringID string, total decimal.Decimal) (*models.Allocation, error) {
	return l.resize(ctx, offeringID, &total, nil)
}

// SetTotalQuota resizes the offering quota. It never drops below the committed awards.
func (l *AllocationLedger) SetTotalQuota(ctx context.Context, offeringID string, total int) (*models.Allocation, error) {
	return l.resize(ctx, offeringID, nil, &total)
}

func (l *AllocationLedger) resize(ctx context.Context, offeringID string, budget *decimal.Decimal, quota *int) (*models.Allocation, error) {
	var alloc *models.Allocation
	err := l.store.WithinTx(ctx, func(tx repository.Tx) error {
		offering, err := tx.LockOffering(ctx, offeringID)
		if err != nil {
			return offeringLookupError(err)
		}
		alloc, err = l.resizeTx(ctx, tx, offering, budget, quota)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.publish(alloc)
	return alloc, nil
}

func (l *AllocationLedger) reserveTx(ctx context.Context, tx repository.Tx, offeringID string, amount decimal.Decimal, units int) (alloc *models.Allocation, err error) {
	defer func() { l.metrics.RecordLedgerOperation(ledgerOpReserve, err) }()

	if err := validateDraw(amount, units); err != nil {
		return nil, err
	}
	alloc, err = l.lockWritable(ctx, tx, offeringID)
	if err != nil {
		return nil, err
	}
	if !alloc.CanReserve(amount, units) {
		return nil, appErrors.Clone(appErrors.ErrAllocationExhausted, fmt.Sprintf(
			"offering %s has %s budget and %d awards remaining", offeringID, alloc.RemainingBudget().StringFixed(2), alloc.RemainingQuota()))
	}
	alloc.AllocatedAmount = alloc.AllocatedAmount.Add(amount)
	alloc.AllocatedQuota += units
	if err := tx.UpdateAllocation(ctx, alloc); err != nil {
		return nil, err
	}
	return alloc, nil
}

func (l *AllocationLedger) releaseTx(ctx context.Context, tx repository.Tx, offeringID string, amount decimal.Decimal, units int) (alloc *models.Allocation, err error) {
	defer func() { l.metrics.RecordLedgerOperation(ledgerOpRelease, err) }()

	if err := validateDraw(amount, units); err != nil {
		return nil, err
	}
	alloc, err = l.lockWritable(ctx, tx, offeringID)
	if err != nil {
		return nil, err
	}
	if alloc.AllocatedAmount.LessThan(amount) || alloc.AllocatedQuota < units {
		l.logger.Error("release exceeds committed allocation",
			zap.String("offering_id", offeringID),
			zap.String("allocated_amount", alloc.AllocatedAmount.String()),
			zap.Int("allocated_quota", alloc.AllocatedQuota),
			zap.String("amount", amount.String()),
			zap.Int("units", units),
		)
		return nil, appErrors.Clone(appErrors.ErrIntegrityFault, "release exceeds committed allocation")
	}
	alloc.AllocatedAmount = alloc.AllocatedAmount.Sub(amount)
	alloc.AllocatedQuota -= units
	if err := tx.UpdateAllocation(ctx, alloc); err != nil {
		return nil, err
	}
	return alloc, nil
}

// resizeTx expects the offering row to be locked by the caller and keeps its totals in step with the ledger.
func (l *AllocationLedger) resizeTx(ctx context.Context, tx repository.Tx, offering *models.ScholarshipOffering, budget *decimal.Decimal, quota *int) (alloc *models.Allocation, err error) {
	defer func() { l.metrics.RecordLedgerOperation(ledgerOpResize, err) }()

	if budget != nil && budget.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "total budget must not be negative")
	}
	if quota != nil && *quota < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "total quota must not be negative")
	}
	alloc, err = l.lockWritable(ctx, tx, offering.ID)
	if err != nil {
		return nil, err
	}
	if budget != nil {
		if budget.LessThan(alloc.AllocatedAmount) {
			return nil, appErrors.Clone(appErrors.ErrInvalidResize, fmt.Sprintf(
				"total budget %s is below the committed %s", budget.StringFixed(2), alloc.AllocatedAmount.StringFixed(2)))
		}
		alloc.TotalBudget = *budget
		offering.TotalBudget = *budget
	}
	if quota != nil {
		if *quota < alloc.AllocatedQuota {
			return nil, appErrors.Clone(appErrors.ErrInvalidResize, fmt.Sprintf(
				"total quota %d is below the %d awards already committed", *quota, alloc.AllocatedQuota))
		}
		alloc.TotalQuota = *quota
		offering.TotalQuota = *quota
	}
	if err := tx.UpdateAllocation(ctx, alloc); err != nil {
		return nil, err
	}
	if err := tx.UpdateOffering(ctx, offering); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update offering totals")
	}
	return alloc, nil
}

func (l *AllocationLedger) lockWritable(ctx context.Context, tx repository.Tx, offeringID string) (*models.Allocation, error) {
	alloc, err := tx.LockAllocation(ctx, offeringID)
	if err != nil {
		return nil, allocationLookupError(err)
	}
	if alloc.ArchivedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "allocation is archived")
	}
	if !alloc.Consistent() {
		return nil, appErrors.Clone(appErrors.ErrIntegrityFault, "allocation remainder is corrupted")
	}
	return alloc, nil
}

// publish exports committed remainders.
func (l *AllocationLedger) publish(alloc *models.Allocation) {
	if alloc == nil {
		return
	}
	l.metrics.SetAllocationRemaining(alloc.OfferingID, alloc.RemainingQuota(), alloc.RemainingBudget().InexactFloat64())
}

func validateDraw(amount decimal.Decimal, units int) error {
	if amount.IsNegative() {
		return appErrors.Clone(appErrors.ErrValidation, "amount must not be negative")
	}
	if units < 0 {
		return appErrors.Clone(appErrors.ErrValidation, "quota units must not be negative")
	}
	if amount.IsZero() && units == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "amount or quota units are required")
	}
	return nil
}

func allocationLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "allocation not found")
	}
	return asAppError(err, "failed to load allocation")
}

func offeringLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "offering not found")
	}
	return asAppError(err, "failed to load offering")
}

func applicationLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	return asAppError(err, "failed to load application")
}

func slotLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "interview slot not found")
	}
	return asAppError(err, "failed to load interview slot")
}

// asAppError keeps typed errors and wraps anything else as an internal fault.
func asAppError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
