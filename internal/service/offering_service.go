package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// offeringStatusTransitions lists the status moves available after approval.
var offeringStatusTransitions = map[models.OfferingStatus][]models.OfferingStatus{
	models.OfferingStatusOpen:      {models.OfferingStatusSuspended, models.OfferingStatusClosed},
	models.OfferingStatusSuspended: {models.OfferingStatusOpen, models.OfferingStatusClosed},
}

// OfferingService manages scholarship offerings and the creation of their ledgers.
type OfferingService struct {
	store     repository.Store
	ledger    *AllocationLedger
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewOfferingService constructs the service.
func NewOfferingService(store repository.Store, ledger *AllocationLedger, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *OfferingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfferingService{
		store:     store,
		ledger:    ledger,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create drafts a new offering. Its ledger is created on approval.
func (s *OfferingService) Create(ctx context.Context, req dto.CreateOfferingRequest) (*models.ScholarshipOffering, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid offering payload")
	}
	if err := validateAmounts(req.AwardAmount, req.TotalBudget); err != nil {
		return nil, err
	}
	now := s.now()
	offering := &models.ScholarshipOffering{
		Name:              strings.TrimSpace(req.Name),
		FacultyID:         strings.TrimSpace(req.FacultyID),
		AwardAmount:       req.AwardAmount,
		TotalBudget:       req.TotalBudget,
		TotalQuota:        req.TotalQuota,
		AcademicYear:      strings.TrimSpace(req.AcademicYear),
		Semester:          req.Semester,
		WindowStart:       req.WindowStart.UTC(),
		WindowEnd:         req.WindowEnd.UTC(),
		InterviewRequired: req.InterviewRequired,
		Status:            models.OfferingStatusDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertOffering(ctx, offering); err != nil {
			return asAppError(err, "failed to create offering")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("offering drafted", zap.String("offering_id", offering.ID), zap.String("name", offering.Name))
	return offering, nil
}

// Update edits a draft offering. Once approved only the name, window end, interview flag and
// totals may change; totals are resized through the ledger.
func (s *OfferingService) Update(ctx context.Context, id string, req dto.UpdateOfferingRequest) (*dto.OfferingDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid offering payload")
	}
	var (
		offering *models.ScholarshipOffering
		alloc    *models.Allocation
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		offering, err = tx.LockOffering(ctx, id)
		if err != nil {
			return offeringLookupError(err)
		}
		if offering.ArchivedAt != nil {
			return appErrors.Clone(appErrors.ErrConflict, "offering is archived")
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return appErrors.Clone(appErrors.ErrValidation, "name must not be empty")
			}
			offering.Name = name
		}
		if req.InterviewRequired != nil {
			offering.InterviewRequired = *req.InterviewRequired
		}
		if req.WindowEnd != nil {
			offering.WindowEnd = req.WindowEnd.UTC()
		}

		if offering.Status == models.OfferingStatusDraft {
			if req.AwardAmount != nil {
				offering.AwardAmount = *req.AwardAmount
			}
			if req.TotalBudget != nil {
				offering.TotalBudget = *req.TotalBudget
			}
			if req.TotalQuota != nil {
				offering.TotalQuota = *req.TotalQuota
			}
			if req.WindowStart != nil {
				offering.WindowStart = req.WindowStart.UTC()
			}
			if err := validateAmounts(offering.AwardAmount, offering.TotalBudget); err != nil {
				return err
			}
		} else {
			if req.AwardAmount != nil && !req.AwardAmount.Equal(offering.AwardAmount) {
				return appErrors.Clone(appErrors.ErrConflict, "award amount is fixed once the offering is approved")
			}
			if req.WindowStart != nil && !req.WindowStart.Equal(offering.WindowStart) {
				return appErrors.Clone(appErrors.ErrConflict, "window start is fixed once the offering is approved")
			}
			if req.TotalBudget != nil || req.TotalQuota != nil {
				if alloc, err = s.ledger.resizeTx(ctx, tx, offering, req.TotalBudget, req.TotalQuota); err != nil {
					return err
				}
			}
		}
		if !offering.WindowEnd.After(offering.WindowStart) {
			return appErrors.Clone(appErrors.ErrValidation, "window end must be after window start")
		}
		offering.UpdatedAt = s.now()
		if err := tx.UpdateOffering(ctx, offering); err != nil {
			return asAppError(err, "failed to update offering")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.ledger.publish(alloc)
	return &dto.OfferingDetail{ScholarshipOffering: *offering, Allocation: alloc}, nil
}

// Approve opens a draft offering and creates its allocation ledger from the offering totals.
func (s *OfferingService) Approve(ctx context.Context, id, actor string) (*dto.OfferingDetail, error) {
	var (
		offering *models.ScholarshipOffering
		alloc    *models.Allocation
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		offering, err = tx.LockOffering(ctx, id)
		if err != nil {
			return offeringLookupError(err)
		}
		if offering.Status != models.OfferingStatusDraft {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("only draft offerings can be approved, offering is %s", offering.Status))
		}
		now := s.now()
		alloc = &models.Allocation{
			OfferingID:      offering.ID,
			TotalBudget:     offering.TotalBudget,
			TotalQuota:      offering.TotalQuota,
			AllocatedAmount: decimal.Zero,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertAllocation(ctx, alloc); err != nil {
			return asAppError(err, "failed to create allocation")
		}
		offering.Status = models.OfferingStatusOpen
		offering.UpdatedAt = now
		if err := tx.UpdateOffering(ctx, offering); err != nil {
			return asAppError(err, "failed to open offering")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.ledger.publish(alloc)
	s.logger.Info("offering approved", zap.String("offering_id", id), zap.String("actor", actor))
	return &dto.OfferingDetail{ScholarshipOffering: *offering, Allocation: alloc}, nil
}

// ChangeStatus suspends, reopens or closes an approved offering.
func (s *OfferingService) ChangeStatus(ctx context.Context, id string, req dto.ChangeOfferingStatusRequest) (*models.ScholarshipOffering, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	var offering *models.ScholarshipOffering
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		offering, err = tx.LockOffering(ctx, id)
		if err != nil {
			return offeringLookupError(err)
		}
		if offering.ArchivedAt != nil {
			return appErrors.Clone(appErrors.ErrConflict, "offering is archived")
		}
		if !offeringStatusAllowed(offering.Status, req.Status) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move offering from %s to %s", offering.Status, req.Status))
		}
		offering.Status = req.Status
		offering.UpdatedAt = s.now()
		if err := tx.UpdateOffering(ctx, offering); err != nil {
			return asAppError(err, "failed to update offering status")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offering, nil
}

// Archive freezes a closed offering together with its ledger and applications.
func (s *OfferingService) Archive(ctx context.Context, id, actor string) (*dto.OfferingDetail, int64, error) {
	var (
		offering *models.ScholarshipOffering
		alloc    *models.Allocation
		archived int64
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockApplicationsByOffering(ctx, id); err != nil {
			return asAppError(err, "failed to lock applications")
		}
		var err error
		offering, err = tx.LockOffering(ctx, id)
		if err != nil {
			return offeringLookupError(err)
		}
		if offering.ArchivedAt != nil {
			return appErrors.Clone(appErrors.ErrConflict, "offering is already archived")
		}
		if offering.Status != models.OfferingStatusClosed {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "only closed offerings can be archived")
		}
		now := s.now()
		alloc, err = tx.LockAllocation(ctx, id)
		if err != nil {
			return allocationLookupError(err)
		}
		alloc.ArchivedAt = &now
		if err := tx.UpdateAllocation(ctx, alloc); err != nil {
			return asAppError(err, "failed to archive allocation")
		}
		offering.ArchivedAt = &now
		offering.UpdatedAt = now
		if err := tx.UpdateOffering(ctx, offering); err != nil {
			return asAppError(err, "failed to archive offering")
		}
		if archived, err = tx.ArchiveApplications(ctx, id, now); err != nil {
			return asAppError(err, "failed to archive applications")
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	s.cache.InvalidateStats(ctx)
	s.logger.Info("offering archived",
		zap.String("offering_id", id),
		zap.String("actor", actor),
		zap.Int64("applications", archived),
	)
	return &dto.OfferingDetail{ScholarshipOffering: *offering, Allocation: alloc}, archived, nil
}

// Get returns an offering with its ledger when it has been approved.
func (s *OfferingService) Get(ctx context.Context, id string) (*dto.OfferingDetail, error) {
	offering, err := s.store.GetOffering(ctx, id)
	if err != nil {
		return nil, offeringLookupError(err)
	}
	detail := &dto.OfferingDetail{ScholarshipOffering: *offering}
	alloc, err := s.store.GetAllocation(ctx, id)
	switch {
	case err == nil:
		detail.Allocation = alloc
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, allocationLookupError(err)
	}
	return detail, nil
}

// List returns offerings matching the query.
func (s *OfferingService) List(ctx context.Context, query dto.OfferingQuery) ([]models.ScholarshipOffering, error) {
	offerings, err := s.store.ListOfferings(ctx, models.OfferingFilter{
		Status:       query.Status,
		AcademicYear: query.AcademicYear,
		Semester:     query.Semester,
	})
	if err != nil {
		return nil, asAppError(err, "failed to list offerings")
	}
	return offerings, nil
}

// Allocation returns the ledger of an offering.
func (s *OfferingService) Allocation(ctx context.Context, id string) (*models.Allocation, error) {
	return s.ledger.Get(ctx, id)
}

func offeringStatusAllowed(from, to models.OfferingStatus) bool {
	for _, next := range offeringStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validateAmounts(award, budget decimal.Decimal) error {
	if !award.IsPositive() {
		return appErrors.Clone(appErrors.ErrValidation, "award amount must be positive")
	}
	if budget.IsNegative() {
		return appErrors.Clone(appErrors.ErrValidation, "total budget must not be negative")
	}
	return nil
}
