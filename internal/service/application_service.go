package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// ApplicationService exposes the application lifecycle to transport layers.
type ApplicationService struct {
	store     repository.Store
	machine   *ApplicationStateMachine
	ledger    *AllocationLedger
	scorer    *PriorityScorer
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewApplicationService constructs the service.
func NewApplicationService(store repository.Store, machine *ApplicationStateMachine, ledger *AllocationLedger, scorer *PriorityScorer, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		scorer = NewPriorityScorer()
	}
	return &ApplicationService{
		store:     store,
		machine:   machine,
		ledger:    ledger,
		scorer:    scorer,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a new application against an open offering.
func (s *ApplicationService) Submit(ctx context.Context, req dto.SubmitApplicationRequest, actor string) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	snapshot := models.ApplicantSnapshot{
		FullName:            strings.TrimSpace(req.FullName),
		FacultyID:           strings.TrimSpace(req.FacultyID),
		GPA:                 req.GPA,
		MonthlyFamilyIncome: req.MonthlyFamilyIncome,
		ActivityCount:       req.ActivityCount,
	}
	score, err := s.scorer.ScoreSnapshot(snapshot)
	if err != nil {
		return nil, err
	}

	now := s.now()
	app := &models.Application{
		OfferingID:        req.OfferingID,
		ApplicantID:       strings.TrimSpace(req.ApplicantID),
		ApplicantSnapshot: snapshot,
		SnapshotVersion:   1,
		ScoredVersion:     1,
		PriorityScore:     score,
		Status:            models.ApplicationStatusSubmitted,
		SubmittedAt:       now,
		UpdatedAt:         now,
	}
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		offering, err := tx.LockOffering(ctx, req.OfferingID)
		if err != nil {
			return offeringLookupError(err)
		}
		if !offering.AcceptsApplications(now) {
			return appErrors.Clone(appErrors.ErrConflict, "offering is not accepting applications")
		}
		if err := tx.InsertApplication(ctx, app); err != nil {
			return asAppError(err, "failed to create application")
		}
		from := models.ApplicationStatusDraft
		return s.machine.appendAudit(ctx, tx, app.ID, models.AuditActionSubmit, actor, &from, app.Status, map[string]interface{}{
			"snapshot":      snapshot,
			"priorityScore": score,
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateStats(ctx)
	return app, nil
}

// Get returns a single application.
func (s *ApplicationService) Get(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, applicationLookupError(err)
	}
	return app, nil
}

// List returns a filtered page of applications.
func (s *ApplicationService) List(ctx context.Context, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error) {
	for _, status := range query.Status {
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	if query.Priority != "" {
		if _, _, ok := query.Priority.Bounds(); !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "priority must be high, medium or low")
		}
	}
	if query.GPAMin != nil && query.GPAMax != nil && *query.GPAMin > *query.GPAMax {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "gpaMin must not exceed gpaMax")
	}
	if query.IncomeMin != nil && query.IncomeMax != nil && query.IncomeMin.GreaterThan(*query.IncomeMax) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "incomeMin must not exceed incomeMax")
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = 20
	}
	if query.PageSize > 200 {
		query.PageSize = 200
	}

	apps, total, err := s.store.ListApplications(ctx, models.ApplicationFilter{
		Status:          query.Status,
		OfferingID:      query.OfferingID,
		FacultyID:       query.FacultyID,
		Priority:        query.Priority,
		GPAMin:          query.GPAMin,
		GPAMax:          query.GPAMax,
		IncomeMin:       query.IncomeMin,
		IncomeMax:       query.IncomeMax,
		IncludeArchived: query.IncludeArchived,
		SortBy:          query.SortBy,
		SortOrder:       query.SortOrder,
		Page:            query.Page,
		PageSize:        query.PageSize,
	})
	if err != nil {
		return nil, nil, asAppError(err, "failed to list applications")
	}
	return apps, &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}, nil
}

// UpdateSnapshot corrects applicant data and rescores in the same unit of work.
func (s *ApplicationService) UpdateSnapshot(ctx context.Context, id string, req dto.UpdateSnapshotRequest, actor string) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid snapshot payload")
	}
	var app *models.Application
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		app, err = tx.LockApplication(ctx, id)
		if err != nil {
			return applicationLookupError(err)
		}
		if app.Archived() {
			return appErrors.Clone(appErrors.ErrConflict, "application is archived")
		}
		before := app.ApplicantSnapshot
		if req.FullName != nil {
			app.FullName = strings.TrimSpace(*req.FullName)
		}
		if req.FacultyID != nil {
			app.FacultyID = strings.TrimSpace(*req.FacultyID)
		}
		if req.GPA != nil {
			app.GPA = *req.GPA
		}
		if req.MonthlyFamilyIncome != nil {
			app.MonthlyFamilyIncome = *req.MonthlyFamilyIncome
		}
		if req.ActivityCount != nil {
			app.ActivityCount = *req.ActivityCount
		}
		app.SnapshotVersion++
		if err := s.machine.rescoreIfStale(app); err != nil {
			return err
		}
		app.UpdatedAt = s.now()
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return asAppError(err, "failed to update application")
		}
		status := app.Status
		return s.machine.appendAudit(ctx, tx, app.ID, models.AuditActionSnapshotUpdate, actor, &status, status, map[string]interface{}{
			"before":        before,
			"after":         app.ApplicantSnapshot,
			"priorityScore": app.PriorityScore,
			"reason":        req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateStats(ctx)
	return app, nil
}

// Review applies a reviewer decision.
func (s *ApplicationService) Review(ctx context.Context, id string, req dto.ReviewApplicationRequest, actor string) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	payload, err := PayloadFromReview(req)
	if err != nil {
		return nil, err
	}
	return s.Transition(ctx, TransitionRequest{ApplicationID: id, Payload: payload, Actor: actor, Notes: req.Notes})
}

// Transition runs a typed transition and drops cached aggregates on success.
func (s *ApplicationService) Transition(ctx context.Context, req TransitionRequest) (*models.Application, error) {
	app, err := s.machine.Transition(ctx, req)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateStats(ctx)
	return app, nil
}

// Override reopens a terminal application. Administrators only.
func (s *ApplicationService) Override(ctx context.Context, id string, req dto.OverrideRequest, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil || !actor.Role.Administrative() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "override requires an administrator")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	app, err := s.machine.Reopen(ctx, id, actor.UserID, req.Reason)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateStats(ctx)
	return app, nil
}

// Delete hard-deletes an application before its reporting period is archived.
// An approved application gives its award back and active interview slots are cancelled.
func (s *ApplicationService) Delete(ctx context.Context, id string, confirm bool, actor *models.JWTClaims) error {
	if actor == nil || !actor.Role.Administrative() {
		return appErrors.Clone(appErrors.ErrForbidden, "delete requires an administrator")
	}
	if !confirm {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "destructive delete requires confirm=true")
	}
	var alloc *models.Allocation
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		app, err := tx.LockApplication(ctx, id)
		if err != nil {
			return applicationLookupError(err)
		}
		if app.Archived() {
			return appErrors.Clone(appErrors.ErrConflict, "archived applications cannot be deleted")
		}
		if app.Status == models.ApplicationStatusApproved {
			offering, err := tx.LockOffering(ctx, app.OfferingID)
			if err != nil {
				return offeringLookupError(err)
			}
			if alloc, err = s.ledger.releaseTx(ctx, tx, offering.ID, offering.AwardAmount, 1); err != nil {
				return err
			}
		}
		slots, err := tx.ActiveSlotsForApplication(ctx, app.ID)
		if err != nil {
			return asAppError(err, "failed to load interview slots")
		}
		for i := range slots {
			slot, err := tx.LockSlot(ctx, slots[i].ID)
			if err != nil {
				return slotLookupError(err)
			}
			slot.Status = models.SlotStatusCancelled
			if err := tx.UpdateSlot(ctx, slot); err != nil {
				return asAppError(err, "failed to cancel interview slot")
			}
		}
		from := app.Status
		if err := s.machine.appendAudit(ctx, tx, app.ID, models.AuditActionDelete, actor.UserID, &from, app.Status, map[string]interface{}{
			"applicantId": app.ApplicantID,
			"offeringId":  app.OfferingID,
		}); err != nil {
			return err
		}
		if err := tx.DeleteApplication(ctx, app.ID); err != nil {
			return asAppError(err, "failed to delete application")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.ledger.publish(alloc)
	s.cache.InvalidateStats(ctx)
	s.logger.Warn("application deleted", zap.String("application_id", id), zap.String("actor", actor.UserID))
	return nil
}

// AuditTrail returns every audit entry of an application, including deleted ones.
func (s *ApplicationService) AuditTrail(ctx context.Context, id string) ([]models.AuditLog, error) {
	logs, err := s.store.ListAuditLogs(ctx, id)
	if err != nil {
		return nil, asAppError(err, "failed to load audit trail")
	}
	if len(logs) == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
	}
	return logs, nil
}

// ScoreBreakdown explains the priority score of an application.
func (s *ApplicationService) ScoreBreakdown(ctx context.Context, id string) (*dto.ScoreBreakdown, error) {
	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.scorer.Breakdown(app.GPA, app.MonthlyFamilyIncome, app.ActivityCount)
}
