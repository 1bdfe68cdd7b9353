package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// allowedTransitions is the review lifecycle edge table.
var allowedTransitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.ApplicationStatusDraft:     {models.ApplicationStatusSubmitted},
	models.ApplicationStatusSubmitted: {models.ApplicationStatusUnderReview},
	models.ApplicationStatusUnderReview: {
		models.ApplicationStatusApproved,
		models.ApplicationStatusRejected,
		models.ApplicationStatusInterviewScheduled,
		models.ApplicationStatusDocumentPending,
	},
	models.ApplicationStatusInterviewScheduled: {models.ApplicationStatusUnderReview},
	models.ApplicationStatusDocumentPending:    {models.ApplicationStatusUnderReview},
}

// CanTransition reports whether the edge from -> to exists.
func CanTransition(from, to models.ApplicationStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionPayload is the data a specific target status requires.
type TransitionPayload interface {
	Target() models.ApplicationStatus
}

// SubmitPayload moves a draft to submitted.
type SubmitPayload struct{}

// ReviewPayload moves an application (back) to under_review.
type ReviewPayload struct{}

// ApprovePayload approves an application and draws one award from the ledger.
type ApprovePayload struct{}

// RejectPayload rejects an application with a reason shown to the applicant.
type RejectPayload struct {
	Reason string `json:"reason"`
}

// InterviewPayload schedules an interview. A nil date falls back to the active slot.
type InterviewPayload struct {
	InterviewDate *time.Time `json:"interviewDate,omitempty"`
}

// DocumentRequestPayload asks the applicant for missing documents.
type DocumentRequestPayload struct {
	MissingDocuments []string `json:"missingDocuments"`
}

func (SubmitPayload) Target() models.ApplicationStatus  { return models.ApplicationStatusSubmitted }
func (ReviewPayload) Target() models.ApplicationStatus  { return models.ApplicationStatusUnderReview }
func (ApprovePayload) Target() models.ApplicationStatus { return models.ApplicationStatusApproved }
func (RejectPayload) Target() models.ApplicationStatus  { return models.ApplicationStatusRejected }
func (InterviewPayload) Target() models.ApplicationStatus {
	return models.ApplicationStatusInterviewScheduled
}
func (DocumentRequestPayload) Target() models.ApplicationStatus {
	return models.ApplicationStatusDocumentPending
}

// PayloadFromReview converts a reviewer request into the typed payload of its target status.
func PayloadFromReview(req dto.ReviewApplicationRequest) (TransitionPayload, error) {
	switch req.Status {
	case models.ApplicationStatusSubmitted:
		return SubmitPayload{}, nil
	case models.ApplicationStatusUnderReview:
		return ReviewPayload{}, nil
	case models.ApplicationStatusApproved:
		return ApprovePayload{}, nil
	case models.ApplicationStatusRejected:
		return RejectPayload{Reason: req.RejectionReason}, nil
	case models.ApplicationStatusInterviewScheduled:
		return InterviewPayload{InterviewDate: req.InterviewDate}, nil
	case models.ApplicationStatusDocumentPending:
		return DocumentRequestPayload{MissingDocuments: req.MissingDocuments}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown target status %q", req.Status))
	}
}

// TransitionRequest asks the state machine to move one application.
type TransitionRequest struct {
	ApplicationID string
	Payload       TransitionPayload
	Actor         string
	Notes         string
}

// TransitionResult reports the committed application and, for approvals, the ledger after the draw.
type TransitionResult struct {
	Application *models.Application
	Allocation  *models.Allocation
}

// ApplicationStateMachine owns every status change of an application. A transition,
// its ledger draw and its audit entry commit together or not at all.
type ApplicationStateMachine struct {
	store   repository.Store
	ledger  *AllocationLedger
	scorer  *PriorityScorer
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewApplicationStateMachine constructs the state machine.
func NewApplicationStateMachine(store repository.Store, ledger *AllocationLedger, scorer *PriorityScorer, metrics *MetricsService, logger *zap.Logger) *ApplicationStateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		scorer = NewPriorityScorer()
	}
	return &ApplicationStateMachine{
		store:   store,
		ledger:  ledger,
		scorer:  scorer,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Transition applies req in its own unit of work.
func (m *ApplicationStateMachine) Transition(ctx context.Context, req TransitionRequest) (*models.Application, error) {
	if req.Payload == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "transition payload is required")
	}
	var result *TransitionResult
	err := m.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		result, err = m.apply(ctx, tx, req)
		return err
	})
	m.metrics.RecordTransition(string(req.Payload.Target()), err)
	if err != nil {
		return nil, err
	}
	m.ledger.publish(result.Allocation)
	m.logger.Info("application transitioned",
		zap.String("application_id", result.Application.ID),
		zap.String("status", string(result.Application.Status)),
		zap.String("actor", req.Actor),
	)
	return result.Application, nil
}

func (m *ApplicationStateMachine) apply(ctx context.Context, tx repository.Tx, req TransitionRequest) (*TransitionResult, error) {
	app, err := tx.LockApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, applicationLookupError(err)
	}
	if app.Archived() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application is archived")
	}
	from := app.Status
	target := req.Payload.Target()
	if !CanTransition(from, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move application from %s to %s", from, target))
	}

	var alloc *models.Allocation
	switch payload := req.Payload.(type) {
	case RejectPayload:
		reason := strings.TrimSpace(payload.Reason)
		if reason == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
		}
		app.RejectionReason = &reason
	case InterviewPayload:
		date, err := m.resolveInterviewDate(ctx, tx, app.ID, payload.InterviewDate)
		if err != nil {
			return nil, err
		}
		app.InterviewDate = &date
	case DocumentRequestPayload:
		docs := cleanDocuments(payload.MissingDocuments)
		if len(docs) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "at least one missing document is required")
		}
		app.MissingDocuments = pq.StringArray(docs)
	case ApprovePayload:
		offering, err := tx.LockOffering(ctx, app.OfferingID)
		if err != nil {
			return nil, offeringLookupError(err)
		}
		if offering.Status != models.OfferingStatusOpen {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("offering is %s, approvals require an open offering", offering.Status))
		}
		alloc, err = m.ledger.reserveTx(ctx, tx, offering.ID, offering.AwardAmount, 1)
		if err != nil {
			return nil, err
		}
	case ReviewPayload:
		switch from {
		case models.ApplicationStatusDocumentPending:
			app.MissingDocuments = nil
		case models.ApplicationStatusInterviewScheduled:
			app.InterviewDate = nil
		}
	}

	if err := m.rescoreIfStale(app); err != nil {
		return nil, err
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		app.ReviewerNotes = notes
	}
	app.Status = target
	app.UpdatedAt = m.now()
	if err := tx.UpdateApplication(ctx, app); err != nil {
		return nil, asAppError(err, "failed to update application")
	}

	entry := map[string]interface{}{"payload": req.Payload}
	if req.Notes != "" {
		entry["notes"] = req.Notes
	}
	if err := m.appendAudit(ctx, tx, app.ID, models.AuditActionTransition, req.Actor, &from, target, entry); err != nil {
		return nil, err
	}
	return &TransitionResult{Application: app, Allocation: alloc}, nil
}

// Reopen returns a terminal application to under_review. Leaving approved gives the award back to the ledger.
func (m *ApplicationStateMachine) Reopen(ctx context.Context, applicationID, actor, reason string) (*models.Application, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override reason is required")
	}
	var result TransitionResult
	err := m.store.WithinTx(ctx, func(tx repository.Tx) error {
		app, err := tx.LockApplication(ctx, applicationID)
		if err != nil {
			return applicationLookupError(err)
		}
		if app.Archived() {
			return appErrors.Clone(appErrors.ErrConflict, "application is archived")
		}
		if !app.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("override applies to approved or rejected applications, not %s", app.Status))
		}
		from := app.Status
		if from == models.ApplicationStatusApproved {
			offering, err := tx.LockOffering(ctx, app.OfferingID)
			if err != nil {
				return offeringLookupError(err)
			}
			if result.Allocation, err = m.ledger.releaseTx(ctx, tx, offering.ID, offering.AwardAmount, 1); err != nil {
				return err
			}
		}
		if err := m.rescoreIfStale(app); err != nil {
			return err
		}
		app.Status = models.ApplicationStatusUnderReview
		app.RejectionReason = nil
		app.UpdatedAt = m.now()
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return asAppError(err, "failed to update application")
		}
		if err := m.appendAudit(ctx, tx, app.ID, models.AuditActionOverride, actor, &from, app.Status, map[string]string{"reason": reason}); err != nil {
			return err
		}
		result.Application = app
		return nil
	})
	m.metrics.RecordTransition("override", err)
	if err != nil {
		return nil, err
	}
	m.ledger.publish(result.Allocation)
	m.logger.Warn("terminal application reopened",
		zap.String("application_id", applicationID),
		zap.String("actor", actor),
		zap.String("reason", reason),
	)
	return result.Application, nil
}

func (m *ApplicationStateMachine) resolveInterviewDate(ctx context.Context, tx repository.Tx, applicationID string, requested *time.Time) (time.Time, error) {
	if requested != nil && !requested.IsZero() {
		return requested.UTC(), nil
	}
	slots, err := tx.ActiveSlotsForApplication(ctx, applicationID)
	if err != nil {
		return time.Time{}, asAppError(err, "failed to load interview slots")
	}
	if len(slots) == 0 {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "interview date is required when no interview slot is booked")
	}
	return slots[0].StartsAt.UTC(), nil
}

// rescoreIfStale recomputes the cached priority score when the snapshot changed since it was scored.
func (m *ApplicationStateMachine) rescoreIfStale(app *models.Application) error {
	if !app.ScoreStale() {
		return nil
	}
	score, err := m.scorer.ScoreSnapshot(app.ApplicantSnapshot)
	if err != nil {
		return err
	}
	app.PriorityScore = score
	app.ScoredVersion = app.SnapshotVersion
	return nil
}

// appendAudit writes the audit entry. Failing to persist it aborts the unit of work.
func (m *ApplicationStateMachine) appendAudit(ctx context.Context, tx repository.Tx, applicationID, action, actor string, from *models.ApplicationStatus, to models.ApplicationStatus, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrIntegrityFault, "failed to encode audit payload")
	}
	entry := &models.AuditLog{
		ApplicationID: applicationID,
		Action:        action,
		Actor:         actor,
		FromStatus:    from,
		ToStatus:      to,
		Payload:       raw,
		CreatedAt:     m.now(),
	}
	if err := tx.AppendAuditLog(ctx, entry); err != nil {
		m.logger.Error("audit write failed", zap.String("application_id", applicationID), zap.String("action", action), zap.Error(err))
		return appErrors.WrapAs(err, appErrors.ErrIntegrityFault, "failed to persist audit entry")
	}
	return nil
}

func cleanDocuments(docs []string) []string {
	out := make([]string, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		doc = strings.TrimSpace(doc)
		if doc == "" {
			continue
		}
		if _, ok := seen[doc]; ok {
			continue
		}
		seen[doc] = struct{}{}
		out = append(out, doc)
	}
	return out
}
