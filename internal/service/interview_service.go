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

// Interview operation labels.
const (
	interviewOpBook       = "book"
	interviewOpConfirm    = "confirm"
	interviewOpComplete   = "complete"
	interviewOpResult     = "result"
	interviewOpCancel     = "cancel"
	interviewOpNoShow     = "no_show"
	interviewOpReschedule = "reschedule"
	interviewOpAnnotate   = "annotate"
)

const (
	minSlotMinutes = 1
	maxSlotMinutes = 480
)

// bookableStatuses are the application statuses that accept a new interview booking.
var bookableStatuses = map[models.ApplicationStatus]bool{
	models.ApplicationStatusSubmitted:       true,
	models.ApplicationStatusUnderReview:     true,
	models.ApplicationStatusDocumentPending: true,
}

// slotTransitions is the interview slot lifecycle edge table.
var slotTransitions = map[models.SlotStatus][]models.SlotStatus{
	models.SlotStatusScheduled: {
		models.SlotStatusConfirmed,
		models.SlotStatusCancelled,
		models.SlotStatusNoShow,
		models.SlotStatusRescheduled,
	},
	models.SlotStatusConfirmed: {
		models.SlotStatusCompleted,
		models.SlotStatusCancelled,
		models.SlotStatusNoShow,
		models.SlotStatusRescheduled,
	},
}

// InterviewScheduler books interview slots without double-booking interviewers. Bookings are
// serialized per interviewer, never across the whole calendar.
type InterviewScheduler struct {
	store     repository.Store
	machine   *ApplicationStateMachine
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewInterviewScheduler constructs the scheduler.
func NewInterviewScheduler(store repository.Store, machine *ApplicationStateMachine, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *InterviewScheduler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterviewScheduler{
		store:     store,
		machine:   machine,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Book reserves a slot for an application.
func (s *InterviewScheduler) Book(ctx context.Context, req dto.BookInterviewRequest, actor string) (slot *models.InterviewSlot, err error) {
	defer func() { s.metrics.RecordInterviewOperation(interviewOpBook, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	panel, err := buildPanel(req.InterviewerIDs, req.PrimaryInterviewer)
	if err != nil {
		return nil, err
	}
	if err := validateDuration(req.DurationMinutes); err != nil {
		return nil, err
	}
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "location is required")
	}

	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		app, err := tx.LockApplication(ctx, req.ApplicationID)
		if err != nil {
			return applicationLookupError(err)
		}
		if app.Archived() {
			return appErrors.Clone(appErrors.ErrConflict, "application is archived")
		}
		if !bookableStatuses[app.Status] {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("applications in %s cannot book an interview", app.Status))
		}
		slot = &models.InterviewSlot{
			ApplicationID:   app.ID,
			StartsAt:        req.StartsAt.UTC(),
			DurationMinutes: req.DurationMinutes,
			Location:        location,
			Status:          models.SlotStatusScheduled,
			Interviewers:    panel,
		}
		return s.reserveSlot(ctx, tx, slot)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("interview booked",
		zap.String("slot_id", slot.ID),
		zap.String("application_id", slot.ApplicationID),
		zap.Time("starts_at", slot.StartsAt),
		zap.String("actor", actor),
	)
	return slot, nil
}

// reserveSlot checks the application and panel calendars under the interviewer locks and inserts the slot.
func (s *InterviewScheduler) reserveSlot(ctx context.Context, tx repository.Tx, slot *models.InterviewSlot) error {
	active, err := tx.ActiveSlotsForApplication(ctx, slot.ApplicationID)
	if err != nil {
		return asAppError(err, "failed to load interview slots")
	}
	if len(active) > 0 {
		return appErrors.Clone(appErrors.ErrSlotConflict, fmt.Sprintf("application already has active slot %s", active[0].ID))
	}

	ids := make([]string, 0, len(slot.Interviewers))
	for _, iv := range slot.Interviewers {
		ids = append(ids, iv.InterviewerID)
	}
	if err := tx.LockInterviewers(ctx, ids); err != nil {
		return asAppError(err, "failed to lock interviewer calendars")
	}
	overlapping, err := tx.OverlappingActiveSlots(ctx, ids, slot.StartsAt, slot.EndsAt())
	if err != nil {
		return asAppError(err, "failed to check interviewer calendars")
	}
	if len(overlapping) > 0 {
		busy := overlapping[0]
		return appErrors.Clone(appErrors.ErrSlotConflict, fmt.Sprintf(
			"interviewer already booked from %s to %s", busy.StartsAt.Format(time.RFC3339), busy.EndsAt().Format(time.RFC3339)))
	}

	now := s.now()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	if err := tx.InsertSlot(ctx, slot); err != nil {
		return asAppError(err, "failed to book interview slot")
	}
	return nil
}

// Confirm marks a scheduled slot as confirmed.
func (s *InterviewScheduler) Confirm(ctx context.Context, slotID string) (slot *models.InterviewSlot, err error) {
	defer func() { s.metrics.RecordInterviewOperation(interviewOpConfirm, err) }()
	return s.moveSlot(ctx, slotID, models.SlotStatusConfirmed, nil)
}

// Complete closes a confirmed slot, optionally with the panel result.
func (s *InterviewScheduler) Complete(ctx context.Context, slotID string, req dto.CompleteInterviewRequest, actor string) (slot *models.InterviewSlot, err error) {
	defer func() { s.metrics.RecordInterviewOperation(interviewOpComplete, err) }()

	var result *models.InterviewResult
	if req.Result != nil {
		if result, err = s.newResult(*req.Result, actor); err != nil {
			return nil, err
		}
	}
	return s.moveSlot(ctx, slotID, models.SlotStatusCompleted, func(slot *models.InterviewSlot) error {
		slot.Result = result
		return nil
	})
}

// Cancel cancels an active slot and frees its interviewers.
func (s *InterviewScheduler) Cancel(ctx context.Context, slotID string) (slot *models.InterviewSlot, err error) {
	defer func() { s.metrics.RecordInterviewOperation(interviewOpCancel, err) }()
	return s.moveSlot(ctx, slotID, models.SlotStatusCancelled, nil)
}

// NoShow records that the applicant missed an active slot.
func (s *InterviewScheduler) NoShow(ctx context.Context, slotID string) (slot *models.InterviewSlot, err error) {
	defer func() { s.metrics.RecordInterviewOperation(interviewOpNoShow, err) }()
	return s.moveSlot(ctx, slotID, models.SlotStatusNoShow, nil)
}

// RecordResult attaches the panel result to a completed slot. Results are written once.
func (s *InterviewScheduler) RecordResult(ctx context.Context, slotID string, req dto.InterviewResultRequest, actor string) (slot *models.InterviewSlot, err error) {
	defer func() { s.metrics.RecordInterviewOperation(interviewOpResult, err) }()

	result, err := s.newResult(req, actor)
	if err != nil {
		return nil, err
	}
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		slot, err = tx.LockSlot(ctx, slotID)
		if err != nil {
			return slotLookupError(err)
		}
		if slot.Status != models.SlotStatusCompleted {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("results are recorded on completed slots, slot is %s", slot.Status))
		}
		if slot.Result != nil {
			return appErrors.Clone(appErrors.ErrConflict, "interview result is already recorded, add an annotation to correct it")
		}
		slot.Result = result
		slot.UpdatedAt = s.now()
		if err := tx.UpdateSlot(ctx, slot); err != nil {
			return asAppError(err, "failed to record interview result")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// Reschedule retires an active slot as rescheduled and books its replacement in one unit of work.
func (s *InterviewScheduler) Reschedule(ctx context.Context, slotID string, req dto.RescheduleInterviewRequest, actor string) (next *models.InterviewSlot, err error) {
	defer func() { s.metrics.RecordInterviewOperation(interviewOpReschedule, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	current, err := s.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, slotLookupError(err)
	}

	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		app, err := tx.LockApplication(ctx, current.ApplicationID)
		if err != nil {
			return applicationLookupError(err)
		}
		if app.Archived() {
			return appErrors.Clone(appErrors.ErrConflict, "application is archived")
		}
		if !bookableStatuses[app.Status] && app.Status != models.ApplicationStatusInterviewScheduled {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("applications in %s cannot be rescheduled", app.Status))
		}
		old, err := tx.LockSlot(ctx, slotID)
		if err != nil {
			return slotLookupError(err)
		}
		if !slotMoveAllowed(old.Status, models.SlotStatusRescheduled) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot reschedule a %s slot", old.Status))
		}

		next = &models.InterviewSlot{
			ApplicationID:   old.ApplicationID,
			StartsAt:        req.StartsAt.UTC(),
			DurationMinutes: old.DurationMinutes,
			Location:        old.Location,
			Status:          models.SlotStatusScheduled,
			RescheduledFrom: &old.ID,
			Interviewers:    append([]models.SlotInterviewer(nil), old.Interviewers...),
		}
		if req.DurationMinutes != 0 {
			next.DurationMinutes = req.DurationMinutes
		}
		if location := strings.TrimSpace(req.Location); location != "" {
			next.Location = location
		}
		if len(req.InterviewerIDs) > 0 {
			if next.Interviewers, err = buildPanel(req.InterviewerIDs, req.PrimaryInterviewer); err != nil {
				return err
			}
		} else if req.PrimaryInterviewer != "" {
			ids := make([]string, 0, len(old.Interviewers))
			for _, iv := range old.Interviewers {
				ids = append(ids, iv.InterviewerID)
			}
			if next.Interviewers, err = buildPanel(ids, req.PrimaryInterviewer); err != nil {
				return err
			}
		}
		if err := validateDuration(next.DurationMinutes); err != nil {
			return err
		}

		old.Status = models.SlotStatusRescheduled
		old.UpdatedAt = s.now()
		if err := tx.UpdateSlot(ctx, old); err != nil {
			return asAppError(err, "failed to retire interview slot")
		}
		if err := s.reserveSlot(ctx, tx, next); err != nil {
			return err
		}

		if app.Status == models.ApplicationStatusInterviewScheduled {
			previous := app.InterviewDate
			date := next.StartsAt
			app.InterviewDate = &date
			app.UpdatedAt = s.now()
			if err := tx.UpdateApplication(ctx, app); err != nil {
				return asAppError(err, "failed to update interview date")
			}
			status := app.Status
			return s.machine.appendAudit(ctx, tx, app.ID, models.AuditActionReschedule, actor, &status, status, map[string]interface{}{
				"fromSlot":      old.ID,
				"toSlot":        next.ID,
				"previousDate":  previous,
				"interviewDate": date,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("interview rescheduled",
		zap.String("from_slot_id", slotID),
		zap.String("slot_id", next.ID),
		zap.Time("starts_at", next.StartsAt),
		zap.String("actor", actor),
	)
	return next, nil
}

// Annotate appends an administrative note. Notes are the only way to correct a recorded result.
func (s *InterviewScheduler) Annotate(ctx context.Context, slotID string, req dto.AnnotateInterviewRequest, actor string) (slot *models.InterviewSlot, err error) {
	defer func() { s.metrics.RecordInterviewOperation(interviewOpAnnotate, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid annotation payload")
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "note is required")
	}
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		slot, err = tx.LockSlot(ctx, slotID)
		if err != nil {
			return slotLookupError(err)
		}
		annotation := &models.SlotAnnotation{SlotID: slot.ID, Actor: actor, Note: note, CreatedAt: s.now()}
		if err := tx.AppendSlotAnnotation(ctx, annotation); err != nil {
			return asAppError(err, "failed to annotate interview slot")
		}
		slot.Annotations = append(slot.Annotations, *annotation)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// Get returns a slot with its panel and annotations.
func (s *InterviewScheduler) Get(ctx context.Context, slotID string) (*models.InterviewSlot, error) {
	slot, err := s.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, slotLookupError(err)
	}
	return slot, nil
}

// ListByApplication returns every slot ever booked for an application, including deleted ones.
func (s *InterviewScheduler) ListByApplication(ctx context.Context, applicationID string) ([]models.InterviewSlot, error) {
	slots, err := s.store.ListSlotsByApplication(ctx, applicationID)
	if err != nil {
		return nil, asAppError(err, "failed to list interview slots")
	}
	if len(slots) == 0 {
		if _, err := s.store.GetApplication(ctx, applicationID); err != nil {
			return nil, applicationLookupError(err)
		}
	}
	return slots, nil
}

func (s *InterviewScheduler) moveSlot(ctx context.Context, slotID string, to models.SlotStatus, mutate func(*models.InterviewSlot) error) (*models.InterviewSlot, error) {
	var slot *models.InterviewSlot
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		slot, err = tx.LockSlot(ctx, slotID)
		if err != nil {
			return slotLookupError(err)
		}
		if !slotMoveAllowed(slot.Status, to) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move interview slot from %s to %s", slot.Status, to))
		}
		if mutate != nil {
			if err := mutate(slot); err != nil {
				return err
			}
		}
		slot.Status = to
		slot.UpdatedAt = s.now()
		if err := tx.UpdateSlot(ctx, slot); err != nil {
			return asAppError(err, "failed to update interview slot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func (s *InterviewScheduler) newResult(req dto.InterviewResultRequest, actor string) (*models.InterviewResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid interview result")
	}
	if !req.Recommendation.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown recommendation %q", req.Recommendation))
	}
	return &models.InterviewResult{
		Score:          req.Score,
		Recommendation: req.Recommendation,
		SubmittedBy:    actor,
		SubmittedAt:    s.now(),
	}, nil
}

func slotMoveAllowed(from, to models.SlotStatus) bool {
	for _, next := range slotTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// buildPanel dedupes interviewer ids in order and marks exactly one primary: the named one, else the first.
func buildPanel(ids []string, primary string) ([]models.SlotInterviewer, error) {
	primary = strings.TrimSpace(primary)
	panel := make([]models.SlotInterviewer, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		panel = append(panel, models.SlotInterviewer{InterviewerID: id})
	}
	if len(panel) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one interviewer is required")
	}
	if primary == "" {
		panel[0].Primary = true
		return panel, nil
	}
	for i := range panel {
		if panel[i].InterviewerID == primary {
			panel[i].Primary = true
			return panel, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "primary interviewer must sit on the panel")
}

func validateDuration(minutes int) error {
	if minutes < minSlotMinutes || minutes > maxSlotMinutes {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duration must be between %d and %d minutes", minSlotMinutes, maxSlotMinutes))
	}
	return nil
}
