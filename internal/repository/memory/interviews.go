package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// GetSlot fetches a committed slot.
func (s *Store) GetSlot(ctx context.Context, id string) (*models.InterviewSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, errNotFound
	}
	clone := cloneSlot(slot)
	return &clone, nil
}

// ListSlotsByApplication returns committed slots of an application, earliest first.
func (s *Store) ListSlotsByApplication(ctx context.Context, applicationID string) ([]models.InterviewSlot, error) {
	return slotsWhere(s.snapshotSlots(), func(slot models.InterviewSlot) bool {
		return slot.ApplicationID == applicationID
	}), nil
}

func (s *Store) snapshotSlots() []models.InterviewSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.InterviewSlot, 0, len(s.slots))
	for _, slot := range s.slots {
		out = append(out, cloneSlot(slot))
	}
	return out
}

func (t *memTx) GetSlot(ctx context.Context, id string) (*models.InterviewSlot, error) {
	if staged, ok := t.slots[id]; ok {
		clone := cloneSlot(*staged)
		return &clone, nil
	}
	return t.store.GetSlot(ctx, id)
}

func (t *memTx) ListSlotsByApplication(ctx context.Context, applicationID string) ([]models.InterviewSlot, error) {
	return slotsWhere(t.slotView(), func(slot models.InterviewSlot) bool {
		return slot.ApplicationID == applicationID
	}), nil
}

func (t *memTx) slotView() []models.InterviewSlot {
	committed := t.store.snapshotSlots()
	out := make([]models.InterviewSlot, 0, len(committed)+len(t.slots))
	for _, slot := range committed {
		if _, staged := t.slots[slot.ID]; !staged {
			out = append(out, slot)
		}
	}
	for _, slot := range t.slots {
		out = append(out, cloneSlot(*slot))
	}
	return out
}

func (t *memTx) LockSlot(ctx context.Context, id string) (*models.InterviewSlot, error) {
	if err := t.lock(ctx, "slot:"+id); err != nil {
		return nil, err
	}
	return t.GetSlot(ctx, id)
}

// LockInterviewers takes one key per interviewer in ascending id order.
func (t *memTx) LockInterviewers(ctx context.Context, interviewerIDs []string) error {
	for _, id := range sortedUnique(interviewerIDs) {
		if err := t.lock(ctx, "interviewer:"+id); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) ActiveSlotsForApplication(ctx context.Context, applicationID string) ([]models.InterviewSlot, error) {
	return slotsWhere(t.slotView(), func(slot models.InterviewSlot) bool {
		return slot.ApplicationID == applicationID && slot.Status.Active()
	}), nil
}

func (t *memTx) OverlappingActiveSlots(ctx context.Context, interviewerIDs []string, start, end time.Time) ([]models.InterviewSlot, error) {
	return slotsWhere(t.slotView(), func(slot models.InterviewSlot) bool {
		if !slot.Status.Active() || !slot.Overlaps(start, end) {
			return false
		}
		for _, id := range interviewerIDs {
			if slot.HasInterviewer(id) {
				return true
			}
		}
		return false
	}), nil
}

func (t *memTx) InsertSlot(ctx context.Context, slot *models.InterviewSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if _, err := t.GetSlot(ctx, slot.ID); err == nil {
		return appErrors.Clone(appErrors.ErrConflict, "slot already exists")
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = t.store.now()
	}
	slot.UpdatedAt = slot.CreatedAt
	for i := range slot.Interviewers {
		slot.Interviewers[i].SlotID = slot.ID
	}
	clone := cloneSlot(*slot)
	t.slots[slot.ID] = &clone
	return nil
}

func (t *memTx) UpdateSlot(ctx context.Context, slot *models.InterviewSlot) error {
	current, err := t.GetSlot(ctx, slot.ID)
	if err != nil {
		return err
	}
	slot.UpdatedAt = t.store.now()
	clone := cloneSlot(*slot)
	clone.Interviewers = current.Interviewers
	clone.Annotations = current.Annotations
	t.slots[slot.ID] = &clone
	return nil
}

func (t *memTx) AppendSlotAnnotation(ctx context.Context, annotation *models.SlotAnnotation) error {
	current, err := t.GetSlot(ctx, annotation.SlotID)
	if err != nil {
		return err
	}
	if annotation.ID == "" {
		annotation.ID = uuid.NewString()
	}
	if annotation.CreatedAt.IsZero() {
		annotation.CreatedAt = t.store.now()
	}
	current.Annotations = append(current.Annotations, *annotation)
	t.slots[current.ID] = current
	return nil
}

func slotsWhere(all []models.InterviewSlot, keep func(models.InterviewSlot) bool) []models.InterviewSlot {
	out := make([]models.InterviewSlot, 0)
	for _, slot := range all {
		if keep(slot) {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
