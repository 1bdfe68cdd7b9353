package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/scholarship-api/internal/models"
)

const slotColumns = `s.id, s.application_id, s.starts_at, s.duration_minutes, s.location, s.status, s.rescheduled_from,
       s.result_score, s.result_recommendation, s.result_submitted_by, s.result_submitted_at, s.created_at, s.updated_at`

type slotRow struct {
	ID                   string         `db:"id"`
	ApplicationID        string         `db:"application_id"`
	StartsAt             time.Time      `db:"starts_at"`
	DurationMinutes      int            `db:"duration_minutes"`
	Location             string         `db:"location"`
	Status               string         `db:"status"`
	RescheduledFrom      sql.NullString `db:"rescheduled_from"`
	ResultScore          sql.NullInt64  `db:"result_score"`
	ResultRecommendation sql.NullString `db:"result_recommendation"`
	ResultSubmittedBy    sql.NullString `db:"result_submitted_by"`
	ResultSubmittedAt    sql.NullTime   `db:"result_submitted_at"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (r slotRow) toModel() models.InterviewSlot {
	slot := models.InterviewSlot{
		ID:              r.ID,
		ApplicationID:   r.ApplicationID,
		StartsAt:        r.StartsAt,
		DurationMinutes: r.DurationMinutes,
		Location:        r.Location,
		Status:          models.SlotStatus(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.RescheduledFrom.Valid {
		from := r.RescheduledFrom.String
		slot.RescheduledFrom = &from
	}
	if r.ResultScore.Valid {
		slot.Result = &models.InterviewResult{
			Score:          int(r.ResultScore.Int64),
			Recommendation: models.Recommendation(r.ResultRecommendation.String),
			SubmittedBy:    r.ResultSubmittedBy.String,
			SubmittedAt:    r.ResultSubmittedAt.Time,
		}
	}
	return slot
}

func slotArgs(slot *models.InterviewSlot) []interface{} {
	var (
		score          sql.NullInt64
		recommendation sql.NullString
		submittedBy    sql.NullString
		submittedAt    sql.NullTime
	)
	if slot.Result != nil {
		score = sql.NullInt64{Int64: int64(slot.Result.Score), Valid: true}
		recommendation = sql.NullString{String: string(slot.Result.Recommendation), Valid: true}
		submittedBy = sql.NullString{String: slot.Result.SubmittedBy, Valid: true}
		submittedAt = sql.NullTime{Time: slot.Result.SubmittedAt, Valid: true}
	}
	return []interface{}{
		slot.ID, slot.ApplicationID, slot.StartsAt, slot.DurationMinutes, slot.EndsAt(), slot.Location,
		slot.Status, slot.RescheduledFrom, score, recommendation, submittedBy, submittedAt,
		slot.CreatedAt, slot.UpdatedAt,
	}
}

// GetSlot fetches a slot with its panel and annotations.
func (q queries) GetSlot(ctx context.Context, id string) (*models.InterviewSlot, error) {
	slots, err := q.selectSlots(ctx, `SELECT `+slotColumns+` FROM interview_slots s WHERE s.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, sql.ErrNoRows
	}
	return &slots[0], nil
}

// ListSlotsByApplication returns every slot of an application, earliest first.
func (q queries) ListSlotsByApplication(ctx context.Context, applicationID string) ([]models.InterviewSlot, error) {
	return q.selectSlots(ctx,
		`SELECT `+slotColumns+` FROM interview_slots s WHERE s.application_id = $1 ORDER BY s.starts_at ASC, s.id ASC`,
		applicationID)
}

func (q queries) selectSlots(ctx context.Context, query string, args ...interface{}) ([]models.InterviewSlot, error) {
	var rows []slotRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select interview slots: %w", err)
	}
	slots := make([]models.InterviewSlot, len(rows))
	if len(rows) == 0 {
		return slots, nil
	}
	ids := make([]string, len(rows))
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		slots[i] = row.toModel()
		ids[i] = row.ID
		index[row.ID] = i
	}

	var interviewers []models.SlotInterviewer
	const panelQuery = `SELECT slot_id, interviewer_id, is_primary FROM interview_slot_interviewers
	WHERE slot_id = ANY($1) ORDER BY is_primary DESC, interviewer_id ASC`
	if err := sqlx.SelectContext(ctx, q.ext, &interviewers, panelQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("select slot interviewers: %w", err)
	}
	for _, iv := range interviewers {
		i := index[iv.SlotID]
		slots[i].Interviewers = append(slots[i].Interviewers, iv)
	}

	var annotations []models.SlotAnnotation
	const noteQuery = `SELECT id, slot_id, actor, note, created_at FROM interview_slot_annotations
	WHERE slot_id = ANY($1) ORDER BY created_at ASC, id ASC`
	if err := sqlx.SelectContext(ctx, q.ext, &annotations, noteQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("select slot annotations: %w", err)
	}
	for _, note := range annotations {
		i := index[note.SlotID]
		slots[i].Annotations = append(slots[i].Annotations, note)
	}
	return slots, nil
}

// LockSlot loads the slot and holds its row lock.
func (t *pgTx) LockSlot(ctx context.Context, id string) (*models.InterviewSlot, error) {
	slots, err := t.selectSlots(ctx, `SELECT `+slotColumns+` FROM interview_slots s WHERE s.id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, sql.ErrNoRows
	}
	return &slots[0], nil
}

// LockInterviewers serialises calendar changes per interviewer with transaction-scoped advisory locks.
// Locks are taken in ascending id order.
func (t *pgTx) LockInterviewers(ctx context.Context, interviewerIDs []string) error {
	for _, id := range sortedUnique(interviewerIDs) {
		if _, err := t.ext.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('interviewer:' || $1, 0))`, id); err != nil {
			return fmt.Errorf("lock interviewer %s: %w", id, err)
		}
	}
	return nil
}

// ActiveSlotsForApplication returns the scheduled or confirmed slots of an application.
func (t *pgTx) ActiveSlotsForApplication(ctx context.Context, applicationID string) ([]models.InterviewSlot, error) {
	return t.selectSlots(ctx,
		`SELECT `+slotColumns+` FROM interview_slots s
		WHERE s.application_id = $1 AND s.status IN ('scheduled', 'confirmed') ORDER BY s.starts_at ASC`,
		applicationID)
}

// OverlappingActiveSlots returns active slots staffed by any of the interviewers that intersect [start, end).
func (t *pgTx) OverlappingActiveSlots(ctx context.Context, interviewerIDs []string, start, end time.Time) ([]models.InterviewSlot, error) {
	if len(interviewerIDs) == 0 {
		return nil, nil
	}
	return t.selectSlots(ctx,
		`SELECT `+slotColumns+` FROM interview_slots s
		WHERE s.status IN ('scheduled', 'confirmed')
		  AND s.starts_at < $2 AND s.ends_at > $1
		  AND EXISTS (SELECT 1 FROM interview_slot_interviewers i WHERE i.slot_id = s.id AND i.interviewer_id = ANY($3))
		ORDER BY s.starts_at ASC`,
		start, end, pq.Array(interviewerIDs))
}

// InsertSlot stores a slot and its panel.
func (t *pgTx) InsertSlot(ctx context.Context, slot *models.InterviewSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = slot.CreatedAt

	const query = `INSERT INTO interview_slots
	(id, application_id, starts_at, duration_minutes, ends_at, location, status, rescheduled_from,
	 result_score, result_recommendation, result_submitted_by, result_submitted_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	if _, err := t.ext.ExecContext(ctx, query, slotArgs(slot)...); err != nil {
		return fmt.Errorf("insert interview slot: %w", err)
	}

	const panelQuery = `INSERT INTO interview_slot_interviewers (slot_id, interviewer_id, is_primary) VALUES ($1, $2, $3)`
	for i := range slot.Interviewers {
		slot.Interviewers[i].SlotID = slot.ID
		iv := slot.Interviewers[i]
		if _, err := t.ext.ExecContext(ctx, panelQuery, slot.ID, iv.InterviewerID, iv.Primary); err != nil {
			return fmt.Errorf("insert slot interviewer: %w", err)
		}
	}
	return nil
}

// UpdateSlot persists status and result changes. The panel of a slot is fixed at booking.
func (t *pgTx) UpdateSlot(ctx context.Context, slot *models.InterviewSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE interview_slots SET
	application_id = $2, starts_at = $3, duration_minutes = $4, ends_at = $5, location = $6, status = $7,
	rescheduled_from = $8, result_score = $9, result_recommendation = $10, result_submitted_by = $11,
	result_submitted_at = $12, created_at = $13, updated_at = $14
	WHERE id = $1`
	result, err := t.ext.ExecContext(ctx, query, slotArgs(slot)...)
	if err != nil {
		return fmt.Errorf("update interview slot: %w", err)
	}
	return expectOneRow(result, "update interview slot")
}

// AppendSlotAnnotation records an administrative note against a slot.
func (t *pgTx) AppendSlotAnnotation(ctx context.Context, annotation *models.SlotAnnotation) error {
	if annotation.ID == "" {
		annotation.ID = uuid.NewString()
	}
	if annotation.CreatedAt.IsZero() {
		annotation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO interview_slot_annotations (id, slot_id, actor, note, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := t.ext.ExecContext(ctx, query, annotation.ID, annotation.SlotID, annotation.Actor, annotation.Note, annotation.CreatedAt); err != nil {
		return fmt.Errorf("append slot annotation: %w", err)
	}
	return nil
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
