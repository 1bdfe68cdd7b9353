package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
)

const offeringColumns = `id, name, faculty_id, award_amount, total_budget, total_quota, academic_year, semester,
       window_start, window_end, interview_required, status, created_at, updated_at, archived_at`

const allocationColumns = `offering_id, total_budget, total_quota, allocated_amount, allocated_quota, version,
       created_at, updated_at, archived_at`

// GetOffering fetches an offering by identifier.
func (q queries) GetOffering(ctx context.Context, id string) (*models.ScholarshipOffering, error) {
	query := `SELECT ` + offeringColumns + ` FROM scholarship_offerings WHERE id = $1`
	var offering models.ScholarshipOffering
	if err := sqlx.GetContext(ctx, q.ext, &offering, query, id); err != nil {
		return nil, err
	}
	return &offering, nil
}

// ListOfferings returns offerings matching the filter, newest window first.
func (q queries) ListOfferings(ctx context.Context, filter models.OfferingFilter) ([]models.ScholarshipOffering, error) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	if filter.Semester > 0 {
		args = append(args, filter.Semester)
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)))
	}

	query := `SELECT ` + offeringColumns + ` FROM scholarship_offerings`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY window_start DESC, name ASC"

	var offerings []models.ScholarshipOffering
	if err := sqlx.SelectContext(ctx, q.ext, &offerings, query, args...); err != nil {
		return nil, fmt.Errorf("list offerings: %w", err)
	}
	return offerings, nil
}

// GetAllocation reads the ledger of an offering without locking it.
func (q queries) GetAllocation(ctx context.Context, offeringID string) (*models.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations WHERE offering_id = $1`
	var alloc models.Allocation
	if err := sqlx.GetContext(ctx, q.ext, &alloc, query, offeringID); err != nil {
		return nil, err
	}
	return &alloc, nil
}

// LockOffering loads the offering and holds its row lock.
func (t *pgTx) LockOffering(ctx context.Context, id string) (*models.ScholarshipOffering, error) {
	query := `SELECT ` + offeringColumns + ` FROM scholarship_offerings WHERE id = $1 FOR UPDATE`
	var offering models.ScholarshipOffering
	if err := sqlx.GetContext(ctx, t.ext, &offering, query, id); err != nil {
		return nil, err
	}
	return &offering, nil
}

// InsertOffering stores a draft offering.
func (t *pgTx) InsertOffering(ctx context.Context, offering *models.ScholarshipOffering) error {
	if offering.ID == "" {
		offering.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if offering.CreatedAt.IsZero() {
		offering.CreatedAt = now
	}
	offering.UpdatedAt = offering.CreatedAt
	const query = `INSERT INTO scholarship_offerings
	(id, name, faculty_id, award_amount, total_budget, total_quota, academic_year, semester, window_start, window_end,
	 interview_required, status, created_at, updated_at, archived_at)
	VALUES (:id, :name, :faculty_id, :award_amount, :total_budget, :total_quota, :academic_year, :semester, :window_start,
	 :window_end, :interview_required, :status, :created_at, :updated_at, :archived_at)`
	if _, err := sqlx.NamedExecContext(ctx, t.ext, query, offering); err != nil {
		return fmt.Errorf("insert offering: %w", err)
	}
	return nil
}

// UpdateOffering persists the mutable columns of a locked offering.
func (t *pgTx) UpdateOffering(ctx context.Context, offering *models.ScholarshipOffering) error {
	const query = `UPDATE scholarship_offerings SET
	name = :name,
	faculty_id = :faculty_id,
	award_amount = :award_amount,
	total_budget = :total_budget,
	total_quota = :total_quota,
	academic_year = :academic_year,
	semester = :semester,
	window_start = :window_start,
	window_end = :window_end,
	interview_required = :interview_required,
	status = :status,
	updated_at = :updated_at,
	archived_at = :archived_at
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, t.ext, query, offering)
	if err != nil {
		return fmt.Errorf("update offering: %w", err)
	}
	return expectOneRow(result, "update offering")
}

// LockAllocation loads the ledger row and holds its lock.
func (t *pgTx) LockAllocation(ctx context.Context, offeringID string) (*models.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations WHERE offering_id = $1 FOR UPDATE`
	var alloc models.Allocation
	if err := sqlx.GetContext(ctx, t.ext, &alloc, query, offeringID); err != nil {
		return nil, err
	}
	return &alloc, nil
}

// InsertAllocation opens the ledger of an approved offering.
func (t *pgTx) InsertAllocation(ctx context.Context, alloc *models.Allocation) error {
	now := time.Now().UTC()
	if alloc.CreatedAt.IsZero() {
		alloc.CreatedAt = now
	}
	alloc.UpdatedAt = alloc.CreatedAt
	if alloc.Version == 0 {
		alloc.Version = 1
	}
	const query = `INSERT INTO allocations
	(offering_id, total_budget, total_quota, allocated_amount, allocated_quota, version, created_at, updated_at, archived_at)
	VALUES (:offering_id, :total_budget, :total_quota, :allocated_amount, :allocated_quota, :version, :created_at, :updated_at, :archived_at)`
	if _, err := sqlx.NamedExecContext(ctx, t.ext, query, alloc); err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

// UpdateAllocation writes the ledger guarded by its version and bumps the version.
func (t *pgTx) UpdateAllocation(ctx context.Context, alloc *models.Allocation) error {
	const query = `UPDATE allocations SET
	total_budget = $1,
	total_quota = $2,
	allocated_amount = $3,
	allocated_quota = $4,
	archived_at = $5,
	updated_at = $6,
	version = version + 1
	WHERE offering_id = $7 AND version = $8`
	now := time.Now().UTC()
	result, err := t.ext.ExecContext(ctx, query,
		alloc.TotalBudget, alloc.TotalQuota, alloc.AllocatedAmount, alloc.AllocatedQuota,
		alloc.ArchivedAt, now, alloc.OfferingID, alloc.Version)
	if err != nil {
		return fmt.Errorf("update allocation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update allocation rows: %w", err)
	}
	if rows == 0 {
		return ErrStaleWrite
	}
	alloc.Version++
	alloc.UpdatedAt = now
	return nil
}
