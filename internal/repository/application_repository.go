package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
)

const applicationColumns = `id, offering_id, applicant_id, applicant_name, faculty_id, gpa, monthly_family_income,
       activity_count, snapshot_version, status, priority_score, scored_version, reviewer_notes, interview_date,
       rejection_reason, missing_documents, submitted_at, updated_at, archived_at`

var applicationSortColumns = map[string]string{
	models.ApplicationSortSubmittedAt: "submitted_at",
	models.ApplicationSortPriority:    "priority_score",
	models.ApplicationSortGPA:         "gpa",
	models.ApplicationSortIncome:      "monthly_family_income",
}

// GetApplication fetches an application by identifier.
func (q queries) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	var app models.Application
	if err := sqlx.GetContext(ctx, q.ext, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// ListApplications returns one page of applications matching the filter and the total match count.
func (q queries) ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	args := make([]interface{}, 0, 10)
	conditions := make([]string, 0, 8)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OfferingID != "" {
		args = append(args, filter.OfferingID)
		conditions = append(conditions, fmt.Sprintf("offering_id = $%d", len(args)))
	}
	if filter.FacultyID != "" {
		args = append(args, filter.FacultyID)
		conditions = append(conditions, fmt.Sprintf("faculty_id = $%d", len(args)))
	}
	if min, max, ok := filter.Priority.Bounds(); ok {
		args = append(args, min, max)
		conditions = append(conditions, fmt.Sprintf("priority_score >= $%d AND priority_score < $%d", len(args)-1, len(args)))
	}
	if filter.GPAMin != nil {
		args = append(args, *filter.GPAMin)
		conditions = append(conditions, fmt.Sprintf("gpa >= $%d", len(args)))
	}
	if filter.GPAMax != nil {
		args = append(args, *filter.GPAMax)
		conditions = append(conditions, fmt.Sprintf("gpa <= $%d", len(args)))
	}
	if filter.IncomeMin != nil {
		args = append(args, *filter.IncomeMin)
		conditions = append(conditions, fmt.Sprintf("monthly_family_income >= $%d", len(args)))
	}
	if filter.IncomeMax != nil {
		args = append(args, *filter.IncomeMax)
		conditions = append(conditions, fmt.Sprintf("monthly_family_income <= $%d", len(args)))
	}
	if !filter.IncludeArchived {
		conditions = append(conditions, "archived_at IS NULL")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, q.ext, &total, "SELECT COUNT(*) FROM applications"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	column, ok := applicationSortColumns[filter.SortBy]
	if !ok {
		column = "submitted_at"
	}
	order := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		order = "ASC"
	}
	page, size := normalisePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM applications%s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d",
		applicationColumns, where, column, order, size, (page-1)*size)

	var apps []models.Application
	if err := sqlx.SelectContext(ctx, q.ext, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	return apps, total, nil
}

// ApplicationStats aggregates live (non-archived) applications by review bucket.
func (q queries) ApplicationStats(ctx context.Context, offeringID string, overdueBefore time.Time) (*models.ApplicationStats, error) {
	query := `SELECT
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE status IN ('submitted', 'under_review', 'document_pending')) AS pending,
	COUNT(*) FILTER (WHERE status = 'interview_scheduled') AS interview,
	COUNT(*) FILTER (WHERE status = 'approved') AS approved,
	COUNT(*) FILTER (WHERE status = 'rejected') AS rejected,
	COUNT(*) FILTER (WHERE status IN ('submitted', 'under_review', 'document_pending') AND submitted_at < $1) AS overdue
FROM applications
WHERE archived_at IS NULL`
	args := []interface{}{overdueBefore}
	if offeringID != "" {
		args = append(args, offeringID)
		query += " AND offering_id = $2"
	}
	var stats models.ApplicationStats
	if err := sqlx.GetContext(ctx, q.ext, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("application stats: %w", err)
	}
	return &stats, nil
}

// ListAuditLogs returns the application's trail oldest first.
func (q queries) ListAuditLogs(ctx context.Context, applicationID string) ([]models.AuditLog, error) {
	const query = `SELECT id, application_id, action, actor, from_status, to_status, payload, created_at
	FROM application_audit_logs WHERE application_id = $1 ORDER BY created_at ASC, id ASC`
	var logs []models.AuditLog
	if err := sqlx.SelectContext(ctx, q.ext, &logs, query, applicationID); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

// LockApplication loads the application and holds its row lock for the transaction.
func (t *pgTx) LockApplication(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 FOR UPDATE`
	var app models.Application
	if err := sqlx.GetContext(ctx, t.ext, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// LockApplicationsByOffering locks every application of the offering in id order.
func (t *pgTx) LockApplicationsByOffering(ctx context.Context, offeringID string) ([]string, error) {
	const query = `SELECT id FROM applications WHERE offering_id = $1 ORDER BY id ASC FOR UPDATE`
	var ids []string
	if err := sqlx.SelectContext(ctx, t.ext, &ids, query, offeringID); err != nil {
		return nil, fmt.Errorf("lock offering applications: %w", err)
	}
	return ids, nil
}

// InsertApplication stores a newly submitted application.
func (t *pgTx) InsertApplication(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.SubmittedAt
	}
	const query = `INSERT INTO applications
	(id, offering_id, applicant_id, applicant_name, faculty_id, gpa, monthly_family_income, activity_count,
	 snapshot_version, status, priority_score, scored_version, reviewer_notes, interview_date, rejection_reason,
	 missing_documents, submitted_at, updated_at, archived_at)
	VALUES (:id, :offering_id, :applicant_id, :applicant_name, :faculty_id, :gpa, :monthly_family_income, :activity_count,
	 :snapshot_version, :status, :priority_score, :scored_version, :reviewer_notes, :interview_date, :rejection_reason,
	 :missing_documents, :submitted_at, :updated_at, :archived_at)`
	if _, err := sqlx.NamedExecContext(ctx, t.ext, query, app); err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

// UpdateApplication persists the mutable columns of a locked application.
func (t *pgTx) UpdateApplication(ctx context.Context, app *models.Application) error {
	const query = `UPDATE applications SET
	applicant_name = :applicant_name,
	faculty_id = :faculty_id,
	gpa = :gpa,
	monthly_family_income = :monthly_family_income,
	activity_count = :activity_count,
	snapshot_version = :snapshot_version,
	status = :status,
	priority_score = :priority_score,
	scored_version = :scored_version,
	reviewer_notes = :reviewer_notes,
	interview_date = :interview_date,
	rejection_reason = :rejection_reason,
	missing_documents = :missing_documents,
	updated_at = :updated_at,
	archived_at = :archived_at
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, t.ext, query, app)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return expectOneRow(result, "update application")
}

// DeleteApplication hard-deletes an application row. Its audit trail is retained.
func (t *pgTx) DeleteApplication(ctx context.Context, id string) error {
	result, err := t.ext.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	return expectOneRow(result, "delete application")
}

// ArchiveApplications stamps every live application of the offering as archived.
func (t *pgTx) ArchiveApplications(ctx context.Context, offeringID string, at time.Time) (int64, error) {
	const query = `UPDATE applications SET archived_at = $2, updated_at = $2 WHERE offering_id = $1 AND archived_at IS NULL`
	result, err := t.ext.ExecContext(ctx, query, offeringID, at)
	if err != nil {
		return 0, fmt.Errorf("archive applications: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check archive rows: %w", err)
	}
	return rows, nil
}

// AppendAuditLog inserts an audit entry. Entries are never updated or deleted.
func (t *pgTx) AppendAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	payload := "{}"
	if len(log.Payload) > 0 {
		payload = string(log.Payload)
	}
	const query = `INSERT INTO application_audit_logs (id, application_id, action, actor, from_status, to_status, payload, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := t.ext.ExecContext(ctx, query, log.ID, log.ApplicationID, log.Action, log.Actor, log.FromStatus, log.ToStatus, payload, log.CreatedAt); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

func expectOneRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func normalisePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	return page, size
}
