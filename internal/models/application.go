package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ApplicationStatus enumerates the review lifecycle of an application.
type ApplicationStatus string

const (
	ApplicationStatusDraft              ApplicationStatus = "draft"
	ApplicationStatusSubmitted          ApplicationStatus = "submitted"
	ApplicationStatusUnderReview        ApplicationStatus = "under_review"
	ApplicationStatusApproved           ApplicationStatus = "approved"
	ApplicationStatusRejected           ApplicationStatus = "rejected"
	ApplicationStatusInterviewScheduled ApplicationStatus = "interview_scheduled"
	ApplicationStatusDocumentPending    ApplicationStatus = "document_pending"
)

var applicationStatusLabels = map[ApplicationStatus]string{
	ApplicationStatusDraft:              "Draft",
	ApplicationStatusSubmitted:          "Submitted",
	ApplicationStatusUnderReview:        "Under review",
	ApplicationStatusApproved:           "Approved",
	ApplicationStatusRejected:           "Rejected",
	ApplicationStatusInterviewScheduled: "Interview scheduled",
	ApplicationStatusDocumentPending:    "Documents pending",
}

// ParseApplicationStatus normalises raw input into a known status.
func ParseApplicationStatus(raw string) (ApplicationStatus, bool) {
	status := ApplicationStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := applicationStatusLabels[status]
	return status, ok
}

// Valid reports whether the status is part of the lifecycle.
func (s ApplicationStatus) Valid() bool {
	_, ok := applicationStatusLabels[s]
	return ok
}

// Terminal reports whether the status ends the review cycle.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusRejected
}

// Pending reports whether the application still awaits a reviewer decision.
func (s ApplicationStatus) Pending() bool {
	switch s {
	case ApplicationStatusSubmitted, ApplicationStatusUnderReview, ApplicationStatusDocumentPending:
		return true
	default:
		return false
	}
}

// Label returns the display label used by the console badges.
func (s ApplicationStatus) Label() string {
	if label, ok := applicationStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ApplicantSnapshot is the applicant data an application was scored on.
type ApplicantSnapshot struct {
	FullName            string          `db:"applicant_name" json:"fullName"`
	FacultyID           string          `db:"faculty_id" json:"facultyId"`
	GPA                 float64         `db:"gpa" json:"gpa"`
	MonthlyFamilyIncome decimal.Decimal `db:"monthly_family_income" json:"monthlyFamilyIncome"`
	ActivityCount       int             `db:"activity_count" json:"activityCount"`
}

// Application is a scholarship application moving through review.
type Application struct {
	ID          string `db:"id" json:"id"`
	OfferingID  string `db:"offering_id" json:"offeringId"`
	ApplicantID string `db:"applicant_id" json:"applicantId"`
	ApplicantSnapshot
	SnapshotVersion  int               `db:"snapshot_version" json:"snapshotVersion"`
	Status           ApplicationStatus `db:"status" json:"status"`
	PriorityScore    float64           `db:"priority_score" json:"priorityScore"`
	ScoredVersion    int               `db:"scored_version" json:"-"`
	ReviewerNotes    string            `db:"reviewer_notes" json:"reviewerNotes"`
	InterviewDate    *time.Time        `db:"interview_date" json:"interviewDate,omitempty"`
	RejectionReason  *string           `db:"rejection_reason" json:"rejectionReason,omitempty"`
	MissingDocuments pq.StringArray    `db:"missing_documents" json:"missingDocuments,omitempty"`
	SubmittedAt      time.Time         `db:"submitted_at" json:"submittedAt"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updatedAt"`
	ArchivedAt       *time.Time        `db:"archived_at" json:"archivedAt,omitempty"`
}

// ScoreStale reports whether the cached priority score predates the snapshot.
func (a *Application) ScoreStale() bool {
	return a.ScoredVersion != a.SnapshotVersion
}

// Archived reports whether the application is frozen for reporting.
func (a *Application) Archived() bool {
	return a.ArchivedAt != nil
}

// PriorityBand buckets priority scores for triage filters.
type PriorityBand string

const (
	PriorityBandHigh   PriorityBand = "high"
	PriorityBandMedium PriorityBand = "medium"
	PriorityBandLow    PriorityBand = "low"
)

// Bounds returns the half-open score interval [min, max) covered by the band.
func (b PriorityBand) Bounds() (min, max float64, ok bool) {
	switch b {
	case PriorityBandHigh:
		return 80, 100.01, true
	case PriorityBandMedium:
		return 60, 80, true
	case PriorityBandLow:
		return 0, 60, true
	default:
		return 0, 0, false
	}
}

// Sortable application columns.
const (
	ApplicationSortSubmittedAt = "submitted_at"
	ApplicationSortPriority    = "priority_score"
	ApplicationSortGPA         = "gpa"
	ApplicationSortIncome      = "income"
)

// ApplicationFilter constrains listing queries.
type ApplicationFilter struct {
	Status          []ApplicationStatus
	OfferingID      string
	FacultyID       string
	Priority        PriorityBand
	GPAMin          *float64
	GPAMax          *float64
	IncomeMin       *decimal.Decimal
	IncomeMax       *decimal.Decimal
	IncludeArchived bool
	SortBy          string
	SortOrder       string
	Page            int
	PageSize        int
}

// ApplicationStats is the review dashboard aggregate.
type ApplicationStats struct {
	Total       int       `db:"total" json:"total"`
	Pending     int       `db:"pending" json:"pending"`
	Interview   int       `db:"interview" json:"interview"`
	Approved    int       `db:"approved" json:"approved"`
	Rejected    int       `db:"rejected" json:"rejected"`
	Overdue     int       `db:"overdue" json:"overdue"`
	GeneratedAt time.Time `db:"-" json:"generatedAt"`
}
