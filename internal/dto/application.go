package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// SubmitApplicationRequest creates an application at submission time.
type SubmitApplicationRequest struct {
	OfferingID          string          `json:"offeringId" validate:"required"`
	ApplicantID         string          `json:"applicantId" validate:"required"`
	FullName            string          `json:"fullName" validate:"required,max=200"`
	FacultyID           string          `json:"facultyId" validate:"omitempty,max=64"`
	GPA                 float64         `json:"gpa" validate:"gte=0,lte=4"`
	MonthlyFamilyIncome decimal.Decimal `json:"monthlyFamilyIncome"`
	ActivityCount       int             `json:"activityCount" validate:"gte=0"`
}

// UpdateSnapshotRequest corrects applicant data (GPA update, income correction).
type UpdateSnapshotRequest struct {
	FullName            *string          `json:"fullName" validate:"omitempty,max=200"`
	FacultyID           *string          `json:"facultyId" validate:"omitempty,max=64"`
	GPA                 *float64         `json:"gpa" validate:"omitempty,gte=0,lte=4"`
	MonthlyFamilyIncome *decimal.Decimal `json:"monthlyFamilyIncome"`
	ActivityCount       *int             `json:"activityCount" validate:"omitempty,gte=0"`
	Reason              string           `json:"reason" validate:"required"`
}

// ReviewApplicationRequest carries a reviewer decision.
type ReviewApplicationRequest struct {
	Status           models.ApplicationStatus `json:"status" validate:"required"`
	Notes            string                   `json:"notes" validate:"max=2000"`
	InterviewDate    *time.Time               `json:"interviewDate"`
	RejectionReason  string                   `json:"rejectionReason" validate:"max=2000"`
	MissingDocuments []string                 `json:"missingDocuments" validate:"omitempty,dive,max=200"`
}

// OverrideRequest reopens a terminal application.
type OverrideRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// ApplicationQuery mirrors supported listing filters.
type ApplicationQuery struct {
	Status          []models.ApplicationStatus
	OfferingID      string
	FacultyID       string
	Priority        models.PriorityBand
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

// ScoreBreakdown exposes the sub-scores behind a priority score.
type ScoreBreakdown struct {
	Academic  float64 `json:"academic"`
	Financial float64 `json:"financial"`
	Activity  float64 `json:"activity"`
	Composite float64 `json:"composite"`
}
