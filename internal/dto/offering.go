package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// CreateOfferingRequest drafts a new scholarship offering.
type CreateOfferingRequest struct {
	Name              string          `json:"name" validate:"required,max=200"`
	FacultyID         string          `json:"facultyId" validate:"omitempty,max=64"`
	AwardAmount       decimal.Decimal `json:"awardAmount"`
	TotalBudget       decimal.Decimal `json:"totalBudget"`
	TotalQuota        int             `json:"totalQuota" validate:"gte=0"`
	AcademicYear      string          `json:"academicYear" validate:"required,max=16"`
	Semester          int             `json:"semester" validate:"required,min=1,max=3"`
	WindowStart       time.Time       `json:"windowStart" validate:"required"`
	WindowEnd         time.Time       `json:"windowEnd" validate:"required,gtfield=WindowStart"`
	InterviewRequired bool            `json:"interviewRequired"`
}

// UpdateOfferingRequest edits a draft offering or resizes an open one.
type UpdateOfferingRequest struct {
	Name              *string          `json:"name" validate:"omitempty,max=200"`
	AwardAmount       *decimal.Decimal `json:"awardAmount"`
	TotalBudget       *decimal.Decimal `json:"totalBudget"`
	TotalQuota        *int             `json:"totalQuota" validate:"omitempty,gte=0"`
	WindowStart       *time.Time       `json:"windowStart"`
	WindowEnd         *time.Time       `json:"windowEnd"`
	InterviewRequired *bool            `json:"interviewRequired"`
}

// ChangeOfferingStatusRequest moves an approved offering between open, suspended and closed.
type ChangeOfferingStatusRequest struct {
	Status models.OfferingStatus `json:"status" validate:"required"`
}

// OfferingQuery mirrors supported offering filters.
type OfferingQuery struct {
	Status       []models.OfferingStatus
	AcademicYear string
	Semester     int
}

// OfferingDetail bundles an offering with its ledger, when one exists.
type OfferingDetail struct {
	models.ScholarshipOffering
	Allocation *models.Allocation `json:"allocation,omitempty"`
}
