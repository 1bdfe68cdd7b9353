package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OfferingStatus captures the lifecycle of a scholarship offering.
type OfferingStatus string

const (
	OfferingStatusDraft     OfferingStatus = "draft"
	OfferingStatusOpen      OfferingStatus = "open"
	OfferingStatusClosed    OfferingStatus = "closed"
	OfferingStatusSuspended OfferingStatus = "suspended"
)

// Valid reports whether the status is a known offering status.
func (s OfferingStatus) Valid() bool {
	switch s {
	case OfferingStatusDraft, OfferingStatusOpen, OfferingStatusClosed, OfferingStatusSuspended:
		return true
	default:
		return false
	}
}

// ScholarshipOffering is a scholarship program opened for an academic term.
type ScholarshipOffering struct {
	ID                string          `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	FacultyID         string          `db:"faculty_id" json:"facultyId,omitempty"`
	AwardAmount       decimal.Decimal `db:"award_amount" json:"awardAmount"`
	TotalBudget       decimal.Decimal `db:"total_budget" json:"totalBudget"`
	TotalQuota        int             `db:"total_quota" json:"totalQuota"`
	AcademicYear      string          `db:"academic_year" json:"academicYear"`
	Semester          int             `db:"semester" json:"semester"`
	WindowStart       time.Time       `db:"window_start" json:"windowStart"`
	WindowEnd         time.Time       `db:"window_end" json:"windowEnd"`
	InterviewRequired bool            `db:"interview_required" json:"interviewRequired"`
	Status            OfferingStatus  `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
	ArchivedAt        *time.Time      `db:"archived_at" json:"archivedAt,omitempty"`
}

// AcceptsApplications reports whether submissions are allowed at the given instant.
func (o *ScholarshipOffering) AcceptsApplications(at time.Time) bool {
	if o.Status != OfferingStatusOpen || o.ArchivedAt != nil {
		return false
	}
	return !at.Before(o.WindowStart) && at.Before(o.WindowEnd)
}

// OfferingFilter constrains offering listings.
type OfferingFilter struct {
	Status       []OfferingStatus
	AcademicYear string
	Semester     int
}

// Allocation is the budget and quota ledger of one offering.
type Allocation struct {
	OfferingID      string          `db:"offering_id"`
	TotalBudget     decimal.Decimal `db:"total_budget"`
	TotalQuota      int             `db:"total_quota"`
	AllocatedAmount decimal.Decimal `db:"allocated_amount"`
	AllocatedQuota  int             `db:"allocated_quota"`
	Version         int64           `db:"version"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
	ArchivedAt      *time.Time      `db:"archived_at"`
}

// RemainingBudget is the uncommitted budget.
func (a *Allocation) RemainingBudget() decimal.Decimal {
	return a.TotalBudget.Sub(a.AllocatedAmount)
}

// RemainingQuota is the number of awards still available.
func (a *Allocation) RemainingQuota() int {
	return a.TotalQuota - a.AllocatedQuota
}

// CanReserve reports whether both remainders cover the requested draw.
func (a *Allocation) CanReserve(amount decimal.Decimal, units int) bool {
	return a.RemainingBudget().GreaterThanOrEqual(amount) && a.RemainingQuota() >= units
}

// Consistent reports whether the ledger satisfies its non-negativity invariants.
func (a *Allocation) Consistent() bool {
	return !a.AllocatedAmount.IsNegative() &&
		a.AllocatedQuota >= 0 &&
		!a.RemainingBudget().IsNegative() &&
		a.RemainingQuota() >= 0
}

// MarshalJSON includes the derived remainders.
func (a Allocation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OfferingID      string          `json:"offeringId"`
		TotalBudget     decimal.Decimal `json:"totalBudget"`
		TotalQuota      int             `json:"totalQuota"`
		AllocatedAmount decimal.Decimal `json:"allocatedAmount"`
		AllocatedQuota  int             `json:"allocatedQuota"`
		RemainingBudget decimal.Decimal `json:"remainingBudget"`
		RemainingQuota  int             `json:"remainingQuota"`
		UpdatedAt       time.Time       `json:"updatedAt"`
		ArchivedAt      *time.Time      `json:"archivedAt,omitempty"`
	}{
		OfferingID:      a.OfferingID,
		TotalBudget:     a.TotalBudget,
		TotalQuota:      a.TotalQuota,
		AllocatedAmount: a.AllocatedAmount,
		AllocatedQuota:  a.AllocatedQuota,
		RemainingBudget: a.RemainingBudget(),
		RemainingQuota:  a.RemainingQuota(),
		UpdatedAt:       a.UpdatedAt,
		ArchivedAt:      a.ArchivedAt,
	})
}
