package repository

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// ErrStaleWrite is returned when a guarded update finds the row changed underneath it.
var ErrStaleWrite = errors.New("stale write")

// Reader exposes non-locking reads of engine state.
type Reader interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	ApplicationStats(ctx context.Context, offeringID string, overdueBefore time.Time) (*models.ApplicationStats, error)
	ListAuditLogs(ctx context.Context, applicationID string) ([]models.AuditLog, error)

	GetOffering(ctx context.Context, id string) (*models.ScholarshipOffering, error)
	ListOfferings(ctx context.Context, filter models.OfferingFilter) ([]models.ScholarshipOffering, error)
	GetAllocation(ctx context.Context, offeringID string) (*models.Allocation, error)

	GetSlot(ctx context.Context, id string) (*models.InterviewSlot, error)
	ListSlotsByApplication(ctx context.Context, applicationID string) ([]models.InterviewSlot, error)
}

// Tx is one unit of work. Locks taken through it are held until commit or rollback,
// and writes become visible to other readers only on commit.
//
// Lock order: applications (ascending id), offering, allocation, slot, interviewers
// (ascending id).
type Tx interface {
	Reader

	LockApplication(ctx context.Context, id string) (*models.Application, error)
	LockApplicationsByOffering(ctx context.Context, offeringID string) ([]string, error)
	InsertApplication(ctx context.Context, app *models.Application) error
	UpdateApplication(ctx context.Context, app *models.Application) error
	DeleteApplication(ctx context.Context, id string) error
	ArchiveApplications(ctx context.Context, offeringID string, at time.Time) (int64, error)
	AppendAuditLog(ctx context.Context, log *models.AuditLog) error

	LockOffering(ctx context.Context, id string) (*models.ScholarshipOffering, error)
	InsertOffering(ctx context.Context, offering *models.ScholarshipOffering) error
	UpdateOffering(ctx context.Context, offering *models.ScholarshipOffering) error

	LockAllocation(ctx context.Context, offeringID string) (*models.Allocation, error)
	InsertAllocation(ctx context.Context, alloc *models.Allocation) error
	// UpdateAllocation persists alloc if its Version still matches the stored row,
	// then bumps Version. A mismatch yields ErrStaleWrite.
	UpdateAllocation(ctx context.Context, alloc *models.Allocation) error

	LockSlot(ctx context.Context, id string) (*models.InterviewSlot, error)
	LockInterviewers(ctx context.Context, interviewerIDs []string) error
	ActiveSlotsForApplication(ctx context.Context, applicationID string) ([]models.InterviewSlot, error)
	OverlappingActiveSlots(ctx context.Context, interviewerIDs []string, start, end time.Time) ([]models.InterviewSlot, error)
	InsertSlot(ctx context.Context, slot *models.InterviewSlot) error
	UpdateSlot(ctx context.Context, slot *models.InterviewSlot) error
	AppendSlotAnnotation(ctx context.Context, annotation *models.SlotAnnotation) error
}

// Store opens units of work and serves reads outside of them.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
