package models

import (
	"encoding/json"
	"time"
)

// AuditAction constants represent actions recorded on the application trail.
const (
	AuditActionSubmit         = "SUBMIT"
	AuditActionTransition     = "TRANSITION"
	AuditActionOverride       = "OVERRIDE"
	AuditActionSnapshotUpdate = "SNAPSHOT_UPDATE"
	AuditActionDelete         = "DELETE"
	AuditActionReschedule     = "INTERVIEW_RESCHEDULE"
)

// AuditLog is an insert-only record of a change to an application.
type AuditLog struct {
	ID            string             `db:"id" json:"id"`
	ApplicationID string             `db:"application_id" json:"applicationId"`
	Action        string             `db:"action" json:"action"`
	Actor         string             `db:"actor" json:"actor"`
	FromStatus    *ApplicationStatus `db:"from_status" json:"fromStatus,omitempty"`
	ToStatus      ApplicationStatus  `db:"to_status" json:"toStatus"`
	Payload       json.RawMessage    `db:"payload" json:"payload,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"createdAt"`
}
