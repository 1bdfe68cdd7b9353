package models

import "time"

// SlotStatus captures the lifecycle of an interview slot.
type SlotStatus string

const (
	SlotStatusScheduled   SlotStatus = "scheduled"
	SlotStatusConfirmed   SlotStatus = "confirmed"
	SlotStatusCompleted   SlotStatus = "completed"
	SlotStatusCancelled   SlotStatus = "cancelled"
	SlotStatusNoShow      SlotStatus = "no_show"
	SlotStatusRescheduled SlotStatus = "rescheduled"
)

// ActiveSlotStatuses are the statuses that hold an interviewer's calendar.
var ActiveSlotStatuses = []SlotStatus{SlotStatusScheduled, SlotStatusConfirmed}

// Active reports whether the slot still blocks its interviewers and application.
func (s SlotStatus) Active() bool {
	return s == SlotStatusScheduled || s == SlotStatusConfirmed
}

// Recommendation is the interview panel's verdict.
type Recommendation string

const (
	RecommendationStronglyRecommend Recommendation = "strongly_recommend"
	RecommendationRecommend         Recommendation = "recommend"
	RecommendationNeutral           Recommendation = "neutral"
	RecommendationNotRecommend      Recommendation = "not_recommend"
)

// Valid reports whether the recommendation is a known value.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationStronglyRecommend, RecommendationRecommend, RecommendationNeutral, RecommendationNotRecommend:
		return true
	default:
		return false
	}
}

// SlotInterviewer assigns an interviewer to a slot.
type SlotInterviewer struct {
	SlotID        string `db:"slot_id" json:"-"`
	InterviewerID string `db:"interviewer_id" json:"interviewerId"`
	Primary       bool   `db:"is_primary" json:"primary"`
}

// InterviewResult is the immutable outcome of a completed interview.
type InterviewResult struct {
	Score          int            `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
	SubmittedBy    string         `json:"submittedBy"`
	SubmittedAt    time.Time      `json:"submittedAt"`
}

// SlotAnnotation is an append-only administrative note on a slot.
type SlotAnnotation struct {
	ID        string    `db:"id" json:"id"`
	SlotID    string    `db:"slot_id" json:"-"`
	Actor     string    `db:"actor" json:"actor"`
	Note      string    `db:"note" json:"note"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// InterviewSlot is an interview booked for one application.
type InterviewSlot struct {
	ID              string            `json:"id"`
	ApplicationID   string            `json:"applicationId"`
	StartsAt        time.Time         `json:"startsAt"`
	DurationMinutes int               `json:"durationMinutes"`
	Location        string            `json:"location"`
	Status          SlotStatus        `json:"status"`
	RescheduledFrom *string           `json:"rescheduledFrom,omitempty"`
	Interviewers    []SlotInterviewer `json:"interviewers"`
	Result          *InterviewResult  `json:"result,omitempty"`
	Annotations     []SlotAnnotation  `json:"annotations,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// EndsAt is the exclusive end of the slot.
func (s *InterviewSlot) EndsAt() time.Time {
	return s.StartsAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Overlaps reports whether the slot intersects the half-open window [start, end).
func (s *InterviewSlot) Overlaps(start, end time.Time) bool {
	return s.StartsAt.Before(end) && start.Before(s.EndsAt())
}

// HasInterviewer reports whether the interviewer sits on the slot's panel.
func (s *InterviewSlot) HasInterviewer(id string) bool {
	for _, iv := range s.Interviewers {
		if iv.InterviewerID == id {
			return true
		}
	}
	return false
}

// PrimaryInterviewer returns the panel lead.
func (s *InterviewSlot) PrimaryInterviewer() string {
	for _, iv := range s.Interviewers {
		if iv.Primary {
			return iv.InterviewerID
		}
	}
	return ""
}
