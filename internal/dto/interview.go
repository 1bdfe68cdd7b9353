package dto

import (
	"time"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// BookInterviewRequest reserves an interview slot for an application.
type BookInterviewRequest struct {
	ApplicationID      string    `json:"applicationId" validate:"required"`
	InterviewerIDs     []string  `json:"interviewerIds" validate:"required,min=1,dive,required"`
	PrimaryInterviewer string    `json:"primaryInterviewerId"`
	StartsAt           time.Time `json:"startsAt" validate:"required"`
	DurationMinutes    int       `json:"durationMinutes" validate:"required,min=1,max=480"`
	Location           string    `json:"location" validate:"required,max=200"`
}

// RescheduleInterviewRequest moves a slot to a new time, panel or room.
type RescheduleInterviewRequest struct {
	InterviewerIDs     []string  `json:"interviewerIds" validate:"omitempty,dive,required"`
	PrimaryInterviewer string    `json:"primaryInterviewerId"`
	StartsAt           time.Time `json:"startsAt" validate:"required"`
	DurationMinutes    int       `json:"durationMinutes" validate:"omitempty,min=1,max=480"`
	Location           string    `json:"location" validate:"omitempty,max=200"`
}

// InterviewResultRequest records the panel outcome.
type InterviewResultRequest struct {
	Score          int                   `json:"score" validate:"gte=0,lte=100"`
	Recommendation models.Recommendation `json:"recommendation" validate:"required"`
}

// CompleteInterviewRequest closes a slot with an optional result.
type CompleteInterviewRequest struct {
	Result *InterviewResultRequest `json:"result"`
}

// AnnotateInterviewRequest appends an administrative correction note.
type AnnotateInterviewRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}
