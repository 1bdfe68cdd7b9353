package dto

import "time"

// BulkAction names the transition applied to every application in a batch.
type BulkAction string

const (
	BulkActionStartReview       BulkAction = "start_review"
	BulkActionApprove           BulkAction = "approve"
	BulkActionReject            BulkAction = "reject"
	BulkActionRequestDocuments  BulkAction = "request_documents"
	BulkActionScheduleInterview BulkAction = "schedule_interview"
)

// BulkPayload carries the data shared by every item of the batch.
type BulkPayload struct {
	Notes            string     `json:"notes"`
	RejectionReason  string     `json:"rejectionReason"`
	MissingDocuments []string   `json:"missingDocuments"`
	InterviewDate    *time.Time `json:"interviewDate"`
}

// BulkActionRequest applies one action to many applications.
type BulkActionRequest struct {
	Action         BulkAction  `json:"action" validate:"required"`
	ApplicationIDs []string    `json:"applicationIds"`
	Payload        BulkPayload `json:"payload"`
}

// BulkItemFailure attributes a failure to one application.
type BulkItemFailure struct {
	ApplicationID string `json:"applicationId"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Retryable     bool   `json:"retryable"`
}

// BulkActionResult is the complete per-item outcome of a batch.
type BulkActionResult struct {
	Action    BulkAction        `json:"action"`
	Succeeded []string          `json:"succeeded"`
	Failed    []BulkItemFailure `json:"failed"`
}

// BulkJobStatus tracks asynchronous batches.
type BulkJobStatus string

const (
	BulkJobQueued    BulkJobStatus = "queued"
	BulkJobRunning   BulkJobStatus = "running"
	BulkJobCompleted BulkJobStatus = "completed"
	BulkJobFailed    BulkJobStatus = "failed"
)

// BulkJob is the pollable record of an asynchronous batch.
type BulkJob struct {
	ID          string            `json:"id"`
	Status      BulkJobStatus     `json:"status"`
	Request     BulkActionRequest `json:"request"`
	RequestedBy string            `json:"requestedBy"`
	Result      *BulkActionResult `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	FinishedAt  *time.Time        `json:"finishedAt,omitempty"`
}
