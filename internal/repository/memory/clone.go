package memory

import (
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/scholarship-api/internal/models"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneApplication(app models.Application) models.Application {
	app.InterviewDate = cloneTime(app.InterviewDate)
	app.RejectionReason = cloneString(app.RejectionReason)
	app.ArchivedAt = cloneTime(app.ArchivedAt)
	if app.MissingDocuments != nil {
		app.MissingDocuments = append(pq.StringArray(nil), app.MissingDocuments...)
	}
	return app
}

func cloneOffering(offering models.ScholarshipOffering) models.ScholarshipOffering {
	offering.ArchivedAt = cloneTime(offering.ArchivedAt)
	return offering
}

func cloneAllocation(alloc models.Allocation) models.Allocation {
	alloc.ArchivedAt = cloneTime(alloc.ArchivedAt)
	return alloc
}

func cloneSlot(slot models.InterviewSlot) models.InterviewSlot {
	slot.RescheduledFrom = cloneString(slot.RescheduledFrom)
	if slot.Interviewers != nil {
		slot.Interviewers = append([]models.SlotInterviewer(nil), slot.Interviewers...)
	}
	if slot.Annotations != nil {
		slot.Annotations = append([]models.SlotAnnotation(nil), slot.Annotations...)
	}
	if slot.Result != nil {
		result := *slot.Result
		slot.Result = &result
	}
	return slot
}
