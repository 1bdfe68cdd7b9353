package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// GetApplication fetches a committed application.
func (s *Store) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, errNotFound
	}
	clone := cloneApplication(app)
	return &clone, nil
}

// ListApplications filters, sorts and pages committed applications.
func (s *Store) ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	apps, total := pageApplications(s.snapshotApplications(), filter)
	return apps, total, nil
}

// ApplicationStats aggregates committed live applications.
func (s *Store) ApplicationStats(ctx context.Context, offeringID string, overdueBefore time.Time) (*models.ApplicationStats, error) {
	return aggregate(s.snapshotApplications(), offeringID, overdueBefore), nil
}

// ListAuditLogs returns the committed trail of an application oldest first.
func (s *Store) ListAuditLogs(ctx context.Context, applicationID string) ([]models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return auditFor(s.auditLogs, applicationID), nil
}

func (s *Store) snapshotApplications() []models.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Application, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, cloneApplication(app))
	}
	return out
}

// GetApplication reads through staged writes.
func (t *memTx) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	if staged, ok := t.apps[id]; ok {
		if staged == nil {
			return nil, errNotFound
		}
		clone := cloneApplication(*staged)
		return &clone, nil
	}
	return t.store.GetApplication(ctx, id)
}

func (t *memTx) ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	apps, total := pageApplications(t.applicationView(), filter)
	return apps, total, nil
}

func (t *memTx) ApplicationStats(ctx context.Context, offeringID string, overdueBefore time.Time) (*models.ApplicationStats, error) {
	return aggregate(t.applicationView(), offeringID, overdueBefore), nil
}

func (t *memTx) ListAuditLogs(ctx context.Context, applicationID string) ([]models.AuditLog, error) {
	logs, _ := t.store.ListAuditLogs(ctx, applicationID)
	return append(logs, auditFor(t.auditLogs, applicationID)...), nil
}

func (t *memTx) applicationView() []models.Application {
	committed := t.store.snapshotApplications()
	out := make([]models.Application, 0, len(committed)+len(t.apps))
	for _, app := range committed {
		if _, staged := t.apps[app.ID]; staged {
			continue
		}
		out = append(out, app)
	}
	for _, app := range t.apps {
		if app != nil {
			out = append(out, cloneApplication(*app))
		}
	}
	return out
}

// LockApplication takes the application's key and returns its current state.
func (t *memTx) LockApplication(ctx context.Context, id string) (*models.Application, error) {
	if err := t.lock(ctx, "app:"+id); err != nil {
		return nil, err
	}
	return t.GetApplication(ctx, id)
}

// LockApplicationsByOffering locks every application of the offering in id order.
func (t *memTx) LockApplicationsByOffering(ctx context.Context, offeringID string) ([]string, error) {
	ids := make([]string, 0)
	for _, app := range t.applicationView() {
		if app.OfferingID == offeringID {
			ids = append(ids, app.ID)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := t.lock(ctx, "app:"+id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (t *memTx) InsertApplication(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	for _, existing := range t.applicationView() {
		if existing.ID == app.ID {
			return appErrors.Clone(appErrors.ErrConflict, "application already exists")
		}
		if existing.OfferingID == app.OfferingID && existing.ApplicantID == app.ApplicantID {
			return appErrors.Clone(appErrors.ErrConflict, "applicant already applied to this offering")
		}
	}
	now := t.store.now()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.SubmittedAt
	}
	clone := cloneApplication(*app)
	t.apps[app.ID] = &clone
	return nil
}

func (t *memTx) UpdateApplication(ctx context.Context, app *models.Application) error {
	if _, err := t.GetApplication(ctx, app.ID); err != nil {
		return err
	}
	clone := cloneApplication(*app)
	t.apps[app.ID] = &clone
	return nil
}

func (t *memTx) DeleteApplication(ctx context.Context, id string) error {
	if _, err := t.GetApplication(ctx, id); err != nil {
		return err
	}
	t.apps[id] = nil
	return nil
}

func (t *memTx) ArchiveApplications(ctx context.Context, offeringID string, at time.Time) (int64, error) {
	var count int64
	for _, app := range t.applicationView() {
		if app.OfferingID != offeringID || app.ArchivedAt != nil {
			continue
		}
		stamp := at
		app.ArchivedAt = &stamp
		app.UpdatedAt = at
		clone := cloneApplication(app)
		t.apps[app.ID] = &clone
		count++
	}
	return count, nil
}

func (t *memTx) AppendAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = t.store.now()
	}
	entry := *log
	if log.Payload != nil {
		entry.Payload = append([]byte(nil), log.Payload...)
	}
	t.auditLogs = append(t.auditLogs, entry)
	return nil
}

func auditFor(logs []models.AuditLog, applicationID string) []models.AuditLog {
	out := make([]models.AuditLog, 0)
	for _, log := range logs {
		if log.ApplicationID == applicationID {
			out = append(out, log)
		}
	}
	return out
}

func matchesFilter(app models.Application, filter models.ApplicationFilter) bool {
	if !filter.IncludeArchived && app.ArchivedAt != nil {
		return false
	}
	if len(filter.Status) > 0 {
		found := false
		for _, status := range filter.Status {
			if app.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.OfferingID != "" && app.OfferingID != filter.OfferingID {
		return false
	}
	if filter.FacultyID != "" && app.FacultyID != filter.FacultyID {
		return false
	}
	if min, max, ok := filter.Priority.Bounds(); ok {
		if app.PriorityScore < min || app.PriorityScore >= max {
			return false
		}
	}
	if filter.GPAMin != nil && app.GPA < *filter.GPAMin {
		return false
	}
	if filter.GPAMax != nil && app.GPA > *filter.GPAMax {
		return false
	}
	if filter.IncomeMin != nil && app.MonthlyFamilyIncome.LessThan(*filter.IncomeMin) {
		return false
	}
	if filter.IncomeMax != nil && app.MonthlyFamilyIncome.GreaterThan(*filter.IncomeMax) {
		return false
	}
	return true
}

func pageApplications(apps []models.Application, filter models.ApplicationFilter) ([]models.Application, int) {
	matched := make([]models.Application, 0, len(apps))
	for _, app := range apps {
		if matchesFilter(app, filter) {
			matched = append(matched, app)
		}
	}

	desc := !strings.EqualFold(filter.SortOrder, "asc")
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		cmp := compareApplications(a, b, filter.SortBy)
		if cmp == 0 {
			return a.ID < b.ID
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})

	total := len(matched)
	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return []models.Application{}, total
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total
}

func compareApplications(a, b models.Application, sortBy string) int {
	switch sortBy {
	case models.ApplicationSortPriority:
		return compareFloat(a.PriorityScore, b.PriorityScore)
	case models.ApplicationSortGPA:
		return compareFloat(a.GPA, b.GPA)
	case models.ApplicationSortIncome:
		return a.MonthlyFamilyIncome.Cmp(b.MonthlyFamilyIncome)
	default:
		return a.SubmittedAt.Compare(b.SubmittedAt)
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func aggregate(apps []models.Application, offeringID string, overdueBefore time.Time) *models.ApplicationStats {
	stats := &models.ApplicationStats{}
	for _, app := range apps {
		if app.ArchivedAt != nil {
			continue
		}
		if offeringID != "" && app.OfferingID != offeringID {
			continue
		}
		stats.Total++
		switch {
		case app.Status.Pending():
			stats.Pending++
			if app.SubmittedAt.Before(overdueBefore) {
				stats.Overdue++
			}
		case app.Status == models.ApplicationStatusInterviewScheduled:
			stats.Interview++
		case app.Status == models.ApplicationStatusApproved:
			stats.Approved++
		case app.Status == models.ApplicationStatusRejected:
			stats.Rejected++
		}
	}
	return stats
}
