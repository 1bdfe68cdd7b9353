package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// GetOffering fetches a committed offering.
func (s *Store) GetOffering(ctx context.Context, id string) (*models.ScholarshipOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offering, ok := s.offerings[id]
	if !ok {
		return nil, errNotFound
	}
	clone := cloneOffering(offering)
	return &clone, nil
}

// ListOfferings returns committed offerings matching the filter, newest window first.
func (s *Store) ListOfferings(ctx context.Context, filter models.OfferingFilter) ([]models.ScholarshipOffering, error) {
	s.mu.RLock()
	all := make([]models.ScholarshipOffering, 0, len(s.offerings))
	for _, offering := range s.offerings {
		all = append(all, cloneOffering(offering))
	}
	s.mu.RUnlock()
	return filterOfferings(all, filter), nil
}

// GetAllocation reads the committed ledger of an offering.
func (s *Store) GetAllocation(ctx context.Context, offeringID string) (*models.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alloc, ok := s.allocations[offeringID]
	if !ok {
		return nil, errNotFound
	}
	clone := cloneAllocation(alloc)
	return &clone, nil
}

func (t *memTx) GetOffering(ctx context.Context, id string) (*models.ScholarshipOffering, error) {
	if staged, ok := t.offerings[id]; ok {
		clone := cloneOffering(*staged)
		return &clone, nil
	}
	return t.store.GetOffering(ctx, id)
}

func (t *memTx) ListOfferings(ctx context.Context, filter models.OfferingFilter) ([]models.ScholarshipOffering, error) {
	committed, _ := t.store.ListOfferings(ctx, models.OfferingFilter{})
	all := make([]models.ScholarshipOffering, 0, len(committed)+len(t.offerings))
	for _, offering := range committed {
		if _, staged := t.offerings[offering.ID]; !staged {
			all = append(all, offering)
		}
	}
	for _, offering := range t.offerings {
		all = append(all, cloneOffering(*offering))
	}
	return filterOfferings(all, filter), nil
}

func (t *memTx) GetAllocation(ctx context.Context, offeringID string) (*models.Allocation, error) {
	if staged, ok := t.allocations[offeringID]; ok {
		clone := cloneAllocation(*staged)
		return &clone, nil
	}
	return t.store.GetAllocation(ctx, offeringID)
}

func (t *memTx) LockOffering(ctx context.Context, id string) (*models.ScholarshipOffering, error) {
	if err := t.lock(ctx, "offering:"+id); err != nil {
		return nil, err
	}
	return t.GetOffering(ctx, id)
}

func (t *memTx) InsertOffering(ctx context.Context, offering *models.ScholarshipOffering) error {
	if offering.ID == "" {
		offering.ID = uuid.NewString()
	}
	if _, err := t.GetOffering(ctx, offering.ID); err == nil {
		return appErrors.Clone(appErrors.ErrConflict, "offering already exists")
	}
	if offering.CreatedAt.IsZero() {
		offering.CreatedAt = t.store.now()
	}
	offering.UpdatedAt = offering.CreatedAt
	clone := cloneOffering(*offering)
	t.offerings[offering.ID] = &clone
	return nil
}

func (t *memTx) UpdateOffering(ctx context.Context, offering *models.ScholarshipOffering) error {
	if _, err := t.GetOffering(ctx, offering.ID); err != nil {
		return err
	}
	clone := cloneOffering(*offering)
	t.offerings[offering.ID] = &clone
	return nil
}

func (t *memTx) LockAllocation(ctx context.Context, offeringID string) (*models.Allocation, error) {
	if err := t.lock(ctx, "alloc:"+offeringID); err != nil {
		return nil, err
	}
	return t.GetAllocation(ctx, offeringID)
}

func (t *memTx) InsertAllocation(ctx context.Context, alloc *models.Allocation) error {
	if _, err := t.GetAllocation(ctx, alloc.OfferingID); err == nil {
		return appErrors.Clone(appErrors.ErrConflict, "allocation already exists")
	}
	if alloc.CreatedAt.IsZero() {
		alloc.CreatedAt = t.store.now()
	}
	alloc.UpdatedAt = alloc.CreatedAt
	if alloc.Version == 0 {
		alloc.Version = 1
	}
	clone := cloneAllocation(*alloc)
	t.allocations[alloc.OfferingID] = &clone
	return nil
}

// UpdateAllocation applies the same version guard and non-negativity checks as the database.
func (t *memTx) UpdateAllocation(ctx context.Context, alloc *models.Allocation) error {
	current, err := t.GetAllocation(ctx, alloc.OfferingID)
	if err != nil {
		return err
	}
	if current.Version != alloc.Version {
		return repository.ErrStaleWrite
	}
	if !alloc.Consistent() {
		return appErrors.Clone(appErrors.ErrIntegrityFault, "ledger constraint violated")
	}
	alloc.Version++
	alloc.UpdatedAt = t.store.now()
	clone := cloneAllocation(*alloc)
	t.allocations[alloc.OfferingID] = &clone
	return nil
}

func filterOfferings(all []models.ScholarshipOffering, filter models.OfferingFilter) []models.ScholarshipOffering {
	out := make([]models.ScholarshipOffering, 0, len(all))
	for _, offering := range all {
		if len(filter.Status) > 0 {
			found := false
			for _, status := range filter.Status {
				if offering.Status == status {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if filter.AcademicYear != "" && offering.AcademicYear != filter.AcademicYear {
			continue
		}
		if filter.Semester > 0 && offering.Semester != filter.Semester {
			continue
		}
		out = append(out, offering)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WindowStart.Equal(out[j].WindowStart) {
			return out[i].WindowStart.After(out[j].WindowStart)
		}
		return out[i].Name < out[j].Name
	})
	return out
}
