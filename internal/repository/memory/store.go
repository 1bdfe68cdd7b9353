// Package memory keeps engine state in process memory. Units of work stage their
// writes and publish them on commit; per-record keyed locks give the same
// single-writer guarantees the PostgreSQL store gets from row locks.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// Store is an in-memory repository.Store.
type Store struct {
	mu          sync.RWMutex
	apps        map[string]models.Application
	auditLogs   []models.AuditLog
	offerings   map[string]models.ScholarshipOffering
	allocations map[string]models.Allocation
	slots       map[string]models.InterviewSlot

	locks *keyedLocks
	now   func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		apps:        make(map[string]models.Application),
		offerings:   make(map[string]models.ScholarshipOffering),
		allocations: make(map[string]models.Allocation),
		slots:       make(map[string]models.InterviewSlot),
		locks:       newKeyedLocks(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithinTx runs fn as one unit of work. Staged writes are published only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return appErrors.WrapAs(err, appErrors.ErrConcurrencyConflict, "unit of work abandoned")
	}
	tx := newTx(s)
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return appErrors.WrapAs(err, appErrors.ErrConcurrencyConflict, "")
		}
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, app := range tx.apps {
		if app == nil {
			delete(s.apps, id)
			continue
		}
		s.apps[id] = cloneApplication(*app)
	}
	for id, offering := range tx.offerings {
		s.offerings[id] = cloneOffering(*offering)
	}
	for id, alloc := range tx.allocations {
		s.allocations[id] = cloneAllocation(*alloc)
	}
	for id, slot := range tx.slots {
		s.slots[id] = cloneSlot(*slot)
	}
	s.auditLogs = append(s.auditLogs, tx.auditLogs...)
}

// memTx stages writes over a read view of the committed state.
type memTx struct {
	store *Store
	held  map[string]struct{}
	order []string

	apps        map[string]*models.Application
	offerings   map[string]*models.ScholarshipOffering
	allocations map[string]*models.Allocation
	slots       map[string]*models.InterviewSlot
	auditLogs   []models.AuditLog
}

func newTx(store *Store) *memTx {
	return &memTx{
		store:       store,
		held:        make(map[string]struct{}),
		apps:        make(map[string]*models.Application),
		offerings:   make(map[string]*models.ScholarshipOffering),
		allocations: make(map[string]*models.Allocation),
		slots:       make(map[string]*models.InterviewSlot),
	}
}

// lock acquires key for the lifetime of the transaction. Re-acquiring a held key is a no-op.
func (t *memTx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := t.store.locks.acquire(ctx, key); err != nil {
		return appErrors.WrapAs(err, appErrors.ErrConcurrencyConflict, "lock wait abandoned")
	}
	t.held[key] = struct{}{}
	t.order = append(t.order, key)
	return nil
}

func (t *memTx) releaseLocks() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.store.locks.release(t.order[i])
	}
	t.order = nil
	t.held = nil
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

var errNotFound = sql.ErrNoRows
