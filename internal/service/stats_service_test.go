package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type mapCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string][]byte)}
}

func (m *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *mapCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

type countingStats struct {
	calls int
	stats models.ApplicationStats
	since time.Time
}

func (c *countingStats) ApplicationStats(ctx context.Context, offeringID string, overdueBefore time.Time) (*models.ApplicationStats, error) {
	c.calls++
	c.since = overdueBefore
	stats := c.stats
	return &stats, nil
}

func TestStatsServiceCachesAggregate(t *testing.T) {
	repo := &countingStats{stats: models.ApplicationStats{Total: 4, Pending: 2, Approved: 1, Rejected: 1}}
	cache := NewCacheService(newMapCache(), nil, time.Minute, nil, true)
	svc := NewStatsService(repo, cache, time.Minute, 48*time.Hour, nil)
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	stats, hit, err := svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, fixed.Add(-48*time.Hour), repo.since)

	stats, hit, err = svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, repo.calls)

	cache.InvalidateStats(ctx)
	_, hit, err = svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.calls)
}

func TestStatsReflectApplicationWrites(t *testing.T) {
	engine := newTestEngine(t)
	cache := NewCacheService(newMapCache(), nil, time.Minute, nil, true)
	engine.apps.cache = cache
	stats := NewStatsService(engine.store, cache, time.Minute, time.Hour, nil)
	ctx := context.Background()
	offering := engine.openOffering(t, 1)

	engine.submit(t, offering.ID, "s-1")
	first, _, err := stats.Stats(ctx, offering.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)
	assert.Equal(t, 1, first.Pending)

	app := engine.submit(t, offering.ID, "s-2")
	second, hit, err := stats.Stats(ctx, offering.ID)
	require.NoError(t, err)
	assert.False(t, hit, "submissions invalidate cached stats")
	assert.Equal(t, 2, second.Total)

	_, err = engine.apps.Review(ctx, app.ID, dto.ReviewApplicationRequest{Status: models.ApplicationStatusUnderReview}, "reviewer-1")
	require.NoError(t, err)
	_, err = engine.apps.Review(ctx, app.ID, dto.ReviewApplicationRequest{Status: models.ApplicationStatusApproved}, "reviewer-1")
	require.NoError(t, err)

	third, _, err := stats.Stats(ctx, offering.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Approved)
	assert.Equal(t, 1, third.Pending)
}
