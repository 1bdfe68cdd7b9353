package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
)

type statsReader interface {
	ApplicationStats(ctx context.Context, offeringID string, overdueBefore time.Time) (*models.ApplicationStats, error)
}

// StatsService serves the review dashboard aggregate.
type StatsService struct {
	repo      statsReader
	cache     *CacheService
	cacheTTL  time.Duration
	reviewSLA time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewStatsService constructs the aggregate service. Pending applications older than reviewSLA count as overdue.
func NewStatsService(repo statsReader, cache *CacheService, cacheTTL, reviewSLA time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reviewSLA <= 0 {
		reviewSLA = 14 * 24 * time.Hour
	}
	return &StatsService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  cacheTTL,
		reviewSLA: reviewSLA,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Stats returns counts by review bucket, optionally scoped to one offering.
// The second return value reports whether the aggregate came from the cache.
func (s *StatsService) Stats(ctx context.Context, offeringID string) (*models.ApplicationStats, bool, error) {
	key := statsCacheKey(offeringID)
	var cached models.ApplicationStats
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	now := s.now()
	stats, err := s.repo.ApplicationStats(ctx, offeringID, now.Add(-s.reviewSLA))
	if err != nil {
		return nil, false, asAppError(err, "failed to compute application stats")
	}
	stats.GeneratedAt = now
	s.cache.Set(ctx, key, stats, s.cacheTTL)
	return stats, false, nil
}
