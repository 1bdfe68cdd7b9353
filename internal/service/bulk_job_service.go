package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/dto"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/jobs"
)

const bulkJobType = "bulk_action"

type bulkApplier interface {
	Prepare(req dto.BulkActionRequest) ([]string, TransitionPayload, error)
	Apply(ctx context.Context, req dto.BulkActionRequest, actor string) (*dto.BulkActionResult, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// BulkJobConfig tunes the asynchronous bulk runner.
type BulkJobConfig struct {
	Workers    int
	MaxRetries int
	TTL        time.Duration
}

// BulkJobService runs bulk actions in the background and keeps pollable job records.
// Records live in process memory and are mirrored to the cache for other replicas.
type BulkJobService struct {
	processor bulkApplier
	cache     *CacheService
	queue     jobQueue
	retries   int
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*dto.BulkJob
}

// NewBulkJobService constructs the service and its worker queue. Call Start before submitting.
func NewBulkJobService(processor bulkApplier, cache *CacheService, cfg BulkJobConfig, logger *zap.Logger) (*BulkJobService, *jobs.Queue) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	svc := &BulkJobService{
		processor: processor,
		cache:     cache,
		retries:   cfg.MaxRetries,
		ttl:       cfg.TTL,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		jobs:      make(map[string]*dto.BulkJob),
	}
	queue := jobs.NewQueue("bulk-actions", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	svc.queue = queue
	return svc, queue
}

// Submit validates the batch up front and queues it. The returned job can be polled by id.
func (s *BulkJobService) Submit(ctx context.Context, req dto.BulkActionRequest, actor string) (*dto.BulkJob, error) {
	ids, _, err := s.processor.Prepare(req)
	if err != nil {
		return nil, err
	}
	req.ApplicationIDs = ids
	s.prune()

	job := &dto.BulkJob{
		ID:          uuid.NewString(),
		Status:      dto.BulkJobQueued,
		Request:     req,
		RequestedBy: actor,
		CreatedAt:   s.now(),
	}
	s.save(ctx, job)
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: bulkJobType}); err != nil {
		s.finish(ctx, job.ID, nil, err)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Clone(appErrors.ErrRateLimited, "bulk queue is full, retry later")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue bulk action")
	}
	return s.snapshot(job.ID), nil
}

// Get returns a job record from memory, falling back to the cache mirror.
func (s *BulkJobService) Get(ctx context.Context, id string) (*dto.BulkJob, error) {
	if job := s.snapshot(id); job != nil {
		return job, nil
	}
	var cached dto.BulkJob
	if s.cache.Get(ctx, bulkJobCacheKey(id), &cached) {
		return &cached, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "bulk job not found")
}

func (s *BulkJobService) handle(ctx context.Context, queued jobs.Job) error {
	s.mu.Lock()
	job, ok := s.jobs[queued.ID]
	if ok {
		job.Status = dto.BulkJobRunning
	}
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("bulk job vanished before running", zap.String("job_id", queued.ID))
		return nil
	}

	result, err := s.processor.Apply(ctx, job.Request, job.RequestedBy)
	if err != nil && appErrors.FromError(err).Retryable && queued.Attempt < s.retries {
		return err
	}
	s.finish(ctx, queued.ID, result, err)
	return nil
}

func (s *BulkJobService) finish(ctx context.Context, id string, result *dto.BulkActionResult, err error) {
	now := s.now()
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		job.Result = result
		job.FinishedAt = &now
		job.Status = dto.BulkJobCompleted
		if err != nil {
			job.Status = dto.BulkJobFailed
			job.Error = appErrors.FromError(err).Message
		}
	}
	s.mu.Unlock()
	if ok {
		s.cache.Set(ctx, bulkJobCacheKey(id), s.snapshot(id), s.ttl)
	}
}

func (s *BulkJobService) save(ctx context.Context, job *dto.BulkJob) {
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	s.cache.Set(ctx, bulkJobCacheKey(job.ID), s.snapshot(job.ID), s.ttl)
}

// snapshot copies a record so callers never observe a worker mid-update.
func (s *BulkJobService) snapshot(id string) *dto.BulkJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	clone := *job
	return &clone
}

// prune drops finished records older than the retention window.
func (s *BulkJobService) prune() {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
