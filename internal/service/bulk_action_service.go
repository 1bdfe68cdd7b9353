package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

const defaultBulkMaxBatch = 500

type transitioner interface {
	Transition(ctx context.Context, req TransitionRequest) (*models.Application, error)
}

// BulkActionProcessor applies one action to many applications. Every item runs in its own
// unit of work, so one failure never rolls back or blocks the others.
type BulkActionProcessor struct {
	machine  transitioner
	cache    *CacheService
	metrics  *MetricsService
	maxBatch int
	logger   *zap.Logger
}

// NewBulkActionProcessor constructs the processor. maxBatch caps the number of distinct ids per call.
func NewBulkActionProcessor(machine transitioner, cache *CacheService, metrics *MetricsService, maxBatch int, logger *zap.Logger) *BulkActionProcessor {
	if maxBatch <= 0 {
		maxBatch = defaultBulkMaxBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkActionProcessor{machine: machine, cache: cache, metrics: metrics, maxBatch: maxBatch, logger: logger}
}

// Prepare normalises the batch and builds the shared transition payload without touching any application.
func (p *BulkActionProcessor) Prepare(req dto.BulkActionRequest) ([]string, TransitionPayload, error) {
	ids := NormaliseIDs(req.ApplicationIDs)
	if len(ids) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrEmptyBatch, "no application ids supplied")
	}
	if len(ids) > p.maxBatch {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch of %d exceeds the limit of %d applications", len(ids), p.maxBatch))
	}
	payload, err := bulkPayload(req.Action, req.Payload)
	if err != nil {
		return nil, nil, err
	}
	return ids, payload, nil
}

// Apply processes the batch sequentially in list order and reports every item.
func (p *BulkActionProcessor) Apply(ctx context.Context, req dto.BulkActionRequest, actor string) (*dto.BulkActionResult, error) {
	ids, payload, err := p.Prepare(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &dto.BulkActionResult{
		Action:    req.Action,
		Succeeded: make([]string, 0, len(ids)),
		Failed:    make([]dto.BulkItemFailure, 0),
	}
	for _, id := range ids {
		_, err := p.machine.Transition(ctx, TransitionRequest{
			ApplicationID: id,
			Payload:       payload,
			Actor:         actor,
			Notes:         req.Payload.Notes,
		})
		if err != nil {
			appErr := appErrors.FromError(err)
			result.Failed = append(result.Failed, dto.BulkItemFailure{
				ApplicationID: id,
				Code:          appErr.Code,
				Message:       appErr.Message,
				Retryable:     appErr.Retryable,
			})
			p.metrics.RecordBulkItem(string(req.Action), appErr.Code)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
		p.metrics.RecordBulkItem(string(req.Action), "")
	}
	p.metrics.ObserveBulkBatch(time.Since(start))

	if len(result.Succeeded) > 0 {
		p.cache.InvalidateStats(ctx)
	}
	p.logger.Info("bulk action processed",
		zap.String("action", string(req.Action)),
		zap.String("actor", actor),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// NormaliseIDs trims ids and drops blanks and repeats, keeping the first occurrence.
func NormaliseIDs(raw []string) []string {
	ids := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func bulkPayload(action dto.BulkAction, payload dto.BulkPayload) (TransitionPayload, error) {
	switch action {
	case dto.BulkActionStartReview:
		return ReviewPayload{}, nil
	case dto.BulkActionApprove:
		return ApprovePayload{}, nil
	case dto.BulkActionReject:
		reason := strings.TrimSpace(payload.RejectionReason)
		if reason == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
		}
		return RejectPayload{Reason: reason}, nil
	case dto.BulkActionRequestDocuments:
		docs := cleanDocuments(payload.MissingDocuments)
		if len(docs) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "at least one missing document is required")
		}
		return DocumentRequestPayload{MissingDocuments: docs}, nil
	case dto.BulkActionScheduleInterview:
		return InterviewPayload{InterviewDate: payload.InterviewDate}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown bulk action %q", action))
	}
}
