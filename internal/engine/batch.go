package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// BatchConfig bounds batch size and worker concurrency
type BatchConfig struct {
	MaxBatchSize  int `json:"max_batch_size"`
	MaxConcurrent int `json:"max_concurrent"`
}

// DefaultBatchConfig returns the production batch limits
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize:  50,
		MaxConcurrent: 5,
	}
}

// ErrBatchTooLarge rejects oversized batches before any item is processed
type ErrBatchTooLarge struct {
	Size int
	Max  int
}

func (e *ErrBatchTooLarge) Error() string {
	return fmt.Sprintf("batch of %d exceeds maximum of %d", e.Size, e.Max)
}

// BatchItemResult pairs one input with its pipeline outcome. Failed items
// carry their error; they never abort the batch.
type BatchItemResult struct {
	Index  int           `json:"index"`
	Result *VerifyResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Orchestrator fans a batch of contributions out to the pipeline with
// bounded concurrency and per-item failure isolation
type Orchestrator struct {
	service *Service
	logger  *zap.Logger
	cfg     BatchConfig
}

// NewOrchestrator creates a batch orchestrator
func NewOrchestrator(service *Service, logger *zap.Logger, cfg BatchConfig) *Orchestrator {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &Orchestrator{
		service: service,
		logger:  logger,
		cfg:     cfg,
	}
}

// ProcessBatch runs each contribution through the full pipeline. The batch
// cap is enforced before any work starts; results preserve input order and
// no cross-item ordering is guaranteed during processing.
func (o *Orchestrator) ProcessBatch(ctx context.Context, reqs []*VerifyRequest) ([]BatchItemResult, error) {
	if len(reqs) > o.cfg.MaxBatchSize {
		return nil, &ErrBatchTooLarge{Size: len(reqs), Max: o.cfg.MaxBatchSize}
	}

	results := make([]BatchItemResult, len(reqs))
	sem := make(chan struct{}, o.cfg.MaxConcurrent)

	for i, req := range reqs {
		sem <- struct{}{}
		go func(idx int, r *VerifyRequest) {
			defer func() { <-sem }()
			results[idx] = o.processItem(ctx, idx, r)
		}(i, req)
	}

	// drain the semaphore to wait for completion
	for i := 0; i < o.cfg.MaxConcurrent; i++ {
		sem <- struct{}{}
	}

	return results, nil
}

// processItem isolates one item's pipeline run, including panics
func (o *Orchestrator) processItem(ctx context.Context, idx int, req *VerifyRequest) (item BatchItemResult) {
	item.Index = idx

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Batch item panicked",
				zap.Int("index", idx),
				zap.Any("panic", r))
			item.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	result, err := o.service.Verify(ctx, req)
	if err != nil {
		item.Error = err.Error()
	}
	item.Result = result
	return item
}
