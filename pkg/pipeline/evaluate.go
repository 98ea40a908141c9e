package pipeline

import (
	"context"
	"fmt"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/dealscope/pkg/ai"
	"github.com/umputun/dealscope/pkg/domain"
)

// EvalStore is the store surface the evaluation stage needs
type EvalStore interface {
	GetPendingDeals(ctx context.Context, limit int) ([]domain.Deal, error)
	UpdateDealEvaluation(ctx context.Context, dealID int64, score float64, reasoning string, status domain.DealStatus) error
	EnqueueDeal(ctx context.Context, dealID int64, maxAttempts int) (*domain.QueueItem, error)
}

// DealEvaluator scores a deal, falling back internally so it never fails
type DealEvaluator interface {
	Evaluate(ctx context.Context, deal *domain.Deal) ai.Evaluation
}

// EvalResult summarizes an evaluation run
type EvalResult struct {
	Evaluated int      `json:"evaluated"`
	Approved  int      `json:"approved"`
	Rejected  int      `json:"rejected"`
	Errors    []string `json:"errors,omitempty"`
}

// EvalStage scores pending deals and routes approvals into the processing
// queue. Evaluation itself cannot fail, only the store can, and a store
// failure on one deal never blocks the rest of the batch.
type EvalStage struct {
	store       EvalStore
	evaluator   DealEvaluator
	threshold   float64
	maxAttempts int
	batchSize   int
}

// NewEvalStage creates an evaluation stage
func NewEvalStage(store EvalStore, evaluator DealEvaluator, threshold float64, maxAttempts, batchSize int) *EvalStage {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &EvalStage{store: store, evaluator: evaluator, threshold: threshold, maxAttempts: maxAttempts, batchSize: batchSize}
}

// Run evaluates all pending deals. Deals at or above the threshold are
// approved and enqueued for content processing, the rest are rejected.
func (s *EvalStage) Run(ctx context.Context) (*EvalResult, error) {
	deals, err := s.store.GetPendingDeals(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("get pending deals: %w", err)
	}

	result := &EvalResult{}
	if len(deals) == 0 {
		return result, nil
	}

	lgr.Printf("[INFO] evaluation run started, %d pending deals", len(deals))

	for _, deal := range deals {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			break
		}

		eval := s.evaluator.Evaluate(ctx, &deal)

		status := domain.DealStatusRejected
		if eval.Score >= s.threshold {
			status = domain.DealStatusApproved
		}

		if err := s.store.UpdateDealEvaluation(ctx, deal.ID, eval.Score, eval.Reasoning, status); err != nil {
			lgr.Printf("[WARN] failed to store evaluation for deal %d: %v", deal.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("deal %d: %v", deal.ID, err))
			continue
		}
		result.Evaluated++

		if status == domain.DealStatusApproved {
			result.Approved++
			if _, err := s.store.EnqueueDeal(ctx, deal.ID, s.maxAttempts); err != nil {
				lgr.Printf("[WARN] failed to enqueue approved deal %d: %v", deal.ID, err)
				result.Errors = append(result.Errors, fmt.Sprintf("enqueue deal %d: %v", deal.ID, err))
			}
		} else {
			result.Rejected++
		}

		lgr.Printf("[DEBUG] deal %d %q scored %.0f, %s (fallback=%v)", deal.ID, deal.Title, eval.Score, status, eval.Fallback)
	}

	lgr.Printf("[INFO] evaluation run completed: %d evaluated, %d approved, %d rejected",
		result.Evaluated, result.Approved, result.Rejected)
	return result, nil
}
