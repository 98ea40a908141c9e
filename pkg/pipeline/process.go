package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/dealscope/pkg/ai"
	"github.com/umputun/dealscope/pkg/domain"
)

// ProcessStore is the store surface the processor needs
type ProcessStore interface {
	ClaimNextQueueItem(ctx context.Context, now time.Time) (*domain.QueueItem, error)
	GetDeal(ctx context.Context, id int64) (*domain.Deal, error)
	SaveContent(ctx context.Context, content *domain.Content) error
	CompleteQueueItem(ctx context.Context, id int64) error
	FailQueueItem(ctx context.Context, id int64, errMsg string) error
}

// ContentGenerator produces publishable copy for a deal. The real generator
// falls back to a template internally and never returns an error, the error
// path exists for store-level failures surfaced through mocks and wrappers.
type ContentGenerator interface {
	Generate(ctx context.Context, deal *domain.Deal) (ai.Generated, error)
}

// ProcessResult summarizes a queue processing run
type ProcessResult struct {
	Processed int      `json:"processed"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Processor drains the queue with a pool of workers. Each worker claims
// items one at a time, claim exclusivity is the store's CAS update, so
// concurrent workers never process the same item.
type Processor struct {
	store      ProcessStore
	generator  ContentGenerator
	maxWorkers int
}

// NewProcessor creates a queue processor
func NewProcessor(store ProcessStore, generator ContentGenerator, maxWorkers int) *Processor {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	return &Processor{store: store, generator: generator, maxWorkers: maxWorkers}
}

// Run processes due queue items until the queue is drained or the context
// is canceled
func (p *Processor) Run(ctx context.Context) (*ProcessResult, error) {
	result := &ProcessResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	for range p.maxWorkers {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return nil
				}

				item, err := p.store.ClaimNextQueueItem(gctx, time.Now())
				if err != nil {
					mu.Lock()
					result.Errors = append(result.Errors, fmt.Sprintf("claim: %v", err))
					mu.Unlock()
					return nil
				}
				if item == nil {
					return nil // queue drained
				}

				completed := p.processItem(gctx, item)
				mu.Lock()
				result.Processed++
				if completed {
					result.Completed++
				} else {
					result.Failed++
				}
				mu.Unlock()
			}
		})
	}

	_ = g.Wait() // workers never return errors

	if result.Processed > 0 {
		lgr.Printf("[INFO] queue run completed: %d processed, %d completed, %d failed",
			result.Processed, result.Completed, result.Failed)
	}
	return result, nil
}

// processItem runs content generation for one claimed item and records the
// terminal transition. Returns true when the item completed.
func (p *Processor) processItem(ctx context.Context, item *domain.QueueItem) bool {
	fail := func(err error) bool {
		lgr.Printf("[WARN] queue item %d (deal %d) failed on attempt %d: %v", item.ID, item.DealID, item.Attempts+1, err)
		if failErr := p.store.FailQueueItem(ctx, item.ID, err.Error()); failErr != nil {
			lgr.Printf("[ERROR] failed to mark queue item %d failed: %v", item.ID, failErr)
		}
		return false
	}

	deal, err := p.store.GetDeal(ctx, item.DealID)
	if err != nil {
		return fail(fmt.Errorf("load deal: %w", err))
	}

	generated, err := p.generator.Generate(ctx, deal)
	if err != nil {
		return fail(fmt.Errorf("generate content: %w", err))
	}

	tags, err := json.Marshal(generated.Tags)
	if err != nil {
		return fail(fmt.Errorf("encode tags: %w", err))
	}

	content := &domain.Content{
		DealID:          deal.ID,
		Title:           generated.Title,
		Body:            generated.Body,
		Excerpt:         generated.Excerpt,
		MetaDescription: generated.MetaDescription,
		Tags:            string(tags),
		Fallback:        generated.Fallback,
	}
	if err := p.store.SaveContent(ctx, content); err != nil {
		return fail(fmt.Errorf("save content: %w", err))
	}

	if err := p.store.CompleteQueueItem(ctx, item.ID); err != nil {
		lgr.Printf("[ERROR] failed to complete queue item %d: %v", item.ID, err)
		return false
	}

	lgr.Printf("[DEBUG] queue item %d (deal %d) completed, fallback=%v", item.ID, item.DealID, generated.Fallback)
	return true
}
