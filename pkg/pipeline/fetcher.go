package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/dealscope/pkg/domain"
	"github.com/umputun/dealscope/pkg/normalize"
	"github.com/umputun/dealscope/pkg/source"
)

// FetchStore is the store surface the fetcher needs
type FetchStore interface {
	GetSourcesDue(ctx context.Context, now time.Time) ([]domain.Source, error)
	CreateDeal(ctx context.Context, deal *domain.Deal) (inserted bool, err error)
	UpdateSourceSynced(ctx context.Context, sourceID int64, at time.Time) error
	UpdateSourceError(ctx context.Context, sourceID int64, at time.Time, errMsg string) error
}

// Normalizer converts raw adapter items to deal records
type Normalizer interface {
	Normalize(raw domain.RawItem, src domain.Source) (domain.Deal, error)
}

// AdapterFactory builds the adapter for a source. Injected so tests can
// substitute fakes for the closed construction switch.
type AdapterFactory func(src domain.Source) (source.Adapter, error)

// SourceResult reports one source's outcome within a discovery run
type SourceResult struct {
	SourceID   int64  `json:"source_id"`
	Name       string `json:"name"`
	Fetched    int    `json:"fetched"`
	New        int    `json:"new"`
	Duplicates int    `json:"duplicates"`
	Rejected   int    `json:"rejected"`
	Error      string `json:"error,omitempty"`
}

// FetchResult summarizes a discovery run across all sources
type FetchResult struct {
	SourcesProcessed int            `json:"sources_processed"`
	SourcesFailed    int            `json:"sources_failed"`
	TotalDeals       int            `json:"total_deals"`
	NewDeals         int            `json:"new_deals"`
	Duplicates       int            `json:"duplicates"`
	Details          []SourceResult `json:"details"`
	Errors           []string       `json:"errors,omitempty"`
}

// Fetcher runs discovery: it fans out due sources onto a bounded worker
// pool, each task fully isolated so one failing source never aborts the run
type Fetcher struct {
	store      FetchStore
	normalizer Normalizer
	newAdapter AdapterFactory
	maxWorkers int
}

// NewFetcher creates a fetch orchestrator
func NewFetcher(store FetchStore, normalizer Normalizer, newAdapter AdapterFactory, maxWorkers int) *Fetcher {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	return &Fetcher{store: store, normalizer: normalizer, newAdapter: newAdapter, maxWorkers: maxWorkers}
}

// Run discovers deals from all active sources whose sync interval elapsed
func (f *Fetcher) Run(ctx context.Context) (*FetchResult, error) {
	sources, err := f.store.GetSourcesDue(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("get sources due: %w", err)
	}

	result := &FetchResult{}
	if len(sources) == 0 {
		return result, nil
	}

	lgr.Printf("[INFO] discovery run started, %d sources due", len(sources))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxWorkers)

	for _, src := range sources {
		g.Go(func() error {
			sr := f.processSource(gctx, src)
			mu.Lock()
			defer mu.Unlock()
			result.Details = append(result.Details, sr)
			result.TotalDeals += sr.New
			result.NewDeals += sr.New
			result.Duplicates += sr.Duplicates
			if sr.Error != "" {
				result.SourcesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", sr.Name, sr.Error))
			} else {
				result.SourcesProcessed++
			}
			return nil // source failures are recorded, never propagated
		})
	}

	_ = g.Wait() // tasks never return errors
	lgr.Printf("[INFO] discovery run completed: %d processed, %d failed, %d new deals, %d duplicates",
		result.SourcesProcessed, result.SourcesFailed, result.NewDeals, result.Duplicates)
	return result, nil
}

// processSource fetches, normalizes and upserts one source's items. The
// last-sync timestamp advances regardless of per-item outcomes.
func (f *Fetcher) processSource(ctx context.Context, src domain.Source) SourceResult {
	sr := SourceResult{SourceID: src.ID, Name: src.Name}
	now := time.Now()

	fail := func(err error) SourceResult {
		sr.Error = err.Error()
		lgr.Printf("[WARN] source %q failed: %v", src.Name, err)
		if updErr := f.store.UpdateSourceError(ctx, src.ID, now, err.Error()); updErr != nil {
			lgr.Printf("[ERROR] failed to record error for source %q: %v", src.Name, updErr)
		}
		return sr
	}

	adapter, err := f.newAdapter(src)
	if err != nil {
		return fail(fmt.Errorf("construct adapter: %w", err))
	}
	if err := adapter.Validate(); err != nil {
		return fail(fmt.Errorf("invalid configuration: %w", err))
	}

	items, err := adapter.Fetch(ctx)
	if err != nil {
		return fail(fmt.Errorf("fetch: %w", err))
	}
	sr.Fetched = len(items)

	for _, raw := range items {
		if ctx.Err() != nil {
			sr.Error = ctx.Err().Error()
			break
		}

		deal, err := f.normalizer.Normalize(raw, src)
		if err != nil {
			if errors.Is(err, normalize.ErrReject) {
				sr.Rejected++
				continue
			}
			lgr.Printf("[WARN] normalize failed for item from %q: %v", src.Name, err)
			sr.Rejected++
			continue
		}

		inserted, err := f.store.CreateDeal(ctx, &deal)
		if err != nil {
			lgr.Printf("[WARN] store deal %q from %q: %v", deal.Title, src.Name, err)
			continue
		}
		if inserted {
			sr.New++
		} else {
			sr.Duplicates++
		}
	}

	if sr.Error != "" {
		return sr
	}

	if err := f.store.UpdateSourceSynced(ctx, src.ID, now); err != nil {
		lgr.Printf("[ERROR] failed to update sync time for source %q: %v", src.Name, err)
	}
	lgr.Printf("[DEBUG] source %q: %d fetched, %d new, %d duplicates, %d rejected",
		src.Name, sr.Fetched, sr.New, sr.Duplicates, sr.Rejected)
	return sr
}
