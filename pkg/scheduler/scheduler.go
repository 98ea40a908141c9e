package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/dealscope/pkg/pipeline"
)

// FetchRunner runs deal discovery
type FetchRunner interface {
	Run(ctx context.Context) (*pipeline.FetchResult, error)
}

// EvalRunner runs deal evaluation
type EvalRunner interface {
	Run(ctx context.Context) (*pipeline.EvalResult, error)
}

// ProcessRunner drains the content queue
type ProcessRunner interface {
	Run(ctx context.Context) (*pipeline.ProcessResult, error)
}

// PublishRunner assembles and publishes batches
type PublishRunner interface {
	Run(ctx context.Context) (*pipeline.PublishResult, error)
}

// QueueMaintainer performs the periodic queue sweeps
type QueueMaintainer interface {
	RequeueFailed(ctx context.Context, retryDelay time.Duration) (int64, error)
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Params configures the scheduler
type Params struct {
	Fetcher   FetchRunner
	Evaluator EvalRunner
	Processor ProcessRunner
	Publisher PublishRunner
	Queue     QueueMaintainer

	FetchInterval    time.Duration
	EvaluateInterval time.Duration
	ProcessInterval  time.Duration
	PublishInterval  time.Duration
	RetryDelay       time.Duration
	ReclaimAfter     time.Duration
	RunDeadline      time.Duration
}

// LastRuns holds the most recent summary of each stage, served by the api
type LastRuns struct {
	Fetch     *pipeline.FetchResult   `json:"fetch,omitempty"`
	FetchAt   *time.Time              `json:"fetch_at,omitempty"`
	Eval      *pipeline.EvalResult    `json:"evaluate,omitempty"`
	EvalAt    *time.Time              `json:"evaluate_at,omitempty"`
	Process   *pipeline.ProcessResult `json:"process,omitempty"`
	ProcessAt *time.Time              `json:"process_at,omitempty"`
	Publish   *pipeline.PublishResult `json:"publish,omitempty"`
	PublishAt *time.Time              `json:"publish_at,omitempty"`
}

// Scheduler drives the pipeline stages on independent tickers. Stages run
// with a per-run deadline so a hung source or slow AI backend can't wedge
// the loop.
type Scheduler struct {
	Params

	mu   sync.Mutex
	last LastRuns
	wg   sync.WaitGroup
}

// New creates a scheduler
func New(params Params) *Scheduler {
	if params.RunDeadline <= 0 {
		params.RunDeadline = 10 * time.Minute
	}
	return &Scheduler{Params: params}
}

// Start launches the stage loops and blocks until the context is canceled
// and all in-flight runs drained
func (s *Scheduler) Start(ctx context.Context) {
	lgr.Printf("[INFO] scheduler started, fetch:%v evaluate:%v process:%v publish:%v",
		s.FetchInterval, s.EvaluateInterval, s.ProcessInterval, s.PublishInterval)

	// initial discovery before the first tick
	s.runFetch(ctx)
	s.runEvaluate(ctx)

	s.loop(ctx, s.FetchInterval, func() { s.runFetch(ctx) })
	s.loop(ctx, s.EvaluateInterval, func() { s.runEvaluate(ctx) })
	s.loop(ctx, s.ProcessInterval, func() { s.runProcess(ctx) })
	s.loop(ctx, s.PublishInterval, func() { s.runPublish(ctx) })
	s.loop(ctx, s.ProcessInterval, func() { s.sweepQueue(ctx) })

	<-ctx.Done()
	s.wg.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

// loop runs fn on a ticker until the context is canceled. Zero or negative
// interval disables the stage.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// TriggerFetch runs discovery on demand, outside the ticker cadence
func (s *Scheduler) TriggerFetch(ctx context.Context) *pipeline.FetchResult {
	return s.runFetch(ctx)
}

// TriggerEvaluate runs evaluation on demand
func (s *Scheduler) TriggerEvaluate(ctx context.Context) *pipeline.EvalResult {
	return s.runEvaluate(ctx)
}

// TriggerPublish runs a publish batch on demand
func (s *Scheduler) TriggerPublish(ctx context.Context) (*pipeline.PublishResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.RunDeadline)
	defer cancel()

	result, err := s.Publisher.Run(runCtx)
	s.record(func(l *LastRuns) { l.Publish, l.PublishAt = result, now() })
	return result, err
}

// Runs returns the latest stage summaries
func (s *Scheduler) Runs() LastRuns {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) runFetch(ctx context.Context) *pipeline.FetchResult {
	runCtx, cancel := context.WithTimeout(ctx, s.RunDeadline)
	defer cancel()

	result, err := s.Fetcher.Run(runCtx)
	if err != nil {
		lgr.Printf("[ERROR] discovery run failed: %v", err)
		return nil
	}
	s.record(func(l *LastRuns) { l.Fetch, l.FetchAt = result, now() })
	return result
}

func (s *Scheduler) runEvaluate(ctx context.Context) *pipeline.EvalResult {
	runCtx, cancel := context.WithTimeout(ctx, s.RunDeadline)
	defer cancel()

	result, err := s.Evaluator.Run(runCtx)
	if err != nil {
		lgr.Printf("[ERROR] evaluation run failed: %v", err)
		return nil
	}
	s.record(func(l *LastRuns) { l.Eval, l.EvalAt = result, now() })
	return result
}

func (s *Scheduler) runProcess(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.RunDeadline)
	defer cancel()

	result, err := s.Processor.Run(runCtx)
	if err != nil {
		lgr.Printf("[ERROR] queue run failed: %v", err)
		return
	}
	s.record(func(l *LastRuns) { l.Process, l.ProcessAt = result, now() })
}

func (s *Scheduler) runPublish(ctx context.Context) {
	if _, err := s.TriggerPublish(ctx); err != nil && !errors.Is(err, pipeline.ErrBatchBelowMinimum) {
		lgr.Printf("[ERROR] publish run failed: %v", err)
	}
}

// sweepQueue requeues retryable failures and reclaims items stranded in
// processing by a crashed worker
func (s *Scheduler) sweepQueue(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.RunDeadline)
	defer cancel()

	if n, err := s.Queue.RequeueFailed(runCtx, s.RetryDelay); err != nil {
		lgr.Printf("[WARN] requeue sweep failed: %v", err)
	} else if n > 0 {
		lgr.Printf("[INFO] requeued %d failed queue items", n)
	}

	if n, err := s.Queue.ReclaimStale(runCtx, s.ReclaimAfter); err != nil {
		lgr.Printf("[WARN] reclaim sweep failed: %v", err)
	} else if n > 0 {
		lgr.Printf("[INFO] reclaimed %d stale queue items", n)
	}
}

func (s *Scheduler) record(fn func(*LastRuns)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.last)
}

func now() *time.Time {
	t := time.Now()
	return &t
}
