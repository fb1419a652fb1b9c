package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// defaultStaleAfter is how long a plan may sit in "enriching" before the sweep retries it
const defaultStaleAfter = 30 * time.Minute

// QueueConfig sizes the worker pool
type QueueConfig struct {
	Workers    int
	Size       int
	StaleAfter time.Duration
}

// Queue runs plan enrichment on a bounded pool of workers.
// A plan is never processed by two workers at once; enqueueing a plan that is
// already running schedules exactly one more pass after the current one.
type Queue struct {
	enricher   *Enricher
	jobs       chan string
	workers    int
	staleAfter time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	queued   map[string]bool
	running  map[string]bool
	rerun    map[string]bool
	closed   bool
	wg       sync.WaitGroup
	cron     *cron.Cron
	stopOnce sync.Once
}

// NewQueue creates a queue; call Start to launch the workers
func NewQueue(e *Enricher, cfg QueueConfig, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Size < 1 {
		cfg.Size = 64
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	return &Queue{
		enricher:   e,
		jobs:       make(chan string, cfg.Size),
		workers:    cfg.Workers,
		staleAfter: cfg.StaleAfter,
		logger:     logger,
		queued:     make(map[string]bool),
		running:    make(map[string]bool),
		rerun:      make(map[string]bool),
	}
}

// Start launches the workers. They exit when ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Enqueue schedules a plan for enrichment. It never blocks and reports whether
// the plan was accepted; a full queue leaves the plan for the next sweep.
func (q *Queue) Enqueue(planID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.queued[planID] {
		return false
	}
	if q.running[planID] {
		q.rerun[planID] = true
		return true
	}

	select {
	case q.jobs <- planID:
		q.queued[planID] = true
		queueDepth.Set(float64(len(q.jobs)))
		return true
	default:
		q.logger.Warn("enrichment queue full, plan left for the next sweep", "plan", planID)
		return false
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case planID, ok := <-q.jobs:
			if !ok {
				return
			}
			q.begin(planID)
			if err := q.enricher.EnrichPlan(ctx, planID); err != nil {
				q.logger.Error("plan enrichment error", "worker", id, "plan", planID, "error", err)
			}
			q.finish(planID)
		}
	}
}

func (q *Queue) begin(planID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queued, planID)
	q.running[planID] = true
	queueDepth.Set(float64(len(q.jobs)))
}

func (q *Queue) finish(planID string) {
	q.mu.Lock()
	again := q.rerun[planID]
	delete(q.rerun, planID)
	delete(q.running, planID)
	q.mu.Unlock()

	if again {
		q.Enqueue(planID)
	}
}

// Sweep enqueues every active plan whose enrichment is unfinished.
// Without a configured model there is nothing a retry could change, so it does nothing.
func (q *Queue) Sweep(ctx context.Context) (int, error) {
	if !q.enricher.llm.IsConfigured() {
		q.logger.Debug("enrichment sweep skipped, llm not configured")
		return 0, nil
	}
	ids, err := q.enricher.store.PlansNeedingEnrichment(ctx, time.Now().Add(-q.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("listing plans to enrich: %w", err)
	}
	n := 0
	for _, id := range ids {
		if q.Enqueue(id) {
			n++
		}
	}
	if n > 0 {
		q.logger.Info("enrichment sweep queued plans", "count", n)
	}
	return n, nil
}

// ScheduleSweep runs Sweep on a cron schedule such as "@every 15m"
func (q *Queue) ScheduleSweep(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := q.Sweep(ctx); err != nil {
			q.logger.Error("enrichment sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling sweep %q: %w", spec, err)
	}
	c.Start()

	q.mu.Lock()
	q.cron = c
	q.mu.Unlock()
	return nil
}

// Stop stops the sweep, stops accepting plans and waits for the workers to drain the queue
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		c := q.cron
		close(q.jobs)
		q.mu.Unlock()

		if c != nil {
			<-c.Stop().Done()
		}
		q.wg.Wait()
	})
}
