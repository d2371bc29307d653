package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/totalizer-lab/totalizer/internal/storage"
)

const defaultWorkers = 2

// commit is one pending counter update.
type commit struct {
	key      string
	ttl      time.Duration
	enqueued time.Time
}

// Committer drains a bounded queue of counter increments into the store.
//
// Two knobs bound concurrency independently: a fixed worker pool sized to
// the configured store connection count pulls from the queue, and a
// semaphore sized to connections+1 caps in-flight store calls. When the
// queue is at max depth, new submissions are dropped and counted rather
// than queued: bounded latency of the ingest surface wins over completeness
// of counting during overload.
type Committer struct {
	store   storage.Store
	queue   chan commit
	sem     *semaphore.Weighted
	workers int
	logger  *slog.Logger
	metrics *Metrics

	committed    atomic.Int64
	commitErrors atomic.Int64
	dropped      atomic.Int64

	wg sync.WaitGroup
}

// NewCommitter creates a committer with the given queue depth limit and
// store connection count.
func NewCommitter(store storage.Store, queueMax, connections int, metrics *Metrics, logger *slog.Logger) *Committer {
	if queueMax <= 0 {
		queueMax = 100
	}
	if connections <= 0 {
		connections = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{
		store:   store,
		queue:   make(chan commit, queueMax),
		sem:     semaphore.NewWeighted(int64(connections + 1)),
		workers: connections,
		logger:  logger,
		metrics: metrics,
	}
}

// Start launches the worker pool. Workers run until ctx is cancelled.
func (c *Committer) Start(ctx context.Context) {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.worker(ctx)
		}()
	}
}

// Full reports whether the queue is at its configured maximum depth.
// Checked by listeners before dispatching a datagram.
func (c *Committer) Full() bool {
	return len(c.queue) == cap(c.queue)
}

// Depth returns the current queue depth.
func (c *Committer) Depth() int { return len(c.queue) }

// Stats returns committed, commit-error and dropped counts.
func (c *Committer) Stats() (committed, commitErrors, dropped int64) {
	return c.committed.Load(), c.commitErrors.Load(), c.dropped.Load()
}

// Submit places an increment on the queue. When the queue is at max depth
// the submission is dropped outright and counted; otherwise the caller may
// block briefly while capacity frees up, or until ctx is cancelled.
func (c *Committer) Submit(ctx context.Context, key string, ttl time.Duration) bool {
	item := commit{key: key, ttl: ttl, enqueued: time.Now()}

	if c.Full() {
		c.dropped.Add(1)
		c.metrics.incCommitsDropped()
		return false
	}

	select {
	case c.queue <- item:
		c.metrics.setQueueDepth(len(c.queue))
		return true
	case <-ctx.Done():
		return false
	}
}

// worker pulls commits and executes them against the store, bounded by the
// connection semaphore. Store errors are logged and abandoned, not retried;
// counters are allowed to be lossy under store failure.
func (c *Committer) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.queue:
			c.metrics.setQueueDepth(len(c.queue))
			if err := c.sem.Acquire(ctx, 1); err != nil {
				// Cancellation during drain: abandon quietly.
				return
			}
			c.execute(ctx, item)
			c.sem.Release(1)
		}
	}
}

func (c *Committer) execute(ctx context.Context, item commit) {
	err := c.store.IncrementWithTTL(ctx, item.key, item.ttl)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.commitErrors.Add(1)
		c.metrics.incCommitErrors()
		c.logger.Error("store commit failed", "key", item.key, "error", err)
		return
	}
	c.committed.Add(1)
	c.metrics.incCommits()
	c.metrics.observeCommitLatency(time.Since(item.enqueued))
}

// Wait blocks until all workers have exited after cancellation.
func (c *Committer) Wait() {
	c.wg.Wait()
}
