// Package job drives crawl-and-assemble jobs: the per-job chapter fetch
// pool and the coordinator state machine above it.
package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/metrics"
	"github.com/bindery/novelbind/internal/novel"
	"github.com/bindery/novelbind/internal/retry"
)

// task is one chapter fetch unit. attempt counts completed attempts, so a
// freshly enqueued task carries 0.
type task struct {
	ref     novel.ChapterRef
	attempt int
}

// FetchResult summarizes one drained task queue.
type FetchResult struct {
	Succeeded int
	Failed    int
	Retries   int
	// FirstErr is the first terminal chapter error observed, kept for the
	// job's error text under fail-fast policy.
	FirstErr error
}

// Pool drains a per-job task queue with a fixed number of concurrent
// workers. Workers never block on chapter ordering: buffer slots are
// write-once and independent, so out-of-order completion is safe. Retries
// are scheduled re-enqueues, not in-worker sleeps, so a backing-off
// chapter never occupies a worker.
type Pool struct {
	workers    int
	policy     *retry.Policy
	renderPool novel.RenderPool
	logger     *zap.Logger
}

// NewPool builds a fetch pool. renderPool may be nil when no registered
// source requires rendering.
func NewPool(workers int, policy *retry.Policy, renderPool novel.RenderPool, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers:    workers,
		policy:     policy,
		renderPool: renderPool,
		logger:     logger,
	}
}

// Run fetches every chapter in refs into buf and returns once all tasks
// reached a terminal outcome or ctx was cancelled. The queue is buffered
// to the full task count, so enqueues (including delayed re-enqueues)
// never block.
func (p *Pool) Run(ctx context.Context, src novel.Source, refs []novel.ChapterRef, buf *novel.Buffer) FetchResult {
	if len(refs) == 0 {
		return FetchResult{}
	}

	queue := make(chan task, len(refs))
	pending := int64(len(refs))
	settle := func() {
		if atomic.AddInt64(&pending, -1) == 0 {
			close(queue)
		}
	}

	var (
		succeeded atomic.Int64
		failed    atomic.Int64
		retries   atomic.Int64

		errOnce  sync.Once
		firstErr error
	)

	for _, ref := range refs {
		queue <- task{ref: ref}
	}

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-queue:
					if !ok {
						return
					}
					err := p.fetchOne(ctx, src, t.ref, buf)
					if err == nil {
						succeeded.Add(1)
						metrics.ChaptersTotal.WithLabelValues(src.Site(), "succeeded").Inc()
						settle()
						continue
					}
					attempt := t.attempt + 1
					if ctx.Err() == nil && p.policy.ShouldRetry(err, attempt) {
						retries.Add(1)
						metrics.RetriesTotal.Inc()
						p.logger.Debug("chapter retry scheduled",
							zap.Int("index", t.ref.Index),
							zap.Int("attempt", attempt),
							zap.Error(err))
						p.scheduleRetry(ctx, queue, task{ref: t.ref, attempt: attempt}, settle)
						continue
					}
					failed.Add(1)
					metrics.ChaptersTotal.WithLabelValues(src.Site(), "failed").Inc()
					errOnce.Do(func() { firstErr = err })
					p.logger.Warn("chapter failed terminally",
						zap.Int("index", t.ref.Index),
						zap.Int("attempts", attempt),
						zap.Error(err))
					settle()
				}
			}
		}()
	}
	wg.Wait()

	return FetchResult{
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Retries:   int(retries.Load()),
		FirstErr:  firstErr,
	}
}

// scheduleRetry re-enqueues t after the policy backoff. The timer fires
// exactly once, so the task's pending slot is always settled eventually:
// either by the re-enqueued task reaching a terminal outcome or, if the
// job was cancelled in the meantime, directly here.
func (p *Pool) scheduleRetry(ctx context.Context, queue chan<- task, t task, settle func()) {
	delay := p.policy.Backoff(t.attempt)
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			settle()
			return
		}
		queue <- t
	})
}

// fetchOne runs a single chapter attempt, acquiring a render session first
// when the source requires one. The session is released on every exit path.
func (p *Pool) fetchOne(ctx context.Context, src novel.Source, ref novel.ChapterRef, buf *novel.Buffer) error {
	var sess novel.RenderSession
	if src.NeedsRendering() {
		var err error
		sess, err = p.renderPool.Acquire(ctx)
		if err != nil {
			return err
		}
		defer p.renderPool.Release(sess)
	}

	start := time.Now()
	html, err := src.FetchChapter(ctx, ref, sess)
	metrics.ObserveFetch(src.Site(), time.Since(start))
	if err != nil {
		return err
	}
	return buf.Put(&novel.Chapter{Ref: ref, HTML: html})
}
