package job

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/metrics"
	"github.com/bindery/novelbind/internal/novel"
	"github.com/bindery/novelbind/internal/source"
)

// ErrNotCancellable indicates the job already left its cancellable states.
var ErrNotCancellable = errors.New("job is not cancellable")

// ErrShuttingDown indicates submissions are no longer accepted.
var ErrShuttingDown = errors.New("coordinator is shutting down")

// Assembler produces the requested output artifacts from a drained buffer.
type Assembler interface {
	Assemble(ctx context.Context, job novel.Job, work *novel.Work, buf *novel.Buffer) ([]novel.Artifact, error)
}

// Options carry submission defaults applied when a request omits them.
type Options struct {
	DefaultFormats []novel.Format
	DefaultPolicy  novel.Policy
}

// Coordinator owns the job lifecycle: Pending → Resolving → Fetching →
// Assembling → Completed, with Failed reachable from any state and
// Cancelled from Resolving or Fetching. Each job runs on its own
// goroutine with a context detached from the submitting request.
type Coordinator struct {
	registry  *source.Registry
	store     novel.JobStore
	assembler Assembler
	pool      *Pool
	clock     novel.Clock
	ids       novel.IDGenerator
	opts      Options
	logger    *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewCoordinator wires the coordinator.
func NewCoordinator(registry *source.Registry, store novel.JobStore, assembler Assembler, pool *Pool, clock novel.Clock, ids novel.IDGenerator, opts Options, logger *zap.Logger) *Coordinator {
	if opts.DefaultPolicy == "" {
		opts.DefaultPolicy = novel.PolicyBestEffort
	}
	if len(opts.DefaultFormats) == 0 {
		opts.DefaultFormats = []novel.Format{novel.FormatEPUB}
	}
	return &Coordinator{
		registry:  registry,
		store:     store,
		assembler: assembler,
		pool:      pool,
		clock:     clock,
		ids:       ids,
		opts:      opts,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit validates the request, persists a pending job, and starts its
// lifecycle goroutine. An unmatched work reference fails immediately with
// novel.ErrAdapterNotFound.
func (c *Coordinator) Submit(ctx context.Context, req novel.JobRequest) (novel.Job, error) {
	src, err := c.registry.Resolve(req.WorkURL)
	if err != nil {
		return novel.Job{}, err
	}
	req.Range = normalizeRange(req.Range)
	if err := validateRange(req.Range); err != nil {
		return novel.Job{}, err
	}
	formats := req.Formats
	if len(formats) == 0 {
		formats = c.opts.DefaultFormats
	}
	for _, f := range formats {
		if _, ok := novel.ParseFormat(string(f)); !ok {
			return novel.Job{}, fmt.Errorf("unknown output format %q", f)
		}
	}
	policy := req.Policy
	if policy == "" {
		policy = c.opts.DefaultPolicy
	}
	if policy != novel.PolicyFailFast && policy != novel.PolicyBestEffort {
		return novel.Job{}, fmt.Errorf("unknown execution policy %q", policy)
	}

	id, err := c.ids.NewID()
	if err != nil {
		return novel.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	j := novel.Job{
		ID:        id,
		WorkURL:   req.WorkURL,
		Site:      src.Site(),
		Status:    novel.JobStatusPending,
		Policy:    policy,
		Formats:   formats,
		Range:     req.Range,
		Submitted: c.clock.Now(),
	}
	// The job context is detached from the submitting request so the job
	// survives the HTTP call that created it. The cancel slot is reserved
	// before the job is persisted, so a submission refused by Shutdown
	// leaves nothing behind in the store.
	jobCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return novel.Job{}, ErrShuttingDown
	}
	c.cancels[id] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	if err := c.store.CreateJob(ctx, j); err != nil {
		cancel()
		c.mu.Lock()
		delete(c.cancels, id)
		c.mu.Unlock()
		c.wg.Done()
		return novel.Job{}, fmt.Errorf("create job: %w", err)
	}

	go c.run(jobCtx, j, src)
	return j, nil
}

// Status returns the job's current persisted state.
func (c *Coordinator) Status(ctx context.Context, jobID string) (novel.Job, error) {
	return c.store.GetJob(ctx, jobID)
}

// Cancel signals the job's lifecycle goroutine to stop. Cancellation is
// cooperative: in-flight fetches observe it at their next suspension
// point, and held render sessions are released on their normal exit paths.
func (c *Coordinator) Cancel(ctx context.Context, jobID string) error {
	j, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	switch j.Status {
	case novel.JobStatusPending, novel.JobStatusResolving, novel.JobStatusFetching:
	default:
		return fmt.Errorf("%w: status %s", ErrNotCancellable, j.Status)
	}
	c.mu.Lock()
	cancel, ok := c.cancels[jobID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: status %s", ErrNotCancellable, j.Status)
	}
	cancel()
	return nil
}

// Shutdown stops accepting submissions, cancels every live job, and waits
// for lifecycle goroutines to finish or ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for _, cancel := range c.cancels {
		cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, j novel.Job, src novel.Source) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, j.ID)
		c.mu.Unlock()
	}()

	logger := c.logger.With(zap.String("job_id", j.ID), zap.String("site", j.Site))
	finish := func(status novel.JobStatus, errText string, counters novel.Counters) {
		metrics.JobsTotal.WithLabelValues(string(status)).Inc()
		if err := c.store.UpdateJobStatus(context.Background(), j.ID, status, errText, counters); err != nil {
			logger.Error("record terminal status failed", zap.Error(err))
		}
		logger.Info("job finished",
			zap.String("status", string(status)),
			zap.Int("succeeded", counters.ChaptersSucceeded),
			zap.Int("failed", counters.ChaptersFailed))
	}

	c.setStatus(j.ID, novel.JobStatusResolving, logger)
	work, err := src.ListChapters(ctx, j.WorkURL)
	if err != nil {
		if ctx.Err() != nil {
			finish(novel.JobStatusCancelled, "", novel.Counters{})
			return
		}
		finish(novel.JobStatusFailed, err.Error(), novel.Counters{})
		return
	}

	refs, err := sliceRange(work.Chapters, j.Range)
	if err != nil {
		finish(novel.JobStatusFailed, err.Error(), novel.Counters{})
		return
	}
	if err := c.store.SetWork(context.Background(), j.ID, work.Title, len(refs)); err != nil {
		logger.Error("record work metadata failed", zap.Error(err))
	}
	j.Title = work.Title
	j.TotalChapters = len(refs)

	c.setStatus(j.ID, novel.JobStatusFetching, logger)
	buf := novel.NewBuffer(refs[0].Index, len(refs))
	res := c.pool.Run(ctx, src, refs, buf)
	counters := novel.Counters{
		ChaptersSucceeded: res.Succeeded,
		ChaptersFailed:    res.Failed,
		Retries:           res.Retries,
	}
	if ctx.Err() != nil {
		finish(novel.JobStatusCancelled, "", counters)
		return
	}
	if j.Policy == novel.PolicyFailFast && res.Failed > 0 {
		finish(novel.JobStatusFailed, failText(res), counters)
		return
	}
	if res.Succeeded == 0 {
		finish(novel.JobStatusFailed, failText(res), counters)
		return
	}

	c.setStatus(j.ID, novel.JobStatusAssembling, logger)
	// Assembly runs to completion even if a cancel arrives now: the job
	// already left its cancellable states.
	artifacts, err := c.assembler.Assemble(context.WithoutCancel(ctx), j, work, buf)
	if err != nil {
		finish(novel.JobStatusFailed, err.Error(), counters)
		return
	}
	if err := c.store.RecordResult(context.Background(), j.ID, artifacts, buf.Gaps()); err != nil {
		logger.Error("record result failed", zap.Error(err))
	}
	finish(novel.JobStatusCompleted, "", counters)
}

func (c *Coordinator) setStatus(jobID string, status novel.JobStatus, logger *zap.Logger) {
	if err := c.store.UpdateJobStatus(context.Background(), jobID, status, "", novel.Counters{}); err != nil {
		logger.Error("record status failed", zap.String("status", string(status)), zap.Error(err))
	}
	logger.Info("job state", zap.String("status", string(status)))
}

// normalizeRange fills the open end of a half-specified range: an unset
// First means the list start, an unset Last means through the end.
func normalizeRange(r novel.ChapterRange) novel.ChapterRange {
	if r.IsZero() {
		return r
	}
	if r.First == 0 {
		r.First = 1
	}
	return r
}

func validateRange(r novel.ChapterRange) error {
	if r.IsZero() {
		return nil
	}
	if r.First < 1 || (r.Last != 0 && r.Last < r.First) {
		return fmt.Errorf("invalid chapter range [%d,%d]", r.First, r.Last)
	}
	return nil
}

// sliceRange narrows the resolved chapter list to the requested range.
// Last is clamped to the list length; a First beyond the list is an error.
func sliceRange(refs []novel.ChapterRef, r novel.ChapterRange) ([]novel.ChapterRef, error) {
	if len(refs) == 0 {
		return nil, errors.New("empty chapter list")
	}
	if r.IsZero() {
		return refs, nil
	}
	if r.First > len(refs) {
		return nil, fmt.Errorf("chapter range starts at %d but work has %d chapters", r.First, len(refs))
	}
	last := r.Last
	if last == 0 || last > len(refs) {
		last = len(refs)
	}
	return refs[r.First-1 : last], nil
}

func failText(res FetchResult) string {
	if res.FirstErr != nil {
		return res.FirstErr.Error()
	}
	return "no chapters fetched"
}
