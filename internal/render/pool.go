// Package render implements the bounded pool of headless rendering sessions.
package render

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/metrics"
	"github.com/bindery/novelbind/internal/novel"
)

// Engine abstracts the underlying headless browser: navigate, wait,
// extract. Its startup/teardown lifecycle is owned by the pool.
type Engine interface {
	// Render loads url in a fresh tab, waits for waitSelector, and
	// returns the document HTML. Exceeding timeout fails with
	// novel.ErrRenderTimeout.
	Render(ctx context.Context, url, waitSelector string, timeout time.Duration) (string, error)
	// Alive reports whether the browser process is still usable.
	Alive() bool
	// Recycle replaces a dead browser process with a fresh one.
	Recycle() error
	// Close tears the browser down.
	Close(ctx context.Context) error
}

// Pool bounds concurrently active render sessions. Sessions are heavyweight
// (a browser tab plus its share of the browser process), so acquisition
// blocks once capacity is reached and release is unconditional on every
// exit path of a lease.
type Pool struct {
	engine     Engine
	sem        chan struct{}
	navTimeout time.Duration
	logger     *zap.Logger
}

// NewPool creates a pool with the given session capacity.
func NewPool(engine Engine, capacity int, navTimeout time.Duration, logger *zap.Logger) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		engine:     engine,
		sem:        make(chan struct{}, capacity),
		navTimeout: navTimeout,
		logger:     logger,
	}
}

// Acquire leases a session, blocking until one is available or the context
// finishes.
func (p *Pool) Acquire(ctx context.Context) (novel.RenderSession, error) {
	select {
	case p.sem <- struct{}{}:
		metrics.RenderSessionsHeld.Inc()
		return &Session{pool: p}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render session: %w", ctx.Err())
	}
}

// Release returns a session to the pool. A session whose underlying
// browser became unusable is replaced rather than returned. Safe to call
// more than once; only the first call counts.
func (p *Pool) Release(s novel.RenderSession) {
	sess, ok := s.(*Session)
	if !ok || sess == nil || sess.released.Swap(true) {
		return
	}
	if !p.engine.Alive() {
		if err := p.engine.Recycle(); err != nil {
			p.logger.Error("render engine recycle failed", zap.Error(err))
		}
	}
	<-p.sem
	metrics.RenderSessionsHeld.Dec()
}

// Held reports the number of sessions currently leased out.
func (p *Pool) Held() int {
	return len(p.sem)
}

// Close tears down the underlying engine. Outstanding leases become
// worthless but release without blocking.
func (p *Pool) Close(ctx context.Context) error {
	return p.engine.Close(ctx)
}

// Session is one leased rendering slot. It is owned by exactly one
// in-flight fetch and never outlives it.
type Session struct {
	pool     *Pool
	released atomic.Bool
}

// Render executes the page with scripts enabled and returns the DOM
// snapshot once waitSelector is ready.
func (s *Session) Render(ctx context.Context, url, waitSelector string) (string, error) {
	if s.released.Load() {
		return "", fmt.Errorf("render session already released")
	}
	return s.pool.engine.Render(ctx, url, waitSelector, s.pool.navTimeout)
}
