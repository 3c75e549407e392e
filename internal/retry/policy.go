// Package retry implements the retry/backoff controller for chapter fetches.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/bindery/novelbind/internal/novel"
)

// Policy decides whether a failed chapter fetch is re-enqueued and how
// long to wait before the next attempt.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// New builds a policy. maxAttempts counts total attempts, not retries.
func New(maxAttempts int, baseDelay, maxDelay time.Duration) *Policy {
	return &Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// Default returns a policy with sane defaults.
func Default() *Policy {
	return New(3, 250*time.Millisecond, 5*time.Second)
}

// MaxAttempts returns the attempt cap.
func (p *Policy) MaxAttempts() int { return p.maxAttempts }

// Classify maps an error to its retry class. Adapter-reported kinds win;
// timeouts and generic network errors are transient; cancellation is never
// retried and classifies terminal so the caller stops immediately.
func (p *Policy) Classify(err error) novel.FetchKind {
	if err == nil {
		return novel.FetchTerminal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return novel.FetchTerminal
	}
	var fe *novel.FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, novel.ErrRenderTimeout) {
		return novel.FetchTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return novel.FetchTransient
	}
	// Unclassified failures get the benefit of the doubt up to the cap.
	return novel.FetchTransient
}

// ShouldRetry reports whether a fetch that failed on the given attempt
// (1-based) is eligible for re-enqueue.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	return p.Classify(err) == novel.FetchTransient
}

// Backoff returns the wait before attempt+1, base*2^(attempt-1) capped at
// maxDelay, with up to 50% jitter.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
