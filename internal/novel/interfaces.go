package novel

import (
	"context"
	"net/http"
	"time"
)

// Source is the per-site adapter capability set: chapter discovery plus
// chapter content retrieval. Implementations are stateless beyond
// configuration and safe for concurrent use by multiple jobs.
type Source interface {
	// Site returns the host pattern the adapter serves, e.g. "fanmtl.com".
	Site() string
	// ListChapters resolves the work reference into metadata and an
	// ordered chapter list. Failures wrap ResolutionError.
	ListChapters(ctx context.Context, workURL string) (*Work, error)
	// FetchChapter retrieves one chapter body as cleaned HTML. The
	// session is non-nil exactly when NeedsRendering reports true.
	// Failures are FetchErrors classified transient or terminal.
	FetchChapter(ctx context.Context, ref ChapterRef, sess RenderSession) (string, error)
	// NeedsRendering reports whether chapter fetches for this site must
	// run through the render capability pool.
	NeedsRendering() bool
}

// RenderSession is a leased handle to a script-executing page renderer.
// It is owned by exactly one in-flight fetch at a time.
type RenderSession interface {
	// Render navigates to the URL, waits for waitSelector to be ready,
	// and returns the rendered document HTML.
	Render(ctx context.Context, url string, waitSelector string) (string, error)
}

// RenderPool bounds the number of concurrently active render sessions.
// Release is unconditional on every exit path of a lease.
type RenderPool interface {
	Acquire(ctx context.Context) (RenderSession, error)
	Release(sess RenderSession)
	// Held reports the number of sessions currently leased out.
	Held() int
}

// Fetcher retrieves a URL body for adapters that do not need rendering.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// JobStore persists job metadata and results.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters Counters) error
	SetWork(ctx context.Context, jobID string, title string, totalChapters int) error
	RecordResult(ctx context.Context, jobID string, artifacts []Artifact, gaps []int) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
