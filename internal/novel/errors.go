package novel

import (
	"errors"
	"fmt"
)

// ErrAdapterNotFound indicates no registered adapter matches the work
// reference. Surfaced immediately at submission.
var ErrAdapterNotFound = errors.New("no adapter registered for reference")

// ErrRenderTimeout indicates a render session exceeded its time budget.
// Always classified transient.
var ErrRenderTimeout = errors.New("render timed out")

// ErrDuplicateSlot indicates a second write to an output buffer index.
var ErrDuplicateSlot = errors.New("chapter slot already written")

// ErrJobNotFound indicates the job store has no job with the given ID.
var ErrJobNotFound = errors.New("job not found")

// FetchKind classifies a chapter fetch failure.
type FetchKind string

// Fetch failure classes.
const (
	FetchTransient FetchKind = "transient"
	FetchTerminal  FetchKind = "terminal"
)

// FetchError wraps a chapter fetch failure with its retry classification.
type FetchError struct {
	Kind FetchKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TransientFetch wraps err as a retryable fetch failure.
func TransientFetch(err error) *FetchError {
	return &FetchError{Kind: FetchTransient, Err: err}
}

// TerminalFetch wraps err as a non-retryable fetch failure.
func TerminalFetch(err error) *FetchError {
	return &FetchError{Kind: FetchTerminal, Err: err}
}

// ResolutionError indicates the chapter listing for a work failed.
// Always fatal for the job.
type ResolutionError struct {
	Site string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Site, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// AssemblyError indicates a format conversion or artifact write failed.
type AssemblyError struct {
	Format Format
	Err    error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble %s: %v", e.Format, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }
