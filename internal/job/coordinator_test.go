package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/clock/system"
	"github.com/bindery/novelbind/internal/id/uuid"
	"github.com/bindery/novelbind/internal/novel"
	"github.com/bindery/novelbind/internal/source"
	"github.com/bindery/novelbind/internal/store/memory"
)

// recordingAssembler captures the buffer handed to it and fabricates one
// artifact per requested format.
type recordingAssembler struct {
	mu      sync.Mutex
	calls   int
	lastBuf *novel.Buffer
	err     error
}

func (a *recordingAssembler) Assemble(_ context.Context, job novel.Job, _ *novel.Work, buf *novel.Buffer) ([]novel.Artifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.lastBuf = buf
	if a.err != nil {
		return nil, a.err
	}
	var artifacts []novel.Artifact
	for _, f := range job.Formats {
		artifacts = append(artifacts, novel.Artifact{
			Format: f,
			Path:   fmt.Sprintf("downloads/%s/novel.%s", job.ID, f),
		})
	}
	return artifacts, nil
}

func (a *recordingAssembler) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fixture struct {
	coord     *Coordinator
	store     *memory.JobStore
	assembler *recordingAssembler
	src       *fakeSource
}

func newFixture(t *testing.T, src *fakeSource, renderPool novel.RenderPool) *fixture {
	t.Helper()
	registry := source.NewRegistry()
	registry.Register(src)
	store := memory.NewJobStore()
	assembler := &recordingAssembler{}
	pool := NewPool(3, fastPolicy(), renderPool, zap.NewNop())
	coord := NewCoordinator(registry, store, assembler, pool, system.New(), uuid.NewGenerator(), Options{
		DefaultFormats: []novel.Format{novel.FormatEPUB},
		DefaultPolicy:  novel.PolicyBestEffort,
	}, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})
	return &fixture{coord: coord, store: store, assembler: assembler, src: src}
}

func waitTerminal(t *testing.T, f *fixture, jobID string) novel.Job {
	t.Helper()
	var j novel.Job
	require.Eventually(t, func() bool {
		var err error
		j, err = f.coord.Status(context.Background(), jobID)
		return err == nil && j.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return j
}

func TestCoordinatorCompletesCleanRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakeSource(10), nil)
	j, err := f.coord.Submit(context.Background(), novel.JobRequest{WorkURL: "https://example.com/novel/clean"})
	require.NoError(t, err)
	require.Equal(t, novel.JobStatusPending, j.Status)
	require.Equal(t, "example.com", j.Site)

	final := waitTerminal(t, f, j.ID)
	require.Equal(t, novel.JobStatusCompleted, final.Status)
	require.Equal(t, 10, final.Counters.ChaptersSucceeded)
	require.Zero(t, final.Counters.ChaptersFailed)
	require.Equal(t, "Test Novel", final.Title)
	require.Empty(t, final.Gaps)
	require.Len(t, final.Artifacts, 1)
	require.Equal(t, novel.FormatEPUB, final.Artifacts[0].Format)
	require.NotNil(t, final.Started)
	require.NotNil(t, final.Finished)

	// The assembled sequence is strictly ascending by index.
	require.Equal(t, 1, f.assembler.callCount())
	for i, ch := range f.assembler.lastBuf.Chapters() {
		require.NotNil(t, ch)
		require.Equal(t, i+1, ch.Ref.Index)
	}
}

func TestCoordinatorFailFastOnTerminalChapter(t *testing.T) {
	t.Parallel()

	src := newFakeSource(10)
	src.fetch = func(_ context.Context, index, _ int) (string, error) {
		if index == 7 {
			return "", novel.TerminalFetch(errors.New("parse error"))
		}
		return "ok", nil
	}
	f := newFixture(t, src, nil)

	j, err := f.coord.Submit(context.Background(), novel.JobRequest{
		WorkURL: "https://example.com/novel/failfast",
		Policy:  novel.PolicyFailFast,
	})
	require.NoError(t, err)

	final := waitTerminal(t, f, j.ID)
	require.Equal(t, novel.JobStatusFailed, final.Status)
	require.Contains(t, final.ErrorText, "parse error")
	require.Empty(t, final.Artifacts)
	require.Zero(t, f.assembler.callCount(), "fail-fast must not assemble")
}

func TestCoordinatorBestEffortAssemblesWithGap(t *testing.T) {
	t.Parallel()

	src := newFakeSource(10)
	src.fetch = func(_ context.Context, index, _ int) (string, error) {
		if index == 7 {
			return "", novel.TerminalFetch(errors.New("gone"))
		}
		return "ok", nil
	}
	f := newFixture(t, src, nil)

	j, err := f.coord.Submit(context.Background(), novel.JobRequest{
		WorkURL: "https://example.com/novel/besteffort",
		Policy:  novel.PolicyBestEffort,
	})
	require.NoError(t, err)

	final := waitTerminal(t, f, j.ID)
	require.Equal(t, novel.JobStatusCompleted, final.Status)
	require.Equal(t, 9, final.Counters.ChaptersSucceeded)
	require.Equal(t, 1, final.Counters.ChaptersFailed)
	require.Equal(t, []int{7}, final.Gaps)
	require.Len(t, final.Artifacts, 1)
	require.Equal(t, 1, f.assembler.callCount())
}

func TestCoordinatorCancelMidFetch(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 20)
	renderPool := &countingRenderPool{}
	src := newFakeSource(10)
	src.needsRender = true
	src.fetch = func(ctx context.Context, index, _ int) (string, error) {
		started <- struct{}{}
		select {
		case <-release:
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f := newFixture(t, src, renderPool)

	j, err := f.coord.Submit(context.Background(), novel.JobRequest{WorkURL: "https://example.com/novel/cancel"})
	require.NoError(t, err)

	<-started
	require.NoError(t, f.coord.Cancel(context.Background(), j.ID))
	close(release)

	final := waitTerminal(t, f, j.ID)
	require.Equal(t, novel.JobStatusCancelled, final.Status)
	require.Empty(t, final.Artifacts)
	require.Zero(t, f.assembler.callCount(), "cancelled jobs must not assemble")
	require.Eventually(t, func() bool { return renderPool.Held() == 0 },
		2*time.Second, 10*time.Millisecond, "render sessions must all be released")
}

func TestCoordinatorResubmitAfterCancelIsFresh(t *testing.T) {
	t.Parallel()

	var blocking sync.Mutex
	blocked := true
	release := make(chan struct{})
	started := make(chan struct{}, 20)
	src := newFakeSource(5)
	src.fetch = func(ctx context.Context, index, _ int) (string, error) {
		blocking.Lock()
		b := blocked
		blocking.Unlock()
		if !b {
			return "ok", nil
		}
		started <- struct{}{}
		select {
		case <-release:
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f := newFixture(t, src, nil)

	const workURL = "https://example.com/novel/resubmit"
	first, err := f.coord.Submit(context.Background(), novel.JobRequest{WorkURL: workURL})
	require.NoError(t, err)
	<-started
	require.NoError(t, f.coord.Cancel(context.Background(), first.ID))
	close(release)
	require.Equal(t, novel.JobStatusCancelled, waitTerminal(t, f, first.ID).Status)

	blocking.Lock()
	blocked = false
	blocking.Unlock()

	second, err := f.coord.Submit(context.Background(), novel.JobRequest{WorkURL: workURL})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	final := waitTerminal(t, f, second.ID)
	require.Equal(t, novel.JobStatusCompleted, final.Status)
	require.Equal(t, 5, final.Counters.ChaptersSucceeded)
}

func TestCoordinatorChapterRange(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakeSource(10), nil)
	j, err := f.coord.Submit(context.Background(), novel.JobRequest{
		WorkURL: "https://example.com/novel/range",
		Range:   novel.ChapterRange{First: 3, Last: 6},
	})
	require.NoError(t, err)

	final := waitTerminal(t, f, j.ID)
	require.Equal(t, novel.JobStatusCompleted, final.Status)
	require.Equal(t, 4, final.TotalChapters)
	require.Equal(t, 4, final.Counters.ChaptersSucceeded)

	chapters := f.assembler.lastBuf.Chapters()
	require.Len(t, chapters, 4)
	require.Equal(t, 3, chapters[0].Ref.Index)
	require.Equal(t, 6, chapters[3].Ref.Index)
}

func TestCoordinatorSubmitValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakeSource(3), nil)

	_, err := f.coord.Submit(context.Background(), novel.JobRequest{WorkURL: "https://othersite.com/novel/1"})
	require.ErrorIs(t, err, novel.ErrAdapterNotFound)

	_, err = f.coord.Submit(context.Background(), novel.JobRequest{
		WorkURL: "https://example.com/novel/1",
		Range:   novel.ChapterRange{First: 5, Last: 2},
	})
	require.Error(t, err)

	_, err = f.coord.Submit(context.Background(), novel.JobRequest{
		WorkURL: "https://example.com/novel/1",
		Formats: []novel.Format{"pdf"},
	})
	require.Error(t, err)
}

func TestCoordinatorCancelTerminalJobFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakeSource(3), nil)
	j, err := f.coord.Submit(context.Background(), novel.JobRequest{WorkURL: "https://example.com/novel/done"})
	require.NoError(t, err)
	waitTerminal(t, f, j.ID)

	err = f.coord.Cancel(context.Background(), j.ID)
	require.ErrorIs(t, err, ErrNotCancellable)

	err = f.coord.Cancel(context.Background(), "no-such-job")
	require.ErrorIs(t, err, novel.ErrJobNotFound)
}

func TestCoordinatorResolutionFailureFailsJob(t *testing.T) {
	t.Parallel()

	src := newFakeSource(0)
	f := newFixture(t, src, nil)

	j, err := f.coord.Submit(context.Background(), novel.JobRequest{WorkURL: "https://example.com/novel/empty"})
	require.NoError(t, err)

	final := waitTerminal(t, f, j.ID)
	require.Equal(t, novel.JobStatusFailed, final.Status)
	require.NotEmpty(t, final.ErrorText)
	require.Zero(t, f.assembler.callCount())
}

func TestCoordinatorAssemblyFailureFailsJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakeSource(3), nil)
	f.assembler.err = &novel.AssemblyError{Format: novel.FormatEPUB, Err: errors.New("disk full")}

	j, err := f.coord.Submit(context.Background(), novel.JobRequest{WorkURL: "https://example.com/novel/diskfull"})
	require.NoError(t, err)

	final := waitTerminal(t, f, j.ID)
	require.Equal(t, novel.JobStatusFailed, final.Status)
	require.Contains(t, final.ErrorText, "disk full")
}

func TestCoordinatorOpenEndedRanges(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakeSource(10), nil)

	// Only the upper bound set: the range starts at the first chapter.
	j, err := f.coord.Submit(context.Background(), novel.JobRequest{
		WorkURL: "https://example.com/novel/head",
		Range:   novel.ChapterRange{Last: 4},
	})
	require.NoError(t, err)
	final := waitTerminal(t, f, j.ID)
	require.Equal(t, novel.JobStatusCompleted, final.Status)
	require.Equal(t, 4, final.TotalChapters)
	chapters := f.assembler.lastBuf.Chapters()
	require.Len(t, chapters, 4)
	require.Equal(t, 1, chapters[0].Ref.Index)
	require.Equal(t, 4, chapters[3].Ref.Index)

	// Only the lower bound set: the range runs through the end.
	j, err = f.coord.Submit(context.Background(), novel.JobRequest{
		WorkURL: "https://example.com/novel/tail",
		Range:   novel.ChapterRange{First: 8},
	})
	require.NoError(t, err)
	final = waitTerminal(t, f, j.ID)
	require.Equal(t, novel.JobStatusCompleted, final.Status)
	require.Equal(t, 3, final.TotalChapters)
	chapters = f.assembler.lastBuf.Chapters()
	require.Len(t, chapters, 3)
	require.Equal(t, 8, chapters[0].Ref.Index)
	require.Equal(t, 10, chapters[2].Ref.Index)
}

// creationRecordingStore notes every job persisted through it.
type creationRecordingStore struct {
	novel.JobStore
	mu      sync.Mutex
	created []string
}

func (s *creationRecordingStore) CreateJob(ctx context.Context, j novel.Job) error {
	s.mu.Lock()
	s.created = append(s.created, j.ID)
	s.mu.Unlock()
	return s.JobStore.CreateJob(ctx, j)
}

func (s *creationRecordingStore) createdIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.created...)
}

func TestCoordinatorShutdownLeavesNoOrphanJob(t *testing.T) {
	t.Parallel()

	registry := source.NewRegistry()
	registry.Register(newFakeSource(3))
	store := &creationRecordingStore{JobStore: memory.NewJobStore()}
	pool := NewPool(1, fastPolicy(), nil, zap.NewNop())
	coord := NewCoordinator(registry, store, &recordingAssembler{}, pool, system.New(), uuid.NewGenerator(), Options{}, zap.NewNop())

	require.NoError(t, coord.Shutdown(context.Background()))

	_, err := coord.Submit(context.Background(), novel.JobRequest{WorkURL: "https://example.com/novel/late"})
	require.ErrorIs(t, err, ErrShuttingDown)
	require.Empty(t, store.createdIDs())
}
