package novel

import (
	"errors"
	"sync"
	"testing"
)

func TestBufferOutOfOrderWrites(t *testing.T) {
	t.Parallel()

	buf := NewBuffer(1, 5)
	for _, idx := range []int{3, 1, 5, 2, 4} {
		err := buf.Put(&Chapter{Ref: ChapterRef{Index: idx}, HTML: "x"})
		if err != nil {
			t.Fatalf("Put(%d) error = %v", idx, err)
		}
	}

	chapters := buf.Chapters()
	if len(chapters) != 5 {
		t.Fatalf("expected 5 chapters, got %d", len(chapters))
	}
	for i, ch := range chapters {
		if ch == nil || ch.Ref.Index != i+1 {
			t.Fatalf("slot %d: expected index %d, got %+v", i, i+1, ch)
		}
	}
	if gaps := buf.Gaps(); len(gaps) != 0 {
		t.Fatalf("expected no gaps, got %v", gaps)
	}
}

func TestBufferDuplicateSlot(t *testing.T) {
	t.Parallel()

	buf := NewBuffer(1, 3)
	if err := buf.Put(&Chapter{Ref: ChapterRef{Index: 2}}); err != nil {
		t.Fatalf("first Put error = %v", err)
	}
	err := buf.Put(&Chapter{Ref: ChapterRef{Index: 2}})
	if !errors.Is(err, ErrDuplicateSlot) {
		t.Fatalf("expected ErrDuplicateSlot, got %v", err)
	}
}

func TestBufferRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	buf := NewBuffer(5, 3)
	for _, idx := range []int{4, 8} {
		if err := buf.Put(&Chapter{Ref: ChapterRef{Index: idx}}); err == nil {
			t.Fatalf("expected range error for index %d", idx)
		}
	}
	if err := buf.Put(&Chapter{Ref: ChapterRef{Index: 7}}); err != nil {
		t.Fatalf("Put(7) error = %v", err)
	}
}

func TestBufferGaps(t *testing.T) {
	t.Parallel()

	buf := NewBuffer(1, 4)
	_ = buf.Put(&Chapter{Ref: ChapterRef{Index: 1}})
	_ = buf.Put(&Chapter{Ref: ChapterRef{Index: 4}})

	gaps := buf.Gaps()
	if len(gaps) != 2 || gaps[0] != 2 || gaps[1] != 3 {
		t.Fatalf("expected gaps [2 3], got %v", gaps)
	}
}

func TestBufferConcurrentWriters(t *testing.T) {
	t.Parallel()

	const n = 64
	buf := NewBuffer(1, n)
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := buf.Put(&Chapter{Ref: ChapterRef{Index: idx}}); err != nil {
				t.Errorf("Put(%d) error = %v", idx, err)
			}
		}(i)
	}
	wg.Wait()
	if gaps := buf.Gaps(); len(gaps) != 0 {
		t.Fatalf("expected full buffer, gaps = %v", gaps)
	}
}
