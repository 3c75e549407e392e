package novel

import (
	"fmt"
	"sync"
)

// Buffer is the per-job ordered output buffer. Each chapter index owns a
// disjoint, write-once slot, so out-of-order completion is safe. A nil
// slot after fetching is a gap.
type Buffer struct {
	mu    sync.Mutex
	first int
	slots []*Chapter
}

// NewBuffer creates a buffer covering the inclusive index range
// [first, first+count-1].
func NewBuffer(first, count int) *Buffer {
	return &Buffer{
		first: first,
		slots: make([]*Chapter, count),
	}
}

// Put commits a fetched chapter into its slot. A second write to the same
// index fails with ErrDuplicateSlot.
func (b *Buffer) Put(ch *Chapter) error {
	pos := ch.Ref.Index - b.first
	if pos < 0 || pos >= len(b.slots) {
		return fmt.Errorf("chapter index %d outside buffer range [%d,%d]",
			ch.Ref.Index, b.first, b.first+len(b.slots)-1)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.slots[pos] != nil {
		return fmt.Errorf("index %d: %w", ch.Ref.Index, ErrDuplicateSlot)
	}
	b.slots[pos] = ch
	return nil
}

// First returns the lowest chapter index the buffer covers.
func (b *Buffer) First() int { return b.first }

// Len returns the number of slots.
func (b *Buffer) Len() int { return len(b.slots) }

// Chapters returns the slots in ascending index order. Nil entries mark
// chapters that never succeeded.
func (b *Buffer) Chapters() []*Chapter {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Chapter, len(b.slots))
	copy(out, b.slots)
	return out
}

// Gaps returns the chapter indices of empty slots in ascending order.
func (b *Buffer) Gaps() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var gaps []int
	for i, ch := range b.slots {
		if ch == nil {
			gaps = append(gaps, b.first+i)
		}
	}
	return gaps
}
