package poh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrOutOfOrder is returned by Archive.Append for an index at or below the
// archive's tail.
var ErrOutOfOrder = errors.New("entry index out of order")

// Archive is an append-only export of chain entries for external auditing.
// It is write-only from the node's point of view: state is never rebuilt
// from it. Indices are strictly increasing but may have gaps where the
// archiver shed load.
//
// Both MemoryArchive and PostgresArchive implement this interface.
type Archive interface {
	// Append stores e at index, which must exceed every stored index.
	Append(ctx context.Context, index int, e Entry) error

	// Get returns the entry stored at index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}

// MemoryArchive is an in-memory, thread-safe Archive, used in tests and
// when no database is configured.
type MemoryArchive struct {
	mu      sync.RWMutex
	entries map[int]Entry
	tail    int
}

// NewMemoryArchive returns an empty MemoryArchive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{entries: make(map[int]Entry), tail: -1}
}

// Append implements Archive.
func (a *MemoryArchive) Append(_ context.Context, index int, e Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index <= a.tail {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, index, a.tail)
	}
	a.entries[index] = e
	a.tail = index
	return nil
}

// Get implements Archive.
func (a *MemoryArchive) Get(_ context.Context, index int) (*Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[index]
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrEntryNotFound, index)
	}
	return &e, nil
}

// Len implements Archive.
func (a *MemoryArchive) Len(_ context.Context) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries), nil
}

// Indices returns the stored indices in ascending order.
func (a *MemoryArchive) Indices() []int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]int, 0, len(a.entries))
	for i := range a.entries {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
