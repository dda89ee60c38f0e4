/*
locks.go - Per-book bounded locking

PURPOSE:
  Serializes engine operations on the same book. Book-level granularity
  is sufficient: members act independently, so member-level contention
  is not a correctness concern.

NO INDEFINITE BLOCKING:
  Acquisition waits at most the configured duration and then fails with
  ErrBusy instead of deadlocking. Once acquired, an operation runs to
  completion or full rollback; there is no mid-operation cancellation.
*/
package library

import (
	"context"
	"sync"
	"time"
)

// bookLocks hands out one slot per book id. A slot is a buffered channel
// used as a semaphore so acquisition can race a timer.
type bookLocks struct {
	mu    sync.Mutex
	slots map[BookID]chan struct{}
	wait  time.Duration
}

func newBookLocks(wait time.Duration) *bookLocks {
	return &bookLocks{
		slots: make(map[BookID]chan struct{}),
		wait:  wait,
	}
}

func (b *bookLocks) slot(id BookID) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slots[id]
	if !ok {
		s = make(chan struct{}, 1)
		b.slots[id] = s
	}
	return s
}

// acquire takes the book's slot, waiting at most the configured bound.
// Returns a release func on success, ErrBusy on timeout.
func (b *bookLocks) acquire(ctx context.Context, id BookID) (func(), error) {
	s := b.slot(id)

	timer := time.NewTimer(b.wait)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-timer.C:
		return nil, ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
