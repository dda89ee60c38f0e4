/*
queue.go - Per-book FIFO reservation queue

PURPOSE:
  Owns Reservation records and fulfillment ordering. Reservations are
  accepted only when a book's catalog is exhausted; fulfillment order is
  strictly (ReservedAt, Seq) so equal timestamps stay deterministic.

POLICY:
  - Enqueue with a copy available fails with ErrCopyAvailable: the
    caller must retry as a direct checkout instead
  - One pending reservation per (book, member)
  - Cancel removes regardless of queue position

SEE ALSO:
  - engine.go: Dequeues on return for auto-fulfillment
*/
package library

import (
	"context"
	"time"
)

// Queue manages pending reservations on top of a Store.
type Queue struct {
	store Store
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// Enqueue creates a pending reservation for a member. Fails with
// ErrCopyAvailable when availableCopies > 0, ErrDuplicateReservation on
// a pending (book, member) duplicate, or ErrNotFound if the book is
// absent.
func (q *Queue) Enqueue(ctx context.Context, bookID BookID, memberID MemberID, now time.Time) (Reservation, error) {
	book, err := q.store.GetBook(ctx, bookID)
	if err != nil {
		return Reservation{}, err
	}
	if book.AvailableCopies > 0 {
		return Reservation{}, ErrCopyAvailable
	}

	r := Reservation{
		ID:         ReservationID(NewID()),
		BookID:     bookID,
		MemberID:   memberID,
		ReservedAt: now.UTC(),
	}
	return q.store.SaveReservation(ctx, r)
}

// DequeueNext removes and returns the earliest pending reservation for
// a book. Fails with ErrQueueEmpty.
func (q *Queue) DequeueNext(ctx context.Context, bookID BookID) (Reservation, error) {
	r, err := q.store.NextReservation(ctx, bookID)
	if err != nil {
		return Reservation{}, err
	}
	if err := q.store.DeleteReservation(ctx, r.ID); err != nil {
		return Reservation{}, err
	}
	return r, nil
}

// Peek returns the earliest pending reservation without removing it.
func (q *Queue) Peek(ctx context.Context, bookID BookID) (Reservation, error) {
	return q.store.NextReservation(ctx, bookID)
}

// Cancel removes a reservation regardless of position. Fails with
// ErrNotFound for an unknown id; cancelling twice is therefore the
// caller's error, not the engine's.
func (q *Queue) Cancel(ctx context.Context, id ReservationID) error {
	return q.store.DeleteReservation(ctx, id)
}

// Pending returns a book's queue in fulfillment order.
func (q *Queue) Pending(ctx context.Context, bookID BookID) ([]Reservation, error) {
	return q.store.PendingReservations(ctx, bookID)
}
