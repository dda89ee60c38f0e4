/*
engine.go - Lifecycle engine

PURPOSE:
  Orchestrates the Catalog Store, Loan Ledger, and Reservation Queue.
  This is the only component with cross-entity transactional logic:
  checkout, return, reserve, and cancel each execute as one atomic
  transaction over the copy count, the ledger, and the queue.

CONCURRENCY MODEL:
  - Per-book exclusive section for every mutating operation, acquired
    with a bounded wait (ErrBusy on timeout, never deadlock)
  - Inside the section, all writes happen through TxStore.WithTx:
    either everything commits or nothing does
  - Read-only queries bypass locks; they are stale-tolerant and may not
    observe in-flight transactions

AUTO-FULFILLMENT:
  When a return frees a copy and the book has a pending reservation, the
  engine atomically dequeues the earliest one, re-decrements the count,
  and opens a loan for the reserved member dated at the return - net
  availability unchanged. If that member can no longer receive (lapsed
  enrollment), the dead reservation is dropped, the copy stays
  available, and a FulfillmentFailed warning is surfaced without
  aborting the return.

SEE ALSO:
  - ledger.go, queue.go, catalog.go: The components being orchestrated
  - locks.go: Bounded per-book locking
*/
package library

import (
	"context"
	"errors"
	"log"
	"time"
)

// =============================================================================
// ENGINE
// =============================================================================

// EngineConfig carries the engine's tunables.
type EngineConfig struct {
	// LoanPeriodDays is the default loan period when a checkout does not
	// specify one. The period is a per-checkout input, not a schema
	// property.
	LoanPeriodDays int

	// LockWait bounds per-book lock acquisition.
	LockWait time.Duration
}

// DefaultEngineConfig returns the standard two-week loan period and a
// three second lock bound.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{LoanPeriodDays: 14, LockWait: 3 * time.Second}
}

// Engine is the loan & reservation lifecycle engine.
type Engine struct {
	store  TxStore
	locks  *bookLocks
	cfg    EngineConfig
	clock  Clock
	logger *log.Logger
}

// NewEngine creates an engine over the given transactional store.
// A nil logger falls back to the standard logger.
func NewEngine(store TxStore, cfg EngineConfig, logger *log.Logger) *Engine {
	if cfg.LoanPeriodDays <= 0 {
		cfg.LoanPeriodDays = DefaultEngineConfig().LoanPeriodDays
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = DefaultEngineConfig().LockWait
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:  store,
		locks:  newBookLocks(cfg.LockWait),
		cfg:    cfg,
		clock:  SystemClock,
		logger: logger,
	}
}

// WithClock overrides the engine's clock (tests).
func (e *Engine) WithClock(clock Clock) *Engine {
	e.clock = clock
	return e
}

// =============================================================================
// CHECKOUT
// =============================================================================

// Checkout lends one copy of a book to a member. periodDays <= 0 uses
// the configured default.
//
// Fails with: ErrNotFound (book or member), ErrNoCopyAvailable (caller
// should Reserve), ErrAlreadyOnLoan (member already holds this title),
// ErrBusy (lock bound exceeded).
func (e *Engine) Checkout(ctx context.Context, bookID BookID, memberID MemberID, date Date, periodDays int) (Loan, error) {
	if periodDays <= 0 {
		periodDays = e.cfg.LoanPeriodDays
	}

	release, err := e.locks.acquire(ctx, bookID)
	if err != nil {
		return Loan{}, err
	}
	defer release()

	var loan Loan
	err = e.store.WithTx(ctx, func(s Store) error {
		book, err := s.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if _, err := s.GetMember(ctx, memberID); err != nil {
			return err
		}
		if book.AvailableCopies <= 0 {
			return ErrNoCopyAvailable
		}

		if _, err := s.AdjustCopies(ctx, bookID, -1); err != nil {
			return err
		}
		loan, err = NewLedger(s).RecordCheckout(ctx, bookID, memberID, date, periodDays)
		return err
	})
	if err != nil {
		return Loan{}, err
	}
	return loan, nil
}

// =============================================================================
// RETURN
// =============================================================================

// ReturnResult reports everything a return did.
type ReturnResult struct {
	// Loan is the closed loan.
	Loan Loan

	// Fulfilled is the loan auto-created for the next reserved member,
	// if the queue had one. When set, net availability is unchanged.
	Fulfilled *Loan

	// Warning is a non-fatal *FulfillmentError when the next reserved
	// member could not receive the copy. The copy stays available.
	Warning error
}

// Return closes a loan, frees the copy, and auto-fulfills the earliest
// pending reservation for the book if there is one.
//
// Fails with: ErrNotFound, ErrAlreadyReturned (state unchanged),
// ErrInvalidDate (return before loan date), ErrBusy.
func (e *Engine) Return(ctx context.Context, loanID LoanID, date Date) (ReturnResult, error) {
	// Stale read to learn which book to lock; the loan is re-read inside
	// the transaction.
	peek, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return ReturnResult{}, err
	}

	release, err := e.locks.acquire(ctx, peek.BookID)
	if err != nil {
		return ReturnResult{}, err
	}
	defer release()

	var result ReturnResult
	err = e.store.WithTx(ctx, func(s Store) error {
		ledger := NewLedger(s)
		queue := NewQueue(s)

		closed, err := ledger.RecordReturn(ctx, loanID, date)
		if err != nil {
			return err
		}
		result.Loan = closed

		if _, err := s.AdjustCopies(ctx, closed.BookID, +1); err != nil {
			return err
		}

		next, err := queue.DequeueNext(ctx, closed.BookID)
		if errors.Is(err, ErrQueueEmpty) {
			return nil
		}
		if err != nil {
			return err
		}

		if ferr := e.fulfill(ctx, s, next); ferr != nil {
			// Degrade gracefully: the copy stays available and the dead
			// reservation stays dequeued. The return itself commits.
			result.Warning = &FulfillmentError{Reservation: next, Cause: ferr}
			return nil
		}

		fulfilled, err := ledger.RecordCheckout(ctx, next.BookID, next.MemberID, date, e.cfg.LoanPeriodDays)
		if err != nil {
			// Could not open the loan (e.g. the member somehow already
			// holds this title). Hand the copy back to the shelf.
			if _, aerr := s.AdjustCopies(ctx, next.BookID, +1); aerr != nil {
				return aerr
			}
			result.Warning = &FulfillmentError{Reservation: next, Cause: err}
			return nil
		}
		result.Fulfilled = &fulfilled
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}

	if result.Warning != nil {
		e.logger.Printf("warning: %v", result.Warning)
	}
	return result, nil
}

// fulfill verifies the reserved member can receive and claims the copy.
// Returns an error without having changed anything if they cannot.
func (e *Engine) fulfill(ctx context.Context, s Store, r Reservation) error {
	if _, err := s.GetMember(ctx, r.MemberID); err != nil {
		return err
	}
	_, err := s.AdjustCopies(ctx, r.BookID, -1)
	return err
}

// =============================================================================
// RESERVE / CANCEL
// =============================================================================

// Reserve queues a member for a book whose catalog is exhausted. A zero
// `at` stamps the reservation with the engine clock.
//
// Fails with: ErrNotFound (book or member), ErrCopyAvailable (checkout
// instead), ErrDuplicateReservation, ErrBusy.
func (e *Engine) Reserve(ctx context.Context, bookID BookID, memberID MemberID, at time.Time) (Reservation, error) {
	if at.IsZero() {
		at = e.clock()
	}

	release, err := e.locks.acquire(ctx, bookID)
	if err != nil {
		return Reservation{}, err
	}
	defer release()

	var reservation Reservation
	err = e.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetMember(ctx, memberID); err != nil {
			return err
		}
		reservation, err = NewQueue(s).Enqueue(ctx, bookID, memberID, at)
		return err
	})
	if err != nil {
		return Reservation{}, err
	}
	return reservation, nil
}

// CancelReservation removes a pending reservation regardless of queue
// position. Cancelling an unknown id fails with ErrNotFound, so a
// double cancel is visible to the caller.
func (e *Engine) CancelReservation(ctx context.Context, id ReservationID) error {
	// Stale read to learn which book to lock.
	peek, err := e.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}

	release, err := e.locks.acquire(ctx, peek.BookID)
	if err != nil {
		return err
	}
	defer release()

	return e.store.WithTx(ctx, func(s Store) error {
		return NewQueue(s).Cancel(ctx, id)
	})
}

// =============================================================================
// READ-ONLY QUERIES
// =============================================================================
// All queries below are non-blocking and eventually consistent with
// in-flight transactions: a display built on them may briefly lag the
// ledger.

func (e *Engine) GetBook(ctx context.Context, id BookID) (Book, error) {
	return e.store.GetBook(ctx, id)
}

func (e *Engine) GetMember(ctx context.Context, id MemberID) (Member, error) {
	return e.store.GetMember(ctx, id)
}

// ListOpenLoans returns a member's open loans.
func (e *Engine) ListOpenLoans(ctx context.Context, memberID MemberID) ([]Loan, error) {
	return NewLedger(e.store).OpenLoans(ctx, memberID)
}

// ListOverdueLoans returns every open loan past due as of the given day.
func (e *Engine) ListOverdueLoans(ctx context.Context, asOf Date) ([]Loan, error) {
	return NewLedger(e.store).OverdueLoans(ctx, asOf)
}

// ListPendingReservations returns a book's queue in fulfillment order.
func (e *Engine) ListPendingReservations(ctx context.Context, bookID BookID) ([]Reservation, error) {
	return NewQueue(e.store).Pending(ctx, bookID)
}
