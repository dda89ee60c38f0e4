/*
errors.go - Centralized error types for the lifecycle engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every rejected operation maps to exactly one of these; no error is
  fatal to the process and every one is retryable by the caller after
  correcting the precondition.

ERROR CATEGORIES:
  1. Lookup errors     - referenced entity absent
  2. Invariant errors  - copy-count bounds, referenced-entity deletes
  3. Uniqueness errors - contact fields, ISBN, pending reservations
  4. Transition errors - checkout/return/reserve preconditions
  5. Concurrency       - bounded lock wait expired

USAGE:
  if errors.Is(err, library.ErrNoCopyAvailable) {
      // direct the caller to Reserve instead
  }

SEE ALSO:
  - engine.go: Which operations surface which errors
  - store/sqlite: Maps SQL constraint failures onto these
*/
package library

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation is returned when an operation would break a
	// structural invariant: copy counts outside [0, total], deleting an
	// author/genre still referenced by books, deleting a book with open
	// loans.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrDuplicateContact is returned when enrolling a member whose email
	// or phone is already registered.
	ErrDuplicateContact = errors.New("duplicate contact")

	// ErrDuplicateISBN is returned when adding a book whose ISBN already
	// exists in the catalog.
	ErrDuplicateISBN = errors.New("duplicate isbn")

	// ErrDuplicateReservation is returned when a member already holds a
	// pending reservation for the same book.
	ErrDuplicateReservation = errors.New("duplicate reservation")

	// ErrAlreadyOnLoan is returned when a member already holds an open
	// loan for the same book.
	ErrAlreadyOnLoan = errors.New("already on loan")

	// ErrAlreadyReturned is returned when recording a return on a loan
	// whose return date is already set. The second call leaves state
	// unchanged.
	ErrAlreadyReturned = errors.New("already returned")

	// ErrInvalidDate is returned when a return date precedes the loan
	// date, or a loan period is not positive.
	ErrInvalidDate = errors.New("invalid date")

	// ErrNoCopyAvailable is returned by Checkout when no copy is
	// available. Callers should reserve instead.
	ErrNoCopyAvailable = errors.New("no copy available")

	// ErrCopyAvailable is returned by Reserve when a copy IS available.
	// Reservations are only accepted when the catalog is exhausted;
	// callers should retry as a direct checkout.
	ErrCopyAvailable = errors.New("copy available, use checkout")

	// ErrQueueEmpty signals that a book has no pending reservations.
	ErrQueueEmpty = errors.New("reservation queue empty")

	// ErrFulfillmentFailed is a non-fatal warning: a freed copy could not
	// be handed to the next reserved member. The copy stays available.
	ErrFulfillmentFailed = errors.New("fulfillment failed")

	// ErrBusy is returned when the per-book lock could not be acquired
	// within the configured wait. Safe to retry.
	ErrBusy = errors.New("book busy, try again")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CopyBoundsError reports a copy-count adjustment that would leave
// AvailableCopies outside [0, TotalCopies].
type CopyBoundsError struct {
	BookID    BookID
	Available int
	Total     int
	Delta     int
}

func (e *CopyBoundsError) Error() string {
	return fmt.Sprintf("adjusting copies of %s by %+d would leave %d of %d available",
		e.BookID, e.Delta, e.Available+e.Delta, e.Total)
}

func (e *CopyBoundsError) Unwrap() error { return ErrInvariantViolation }

// DuplicateContactError reports which contact field collided.
type DuplicateContactError struct {
	Field string // "email" or "phone"
	Value string
}

func (e *DuplicateContactError) Error() string {
	return fmt.Sprintf("%s %q already registered to a member", e.Field, e.Value)
}

func (e *DuplicateContactError) Unwrap() error { return ErrDuplicateContact }

// InUseError reports a delete blocked by live references.
type InUseError struct {
	Kind string // "book", "author", "genre", "member"
	ID   string
	Why  string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("cannot delete %s %s: %s", e.Kind, e.ID, e.Why)
}

func (e *InUseError) Unwrap() error { return ErrInvariantViolation }

// FulfillmentError carries the reservation that could not be converted
// into a loan when a copy was freed. Surfaced as a warning, never as a
// failure of the triggering Return.
type FulfillmentError struct {
	Reservation Reservation
	Cause       error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("reservation %s for member %s could not be fulfilled: %v",
		e.Reservation.ID, e.Reservation.MemberID, e.Cause)
}

func (e *FulfillmentError) Unwrap() error { return ErrFulfillmentFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRetryable returns true if the operation might succeed if simply
// retried, without the caller changing anything.
func IsRetryable(err error) bool { return errors.Is(err, ErrBusy) }

// IsConflict returns true if the error is a state conflict the caller
// must resolve before retrying (as opposed to bad input or a missing
// entity).
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateContact) ||
		errors.Is(err, ErrDuplicateISBN) ||
		errors.Is(err, ErrDuplicateReservation) ||
		errors.Is(err, ErrAlreadyOnLoan) ||
		errors.Is(err, ErrAlreadyReturned) ||
		errors.Is(err, ErrNoCopyAvailable) ||
		errors.Is(err, ErrCopyAvailable) ||
		errors.Is(err, ErrInvariantViolation)
}
