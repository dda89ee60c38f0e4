/*
store.go - Persistence interface for the circulation engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage; any
  implementation must preserve the foreign-key and uniqueness
  constraints of the data model.

KEY INTERFACES:
  Store:   Entity persistence (catalog, members, loans, reservations)
  TxStore: Transactional operations (atomic multi-entity writes)

ATOMICITY:
  Every lifecycle engine operation runs inside TxStore.WithTx. Partial
  application (copy decremented but loan not recorded) is forbidden
  under any failure: if fn returns an error the whole transaction is
  rolled back.

CONSTRAINTS ENFORCED BY IMPLEMENTATIONS:
  - books.isbn unique                          -> ErrDuplicateISBN
  - genres.name unique                         -> ErrInvariantViolation
  - members.email / members.phone unique       -> DuplicateContactError
  - one pending reservation per (book, member) -> ErrDuplicateReservation
  - one open loan per (book, member)           -> ErrAlreadyOnLoan
  - 0 <= available_copies <= total_copies      -> CopyBoundsError

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite (WAL mode)
  - library/store: In-memory for testing/dev

SEE ALSO:
  - engine.go: The only caller of WithTx
  - ledger.go, queue.go: Component logic layered on Store
*/
package library

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Entity persistence
// =============================================================================

// Store persists the full entity set. Reads outside WithTx are
// stale-tolerant: they may not observe in-flight transactions.
type Store interface {
	// --- Catalog: books ---

	// SaveBook inserts a book. Fails with ErrDuplicateISBN if the ISBN
	// exists, or CopyBoundsError if the copy counts are inconsistent.
	SaveBook(ctx context.Context, b Book) error

	// GetBook returns a book by id. Fails with ErrNotFound.
	GetBook(ctx context.Context, id BookID) (Book, error)

	ListBooks(ctx context.Context) ([]Book, error)

	// AdjustCopies changes AvailableCopies by delta. This is the only
	// mutation path for availability. Fails with CopyBoundsError if the
	// result would leave AvailableCopies outside [0, TotalCopies].
	AdjustCopies(ctx context.Context, id BookID, delta int) (Book, error)

	// AddStock raises TotalCopies and AvailableCopies together by n
	// (acquisitions; n may be negative for discards of idle copies).
	AddStock(ctx context.Context, id BookID, n int) (Book, error)

	// DeleteBook removes a book with no open loans and no pending
	// reservations. Fails with InUseError otherwise.
	DeleteBook(ctx context.Context, id BookID) error

	// --- Catalog: authors and genres (weak references) ---

	SaveAuthor(ctx context.Context, a Author) error
	GetAuthor(ctx context.Context, id AuthorID) (Author, error)
	ListAuthors(ctx context.Context) ([]Author, error)

	// DeleteAuthor fails with InUseError while any book references the
	// author. No cascade.
	DeleteAuthor(ctx context.Context, id AuthorID) error

	// SaveGenre fails with ErrInvariantViolation on a duplicate name.
	SaveGenre(ctx context.Context, g Genre) error
	GetGenre(ctx context.Context, id GenreID) (Genre, error)
	ListGenres(ctx context.Context) ([]Genre, error)
	DeleteGenre(ctx context.Context, id GenreID) error

	// --- Members ---

	// SaveMember inserts a member. Fails with DuplicateContactError if
	// email or phone is already registered.
	SaveMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, id MemberID) (Member, error)
	ListMembers(ctx context.Context) ([]Member, error)

	// DeleteMember is a storage primitive and does NOT check lifecycle
	// guards; use MemberDirectory.Remove for guarded removal.
	DeleteMember(ctx context.Context, id MemberID) error

	// --- Loans ---

	// SaveLoan inserts a loan. Fails with ErrAlreadyOnLoan if the member
	// already holds an open loan for the same book.
	SaveLoan(ctx context.Context, l Loan) error

	// SetReturned sets the return date on an open loan. The loan is
	// immutable afterwards.
	SetReturned(ctx context.Context, id LoanID, returnDate Date) error

	GetLoan(ctx context.Context, id LoanID) (Loan, error)

	// LoansByMember returns a member's loans, open ones first when
	// openOnly is false.
	LoansByMember(ctx context.Context, id MemberID, openOnly bool) ([]Loan, error)

	// OpenLoans returns every open loan across all books.
	OpenLoans(ctx context.Context) ([]Loan, error)

	// CountOpenLoans returns the number of open loans for a book.
	CountOpenLoans(ctx context.Context, id BookID) (int, error)

	ListLoans(ctx context.Context) ([]Loan, error)

	// --- Reservations ---

	// SaveReservation inserts a pending reservation, assigning Seq from
	// a monotonic counter when r.Seq is zero. Fails with
	// ErrDuplicateReservation on a pending (book, member) duplicate.
	SaveReservation(ctx context.Context, r Reservation) (Reservation, error)

	GetReservation(ctx context.Context, id ReservationID) (Reservation, error)

	// NextReservation returns the earliest pending reservation for a
	// book, ordered by (ReservedAt, Seq). Fails with ErrQueueEmpty.
	NextReservation(ctx context.Context, id BookID) (Reservation, error)

	// DeleteReservation removes a reservation (fulfilled or cancelled).
	// Fails with ErrNotFound.
	DeleteReservation(ctx context.Context, id ReservationID) error

	// PendingReservations returns a book's queue in fulfillment order.
	PendingReservations(ctx context.Context, id BookID) ([]Reservation, error)

	// PendingByMember reports whether the member has a pending
	// reservation for the book.
	PendingByMember(ctx context.Context, bookID BookID, memberID MemberID) (bool, error)

	ListReservations(ctx context.Context) ([]Reservation, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support. The lifecycle engine
// runs every mutating operation inside WithTx.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error
	// the transaction is rolled back in full; otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Clock abstracts time for reservation timestamps so tests can pin it.
type Clock func() time.Time

// SystemClock is the default Clock.
func SystemClock() time.Time { return time.Now().UTC() }
