/*
Package library provides the core loan & reservation lifecycle engine.

PURPOSE:
  This package contains the domain types and orchestration logic for a
  library circulation system: catalog availability accounting, loan
  checkout/return transitions, and per-book FIFO reservation queues.
  Copies are fungible units tracked only by count - the engine never
  tracks individual copy serials.

KEY CONCEPTS IN THIS FILE (types.go):
  - Date: A day-granularity point in time (loan/due/return dates)
  - Book/Author/Genre: Catalog entities; Author and Genre are weak refs
  - Member: Borrower identity with unique contact fields
  - Loan: Checkout record, mutated exactly once on return
  - Reservation: Pending claim on a book, FIFO by (timestamp, seq)

DESIGN PRINCIPLES:
  1. Single source of truth: Book.AvailableCopies is only mutated inside
     the engine's atomic section, together with loan/reservation state
  2. Type safety: Strong typing for IDs prevents mixing entity kinds
  3. Immutability: A returned loan is never modified again

SEE ALSO:
  - errors.go: Error taxonomy for all rejected operations
  - store.go: Persistence interfaces
  - engine.go: The lifecycle engine orchestrating checkout/return/reserve
*/
package library

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BookID string
type AuthorID string
type GenreID string
type MemberID string
type LoanID string
type ReservationID string

// NewID returns a generated unique identifier. Stores assign these at
// creation time; callers never pick their own primary keys.
func NewID() string { return uuid.NewString() }

// =============================================================================
// DATE - Day-granularity time point
// =============================================================================

// Date is a calendar day in UTC. Loans and memberships operate at day
// granularity; reservation ordering uses full timestamps instead.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.normalize().AddDate(0, 0, n)} }

func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CATALOG ENTITIES
// =============================================================================

// Book is a catalog title. Copies are fungible: availability is a count,
// not a set of per-copy records. AvailableCopies is mutated only through
// Store.AdjustCopies inside the engine's atomic section.
type Book struct {
	ID              BookID    `json:"id"`
	Title           string    `json:"title"`
	ISBN            string    `json:"isbn"`
	PublicationYear int       `json:"publication_year,omitempty"`
	AuthorID        *AuthorID `json:"author_id,omitempty"`
	GenreID         *GenreID  `json:"genre_id,omitempty"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
}

// Author is referenced weakly by books. A nil Book.AuthorID is a valid
// permanent state (unknown author).
type Author struct {
	ID        AuthorID `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
}

// Genre is referenced weakly by books. Genre names are unique.
type Genre struct {
	ID   GenreID `json:"id"`
	Name string  `json:"name"`
}

// =============================================================================
// MEMBER
// =============================================================================

// Member is a registered borrower. Email and phone are optional but must
// be unique across members when set.
type Member struct {
	ID             MemberID `json:"id"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	MembershipDate Date     `json:"membership_date"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
}

// =============================================================================
// LOAN
// =============================================================================

// Loan records one checkout of one copy. ReturnDate is nil while the loan
// is open and is set exactly once on return; after that the record is
// immutable.
type Loan struct {
	ID         LoanID   `json:"id"`
	BookID     BookID   `json:"book_id"`
	MemberID   MemberID `json:"member_id"`
	LoanDate   Date     `json:"loan_date"`
	DueDate    Date     `json:"due_date"`
	ReturnDate *Date    `json:"return_date,omitempty"`
}

// IsOpen reports whether the loan has not been returned yet.
func (l Loan) IsOpen() bool { return l.ReturnDate == nil }

// IsOverdue reports whether the loan is open and past its due date.
// Pure query; a returned loan is never overdue.
func (l Loan) IsOverdue(asOf Date) bool { return l.IsOpen() && asOf.After(l.DueDate) }

// =============================================================================
// RESERVATION
// =============================================================================

// Reservation is a pending claim on a book made while no copy was
// available. Fulfillment order is FIFO by ReservedAt, ties broken by Seq
// (a store-assigned monotonic counter) for determinism.
type Reservation struct {
	ID         ReservationID `json:"id"`
	BookID     BookID        `json:"book_id"`
	MemberID   MemberID      `json:"member_id"`
	ReservedAt time.Time     `json:"reserved_at"`
	Seq        uint64        `json:"seq"`
}
