package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/circulation-engine/library"
	"github.com/warp/circulation-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func saveBook(t *testing.T, s *sqlite.Store, id, isbn string, copies int) library.Book {
	t.Helper()
	b := library.Book{
		ID:              library.BookID(id),
		Title:           "Title " + id,
		ISBN:            isbn,
		TotalCopies:     copies,
		AvailableCopies: copies,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, s.SaveBook(context.Background(), b))
	return b
}

func saveMember(t *testing.T, s *sqlite.Store, id, email string) library.Member {
	t.Helper()
	m := library.Member{
		ID:             library.MemberID(id),
		FirstName:      "First",
		LastName:       "Last",
		MembershipDate: library.Today(),
		Email:          email,
	}
	require.NoError(t, s.SaveMember(context.Background(), m))
	return m
}

// =============================================================================
// CONSTRAINT MAPPING
// =============================================================================
// The store must translate raw UNIQUE-constraint failures into the
// domain error taxonomy.

func TestSQLite_DuplicateISBN_Mapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveBook(t, s, "b1", "978-0441172719", 1)

	err := s.SaveBook(ctx, library.Book{
		ID: "b2", Title: "Other", ISBN: "978-0441172719",
		TotalCopies: 1, AvailableCopies: 1, CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, library.ErrDuplicateISBN)
}

func TestSQLite_DuplicateContact_Mapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveMember(t, s, "m1", "a@example.com")

	err := s.SaveMember(ctx, library.Member{
		ID: "m2", FirstName: "F", LastName: "L",
		MembershipDate: library.Today(), Email: "a@example.com",
	})
	var dup *library.DuplicateContactError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)

	m3 := library.Member{
		ID: "m3", FirstName: "F", LastName: "L",
		MembershipDate: library.Today(), Phone: "555-0100",
	}
	require.NoError(t, s.SaveMember(ctx, m3))

	err = s.SaveMember(ctx, library.Member{
		ID: "m4", FirstName: "F", LastName: "L",
		MembershipDate: library.Today(), Phone: "555-0100",
	})
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "phone", dup.Field)
}

func TestSQLite_NullContacts_DoNotCollide(t *testing.T) {
	// Empty email/phone are stored as NULL; two members without contact
	// info must both be accepted.

	s := newTestStore(t)

	saveMember(t, s, "m1", "")
	saveMember(t, s, "m2", "")

	members, err := s.ListMembers(context.Background())
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestSQLite_DuplicateReservation_Mapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveBook(t, s, "b1", "isbn-1", 1)
	saveMember(t, s, "m1", "a@example.com")

	_, err := s.SaveReservation(ctx, library.Reservation{
		ID: "r1", BookID: "b1", MemberID: "m1", ReservedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = s.SaveReservation(ctx, library.Reservation{
		ID: "r2", BookID: "b1", MemberID: "m1", ReservedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, library.ErrDuplicateReservation)
}

func TestSQLite_OpenLoanIndex_Mapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveBook(t, s, "b1", "isbn-1", 2)
	saveMember(t, s, "m1", "a@example.com")

	loan := library.Loan{
		ID: "l1", BookID: "b1", MemberID: "m1",
		LoanDate: library.Today(), DueDate: library.Today().AddDays(14),
	}
	require.NoError(t, s.SaveLoan(ctx, loan))

	second := loan
	second.ID = "l2"
	assert.ErrorIs(t, s.SaveLoan(ctx, second), library.ErrAlreadyOnLoan)

	// After the first loan closes, the partial index no longer blocks.
	require.NoError(t, s.SetReturned(ctx, "l1", library.Today()))
	assert.NoError(t, s.SaveLoan(ctx, second))
}

// =============================================================================
// COPY ACCOUNTING
// =============================================================================

func TestSQLite_AdjustCopies_GuardedUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveBook(t, s, "b1", "isbn-1", 1)

	book, err := s.AdjustCopies(ctx, "b1", -1)
	require.NoError(t, err)
	assert.Equal(t, 0, book.AvailableCopies)

	_, err = s.AdjustCopies(ctx, "b1", -1)
	var bounds *library.CopyBoundsError
	require.ErrorAs(t, err, &bounds)
	assert.Equal(t, library.BookID("b1"), bounds.BookID)

	_, err = s.AdjustCopies(ctx, "missing", -1)
	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestSQLite_AddStock_MovesBothCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveBook(t, s, "b1", "isbn-1", 1)

	book, err := s.AddStock(ctx, "b1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, book.TotalCopies)
	assert.Equal(t, 3, book.AvailableCopies)

	// Cannot discard more copies than are idle.
	_, err = s.AdjustCopies(ctx, "b1", -3)
	require.NoError(t, err)
	_, err = s.AddStock(ctx, "b1", -1)
	assert.ErrorIs(t, err, library.ErrInvariantViolation)
}

// =============================================================================
// RESERVATION ORDERING
// =============================================================================

func TestSQLite_NextReservation_FIFOWithSeqTiebreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveBook(t, s, "b1", "isbn-1", 1)
	saveMember(t, s, "m1", "a@example.com")
	saveMember(t, s, "m2", "b@example.com")

	at := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	first, err := s.SaveReservation(ctx, library.Reservation{
		ID: "r1", BookID: "b1", MemberID: "m1", ReservedAt: at,
	})
	require.NoError(t, err)
	second, err := s.SaveReservation(ctx, library.Reservation{
		ID: "r2", BookID: "b1", MemberID: "m2", ReservedAt: at,
	})
	require.NoError(t, err)
	assert.Less(t, first.Seq, second.Seq)

	next, err := s.NextReservation(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, library.ReservationID("r1"), next.ID)

	require.NoError(t, s.DeleteReservation(ctx, "r1"))
	next, err = s.NextReservation(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, library.ReservationID("r2"), next.ID)

	require.NoError(t, s.DeleteReservation(ctx, "r2"))
	_, err = s.NextReservation(ctx, "b1")
	assert.ErrorIs(t, err, library.ErrQueueEmpty)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveBook(t, s, "b1", "isbn-1", 1)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx library.Store) error {
		if _, err := tx.AdjustCopies(ctx, "b1", -1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	book, err := s.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, book.AvailableCopies)
}

func TestSQLite_WithTx_Commits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveBook(t, s, "b1", "isbn-1", 2)
	saveMember(t, s, "m1", "a@example.com")

	err := s.WithTx(ctx, func(tx library.Store) error {
		if _, err := tx.AdjustCopies(ctx, "b1", -1); err != nil {
			return err
		}
		return tx.SaveLoan(ctx, library.Loan{
			ID: "l1", BookID: "b1", MemberID: "m1",
			LoanDate: library.Today(), DueDate: library.Today().AddDays(14),
		})
	})
	require.NoError(t, err)

	book, _ := s.GetBook(ctx, "b1")
	assert.Equal(t, 1, book.AvailableCopies)

	loan, err := s.GetLoan(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, loan.IsOpen())
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestSQLite_BookNullableFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAuthor(ctx, library.Author{ID: "a1", FirstName: "F", LastName: "L"}))
	authorID := library.AuthorID("a1")

	withAuthor := library.Book{
		ID: "b1", Title: "Linked", ISBN: "isbn-1",
		PublicationYear: 1974, AuthorID: &authorID,
		TotalCopies: 1, AvailableCopies: 1, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveBook(ctx, withAuthor))

	bare := library.Book{
		ID: "b2", Title: "Bare", ISBN: "isbn-2",
		TotalCopies: 1, AvailableCopies: 1, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveBook(ctx, bare))

	got, err := s.GetBook(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got.AuthorID)
	assert.Equal(t, authorID, *got.AuthorID)
	assert.Nil(t, got.GenreID)
	assert.Equal(t, 1974, got.PublicationYear)

	got, err = s.GetBook(ctx, "b2")
	require.NoError(t, err)
	assert.Nil(t, got.AuthorID)
	assert.Zero(t, got.PublicationYear)
}

func TestSQLite_LoanDateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveBook(t, s, "b1", "isbn-1", 1)
	saveMember(t, s, "m1", "a@example.com")

	loanDate := library.NewDate(2025, time.March, 3)
	require.NoError(t, s.SaveLoan(ctx, library.Loan{
		ID: "l1", BookID: "b1", MemberID: "m1",
		LoanDate: loanDate, DueDate: loanDate.AddDays(14),
	}))

	got, err := s.GetLoan(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, got.LoanDate.Equal(loanDate))
	assert.True(t, got.DueDate.Equal(loanDate.AddDays(14)))
	assert.Nil(t, got.ReturnDate)

	require.NoError(t, s.SetReturned(ctx, "l1", loanDate.AddDays(5)))
	got, _ = s.GetLoan(ctx, "l1")
	require.NotNil(t, got.ReturnDate)
	assert.True(t, got.ReturnDate.Equal(loanDate.AddDays(5)))

	assert.ErrorIs(t, s.SetReturned(ctx, "l1", loanDate.AddDays(6)), library.ErrAlreadyReturned)
	assert.ErrorIs(t, s.SetReturned(ctx, "missing", loanDate), library.ErrNotFound)
}
