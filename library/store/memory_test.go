package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/circulation-engine/library"
	"github.com/warp/circulation-engine/library/store"
)

func testBook(id string, copies int) library.Book {
	return library.Book{
		ID:              library.BookID(id),
		Title:           "Title " + id,
		ISBN:            "isbn-" + id,
		TotalCopies:     copies,
		AvailableCopies: copies,
		CreatedAt:       time.Now().UTC(),
	}
}

func testMember(id, email string) library.Member {
	return library.Member{
		ID:             library.MemberID(id),
		FirstName:      "First",
		LastName:       "Last",
		MembershipDate: library.Today(),
		Email:          email,
	}
}

// =============================================================================
// CONSTRAINTS
// =============================================================================

func TestMemory_DuplicateISBN_Rejected(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveBook(ctx, testBook("b1", 1)))

	dup := testBook("b2", 1)
	dup.ISBN = "isbn-b1"
	assert.ErrorIs(t, mem.SaveBook(ctx, dup), library.ErrDuplicateISBN)
}

func TestMemory_DuplicateContact_Rejected(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveMember(ctx, testMember("m1", "a@example.com")))

	err := mem.SaveMember(ctx, testMember("m2", "a@example.com"))
	assert.ErrorIs(t, err, library.ErrDuplicateContact)

	var dup *library.DuplicateContactError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)

	// Phone collisions are caught the same way.
	m3 := testMember("m3", "b@example.com")
	m3.Phone = "555-0100"
	require.NoError(t, mem.SaveMember(ctx, m3))

	m4 := testMember("m4", "c@example.com")
	m4.Phone = "555-0100"
	err = mem.SaveMember(ctx, m4)
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "phone", dup.Field)
}

func TestMemory_AdjustCopies_Bounds(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveBook(ctx, testBook("b1", 1)))

	_, err := mem.AdjustCopies(ctx, "b1", -1)
	require.NoError(t, err)

	// Below zero.
	_, err = mem.AdjustCopies(ctx, "b1", -1)
	assert.ErrorIs(t, err, library.ErrInvariantViolation)
	var bounds *library.CopyBoundsError
	require.ErrorAs(t, err, &bounds)
	assert.Equal(t, -1, bounds.Delta)

	// Back to one, then above total.
	_, err = mem.AdjustCopies(ctx, "b1", +1)
	require.NoError(t, err)
	_, err = mem.AdjustCopies(ctx, "b1", +1)
	assert.ErrorIs(t, err, library.ErrInvariantViolation)

	_, err = mem.AdjustCopies(ctx, "missing", -1)
	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestMemory_SaveReservation_AssignsMonotonicSeq(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	book := testBook("b1", 0)
	book.TotalCopies, book.AvailableCopies = 1, 0
	require.NoError(t, mem.SaveBook(ctx, book))
	require.NoError(t, mem.SaveMember(ctx, testMember("m1", "a@example.com")))
	require.NoError(t, mem.SaveMember(ctx, testMember("m2", "b@example.com")))

	at := time.Now().UTC()
	r1, err := mem.SaveReservation(ctx, library.Reservation{
		ID: "r1", BookID: "b1", MemberID: "m1", ReservedAt: at,
	})
	require.NoError(t, err)
	r2, err := mem.SaveReservation(ctx, library.Reservation{
		ID: "r2", BookID: "b1", MemberID: "m2", ReservedAt: at,
	})
	require.NoError(t, err)

	assert.Less(t, r1.Seq, r2.Seq)

	// Pre-assigned sequence numbers survive (snapshot restore path).
	r3, err := mem.SaveReservation(ctx, library.Reservation{
		ID: "r3", BookID: "b1", MemberID: "m3", ReservedAt: at, Seq: 99,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(99), r3.Seq)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A book with one available copy
	// WHEN: A transaction adjusts the count and then fails
	// THEN: The adjustment is rolled back completely

	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveBook(ctx, testBook("b1", 1)))

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(s library.Store) error {
		if _, err := s.AdjustCopies(ctx, "b1", -1); err != nil {
			return err
		}
		if err := s.SaveMember(ctx, testMember("m1", "a@example.com")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	book, err := mem.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, book.AvailableCopies, "copy adjustment rolled back")

	_, err = mem.GetMember(ctx, "m1")
	assert.ErrorIs(t, err, library.ErrNotFound, "member insert rolled back")
}

func TestMemory_WithTx_CommitsOnSuccess(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveBook(ctx, testBook("b1", 2)))

	err := mem.WithTx(ctx, func(s library.Store) error {
		_, err := s.AdjustCopies(ctx, "b1", -1)
		return err
	})
	require.NoError(t, err)

	book, _ := mem.GetBook(ctx, "b1")
	assert.Equal(t, 1, book.AvailableCopies)
}

func TestMemory_WithTx_SeqNotReusedAfterRollback(t *testing.T) {
	// A rolled-back reservation must not leave a gap that breaks the
	// monotonic ordering guarantee for later reservations.

	mem := store.NewMemory()
	ctx := context.Background()

	book := testBook("b1", 1)
	book.AvailableCopies = 0
	require.NoError(t, mem.SaveBook(ctx, book))

	boom := errors.New("boom")
	_ = mem.WithTx(ctx, func(s library.Store) error {
		_, err := s.SaveReservation(ctx, library.Reservation{
			ID: "r1", BookID: "b1", MemberID: "m1", ReservedAt: time.Now(),
		})
		require.NoError(t, err)
		return boom
	})

	r2, err := mem.SaveReservation(ctx, library.Reservation{
		ID: "r2", BookID: "b1", MemberID: "m2", ReservedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NotZero(t, r2.Seq)

	_, err = mem.GetReservation(ctx, "r1")
	assert.ErrorIs(t, err, library.ErrNotFound, "rolled-back reservation gone")
}

// =============================================================================
// DELETE GUARDS
// =============================================================================

func TestMemory_DeleteBook_Guarded(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveBook(ctx, testBook("b1", 1)))
	require.NoError(t, mem.SaveMember(ctx, testMember("m1", "a@example.com")))
	require.NoError(t, mem.SaveLoan(ctx, library.Loan{
		ID: "l1", BookID: "b1", MemberID: "m1",
		LoanDate: library.Today(), DueDate: library.Today().AddDays(14),
	}))

	err := mem.DeleteBook(ctx, "b1")
	assert.ErrorIs(t, err, library.ErrInvariantViolation)

	require.NoError(t, mem.SetReturned(ctx, "l1", library.Today()))
	assert.NoError(t, mem.DeleteBook(ctx, "b1"))
}

func TestMemory_DeleteAuthor_Guarded(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveAuthor(ctx, library.Author{ID: "a1", FirstName: "F", LastName: "L"}))

	book := testBook("b1", 1)
	authorID := library.AuthorID("a1")
	book.AuthorID = &authorID
	require.NoError(t, mem.SaveBook(ctx, book))

	err := mem.DeleteAuthor(ctx, "a1")
	assert.ErrorIs(t, err, library.ErrInvariantViolation)

	require.NoError(t, mem.DeleteBook(ctx, "b1"))
	assert.NoError(t, mem.DeleteAuthor(ctx, "a1"))
}
