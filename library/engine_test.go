package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/circulation-engine/library"
	"github.com/warp/circulation-engine/library/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*library.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	engine := library.NewEngine(mem, library.DefaultEngineConfig(), nil)
	return engine, mem
}

func seedBook(t *testing.T, s library.Store, title, isbn string, copies int) library.Book {
	t.Helper()
	book, err := library.NewCatalog(s).AddBook(context.Background(), library.AddBookInput{
		Title:       title,
		ISBN:        isbn,
		TotalCopies: copies,
	})
	require.NoError(t, err)
	return book
}

func seedMember(t *testing.T, s library.Store, first, last, email string) library.Member {
	t.Helper()
	member, err := library.NewMemberDirectory(s).Enroll(context.Background(), library.EnrollInput{
		FirstName: first,
		LastName:  last,
		Email:     email,
	})
	require.NoError(t, err)
	return member
}

func march(day int) library.Date {
	return library.NewDate(2025, time.March, day)
}

// =============================================================================
// CHECKOUT
// =============================================================================

func TestEngine_Checkout_DecrementsAvailability(t *testing.T) {
	// GIVEN: A book with 2 copies
	// WHEN: A member checks one out
	// THEN: One copy remains available and the loan is open with the
	//       default two-week due date

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 2)
	member := seedMember(t, mem, "Ada", "Lovelace", "ada@example.com")

	loan, err := engine.Checkout(ctx, book.ID, member.ID, march(10), 0)
	require.NoError(t, err)

	assert.True(t, loan.IsOpen())
	assert.Equal(t, march(10), loan.LoanDate)
	assert.Equal(t, march(24), loan.DueDate, "default period is 14 days")

	got, err := engine.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)
	assert.Equal(t, 2, got.TotalCopies)
}

func TestEngine_Checkout_Exhausted_Rejected(t *testing.T) {
	// GIVEN: A single-copy book already on loan
	// WHEN: A second member tries to check it out
	// THEN: ErrNoCopyAvailable, and availability stays at zero

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 1)
	alice := seedMember(t, mem, "Alice", "Reader", "alice@example.com")
	bob := seedMember(t, mem, "Bob", "Reader", "bob@example.com")

	_, err := engine.Checkout(ctx, book.ID, alice.ID, march(10), 0)
	require.NoError(t, err)

	_, err = engine.Checkout(ctx, book.ID, bob.ID, march(11), 0)
	assert.ErrorIs(t, err, library.ErrNoCopyAvailable)

	got, _ := engine.GetBook(ctx, book.ID)
	assert.Equal(t, 0, got.AvailableCopies)
}

func TestEngine_Checkout_SameTitleTwice_Rejected(t *testing.T) {
	// GIVEN: A member holding an open loan on a title
	// WHEN: The same member checks out the same title again
	// THEN: ErrAlreadyOnLoan, and the second copy is not consumed

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 3)
	member := seedMember(t, mem, "Ada", "Lovelace", "ada@example.com")

	_, err := engine.Checkout(ctx, book.ID, member.ID, march(10), 0)
	require.NoError(t, err)

	_, err = engine.Checkout(ctx, book.ID, member.ID, march(11), 0)
	assert.ErrorIs(t, err, library.ErrAlreadyOnLoan)

	// Failed checkout must not leak a copy.
	got, _ := engine.GetBook(ctx, book.ID)
	assert.Equal(t, 2, got.AvailableCopies)
}

func TestEngine_Checkout_UnknownEntities_Rejected(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 1)
	member := seedMember(t, mem, "Ada", "Lovelace", "ada@example.com")

	_, err := engine.Checkout(ctx, "no-such-book", member.ID, march(10), 0)
	assert.ErrorIs(t, err, library.ErrNotFound)

	_, err = engine.Checkout(ctx, book.ID, "no-such-member", march(10), 0)
	assert.ErrorIs(t, err, library.ErrNotFound)

	// Neither failure consumed the copy.
	got, _ := engine.GetBook(ctx, book.ID)
	assert.Equal(t, 1, got.AvailableCopies)
}

// =============================================================================
// RETURN
// =============================================================================

func TestEngine_Return_FreesCopy(t *testing.T) {
	// GIVEN: An open loan
	// WHEN: It is returned with an empty queue
	// THEN: The loan closes and the copy is available again

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 1)
	member := seedMember(t, mem, "Ada", "Lovelace", "ada@example.com")

	loan, err := engine.Checkout(ctx, book.ID, member.ID, march(10), 0)
	require.NoError(t, err)

	result, err := engine.Return(ctx, loan.ID, march(15))
	require.NoError(t, err)

	assert.False(t, result.Loan.IsOpen())
	assert.Equal(t, march(15), *result.Loan.ReturnDate)
	assert.Nil(t, result.Fulfilled)
	assert.NoError(t, result.Warning)

	got, _ := engine.GetBook(ctx, book.ID)
	assert.Equal(t, 1, got.AvailableCopies)
}

func TestEngine_Return_AutoFulfillsEarliestReservation(t *testing.T) {
	// GIVEN: A single-copy book on loan, with two members queued
	// WHEN: The loan is returned
	// THEN: The earliest reservation converts into a loan dated at the
	//       return, net availability stays at zero, and the second
	//       reservation keeps its place at the head of the queue

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 1)
	alice := seedMember(t, mem, "Alice", "Reader", "alice@example.com")
	bob := seedMember(t, mem, "Bob", "Reader", "bob@example.com")
	carol := seedMember(t, mem, "Carol", "Reader", "carol@example.com")

	loan, err := engine.Checkout(ctx, book.ID, alice.ID, march(1), 0)
	require.NoError(t, err)

	t0 := time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)
	_, err = engine.Reserve(ctx, book.ID, bob.ID, t0)
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, book.ID, carol.ID, t0.Add(time.Hour))
	require.NoError(t, err)

	result, err := engine.Return(ctx, loan.ID, march(8))
	require.NoError(t, err)

	require.NotNil(t, result.Fulfilled)
	assert.Equal(t, bob.ID, result.Fulfilled.MemberID)
	assert.Equal(t, march(8), result.Fulfilled.LoanDate)
	assert.Equal(t, march(22), result.Fulfilled.DueDate)

	// Net availability unchanged: the freed copy went straight to Bob.
	got, _ := engine.GetBook(ctx, book.ID)
	assert.Equal(t, 0, got.AvailableCopies)

	pending, err := engine.ListPendingReservations(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, carol.ID, pending[0].MemberID)
}

func TestEngine_Return_FulfillmentToLapsedMember_Degrades(t *testing.T) {
	// GIVEN: A queued reservation whose member has since lapsed
	// WHEN: The loan is returned
	// THEN: The return succeeds with a FulfillmentFailed warning, the dead
	//       reservation is dropped, and the copy stays on the shelf

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 1)
	alice := seedMember(t, mem, "Alice", "Reader", "alice@example.com")
	bob := seedMember(t, mem, "Bob", "Reader", "bob@example.com")

	loan, err := engine.Checkout(ctx, book.ID, alice.ID, march(1), 0)
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, book.ID, bob.ID, time.Time{})
	require.NoError(t, err)

	// Bob lapses while waiting. The store-level delete is the lapse
	// primitive; the directory guard only blocks on open loans.
	require.NoError(t, mem.DeleteMember(ctx, bob.ID))

	result, err := engine.Return(ctx, loan.ID, march(8))
	require.NoError(t, err, "return itself must not fail")

	assert.Nil(t, result.Fulfilled)
	assert.ErrorIs(t, result.Warning, library.ErrFulfillmentFailed)

	var ferr *library.FulfillmentError
	require.ErrorAs(t, result.Warning, &ferr)
	assert.Equal(t, bob.ID, ferr.Reservation.MemberID)

	// Copy back on the shelf, dead reservation gone.
	got, _ := engine.GetBook(ctx, book.ID)
	assert.Equal(t, 1, got.AvailableCopies)

	pending, _ := engine.ListPendingReservations(ctx, book.ID)
	assert.Empty(t, pending)
}

func TestEngine_Return_Twice_Rejected(t *testing.T) {
	// GIVEN: A returned loan
	// WHEN: Returning it again
	// THEN: ErrAlreadyReturned and availability is not double-credited

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 1)
	member := seedMember(t, mem, "Ada", "Lovelace", "ada@example.com")

	loan, err := engine.Checkout(ctx, book.ID, member.ID, march(10), 0)
	require.NoError(t, err)

	_, err = engine.Return(ctx, loan.ID, march(15))
	require.NoError(t, err)

	_, err = engine.Return(ctx, loan.ID, march(16))
	assert.ErrorIs(t, err, library.ErrAlreadyReturned)

	got, _ := engine.GetBook(ctx, book.ID)
	assert.Equal(t, 1, got.AvailableCopies)
}

func TestEngine_Return_BeforeLoanDate_Rejected(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 1)
	member := seedMember(t, mem, "Ada", "Lovelace", "ada@example.com")

	loan, err := engine.Checkout(ctx, book.ID, member.ID, march(10), 0)
	require.NoError(t, err)

	_, err = engine.Return(ctx, loan.ID, march(9))
	assert.ErrorIs(t, err, library.ErrInvalidDate)

	// Loan still open, copy still out.
	open, err := engine.ListOpenLoans(ctx, member.ID)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

// =============================================================================
// RESERVE / CANCEL
// =============================================================================

func TestEngine_Reserve_CopyAvailable_Rejected(t *testing.T) {
	// Reservations are only accepted when the catalog is exhausted.

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 1)
	member := seedMember(t, mem, "Ada", "Lovelace", "ada@example.com")

	_, err := engine.Reserve(ctx, book.ID, member.ID, time.Time{})
	assert.ErrorIs(t, err, library.ErrCopyAvailable)
}

func TestEngine_Reserve_Duplicate_Rejected(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 1)
	alice := seedMember(t, mem, "Alice", "Reader", "alice@example.com")
	bob := seedMember(t, mem, "Bob", "Reader", "bob@example.com")

	_, err := engine.Checkout(ctx, book.ID, alice.ID, march(1), 0)
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, book.ID, bob.ID, time.Time{})
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, book.ID, bob.ID, time.Time{})
	assert.ErrorIs(t, err, library.ErrDuplicateReservation)
}

func TestEngine_CancelReservation_ThenReturnSkipsToNext(t *testing.T) {
	// GIVEN: Two queued members; the first cancels
	// WHEN: The copy comes back
	// THEN: Fulfillment goes to the remaining member

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 1)
	alice := seedMember(t, mem, "Alice", "Reader", "alice@example.com")
	bob := seedMember(t, mem, "Bob", "Reader", "bob@example.com")
	carol := seedMember(t, mem, "Carol", "Reader", "carol@example.com")

	loan, err := engine.Checkout(ctx, book.ID, alice.ID, march(1), 0)
	require.NoError(t, err)

	t0 := time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)
	bobRes, err := engine.Reserve(ctx, book.ID, bob.ID, t0)
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, book.ID, carol.ID, t0.Add(time.Minute))
	require.NoError(t, err)

	require.NoError(t, engine.CancelReservation(ctx, bobRes.ID))

	// Double cancel is visible to the caller.
	err = engine.CancelReservation(ctx, bobRes.ID)
	assert.ErrorIs(t, err, library.ErrNotFound)

	result, err := engine.Return(ctx, loan.ID, march(8))
	require.NoError(t, err)
	require.NotNil(t, result.Fulfilled)
	assert.Equal(t, carol.ID, result.Fulfilled.MemberID)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

// blockingStore wraps the memory store so a test can hold a transaction
// open while a second engine operation contends for the same book.
type blockingStore struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) WithTx(ctx context.Context, fn func(library.Store) error) error {
	b.entered <- struct{}{}
	<-b.release
	return b.Memory.WithTx(ctx, fn)
}

func TestEngine_LockContention_Busy(t *testing.T) {
	// GIVEN: A checkout stalled inside its per-book exclusive section
	// WHEN: A second operation on the same book exceeds the lock bound
	// THEN: It fails with ErrBusy instead of blocking indefinitely

	mem := store.NewMemory()
	blocked := &blockingStore{
		Memory:  mem,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	engine := library.NewEngine(blocked, library.EngineConfig{
		LoanPeriodDays: 14,
		LockWait:       50 * time.Millisecond,
	}, nil)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 2)
	alice := seedMember(t, mem, "Alice", "Reader", "alice@example.com")
	bob := seedMember(t, mem, "Bob", "Reader", "bob@example.com")

	done := make(chan error, 1)
	go func() {
		_, err := engine.Checkout(ctx, book.ID, alice.ID, march(10), 0)
		done <- err
	}()

	<-blocked.entered // first checkout now holds the book lock

	_, err := engine.Checkout(ctx, book.ID, bob.ID, march(10), 0)
	assert.ErrorIs(t, err, library.ErrBusy)

	close(blocked.release)
	require.NoError(t, <-done)
}

func TestEngine_ConcurrentCheckouts_NeverOversell(t *testing.T) {
	// GIVEN: 3 copies and 8 members racing to check out
	// WHEN: All checkouts run concurrently
	// THEN: Exactly 3 succeed and availability lands on zero

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	book := seedBook(t, mem, "Dune", "978-0441172719", 3)

	members := make([]library.Member, 8)
	for i := range members {
		members[i] = seedMember(t, mem, "Member", string(rune('A'+i)),
			string(rune('a'+i))+"@example.com")
	}

	results := make(chan error, len(members))
	for _, m := range members {
		go func(id library.MemberID) {
			_, err := engine.Checkout(ctx, book.ID, id, march(10), 0)
			results <- err
		}(m.ID)
	}

	succeeded := 0
	for range members {
		if err := <-results; err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, library.ErrNoCopyAvailable)
		}
	}

	assert.Equal(t, 3, succeeded)
	got, _ := engine.GetBook(ctx, book.ID)
	assert.Equal(t, 0, got.AvailableCopies)
}
