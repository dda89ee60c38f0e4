package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/circulation-engine/library"
	"github.com/warp/circulation-engine/library/store"
	"github.com/warp/circulation-engine/store/sqlite"
)

// buildSnapshotFixture drives a realistic lifecycle through the engine:
// an author/genre-linked book, an open loan, a closed loan, and a
// two-deep reservation queue with equal timestamps.
func buildSnapshotFixture(t *testing.T, s library.TxStore) {
	t.Helper()
	ctx := context.Background()
	catalog := library.NewCatalog(s)
	engine := library.NewEngine(s, library.DefaultEngineConfig(), nil)

	author, err := catalog.AddAuthor(ctx, "Ursula", "Le Guin")
	require.NoError(t, err)
	genre, err := catalog.AddGenre(ctx, "Science Fiction")
	require.NoError(t, err)

	book, err := catalog.AddBook(ctx, library.AddBookInput{
		Title:           "The Dispossessed",
		ISBN:            "978-0061054884",
		PublicationYear: 1974,
		AuthorID:        &author.ID,
		GenreID:         &genre.ID,
		TotalCopies:     2,
	})
	require.NoError(t, err)

	alice := seedMember(t, s, "Alice", "Reader", "alice@example.com")
	bob := seedMember(t, s, "Bob", "Reader", "bob@example.com")
	carol := seedMember(t, s, "Carol", "Reader", "carol@example.com")
	dave := seedMember(t, s, "Dave", "Reader", "dave@example.com")

	// Closed loan for Alice, open loans for Bob and Carol.
	closed, err := engine.Checkout(ctx, book.ID, alice.ID, march(1), 7)
	require.NoError(t, err)
	_, err = engine.Return(ctx, closed.ID, march(5))
	require.NoError(t, err)

	_, err = engine.Checkout(ctx, book.ID, bob.ID, march(6), 0)
	require.NoError(t, err)
	_, err = engine.Checkout(ctx, book.ID, carol.ID, march(6), 0)
	require.NoError(t, err)

	// Queue with an equal-timestamp tie.
	at := time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)
	_, err = engine.Reserve(ctx, book.ID, dave.ID, at)
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, book.ID, alice.ID, at)
	require.NoError(t, err)
}

func TestSnapshot_RoundTrip_MemoryToMemory(t *testing.T) {
	// GIVEN: A populated store
	// WHEN: Snapshot -> encode -> decode -> restore into an empty store
	// THEN: Every entity set matches field for field, including
	//       reservation sequence numbers

	ctx := context.Background()
	src := store.NewMemory()
	buildSnapshotFixture(t, src)

	snap, err := library.TakeSnapshot(ctx, src)
	require.NoError(t, err)

	data, err := snap.Encode()
	require.NoError(t, err)

	decoded, err := library.DecodeSnapshot(data)
	require.NoError(t, err)

	dst := store.NewMemory()
	require.NoError(t, decoded.Restore(ctx, dst))

	assertStoresEqual(t, src, dst)
}

func TestSnapshot_RoundTrip_MemoryToSQLite(t *testing.T) {
	// Restoring into a different store implementation must preserve the
	// same state, proving the snapshot is implementation-neutral.

	ctx := context.Background()
	src := store.NewMemory()
	buildSnapshotFixture(t, src)

	snap, err := library.TakeSnapshot(ctx, src)
	require.NoError(t, err)

	dst, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dst.Close() })

	require.NoError(t, snap.Restore(ctx, dst))

	assertStoresEqual(t, src, dst)
}

func TestSnapshot_RestoredQueueKeepsFulfillmentOrder(t *testing.T) {
	// The equal-timestamp tie in the fixture must dequeue identically
	// after a round trip.

	ctx := context.Background()
	src := store.NewMemory()
	buildSnapshotFixture(t, src)

	srcNext, err := library.NewQueue(src).Peek(ctx, firstBookID(t, src))
	require.NoError(t, err)

	snap, err := library.TakeSnapshot(ctx, src)
	require.NoError(t, err)

	dst := store.NewMemory()
	require.NoError(t, snap.Restore(ctx, dst))

	dstNext, err := library.NewQueue(dst).Peek(ctx, firstBookID(t, dst))
	require.NoError(t, err)

	assert.Equal(t, srcNext.ID, dstNext.ID)
	assert.Equal(t, srcNext.Seq, dstNext.Seq)
}

func TestDecodeSnapshot_Garbage_Rejected(t *testing.T) {
	_, err := library.DecodeSnapshot([]byte("{not json"))
	assert.Error(t, err)
}

// =============================================================================
// HELPERS
// =============================================================================

func firstBookID(t *testing.T, s library.Store) library.BookID {
	t.Helper()
	books, err := s.ListBooks(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, books)
	return books[0].ID
}

func assertStoresEqual(t *testing.T, want, got library.Store) {
	t.Helper()
	ctx := context.Background()

	wantBooks, err := want.ListBooks(ctx)
	require.NoError(t, err)
	gotBooks, err := got.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, gotBooks, len(wantBooks))
	for i := range wantBooks {
		// CreatedAt survives only at second precision across store
		// implementations.
		assert.WithinDuration(t, wantBooks[i].CreatedAt, gotBooks[i].CreatedAt, time.Second)
		wantBooks[i].CreatedAt = time.Time{}
		gotBooks[i].CreatedAt = time.Time{}
	}
	assert.Equal(t, wantBooks, gotBooks)

	wantAuthors, _ := want.ListAuthors(ctx)
	gotAuthors, _ := got.ListAuthors(ctx)
	assert.Equal(t, wantAuthors, gotAuthors)

	wantGenres, _ := want.ListGenres(ctx)
	gotGenres, _ := got.ListGenres(ctx)
	assert.Equal(t, wantGenres, gotGenres)

	wantMembers, _ := want.ListMembers(ctx)
	gotMembers, _ := got.ListMembers(ctx)
	assert.Equal(t, wantMembers, gotMembers)

	wantLoans, _ := want.ListLoans(ctx)
	gotLoans, _ := got.ListLoans(ctx)
	assert.Equal(t, wantLoans, gotLoans)

	wantReservations, _ := want.ListReservations(ctx)
	gotReservations, _ := got.ListReservations(ctx)
	assert.Equal(t, wantReservations, gotReservations)
}
