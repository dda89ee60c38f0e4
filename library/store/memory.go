/*
Package store provides an in-memory Store implementation.

PURPOSE:
  Backs tests and demo runs without a database file. Enforces the same
  uniqueness and bounds constraints as the SQLite store so engine
  behavior is identical across implementations.

TRANSACTIONS:
  WithTx is simulated with a deep snapshot taken under the write lock;
  if fn fails the snapshot is restored, so rollback is all-or-nothing
  exactly like a database transaction.

STRUCTURE:
  All logic lives on the unlocked inner data type. Memory adds locking
  on top; the transactional view reuses data directly while WithTx
  holds the write lock.
*/
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/circulation-engine/library"
)

// Memory implements library.TxStore with maps.
type Memory struct {
	mu sync.RWMutex
	d  data
}

type data struct {
	books        map[library.BookID]library.Book
	authors      map[library.AuthorID]library.Author
	genres       map[library.GenreID]library.Genre
	members      map[library.MemberID]library.Member
	loans        map[library.LoanID]library.Loan
	reservations map[library.ReservationID]library.Reservation
	seq          uint64
}

func NewMemory() *Memory {
	return &Memory{d: newData()}
}

func newData() data {
	return data{
		books:        make(map[library.BookID]library.Book),
		authors:      make(map[library.AuthorID]library.Author),
		genres:       make(map[library.GenreID]library.Genre),
		members:      make(map[library.MemberID]library.Member),
		loans:        make(map[library.LoanID]library.Loan),
		reservations: make(map[library.ReservationID]library.Reservation),
	}
}

// =============================================================================
// UNLOCKED CORE
// =============================================================================

func (d *data) saveBook(b library.Book) error {
	for _, existing := range d.books {
		if existing.ISBN == b.ISBN && existing.ID != b.ID {
			return library.ErrDuplicateISBN
		}
	}
	if b.TotalCopies < 0 || b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return &library.CopyBoundsError{
			BookID: b.ID, Available: b.AvailableCopies, Total: b.TotalCopies,
		}
	}
	d.books[b.ID] = b
	return nil
}

func (d *data) getBook(id library.BookID) (library.Book, error) {
	b, ok := d.books[id]
	if !ok {
		return library.Book{}, library.ErrNotFound
	}
	return b, nil
}

func (d *data) listBooks() []library.Book {
	books := make([]library.Book, 0, len(d.books))
	for _, b := range d.books {
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books
}

func (d *data) adjustCopies(id library.BookID, delta int) (library.Book, error) {
	b, err := d.getBook(id)
	if err != nil {
		return library.Book{}, err
	}
	next := b.AvailableCopies + delta
	if next < 0 || next > b.TotalCopies {
		return library.Book{}, &library.CopyBoundsError{
			BookID: id, Available: b.AvailableCopies, Total: b.TotalCopies, Delta: delta,
		}
	}
	b.AvailableCopies = next
	d.books[id] = b
	return b, nil
}

func (d *data) addStock(id library.BookID, n int) (library.Book, error) {
	b, err := d.getBook(id)
	if err != nil {
		return library.Book{}, err
	}
	if b.TotalCopies+n < 0 || b.AvailableCopies+n < 0 {
		return library.Book{}, &library.CopyBoundsError{
			BookID: id, Available: b.AvailableCopies, Total: b.TotalCopies, Delta: n,
		}
	}
	b.TotalCopies += n
	b.AvailableCopies += n
	d.books[id] = b
	return b, nil
}

func (d *data) deleteBook(id library.BookID) error {
	if _, ok := d.books[id]; !ok {
		return library.ErrNotFound
	}
	for _, l := range d.loans {
		if l.BookID == id && l.IsOpen() {
			return &library.InUseError{Kind: "book", ID: string(id), Why: "open loans exist"}
		}
	}
	for _, r := range d.reservations {
		if r.BookID == id {
			return &library.InUseError{Kind: "book", ID: string(id), Why: "pending reservations exist"}
		}
	}
	delete(d.books, id)
	return nil
}

func (d *data) saveAuthor(a library.Author) error {
	d.authors[a.ID] = a
	return nil
}

func (d *data) getAuthor(id library.AuthorID) (library.Author, error) {
	a, ok := d.authors[id]
	if !ok {
		return library.Author{}, library.ErrNotFound
	}
	return a, nil
}

func (d *data) listAuthors() []library.Author {
	authors := make([]library.Author, 0, len(d.authors))
	for _, a := range d.authors {
		authors = append(authors, a)
	}
	sort.Slice(authors, func(i, j int) bool { return authors[i].ID < authors[j].ID })
	return authors
}

func (d *data) deleteAuthor(id library.AuthorID) error {
	if _, ok := d.authors[id]; !ok {
		return library.ErrNotFound
	}
	for _, b := range d.books {
		if b.AuthorID != nil && *b.AuthorID == id {
			return &library.InUseError{Kind: "author", ID: string(id), Why: "referenced by books"}
		}
	}
	delete(d.authors, id)
	return nil
}

func (d *data) saveGenre(g library.Genre) error {
	for _, existing := range d.genres {
		if existing.Name == g.Name && existing.ID != g.ID {
			return fmt.Errorf("genre name %q already exists: %w", g.Name, library.ErrInvariantViolation)
		}
	}
	d.genres[g.ID] = g
	return nil
}

func (d *data) getGenre(id library.GenreID) (library.Genre, error) {
	g, ok := d.genres[id]
	if !ok {
		return library.Genre{}, library.ErrNotFound
	}
	return g, nil
}

func (d *data) listGenres() []library.Genre {
	genres := make([]library.Genre, 0, len(d.genres))
	for _, g := range d.genres {
		genres = append(genres, g)
	}
	sort.Slice(genres, func(i, j int) bool { return genres[i].ID < genres[j].ID })
	return genres
}

func (d *data) deleteGenre(id library.GenreID) error {
	if _, ok := d.genres[id]; !ok {
		return library.ErrNotFound
	}
	for _, b := range d.books {
		if b.GenreID != nil && *b.GenreID == id {
			return &library.InUseError{Kind: "genre", ID: string(id), Why: "referenced by books"}
		}
	}
	delete(d.genres, id)
	return nil
}

func (d *data) saveMember(member library.Member) error {
	for _, existing := range d.members {
		if existing.ID == member.ID {
			continue
		}
		if member.Email != "" && existing.Email == member.Email {
			return &library.DuplicateContactError{Field: "email", Value: member.Email}
		}
		if member.Phone != "" && existing.Phone == member.Phone {
			return &library.DuplicateContactError{Field: "phone", Value: member.Phone}
		}
	}
	d.members[member.ID] = member
	return nil
}

func (d *data) getMember(id library.MemberID) (library.Member, error) {
	member, ok := d.members[id]
	if !ok {
		return library.Member{}, library.ErrNotFound
	}
	return member, nil
}

func (d *data) listMembers() []library.Member {
	members := make([]library.Member, 0, len(d.members))
	for _, member := range d.members {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

func (d *data) deleteMember(id library.MemberID) error {
	if _, ok := d.members[id]; !ok {
		return library.ErrNotFound
	}
	delete(d.members, id)
	return nil
}

func (d *data) saveLoan(l library.Loan) error {
	if l.IsOpen() {
		for _, existing := range d.loans {
			if existing.BookID == l.BookID && existing.MemberID == l.MemberID &&
				existing.IsOpen() && existing.ID != l.ID {
				return library.ErrAlreadyOnLoan
			}
		}
	}
	d.loans[l.ID] = l
	return nil
}

func (d *data) setReturned(id library.LoanID, returnDate library.Date) error {
	l, ok := d.loans[id]
	if !ok {
		return library.ErrNotFound
	}
	if !l.IsOpen() {
		return library.ErrAlreadyReturned
	}
	l.ReturnDate = &returnDate
	d.loans[id] = l
	return nil
}

func (d *data) getLoan(id library.LoanID) (library.Loan, error) {
	l, ok := d.loans[id]
	if !ok {
		return library.Loan{}, library.ErrNotFound
	}
	return l, nil
}

func (d *data) loansByMember(id library.MemberID, openOnly bool) []library.Loan {
	var loans []library.Loan
	for _, l := range d.loans {
		if l.MemberID != id {
			continue
		}
		if openOnly && !l.IsOpen() {
			continue
		}
		loans = append(loans, l)
	}
	sortLoans(loans)
	return loans
}

func (d *data) openLoans() []library.Loan {
	var loans []library.Loan
	for _, l := range d.loans {
		if l.IsOpen() {
			loans = append(loans, l)
		}
	}
	sortLoans(loans)
	return loans
}

func (d *data) countOpenLoans(id library.BookID) int {
	count := 0
	for _, l := range d.loans {
		if l.BookID == id && l.IsOpen() {
			count++
		}
	}
	return count
}

func (d *data) listLoans() []library.Loan {
	loans := make([]library.Loan, 0, len(d.loans))
	for _, l := range d.loans {
		loans = append(loans, l)
	}
	sortLoans(loans)
	return loans
}

func (d *data) saveReservation(r library.Reservation) (library.Reservation, error) {
	for _, existing := range d.reservations {
		if existing.BookID == r.BookID && existing.MemberID == r.MemberID && existing.ID != r.ID {
			return library.Reservation{}, library.ErrDuplicateReservation
		}
	}
	if r.Seq == 0 {
		d.seq++
		r.Seq = d.seq
	} else if r.Seq > d.seq {
		d.seq = r.Seq
	}
	d.reservations[r.ID] = r
	return r, nil
}

func (d *data) getReservation(id library.ReservationID) (library.Reservation, error) {
	r, ok := d.reservations[id]
	if !ok {
		return library.Reservation{}, library.ErrNotFound
	}
	return r, nil
}

func (d *data) pending(id library.BookID) []library.Reservation {
	var pending []library.Reservation
	for _, r := range d.reservations {
		if r.BookID == id {
			pending = append(pending, r)
		}
	}
	sortReservations(pending)
	return pending
}

func (d *data) nextReservation(id library.BookID) (library.Reservation, error) {
	pending := d.pending(id)
	if len(pending) == 0 {
		return library.Reservation{}, library.ErrQueueEmpty
	}
	return pending[0], nil
}

func (d *data) deleteReservation(id library.ReservationID) error {
	if _, ok := d.reservations[id]; !ok {
		return library.ErrNotFound
	}
	delete(d.reservations, id)
	return nil
}

func (d *data) pendingByMember(bookID library.BookID, memberID library.MemberID) bool {
	for _, r := range d.reservations {
		if r.BookID == bookID && r.MemberID == memberID {
			return true
		}
	}
	return false
}

func (d *data) listReservations() []library.Reservation {
	reservations := make([]library.Reservation, 0, len(d.reservations))
	for _, r := range d.reservations {
		reservations = append(reservations, r)
	}
	sortReservations(reservations)
	return reservations
}

func sortLoans(loans []library.Loan) {
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].LoanDate.Equal(loans[j].LoanDate) {
			return loans[i].LoanDate.Before(loans[j].LoanDate)
		}
		return loans[i].ID < loans[j].ID
	})
}

func sortReservations(rs []library.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].ReservedAt.Equal(rs[j].ReservedAt) {
			return rs[i].ReservedAt.Before(rs[j].ReservedAt)
		}
		return rs[i].Seq < rs[j].Seq
	})
}

func (d *data) clone() data {
	return data{
		books:        copyMap(d.books),
		authors:      copyMap(d.authors),
		genres:       copyMap(d.genres),
		members:      copyMap(d.members),
		loans:        copyMap(d.loans),
		reservations: copyMap(d.reservations),
		seq:          d.seq,
	}
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// =============================================================================
// LOCKED WRAPPERS (library.Store)
// =============================================================================

func (m *Memory) SaveBook(_ context.Context, b library.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.saveBook(b)
}

func (m *Memory) GetBook(_ context.Context, id library.BookID) (library.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getBook(id)
}

func (m *Memory) ListBooks(_ context.Context) ([]library.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listBooks(), nil
}

func (m *Memory) AdjustCopies(_ context.Context, id library.BookID, delta int) (library.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.adjustCopies(id, delta)
}

func (m *Memory) AddStock(_ context.Context, id library.BookID, n int) (library.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.addStock(id, n)
}

func (m *Memory) DeleteBook(_ context.Context, id library.BookID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.deleteBook(id)
}

func (m *Memory) SaveAuthor(_ context.Context, a library.Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.saveAuthor(a)
}

func (m *Memory) GetAuthor(_ context.Context, id library.AuthorID) (library.Author, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getAuthor(id)
}

func (m *Memory) ListAuthors(_ context.Context) ([]library.Author, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listAuthors(), nil
}

func (m *Memory) DeleteAuthor(_ context.Context, id library.AuthorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.deleteAuthor(id)
}

func (m *Memory) SaveGenre(_ context.Context, g library.Genre) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.saveGenre(g)
}

func (m *Memory) GetGenre(_ context.Context, id library.GenreID) (library.Genre, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getGenre(id)
}

func (m *Memory) ListGenres(_ context.Context) ([]library.Genre, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listGenres(), nil
}

func (m *Memory) DeleteGenre(_ context.Context, id library.GenreID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.deleteGenre(id)
}

func (m *Memory) SaveMember(_ context.Context, member library.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.saveMember(member)
}

func (m *Memory) GetMember(_ context.Context, id library.MemberID) (library.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getMember(id)
}

func (m *Memory) ListMembers(_ context.Context) ([]library.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listMembers(), nil
}

func (m *Memory) DeleteMember(_ context.Context, id library.MemberID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.deleteMember(id)
}

func (m *Memory) SaveLoan(_ context.Context, l library.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.saveLoan(l)
}

func (m *Memory) SetReturned(_ context.Context, id library.LoanID, returnDate library.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.setReturned(id, returnDate)
}

func (m *Memory) GetLoan(_ context.Context, id library.LoanID) (library.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getLoan(id)
}

func (m *Memory) LoansByMember(_ context.Context, id library.MemberID, openOnly bool) ([]library.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.loansByMember(id, openOnly), nil
}

func (m *Memory) OpenLoans(_ context.Context) ([]library.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.openLoans(), nil
}

func (m *Memory) CountOpenLoans(_ context.Context, id library.BookID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.countOpenLoans(id), nil
}

func (m *Memory) ListLoans(_ context.Context) ([]library.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listLoans(), nil
}

func (m *Memory) SaveReservation(_ context.Context, r library.Reservation) (library.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.saveReservation(r)
}

func (m *Memory) GetReservation(_ context.Context, id library.ReservationID) (library.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getReservation(id)
}

func (m *Memory) NextReservation(_ context.Context, id library.BookID) (library.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.nextReservation(id)
}

func (m *Memory) DeleteReservation(_ context.Context, id library.ReservationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.deleteReservation(id)
}

func (m *Memory) PendingReservations(_ context.Context, id library.BookID) ([]library.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.pending(id), nil
}

func (m *Memory) PendingByMember(_ context.Context, bookID library.BookID, memberID library.MemberID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.pendingByMember(bookID, memberID), nil
}

func (m *Memory) ListReservations(_ context.Context) ([]library.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listReservations(), nil
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback
// =============================================================================

// WithTx executes fn against an unlocked view while holding the write
// lock. On error, state is restored from the snapshot.
func (m *Memory) WithTx(_ context.Context, fn func(library.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.d.clone()
	if err := fn(&txView{d: &m.d}); err != nil {
		m.d = snap
		return err
	}
	return nil
}

// txView exposes the unlocked core as a library.Store for use inside
// WithTx.
type txView struct {
	d *data
}

func (t *txView) SaveBook(_ context.Context, b library.Book) error { return t.d.saveBook(b) }
func (t *txView) GetBook(_ context.Context, id library.BookID) (library.Book, error) {
	return t.d.getBook(id)
}
func (t *txView) ListBooks(_ context.Context) ([]library.Book, error) { return t.d.listBooks(), nil }
func (t *txView) AdjustCopies(_ context.Context, id library.BookID, delta int) (library.Book, error) {
	return t.d.adjustCopies(id, delta)
}
func (t *txView) AddStock(_ context.Context, id library.BookID, n int) (library.Book, error) {
	return t.d.addStock(id, n)
}
func (t *txView) DeleteBook(_ context.Context, id library.BookID) error { return t.d.deleteBook(id) }

func (t *txView) SaveAuthor(_ context.Context, a library.Author) error { return t.d.saveAuthor(a) }
func (t *txView) GetAuthor(_ context.Context, id library.AuthorID) (library.Author, error) {
	return t.d.getAuthor(id)
}
func (t *txView) ListAuthors(_ context.Context) ([]library.Author, error) {
	return t.d.listAuthors(), nil
}
func (t *txView) DeleteAuthor(_ context.Context, id library.AuthorID) error {
	return t.d.deleteAuthor(id)
}

func (t *txView) SaveGenre(_ context.Context, g library.Genre) error { return t.d.saveGenre(g) }
func (t *txView) GetGenre(_ context.Context, id library.GenreID) (library.Genre, error) {
	return t.d.getGenre(id)
}
func (t *txView) ListGenres(_ context.Context) ([]library.Genre, error) {
	return t.d.listGenres(), nil
}
func (t *txView) DeleteGenre(_ context.Context, id library.GenreID) error {
	return t.d.deleteGenre(id)
}

func (t *txView) SaveMember(_ context.Context, m library.Member) error { return t.d.saveMember(m) }
func (t *txView) GetMember(_ context.Context, id library.MemberID) (library.Member, error) {
	return t.d.getMember(id)
}
func (t *txView) ListMembers(_ context.Context) ([]library.Member, error) {
	return t.d.listMembers(), nil
}
func (t *txView) DeleteMember(_ context.Context, id library.MemberID) error {
	return t.d.deleteMember(id)
}

func (t *txView) SaveLoan(_ context.Context, l library.Loan) error { return t.d.saveLoan(l) }
func (t *txView) SetReturned(_ context.Context, id library.LoanID, returnDate library.Date) error {
	return t.d.setReturned(id, returnDate)
}
func (t *txView) GetLoan(_ context.Context, id library.LoanID) (library.Loan, error) {
	return t.d.getLoan(id)
}
func (t *txView) LoansByMember(_ context.Context, id library.MemberID, openOnly bool) ([]library.Loan, error) {
	return t.d.loansByMember(id, openOnly), nil
}
func (t *txView) OpenLoans(_ context.Context) ([]library.Loan, error) { return t.d.openLoans(), nil }
func (t *txView) CountOpenLoans(_ context.Context, id library.BookID) (int, error) {
	return t.d.countOpenLoans(id), nil
}
func (t *txView) ListLoans(_ context.Context) ([]library.Loan, error) { return t.d.listLoans(), nil }

func (t *txView) SaveReservation(_ context.Context, r library.Reservation) (library.Reservation, error) {
	return t.d.saveReservation(r)
}
func (t *txView) GetReservation(_ context.Context, id library.ReservationID) (library.Reservation, error) {
	return t.d.getReservation(id)
}
func (t *txView) NextReservation(_ context.Context, id library.BookID) (library.Reservation, error) {
	return t.d.nextReservation(id)
}
func (t *txView) DeleteReservation(_ context.Context, id library.ReservationID) error {
	return t.d.deleteReservation(id)
}
func (t *txView) PendingReservations(_ context.Context, id library.BookID) ([]library.Reservation, error) {
	return t.d.pending(id), nil
}
func (t *txView) PendingByMember(_ context.Context, bookID library.BookID, memberID library.MemberID) (bool, error) {
	return t.d.pendingByMember(bookID, memberID), nil
}
func (t *txView) ListReservations(_ context.Context) ([]library.Reservation, error) {
	return t.d.listReservations(), nil
}
