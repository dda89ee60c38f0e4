/*
Package sqlite provides a SQLite-backed implementation of library.TxStore.

PURPOSE:
  Production persistence for the circulation engine. The schema mirrors
  the classic library data model: Books, Authors, Genres, Members,
  Loans, Reservations, with the uniqueness constraints the domain
  requires.

CONSTRAINT ENFORCEMENT:
  The database is the last line of defense for uniqueness:
  - books.isbn UNIQUE
  - genres.name UNIQUE
  - members.email / members.phone UNIQUE (both nullable)
  - reservations (book_id, member_id) UNIQUE
  - one open loan per (book_id, member_id) via a partial unique index
  - CHECK (available_copies BETWEEN 0 AND total_copies)
  Constraint failures are sniffed by index/column name and mapped onto
  the domain error taxonomy so callers never see raw SQL errors.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

TRANSACTIONS:
  WithTx wraps fn in a sql.Tx. All query logic lives on the queries
  type, parameterized over *sql.DB or *sql.Tx, so the same code runs
  inside and outside transactions.

MIGRATION:
  Schema is auto-migrated on New(). For production fleets, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - library/store.go: Interface definitions
  - library/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/circulation-engine/library"
)

// Store implements library.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New opens (or creates) the database at dbPath and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, q: queries{db: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS authors (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS genres (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		isbn TEXT UNIQUE NOT NULL,
		publication_year INTEGER,
		author_id TEXT REFERENCES authors(id),
		genre_id TEXT REFERENCES genres(id),
		total_copies INTEGER NOT NULL DEFAULT 1,
		available_copies INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		CHECK (available_copies >= 0 AND available_copies <= total_copies),
		CHECK (total_copies >= 0)
	);

	CREATE INDEX IF NOT EXISTS idx_books_author ON books(author_id);
	CREATE INDEX IF NOT EXISTS idx_books_genre ON books(genre_id);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		membership_date TEXT NOT NULL,
		email TEXT UNIQUE,
		phone TEXT UNIQUE
	);

	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL REFERENCES books(id),
		member_id TEXT NOT NULL REFERENCES members(id),
		loan_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		return_date TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(member_id);
	CREATE INDEX IF NOT EXISTS idx_loans_book ON loans(book_id);

	-- One open loan per (book, member). A member re-borrowing a title
	-- they already hold is a policy violation.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_open_per_member
		ON loans(book_id, member_id) WHERE return_date IS NULL;

	-- Availability accounting hot path.
	CREATE INDEX IF NOT EXISTS idx_loans_open
		ON loans(book_id) WHERE return_date IS NULL;

	CREATE TABLE IF NOT EXISTS reservations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		book_id TEXT NOT NULL REFERENCES books(id),
		member_id TEXT NOT NULL REFERENCES members(id),
		reserved_at TEXT NOT NULL,
		UNIQUE(book_id, member_id)
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_fifo
		ON reservations(book_id, reserved_at, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIES - shared between Store and transactional views
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// --- Books ---

func (q queries) saveBook(ctx context.Context, b library.Book) error {
	if b.TotalCopies < 0 || b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return &library.CopyBoundsError{
			BookID: b.ID, Available: b.AvailableCopies, Total: b.TotalCopies,
		}
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO books (id, title, isbn, publication_year, author_id, genre_id,
			total_copies, available_copies, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, b.ISBN, nullInt(b.PublicationYear),
		nullAuthorID(b.AuthorID), nullGenreID(b.GenreID),
		b.TotalCopies, b.AvailableCopies,
		b.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraint(err, "books.isbn") {
			return library.ErrDuplicateISBN
		}
		return fmt.Errorf("failed to insert book: %w", err)
	}
	return nil
}

func (q queries) getBook(ctx context.Context, id library.BookID) (library.Book, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, title, isbn, publication_year, author_id, genre_id,
		       total_copies, available_copies, created_at
		FROM books WHERE id = ?`, id)
	return scanBook(row)
}

func (q queries) listBooks(ctx context.Context) ([]library.Book, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, title, isbn, publication_year, author_id, genre_id,
		       total_copies, available_copies, created_at
		FROM books ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []library.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (q queries) adjustCopies(ctx context.Context, id library.BookID, delta int) (library.Book, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE books SET available_copies = available_copies + ?
		WHERE id = ?
		  AND available_copies + ? >= 0
		  AND available_copies + ? <= total_copies`,
		delta, id, delta, delta)
	if err != nil {
		return library.Book{}, fmt.Errorf("failed to adjust copies: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return library.Book{}, err
	}
	if n == 0 {
		// Either the book is missing or the adjustment is out of bounds.
		b, gerr := q.getBook(ctx, id)
		if gerr != nil {
			return library.Book{}, gerr
		}
		return library.Book{}, &library.CopyBoundsError{
			BookID: id, Available: b.AvailableCopies, Total: b.TotalCopies, Delta: delta,
		}
	}
	return q.getBook(ctx, id)
}

func (q queries) addStock(ctx context.Context, id library.BookID, n int) (library.Book, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE books SET total_copies = total_copies + ?,
		                 available_copies = available_copies + ?
		WHERE id = ?
		  AND total_copies + ? >= 0
		  AND available_copies + ? >= 0`,
		n, n, id, n, n)
	if err != nil {
		return library.Book{}, fmt.Errorf("failed to add stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return library.Book{}, err
	}
	if affected == 0 {
		b, gerr := q.getBook(ctx, id)
		if gerr != nil {
			return library.Book{}, gerr
		}
		return library.Book{}, &library.CopyBoundsError{
			BookID: id, Available: b.AvailableCopies, Total: b.TotalCopies, Delta: n,
		}
	}
	return q.getBook(ctx, id)
}

func (q queries) deleteBook(ctx context.Context, id library.BookID) error {
	if _, err := q.getBook(ctx, id); err != nil {
		return err
	}

	var open int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE book_id = ? AND return_date IS NULL`, id,
	).Scan(&open); err != nil {
		return err
	}
	if open > 0 {
		return &library.InUseError{Kind: "book", ID: string(id), Why: "open loans exist"}
	}

	var pending int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE book_id = ?`, id,
	).Scan(&pending); err != nil {
		return err
	}
	if pending > 0 {
		return &library.InUseError{Kind: "book", ID: string(id), Why: "pending reservations exist"}
	}

	_, err := q.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	return err
}

// --- Authors ---

func (q queries) saveAuthor(ctx context.Context, a library.Author) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO authors (id, first_name, last_name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name`,
		a.ID, a.FirstName, a.LastName)
	return err
}

func (q queries) getAuthor(ctx context.Context, id library.AuthorID) (library.Author, error) {
	var a library.Author
	err := q.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name FROM authors WHERE id = ?`, id,
	).Scan(&a.ID, &a.FirstName, &a.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Author{}, library.ErrNotFound
	}
	if err != nil {
		return library.Author{}, err
	}
	return a, nil
}

func (q queries) listAuthors(ctx context.Context) ([]library.Author, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, first_name, last_name FROM authors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []library.Author
	for rows.Next() {
		var a library.Author
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

func (q queries) deleteAuthor(ctx context.Context, id library.AuthorID) error {
	if _, err := q.getAuthor(ctx, id); err != nil {
		return err
	}
	var refs int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM books WHERE author_id = ?`, id,
	).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return &library.InUseError{Kind: "author", ID: string(id), Why: "referenced by books"}
	}
	_, err := q.db.ExecContext(ctx, `DELETE FROM authors WHERE id = ?`, id)
	return err
}

// --- Genres ---

func (q queries) saveGenre(ctx context.Context, g library.Genre) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO genres (id, name) VALUES (?, ?)`, g.ID, g.Name)
	if err != nil {
		if isUniqueConstraint(err, "genres.name") {
			return fmt.Errorf("genre name %q already exists: %w", g.Name, library.ErrInvariantViolation)
		}
		return err
	}
	return nil
}

func (q queries) getGenre(ctx context.Context, id library.GenreID) (library.Genre, error) {
	var g library.Genre
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name FROM genres WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Genre{}, library.ErrNotFound
	}
	if err != nil {
		return library.Genre{}, err
	}
	return g, nil
}

func (q queries) listGenres(ctx context.Context) ([]library.Genre, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name FROM genres ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var genres []library.Genre
	for rows.Next() {
		var g library.Genre
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

func (q queries) deleteGenre(ctx context.Context, id library.GenreID) error {
	if _, err := q.getGenre(ctx, id); err != nil {
		return err
	}
	var refs int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM books WHERE genre_id = ?`, id,
	).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return &library.InUseError{Kind: "genre", ID: string(id), Why: "referenced by books"}
	}
	_, err := q.db.ExecContext(ctx, `DELETE FROM genres WHERE id = ?`, id)
	return err
}

// --- Members ---

func (q queries) saveMember(ctx context.Context, m library.Member) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO members (id, first_name, last_name, membership_date, email, phone)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.FirstName, m.LastName, m.MembershipDate.String(),
		nullString(m.Email), nullString(m.Phone))
	if err != nil {
		if isUniqueConstraint(err, "members.email") {
			return &library.DuplicateContactError{Field: "email", Value: m.Email}
		}
		if isUniqueConstraint(err, "members.phone") {
			return &library.DuplicateContactError{Field: "phone", Value: m.Phone}
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (q queries) getMember(ctx context.Context, id library.MemberID) (library.Member, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, membership_date, email, phone
		FROM members WHERE id = ?`, id)
	return scanMember(row)
}

func (q queries) listMembers(ctx context.Context) ([]library.Member, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, membership_date, email, phone
		FROM members ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []library.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (q queries) deleteMember(ctx context.Context, id library.MemberID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return library.ErrNotFound
	}
	return nil
}

// --- Loans ---

func (q queries) saveLoan(ctx context.Context, l library.Loan) error {
	var returnDate any
	if l.ReturnDate != nil {
		returnDate = l.ReturnDate.String()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO loans (id, book_id, member_id, loan_date, due_date, return_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.BookID, l.MemberID, l.LoanDate.String(), l.DueDate.String(), returnDate)
	if err != nil {
		if isUniqueConstraint(err, "loans.book_id") {
			return library.ErrAlreadyOnLoan
		}
		return fmt.Errorf("failed to insert loan: %w", err)
	}
	return nil
}

func (q queries) setReturned(ctx context.Context, id library.LoanID, returnDate library.Date) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE loans SET return_date = ? WHERE id = ? AND return_date IS NULL`,
		returnDate.String(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := q.getLoan(ctx, id); err != nil {
			return err
		}
		return library.ErrAlreadyReturned
	}
	return nil
}

func (q queries) getLoan(ctx context.Context, id library.LoanID) (library.Loan, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, book_id, member_id, loan_date, due_date, return_date
		FROM loans WHERE id = ?`, id)
	return scanLoan(row)
}

func (q queries) loansByMember(ctx context.Context, id library.MemberID, openOnly bool) ([]library.Loan, error) {
	query := `
		SELECT id, book_id, member_id, loan_date, due_date, return_date
		FROM loans WHERE member_id = ?`
	if openOnly {
		query += ` AND return_date IS NULL`
	}
	query += ` ORDER BY loan_date, id`
	return q.queryLoans(ctx, query, id)
}

func (q queries) openLoans(ctx context.Context) ([]library.Loan, error) {
	return q.queryLoans(ctx, `
		SELECT id, book_id, member_id, loan_date, due_date, return_date
		FROM loans WHERE return_date IS NULL
		ORDER BY loan_date, id`)
}

func (q queries) countOpenLoans(ctx context.Context, id library.BookID) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE book_id = ? AND return_date IS NULL`, id,
	).Scan(&count)
	return count, err
}

func (q queries) listLoans(ctx context.Context) ([]library.Loan, error) {
	return q.queryLoans(ctx, `
		SELECT id, book_id, member_id, loan_date, due_date, return_date
		FROM loans ORDER BY loan_date, id`)
}

func (q queries) queryLoans(ctx context.Context, query string, args ...any) ([]library.Loan, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []library.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// --- Reservations ---

func (q queries) saveReservation(ctx context.Context, r library.Reservation) (library.Reservation, error) {
	var res sql.Result
	var err error
	if r.Seq == 0 {
		res, err = q.db.ExecContext(ctx, `
			INSERT INTO reservations (id, book_id, member_id, reserved_at)
			VALUES (?, ?, ?, ?)`,
			r.ID, r.BookID, r.MemberID, r.ReservedAt.UTC().Format(time.RFC3339Nano))
	} else {
		// Restored reservations keep their sequence numbers so FIFO order
		// survives a snapshot round trip.
		res, err = q.db.ExecContext(ctx, `
			INSERT INTO reservations (seq, id, book_id, member_id, reserved_at)
			VALUES (?, ?, ?, ?, ?)`,
			r.Seq, r.ID, r.BookID, r.MemberID, r.ReservedAt.UTC().Format(time.RFC3339Nano))
	}
	if err != nil {
		if isUniqueConstraint(err, "reservations.book_id") {
			return library.Reservation{}, library.ErrDuplicateReservation
		}
		return library.Reservation{}, fmt.Errorf("failed to insert reservation: %w", err)
	}

	if r.Seq == 0 {
		seq, err := res.LastInsertId()
		if err != nil {
			return library.Reservation{}, err
		}
		r.Seq = uint64(seq)
	}
	return r, nil
}

func (q queries) getReservation(ctx context.Context, id library.ReservationID) (library.Reservation, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT seq, id, book_id, member_id, reserved_at
		FROM reservations WHERE id = ?`, id)
	return scanReservation(row)
}

func (q queries) nextReservation(ctx context.Context, id library.BookID) (library.Reservation, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT seq, id, book_id, member_id, reserved_at
		FROM reservations WHERE book_id = ?
		ORDER BY reserved_at, seq LIMIT 1`, id)
	r, err := scanReservation(row)
	if errors.Is(err, library.ErrNotFound) {
		return library.Reservation{}, library.ErrQueueEmpty
	}
	return r, err
}

func (q queries) deleteReservation(ctx context.Context, id library.ReservationID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return library.ErrNotFound
	}
	return nil
}

func (q queries) pendingReservations(ctx context.Context, id library.BookID) ([]library.Reservation, error) {
	return q.queryReservations(ctx, `
		SELECT seq, id, book_id, member_id, reserved_at
		FROM reservations WHERE book_id = ?
		ORDER BY reserved_at, seq`, id)
}

func (q queries) pendingByMember(ctx context.Context, bookID library.BookID, memberID library.MemberID) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE book_id = ? AND member_id = ?`,
		bookID, memberID,
	).Scan(&count)
	return count > 0, err
}

func (q queries) listReservations(ctx context.Context) ([]library.Reservation, error) {
	return q.queryReservations(ctx, `
		SELECT seq, id, book_id, member_id, reserved_at
		FROM reservations ORDER BY reserved_at, seq`)
}

func (q queries) queryReservations(ctx context.Context, query string, args ...any) ([]library.Reservation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []library.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (library.Book, error) {
	var (
		b         library.Book
		year      sql.NullInt64
		authorID  sql.NullString
		genreID   sql.NullString
		createdAt string
	)
	err := row.Scan(&b.ID, &b.Title, &b.ISBN, &year, &authorID, &genreID,
		&b.TotalCopies, &b.AvailableCopies, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Book{}, library.ErrNotFound
	}
	if err != nil {
		return library.Book{}, fmt.Errorf("failed to scan book: %w", err)
	}

	b.PublicationYear = int(year.Int64)
	if authorID.Valid {
		id := library.AuthorID(authorID.String)
		b.AuthorID = &id
	}
	if genreID.Valid {
		id := library.GenreID(genreID.String)
		b.GenreID = &id
	}
	b.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return library.Book{}, fmt.Errorf("failed to parse book timestamp: %w", err)
	}
	return b, nil
}

func scanMember(row rowScanner) (library.Member, error) {
	var (
		m              library.Member
		membershipDate string
		email, phone   sql.NullString
	)
	err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &membershipDate, &email, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Member{}, library.ErrNotFound
	}
	if err != nil {
		return library.Member{}, fmt.Errorf("failed to scan member: %w", err)
	}

	m.MembershipDate, err = library.ParseDate(membershipDate)
	if err != nil {
		return library.Member{}, fmt.Errorf("failed to parse membership date: %w", err)
	}
	m.Email = email.String
	m.Phone = phone.String
	return m, nil
}

func scanLoan(row rowScanner) (library.Loan, error) {
	var (
		l                 library.Loan
		loanDate, dueDate string
		returnDate        sql.NullString
	)
	err := row.Scan(&l.ID, &l.BookID, &l.MemberID, &loanDate, &dueDate, &returnDate)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Loan{}, library.ErrNotFound
	}
	if err != nil {
		return library.Loan{}, fmt.Errorf("failed to scan loan: %w", err)
	}

	if l.LoanDate, err = library.ParseDate(loanDate); err != nil {
		return library.Loan{}, fmt.Errorf("failed to parse loan date: %w", err)
	}
	if l.DueDate, err = library.ParseDate(dueDate); err != nil {
		return library.Loan{}, fmt.Errorf("failed to parse due date: %w", err)
	}
	if returnDate.Valid {
		d, err := library.ParseDate(returnDate.String)
		if err != nil {
			return library.Loan{}, fmt.Errorf("failed to parse return date: %w", err)
		}
		l.ReturnDate = &d
	}
	return l, nil
}

func scanReservation(row rowScanner) (library.Reservation, error) {
	var (
		r          library.Reservation
		reservedAt string
	)
	err := row.Scan(&r.Seq, &r.ID, &r.BookID, &r.MemberID, &reservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Reservation{}, library.ErrNotFound
	}
	if err != nil {
		return library.Reservation{}, fmt.Errorf("failed to scan reservation: %w", err)
	}

	r.ReservedAt, err = time.Parse(time.RFC3339Nano, reservedAt)
	if err != nil {
		return library.Reservation{}, fmt.Errorf("failed to parse reservation timestamp: %w", err)
	}
	return r, nil
}

// =============================================================================
// STORE - locked wrappers around queries
// =============================================================================

func (s *Store) SaveBook(ctx context.Context, b library.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveBook(ctx, b)
}

func (s *Store) GetBook(ctx context.Context, id library.BookID) (library.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getBook(ctx, id)
}

func (s *Store) ListBooks(ctx context.Context) ([]library.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listBooks(ctx)
}

func (s *Store) AdjustCopies(ctx context.Context, id library.BookID, delta int) (library.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.adjustCopies(ctx, id, delta)
}

func (s *Store) AddStock(ctx context.Context, id library.BookID, n int) (library.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.addStock(ctx, id, n)
}

func (s *Store) DeleteBook(ctx context.Context, id library.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteBook(ctx, id)
}

func (s *Store) SaveAuthor(ctx context.Context, a library.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveAuthor(ctx, a)
}

func (s *Store) GetAuthor(ctx context.Context, id library.AuthorID) (library.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getAuthor(ctx, id)
}

func (s *Store) ListAuthors(ctx context.Context) ([]library.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listAuthors(ctx)
}

func (s *Store) DeleteAuthor(ctx context.Context, id library.AuthorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteAuthor(ctx, id)
}

func (s *Store) SaveGenre(ctx context.Context, g library.Genre) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveGenre(ctx, g)
}

func (s *Store) GetGenre(ctx context.Context, id library.GenreID) (library.Genre, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getGenre(ctx, id)
}

func (s *Store) ListGenres(ctx context.Context) ([]library.Genre, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listGenres(ctx)
}

func (s *Store) DeleteGenre(ctx context.Context, id library.GenreID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteGenre(ctx, id)
}

func (s *Store) SaveMember(ctx context.Context, m library.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveMember(ctx, m)
}

func (s *Store) GetMember(ctx context.Context, id library.MemberID) (library.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getMember(ctx, id)
}

func (s *Store) ListMembers(ctx context.Context) ([]library.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listMembers(ctx)
}

func (s *Store) DeleteMember(ctx context.Context, id library.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteMember(ctx, id)
}

func (s *Store) SaveLoan(ctx context.Context, l library.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveLoan(ctx, l)
}

func (s *Store) SetReturned(ctx context.Context, id library.LoanID, returnDate library.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.setReturned(ctx, id, returnDate)
}

func (s *Store) GetLoan(ctx context.Context, id library.LoanID) (library.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getLoan(ctx, id)
}

func (s *Store) LoansByMember(ctx context.Context, id library.MemberID, openOnly bool) ([]library.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.loansByMember(ctx, id, openOnly)
}

func (s *Store) OpenLoans(ctx context.Context) ([]library.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.openLoans(ctx)
}

func (s *Store) CountOpenLoans(ctx context.Context, id library.BookID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.countOpenLoans(ctx, id)
}

func (s *Store) ListLoans(ctx context.Context) ([]library.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listLoans(ctx)
}

func (s *Store) SaveReservation(ctx context.Context, r library.Reservation) (library.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveReservation(ctx, r)
}

func (s *Store) GetReservation(ctx context.Context, id library.ReservationID) (library.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getReservation(ctx, id)
}

func (s *Store) NextReservation(ctx context.Context, id library.BookID) (library.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.nextReservation(ctx, id)
}

func (s *Store) DeleteReservation(ctx context.Context, id library.ReservationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteReservation(ctx, id)
}

func (s *Store) PendingReservations(ctx context.Context, id library.BookID) ([]library.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.pendingReservations(ctx, id)
}

func (s *Store) PendingByMember(ctx context.Context, bookID library.BookID, memberID library.MemberID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.pendingByMember(ctx, bookID, memberID)
}

func (s *Store) ListReservations(ctx context.Context) ([]library.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listReservations(ctx)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. If fn returns an
// error the transaction is rolled back and the error returned as-is.
func (s *Store) WithTx(ctx context.Context, fn func(library.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{q: queries{db: tx}}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore exposes queries bound to a sql.Tx as a library.Store. No
// locking here: WithTx already holds the store's write lock.
type txStore struct {
	q queries
}

func (t *txStore) SaveBook(ctx context.Context, b library.Book) error { return t.q.saveBook(ctx, b) }
func (t *txStore) GetBook(ctx context.Context, id library.BookID) (library.Book, error) {
	return t.q.getBook(ctx, id)
}
func (t *txStore) ListBooks(ctx context.Context) ([]library.Book, error) {
	return t.q.listBooks(ctx)
}
func (t *txStore) AdjustCopies(ctx context.Context, id library.BookID, delta int) (library.Book, error) {
	return t.q.adjustCopies(ctx, id, delta)
}
func (t *txStore) AddStock(ctx context.Context, id library.BookID, n int) (library.Book, error) {
	return t.q.addStock(ctx, id, n)
}
func (t *txStore) DeleteBook(ctx context.Context, id library.BookID) error {
	return t.q.deleteBook(ctx, id)
}

func (t *txStore) SaveAuthor(ctx context.Context, a library.Author) error {
	return t.q.saveAuthor(ctx, a)
}
func (t *txStore) GetAuthor(ctx context.Context, id library.AuthorID) (library.Author, error) {
	return t.q.getAuthor(ctx, id)
}
func (t *txStore) ListAuthors(ctx context.Context) ([]library.Author, error) {
	return t.q.listAuthors(ctx)
}
func (t *txStore) DeleteAuthor(ctx context.Context, id library.AuthorID) error {
	return t.q.deleteAuthor(ctx, id)
}

func (t *txStore) SaveGenre(ctx context.Context, g library.Genre) error {
	return t.q.saveGenre(ctx, g)
}
func (t *txStore) GetGenre(ctx context.Context, id library.GenreID) (library.Genre, error) {
	return t.q.getGenre(ctx, id)
}
func (t *txStore) ListGenres(ctx context.Context) ([]library.Genre, error) {
	return t.q.listGenres(ctx)
}
func (t *txStore) DeleteGenre(ctx context.Context, id library.GenreID) error {
	return t.q.deleteGenre(ctx, id)
}

func (t *txStore) SaveMember(ctx context.Context, m library.Member) error {
	return t.q.saveMember(ctx, m)
}
func (t *txStore) GetMember(ctx context.Context, id library.MemberID) (library.Member, error) {
	return t.q.getMember(ctx, id)
}
func (t *txStore) ListMembers(ctx context.Context) ([]library.Member, error) {
	return t.q.listMembers(ctx)
}
func (t *txStore) DeleteMember(ctx context.Context, id library.MemberID) error {
	return t.q.deleteMember(ctx, id)
}

func (t *txStore) SaveLoan(ctx context.Context, l library.Loan) error { return t.q.saveLoan(ctx, l) }
func (t *txStore) SetReturned(ctx context.Context, id library.LoanID, returnDate library.Date) error {
	return t.q.setReturned(ctx, id, returnDate)
}
func (t *txStore) GetLoan(ctx context.Context, id library.LoanID) (library.Loan, error) {
	return t.q.getLoan(ctx, id)
}
func (t *txStore) LoansByMember(ctx context.Context, id library.MemberID, openOnly bool) ([]library.Loan, error) {
	return t.q.loansByMember(ctx, id, openOnly)
}
func (t *txStore) OpenLoans(ctx context.Context) ([]library.Loan, error) {
	return t.q.openLoans(ctx)
}
func (t *txStore) CountOpenLoans(ctx context.Context, id library.BookID) (int, error) {
	return t.q.countOpenLoans(ctx, id)
}
func (t *txStore) ListLoans(ctx context.Context) ([]library.Loan, error) {
	return t.q.listLoans(ctx)
}

func (t *txStore) SaveReservation(ctx context.Context, r library.Reservation) (library.Reservation, error) {
	return t.q.saveReservation(ctx, r)
}
func (t *txStore) GetReservation(ctx context.Context, id library.ReservationID) (library.Reservation, error) {
	return t.q.getReservation(ctx, id)
}
func (t *txStore) NextReservation(ctx context.Context, id library.BookID) (library.Reservation, error) {
	return t.q.nextReservation(ctx, id)
}
func (t *txStore) DeleteReservation(ctx context.Context, id library.ReservationID) error {
	return t.q.deleteReservation(ctx, id)
}
func (t *txStore) PendingReservations(ctx context.Context, id library.BookID) ([]library.Reservation, error) {
	return t.q.pendingReservations(ctx, id)
}
func (t *txStore) PendingByMember(ctx context.Context, bookID library.BookID, memberID library.MemberID) (bool, error) {
	return t.q.pendingByMember(ctx, bookID, memberID)
}
func (t *txStore) ListReservations(ctx context.Context) ([]library.Reservation, error) {
	return t.q.listReservations(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func nullAuthorID(id *library.AuthorID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func nullGenreID(id *library.GenreID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

// isUniqueConstraint reports whether err is a SQLite unique-constraint
// failure mentioning the given index or column hint.
func isUniqueConstraint(err error, hint string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, hint)
}
