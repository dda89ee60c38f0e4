/*
catalog.go - Catalog store component

PURPOSE:
  Owns Book, Author, and Genre records and the copy-count invariant
  (0 <= AvailableCopies <= TotalCopies). All catalog writes other than
  the engine's availability adjustments go through this component.

OWNERSHIP:
  Book.AvailableCopies is the single source of truth for physical
  availability. The Catalog never exposes a direct setter; availability
  moves only via Store.AdjustCopies inside the engine's atomic section.

SEE ALSO:
  - engine.go: The only caller allowed to adjust availability
  - store.go: Constraint enforcement contract
*/
package library

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Catalog manages books, authors, and genres on top of a Store.
type Catalog struct {
	store Store
}

func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store}
}

// =============================================================================
// BOOKS
// =============================================================================

// AddBookInput carries the caller-supplied fields for a new book. The
// id is store-assigned; availability starts at full stock.
type AddBookInput struct {
	Title           string
	ISBN            string
	PublicationYear int
	AuthorID        *AuthorID
	GenreID         *GenreID
	TotalCopies     int
}

// AddBook creates a book with AvailableCopies = TotalCopies.
func (c *Catalog) AddBook(ctx context.Context, in AddBookInput) (Book, error) {
	if strings.TrimSpace(in.Title) == "" {
		return Book{}, fmt.Errorf("title is required: %w", ErrInvariantViolation)
	}
	if strings.TrimSpace(in.ISBN) == "" {
		return Book{}, fmt.Errorf("isbn is required: %w", ErrInvariantViolation)
	}
	if in.TotalCopies < 0 {
		return Book{}, fmt.Errorf("total copies must be >= 0: %w", ErrInvariantViolation)
	}

	// Weak references must still point at existing records at creation.
	if in.AuthorID != nil {
		if _, err := c.store.GetAuthor(ctx, *in.AuthorID); err != nil {
			return Book{}, fmt.Errorf("author %s: %w", *in.AuthorID, err)
		}
	}
	if in.GenreID != nil {
		if _, err := c.store.GetGenre(ctx, *in.GenreID); err != nil {
			return Book{}, fmt.Errorf("genre %s: %w", *in.GenreID, err)
		}
	}

	b := Book{
		ID:              BookID(NewID()),
		Title:           in.Title,
		ISBN:            in.ISBN,
		PublicationYear: in.PublicationYear,
		AuthorID:        in.AuthorID,
		GenreID:         in.GenreID,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		CreatedAt:       time.Now().UTC(),
	}
	if err := c.store.SaveBook(ctx, b); err != nil {
		return Book{}, err
	}
	return b, nil
}

// GetBook returns a book by id.
func (c *Catalog) GetBook(ctx context.Context, id BookID) (Book, error) {
	return c.store.GetBook(ctx, id)
}

// ListBooks returns the full catalog.
func (c *Catalog) ListBooks(ctx context.Context) ([]Book, error) {
	return c.store.ListBooks(ctx)
}

// AddStock raises total and available copies together (acquisitions).
// A negative n discards idle copies and fails with CopyBoundsError if
// more copies would be discarded than are currently available.
func (c *Catalog) AddStock(ctx context.Context, id BookID, n int) (Book, error) {
	return c.store.AddStock(ctx, id, n)
}

// RemoveBook deletes a book that has no open loans and no pending
// reservations.
func (c *Catalog) RemoveBook(ctx context.Context, id BookID) error {
	return c.store.DeleteBook(ctx, id)
}

// =============================================================================
// AUTHORS AND GENRES
// =============================================================================

func (c *Catalog) AddAuthor(ctx context.Context, firstName, lastName string) (Author, error) {
	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" {
		return Author{}, fmt.Errorf("author name is required: %w", ErrInvariantViolation)
	}
	a := Author{ID: AuthorID(NewID()), FirstName: firstName, LastName: lastName}
	if err := c.store.SaveAuthor(ctx, a); err != nil {
		return Author{}, err
	}
	return a, nil
}

func (c *Catalog) AddGenre(ctx context.Context, name string) (Genre, error) {
	if strings.TrimSpace(name) == "" {
		return Genre{}, fmt.Errorf("genre name is required: %w", ErrInvariantViolation)
	}
	g := Genre{ID: GenreID(NewID()), Name: name}
	if err := c.store.SaveGenre(ctx, g); err != nil {
		return Genre{}, err
	}
	return g, nil
}

// ListAuthors returns all authors.
func (c *Catalog) ListAuthors(ctx context.Context) ([]Author, error) {
	return c.store.ListAuthors(ctx)
}

// ListGenres returns all genres.
func (c *Catalog) ListGenres(ctx context.Context) ([]Genre, error) {
	return c.store.ListGenres(ctx)
}

// RemoveAuthor fails with InUseError while any book references the
// author; there is no cascade.
func (c *Catalog) RemoveAuthor(ctx context.Context, id AuthorID) error {
	return c.store.DeleteAuthor(ctx, id)
}

// RemoveGenre fails with InUseError while any book references the genre.
func (c *Catalog) RemoveGenre(ctx context.Context, id GenreID) error {
	return c.store.DeleteGenre(ctx, id)
}
