/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/circulation-engine/library"
)

// =============================================================================
// CATALOG TYPES
// =============================================================================

// BookDTO represents a book in API responses.
type BookDTO struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	ISBN            string  `json:"isbn"`
	PublicationYear int     `json:"publication_year,omitempty"`
	AuthorID        *string `json:"author_id,omitempty"`
	GenreID         *string `json:"genre_id,omitempty"`
	TotalCopies     int     `json:"total_copies"`
	AvailableCopies int     `json:"available_copies"`
	CreatedAt       string  `json:"created_at"`
}

// CreateBookRequest is the body for POST /api/books.
type CreateBookRequest struct {
	Title           string  `json:"title"`
	ISBN            string  `json:"isbn"`
	PublicationYear int     `json:"publication_year,omitempty"`
	AuthorID        *string `json:"author_id,omitempty"`
	GenreID         *string `json:"genre_id,omitempty"`
	TotalCopies     int     `json:"total_copies"`
}

// AddStockRequest is the body for POST /api/books/{id}/stock.
type AddStockRequest struct {
	Copies int `json:"copies"`
}

// AuthorDTO represents an author in API responses.
type AuthorDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CreateAuthorRequest is the body for POST /api/authors.
type CreateAuthorRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// GenreDTO represents a genre in API responses.
type GenreDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateGenreRequest is the body for POST /api/genres.
type CreateGenreRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// MEMBER TYPES
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	MembershipDate string `json:"membership_date"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

// EnrollMemberRequest is the body for POST /api/members.
type EnrollMemberRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	MembershipDate string `json:"membership_date,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

// =============================================================================
// LIFECYCLE TYPES
// =============================================================================

// LoanDTO represents a loan in API responses.
type LoanDTO struct {
	ID         string  `json:"id"`
	BookID     string  `json:"book_id"`
	MemberID   string  `json:"member_id"`
	LoanDate   string  `json:"loan_date"`
	DueDate    string  `json:"due_date"`
	ReturnDate *string `json:"return_date,omitempty"`
	Fine       string  `json:"fine,omitempty"`
}

// CheckoutRequest is the body for POST /api/loans.
type CheckoutRequest struct {
	BookID     string `json:"book_id"`
	MemberID   string `json:"member_id"`
	LoanDate   string `json:"loan_date,omitempty"`
	PeriodDays int    `json:"period_days,omitempty"`
}

// ReturnRequest is the body for POST /api/loans/{id}/return.
type ReturnRequest struct {
	ReturnDate string `json:"return_date,omitempty"`
}

// ReturnResponseDTO reports a return plus any auto-fulfillment outcome.
type ReturnResponseDTO struct {
	Loan      LoanDTO  `json:"loan"`
	Fulfilled *LoanDTO `json:"fulfilled,omitempty"`
	Warning   string   `json:"warning,omitempty"`
}

// ReservationDTO represents a queued reservation in API responses.
type ReservationDTO struct {
	ID         string `json:"id"`
	BookID     string `json:"book_id"`
	MemberID   string `json:"member_id"`
	ReservedAt string `json:"reserved_at"`
	Position   int    `json:"position,omitempty"`
}

// CreateReservationRequest is the body for POST /api/reservations.
type CreateReservationRequest struct {
	BookID   string `json:"book_id"`
	MemberID string `json:"member_id"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toBookDTO(b library.Book) BookDTO {
	dto := BookDTO{
		ID:              string(b.ID),
		Title:           b.Title,
		ISBN:            b.ISBN,
		PublicationYear: b.PublicationYear,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CreatedAt:       b.CreatedAt.Format(time.RFC3339),
	}
	if b.AuthorID != nil {
		s := string(*b.AuthorID)
		dto.AuthorID = &s
	}
	if b.GenreID != nil {
		s := string(*b.GenreID)
		dto.GenreID = &s
	}
	return dto
}

func toMemberDTO(m library.Member) MemberDTO {
	return MemberDTO{
		ID:             string(m.ID),
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		MembershipDate: m.MembershipDate.String(),
		Email:          m.Email,
		Phone:          m.Phone,
	}
}

func toLoanDTO(l library.Loan) LoanDTO {
	dto := LoanDTO{
		ID:       string(l.ID),
		BookID:   string(l.BookID),
		MemberID: string(l.MemberID),
		LoanDate: l.LoanDate.String(),
		DueDate:  l.DueDate.String(),
	}
	if l.ReturnDate != nil {
		s := l.ReturnDate.String()
		dto.ReturnDate = &s
	}
	return dto
}

func toReservationDTO(r library.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:         string(r.ID),
		BookID:     string(r.BookID),
		MemberID:   string(r.MemberID),
		ReservedAt: r.ReservedAt.UTC().Format(time.RFC3339),
	}
}
