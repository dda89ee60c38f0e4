/*
handlers.go - HTTP API handlers for the circulation engine

PURPOSE:
  Exposes the loan & reservation lifecycle engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  Catalog:
    GET    /api/books                    List all books
    POST   /api/books                    Register a book
    GET    /api/books/{id}               Get book details
    DELETE /api/books/{id}               Remove a book (guarded)
    POST   /api/books/{id}/stock         Add or retire copies
    GET    /api/books/{id}/reservations  Queue in fulfillment order
    GET    /api/authors, POST, DELETE    Author management
    GET    /api/genres, POST, DELETE     Genre management

  Members:
    GET    /api/members                  List all members
    POST   /api/members                  Enroll a member
    GET    /api/members/{id}             Get member details
    DELETE /api/members/{id}             End membership (guarded)
    GET    /api/members/{id}/loans       Loan history (?open=true)

  Lifecycle:
    POST   /api/loans                    Checkout
    GET    /api/loans/{id}               Loan with accrued fine
    POST   /api/loans/{id}/return        Return (+auto-fulfillment)
    GET    /api/loans/overdue            Overdue loans (?as_of=YYYY-MM-DD)
    POST   /api/reservations             Reserve
    DELETE /api/reservations/{id}        Cancel reservation

  Admin:
    GET    /api/admin/snapshot           Export full state
    POST   /api/admin/snapshot           Import full state

ERROR HANDLING:
  Domain errors map to HTTP status:
  - 400: Invalid input, invalid dates, copy available (reserve)
  - 404: Book, member, loan, or reservation not found
  - 409: Duplicates, already on loan, already returned, no copy,
         deletion guards
  - 503: Book lock contention (retryable)
  - 500: Everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/circulation-engine/library"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *library.Engine
	Catalog *library.Catalog
	Members *library.MemberDirectory
	Fines   library.FinePolicy
	Store   library.TxStore
}

// NewHandler creates a handler over the given store and engine.
func NewHandler(store library.TxStore, engine *library.Engine, fines library.FinePolicy) *Handler {
	return &Handler{
		Engine:  engine,
		Catalog: library.NewCatalog(store),
		Members: library.NewMemberDirectory(store),
		Fines:   fines,
		Store:   store,
	}
}

// =============================================================================
// BOOK HANDLERS
// =============================================================================

// ListBooks returns the full catalog.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.Catalog.ListBooks(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list books", err)
		return
	}

	dtos := make([]BookDTO, len(books))
	for i, b := range books {
		dtos[i] = toBookDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBook registers a new title.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	input := library.AddBookInput{
		Title:           req.Title,
		ISBN:            req.ISBN,
		PublicationYear: req.PublicationYear,
		TotalCopies:     req.TotalCopies,
	}
	if req.AuthorID != nil {
		id := library.AuthorID(*req.AuthorID)
		input.AuthorID = &id
	}
	if req.GenreID != nil {
		id := library.GenreID(*req.GenreID)
		input.GenreID = &id
	}

	book, err := h.Catalog.AddBook(r.Context(), input)
	if err != nil {
		writeDomainError(w, "Failed to create book", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookDTO(book))
}

// GetBook returns a single book.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := library.BookID(chi.URLParam(r, "id"))

	book, err := h.Engine.GetBook(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get book", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(book))
}

// DeleteBook removes a title; guarded against open loans and pending
// reservations.
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id := library.BookID(chi.URLParam(r, "id"))

	if err := h.Catalog.RemoveBook(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete book", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AddStock adjusts a book's copy count (negative retires copies).
func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	id := library.BookID(chi.URLParam(r, "id"))

	var req AddStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Copies == 0 {
		writeError(w, http.StatusBadRequest, "Copies must be non-zero", nil)
		return
	}

	book, err := h.Catalog.AddStock(r.Context(), id, req.Copies)
	if err != nil {
		writeDomainError(w, "Failed to adjust stock", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(book))
}

// ListBookReservations returns a book's queue in fulfillment order.
func (h *Handler) ListBookReservations(w http.ResponseWriter, r *http.Request) {
	id := library.BookID(chi.URLParam(r, "id"))

	reservations, err := h.Engine.ListPendingReservations(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list reservations", err)
		return
	}

	dtos := make([]ReservationDTO, len(reservations))
	for i, res := range reservations {
		dto := toReservationDTO(res)
		dto.Position = i + 1
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AUTHOR / GENRE HANDLERS
// =============================================================================

// ListAuthors returns all authors.
func (h *Handler) ListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.Catalog.ListAuthors(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list authors", err)
		return
	}

	dtos := make([]AuthorDTO, len(authors))
	for i, a := range authors {
		dtos[i] = AuthorDTO{ID: string(a.ID), FirstName: a.FirstName, LastName: a.LastName}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAuthor registers an author.
func (h *Handler) CreateAuthor(w http.ResponseWriter, r *http.Request) {
	var req CreateAuthorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	author, err := h.Catalog.AddAuthor(r.Context(), req.FirstName, req.LastName)
	if err != nil {
		writeDomainError(w, "Failed to create author", err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthorDTO{
		ID: string(author.ID), FirstName: author.FirstName, LastName: author.LastName,
	})
}

// DeleteAuthor removes an author; guarded against book references.
func (h *Handler) DeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id := library.AuthorID(chi.URLParam(r, "id"))

	if err := h.Catalog.RemoveAuthor(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete author", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListGenres returns all genres.
func (h *Handler) ListGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.Catalog.ListGenres(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list genres", err)
		return
	}

	dtos := make([]GenreDTO, len(genres))
	for i, g := range genres {
		dtos[i] = GenreDTO{ID: string(g.ID), Name: g.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGenre registers a genre; names are unique.
func (h *Handler) CreateGenre(w http.ResponseWriter, r *http.Request) {
	var req CreateGenreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	genre, err := h.Catalog.AddGenre(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, "Failed to create genre", err)
		return
	}
	writeJSON(w, http.StatusCreated, GenreDTO{ID: string(genre.ID), Name: genre.Name})
}

// DeleteGenre removes a genre; guarded against book references.
func (h *Handler) DeleteGenre(w http.ResponseWriter, r *http.Request) {
	id := library.GenreID(chi.URLParam(r, "id"))

	if err := h.Catalog.RemoveGenre(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete genre", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Members.ListMembers(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// EnrollMember creates a new member.
func (h *Handler) EnrollMember(w http.ResponseWriter, r *http.Request) {
	var req EnrollMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	input := library.EnrollInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	}
	if req.MembershipDate != "" {
		d, err := library.ParseDate(req.MembershipDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid membership_date (use YYYY-MM-DD)", err)
			return
		}
		input.MembershipDate = d
	}

	member, err := h.Members.Enroll(r.Context(), input)
	if err != nil {
		writeDomainError(w, "Failed to enroll member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(member))
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := library.MemberID(chi.URLParam(r, "id"))

	member, err := h.Engine.GetMember(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(member))
}

// DeleteMember ends a membership; guarded against open loans.
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id := library.MemberID(chi.URLParam(r, "id"))

	if err := h.Members.Remove(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete member", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListMemberLoans returns a member's loan history, or only open loans
// with ?open=true.
func (h *Handler) ListMemberLoans(w http.ResponseWriter, r *http.Request) {
	id := library.MemberID(chi.URLParam(r, "id"))
	openOnly := r.URL.Query().Get("open") == "true"

	if _, err := h.Engine.GetMember(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get member", err)
		return
	}

	var loans []library.Loan
	var err error
	if openOnly {
		loans, err = h.Engine.ListOpenLoans(r.Context(), id)
	} else {
		loans, err = library.NewLedger(h.Store).History(r.Context(), id)
	}
	if err != nil {
		writeDomainError(w, "Failed to list loans", err)
		return
	}

	asOf := library.Today()
	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = h.loanWithFine(l, asOf)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LIFECYCLE HANDLERS
// =============================================================================

// Checkout lends a copy to a member.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	loanDate := library.Today()
	if req.LoanDate != "" {
		d, err := library.ParseDate(req.LoanDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid loan_date (use YYYY-MM-DD)", err)
			return
		}
		loanDate = d
	}

	loan, err := h.Engine.Checkout(r.Context(),
		library.BookID(req.BookID), library.MemberID(req.MemberID), loanDate, req.PeriodDays)
	if err != nil {
		writeDomainError(w, "Failed to checkout", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(loan))
}

// GetLoan returns a loan with its accrued fine as of today.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := library.LoanID(chi.URLParam(r, "id"))

	loan, err := library.NewLedger(h.Store).GetLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, h.loanWithFine(loan, library.Today()))
}

// Return closes a loan and reports any auto-fulfillment.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	id := library.LoanID(chi.URLParam(r, "id"))

	var req ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	returnDate := library.Today()
	if req.ReturnDate != "" {
		d, err := library.ParseDate(req.ReturnDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid return_date (use YYYY-MM-DD)", err)
			return
		}
		returnDate = d
	}

	result, err := h.Engine.Return(r.Context(), id, returnDate)
	if err != nil {
		writeDomainError(w, "Failed to return", err)
		return
	}

	resp := ReturnResponseDTO{Loan: h.loanWithFine(result.Loan, returnDate)}
	if result.Fulfilled != nil {
		dto := toLoanDTO(*result.Fulfilled)
		resp.Fulfilled = &dto
	}
	if result.Warning != nil {
		resp.Warning = result.Warning.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListOverdueLoans returns open loans past due, default as of today.
func (h *Handler) ListOverdueLoans(w http.ResponseWriter, r *http.Request) {
	asOf := library.Today()
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := library.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
			return
		}
		asOf = d
	}

	loans, err := h.Engine.ListOverdueLoans(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, "Failed to list overdue loans", err)
		return
	}

	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = h.loanWithFine(l, asOf)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateReservation queues a member for an exhausted book.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reservation, err := h.Engine.Reserve(r.Context(),
		library.BookID(req.BookID), library.MemberID(req.MemberID), time.Time{})
	if err != nil {
		writeDomainError(w, "Failed to reserve", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(reservation))
}

// CancelReservation removes a pending reservation.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := library.ReservationID(chi.URLParam(r, "id"))

	if err := h.Engine.CancelReservation(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to cancel reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ExportSnapshot serializes the full entity set.
func (h *Handler) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := library.TakeSnapshot(r.Context(), h.Store)
	if err != nil {
		writeDomainError(w, "Failed to take snapshot", err)
		return
	}

	data, err := snap.Encode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode snapshot", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ImportSnapshot restores a previously exported snapshot into an empty
// store.
func (h *Handler) ImportSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	snap, err := library.DecodeSnapshot(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid snapshot payload", err)
		return
	}

	if err := snap.Restore(r.Context(), h.Store); err != nil {
		writeDomainError(w, "Failed to restore snapshot", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "restored",
		"books":        len(snap.Books),
		"members":      len(snap.Members),
		"loans":        len(snap.Loans),
		"reservations": len(snap.Reservations),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) loanWithFine(l library.Loan, asOf library.Date) LoanDTO {
	dto := toLoanDTO(l)
	if fine := h.Fines.Accrued(l, asOf); !fine.IsZero() {
		dto.Fine = fine.StringFixed(2)
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError translates the domain error taxonomy into HTTP
// status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case library.IsNotFound(err):
		return http.StatusNotFound
	case library.IsRetryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, library.ErrInvalidDate):
		return http.StatusBadRequest
	case library.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
