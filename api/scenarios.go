/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	circulation data for testing and demos. Each scenario creates books,
	members, loans, and reservations that demonstrate specific features.

AVAILABLE SCENARIOS:

	fresh-branch: Small catalog with enrolled members, nothing on loan
	busy-week:    Open and closed loans across several members
	waitlist:     An exhausted title with a reservation queue behind it
	overdue:      Loans past their due dates, accruing fines

HOW SCENARIOS WORK:
 1. Create authors and genres
 2. Register books via the catalog
 3. Enroll members
 4. Drive checkouts, returns, and reservations through the engine

	Identifiers (ISBNs, emails, genre names) are salted per load so a
	scenario can be loaded repeatedly into the same store without
	tripping uniqueness constraints.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "waitlist"}

ADDING NEW SCENARIOS:
 1. Add to the 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h, salt)
 3. Add case to LoadScenario

NOTE:

	Scenarios add data on top of whatever the store holds. Only use in
	development/demo environments.

SEE ALSO:
  - handlers.go: Handler context these loaders run against
  - server.go: Route registration
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/circulation-engine/library"
)

// =============================================================================
// SCENARIO CATALOG
// =============================================================================

// ScenarioInfo describes a loadable demo scenario.
type ScenarioInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioInfo{
	{
		ID:          "fresh-branch",
		Name:        "Fresh Branch",
		Description: "Small catalog with enrolled members and every copy on the shelf",
	},
	{
		ID:          "busy-week",
		Name:        "Busy Week",
		Description: "Open and closed loans across several members",
	},
	{
		ID:          "waitlist",
		Name:        "Waitlist",
		Description: "A one-copy title checked out with two members queued behind it",
	},
	{
		ID:          "overdue",
		Name:        "Overdue",
		Description: "Loans past their due dates, accruing fines",
	},
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenarioRequest is the body for POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenario populates the store with a named scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Salt makes repeated loads produce distinct ISBNs and emails.
	salt := library.NewID()[:8]

	var err error
	switch req.ScenarioID {
	case "fresh-branch":
		err = loadFreshBranchScenario(r.Context(), h, salt)
	case "busy-week":
		err = loadBusyWeekScenario(r.Context(), h, salt)
	case "waitlist":
		err = loadWaitlistScenario(r.Context(), h, salt)
	case "overdue":
		err = loadOverdueScenario(r.Context(), h, salt)
	default:
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type scenarioSeed struct {
	books   []library.Book
	members []library.Member
}

// seedShelf creates the small catalog and membership base shared by the
// loaders.
func seedShelf(ctx context.Context, h *Handler, salt string) (scenarioSeed, error) {
	var seed scenarioSeed

	herbert, err := h.Catalog.AddAuthor(ctx, "Frank", "Herbert")
	if err != nil {
		return seed, err
	}
	leguin, err := h.Catalog.AddAuthor(ctx, "Ursula", "Le Guin")
	if err != nil {
		return seed, err
	}
	scifi, err := h.Catalog.AddGenre(ctx, "Science Fiction "+salt)
	if err != nil {
		return seed, err
	}

	titles := []struct {
		title  string
		isbn   string
		author *library.AuthorID
		copies int
	}{
		{"Dune", "978-0441172719", &herbert.ID, 3},
		{"The Dispossessed", "978-0061054884", &leguin.ID, 2},
		{"The Left Hand of Darkness", "978-0441478125", &leguin.ID, 1},
	}
	for _, tt := range titles {
		book, err := h.Catalog.AddBook(ctx, library.AddBookInput{
			Title:       tt.title,
			ISBN:        fmt.Sprintf("%s-%s", tt.isbn, salt),
			AuthorID:    tt.author,
			GenreID:     &scifi.ID,
			TotalCopies: tt.copies,
		})
		if err != nil {
			return seed, err
		}
		seed.books = append(seed.books, book)
	}

	for _, name := range []string{"Alice", "Bob", "Carol", "Dave"} {
		member, err := h.Members.Enroll(ctx, library.EnrollInput{
			FirstName: name,
			LastName:  "Reader",
			Email:     fmt.Sprintf("%s.%s@example.com", name, salt),
		})
		if err != nil {
			return seed, err
		}
		seed.members = append(seed.members, member)
	}
	return seed, nil
}

func loadFreshBranchScenario(ctx context.Context, h *Handler, salt string) error {
	_, err := seedShelf(ctx, h, salt)
	return err
}

func loadBusyWeekScenario(ctx context.Context, h *Handler, salt string) error {
	seed, err := seedShelf(ctx, h, salt)
	if err != nil {
		return err
	}
	today := library.Today()

	// Alice already cycled a loan; Bob and Carol hold open ones.
	closed, err := h.Engine.Checkout(ctx, seed.books[0].ID, seed.members[0].ID, today.AddDays(-10), 0)
	if err != nil {
		return err
	}
	if _, err := h.Engine.Return(ctx, closed.ID, today.AddDays(-3)); err != nil {
		return err
	}

	if _, err := h.Engine.Checkout(ctx, seed.books[0].ID, seed.members[1].ID, today.AddDays(-2), 0); err != nil {
		return err
	}
	_, err = h.Engine.Checkout(ctx, seed.books[1].ID, seed.members[2].ID, today, 0)
	return err
}

func loadWaitlistScenario(ctx context.Context, h *Handler, salt string) error {
	seed, err := seedShelf(ctx, h, salt)
	if err != nil {
		return err
	}
	hot := seed.books[2] // single copy

	if _, err := h.Engine.Checkout(ctx, hot.ID, seed.members[0].ID, library.Today(), 0); err != nil {
		return err
	}
	if _, err := h.Engine.Reserve(ctx, hot.ID, seed.members[1].ID, time.Time{}); err != nil {
		return err
	}
	_, err = h.Engine.Reserve(ctx, hot.ID, seed.members[2].ID, time.Time{})
	return err
}

func loadOverdueScenario(ctx context.Context, h *Handler, salt string) error {
	seed, err := seedShelf(ctx, h, salt)
	if err != nil {
		return err
	}
	today := library.Today()

	// One loan a week late, one a month late.
	if _, err := h.Engine.Checkout(ctx, seed.books[0].ID, seed.members[0].ID, today.AddDays(-21), 14); err != nil {
		return err
	}
	_, err = h.Engine.Checkout(ctx, seed.books[1].ID, seed.members[1].ID, today.AddDays(-44), 14)
	return err
}
