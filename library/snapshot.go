/*
snapshot.go - Full entity-set export and import

PURPOSE:
  Serializes the complete library state (books, authors, genres,
  members, loans, reservations) and reloads it with identical field
  values and foreign-key relationships intact. Used for backup/restore
  and for moving state between store implementations.

CODEC:
  json-iterator with its fastest config; the snapshot is internal
  interchange, not a public wire format.
*/
package library

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var snapshotJSON = jsoniter.ConfigFastest

// Snapshot is the full entity set at a point in time.
type Snapshot struct {
	TakenAt      time.Time     `json:"taken_at"`
	Books        []Book        `json:"books"`
	Authors      []Author      `json:"authors"`
	Genres       []Genre       `json:"genres"`
	Members      []Member      `json:"members"`
	Loans        []Loan        `json:"loans"`
	Reservations []Reservation `json:"reservations"`
}

// TakeSnapshot reads the complete entity set from a store.
func TakeSnapshot(ctx context.Context, s Store) (*Snapshot, error) {
	snap := &Snapshot{TakenAt: time.Now().UTC()}
	var err error

	if snap.Books, err = s.ListBooks(ctx); err != nil {
		return nil, fmt.Errorf("snapshot books: %w", err)
	}
	if snap.Authors, err = s.ListAuthors(ctx); err != nil {
		return nil, fmt.Errorf("snapshot authors: %w", err)
	}
	if snap.Genres, err = s.ListGenres(ctx); err != nil {
		return nil, fmt.Errorf("snapshot genres: %w", err)
	}
	if snap.Members, err = s.ListMembers(ctx); err != nil {
		return nil, fmt.Errorf("snapshot members: %w", err)
	}
	if snap.Loans, err = s.ListLoans(ctx); err != nil {
		return nil, fmt.Errorf("snapshot loans: %w", err)
	}
	if snap.Reservations, err = s.ListReservations(ctx); err != nil {
		return nil, fmt.Errorf("snapshot reservations: %w", err)
	}
	return snap, nil
}

// Encode serializes the snapshot.
func (s *Snapshot) Encode() ([]byte, error) {
	return snapshotJSON.Marshal(s)
}

// DecodeSnapshot deserializes a snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := snapshotJSON.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Restore writes the snapshot into an empty store, atomically. Authors,
// genres, and members load before books and loans so foreign keys
// resolve; reservations keep their original sequence numbers so FIFO
// order survives the round trip.
func (s *Snapshot) Restore(ctx context.Context, store TxStore) error {
	return store.WithTx(ctx, func(tx Store) error {
		for _, a := range s.Authors {
			if err := tx.SaveAuthor(ctx, a); err != nil {
				return fmt.Errorf("restore author %s: %w", a.ID, err)
			}
		}
		for _, g := range s.Genres {
			if err := tx.SaveGenre(ctx, g); err != nil {
				return fmt.Errorf("restore genre %s: %w", g.ID, err)
			}
		}
		for _, m := range s.Members {
			if err := tx.SaveMember(ctx, m); err != nil {
				return fmt.Errorf("restore member %s: %w", m.ID, err)
			}
		}
		for _, b := range s.Books {
			if err := tx.SaveBook(ctx, b); err != nil {
				return fmt.Errorf("restore book %s: %w", b.ID, err)
			}
		}
		for _, l := range s.Loans {
			if err := tx.SaveLoan(ctx, l); err != nil {
				return fmt.Errorf("restore loan %s: %w", l.ID, err)
			}
		}
		for _, r := range s.Reservations {
			if _, err := tx.SaveReservation(ctx, r); err != nil {
				return fmt.Errorf("restore reservation %s: %w", r.ID, err)
			}
		}
		return nil
	})
}
