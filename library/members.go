/*
members.go - Member store component

PURPOSE:
  Owns Member identity and the uniqueness of contact fields. At most one
  member may hold a given email or phone; both fields are optional.

LIFECYCLE:
  Members are created on enrollment and never removed while they hold
  open loans. A member with only pending reservations may lapse; the
  engine then surfaces a FulfillmentFailed warning if a freed copy would
  have gone to them.

SEE ALSO:
  - engine.go: Fulfillment fallback when a member has lapsed
*/
package library

import (
	"context"
	"fmt"
	"strings"
)

// MemberDirectory manages member enrollment on top of a Store.
type MemberDirectory struct {
	store Store
}

func NewMemberDirectory(store Store) *MemberDirectory {
	return &MemberDirectory{store: store}
}

// EnrollInput carries caller-supplied fields for a new member.
type EnrollInput struct {
	FirstName      string
	LastName       string
	MembershipDate Date
	Email          string
	Phone          string
}

// Enroll creates a member. Fails with DuplicateContactError if the email
// or phone is already registered.
func (d *MemberDirectory) Enroll(ctx context.Context, in EnrollInput) (Member, error) {
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return Member{}, fmt.Errorf("member name is required: %w", ErrInvariantViolation)
	}
	date := in.MembershipDate
	if date.IsZero() {
		date = Today()
	}

	m := Member{
		ID:             MemberID(NewID()),
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		MembershipDate: date,
		Email:          in.Email,
		Phone:          in.Phone,
	}
	if err := d.store.SaveMember(ctx, m); err != nil {
		return Member{}, err
	}
	return m, nil
}

// GetMember returns a member by id. Fails with ErrNotFound.
func (d *MemberDirectory) GetMember(ctx context.Context, id MemberID) (Member, error) {
	return d.store.GetMember(ctx, id)
}

// ListMembers returns all members.
func (d *MemberDirectory) ListMembers(ctx context.Context) ([]Member, error) {
	return d.store.ListMembers(ctx)
}

// Remove deletes a member who holds no open loans. Pending reservations
// do not block removal; they become dead entries that the engine prunes
// with a FulfillmentFailed warning when their turn comes.
func (d *MemberDirectory) Remove(ctx context.Context, id MemberID) error {
	if _, err := d.store.GetMember(ctx, id); err != nil {
		return err
	}
	open, err := d.store.LoansByMember(ctx, id, true)
	if err != nil {
		return err
	}
	if len(open) > 0 {
		return &InUseError{Kind: "member", ID: string(id),
			Why: fmt.Sprintf("%d open loans", len(open))}
	}
	return d.store.DeleteMember(ctx, id)
}
