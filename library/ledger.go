/*
ledger.go - Loan ledger component

PURPOSE:
  Owns Loan records and the checkout/return transitions. A loan is
  created open, mutated exactly once when returned, and immutable after
  that. Due dates are computed here: dueDate = loanDate + loan period.

CRITICAL INVARIANTS:
  1. A member holds at most one open loan per book
  2. returnDate >= loanDate when set
  3. A returned loan is never modified again; a second return attempt
     fails with ErrAlreadyReturned and changes nothing

OVERDUE:
  Overdue determination is a pure query (Loan.IsOverdue): open and past
  due as of the given date. See fines.go for the monetary side.

SEE ALSO:
  - engine.go: Calls RecordCheckout/RecordReturn inside the atomic section
  - fines.go: Fine accrual over overdue loans
*/
package library

import (
	"context"
	"fmt"
)

// Ledger records checkouts and returns on top of a Store. It does not
// touch availability; the engine pairs every ledger write with the
// matching copy-count adjustment in the same transaction.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// RecordCheckout creates an open loan with dueDate = loanDate +
// periodDays. Fails with ErrAlreadyOnLoan if the member already holds an
// open loan for the book, or ErrInvalidDate if periodDays is not
// positive.
func (l *Ledger) RecordCheckout(ctx context.Context, bookID BookID, memberID MemberID, loanDate Date, periodDays int) (Loan, error) {
	if periodDays <= 0 {
		return Loan{}, fmt.Errorf("loan period must be positive, got %d: %w", periodDays, ErrInvalidDate)
	}

	loan := Loan{
		ID:       LoanID(NewID()),
		BookID:   bookID,
		MemberID: memberID,
		LoanDate: loanDate,
		DueDate:  loanDate.AddDays(periodDays),
	}
	if err := l.store.SaveLoan(ctx, loan); err != nil {
		return Loan{}, err
	}
	return loan, nil
}

// RecordReturn closes an open loan. Fails with ErrAlreadyReturned if the
// return date is already set (state unchanged), or ErrInvalidDate if
// returnDate precedes the loan date.
func (l *Ledger) RecordReturn(ctx context.Context, id LoanID, returnDate Date) (Loan, error) {
	loan, err := l.store.GetLoan(ctx, id)
	if err != nil {
		return Loan{}, err
	}
	if !loan.IsOpen() {
		return Loan{}, fmt.Errorf("loan %s: %w", id, ErrAlreadyReturned)
	}
	if returnDate.Before(loan.LoanDate) {
		return Loan{}, fmt.Errorf("return date %s before loan date %s: %w",
			returnDate, loan.LoanDate, ErrInvalidDate)
	}

	if err := l.store.SetReturned(ctx, id, returnDate); err != nil {
		return Loan{}, err
	}
	loan.ReturnDate = &returnDate
	return loan, nil
}

// GetLoan returns a loan by id.
func (l *Ledger) GetLoan(ctx context.Context, id LoanID) (Loan, error) {
	return l.store.GetLoan(ctx, id)
}

// OpenLoans returns a member's open loans.
func (l *Ledger) OpenLoans(ctx context.Context, memberID MemberID) ([]Loan, error) {
	return l.store.LoansByMember(ctx, memberID, true)
}

// History returns all of a member's loans, open and returned.
func (l *Ledger) History(ctx context.Context, memberID MemberID) ([]Loan, error) {
	return l.store.LoansByMember(ctx, memberID, false)
}

// OverdueLoans returns every open loan past its due date as of the
// given day.
func (l *Ledger) OverdueLoans(ctx context.Context, asOf Date) ([]Loan, error) {
	open, err := l.store.OpenLoans(ctx)
	if err != nil {
		return nil, err
	}
	var overdue []Loan
	for _, loan := range open {
		if loan.IsOverdue(asOf) {
			overdue = append(overdue, loan)
		}
	}
	return overdue, nil
}
