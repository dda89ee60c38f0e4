/*
fines.go - Overdue fine accrual

PURPOSE:
  Pure computation of late fees over loans. Uses decimal arithmetic so
  rates like 0.25/day never accumulate floating-point error. There is no
  payment workflow here; callers read the accrued amount and settle it
  through whatever billing collaborator they own.
*/
package library

import "github.com/shopspring/decimal"

// FinePolicy describes how overdue days convert to money.
type FinePolicy struct {
	// DailyRate is charged per day past due, after the grace period.
	DailyRate decimal.Decimal

	// GraceDays past the due date before fines start.
	GraceDays int
}

// DefaultFinePolicy charges a quarter per overdue day with no grace.
func DefaultFinePolicy() FinePolicy {
	return FinePolicy{DailyRate: decimal.RequireFromString("0.25")}
}

// Accrued returns the fine owed on a loan as of the given day. For a
// returned loan the fine is frozen at the return date. Never negative.
func (p FinePolicy) Accrued(loan Loan, asOf Date) decimal.Decimal {
	end := asOf
	if loan.ReturnDate != nil {
		end = *loan.ReturnDate
	}

	overdueDays := DaysBetween(loan.DueDate, end) - p.GraceDays
	if overdueDays <= 0 {
		return decimal.Zero
	}
	return p.DailyRate.Mul(decimal.NewFromInt(int64(overdueDays)))
}
