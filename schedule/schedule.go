/*
Package schedule generates Murabaha installment schedules.

PURPOSE:
  Given the financed principal, a flat annual profit rate, a term and a
  start date, produce the installment facts a contract is originated
  with: seq, due date, principal due, profit due, and the principal
  outstanding at each period start.

MURABAHA FLAT-RATE MODEL:
  Total profit is fixed at origination:

    total_profit = principal * rate/100 * term_months/12

  Principal and profit are spread evenly across the term; rounding
  remainders land on the final installment so the schedule sums exactly
  to principal and total profit. No compounding, no floats.
*/
package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/warp/murabaha-engine/ledger"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Terms describes a contract's financing terms.
type Terms struct {
	Principal        decimal.Decimal
	AnnualProfitRate decimal.Decimal // percent, e.g. 8.5
	TermMonths       int
	// Start is the funding date; the first installment falls due one
	// month later.
	Start ledger.Date
}

// TotalProfit is the fixed profit for the whole term.
func (t Terms) TotalProfit() decimal.Decimal {
	return t.Principal.
		Mul(t.AnnualProfitRate).Div(hundred).
		Mul(decimal.NewFromInt(int64(t.TermMonths))).Div(twelve).
		Round(2)
}

// Generate produces the installment schedule for the given terms.
func Generate(t Terms) ([]ledger.Installment, error) {
	if t.TermMonths < 1 {
		return nil, &ledger.ValidationError{
			Kind: ledger.ValidationMissingField, Field: "term_months",
			Message: "term must be at least one month",
		}
	}
	if !t.Principal.IsPositive() {
		return nil, &ledger.ValidationError{
			Kind: ledger.ValidationNonPositiveAmount, Field: "principal",
			Message: "principal must be positive, got " + t.Principal.String(),
		}
	}
	if t.AnnualProfitRate.IsNegative() {
		return nil, &ledger.ValidationError{
			Kind: ledger.ValidationNegativeAmount, Field: "annual_profit_rate",
			Message: "profit rate cannot be negative",
		}
	}
	if t.Start.IsZero() {
		return nil, &ledger.ValidationError{
			Kind: ledger.ValidationMalformedDate, Field: "start",
			Message: "start date is required",
		}
	}

	n := decimal.NewFromInt(int64(t.TermMonths))
	totalProfit := t.TotalProfit()
	principalPer := t.Principal.Div(n).Round(2)
	profitPer := totalProfit.Div(n).Round(2)

	installments := make([]ledger.Installment, 0, t.TermMonths)
	opening := t.Principal
	principalLeft := t.Principal
	profitLeft := totalProfit

	for seq := 1; seq <= t.TermMonths; seq++ {
		principal := principalPer
		profit := profitPer
		if seq == t.TermMonths {
			// Final installment absorbs the rounding remainders.
			principal = principalLeft
			profit = profitLeft
		}
		installments = append(installments, ledger.Installment{
			Seq:              seq,
			DueDate:          t.Start.AddMonths(seq),
			PrincipalDue:     principal,
			ProfitDue:        profit,
			OpeningPrincipal: opening,
		})
		opening = opening.Sub(principal)
		principalLeft = principalLeft.Sub(principal)
		profitLeft = profitLeft.Sub(profit)
	}

	return installments, nil
}
