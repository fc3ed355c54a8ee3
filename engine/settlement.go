/*
settlement.go - Early-payoff quote

PURPOSE:
  Computes what closes the contract as of a target date:

    outstanding principal
    + accrued-but-unpaid profit up to the date (or the manual override)
    + penalty_days worth of profit accrual
    + fees still outstanding
    - existing credit balance

  Query-only: a quote is a pure function of a ContractState snapshot and
  records nothing. The full numeric breakdown is returned so the
  document generator can freeze it into a forensic snapshot.

ACCRUAL MODEL:
  Profit accrues linearly across each installment period. A period runs
  from the previous installment's due date (the funding date for the
  first, or one month back when the contract's funding is unknown) to
  the installment's own due date. Fully elapsed periods accrue their
  whole ProfitDue, the period containing the settlement date accrues
  pro-rata by days, future periods accrue nothing. The penalty uses the
  daily rate of the period containing the settlement date, falling back
  to the final period once past maturity.

MANUAL OVERRIDE:
  A negotiated settlement replaces the computed accrued-unpaid-profit
  term wholesale; every other term is unaffected.
*/
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/warp/murabaha-engine/ledger"
)

// =============================================================================
// INPUT / RESULT
// =============================================================================

type SettlementInput struct {
	Date        ledger.Date
	PenaltyDays int
	// ProfitOverride, when set, replaces the accrued-unpaid-profit term.
	ProfitOverride *decimal.Decimal
}

type SettlementResult struct {
	Date ledger.Date

	OutstandingPrincipal decimal.Decimal
	AccruedUnpaidProfit  decimal.Decimal
	Penalty              decimal.Decimal
	FeesOutstanding      decimal.Decimal
	CreditBalance        decimal.Decimal

	Overridden bool
	Total      decimal.Decimal
}

// =============================================================================
// SETTLE
// =============================================================================

// Settle computes the early-payoff quote for a derived contract state.
func Settle(state ContractState, in SettlementInput) SettlementResult {
	result := SettlementResult{
		Date:                 in.Date,
		OutstandingPrincipal: state.OutstandingPrincipal(),
		FeesOutstanding:      state.Totals.FeesOutstanding,
		CreditBalance:        state.CreditBalance,
	}

	if in.ProfitOverride != nil {
		result.AccruedUnpaidProfit = *in.ProfitOverride
		result.Overridden = true
	} else {
		result.AccruedUnpaidProfit = accruedUnpaidProfit(state, in.Date)
	}

	if in.PenaltyDays > 0 {
		rate := dailyProfitRate(state, in.Date)
		result.Penalty = rate.Mul(decimal.NewFromInt(int64(in.PenaltyDays))).Round(2)
	} else {
		result.Penalty = decimal.Zero
	}

	result.Total = result.OutstandingPrincipal.
		Add(result.AccruedUnpaidProfit).
		Add(result.Penalty).
		Add(result.FeesOutstanding).
		Sub(result.CreditBalance)
	return result
}

// =============================================================================
// ACCRUAL
// =============================================================================

func accruedUnpaidProfit(state ContractState, date ledger.Date) decimal.Decimal {
	total := decimal.Zero
	for i, inst := range state.Installments {
		start := periodStart(state, i)
		var accrued decimal.Decimal
		switch {
		case inst.DueDate.BeforeOrEqual(date):
			accrued = inst.ProfitDue
		case start.Before(date):
			days := start.DaysUntil(inst.DueDate)
			if days <= 0 {
				accrued = inst.ProfitDue
			} else {
				elapsed := start.DaysUntil(date)
				accrued = inst.ProfitDue.
					Mul(decimal.NewFromInt(int64(elapsed))).
					Div(decimal.NewFromInt(int64(days))).
					Round(2)
			}
		default:
			continue
		}
		unpaid := accrued.Sub(inst.ProfitPaid)
		if unpaid.IsPositive() {
			total = total.Add(unpaid)
		}
	}
	return total
}

// dailyProfitRate is the per-day accrual of the installment period
// containing date; past maturity it is the final period's rate.
func dailyProfitRate(state ContractState, date ledger.Date) decimal.Decimal {
	if len(state.Installments) == 0 {
		return decimal.Zero
	}
	idx := len(state.Installments) - 1
	for i, inst := range state.Installments {
		if date.BeforeOrEqual(inst.DueDate) {
			idx = i
			break
		}
	}
	inst := state.Installments[idx]
	days := periodStart(state, idx).DaysUntil(inst.DueDate)
	if days <= 0 {
		return decimal.Zero
	}
	return inst.ProfitDue.Div(decimal.NewFromInt(int64(days)))
}

// periodStart returns the accrual-period start of installment i within
// the state's seq-ordered installment list.
func periodStart(state ContractState, i int) ledger.Date {
	if i > 0 {
		return state.Installments[i-1].DueDate
	}
	if !state.FundingDate.IsZero() {
		return state.FundingDate
	}
	return state.Installments[0].DueDate.AddMonths(-1)
}
