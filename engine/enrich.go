/*
enrich.go - Display-ready obligation records

PURPOSE:
  Joins raw fee/installment obligations with the waterfall's allocation
  to produce what a statement shows per obligation: paid, outstanding,
  status, overdue. Evaluating with a past as-of date suppresses overdue
  flags for obligations not yet due then, which is what lets the same
  code answer "what did the account look like on date X".
*/
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/warp/murabaha-engine/ledger"
)

// =============================================================================
// STATUS
// =============================================================================

type ObligationStatus string

const (
	StatusUnpaid  ObligationStatus = "unpaid"
	StatusPartial ObligationStatus = "partial"
	StatusPaid    ObligationStatus = "paid"
)

func statusOf(paid, due decimal.Decimal) ObligationStatus {
	switch {
	case paid.GreaterThanOrEqual(due) && due.IsPositive():
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	case due.IsZero():
		return StatusPaid
	default:
		return StatusUnpaid
	}
}

// overdue requires a resolved due date: a relative fee on an unfunded
// contract has no date yet and can never be overdue.
func overdueAt(outstanding decimal.Decimal, due ledger.Date, asOf ledger.Date) bool {
	return outstanding.IsPositive() && !due.IsZero() && due.Before(asOf)
}

// =============================================================================
// ENRICHED RECORDS
// =============================================================================

type EnrichedFee struct {
	FactID      ledger.FactID
	Type        ledger.FeeType
	DueDate     ledger.Date
	Amount      decimal.Decimal
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
	Status      ObligationStatus
	Overdue     bool
}

type EnrichedInstallment struct {
	FactID           ledger.FactID
	Seq              int
	DueDate          ledger.Date
	PrincipalDue     decimal.Decimal
	ProfitDue        decimal.Decimal
	OpeningPrincipal decimal.Decimal

	ProfitPaid    decimal.Decimal
	PrincipalPaid decimal.Decimal
	Paid          decimal.Decimal
	Outstanding   decimal.Decimal
	Status        ObligationStatus
	Overdue       bool
}

// =============================================================================
// ENRICH
// =============================================================================

// Enrich combines obligations with an allocation as of a reference
// date. Output order matches the waterfall's consumption order.
func Enrich(fees []FeeObligation, installments []InstallmentObligation, alloc Allocation, asOf ledger.Date) ([]EnrichedFee, []EnrichedInstallment) {
	feeByID := make(map[ledger.FactID]FeeObligation, len(fees))
	for _, f := range fees {
		feeByID[f.FactID] = f
	}
	instByID := make(map[ledger.FactID]InstallmentObligation, len(installments))
	for _, i := range installments {
		instByID[i.FactID] = i
	}

	outFees := make([]EnrichedFee, 0, len(alloc.Fees))
	for _, fa := range alloc.Fees {
		fee := feeByID[fa.FactID]
		outstanding := fee.Amount.Sub(fa.Applied)
		if outstanding.IsNegative() {
			outstanding = decimal.Zero
		}
		outFees = append(outFees, EnrichedFee{
			FactID:      fee.FactID,
			Type:        fee.Type,
			DueDate:     fee.DueDate,
			Amount:      fee.Amount,
			Paid:        fa.Applied,
			Outstanding: outstanding,
			Status:      statusOf(fa.Applied, fee.Amount),
			Overdue:     overdueAt(outstanding, fee.DueDate, asOf),
		})
	}

	outInst := make([]EnrichedInstallment, 0, len(alloc.Installments))
	for _, ia := range alloc.Installments {
		inst := instByID[ia.FactID]
		due := inst.PrincipalDue.Add(inst.ProfitDue)
		paid := ia.Applied()
		outstanding := due.Sub(paid)
		if outstanding.IsNegative() {
			outstanding = decimal.Zero
		}
		outInst = append(outInst, EnrichedInstallment{
			FactID:           inst.FactID,
			Seq:              inst.Seq,
			DueDate:          inst.DueDate,
			PrincipalDue:     inst.PrincipalDue,
			ProfitDue:        inst.ProfitDue,
			OpeningPrincipal: inst.OpeningPrincipal,
			ProfitPaid:       ia.ProfitApplied,
			PrincipalPaid:    ia.PrincipalApplied,
			Paid:             paid,
			Outstanding:      outstanding,
			Status:           statusOf(paid, due),
			Overdue:          overdueAt(outstanding, inst.DueDate, asOf),
		})
	}

	return outFees, outInst
}
