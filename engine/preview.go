/*
preview.go - Hypothetical-payment diff without a speculative write

PURPOSE:
  Shows what a payment would change before anyone commits it. Because
  the allocator is pure, previewing is just running it twice on the same
  fact snapshot, once with current effective funds and once with the
  hypothetical amount added, then diffing the enriched outputs. No
  speculative transaction against the store, no rollback, no concurrency
  hazard; a preview costs one snapshot read.
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/murabaha-engine/ledger"
)

// =============================================================================
// PREVIEW OUTPUT
// =============================================================================

// ObligationDelta is one changed obligation in a preview: what a
// hypothetical payment would apply to it. Only obligations whose paid
// amount changes are listed.
type ObligationDelta struct {
	Kind   ledger.FactKind
	FactID ledger.FactID
	Label  string // e.g. "processing fee", "installment 3"

	AmountDelta    decimal.Decimal // total newly applied
	ProfitDelta    decimal.Decimal // installments only
	PrincipalDelta decimal.Decimal // installments only

	PaidBefore  decimal.Decimal
	PaidAfter   decimal.Decimal
	StatusAfter ObligationStatus
}

type Preview struct {
	Amount  decimal.Decimal
	Changes []ObligationDelta

	CreditBefore decimal.Decimal
	CreditAfter  decimal.Decimal
}

// =============================================================================
// PREVIEW
// =============================================================================

// PreviewPayment diffs the contract's enriched state before and after a
// hypothetical payment of amount on asOf. Pure; commits nothing.
func PreviewPayment(c ledger.Contract, facts []ledger.Fact, asOf ledger.Date, amount decimal.Decimal, order Order) (Preview, error) {
	if !amount.IsPositive() {
		return Preview{}, &ledger.ValidationError{
			Kind:    ledger.ValidationNonPositiveAmount,
			Field:   "amount",
			Message: "preview amount must be positive, got " + amount.String(),
		}
	}

	fees, installments, _ := obligations(facts)
	funds := EffectiveFunds(facts, asOf)

	before := Allocate(fees, installments, funds, order)
	after := Allocate(fees, installments, funds.Add(amount), order)

	feesBefore, instBefore := Enrich(fees, installments, before, asOf)
	feesAfter, instAfter := Enrich(fees, installments, after, asOf)

	p := Preview{
		Amount:       amount,
		CreditBefore: before.CreditBalance,
		CreditAfter:  after.CreditBalance,
	}

	// Enrich preserves consumption order, so before/after line up by index.
	for i, fa := range feesAfter {
		fb := feesBefore[i]
		delta := fa.Paid.Sub(fb.Paid)
		if delta.IsZero() {
			continue
		}
		p.Changes = append(p.Changes, ObligationDelta{
			Kind:        ledger.KindFee,
			FactID:      fa.FactID,
			Label:       fmt.Sprintf("%s fee", fa.Type),
			AmountDelta: delta,
			PaidBefore:  fb.Paid,
			PaidAfter:   fa.Paid,
			StatusAfter: fa.Status,
		})
	}
	for i, ia := range instAfter {
		ib := instBefore[i]
		delta := ia.Paid.Sub(ib.Paid)
		if delta.IsZero() {
			continue
		}
		p.Changes = append(p.Changes, ObligationDelta{
			Kind:           ledger.KindInstallment,
			FactID:         ia.FactID,
			Label:          fmt.Sprintf("installment %d", ia.Seq),
			AmountDelta:    delta,
			ProfitDelta:    ia.ProfitPaid.Sub(ib.ProfitPaid),
			PrincipalDelta: ia.PrincipalPaid.Sub(ib.PrincipalPaid),
			PaidBefore:     ib.Paid,
			PaidAfter:      ia.Paid,
			StatusAfter:    ia.Status,
		})
	}

	return p, nil
}
