/*
Package engine derives the financial state of a Murabaha contract from
its accumulated facts.

PURPOSE:
  Everything in this package is a pure function over an immutable fact
  snapshot pulled at call time: the waterfall allocator, the enrichment
  layer, the state deriver, the settlement calculator, the preview diff
  and the history formatter. Nothing here holds mutable state, blocks,
  or writes; the Service facade (service.go) is the only type that
  talks to the store.

KEY CONCEPTS IN THIS FILE (waterfall.go):
  - Obligations: fees and installments, the two ordered classes that
    compete for funds
  - Allocate: the fixed-priority waterfall that consumes a single funds
    scalar against them
  - Credit balance: whatever survives all obligations, never dropped

INVARIANT (conservation):
  sum(applied to fees) + sum(applied to installments) + credit balance
  == the funds passed in, to the last decimal digit. The allocator only
  ever moves money between those buckets.

DETERMINISM:
  Fees are consumed fully before any installment, ordered by due date
  with recording order as the stable tie breaker; installments follow in
  ascending seq. Within an installment the Order policy decides whether
  profit or principal is satisfied first (profit first by default).

SEE ALSO:
  - funds.go: the effective-funds fold that produces the scalar
  - enrich.go: turns an Allocation into display-ready records
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/murabaha-engine/ledger"
)

// =============================================================================
// ORDER - Intra-installment consumption policy
// =============================================================================

// Order controls which obligation inside an installment is satisfied
// first. The domain default is profit before principal; the policy is a
// knob rather than a constant because flipping it changes every
// settlement and preview figure.
type Order int

const (
	ProfitFirst Order = iota
	PrincipalFirst
)

// =============================================================================
// OBLIGATIONS - What the waterfall consumes against
// =============================================================================

// FeeObligation is a fee with its due date already resolved (relative
// fees are anchored to the funding disbursement by the state deriver).
// An unresolved due date (zero) sorts after every dated fee.
type FeeObligation struct {
	FactID  ledger.FactID
	Type    ledger.FeeType
	DueDate ledger.Date
	Pos     int64 // recording order, the stable tie breaker
	Amount  decimal.Decimal
}

type InstallmentObligation struct {
	FactID           ledger.FactID
	Seq              int
	DueDate          ledger.Date
	PrincipalDue     decimal.Decimal
	ProfitDue        decimal.Decimal
	OpeningPrincipal decimal.Decimal
}

// =============================================================================
// ALLOCATION - The waterfall's output
// =============================================================================

type FeeAllocation struct {
	FactID  ledger.FactID
	Applied decimal.Decimal
}

type InstallmentAllocation struct {
	FactID           ledger.FactID
	Seq              int
	ProfitApplied    decimal.Decimal
	PrincipalApplied decimal.Decimal
}

func (a InstallmentAllocation) Applied() decimal.Decimal {
	return a.ProfitApplied.Add(a.PrincipalApplied)
}

// Allocation holds per-obligation applied amounts, keyed back to facts,
// plus the credit balance left after every obligation is satisfied.
// Slices are ordered the way the waterfall consumed them.
type Allocation struct {
	Fees          []FeeAllocation
	Installments  []InstallmentAllocation
	CreditBalance decimal.Decimal
}

// AppliedTotal sums every applied amount. AppliedTotal + CreditBalance
// reproduces the funds the allocator was given (conservation).
func (a Allocation) AppliedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, f := range a.Fees {
		total = total.Add(f.Applied)
	}
	for _, i := range a.Installments {
		total = total.Add(i.Applied())
	}
	return total
}

// Fee returns the allocation for one fee fact (zero value if absent).
func (a Allocation) Fee(id ledger.FactID) FeeAllocation {
	for _, f := range a.Fees {
		if f.FactID == id {
			return f
		}
	}
	return FeeAllocation{FactID: id, Applied: decimal.Zero}
}

// Installment returns the allocation for one installment fact.
func (a Allocation) Installment(id ledger.FactID) InstallmentAllocation {
	for _, i := range a.Installments {
		if i.FactID == id {
			return i
		}
	}
	return InstallmentAllocation{FactID: id, ProfitApplied: decimal.Zero, PrincipalApplied: decimal.Zero}
}

// =============================================================================
// ALLOCATE - The waterfall
// =============================================================================

// Allocate runs the waterfall: fees first (due date order), then
// installments (seq order), each obligation taking at most its full due
// amount from the remaining funds. Pure; callers may run it twice on
// the same inputs with different funds to diff hypothetical states.
func Allocate(fees []FeeObligation, installments []InstallmentObligation, totalFunds decimal.Decimal, order Order) Allocation {
	sortedFees := make([]FeeObligation, len(fees))
	copy(sortedFees, fees)
	sort.SliceStable(sortedFees, func(i, j int) bool {
		a, b := sortedFees[i], sortedFees[j]
		if a.DueDate.IsZero() != b.DueDate.IsZero() {
			return !a.DueDate.IsZero()
		}
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.Pos < b.Pos
	})

	sortedInst := make([]InstallmentObligation, len(installments))
	copy(sortedInst, installments)
	sort.Slice(sortedInst, func(i, j int) bool { return sortedInst[i].Seq < sortedInst[j].Seq })

	remaining := totalFunds
	if remaining.IsNegative() {
		// Refunds exceeding receipts leave nothing to allocate; the
		// shortfall shows up as outstanding obligations, not debt here.
		remaining = decimal.Zero
	}

	take := func(due decimal.Decimal) decimal.Decimal {
		if due.IsNegative() {
			return decimal.Zero
		}
		applied := decimal.Min(remaining, due)
		remaining = remaining.Sub(applied)
		return applied
	}

	alloc := Allocation{
		Fees:         make([]FeeAllocation, 0, len(sortedFees)),
		Installments: make([]InstallmentAllocation, 0, len(sortedInst)),
	}

	for _, fee := range sortedFees {
		alloc.Fees = append(alloc.Fees, FeeAllocation{
			FactID:  fee.FactID,
			Applied: take(fee.Amount),
		})
	}

	for _, inst := range sortedInst {
		ia := InstallmentAllocation{FactID: inst.FactID, Seq: inst.Seq}
		switch order {
		case PrincipalFirst:
			ia.PrincipalApplied = take(inst.PrincipalDue)
			ia.ProfitApplied = take(inst.ProfitDue)
		default:
			ia.ProfitApplied = take(inst.ProfitDue)
			ia.PrincipalApplied = take(inst.PrincipalDue)
		}
		alloc.Installments = append(alloc.Installments, ia)
	}

	alloc.CreditBalance = remaining
	return alloc
}
