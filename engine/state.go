/*
state.go - Contract state derivation

PURPOSE:
  Composes the effective-funds fold, the waterfall allocator and the
  enrichment layer into one coherent snapshot as of a reference date.
  Nothing in the snapshot is stored anywhere: maturity is the last
  installment's due date, lifecycle status falls out of the fact set,
  and every total is re-derived on each call. Calling this twice on an
  unchanged fact set returns identical output.

LIFECYCLE STATUS:
  written-off   a live write-off marker dated on or before asOf
  pre-disbursement  no funding disbursement yet
  settled       funded, has obligations, nothing outstanding
  active        everything else
*/
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/warp/murabaha-engine/ledger"
)

// =============================================================================
// CONTRACT STATE
// =============================================================================

type ContractStatus string

const (
	StatusPreDisbursement ContractStatus = "pre_disbursement"
	StatusActive          ContractStatus = "active"
	StatusSettled         ContractStatus = "settled"
	StatusWrittenOff      ContractStatus = "written_off"
)

type Totals struct {
	FeesDue          decimal.Decimal
	FeesPaid         decimal.Decimal
	FeesOutstanding  decimal.Decimal
	PrincipalDue     decimal.Decimal
	PrincipalPaid    decimal.Decimal
	ProfitDue        decimal.Decimal
	ProfitPaid       decimal.Decimal
	TotalOutstanding decimal.Decimal
}

type ContractState struct {
	ContractID ledger.ContractID
	Number     string
	Customer   string
	AsOf       ledger.Date

	Fees         []EnrichedFee
	Installments []EnrichedInstallment

	Totals         Totals
	EffectiveFunds decimal.Decimal
	CreditBalance  decimal.Decimal

	// FundingDate is the business date of the earliest live funding
	// disbursement, zero if the contract is not yet funded.
	FundingDate ledger.Date
	// MaturityDate is the due date of the last installment, never stored.
	MaturityDate ledger.Date

	Status ContractStatus
}

// OutstandingPrincipal is the principal portion still owed across all
// installments. The settlement calculator's first term.
func (s ContractState) OutstandingPrincipal() decimal.Decimal {
	return s.Totals.PrincipalDue.Sub(s.Totals.PrincipalPaid)
}

// =============================================================================
// DERIVATION
// =============================================================================

// DeriveState computes the full snapshot for one contract as of a date.
// Pure: callers own the fact slice and may reuse it across calls.
func DeriveState(c ledger.Contract, facts []ledger.Fact, asOf ledger.Date, order Order) ContractState {
	fees, installments, funding := obligations(facts)

	funds := EffectiveFunds(facts, asOf)
	alloc := Allocate(fees, installments, funds, order)
	enrichedFees, enrichedInst := Enrich(fees, installments, alloc, asOf)

	state := ContractState{
		ContractID:     c.ID,
		Number:         c.Number,
		Customer:       c.Customer,
		AsOf:           asOf,
		Fees:           enrichedFees,
		Installments:   enrichedInst,
		EffectiveFunds: funds,
		CreditBalance:  alloc.CreditBalance,
		FundingDate:    funding,
	}

	for _, f := range enrichedFees {
		state.Totals.FeesDue = state.Totals.FeesDue.Add(f.Amount)
		state.Totals.FeesPaid = state.Totals.FeesPaid.Add(f.Paid)
		state.Totals.FeesOutstanding = state.Totals.FeesOutstanding.Add(f.Outstanding)
	}
	for _, i := range enrichedInst {
		state.Totals.PrincipalDue = state.Totals.PrincipalDue.Add(i.PrincipalDue)
		state.Totals.PrincipalPaid = state.Totals.PrincipalPaid.Add(i.PrincipalPaid)
		state.Totals.ProfitDue = state.Totals.ProfitDue.Add(i.ProfitDue)
		state.Totals.ProfitPaid = state.Totals.ProfitPaid.Add(i.ProfitPaid)
		if !i.DueDate.IsZero() && i.DueDate.After(state.MaturityDate) {
			state.MaturityDate = i.DueDate
		}
	}
	state.Totals.TotalOutstanding = state.Totals.FeesOutstanding.
		Add(state.Totals.PrincipalDue.Sub(state.Totals.PrincipalPaid)).
		Add(state.Totals.ProfitDue.Sub(state.Totals.ProfitPaid))

	state.Status = deriveStatus(facts, state, asOf)
	return state
}

func deriveStatus(facts []ledger.Fact, state ContractState, asOf ledger.Date) ContractStatus {
	for _, f := range facts {
		if f.Kind() == ledger.KindWriteOff && f.BusinessDate.BeforeOrEqual(asOf) {
			return StatusWrittenOff
		}
	}
	if state.FundingDate.IsZero() || state.FundingDate.After(asOf) {
		return StatusPreDisbursement
	}
	hasObligations := len(state.Fees) > 0 || len(state.Installments) > 0
	if hasObligations && state.Totals.TotalOutstanding.IsZero() {
		return StatusSettled
	}
	return StatusActive
}

// obligations splits the fact set into waterfall inputs and resolves
// relative fee due dates against the funding disbursement.
func obligations(facts []ledger.Fact) (fees []FeeObligation, installments []InstallmentObligation, funding ledger.Date) {
	for _, f := range facts {
		if d, ok := f.Body.(ledger.Disbursement); ok && d.Type == ledger.DisbursementFunding {
			if funding.IsZero() || f.BusinessDate.Before(funding) {
				funding = f.BusinessDate
			}
		}
	}

	for _, f := range facts {
		switch body := f.Body.(type) {
		case ledger.Fee:
			due := body.DueDate
			if due.IsZero() && body.DaysAfterFunding != nil && !funding.IsZero() {
				due = funding.AddDays(*body.DaysAfterFunding)
			}
			fees = append(fees, FeeObligation{
				FactID:  f.ID,
				Type:    body.Type,
				DueDate: due,
				Pos:     f.Seq,
				Amount:  body.Amount,
			})
		case ledger.Installment:
			installments = append(installments, InstallmentObligation{
				FactID:           f.ID,
				Seq:              body.Seq,
				DueDate:          body.DueDate,
				PrincipalDue:     body.PrincipalDue,
				ProfitDue:        body.ProfitDue,
				OpeningPrincipal: body.OpeningPrincipal,
			})
		}
	}
	return fees, installments, funding
}
