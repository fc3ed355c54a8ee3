/*
envelope.go - The audited write batch

PURPOSE:
  Every write to the fact store travels inside a WriteBatch: one atomic
  unit carrying the business payload (creates, retracts, profit
  adjustments) plus the audit metadata (author, note, correction reason).
  Audit metadata belongs to the act of writing, not to the entities
  written, so it lives on the envelope and never leaks into fact bodies.

ATOMICITY:
  A batch commits entirely or not at all. Retracting a contract's six
  child facts is one batch; a store that applied five of them has a bug,
  not a partial success.

CORRECTIONS:
  Any batch that retracts something must carry a Correction: the reason
  (a closed enum, not free text), a reference to what is being corrected,
  and the author already on the envelope. Exactly one Correction per
  retraction act.
*/
package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// CORRECTION - Why something was retracted
// =============================================================================

type CorrectionReason string

const (
	ReasonCorrection       CorrectionReason = "correction"
	ReasonDuplicateRemoval CorrectionReason = "duplicate_removal"
	ReasonErroneousEntry   CorrectionReason = "erroneous_entry"
)

func (r CorrectionReason) Valid() bool {
	switch r {
	case ReasonCorrection, ReasonDuplicateRemoval, ReasonErroneousEntry:
		return true
	}
	return false
}

// Correction is the audit record attached to a retraction act.
type Correction struct {
	Reason CorrectionReason
	// Corrected references the entity being corrected: a fact ID for a
	// single retraction, the contract ID for a bulk retraction.
	Corrected string
	Note      string // optional
}

// =============================================================================
// PROFIT ADJUSTMENT - The one permitted in-place update
// =============================================================================

// ProfitAdjustment rewrites an installment's ProfitDue. The service layer
// guarantees the target installment is not yet fully allocated before it
// builds one of these; the store just applies it.
type ProfitAdjustment struct {
	FactID       FactID
	NewProfitDue decimal.Decimal
}

// =============================================================================
// WRITE BATCH - One atomic unit of change
// =============================================================================

type WriteBatch struct {
	ID     string // assigned by the caller, uuid
	Author string
	Note   string // optional

	// IdempotencyKey guards against replays. A batch whose key was
	// already committed is rejected with ErrDuplicateIdempotencyKey.
	IdempotencyKey string

	Creates  []Fact
	Retracts []FactID

	// RetractContract retracts every live fact of Contract plus its
	// registry record in one act. Matching zero facts is an error, not
	// a no-op.
	RetractContract bool
	Contract        ContractID // scope for RetractContract

	Adjustments []ProfitAdjustment

	// Correction is required whenever Retracts is non-empty or
	// RetractContract is set.
	Correction *Correction
}

func (b WriteBatch) HasRetraction() bool {
	return len(b.Retracts) > 0 || b.RetractContract
}

func (b WriteBatch) Empty() bool {
	return len(b.Creates) == 0 && len(b.Retracts) == 0 &&
		len(b.Adjustments) == 0 && !b.RetractContract
}
