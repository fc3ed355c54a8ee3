/*
Package ledger defines the immutable fact model for Murabaha contract
servicing and the narrow store contract the engine consumes.

PURPOSE:
  Every business event that can affect a contract (fees, installments,
  payments, disbursements, deposits, principal allocations, write-off)
  is recorded as an immutable Fact. Current financial state is never
  stored; it is always derived by folding the live fact set (see the
  engine package). Corrections are whole-fact retractions paired with a
  Correction record, never edits and never compensating negatives.

KEY CONCEPTS IN THIS FILE (facts.go):
  - Fact: the envelope (id, contract, business date, recording order)
  - Body: a closed tagged union of the business payloads
  - FundsContribution: each payload's signed contribution to the single
    scalar the waterfall allocator consumes

DESIGN PRINCIPLES:
  1. Immutability: facts are never modified, only retracted. The single
     exception is Installment.ProfitDue, which a rate-adjustment batch
     may rewrite for installments that are not yet fully allocated.
  2. Precision: decimal.Decimal everywhere; no floats touch money.
  3. Closed union: the set of fact kinds is fixed at compile time, so a
     switch over Body implementations is exhaustiveness-checkable.
  4. Business date vs recording time: BusinessDate is when the event
     happened in the world; RecordedAt is when the system learned of it.
     All financial derivation keys off BusinessDate.

SEE ALSO:
  - envelope.go: the audited WriteBatch wrapping every store write
  - store.go: the query/transact contract
  - validate.go: per-kind validation rules
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type FactID string

// =============================================================================
// FACT KINDS - Closed set
// =============================================================================

type FactKind string

const (
	KindFee                 FactKind = "fee"
	KindInstallment         FactKind = "installment"
	KindPayment             FactKind = "payment"
	KindDisbursement        FactKind = "disbursement"
	KindDeposit             FactKind = "deposit"
	KindPrincipalAllocation FactKind = "principal_allocation"
	KindWriteOff            FactKind = "write_off"
)

// Kinds lists every fact kind, in no particular order.
// Used by history filters and the SQLite codec.
func Kinds() []FactKind {
	return []FactKind{
		KindFee, KindInstallment, KindPayment, KindDisbursement,
		KindDeposit, KindPrincipalAllocation, KindWriteOff,
	}
}

// =============================================================================
// FACT - Envelope around one business payload
// =============================================================================

type Fact struct {
	ID         FactID
	ContractID ContractID

	// BusinessDate is the real-world date of the event, not the date it
	// was recorded. Point-in-time evaluation keys off this field.
	BusinessDate Date

	// RecordedAt and Seq are assigned by the store on commit. Seq is a
	// store-wide monotonically increasing recording order and is the tie
	// breaker wherever business dates collide.
	RecordedAt time.Time
	Seq        int64

	Body Body
}

func (f Fact) Kind() FactKind { return f.Body.FactKind() }

// Body is the closed union of business payloads. Only the types in this
// file implement it.
type Body interface {
	FactKind() FactKind

	// FundsContribution is this payload's signed contribution to the
	// effective funds available to the waterfall. Obligations (fees,
	// installments) and pure markers contribute zero.
	FundsContribution() decimal.Decimal

	isFactBody()
}

// =============================================================================
// FEE - An upfront or recurring charge (an obligation)
// =============================================================================

type FeeType string

const (
	FeeProcessing    FeeType = "processing"
	FeeDocumentation FeeType = "documentation"
	FeeInsurance     FeeType = "insurance"
	FeeValuation     FeeType = "valuation"
	FeeOther         FeeType = "other"
)

// Fee is due either on a fixed date or a number of days after the funding
// disbursement. Exactly one of DueDate / DaysAfterFunding is set; the
// engine resolves the effective due date against the funding fact.
type Fee struct {
	Type             FeeType
	Amount           decimal.Decimal
	DueDate          Date
	DaysAfterFunding *int
}

func (Fee) FactKind() FactKind                 { return KindFee }
func (Fee) FundsContribution() decimal.Decimal { return decimal.Zero }
func (Fee) isFactBody()                        {}

// =============================================================================
// INSTALLMENT - One scheduled repayment period (an obligation)
// =============================================================================

type Installment struct {
	// Seq is 1..N, unique per contract, strictly increasing with DueDate.
	Seq     int
	DueDate Date

	PrincipalDue decimal.Decimal
	ProfitDue    decimal.Decimal

	// OpeningPrincipal is the principal outstanding at the start of this
	// installment's period. Carried on the fact so profit re-pricing never
	// needs to replay the whole schedule.
	OpeningPrincipal decimal.Decimal
}

func (Installment) FactKind() FactKind                 { return KindInstallment }
func (Installment) FundsContribution() decimal.Decimal { return decimal.Zero }
func (Installment) isFactBody()                        {}

func (i Installment) TotalDue() decimal.Decimal {
	return i.PrincipalDue.Add(i.ProfitDue)
}

// =============================================================================
// PAYMENT - Money received from the customer
// =============================================================================

type PaymentChannel string

const (
	ChannelBankTransfer PaymentChannel = "bank_transfer"
	ChannelCash         PaymentChannel = "cash"
	ChannelCheque       PaymentChannel = "cheque"
	ChannelInternal     PaymentChannel = "internal"
)

type Payment struct {
	Amount    decimal.Decimal
	Reference string
	Channel   PaymentChannel // optional
	// SourceContract is set when funds were moved from another contract.
	SourceContract ContractID // optional
}

func (Payment) FactKind() FactKind                   { return KindPayment }
func (p Payment) FundsContribution() decimal.Decimal { return p.Amount }
func (Payment) isFactBody()                          {}

// =============================================================================
// DISBURSEMENT - Money sent out
// =============================================================================

type DisbursementType string

const (
	DisbursementFunding      DisbursementType = "funding"
	DisbursementRefund       DisbursementType = "refund"
	DisbursementExcessReturn DisbursementType = "excess_return"
)

type Disbursement struct {
	Type      DisbursementType
	Amount    decimal.Decimal
	Reference string
}

func (Disbursement) FactKind() FactKind { return KindDisbursement }

// Only a refund claws funds back from the waterfall. Funding is the loan
// itself going out, and an excess return pays out credit balance that was
// never an obligation.
func (d Disbursement) FundsContribution() decimal.Decimal {
	if d.Type == DisbursementRefund {
		return d.Amount.Neg()
	}
	return decimal.Zero
}
func (Disbursement) isFactBody() {}

// =============================================================================
// DEPOSIT - Collateral movement
// =============================================================================

type DepositType string

const (
	DepositReceived DepositType = "received"
	DepositRefund   DepositType = "refund"
	DepositOffset   DepositType = "offset"
	DepositTransfer DepositType = "transfer"
)

type Deposit struct {
	Type   DepositType
	Amount decimal.Decimal
	Source string // optional
}

func (Deposit) FactKind() FactKind { return KindDeposit }

// Only an offset converts held collateral into funds for the waterfall.
func (d Deposit) FundsContribution() decimal.Decimal {
	if d.Type == DepositOffset {
		return d.Amount
	}
	return decimal.Zero
}
func (Deposit) isFactBody() {}

// =============================================================================
// PRINCIPAL ALLOCATION - Funds diverted from principal at origination
// =============================================================================

type PrincipalAllocationType string

const (
	AllocationFeeSettlement         PrincipalAllocationType = "fee_settlement"
	AllocationInstallmentPrepayment PrincipalAllocationType = "installment_prepayment"
	AllocationDeposit               PrincipalAllocationType = "deposit"
)

type PrincipalAllocation struct {
	Type   PrincipalAllocationType
	Amount decimal.Decimal
}

func (PrincipalAllocation) FactKind() FactKind { return KindPrincipalAllocation }

// Fee settlements and installment prepayments are funds competing in the
// waterfall like any payment. A deposit allocation parks funds as
// collateral instead and only re-enters via a deposit offset.
func (a PrincipalAllocation) FundsContribution() decimal.Decimal {
	switch a.Type {
	case AllocationFeeSettlement, AllocationInstallmentPrepayment:
		return a.Amount
	default:
		return decimal.Zero
	}
}
func (PrincipalAllocation) isFactBody() {}

// =============================================================================
// WRITE-OFF - Lifecycle marker
// =============================================================================

// WriteOff marks the contract as written off as of its business date.
// It carries no money; status derivation is its only consumer.
type WriteOff struct {
	Reason string
}

func (WriteOff) FactKind() FactKind                 { return KindWriteOff }
func (WriteOff) FundsContribution() decimal.Decimal { return decimal.Zero }
func (WriteOff) isFactBody()                        {}

// =============================================================================
// CONTRACT - Registry record (labels for history, nothing financial)
// =============================================================================

type Contract struct {
	ID       ContractID
	Number   string
	Customer string
}

// Label is the human-readable form used by history entries.
func (c Contract) Label() string {
	if c.Customer == "" {
		return c.Number
	}
	return c.Number + " / " + c.Customer
}
