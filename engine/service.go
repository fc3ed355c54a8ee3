/*
service.go - The engine facade consumers call

PURPOSE:
  Wires the pure derivation functions to a ledger.Store. Reads pull one
  immutable fact snapshot and derive from it; writes build exactly one
  atomic WriteBatch per operation, so a multi-entity correction can
  never half-apply. The HTTP layer and the document generator talk only
  to this type and receive plain structured data.

WRITE DISCIPLINE:
  Every operation carries a Meta (author, optional note, optional
  idempotency key). Corrections additionally carry a reason from the
  closed enum. Failed corrections are never retried here; resubmission
  is a human decision.
*/
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/warp/murabaha-engine/ledger"
	"github.com/warp/murabaha-engine/schedule"
)

const defaultHistoryPageSize = 20

var daysPerYear = decimal.NewFromInt(365)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store    ledger.Store
	order    Order
	pageSize int
}

type Option func(*Service)

// WithOrder overrides the intra-installment consumption policy.
func WithOrder(o Order) Option {
	return func(s *Service) { s.order = o }
}

// WithHistoryPageSize overrides the fixed history page size.
func WithHistoryPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewService(store ledger.Store, opts ...Option) *Service {
	s := &Service{store: store, order: ProfitFirst, pageSize: defaultHistoryPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Meta is the audit metadata for one write.
type Meta struct {
	Author         string
	Note           string
	IdempotencyKey string
}

// =============================================================================
// CONTRACT REGISTRY
// =============================================================================

func (s *Service) CreateContract(ctx context.Context, c ledger.Contract) (ledger.Contract, error) {
	if c.ID == "" {
		c.ID = ledger.ContractID(uuid.NewString())
	}
	if c.Number == "" {
		return ledger.Contract{}, &ledger.ValidationError{
			Kind: ledger.ValidationMissingField, Field: "number",
			Message: "contract number is required",
		}
	}
	if err := s.store.PutContract(ctx, c); err != nil {
		return ledger.Contract{}, eris.Wrap(err, "create contract")
	}
	return c, nil
}

func (s *Service) Contracts(ctx context.Context) ([]ledger.Contract, error) {
	return s.store.Contracts(ctx)
}

// =============================================================================
// RECORDING OPERATIONS - One atomic batch each
// =============================================================================

func (s *Service) RecordFee(ctx context.Context, id ledger.ContractID, date ledger.Date, fee ledger.Fee, meta Meta) (ledger.FactID, error) {
	return s.recordOne(ctx, id, date, fee, meta)
}

func (s *Service) RecordPayment(ctx context.Context, id ledger.ContractID, date ledger.Date, p ledger.Payment, meta Meta) (ledger.FactID, error) {
	return s.recordOne(ctx, id, date, p, meta)
}

func (s *Service) RecordDisbursement(ctx context.Context, id ledger.ContractID, date ledger.Date, d ledger.Disbursement, meta Meta) (ledger.FactID, error) {
	return s.recordOne(ctx, id, date, d, meta)
}

func (s *Service) RecordDeposit(ctx context.Context, id ledger.ContractID, date ledger.Date, d ledger.Deposit, meta Meta) (ledger.FactID, error) {
	return s.recordOne(ctx, id, date, d, meta)
}

func (s *Service) RecordPrincipalAllocation(ctx context.Context, id ledger.ContractID, date ledger.Date, a ledger.PrincipalAllocation, meta Meta) (ledger.FactID, error) {
	return s.recordOne(ctx, id, date, a, meta)
}

func (s *Service) RecordWriteOff(ctx context.Context, id ledger.ContractID, date ledger.Date, w ledger.WriteOff, meta Meta) (ledger.FactID, error) {
	return s.recordOne(ctx, id, date, w, meta)
}

// RecordInstallments records a schedule in one batch; date is the
// origination business date shared by every installment fact.
func (s *Service) RecordInstallments(ctx context.Context, id ledger.ContractID, date ledger.Date, installments []ledger.Installment, meta Meta) ([]ledger.FactID, error) {
	if _, err := s.store.Contract(ctx, id); err != nil {
		return nil, err
	}
	batch := s.newBatch(meta)
	ids := make([]ledger.FactID, 0, len(installments))
	for _, inst := range installments {
		fid := ledger.FactID(uuid.NewString())
		ids = append(ids, fid)
		batch.Creates = append(batch.Creates, ledger.Fact{
			ID:           fid,
			ContractID:   id,
			BusinessDate: date,
			Body:         inst,
		})
	}
	if err := s.store.Commit(ctx, batch); err != nil {
		return nil, err
	}
	return ids, nil
}

// ApplySchedule generates the installment schedule for the given terms
// and records it as one batch.
func (s *Service) ApplySchedule(ctx context.Context, id ledger.ContractID, terms schedule.Terms, meta Meta) ([]ledger.FactID, error) {
	installments, err := schedule.Generate(terms)
	if err != nil {
		return nil, err
	}
	return s.RecordInstallments(ctx, id, terms.Start, installments, meta)
}

func (s *Service) recordOne(ctx context.Context, id ledger.ContractID, date ledger.Date, body ledger.Body, meta Meta) (ledger.FactID, error) {
	if _, err := s.store.Contract(ctx, id); err != nil {
		return "", err
	}
	fid := ledger.FactID(uuid.NewString())
	batch := s.newBatch(meta)
	batch.Creates = []ledger.Fact{{
		ID:           fid,
		ContractID:   id,
		BusinessDate: date,
		Body:         body,
	}}
	if err := s.store.Commit(ctx, batch); err != nil {
		return "", err
	}
	return fid, nil
}

func (s *Service) newBatch(meta Meta) ledger.WriteBatch {
	return ledger.WriteBatch{
		ID:             uuid.NewString(),
		Author:         meta.Author,
		Note:           meta.Note,
		IdempotencyKey: meta.IdempotencyKey,
	}
}

// =============================================================================
// CORRECTIONS
// =============================================================================

// Retract removes one fact from live state, permanently keeping it in
// history together with the correction record.
func (s *Service) Retract(ctx context.Context, factID ledger.FactID, reason ledger.CorrectionReason, meta Meta) error {
	batch := s.newBatch(meta)
	batch.Retracts = []ledger.FactID{factID}
	batch.Correction = &ledger.Correction{
		Reason:    reason,
		Corrected: string(factID),
		Note:      meta.Note,
	}
	return s.store.Commit(ctx, batch)
}

// RetractContract retracts a contract and its full fact set as a single
// atomic act. Matching zero facts surfaces ErrNothingToRetract.
func (s *Service) RetractContract(ctx context.Context, id ledger.ContractID, reason ledger.CorrectionReason, meta Meta) error {
	if _, err := s.store.Contract(ctx, id); err != nil {
		return err
	}
	batch := s.newBatch(meta)
	batch.RetractContract = true
	batch.Contract = id
	batch.Correction = &ledger.Correction{
		Reason:    reason,
		Corrected: string(id),
		Note:      meta.Note,
	}
	return s.store.Commit(ctx, batch)
}

// =============================================================================
// RATE ADJUSTMENT
// =============================================================================

// AdjustProfitRate re-prices ProfitDue for the installments with seq in
// [fromSeq, toSeq] that are not yet fully allocated, using a flat annual
// rate over each installment's own period:
//
//	profit = opening_principal * rate/100 * period_days/365
//
// Fully allocated installments are skipped; their applied amounts never
// change retroactively. A range that adjusts nothing is an error.
func (s *Service) AdjustProfitRate(ctx context.Context, id ledger.ContractID, fromSeq, toSeq int, annualRatePct decimal.Decimal, meta Meta) error {
	if fromSeq < 1 || toSeq < fromSeq {
		return &ledger.ValidationError{
			Kind: ledger.ValidationUnmatchedRange, Field: "seq",
			Message: "adjustment range is empty",
		}
	}
	if annualRatePct.IsNegative() {
		return &ledger.ValidationError{
			Kind: ledger.ValidationNegativeAmount, Field: "annual_rate",
			Message: "rate cannot be negative",
		}
	}

	state, err := s.State(ctx, id, ledger.Today())
	if err != nil {
		return err
	}

	batch := s.newBatch(meta)
	for i, inst := range state.Installments {
		if inst.Seq < fromSeq || inst.Seq > toSeq {
			continue
		}
		if inst.Status == StatusPaid {
			// Already settled; an adjustment never reaches back.
			continue
		}
		days := periodStart(state, i).DaysUntil(inst.DueDate)
		if days <= 0 {
			continue
		}
		newProfit := inst.OpeningPrincipal.
			Mul(annualRatePct).Div(decimal.NewFromInt(100)).
			Mul(decimal.NewFromInt(int64(days))).Div(daysPerYear).
			Round(2)
		batch.Adjustments = append(batch.Adjustments, ledger.ProfitAdjustment{
			FactID:       inst.FactID,
			NewProfitDue: newProfit,
		})
	}
	if len(batch.Adjustments) == 0 {
		return &ledger.ValidationError{
			Kind: ledger.ValidationUnmatchedRange, Field: "seq",
			Message: "no adjustable installments in range",
		}
	}
	return s.store.Commit(ctx, batch)
}

// =============================================================================
// READ PATHS
// =============================================================================

// State derives the contract's snapshot as of a date. Past dates give
// the historical view: funds dated after asOf do not participate and
// obligations due after asOf are not overdue.
func (s *Service) State(ctx context.Context, id ledger.ContractID, asOf ledger.Date) (ContractState, error) {
	contract, facts, err := s.snapshot(ctx, id)
	if err != nil {
		return ContractState{}, err
	}
	return DeriveState(contract, facts, asOf, s.order), nil
}

// Preview diffs the effect of a hypothetical payment without writing.
func (s *Service) Preview(ctx context.Context, id ledger.ContractID, asOf ledger.Date, amount decimal.Decimal) (Preview, error) {
	contract, facts, err := s.snapshot(ctx, id)
	if err != nil {
		return Preview{}, err
	}
	return PreviewPayment(contract, facts, asOf, amount, s.order)
}

// Settlement quotes the early payoff as of the input date. Query-only.
func (s *Service) Settlement(ctx context.Context, id ledger.ContractID, in SettlementInput) (SettlementResult, error) {
	state, err := s.State(ctx, id, in.Date)
	if err != nil {
		return SettlementResult{}, err
	}
	return Settle(state, in), nil
}

// History returns the paginated audit timeline, retracted facts included.
func (s *Service) History(ctx context.Context, id ledger.ContractID, filter HistoryFilter) (HistoryPage, error) {
	changes, err := s.store.History(ctx, id)
	if err != nil {
		return HistoryPage{}, err
	}
	if len(changes) == 0 {
		// Distinguish "no facts yet" from "no such contract".
		if _, err := s.store.Contract(ctx, id); err != nil {
			return HistoryPage{}, err
		}
	}
	contracts, err := s.store.Contracts(ctx)
	if err != nil {
		return HistoryPage{}, eris.Wrap(err, "history: label cache")
	}
	labels := make(map[ledger.ContractID]string, len(contracts))
	for _, c := range contracts {
		labels[c.ID] = c.Label()
	}
	if filter.PageSize < 1 {
		filter.PageSize = s.pageSize
	}
	return FormatHistory(id, changes, labels, filter), nil
}

func (s *Service) snapshot(ctx context.Context, id ledger.ContractID) (ledger.Contract, []ledger.Fact, error) {
	contract, err := s.store.Contract(ctx, id)
	if err != nil {
		return ledger.Contract{}, nil, err
	}
	facts, err := s.store.Facts(ctx, id)
	if err != nil {
		return ledger.Contract{}, nil, eris.Wrap(err, "load facts")
	}
	return contract, facts, nil
}
