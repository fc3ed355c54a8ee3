/*
dto.go - Wire types for the HTTP boundary

PURPOSE:
  Plain structured data in and out. Amounts travel as decimal strings
  ("112000.00"), dates as "2006-01-02". Nothing framework-specific leaks
  out of the engine, and nothing here is reused as an engine type.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/murabaha-engine/engine"
	"github.com/warp/murabaha-engine/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

// WriteMeta rides along on every mutating request.
type WriteMeta struct {
	Author         string `json:"author"`
	Note           string `json:"note,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (m WriteMeta) meta() engine.Meta {
	return engine.Meta{Author: m.Author, Note: m.Note, IdempotencyKey: m.IdempotencyKey}
}

type CreateContractRequest struct {
	Number   string `json:"number"`
	Customer string `json:"customer"`
}

type RecordFeeRequest struct {
	WriteMeta
	Type             string `json:"type"`
	Amount           string `json:"amount"`
	BusinessDate     string `json:"business_date"`
	DueDate          string `json:"due_date,omitempty"`
	DaysAfterFunding *int   `json:"days_after_funding,omitempty"`
}

type RecordPaymentRequest struct {
	WriteMeta
	Amount         string `json:"amount"`
	BusinessDate   string `json:"business_date"`
	Reference      string `json:"reference"`
	Channel        string `json:"channel,omitempty"`
	SourceContract string `json:"source_contract,omitempty"`
}

type RecordDisbursementRequest struct {
	WriteMeta
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	BusinessDate string `json:"business_date"`
	Reference    string `json:"reference,omitempty"`
}

type RecordDepositRequest struct {
	WriteMeta
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	BusinessDate string `json:"business_date"`
	Source       string `json:"source,omitempty"`
}

type RecordAllocationRequest struct {
	WriteMeta
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	BusinessDate string `json:"business_date"`
}

type WriteOffRequest struct {
	WriteMeta
	BusinessDate string `json:"business_date"`
	Reason       string `json:"reason,omitempty"`
}

type ApplyScheduleRequest struct {
	WriteMeta
	Principal        string `json:"principal"`
	AnnualProfitRate string `json:"annual_profit_rate"`
	TermMonths       int    `json:"term_months"`
	Start            string `json:"start"`
}

type AdjustProfitRequest struct {
	WriteMeta
	FromSeq    int    `json:"from_seq"`
	ToSeq      int    `json:"to_seq"`
	AnnualRate string `json:"annual_rate"`
}

type RetractRequest struct {
	WriteMeta
	Reason string `json:"reason"`
}

type PreviewRequest struct {
	Amount string `json:"amount"`
	AsOf   string `json:"as_of,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ContractDTO struct {
	ID       string `json:"id"`
	Number   string `json:"number"`
	Customer string `json:"customer"`
}

type FeeDTO struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DueDate     string `json:"due_date,omitempty"`
	Amount      string `json:"amount"`
	Paid        string `json:"paid"`
	Outstanding string `json:"outstanding"`
	Status      string `json:"status"`
	Overdue     bool   `json:"overdue"`
}

type InstallmentDTO struct {
	ID               string `json:"id"`
	Seq              int    `json:"seq"`
	DueDate          string `json:"due_date"`
	PrincipalDue     string `json:"principal_due"`
	ProfitDue        string `json:"profit_due"`
	OpeningPrincipal string `json:"opening_principal"`
	ProfitPaid       string `json:"profit_paid"`
	PrincipalPaid    string `json:"principal_paid"`
	Paid             string `json:"paid"`
	Outstanding      string `json:"outstanding"`
	Status           string `json:"status"`
	Overdue          bool   `json:"overdue"`
}

type TotalsDTO struct {
	FeesDue          string `json:"fees_due"`
	FeesPaid         string `json:"fees_paid"`
	FeesOutstanding  string `json:"fees_outstanding"`
	PrincipalDue     string `json:"principal_due"`
	PrincipalPaid    string `json:"principal_paid"`
	ProfitDue        string `json:"profit_due"`
	ProfitPaid       string `json:"profit_paid"`
	TotalOutstanding string `json:"total_outstanding"`
}

type ContractStateDTO struct {
	ContractID     string           `json:"contract_id"`
	Number         string           `json:"number"`
	Customer       string           `json:"customer"`
	AsOf           string           `json:"as_of"`
	Fees           []FeeDTO         `json:"fees"`
	Installments   []InstallmentDTO `json:"installments"`
	Totals         TotalsDTO        `json:"totals"`
	EffectiveFunds string           `json:"effective_funds"`
	CreditBalance  string           `json:"credit_balance"`
	FundingDate    string           `json:"funding_date,omitempty"`
	MaturityDate   string           `json:"maturity_date,omitempty"`
	Status         string           `json:"status"`
}

type ObligationDeltaDTO struct {
	Kind           string `json:"kind"`
	FactID         string `json:"fact_id"`
	Label          string `json:"label"`
	AmountDelta    string `json:"amount_delta"`
	ProfitDelta    string `json:"profit_delta,omitempty"`
	PrincipalDelta string `json:"principal_delta,omitempty"`
	PaidBefore     string `json:"paid_before"`
	PaidAfter      string `json:"paid_after"`
	StatusAfter    string `json:"status_after"`
}

type PreviewDTO struct {
	Amount       string               `json:"amount"`
	Changes      []ObligationDeltaDTO `json:"changes"`
	CreditBefore string               `json:"credit_before"`
	CreditAfter  string               `json:"credit_after"`
}

type SettlementDTO struct {
	Date                 string `json:"date"`
	OutstandingPrincipal string `json:"outstanding_principal"`
	AccruedUnpaidProfit  string `json:"accrued_unpaid_profit"`
	Penalty              string `json:"penalty"`
	FeesOutstanding      string `json:"fees_outstanding"`
	CreditBalance        string `json:"credit_balance"`
	Overridden           bool   `json:"overridden"`
	Total                string `json:"total"`
}

type HistoryEntryDTO struct {
	FactID        string `json:"fact_id"`
	Kind          string `json:"kind"`
	Label         string `json:"label"`
	ContractLabel string `json:"contract_label"`
	Amount        string `json:"amount"`
	BusinessDate  string `json:"business_date"`
	RecordedAt    string `json:"recorded_at"`

	Retracted        bool   `json:"retracted"`
	RetractedAt      string `json:"retracted_at,omitempty"`
	RetractedBy      string `json:"retracted_by,omitempty"`
	RetractionReason string `json:"retraction_reason,omitempty"`
	RetractionNote   string `json:"retraction_note,omitempty"`
}

type HistoryPageDTO struct {
	Entries      []HistoryEntryDTO `json:"entries"`
	Page         int               `json:"page"`
	PageSize     int               `json:"page_size"`
	TotalEntries int               `json:"total_entries"`
	TotalPages   int               `json:"total_pages"`
}

type FactCreatedDTO struct {
	FactID string `json:"fact_id"`
}

type ErrorDTO struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toContractDTO(c ledger.Contract) ContractDTO {
	return ContractDTO{ID: string(c.ID), Number: c.Number, Customer: c.Customer}
}

func toStateDTO(s engine.ContractState) ContractStateDTO {
	dto := ContractStateDTO{
		ContractID:     string(s.ContractID),
		Number:         s.Number,
		Customer:       s.Customer,
		AsOf:           s.AsOf.String(),
		Fees:           make([]FeeDTO, 0, len(s.Fees)),
		Installments:   make([]InstallmentDTO, 0, len(s.Installments)),
		EffectiveFunds: s.EffectiveFunds.String(),
		CreditBalance:  s.CreditBalance.String(),
		FundingDate:    s.FundingDate.String(),
		MaturityDate:   s.MaturityDate.String(),
		Status:         string(s.Status),
		Totals: TotalsDTO{
			FeesDue:          s.Totals.FeesDue.String(),
			FeesPaid:         s.Totals.FeesPaid.String(),
			FeesOutstanding:  s.Totals.FeesOutstanding.String(),
			PrincipalDue:     s.Totals.PrincipalDue.String(),
			PrincipalPaid:    s.Totals.PrincipalPaid.String(),
			ProfitDue:        s.Totals.ProfitDue.String(),
			ProfitPaid:       s.Totals.ProfitPaid.String(),
			TotalOutstanding: s.Totals.TotalOutstanding.String(),
		},
	}
	for _, f := range s.Fees {
		dto.Fees = append(dto.Fees, FeeDTO{
			ID:          string(f.FactID),
			Type:        string(f.Type),
			DueDate:     f.DueDate.String(),
			Amount:      f.Amount.String(),
			Paid:        f.Paid.String(),
			Outstanding: f.Outstanding.String(),
			Status:      string(f.Status),
			Overdue:     f.Overdue,
		})
	}
	for _, i := range s.Installments {
		dto.Installments = append(dto.Installments, InstallmentDTO{
			ID:               string(i.FactID),
			Seq:              i.Seq,
			DueDate:          i.DueDate.String(),
			PrincipalDue:     i.PrincipalDue.String(),
			ProfitDue:        i.ProfitDue.String(),
			OpeningPrincipal: i.OpeningPrincipal.String(),
			ProfitPaid:       i.ProfitPaid.String(),
			PrincipalPaid:    i.PrincipalPaid.String(),
			Paid:             i.Paid.String(),
			Outstanding:      i.Outstanding.String(),
			Status:           string(i.Status),
			Overdue:          i.Overdue,
		})
	}
	return dto
}

func toPreviewDTO(p engine.Preview) PreviewDTO {
	dto := PreviewDTO{
		Amount:       p.Amount.String(),
		Changes:      make([]ObligationDeltaDTO, 0, len(p.Changes)),
		CreditBefore: p.CreditBefore.String(),
		CreditAfter:  p.CreditAfter.String(),
	}
	for _, ch := range p.Changes {
		d := ObligationDeltaDTO{
			Kind:        string(ch.Kind),
			FactID:      string(ch.FactID),
			Label:       ch.Label,
			AmountDelta: ch.AmountDelta.String(),
			PaidBefore:  ch.PaidBefore.String(),
			PaidAfter:   ch.PaidAfter.String(),
			StatusAfter: string(ch.StatusAfter),
		}
		if ch.Kind == ledger.KindInstallment {
			d.ProfitDelta = ch.ProfitDelta.String()
			d.PrincipalDelta = ch.PrincipalDelta.String()
		}
		dto.Changes = append(dto.Changes, d)
	}
	return dto
}

func toSettlementDTO(r engine.SettlementResult) SettlementDTO {
	return SettlementDTO{
		Date:                 r.Date.String(),
		OutstandingPrincipal: r.OutstandingPrincipal.String(),
		AccruedUnpaidProfit:  r.AccruedUnpaidProfit.String(),
		Penalty:              r.Penalty.String(),
		FeesOutstanding:      r.FeesOutstanding.String(),
		CreditBalance:        r.CreditBalance.String(),
		Overridden:           r.Overridden,
		Total:                r.Total.String(),
	}
}

func toHistoryDTO(p engine.HistoryPage) HistoryPageDTO {
	dto := HistoryPageDTO{
		Entries:      make([]HistoryEntryDTO, 0, len(p.Entries)),
		Page:         p.Page,
		PageSize:     p.PageSize,
		TotalEntries: p.TotalEntries,
		TotalPages:   p.TotalPages,
	}
	for _, e := range p.Entries {
		d := HistoryEntryDTO{
			FactID:        string(e.FactID),
			Kind:          string(e.Kind),
			Label:         e.Label,
			ContractLabel: e.ContractLabel,
			Amount:        e.Amount.String(),
			BusinessDate:  e.BusinessDate.String(),
			RecordedAt:    e.RecordedAt.Format(time.RFC3339),
			Retracted:     e.Retracted,
		}
		if e.Retracted {
			d.RetractedAt = e.RetractedAt.Format(time.RFC3339)
			d.RetractedBy = e.RetractedBy
			d.RetractionReason = string(e.RetractionReason)
			d.RetractionNote = e.RetractionNote
		}
		dto.Entries = append(dto.Entries, d)
	}
	return dto
}

// =============================================================================
// PARSE HELPERS
// =============================================================================

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ledger.ValidationError{
			Kind: ledger.ValidationNonPositiveAmount, Field: field,
			Message: "not a decimal amount: " + s,
		}
	}
	return d, nil
}

func parseDate(field, s string) (ledger.Date, error) {
	d, err := ledger.ParseDate(s)
	if err != nil {
		return ledger.Date{}, &ledger.ValidationError{
			Kind: ledger.ValidationMalformedDate, Field: field,
			Message: "expected YYYY-MM-DD, got " + s,
		}
	}
	return d, nil
}

// parseDateOr returns fallback when s is empty.
func parseDateOr(field, s string, fallback ledger.Date) (ledger.Date, error) {
	if s == "" {
		return fallback, nil
	}
	return parseDate(field, s)
}
