/*
handlers.go - HTTP handlers for the contract servicing API

PURPOSE:
  Thin translation layer: decode a request, call the engine Service,
  encode the result. All business meaning lives in the engine; handlers
  only parse, delegate and map typed errors to HTTP statuses:

    validation        422
    not found         404
    conflict          409
    anything else     500 (logged, never a crash)
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/murabaha-engine/engine"
	"github.com/warp/murabaha-engine/ledger"
	"github.com/warp/murabaha-engine/schedule"
)

type Handler struct {
	svc *engine.Service
	log *zap.Logger
}

func NewHandler(svc *engine.Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// =============================================================================
// CONTRACTS
// =============================================================================

func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.svc.Contracts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]ContractDTO, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, toContractDTO(c))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.svc.CreateContract(r.Context(), ledger.Contract{
		Number:   req.Number,
		Customer: req.Customer,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toContractDTO(c))
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDateOr("as_of", r.URL.Query().Get("as_of"), ledger.Today())
	if err != nil {
		h.writeError(w, err)
		return
	}
	state, err := h.svc.State(r.Context(), contractID(r), asOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toStateDTO(state))
}

func (h *Handler) RetractContract(w http.ResponseWriter, r *http.Request) {
	var req RetractRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.svc.RetractContract(r.Context(), contractID(r),
		ledger.CorrectionReason(req.Reason), req.meta())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RECORDING
// =============================================================================

func (h *Handler) RecordFee(w http.ResponseWriter, r *http.Request) {
	var req RecordFeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	date, err := parseDate("business_date", req.BusinessDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	fee := ledger.Fee{
		Type:             ledger.FeeType(req.Type),
		Amount:           amount,
		DaysAfterFunding: req.DaysAfterFunding,
	}
	if req.DueDate != "" {
		due, err := parseDate("due_date", req.DueDate)
		if err != nil {
			h.writeError(w, err)
			return
		}
		fee.DueDate = due
	}
	id, err := h.svc.RecordFee(r.Context(), contractID(r), date, fee, req.meta())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, FactCreatedDTO{FactID: string(id)})
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	date, err := parseDate("business_date", req.BusinessDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.svc.RecordPayment(r.Context(), contractID(r), date, ledger.Payment{
		Amount:         amount,
		Reference:      req.Reference,
		Channel:        ledger.PaymentChannel(req.Channel),
		SourceContract: ledger.ContractID(req.SourceContract),
	}, req.meta())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, FactCreatedDTO{FactID: string(id)})
}

func (h *Handler) RecordDisbursement(w http.ResponseWriter, r *http.Request) {
	var req RecordDisbursementRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	date, err := parseDate("business_date", req.BusinessDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.svc.RecordDisbursement(r.Context(), contractID(r), date, ledger.Disbursement{
		Type:      ledger.DisbursementType(req.Type),
		Amount:    amount,
		Reference: req.Reference,
	}, req.meta())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, FactCreatedDTO{FactID: string(id)})
}

func (h *Handler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	var req RecordDepositRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	date, err := parseDate("business_date", req.BusinessDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.svc.RecordDeposit(r.Context(), contractID(r), date, ledger.Deposit{
		Type:   ledger.DepositType(req.Type),
		Amount: amount,
		Source: req.Source,
	}, req.meta())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, FactCreatedDTO{FactID: string(id)})
}

func (h *Handler) RecordAllocation(w http.ResponseWriter, r *http.Request) {
	var req RecordAllocationRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	date, err := parseDate("business_date", req.BusinessDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.svc.RecordPrincipalAllocation(r.Context(), contractID(r), date, ledger.PrincipalAllocation{
		Type:   ledger.PrincipalAllocationType(req.Type),
		Amount: amount,
	}, req.meta())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, FactCreatedDTO{FactID: string(id)})
}

func (h *Handler) RecordWriteOff(w http.ResponseWriter, r *http.Request) {
	var req WriteOffRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("business_date", req.BusinessDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.svc.RecordWriteOff(r.Context(), contractID(r), date,
		ledger.WriteOff{Reason: req.Reason}, req.meta())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, FactCreatedDTO{FactID: string(id)})
}

func (h *Handler) ApplySchedule(w http.ResponseWriter, r *http.Request) {
	var req ApplyScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, err := parseAmount("principal", req.Principal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rate, err := parseAmount("annual_profit_rate", req.AnnualProfitRate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	start, err := parseDate("start", req.Start)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ids, err := h.svc.ApplySchedule(r.Context(), contractID(r), schedule.Terms{
		Principal:        principal,
		AnnualProfitRate: rate,
		TermMonths:       req.TermMonths,
		Start:            start,
	}, req.meta())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]FactCreatedDTO, 0, len(ids))
	for _, id := range ids {
		out = append(out, FactCreatedDTO{FactID: string(id)})
	}
	h.writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) AdjustProfit(w http.ResponseWriter, r *http.Request) {
	var req AdjustProfitRequest
	if !h.decode(w, r, &req) {
		return
	}
	rate, err := parseAmount("annual_rate", req.AnnualRate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	err = h.svc.AdjustProfitRate(r.Context(), contractID(r), req.FromSeq, req.ToSeq, rate, req.meta())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CORRECTIONS
// =============================================================================

func (h *Handler) RetractFact(w http.ResponseWriter, r *http.Request) {
	var req RetractRequest
	if !h.decode(w, r, &req) {
		return
	}
	factID := ledger.FactID(chi.URLParam(r, "factID"))
	err := h.svc.Retract(r.Context(), factID, ledger.CorrectionReason(req.Reason), req.meta())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DERIVED READS
// =============================================================================

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	asOf, err := parseDateOr("as_of", req.AsOf, ledger.Today())
	if err != nil {
		h.writeError(w, err)
		return
	}
	preview, err := h.svc.Preview(r.Context(), contractID(r), asOf, amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPreviewDTO(preview))
}

func (h *Handler) Settlement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := parseDateOr("date", q.Get("date"), ledger.Today())
	if err != nil {
		h.writeError(w, err)
		return
	}
	in := engine.SettlementInput{Date: date}
	if v := q.Get("penalty_days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			h.writeError(w, &ledger.ValidationError{
				Kind: ledger.ValidationMissingField, Field: "penalty_days",
				Message: "penalty_days must be a non-negative integer",
			})
			return
		}
		in.PenaltyDays = days
	}
	if v := q.Get("profit_override"); v != "" {
		override, err := parseAmount("profit_override", v)
		if err != nil {
			h.writeError(w, err)
			return
		}
		in.ProfitOverride = &override
	}
	result, err := h.svc.Settlement(r.Context(), contractID(r), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSettlementDTO(result))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := engine.HistoryFilter{}
	if v := q.Get("kinds"); v != "" {
		for _, k := range strings.Split(v, ",") {
			filter.Kinds = append(filter.Kinds, ledger.FactKind(strings.TrimSpace(k)))
		}
	}
	if v := q.Get("from"); v != "" {
		from, err := parseDate("from", v)
		if err != nil {
			h.writeError(w, err)
			return
		}
		filter.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := parseDate("to", v)
		if err != nil {
			h.writeError(w, err)
			return
		}
		filter.To = &to
	}
	if v := q.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			filter.Page = page
		}
	}
	page, err := h.svc.History(r.Context(), contractID(r), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toHistoryDTO(page))
}

// =============================================================================
// PLUMBING
// =============================================================================

func contractID(r *http.Request) ledger.ContractID {
	return ledger.ContractID(chi.URLParam(r, "id"))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "malformed JSON body"})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	dto := ErrorDTO{Error: err.Error()}
	var verr *ledger.ValidationError
	status := http.StatusInternalServerError
	switch {
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case ledger.IsConflict(err):
		status = http.StatusConflict
	case ledger.IsValidation(err):
		status = http.StatusUnprocessableEntity
		if errors.As(err, &verr) {
			dto.Kind = verr.Kind
			dto.Field = verr.Field
		}
	default:
		h.log.Error("internal error", zap.Error(err))
		dto.Error = "internal error"
	}
	h.writeJSON(w, status, dto)
}
