/*
history.go - Unified audit timeline

PURPOSE:
  Merges every fact kind, retracted facts included, into one
  chronological trail. Primary sort is business date (when it happened),
  not recording time (when the system heard about it), descending; ties
  break by recording order. Foreign contract references resolve through
  a label cache built once per call, never a lookup per row.

FILTERS & PAGING:
  Entity-kind set and business-date range filter first; fixed-size
  pagination applies after filtering and sorting, with the page clamped
  to [1, total_pages].
*/
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/murabaha-engine/ledger"
)

// =============================================================================
// FILTER / PAGE
// =============================================================================

type HistoryFilter struct {
	// Kinds limits entries to these fact kinds; empty means all.
	Kinds []ledger.FactKind
	// From/To bound the business date, inclusive.
	From *ledger.Date
	To   *ledger.Date

	Page     int // 1-based, clamped
	PageSize int
}

type HistoryEntry struct {
	FactID        ledger.FactID
	Kind          ledger.FactKind
	Label         string
	ContractLabel string
	Amount        decimal.Decimal
	BusinessDate  ledger.Date
	RecordedAt    time.Time

	Retracted        bool
	RetractedAt      time.Time
	RetractedBy      string
	RetractionReason ledger.CorrectionReason
	RetractionNote   string
}

type HistoryPage struct {
	Entries      []HistoryEntry
	Page         int
	PageSize     int
	TotalEntries int
	TotalPages   int
}

// =============================================================================
// FORMAT
// =============================================================================

// FormatHistory builds the paginated timeline from a contract's change
// log. labels maps contract IDs to their human labels; it is the
// pre-built per-request cache, so this function does no lookups itself.
func FormatHistory(contractID ledger.ContractID, changes []ledger.Change, labels map[ledger.ContractID]string, f HistoryFilter) HistoryPage {
	kindSet := make(map[ledger.FactKind]bool, len(f.Kinds))
	for _, k := range f.Kinds {
		kindSet[k] = true
	}

	type row struct {
		entry HistoryEntry
		seq   int64
	}
	var rows []row
	for _, ch := range changes {
		fact := ch.Fact
		if len(kindSet) > 0 && !kindSet[fact.Kind()] {
			continue
		}
		if f.From != nil && fact.BusinessDate.Before(*f.From) {
			continue
		}
		if f.To != nil && fact.BusinessDate.After(*f.To) {
			continue
		}
		e := HistoryEntry{
			FactID:        fact.ID,
			Kind:          fact.Kind(),
			Label:         entryLabel(fact, labels),
			ContractLabel: labels[contractID],
			Amount:        entryAmount(fact),
			BusinessDate:  fact.BusinessDate,
			RecordedAt:    fact.RecordedAt,
		}
		if ch.Retraction != nil {
			e.Retracted = true
			e.RetractedAt = ch.Retraction.At
			e.RetractedBy = ch.Retraction.Author
			e.RetractionReason = ch.Retraction.Reason
			e.RetractionNote = ch.Retraction.Note
		}
		rows = append(rows, row{entry: e, seq: fact.Seq})
	}

	// Seq is the store's recording order; timestamps can collide within
	// one batch, the sequence never does.
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].entry.BusinessDate.Equal(rows[j].entry.BusinessDate) {
			return rows[i].entry.BusinessDate.After(rows[j].entry.BusinessDate)
		}
		return rows[i].seq > rows[j].seq
	})
	entries := make([]HistoryEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry
	}

	return paginate(entries, f.Page, f.PageSize)
}

func paginate(entries []HistoryEntry, page, size int) HistoryPage {
	if size < 1 {
		size = 20
	}
	total := len(entries)
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return HistoryPage{
		Entries:      entries[start:end],
		Page:         page,
		PageSize:     size,
		TotalEntries: total,
		TotalPages:   totalPages,
	}
}

// =============================================================================
// LABELS
// =============================================================================

func entryLabel(f ledger.Fact, labels map[ledger.ContractID]string) string {
	switch body := f.Body.(type) {
	case ledger.Fee:
		return fmt.Sprintf("%s fee", body.Type)
	case ledger.Installment:
		return fmt.Sprintf("installment %d due %s", body.Seq, body.DueDate)
	case ledger.Payment:
		label := fmt.Sprintf("payment %s", body.Reference)
		if body.Channel != "" {
			label += fmt.Sprintf(" via %s", body.Channel)
		}
		if body.SourceContract != "" {
			if src, ok := labels[body.SourceContract]; ok {
				label += fmt.Sprintf(" from %s", src)
			} else {
				label += fmt.Sprintf(" from %s", body.SourceContract)
			}
		}
		return label
	case ledger.Disbursement:
		switch body.Type {
		case ledger.DisbursementFunding:
			return fmt.Sprintf("funding disbursement %s", body.Reference)
		case ledger.DisbursementRefund:
			return fmt.Sprintf("refund %s", body.Reference)
		default:
			return fmt.Sprintf("excess return %s", body.Reference)
		}
	case ledger.Deposit:
		return fmt.Sprintf("deposit %s", body.Type)
	case ledger.PrincipalAllocation:
		switch body.Type {
		case ledger.AllocationFeeSettlement:
			return "principal allocated to fees"
		case ledger.AllocationInstallmentPrepayment:
			return "principal allocated to prepayment"
		default:
			return "principal allocated to deposit"
		}
	case ledger.WriteOff:
		if body.Reason != "" {
			return fmt.Sprintf("written off: %s", body.Reason)
		}
		return "written off"
	}
	return string(f.Kind())
}

func entryAmount(f ledger.Fact) decimal.Decimal {
	switch body := f.Body.(type) {
	case ledger.Fee:
		return body.Amount
	case ledger.Installment:
		return body.TotalDue()
	case ledger.Payment:
		return body.Amount
	case ledger.Disbursement:
		return body.Amount
	case ledger.Deposit:
		return body.Amount
	case ledger.PrincipalAllocation:
		return body.Amount
	}
	return decimal.Zero
}
