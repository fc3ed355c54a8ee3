package engine

import (
	"github.com/shopspring/decimal"

	"github.com/warp/murabaha-engine/ledger"
)

// =============================================================================
// EFFECTIVE FUNDS - The single scalar the waterfall consumes
// =============================================================================

// EffectiveFunds folds the contribution rule over every fact whose
// business date is on or before asOf:
//
//	+ payments
//	- refund disbursements
//	+ offset deposits
//	+ fee-settlement and installment-prepayment principal allocations
//
// Each fact knows its own signed contribution, so this stays a plain
// sum with no hidden running counters; the result is derivable from the
// fact set alone at any date, past dates included.
func EffectiveFunds(facts []ledger.Fact, asOf ledger.Date) decimal.Decimal {
	total := decimal.Zero
	for _, f := range facts {
		if f.BusinessDate.After(asOf) {
			continue
		}
		total = total.Add(f.Body.FundsContribution())
	}
	return total
}
