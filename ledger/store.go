/*
store.go - The narrow query/transact contract the engine consumes

PURPOSE:
  The engine never sees the store's internals. It gets exactly three
  read shapes (contracts, live facts, full change history) and one write
  shape (an atomic WriteBatch). Snapshot isolation between concurrent
  readers and the atomic-commit guarantee for writers are the store's
  responsibility, not the engine's.

APPEND-ONLY CONTRACT:
  There is no Update and no Delete. A retraction tombstones a fact: it
  disappears from Facts() but remains in History() forever, together
  with who retracted it, when, and why. The single sanctioned in-place
  write is an installment's ProfitDue via a ProfitAdjustment.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: production SQLite
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Query and transact
// =============================================================================

type Store interface {
	// PutContract registers a contract record. Registry metadata only.
	PutContract(ctx context.Context, c Contract) error

	// Contract returns the registry record, or ErrContractNotFound.
	Contract(ctx context.Context, id ContractID) (Contract, error)

	// Contracts returns every registered contract. Feeds the history
	// formatter's label cache; one call per request, never per row.
	Contracts(ctx context.Context) ([]Contract, error)

	// Facts returns the live (non-retracted) facts for a contract in
	// recording order. Point-in-time evaluation by business date is the
	// engine's job, not the store's.
	Facts(ctx context.Context, id ContractID) ([]Fact, error)

	// History returns the full change log for a contract, retracted
	// facts included, in recording order.
	History(ctx context.Context, id ContractID) ([]Change, error)

	// Commit applies one batch atomically: every create, retraction and
	// adjustment succeeds, or none do. Errors: ErrCorrectionRequired,
	// ErrDuplicateIdempotencyKey, ErrFactNotFound, ErrNothingToRetract,
	// ErrConflict.
	Commit(ctx context.Context, batch WriteBatch) error
}

// =============================================================================
// CHANGE - One history row
// =============================================================================

// Change pairs a fact with its retraction, when one happened.
type Change struct {
	Fact       Fact
	Retraction *Retraction
}

func (c Change) Retracted() bool { return c.Retraction != nil }

// Retraction records the act that removed a fact from live state.
type Retraction struct {
	At      time.Time
	BatchID string
	Author  string
	Reason  CorrectionReason
	Note    string
}
