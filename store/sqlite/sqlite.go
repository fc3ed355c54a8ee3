/*
Package sqlite provides the SQLite-backed ledger.Store.

PURPOSE:
  The production fact store. Facts live in one append-only table with a
  JSON-encoded body per kind; retraction fills the tombstone columns and
  never deletes a row, so the full change history stays queryable
  forever. The same patterns apply to PostgreSQL with only dialect
  differences.

APPEND-ONLY ENFORCEMENT:
  - No DELETE statements exist on the facts table.
  - The only UPDATEs are the tombstone columns and the single sanctioned
    in-place field (an installment's profit due via a rate adjustment).

ATOMIC BATCHES:
  Commit runs one ledger.WriteBatch inside one SQL transaction: every
  create, retraction and adjustment applies, or the transaction rolls
  back. A retraction target that a concurrent batch already tombstoned
  surfaces ledger.ErrConflict, never a silent overwrite.

WAL MODE:
  Opened with WAL so readers never block on the single writer, and a
  reader always sees a committed snapshot.

USAGE:
  store, err := sqlite.New("./data/contracts.db")  // or ":memory:"
  svc := engine.NewService(store)

SEE ALSO:
  - ledger/store.go: the contract this implements
  - ledger/store/memory.go: the in-memory twin used in tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"

	"github.com/warp/murabaha-engine/ledger"
)

// Store implements ledger.Store on SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // sqlite allows one writer; serialize commits here
}

// New opens (and migrates) the database at path. ":memory:" works.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection: sqlite has a single writer anyway, and :memory:
	// databases are per-connection.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contracts (
		id       TEXT PRIMARY KEY,
		number   TEXT NOT NULL,
		customer TEXT NOT NULL DEFAULT '',
		retired  INTEGER NOT NULL DEFAULT 0
	);

	-- Append-only fact log. seq doubles as store-wide recording order.
	CREATE TABLE IF NOT EXISTS facts (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		id            TEXT NOT NULL UNIQUE,
		contract_id   TEXT NOT NULL REFERENCES contracts(id),
		kind          TEXT NOT NULL,
		business_date TEXT NOT NULL,
		recorded_at   TEXT NOT NULL,
		body          TEXT NOT NULL,

		retracted_at      TEXT,
		retracted_batch   TEXT,
		retracted_by      TEXT,
		retraction_reason TEXT,
		retraction_note   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_facts_contract ON facts(contract_id, seq);
	CREATE INDEX IF NOT EXISTS idx_facts_contract_live ON facts(contract_id) WHERE retracted_at IS NULL;

	CREATE TABLE IF NOT EXISTS batches (
		id              TEXT PRIMARY KEY,
		idempotency_key TEXT UNIQUE,
		author          TEXT NOT NULL,
		note            TEXT,
		created_at      TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REGISTRY
// =============================================================================

func (s *Store) PutContract(ctx context.Context, c ledger.Contract) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (id, number, customer, retired) VALUES (?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET number = excluded.number, customer = excluded.customer, retired = 0`,
		string(c.ID), c.Number, c.Customer)
	if err != nil {
		return eris.Wrap(err, "sqlite: put contract")
	}
	return nil
}

func (s *Store) Contract(ctx context.Context, id ledger.ContractID) (ledger.Contract, error) {
	var c ledger.Contract
	var cid string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, number, customer FROM contracts WHERE id = ? AND retired = 0`,
		string(id)).Scan(&cid, &c.Number, &c.Customer)
	if err == sql.ErrNoRows {
		return ledger.Contract{}, ledger.ErrContractNotFound
	}
	if err != nil {
		return ledger.Contract{}, eris.Wrap(err, "sqlite: get contract")
	}
	c.ID = ledger.ContractID(cid)
	return c, nil
}

func (s *Store) Contracts(ctx context.Context) ([]ledger.Contract, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, number, customer FROM contracts WHERE retired = 0 ORDER BY number`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contracts")
	}
	defer rows.Close()

	var out []ledger.Contract
	for rows.Next() {
		var c ledger.Contract
		var cid string
		if err := rows.Scan(&cid, &c.Number, &c.Customer); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contract")
		}
		c.ID = ledger.ContractID(cid)
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) Facts(ctx context.Context, id ledger.ContractID) ([]ledger.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, contract_id, kind, business_date, recorded_at, body
		FROM facts WHERE contract_id = ? AND retracted_at IS NULL ORDER BY seq`,
		string(id))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load facts")
	}
	defer rows.Close()

	var out []ledger.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fact)
	}
	return out, rows.Err()
}

func (s *Store) History(ctx context.Context, id ledger.ContractID) ([]ledger.Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, contract_id, kind, business_date, recorded_at, body,
		       retracted_at, retracted_batch, retracted_by, retraction_reason, retraction_note
		FROM facts WHERE contract_id = ? ORDER BY seq`,
		string(id))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load history")
	}
	defer rows.Close()

	var out []ledger.Change
	for rows.Next() {
		var (
			seq                          int64
			fid, cid, kind, bdate, rec   string
			body                         []byte
			rAt, rBatch, rBy, rWhy, rNote sql.NullString
		)
		if err := rows.Scan(&seq, &fid, &cid, &kind, &bdate, &rec, &body,
			&rAt, &rBatch, &rBy, &rWhy, &rNote); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		fact, err := buildFact(seq, fid, cid, kind, bdate, rec, body)
		if err != nil {
			return nil, err
		}
		ch := ledger.Change{Fact: fact}
		if rAt.Valid {
			at, err := time.Parse(time.RFC3339Nano, rAt.String)
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: parse retraction time")
			}
			ch.Retraction = &ledger.Retraction{
				At:      at,
				BatchID: rBatch.String,
				Author:  rBy.String,
				Reason:  ledger.CorrectionReason(rWhy.String),
				Note:    rNote.String,
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// =============================================================================
// COMMIT
// =============================================================================

func (s *Store) Commit(ctx context.Context, batch ledger.WriteBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	if batch.IdempotencyKey != "" {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM batches WHERE idempotency_key = ?`,
			batch.IdempotencyKey).Scan(&n); err != nil {
			return eris.Wrap(err, "sqlite: idempotency check")
		}
		if n > 0 {
			return ledger.ErrDuplicateIdempotencyKey
		}
	}

	seqs, err := liveSeqs(ctx, tx, batch)
	if err != nil {
		return err
	}
	if err := ledger.ValidateBatch(batch, seqs); err != nil {
		return err
	}

	now := time.Now().UTC()

	for _, target := range batch.Retracts {
		if err := tombstone(ctx, tx, batch, now, `id = ?`, string(target)); err != nil {
			return err
		}
	}
	if batch.RetractContract {
		res, err := tx.ExecContext(ctx, `
			UPDATE facts SET retracted_at = ?, retracted_batch = ?, retracted_by = ?,
			                 retraction_reason = ?, retraction_note = ?
			WHERE contract_id = ? AND retracted_at IS NULL`,
			now.Format(time.RFC3339Nano), batch.ID, batch.Author,
			string(batch.Correction.Reason), batch.Correction.Note,
			string(batch.Contract))
		if err != nil {
			return eris.Wrap(err, "sqlite: retract contract")
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ledger.ErrNothingToRetract
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE contracts SET retired = 1 WHERE id = ?`, string(batch.Contract)); err != nil {
			return eris.Wrap(err, "sqlite: retire contract")
		}
	}

	for _, adj := range batch.Adjustments {
		if err := applyAdjustment(ctx, tx, adj); err != nil {
			return err
		}
	}

	for _, f := range batch.Creates {
		if f.ID == "" {
			f.ID = ledger.FactID(uuid.NewString())
		}
		body, err := encodeBody(f.Body)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO facts (id, contract_id, kind, business_date, recorded_at, body)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(f.ID), string(f.ContractID), string(f.Kind()),
			f.BusinessDate.String(), now.Format(time.RFC3339Nano), body); err != nil {
			return eris.Wrap(err, "sqlite: insert fact")
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO batches (id, idempotency_key, author, note, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		batch.ID, nullable(batch.IdempotencyKey), batch.Author, batch.Note,
		now.Format(time.RFC3339Nano)); err != nil {
		return eris.Wrap(err, "sqlite: insert batch")
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	return nil
}

func tombstone(ctx context.Context, tx *sql.Tx, batch ledger.WriteBatch, now time.Time, where string, arg string) error {
	var retracted sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT retracted_at FROM facts WHERE `+where, arg).Scan(&retracted)
	if err == sql.ErrNoRows {
		return ledger.ErrFactNotFound
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: lookup retraction target")
	}
	if retracted.Valid {
		// A concurrent correction won; the caller must decide again.
		return ledger.ErrConflict
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE facts SET retracted_at = ?, retracted_batch = ?, retracted_by = ?,
		                 retraction_reason = ?, retraction_note = ?
		WHERE `+where+` AND retracted_at IS NULL`,
		now.Format(time.RFC3339Nano), batch.ID, batch.Author,
		string(batch.Correction.Reason), batch.Correction.Note, arg)
	if err != nil {
		return eris.Wrap(err, "sqlite: tombstone fact")
	}
	return nil
}

func applyAdjustment(ctx context.Context, tx *sql.Tx, adj ledger.ProfitAdjustment) error {
	var kind string
	var body []byte
	err := tx.QueryRowContext(ctx,
		`SELECT kind, body FROM facts WHERE id = ? AND retracted_at IS NULL`,
		string(adj.FactID)).Scan(&kind, &body)
	if err == sql.ErrNoRows {
		return ledger.ErrFactNotFound
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: lookup adjustment target")
	}
	if ledger.FactKind(kind) != ledger.KindInstallment {
		return ledger.ErrFactNotFound
	}
	decoded, err := decodeBody(ledger.FactKind(kind), body)
	if err != nil {
		return err
	}
	inst := decoded.(ledger.Installment)
	inst.ProfitDue = adj.NewProfitDue
	updated, err := encodeBody(inst)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE facts SET body = ? WHERE id = ?`, updated, string(adj.FactID)); err != nil {
		return eris.Wrap(err, "sqlite: apply adjustment")
	}
	return nil
}

// liveSeqs collects installment seqs already live on the contracts this
// batch creates installments for (for seq-uniqueness validation).
func liveSeqs(ctx context.Context, tx *sql.Tx, batch ledger.WriteBatch) (map[int]bool, error) {
	seqs := make(map[int]bool)
	done := make(map[ledger.ContractID]bool)
	for _, f := range batch.Creates {
		if _, ok := f.Body.(ledger.Installment); !ok {
			continue
		}
		if done[f.ContractID] {
			continue
		}
		done[f.ContractID] = true

		rows, err := tx.QueryContext(ctx, `
			SELECT body FROM facts
			WHERE contract_id = ? AND kind = ? AND retracted_at IS NULL`,
			string(f.ContractID), string(ledger.KindInstallment))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: load installment seqs")
		}
		for rows.Next() {
			var body []byte
			if err := rows.Scan(&body); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "sqlite: scan installment")
			}
			decoded, err := decodeBody(ledger.KindInstallment, body)
			if err != nil {
				rows.Close()
				return nil, err
			}
			seqs[decoded.(ledger.Installment).Seq] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return seqs, nil
}

// =============================================================================
// ROW / BODY CODEC
// =============================================================================

type factRow interface {
	Scan(dest ...any) error
}

func scanFact(rows factRow) (ledger.Fact, error) {
	var (
		seq                        int64
		fid, cid, kind, bdate, rec string
		body                       []byte
	)
	if err := rows.Scan(&seq, &fid, &cid, &kind, &bdate, &rec, &body); err != nil {
		return ledger.Fact{}, eris.Wrap(err, "sqlite: scan fact")
	}
	return buildFact(seq, fid, cid, kind, bdate, rec, body)
}

func buildFact(seq int64, fid, cid, kind, bdate, rec string, body []byte) (ledger.Fact, error) {
	businessDate, err := ledger.ParseDate(bdate)
	if err != nil {
		return ledger.Fact{}, eris.Wrap(err, "sqlite: parse business date")
	}
	recordedAt, err := time.Parse(time.RFC3339Nano, rec)
	if err != nil {
		return ledger.Fact{}, eris.Wrap(err, "sqlite: parse recorded_at")
	}
	decoded, err := decodeBody(ledger.FactKind(kind), body)
	if err != nil {
		return ledger.Fact{}, err
	}
	return ledger.Fact{
		ID:           ledger.FactID(fid),
		ContractID:   ledger.ContractID(cid),
		BusinessDate: businessDate,
		RecordedAt:   recordedAt,
		Seq:          seq,
		Body:         decoded,
	}, nil
}

func encodeBody(b ledger.Body) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: encode body")
	}
	return data, nil
}

func decodeBody(kind ledger.FactKind, data []byte) (ledger.Body, error) {
	var (
		body ledger.Body
		err  error
	)
	switch kind {
	case ledger.KindFee:
		var v ledger.Fee
		err = json.Unmarshal(data, &v)
		body = v
	case ledger.KindInstallment:
		var v ledger.Installment
		err = json.Unmarshal(data, &v)
		body = v
	case ledger.KindPayment:
		var v ledger.Payment
		err = json.Unmarshal(data, &v)
		body = v
	case ledger.KindDisbursement:
		var v ledger.Disbursement
		err = json.Unmarshal(data, &v)
		body = v
	case ledger.KindDeposit:
		var v ledger.Deposit
		err = json.Unmarshal(data, &v)
		body = v
	case ledger.KindPrincipalAllocation:
		var v ledger.PrincipalAllocation
		err = json.Unmarshal(data, &v)
		body = v
	case ledger.KindWriteOff:
		var v ledger.WriteOff
		err = json.Unmarshal(data, &v)
		body = v
	default:
		return nil, eris.Errorf("sqlite: unknown fact kind %q", kind)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: decode body")
	}
	return body, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
