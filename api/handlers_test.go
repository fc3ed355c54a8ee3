package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/murabaha-engine/engine"
	"github.com/warp/murabaha-engine/ledger/store"
)

// =============================================================================
// TEST SERVER
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := engine.NewService(store.NewMemory())
	h := NewHandler(svc, zap.NewNop())
	ts := httptest.NewServer(NewRouter(h, nil))
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func doJSONList(t *testing.T, ts *httptest.Server, method, path string, body any) (*http.Response, []map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func meta() map[string]any {
	return map[string]any{"author": "ops@test"}
}

func withMeta(fields map[string]any) map[string]any {
	out := meta()
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// createFundedContract originates the standard scenario over HTTP and
// returns the contract ID.
func createFundedContract(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	resp, created := doJSON(t, ts, http.MethodPost, "/api/contracts", map[string]any{
		"number": "C-1001", "customer": "Al Noor Trading",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"].(string)
	base := "/api/contracts/" + id

	resp, _ = doJSON(t, ts, http.MethodPost, base+"/fees", withMeta(map[string]any{
		"type": "processing", "amount": "5000",
		"business_date": "2025-01-01", "due_date": "2025-01-01",
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSONList(t, ts, http.MethodPost, base+"/schedule", withMeta(map[string]any{
		"principal": "100000", "annual_profit_rate": "120",
		"term_months": 1, "start": "2025-01-01",
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodPost, base+"/disbursements", withMeta(map[string]any{
		"type": "funding", "amount": "100000",
		"business_date": "2025-01-01", "reference": "FUND-1",
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return id
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestAPI_ContractLifecycle(t *testing.T) {
	// GIVEN: a funded contract with fee 5,000 and one installment of
	//        100,000 principal + 10,000 profit (120% flat for one month)
	// WHEN:  posting a 112,000 payment and reading state past maturity
	// THEN:  the waterfall result comes back over the wire

	ts := newTestServer(t)
	id := createFundedContract(t, ts)
	base := "/api/contracts/" + id

	resp, fact := doJSON(t, ts, http.MethodPost, base+"/payments", withMeta(map[string]any{
		"amount": "112000", "business_date": "2025-01-15", "reference": "PAY-1",
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, fact["fact_id"])

	resp, state := doJSON(t, ts, http.MethodGet, base+"?as_of=2025-03-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "active", state["status"])
	assert.Equal(t, "112000", state["effective_funds"])
	assert.Equal(t, "0", state["credit_balance"])

	fees := state["fees"].([]any)
	require.Len(t, fees, 1)
	assert.Equal(t, "paid", fees[0].(map[string]any)["status"])

	installments := state["installments"].([]any)
	require.Len(t, installments, 1)
	inst := installments[0].(map[string]any)
	assert.Equal(t, "partial", inst["status"])
	assert.Equal(t, "10000", inst["profit_paid"])
	assert.Equal(t, "97000", inst["principal_paid"])
	assert.Equal(t, "3000", inst["outstanding"])
	assert.Equal(t, true, inst["overdue"])

	totals := state["totals"].(map[string]any)
	assert.Equal(t, "3000", totals["total_outstanding"])
}

func TestAPI_SettlementQuote(t *testing.T) {
	ts := newTestServer(t)
	id := createFundedContract(t, ts)
	base := "/api/contracts/" + id

	resp, _ := doJSON(t, ts, http.MethodPost, base+"/payments", withMeta(map[string]any{
		"amount": "112000", "business_date": "2025-01-15", "reference": "PAY-1",
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, quote := doJSON(t, ts, http.MethodGet, base+"/settlement?date=2025-03-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3000", quote["outstanding_principal"])
	assert.Equal(t, "3000", quote["total"])
	assert.Equal(t, false, quote["overridden"])

	resp, quote = doJSON(t, ts, http.MethodGet,
		base+"/settlement?date=2025-03-01&penalty_days=3&profit_override=500", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, quote["overridden"])
	assert.Equal(t, "500", quote["accrued_unpaid_profit"])
	assert.Equal(t, "967.74", quote["penalty"])
	assert.Equal(t, "4467.74", quote["total"])
}

func TestAPI_PreviewPayment(t *testing.T) {
	ts := newTestServer(t)
	id := createFundedContract(t, ts)
	base := "/api/contracts/" + id

	resp, preview := doJSON(t, ts, http.MethodPost, base+"/preview", map[string]any{
		"amount": "16000", "as_of": "2025-01-10",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	changes := preview["changes"].([]any)
	require.Len(t, changes, 2)
	feeChange := changes[0].(map[string]any)
	assert.Equal(t, "fee", feeChange["kind"])
	assert.Equal(t, "5000", feeChange["amount_delta"])
	instChange := changes[1].(map[string]any)
	assert.Equal(t, "10000", instChange["profit_delta"])
	assert.Equal(t, "1000", instChange["principal_delta"])
}

func TestAPI_HistoryAndRetraction(t *testing.T) {
	ts := newTestServer(t)
	id := createFundedContract(t, ts)
	base := "/api/contracts/" + id

	resp, fact := doJSON(t, ts, http.MethodPost, base+"/payments", withMeta(map[string]any{
		"amount": "9999", "business_date": "2025-01-15", "reference": "PAY-BAD",
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	factID := fact["fact_id"].(string)

	resp, _ = doJSON(t, ts, http.MethodDelete, "/api/facts/"+factID, withMeta(map[string]any{
		"reason": "duplicate_removal", "note": "double keyed",
	}))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, page := doJSON(t, ts, http.MethodGet, base+"/history?kinds=payment", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := page["entries"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, true, entry["retracted"])
	assert.Equal(t, "duplicate_removal", entry["retraction_reason"])
	assert.Equal(t, "ops@test", entry["retracted_by"])
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	id := createFundedContract(t, ts)
	base := "/api/contracts/" + id

	// Unknown contract: 404.
	resp, body := doJSON(t, ts, http.MethodGet, "/api/contracts/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	// Non-positive amount: 422 with machine-readable kind and field.
	resp, body = doJSON(t, ts, http.MethodPost, base+"/payments", withMeta(map[string]any{
		"amount": "-5", "business_date": "2025-01-15", "reference": "PAY-NEG",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "non_positive_amount", body["kind"])
	assert.Equal(t, "payment.amount", body["field"])

	// Missing author: 422.
	resp, body = doJSON(t, ts, http.MethodPost, base+"/payments", map[string]any{
		"amount": "5", "business_date": "2025-01-15", "reference": "PAY-1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "missing_field", body["kind"])

	// Double retraction: 409.
	resp, fact := doJSON(t, ts, http.MethodPost, base+"/payments", withMeta(map[string]any{
		"amount": "100", "business_date": "2025-01-15", "reference": "PAY-1",
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	factID := fact["fact_id"].(string)
	retract := withMeta(map[string]any{"reason": "erroneous_entry"})
	resp, _ = doJSON(t, ts, http.MethodDelete, "/api/facts/"+factID, retract)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = doJSON(t, ts, http.MethodDelete, "/api/facts/"+factID, retract)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Malformed JSON: 400.
	req, err := http.NewRequest(http.MethodPost, ts.URL+base+"/payments",
		bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	raw, err := ts.Client().Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	// Malformed as_of date: 422.
	resp, body = doJSON(t, ts, http.MethodGet, base+"?as_of=yesterday", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "malformed_date", body["kind"])
}

func TestAPI_IdempotencyKeyConflict(t *testing.T) {
	ts := newTestServer(t)
	id := createFundedContract(t, ts)
	base := "/api/contracts/" + id

	payment := withMeta(map[string]any{
		"amount": "100", "business_date": "2025-01-15", "reference": "PAY-1",
		"idempotency_key": "k-001",
	})
	resp, _ := doJSON(t, ts, http.MethodPost, base+"/payments", payment)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, ts, http.MethodPost, base+"/payments", payment)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestAPI_ListContracts(t *testing.T) {
	ts := newTestServer(t)

	for i := 1; i <= 3; i++ {
		resp, _ := doJSON(t, ts, http.MethodPost, "/api/contracts", map[string]any{
			"number": fmt.Sprintf("C-%03d", i), "customer": "Customer",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, contracts := doJSONList(t, ts, http.MethodGet, "/api/contracts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, contracts, 3)
	assert.Equal(t, "C-001", contracts[0]["number"])
}
