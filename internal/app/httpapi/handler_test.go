package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/apexvault/ledger_engine/internal/app"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Config{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	// The background runners stay stopped; handlers call the services
	// directly.
	return NewHandler(application)
}

func marshal(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(data)
}

func do(handler http.Handler, method, path string, body *bytes.Reader) *httptest.ResponseRecorder {
	if body == nil {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func createAccount(t *testing.T, handler http.Handler) string {
	t.Helper()
	resp := do(handler, http.MethodPost, "/accounts", marshal(t, map[string]any{"owner": "alice"}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create account: %d %s", resp.Code, resp.Body.String())
	}
	var acct map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &acct); err != nil {
		t.Fatalf("unmarshal account: %v", err)
	}
	return acct["ID"].(string)
}

func TestAccountLifecycle(t *testing.T) {
	handler := newTestHandler(t)
	id := createAccount(t, handler)

	resp := do(handler, http.MethodGet, "/accounts/"+id, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get account: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, http.MethodGet, "/accounts/"+id+"/balances", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get balances: %d %s", resp.Code, resp.Body.String())
	}
	var balances map[string]float64
	if err := json.Unmarshal(resp.Body.Bytes(), &balances); err != nil {
		t.Fatalf("unmarshal balances: %v", err)
	}
	if len(balances) != 9 {
		t.Fatalf("balances = %d currencies, want 9", len(balances))
	}
	for code, balance := range balances {
		if balance != 0 {
			t.Fatalf("new account %s balance = %v, want 0", code, balance)
		}
	}

	resp = do(handler, http.MethodGet, "/accounts/missing", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("missing account: %d, want 404", resp.Code)
	}

	resp = do(handler, http.MethodDelete, "/accounts/"+id, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete account: %d", resp.Code)
	}
}

func TestTransferEndpoints(t *testing.T) {
	handler := newTestHandler(t)
	id := createAccount(t, handler)

	resp := do(handler, http.MethodPost, "/accounts/"+id+"/transfers/receive",
		marshal(t, map[string]any{"currency": "USD", "amount": 500, "counterparty": "bob"}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("receive: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, http.MethodPost, "/accounts/"+id+"/transfers/send",
		marshal(t, map[string]any{"currency": "USD", "amount": 100, "counterparty": "carol"}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", resp.Code, resp.Body.String())
	}

	// Overdraw refused with the balance untouched.
	resp = do(handler, http.MethodPost, "/accounts/"+id+"/transfers/send",
		marshal(t, map[string]any{"currency": "USD", "amount": 10000, "counterparty": "carol"}))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overdraw: %d, want 422", resp.Code)
	}

	resp = do(handler, http.MethodPost, "/accounts/"+id+"/transfers/convert",
		marshal(t, map[string]any{"from_currency": "USD", "to_currency": "EUR", "amount": 100}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("convert: %d %s", resp.Code, resp.Body.String())
	}
	var converted map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &converted); err != nil {
		t.Fatalf("unmarshal conversion: %v", err)
	}
	if converted["ExchangeRate"].(float64) != 0.92 {
		t.Fatalf("rate = %v, want 0.92", converted["ExchangeRate"])
	}

	resp = do(handler, http.MethodPost, "/accounts/"+id+"/transfers/convert",
		marshal(t, map[string]any{"from_currency": "USD", "to_currency": "USD", "amount": 10}))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("same-currency convert: %d, want 422", resp.Code)
	}

	resp = do(handler, http.MethodPost, "/accounts/"+id+"/transfers/international",
		marshal(t, map[string]any{"currency": "USD", "amount": 50, "counterparty": "acme"}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("international: %d %s", resp.Code, resp.Body.String())
	}
	var intl map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &intl); err != nil {
		t.Fatalf("unmarshal international: %v", err)
	}
	if intl["Status"].(string) != "processing" {
		t.Fatalf("international status = %v, want processing", intl["Status"])
	}

	resp = do(handler, http.MethodPost, "/accounts/"+id+"/transfers/crypto",
		marshal(t, map[string]any{"currency": "USD", "amount": 1, "counterparty": "bc1qdest"}))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("fiat crypto send: %d, want 422", resp.Code)
	}

	resp = do(handler, http.MethodGet, "/accounts/"+id+"/transactions", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list transactions: %d", resp.Code)
	}
	var txs []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &txs); err != nil {
		t.Fatalf("unmarshal transactions: %v", err)
	}
	if len(txs) != 4 {
		t.Fatalf("transactions = %d, want the four applied transfers", len(txs))
	}
}

func TestMiningEndpoints(t *testing.T) {
	handler := newTestHandler(t)
	id := createAccount(t, handler)

	resp := do(handler, http.MethodPost, "/accounts/"+id+"/mining", marshal(t, map[string]any{"active": true}))
	if resp.Code != http.StatusOK {
		t.Fatalf("start mining: %d %s", resp.Code, resp.Body.String())
	}
	var jobs []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("unmarshal jobs: %v", err)
	}
	if len(jobs) != 9 {
		t.Fatalf("jobs = %d, want one per currency", len(jobs))
	}

	resp = do(handler, http.MethodGet, "/accounts/"+id+"/mining", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list jobs: %d", resp.Code)
	}

	resp = do(handler, http.MethodPost, "/accounts/"+id+"/mining", marshal(t, map[string]any{"active": false}))
	if resp.Code != http.StatusOK {
		t.Fatalf("stop mining: %d %s", resp.Code, resp.Body.String())
	}
}

func TestTradingEndpoints(t *testing.T) {
	handler := newTestHandler(t)
	id := createAccount(t, handler)

	resp := do(handler, http.MethodPost, "/accounts/"+id+"/trading", marshal(t, map[string]any{"active": true}))
	if resp.Code != http.StatusOK {
		t.Fatalf("start robot: %d %s", resp.Code, resp.Body.String())
	}
	var state map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state["Capital"].(float64) != 10000 {
		t.Fatalf("capital = %v, want the 10000 seed", state["Capital"])
	}

	// Nothing accrued yet, so withdrawing is refused.
	resp = do(handler, http.MethodPost, "/accounts/"+id+"/trading/withdraw", nil)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("withdraw with no profit: %d, want 422", resp.Code)
	}

	resp = do(handler, http.MethodGet, "/accounts/"+id+"/trading", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get state: %d", resp.Code)
	}
}

func TestStatusGatesTransfers(t *testing.T) {
	handler := newTestHandler(t)
	id := createAccount(t, handler)

	resp := do(handler, http.MethodPost, "/accounts/"+id+"/status", marshal(t, map[string]any{"status": "suspended"}))
	if resp.Code != http.StatusOK {
		t.Fatalf("suspend: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, http.MethodPost, "/accounts/"+id+"/transfers/receive",
		marshal(t, map[string]any{"currency": "USD", "amount": 10, "counterparty": "bob"}))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("transfer on suspended account: %d, want 403", resp.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t)
	resp := do(handler, http.MethodGet, "/healthz", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz: %d", resp.Code)
	}
}

func TestUnknownRoutes(t *testing.T) {
	handler := newTestHandler(t)
	id := createAccount(t, handler)

	for _, path := range []string{
		"/accounts/" + id + "/unknown",
		"/accounts/" + id + "/transfers/unknown",
	} {
		resp := do(handler, http.MethodPost, path, marshal(t, map[string]any{}))
		if resp.Code != http.StatusNotFound && resp.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: %d, want 404 or 405", path, resp.Code)
		}
	}
}
