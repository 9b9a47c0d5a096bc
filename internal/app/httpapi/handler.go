package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	app "github.com/apexvault/ledger_engine/internal/app"
	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/domain/ledger"
	"github.com/apexvault/ledger_engine/internal/app/domain/transaction"
	"github.com/apexvault/ledger_engine/internal/app/services/transfer"
)

// handler bundles HTTP endpoints for the application services. The caller
// identity in the path is trusted; authentication is handled upstream.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/accounts", h.accounts)
	mux.HandleFunc("/accounts/", h.accountResources)
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) accounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Owner string `json:"owner"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		acct, err := h.app.Accounts.Create(r.Context(), payload.Owner)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, acct)

	case http.MethodGet:
		accts, err := h.app.Accounts.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, accts)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) accountResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/accounts"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	accountID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			acct, err := h.app.Accounts.Get(r.Context(), accountID)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, acct)
		case http.MethodDelete:
			if err := h.app.Accounts.Delete(r.Context(), accountID); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	resource := parts[1]
	switch resource {
	case "balances":
		h.accountBalances(w, r, accountID)
	case "transactions":
		h.accountTransactions(w, r, accountID)
	case "transfers":
		h.accountTransfers(w, r, accountID, parts[2:])
	case "mining":
		h.accountMining(w, r, accountID)
	case "trading":
		h.accountTrading(w, r, accountID, parts[2:])
	case "notifications":
		h.accountNotifications(w, r, accountID)
	case "audit":
		h.accountAudit(w, r, accountID)
	case "status":
		h.accountStatus(w, r, accountID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) accountBalances(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	balances, err := h.app.Accounts.Balances(r.Context(), accountID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (h *handler) accountTransactions(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	txs, err := h.app.Transactions.ListTransactions(r.Context(), accountID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *handler) accountTransfers(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if r.Method != http.MethodPost || len(rest) == 0 {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Currency     string  `json:"currency"`
		FromCurrency string  `json:"from_currency"`
		ToCurrency   string  `json:"to_currency"`
		Amount       float64 `json:"amount"`
		Counterparty string  `json:"counterparty"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		tx  transaction.Transaction
		err error
	)
	switch rest[0] {
	case "send":
		tx, err = h.app.Transfers.Send(r.Context(), accountID, currency.Code(payload.Currency), payload.Amount, payload.Counterparty)
	case "receive":
		tx, err = h.app.Transfers.Receive(r.Context(), accountID, currency.Code(payload.Currency), payload.Amount, payload.Counterparty)
	case "convert":
		tx, err = h.app.Transfers.Convert(r.Context(), accountID, currency.Code(payload.FromCurrency), currency.Code(payload.ToCurrency), payload.Amount)
	case "international":
		tx, err = h.app.Transfers.International(r.Context(), accountID, currency.Code(payload.Currency), payload.Amount, payload.Counterparty)
	case "crypto":
		tx, err = h.app.Transfers.CryptoSend(r.Context(), accountID, currency.Code(payload.Currency), payload.Amount, payload.Counterparty)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *handler) accountMining(w http.ResponseWriter, r *http.Request, accountID string) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Active bool `json:"active"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		jobs, err := h.app.Mining.SetActive(r.Context(), accountID, payload.Active)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)

	case http.MethodGet:
		jobs, err := h.app.Mining.Jobs(r.Context(), accountID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) accountTrading(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if len(rest) > 0 && rest[0] == "withdraw" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		tx, err := h.app.Trading.WithdrawProfit(r.Context(), accountID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Active bool `json:"active"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		state, err := h.app.Trading.SetRobot(r.Context(), accountID, payload.Active)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, state)

	case http.MethodGet:
		state, err := h.app.Trading.State(r.Context(), accountID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, state)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) accountNotifications(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := h.app.Notifications.ListNotifications(r.Context(), accountID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) accountAudit(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := h.app.Audit.ListAuditEntries(r.Context(), accountID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) accountStatus(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	acct, err := h.app.Accounts.SetStatus(r.Context(), accountID, account.Status(payload.Status))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, account.ErrNotFound), errors.Is(err, transaction.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrNotActive):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, account.ErrNoProfitAvailable),
		errors.Is(err, transfer.ErrSameCurrency),
		errors.Is(err, transfer.ErrInvalidAmount),
		errors.Is(err, transfer.ErrUnknownCurrency),
		errors.Is(err, transfer.ErrNotCrypto):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
