package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/services/wallet"
	"github.com/shopspring/decimal"
)

// HandlerProvider exposes the wallet engine over HTTP.
type HandlerProvider struct {
	svc Wallet
}

func NewHandler(svc Wallet) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads one JSON object of at most 64KB and rejects unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	//nolint:errcheck
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty body")
			return false
		}

		writeError(w, http.StatusBadRequest, "invalid JSON")

		return false
	}

	return true
}

type accountResponse struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email,omitempty"`
	DisplayName         string    `json:"display_name,omitempty"`
	AvatarURL           string    `json:"avatar_url,omitempty"`
	Balance             string    `json:"balance"`
	Available           string    `json:"available"`
	BoundDepositAddress *string   `json:"bound_deposit_address"`
	PayoutAddress       *string   `json:"payout_address"`
	CreatedAt           time.Time `json:"created_at"`
}

type entryResponse struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	Status      string    `json:"status"`
	ExternalRef *string   `json:"external_ref,omitempty"`
	From        *string   `json:"from,omitempty"`
	To          *string   `json:"to,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// money renders d with two decimals, truncating so that a displayed balance
// is never more than what can be spent.
func money(d decimal.Decimal) string {
	return d.Truncate(2).StringFixed(2)
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		Kind:        string(e.Kind),
		Amount:      money(e.Amount),
		Status:      string(e.Status),
		ExternalRef: e.ExternalRef,
		From:        e.From,
		To:          e.To,
		CreatedAt:   e.CreatedAt,
	}
}

// --- Handlers ---

// GetAccountHandler handles GET /v1/me
func (h *HandlerProvider) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.GetAccount(r.Context(), accountID(r.Context()))
	if err != nil {
		writeWalletError(w, r, err)
		return
	}

	acc := sum.Account
	writeJSON(w, http.StatusOK, accountResponse{
		ID:                  acc.ID,
		Email:               acc.Email,
		DisplayName:         acc.DisplayName,
		AvatarURL:           acc.AvatarURL,
		Balance:             money(acc.Balance),
		Available:           money(sum.Available),
		BoundDepositAddress: acc.BoundDepositAddress,
		PayoutAddress:       acc.PayoutAddress,
		CreatedAt:           acc.CreatedAt,
	})
}

// HistoryHandler handles GET /v1/me/history?limit=N
func (h *HandlerProvider) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}

		limit = n
	}

	list, err := h.svc.History(r.Context(), accountID(r.Context()), limit)
	if err != nil {
		writeWalletError(w, r, err)
		return
	}

	out := make([]entryResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// ReconcileHandler handles POST /v1/me/reconcile
func (h *HandlerProvider) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reconcile(r.Context(), accountID(r.Context()))
	if err != nil {
		writeWalletError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"previous_balance": money(res.Previous),
		"new_balance":      money(res.New),
		"changed":          res.Changed(),
	})
}

type addressRequest struct {
	Address string `json:"address"`
}

// SetPayoutAddressHandler handles PUT /v1/me/payout-address
func (h *HandlerProvider) SetPayoutAddressHandler(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.svc.SetPayoutAddress(r.Context(), accountID(r.Context()), strings.TrimSpace(req.Address))
	if err != nil {
		writeWalletError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"payout_address": strings.TrimSpace(req.Address)})
}

// ClearPayoutAddressHandler handles DELETE /v1/me/payout-address
func (h *HandlerProvider) ClearPayoutAddressHandler(w http.ResponseWriter, r *http.Request) {
	err := h.svc.ClearPayoutAddress(r.Context(), accountID(r.Context()))
	if err != nil {
		writeWalletError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type depositRequest struct {
	Signature string `json:"signature"`
	Mode      string `json:"mode"`
}

// toDepositRequest resolves the body into exactly one deposit variant.
func (d depositRequest) toDepositRequest() (wallet.DepositRequest, bool) {
	sig := strings.TrimSpace(d.Signature)

	switch strings.ToLower(strings.TrimSpace(d.Mode)) {
	case "auto":
		if sig != "" {
			return nil, false
		}

		return wallet.AutoRescan{}, true
	case "", "manual":
		if sig == "" {
			return nil, false
		}

		return wallet.ManualDeposit{ExternalRef: sig}, true
	default:
		return nil, false
	}
}

// DepositHandler handles POST /v1/deposits
func (h *HandlerProvider) DepositHandler(w http.ResponseWriter, r *http.Request) {
	var body depositRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req, ok := body.toDepositRequest()
	if !ok {
		writeError(w, http.StatusBadRequest, `send either "signature" or "mode":"auto"`)
		return
	}

	res, err := h.svc.Deposit(r.Context(), accountID(r.Context()), req)
	if err != nil {
		writeWalletError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id":      res.EntryID,
		"credited":      money(res.Credited),
		"balance":       money(res.Balance),
		"first_deposit": res.FirstDeposit,
	})
}

type amountRequest struct {
	Amount json.Number `json:"amount"`
}

// WithdrawHandler handles POST /v1/withdrawals
func (h *HandlerProvider) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.Withdraw(r.Context(), accountID(r.Context()), req.Amount.String())
	if err != nil {
		writeWalletError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id":     res.EntryID,
		"amount":       money(res.Amount),
		"to":           res.To,
		"external_ref": res.ExternalRef,
		"balance":      money(res.Balance),
	})
}

// BetHandler handles POST /v1/bets
func (h *HandlerProvider) BetHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.PlaceBet(r.Context(), accountID(r.Context()), req.Amount.String())
	if err != nil {
		writeWalletError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id": res.EntryID,
		"won":      res.Won,
		"stake":    money(res.Stake),
		"balance":  money(res.Balance),
	})
}
