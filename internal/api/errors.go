package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fastprodman/flipledger/internal/services/wallet"
)

type errorMapping struct {
	err    error
	status int
	msg    string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{wallet.ErrInvalidAmount, http.StatusBadRequest, "invalid amount"},
	{wallet.ErrInvalidAddress, http.StatusBadRequest, "invalid address"},
	{wallet.ErrInvalidReference, http.StatusBadRequest, "invalid signature"},

	{wallet.ErrDuplicateReference, http.StatusConflict, "transaction already processed"},
	{wallet.ErrAddressMismatch, http.StatusConflict, "sender does not match bound deposit address"},
	{wallet.ErrAddressInUse, http.StatusConflict, "address bound to another account"},
	{wallet.ErrSelfDeal, http.StatusConflict, "payout address cannot be the pool address"},

	{wallet.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient balance"},
	{wallet.ErrInsufficientPoolFunds, http.StatusUnprocessableEntity, "insufficient pool funds"},

	{wallet.ErrExternalTransferFailed, http.StatusBadGateway, "payout failed"},
	{wallet.ErrExternalUnavailable, http.StatusServiceUnavailable, "external service unavailable, retry later"},
	{wallet.ErrExternalNotFound, http.StatusUnprocessableEntity, "transaction not found on chain"},
	{wallet.ErrExternalTxFailed, http.StatusUnprocessableEntity, "transaction failed on chain"},
	{wallet.ErrNoMatchingTransfer, http.StatusUnprocessableEntity, "no matching transfer to the pool"},

	{wallet.ErrAccountNotFound, http.StatusNotFound, "account not found"},
	{wallet.ErrUnbound, http.StatusConflict, "no deposit or payout address on file"},
	{wallet.ErrRateLimited, http.StatusTooManyRequests, "too many bets, slow down"},
}

func writeWalletError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.msg)
			return
		}
	}

	slog.ErrorContext(r.Context(), "request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
