package wallet

import (
	"errors"

	"github.com/fastprodman/flipledger/internal/ledger"
)

// Validation.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidReference = errors.New("invalid external reference")
)

// Conflict.
var (
	ErrDuplicateReference = ledger.ErrDuplicateExternalRef
	ErrAddressMismatch    = errors.New("sender does not match bound deposit address")
	ErrAddressInUse       = ledger.ErrAddressInUse
	ErrSelfDeal           = errors.New("payout address equals the pool address")
)

// Insufficiency.
var (
	ErrInsufficientBalance   = ledger.ErrInsufficientFunds
	ErrInsufficientPoolFunds = errors.New("insufficient pool funds")
)

// External collaborator failures.
var (
	ErrExternalNotFound       = errors.New("external transaction not found")
	ErrExternalTxFailed       = errors.New("external transaction failed on chain")
	ErrNoMatchingTransfer     = errors.New("no matching transfer in external transaction")
	ErrExternalUnavailable    = errors.New("external service unavailable")
	ErrExternalTransferFailed = errors.New("external transfer failed")
)

var (
	ErrAccountNotFound = ledger.ErrAccountNotFound
	ErrUnbound         = errors.New("no payout or bound deposit address")
	ErrRateLimited     = errors.New("too many bets")
)
