package wallet

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const (
	amountPlaces    = 2
	maxReferenceLen = 128
)

// ParseAmount reads a decimal amount as sent by clients.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	return d, nil
}

// validateAmount requires 0 < d <= limit with at most two decimals.
func validateAmount(d, limit decimal.Decimal) error {
	switch {
	case !d.IsPositive():
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	case d.GreaterThan(limit):
		return fmt.Errorf("%w: exceeds maximum %s", ErrInvalidAmount, limit)
	case !d.Equal(d.Truncate(amountPlaces)):
		return fmt.Errorf("%w: at most %d decimals", ErrInvalidAmount, amountPlaces)
	}

	return nil
}

// ValidateAddress accepts a base58 encoded 32 byte public key.
func ValidateAddress(address string) error {
	_, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	return nil
}

// validateReference accepts a base58 encoded 64 byte transaction signature.
func validateReference(ref string) error {
	if len(ref) > maxReferenceLen {
		return fmt.Errorf("%w: too long", ErrInvalidReference)
	}

	_, err := solana.SignatureFromBase58(ref)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}

	return nil
}
