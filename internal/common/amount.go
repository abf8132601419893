package common

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/AlexZinkM/escrow-custody/internal/tokensvc"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for amounts that are not non-negative numbers
var ErrInvalidAmount = errors.New("invalid amount")

// ParseUnits converts a UI amount such as "2.50" to base units for a token with decimals.
// More fractional digits than the token supports is a precision mismatch, not a rounding.
// Example: ParseUnits("2.5", 2) = 250
func ParseUnits(amount string, decimals uint8) (uint64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if d.Sign() < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, amount)
	}

	units := d.Shift(int32(decimals))
	if !units.IsInteger() {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", tokensvc.ErrPrecisionMismatch, amount, decimals)
	}

	n := units.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("%w: %q overflows 64-bit base units", ErrInvalidAmount, amount)
	}
	return n.Uint64(), nil
}

// FormatUnits converts base units to a UI amount string with exactly decimals places.
// Example: FormatUnits(24981836, 9) = "0.024981836"
func FormatUnits(units uint64, decimals uint8) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals))
	return d.StringFixed(int32(decimals))
}
