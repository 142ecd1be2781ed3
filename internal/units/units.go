// Package units converts raw token integers to and from human-readable decimals.
package units

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	ErrNegative   = errors.New("amount is negative")
	ErrFractional = errors.New("amount has more fractional digits than the token")
	ErrOverflow   = errors.New("amount overflows 256 bits")
)

// Decimal returns amount scaled down by decimals.
func Decimal(amount *uint256.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals))
}

// Format renders amount with decimals fractional digits trimmed of trailing zeros,
// e.g. 1500000 with 6 decimals is "1.5".
func Format(amount *uint256.Int, decimals uint8) string {
	return Decimal(amount, decimals).String()
}

// Float returns amount as a float64 in whole units. Precision is lost beyond 2^53.
func Float(amount *uint256.Int, decimals uint8) float64 {
	f, _ := Decimal(amount, decimals).Float64()
	return f
}

// Parse converts a decimal string in whole units into a raw integer amount.
func Parse(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, ErrNegative
	}
	raw := d.Shift(int32(decimals))
	if !raw.Equal(raw.Truncate(0)) {
		return nil, ErrFractional
	}
	v, overflow := uint256.FromBig(raw.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}
