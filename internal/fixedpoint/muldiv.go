// Package fixedpoint implements 256-bit proportional arithmetic and the Q128
// exponentiation used by the performance-fee decay.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("fixedpoint: overflow")

	// ErrDivisionByZero is returned for a zero denominator.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
)

// MulDiv returns floor(x*y/d) using a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivUp returns ceil(x*y/d).
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(x, y, d).IsZero() {
		if z.Eq(Max()) {
			return nil, ErrOverflow
		}
		z.AddUint64(z, 1)
	}
	return z, nil
}

// DivUp returns ceil(x/d).
func DivUp(x, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, rem := new(uint256.Int).DivMod(x, d, new(uint256.Int))
	if !rem.IsZero() {
		z.AddUint64(z, 1)
	}
	return z, nil
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Pow10 returns 10^n.
func Pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// Max returns 2^256-1.
func Max() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// Min returns a copy of the smaller of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x.Clone()
	}
	return y.Clone()
}
