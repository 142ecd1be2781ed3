package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

// Q128 is 1.0 in Q128 fixed point.
var Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

// maxNewtonIterations bounds EstimateDecayFactor when truncation makes the
// iteration oscillate between neighbouring values.
const maxNewtonIterations = 256

// ErrInvalidExponent is returned by EstimateDecayFactor for n == 0.
var ErrInvalidExponent = errors.New("fixedpoint: exponent must be positive")

// Power128 returns x^n in Q128 by repeated squaring. x must not exceed 1.0.
func Power128(x *uint256.Int, n uint64) (*uint256.Int, error) {
	if x.Gt(Q128) {
		return nil, ErrOverflow
	}

	result := Q128.Clone()
	base := x.Clone()
	for n > 0 {
		if n&1 == 1 {
			result.MulDivOverflow(result, base, Q128)
		}
		n >>= 1
		if n > 0 {
			base.MulDivOverflow(base, base, Q128)
		}
	}
	return result, nil
}

// EstimateDecayFactor solves x^n = target for x in Q128 with Newton's method,
// starting from 1.0 and stopping when the step truncates to zero.
// target is the fraction retained after n seconds.
func EstimateDecayFactor(target *uint256.Int, n uint64) (*uint256.Int, error) {
	if n == 0 {
		return nil, ErrInvalidExponent
	}
	if target.Gt(Q128) {
		return nil, ErrOverflow
	}

	result := Q128.Clone()
	nInt := uint256.NewInt(n)
	for i := 0; i < maxNewtonIterations; i++ {
		pn, err := Power128(result, n)
		if err != nil {
			return nil, err
		}
		pn1, err := Power128(result, n-1)
		if err != nil {
			return nil, err
		}
		slope, overflow := new(uint256.Int).MulOverflow(pn1, nInt)
		if overflow {
			return nil, ErrOverflow
		}
		if slope.IsZero() {
			return result, nil
		}

		negative := pn.Lt(target)
		diff := new(uint256.Int)
		if negative {
			diff.Sub(target, pn)
		} else {
			diff.Sub(pn, target)
		}

		step, err := MulDiv(diff, Q128, slope)
		if err != nil {
			return nil, err
		}
		if step.IsZero() {
			return result, nil
		}

		if negative {
			result.Add(result, step)
			if result.Gt(Q128) {
				result.Set(Q128)
			}
		} else {
			if step.Gt(result) {
				result.Clear()
			} else {
				result.Sub(result, step)
			}
		}
	}
	return result, nil
}

// DecayTarget returns pct/100 in Q128, the retained fraction accepted by
// EstimateDecayFactor.
func DecayTarget(pct uint64) *uint256.Int {
	z := new(uint256.Int).Mul(Q128, uint256.NewInt(pct))
	return z.Div(z, uint256.NewInt(100))
}

// DecayTargetPPM returns ppm/1e6 in Q128, for retained fractions finer
// than a whole percent.
func DecayTargetPPM(ppm uint64) *uint256.Int {
	z := new(uint256.Int).Mul(Q128, uint256.NewInt(ppm))
	return z.Div(z, uint256.NewInt(1_000_000))
}
