package vault

import (
	"cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/fixedpoint"
	"portfolio-vault/internal/shares"
	"portfolio-vault/internal/vaulterrors"
)

func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := fixedpoint.MulDiv(x, y, d)
	if err != nil {
		return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
	}
	return z, nil
}

func mulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := fixedpoint.MulDivUp(x, y, d)
	if err != nil {
		return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
	}
	return z, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, err := fixedpoint.Add(x, y)
	if err != nil {
		return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
	}
	return z, nil
}

func pow10(n uint8) *uint256.Int {
	return fixedpoint.Pow10(n)
}

func oneShare() *uint256.Int {
	return fixedpoint.Pow10(shares.Decimals)
}

// sharesToBase converts a share amount into base units for the first deposit
// into an empty vault, rounding up.
func sharesToBase(amount *uint256.Int, baseDecimals uint8) (*uint256.Int, error) {
	if baseDecimals <= shares.Decimals {
		z, err := fixedpoint.DivUp(amount, pow10(shares.Decimals-baseDecimals))
		if err != nil {
			return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
		}
		return z, nil
	}
	z, overflow := new(uint256.Int).MulOverflow(amount, pow10(baseDecimals-shares.Decimals))
	if overflow {
		return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, "scale shares to base")
	}
	return z, nil
}
