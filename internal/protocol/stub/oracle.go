package stub

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/fixedpoint"
	"portfolio-vault/internal/protocol"
)

// Oracle implements protocol.Oracle with fixed prices.
// A price is the base-asset amount (raw units) paid for one whole token.
type Oracle struct {
	env    *chain.Env
	base   common.Address
	prices map[common.Address]*uint256.Int
}

// NewOracle creates an oracle denominated in base.
func NewOracle(env *chain.Env, base common.Address) *Oracle {
	return &Oracle{
		env:    env,
		base:   base,
		prices: make(map[common.Address]*uint256.Int),
	}
}

// SetPrice enables token with the given price.
func (o *Oracle) SetPrice(token common.Address, price *uint256.Int) {
	o.prices[token] = price.Clone()
}

// Disable removes token's price.
func (o *Oracle) Disable(token common.Address) {
	delete(o.prices, token)
}

// IsOracleEnabled reports whether token can be valued.
func (o *Oracle) IsOracleEnabled(token common.Address) bool {
	if token == o.base {
		return true
	}
	_, ok := o.prices[token]
	return ok
}

// GetValue converts amount of token into base units, rounding down.
func (o *Oracle) GetValue(token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if token == o.base {
		return amount.Clone(), nil
	}
	price, ok := o.prices[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, token.Hex())
	}
	decimals, err := o.env.Bank().Decimals(token)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(amount, price, fixedpoint.Pow10(decimals))
}

// GetBatchTwap returns the price of one whole token for each token.
func (o *Oracle) GetBatchTwap(tokens []common.Address) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(tokens))
	for i, token := range tokens {
		if token == o.base {
			decimals, err := o.env.Bank().Decimals(token)
			if err != nil {
				return nil, err
			}
			out[i] = fixedpoint.Pow10(decimals)
			continue
		}
		price, ok := o.prices[token]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoPrice, token.Hex())
		}
		out[i] = price.Clone()
	}
	return out, nil
}

var _ protocol.Oracle = (*Oracle)(nil)
