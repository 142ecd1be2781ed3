// Package valuation prices vault holdings in base-asset units.
//
// Composite holdings are flattened exactly one level: a pair share into its
// two legs, a lending deposit into its underlying. Legs are valued directly
// and never looked up through the registry again.
package valuation

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/fixedpoint"
	"portfolio-vault/internal/protocol"
	"portfolio-vault/internal/vaulterrors"
)

// Engine values assets using the configured collaborators.
// Pairs and Lending may be nil when the vault holds no such assets.
type Engine struct {
	base    common.Address
	oracle  protocol.Oracle
	pairs   protocol.CompositePair
	lending protocol.LendingPool
}

// New creates a valuation engine denominated in base.
func New(base common.Address, oracle protocol.Oracle, pairs protocol.CompositePair, lending protocol.LendingPool) *Engine {
	return &Engine{base: base, oracle: oracle, pairs: pairs, lending: lending}
}

// Flatten decomposes amount of asset into bottom-level token amounts.
func (e *Engine) Flatten(asset domain.Asset, amount *uint256.Int) ([]domain.TokenAmount, error) {
	switch asset.Kind {
	case domain.AssetKindBase, domain.AssetKindAtomic:
		return []domain.TokenAmount{{Token: asset.Token, Amount: amount.Clone()}}, nil
	case domain.AssetKindCompositePair:
		if e.pairs == nil {
			return nil, errors.Wrap(vaulterrors.ErrInvalidAssetType, "no composite pair adapter")
		}
		a0, a1, err := e.pairs.UnderlyingForShares(asset.Token, amount)
		if err != nil {
			return nil, errors.Wrapf(err, "underlying of pair %s", asset.Token.Hex())
		}
		return []domain.TokenAmount{
			{Token: asset.Legs[0], Amount: a0},
			{Token: asset.Legs[1], Amount: a1},
		}, nil
	case domain.AssetKindLendingDeposit:
		if e.lending == nil {
			return nil, errors.Wrap(vaulterrors.ErrInvalidAssetType, "no lending adapter")
		}
		u, err := e.lending.UnderlyingForDeposit(asset.Token, amount)
		if err != nil {
			return nil, errors.Wrapf(err, "underlying of deposit %s", asset.Token.Hex())
		}
		return []domain.TokenAmount{{Token: asset.Legs[0], Amount: u}}, nil
	case domain.AssetKindUnregistered:
		return nil, nil
	default:
		return nil, errors.Wrapf(vaulterrors.ErrInvalidAssetType, "kind %d", asset.Kind)
	}
}

// TokenValue values a bottom-level token amount.
func (e *Engine) TokenValue(token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if token == e.base {
		return amount.Clone(), nil
	}
	if amount.IsZero() {
		return new(uint256.Int), nil
	}
	v, err := e.oracle.GetValue(token, amount)
	if err != nil {
		return nil, errors.Wrapf(err, "value of %s", token.Hex())
	}
	return v, nil
}

// AssetValue values balance of asset in base units.
func (e *Engine) AssetValue(asset domain.Asset, balance *uint256.Int) (*uint256.Int, error) {
	if asset.Kind == domain.AssetKindUnregistered || balance.IsZero() {
		return new(uint256.Int), nil
	}
	parts, err := e.Flatten(asset, balance)
	if err != nil {
		return nil, err
	}
	total := new(uint256.Int)
	for _, p := range parts {
		v, err := e.TokenValue(p.Token, p.Amount)
		if err != nil {
			return nil, err
		}
		if total, err = fixedpoint.Add(total, v); err != nil {
			return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
		}
	}
	return total, nil
}

// Composition returns the value held in each slot. balances is indexed by slot.
func (e *Engine) Composition(assets []domain.Asset, balances []*uint256.Int) ([]*uint256.Int, error) {
	if len(assets) != len(balances) {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidLength, "%d assets, %d balances", len(assets), len(balances))
	}
	out := make([]*uint256.Int, len(assets))
	for i, a := range assets {
		v, err := e.AssetValue(a, balances[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// TotalValue sums the value of every registered slot.
func (e *Engine) TotalValue(assets []domain.Asset, balances []*uint256.Int) (*uint256.Int, error) {
	values, err := e.Composition(assets, balances)
	if err != nil {
		return nil, err
	}
	total := new(uint256.Int)
	for _, v := range values {
		if total, err = fixedpoint.Add(total, v); err != nil {
			return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
		}
	}
	return total, nil
}

// FlattenAll decomposes per-slot amounts and merges them per token, in order
// of first appearance.
func (e *Engine) FlattenAll(assets []domain.Asset, amounts []*uint256.Int) ([]domain.TokenAmount, error) {
	if len(assets) != len(amounts) {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidLength, "%d assets, %d amounts", len(assets), len(amounts))
	}
	var out []domain.TokenAmount
	pos := make(map[common.Address]int)
	for i, a := range assets {
		if a.Kind == domain.AssetKindUnregistered {
			continue
		}
		parts, err := e.Flatten(a, amounts[i])
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			j, ok := pos[p.Token]
			if !ok {
				pos[p.Token] = len(out)
				out = append(out, domain.TokenAmount{Token: p.Token, Amount: p.Amount.Clone()})
				continue
			}
			sum, err := fixedpoint.Add(out[j].Amount, p.Amount)
			if err != nil {
				return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
			}
			out[j].Amount = sum
		}
	}
	return out, nil
}
