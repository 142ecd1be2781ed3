package stub

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/fixedpoint"
	"portfolio-vault/internal/protocol"
)

type pairLegs struct {
	token0 common.Address
	token1 common.Address
}

// Pairs implements protocol.CompositePair. Each pair holds its reserves as
// bank balances of the pair address and issues an 18-decimal share token at
// the same address.
type Pairs struct {
	env   *chain.Env
	pairs map[common.Address]pairLegs
}

// NewPairs creates an empty pair registry.
func NewPairs(env *chain.Env) *Pairs {
	return &Pairs{
		env:   env,
		pairs: make(map[common.Address]pairLegs),
	}
}

// Create registers a pair share token over token0/token1.
func (p *Pairs) Create(pair common.Address, symbol string, token0, token1 common.Address) error {
	if err := p.env.Bank().RegisterToken(pair, symbol, 18); err != nil {
		return err
	}
	p.pairs[pair] = pairLegs{token0: token0, token1: token1}
	return nil
}

// Seed bootstraps an empty pair: from provides both legs and receives shares.
func (p *Pairs) Seed(from, pair common.Address, amount0, amount1, shares *uint256.Int) error {
	legs, err := p.legs(pair)
	if err != nil {
		return err
	}
	bank := p.env.Bank()
	if err := bank.Transfer(legs.token0, from, pair, amount0); err != nil {
		return err
	}
	if err := bank.Transfer(legs.token1, from, pair, amount1); err != nil {
		return err
	}
	return bank.Mint(pair, from, shares)
}

// Donate adds reserves without minting shares, raising the value per share.
func (p *Pairs) Donate(from, pair common.Address, amount0, amount1 *uint256.Int) error {
	legs, err := p.legs(pair)
	if err != nil {
		return err
	}
	if err := p.env.Bank().Transfer(legs.token0, from, pair, amount0); err != nil {
		return err
	}
	return p.env.Bank().Transfer(legs.token1, from, pair, amount1)
}

// Tokens returns the pair's legs.
func (p *Pairs) Tokens(pair common.Address) (common.Address, common.Address, error) {
	legs, err := p.legs(pair)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return legs.token0, legs.token1, nil
}

// UnderlyingForShares returns the legs redeemable for shares, rounded down.
func (p *Pairs) UnderlyingForShares(pair common.Address, shares *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	legs, err := p.legs(pair)
	if err != nil {
		return nil, nil, err
	}
	supply := p.env.Bank().TotalSupply(pair)
	if supply.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}
	r0, r1 := p.reserves(pair, legs)
	a0, err := fixedpoint.MulDiv(r0, shares, supply)
	if err != nil {
		return nil, nil, err
	}
	a1, err := fixedpoint.MulDiv(r1, shares, supply)
	if err != nil {
		return nil, nil, err
	}
	return a0, a1, nil
}

// MaxShares returns the largest share amount whose rounded-up deposit cost
// fits within amount0 and amount1.
func (p *Pairs) MaxShares(pair common.Address, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	legs, err := p.legs(pair)
	if err != nil {
		return nil, err
	}
	supply := p.env.Bank().TotalSupply(pair)
	if supply.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPair, pair.Hex())
	}
	r0, r1 := p.reserves(pair, legs)

	var best *uint256.Int
	for _, leg := range []struct{ have, reserve *uint256.Int }{{amount0, r0}, {amount1, r1}} {
		if leg.reserve.IsZero() {
			continue
		}
		s, err := fixedpoint.MulDiv(leg.have, supply, leg.reserve)
		if err != nil {
			return nil, err
		}
		if best == nil || s.Lt(best) {
			best = s
		}
	}
	if best == nil {
		return new(uint256.Int), nil
	}
	return best, nil
}

// Deposit mints shares to from against a proportional, rounded-up amount of
// each leg.
func (p *Pairs) Deposit(from, pair common.Address, shares, max0, max1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	legs, err := p.legs(pair)
	if err != nil {
		return nil, nil, err
	}
	bank := p.env.Bank()
	supply := bank.TotalSupply(pair)
	if supply.IsZero() {
		return nil, nil, fmt.Errorf("%w: %s", ErrEmptyPair, pair.Hex())
	}
	r0, r1 := p.reserves(pair, legs)
	a0, err := fixedpoint.MulDivUp(r0, shares, supply)
	if err != nil {
		return nil, nil, err
	}
	a1, err := fixedpoint.MulDivUp(r1, shares, supply)
	if err != nil {
		return nil, nil, err
	}
	if a0.Gt(max0) || a1.Gt(max1) {
		return nil, nil, fmt.Errorf("%w: deposit needs %s/%s", ErrSlippage, a0.Dec(), a1.Dec())
	}
	if err := bank.Transfer(legs.token0, from, pair, a0); err != nil {
		return nil, nil, err
	}
	if err := bank.Transfer(legs.token1, from, pair, a1); err != nil {
		return nil, nil, err
	}
	if err := bank.Mint(pair, from, shares); err != nil {
		return nil, nil, err
	}
	return a0, a1, nil
}

// Withdraw burns shares from from and pays out the rounded-down legs.
func (p *Pairs) Withdraw(from, pair common.Address, shares, min0, min1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	legs, err := p.legs(pair)
	if err != nil {
		return nil, nil, err
	}
	a0, a1, err := p.UnderlyingForShares(pair, shares)
	if err != nil {
		return nil, nil, err
	}
	if a0.Lt(min0) || a1.Lt(min1) {
		return nil, nil, fmt.Errorf("%w: withdraw yields %s/%s", ErrSlippage, a0.Dec(), a1.Dec())
	}
	bank := p.env.Bank()
	if err := bank.Burn(pair, from, shares); err != nil {
		return nil, nil, err
	}
	if err := bank.Transfer(legs.token0, pair, from, a0); err != nil {
		return nil, nil, err
	}
	if err := bank.Transfer(legs.token1, pair, from, a1); err != nil {
		return nil, nil, err
	}
	return a0, a1, nil
}

func (p *Pairs) legs(pair common.Address) (pairLegs, error) {
	legs, ok := p.pairs[pair]
	if !ok {
		return pairLegs{}, fmt.Errorf("%w: %s", ErrUnknownPair, pair.Hex())
	}
	return legs, nil
}

func (p *Pairs) reserves(pair common.Address, legs pairLegs) (*uint256.Int, *uint256.Int) {
	bank := p.env.Bank()
	return bank.BalanceOf(legs.token0, pair), bank.BalanceOf(legs.token1, pair)
}

var _ protocol.CompositePair = (*Pairs)(nil)
