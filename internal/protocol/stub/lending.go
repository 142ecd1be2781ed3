package stub

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/protocol"
)

// Lending implements protocol.LendingPool with 1:1 deposit tokens.
// Underlying liquidity is held at the pool address.
type Lending struct {
	env          *chain.Env
	address      common.Address
	depositOf    map[common.Address]common.Address
	underlyingOf map[common.Address]common.Address
}

// NewLending creates a lending pool at address.
func NewLending(env *chain.Env, address common.Address) *Lending {
	return &Lending{
		env:          env,
		address:      address,
		depositOf:    make(map[common.Address]common.Address),
		underlyingOf: make(map[common.Address]common.Address),
	}
}

// Address returns the pool address.
func (l *Lending) Address() common.Address {
	return l.address
}

// AddMarket registers depositToken as the receipt for underlying.
func (l *Lending) AddMarket(underlying, depositToken common.Address, symbol string) error {
	decimals, err := l.env.Bank().Decimals(underlying)
	if err != nil {
		return err
	}
	if err := l.env.Bank().RegisterToken(depositToken, symbol, decimals); err != nil {
		return err
	}
	l.depositOf[underlying] = depositToken
	l.underlyingOf[depositToken] = underlying
	return nil
}

// Accrue credits interest to holder: new deposit tokens backed by newly minted underlying.
func (l *Lending) Accrue(depositToken, holder common.Address, amount *uint256.Int) error {
	underlying, err := l.UnderlyingOf(depositToken)
	if err != nil {
		return err
	}
	if err := l.env.Bank().Mint(underlying, l.address, amount); err != nil {
		return err
	}
	return l.env.Bank().Mint(depositToken, holder, amount)
}

// DepositTokenOf returns the deposit token of underlying.
func (l *Lending) DepositTokenOf(underlying common.Address) (common.Address, error) {
	token, ok := l.depositOf[underlying]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownMarket, underlying.Hex())
	}
	return token, nil
}

// UnderlyingOf returns the underlying of depositToken.
func (l *Lending) UnderlyingOf(depositToken common.Address) (common.Address, error) {
	token, ok := l.underlyingOf[depositToken]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownMarket, depositToken.Hex())
	}
	return token, nil
}

// UnderlyingForDeposit returns the underlying redeemable for amount of depositToken.
func (l *Lending) UnderlyingForDeposit(depositToken common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if _, err := l.UnderlyingOf(depositToken); err != nil {
		return nil, err
	}
	return amount.Clone(), nil
}

// Supply moves underlying into the pool and mints deposit tokens to from.
func (l *Lending) Supply(from, underlying common.Address, amount *uint256.Int) (*uint256.Int, error) {
	depositToken, err := l.DepositTokenOf(underlying)
	if err != nil {
		return nil, err
	}
	if err := l.env.Bank().Transfer(underlying, from, l.address, amount); err != nil {
		return nil, err
	}
	if err := l.env.Bank().Mint(depositToken, from, amount); err != nil {
		return nil, err
	}
	return amount.Clone(), nil
}

// Withdraw burns deposit tokens and returns underlying to from. A maximal
// amount withdraws the full position.
func (l *Lending) Withdraw(from, underlying common.Address, amount *uint256.Int) (*uint256.Int, error) {
	depositToken, err := l.DepositTokenOf(underlying)
	if err != nil {
		return nil, err
	}
	amt := amount.Clone()
	if amt.Eq(new(uint256.Int).SetAllOne()) {
		amt = l.env.Bank().BalanceOf(depositToken, from)
	}
	if err := l.env.Bank().Burn(depositToken, from, amt); err != nil {
		return nil, err
	}
	if err := l.env.Bank().Transfer(underlying, l.address, from, amt); err != nil {
		return nil, err
	}
	return amt, nil
}

var _ protocol.LendingPool = (*Lending)(nil)
