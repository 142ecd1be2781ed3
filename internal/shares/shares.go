// Package shares implements the vault share ledger on top of the bank.
package shares

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/vaulterrors"
)

// Decimals is the precision of every vault share token.
const Decimals = 18

// Ledger is the fungible share token of one vault. Balances live in the bank
// under the vault address, so call-scope rollback covers them.
type Ledger struct {
	bank  *chain.Bank
	token common.Address
}

// New registers the share token at token and returns its ledger.
func New(bank *chain.Bank, token common.Address, symbol string) (*Ledger, error) {
	if err := bank.RegisterToken(token, symbol, Decimals); err != nil {
		return nil, err
	}
	return &Ledger{bank: bank, token: token}, nil
}

// Token returns the share token address.
func (l *Ledger) Token() common.Address {
	return l.token
}

// TotalSupply returns the outstanding share supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	return l.bank.TotalSupply(l.token)
}

// BalanceOf returns holder's shares.
func (l *Ledger) BalanceOf(holder common.Address) *uint256.Int {
	return l.bank.BalanceOf(l.token, holder)
}

// Allowance returns the shares spender may move for owner.
func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	return l.bank.Allowance(l.token, owner, spender)
}

// Mint creates shares for to. Zero is rejected.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return errors.Wrap(vaulterrors.ErrInvalidShareAmount, "mint zero shares")
	}
	return l.bank.Mint(l.token, to, amount)
}

// Burn destroys shares held by from. Zero, or more than from holds, is
// rejected with ErrInvalidShareAmount.
func (l *Ledger) Burn(from common.Address, amount *uint256.Int) error {
	if err := l.CheckSpendable(from, amount); err != nil {
		return err
	}
	return l.bank.Burn(l.token, from, amount)
}

// CheckSpendable validates that from holds a nonzero amount of shares.
func (l *Ledger) CheckSpendable(from common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return errors.Wrap(vaulterrors.ErrInvalidShareAmount, "zero shares")
	}
	if bal := l.BalanceOf(from); bal.Lt(amount) {
		return errors.Wrapf(vaulterrors.ErrInvalidShareAmount, "%s holds %s shares, requested %s", from.Hex(), bal.Dec(), amount.Dec())
	}
	return nil
}

// Transfer moves shares between holders.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	return l.bank.Transfer(l.token, from, to, amount)
}

// Approve sets spender's allowance over owner's shares.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	return l.bank.Approve(l.token, owner, spender, amount)
}

// TransferFrom moves owner's shares on behalf of spender.
func (l *Ledger) TransferFrom(spender, owner, to common.Address, amount *uint256.Int) error {
	return l.bank.TransferFrom(l.token, spender, owner, to, amount)
}
