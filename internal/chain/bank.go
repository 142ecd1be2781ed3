package chain

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/vaulterrors"
)

// NativeToken is the pseudo-token holding native currency balances.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// TokenInfo describes a registered token.
type TokenInfo struct {
	Symbol   string
	Decimals uint8
}

type holding struct {
	token  common.Address
	holder common.Address
}

type allowance struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// Bank is a journaled multi-token ledger. Every mutation can be undone with
// RevertToSnapshot.
type Bank struct {
	tokens     map[common.Address]TokenInfo
	balances   map[holding]*uint256.Int
	allowances map[allowance]*uint256.Int
	supply     map[common.Address]*uint256.Int
	journal    journal
}

// NewBank creates an empty bank with the native token registered.
func NewBank() *Bank {
	b := &Bank{
		tokens:     make(map[common.Address]TokenInfo),
		balances:   make(map[holding]*uint256.Int),
		allowances: make(map[allowance]*uint256.Int),
		supply:     make(map[common.Address]*uint256.Int),
	}
	b.tokens[NativeToken] = TokenInfo{Symbol: "ETH", Decimals: 18}
	return b
}

// RegisterToken declares a token. Registering twice fails.
func (b *Bank) RegisterToken(token common.Address, symbol string, decimals uint8) error {
	if token == (common.Address{}) {
		return errors.Wrap(vaulterrors.ErrInvalidAddress, "token address is zero")
	}
	if _, ok := b.tokens[token]; ok {
		return errors.Wrapf(vaulterrors.ErrAssetAlreadyAdded, "token %s already registered", token.Hex())
	}
	b.tokens[token] = TokenInfo{Symbol: symbol, Decimals: decimals}
	b.journal.append(func() { delete(b.tokens, token) })
	return nil
}

// Token returns the token's metadata.
func (b *Bank) Token(token common.Address) (TokenInfo, error) {
	info, ok := b.tokens[token]
	if !ok {
		return TokenInfo{}, errors.Wrapf(vaulterrors.ErrUnknownToken, "token %s", token.Hex())
	}
	return info, nil
}

// Decimals returns the token's decimals.
func (b *Bank) Decimals(token common.Address) (uint8, error) {
	info, err := b.Token(token)
	if err != nil {
		return 0, err
	}
	return info.Decimals, nil
}

// BalanceOf returns a copy of holder's balance of token.
func (b *Bank) BalanceOf(token, holder common.Address) *uint256.Int {
	if v, ok := b.balances[holding{token, holder}]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// TotalSupply returns a copy of the token's total supply.
func (b *Bank) TotalSupply(token common.Address) *uint256.Int {
	if v, ok := b.supply[token]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Allowance returns a copy of the amount spender may move on behalf of owner.
func (b *Bank) Allowance(token, owner, spender common.Address) *uint256.Int {
	if v, ok := b.allowances[allowance{token, owner, spender}]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Approve sets spender's allowance over owner's tokens.
func (b *Bank) Approve(token, owner, spender common.Address, amount *uint256.Int) error {
	if _, err := b.Token(token); err != nil {
		return err
	}
	b.setAllowance(allowance{token, owner, spender}, amount.Clone())
	return nil
}

// Transfer moves amount of token from one holder to another.
func (b *Bank) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if _, err := b.Token(token); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return errors.Wrap(vaulterrors.ErrInvalidAddress, "transfer to zero address")
	}
	bal := b.BalanceOf(token, from)
	if bal.Lt(amount) {
		return errors.Wrapf(vaulterrors.ErrInsufficientAllowanceOrBalance,
			"%s balance of %s is %s, need %s", b.tokens[token].Symbol, from.Hex(), bal.Dec(), amount.Dec())
	}
	if amount.IsZero() || from == to {
		return nil
	}
	b.setBalance(holding{token, from}, bal.Sub(bal, amount))
	toBal := b.BalanceOf(token, to)
	b.setBalance(holding{token, to}, toBal.Add(toBal, amount))
	return nil
}

// TransferFrom moves owner's tokens on behalf of spender, consuming allowance.
// A maximal allowance is never decreased.
func (b *Bank) TransferFrom(token, spender, owner, to common.Address, amount *uint256.Int) error {
	if spender != owner {
		key := allowance{token, owner, spender}
		current := b.Allowance(token, owner, spender)
		if current.Lt(amount) {
			return errors.Wrapf(vaulterrors.ErrInsufficientAllowanceOrBalance,
				"allowance of %s for %s is %s, need %s", spender.Hex(), owner.Hex(), current.Dec(), amount.Dec())
		}
		if !isMax(current) {
			b.setAllowance(key, current.Sub(current, amount))
		}
	}
	return b.Transfer(token, owner, to, amount)
}

// Mint creates amount of token for to.
func (b *Bank) Mint(token, to common.Address, amount *uint256.Int) error {
	if _, err := b.Token(token); err != nil {
		return err
	}
	supply := b.TotalSupply(token)
	if _, overflow := supply.AddOverflow(supply, amount); overflow {
		return errors.Wrapf(vaulterrors.ErrArithmeticOverflow, "mint %s", b.tokens[token].Symbol)
	}
	b.setSupply(token, supply)
	bal := b.BalanceOf(token, to)
	b.setBalance(holding{token, to}, bal.Add(bal, amount))
	return nil
}

// Burn destroys amount of token held by from.
func (b *Bank) Burn(token, from common.Address, amount *uint256.Int) error {
	if _, err := b.Token(token); err != nil {
		return err
	}
	bal := b.BalanceOf(token, from)
	if bal.Lt(amount) {
		return errors.Wrapf(vaulterrors.ErrInsufficientAllowanceOrBalance,
			"burn %s from %s: balance %s", amount.Dec(), from.Hex(), bal.Dec())
	}
	b.setBalance(holding{token, from}, bal.Sub(bal, amount))
	supply := b.TotalSupply(token)
	b.setSupply(token, supply.Sub(supply, amount))
	return nil
}

// Snapshot returns a revision id for RevertToSnapshot.
func (b *Bank) Snapshot() int {
	return b.journal.length()
}

// RevertToSnapshot undoes every mutation made after the snapshot was taken.
func (b *Bank) RevertToSnapshot(revision int) {
	b.journal.revert(revision)
}

func (b *Bank) discardJournal() {
	b.journal.reset()
}

func (b *Bank) setBalance(key holding, v *uint256.Int) {
	prev, existed := b.balances[key]
	b.balances[key] = v
	b.journal.append(func() {
		if existed {
			b.balances[key] = prev
		} else {
			delete(b.balances, key)
		}
	})
}

func (b *Bank) setAllowance(key allowance, v *uint256.Int) {
	prev, existed := b.allowances[key]
	b.allowances[key] = v
	b.journal.append(func() {
		if existed {
			b.allowances[key] = prev
		} else {
			delete(b.allowances, key)
		}
	})
}

func (b *Bank) setSupply(token common.Address, v *uint256.Int) {
	prev, existed := b.supply[token]
	b.supply[token] = v
	b.journal.append(func() {
		if existed {
			b.supply[token] = prev
		} else {
			delete(b.supply, token)
		}
	})
}

func isMax(v *uint256.Int) bool {
	return v.Eq(new(uint256.Int).SetAllOne())
}
