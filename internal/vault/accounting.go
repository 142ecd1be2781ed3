package vault

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/vaulterrors"
)

// depositQuote is the per-slot cost of minting shares at current state.
type depositQuote struct {
	amounts []*uint256.Int // kept by the vault
	fees    []*uint256.Int // routed to the fee recipient
	empty   bool
}

func (q depositQuote) charged() ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(q.amounts))
	for i := range q.amounts {
		sum, err := add(q.amounts[i], q.fees[i])
		if err != nil {
			return nil, err
		}
		out[i] = sum
	}
	return out, nil
}

// quoteDeposit prices shares against current balances, rounding in the
// vault's favour. An empty vault takes only the base asset, scaled by
// decimals.
func (v *Vault) quoteDeposit(sharesAmt *uint256.Int) (depositQuote, error) {
	if sharesAmt.IsZero() {
		return depositQuote{}, errors.Wrap(vaulterrors.ErrInvalidShareAmount, "deposit zero shares")
	}
	assets := v.registry.Assets()
	q := depositQuote{
		amounts: zeros(len(assets)),
		fees:    zeros(len(assets)),
	}

	supply := v.shares.TotalSupply()
	if supply.IsZero() {
		q.empty = true
		decimals, err := v.env.Bank().Decimals(v.registry.Base())
		if err != nil {
			return depositQuote{}, err
		}
		amt, err := sharesToBase(sharesAmt, decimals)
		if err != nil {
			return depositQuote{}, err
		}
		q.amounts[0] = amt
	} else {
		for i, bal := range v.balances(assets) {
			if bal.IsZero() {
				continue
			}
			amt, err := mulDivUp(bal, sharesAmt, supply)
			if err != nil {
				return depositQuote{}, err
			}
			q.amounts[i] = amt
		}
	}

	for i, amt := range q.amounts {
		fee, err := v.fees.EntryFee(amt)
		if err != nil {
			return depositQuote{}, err
		}
		q.fees[i] = fee
	}
	return q, nil
}

// quoteWithdraw returns the exit fee and the per-slot payout for burning
// sharesAmt at current state, rounding down.
func (v *Vault) quoteWithdraw(sharesAmt *uint256.Int) (*uint256.Int, []*uint256.Int, error) {
	if sharesAmt.IsZero() {
		return nil, nil, errors.Wrap(vaulterrors.ErrInvalidShareAmount, "withdraw zero shares")
	}
	supply := v.shares.TotalSupply()
	if supply.Lt(sharesAmt) {
		return nil, nil, errors.Wrapf(vaulterrors.ErrInvalidShareAmount, "%s exceeds supply %s", sharesAmt.Dec(), supply.Dec())
	}
	exitFee, err := v.fees.ExitFee(sharesAmt)
	if err != nil {
		return nil, nil, err
	}
	net := new(uint256.Int).Sub(sharesAmt, exitFee)

	assets := v.registry.Assets()
	amounts := zeros(len(assets))
	for i, bal := range v.balances(assets) {
		if bal.IsZero() || net.IsZero() {
			continue
		}
		amt, err := mulDiv(bal, net, supply)
		if err != nil {
			return nil, nil, err
		}
		amounts[i] = amt
	}
	return exitFee, amounts, nil
}

// Deposit mints shares to caller and pulls the proportional amount of every
// asset, plus the entry fee, from caller. The vault must be approved for
// each asset. It returns the per-slot amounts charged.
func (v *Vault) Deposit(caller common.Address, sharesAmt *uint256.Int, deadline uint64) ([]*uint256.Int, error) {
	var charged []*uint256.Int
	err := v.call("deposit", func() error {
		if err := v.checkDeadline(deadline); err != nil {
			return err
		}
		out, err := v.deposit(caller, sharesAmt)
		charged = out
		return err
	})
	if err != nil {
		return nil, err
	}
	return charged, nil
}

func (v *Vault) deposit(caller common.Address, sharesAmt *uint256.Int) ([]*uint256.Int, error) {
	if sharesAmt.IsZero() {
		return nil, errors.Wrap(vaulterrors.ErrInvalidShareAmount, "deposit zero shares")
	}
	if err := v.checkpoint(); err != nil {
		return nil, err
	}
	q, err := v.quoteDeposit(sharesAmt)
	if err != nil {
		return nil, err
	}

	bank := v.env.Bank()
	recipient := v.fees.Config().Recipient
	assets := v.registry.Assets()
	feeCharged := false
	for i, a := range assets {
		if q.amounts[i].IsZero() {
			continue
		}
		if err := bank.TransferFrom(a.Token, v.address, caller, v.address, q.amounts[i]); err != nil {
			return nil, err
		}
		if !q.fees[i].IsZero() {
			feeCharged = true
			if err := bank.TransferFrom(a.Token, v.address, caller, recipient, q.fees[i]); err != nil {
				return nil, err
			}
		}
	}

	supply := v.shares.TotalSupply()
	if err := v.shares.Mint(caller, sharesAmt); err != nil {
		return nil, err
	}
	if q.empty {
		value, err := v.CalculateTotalValue()
		if err != nil {
			return nil, err
		}
		v.fees.SetHighWaterMark(value)
	} else if err := v.fees.RebaseHighWaterMark(supply, v.shares.TotalSupply()); err != nil {
		return nil, err
	}

	charged, err := q.charged()
	if err != nil {
		return nil, err
	}
	if feeCharged {
		v.emit(domain.EntryFeeCollected{Recipient: recipient, Amounts: domain.CloneAmounts(q.fees)})
	}
	v.emit(domain.Deposit{Caller: caller, Shares: sharesAmt.Clone(), Amounts: domain.CloneAmounts(charged)})
	v.logger.Debug("deposit",
		zap.String("caller", caller.Hex()),
		zap.String("shares", sharesAmt.Dec()),
		zap.Bool("bootstrap", q.empty))
	return charged, nil
}

// Withdraw burns shares from caller and pays out the proportional amount of
// every asset. The exit fee is taken in shares and moved to the fee
// recipient. It returns the per-slot amounts paid.
func (v *Vault) Withdraw(caller common.Address, sharesAmt *uint256.Int, deadline uint64) ([]*uint256.Int, error) {
	var paid []*uint256.Int
	err := v.call("withdraw", func() error {
		if err := v.checkDeadline(deadline); err != nil {
			return err
		}
		out, err := v.withdraw(caller, sharesAmt)
		paid = out
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

func (v *Vault) withdraw(caller common.Address, sharesAmt *uint256.Int) ([]*uint256.Int, error) {
	if err := v.shares.CheckSpendable(caller, sharesAmt); err != nil {
		return nil, err
	}
	if err := v.checkpoint(); err != nil {
		return nil, err
	}
	exitFee, amounts, err := v.quoteWithdraw(sharesAmt)
	if err != nil {
		return nil, err
	}

	recipient := v.fees.Config().Recipient
	if !exitFee.IsZero() {
		if err := v.shares.Transfer(caller, recipient, exitFee); err != nil {
			return nil, err
		}
		v.emit(domain.ExitFeeCollected{Recipient: recipient, Shares: exitFee.Clone()})
	}

	supply := v.shares.TotalSupply()
	net := new(uint256.Int).Sub(sharesAmt, exitFee)
	if !net.IsZero() {
		if err := v.shares.Burn(caller, net); err != nil {
			return nil, err
		}
	}
	bank := v.env.Bank()
	for i, a := range v.registry.Assets() {
		if amounts[i].IsZero() {
			continue
		}
		if err := bank.Transfer(a.Token, v.address, caller, amounts[i]); err != nil {
			return nil, err
		}
	}
	if err := v.fees.RebaseHighWaterMark(supply, v.shares.TotalSupply()); err != nil {
		return nil, err
	}

	v.emit(domain.Withdraw{Caller: caller, Shares: sharesAmt.Clone(), Amounts: domain.CloneAmounts(amounts)})
	v.logger.Debug("withdraw",
		zap.String("caller", caller.Hex()),
		zap.String("shares", sharesAmt.Dec()),
		zap.String("exitFee", exitFee.Dec()))
	return amounts, nil
}

// PreviewDeposit returns what Deposit would charge for shares right now. It
// runs the fee checkpoint and quote in a simulation scope.
func (v *Vault) PreviewDeposit(sharesAmt *uint256.Int) ([]*uint256.Int, error) {
	var out []*uint256.Int
	err := v.env.Simulate(func() error {
		if err := v.checkpoint(); err != nil {
			return err
		}
		q, err := v.quoteDeposit(sharesAmt)
		if err != nil {
			return err
		}
		out, err = q.charged()
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PreviewWithdraw returns what Withdraw would pay for shares right now.
func (v *Vault) PreviewWithdraw(sharesAmt *uint256.Int) ([]*uint256.Int, error) {
	var out []*uint256.Int
	err := v.env.Simulate(func() error {
		if err := v.checkpoint(); err != nil {
			return err
		}
		_, amounts, err := v.quoteWithdraw(sharesAmt)
		out = amounts
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PreviewDepositFlattened quotes a deposit in bottom-level tokens, with
// composite and lending slots decomposed into their legs.
func (v *Vault) PreviewDepositFlattened(sharesAmt *uint256.Int) ([]domain.TokenAmount, error) {
	var out []domain.TokenAmount
	err := v.env.Simulate(func() error {
		if err := v.checkpoint(); err != nil {
			return err
		}
		q, err := v.quoteDeposit(sharesAmt)
		if err != nil {
			return err
		}
		charged, err := q.charged()
		if err != nil {
			return err
		}
		out, err = v.valuation.FlattenAll(v.registry.Assets(), charged)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PreviewWithdrawFlattened quotes a withdrawal in bottom-level tokens.
func (v *Vault) PreviewWithdrawFlattened(sharesAmt *uint256.Int) ([]domain.TokenAmount, error) {
	var out []domain.TokenAmount
	err := v.env.Simulate(func() error {
		if err := v.checkpoint(); err != nil {
			return err
		}
		_, amounts, err := v.quoteWithdraw(sharesAmt)
		if err != nil {
			return err
		}
		out, err = v.valuation.FlattenAll(v.registry.Assets(), amounts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func zeros(n int) []*uint256.Int {
	out := make([]*uint256.Int, n)
	for i := range out {
		out[i] = new(uint256.Int)
	}
	return out
}
