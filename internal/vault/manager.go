package vault

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/protocol"
	"portfolio-vault/internal/vaulterrors"
)

// swappable checks that src and dst are distinct registered base or atomic assets.
func (v *Vault) swappable(src, dst common.Address) error {
	if src == dst {
		return errors.Wrapf(vaulterrors.ErrInvalidSwapTokens, "source and destination are both %s", src.Hex())
	}
	for _, token := range []common.Address{src, dst} {
		switch v.registry.Kind(token) {
		case domain.AssetKindBase, domain.AssetKindAtomic:
		default:
			return errors.Wrapf(vaulterrors.ErrInvalidSwapTokens, "%s is not a registered base or atomic asset", token.Hex())
		}
	}
	return nil
}

// UniswapV3SwapViaSwapRouter swaps along an encoded path. For exact input,
// amount is the input and limit the minimum output; for exact output, amount
// is the output and limit the maximum input. It returns the amounts in and out.
func (v *Vault) UniswapV3SwapViaSwapRouter(caller common.Address, isExactInput bool, src, dst common.Address, path []byte, deadline uint64, amount, limit *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	var in, out *uint256.Int
	err := v.call("uniswapV3Swap", func() error {
		if err := v.onlyManager(caller); err != nil {
			return err
		}
		if err := v.checkDeadline(deadline); err != nil {
			return err
		}
		var err error
		in, out, err = v.uniswapSwap(isExactInput, src, dst, path, deadline, amount, limit)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

func (v *Vault) uniswapSwap(isExactInput bool, src, dst common.Address, path []byte, deadline uint64, amount, limit *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if v.uniswap == nil {
		return nil, nil, errors.Wrap(vaulterrors.ErrExecuteSwapFailed, "no uniswap router configured")
	}
	if err := v.swappable(src, dst); err != nil {
		return nil, nil, err
	}
	ps, pd, err := protocol.PathEndpoints(isExactInput, path)
	if err != nil {
		return nil, nil, errors.Wrap(vaulterrors.ErrInvalidSwapPath, err.Error())
	}
	if ps != src || pd != dst {
		return nil, nil, errors.Wrapf(vaulterrors.ErrInvalidSwapPath, "path runs %s -> %s", ps.Hex(), pd.Hex())
	}

	bank := v.env.Bank()
	router := v.uniswap.Address()
	maxIn := amount
	if !isExactInput {
		maxIn = limit
	}
	if err := bank.Approve(src, v.address, router, maxIn); err != nil {
		return nil, nil, err
	}

	var in, out *uint256.Int
	if isExactInput {
		in = amount.Clone()
		if out, err = v.uniswap.ExactInput(v.address, path, amount, limit, deadline); err != nil {
			return nil, nil, errors.Wrap(err, "uniswap exact input")
		}
	} else {
		out = amount.Clone()
		if in, err = v.uniswap.ExactOutput(v.address, path, amount, limit, deadline); err != nil {
			return nil, nil, errors.Wrap(err, "uniswap exact output")
		}
	}
	if err := bank.Approve(src, v.address, router, new(uint256.Int)); err != nil {
		return nil, nil, err
	}

	v.emit(domain.Swap{Manager: v.manager, SrcToken: src, DstToken: dst, Router: router, AmountIn: in.Clone(), AmountOut: out.Clone()})
	v.logger.Debug("uniswap swap", zap.String("in", in.Dec()), zap.String("out", out.Dec()))
	return in, out, nil
}

// ExecuteSwap runs aggregator calldata through a registered router. The
// output must reach minOut and also the quote along the recommended
// route, if one exists; the router may spend at most amountIn.
func (v *Vault) ExecuteSwap(caller, src, dst common.Address, amountIn, minOut *uint256.Int, routerAddr common.Address, calldata []byte, deadline uint64) (*uint256.Int, error) {
	var out *uint256.Int
	err := v.call("executeSwap", func() error {
		if err := v.onlyManager(caller); err != nil {
			return err
		}
		if err := v.checkDeadline(deadline); err != nil {
			return err
		}
		var err error
		out, err = v.executeSwap(src, dst, amountIn, minOut, routerAddr, calldata)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Vault) executeSwap(src, dst common.Address, amountIn, minOut *uint256.Int, routerAddr common.Address, calldata []byte) (*uint256.Int, error) {
	if err := v.swappable(src, dst); err != nil {
		return nil, err
	}
	router, ok := v.routers[routerAddr]
	if !ok {
		return nil, errors.Wrapf(vaulterrors.ErrExecuteSwapFailed, "unknown router %s", routerAddr.Hex())
	}
	minimum := minOut.Clone()
	if quote := v.recommendedQuote(src, dst, amountIn); quote != nil && quote.Gt(minimum) {
		minimum = quote
	}

	bank := v.env.Bank()
	srcBefore := bank.BalanceOf(src, v.address)
	dstBefore := bank.BalanceOf(dst, v.address)
	if err := bank.Approve(src, v.address, routerAddr, amountIn); err != nil {
		return nil, err
	}
	if err := router.Execute(v.address, calldata); err != nil {
		return nil, errors.Wrapf(vaulterrors.ErrExecuteSwapFailed, "%v", err)
	}
	if err := bank.Approve(src, v.address, routerAddr, new(uint256.Int)); err != nil {
		return nil, err
	}

	srcAfter := bank.BalanceOf(src, v.address)
	dstAfter := bank.BalanceOf(dst, v.address)
	if srcAfter.Gt(srcBefore) || dstAfter.Lt(dstBefore) {
		return nil, errors.Wrap(vaulterrors.ErrInvalidSwapTokens, "router moved balances the wrong way")
	}
	spent := new(uint256.Int).Sub(srcBefore, srcAfter)
	if spent.Gt(amountIn) {
		return nil, errors.Wrapf(vaulterrors.ErrExecuteSwapFailed, "router spent %s of %s", spent.Dec(), amountIn.Dec())
	}
	out := new(uint256.Int).Sub(dstAfter, dstBefore)
	if out.Lt(minimum) {
		return nil, errors.Wrapf(vaulterrors.ErrInsufficientSwapResult, "got %s, need %s", out.Dec(), minimum.Dec())
	}

	v.emit(domain.Swap{Manager: v.manager, SrcToken: src, DstToken: dst, Router: routerAddr, AmountIn: spent, AmountOut: out.Clone()})
	v.logger.Debug("aggregator swap",
		zap.String("router", routerAddr.Hex()),
		zap.String("in", spent.Dec()),
		zap.String("out", out.Dec()),
		zap.String("minimum", minimum.Dec()))
	return out, nil
}

// recommendedQuote prices amountIn along the recommended route, or returns
// nil when there is no route or no quote.
func (v *Vault) recommendedQuote(src, dst common.Address, amountIn *uint256.Int) *uint256.Int {
	if v.recommender == nil || v.uniswap == nil {
		return nil
	}
	path, ok := v.recommender.RecommendedPath(true, src, dst)
	if !ok {
		return nil
	}
	quote, err := v.uniswap.QuoteExactInput(path, amountIn)
	if err != nil {
		v.logger.Debug("recommended route quote failed", zap.Error(err))
		return nil
	}
	return quote
}

func (v *Vault) compositePair(pair common.Address) (domain.Asset, error) {
	if v.pairs == nil {
		return domain.Asset{}, errors.Wrap(vaulterrors.ErrInvalidAssetType, "no composite pair adapter")
	}
	i, ok := v.registry.IndexOf(pair)
	if !ok {
		return domain.Asset{}, errors.Wrapf(vaulterrors.ErrInvalidAssetType, "%s is not registered", pair.Hex())
	}
	asset, err := v.registry.Asset(i)
	if err != nil {
		return domain.Asset{}, err
	}
	if asset.Kind != domain.AssetKindCompositePair {
		return domain.Asset{}, errors.Wrapf(vaulterrors.ErrInvalidAssetType, "%s is %s", pair.Hex(), asset.Kind)
	}
	for _, leg := range asset.Legs {
		if !v.registry.Contains(leg) {
			return domain.Asset{}, errors.Wrapf(vaulterrors.ErrInvalidSwapTokens, "leg %s is not registered", leg.Hex())
		}
	}
	return asset, nil
}

// V3PairDeposit adds vault liquidity to a registered composite pair.
func (v *Vault) V3PairDeposit(caller, pair common.Address, sharesAmt, max0, max1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	var used0, used1 *uint256.Int
	err := v.call("v3PairDeposit", func() error {
		if err := v.onlyManager(caller); err != nil {
			return err
		}
		if _, err := v.compositePair(pair); err != nil {
			return err
		}
		var err error
		if used0, used1, err = v.pairs.Deposit(v.address, pair, sharesAmt, max0, max1); err != nil {
			return errors.Wrap(err, "composite deposit")
		}
		v.emit(domain.CompositeDeposit{Pair: pair, Shares: sharesAmt.Clone(), Amount0: used0.Clone(), Amount1: used1.Clone()})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return used0, used1, nil
}

// V3PairWithdraw removes vault liquidity from a registered composite pair.
func (v *Vault) V3PairWithdraw(caller, pair common.Address, sharesAmt, min0, min1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	var got0, got1 *uint256.Int
	err := v.call("v3PairWithdraw", func() error {
		if err := v.onlyManager(caller); err != nil {
			return err
		}
		if _, err := v.compositePair(pair); err != nil {
			return err
		}
		var err error
		if got0, got1, err = v.pairs.Withdraw(v.address, pair, sharesAmt, min0, min1); err != nil {
			return errors.Wrap(err, "composite withdraw")
		}
		v.emit(domain.CompositeWithdraw{Pair: pair, Shares: sharesAmt.Clone(), Amount0: got0.Clone(), Amount1: got1.Clone()})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return got0, got1, nil
}

// lendingMarket resolves a registered lending deposit token to its
// underlying, which must be a registered base or atomic asset.
func (v *Vault) lendingMarket(depositToken common.Address) (common.Address, error) {
	if v.lending == nil {
		return common.Address{}, errors.Wrap(vaulterrors.ErrInvalidAssetType, "no lending adapter")
	}
	if v.registry.Kind(depositToken) != domain.AssetKindLendingDeposit {
		return common.Address{}, errors.Wrapf(vaulterrors.ErrInvalidAssetType, "%s is not a registered deposit token", depositToken.Hex())
	}
	underlying, err := v.lending.UnderlyingOf(depositToken)
	if err != nil {
		return common.Address{}, errors.Wrapf(vaulterrors.ErrInvalidAssetType, "%v", err)
	}
	switch v.registry.Kind(underlying) {
	case domain.AssetKindBase, domain.AssetKindAtomic:
	default:
		return common.Address{}, errors.Wrapf(vaulterrors.ErrInvalidSwapTokens, "underlying %s is not registered", underlying.Hex())
	}
	return underlying, nil
}

// AaveSupply supplies amount of the underlying of depositToken to the lending
// pool, receiving the same amount of depositToken.
func (v *Vault) AaveSupply(caller, depositToken common.Address, amount *uint256.Int) error {
	return v.call("aaveSupply", func() error {
		if err := v.onlyManager(caller); err != nil {
			return err
		}
		underlying, err := v.lendingMarket(depositToken)
		if err != nil {
			return err
		}
		if _, err := v.lending.Supply(v.address, underlying, amount); err != nil {
			return errors.Wrap(err, "lending supply")
		}
		v.emit(domain.LendingSupply{DepositToken: depositToken, Underlying: underlying, Amount: amount.Clone()})
		return nil
	})
}

// AaveWithdraw redeems amount of depositToken for its underlying; a maximal
// amount redeems the whole position. It returns the underlying received.
func (v *Vault) AaveWithdraw(caller, depositToken common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var got *uint256.Int
	err := v.call("aaveWithdraw", func() error {
		if err := v.onlyManager(caller); err != nil {
			return err
		}
		underlying, err := v.lendingMarket(depositToken)
		if err != nil {
			return err
		}
		if got, err = v.lending.Withdraw(v.address, underlying, amount); err != nil {
			return errors.Wrap(err, "lending withdraw")
		}
		v.emit(domain.LendingWithdraw{DepositToken: depositToken, Underlying: underlying, Amount: got.Clone()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return got, nil
}
