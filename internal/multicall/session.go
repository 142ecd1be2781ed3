package multicall

import (
	"math"

	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/fixedpoint"
	"portfolio-vault/internal/vaulterrors"
)

const noDeadline = math.MaxUint64

var maxUint256 = new(uint256.Int).SetAllOne()

// session is the state of one multicall.
type session struct {
	h         *Helper
	bank      *chain.Bank
	caller    common.Address
	req       Request
	portfolio Portfolio
	pair      common.Address
	outputs   []common.Address // tokens bounded by MinOutputs
	touched   []common.Address // refund order
	seen      map[common.Address]bool
	swaps     int
}

func (h *Helper) newSession(caller common.Address, req Request) (*session, error) {
	if len(req.InputTokens) != len(req.InputAmounts) {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidLength, "%d input tokens, %d amounts", len(req.InputTokens), len(req.InputAmounts))
	}
	s := &session{
		h:      h,
		bank:   h.env.Bank(),
		caller: caller,
		req:    req,
		seen:   make(map[common.Address]bool),
	}

	switch req.VaultType {
	case VaultTypePortfolio:
		p, ok := h.portfolios[req.Vault]
		if !ok {
			return nil, errors.Wrapf(vaulterrors.ErrInvalidVaultType, "no portfolio vault at %s", req.Vault.Hex())
		}
		s.portfolio = p
		s.touch(p.Address())
		for _, a := range p.Assets() {
			s.outputs = append(s.outputs, a.Token)
			s.touch(a.Token)
			s.touch(a.Legs...)
		}
	case VaultTypePair:
		if h.pairs == nil {
			return nil, errors.Wrap(vaulterrors.ErrInvalidVaultType, "no composite pair adapter")
		}
		t0, t1, err := h.pairs.Tokens(req.Vault)
		if err != nil {
			return nil, errors.Wrapf(vaulterrors.ErrInvalidVaultType, "pair %s: %v", req.Vault.Hex(), err)
		}
		s.pair = req.Vault
		s.outputs = []common.Address{t0, t1}
		s.touch(req.Vault, t0, t1)
	default:
		return nil, errors.Wrapf(vaulterrors.ErrInvalidVaultType, "vault type %d", req.VaultType)
	}

	if len(req.MinOutputs) != 0 && len(req.MinOutputs) != len(s.outputs) {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidLength, "%d min outputs for %d tokens", len(req.MinOutputs), len(s.outputs))
	}
	if h.weth != nil {
		s.touch(h.weth.Token())
	}
	s.touch(chain.NativeToken)
	return s, nil
}

func (s *session) touch(tokens ...common.Address) {
	for _, t := range tokens {
		if !s.seen[t] {
			s.seen[t] = true
			s.touched = append(s.touched, t)
		}
	}
}

func (s *session) held(token common.Address) *uint256.Int {
	return s.bank.BalanceOf(token, s.h.address)
}

func (s *session) pullInputs() error {
	self := s.h.address
	if v := s.req.NativeValue; v != nil && !v.IsZero() {
		if s.h.weth == nil {
			return errors.Wrap(vaulterrors.ErrInvalidAddress, "native value without a wrapped native token")
		}
		if err := s.bank.Transfer(chain.NativeToken, s.caller, self, v); err != nil {
			return err
		}
		if err := s.h.weth.Wrap(self, v); err != nil {
			return errors.Wrap(err, "wrap native value")
		}
	}
	for i, token := range s.req.InputTokens {
		amt := s.req.InputAmounts[i]
		s.touch(token)
		if amt == nil || amt.IsZero() {
			continue
		}
		if err := s.bank.TransferFrom(token, self, s.caller, self, amt); err != nil {
			return errors.Wrapf(err, "pull input %s", token.Hex())
		}
	}
	return nil
}

func (s *session) checkOutputs() error {
	for i, token := range s.outputs {
		if i >= len(s.req.MinOutputs) {
			break
		}
		if got := s.held(token); got.Lt(s.req.MinOutputs[i]) {
			return errors.Wrapf(vaulterrors.ErrInsufficientOutput, "%s: %s < %s", token.Hex(), got.Dec(), s.req.MinOutputs[i].Dec())
		}
	}
	return nil
}

// refund returns the helper's whole balance of every touched token.
func (s *session) refund() error {
	for _, token := range s.touched {
		bal := s.held(token)
		if bal.IsZero() {
			continue
		}
		if err := s.bank.Transfer(token, s.h.address, s.caller, bal); err != nil {
			return errors.Wrapf(err, "refund %s", token.Hex())
		}
	}
	return nil
}

var (
	portfolioSteps = map[string]bool{
		StepDeposit: true, StepDepositMax: true, StepWithdraw: true, StepWithdrawMax: true,
		StepPairDeposit: true, StepPairDepositMax: true, StepPairWithdraw: true, StepPairWithdrawMax: true,
		StepAaveSupply: true, StepAaveSupplyMax: true, StepAaveWithdraw: true, StepAaveWithdrawMax: true,
	}
	pairSteps = map[string]bool{
		StepDepositV3Pair: true, StepDepositV3PairMax: true, StepWithdrawV3Pair: true, StepWithdrawV3PairMax: true,
	}
)

func (s *session) execute(data []byte) ([]byte, error) {
	c, err := decodeStep(data)
	if err != nil {
		return nil, err
	}
	switch {
	case c.name == StepSwap || c.name == StepConvertWETH:
	case portfolioSteps[c.name] && s.req.VaultType == VaultTypePortfolio:
	case pairSteps[c.name] && s.req.VaultType == VaultTypePair:
	default:
		return nil, errors.Wrapf(vaulterrors.ErrInvalidStep, "%s on a %s vault", c.name, s.req.VaultType)
	}
	s.h.logger.Debug("multicall step", zap.String("step", c.name), zap.String("caller", s.caller.Hex()))

	switch c.name {
	case StepDeposit:
		amounts, err := s.deposit(c.uintArg(0))
		if err != nil {
			return nil, err
		}
		return packResult(c.name, amounts)
	case StepDepositMax:
		shares, err := s.maxDepositShares()
		if err != nil {
			return nil, err
		}
		if shares.IsZero() {
			return nil, errors.Wrap(vaulterrors.ErrInvalidShareAmount, "nothing to deposit")
		}
		if _, err := s.deposit(shares); err != nil {
			return nil, err
		}
		return packResult(c.name, shares)
	case StepWithdraw:
		shares := c.uintArg(0)
		if err := s.portfolio.TransferFrom(s.h.address, s.caller, s.h.address, shares); err != nil {
			return nil, errors.Wrap(err, "pull shares")
		}
		amounts, err := s.portfolio.Withdraw(s.h.address, shares, noDeadline)
		if err != nil {
			return nil, err
		}
		return packResult(c.name, amounts)
	case StepWithdrawMax:
		amounts, err := s.portfolio.Withdraw(s.h.address, s.portfolio.BalanceOf(s.h.address), noDeadline)
		if err != nil {
			return nil, err
		}
		return packResult(c.name, amounts)

	case StepPairDeposit:
		used0, used1, err := s.pairDeposit(c.args[0].(common.Address), c.uintArg(1), c.uintArg(2), c.uintArg(3))
		if err != nil {
			return nil, err
		}
		return packResult(c.name, used0, used1)
	case StepPairDepositMax:
		pair := c.args[0].(common.Address)
		shares, err := s.maxPairShares(pair, maxUint256, maxUint256)
		if err != nil {
			return nil, err
		}
		if !shares.IsZero() {
			if _, _, err := s.pairDeposit(pair, shares, maxUint256, maxUint256); err != nil {
				return nil, err
			}
		}
		return packResult(c.name, shares)
	case StepPairWithdraw:
		got0, got1, err := s.pairWithdraw(c.args[0].(common.Address), c.uintArg(1), c.uintArg(2), c.uintArg(3))
		if err != nil {
			return nil, err
		}
		return packResult(c.name, got0, got1)
	case StepPairWithdrawMax:
		pair := c.args[0].(common.Address)
		got0, got1 := new(uint256.Int), new(uint256.Int)
		if shares := s.held(pair); !shares.IsZero() {
			if got0, got1, err = s.pairWithdraw(pair, shares, new(uint256.Int), new(uint256.Int)); err != nil {
				return nil, err
			}
		}
		return packResult(c.name, got0, got1)

	case StepAaveSupply:
		if err := s.aaveSupply(c.args[0].(common.Address), c.uintArg(1)); err != nil {
			return nil, err
		}
		return packResult(c.name)
	case StepAaveSupplyMax:
		asset := c.args[0].(common.Address)
		amount := s.held(asset)
		if !amount.IsZero() {
			if err := s.aaveSupply(asset, amount); err != nil {
				return nil, err
			}
		}
		return packResult(c.name, amount)
	case StepAaveWithdraw:
		got, err := s.aaveWithdraw(c.args[0].(common.Address), c.uintArg(1))
		if err != nil {
			return nil, err
		}
		return packResult(c.name, got)
	case StepAaveWithdrawMax:
		got, err := s.aaveWithdraw(c.args[0].(common.Address), maxUint256)
		if err != nil {
			return nil, err
		}
		return packResult(c.name, got)

	case StepSwap:
		out, err := s.swap(c.args[0].(common.Address), c.args[1].(common.Address), c.uintArg(2), c.uintArg(3),
			c.args[4].(common.Address), c.args[5].([]byte))
		if err != nil {
			return nil, err
		}
		return packResult(c.name, out)
	case StepConvertWETH:
		if err := s.convertWETH(); err != nil {
			return nil, err
		}
		return packResult(c.name)

	case StepDepositV3Pair:
		used0, used1, err := s.pairDeposit(s.pair, c.uintArg(0), c.uintArg(1), c.uintArg(2))
		if err != nil {
			return nil, err
		}
		return packResult(c.name, used0, used1)
	case StepDepositV3PairMax:
		max0, max1 := c.uintArg(0), c.uintArg(1)
		shares, err := s.maxPairShares(s.pair, max0, max1)
		if err != nil {
			return nil, err
		}
		if shares.IsZero() {
			return nil, errors.Wrap(vaulterrors.ErrInvalidShareAmount, "nothing to deposit")
		}
		if _, _, err := s.pairDeposit(s.pair, shares, max0, max1); err != nil {
			return nil, err
		}
		return packResult(c.name, shares)
	case StepWithdrawV3Pair:
		shares := c.uintArg(0)
		if err := s.bank.TransferFrom(s.pair, s.h.address, s.caller, s.h.address, shares); err != nil {
			return nil, errors.Wrap(err, "pull pair shares")
		}
		got0, got1, err := s.pairWithdraw(s.pair, shares, c.uintArg(1), c.uintArg(2))
		if err != nil {
			return nil, err
		}
		return packResult(c.name, got0, got1)
	case StepWithdrawV3PairMax:
		shares := s.held(s.pair)
		if shares.IsZero() {
			return nil, errors.Wrap(vaulterrors.ErrInvalidShareAmount, "no pair shares held")
		}
		got0, got1, err := s.pairWithdraw(s.pair, shares, c.uintArg(0), c.uintArg(1))
		if err != nil {
			return nil, err
		}
		return packResult(c.name, got0, got1)
	}
	return nil, errors.Wrapf(vaulterrors.ErrInvalidStep, "unhandled step %s", c.name)
}

// deposit approves the vault for the previewed cost of shares and deposits.
func (s *session) deposit(shares *uint256.Int) ([]*uint256.Int, error) {
	p := s.portfolio
	cost, err := p.PreviewDeposit(shares)
	if err != nil {
		return nil, err
	}
	assets := p.Assets()
	for i, a := range assets {
		if cost[i].IsZero() {
			continue
		}
		if err := s.bank.Approve(a.Token, s.h.address, p.Address(), cost[i]); err != nil {
			return nil, err
		}
	}
	amounts, err := p.Deposit(s.h.address, shares, noDeadline)
	if err != nil {
		return nil, err
	}
	for i, a := range assets {
		if cost[i].IsZero() {
			continue
		}
		if err := s.bank.Approve(a.Token, s.h.address, p.Address(), new(uint256.Int)); err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

// maxDepositShares returns the largest share amount whose deposit cost the
// helper's balances cover, bounded by the proportional estimate.
func (s *session) maxDepositShares() (*uint256.Int, error) {
	p := s.portfolio
	assets := p.Assets()
	held := make([]*uint256.Int, len(assets))
	for i, a := range assets {
		held[i] = new(uint256.Int)
		if a.Kind != domain.AssetKindUnregistered {
			held[i] = s.held(a.Token)
		}
	}

	var candidate *uint256.Int
	supply := p.TotalSupply()
	if supply.IsZero() {
		decimals, err := s.bank.Decimals(assets[0].Token)
		if err != nil {
			return nil, err
		}
		candidate = held[0].Clone()
		if decimals <= 18 {
			candidate.Mul(candidate, fixedpoint.Pow10(18-decimals))
		} else {
			candidate.Div(candidate, fixedpoint.Pow10(decimals-18))
		}
	} else {
		for i, bal := range p.Balances() {
			if bal.IsZero() || assets[i].Kind == domain.AssetKindUnregistered {
				continue
			}
			n, err := fixedpoint.MulDiv(held[i], supply, bal)
			if err != nil {
				return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
			}
			if candidate == nil || n.Lt(candidate) {
				candidate = n
			}
		}
	}
	if candidate == nil || candidate.IsZero() {
		return new(uint256.Int), nil
	}

	affordable := func(n *uint256.Int) (bool, error) {
		cost, err := p.PreviewDeposit(n)
		if err != nil {
			return false, err
		}
		for i := range cost {
			if cost[i].Gt(held[i]) {
				return false, nil
			}
		}
		return true, nil
	}
	ok, err := affordable(candidate)
	if err != nil || ok {
		return candidate, err
	}
	lo, hi := new(uint256.Int), candidate
	one := uint256.NewInt(1)
	for new(uint256.Int).Sub(hi, lo).Gt(one) {
		mid := new(uint256.Int).Add(lo, new(uint256.Int).Rsh(new(uint256.Int).Sub(hi, lo), 1))
		ok, err := affordable(mid)
		if err != nil {
			return nil, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}

func (s *session) pairLegs(pair common.Address) (common.Address, common.Address, error) {
	if s.h.pairs == nil {
		return common.Address{}, common.Address{}, errors.Wrap(vaulterrors.ErrInvalidAssetType, "no composite pair adapter")
	}
	t0, t1, err := s.h.pairs.Tokens(pair)
	if err != nil {
		return common.Address{}, common.Address{}, errors.Wrapf(vaulterrors.ErrInvalidAssetType, "pair %s: %v", pair.Hex(), err)
	}
	s.touch(pair, t0, t1)
	return t0, t1, nil
}

func (s *session) pairDeposit(pair common.Address, shares, max0, max1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if _, _, err := s.pairLegs(pair); err != nil {
		return nil, nil, err
	}
	used0, used1, err := s.h.pairs.Deposit(s.h.address, pair, shares, max0, max1)
	if err != nil {
		return nil, nil, errors.Wrap(err, "composite deposit")
	}
	return used0, used1, nil
}

func (s *session) pairWithdraw(pair common.Address, shares, min0, min1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if _, _, err := s.pairLegs(pair); err != nil {
		return nil, nil, err
	}
	got0, got1, err := s.h.pairs.Withdraw(s.h.address, pair, shares, min0, min1)
	if err != nil {
		return nil, nil, errors.Wrap(err, "composite withdraw")
	}
	return got0, got1, nil
}

// maxPairShares sizes a pair deposit to the helper's leg balances, each
// capped by its max.
func (s *session) maxPairShares(pair common.Address, max0, max1 *uint256.Int) (*uint256.Int, error) {
	t0, t1, err := s.pairLegs(pair)
	if err != nil {
		return nil, err
	}
	a0, a1 := s.held(t0), s.held(t1)
	if a0.Gt(max0) {
		a0 = max0.Clone()
	}
	if a1.Gt(max1) {
		a1 = max1.Clone()
	}
	shares, err := s.h.pairs.MaxShares(pair, a0, a1)
	if err != nil {
		return nil, errors.Wrap(err, "composite max shares")
	}
	return shares, nil
}

func (s *session) lendingToken(underlying common.Address) (common.Address, error) {
	if s.h.lending == nil {
		return common.Address{}, errors.Wrap(vaulterrors.ErrInvalidAssetType, "no lending adapter")
	}
	depositToken, err := s.h.lending.DepositTokenOf(underlying)
	if err != nil {
		return common.Address{}, errors.Wrapf(vaulterrors.ErrInvalidAssetType, "%v", err)
	}
	s.touch(underlying, depositToken)
	return depositToken, nil
}

func (s *session) aaveSupply(underlying common.Address, amount *uint256.Int) error {
	if _, err := s.lendingToken(underlying); err != nil {
		return err
	}
	if _, err := s.h.lending.Supply(s.h.address, underlying, amount); err != nil {
		return errors.Wrap(err, "lending supply")
	}
	return nil
}

func (s *session) aaveWithdraw(underlying common.Address, amount *uint256.Int) (*uint256.Int, error) {
	depositToken, err := s.lendingToken(underlying)
	if err != nil {
		return nil, err
	}
	if amount.Eq(maxUint256) && s.held(depositToken).IsZero() {
		return new(uint256.Int), nil
	}
	got, err := s.h.lending.Withdraw(s.h.address, underlying, amount)
	if err != nil {
		return nil, errors.Wrap(err, "lending withdraw")
	}
	return got, nil
}

func (s *session) swap(src, dst common.Address, amountIn, minOut *uint256.Int, routerAddr common.Address, calldata []byte) (*uint256.Int, error) {
	if src == dst {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidSwapTokens, "source and destination are both %s", src.Hex())
	}
	router, ok := s.h.routers[routerAddr]
	if !ok {
		return nil, errors.Wrapf(vaulterrors.ErrExecuteSwapFailed, "unknown router %s", routerAddr.Hex())
	}
	s.touch(src, dst)

	self := s.h.address
	srcBefore, dstBefore := s.held(src), s.held(dst)
	if err := s.bank.Approve(src, self, routerAddr, amountIn); err != nil {
		return nil, err
	}
	if err := router.Execute(self, calldata); err != nil {
		return nil, errors.Wrapf(vaulterrors.ErrExecuteSwapFailed, "%v", err)
	}
	if err := s.bank.Approve(src, self, routerAddr, new(uint256.Int)); err != nil {
		return nil, err
	}

	srcAfter, dstAfter := s.held(src), s.held(dst)
	if srcAfter.Gt(srcBefore) || dstAfter.Lt(dstBefore) {
		return nil, errors.Wrap(vaulterrors.ErrInvalidSwapTokens, "router moved balances the wrong way")
	}
	spent := new(uint256.Int).Sub(srcBefore, srcAfter)
	if spent.Gt(amountIn) {
		return nil, errors.Wrapf(vaulterrors.ErrExecuteSwapFailed, "router spent %s of %s", spent.Dec(), amountIn.Dec())
	}
	out := new(uint256.Int).Sub(dstAfter, dstBefore)
	if out.Lt(minOut) {
		return nil, errors.Wrapf(vaulterrors.ErrInsufficientSwapResult, "got %s, need %s", out.Dec(), minOut.Dec())
	}
	s.swaps++
	return out, nil
}

func (s *session) convertWETH() error {
	if s.h.weth == nil {
		return errors.Wrap(vaulterrors.ErrInvalidStep, "no wrapped native token")
	}
	bal := s.held(s.h.weth.Token())
	if bal.IsZero() {
		return nil
	}
	if err := s.h.weth.Unwrap(s.h.address, bal); err != nil {
		return errors.Wrap(err, "unwrap")
	}
	return nil
}
