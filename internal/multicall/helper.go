// Package multicall composes vault and protocol operations into one atomic
// call: inputs are pulled up front, steps run in order against the helper's
// own balances, and everything left over is refunded to the caller.
package multicall

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/observability"
	"portfolio-vault/internal/protocol"
	"portfolio-vault/internal/vaulterrors"
)

// VaultType selects the step set of a multicall.
type VaultType uint8

const (
	VaultTypePair      VaultType = 0 // a composite pair used directly as the vault
	VaultTypePortfolio VaultType = 1
)

// String returns the string representation of VaultType.
func (t VaultType) String() string {
	switch t {
	case VaultTypePair:
		return "PAIR"
	case VaultTypePortfolio:
		return "PORTFOLIO"
	default:
		return "UNKNOWN"
	}
}

// Portfolio is the vault surface the helper drives.
type Portfolio interface {
	Address() common.Address
	Assets() []domain.Asset
	TotalSupply() *uint256.Int
	Balances() []*uint256.Int
	BalanceOf(holder common.Address) *uint256.Int
	PreviewDeposit(shares *uint256.Int) ([]*uint256.Int, error)
	Deposit(caller common.Address, shares *uint256.Int, deadline uint64) ([]*uint256.Int, error)
	Withdraw(caller common.Address, shares *uint256.Int, deadline uint64) ([]*uint256.Int, error)
	TransferFrom(caller, owner, to common.Address, amount *uint256.Int) error
}

// Options configures a Helper.
type Options struct {
	Address common.Address
	Owner   common.Address
	Pairs   protocol.CompositePair
	Lending protocol.LendingPool
	WETH    protocol.WrappedNative
	Routers []protocol.SwapRouter
	Logger  *zap.Logger
}

// Request is one multicall.
type Request struct {
	VaultType    VaultType
	Vault        common.Address
	InputTokens  []common.Address
	InputAmounts []*uint256.Int
	// MinOutputs bounds the refund per vault asset slot, or per leg for a
	// pair vault. Empty disables the check.
	MinOutputs  []*uint256.Int
	Steps       [][]byte
	NativeValue *uint256.Int
}

// Helper executes multicalls. It holds tokens only for the duration of a call.
type Helper struct {
	env        *chain.Env
	address    common.Address
	owner      common.Address
	pairs      protocol.CompositePair
	lending    protocol.LendingPool
	weth       protocol.WrappedNative
	routers    map[common.Address]protocol.SwapRouter
	portfolios map[common.Address]Portfolio
	logger     *zap.Logger
	locked     bool
}

// New creates a helper.
func New(env *chain.Env, opts Options) (*Helper, error) {
	if opts.Address == (common.Address{}) || opts.Owner == (common.Address{}) {
		return nil, errors.Wrap(vaulterrors.ErrInvalidAddress, "helper or owner address")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Helper{
		env:        env,
		address:    opts.Address,
		owner:      opts.Owner,
		pairs:      opts.Pairs,
		lending:    opts.Lending,
		weth:       opts.WETH,
		routers:    make(map[common.Address]protocol.SwapRouter, len(opts.Routers)),
		portfolios: make(map[common.Address]Portfolio),
		logger:     logger.With(zap.String("helper", opts.Address.Hex())),
	}
	for _, r := range opts.Routers {
		h.routers[r.Address()] = r
	}
	return h, nil
}

// Address returns the helper's address.
func (h *Helper) Address() common.Address { return h.address }

// Owner returns the helper's owner.
func (h *Helper) Owner() common.Address { return h.owner }

// RegisterPortfolio makes p addressable as a VaultTypePortfolio target.
func (h *Helper) RegisterPortfolio(p Portfolio) {
	h.portfolios[p.Address()] = p
}

// Multicall runs req for caller atomically and returns one ABI-encoded
// result per step.
func (h *Helper) Multicall(caller common.Address, req Request) ([][]byte, error) {
	var results [][]byte
	err := h.guard(func() error {
		return h.env.Atomic(func() error {
			out, swaps, err := h.run(caller, req)
			if err != nil {
				return err
			}
			results = out
			h.env.Emit(h.address, domain.Multicall{Caller: caller, Vault: req.Vault, Steps: len(req.Steps), Swaps: swaps})
			return nil
		})
	})
	outcome := "success"
	if err != nil {
		outcome = "reverted"
		h.logger.Warn("multicall reverted",
			zap.String("caller", caller.Hex()),
			zap.Stringer("vaultType", req.VaultType),
			zap.Error(err))
		observability.RecordCallReverted("multicall", vaulterrors.Label(err))
	}
	observability.RecordMulticall(outcome, len(req.Steps))
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Preview runs req in a simulation scope. Given the same state it returns
// exactly what Multicall would.
func (h *Helper) Preview(caller common.Address, req Request) ([][]byte, error) {
	var results [][]byte
	err := h.guard(func() error {
		return h.env.Simulate(func() error {
			out, _, err := h.run(caller, req)
			results = out
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// RescueFund sends amount of token held by the helper to the owner.
func (h *Helper) RescueFund(caller, token common.Address, amount *uint256.Int) error {
	return h.guard(func() error {
		return h.env.Atomic(func() error {
			if caller != h.owner {
				return errors.Wrap(vaulterrors.ErrCallerIsNotOwner, caller.Hex())
			}
			if err := h.env.Bank().Transfer(token, h.address, h.owner, amount); err != nil {
				return err
			}
			h.env.Emit(h.address, domain.FundRescued{Token: token, Amount: amount.Clone(), To: h.owner})
			return nil
		})
	})
}

// RescueNative sends amount of native currency held by the helper to the owner.
func (h *Helper) RescueNative(caller common.Address, amount *uint256.Int) error {
	return h.RescueFund(caller, chain.NativeToken, amount)
}

func (h *Helper) guard(fn func() error) error {
	if h.locked {
		return errors.Wrap(vaulterrors.ErrNestedCall, "multicall already in progress")
	}
	h.locked = true
	defer func() { h.locked = false }()
	return fn()
}

func (h *Helper) run(caller common.Address, req Request) ([][]byte, int, error) {
	s, err := h.newSession(caller, req)
	if err != nil {
		return nil, 0, err
	}
	if err := s.pullInputs(); err != nil {
		return nil, 0, err
	}
	results := make([][]byte, len(req.Steps))
	for i, data := range req.Steps {
		out, err := s.execute(data)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "step %d", i)
		}
		results[i] = out
	}
	if err := s.checkOutputs(); err != nil {
		return nil, 0, err
	}
	if err := s.refund(); err != nil {
		return nil, 0, err
	}
	return results, s.swaps, nil
}
