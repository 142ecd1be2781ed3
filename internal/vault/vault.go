// Package vault implements a multi-asset portfolio vault: proportional
// deposits and withdrawals over an asset registry, four fee types, and
// manager-driven rebalancing through external protocols.
//
// Every mutating entry point runs in its own chain call scope. An error
// anywhere in the call reverts all of its effects.
package vault

import (
	"math"

	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/fees"
	"portfolio-vault/internal/observability"
	"portfolio-vault/internal/protocol"
	"portfolio-vault/internal/registry"
	"portfolio-vault/internal/shares"
	"portfolio-vault/internal/valuation"
	"portfolio-vault/internal/vaulterrors"
)

// NoDeadline disables the deadline check of an operation.
const NoDeadline = math.MaxUint64

// Options configures a vault deployment.
type Options struct {
	Address   common.Address // vault and share token address
	Name      string         // share token symbol
	FeeCap    uint32
	FeeConfig domain.FeeConfig
	Owner     common.Address
	Manager   common.Address

	BaseAsset  common.Address
	Assets     []common.Address // initial non-base assets
	AssetKinds []domain.AssetKind

	Oracle      protocol.Oracle
	Pairs       protocol.CompositePair // optional
	Lending     protocol.LendingPool   // optional
	Routers     []protocol.SwapRouter  // aggregator routers accepted by ExecuteSwap
	Uniswap     protocol.UniswapRouter // optional
	Recommender protocol.PathRecommender

	Logger *zap.Logger
}

// Vault is one deployed vault. It is not safe for concurrent use; the
// environment serializes calls.
type Vault struct {
	env     *chain.Env
	address common.Address
	name    string
	owner   common.Address
	manager common.Address

	registry  *registry.Registry
	valuation *valuation.Engine
	shares    *shares.Ledger
	fees      *fees.Engine

	oracle      protocol.Oracle
	pairs       protocol.CompositePair
	lending     protocol.LendingPool
	routers     map[common.Address]protocol.SwapRouter
	uniswap     protocol.UniswapRouter
	recommender protocol.PathRecommender

	logger *zap.Logger
	locked bool
}

// New deploys a vault into env. Initial assets pass the same validation as
// AddAsset, and their AssetAdded facts are emitted.
func New(env *chain.Env, opts Options) (*Vault, error) {
	if opts.Address == (common.Address{}) || opts.Owner == (common.Address{}) {
		return nil, errors.Wrap(vaulterrors.ErrInvalidAddress, "vault or owner address")
	}
	if opts.Oracle == nil {
		return nil, errors.Wrap(vaulterrors.ErrOracleNotEnabled, "no oracle configured")
	}
	if len(opts.Assets) != len(opts.AssetKinds) {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidLength, "%d assets, %d kinds", len(opts.Assets), len(opts.AssetKinds))
	}
	if _, err := env.Bank().Decimals(opts.BaseAsset); err != nil {
		return nil, errors.Wrap(err, "base asset")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reg, err := registry.New(opts.BaseAsset)
	if err != nil {
		return nil, err
	}
	feeEngine, err := fees.New(opts.FeeCap, opts.FeeConfig, env.Now())
	if err != nil {
		return nil, err
	}
	ledger, err := shares.New(env.Bank(), opts.Address, opts.Name)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		env:         env,
		address:     opts.Address,
		name:        opts.Name,
		owner:       opts.Owner,
		manager:     opts.Manager,
		registry:    reg,
		valuation:   valuation.New(opts.BaseAsset, opts.Oracle, opts.Pairs, opts.Lending),
		shares:      ledger,
		fees:        feeEngine,
		oracle:      opts.Oracle,
		pairs:       opts.Pairs,
		lending:     opts.Lending,
		routers:     make(map[common.Address]protocol.SwapRouter, len(opts.Routers)),
		uniswap:     opts.Uniswap,
		recommender: opts.Recommender,
		logger:      logger.With(zap.String("vault", opts.Address.Hex())),
	}
	for _, r := range opts.Routers {
		v.routers[r.Address()] = r
	}

	err = env.Atomic(func() error {
		for i, token := range opts.Assets {
			if err := v.addAsset(token, opts.AssetKinds[i]); err != nil {
				return err
			}
		}
		v.env.Emit(v.address, domain.FeeConfigChanged{New: feeEngine.Config()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	env.Track(v)
	env.Track(reg)
	env.Track(feeEngine)
	return v, nil
}

// call runs fn as a non-reentrant atomic call.
func (v *Vault) call(op string, fn func() error) error {
	if v.locked {
		return errors.Wrapf(vaulterrors.ErrNestedCall, "%s during another vault call", op)
	}
	v.locked = true
	defer func() { v.locked = false }()

	err := v.env.Atomic(fn)
	switch {
	case err == nil:
	case v.env.Simulating():
		// A preview that fails reverts nothing real.
		v.logger.Debug("simulated call reverted", zap.String("op", op), zap.Error(err))
	default:
		v.logger.Warn("call reverted", zap.String("op", op), zap.Error(err))
		observability.RecordCallReverted(op, vaulterrors.Label(err))
	}
	return err
}

func (v *Vault) onlyOwner(caller common.Address) error {
	if caller != v.owner {
		return errors.Wrap(vaulterrors.ErrCallerIsNotOwner, caller.Hex())
	}
	return nil
}

func (v *Vault) onlyManager(caller common.Address) error {
	if caller != v.manager {
		return errors.Wrap(vaulterrors.ErrCallerIsNotManager, caller.Hex())
	}
	return nil
}

func (v *Vault) checkDeadline(deadline uint64) error {
	if deadline < v.env.Now() {
		return errors.Wrapf(vaulterrors.ErrOperationExpired, "deadline %d, now %d", deadline, v.env.Now())
	}
	return nil
}

func (v *Vault) emit(ev domain.Event) {
	v.env.Emit(v.address, ev)
}

type roles struct {
	owner   common.Address
	manager common.Address
}

// Snapshot implements chain.Journaled for the vault's role state.
func (v *Vault) Snapshot() any {
	return roles{owner: v.owner, manager: v.manager}
}

// Restore implements chain.Journaled.
func (v *Vault) Restore(s any) {
	r := s.(roles)
	v.owner, v.manager = r.owner, r.manager
}

// Address returns the vault address, which is also its share token.
func (v *Vault) Address() common.Address { return v.address }

// Name returns the share token symbol.
func (v *Vault) Name() string { return v.name }

// Decimals returns the share token precision.
func (v *Vault) Decimals() uint8 { return shares.Decimals }

// Owner returns the owner address.
func (v *Vault) Owner() common.Address { return v.owner }

// Manager returns the manager address.
func (v *Vault) Manager() common.Address { return v.manager }

// Assets returns every asset slot, including unregistered ones.
func (v *Vault) Assets() []domain.Asset { return v.registry.Assets() }

// AssetKind returns the registered kind of token.
func (v *Vault) AssetKind(token common.Address) domain.AssetKind { return v.registry.Kind(token) }

// NumberOfAssets returns the number of registered assets.
func (v *Vault) NumberOfAssets() int { return v.registry.Count() }

// FeeConfig returns the active fee config.
func (v *Vault) FeeConfig() domain.FeeConfig { return v.fees.Config() }

// FeeCap returns the fee cap in ppm.
func (v *Vault) FeeCap() uint32 { return v.fees.Cap() }

// HighWaterMark returns the high-water mark as a total value in base units.
func (v *Vault) HighWaterMark() *uint256.Int { return v.fees.HighWaterMark() }

// PerformanceFeeReserve returns the accrued, unreleased performance fee shares.
func (v *Vault) PerformanceFeeReserve() *uint256.Int { return v.fees.Reserve() }

// LastCollectManagementFee returns the management fee accrual checkpoint.
func (v *Vault) LastCollectManagementFee() uint64 {
	return v.fees.State().LastCollectManagementFee
}

// LastCollectPerformanceFee returns the last performance fee release time.
func (v *Vault) LastCollectPerformanceFee() uint64 {
	return v.fees.State().LastCollectPerformanceFee
}

// TotalSupply returns the share supply.
func (v *Vault) TotalSupply() *uint256.Int { return v.shares.TotalSupply() }

// BalanceOf returns holder's shares.
func (v *Vault) BalanceOf(holder common.Address) *uint256.Int { return v.shares.BalanceOf(holder) }

// Allowance returns the shares spender may move for owner.
func (v *Vault) Allowance(owner, spender common.Address) *uint256.Int {
	return v.shares.Allowance(owner, spender)
}

// HighWaterMarkPerShare returns the high-water mark per whole share, in base units.
func (v *Vault) HighWaterMarkPerShare() (*uint256.Int, error) {
	supply := v.shares.TotalSupply()
	if supply.IsZero() {
		return new(uint256.Int), nil
	}
	return mulDiv(v.fees.HighWaterMark(), oneShare(), supply)
}

// Balances returns the vault's holding of each asset slot.
func (v *Vault) Balances() []*uint256.Int {
	return v.balances(v.registry.Assets())
}

func (v *Vault) balances(assets []domain.Asset) []*uint256.Int {
	out := make([]*uint256.Int, len(assets))
	for i, a := range assets {
		if a.Kind == domain.AssetKindUnregistered {
			out[i] = new(uint256.Int)
			continue
		}
		out[i] = v.env.Bank().BalanceOf(a.Token, v.address)
	}
	return out
}

// CalculateTotalValue returns the value of all holdings in base units.
func (v *Vault) CalculateTotalValue() (*uint256.Int, error) {
	assets := v.registry.Assets()
	return v.valuation.TotalValue(assets, v.balances(assets))
}

// CalculateValueComposition returns the value held in each asset slot.
func (v *Vault) CalculateValueComposition() ([]*uint256.Int, error) {
	assets := v.registry.Assets()
	return v.valuation.Composition(assets, v.balances(assets))
}

// EstimatedValueInToken returns the vault's total value expressed in token.
func (v *Vault) EstimatedValueInToken(token common.Address) (*uint256.Int, error) {
	total, err := v.CalculateTotalValue()
	if err != nil {
		return nil, err
	}
	decimals, err := v.env.Bank().Decimals(token)
	if err != nil {
		return nil, err
	}
	prices, err := v.oracle.GetBatchTwap([]common.Address{token})
	if err != nil {
		return nil, errors.Wrapf(vaulterrors.ErrOracleNotEnabled, "%s: %v", token.Hex(), err)
	}
	if prices[0].IsZero() {
		return nil, errors.Wrapf(vaulterrors.ErrOracleNotEnabled, "%s has zero price", token.Hex())
	}
	return mulDiv(total, pow10(decimals), prices[0])
}
