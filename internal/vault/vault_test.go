package vault

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/protocol"
	"portfolio-vault/internal/protocol/stub"
	"portfolio-vault/internal/vaulterrors"
)

const testFeeCap = 999_999

var (
	usdc     = stub.Address("usdc")
	weth     = stub.Address("weth")
	wbtc     = stub.Address("wbtc")
	pairAddr = stub.Address("pair-usdc-weth")
	aUSDC    = stub.Address("ausdc")

	vaultAddr = stub.Address("vault")
	owner     = stub.Address("owner")
	manager   = stub.Address("manager")
	feeTo     = stub.Address("fee-recipient")
	alice     = stub.Address("alice")
	bob       = stub.Address("bob")
	lp        = stub.Address("lp")

	maxUint = new(uint256.Int).SetAllOne()
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// e returns v * 10^exp.
func e(v uint64, exp uint8) *uint256.Int {
	return new(uint256.Int).Mul(u(v), new(uint256.Int).Exp(u(10), u(uint64(exp))))
}

func dec(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

type collector struct {
	facts []domain.Fact
}

func (c *collector) Publish(facts []domain.Fact) {
	c.facts = append(c.facts, facts...)
}

func (c *collector) count(kind domain.FactKind) int {
	n := 0
	for _, f := range c.facts {
		if f.Kind() == kind {
			n++
		}
	}
	return n
}

func (c *collector) last(kind domain.FactKind) (domain.Fact, bool) {
	for i := len(c.facts) - 1; i >= 0; i-- {
		if c.facts[i].Kind() == kind {
			return c.facts[i], true
		}
	}
	return domain.Fact{}, false
}

type fixture struct {
	env     *chain.Env
	vault   *Vault
	oracle  *stub.Oracle
	pairs   *stub.Pairs
	lending *stub.Lending
	uniswap *stub.UniswapRouter
	agg     *stub.Aggregator
	facts   *collector
}

type fixtureConfig struct {
	baseDecimals uint8
	fees         domain.FeeConfig
	routers      []protocol.SwapRouter
}

type fixtureOption func(*fixtureConfig)

func withFees(cfg domain.FeeConfig) fixtureOption {
	return func(c *fixtureConfig) { c.fees = cfg }
}

func withBaseDecimals(d uint8) fixtureOption {
	return func(c *fixtureConfig) { c.baseDecimals = d }
}

func withRouter(r protocol.SwapRouter) fixtureOption {
	return func(c *fixtureConfig) { c.routers = append(c.routers, r) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{baseDecimals: 6}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.fees.Recipient = feeTo

	env := chain.NewEnv(1_700_000_000)
	facts := &collector{}
	env.Subscribe(facts)
	bank := env.Bank()
	require.NoError(t, bank.RegisterToken(usdc, "USDC", cfg.baseDecimals))
	require.NoError(t, bank.RegisterToken(weth, "WETH", 18))
	require.NoError(t, bank.RegisterToken(wbtc, "WBTC", 8))

	oracle := stub.NewOracle(env, usdc)
	// 1 WETH = 2000 USDC
	oracle.SetPrice(weth, e(2_000, cfg.baseDecimals))

	pairs := stub.NewPairs(env)
	require.NoError(t, pairs.Create(pairAddr, "LP-USDC-WETH", usdc, weth))
	lending := stub.NewLending(env, stub.Address("lending-pool"))
	require.NoError(t, lending.AddMarket(usdc, aUSDC, "aUSDC"))

	uniswap := stub.NewUniswapRouter(env, stub.Address("uniswap"))
	// 2000 USDC per WETH before the pool fee
	uniswap.AddPool(usdc, weth, 500, e(1, 18), e(2_000, cfg.baseDecimals))
	agg := stub.NewAggregator(env, stub.Address("aggregator"))
	rec := stub.NewPathRecommender()
	require.NoError(t, rec.SetRecommendedPath([]common.Address{usdc, weth}, []uint32{500}))
	require.NoError(t, rec.SetRecommendedPath([]common.Address{weth, usdc}, []uint32{500}))

	for _, holder := range []common.Address{alice, bob, lp} {
		require.NoError(t, bank.Mint(usdc, holder, e(1, 12+cfg.baseDecimals)))
		require.NoError(t, bank.Mint(weth, holder, e(1, 24)))
		require.NoError(t, bank.Approve(usdc, holder, vaultAddr, maxUint))
		require.NoError(t, bank.Approve(weth, holder, vaultAddr, maxUint))
	}
	for _, venue := range []common.Address{uniswap.Address(), agg.Address()} {
		require.NoError(t, bank.Mint(usdc, venue, e(1, 12+cfg.baseDecimals)))
		require.NoError(t, bank.Mint(weth, venue, e(1, 24)))
	}
	require.NoError(t, pairs.Seed(lp, pairAddr, e(2_000, cfg.baseDecimals), e(1, 18), e(1, 18)))

	v, err := New(env, Options{
		Address:     vaultAddr,
		Name:        "PV",
		FeeCap:      testFeeCap,
		FeeConfig:   cfg.fees,
		Owner:       owner,
		Manager:     manager,
		BaseAsset:   usdc,
		Assets:      []common.Address{weth, pairAddr, aUSDC},
		AssetKinds:  []domain.AssetKind{domain.AssetKindAtomic, domain.AssetKindCompositePair, domain.AssetKindLendingDeposit},
		Oracle:      oracle,
		Pairs:       pairs,
		Lending:     lending,
		Routers:     append([]protocol.SwapRouter{agg}, cfg.routers...),
		Uniswap:     uniswap,
		Recommender: rec,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	return &fixture{
		env:     env,
		vault:   v,
		oracle:  oracle,
		pairs:   pairs,
		lending: lending,
		uniswap: uniswap,
		agg:     agg,
		facts:   facts,
	}
}

func (f *fixture) balance(token, holder common.Address) *uint256.Int {
	return f.env.Bank().BalanceOf(token, holder)
}

// bootstrap deposits 1000 shares for alice into the empty vault.
func (f *fixture) bootstrap(t *testing.T) {
	t.Helper()
	_, err := f.vault.Deposit(alice, e(1_000, 18), NoDeadline)
	require.NoError(t, err)
}

// diversify swaps 400 USDC of vault funds into WETH.
func (f *fixture) diversify(t *testing.T) {
	t.Helper()
	path, err := protocol.EncodePath([]common.Address{usdc, weth}, []uint32{500})
	require.NoError(t, err)
	_, _, err = f.vault.UniswapV3SwapViaSwapRouter(manager, true, usdc, weth, path, NoDeadline, e(400, 6), u(0))
	require.NoError(t, err)
}

func TestNew_Validation(t *testing.T) {
	env := chain.NewEnv(1)
	require.NoError(t, env.Bank().RegisterToken(usdc, "USDC", 6))
	oracle := stub.NewOracle(env, usdc)

	_, err := New(env, Options{Address: vaultAddr, Owner: owner, BaseAsset: usdc})
	assert.ErrorIs(t, err, vaulterrors.ErrOracleNotEnabled)

	_, err = New(env, Options{Address: vaultAddr, Owner: owner, BaseAsset: usdc, Oracle: oracle,
		Assets: []common.Address{weth}})
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidLength)

	_, err = New(env, Options{Address: vaultAddr, Owner: owner, BaseAsset: usdc, Oracle: oracle, FeeCap: testFeeCap})
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidAddress, "zero fee recipient")

	v, err := New(env, Options{Address: vaultAddr, Owner: owner, BaseAsset: usdc, Oracle: oracle, FeeCap: testFeeCap,
		FeeConfig: domain.FeeConfig{Recipient: feeTo}})
	require.NoError(t, err)
	assert.Equal(t, 1, v.NumberOfAssets())
	assert.Equal(t, uint8(18), v.Decimals())
	assert.Equal(t, owner, v.Owner())
}

func TestVault_Views(t *testing.T) {
	f := newFixture(t)
	v := f.vault

	assert.Equal(t, 4, v.NumberOfAssets())
	assets := v.Assets()
	require.Len(t, assets, 4)
	assert.Equal(t, domain.AssetKindBase, assets[0].Kind)
	assert.Equal(t, []common.Address{usdc, weth}, assets[2].Legs)
	assert.Equal(t, []common.Address{usdc}, assets[3].Legs)
	assert.Equal(t, domain.AssetKindLendingDeposit, v.AssetKind(aUSDC))
	assert.Equal(t, domain.AssetKindUnregistered, v.AssetKind(wbtc))
	assert.Equal(t, uint32(testFeeCap), v.FeeCap())
	assert.Equal(t, feeTo, v.FeeConfig().Recipient)
	assert.Equal(t, 3, f.facts.count(domain.FactAssetAdded))

	f.bootstrap(t)
	total, err := v.CalculateTotalValue()
	require.NoError(t, err)
	assert.Equal(t, e(1_000, 6), total)

	inWeth, err := v.EstimatedValueInToken(weth)
	require.NoError(t, err)
	// 1000 USDC at 2000 USDC/WETH
	assert.Equal(t, e(5, 17), inWeth)

	perShare, err := v.HighWaterMarkPerShare()
	require.NoError(t, err)
	assert.Equal(t, e(1, 6), perShare)
}

func TestVault_RolesAndOwnership(t *testing.T) {
	f := newFixture(t)
	v := f.vault

	err := v.AssignManager(alice, alice)
	assert.ErrorIs(t, err, vaulterrors.ErrCallerIsNotOwner)

	require.NoError(t, v.AssignManager(owner, bob))
	assert.Equal(t, bob, v.Manager())
	fact, ok := f.facts.last(domain.FactManagerChanged)
	require.True(t, ok)
	assert.Equal(t, domain.ManagerChanged{Caller: owner, Manager: bob}, fact.Event)

	err = v.TransferOwnership(owner, common.Address{})
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidAddress)
	require.NoError(t, v.TransferOwnership(owner, alice))
	assert.Equal(t, alice, v.Owner())
	assert.ErrorIs(t, v.AssignManager(owner, owner), vaulterrors.ErrCallerIsNotOwner)
}

func TestVault_ShareTransfers(t *testing.T) {
	f := newFixture(t)
	v := f.vault
	f.bootstrap(t)

	require.NoError(t, v.Transfer(alice, bob, e(10, 18)))
	assert.Equal(t, e(10, 18), v.BalanceOf(bob))

	err := v.TransferFrom(bob, alice, bob, e(1, 18))
	assert.ErrorIs(t, err, vaulterrors.ErrInsufficientAllowanceOrBalance)

	require.NoError(t, v.Approve(alice, bob, e(1, 18)))
	assert.Equal(t, e(1, 18), v.Allowance(alice, bob))
	require.NoError(t, v.TransferFrom(bob, alice, bob, e(1, 18)))
	assert.Equal(t, e(11, 18), v.BalanceOf(bob))
}
