package valuation

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/protocol/stub"
)

var (
	usdc   = stub.Address("usdc")
	weth   = stub.Address("weth")
	pairUW = stub.Address("pair-usdc-weth")
	aUSDC  = stub.Address("ausdc")
	lp     = stub.Address("lp")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

type fixture struct {
	env     *chain.Env
	engine  *Engine
	oracle  *stub.Oracle
	pairs   *stub.Pairs
	lending *stub.Lending
	assets  []domain.Asset
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := chain.NewEnv(1)
	bank := env.Bank()
	require.NoError(t, bank.RegisterToken(usdc, "USDC", 6))
	require.NoError(t, bank.RegisterToken(weth, "WETH", 18))

	oracle := stub.NewOracle(env, usdc)
	// 1 WETH = 2000 USDC
	oracle.SetPrice(weth, u(2_000_000_000))

	pairs := stub.NewPairs(env)
	require.NoError(t, pairs.Create(pairUW, "LP", usdc, weth))
	require.NoError(t, bank.Mint(usdc, lp, u(1_000_000_000)))
	require.NoError(t, bank.Mint(weth, lp, u(1_000_000_000_000_000)))
	// reserves 2000 usdc units and 1e12 weth units per 100 shares
	require.NoError(t, pairs.Seed(lp, pairUW, u(2_000), u(1_000_000_000_000), u(100)))

	lending := stub.NewLending(env, stub.Address("pool"))
	require.NoError(t, lending.AddMarket(usdc, aUSDC, "aUSDC"))

	return &fixture{
		env:     env,
		engine:  New(usdc, oracle, pairs, lending),
		oracle:  oracle,
		pairs:   pairs,
		lending: lending,
		assets: []domain.Asset{
			{Token: usdc, Kind: domain.AssetKindBase},
			{Token: weth, Kind: domain.AssetKindAtomic},
			{Token: pairUW, Kind: domain.AssetKindCompositePair, Legs: []common.Address{usdc, weth}},
			{Token: aUSDC, Kind: domain.AssetKindLendingDeposit, Legs: []common.Address{usdc}},
		},
	}
}

func TestEngine_AssetValue(t *testing.T) {
	f := newFixture(t)

	v, err := f.engine.AssetValue(f.assets[0], u(500))
	require.NoError(t, err)
	assert.Equal(t, uint64(500), v.Uint64())

	// 1e12 weth units = 1e-6 WETH = 2000 usdc units
	v, err = f.engine.AssetValue(f.assets[1], u(1_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000), v.Uint64())

	// 10 pair shares = 200 usdc + 1e11 weth units (200 usdc)
	v, err = f.engine.AssetValue(f.assets[2], u(10))
	require.NoError(t, err)
	assert.Equal(t, uint64(400), v.Uint64())

	v, err = f.engine.AssetValue(f.assets[3], u(77))
	require.NoError(t, err)
	assert.Equal(t, uint64(77), v.Uint64())

	v, err = f.engine.AssetValue(domain.Asset{Token: weth}, u(1))
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestEngine_TotalValueAndComposition(t *testing.T) {
	f := newFixture(t)
	balances := []*uint256.Int{u(1_000), u(1_000_000_000_000), u(10), u(50)}

	composition, err := f.engine.Composition(f.assets, balances)
	require.NoError(t, err)
	require.Len(t, composition, 4)
	assert.Equal(t, uint64(1_000), composition[0].Uint64())
	assert.Equal(t, uint64(2_000), composition[1].Uint64())
	assert.Equal(t, uint64(400), composition[2].Uint64())
	assert.Equal(t, uint64(50), composition[3].Uint64())

	total, err := f.engine.TotalValue(f.assets, balances)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_450), total.Uint64())

	_, err = f.engine.TotalValue(f.assets, balances[:2])
	assert.Error(t, err)
}

func TestEngine_FlattenAllMergesLegs(t *testing.T) {
	f := newFixture(t)
	amounts := []*uint256.Int{u(1_000), u(5), u(10), u(50)}

	flat, err := f.engine.FlattenAll(f.assets, amounts)
	require.NoError(t, err)
	require.Len(t, flat, 2)
	assert.Equal(t, usdc, flat[0].Token)
	assert.Equal(t, uint64(1_000+200+50), flat[0].Amount.Uint64())
	assert.Equal(t, weth, flat[1].Token)
	assert.Equal(t, uint64(5+100_000_000_000), flat[1].Amount.Uint64())
}

func TestEngine_MissingPrice(t *testing.T) {
	f := newFixture(t)
	f.oracle.Disable(weth)
	_, err := f.engine.AssetValue(f.assets[1], u(1))
	assert.ErrorIs(t, err, stub.ErrNoPrice)

	v, err := f.engine.AssetValue(f.assets[1], u(0))
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}
