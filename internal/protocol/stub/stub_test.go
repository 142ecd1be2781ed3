package stub

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/protocol"
)

var (
	tokenA = Address("token-a")
	tokenB = Address("token-b")
	tokenC = Address("token-c")
	alice  = Address("alice")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func newTestEnv(t *testing.T) *chain.Env {
	t.Helper()
	env := chain.NewEnv(1_000)
	bank := env.Bank()
	require.NoError(t, bank.RegisterToken(tokenA, "A", 6))
	require.NoError(t, bank.RegisterToken(tokenB, "B", 18))
	require.NoError(t, bank.RegisterToken(tokenC, "C", 18))
	require.NoError(t, bank.Mint(tokenA, alice, u(1_000_000)))
	require.NoError(t, bank.Mint(tokenB, alice, u(1_000_000)))
	return env
}

func TestAddress_Deterministic(t *testing.T) {
	assert.Equal(t, Address("vault"), Address("vault"))
	assert.NotEqual(t, Address("vault"), Address("helper"))
	assert.NotEqual(t, common.Address{}, Address(""))
}

func TestOracle_GetValue(t *testing.T) {
	env := newTestEnv(t)
	o := NewOracle(env, tokenA)

	v, err := o.GetValue(tokenA, u(123))
	require.NoError(t, err)
	assert.Equal(t, uint64(123), v.Uint64())

	_, err = o.GetValue(tokenB, u(1))
	assert.ErrorIs(t, err, ErrNoPrice)
	assert.False(t, o.IsOracleEnabled(tokenB))

	// 1 whole B (1e18) = 2 whole A (2e6)
	o.SetPrice(tokenB, u(2_000_000))
	assert.True(t, o.IsOracleEnabled(tokenB))
	oneB := new(uint256.Int).Exp(u(10), u(18))
	v, err = o.GetValue(tokenB, oneB)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), v.Uint64())

	prices, err := o.GetBatchTwap([]common.Address{tokenA, tokenB})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), prices[0].Uint64())
	assert.Equal(t, uint64(2_000_000), prices[1].Uint64())

	o.Disable(tokenB)
	assert.False(t, o.IsOracleEnabled(tokenB))
}

func TestPairs_DepositWithdraw(t *testing.T) {
	env := newTestEnv(t)
	pairs := NewPairs(env)
	pair := Address("pair-ab")
	require.NoError(t, pairs.Create(pair, "LP-AB", tokenA, tokenB))
	require.NoError(t, pairs.Seed(alice, pair, u(1_000), u(3_000), u(100)))

	maxShares, err := pairs.MaxShares(pair, u(100), u(600))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), maxShares.Uint64())

	used0, used1, err := pairs.Deposit(alice, pair, u(10), u(100), u(300))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), used0.Uint64())
	assert.Equal(t, uint64(300), used1.Uint64())
	assert.Equal(t, uint64(110), env.Bank().BalanceOf(pair, alice).Uint64())

	_, _, err = pairs.Deposit(alice, pair, u(10), u(99), u(300))
	assert.ErrorIs(t, err, ErrSlippage)

	got0, got1, err := pairs.Withdraw(alice, pair, u(11), u(0), u(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(110), got0.Uint64())
	assert.Equal(t, uint64(330), got1.Uint64())

	_, _, err = pairs.Tokens(Address("nope"))
	assert.ErrorIs(t, err, ErrUnknownPair)
}

func TestLending_SupplyWithdraw(t *testing.T) {
	env := newTestEnv(t)
	pool := NewLending(env, Address("pool"))
	aToken := Address("aA")
	require.NoError(t, pool.AddMarket(tokenA, aToken, "aA"))

	dec, err := env.Bank().Decimals(aToken)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), dec)

	_, err = pool.Supply(alice, tokenA, u(500))
	require.NoError(t, err)
	assert.Equal(t, uint64(500), env.Bank().BalanceOf(aToken, alice).Uint64())

	require.NoError(t, pool.Accrue(aToken, alice, u(20)))

	got, err := pool.Withdraw(alice, tokenA, new(uint256.Int).SetAllOne())
	require.NoError(t, err)
	assert.Equal(t, uint64(520), got.Uint64())
	assert.True(t, env.Bank().BalanceOf(aToken, alice).IsZero())
	assert.Equal(t, uint64(1_000_020), env.Bank().BalanceOf(tokenA, alice).Uint64())

	_, err = pool.DepositTokenOf(tokenC)
	assert.ErrorIs(t, err, ErrUnknownMarket)
}

func newTestRouter(t *testing.T, env *chain.Env) *UniswapRouter {
	t.Helper()
	router := NewUniswapRouter(env, Address("uniswap"))
	router.AddPool(tokenA, tokenB, 3000, u(2), u(1))
	router.AddPool(tokenB, tokenC, 500, u(1), u(1))
	require.NoError(t, env.Bank().Mint(tokenA, router.Address(), u(1_000_000)))
	require.NoError(t, env.Bank().Mint(tokenB, router.Address(), u(1_000_000)))
	require.NoError(t, env.Bank().Mint(tokenC, router.Address(), u(1_000_000)))
	require.NoError(t, env.Bank().Approve(tokenA, alice, router.Address(), new(uint256.Int).SetAllOne()))
	return router
}

func TestUniswapRouter_ExactInput(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(t, env)

	path, err := protocol.EncodePath([]common.Address{tokenA, tokenB}, []uint32{3000})
	require.NoError(t, err)

	quote, err := router.QuoteExactInput(path, u(1_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_994), quote.Uint64())

	_, err = router.ExactInput(alice, path, u(1_000), u(1_995), env.Now())
	assert.ErrorIs(t, err, ErrTooLittleReceived)

	_, err = router.ExactInput(alice, path, u(1_000), u(0), env.Now()-1)
	assert.ErrorIs(t, err, ErrTransactionTooOld)

	out, err := router.ExactInput(alice, path, u(1_000), u(1_994), env.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_994), out.Uint64())
	assert.Equal(t, uint64(999_000), env.Bank().BalanceOf(tokenA, alice).Uint64())
	assert.Equal(t, uint64(1_001_994), env.Bank().BalanceOf(tokenB, alice).Uint64())
}

func TestUniswapRouter_MultiHopAndExactOutput(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(t, env)

	tokens := []common.Address{tokenA, tokenB, tokenC}
	fees := []uint32{3000, 500}
	in, err := protocol.CalculateSwapPath(true, tokens, fees)
	require.NoError(t, err)
	quote, err := router.QuoteExactInput(in, u(1_000))
	require.NoError(t, err)
	// 1000 A -> 1994 B -> 1994*0.9995 = 1993 C
	assert.Equal(t, uint64(1_993), quote.Uint64())

	pathAB, err := protocol.CalculateSwapPath(false, []common.Address{tokenA, tokenB}, []uint32{3000})
	require.NoError(t, err)
	_, err = router.ExactOutput(alice, pathAB, u(1_994), u(999), env.Now())
	assert.ErrorIs(t, err, ErrTooMuchRequested)

	paid, err := router.ExactOutput(alice, pathAB, u(1_994), u(1_000), env.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), paid.Uint64())
}

func TestAggregator_Execute(t *testing.T) {
	env := newTestEnv(t)
	agg := NewAggregator(env, Address("aggregator"))
	agg.SetRate(tokenA, tokenB, u(3), u(1))
	require.NoError(t, env.Bank().Mint(tokenB, agg.Address(), u(10_000)))

	data, err := EncodeAggregatorSwap(tokenA, tokenB, u(100), u(300), alice)
	require.NoError(t, err)

	// no allowance yet
	err = agg.Execute(alice, data)
	require.Error(t, err)

	require.NoError(t, env.Bank().Approve(tokenA, alice, agg.Address(), u(100)))
	require.NoError(t, agg.Execute(alice, data))
	assert.Equal(t, uint64(1_000_300), env.Bank().BalanceOf(tokenB, alice).Uint64())

	data, err = EncodeAggregatorSwap(tokenA, tokenB, u(100), u(301), alice)
	require.NoError(t, err)
	require.NoError(t, env.Bank().Approve(tokenA, alice, agg.Address(), u(100)))
	assert.ErrorIs(t, agg.Execute(alice, data), ErrTooLittleReceived)

	assert.ErrorIs(t, agg.Execute(alice, []byte{1, 2, 3, 4}), ErrUnknownSelector)
}

func TestPathRecommender(t *testing.T) {
	rec := NewPathRecommender()
	_, ok := rec.RecommendedPath(true, tokenA, tokenC)
	assert.False(t, ok)

	require.NoError(t, rec.SetRecommendedPath([]common.Address{tokenA, tokenB, tokenC}, []uint32{3000, 500}))
	path, ok := rec.RecommendedPath(true, tokenA, tokenC)
	require.True(t, ok)
	src, dst, err := protocol.PathEndpoints(true, path)
	require.NoError(t, err)
	assert.Equal(t, tokenA, src)
	assert.Equal(t, tokenC, dst)

	path, ok = rec.RecommendedPath(false, tokenA, tokenC)
	require.True(t, ok)
	src, dst, err = protocol.PathEndpoints(false, path)
	require.NoError(t, err)
	assert.Equal(t, tokenA, src)
	assert.Equal(t, tokenC, dst)
}

func TestWETH_WrapUnwrap(t *testing.T) {
	env := newTestEnv(t)
	weth, err := NewWETH(env, Address("weth"))
	require.NoError(t, err)
	require.NoError(t, env.Bank().Mint(chain.NativeToken, alice, u(1_000)))

	require.NoError(t, weth.Wrap(alice, u(400)))
	assert.Equal(t, uint64(400), env.Bank().BalanceOf(weth.Token(), alice).Uint64())
	assert.Equal(t, uint64(600), env.Bank().BalanceOf(chain.NativeToken, alice).Uint64())

	require.NoError(t, weth.Unwrap(alice, u(150)))
	assert.Equal(t, uint64(250), env.Bank().BalanceOf(weth.Token(), alice).Uint64())
	assert.Equal(t, uint64(750), env.Bank().BalanceOf(chain.NativeToken, alice).Uint64())

	assert.Error(t, weth.Unwrap(alice, u(251)))
}
