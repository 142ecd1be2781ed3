package vault

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/protocol"
	"portfolio-vault/internal/protocol/stub"
	"portfolio-vault/internal/vaulterrors"
)

// reentrantRouter calls back into the vault from inside a swap.
type reentrantRouter struct {
	vault *Vault
}

func (r *reentrantRouter) Address() common.Address { return stub.Address("reentrant") }

func (r *reentrantRouter) Execute(from common.Address, calldata []byte) error {
	_, err := r.vault.Deposit(alice, e(1, 18), NoDeadline)
	return err
}

// idleRouter accepts any calldata and does nothing.
type idleRouter struct{}

func (idleRouter) Address() common.Address                            { return stub.Address("idle") }
func (idleRouter) Execute(from common.Address, calldata []byte) error { return nil }

func aggregatorCall(t *testing.T, amount *uint256.Int) []byte {
	t.Helper()
	data, err := stub.EncodeAggregatorSwap(usdc, weth, amount, u(0), vaultAddr)
	require.NoError(t, err)
	return data
}

func TestUniswapSwap_Validation(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	forward, err := protocol.EncodePath([]common.Address{usdc, weth}, []uint32{500})
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  common.Address
		src     common.Address
		dst     common.Address
		path    []byte
		wantErr error
	}{
		{"not manager", owner, usdc, weth, forward, vaulterrors.ErrCallerIsNotManager},
		{"same token", manager, usdc, usdc, forward, vaulterrors.ErrInvalidSwapTokens},
		{"composite token", manager, pairAddr, weth, forward, vaulterrors.ErrInvalidSwapTokens},
		{"unregistered token", manager, usdc, wbtc, forward, vaulterrors.ErrInvalidSwapTokens},
		{"path mismatch", manager, weth, usdc, forward, vaulterrors.ErrInvalidSwapPath},
		{"short path", manager, usdc, weth, []byte{1, 2, 3}, vaulterrors.ErrInvalidSwapPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.vault.UniswapV3SwapViaSwapRouter(tt.caller, true, tt.src, tt.dst, tt.path, NoDeadline, e(1, 6), u(0))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, _, err = f.vault.UniswapV3SwapViaSwapRouter(manager, true, usdc, weth, forward, f.env.Now()-1, e(1, 6), u(0))
	assert.ErrorIs(t, err, vaulterrors.ErrOperationExpired)
}

func TestUniswapSwap_ExactInputAndOutput(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	f.diversify(t)

	swap, ok := f.facts.last(domain.FactSwap)
	require.True(t, ok)
	assert.Equal(t, domain.Swap{
		Manager:   manager,
		SrcToken:  usdc,
		DstToken:  weth,
		Router:    f.uniswap.Address(),
		AmountIn:  e(400, 6),
		AmountOut: dec("199900000000000000"),
	}, swap.Event)

	// exact output paths run output first
	reverse, err := protocol.EncodePath([]common.Address{weth, usdc}, []uint32{500})
	require.NoError(t, err)
	in, out, err := f.vault.UniswapV3SwapViaSwapRouter(manager, false, usdc, weth, reverse, NoDeadline, e(1, 16), e(1_000, 6))
	require.NoError(t, err)
	assert.Equal(t, e(1, 16), out)
	assert.Equal(t, dec("20010006"), in)
	assert.True(t, f.env.Bank().Allowance(usdc, vaultAddr, f.uniswap.Address()).IsZero())

	_, _, err = f.vault.UniswapV3SwapViaSwapRouter(manager, false, usdc, weth, reverse, NoDeadline, e(1, 16), e(1, 6))
	require.Error(t, err)
}

func TestExecuteSwap(t *testing.T) {
	reentrant := &reentrantRouter{}
	f := newFixture(t, withRouter(reentrant), withRouter(idleRouter{}))
	reentrant.vault = f.vault
	f.bootstrap(t)
	amount := e(100, 6)

	t.Run("recommended route sets the floor", func(t *testing.T) {
		// 1 WETH = 2500 USDC is worse than the pool quote
		f.agg.SetRate(usdc, weth, e(1, 18), e(2_500, 6))
		_, err := f.vault.ExecuteSwap(manager, usdc, weth, amount, u(0), f.agg.Address(), aggregatorCall(t, amount), NoDeadline)
		assert.ErrorIs(t, err, vaulterrors.ErrInsufficientSwapResult)
		assert.Equal(t, e(1_000, 6), f.balance(usdc, vaultAddr))
	})

	t.Run("explicit minimum", func(t *testing.T) {
		f.agg.SetRate(usdc, weth, e(1, 18), e(2_000, 6))
		_, err := f.vault.ExecuteSwap(manager, usdc, weth, amount, e(1, 17), f.agg.Address(), aggregatorCall(t, amount), NoDeadline)
		assert.ErrorIs(t, err, vaulterrors.ErrInsufficientSwapResult)
	})

	t.Run("success", func(t *testing.T) {
		f.agg.SetRate(usdc, weth, e(1, 18), e(2_000, 6))
		out, err := f.vault.ExecuteSwap(manager, usdc, weth, amount, u(0), f.agg.Address(), aggregatorCall(t, amount), NoDeadline)
		require.NoError(t, err)
		assert.Equal(t, e(5, 16), out)
		assert.Equal(t, e(900, 6), f.balance(usdc, vaultAddr))
		assert.Equal(t, e(5, 16), f.balance(weth, vaultAddr))
		assert.True(t, f.env.Bank().Allowance(usdc, vaultAddr, f.agg.Address()).IsZero())
	})

	t.Run("router overspends", func(t *testing.T) {
		_, err := f.vault.ExecuteSwap(manager, usdc, weth, e(1, 6), u(0), f.agg.Address(), aggregatorCall(t, amount), NoDeadline)
		assert.ErrorIs(t, err, vaulterrors.ErrExecuteSwapFailed)
	})

	t.Run("unknown router", func(t *testing.T) {
		_, err := f.vault.ExecuteSwap(manager, usdc, weth, amount, u(0), stub.Address("nobody"), aggregatorCall(t, amount), NoDeadline)
		assert.ErrorIs(t, err, vaulterrors.ErrExecuteSwapFailed)
	})

	t.Run("bad calldata", func(t *testing.T) {
		_, err := f.vault.ExecuteSwap(manager, usdc, weth, amount, u(0), f.agg.Address(), []byte{0xde, 0xad}, NoDeadline)
		assert.ErrorIs(t, err, vaulterrors.ErrExecuteSwapFailed)
	})

	t.Run("router does nothing", func(t *testing.T) {
		_, err := f.vault.ExecuteSwap(manager, usdc, weth, amount, u(0), idleRouter{}.Address(), nil, NoDeadline)
		assert.ErrorIs(t, err, vaulterrors.ErrInsufficientSwapResult)
	})

	t.Run("reentrant router", func(t *testing.T) {
		supply := f.vault.TotalSupply()
		_, err := f.vault.ExecuteSwap(manager, usdc, weth, amount, u(0), reentrant.Address(), nil, NoDeadline)
		assert.ErrorIs(t, err, vaulterrors.ErrExecuteSwapFailed)
		assert.Contains(t, err.Error(), "nested")
		assert.Equal(t, supply, f.vault.TotalSupply())
	})

	t.Run("not manager", func(t *testing.T) {
		_, err := f.vault.ExecuteSwap(alice, usdc, weth, amount, u(0), f.agg.Address(), aggregatorCall(t, amount), NoDeadline)
		assert.ErrorIs(t, err, vaulterrors.ErrCallerIsNotManager)
	})
}

func TestCompositePairOps(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	f.diversify(t)
	before, err := f.vault.CalculateTotalValue()
	require.NoError(t, err)

	_, _, err = f.vault.V3PairDeposit(owner, pairAddr, e(1, 17), maxUint, maxUint)
	assert.ErrorIs(t, err, vaulterrors.ErrCallerIsNotManager)
	_, _, err = f.vault.V3PairDeposit(manager, weth, e(1, 17), maxUint, maxUint)
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidAssetType)
	_, _, err = f.vault.V3PairDeposit(manager, pairAddr, e(1, 17), e(1, 6), maxUint)
	require.Error(t, err)

	used0, used1, err := f.vault.V3PairDeposit(manager, pairAddr, e(1, 17), maxUint, maxUint)
	require.NoError(t, err)
	assert.Equal(t, e(200, 6), used0)
	assert.Equal(t, e(1, 17), used1)
	assert.Equal(t, e(1, 17), f.balance(pairAddr, vaultAddr))

	after, err := f.vault.CalculateTotalValue()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	composition, err := f.vault.CalculateValueComposition()
	require.NoError(t, err)
	assert.Equal(t, e(400, 6), composition[2])

	got0, got1, err := f.vault.V3PairWithdraw(manager, pairAddr, e(1, 17), u(0), u(0))
	require.NoError(t, err)
	assert.Equal(t, e(200, 6), got0)
	assert.Equal(t, e(1, 17), got1)
	assert.Equal(t, 1, f.facts.count(domain.FactCompositeDeposit))
	assert.Equal(t, 1, f.facts.count(domain.FactCompositeWithdraw))
}

func TestLendingOps(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)

	assert.ErrorIs(t, f.vault.AaveSupply(owner, aUSDC, e(100, 6)), vaulterrors.ErrCallerIsNotManager)
	// Positions are addressed by their deposit token, never the underlying.
	assert.ErrorIs(t, f.vault.AaveSupply(manager, usdc, e(100, 6)), vaulterrors.ErrInvalidAssetType)
	assert.ErrorIs(t, f.vault.AaveSupply(manager, wbtc, e(1, 8)), vaulterrors.ErrInvalidAssetType)
	_, err := f.vault.AaveWithdraw(manager, usdc, e(1, 6))
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidAssetType)

	require.NoError(t, f.vault.AaveSupply(manager, aUSDC, e(100, 6)))
	assert.Equal(t, e(100, 6), f.balance(aUSDC, vaultAddr))
	assert.Equal(t, e(900, 6), f.balance(usdc, vaultAddr))

	require.NoError(t, f.lending.Accrue(aUSDC, vaultAddr, e(5, 6)))
	total, err := f.vault.CalculateTotalValue()
	require.NoError(t, err)
	assert.Equal(t, e(1_005, 6), total)

	supplied, ok := f.facts.last(domain.FactLendingSupply)
	require.True(t, ok)
	assert.Equal(t, domain.LendingSupply{DepositToken: aUSDC, Underlying: usdc, Amount: e(100, 6)}, supplied.Event)

	got, err := f.vault.AaveWithdraw(manager, aUSDC, maxUint)
	require.NoError(t, err)
	assert.Equal(t, e(105, 6), got)
	assert.True(t, f.balance(aUSDC, vaultAddr).IsZero())
	fact, ok := f.facts.last(domain.FactLendingWithdraw)
	require.True(t, ok)
	assert.Equal(t, domain.LendingWithdraw{DepositToken: aUSDC, Underlying: usdc, Amount: e(105, 6)}, fact.Event)
}
