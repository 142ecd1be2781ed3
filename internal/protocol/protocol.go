// Package protocol declares the external collaborators the vault consumes.
// Implementations move tokens through the shared chain.Bank so that call-scope
// rollback covers their state.
package protocol

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Oracle prices tokens in base-asset units.
type Oracle interface {
	IsOracleEnabled(token common.Address) bool
	GetValue(token common.Address, amount *uint256.Int) (*uint256.Int, error)
	GetBatchTwap(tokens []common.Address) ([]*uint256.Int, error)
}

// CompositePair is an AMM liquidity-pair vault whose share token decomposes
// into two legs.
type CompositePair interface {
	Tokens(pair common.Address) (token0, token1 common.Address, err error)
	UnderlyingForShares(pair common.Address, shares *uint256.Int) (amount0, amount1 *uint256.Int, err error)
	// MaxShares returns the largest share amount depositable with the given leg amounts.
	MaxShares(pair common.Address, amount0, amount1 *uint256.Int) (*uint256.Int, error)
	Deposit(from, pair common.Address, shares, max0, max1 *uint256.Int) (used0, used1 *uint256.Int, err error)
	Withdraw(from, pair common.Address, shares, min0, min1 *uint256.Int) (got0, got1 *uint256.Int, err error)
}

// LendingPool is an Aave-style market with one deposit token per underlying.
type LendingPool interface {
	DepositTokenOf(underlying common.Address) (common.Address, error)
	UnderlyingOf(depositToken common.Address) (common.Address, error)
	UnderlyingForDeposit(depositToken common.Address, amount *uint256.Int) (*uint256.Int, error)
	Supply(from, underlying common.Address, amount *uint256.Int) (*uint256.Int, error)
	// Withdraw redeems amount of underlying; a maximal amount redeems the whole position.
	Withdraw(from, underlying common.Address, amount *uint256.Int) (*uint256.Int, error)
}

// SwapRouter executes opaque aggregator calldata on behalf of from.
type SwapRouter interface {
	Address() common.Address
	Execute(from common.Address, calldata []byte) error
}

// UniswapRouter swaps along an encoded multi-hop path.
type UniswapRouter interface {
	Address() common.Address
	ExactInput(from common.Address, path []byte, amountIn, amountOutMinimum *uint256.Int, deadline uint64) (*uint256.Int, error)
	ExactOutput(from common.Address, path []byte, amountOut, amountInMaximum *uint256.Int, deadline uint64) (*uint256.Int, error)
	QuoteExactInput(path []byte, amountIn *uint256.Int) (*uint256.Int, error)
}

// PathRecommender returns a known-good route between two tokens, if any.
type PathRecommender interface {
	RecommendedPath(isExactInput bool, src, dst common.Address) ([]byte, bool)
}

// WrappedNative converts between native currency and its token form.
type WrappedNative interface {
	Token() common.Address
	Wrap(from common.Address, amount *uint256.Int) error
	Unwrap(from common.Address, amount *uint256.Int) error
}
