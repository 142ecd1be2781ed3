package stub

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/fixedpoint"
	"portfolio-vault/internal/protocol"
)

const feeDenominator = 1_000_000

type poolKey struct {
	tokenIn  common.Address
	tokenOut common.Address
	fee      uint32
}

// rate converts raw units of tokenIn into raw units of tokenOut: out = in*num/den.
type rate struct {
	num *uint256.Int
	den *uint256.Int
}

// UniswapRouter implements protocol.UniswapRouter over fixed-rate pools.
// Output liquidity is the router's own bank balance; inputs are pulled with
// TransferFrom, so callers approve the router first.
type UniswapRouter struct {
	env     *chain.Env
	address common.Address
	pools   map[poolKey]rate
}

// NewUniswapRouter creates a router at address.
func NewUniswapRouter(env *chain.Env, address common.Address) *UniswapRouter {
	return &UniswapRouter{
		env:     env,
		address: address,
		pools:   make(map[poolKey]rate),
	}
}

// Address returns the router address.
func (r *UniswapRouter) Address() common.Address {
	return r.address
}

// AddPool registers a pool where one raw unit of tokenA buys num/den raw
// units of tokenB before the fee, in both directions.
func (r *UniswapRouter) AddPool(tokenA, tokenB common.Address, fee uint32, num, den *uint256.Int) {
	r.pools[poolKey{tokenA, tokenB, fee}] = rate{num: num.Clone(), den: den.Clone()}
	r.pools[poolKey{tokenB, tokenA, fee}] = rate{num: den.Clone(), den: num.Clone()}
}

// QuoteExactInput returns the output of swapping amountIn along path.
func (r *UniswapRouter) QuoteExactInput(path []byte, amountIn *uint256.Int) (*uint256.Int, error) {
	tokens, fees, err := protocol.DecodePath(path)
	if err != nil {
		return nil, err
	}
	amount := amountIn.Clone()
	for i, fee := range fees {
		amount, err = r.hopOut(tokens[i], tokens[i+1], fee, amount)
		if err != nil {
			return nil, err
		}
	}
	return amount, nil
}

// ExactInput swaps amountIn of the path's first token for its last token.
func (r *UniswapRouter) ExactInput(from common.Address, path []byte, amountIn, amountOutMinimum *uint256.Int, deadline uint64) (*uint256.Int, error) {
	if deadline < r.env.Now() {
		return nil, ErrTransactionTooOld
	}
	tokens, _, err := protocol.DecodePath(path)
	if err != nil {
		return nil, err
	}
	out, err := r.QuoteExactInput(path, amountIn)
	if err != nil {
		return nil, err
	}
	if out.Lt(amountOutMinimum) {
		return nil, fmt.Errorf("%w: %s < %s", ErrTooLittleReceived, out.Dec(), amountOutMinimum.Dec())
	}
	if err := r.settle(from, tokens[0], amountIn, tokens[len(tokens)-1], out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExactOutput buys amountOut of the path's first token, paying with its last
// token; the path is encoded output first.
func (r *UniswapRouter) ExactOutput(from common.Address, path []byte, amountOut, amountInMaximum *uint256.Int, deadline uint64) (*uint256.Int, error) {
	if deadline < r.env.Now() {
		return nil, ErrTransactionTooOld
	}
	tokens, fees, err := protocol.DecodePath(path)
	if err != nil {
		return nil, err
	}
	amount := amountOut.Clone()
	for i, fee := range fees {
		amount, err = r.hopIn(tokens[i+1], tokens[i], fee, amount)
		if err != nil {
			return nil, err
		}
	}
	if amount.Gt(amountInMaximum) {
		return nil, fmt.Errorf("%w: %s > %s", ErrTooMuchRequested, amount.Dec(), amountInMaximum.Dec())
	}
	if err := r.settle(from, tokens[len(tokens)-1], amount, tokens[0], amountOut); err != nil {
		return nil, err
	}
	return amount, nil
}

func (r *UniswapRouter) settle(from, tokenIn common.Address, amountIn *uint256.Int, tokenOut common.Address, amountOut *uint256.Int) error {
	bank := r.env.Bank()
	if err := bank.TransferFrom(tokenIn, r.address, from, r.address, amountIn); err != nil {
		return err
	}
	return bank.Transfer(tokenOut, r.address, from, amountOut)
}

func (r *UniswapRouter) hopOut(tokenIn, tokenOut common.Address, fee uint32, amountIn *uint256.Int) (*uint256.Int, error) {
	p, ok := r.pools[poolKey{tokenIn, tokenOut, fee}]
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s (%d)", ErrUnknownPool, tokenIn.Hex(), tokenOut.Hex(), fee)
	}
	num := new(uint256.Int).Mul(p.num, uint256.NewInt(uint64(feeDenominator-fee)))
	den := new(uint256.Int).Mul(p.den, uint256.NewInt(feeDenominator))
	return fixedpoint.MulDiv(amountIn, num, den)
}

func (r *UniswapRouter) hopIn(tokenIn, tokenOut common.Address, fee uint32, amountOut *uint256.Int) (*uint256.Int, error) {
	p, ok := r.pools[poolKey{tokenIn, tokenOut, fee}]
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s (%d)", ErrUnknownPool, tokenIn.Hex(), tokenOut.Hex(), fee)
	}
	num := new(uint256.Int).Mul(p.den, uint256.NewInt(feeDenominator))
	den := new(uint256.Int).Mul(p.num, uint256.NewInt(uint64(feeDenominator-fee)))
	return fixedpoint.MulDivUp(amountOut, num, den)
}

var _ protocol.UniswapRouter = (*UniswapRouter)(nil)
