package stub

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/fixedpoint"
	"portfolio-vault/internal/protocol"
)

const aggregatorABIJSON = `[
	{"type":"function","name":"swap","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"srcToken","type":"address"},
		{"name":"dstToken","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"minReturn","type":"uint256"},
		{"name":"receiver","type":"address"}],
	 "outputs":[{"name":"returnAmount","type":"uint256"}]}
]`

var aggregatorABI = mustParseABI(aggregatorABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// EncodeAggregatorSwap builds calldata for Aggregator.Execute.
func EncodeAggregatorSwap(src, dst common.Address, amount, minReturn *uint256.Int, receiver common.Address) ([]byte, error) {
	return aggregatorABI.Pack("swap", src, dst, amount.ToBig(), minReturn.ToBig(), receiver)
}

// Aggregator implements protocol.SwapRouter: a 1inch-style router that
// executes ABI calldata at fixed per-pair rates.
type Aggregator struct {
	env     *chain.Env
	address common.Address
	rates   map[[2]common.Address]rate
}

// NewAggregator creates an aggregator router at address.
func NewAggregator(env *chain.Env, address common.Address) *Aggregator {
	return &Aggregator{
		env:     env,
		address: address,
		rates:   make(map[[2]common.Address]rate),
	}
}

// Address returns the router address.
func (a *Aggregator) Address() common.Address {
	return a.address
}

// SetRate sets out = in*num/den for src -> dst.
func (a *Aggregator) SetRate(src, dst common.Address, num, den *uint256.Int) {
	a.rates[[2]common.Address{src, dst}] = rate{num: num.Clone(), den: den.Clone()}
}

// Execute decodes calldata and performs the swap for from.
func (a *Aggregator) Execute(from common.Address, calldata []byte) error {
	if len(calldata) < 4 {
		return ErrUnknownSelector
	}
	method, err := aggregatorABI.MethodById(calldata[:4])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownSelector, err)
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return fmt.Errorf("unpack %s: %w", method.Name, err)
	}

	src := args[0].(common.Address)
	dst := args[1].(common.Address)
	amount, overflow := uint256.FromBig(args[2].(*big.Int))
	if overflow {
		return fmt.Errorf("swap amount overflows")
	}
	minReturn, overflow := uint256.FromBig(args[3].(*big.Int))
	if overflow {
		return fmt.Errorf("swap min return overflows")
	}
	receiver := args[4].(common.Address)

	r, ok := a.rates[[2]common.Address{src, dst}]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrUnknownPool, src.Hex(), dst.Hex())
	}
	out, err := fixedpoint.MulDiv(amount, r.num, r.den)
	if err != nil {
		return err
	}
	if out.Lt(minReturn) {
		return fmt.Errorf("%w: %s < %s", ErrTooLittleReceived, out.Dec(), minReturn.Dec())
	}

	bank := a.env.Bank()
	if err := bank.TransferFrom(src, a.address, from, a.address, amount); err != nil {
		return err
	}
	return bank.Transfer(dst, a.address, receiver, out)
}

var _ protocol.SwapRouter = (*Aggregator)(nil)
