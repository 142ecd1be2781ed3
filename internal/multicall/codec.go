package multicall

import (
	"fmt"
	"math/big"
	"strings"

	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/vaulterrors"
)

// Step names accepted by the helper.
const (
	StepDeposit           = "deposit"
	StepDepositMax        = "depositMax"
	StepWithdraw          = "withdraw"
	StepWithdrawMax       = "withdrawMax"
	StepPairDeposit       = "v3PairDeposit"
	StepPairDepositMax    = "v3PairDepositMax"
	StepPairWithdraw      = "v3PairWithdraw"
	StepPairWithdrawMax   = "v3PairWithdrawMax"
	StepAaveSupply        = "aaveSupply"
	StepAaveSupplyMax     = "aaveSupplyMax"
	StepAaveWithdraw      = "aaveWithdraw"
	StepAaveWithdrawMax   = "aaveWithdrawMax"
	StepSwap              = "swap"
	StepConvertWETH       = "convertWETH"
	StepDepositV3Pair     = "depositV3Pair"
	StepDepositV3PairMax  = "depositV3PairMax"
	StepWithdrawV3Pair    = "withdrawV3Pair"
	StepWithdrawV3PairMax = "withdrawV3PairMax"
)

const helperABIJSON = `[
	{"type":"function","name":"deposit",
	 "inputs":[{"name":"shares","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"depositMax","inputs":[],
	 "outputs":[{"name":"shares","type":"uint256"}]},
	{"type":"function","name":"withdraw",
	 "inputs":[{"name":"shares","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"withdrawMax","inputs":[],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]},

	{"type":"function","name":"v3PairDeposit",
	 "inputs":[{"name":"v3pair","type":"address"},{"name":"shares","type":"uint256"},
		{"name":"amount0Max","type":"uint256"},{"name":"amount1Max","type":"uint256"}],
	 "outputs":[{"name":"depositedAmount0","type":"uint256"},{"name":"depositedAmount1","type":"uint256"}]},
	{"type":"function","name":"v3PairDepositMax",
	 "inputs":[{"name":"v3pair","type":"address"}],
	 "outputs":[{"name":"shares","type":"uint256"}]},
	{"type":"function","name":"v3PairWithdraw",
	 "inputs":[{"name":"v3pair","type":"address"},{"name":"shares","type":"uint256"},
		{"name":"amount0Min","type":"uint256"},{"name":"amount1Min","type":"uint256"}],
	 "outputs":[{"name":"withdrawnAmount0","type":"uint256"},{"name":"withdrawnAmount1","type":"uint256"}]},
	{"type":"function","name":"v3PairWithdrawMax",
	 "inputs":[{"name":"v3pair","type":"address"}],
	 "outputs":[{"name":"withdrawnAmount0","type":"uint256"},{"name":"withdrawnAmount1","type":"uint256"}]},

	{"type":"function","name":"aaveSupply",
	 "inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"aaveSupplyMax",
	 "inputs":[{"name":"asset","type":"address"}],
	 "outputs":[{"name":"supplyAmount","type":"uint256"}]},
	{"type":"function","name":"aaveWithdraw",
	 "inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"withdrawAmount","type":"uint256"}]},
	{"type":"function","name":"aaveWithdrawMax",
	 "inputs":[{"name":"asset","type":"address"}],
	 "outputs":[{"name":"withdrawAmount","type":"uint256"}]},

	{"type":"function","name":"swap",
	 "inputs":[{"name":"srcToken","type":"address"},{"name":"dstToken","type":"address"},
		{"name":"amountInMax","type":"uint256"},{"name":"amountOutMin","type":"uint256"},
		{"name":"swapRouter","type":"address"},{"name":"data","type":"bytes"}],
	 "outputs":[{"name":"convertedAmount","type":"uint256"}]},
	{"type":"function","name":"convertWETH","inputs":[],"outputs":[]},

	{"type":"function","name":"depositV3Pair",
	 "inputs":[{"name":"shares","type":"uint256"},{"name":"amount0Max","type":"uint256"},{"name":"amount1Max","type":"uint256"}],
	 "outputs":[{"name":"depositedAmount0","type":"uint256"},{"name":"depositedAmount1","type":"uint256"}]},
	{"type":"function","name":"depositV3PairMax",
	 "inputs":[{"name":"amount0Max","type":"uint256"},{"name":"amount1Max","type":"uint256"}],
	 "outputs":[{"name":"shares","type":"uint256"}]},
	{"type":"function","name":"withdrawV3Pair",
	 "inputs":[{"name":"shares","type":"uint256"},{"name":"amount0Min","type":"uint256"},{"name":"amount1Min","type":"uint256"}],
	 "outputs":[{"name":"withdrawnAmount0","type":"uint256"},{"name":"withdrawnAmount1","type":"uint256"}]},
	{"type":"function","name":"withdrawV3PairMax",
	 "inputs":[{"name":"amount0Min","type":"uint256"},{"name":"amount1Min","type":"uint256"}],
	 "outputs":[{"name":"withdrawnAmount0","type":"uint256"},{"name":"withdrawnAmount1","type":"uint256"}]}
]`

var helperABI = mustParseABI(helperABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse helper abi: %v", err))
	}
	return parsed
}

// EncodeStep packs a step call. Amounts may be given as *uint256.Int.
func EncodeStep(name string, args ...any) ([]byte, error) {
	packed := make([]any, len(args))
	for i, a := range args {
		packed[i] = toABI(a)
	}
	data, err := helperABI.Pack(name, packed...)
	if err != nil {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidStep, "encode %s: %v", name, err)
	}
	return data, nil
}

// DecodeResult unpacks the result of step name.
func DecodeResult(name string, data []byte) ([]any, error) {
	method, ok := helperABI.Methods[name]
	if !ok {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidStep, "unknown step %q", name)
	}
	out, err := method.Outputs.Unpack(data)
	if err != nil {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidStep, "decode %s result: %v", name, err)
	}
	return out, nil
}

// DecodeAmounts unpacks a step result made only of uint256 values, or of a
// single uint256[] value.
func DecodeAmounts(name string, data []byte) ([]*uint256.Int, error) {
	values, err := DecodeResult(name, data)
	if err != nil {
		return nil, err
	}
	var out []*uint256.Int
	for _, v := range values {
		switch x := v.(type) {
		case *big.Int:
			out = append(out, fromBig(x))
		case []*big.Int:
			for _, b := range x {
				out = append(out, fromBig(b))
			}
		default:
			return nil, errors.Wrapf(vaulterrors.ErrInvalidStep, "%s result holds %T", name, v)
		}
	}
	return out, nil
}

type call struct {
	name string
	args []any
}

func decodeStep(data []byte) (call, error) {
	if len(data) < 4 {
		return call{}, errors.Wrapf(vaulterrors.ErrInvalidStep, "calldata of %d bytes", len(data))
	}
	method, err := helperABI.MethodById(data[:4])
	if err != nil {
		return call{}, errors.Wrap(vaulterrors.ErrInvalidStep, err.Error())
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return call{}, errors.Wrapf(vaulterrors.ErrInvalidStep, "unpack %s: %v", method.Name, err)
	}
	return call{name: method.Name, args: args}, nil
}

func packResult(name string, values ...any) ([]byte, error) {
	packed := make([]any, len(values))
	for i, v := range values {
		packed[i] = toABI(v)
	}
	out, err := helperABI.Methods[name].Outputs.Pack(packed...)
	if err != nil {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidStep, "encode %s result: %v", name, err)
	}
	return out, nil
}

func toABI(v any) any {
	switch x := v.(type) {
	case *uint256.Int:
		return x.ToBig()
	case []*uint256.Int:
		out := make([]*big.Int, len(x))
		for i, a := range x {
			out[i] = a.ToBig()
		}
		return out
	default:
		return v
	}
}

func fromBig(b *big.Int) *uint256.Int {
	v, _ := uint256.FromBig(b)
	return v
}

// uintArg reads argument i, which the ABI guarantees fits in 256 bits.
func (c call) uintArg(i int) *uint256.Int {
	return fromBig(c.args[i].(*big.Int))
}
