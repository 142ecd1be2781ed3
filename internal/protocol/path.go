package protocol

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	addrSize = common.AddressLength
	feeSize  = 3
	hopSize  = addrSize + feeSize
)

// ErrInvalidPath is returned for malformed encoded paths.
var ErrInvalidPath = errors.New("invalid swap path")

// EncodePath packs tokens and fee tiers as token|fee|token|...|token.
func EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 || len(fees) != len(tokens)-1 {
		return nil, fmt.Errorf("%w: %d tokens, %d fees", ErrInvalidPath, len(tokens), len(fees))
	}
	out := make([]byte, 0, addrSize+len(fees)*hopSize)
	for i, fee := range fees {
		if fee >= 1<<24 {
			return nil, fmt.Errorf("%w: fee %d exceeds 24 bits", ErrInvalidPath, fee)
		}
		out = append(out, tokens[i].Bytes()...)
		out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
	}
	out = append(out, tokens[len(tokens)-1].Bytes()...)
	return out, nil
}

// DecodePath unpacks an encoded path.
func DecodePath(path []byte) ([]common.Address, []uint32, error) {
	if len(path) < addrSize+hopSize || (len(path)-addrSize)%hopSize != 0 {
		return nil, nil, fmt.Errorf("%w: length %d", ErrInvalidPath, len(path))
	}
	hops := (len(path) - addrSize) / hopSize
	tokens := make([]common.Address, 0, hops+1)
	fees := make([]uint32, 0, hops)
	for i := 0; i < hops; i++ {
		off := i * hopSize
		tokens = append(tokens, common.BytesToAddress(path[off:off+addrSize]))
		f := path[off+addrSize : off+hopSize]
		fees = append(fees, uint32(f[0])<<16|uint32(f[1])<<8|uint32(f[2]))
	}
	tokens = append(tokens, common.BytesToAddress(path[len(path)-addrSize:]))
	return tokens, fees, nil
}

// CalculateSwapPath encodes a route given in swap order. Exact-output routes
// are encoded from the output token back to the input token.
func CalculateSwapPath(isExactInput bool, tokens []common.Address, fees []uint32) ([]byte, error) {
	if isExactInput {
		return EncodePath(tokens, fees)
	}
	rt := make([]common.Address, len(tokens))
	for i, tok := range tokens {
		rt[len(tokens)-1-i] = tok
	}
	rf := make([]uint32, len(fees))
	for i, f := range fees {
		rf[len(fees)-1-i] = f
	}
	return EncodePath(rt, rf)
}

// PathEndpoints returns the input and output tokens of an encoded path.
func PathEndpoints(isExactInput bool, path []byte) (src, dst common.Address, err error) {
	tokens, _, err := DecodePath(path)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	first, last := tokens[0], tokens[len(tokens)-1]
	if isExactInput {
		return first, last, nil
	}
	return last, first, nil
}
