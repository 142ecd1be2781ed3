package stub

import (
	"github.com/ethereum/go-ethereum/common"

	"portfolio-vault/internal/protocol"
)

type route struct {
	tokens []common.Address
	fees   []uint32
}

// PathRecommender stores one recommended route per (src, dst) pair.
type PathRecommender struct {
	routes map[[2]common.Address]route
}

// NewPathRecommender creates an empty recommender.
func NewPathRecommender() *PathRecommender {
	return &PathRecommender{routes: make(map[[2]common.Address]route)}
}

// SetRecommendedPath records the route tokens[0] -> tokens[len-1].
func (p *PathRecommender) SetRecommendedPath(tokens []common.Address, fees []uint32) error {
	if _, err := protocol.EncodePath(tokens, fees); err != nil {
		return err
	}
	key := [2]common.Address{tokens[0], tokens[len(tokens)-1]}
	p.routes[key] = route{
		tokens: append([]common.Address(nil), tokens...),
		fees:   append([]uint32(nil), fees...),
	}
	return nil
}

// RecommendedPath returns the encoded route from src to dst.
func (p *PathRecommender) RecommendedPath(isExactInput bool, src, dst common.Address) ([]byte, bool) {
	r, ok := p.routes[[2]common.Address{src, dst}]
	if !ok {
		return nil, false
	}
	path, err := protocol.CalculateSwapPath(isExactInput, r.tokens, r.fees)
	if err != nil {
		return nil, false
	}
	return path, true
}

var _ protocol.PathRecommender = (*PathRecommender)(nil)
