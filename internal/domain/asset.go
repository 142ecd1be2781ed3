package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AssetKind tags a vault asset slot. The zero value marks a slot that is not
// (or no longer) registered.
type AssetKind uint8

const (
	AssetKindUnregistered   AssetKind = 0
	AssetKindBase           AssetKind = 1
	AssetKindAtomic         AssetKind = 2
	AssetKindCompositePair  AssetKind = 3
	AssetKindLendingDeposit AssetKind = 4
)

// String returns the string representation of AssetKind.
func (k AssetKind) String() string {
	switch k {
	case AssetKindUnregistered:
		return "UNREGISTERED"
	case AssetKindBase:
		return "BASE"
	case AssetKindAtomic:
		return "ATOMIC"
	case AssetKindCompositePair:
		return "COMPOSITE_PAIR"
	case AssetKindLendingDeposit:
		return "LENDING_DEPOSIT"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether k is one of the registrable kinds.
func (k AssetKind) IsValid() bool {
	return k >= AssetKindBase && k <= AssetKindLendingDeposit
}

// IsComposite reports whether balances of this kind decompose into other tokens.
func (k AssetKind) IsComposite() bool {
	return k == AssetKindCompositePair || k == AssetKindLendingDeposit
}

// Asset is one slot of the vault's asset registry.
type Asset struct {
	Token common.Address   // ERC20-style token identity
	Kind  AssetKind        // slot tag
	Legs  []common.Address // underlying tokens: two for a pair, one for a lending deposit
}

// Clone returns a deep copy of the asset.
func (a Asset) Clone() Asset {
	out := a
	if a.Legs != nil {
		out.Legs = append([]common.Address(nil), a.Legs...)
	}
	return out
}

// TokenAmount is an amount of a single token.
type TokenAmount struct {
	Token  common.Address
	Amount *uint256.Int
}

// CloneAmounts deep-copies a slice of amounts.
func CloneAmounts(in []*uint256.Int) []*uint256.Int {
	if in == nil {
		return nil
	}
	out := make([]*uint256.Int, len(in))
	for i, v := range in {
		if v != nil {
			out[i] = v.Clone()
		}
	}
	return out
}
