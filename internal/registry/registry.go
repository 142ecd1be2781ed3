// Package registry holds the ordered asset catalogue of a vault.
//
// Slot 0 is the base asset and is permanent. Removing any other asset marks
// its slot unregistered instead of compacting the list, so indices of every
// other slot stay stable; adding the same token again reuses its slot.
package registry

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/vaulterrors"
)

// PriceChecker reports whether a token can be valued in base units.
type PriceChecker interface {
	IsOracleEnabled(token common.Address) bool
}

// Registry is the vault's asset slot arena plus an address index.
type Registry struct {
	assets []domain.Asset
	index  map[common.Address]int
}

// New creates a registry whose first slot is base.
func New(base common.Address) (*Registry, error) {
	if base == (common.Address{}) {
		return nil, errors.Wrap(vaulterrors.ErrInvalidAddress, "base asset")
	}
	return &Registry{
		assets: []domain.Asset{{Token: base, Kind: domain.AssetKindBase}},
		index:  map[common.Address]int{base: 0},
	}, nil
}

// Base returns the base asset token.
func (r *Registry) Base() common.Address {
	return r.assets[0].Token
}

// Len returns the number of slots, including unregistered ones.
func (r *Registry) Len() int {
	return len(r.assets)
}

// Count returns the number of registered slots.
func (r *Registry) Count() int {
	n := 0
	for _, a := range r.assets {
		if a.Kind != domain.AssetKindUnregistered {
			n++
		}
	}
	return n
}

// Asset returns slot i.
func (r *Registry) Asset(i int) (domain.Asset, error) {
	if i < 0 || i >= len(r.assets) {
		return domain.Asset{}, errors.Wrapf(vaulterrors.ErrAssetNotFound, "index %d of %d", i, len(r.assets))
	}
	return r.assets[i].Clone(), nil
}

// Assets returns a copy of every slot in order.
func (r *Registry) Assets() []domain.Asset {
	out := make([]domain.Asset, len(r.assets))
	for i, a := range r.assets {
		out[i] = a.Clone()
	}
	return out
}

// Kind returns the kind registered for token, or AssetKindUnregistered.
func (r *Registry) Kind(token common.Address) domain.AssetKind {
	i, ok := r.index[token]
	if !ok {
		return domain.AssetKindUnregistered
	}
	return r.assets[i].Kind
}

// IndexOf returns the slot of token if it is currently registered.
func (r *Registry) IndexOf(token common.Address) (int, bool) {
	i, ok := r.index[token]
	if !ok || r.assets[i].Kind == domain.AssetKindUnregistered {
		return 0, false
	}
	return i, true
}

// Contains reports whether token is currently registered.
func (r *Registry) Contains(token common.Address) bool {
	_, ok := r.IndexOf(token)
	return ok
}

// Add registers asset and returns its slot. Priced kinds must be valued by
// prices: an atomic token directly, a composite through each of its legs.
func (r *Registry) Add(asset domain.Asset, prices PriceChecker) (int, error) {
	if asset.Token == (common.Address{}) {
		return 0, errors.Wrap(vaulterrors.ErrInvalidAddress, "asset token")
	}
	if asset.Kind == domain.AssetKindBase {
		return 0, errors.Wrap(vaulterrors.ErrBaseAssetCannotBeAdded, asset.Token.Hex())
	}
	if !asset.Kind.IsValid() {
		return 0, errors.Wrapf(vaulterrors.ErrInvalidAssetType, "kind %d", asset.Kind)
	}
	if r.Contains(asset.Token) {
		return 0, errors.Wrap(vaulterrors.ErrAssetAlreadyAdded, asset.Token.Hex())
	}
	if err := r.checkPricing(asset, prices); err != nil {
		return 0, err
	}

	if i, ok := r.index[asset.Token]; ok {
		r.assets[i] = asset.Clone()
		return i, nil
	}
	r.assets = append(r.assets, asset.Clone())
	i := len(r.assets) - 1
	r.index[asset.Token] = i
	return i, nil
}

func (r *Registry) checkPricing(asset domain.Asset, prices PriceChecker) error {
	priced := func(token common.Address) bool {
		return token == r.Base() || (prices != nil && prices.IsOracleEnabled(token))
	}
	switch asset.Kind {
	case domain.AssetKindAtomic:
		if !priced(asset.Token) {
			return errors.Wrap(vaulterrors.ErrOracleNotEnabled, asset.Token.Hex())
		}
	case domain.AssetKindCompositePair, domain.AssetKindLendingDeposit:
		want := 2
		if asset.Kind == domain.AssetKindLendingDeposit {
			want = 1
		}
		if len(asset.Legs) != want {
			return errors.Wrapf(vaulterrors.ErrInvalidAssetType, "%s expects %d legs, got %d", asset.Kind, want, len(asset.Legs))
		}
		for _, leg := range asset.Legs {
			if !priced(leg) {
				return errors.Wrapf(vaulterrors.ErrOracleNotEnabled, "leg %s of %s", leg.Hex(), asset.Token.Hex())
			}
		}
	}
	return nil
}

// Remove unregisters slot i. balance is the vault's current holding of it.
func (r *Registry) Remove(i int, balance *uint256.Int) (domain.Asset, error) {
	if i == 0 {
		return domain.Asset{}, vaulterrors.ErrBaseAssetCannotBeRemoved
	}
	asset, err := r.Asset(i)
	if err != nil {
		return domain.Asset{}, err
	}
	if asset.Kind == domain.AssetKindUnregistered {
		return domain.Asset{}, errors.Wrapf(vaulterrors.ErrAssetNotFound, "slot %d is not registered", i)
	}
	if balance != nil && !balance.IsZero() {
		return domain.Asset{}, errors.Wrapf(vaulterrors.ErrAssetBalanceNotZero, "%s holds %s", asset.Token.Hex(), balance.Dec())
	}
	r.assets[i] = domain.Asset{Token: asset.Token, Kind: domain.AssetKindUnregistered}
	return asset, nil
}

type snapshot struct {
	assets []domain.Asset
	index  map[common.Address]int
}

// Snapshot implements chain.Journaled.
func (r *Registry) Snapshot() any {
	idx := make(map[common.Address]int, len(r.index))
	for k, v := range r.index {
		idx[k] = v
	}
	return snapshot{assets: r.Assets(), index: idx}
}

// Restore implements chain.Journaled.
func (r *Registry) Restore(s any) {
	snap := s.(snapshot)
	r.assets = snap.assets
	r.index = snap.index
}
