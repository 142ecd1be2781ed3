package vault

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/vaulterrors"
)

// AddAsset registers token as kind. Composite kinds take their legs from the
// pair or lending adapter.
func (v *Vault) AddAsset(caller, token common.Address, kind domain.AssetKind) error {
	return v.call("addAsset", func() error {
		if err := v.onlyOwner(caller); err != nil {
			return err
		}
		return v.addAsset(token, kind)
	})
}

func (v *Vault) addAsset(token common.Address, kind domain.AssetKind) error {
	if token == (common.Address{}) {
		return errors.Wrap(vaulterrors.ErrInvalidAddress, "asset token")
	}
	if token == v.address {
		return errors.Wrap(vaulterrors.ErrInvalidAddress, "vault share token cannot be an asset")
	}
	asset := domain.Asset{Token: token, Kind: kind}
	switch kind {
	case domain.AssetKindCompositePair:
		if v.pairs == nil {
			return errors.Wrap(vaulterrors.ErrInvalidAssetType, "no composite pair adapter")
		}
		t0, t1, err := v.pairs.Tokens(token)
		if err != nil {
			return errors.Wrapf(vaulterrors.ErrInvalidAssetType, "pair %s: %v", token.Hex(), err)
		}
		asset.Legs = []common.Address{t0, t1}
	case domain.AssetKindLendingDeposit:
		if v.lending == nil {
			return errors.Wrap(vaulterrors.ErrInvalidAssetType, "no lending adapter")
		}
		underlying, err := v.lending.UnderlyingOf(token)
		if err != nil {
			return errors.Wrapf(vaulterrors.ErrInvalidAssetType, "deposit token %s: %v", token.Hex(), err)
		}
		asset.Legs = []common.Address{underlying}
	}
	if kind.IsValid() && kind != domain.AssetKindBase {
		if _, err := v.env.Bank().Token(token); err != nil {
			return err
		}
	}
	if _, err := v.registry.Add(asset, v.oracle); err != nil {
		return err
	}
	v.emit(domain.AssetAdded{Asset: token, Type: kind})
	v.logger.Debug("asset added", zap.String("asset", token.Hex()), zap.Stringer("kind", kind))
	return nil
}

// RemoveAsset unregisters the asset in slot index. Its balance must be zero.
func (v *Vault) RemoveAsset(caller common.Address, index int) error {
	return v.call("removeAsset", func() error {
		if err := v.onlyOwner(caller); err != nil {
			return err
		}
		return v.removeAsset(index)
	})
}

func (v *Vault) removeAsset(index int) error {
	asset, err := v.registry.Asset(index)
	if err != nil {
		return err
	}
	balance := v.env.Bank().BalanceOf(asset.Token, v.address)
	if _, err := v.registry.Remove(index, balance); err != nil {
		return err
	}
	v.emit(domain.AssetRemoved{Asset: asset.Token})
	v.logger.Debug("asset removed", zap.String("asset", asset.Token.Hex()), zap.Int("index", index))
	return nil
}

// SwapAndRemoveAsset swaps the whole balance of the atomic asset in slot
// index into dst along path, then unregisters it.
func (v *Vault) SwapAndRemoveAsset(caller common.Address, index int, dst common.Address, path []byte, minOut *uint256.Int, deadline uint64) (*uint256.Int, error) {
	var out *uint256.Int
	err := v.call("swapAndRemoveAsset", func() error {
		if err := v.onlyOwner(caller); err != nil {
			return err
		}
		if err := v.checkDeadline(deadline); err != nil {
			return err
		}
		asset, err := v.registry.Asset(index)
		if err != nil {
			return err
		}
		if asset.Kind != domain.AssetKindAtomic {
			return errors.Wrapf(vaulterrors.ErrInvalidAssetType, "slot %d is %s", index, asset.Kind)
		}
		out = new(uint256.Int)
		balance := v.env.Bank().BalanceOf(asset.Token, v.address)
		if !balance.IsZero() {
			_, got, err := v.uniswapSwap(true, asset.Token, dst, path, deadline, balance, minOut)
			if err != nil {
				return err
			}
			out = got
		}
		return v.removeAsset(index)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
