package vault

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/vaulterrors"
)

// AssignManager sets the manager role.
func (v *Vault) AssignManager(caller, manager common.Address) error {
	return v.call("assignManager", func() error {
		if err := v.onlyOwner(caller); err != nil {
			return err
		}
		v.manager = manager
		v.emit(domain.ManagerChanged{Caller: caller, Manager: manager})
		return nil
	})
}

// TransferOwnership hands the owner role to owner.
func (v *Vault) TransferOwnership(caller, owner common.Address) error {
	return v.call("transferOwnership", func() error {
		if err := v.onlyOwner(caller); err != nil {
			return err
		}
		if owner == (common.Address{}) {
			return errors.Wrap(vaulterrors.ErrInvalidAddress, "new owner")
		}
		previous := v.owner
		v.owner = owner
		v.emit(domain.OwnershipTransferred{Previous: previous, Owner: owner})
		return nil
	})
}

// Transfer moves caller's shares to to.
func (v *Vault) Transfer(caller, to common.Address, amount *uint256.Int) error {
	return v.call("transfer", func() error {
		return v.shares.Transfer(caller, to, amount)
	})
}

// Approve lets spender move up to amount of caller's shares.
func (v *Vault) Approve(caller, spender common.Address, amount *uint256.Int) error {
	return v.call("approve", func() error {
		return v.shares.Approve(caller, spender, amount)
	})
}

// TransferFrom moves owner's shares to to on behalf of caller.
func (v *Vault) TransferFrom(caller, owner, to common.Address, amount *uint256.Int) error {
	return v.call("transferFrom", func() error {
		return v.shares.TransferFrom(caller, owner, to, amount)
	})
}
