package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"portfolio-vault/internal/domain"
)

// checkpoint accrues the management fee and then assesses the performance
// fee, both against the state at the start of the call.
func (v *Vault) checkpoint() error {
	if _, err := v.accrueManagementFee(); err != nil {
		return err
	}
	return v.accruePerformanceFee()
}

func (v *Vault) accrueManagementFee() (*uint256.Int, error) {
	feeShares, err := v.fees.AccrueManagementFee(v.shares.TotalSupply(), v.env.Now())
	if err != nil {
		return nil, err
	}
	if feeShares.IsZero() {
		return feeShares, nil
	}
	recipient := v.fees.Config().Recipient
	if err := v.shares.Mint(recipient, feeShares); err != nil {
		return nil, err
	}
	v.emit(domain.ManagementFeeCollected{Recipient: recipient, Shares: feeShares.Clone()})
	v.logger.Debug("management fee accrued", zap.String("shares", feeShares.Dec()))
	return feeShares, nil
}

func (v *Vault) accruePerformanceFee() error {
	supply := v.shares.TotalSupply()
	value := new(uint256.Int)
	if !supply.IsZero() {
		var err error
		if value, err = v.CalculateTotalValue(); err != nil {
			return err
		}
	}
	feeShares, err := v.fees.AccruePerformanceFee(supply, value, v.env.Now())
	if err != nil {
		return err
	}
	if feeShares.IsZero() {
		return nil
	}
	if err := v.shares.Mint(v.address, feeShares); err != nil {
		return err
	}
	v.emit(domain.PerformanceFeeAccrued{Shares: feeShares.Clone(), HighWaterMark: v.fees.HighWaterMark()})
	v.logger.Debug("performance fee accrued",
		zap.String("shares", feeShares.Dec()),
		zap.String("highWaterMark", value.Dec()))
	return nil
}

// CollectManagementFee mints the management fee accrued since the last
// checkpoint to the fee recipient. Anyone may call it.
func (v *Vault) CollectManagementFee() (*uint256.Int, error) {
	var out *uint256.Int
	err := v.call("collectManagementFee", func() error {
		feeShares, err := v.accrueManagementFee()
		out = feeShares
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CollectPerformanceFee checkpoints both fees and then releases the decayed
// part of the performance fee reserve to the fee recipient. Anyone may call it.
func (v *Vault) CollectPerformanceFee() (*uint256.Int, error) {
	var out *uint256.Int
	err := v.call("collectPerformanceFee", func() error {
		if err := v.checkpoint(); err != nil {
			return err
		}
		released, err := v.fees.ReleasePerformanceFee(v.env.Now())
		if err != nil {
			return err
		}
		out = released
		if released.IsZero() {
			return nil
		}
		recipient := v.fees.Config().Recipient
		if err := v.shares.Transfer(v.address, recipient, released); err != nil {
			return err
		}
		v.emit(domain.PerformanceFeeCollected{Recipient: recipient, Shares: released.Clone()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetFeeConfig replaces the fee schedule. Fees accrued so far are settled
// under the old schedule first.
func (v *Vault) SetFeeConfig(caller common.Address, cfg domain.FeeConfig) error {
	return v.call("setFeeConfig", func() error {
		if err := v.onlyOwner(caller); err != nil {
			return err
		}
		if err := v.checkpoint(); err != nil {
			return err
		}
		old := v.fees.Config()
		if err := v.fees.SetConfig(cfg); err != nil {
			return err
		}
		v.emit(domain.FeeConfigChanged{Old: old, New: v.fees.Config()})
		return nil
	})
}
