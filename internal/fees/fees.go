// Package fees implements the vault's four-fee model.
//
// Entry and exit fees are charged per call. The management fee accrues as a
// continuous dilution of all holders. The performance fee is assessed against
// a high-water mark of vault value and parked in a reserve that is released
// to the recipient along an exponential decay curve.
//
// The high-water mark is kept as a total value. Supply changes from deposits
// and withdrawals rebase it by the supply ratio so the per-share mark is
// unchanged; fee minting does not.
package fees

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/fixedpoint"
	"portfolio-vault/internal/vaulterrors"
)

var (
	feeMultiplier = uint256.NewInt(domain.FeeMultiplier)
	secondsInYear = uint256.NewInt(domain.SecondsInYear)
)

// State is the mutable fee bookkeeping of a vault.
type State struct {
	Config                    domain.FeeConfig
	HighWaterMark             *uint256.Int // total value, base units
	Reserve                   *uint256.Int // accrued, unreleased performance fee shares
	LastCollectManagementFee  uint64
	LastCollectPerformanceFee uint64
}

func (s State) clone() State {
	out := s
	out.Config = s.Config.Clone()
	out.HighWaterMark = s.HighWaterMark.Clone()
	out.Reserve = s.Reserve.Clone()
	return out
}

// Engine computes fees and owns the fee state.
type Engine struct {
	cap   uint32
	state State
}

// ValidateConfig checks cfg against cap. The entry and exit fees share the
// cap since both are charged on one round trip.
func ValidateConfig(cfg domain.FeeConfig, cap uint32) error {
	if uint64(cfg.EntryFee)+uint64(cfg.ExitFee) > uint64(cap) {
		return errors.Wrapf(vaulterrors.ErrInvalidFeeRate, "entry %d + exit %d exceeds cap %d", cfg.EntryFee, cfg.ExitFee, cap)
	}
	if cfg.ManagementFee > cap {
		return errors.Wrapf(vaulterrors.ErrInvalidFeeRate, "management fee %d exceeds cap %d", cfg.ManagementFee, cap)
	}
	if cfg.PerformanceFee > cap {
		return errors.Wrapf(vaulterrors.ErrInvalidFeeRate, "performance fee %d exceeds cap %d", cfg.PerformanceFee, cap)
	}
	if cfg.DecayFactor != nil && !cfg.DecayFactor.Lt(fixedpoint.Q128) {
		return errors.Wrapf(vaulterrors.ErrInvalidFeeRate, "decay factor %s is not below 2^128", cfg.DecayFactor.Dec())
	}
	if cfg.Recipient == (common.Address{}) {
		return errors.Wrap(vaulterrors.ErrInvalidAddress, "fee recipient")
	}
	return nil
}

// New creates an engine with the given cap and initial config. Both accrual
// clocks start at now.
func New(cap uint32, cfg domain.FeeConfig, now uint64) (*Engine, error) {
	if cap >= domain.FeeMultiplier {
		return nil, errors.Wrapf(vaulterrors.ErrInvalidFeeRate, "fee cap %d", cap)
	}
	if err := ValidateConfig(cfg, cap); err != nil {
		return nil, err
	}
	return &Engine{
		cap: cap,
		state: State{
			Config:                    normalize(cfg),
			HighWaterMark:             new(uint256.Int),
			Reserve:                   new(uint256.Int),
			LastCollectManagementFee:  now,
			LastCollectPerformanceFee: now,
		},
	}, nil
}

func normalize(cfg domain.FeeConfig) domain.FeeConfig {
	out := cfg.Clone()
	if out.DecayFactor == nil {
		out.DecayFactor = new(uint256.Int)
	}
	return out
}

// Cap returns the fee cap in ppm.
func (e *Engine) Cap() uint32 { return e.cap }

// Config returns a copy of the active config.
func (e *Engine) Config() domain.FeeConfig { return e.state.Config.Clone() }

// State returns a copy of the fee state.
func (e *Engine) State() State { return e.state.clone() }

// HighWaterMark returns the high-water mark as a total value.
func (e *Engine) HighWaterMark() *uint256.Int { return e.state.HighWaterMark.Clone() }

// Reserve returns the unreleased performance fee shares.
func (e *Engine) Reserve() *uint256.Int { return e.state.Reserve.Clone() }

// SetConfig replaces the config. Callers accrue under the old config first.
func (e *Engine) SetConfig(cfg domain.FeeConfig) error {
	if err := ValidateConfig(cfg, e.cap); err != nil {
		return err
	}
	e.state.Config = normalize(cfg)
	return nil
}

// EntryFee returns ceil(amount * entryFee / 1e6).
func (e *Engine) EntryFee(amount *uint256.Int) (*uint256.Int, error) {
	return ppm(amount, e.state.Config.EntryFee)
}

// ExitFee returns ceil(shares * exitFee / 1e6).
func (e *Engine) ExitFee(shares *uint256.Int) (*uint256.Int, error) {
	return ppm(shares, e.state.Config.ExitFee)
}

func ppm(x *uint256.Int, rate uint32) (*uint256.Int, error) {
	if rate == 0 || x.IsZero() {
		return new(uint256.Int), nil
	}
	v, err := fixedpoint.MulDivUp(x, uint256.NewInt(uint64(rate)), feeMultiplier)
	if err != nil {
		return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
	}
	return v, nil
}

// AccrueManagementFee returns the shares to mint for the time elapsed since
// the last accrual and moves the accrual clock to now:
//
//	ceil(S * t * r / (Y * 1e6 - t * r))
//
// Elapsed time is clamped so the denominator stays positive.
func (e *Engine) AccrueManagementFee(supply *uint256.Int, now uint64) (*uint256.Int, error) {
	last := e.state.LastCollectManagementFee
	if now > last {
		e.state.LastCollectManagementFee = now
	}
	rate := uint64(e.state.Config.ManagementFee)
	if now <= last || rate == 0 || supply.IsZero() {
		return new(uint256.Int), nil
	}

	full := new(uint256.Int).Mul(secondsInYear, feeMultiplier)
	tr := new(uint256.Int).Mul(uint256.NewInt(now-last), uint256.NewInt(rate))
	if !tr.Lt(full) {
		tr.Sub(full, uint256.NewInt(1))
	}
	den := new(uint256.Int).Sub(full, tr)
	v, err := fixedpoint.MulDivUp(supply, tr, den)
	if err != nil {
		return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
	}
	return v, nil
}

// AccruePerformanceFee assesses the fee on value above the high-water mark
// and adds the fee shares to the reserve:
//
//	inc = V - HWM
//	ceil(S * inc * p / (V * 1e6 - inc * p))
//
// so the fee shares own inc*p/1e6 of the vault. The mark is raised to V. An
// unset mark is initialised to V without charging.
func (e *Engine) AccruePerformanceFee(supply, totalValue *uint256.Int, now uint64) (*uint256.Int, error) {
	if e.state.Reserve.IsZero() {
		e.state.LastCollectPerformanceFee = now
	}
	if supply.IsZero() {
		return new(uint256.Int), nil
	}
	if e.state.HighWaterMark.IsZero() {
		e.state.HighWaterMark = totalValue.Clone()
		return new(uint256.Int), nil
	}
	if !totalValue.Gt(e.state.HighWaterMark) {
		return new(uint256.Int), nil
	}

	inc := new(uint256.Int).Sub(totalValue, e.state.HighWaterMark)
	e.state.HighWaterMark = totalValue.Clone()
	rate := uint64(e.state.Config.PerformanceFee)
	if rate == 0 {
		return new(uint256.Int), nil
	}

	incP, overflow := new(uint256.Int).MulOverflow(inc, uint256.NewInt(rate))
	if overflow {
		return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, "performance fee increase")
	}
	den, overflow := new(uint256.Int).MulOverflow(totalValue, feeMultiplier)
	if overflow {
		return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, "performance fee value")
	}
	den.Sub(den, incP)
	v, err := fixedpoint.MulDivUp(supply, incP, den)
	if err != nil {
		return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
	}
	e.state.Reserve.Add(e.state.Reserve, v)
	return v, nil
}

// ReleasePerformanceFee removes reserve * (1 - decay^dt) from the reserve,
// where dt is the time since the last release, and returns it.
func (e *Engine) ReleasePerformanceFee(now uint64) (*uint256.Int, error) {
	last := e.state.LastCollectPerformanceFee
	if now > last {
		e.state.LastCollectPerformanceFee = now
	}
	if now <= last || e.state.Reserve.IsZero() {
		return new(uint256.Int), nil
	}
	retained, err := fixedpoint.Power128(e.state.Config.DecayFactor, now-last)
	if err != nil {
		return nil, errors.Wrap(vaulterrors.ErrInvalidFeeRate, err.Error())
	}
	remaining, err := fixedpoint.MulDiv(e.state.Reserve, retained, fixedpoint.Q128)
	if err != nil {
		return nil, errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
	}
	released := new(uint256.Int).Sub(e.state.Reserve, remaining)
	e.state.Reserve = remaining
	return released, nil
}

// RebaseHighWaterMark scales the mark by newSupply/oldSupply after a deposit
// or withdrawal. Growth rounds down and shrinkage rounds up, so a withdrawal
// never lowers the per-share mark.
func (e *Engine) RebaseHighWaterMark(oldSupply, newSupply *uint256.Int) error {
	if oldSupply.IsZero() || e.state.HighWaterMark.IsZero() {
		return nil
	}
	if newSupply.IsZero() {
		e.state.HighWaterMark = new(uint256.Int)
		return nil
	}
	round := fixedpoint.MulDiv
	if newSupply.Lt(oldSupply) {
		round = fixedpoint.MulDivUp
	}
	hwm, err := round(e.state.HighWaterMark, newSupply, oldSupply)
	if err != nil {
		return errors.Wrap(vaulterrors.ErrArithmeticOverflow, err.Error())
	}
	e.state.HighWaterMark = hwm
	return nil
}

// SetHighWaterMark sets the mark, used when the first deposit seeds an empty vault.
func (e *Engine) SetHighWaterMark(totalValue *uint256.Int) {
	e.state.HighWaterMark = totalValue.Clone()
}

// Snapshot implements chain.Journaled.
func (e *Engine) Snapshot() any { return e.state.clone() }

// Restore implements chain.Journaled.
func (e *Engine) Restore(s any) { e.state = s.(State).clone() }
