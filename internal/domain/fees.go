package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FeeMultiplier is the ppm denominator shared by every fee rate.
const FeeMultiplier = 1_000_000

// SecondsInYear is the annualisation constant of the management fee.
const SecondsInYear = 365 * 86400

// FeeConfig is the owner-controlled fee schedule. Rates are parts per million.
type FeeConfig struct {
	Recipient      common.Address `json:"recipient"`
	EntryFee       uint32         `json:"entryFee"`       // ppm of each deposited amount
	ExitFee        uint32         `json:"exitFee"`        // ppm of withdrawn shares
	ManagementFee  uint32         `json:"managementFee"`  // ppm per year
	PerformanceFee uint32         `json:"performanceFee"` // ppm of value increase
	DecayFactor    *uint256.Int   `json:"decayFactor"`    // Q128 per-second retention of the reserve
}

// Clone returns a deep copy of the config.
func (c FeeConfig) Clone() FeeConfig {
	out := c
	if c.DecayFactor != nil {
		out.DecayFactor = c.DecayFactor.Clone()
	}
	return out
}

// FeeKind labels the four fee types in facts and metrics.
type FeeKind string

const (
	FeeKindEntry       FeeKind = "entry"
	FeeKindExit        FeeKind = "exit"
	FeeKindManagement  FeeKind = "management"
	FeeKindPerformance FeeKind = "performance"
)
