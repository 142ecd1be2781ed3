// Package main calibrates the performance fee decay factor: the Q128
// per-second retention rate that leaves a chosen fraction of the reserve
// locked after a chosen horizon.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"portfolio-vault/internal/config"
	"portfolio-vault/internal/fixedpoint"
)

func main() {
	fs := flag.NewFlagSet("decayfactor", flag.ExitOnError)
	cfg, err := config.Load(fs, os.Args[1:], (*config.Config).RegisterDecayFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.ValidateDecay(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	seconds := cfg.DecaySeconds()
	target := fixedpoint.DecayTargetPPM(cfg.DecayRetainedPPM())

	factor, err := fixedpoint.EstimateDecayFactor(target, seconds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error estimating decay factor: %v\n", err)
		os.Exit(1)
	}
	roundTrip, err := fixedpoint.Power128(factor, seconds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error verifying decay factor: %v\n", err)
		os.Exit(1)
	}
	oneDay, err := fixedpoint.Power128(factor, 86400)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error verifying decay factor: %v\n", err)
		os.Exit(1)
	}

	diff := new(uint256.Int)
	if roundTrip.Gt(target) {
		diff.Sub(roundTrip, target)
	} else {
		diff.Sub(target, roundTrip)
	}

	fmt.Printf("Retained after %d days: %s%%\n", cfg.DecayDays, decimal.NewFromFloat(cfg.DecayRetainedPct).String())
	fmt.Printf("Horizon (seconds):      %d\n", seconds)
	fmt.Printf("Target (Q128):          %s\n", target.Dec())
	fmt.Printf("Decay factor (Q128):    %s\n", factor.Dec())
	fmt.Printf("Decay factor (hex):     %s\n", factor.Hex())
	fmt.Printf("Round trip (Q128):      %s\n", roundTrip.Dec())
	fmt.Printf("Round trip error:       %s\n", diff.Dec())
	fmt.Printf("Released after 1 day:   %s%%\n", releasedPct(oneDay).StringFixed(6))
}

// releasedPct converts a Q128 retained fraction into the released percentage.
func releasedPct(retained *uint256.Int) decimal.Decimal {
	kept := decimal.NewFromBigInt(retained.ToBig(), 0).Div(decimal.NewFromBigInt(fixedpoint.Q128.ToBig(), 0))
	return decimal.NewFromInt(1).Sub(kept).Mul(decimal.NewFromInt(100))
}
