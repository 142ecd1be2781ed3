// Package stub provides deterministic in-memory protocol collaborators.
// All balances live in the shared chain.Bank, so a reverted call scope also
// reverts whatever a stub did inside it.
package stub

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrNoPrice is returned when the oracle has no price for a token.
	ErrNoPrice = errors.New("no price for token")

	// ErrUnknownPair is returned for an unregistered composite pair.
	ErrUnknownPair = errors.New("unknown pair")

	// ErrEmptyPair is returned when depositing into a pair with no liquidity.
	ErrEmptyPair = errors.New("pair has no liquidity")

	// ErrSlippage is returned when a pair deposit or withdraw misses its bound.
	ErrSlippage = errors.New("slippage bound exceeded")

	// ErrUnknownMarket is returned for an unregistered lending market.
	ErrUnknownMarket = errors.New("unknown lending market")

	// ErrUnknownPool is returned when no pool serves a hop.
	ErrUnknownPool = errors.New("unknown pool")

	// ErrTooLittleReceived mirrors the router's minimum-output revert.
	ErrTooLittleReceived = errors.New("too little received")

	// ErrTooMuchRequested mirrors the router's maximum-input revert.
	ErrTooMuchRequested = errors.New("too much requested")

	// ErrTransactionTooOld mirrors the router's deadline revert.
	ErrTransactionTooOld = errors.New("transaction too old")

	// ErrUnknownSelector is returned for calldata the aggregator cannot decode.
	ErrUnknownSelector = errors.New("unknown selector")
)

// Address derives a deterministic contract address from a label.
func Address(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}
