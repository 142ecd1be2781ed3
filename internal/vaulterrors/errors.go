// Package vaulterrors registers the vault's error taxonomy.
// Every error aborts the enclosing call scope; callers match with errors.Is.
package vaulterrors

import (
	"fmt"

	"cosmossdk.io/errors"
)

// Codespace is the error codespace of the vault core.
const Codespace = "vault"

// Registry errors.
var (
	ErrAssetAlreadyAdded        = errors.Register(Codespace, 2, "asset already added")
	ErrAssetNotFound            = errors.Register(Codespace, 3, "asset index out of bounds")
	ErrOracleNotEnabled         = errors.Register(Codespace, 4, "oracle not enabled")
	ErrBaseAssetCannotBeAdded   = errors.Register(Codespace, 5, "base asset cannot be added")
	ErrBaseAssetCannotBeRemoved = errors.Register(Codespace, 6, "base asset cannot be removed")
	ErrAssetBalanceNotZero      = errors.Register(Codespace, 7, "asset balance not zero")
	ErrInvalidAssetType         = errors.Register(Codespace, 8, "invalid asset type")
)

// Authorization errors.
var (
	ErrCallerIsNotOwner   = errors.Register(Codespace, 10, "caller is not owner")
	ErrCallerIsNotManager = errors.Register(Codespace, 11, "caller is not manager")
)

// Accounting errors.
var (
	ErrInvalidShareAmount             = errors.Register(Codespace, 20, "invalid share amount")
	ErrInsufficientAllowanceOrBalance = errors.Register(Codespace, 21, "insufficient allowance or balance")
	ErrUnknownToken                   = errors.Register(Codespace, 22, "unknown token")
	ErrArithmeticOverflow             = errors.Register(Codespace, 23, "arithmetic overflow")
)

// Fee-config errors.
var (
	ErrInvalidFeeRate = errors.Register(Codespace, 30, "invalid fee rate")
	ErrInvalidAddress = errors.Register(Codespace, 31, "invalid address")
)

// Swap errors.
var (
	ErrInvalidSwapTokens      = errors.Register(Codespace, 40, "invalid swap tokens")
	ErrInsufficientSwapResult = errors.Register(Codespace, 41, "insufficient swap result")
	ErrExecuteSwapFailed      = errors.Register(Codespace, 42, "execute swap failed")
	ErrInvalidSwapPath        = errors.Register(Codespace, 43, "invalid swap path")
)

// Deadline errors.
var (
	ErrOperationExpired = errors.Register(Codespace, 50, "operation expired")
)

// Call composition errors.
var (
	ErrNestedCall         = errors.Register(Codespace, 60, "nested call not allowed")
	ErrInvalidLength      = errors.Register(Codespace, 61, "invalid array length")
	ErrInvalidStep        = errors.Register(Codespace, 62, "invalid step")
	ErrInsufficientOutput = errors.Register(Codespace, 63, "insufficient output")
	ErrInvalidVaultType   = errors.Register(Codespace, 64, "invalid vault type")
)

// Label returns "codespace:code" of err for metrics labels. Errors outside
// the registered taxonomy map to the SDK's undefined codespace.
func Label(err error) string {
	codespace, code, _ := errors.ABCIInfo(err, false)
	return fmt.Sprintf("%s:%d", codespace, code)
}
