package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FactKind names a committed state-change fact.
type FactKind string

const (
	FactAssetAdded              FactKind = "AssetAdded"
	FactAssetRemoved            FactKind = "AssetRemoved"
	FactManagerChanged          FactKind = "ManagerChanged"
	FactOwnershipTransferred    FactKind = "OwnershipTransferred"
	FactFeeConfigChanged        FactKind = "FeeConfigChanged"
	FactDeposit                 FactKind = "Deposit"
	FactWithdraw                FactKind = "Withdraw"
	FactEntryFeeCollected       FactKind = "EntryFeeCollected"
	FactExitFeeCollected        FactKind = "ExitFeeCollected"
	FactManagementFeeCollected  FactKind = "ManagementFeeCollected"
	FactPerformanceFeeAccrued   FactKind = "PerformanceFeeAccrued"
	FactPerformanceFeeCollected FactKind = "PerformanceFeeCollected"
	FactSwap                    FactKind = "Swap"
	FactCompositeDeposit        FactKind = "CompositeDeposit"
	FactCompositeWithdraw       FactKind = "CompositeWithdraw"
	FactLendingSupply           FactKind = "LendingSupply"
	FactLendingWithdraw         FactKind = "LendingWithdraw"
	FactMulticall               FactKind = "Multicall"
	FactFundRescued             FactKind = "FundRescued"
)

// Event is the payload of a fact.
type Event interface {
	Kind() FactKind
}

// Fact is a committed event together with its envelope.
// Seq is assigned when the outermost call scope commits.
type Fact struct {
	Seq       uint64         `json:"seq"`
	Emitter   common.Address `json:"emitter"`
	Timestamp uint64         `json:"timestamp"` // block time (seconds)
	Event     Event          `json:"event"`
}

// Kind returns the kind of the wrapped event.
func (f Fact) Kind() FactKind {
	if f.Event == nil {
		return ""
	}
	return f.Event.Kind()
}

type AssetAdded struct {
	Asset common.Address `json:"asset"`
	Type  AssetKind      `json:"assetType"`
}

type AssetRemoved struct {
	Asset common.Address `json:"asset"`
}

type ManagerChanged struct {
	Caller  common.Address `json:"caller"`
	Manager common.Address `json:"manager"`
}

type OwnershipTransferred struct {
	Previous common.Address `json:"previous"`
	Owner    common.Address `json:"owner"`
}

type FeeConfigChanged struct {
	Old FeeConfig `json:"old"`
	New FeeConfig `json:"new"`
}

type Deposit struct {
	Caller  common.Address `json:"caller"`
	Shares  *uint256.Int   `json:"shares"`
	Amounts []*uint256.Int `json:"amounts"` // per asset slot, including entry fee
}

type Withdraw struct {
	Caller  common.Address `json:"caller"`
	Shares  *uint256.Int   `json:"shares"`
	Amounts []*uint256.Int `json:"amounts"` // per asset slot
}

type EntryFeeCollected struct {
	Recipient common.Address `json:"recipient"`
	Amounts   []*uint256.Int `json:"amounts"`
}

type ExitFeeCollected struct {
	Recipient common.Address `json:"recipient"`
	Shares    *uint256.Int   `json:"shares"`
}

type ManagementFeeCollected struct {
	Recipient common.Address `json:"recipient"`
	Shares    *uint256.Int   `json:"shares"`
}

type PerformanceFeeAccrued struct {
	Shares        *uint256.Int `json:"shares"`
	HighWaterMark *uint256.Int `json:"highWaterMark"`
}

type PerformanceFeeCollected struct {
	Recipient common.Address `json:"recipient"`
	Shares    *uint256.Int   `json:"shares"`
}

type Swap struct {
	Manager   common.Address `json:"manager"`
	SrcToken  common.Address `json:"srcToken"`
	DstToken  common.Address `json:"dstToken"`
	Router    common.Address `json:"router"`
	AmountIn  *uint256.Int   `json:"amountIn"`
	AmountOut *uint256.Int   `json:"amountOut"`
}

type CompositeDeposit struct {
	Pair    common.Address `json:"pair"`
	Shares  *uint256.Int   `json:"shares"`
	Amount0 *uint256.Int   `json:"amount0"`
	Amount1 *uint256.Int   `json:"amount1"`
}

type CompositeWithdraw struct {
	Pair    common.Address `json:"pair"`
	Shares  *uint256.Int   `json:"shares"`
	Amount0 *uint256.Int   `json:"amount0"`
	Amount1 *uint256.Int   `json:"amount1"`
}

type LendingSupply struct {
	DepositToken common.Address `json:"depositToken"`
	Underlying   common.Address `json:"underlying"`
	Amount       *uint256.Int   `json:"amount"`
}

type LendingWithdraw struct {
	DepositToken common.Address `json:"depositToken"`
	Underlying   common.Address `json:"underlying"`
	Amount       *uint256.Int   `json:"amount"`
}

type Multicall struct {
	Caller common.Address `json:"caller"`
	Vault  common.Address `json:"vault"`
	Steps  int            `json:"steps"`
	Swaps  int            `json:"swaps"`
}

type FundRescued struct {
	Token  common.Address `json:"token"`
	Amount *uint256.Int   `json:"amount"`
	To     common.Address `json:"to"`
}

func (AssetAdded) Kind() FactKind              { return FactAssetAdded }
func (AssetRemoved) Kind() FactKind            { return FactAssetRemoved }
func (ManagerChanged) Kind() FactKind          { return FactManagerChanged }
func (OwnershipTransferred) Kind() FactKind    { return FactOwnershipTransferred }
func (FeeConfigChanged) Kind() FactKind        { return FactFeeConfigChanged }
func (Deposit) Kind() FactKind                 { return FactDeposit }
func (Withdraw) Kind() FactKind                { return FactWithdraw }
func (EntryFeeCollected) Kind() FactKind       { return FactEntryFeeCollected }
func (ExitFeeCollected) Kind() FactKind        { return FactExitFeeCollected }
func (ManagementFeeCollected) Kind() FactKind  { return FactManagementFeeCollected }
func (PerformanceFeeAccrued) Kind() FactKind   { return FactPerformanceFeeAccrued }
func (PerformanceFeeCollected) Kind() FactKind { return FactPerformanceFeeCollected }
func (Swap) Kind() FactKind                    { return FactSwap }
func (CompositeDeposit) Kind() FactKind        { return FactCompositeDeposit }
func (CompositeWithdraw) Kind() FactKind       { return FactCompositeWithdraw }
func (LendingSupply) Kind() FactKind           { return FactLendingSupply }
func (LendingWithdraw) Kind() FactKind         { return FactLendingWithdraw }
func (Multicall) Kind() FactKind               { return FactMulticall }
func (FundRescued) Kind() FactKind             { return FactFundRescued }
