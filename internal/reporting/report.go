package reporting

import "time"

// Report summarizes one vault's journaled activity and NAV history.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Vault       string
	Start       int64 // window start, Unix ms
	End         int64 // window end, Unix ms

	// Journal
	FactCount int
	Flows     FlowSummary
	Fees      []FeeRow // ordered entry, exit, management, performance
	EntryFees []AmountRow

	// NAV series
	NAV NAVSummary
}

// FlowSummary counts share and rebalancing activity.
type FlowSummary struct {
	Deposits         int
	Withdrawals      int
	SharesDeposited  string // decimal, whole shares
	SharesWithdrawn  string // decimal, whole shares
	Swaps            int
	CompositeMoves   int
	LendingMoves     int
	Multicalls       int
	ConfigChanges    int
	AssetListChanges int
}

// FeeRow aggregates one fee kind taken in shares.
type FeeRow struct {
	Kind   string
	Events int
	Shares string // decimal, whole shares
}

// AmountRow is the entry fee collected in one asset slot, in raw units.
type AmountRow struct {
	Slot   int
	Amount string
}

// NAVSummary describes the sampled value-per-share path.
type NAVSummary struct {
	Samples            int
	FirstValuePerShare float64
	LastValuePerShare  float64
	PeakValuePerShare  float64
	Return             float64 // last / first - 1
	MaxDrawdown        float64 // largest peak-to-trough fall, as a fraction of the peak
	LastTotalValue     float64
	LastTotalSupply    float64
}
