package domain

import "encoding/json"

// FactRecord is the persisted form of a Fact.
// Corresponds to vault_facts table in PostgreSQL.
type FactRecord struct {
	FactID    string          // deterministic hash
	Emitter   string          // hex address of the emitting contract
	Seq       int64           // commit sequence number
	Kind      FactKind        // event name
	Timestamp int64           // block time (seconds)
	Payload   json.RawMessage // JSON-encoded event
}

// VaultSnapshot is a point-in-time copy of the vault's fee and supply state.
// Corresponds to vault_snapshots table in PostgreSQL.
type VaultSnapshot struct {
	Vault                     string // hex address
	Timestamp                 int64  // block time (seconds)
	TotalSupply               string // decimal integer
	TotalValue                string // decimal integer, base units
	HighWaterMark             string // decimal integer, total value
	PerformanceFeeReserve     string // decimal integer, shares
	LastCollectManagementFee  int64
	LastCollectPerformanceFee int64
}

// NAVPoint is one sample of the vault's net asset value.
// Corresponds to vault_nav table in ClickHouse.
type NAVPoint struct {
	Vault         string    // hex address
	TimestampMs   int64     // wall clock (ms)
	TotalValue    float64   // base asset whole units
	TotalSupply   float64   // shares whole units
	ValuePerShare float64   // base asset per share
	Composition   []float64 // per asset slot value, base asset whole units
}
