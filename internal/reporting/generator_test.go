package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/storage/memory"
)

var (
	testVault  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testHelper = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testUser   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func shareAmount(whole uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(whole), uint256.NewInt(1e18))
}

func record(t *testing.T, emitter common.Address, seq int64, ts int64, ev domain.Event) *domain.FactRecord {
	t.Helper()
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal %s: %v", ev.Kind(), err)
	}
	return &domain.FactRecord{
		FactID:    fmt.Sprintf("f%d", seq),
		Emitter:   emitter.Hex(),
		Seq:       seq,
		Kind:      ev.Kind(),
		Timestamp: ts,
		Payload:   payload,
	}
}

func setupTestData(t *testing.T) (*memory.FactStore, *memory.NAVStore) {
	ctx := context.Background()
	factStore := memory.NewFactStore()
	navStore := memory.NewNAVStore()

	facts := []*domain.FactRecord{
		record(t, testVault, 1, 1000, domain.Deposit{Caller: testUser, Shares: shareAmount(10), Amounts: []*uint256.Int{uint256.NewInt(10_000_000)}}),
		record(t, testVault, 2, 1000, domain.EntryFeeCollected{Recipient: testUser, Amounts: []*uint256.Int{uint256.NewInt(1000), uint256.NewInt(0)}}),
		record(t, testVault, 3, 1100, domain.ManagementFeeCollected{Recipient: testUser, Shares: shareAmount(1)}),
		record(t, testVault, 4, 1200, domain.ExitFeeCollected{Recipient: testUser, Shares: shareAmount(2)}),
		record(t, testVault, 5, 1200, domain.Withdraw{Caller: testUser, Shares: shareAmount(4), Amounts: []*uint256.Int{uint256.NewInt(4_000_000)}}),
		record(t, testVault, 6, 1300, domain.PerformanceFeeAccrued{Shares: shareAmount(3), HighWaterMark: uint256.NewInt(1)}),
		record(t, testVault, 7, 1400, domain.PerformanceFeeCollected{Recipient: testUser, Shares: shareAmount(1)}),
		record(t, testVault, 8, 1500, domain.Swap{Manager: testUser, SrcToken: testUser, DstToken: testUser, AmountIn: uint256.NewInt(1), AmountOut: uint256.NewInt(1)}),
		// Outside the window
		record(t, testVault, 9, 9000, domain.Deposit{Caller: testUser, Shares: shareAmount(100), Amounts: []*uint256.Int{uint256.NewInt(1)}}),
		record(t, testHelper, 10, 1000, domain.Multicall{Caller: testUser, Vault: testVault, Steps: 3}),
		record(t, testHelper, 11, 1000, domain.Multicall{Caller: testUser, Vault: testHelper, Steps: 1}),
	}
	if err := factStore.InsertBulk(ctx, facts); err != nil {
		t.Fatalf("InsertBulk facts failed: %v", err)
	}

	points := []*domain.NAVPoint{
		{Vault: testVault.Hex(), TimestampMs: 1_000_000, TotalValue: 10, TotalSupply: 10, ValuePerShare: 1.0, Composition: []float64{10}},
		{Vault: testVault.Hex(), TimestampMs: 1_100_000, TotalValue: 12, TotalSupply: 10, ValuePerShare: 1.2, Composition: []float64{12}},
		{Vault: testVault.Hex(), TimestampMs: 1_200_000, TotalValue: 9, TotalSupply: 10, ValuePerShare: 0.9, Composition: []float64{9}},
		{Vault: testVault.Hex(), TimestampMs: 1_300_000, TotalValue: 11, TotalSupply: 10, ValuePerShare: 1.1, Composition: []float64{11}},
	}
	if err := navStore.InsertBulk(ctx, points); err != nil {
		t.Fatalf("InsertBulk nav failed: %v", err)
	}
	return factStore, navStore
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestGenerator_Generate(t *testing.T) {
	factStore, navStore := setupTestData(t)
	gen := NewGenerator(factStore, navStore).WithClock(fixedClock)

	r, err := gen.Generate(context.Background(), testVault.Hex(), 0, 2_000_000)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if r.FactCount != 8 {
		t.Errorf("FactCount = %d, want 8", r.FactCount)
	}
	if r.Flows.Deposits != 1 || r.Flows.Withdrawals != 1 {
		t.Errorf("Deposits/Withdrawals = %d/%d, want 1/1", r.Flows.Deposits, r.Flows.Withdrawals)
	}
	if r.Flows.SharesDeposited != "10" || r.Flows.SharesWithdrawn != "4" {
		t.Errorf("shares deposited/withdrawn = %s/%s, want 10/4", r.Flows.SharesDeposited, r.Flows.SharesWithdrawn)
	}
	if r.Flows.Swaps != 1 {
		t.Errorf("Swaps = %d, want 1", r.Flows.Swaps)
	}
	if r.Flows.Multicalls != 1 {
		t.Errorf("Multicalls = %d, want 1", r.Flows.Multicalls)
	}

	want := []FeeRow{
		{Kind: "entry", Events: 1, Shares: "0"},
		{Kind: "exit", Events: 1, Shares: "2"},
		{Kind: "management", Events: 1, Shares: "1"},
		{Kind: "performance", Events: 1, Shares: "1"},
	}
	if len(r.Fees) != len(want) {
		t.Fatalf("Fees len = %d, want %d", len(r.Fees), len(want))
	}
	for i, row := range want {
		if r.Fees[i] != row {
			t.Errorf("Fees[%d] = %+v, want %+v", i, r.Fees[i], row)
		}
	}
	if len(r.EntryFees) != 1 || r.EntryFees[0] != (AmountRow{Slot: 0, Amount: "1000"}) {
		t.Errorf("EntryFees = %+v, want slot 0 = 1000", r.EntryFees)
	}
	if !r.GeneratedAt.Equal(fixedClock()) {
		t.Errorf("GeneratedAt = %v, want fixed clock", r.GeneratedAt)
	}
}

func TestGenerator_NAVSummary(t *testing.T) {
	factStore, navStore := setupTestData(t)
	r, err := NewGenerator(factStore, navStore).Generate(context.Background(), testVault.Hex(), 0, 2_000_000)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	nav := r.NAV
	if nav.Samples != 4 {
		t.Fatalf("Samples = %d, want 4", nav.Samples)
	}
	if nav.PeakValuePerShare != 1.2 {
		t.Errorf("Peak = %f, want 1.2", nav.PeakValuePerShare)
	}
	if math.Abs(nav.Return-0.1) > 1e-9 {
		t.Errorf("Return = %f, want 0.1", nav.Return)
	}
	if math.Abs(nav.MaxDrawdown-0.25) > 1e-9 {
		t.Errorf("MaxDrawdown = %f, want 0.25", nav.MaxDrawdown)
	}
	if nav.LastTotalValue != 11 {
		t.Errorf("LastTotalValue = %f, want 11", nav.LastTotalValue)
	}
}

func TestGenerator_EmptyStores(t *testing.T) {
	gen := NewGenerator(memory.NewFactStore(), memory.NewNAVStore())
	r, err := gen.Generate(context.Background(), testVault.Hex(), 0, 1)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if r.FactCount != 0 || r.NAV.Samples != 0 {
		t.Errorf("expected empty report, got %d facts, %d samples", r.FactCount, r.NAV.Samples)
	}

	md := RenderMarkdown(r)
	if !strings.Contains(md, "No NAV samples in window.") {
		t.Error("markdown should note the missing NAV samples")
	}
}

func TestRenderMarkdown(t *testing.T) {
	factStore, navStore := setupTestData(t)
	r, err := NewGenerator(factStore, navStore).WithClock(fixedClock).Generate(context.Background(), testVault.Hex(), 0, 2_000_000)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(r)
	for _, want := range []string{
		"# Vault Report",
		"Generated: 2026-01-02T03:04:05Z",
		"| Deposits | 1 |",
		"| exit | 1 | 2 |",
		"| 0 | 1000 |",
		"| Max Drawdown | 0.2500 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderCSV(t *testing.T) {
	points := []*domain.NAVPoint{
		{Vault: "v", TimestampMs: 1, TotalValue: 2, TotalSupply: 2, ValuePerShare: 1, Composition: []float64{1.5, 0.5}},
	}
	csv := RenderCSV(points)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[1] != "v,1,2.000000,2.000000,1.000000,1.500000;0.500000" {
		t.Errorf("row = %q", lines[1])
	}
}
