package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/shares"
	"portfolio-vault/internal/storage"
	"portfolio-vault/internal/units"
)

// Generator produces reports from stored data.
type Generator struct {
	factStore storage.FactStore
	navStore  storage.NAVStore
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(facts storage.FactStore, nav storage.NAVStore) *Generator {
	return &Generator{
		factStore: facts,
		navStore:  nav,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// sharePayload covers every fact whose payload carries a share amount.
type sharePayload struct {
	Shares  *uint256.Int   `json:"shares"`
	Amounts []*uint256.Int `json:"amounts"`
	Vault   string         `json:"vault"`
}

// Generate reports on vault over [start, end] (Unix ms, inclusive).
func (g *Generator) Generate(ctx context.Context, vault string, start, end int64) (*Report, error) {
	records, err := g.factStore.GetByEmitter(ctx, vault, 0)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	multicalls, err := g.factStore.GetByKind(ctx, domain.FactMulticall)
	if err != nil {
		return nil, fmt.Errorf("load multicall facts: %w", err)
	}
	points, err := g.navStore.GetByTimeRange(ctx, vault, start, end)
	if err != nil {
		return nil, fmt.Errorf("load nav: %w", err)
	}

	acc := newAccumulator()
	for _, rec := range records {
		if !inWindow(rec, start, end) {
			continue
		}
		if err := acc.add(rec); err != nil {
			return nil, err
		}
	}
	for _, rec := range multicalls {
		if !inWindow(rec, start, end) {
			continue
		}
		var p sharePayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode fact %s: %w", rec.FactID, err)
		}
		if equalHex(p.Vault, vault) {
			acc.flows.Multicalls++
		}
	}

	return &Report{
		GeneratedAt: g.now(),
		Vault:       vault,
		Start:       start,
		End:         end,
		FactCount:   acc.count,
		Flows:       acc.flowSummary(),
		Fees:        acc.feeRows(),
		EntryFees:   acc.entryFeeRows(),
		NAV:         summarizeNAV(points),
	}, nil
}

func inWindow(rec *domain.FactRecord, start, end int64) bool {
	ms := rec.Timestamp * 1000
	return ms >= start && ms <= end
}

func equalHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		x, y := a[i], b[i]
		if 'A' <= x && x <= 'Z' {
			x += 'a' - 'A'
		}
		if 'A' <= y && y <= 'Z' {
			y += 'a' - 'A'
		}
		if x != y {
			return false
		}
	}
	return true
}

type feeTotal struct {
	events int
	shares *uint256.Int
}

type accumulator struct {
	count     int
	flows     FlowSummary
	deposited *uint256.Int
	withdrawn *uint256.Int
	fees      map[domain.FeeKind]*feeTotal
	entryFees []*uint256.Int
}

func newAccumulator() *accumulator {
	fees := make(map[domain.FeeKind]*feeTotal, 4)
	for _, k := range feeOrder {
		fees[k] = &feeTotal{shares: new(uint256.Int)}
	}
	return &accumulator{
		deposited: new(uint256.Int),
		withdrawn: new(uint256.Int),
		fees:      fees,
	}
}

var feeOrder = []domain.FeeKind{
	domain.FeeKindEntry,
	domain.FeeKindExit,
	domain.FeeKindManagement,
	domain.FeeKindPerformance,
}

func (a *accumulator) add(rec *domain.FactRecord) error {
	a.count++
	var p sharePayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return fmt.Errorf("decode fact %s: %w", rec.FactID, err)
	}
	amount := p.Shares
	if amount == nil {
		amount = new(uint256.Int)
	}

	switch rec.Kind {
	case domain.FactDeposit:
		a.flows.Deposits++
		a.deposited.Add(a.deposited, amount)
	case domain.FactWithdraw:
		a.flows.Withdrawals++
		a.withdrawn.Add(a.withdrawn, amount)
	case domain.FactSwap:
		a.flows.Swaps++
	case domain.FactCompositeDeposit, domain.FactCompositeWithdraw:
		a.flows.CompositeMoves++
	case domain.FactLendingSupply, domain.FactLendingWithdraw:
		a.flows.LendingMoves++
	case domain.FactFeeConfigChanged:
		a.flows.ConfigChanges++
	case domain.FactAssetAdded, domain.FactAssetRemoved:
		a.flows.AssetListChanges++
	case domain.FactEntryFeeCollected:
		a.fees[domain.FeeKindEntry].events++
		for i, amt := range p.Amounts {
			for len(a.entryFees) <= i {
				a.entryFees = append(a.entryFees, new(uint256.Int))
			}
			if amt != nil {
				a.entryFees[i].Add(a.entryFees[i], amt)
			}
		}
	case domain.FactExitFeeCollected:
		a.addFee(domain.FeeKindExit, amount)
	case domain.FactManagementFeeCollected:
		a.addFee(domain.FeeKindManagement, amount)
	case domain.FactPerformanceFeeAccrued:
		// Accrued shares stay in the reserve; only releases count as taken.
	case domain.FactPerformanceFeeCollected:
		a.addFee(domain.FeeKindPerformance, amount)
	}
	return nil
}

func (a *accumulator) addFee(kind domain.FeeKind, amount *uint256.Int) {
	t := a.fees[kind]
	t.events++
	t.shares.Add(t.shares, amount)
}

func (a *accumulator) flowSummary() FlowSummary {
	out := a.flows
	out.SharesDeposited = units.Format(a.deposited, shares.Decimals)
	out.SharesWithdrawn = units.Format(a.withdrawn, shares.Decimals)
	return out
}

func (a *accumulator) feeRows() []FeeRow {
	rows := make([]FeeRow, 0, len(feeOrder))
	for _, k := range feeOrder {
		t := a.fees[k]
		rows = append(rows, FeeRow{
			Kind:   string(k),
			Events: t.events,
			Shares: units.Format(t.shares, shares.Decimals),
		})
	}
	return rows
}

func (a *accumulator) entryFeeRows() []AmountRow {
	var rows []AmountRow
	for i, amt := range a.entryFees {
		if amt.IsZero() {
			continue
		}
		rows = append(rows, AmountRow{Slot: i, Amount: amt.Dec()})
	}
	return rows
}

// summarizeNAV walks points in timestamp order.
func summarizeNAV(points []*domain.NAVPoint) NAVSummary {
	var s NAVSummary
	s.Samples = len(points)
	if len(points) == 0 {
		return s
	}

	first, last := points[0], points[len(points)-1]
	s.FirstValuePerShare = first.ValuePerShare
	s.LastValuePerShare = last.ValuePerShare
	s.LastTotalValue = last.TotalValue
	s.LastTotalSupply = last.TotalSupply
	if first.ValuePerShare > 0 {
		s.Return = last.ValuePerShare/first.ValuePerShare - 1
	}

	for _, p := range points {
		if p.ValuePerShare > s.PeakValuePerShare {
			s.PeakValuePerShare = p.ValuePerShare
		}
		if s.PeakValuePerShare > 0 {
			dd := (s.PeakValuePerShare - p.ValuePerShare) / s.PeakValuePerShare
			if dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
	}
	return s
}
