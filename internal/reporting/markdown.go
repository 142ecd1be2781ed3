package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Vault Report\n\n")
	sb.WriteString(fmt.Sprintf("Vault: %s\n\n", r.Vault))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window (ms): %d - %d | Facts: %d\n\n", r.Start, r.End, r.FactCount))

	// Flows
	sb.WriteString("## Activity\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Deposits | %d |\n", r.Flows.Deposits))
	sb.WriteString(fmt.Sprintf("| Shares Deposited | %s |\n", r.Flows.SharesDeposited))
	sb.WriteString(fmt.Sprintf("| Withdrawals | %d |\n", r.Flows.Withdrawals))
	sb.WriteString(fmt.Sprintf("| Shares Withdrawn | %s |\n", r.Flows.SharesWithdrawn))
	sb.WriteString(fmt.Sprintf("| Swaps | %d |\n", r.Flows.Swaps))
	sb.WriteString(fmt.Sprintf("| Composite Deposits/Withdrawals | %d |\n", r.Flows.CompositeMoves))
	sb.WriteString(fmt.Sprintf("| Lending Supplies/Withdrawals | %d |\n", r.Flows.LendingMoves))
	sb.WriteString(fmt.Sprintf("| Multicalls | %d |\n", r.Flows.Multicalls))
	sb.WriteString(fmt.Sprintf("| Fee Config Changes | %d |\n", r.Flows.ConfigChanges))
	sb.WriteString(fmt.Sprintf("| Asset List Changes | %d |\n", r.Flows.AssetListChanges))
	sb.WriteString("\n")

	// Fees
	sb.WriteString("## Fees\n\n")
	sb.WriteString("| Fee | Events | Shares |\n")
	sb.WriteString("|-----|--------|--------|\n")
	for _, f := range r.Fees {
		sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", f.Kind, f.Events, f.Shares))
	}
	sb.WriteString("\n")
	if len(r.EntryFees) > 0 {
		sb.WriteString("### Entry Fee By Slot (raw units)\n\n")
		sb.WriteString("| Slot | Amount |\n")
		sb.WriteString("|------|--------|\n")
		for _, row := range r.EntryFees {
			sb.WriteString(fmt.Sprintf("| %d | %s |\n", row.Slot, row.Amount))
		}
		sb.WriteString("\n")
	}

	// NAV
	sb.WriteString("## Net Asset Value\n\n")
	if r.NAV.Samples == 0 {
		sb.WriteString("No NAV samples in window.\n")
		return sb.String()
	}
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Samples | %d |\n", r.NAV.Samples))
	sb.WriteString(fmt.Sprintf("| First Value/Share | %.6f |\n", r.NAV.FirstValuePerShare))
	sb.WriteString(fmt.Sprintf("| Last Value/Share | %.6f |\n", r.NAV.LastValuePerShare))
	sb.WriteString(fmt.Sprintf("| Peak Value/Share | %.6f |\n", r.NAV.PeakValuePerShare))
	sb.WriteString(fmt.Sprintf("| Return | %.4f |\n", r.NAV.Return))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.4f |\n", r.NAV.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("| Total Value | %.6f |\n", r.NAV.LastTotalValue))
	sb.WriteString(fmt.Sprintf("| Total Supply | %.6f |\n", r.NAV.LastTotalSupply))

	return sb.String()
}
