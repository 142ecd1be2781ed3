package reporting

import (
	"fmt"
	"strings"

	"portfolio-vault/internal/domain"
)

// RenderCSV renders NAV samples as CSV string. Composition values are
// joined with ';' in slot order.
func RenderCSV(points []*domain.NAVPoint) string {
	var sb strings.Builder

	// Header
	sb.WriteString("vault,timestamp_ms,total_value,total_supply,value_per_share,composition\n")

	// Rows
	for _, p := range points {
		parts := make([]string, len(p.Composition))
		for i, v := range p.Composition {
			parts[i] = fmt.Sprintf("%.6f", v)
		}
		sb.WriteString(fmt.Sprintf("%s,%d,%.6f,%.6f,%.6f,%s\n",
			p.Vault,
			p.TimestampMs,
			p.TotalValue,
			p.TotalSupply,
			p.ValuePerShare,
			strings.Join(parts, ";"),
		))
	}

	return sb.String()
}
