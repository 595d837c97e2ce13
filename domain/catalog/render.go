package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Render serializes every descriptor into prompt text. Output depends only on the catalog.
func (c *Catalog) Render() string {
	var b strings.Builder
	for i, m := range c.models {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- model_name: %s\n", m.ID)
		if summary := strings.TrimSpace(m.Summary); summary != "" {
			for _, line := range strings.Split(summary, "\n") {
				fmt.Fprintf(&b, "  %s\n", strings.TrimSpace(line))
			}
		}
		fmt.Fprintf(&b, "  - %s context window\n", humanize.Comma(int64(m.ContextWindow)))
		fmt.Fprintf(&b, "  - price: %s\n", m.priceText())
		fmt.Fprintf(&b, "  - Time to first token: %ss\n", formatFloat(m.TimeToFirstTokenSeconds, 2))
		fmt.Fprintf(&b, "  - Throughput: %s tokens/s\n", formatFloat(m.ThroughputTokensPerSecond, -1))
	}
	return b.String()
}

func (m ModelDescriptor) priceText() string {
	if m.IsFree() {
		return "free"
	}
	return fmt.Sprintf("$%s/million input tokens, $%s/million output tokens",
		priceOrZero(m.PriceInputPerMillion).String(),
		priceOrZero(m.PriceOutputPerMillion).String())
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
