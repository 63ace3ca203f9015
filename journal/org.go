package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block. Structured facts
// live in a PROPERTIES drawer for search; Thesis and Review are left to fill in.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** Trade: %s %s (%s)", t.Instrument, t.Grade, shortID(t.TradeID))
	open := t.OpenTime.UTC().Format(time.RFC3339)
	close := t.CloseTime.UTC().Format(time.RFC3339)

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":INSTRUMENT: %s\n", t.Instrument)
	fmt.Fprintf(&b, ":GRADE: %s\n", t.Grade)
	fmt.Fprintf(&b, ":QUANTITY: %g\n", t.Quantity)
	fmt.Fprintf(&b, ":NOTIONAL: %.2f\n", t.Notional)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.5f\n", t.EntryPrice)
	fmt.Fprintf(&b, ":EXIT_PRICE: %.5f\n", t.ExitPrice)
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", open)
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", close)
	fmt.Fprintf(&b, ":HELD: %s\n", t.CloseTime.Sub(t.OpenTime).Round(time.Second))
	fmt.Fprintf(&b, ":REALIZED_PL: %.2f\n", t.RealizedPL)
	fmt.Fprintf(&b, ":PROFIT_PCT: %.3f\n", t.ProfitPct)
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// FormatSummaryOrg renders a Summary as an Org table.
func FormatSummaryOrg(title string, s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "* %s\n", title)
	b.WriteString("| Metric        | Value |\n")
	b.WriteString("|---------------+-------|\n")
	fmt.Fprintf(&b, "| Trades        | %d |\n", s.Trades)
	fmt.Fprintf(&b, "| Wins          | %d |\n", s.Wins)
	fmt.Fprintf(&b, "| Losses        | %d |\n", s.Losses)
	fmt.Fprintf(&b, "| Win rate      | %.2f%% |\n", s.WinRate*100)
	fmt.Fprintf(&b, "| Net P/L       | %.2f |\n", s.NetPL)
	fmt.Fprintf(&b, "| Profit factor | %.2f |\n", s.ProfitFactor)
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
