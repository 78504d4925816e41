package telegram

import (
	"fmt"
	"strings"
)

// FormatShortfallAlert formats a reconciliation-shortfall ops alert.
func FormatShortfallAlert(userID uint64, tradingDay string, requested, applied int64) string {
	var b strings.Builder
	b.WriteString("⚠️ *Reconciliation Shortfall*\n\n")
	b.WriteString(fmt.Sprintf("User: `%d`\n", userID))
	b.WriteString(fmt.Sprintf("Trading day: `%s`\n", tradingDay))
	b.WriteString(fmt.Sprintf("Requested debit: `%d`\n", requested))
	b.WriteString(fmt.Sprintf("Applied debit: `%d`\n", applied))
	b.WriteString(fmt.Sprintf("Shortfall: `%d`\n", requested-applied))
	b.WriteString("\nManual reconciliation required.")
	return b.String()
}

// FormatInvariantAlert formats a fatal invariant-violation ops alert.
func FormatInvariantAlert(component, detail string) string {
	return fmt.Sprintf("🛑 *Invariant Violation*\n\nComponent: `%s`\n%s", component, detail)
}
