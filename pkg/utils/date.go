package utils

import "time"

// TradingDayLayout is the canonical key format for a trading day.
const TradingDayLayout = "2006-01-02"

// ParseTradingDay parses a trading-day key such as "2025-01-08".
func ParseTradingDay(s string) (time.Time, error) {
	return time.Parse(TradingDayLayout, s)
}

// FormatTradingDay renders t as a trading-day key.
func FormatTradingDay(t time.Time) string {
	return t.Format(TradingDayLayout)
}
