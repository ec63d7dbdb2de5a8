package monitor

import (
	"fmt"
	"time"
)

// FormatRate formats a rate value as "X.X q/min"
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.1f q/min", rate)
}

// FormatLatency formats a latency in milliseconds as "X.Xms" or "X.Xs"
func FormatLatency(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.1fms", ms)
	}
	return fmt.Sprintf("%.1fs", ms/1000)
}

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatCount formats large counts as "X.Xk" above ten thousand.
func FormatCount(n int64) string {
	if n >= 10000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatAge formats the time since t as "Xh Ym" or "Xm", or "never".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return FormatDuration(int64(now.Sub(t).Seconds())) + " ago"
}

// FormatDuration formats duration in seconds to "Xh Ym" or "Xm"
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
