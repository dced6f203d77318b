package cli

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration to a short human readable string
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs -= float64(mins * 60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// FormatScore formats an activity score with two decimals.
func FormatScore(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// FormatTime formats t in local time, or "-" when zero.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
