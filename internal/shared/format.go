package shared

import (
	"fmt"
	"time"
)

// FormatBytes renders a byte count using binary units (e.g. "1.5 MB").
func FormatBytes(n int64) string {
	const unit = 1024
	if n < 0 {
		n = 0
	}
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatDuration renders d as "1h02m03s", "4m05s" or "12.3s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// FormatRate renders units processed per second over elapsed.
func FormatRate(units int64, elapsed time.Duration, label string) string {
	if elapsed <= 0 || units <= 0 {
		return fmt.Sprintf("0.0 %s/s", label)
	}
	return fmt.Sprintf("%.1f %s/s", float64(units)/elapsed.Seconds(), label)
}
