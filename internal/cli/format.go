package cli

import (
	"fmt"
	"time"
)

// FormatDurationShort formats a run duration for the summary line.
// Runs under a second show milliseconds ("340ms"); longer runs show M:SS,
// or H:MM:SS past the hour. Negative durations print as zero.
func FormatDurationShort(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	total := int(d.Round(time.Second) / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
