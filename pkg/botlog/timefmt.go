package botlog

import (
	"fmt"
	"time"
)

// FormatRemaining renders a duration as "45s", "2m 1s" or "3h 12m".
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		return "0s"
	}
	secs := int(d / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

// FormatUntil renders the time left until t, as "12 seconds" or "2 minutes, 1 seconds".
func FormatUntil(t, now time.Time) string {
	remaining := t.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	secs := int(remaining / time.Second)
	if secs < 60 {
		return fmt.Sprintf("%d seconds", secs)
	}
	return fmt.Sprintf("%d minutes, %d seconds", secs/60, secs%60)
}
