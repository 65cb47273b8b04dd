// Package tui renders styled terminal output for agentforge commands.
package tui

import (
	"fmt"
	"time"

	"github.com/maxxentropy/agentforge-sub001/internal/clock"
)

// DefaultClock is the clock RelativeTime reads from. Tests swap in a
// fixed clock.
//
//nolint:gochecknoglobals // Package-level default for dependency injection
var DefaultClock clock.Clock = clock.RealClock{}

// RelativeTime formats a time as a human-readable relative string,
// like "just now", "5 minutes ago", or "2 days ago".
func RelativeTime(t time.Time) string {
	return RelativeTimeWith(t, DefaultClock)
}

// RelativeTimeWith is RelativeTime against an explicit clock.
// Timestamps in the future render as "just now"; clock skew between
// hosts sharing a state directory should not produce negative ages.
func RelativeTimeWith(t time.Time, c clock.Clock) string {
	diff := c.Now().Sub(t)
	if diff < 0 {
		diff = 0
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return pluralAgo(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return pluralAgo(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return pluralAgo(int(diff.Hours()/24), "day")
	default:
		return pluralAgo(int(diff.Hours()/24/7), "week")
	}
}

func pluralAgo(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
