// Package duration parses short human time tokens like "10m", "2h", "1d"
// into time.Duration values. Parsing is pure: no clock, no I/O.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cadence-bot/cadence/internal/domain"
)

var tokenRe = regexp.MustCompile(`^(\d+)([smhdw])$`)

// Bounds restricts which unit letters a context accepts and how long the
// resulting duration may be. The same parser serves reminders, giveaways and
// mutes; only the bounds differ.
type Bounds struct {
	Units string
	Min   time.Duration
	Max   time.Duration
}

var (
	// ReminderBounds: reminders accept seconds and run up to a year.
	ReminderBounds = Bounds{Units: "smhdw", Min: time.Minute, Max: 365 * 24 * time.Hour}
	// GiveawayBounds: giveaways reject seconds and cap at a week.
	GiveawayBounds = Bounds{Units: "mhdw", Min: time.Minute, Max: 7 * 24 * time.Hour}
	// RestrictBounds mirrors the Telegram mute ceiling of 28 days.
	RestrictBounds = Bounds{Units: "smhdw", Min: time.Minute, Max: 28 * 24 * time.Hour}
)

var unitSize = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// Parse converts a token matching <integer><unit> into a duration, applying
// the given bounds. It returns domain.ErrInvalidDuration when the token does
// not match the pattern or uses a unit outside b.Units, and
// domain.ErrDurationOutOfRange when the result falls outside [b.Min, b.Max].
func Parse(token string, b Bounds) (time.Duration, error) {
	m := tokenRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(token)))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidDuration, token)
	}
	unit := m[2]
	if !strings.Contains(b.Units, unit) {
		return 0, fmt.Errorf("%w: unit %q not allowed here", domain.ErrInvalidDuration, unit)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// Shape matched but the number overflows int64: the token is
		// well-formed, just absurdly large.
		return 0, fmt.Errorf("%w: %q", domain.ErrDurationOutOfRange, token)
	}
	size := unitSize[unit]
	if n > int64(b.Max/size) {
		return 0, fmt.Errorf("%w: %q", domain.ErrDurationOutOfRange, token)
	}
	d := time.Duration(n) * size
	if d < b.Min {
		return 0, fmt.Errorf("%w: %q", domain.ErrDurationOutOfRange, token)
	}
	return d, nil
}

// Format renders a duration as a compact human string ("1d 2h 30m").
// Sub-second remainders are dropped.
func Format(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	steps := []struct {
		size   time.Duration
		suffix string
	}{
		{7 * 24 * time.Hour, "w"},
		{24 * time.Hour, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}
	var parts []string
	for _, s := range steps {
		if n := d / s.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, s.suffix))
			d -= n * s.size
		}
	}
	return strings.Join(parts, " ")
}
