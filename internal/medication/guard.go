package medication

import (
	"fmt"
	"time"
)

// DoseGuard decides whether a dose may be taken given the previous one.
type DoseGuard interface {
	// Allow reports whether a dose at now is acceptable after one at last.
	// last is never the zero time.
	Allow(last, now time.Time) bool
	Name() string
}

// DailyGuard allows one dose per calendar day in Location. A dose at
// 23:59 followed by one at 00:01 is accepted.
type DailyGuard struct {
	Location *time.Location
}

// Allow implements DoseGuard.
func (g DailyGuard) Allow(last, now time.Time) bool {
	loc := g.Location
	if loc == nil {
		loc = time.Local
	}
	ly, lm, ld := last.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return ly != ny || lm != nm || ld != nd
}

// Name implements DoseGuard.
func (DailyGuard) Name() string { return "daily" }

// CooldownGuard rejects a dose taken less than Cooldown after the last one.
type CooldownGuard struct {
	Cooldown time.Duration
}

// Allow implements DoseGuard.
func (g CooldownGuard) Allow(last, now time.Time) bool {
	return now.Sub(last) >= g.Cooldown
}

// Name implements DoseGuard.
func (CooldownGuard) Name() string { return "cooldown" }

// NewDoseGuard returns the guard for a tracker.dose_guard policy name.
func NewDoseGuard(policy string, cooldown time.Duration, loc *time.Location) (DoseGuard, error) {
	switch policy {
	case "daily", "":
		return DailyGuard{Location: loc}, nil
	case "cooldown":
		if cooldown <= 0 {
			return nil, fmt.Errorf("cooldown dose guard needs a positive duration, got %v", cooldown)
		}
		return CooldownGuard{Cooldown: cooldown}, nil
	default:
		return nil, fmt.Errorf("unknown dose guard %q", policy)
	}
}
