// Package schedule decides whether a scan time falls inside a recurring
// time-of-day/day-of-week window.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LeadTime is subtracted from a window's start so scans slightly before the
// nominal start still succeed.
const LeadTime = 10 * time.Minute

// Result carries the outcome of a window evaluation. Reason is set only when
// Valid is false and names the allowed range or days.
type Result struct {
	Valid  bool
	Reason string
}

// IsWithin evaluates now against a "HH:MM"-"HH:MM" window and an optional set
// of short day names (Mon..Sun). A window whose end is numerically less than
// its lead-adjusted start wraps past midnight. All math uses now's location;
// callers pass a time already converted to the deployment civil timezone.
func IsWithin(now time.Time, startHHMM, endHHMM string, allowedDays []string) Result {
	if len(allowedDays) > 0 {
		day := now.Weekday().String()[:3]
		if !containsDay(allowedDays, day) {
			return Result{Reason: fmt.Sprintf("not allowed on %s (allowed: %s)", day, strings.Join(allowedDays, ","))}
		}
	}

	start, err := parseHHMM(startHHMM)
	if err != nil {
		return Result{Reason: fmt.Sprintf("invalid window start %q", startHHMM)}
	}
	end, err := parseHHMM(endHHMM)
	if err != nil {
		return Result{Reason: fmt.Sprintf("invalid window end %q", endHHMM)}
	}

	adjusted := start - int(LeadTime.Minutes())
	nowMin := now.Hour()*60 + now.Minute()

	if end < adjusted {
		// Wrap-around window, e.g. 23:00-01:00.
		if nowMin >= adjusted || nowMin <= end {
			return Result{Valid: true}
		}
	} else if nowMin >= adjusted && nowMin <= end {
		return Result{Valid: true}
	}
	return Result{Reason: fmt.Sprintf("outside allowed window %s-%s", startHHMM, endHHMM)}
}

func parseHHMM(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("malformed hour %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("malformed minute %q", value)
	}
	return hour*60 + minute, nil
}

func containsDay(days []string, day string) bool {
	for _, d := range days {
		if strings.EqualFold(strings.TrimSpace(d), day) {
			return true
		}
	}
	return false
}
