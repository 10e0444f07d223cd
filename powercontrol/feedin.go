package powercontrol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devskill-org/bess-ems/config"
)

// timeOfDay is a wall-clock time within a day, used for dynamic feed-in
// rule windows that may wrap past midnight.
type timeOfDay struct {
	hour, minute int
}

func (t timeOfDay) minutes() int { return t.hour*60 + t.minute }

func parseTimeOfDay(s string) (timeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return timeOfDay{}, fmt.Errorf("powercontrol: invalid hour in %q: %w", s, err)
	}
	minute := 0
	if len(parts) > 1 {
		minute, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return timeOfDay{}, fmt.Errorf("powercontrol: invalid minute in %q: %w", s, err)
		}
	}
	return timeOfDay{hour: hour, minute: minute}, nil
}

type feedinRule struct {
	start, end timeOfDay
	limitPct   float64
}

// FeedinLimiter caps feed-in (export) power per a fixed or time-of-day
// dynamic schedule.
type FeedinLimiter struct {
	enabled       bool
	mode          string
	fixedLimitPct float64
	pvIntegration bool
	rules         []feedinRule
	loc           *time.Location
}

// NewFeedinLimiter builds a limiter from site config. Malformed dynamic
// rule time strings are skipped rather than rejecting the whole config.
func NewFeedinLimiter(cfg config.PowerControl) *FeedinLimiter {
	loc := time.UTC
	if cfg.Feedin.TimezoneName != "" {
		if l, err := time.LoadLocation(cfg.Feedin.TimezoneName); err == nil {
			loc = l
		}
	}

	f := &FeedinLimiter{
		enabled:       cfg.Enabled,
		mode:          cfg.Feedin.Mode,
		fixedLimitPct: cfg.Feedin.FixedLimitPct,
		pvIntegration: cfg.Feedin.PVIntegration,
		loc:           loc,
	}
	if f.fixedLimitPct == 0 {
		f.fixedLimitPct = 70.0
	}

	for _, r := range cfg.Feedin.DynamicRules {
		start, err := parseTimeOfDay(r.Start)
		if err != nil {
			continue
		}
		end, err := parseTimeOfDay(r.End)
		if err != nil {
			continue
		}
		f.rules = append(f.rules, feedinRule{start: start, end: end, limitPct: clamp01to100(r.Pct)})
	}
	return f
}

// CurrentLimitPct returns the export limit, as a percentage of rated
// power, in effect at t. 100 means unrestricted.
func (f *FeedinLimiter) CurrentLimitPct(t time.Time) float64 {
	if !f.enabled || f.mode == "" || f.mode == "off" {
		return 100.0
	}

	switch f.mode {
	case "fixed":
		return clamp01to100(f.fixedLimitPct)
	case "dynamic":
		if len(f.rules) == 0 {
			return 100.0
		}
		now := timeOfDay{hour: t.In(f.loc).Hour(), minute: t.In(f.loc).Minute()}
		for _, r := range f.rules {
			if timeInRange(now, r.start, r.end) {
				return clamp01to100(r.limitPct)
			}
		}
		return 100.0
	default:
		return 100.0
	}
}

func timeInRange(check, start, end timeOfDay) bool {
	c, s, e := check.minutes(), start.minutes(), end.minutes()
	if s <= e {
		return c >= s && c < e
	}
	// window wraps midnight, e.g. 22:00-06:00
	return c >= s || c < e
}

// ApplyToPower limits a single export setpoint (negative = discharging
// to the grid) at time t. pvAvailableKW is the forecast PV output used
// when PV-integrated limiting is configured; pass 0 when unavailable.
func (f *FeedinLimiter) ApplyToPower(t time.Time, powerKW, pvAvailableKW float64) float64 {
	if !f.enabled || f.mode == "" || f.mode == "off" {
		return powerKW
	}
	if powerKW >= 0 {
		return powerKW // not exporting
	}

	limitPct := f.CurrentLimitPct(t)
	if f.pvIntegration && pvAvailableKW > 0 {
		maxFeedinKW := pvAvailableKW * (limitPct / 100.0)
		if powerKW < -maxFeedinKW {
			return -maxFeedinKW
		}
		return powerKW
	}
	return powerKW * (limitPct / 100.0)
}

func clamp01to100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
