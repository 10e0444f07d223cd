// Package powercontrol implements the DSO/safety precedence layer that
// sits between a strategy's requested setpoint and what actually gets
// written to the inverter: grid-operator trip and safety-alarm signals
// always win, followed by a DSO power limit, followed by feed-in
// limitation, with the requested setpoint passing through unmodified
// otherwise.
package powercontrol

import (
	"github.com/devskill-org/bess-ems/config"
)

// Signals is the subset of the Modbus status map the precedence layer
// reads each cycle, extracted by name so the manager doesn't need to
// know register addresses.
type Signals struct {
	DSOTrip     bool
	SafetyAlarm bool
	DSOLimitPct *float64
}

// ExtractSignals reads the configured dso_trip/safety_alarm/dso_limit_pct
// signals out of a raw register-name -> value status map. Registers
// absent from status, or holding values that can't be coerced, are
// treated as signal-not-present (false / nil), never as an error.
func ExtractSignals(status map[string]int64, cfg config.PowerControl) Signals {
	var s Signals
	if cfg.Signals.DSOTrip != nil {
		s.DSOTrip = extractBool(status, cfg.Signals.DSOTrip)
	}
	if cfg.Signals.SafetyAlarm != nil {
		s.SafetyAlarm = extractBool(status, cfg.Signals.SafetyAlarm)
	}
	if cfg.Signals.DSOLimitPct != nil {
		s.DSOLimitPct = extractFloat(status, cfg.Signals.DSOLimitPct)
	}
	return s
}

func extractBool(status map[string]int64, cfg *config.SignalConfig) bool {
	raw, ok := status[cfg.Register]
	if !ok {
		return false
	}
	if cfg.Mask != nil {
		return raw&*cfg.Mask != 0
	}
	if cfg.Equals != nil {
		return raw == *cfg.Equals
	}
	return raw != 0
}

func extractFloat(status map[string]int64, cfg *config.SignalConfig) *float64 {
	raw, ok := status[cfg.Register]
	if !ok {
		return nil
	}
	scale := cfg.Scale
	if scale == 0 {
		scale = 1.0
	}
	value := float64(raw) * scale

	if cfg.MinPct != nil && value < *cfg.MinPct {
		value = *cfg.MinPct
	}
	if cfg.MaxPct != nil && value > *cfg.MaxPct {
		value = *cfg.MaxPct
	}
	return &value
}
