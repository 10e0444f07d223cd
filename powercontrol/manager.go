package powercontrol

import (
	"log"
	"math"
	"time"

	"github.com/devskill-org/bess-ems/busreg"
	"github.com/devskill-org/bess-ems/config"
	"github.com/devskill-org/bess-ems/modbuspoll"
)

// Decision is the outcome of one precedence evaluation: what was asked
// for, what will actually be sent, why, and the register writes derived
// from it.
type Decision struct {
	RequestedKW    float64
	EffectiveKW    float64
	Shutdown       bool
	DSOTrip        bool
	SafetyAlarm    bool
	DSOLimitPct    *float64
	FeedinLimitPct float64
	LimitKW        *float64
	Reason         string
	Commands       map[string]int64
}

// Manager evaluates the DSO-trip > safety-alarm > DSO-limit > feed-in
// limit > pass-through precedence chain each cycle and prepares the
// register writes that realize the result.
type Manager struct {
	cfg    config.PowerControl
	feedin *FeedinLimiter
}

// New builds a Manager from site power-control config.
func New(cfg config.PowerControl) *Manager {
	return &Manager{cfg: cfg, feedin: NewFeedinLimiter(cfg)}
}

// Decide applies the precedence chain to a strategy's requested setpoint.
// maxPowerKW is the plant's rated power used to turn dso_limit_pct into
// an absolute kW limit; pvAvailableKW feeds PV-integrated feed-in limiting.
func (m *Manager) Decide(requestedKW float64, sig Signals, maxPowerKW float64, now time.Time, pvAvailableKW float64) Decision {
	if !m.cfg.Enabled {
		return Decision{
			RequestedKW: requestedKW,
			EffectiveKW: requestedKW,
			Reason:      "power_control_disabled",
			Commands:    map[string]int64{},
		}
	}

	effective := requestedKW
	reason := "plan"
	shutdown := false
	var limitKW *float64

	switch {
	case sig.DSOTrip:
		shutdown = true
		reason = "dso_trip"
		effective = 0
	case sig.SafetyAlarm:
		shutdown = true
		reason = "safety_alarm"
		effective = 0
	case sig.DSOLimitPct != nil && maxPowerKW > 0:
		lim := maxPowerKW * (*sig.DSOLimitPct / 100.0)
		lim = math.Max(0, lim)
		limitKW = &lim
		effective = applyLimit(requestedKW, lim)
		reason = "dso_limit_pct"
	default:
		limited := m.feedin.ApplyToPower(now, requestedKW, pvAvailableKW)
		if limited != requestedKW {
			effective = limited
			reason = "feedin_limit"
		}
	}

	feedinPct := m.feedin.CurrentLimitPct(now)

	return Decision{
		RequestedKW:    requestedKW,
		EffectiveKW:    effective,
		Shutdown:       shutdown,
		DSOTrip:        sig.DSOTrip,
		SafetyAlarm:    sig.SafetyAlarm,
		DSOLimitPct:    sig.DSOLimitPct,
		FeedinLimitPct: feedinPct,
		LimitKW:        limitKW,
		Reason:         reason,
		Commands:       m.prepareCommands(effective, shutdown, sig),
	}
}

// applyLimit clamps value_kw's magnitude to limit_kw while preserving sign.
func applyLimit(valueKW, limitKW float64) float64 {
	limitKW = math.Abs(limitKW)
	if valueKW >= 0 {
		return math.Min(valueKW, limitKW)
	}
	return -math.Min(math.Abs(valueKW), limitKW)
}

func (m *Manager) prepareCommands(effectiveKW float64, shutdown bool, sig Signals) map[string]int64 {
	commands := make(map[string]int64)
	w := m.cfg.Writes

	if w.RemoteEnable != nil && w.RemoteEnable.Register != "" {
		on, off := int64(w.RemoteEnable.On), int64(w.RemoteEnable.Off)
		if shutdown {
			commands[w.RemoteEnable.Register] = off
		} else {
			commands[w.RemoteEnable.Register] = on
		}
	}

	if w.ActivePowerSetW != nil && w.ActivePowerSetW.Register != "" {
		scale := w.ActivePowerSetW.Scale
		if scale == 0 {
			scale = 1.0
		}
		commands[w.ActivePowerSetW.Register] = int64(math.Round(effectiveKW * 1000.0 / scale))
	}

	if w.ActivePowerLimitPct != nil && w.ActivePowerLimitPct.Register != "" {
		scale := w.ActivePowerLimitPct.Scale
		if scale == 0 {
			scale = 1.0
		}
		if sig.DSOLimitPct != nil && !shutdown {
			commands[w.ActivePowerLimitPct.Register] = int64(math.Round(*sig.DSOLimitPct / scale))
		} else {
			commands[w.ActivePowerLimitPct.Register] = 0
		}
	}

	return commands
}

// ApplyCommands writes a decision's commands to the Modbus client,
// resolving each command's register name against profile, when
// auto-write is configured. Failures on individual registers are logged
// and skipped rather than aborting the remaining writes.
func (m *Manager) ApplyCommands(client *modbuspoll.Client, profile busreg.Profile, decision Decision, logger *log.Logger) {
	if !m.cfg.AutoWrite || client == nil {
		return
	}
	for name, value := range decision.Commands {
		reg, ok := profile.Registers[name]
		if !ok {
			logger.Printf("powercontrol: unknown register %q in command set, skipping", name)
			continue
		}
		if err := client.WriteRegister(reg, float64(value)); err != nil {
			logger.Printf("powercontrol: write %s=%d failed: %v", name, value, err)
			continue
		}
		logger.Printf("powercontrol: write %s=%d (auto_write)", name, value)
	}
}
