package powercontrol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devskill-org/bess-ems/config"
)

func baseConfig() config.PowerControl {
	var cfg config.PowerControl
	cfg.Enabled = true
	cfg.MaxPowerKW = 100
	return cfg
}

func TestManager_DSOTripForcesShutdown(t *testing.T) {
	m := New(baseConfig())
	d := m.Decide(50, Signals{DSOTrip: true}, 100, time.Now(), 0)
	assert.True(t, d.Shutdown)
	assert.Equal(t, "dso_trip", d.Reason)
	assert.Equal(t, 0.0, d.EffectiveKW)
}

func TestManager_SafetyAlarmTakesPrecedenceOverDSOLimit(t *testing.T) {
	m := New(baseConfig())
	pct := 50.0
	d := m.Decide(50, Signals{SafetyAlarm: true, DSOLimitPct: &pct}, 100, time.Now(), 0)
	assert.True(t, d.Shutdown)
	assert.Equal(t, "safety_alarm", d.Reason)
}

func TestManager_DSOLimitClampsRequestedPower(t *testing.T) {
	m := New(baseConfig())
	pct := 30.0
	d := m.Decide(80, Signals{DSOLimitPct: &pct}, 100, time.Now(), 0)
	assert.Equal(t, "dso_limit_pct", d.Reason)
	assert.InDelta(t, 30.0, d.EffectiveKW, 1e-9)
}

func TestManager_DisabledPassesThrough(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	m := New(cfg)
	d := m.Decide(42, Signals{}, 100, time.Now(), 0)
	assert.Equal(t, 42.0, d.EffectiveKW)
	assert.Equal(t, "power_control_disabled", d.Reason)
}

func TestFeedinLimiter_FixedModeCapsExport(t *testing.T) {
	cfg := baseConfig()
	cfg.Feedin.Mode = "fixed"
	cfg.Feedin.FixedLimitPct = 50
	f := NewFeedinLimiter(cfg)
	limited := f.ApplyToPower(time.Now(), -40, 0)
	assert.InDelta(t, -20.0, limited, 1e-9)
}

func TestFeedinLimiter_FixedModeIgnoresImport(t *testing.T) {
	cfg := baseConfig()
	cfg.Feedin.Mode = "fixed"
	cfg.Feedin.FixedLimitPct = 50
	f := NewFeedinLimiter(cfg)
	limited := f.ApplyToPower(time.Now(), 40, 0)
	assert.Equal(t, 40.0, limited)
}

func TestFeedinLimiter_DynamicRuleMatchesWindow(t *testing.T) {
	cfg := baseConfig()
	cfg.Feedin.Mode = "dynamic"
	cfg.Feedin.DynamicRules = []config.FeedinRule{{Start: "10:00", End: "14:00", Pct: 50}}
	f := NewFeedinLimiter(cfg)

	inWindow := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	outOfWindow := time.Date(2026, 7, 31, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, 50.0, f.CurrentLimitPct(inWindow))
	assert.Equal(t, 100.0, f.CurrentLimitPct(outOfWindow))
}

func TestFeedinLimiter_DynamicRuleWrapsMidnight(t *testing.T) {
	cfg := baseConfig()
	cfg.Feedin.Mode = "dynamic"
	cfg.Feedin.DynamicRules = []config.FeedinRule{{Start: "22:00", End: "06:00", Pct: 0}}
	f := NewFeedinLimiter(cfg)

	late := time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)
	early := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0.0, f.CurrentLimitPct(late))
	assert.Equal(t, 0.0, f.CurrentLimitPct(early))
	assert.Equal(t, 100.0, f.CurrentLimitPct(midday))
}

func TestFeedinLimiter_PVIntegrationCapsOnPVAvailable(t *testing.T) {
	cfg := baseConfig()
	cfg.Feedin.Mode = "fixed"
	cfg.Feedin.FixedLimitPct = 50
	cfg.Feedin.PVIntegration = true
	f := NewFeedinLimiter(cfg)

	limited := f.ApplyToPower(time.Now(), -40, 10) // 50% of 10kW PV = 5kW max feed-in
	assert.InDelta(t, -5.0, limited, 1e-9)
}

func TestExtractSignals_MaskAndEquals(t *testing.T) {
	cfg := baseConfig()
	mask := int64(0x01)
	equals := int64(2)
	cfg.Signals.DSOTrip = &config.SignalConfig{Register: "trip_reg", Mask: &mask}
	cfg.Signals.SafetyAlarm = &config.SignalConfig{Register: "alarm_reg", Equals: &equals}

	status := map[string]int64{"trip_reg": 0x01, "alarm_reg": 2}
	sig := ExtractSignals(status, cfg)
	assert.True(t, sig.DSOTrip)
	assert.True(t, sig.SafetyAlarm)
}

func TestExtractSignals_MissingRegisterIsFalse(t *testing.T) {
	cfg := baseConfig()
	cfg.Signals.DSOTrip = &config.SignalConfig{Register: "missing"}
	sig := ExtractSignals(map[string]int64{}, cfg)
	assert.False(t, sig.DSOTrip)
}
