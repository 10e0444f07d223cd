// Package plantstate holds the single fused view of a site's live
// measurements, its staleness rule, and telemetry history.
package plantstate

import (
	"sync"
	"time"

	"github.com/devskill-org/bess-ems/telemetry"
)

// Mode is the site's operating mode.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
	ModeIdle   Mode = "idle"
)

// OptimizationStatus reports the last optimization cycle's outcome.
type OptimizationStatus string

const (
	OptStatusPending OptimizationStatus = "pending"
	OptStatusSuccess OptimizationStatus = "success"
	OptStatusFailed  OptimizationStatus = "failed"
)

// StalenessWindow is the live-sample age beyond which the store falls back
// to simulation, per spec.md's 120s staleness rule.
const StalenessWindow = 120 * time.Second

// State is the fused plant snapshot: every telemetry field plus the
// control-layer outputs the rest of the system layers on top.
type State struct {
	SiteID int

	SoCPct        float64
	PBESSKW       float64
	PPVKW         float64
	PLoadKW       float64
	PGridKW       float64
	VoltageV      float64
	TemperatureC  float64
	StatusText    string
	StatusBits    string

	Mode                    Mode
	Alarm                   bool
	ActiveAlarms            []string
	ActiveStrategy          string
	PriceEURPerMWh          float64
	OptimizationStatus      OptimizationStatus
	SetpointKW              float64
	ActivePowerLimitW       float64
	PowerLimitReason        string
	DSOTrip                 bool
	SafetyAlarm             bool
	DSOLimitPct             float64
	RemoteShutdownRequested bool

	TelemetrySource  telemetry.Source
	LastLiveTimestamp time.Time
	Timestamp        time.Time

	// RawRegisters holds the most recent poll's raw register values, keyed
	// by register name, for the power-control signal extractor.
	RawRegisters map[string]int64
}

// Store owns the current State and a bounded telemetry history ring,
// serializing all mutation under a single lock (spec.md's single-writer
// ordering guarantee for one site).
type Store struct {
	mu      sync.RWMutex
	siteID  int
	current State
	history *telemetry.Ring
}

// New creates a Store for siteID with a history ring of the default
// capacity (~1800 entries, about one hour at a 2s poll interval).
func New(siteID int) *Store {
	return &Store{
		siteID: siteID,
		current: State{
			SiteID:             siteID,
			Mode:               ModeAuto,
			OptimizationStatus: OptStatusPending,
			TelemetrySource:    telemetry.SourceSimulation,
		},
		history: telemetry.NewRing(1800),
	}
}

// ApplySample merges an incoming telemetry sample into the current state
// and appends it to history. This is the only path that mutates measured
// (non-control) fields.
func (s *Store) ApplySample(sample telemetry.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Add(sample)

	s.current.TelemetrySource = sample.Source
	s.current.LastLiveTimestamp = sample.Timestamp
	s.current.Timestamp = sample.Timestamp
	if sample.Raw != nil {
		s.current.RawRegisters = sample.Raw
	}

	if sample.BatterySoCPct != nil {
		s.current.SoCPct = *sample.BatterySoCPct
	}
	if sample.BatteryPowerKW != nil {
		s.current.PBESSKW = *sample.BatteryPowerKW
	}
	if sample.PVPowerKW != nil {
		s.current.PPVKW = *sample.PVPowerKW
	}
	if sample.LoadPowerKW != nil {
		s.current.PLoadKW = *sample.LoadPowerKW
	}
	if sample.GridPowerKW != nil {
		s.current.PGridKW = *sample.GridPowerKW
	}
	if sample.VoltageV != nil {
		s.current.VoltageV = *sample.VoltageV
	}
	if sample.TemperatureC != nil {
		s.current.TemperatureC = *sample.TemperatureC
	}
	if sample.StatusText != nil {
		s.current.StatusText = *sample.StatusText
	}
	if sample.StatusBits != nil {
		s.current.StatusBits = *sample.StatusBits
	}
	if sample.BMSAlarm != nil && *sample.BMSAlarm {
		s.current.Alarm = true
	}
	if sample.DSOTrip != nil {
		s.current.DSOTrip = *sample.DSOTrip
	}
}

// CheckStaleness applies the 120s staleness rule: if no live sample has
// arrived recently, the controller falls back to a synthesized grid
// balance. Call once per Site Controller tick.
func (s *Store) CheckStaleness(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.LastLiveTimestamp.IsZero() || now.Sub(s.current.LastLiveTimestamp) > StalenessWindow {
		s.current.TelemetrySource = telemetry.SourceSimulation
		s.current.PBESSKW = s.current.SetpointKW
		s.current.PGridKW = s.current.PLoadKW - s.current.PPVKW - s.current.PBESSKW
	}
}

// SetControlOutputs records the control layer's derived fields (set on
// the tick path, not by incoming telemetry).
func (s *Store) SetControlOutputs(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.current)
}

// RecordSimulationSample appends the current synthesized state (as set by
// CheckStaleness) to telemetry history as a simulation-sourced sample,
// without otherwise mutating current state.
func (s *Store) RecordSimulationSample(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	soc, pBESS, pPV, pLoad, pGrid := s.current.SoCPct, s.current.PBESSKW, s.current.PPVKW, s.current.PLoadKW, s.current.PGridKW
	s.history.Add(telemetry.Sample{
		Timestamp:      now,
		Source:         telemetry.SourceSimulation,
		BatterySoCPct:  &soc,
		BatteryPowerKW: &pBESS,
		PVPowerKW:      &pPV,
		LoadPowerKW:    &pLoad,
		GridPowerKW:    &pGrid,
	})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Recent returns telemetry samples from the last `minutes`, truncated to
// at most `limit` entries (the most recent ones), matching the
// recent(minutes, limit) query contract.
func (s *Store) Recent(minutes int, limit int) []telemetry.Sample {
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
	samples := s.history.Since(cutoff)
	if limit > 0 && len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples
}
