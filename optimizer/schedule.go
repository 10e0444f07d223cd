// Package optimizer computes a battery dispatch Schedule that maximizes
// arbitrage profit against a price forecast, via a convex LP solve with a
// deterministic heuristic fallback.
package optimizer

import "time"

// Constraints mirrors the Battery Constraints entity: power/energy limits,
// SoC bounds, and round-trip efficiencies.
type Constraints struct {
	PChargeMaxKW      float64
	PDischargeMaxKW   float64
	EnergyCapacityKWh float64
	SoCMinPercent     float64
	SoCMaxPercent     float64
	EfficiencyCharge  float64
	EfficiencyDischarge float64
}

// Solver identifies which path produced a Schedule.
type Solver string

const (
	SolverLP       Solver = "lp"
	SolverFallback Solver = "fallback"
)

// Status is the outcome of a solve attempt.
type Status string

const (
	StatusOptimal           Status = "optimal"
	StatusOptimalInaccurate Status = "optimal_inaccurate"
	StatusHeuristic         Status = "heuristic"
	StatusNoData            Status = "no_data"
)

// ScheduleEntry is one timestep's dispatch decision, discharge-positive.
type ScheduleEntry struct {
	Time     time.Time
	PNetKW   float64 // discharge positive, charge negative
	SoCPct   float64
	PriceEURPerMWh float64
}

// Schedule is a full dispatch plan plus its solve provenance.
type Schedule struct {
	Entries       []ScheduleEntry
	Solver        Solver
	Status        Status
	ExpectedProfitEUR float64
}

// dtHours returns the timestep length in hours implied by N hourly price
// points (the contract assumes an hourly grid).
const dtHours = 1.0
