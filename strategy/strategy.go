// Package strategy implements the set of dispatch strategies the selector
// chooses between, each able to score its own relevance and produce a
// Schedule for the current forecast.
package strategy

import (
	"math"
	"time"

	"github.com/devskill-org/bess-ems/optimizer"
)

// Forecasts bundles the series a strategy may need; absent series are nil.
type Forecasts struct {
	Times  []time.Time
	Prices []float64 // EUR/MWh
	PV     []float64 // kW
	Load   []float64 // kW
}

// State is the subset of Plant State a strategy reads.
type State struct {
	SoCPct float64
}

// Result is a strategy's dispatch proposal, discharge-positive throughout.
type Result struct {
	Schedule      []ScheduleEntry
	ExpectedEUR   float64 // profit (arbitrage) or savings (self-consumption)
	Confidence    float64
	Solver        string
	OptStatus     string
}

// ScheduleEntry mirrors optimizer.ScheduleEntry so strategies that don't
// depend on the optimizer package can still produce one.
type ScheduleEntry struct {
	Time   time.Time
	PNetKW float64 // discharge positive
	SoCPct float64
}

// Strategy is the common interface every dispatch strategy implements.
type Strategy interface {
	Name() string
	RequiredForecastKeys() []string
	Evaluate(state State, f Forecasts) float64
	Optimize(state State, f Forecasts, c optimizer.Constraints) Result
}

func clampPct(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}
