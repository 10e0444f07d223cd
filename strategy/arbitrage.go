package strategy

import (
	"github.com/devskill-org/bess-ems/optimizer"
)

// Arbitrage dispatches purely off the price forecast via the LP optimizer.
type Arbitrage struct {
	MinSpreadEURPerMWh    float64
	MinProfitThresholdEUR float64
}

func (a *Arbitrage) Name() string { return "arbitrage" }

func (a *Arbitrage) RequiredForecastKeys() []string { return []string{"prices"} }

func (a *Arbitrage) Evaluate(_ State, f Forecasts) float64 {
	if len(f.Prices) == 0 {
		return 0
	}
	maxP, minP := f.Prices[0], f.Prices[0]
	for _, p := range f.Prices {
		if p > maxP {
			maxP = p
		}
		if p < minP {
			minP = p
		}
	}
	spread := maxP - minP
	spreadFactor := 1.0
	if spread < a.MinSpreadEURPerMWh {
		spreadFactor = 0.5
	}
	sd := stddev(f.Prices)

	return 0.7*clampPct(spread/100, 0, 1)*spreadFactor + 0.3*clampPct(sd/30, 0, 1)
}

func (a *Arbitrage) Optimize(state State, f Forecasts, c optimizer.Constraints) Result {
	sched := optimizer.Optimize(f.Prices, f.Times, state.SoCPct, c)

	entries := make([]ScheduleEntry, len(sched.Entries))
	for i, e := range sched.Entries {
		entries[i] = ScheduleEntry{Time: e.Time, PNetKW: e.PNetKW, SoCPct: e.SoCPct}
	}

	confidence := 0.7
	switch sched.Status {
	case optimizer.StatusOptimal:
		confidence = 1.0
	case optimizer.StatusOptimalInaccurate:
		confidence = 0.85
	case optimizer.StatusHeuristic:
		confidence = 0.7
	}
	if sched.ExpectedProfitEUR < a.MinProfitThresholdEUR {
		confidence *= 0.6
	}

	return Result{
		Schedule:    entries,
		ExpectedEUR: sched.ExpectedProfitEUR,
		Confidence:  confidence,
		Solver:      string(sched.Solver),
		OptStatus:   string(sched.Status),
	}
}
