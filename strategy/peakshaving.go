package strategy

import (
	"sort"
	"time"

	"github.com/devskill-org/bess-ems/optimizer"
)

// PeakShaving discharges during load peaks and recharges during troughs,
// flattening the site's grid import profile.
type PeakShaving struct{}

func (p *PeakShaving) Name() string { return "peak_shaving" }

func (p *PeakShaving) RequiredForecastKeys() []string { return []string{"load"} }

func (p *PeakShaving) Evaluate(_ State, f Forecasts) float64 {
	if len(f.Load) == 0 {
		return 0
	}
	m := mean(f.Load)
	if m <= 0 {
		return 0
	}
	maxLoad := f.Load[0]
	for _, v := range f.Load {
		if v > maxLoad {
			maxLoad = v
		}
	}
	peakRatio := (maxLoad - m) / m
	cv := stddev(f.Load) / m

	return 0.6*clampPct(2*peakRatio, 0, 1) + 0.4*clampPct(3*cv, 0, 1)
}

func (p *PeakShaving) Optimize(state State, f Forecasts, c optimizer.Constraints) Result {
	n := len(f.Load)
	if n == 0 {
		return Result{}
	}
	threshold := percentile(f.Load, 75)

	soc := state.SoCPct
	entries := make([]ScheduleEntry, n)

	for t := 0; t < n; t++ {
		load := f.Load[t]
		var pNet float64

		switch {
		case load > threshold && soc > c.SoCMinPercent:
			availableKWh := (soc - c.SoCMinPercent) / 100 * c.EnergyCapacityKWh
			pd := minOf(c.PDischargeMaxKW, load-threshold, availableKWh*c.EfficiencyDischarge)
			soc -= pd / c.EfficiencyDischarge / c.EnergyCapacityKWh * 100
			pNet = pd
		case load < 0.7*threshold && soc < c.SoCMaxPercent:
			headroomKWh := (c.SoCMaxPercent - soc) / 100 * c.EnergyCapacityKWh
			pc := minOf(c.PChargeMaxKW, 0.5*threshold, headroomKWh)
			soc += pc * c.EfficiencyCharge / c.EnergyCapacityKWh * 100
			pNet = -pc
		}

		soc = clampPct(soc, c.SoCMinPercent, c.SoCMaxPercent)

		entries[t] = ScheduleEntry{Time: f.timeAt(t), PNetKW: pNet, SoCPct: soc}
	}

	return Result{Schedule: entries, Confidence: 0.8, Solver: "heuristic", OptStatus: "heuristic"}
}

func (f Forecasts) timeAt(i int) time.Time {
	if i < len(f.Times) {
		return f.Times[i]
	}
	return time.Time{}
}

func minOf(values ...float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
