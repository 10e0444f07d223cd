package strategy

import (
	"math"

	"github.com/devskill-org/bess-ems/optimizer"
)

// LoadBalancing tracks a smoothed net-load target, dispatching the
// battery to absorb short-term deviations from it.
type LoadBalancing struct{}

func (l *LoadBalancing) Name() string { return "load_balancing" }

func (l *LoadBalancing) RequiredForecastKeys() []string { return []string{"load"} }

func (l *LoadBalancing) Evaluate(_ State, f Forecasts) float64 {
	if len(f.Load) == 0 {
		return 0
	}
	m := mean(f.Load)
	cv := 0.0
	if m > 0 {
		cv = stddev(f.Load) / m
	}

	netLoad := netLoadSeries(f)
	var gradSum float64
	for i := 1; i < len(netLoad); i++ {
		gradSum += math.Abs(netLoad[i] - netLoad[i-1])
	}
	gradMean := 0.0
	if len(netLoad) > 1 {
		gradMean = gradSum / float64(len(netLoad)-1)
	}

	return clampPct(cv, 0, 0.6) + clampPct(gradMean/10, 0, 0.4)
}

func (l *LoadBalancing) Optimize(state State, f Forecasts, c optimizer.Constraints) Result {
	netLoad := netLoadSeries(f)
	n := len(netLoad)
	if n == 0 {
		return Result{}
	}
	target := centeredMovingAverage(netLoad, 3)

	soc := state.SoCPct
	entries := make([]ScheduleEntry, n)

	for t := 0; t < n; t++ {
		setpoint := netLoad[t] - target[t] // positive = net load above trend -> discharge to offset

		var pNet float64
		switch {
		case setpoint > 0 && soc > c.SoCMinPercent:
			availableKWh := (soc - c.SoCMinPercent) / 100 * c.EnergyCapacityKWh
			pNet = minOf(setpoint, c.PDischargeMaxKW, availableKWh*c.EfficiencyDischarge)
			soc -= pNet / c.EfficiencyDischarge / c.EnergyCapacityKWh * 100
		case setpoint < 0 && soc < c.SoCMaxPercent:
			headroomKWh := (c.SoCMaxPercent - soc) / 100 * c.EnergyCapacityKWh
			pc := minOf(-setpoint, c.PChargeMaxKW, headroomKWh)
			soc += pc * c.EfficiencyCharge / c.EnergyCapacityKWh * 100
			pNet = -pc
		}
		soc = clampPct(soc, c.SoCMinPercent, c.SoCMaxPercent)

		entries[t] = ScheduleEntry{Time: f.timeAt(t), PNetKW: pNet, SoCPct: soc}
	}

	return Result{Schedule: entries, Confidence: 0.7, Solver: "heuristic", OptStatus: "heuristic"}
}

func netLoadSeries(f Forecasts) []float64 {
	n := len(f.Load)
	if len(f.PV) < n {
		n = len(f.PV)
	}
	if n == 0 {
		n = len(f.Load)
	}
	out := make([]float64, len(f.Load))
	for i := range f.Load {
		pv := 0.0
		if i < len(f.PV) {
			pv = f.PV[i]
		}
		out[i] = f.Load[i] - pv
	}
	return out
}

// centeredMovingAverage computes a centered moving average with the given
// odd window, clamping at the series edges.
func centeredMovingAverage(series []float64, window int) []float64 {
	half := window / 2
	out := make([]float64, len(series))
	for i := range series {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(series)-1 {
			hi = len(series) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += series[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}
