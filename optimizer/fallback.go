package optimizer

import (
	"sort"
	"time"
)

// percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks.
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

// SolveFallback runs the deterministic price-threshold heuristic: charge
// below the 25th percentile, discharge above the 75th, otherwise idle.
func SolveFallback(prices []float64, times []time.Time, socStartPct float64, c Constraints) Schedule {
	n := len(prices)
	if n == 0 {
		return Schedule{Solver: SolverFallback, Status: StatusNoData}
	}

	q1 := percentile(prices, 25)
	q3 := percentile(prices, 75)

	soc := socStartPct
	entries := make([]ScheduleEntry, n)
	var profit float64

	for t := 0; t < n; t++ {
		price := prices[t]
		var pNet float64 // discharge positive

		switch {
		case price <= q1 && soc < c.SoCMaxPercent:
			headroomKWh := (c.SoCMaxPercent - soc) / 100 * c.EnergyCapacityKWh
			pc := min(c.PChargeMaxKW, headroomKWh/dtHours)
			soc += pc * c.EfficiencyCharge * dtHours / c.EnergyCapacityKWh * 100
			pNet = -pc
			profit -= pc * dtHours * price / 1000
		case price >= q3 && soc > c.SoCMinPercent:
			availableKWh := (soc - c.SoCMinPercent) / 100 * c.EnergyCapacityKWh
			pd := min(c.PDischargeMaxKW, availableKWh*c.EfficiencyDischarge/dtHours)
			soc -= pd * dtHours / c.EfficiencyDischarge / c.EnergyCapacityKWh * 100
			pNet = pd
			profit += pd * dtHours * price / 1000
		}

		if soc < c.SoCMinPercent {
			soc = c.SoCMinPercent
		}
		if soc > c.SoCMaxPercent {
			soc = c.SoCMaxPercent
		}

		ts := time.Time{}
		if t < len(times) {
			ts = times[t]
		}
		entries[t] = ScheduleEntry{Time: ts, PNetKW: pNet, SoCPct: soc, PriceEURPerMWh: price}
	}

	return Schedule{
		Entries:           entries,
		Solver:            SolverFallback,
		Status:            StatusHeuristic,
		ExpectedProfitEUR: profit,
	}
}
