package optimizer

import (
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// SolveLP formulates the battery dispatch problem as a standard-form LP
// (maximize arbitrage profit, subject to the SoC dynamics and box
// constraints) and solves it with gonum's simplex implementation.
//
// Variables, per timestep t = 0..N-1, plus energy state t = 0..N:
//   p_c[t], p_d[t]  charge/discharge power (kW), bounded [0, P_max]
//   F[t] = E[t] - E_min  energy above the SoC floor (kWh), bounded [0, E_max-E_min]
// Bounds are encoded as equality constraints against slack variables so the
// whole problem fits gonum's equality-only Simplex form.
func SolveLP(prices []float64, times []time.Time, socStartPct float64, c Constraints) Schedule {
	n := len(prices)
	if n == 0 {
		return Schedule{Solver: SolverFallback, Status: StatusNoData}
	}

	eMin := c.SoCMinPercent / 100 * c.EnergyCapacityKWh
	eMax := c.SoCMaxPercent / 100 * c.EnergyCapacityKWh
	fMax := eMax - eMin
	f0 := socStartPct/100*c.EnergyCapacityKWh - eMin
	if f0 < 0 {
		f0 = 0
	}
	if f0 > fMax {
		f0 = fMax
	}

	// variable layout: [pc(0..n-1)] [pd(0..n-1)] [F(0..n)] [sc(0..n-1)] [sd(0..n-1)] [sF(0..n)]
	idxPc := func(t int) int { return t }
	idxPd := func(t int) int { return n + t }
	idxF := func(t int) int { return 2*n + t }
	idxSc := func(t int) int { return 3*n + 1 + t }
	idxSd := func(t int) int { return 4*n + 1 + t }
	idxSF := func(t int) int { return 5*n + 1 + t }

	nv := n /*pc*/ + n /*pd*/ + (n + 1) /*F*/ + n /*sc*/ + n /*sd*/ + (n + 1) /*sF*/

	numRows := 1 /* F0 = f0 */ + n /* dynamics */ + n /* pc bound */ + n /* pd bound */ + (n + 1) /* F bound */

	a := mat.NewDense(numRows, nv, nil)
	b := make([]float64, numRows)
	row := 0

	a.Set(row, idxF(0), 1)
	b[row] = f0
	row++

	for t := 0; t < n; t++ {
		a.Set(row, idxF(t+1), 1)
		a.Set(row, idxF(t), -1)
		a.Set(row, idxPc(t), -c.EfficiencyCharge*dtHours)
		a.Set(row, idxPd(t), dtHours/c.EfficiencyDischarge)
		b[row] = 0
		row++
	}

	for t := 0; t < n; t++ {
		a.Set(row, idxPc(t), 1)
		a.Set(row, idxSc(t), 1)
		b[row] = c.PChargeMaxKW
		row++
	}
	for t := 0; t < n; t++ {
		a.Set(row, idxPd(t), 1)
		a.Set(row, idxSd(t), 1)
		b[row] = c.PDischargeMaxKW
		row++
	}
	for t := 0; t <= n; t++ {
		a.Set(row, idxF(t), 1)
		a.Set(row, idxSF(t), 1)
		b[row] = fMax
		row++
	}

	// minimize -(profit): profit = sum (pd-pc)*dt*price/1000
	cost := make([]float64, nv)
	for t := 0; t < n; t++ {
		cost[idxPd(t)] = -dtHours * prices[t] / 1000
		cost[idxPc(t)] = dtHours * prices[t] / 1000
	}

	optF, x, err := lp.Simplex(cost, a, b, 0, nil)
	if err != nil {
		return Schedule{Solver: SolverFallback, Status: StatusHeuristic}
	}

	entries := make([]ScheduleEntry, n)
	for t := 0; t < n; t++ {
		pNet := x[idxPd(t)] - x[idxPc(t)]
		soc := (x[idxF(t)] + eMin) / c.EnergyCapacityKWh * 100
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
		entries[t] = ScheduleEntry{Time: ts, PNetKW: pNet, SoCPct: soc, PriceEURPerMWh: prices[t]}
	}

	return Schedule{
		Entries:           entries,
		Solver:            SolverLP,
		Status:            StatusOptimal,
		ExpectedProfitEUR: -optF,
	}
}
