package optimizer

import "time"

// Optimize returns the best Schedule for the given price window: the LP
// solve when it reports optimal/optimal_inaccurate, the heuristic fallback
// otherwise (including when the LP solver errors or prices is empty).
func Optimize(prices []float64, times []time.Time, socStartPct float64, c Constraints) Schedule {
	if len(prices) == 0 {
		return Schedule{Solver: SolverFallback, Status: StatusNoData}
	}

	sched := SolveLP(prices, times, socStartPct, c)
	if sched.Status == StatusOptimal || sched.Status == StatusOptimalInaccurate {
		return sched
	}
	return SolveFallback(prices, times, socStartPct, c)
}
