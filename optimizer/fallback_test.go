package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConstraints() Constraints {
	return Constraints{
		PChargeMaxKW:        50,
		PDischargeMaxKW:     50,
		EnergyCapacityKWh:   100,
		SoCMinPercent:       10,
		SoCMaxPercent:       90,
		EfficiencyCharge:    0.95,
		EfficiencyDischarge: 0.95,
	}
}

func TestSolveFallback_EmptyPrices(t *testing.T) {
	sched := SolveFallback(nil, nil, 50, testConstraints())
	assert.Equal(t, SolverFallback, sched.Solver)
	assert.Equal(t, StatusNoData, sched.Status)
	assert.Empty(t, sched.Entries)
}

func TestSolveFallback_ChargesOnCheapDischargesOnExpensive(t *testing.T) {
	prices := []float64{10, 20, 30, 150, 160, 170}
	sched := SolveFallback(prices, nil, 50, testConstraints())

	assert.Equal(t, StatusHeuristic, sched.Status)
	assert.Len(t, sched.Entries, 6)

	// Cheapest prices (<=Q1) should charge (negative p_net).
	assert.Less(t, sched.Entries[0].PNetKW, 0.0)
	// Most expensive prices (>=Q3) should discharge (positive p_net).
	assert.Greater(t, sched.Entries[5].PNetKW, 0.0)
}

func TestSolveFallback_RespectsSoCBounds(t *testing.T) {
	c := testConstraints()
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 10 // always cheap -> always wants to charge
	}
	sched := SolveFallback(prices, nil, 85, c)
	for _, e := range sched.Entries {
		assert.LessOrEqual(t, e.SoCPct, c.SoCMaxPercent)
		assert.GreaterOrEqual(t, e.SoCPct, c.SoCMinPercent)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{10, 20, 30, 40}
	assert.InDelta(t, 10, percentile(values, 0), 1e-9)
	assert.InDelta(t, 40, percentile(values, 100), 1e-9)
	assert.InDelta(t, 25, percentile(values, 50), 1e-9)
}

func TestOptimize_EmptyPricesYieldsNoData(t *testing.T) {
	sched := Optimize(nil, []time.Time{}, 50, testConstraints())
	assert.Equal(t, StatusNoData, sched.Status)
}
