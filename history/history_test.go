package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LogAndGetStateHistory(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.LogState(StateRecord{
		Timestamp: now, SoCPct: 55, PBESSKW: -5, PPVKW: 10, PLoadKW: 4, PGridKW: -1,
		PriceEURPerMWh: 80, ActiveStrategy: "arbitrage", SetpointKW: -5, Mode: "auto",
	}))

	history, err := s.GetStateHistory(24)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, "arbitrage", history[0].ActiveStrategy)
	assert.InDelta(t, 55.0, history[0].SoCPct, 1e-9)
}

func TestStore_GetStateHistoryExcludesOldRows(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().UTC().Add(-48 * time.Hour)

	require.NoError(t, s.LogState(StateRecord{Timestamp: old, SoCPct: 50}))

	history, err := s.GetStateHistory(24)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_LogOptimization(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.LogOptimization(OptimizationRecord{
		Timestamp: time.Now(), StrategyName: "arbitrage", ExpectedProfitEUR: 12.5,
		Confidence: 0.9, OptimizationStatus: "optimal", Solver: "lp",
		Metadata: map[string]any{"spread": 40.0},
	}))
}

func TestStore_LogStrategyChange(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.LogStrategyChange("arbitrage", "peak_shaving", "score margin exceeded",
		map[string]float64{"arbitrage": 0.3, "peak_shaving": 0.6}))
}

func TestStore_CalculateDailyMetricsAggregatesStateAndOptimization(t *testing.T) {
	s := openTestStore(t)
	day := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.LogState(StateRecord{Timestamp: day.Add(1 * time.Hour), SoCPct: 40, PBESSKW: -10}))
	require.NoError(t, s.LogState(StateRecord{Timestamp: day.Add(2 * time.Hour), SoCPct: 60, PBESSKW: 10}))
	require.NoError(t, s.LogOptimization(OptimizationRecord{
		Timestamp: day.Add(1 * time.Hour), StrategyName: "arbitrage", ExpectedProfitEUR: 5,
	}))

	require.NoError(t, s.CalculateDailyMetrics(day, 100))

	metrics, err := s.GetDailyMetrics(7)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.InDelta(t, 50.0, metrics[0].AvgSoCPct, 1e-9)
	assert.InDelta(t, 10.0, metrics[0].EnergyChargedKWh, 1e-9)
	assert.InDelta(t, 10.0, metrics[0].EnergyDischargedKWh, 1e-9)
	assert.InDelta(t, 0.1, metrics[0].Cycles, 1e-9) // 10kWh / 100kWh capacity
	assert.Equal(t, 1, metrics[0].StrategyUsage["arbitrage"])
}

func TestStore_CalculateDailyMetricsIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	day := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.LogState(StateRecord{Timestamp: day.Add(1 * time.Hour), SoCPct: 50}))

	require.NoError(t, s.CalculateDailyMetrics(day, 0))
	require.NoError(t, s.CalculateDailyMetrics(day, 0))

	metrics, err := s.GetDailyMetrics(7)
	require.NoError(t, err)
	assert.Len(t, metrics, 1)
}

func TestStore_GetPerformanceSummaryEmptyWhenNoData(t *testing.T) {
	s := openTestStore(t)
	summary, err := s.GetPerformanceSummary(30)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PeriodDays)
}

func TestStore_GetPerformanceSummaryRollsUpDailyMetrics(t *testing.T) {
	s := openTestStore(t)
	day1 := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.LogState(StateRecord{Timestamp: day1.Add(time.Hour), SoCPct: 50}))
	require.NoError(t, s.LogOptimization(OptimizationRecord{Timestamp: day1.Add(time.Hour), StrategyName: "arbitrage", ExpectedProfitEUR: 10}))
	require.NoError(t, s.CalculateDailyMetrics(day1, 0))

	require.NoError(t, s.LogState(StateRecord{Timestamp: day2.Add(time.Hour), SoCPct: 60}))
	require.NoError(t, s.LogOptimization(OptimizationRecord{Timestamp: day2.Add(time.Hour), StrategyName: "peak_shaving", ExpectedProfitEUR: 20}))
	require.NoError(t, s.CalculateDailyMetrics(day2, 0))

	summary, err := s.GetPerformanceSummary(30)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PeriodDays)
	assert.InDelta(t, 30.0, summary.TotalProfitEUR, 1e-9)
	assert.Equal(t, 1, summary.StrategyDistribution["arbitrage"])
	assert.Equal(t, 1, summary.StrategyDistribution["peak_shaving"])
}
