package plantstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devskill-org/bess-ems/telemetry"
)

func sample(t time.Time, pv, load, bess, grid float64) telemetry.Sample {
	return telemetry.Sample{
		Timestamp:      t,
		PVPowerKW:      telemetry.F64(pv),
		LoadPowerKW:    telemetry.F64(load),
		BatteryPowerKW: telemetry.F64(bess),
		GridPowerKW:    telemetry.F64(grid),
	}
}

func TestAggregateFlows_PVCoversLoadSurplusToGrid(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	samples := []telemetry.Sample{
		sample(base, 10, 4, 0, -6),
		sample(base.Add(time.Hour), 10, 4, 0, -6),
	}
	flows := AggregateFlows(samples)

	assert.Equal(t, 4.0, flows.PVToLoad)
	assert.Equal(t, 6.0, flows.PVToGrid)
	assert.Equal(t, 0.0, flows.GridToLoad)
	assert.Equal(t, 10.0, flows.PVGenerated)
	assert.Equal(t, 4.0, flows.LoadConsumed)
	assert.Equal(t, 6.0, flows.GridExport)
}

func TestAggregateFlows_BatteryDischargeFillsRemainingLoad(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	samples := []telemetry.Sample{
		sample(base, 2, 5, 3, 0),
		sample(base.Add(time.Hour), 2, 5, 3, 0),
	}
	flows := AggregateFlows(samples)

	assert.Equal(t, 2.0, flows.PVToLoad)
	assert.Equal(t, 3.0, flows.BatteryToLoad)
	assert.Equal(t, 0.0, flows.GridToLoad)
	assert.Equal(t, 3.0, flows.BESSDischarge)
}

func TestAggregateFlows_FewerThanTwoSamplesIsZero(t *testing.T) {
	flows := AggregateFlows([]telemetry.Sample{sample(time.Now(), 1, 1, 1, 1)})
	assert.Equal(t, FlowSummary{}, flows)
}

func TestStore_StalenessFallsBackToSimulation(t *testing.T) {
	store := New(1)
	now := time.Now()
	store.ApplySample(telemetry.Sample{
		Timestamp:   now.Add(-200 * time.Second),
		Source:      telemetry.SourceModbus,
		PVPowerKW:   telemetry.F64(5),
		LoadPowerKW: telemetry.F64(8),
	})
	store.SetControlOutputs(func(s *State) { s.SetpointKW = 2 })

	store.CheckStaleness(now)

	snap := store.Snapshot()
	assert.Equal(t, telemetry.SourceSimulation, snap.TelemetrySource)
	assert.Equal(t, 2.0, snap.PBESSKW)
	assert.Equal(t, 8.0-5.0-2.0, snap.PGridKW)
}

func TestStore_RecentRespectsLimit(t *testing.T) {
	store := New(1)
	base := time.Now().Add(-10 * time.Minute)
	for i := 0; i < 5; i++ {
		store.ApplySample(telemetry.Sample{Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	got := store.Recent(30, 2)
	assert.Len(t, got, 2)
}
