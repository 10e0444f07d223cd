package plantstate

import (
	"math"
	"time"

	"github.com/devskill-org/bess-ems/telemetry"
)

// FlowSummary holds the aggregated kWh per directed energy flow over a
// window, decomposed into the seven edges of the site's power graph.
type FlowSummary struct {
	PVToLoad          float64
	BatteryToLoad     float64
	GridToLoad        float64
	PVToBattery       float64
	GridToBattery     float64
	PVToGrid          float64
	BatteryToGrid     float64

	PVGenerated   float64
	LoadConsumed  float64
	BESSCharge    float64
	BESSDischarge float64
	GridImport    float64
	GridExport    float64
}

// round3 rounds to 3 decimal places, matching the contract's output precision.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// AggregateFlows takes a window of samples and produces a trapezoidal
// integration of instantaneous power between consecutive samples, then
// greedily decomposes each interval into the seven directed flows, in the
// fixed priority order the contract specifies.
func AggregateFlows(samples []telemetry.Sample) FlowSummary {
	var sum FlowSummary
	if len(samples) < 2 {
		return sum
	}

	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		dtHours := cur.Timestamp.Sub(prev.Timestamp).Hours()
		if dtHours <= 0 {
			continue
		}

		pv := trapezoid(prev.PVPowerKW, cur.PVPowerKW) * dtHours
		load := trapezoid(prev.LoadPowerKW, cur.LoadPowerKW) * dtHours
		bess := trapezoid(prev.BatteryPowerKW, cur.BatteryPowerKW) * dtHours // + = discharge, - = charge
		grid := trapezoid(prev.GridPowerKW, cur.GridPowerKW) * dtHours       // + = import, - = export

		bessDischarge := math.Max(0, bess)
		bessCharge := math.Max(0, -bess)
		gridImport := math.Max(0, grid)
		gridExport := math.Max(0, -grid)

		remainingLoad := load
		remainingPV := pv
		remainingDischarge := bessDischarge
		remainingCharge := bessCharge
		remainingImport := gridImport
		remainingExport := gridExport

		// 1. PV -> Load
		step := math.Min(remainingPV, remainingLoad)
		sum.PVToLoad += step
		remainingPV -= step
		remainingLoad -= step

		// 2. Battery-discharge -> Load
		step = math.Min(remainingDischarge, remainingLoad)
		sum.BatteryToLoad += step
		remainingDischarge -= step
		remainingLoad -= step

		// 3. Grid -> Load
		step = math.Min(remainingImport, remainingLoad)
		sum.GridToLoad += step
		remainingImport -= step
		remainingLoad -= step

		// 4. PV-surplus -> Battery-charge
		step = math.Min(remainingPV, remainingCharge)
		sum.PVToBattery += step
		remainingPV -= step
		remainingCharge -= step

		// 5. Grid -> Battery-charge
		step = math.Min(remainingImport, remainingCharge)
		sum.GridToBattery += step
		remainingImport -= step
		remainingCharge -= step

		// 6. PV-surplus -> Grid
		step = math.Min(remainingPV, remainingExport)
		sum.PVToGrid += step
		remainingPV -= step
		remainingExport -= step

		// 7. Battery-discharge -> Grid
		step = math.Min(remainingDischarge, remainingExport)
		sum.BatteryToGrid += step
		remainingDischarge -= step
		remainingExport -= step

		sum.PVGenerated += pv
		sum.LoadConsumed += load
		sum.BESSCharge += bessCharge
		sum.BESSDischarge += bessDischarge
		sum.GridImport += gridImport
		sum.GridExport += gridExport
	}

	sum.PVToLoad = round3(sum.PVToLoad)
	sum.BatteryToLoad = round3(sum.BatteryToLoad)
	sum.GridToLoad = round3(sum.GridToLoad)
	sum.PVToBattery = round3(sum.PVToBattery)
	sum.GridToBattery = round3(sum.GridToBattery)
	sum.PVToGrid = round3(sum.PVToGrid)
	sum.BatteryToGrid = round3(sum.BatteryToGrid)
	sum.PVGenerated = round3(sum.PVGenerated)
	sum.LoadConsumed = round3(sum.LoadConsumed)
	sum.BESSCharge = round3(sum.BESSCharge)
	sum.BESSDischarge = round3(sum.BESSDischarge)
	sum.GridImport = round3(sum.GridImport)
	sum.GridExport = round3(sum.GridExport)
	return sum
}

func trapezoid(a, b *float64) float64 {
	return (deref(a) + deref(b)) / 2
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// WindowSince is a convenience for aggregating the default 5-minute window
// ending now.
func WindowSince(store *Store, window time.Duration) FlowSummary {
	minutes := int(window.Minutes())
	if minutes <= 0 {
		minutes = 5
	}
	return AggregateFlows(store.Recent(minutes, 0))
}
