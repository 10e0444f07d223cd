package strategy

import "github.com/devskill-org/bess-ems/optimizer"

// SelfConsumption stores PV surplus and discharges to cover deficit,
// maximizing the fraction of load served on-site. Internally it works in
// a charge-positive convention and negates at the Optimize boundary to
// match the schedule-wide discharge-positive contract.
type SelfConsumption struct {
	GridTariffEURPerKWh   float64
	FeedinTariffEURPerKWh float64
}

func (s *SelfConsumption) Name() string { return "self_consumption" }

func (s *SelfConsumption) RequiredForecastKeys() []string { return []string{"pv", "load"} }

func (s *SelfConsumption) Evaluate(_ State, f Forecasts) float64 {
	if len(f.PV) == 0 || len(f.Load) == 0 {
		return 0
	}
	avgPV := mean(f.PV)

	n := minInt(len(f.PV), len(f.Load))
	var surplusSum, deficitSum float64
	for i := 0; i < n; i++ {
		diff := f.PV[i] - f.Load[i]
		if diff > 0 {
			surplusSum += diff
		} else {
			deficitSum += -diff
		}
	}
	avgSurplus := surplusSum / float64(n)
	avgDeficit := deficitSum / float64(n)

	return 0.6*clampPct(avgPV/10, 0, 1) + 0.4*clampPct((avgSurplus+avgDeficit)/10, 0, 1)
}

func (s *SelfConsumption) Optimize(state State, f Forecasts, c optimizer.Constraints) Result {
	n := minInt(len(f.PV), len(f.Load))
	if n == 0 {
		return Result{}
	}

	soc := state.SoCPct
	entries := make([]ScheduleEntry, n)

	var baselineCost, withBatteryCost float64

	for t := 0; t < n; t++ {
		pv, load := f.PV[t], f.Load[t]
		diff := pv - load // charge-positive local convention

		baselineImport := maxOf(load-pv, 0)
		baselineExport := maxOf(pv-load, 0)
		baselineCost += baselineImport*s.GridTariffEURPerKWh - baselineExport*s.FeedinTariffEURPerKWh

		var pChargeLocal float64
		if diff > 0 {
			headroomKWh := (c.SoCMaxPercent - soc) / 100 * c.EnergyCapacityKWh
			pChargeLocal = minOf(diff, c.PChargeMaxKW, headroomKWh)
			soc += pChargeLocal * c.EfficiencyCharge / c.EnergyCapacityKWh * 100
		} else {
			availableKWh := (soc - c.SoCMinPercent) / 100 * c.EnergyCapacityKWh
			pChargeLocal = -minOf(-diff, c.PDischargeMaxKW, availableKWh*c.EfficiencyDischarge)
			soc -= (-pChargeLocal) / c.EfficiencyDischarge / c.EnergyCapacityKWh * 100
		}
		soc = clampPct(soc, c.SoCMinPercent, c.SoCMaxPercent)

		gridAfterBattery := load - pv + pChargeLocal
		if gridAfterBattery > 0 {
			withBatteryCost += gridAfterBattery * s.GridTariffEURPerKWh
		} else {
			withBatteryCost += gridAfterBattery * s.FeedinTariffEURPerKWh // negative, i.e. a credit
		}

		entries[t] = ScheduleEntry{Time: f.timeAt(t), PNetKW: -pChargeLocal, SoCPct: soc}
	}

	savings := baselineCost - withBatteryCost

	return Result{Schedule: entries, ExpectedEUR: savings, Confidence: 0.75, Solver: "heuristic", OptStatus: "heuristic"}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
