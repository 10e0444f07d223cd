package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devskill-org/bess-ems/optimizer"
)

func constraints() optimizer.Constraints {
	return optimizer.Constraints{
		PChargeMaxKW:        50,
		PDischargeMaxKW:     50,
		EnergyCapacityKWh:   100,
		SoCMinPercent:       10,
		SoCMaxPercent:       90,
		EfficiencyCharge:    0.95,
		EfficiencyDischarge: 0.95,
	}
}

func TestArbitrage_EvaluateZeroOnEmptyPrices(t *testing.T) {
	a := &Arbitrage{MinSpreadEURPerMWh: 50, MinProfitThresholdEUR: 5}
	assert.Equal(t, 0.0, a.Evaluate(State{SoCPct: 50}, Forecasts{}))
}

func TestArbitrage_OptimizeReturnsFullScheduleWhenPricesFlat(t *testing.T) {
	a := &Arbitrage{MinSpreadEURPerMWh: 50, MinProfitThresholdEUR: 5}
	prices := make([]float64, 6)
	for i := range prices {
		prices[i] = 100
	}
	result := a.Optimize(State{SoCPct: 50}, Forecasts{Prices: prices}, constraints())
	assert.Len(t, result.Schedule, 6)
}

func TestPeakShaving_ScoreHigherForPeakyLoad(t *testing.T) {
	p := &PeakShaving{}
	peaky := Forecasts{Load: []float64{5, 5, 5, 5, 40, 5}}
	flat := Forecasts{Load: []float64{10, 10, 10, 10, 10, 10}}
	assert.Greater(t, p.Evaluate(State{}, peaky), p.Evaluate(State{}, flat))
}

func TestPeakShaving_DischargesAbovePercentile(t *testing.T) {
	p := &PeakShaving{}
	load := []float64{5, 5, 5, 5, 40, 5}
	result := p.Optimize(State{SoCPct: 50}, Forecasts{Load: load}, constraints())
	assert.Greater(t, result.Schedule[4].PNetKW, 0.0)
}

func TestSelfConsumption_ChargesOnSurplus(t *testing.T) {
	s := &SelfConsumption{GridTariffEURPerKWh: 0.3, FeedinTariffEURPerKWh: 0.08}
	result := s.Optimize(State{SoCPct: 50}, Forecasts{PV: []float64{10}, Load: []float64{4}}, constraints())
	assert.Less(t, result.Schedule[0].PNetKW, 0.0) // negative = charging
}

func TestSelfConsumption_DischargesOnDeficit(t *testing.T) {
	s := &SelfConsumption{GridTariffEURPerKWh: 0.3, FeedinTariffEURPerKWh: 0.08}
	result := s.Optimize(State{SoCPct: 50}, Forecasts{PV: []float64{1}, Load: []float64{10}}, constraints())
	assert.Greater(t, result.Schedule[0].PNetKW, 0.0)
}

func TestLoadBalancing_IdleWhenFlat(t *testing.T) {
	l := &LoadBalancing{}
	flat := Forecasts{Load: []float64{10, 10, 10, 10, 10}, PV: []float64{0, 0, 0, 0, 0}}
	result := l.Optimize(State{SoCPct: 50}, flat, constraints())
	for _, e := range result.Schedule {
		assert.InDelta(t, 0.0, e.PNetKW, 1e-9)
	}
}
