package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devskill-org/bess-ems/optimizer"
	"github.com/devskill-org/bess-ems/strategy"
)

type scoreStrategy struct {
	name  string
	score float64
}

func (s *scoreStrategy) Name() string                 { return s.name }
func (s *scoreStrategy) RequiredForecastKeys() []string { return nil }
func (s *scoreStrategy) Evaluate(strategy.State, strategy.Forecasts) float64 {
	return s.score
}
func (s *scoreStrategy) Optimize(strategy.State, strategy.Forecasts, optimizer.Constraints) strategy.Result {
	return strategy.Result{}
}

func TestSelector_PicksBestScoreInitially(t *testing.T) {
	sel := New([]strategy.Strategy{
		&scoreStrategy{"a", 0.2},
		&scoreStrategy{"b", 0.8},
	}, 0.15, false)

	d := sel.Select(strategy.State{}, strategy.Forecasts{}, FeatureVector{})
	assert.Equal(t, "b", d.Strategy)
	assert.True(t, d.Switched)
}

func TestSelector_HysteresisBlocksSmallMargin(t *testing.T) {
	b := &scoreStrategy{"b", 0.45}
	sel := New([]strategy.Strategy{
		&scoreStrategy{"a", 0.50},
		b,
	}, 0.15, false)

	first := sel.Select(strategy.State{}, strategy.Forecasts{}, FeatureVector{})
	assert.Equal(t, "a", first.Strategy)

	b.score = 0.55 // now the best scorer, but only 0.05 ahead of a
	second := sel.Select(strategy.State{}, strategy.Forecasts{}, FeatureVector{})
	assert.Equal(t, "a", second.Strategy)
	assert.False(t, second.Switched)
}

func TestSelector_LargeMarginSwitches(t *testing.T) {
	b := &scoreStrategy{"b", 0.40}
	sel := New([]strategy.Strategy{
		&scoreStrategy{"a", 0.50},
		b,
	}, 0.15, false)

	sel.Select(strategy.State{}, strategy.Forecasts{}, FeatureVector{})
	b.score = 0.90 // 0.40 ahead of the current strategy a
	d := sel.Select(strategy.State{}, strategy.Forecasts{}, FeatureVector{})
	assert.Equal(t, "b", d.Strategy)
	assert.True(t, d.Switched)
}

func TestSelector_ManualModePinsChoice(t *testing.T) {
	sel := New([]strategy.Strategy{
		&scoreStrategy{"a", 0.1},
		&scoreStrategy{"b", 0.9},
	}, 0.15, false)

	sel.SetMode(ModeManual)
	err := sel.SelectManual("a")
	assert.NoError(t, err)

	d := sel.Select(strategy.State{}, strategy.Forecasts{}, FeatureVector{})
	assert.Equal(t, "a", d.Strategy)
	assert.Equal(t, "manual", d.Source)
}

func TestSelector_SelectManualRejectsUnknownStrategy(t *testing.T) {
	sel := New([]strategy.Strategy{&scoreStrategy{"a", 0.1}}, 0.15, false)
	assert.Error(t, sel.SelectManual("nonexistent"))
}

func TestClassifier_RefusesTrainingBelowMinimum(t *testing.T) {
	c := NewClassifier()
	records := make([]TrainingRecord, 10)
	assert.False(t, c.Train(records))
	assert.False(t, c.IsTrained())
}

func TestClassifier_PredictsNearestCentroid(t *testing.T) {
	c := NewClassifier()
	records := make([]TrainingRecord, 0, 120)
	for i := 0; i < 60; i++ {
		records = append(records, TrainingRecord{Features: FeatureVector{0.1, 0.1}, Strategy: "arbitrage"})
		records = append(records, TrainingRecord{Features: FeatureVector{0.9, 0.9}, Strategy: "peak_shaving"})
	}
	assert.True(t, c.Train(records))

	label, ok := c.Predict(FeatureVector{0.15, 0.12})
	assert.True(t, ok)
	assert.Equal(t, "arbitrage", label)

	label, ok = c.Predict(FeatureVector{0.85, 0.95})
	assert.True(t, ok)
	assert.Equal(t, "peak_shaving", label)
}

func TestFeatures_WeekendFlag(t *testing.T) {
	sunday := time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)
	f := Features(50, 100, 25, 0, 0, 50, 0, 0, 0, sunday, 0.5, 0, 0, 0, 0)
	assert.Equal(t, 1.0, f[11])
}
