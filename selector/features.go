// Package selector chooses which strategy a site dispatches with: best
// score by default, with hysteresis against flapping and an optional
// learned classifier trained on historical optimization outcomes.
package selector

import "time"

// FeatureVector is the fixed 17-element feature set the learned
// classifier trains and predicts on.
type FeatureVector [17]float64

// Features builds a FeatureVector for the current moment, matching the
// normalization the original AI strategy selector applied per field.
func Features(soc, soh, tempC, priceTrend, priceVolatility, currentPrice,
	pv6hAvg, load6hAvg, price6hAvg float64, now time.Time,
	currentStrategyScore, pBESS, pPV, pLoad, pGrid float64) FeatureVector {

	weekday := float64(now.Weekday())
	isWeekend := 0.0
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		isWeekend = 1.0
	}

	return FeatureVector{
		soc / 100,
		soh / 100,
		tempC / 50,
		priceTrend,
		priceVolatility,
		currentPrice / 100,
		pv6hAvg / 100,
		load6hAvg / 100,
		price6hAvg / 100,
		float64(now.Hour()) / 24,
		weekday / 7,
		isWeekend,
		currentStrategyScore,
		pBESS / 100,
		pPV / 100,
		pLoad / 100,
		pGrid / 100,
	}
}
