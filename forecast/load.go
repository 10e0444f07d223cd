package forecast

import "time"

// LoadPoint is one hourly load forecast point, in kW.
type LoadPoint struct {
	Time    time.Time
	PowerKW float64
}

// demoHourlyLoad is the fixed weekday load profile: low overnight, a
// morning ramp, a midday plateau, and an evening peak.
var demoHourlyLoad = [24]float64{
	8, 7, 6, 5, 6, 8,
	15, 25, 28, 22, 18, 16,
	20, 22, 20, 18, 20, 24,
	30, 32, 28, 22, 15, 10,
}

// SeasonalHistory is one historical load observation, used to fit the
// seasonal forecaster.
type SeasonalHistory struct {
	Time    time.Time
	PowerKW float64
}

// LoadProvider forecasts load, either via a seasonal model fit on history
// or the fixed demo profile.
type LoadProvider struct {
	SeasonalEnabled bool
	History         []SeasonalHistory // at least 30 days for the seasonal path
}

// NewLoadProvider builds a LoadProvider.
func NewLoadProvider(seasonalEnabled bool) *LoadProvider {
	return &LoadProvider{SeasonalEnabled: seasonalEnabled}
}

// Fetch returns an hourly load forecast covering at least 24 hours.
func (p *LoadProvider) Fetch(hours int) []LoadPoint {
	if hours <= 0 {
		hours = 24
	}
	if p.SeasonalEnabled && len(p.History) >= 30*24 {
		return p.seasonalForecast(hours)
	}
	return p.demoForecast(hours)
}

// seasonalForecast predicts each hour as the average of the History
// observations in the same (weekday, hour) bucket, or the overall History
// mean when that bucket is empty. It captures daily and weekly patterns
// only: there is no yearly term, and no multiplicative factor is fitted.
func (p *LoadProvider) seasonalForecast(hours int) []LoadPoint {
	var sum float64
	buckets := make(map[[2]int][]float64) // [weekday][hour] -> observations
	for _, h := range p.History {
		sum += h.PowerKW
		key := [2]int{int(h.Time.Weekday()), h.Time.Hour()}
		buckets[key] = append(buckets[key], h.PowerKW)
	}
	mean := sum / float64(len(p.History))
	if mean <= 0 {
		mean = 1
	}

	base := time.Now().Truncate(time.Hour)
	points := make([]LoadPoint, hours)
	for h := 0; h < hours; h++ {
		t := base.Add(time.Duration(h) * time.Hour)
		key := [2]int{int(t.Weekday()), t.Hour()}
		obs := buckets[key]
		power := mean
		if len(obs) > 0 {
			var bucketSum float64
			for _, v := range obs {
				bucketSum += v
			}
			power = bucketSum / float64(len(obs))
		}
		if power < 0 {
			power = 0
		}
		points[h] = LoadPoint{Time: t, PowerKW: power}
	}
	return points
}

func (p *LoadProvider) demoForecast(hours int) []LoadPoint {
	base := time.Now().Truncate(time.Hour)
	points := make([]LoadPoint, hours)
	for h := 0; h < hours; h++ {
		t := base.Add(time.Duration(h) * time.Hour)
		points[h] = LoadPoint{Time: t, PowerKW: demoHourlyLoad[t.Hour()]}
	}
	return points
}
