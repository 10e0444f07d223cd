package forecast

import (
	"context"
	"math"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/devskill-org/bess-ems/meteo"
)

// PVPoint is one hourly PV generation forecast point, in kW.
type PVPoint struct {
	Time    time.Time
	PowerKW float64
}

// PVProvider forecasts PV generation, either from a weather-based
// clear-sky model or a fixed demo curve.
type PVProvider struct {
	Latitude, Longitude float64
	PeakPowerKW         float64
	Weather             *meteo.Client // nil disables the weather-based path
	UserAgent           string
}

// NewPVProvider builds a PVProvider. Pass a nil weather client to always
// use the sinusoidal demo curve.
func NewPVProvider(lat, lon, peakPowerKW float64, weather *meteo.Client) *PVProvider {
	return &PVProvider{Latitude: lat, Longitude: lon, PeakPowerKW: peakPowerKW, Weather: weather}
}

// Fetch returns an hourly PV forecast covering at least 24 hours.
func (p *PVProvider) Fetch(ctx context.Context, hours int) ([]PVPoint, error) {
	if hours <= 0 {
		hours = 24
	}
	if p.Weather == nil {
		return p.demoCurve(hours), nil
	}

	wx, err := p.Weather.GetCompact(meteo.QueryParams{
		Location: meteo.Location{Latitude: p.Latitude, Longitude: p.Longitude},
	})
	if err != nil {
		return p.demoCurve(hours), nil
	}

	base := time.Now().UTC().Truncate(time.Hour)
	points := make([]PVPoint, hours)
	for h := 0; h < hours; h++ {
		t := base.Add(time.Duration(h) * time.Hour)
		clouds, tempC, ok := nearestWeather(wx, t)
		clearSky := p.clearSky(t)
		power := clearSky
		if ok {
			power = clearSky * (1 - 0.8*clouds/100) * (1 - math.Max(0, tempC-25)*0.004)
		}
		if power < 0 {
			power = 0
		}
		points[h] = PVPoint{Time: t, PowerKW: power}
	}
	return points, nil
}

// clearSky estimates unobstructed PV output at t from solar elevation,
// scaled to PeakPowerKW at zenith.
func (p *PVProvider) clearSky(t time.Time) float64 {
	times := suncalc.GetTimes(t, p.Latitude, p.Longitude)
	sunrise := times["sunrise"].Value
	sunset := times["sunset"].Value
	if t.Before(sunrise) || t.After(sunset) {
		return 0
	}

	pos := suncalc.GetPosition(t, p.Latitude, p.Longitude)
	altitude := pos.Altitude // radians
	if altitude <= 0 {
		return 0
	}
	return p.PeakPowerKW * math.Sin(altitude)
}

func nearestWeather(forecast *meteo.METJSONForecast, target time.Time) (cloudPct, tempC float64, ok bool) {
	if forecast == nil || forecast.Properties == nil {
		return 0, 0, false
	}
	var best *meteo.ForecastTimeStep
	bestDelta := time.Duration(math.MaxInt64)
	for i := range forecast.Properties.Timeseries {
		ts := &forecast.Properties.Timeseries[i]
		delta := ts.Time.Sub(target)
		if delta < 0 {
			delta = -delta
		}
		if delta < bestDelta {
			bestDelta = delta
			best = ts
		}
	}
	if best == nil || best.Data == nil || best.Data.Instant == nil || best.Data.Instant.Details == nil {
		return 0, 0, false
	}
	details := best.Data.Instant.Details
	if details.CloudAreaFraction != nil {
		cloudPct = *details.CloudAreaFraction
	}
	if details.AirTemperature != nil {
		tempC = *details.AirTemperature
	}
	return cloudPct, tempC, true
}

// demoCurve produces the sinusoidal fallback: zero outside 06:00-20:00
// local, peaking at 50 kW (or PeakPowerKW) at 13:00.
func (p *PVProvider) demoCurve(hours int) []PVPoint {
	peak := p.PeakPowerKW
	if peak <= 0 {
		peak = 50
	}
	base := time.Now().Truncate(time.Hour)
	points := make([]PVPoint, hours)
	for h := 0; h < hours; h++ {
		t := base.Add(time.Duration(h) * time.Hour)
		hod := t.Hour()
		var power float64
		if hod >= 6 && hod <= 20 {
			frac := float64(hod-6) / 14.0
			power = peak * math.Sin(frac*math.Pi)
		}
		points[h] = PVPoint{Time: t, PowerKW: math.Round(power*100) / 100}
	}
	return points
}
