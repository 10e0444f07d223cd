package forecast

import (
	"sync"
	"time"

	"github.com/devskill-org/bess-ems/meteo"
)

// WeatherCache caches the last fetched weather forecast for a cache
// duration, avoiding refetching the MET Norway API on every PV forecast
// request.
type WeatherCache struct {
	mu            sync.RWMutex
	forecast      *meteo.METJSONForecast
	fetchedAt     time.Time
	cacheDuration time.Duration
}

// NewWeatherCache creates a cache with the given validity duration.
func NewWeatherCache(cacheDuration time.Duration) *WeatherCache {
	if cacheDuration <= 0 {
		cacheDuration = 30 * time.Minute
	}
	return &WeatherCache{cacheDuration: cacheDuration}
}

// Get returns the cached forecast if it is still within its validity window.
func (w *WeatherCache) Get() (*meteo.METJSONForecast, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.forecast == nil || time.Since(w.fetchedAt) > w.cacheDuration {
		return nil, false
	}
	return w.forecast, true
}

// Set stores a freshly fetched forecast.
func (w *WeatherCache) Set(forecast *meteo.METJSONForecast) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.forecast = forecast
	w.fetchedAt = time.Now()
}
