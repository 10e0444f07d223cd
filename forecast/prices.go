// Package forecast aggregates day-ahead price, PV, and load series into a
// single hourly forecast for the optimizer.
package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PricePoint is one hourly day-ahead price in EUR/MWh.
type PricePoint struct {
	Time     time.Time
	EURPerMWh float64
}

// demoHourlyPrices is the fixed 24-hour demo curve: low overnight, rising
// through the morning, a midday plateau, and an evening peak before
// falling back off.
var demoHourlyPrices = [24]float64{
	65, 60, 55, 50, 52, 58,
	85, 110, 135, 130, 120, 115,
	105, 95, 90, 100, 110, 125,
	145, 150, 140, 120, 95, 75,
}

// awattarResponse mirrors the aWATTar marketdata JSON envelope.
type awattarResponse struct {
	Data []struct {
		StartTimestamp int64   `json:"start_timestamp"`
		MarketPrice    float64 `json:"marketprice"`
	} `json:"data"`
}

// PriceProvider fetches day-ahead prices for a site.
type PriceProvider struct {
	Region   string // "AT" or "DE"
	DemoMode bool
	HTTP     *http.Client
}

// NewPriceProvider builds a PriceProvider with a sensible HTTP timeout.
func NewPriceProvider(region string, demoMode bool) *PriceProvider {
	return &PriceProvider{
		Region:   region,
		DemoMode: demoMode,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PriceProvider) url() (string, error) {
	switch p.Region {
	case "AT":
		return "https://api.awattar.at/v1/marketdata", nil
	case "DE":
		return "https://api.awattar.de/v1/marketdata", nil
	default:
		return "", fmt.Errorf("unknown price region %q", p.Region)
	}
}

// Fetch returns a 48-hour day-ahead price window starting at the next
// whole hour. On any failure, or when DemoMode is set, it falls back to
// the fixed demo curve.
func (p *PriceProvider) Fetch(ctx context.Context) ([]PricePoint, error) {
	if p.DemoMode {
		return demoPrices(), nil
	}
	points, err := p.fetchReal(ctx)
	if err != nil {
		return demoPrices(), nil
	}
	return points, nil
}

func (p *PriceProvider) fetchReal(ctx context.Context) ([]PricePoint, error) {
	base, err := p.url()
	if err != nil {
		return nil, err
	}

	start := time.Now().UTC().Truncate(time.Hour).Add(time.Hour)
	end := start.Add(48 * time.Hour)

	reqURL := fmt.Sprintf("%s?start=%d&end=%d", base, start.UnixMilli(), end.UnixMilli())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bess-ems/1.0")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price API returned status %d", resp.StatusCode)
	}

	var parsed awattarResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	points := make([]PricePoint, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		points = append(points, PricePoint{
			Time:      time.UnixMilli(entry.StartTimestamp).UTC(),
			EURPerMWh: entry.MarketPrice,
		})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("price API returned no data points")
	}
	return points, nil
}

func demoPrices() []PricePoint {
	base := time.Now().UTC().Truncate(time.Hour)
	points := make([]PricePoint, 24)
	for h := 0; h < 24; h++ {
		points[h] = PricePoint{
			Time:      base.Add(time.Duration(h) * time.Hour),
			EURPerMWh: demoHourlyPrices[h],
		}
	}
	return points
}
