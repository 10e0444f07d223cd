package forecast

import "context"

// Forecast bundles the price, PV, and load series a Site Controller's
// optimization cycle needs, all hour-aligned and covering at least 24
// hours.
type Forecast struct {
	Prices []PricePoint
	PV     []PVPoint
	Load   []LoadPoint
}

// Aggregator exposes fetch_forecast(site) -> {prices, pv, load}.
type Aggregator struct {
	Prices *PriceProvider
	PV     *PVProvider
	Load   *LoadProvider
	Hours  int
}

// NewAggregator builds an Aggregator from its three providers.
func NewAggregator(prices *PriceProvider, pv *PVProvider, load *LoadProvider) *Aggregator {
	return &Aggregator{Prices: prices, PV: pv, Load: load, Hours: 24}
}

// Fetch gathers prices, PV, and load for the site, never returning
// negative values in any series.
func (a *Aggregator) Fetch(ctx context.Context) (Forecast, error) {
	hours := a.Hours
	if hours <= 0 {
		hours = 24
	}

	prices, err := a.Prices.Fetch(ctx)
	if err != nil {
		return Forecast{}, err
	}
	pv, err := a.PV.Fetch(ctx, hours)
	if err != nil {
		return Forecast{}, err
	}
	load := a.Load.Fetch(hours)

	for i := range pv {
		if pv[i].PowerKW < 0 {
			pv[i].PowerKW = 0
		}
	}
	for i := range load {
		if load[i].PowerKW < 0 {
			load[i].PowerKW = 0
		}
	}

	return Forecast{Prices: prices, PV: pv, Load: load}, nil
}
