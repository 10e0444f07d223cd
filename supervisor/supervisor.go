// Package supervisor constructs one Site Controller per configured site,
// each with its own Modbus/MQTT ingestion, forecast providers, strategy
// set, power control manager, and history database, and exposes per-site
// and fleet-aggregated views over them.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/devskill-org/bess-ems/busreg"
	"github.com/devskill-org/bess-ems/config"
	"github.com/devskill-org/bess-ems/forecast"
	"github.com/devskill-org/bess-ems/history"
	"github.com/devskill-org/bess-ems/meteo"
	"github.com/devskill-org/bess-ems/modbuspoll"
	"github.com/devskill-org/bess-ems/mqttingest"
	"github.com/devskill-org/bess-ems/plantstate"
	"github.com/devskill-org/bess-ems/powercontrol"
	"github.com/devskill-org/bess-ems/selector"
	"github.com/devskill-org/bess-ems/site"
	"github.com/devskill-org/bess-ems/strategy"
)

// siteStack bundles one site's fully-wired collaborators so Stop can tear
// them down in the right order.
type siteStack struct {
	controller *site.Controller
	poller     *modbuspoll.Poller
	mqtt       *mqttingest.Ingestor
	history    *history.Store
}

// Supervisor owns every configured site's Site Controller.
type Supervisor struct {
	mu    sync.RWMutex
	sites map[int]*siteStack
	order []int // site IDs in configured order, for deterministic ListSiteIDs/StopAll
	log   *log.Logger
}

// New constructs a Supervisor from a loaded configuration document. A
// per-site construction failure aborts the whole call (fail fast at
// startup); once running, one site's failure never affects the others.
func New(root *config.Root, logger *log.Logger) (*Supervisor, error) {
	sup := &Supervisor{sites: make(map[int]*siteStack), log: logger}

	for _, cfg := range root.Sites {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("supervisor: site %d: %w", cfg.ID, err)
		}
		stack, err := buildSite(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("supervisor: site %d: %w", cfg.ID, err)
		}
		sup.sites[cfg.ID] = stack
		sup.order = append(sup.order, cfg.ID)
	}
	return sup, nil
}

func buildSite(cfg config.Site, logger *log.Logger) (*siteStack, error) {
	profile, ok := busreg.LookupProfile(cfg.Modbus.Profile)
	if !ok {
		return nil, fmt.Errorf("unknown modbus profile %q", cfg.Modbus.Profile)
	}

	state := plantstate.New(cfg.ID)
	poller := modbuspoll.New(cfg.Modbus, profile, logger, state.ApplySample)

	var mqttIn *mqttingest.Ingestor
	if cfg.MQTT.Enabled {
		mqttIn = mqttingest.New(cfg.MQTT, logger, state.ApplySample)
	}

	prices := forecast.NewPriceProvider(cfg.Prices.Region, cfg.Prices.DemoMode)
	var weather *meteo.Client
	if cfg.Forecast.WeatherEnabled {
		weather = meteo.NewClient(cfg.Forecast.WeatherUserAgent)
	}
	pv := forecast.NewPVProvider(cfg.Forecast.Latitude, cfg.Forecast.Longitude, cfg.BESS.PDischargeMaxKW, weather)
	load := forecast.NewLoadProvider(cfg.Forecast.SeasonalLoad)
	agg := forecast.NewAggregator(prices, pv, load)

	strategies := []strategy.Strategy{
		&strategy.Arbitrage{
			MinSpreadEURPerMWh:    cfg.Strategies.MinSpreadEURPerMWh,
			MinProfitThresholdEUR: cfg.Strategies.MinProfitThresholdEUR,
		},
		&strategy.PeakShaving{},
		&strategy.SelfConsumption{
			GridTariffEURPerKWh:   cfg.Strategies.GridTariffEURPerKWh,
			FeedinTariffEURPerKWh: cfg.Strategies.FeedinTariffEURPerKWh,
		},
		&strategy.LoadBalancing{},
	}
	sel := selector.New(strategies, cfg.Strategies.SwitchThreshold, cfg.Strategies.UseLearnedSelector)
	power := powercontrol.New(cfg.PowerControl)

	histPath := cfg.History.Path
	if histPath == "" {
		histPath = fmt.Sprintf("history_site_%d.db", cfg.ID)
	}
	hist, err := history.Open(histPath)
	if err != nil {
		return nil, err
	}

	ctrl := site.New(cfg.ID, cfg, logger, state, poller, agg, sel, power, hist)
	return &siteStack{controller: ctrl, poller: poller, mqtt: mqttIn, history: hist}, nil
}

// Run starts every site's Modbus poller, MQTT ingestor (if enabled), and
// Site Controller tick loop, blocking until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	s.mu.RLock()
	stacks := make([]*siteStack, 0, len(s.sites))
	for _, st := range s.sites {
		stacks = append(stacks, st)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, st := range stacks {
		st := st
		if st.mqtt != nil {
			if err := st.mqtt.Start(); err != nil && s.log != nil {
				s.log.Printf("supervisor: mqtt start failed: %v", err)
			}
		}
		wg.Add(2)
		go func() { defer wg.Done(); st.poller.Run(ctx) }()
		go func() { defer wg.Done(); st.controller.Run(ctx) }()
	}
	wg.Wait()
}

// StopAll stops every site sequentially, in configured order, per the
// cancellation model: each controller's tick loop exits before its
// poller and MQTT connection tear down, then its history database closes.
func (s *Supervisor) StopAll() {
	s.mu.RLock()
	order := append([]int(nil), s.order...)
	s.mu.RUnlock()

	for _, id := range order {
		s.mu.RLock()
		st, ok := s.sites[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		st.controller.Stop()
		st.poller.Stop()
		if st.mqtt != nil {
			st.mqtt.Stop()
		}
		if err := st.history.Close(); err != nil && s.log != nil {
			s.log.Printf("supervisor: site %d: close history: %v", id, err)
		}
	}
}

// GetSite returns the Site Controller for id, or false if no such site is
// configured.
func (s *Supervisor) GetSite(id int) (*site.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sites[id]
	if !ok {
		return nil, false
	}
	return st.controller, true
}

// ListSiteIDs returns every configured site ID, in configured order.
func (s *Supervisor) ListSiteIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.order...)
}

// AllSitesState returns every site's current plant-state snapshot, keyed
// by site ID.
func (s *Supervisor) AllSitesState() map[int]plantstate.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]plantstate.State, len(s.sites))
	for id, st := range s.sites {
		out[id] = st.controller.Snapshot()
	}
	return out
}

// AggregatedState is the fleet-wide rollup across every site.
type AggregatedState struct {
	TotalPBESSKW           float64
	TotalPPVKW             float64
	TotalPLoadKW           float64
	TotalPGridKW           float64
	TotalEnergyCapacityKWh float64
	AvgSoCPct              float64 // capacity-weighted
	AvgPriceEURPerMWh      float64 // load-weighted
	SiteCount              int
	Sites                  map[int]plantstate.State
}

// AggregatedState rolls up every site's current state: summed power flows,
// capacity-weighted average SoC, and load-weighted average price.
func (s *Supervisor) AggregatedState() AggregatedState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := AggregatedState{Sites: make(map[int]plantstate.State, len(s.sites))}
	var socWeighted, priceWeighted, totalAbsLoad float64

	for id, st := range s.sites {
		snap := st.controller.Snapshot()
		agg.Sites[id] = snap
		agg.SiteCount++

		agg.TotalPBESSKW += snap.PBESSKW
		agg.TotalPPVKW += snap.PPVKW
		agg.TotalPLoadKW += snap.PLoadKW
		agg.TotalPGridKW += snap.PGridKW

		capacity := st.controller.Config().BESS.EnergyCapacityKWh
		agg.TotalEnergyCapacityKWh += capacity
		socWeighted += snap.SoCPct * capacity

		absLoad := snap.PLoadKW
		if absLoad < 0 {
			absLoad = -absLoad
		}
		priceWeighted += snap.PriceEURPerMWh * absLoad
		totalAbsLoad += absLoad
	}

	if agg.TotalEnergyCapacityKWh > 0 {
		agg.AvgSoCPct = socWeighted / agg.TotalEnergyCapacityKWh
	}
	if totalAbsLoad > 0 {
		agg.AvgPriceEURPerMWh = priceWeighted / totalAbsLoad
	}
	return agg
}
