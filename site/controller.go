// Package site drives one plant's control loop: tick cadence, periodic
// re-optimization, strategy selection, the safety/DSO precedence layer,
// command writes, history persistence, and snapshot broadcast.
package site

import (
	"context"
	"log"
	"time"

	"github.com/devskill-org/bess-ems/config"
	"github.com/devskill-org/bess-ems/forecast"
	"github.com/devskill-org/bess-ems/history"
	"github.com/devskill-org/bess-ems/internal/periodic"
	"github.com/devskill-org/bess-ems/modbuspoll"
	"github.com/devskill-org/bess-ems/optimizer"
	"github.com/devskill-org/bess-ems/plantstate"
	"github.com/devskill-org/bess-ems/powercontrol"
	"github.com/devskill-org/bess-ems/selector"
	"github.com/devskill-org/bess-ems/strategy"
	"github.com/devskill-org/bess-ems/telemetry"
)

const (
	defaultTimestepS            = 2.0
	defaultOptimizationInterval = 15 * time.Minute
	historyAppendInterval       = 5 * time.Minute
	simulationSampleInterval    = 10 * time.Second
)

// Plan is the currently active dispatch schedule, produced by the most
// recent optimization cycle.
type Plan struct {
	Entries      []strategy.ScheduleEntry
	CreatedAt    time.Time
	StrategyName string
	ExpectedEUR  float64
	Confidence   float64
	Solver       string
	OptStatus    string
}

// Controller owns one site's tick loop and every piece of state it reads
// or writes each cycle.
type Controller struct {
	id     int
	cfg    config.Site
	logger *log.Logger

	constraints optimizer.Constraints
	state       *plantstate.Store
	poller      *modbuspoll.Poller
	forecasts   *forecast.Aggregator
	selector    *selector.Selector
	power       *powercontrol.Manager
	history     *history.Store
	broadcaster *Broadcaster

	task *periodic.Task

	plan               *Plan
	lastOptimization   time.Time
	lastHistoryAppend  time.Time
	lastSimSample      time.Time
}

// New wires one site's controller from its config and already-constructed
// collaborators (poller, forecasts, selector, power control, history
// store all depend on config parsed earlier in startup).
func New(
	id int,
	cfg config.Site,
	logger *log.Logger,
	state *plantstate.Store,
	poller *modbuspoll.Poller,
	forecasts *forecast.Aggregator,
	sel *selector.Selector,
	power *powercontrol.Manager,
	hist *history.Store,
) *Controller {
	timestep := cfg.EMS.TimestepS
	if timestep <= 0 {
		timestep = defaultTimestepS
	}

	c := &Controller{
		id:  id,
		cfg: cfg,
		constraints: optimizer.Constraints{
			PChargeMaxKW:        cfg.BESS.PChargeMaxKW,
			PDischargeMaxKW:     cfg.BESS.PDischargeMaxKW,
			EnergyCapacityKWh:   cfg.BESS.EnergyCapacityKWh,
			SoCMinPercent:       cfg.BESS.SoCMinPercent,
			SoCMaxPercent:       cfg.BESS.SoCMaxPercent,
			EfficiencyCharge:    cfg.BESS.EfficiencyCharge,
			EfficiencyDischarge: cfg.BESS.EfficiencyDischarge,
		},
		logger:      logger,
		state:       state,
		poller:      poller,
		forecasts:   forecasts,
		selector:    sel,
		power:       power,
		history:     hist,
		broadcaster: NewBroadcaster(),
	}
	c.task = &periodic.Task{
		Name:     "site-controller",
		Interval: time.Duration(timestep * float64(time.Second)),
		RunFunc:  c.tick,
	}
	return c
}

// Run blocks, ticking until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) { c.task.Run(ctx, c.logger) }

// Stop signals Run to return.
func (c *Controller) Stop() { c.task.Stop() }

// Subscribe registers for plant-state snapshots; see Broadcaster.Subscribe.
func (c *Controller) Subscribe() (<-chan plantstate.State, func()) {
	return c.broadcaster.Subscribe()
}

// Snapshot returns the current fused plant state.
func (c *Controller) Snapshot() plantstate.State { return c.state.Snapshot() }

// ID returns the site identifier this controller was built with.
func (c *Controller) ID() int { return c.id }

// Config returns the site configuration this controller was built with.
func (c *Controller) Config() config.Site { return c.cfg }

// CurrentPlan returns the most recently computed dispatch plan, or nil if
// no optimization cycle has run yet.
func (c *Controller) CurrentPlan() *Plan { return c.plan }

// Tick runs one control cycle immediately, outside the regular tick
// cadence. Used by the --once CLI mode to smoke-test a configuration.
func (c *Controller) Tick(ctx context.Context) { c.tick(ctx) }

func (c *Controller) optimizationInterval() time.Duration {
	if c.cfg.EMS.OptimizationIntervalMinutes <= 0 {
		return defaultOptimizationInterval
	}
	return time.Duration(c.cfg.EMS.OptimizationIntervalMinutes) * time.Minute
}

func (c *Controller) tick(ctx context.Context) {
	now := time.Now().UTC()

	if c.plan == nil || now.Sub(c.lastOptimization) >= c.optimizationInterval() {
		c.runOptimizationCycle(ctx, now)
	}

	requestedKW := c.requestedPower(now)

	c.state.CheckStaleness(now)
	snapshot := c.state.Snapshot()

	sig := powercontrol.ExtractSignals(snapshot.RawRegisters, c.cfg.PowerControl)
	maxPowerKW := c.cfg.PowerControl.MaxPowerKW
	if maxPowerKW <= 0 {
		maxPowerKW = maxOf3(c.constraints.PDischargeMaxKW, c.constraints.PChargeMaxKW, absF(requestedKW))
	}
	decision := c.power.Decide(requestedKW, sig, maxPowerKW, now, snapshot.PPVKW)

	c.state.SetControlOutputs(func(s *plantstate.State) {
		s.SetpointKW = decision.EffectiveKW
		s.ActivePowerLimitW = 0
		if decision.LimitKW != nil {
			s.ActivePowerLimitW = *decision.LimitKW * 1000
		}
		s.PowerLimitReason = decision.Reason
		s.RemoteShutdownRequested = decision.Shutdown
		if decision.DSOLimitPct != nil {
			s.DSOLimitPct = *decision.DSOLimitPct
		}

		if s.TelemetrySource == telemetry.SourceSimulation {
			s.PBESSKW = s.SetpointKW
			s.PGridKW = s.PLoadKW - s.PPVKW - s.PBESSKW
		}
		s.Timestamp = now
	})

	if snapshot.TelemetrySource == telemetry.SourceSimulation && now.Sub(c.lastSimSample) >= simulationSampleInterval {
		c.state.RecordSimulationSample(now)
		c.lastSimSample = now
	}

	if err := c.poller.WithClient(func(client *modbuspoll.Client) error {
		c.power.ApplyCommands(client, c.poller.Profile(), decision, c.logger)
		return nil
	}); err != nil && c.logger != nil {
		c.logger.Printf("site %d: no modbus connection for command write: %v", c.id, err)
	}

	c.broadcaster.Publish(c.state.Snapshot())

	if now.Sub(c.lastHistoryAppend) >= historyAppendInterval {
		c.appendStateHistory(now)
		c.lastHistoryAppend = now
	}
}

// requestedPower picks the plan entry whose timestamp is closest to now,
// or 0 if there is no plan.
func (c *Controller) requestedPower(now time.Time) float64 {
	if c.plan == nil || len(c.plan.Entries) == 0 {
		return 0
	}
	best := c.plan.Entries[0]
	bestDelta := absDuration(now.Sub(best.Time))
	for _, e := range c.plan.Entries[1:] {
		d := absDuration(now.Sub(e.Time))
		if d < bestDelta {
			best, bestDelta = e, d
		}
	}
	return best.PNetKW
}

func (c *Controller) runOptimizationCycle(ctx context.Context, now time.Time) {
	fc, err := c.forecasts.Fetch(ctx)
	if err != nil {
		c.state.SetControlOutputs(func(s *plantstate.State) {
			s.OptimizationStatus = plantstate.OptStatusFailed
		})
		if c.logger != nil {
			c.logger.Printf("site %d: forecast fetch failed: %v", c.id, err)
		}
		return
	}

	snapshot := c.state.Snapshot()
	stratForecasts := strategy.Forecasts{
		Times:  priceTimes(fc.Prices),
		Prices: priceValues(fc.Prices),
		PV:     pvValues(fc.PV),
		Load:   loadValues(fc.Load),
	}
	state := strategy.State{SoCPct: snapshot.SoCPct}

	features := selector.Features(
		snapshot.SoCPct, 100, snapshot.TemperatureC, 0, 0,
		currentPrice(stratForecasts), 0, 0, 0, now, 0,
		snapshot.PBESSKW, snapshot.PPVKW, snapshot.PLoadKW, snapshot.PGridKW,
	)

	previousStrategy := c.selector.Current()
	decision := c.selector.Select(state, stratForecasts, features)
	if decision.Switched && c.history != nil {
		_ = c.history.LogStrategyChange(previousStrategy, decision.Strategy, decision.Source, decision.Scores)
	}

	chosen, ok := c.selector.Strategy(decision.Strategy)
	if !ok {
		c.state.SetControlOutputs(func(s *plantstate.State) {
			s.OptimizationStatus = plantstate.OptStatusFailed
		})
		return
	}

	result := chosen.Optimize(state, stratForecasts, c.constraints)

	c.plan = &Plan{
		Entries:      result.Schedule,
		CreatedAt:    now,
		StrategyName: decision.Strategy,
		ExpectedEUR:  result.ExpectedEUR,
		Confidence:   result.Confidence,
		Solver:       result.Solver,
		OptStatus:    result.OptStatus,
	}
	c.lastOptimization = now

	c.state.SetControlOutputs(func(s *plantstate.State) {
		s.ActiveStrategy = decision.Strategy
		s.OptimizationStatus = plantstate.OptStatusSuccess
		s.PriceEURPerMWh = currentPrice(stratForecasts)
	})

	if c.history != nil {
		_ = c.history.LogOptimization(history.OptimizationRecord{
			Timestamp:          now,
			StrategyName:       decision.Strategy,
			ExpectedProfitEUR:  result.ExpectedEUR,
			Confidence:         result.Confidence,
			OptimizationStatus: result.OptStatus,
			Solver:             result.Solver,
			Metadata:           map[string]any{"scores": decision.Scores},
		})
	}
}

func (c *Controller) appendStateHistory(now time.Time) {
	if c.history == nil {
		return
	}
	snapshot := c.state.Snapshot()
	_ = c.history.LogState(history.StateRecord{
		Timestamp:      now,
		SoCPct:         snapshot.SoCPct,
		PBESSKW:        snapshot.PBESSKW,
		PPVKW:          snapshot.PPVKW,
		PLoadKW:        snapshot.PLoadKW,
		PGridKW:        snapshot.PGridKW,
		PriceEURPerMWh: snapshot.PriceEURPerMWh,
		ActiveStrategy: snapshot.ActiveStrategy,
		SetpointKW:     snapshot.SetpointKW,
		Mode:           string(snapshot.Mode),
	})
}

func priceTimes(points []forecast.PricePoint) []time.Time {
	out := make([]time.Time, len(points))
	for i, p := range points {
		out[i] = p.Time
	}
	return out
}

func priceValues(points []forecast.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.EURPerMWh
	}
	return out
}

func pvValues(points []forecast.PVPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.PowerKW
	}
	return out
}

func loadValues(points []forecast.LoadPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.PowerKW
	}
	return out
}

func currentPrice(f strategy.Forecasts) float64 {
	if len(f.Prices) == 0 {
		return 0
	}
	return f.Prices[0]
}

func maxOf3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
