package site

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/bess-ems/busreg"
	"github.com/devskill-org/bess-ems/config"
	"github.com/devskill-org/bess-ems/forecast"
	"github.com/devskill-org/bess-ems/modbuspoll"
	"github.com/devskill-org/bess-ems/plantstate"
	"github.com/devskill-org/bess-ems/powercontrol"
	"github.com/devskill-org/bess-ems/selector"
	"github.com/devskill-org/bess-ems/strategy"
)

func testController(t *testing.T) *Controller {
	t.Helper()
	cfg := config.Default(1)
	cfg.Prices.DemoMode = true
	cfg.Forecast.WeatherEnabled = false

	logger := log.New(io.Discard, "", 0)
	state := plantstate.New(cfg.ID)
	profile, ok := busreg.LookupProfile(cfg.Modbus.Profile)
	require.True(t, ok)
	poller := modbuspoll.New(cfg.Modbus, profile, logger, state.ApplySample)

	prices := forecast.NewPriceProvider(cfg.Prices.Region, true)
	pv := forecast.NewPVProvider(cfg.Forecast.Latitude, cfg.Forecast.Longitude, cfg.BESS.PDischargeMaxKW, nil)
	load := forecast.NewLoadProvider(false)
	agg := forecast.NewAggregator(prices, pv, load)

	strategies := []strategy.Strategy{
		&strategy.Arbitrage{MinSpreadEURPerMWh: 50, MinProfitThresholdEUR: 5},
		&strategy.PeakShaving{},
	}
	sel := selector.New(strategies, 0.15, false)
	power := powercontrol.New(cfg.PowerControl)

	return New(1, cfg, logger, state, poller, agg, sel, power, nil)
}

func TestController_TickRunsOptimizationOnFirstCall(t *testing.T) {
	c := testController(t)
	c.tick(context.Background())
	assert.NotNil(t, c.plan)
	assert.False(t, c.lastOptimization.IsZero())
}

func TestController_TickDoesNotReoptimizeWithinInterval(t *testing.T) {
	c := testController(t)
	c.tick(context.Background())
	firstPlan := c.plan

	c.tick(context.Background())
	assert.Same(t, firstPlan, c.plan)
}

func TestController_RequestedPowerPicksClosestEntry(t *testing.T) {
	c := testController(t)
	now := time.Now()
	c.plan = &Plan{Entries: []strategy.ScheduleEntry{
		{Time: now.Add(-2 * time.Hour), PNetKW: 1},
		{Time: now, PNetKW: 5},
		{Time: now.Add(2 * time.Hour), PNetKW: 9},
	}}
	assert.Equal(t, 5.0, c.requestedPower(now))
}

func TestController_RequestedPowerZeroWithoutPlan(t *testing.T) {
	c := testController(t)
	assert.Equal(t, 0.0, c.requestedPower(time.Now()))
}

func TestController_SnapshotReflectsTickOutputs(t *testing.T) {
	c := testController(t)
	c.tick(context.Background())
	snap := c.Snapshot()
	assert.NotEmpty(t, snap.ActiveStrategy)
}

func TestBroadcaster_PublishDropsOnFullQueue(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < defaultSubscriberQueue+5; i++ {
		b.Publish(plantstate.State{SiteID: 1})
	}
	assert.LessOrEqual(t, len(ch), defaultSubscriberQueue)
}

func TestBroadcaster_CancelClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}
