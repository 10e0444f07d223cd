package supervisor

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/bess-ems/config"
)

func twoSiteRoot() *config.Root {
	site1 := config.Default(1)
	site1.History.Path = ":memory:"
	site2 := config.Default(2)
	site2.History.Path = ":memory:"
	site2.BESS.EnergyCapacityKWh = 400
	return &config.Root{Sites: []config.Site{site1, site2}}
}

func testSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	sup, err := New(twoSiteRoot(), logger)
	require.NoError(t, err)
	t.Cleanup(sup.StopAll)
	return sup
}

func TestNew_BuildsOneSiteStackPerConfiguredSite(t *testing.T) {
	sup := testSupervisor(t)
	assert.ElementsMatch(t, []int{1, 2}, sup.ListSiteIDs())
}

func TestNew_RejectsInvalidSiteConfig(t *testing.T) {
	bad := config.Default(1)
	bad.BESS.SoCMinPercent = 95 // >= SoCMaxPercent, invalid
	_, err := New(&config.Root{Sites: []config.Site{bad}}, nil)
	assert.Error(t, err)
}

func TestGetSite_ReturnsControllerForKnownID(t *testing.T) {
	sup := testSupervisor(t)
	ctrl, ok := sup.GetSite(1)
	require.True(t, ok)
	assert.Equal(t, 1, ctrl.ID())
}

func TestGetSite_UnknownIDReturnsFalse(t *testing.T) {
	sup := testSupervisor(t)
	_, ok := sup.GetSite(99)
	assert.False(t, ok)
}

func TestAllSitesState_ReturnsEveryConfiguredSite(t *testing.T) {
	sup := testSupervisor(t)
	states := sup.AllSitesState()
	assert.Len(t, states, 2)
	assert.Contains(t, states, 1)
	assert.Contains(t, states, 2)
}

func TestAggregatedState_SumsCapacityAcrossSites(t *testing.T) {
	sup := testSupervisor(t)
	agg := sup.AggregatedState()
	assert.Equal(t, 2, agg.SiteCount)
	assert.Equal(t, 600.0, agg.TotalEnergyCapacityKWh) // 200 (site 1) + 400 (site 2)
}

func TestAggregatedState_ZeroLoadYieldsZeroAvgPrice(t *testing.T) {
	sup := testSupervisor(t)
	agg := sup.AggregatedState()
	assert.Equal(t, 0.0, agg.AvgPriceEURPerMWh)
}

func TestStopAll_IsIdempotentAndSafeWithoutRun(t *testing.T) {
	sup := testSupervisor(t)
	assert.NotPanics(t, func() {
		sup.StopAll()
		sup.StopAll()
	})
}
