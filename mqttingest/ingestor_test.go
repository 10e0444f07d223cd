package mqttingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_MapsFirstHitWinsFields(t *testing.T) {
	payload := map[string]any{
		"sys_soc":    55.5,
		"sys_bat_p":  -1500.0, // W, charging
		"sys_pv_p":   3200.0,
		"sys_load_p": 900.0,
		"grid_on_p":  -2300.0,
		"sys_dc_v":   748.2,
		"cell_temp":  31.4,
		"bat_sts":    "charging",
	}

	sample := decode(payload)

	require.NotNil(t, sample.BatterySoCPct)
	assert.Equal(t, 55.5, *sample.BatterySoCPct)

	require.NotNil(t, sample.BatteryPowerKW)
	assert.Equal(t, -1.5, *sample.BatteryPowerKW)

	require.NotNil(t, sample.PVPowerKW)
	assert.Equal(t, 3.2, *sample.PVPowerKW)

	require.NotNil(t, sample.LoadPowerKW)
	assert.Equal(t, 0.9, *sample.LoadPowerKW)

	require.NotNil(t, sample.GridPowerKW)
	assert.Equal(t, -2.3, *sample.GridPowerKW)

	require.NotNil(t, sample.VoltageV)
	assert.Equal(t, 748.2, *sample.VoltageV)

	require.NotNil(t, sample.TemperatureC)
	assert.Equal(t, 31.4, *sample.TemperatureC)

	require.NotNil(t, sample.StatusText)
	assert.Equal(t, "charging", *sample.StatusText)
}

func TestDecode_PreferredKeyWinsOverFallback(t *testing.T) {
	payload := map[string]any{
		"soc":     10.0,
		"sys_soc": 90.0,
	}
	sample := decode(payload)
	require.NotNil(t, sample.BatterySoCPct)
	assert.Equal(t, 10.0, *sample.BatterySoCPct)
}

func TestDecode_NonCoercibleValueIsIgnored(t *testing.T) {
	payload := map[string]any{
		"soc": "not-a-number",
	}
	sample := decode(payload)
	assert.Nil(t, sample.BatterySoCPct)
}

func TestDecode_MissingFieldsLeaveNilPointers(t *testing.T) {
	sample := decode(map[string]any{})
	assert.Nil(t, sample.BatterySoCPct)
	assert.Nil(t, sample.BatteryPowerKW)
	assert.Nil(t, sample.PVPowerKW)
	assert.Nil(t, sample.LoadPowerKW)
	assert.Nil(t, sample.GridPowerKW)
	assert.Nil(t, sample.VoltageV)
	assert.Nil(t, sample.TemperatureC)
	assert.Nil(t, sample.StatusText)
}

func TestDecode_CoercesNumericStringSOC(t *testing.T) {
	payload := map[string]any{"soc": "42.5"}
	sample := decode(payload)
	require.NotNil(t, sample.BatterySoCPct)
	assert.Equal(t, 42.5, *sample.BatterySoCPct)
}
