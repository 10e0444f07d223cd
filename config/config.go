// Package config loads the JSON configuration for the EMS controller.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Root is the top-level configuration document: one supervisor process,
// many sites.
type Root struct {
	Sites []Site `json:"sites"`
}

// Site is the full configuration for a single Site Controller.
type Site struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	EMS          EMS          `json:"ems"`
	BESS         BESS         `json:"bess"`
	Modbus       Modbus       `json:"modbus"`
	MQTT         MQTT         `json:"mqtt"`
	PowerControl PowerControl `json:"power_control"`
	Strategies   Strategies   `json:"strategies"`
	Prices       Prices       `json:"prices"`
	Forecast     Forecast     `json:"forecast"`
	History      History      `json:"history"`
}

// EMS holds the site tick cadence.
type EMS struct {
	TimestepS                   float64 `json:"timestep_s"`
	OptimizationIntervalMinutes float64 `json:"optimization_interval_minutes"`
}

// BESS describes the battery constraints (spec.md's Battery Constraints entity).
type BESS struct {
	PChargeMaxKW      float64 `json:"p_charge_max_kw"`
	PDischargeMaxKW   float64 `json:"p_discharge_max_kw"`
	EnergyCapacityKWh float64 `json:"energy_capacity_kwh"`
	SoCMinPercent     float64 `json:"soc_min_percent"`
	SoCMaxPercent     float64 `json:"soc_max_percent"`
	EfficiencyCharge  float64 `json:"efficiency_charge"`
	EfficiencyDischarge float64 `json:"efficiency_discharge"`
}

// Modbus configures the BMS/PCS connections the poller manages.
type Modbus struct {
	ConnectionType string        `json:"connection_type"` // "tcp" or "rtu"
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Device         string        `json:"device"` // serial device path for RTU
	BaudRate       int           `json:"baud_rate"`
	Parity         string        `json:"parity"`
	SlaveID        byte          `json:"slave_id"`
	Timeout        time.Duration `json:"timeout"`
	PollIntervalS  float64       `json:"poll_interval_s"`
	Profile        string        `json:"profile"` // "hithium_ess_5016" or "wstech_pcs"
}

// MQTT configures the telemetry ingestor's subscription.
type MQTT struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	Topic    string `json:"topic"`
	ClientID string `json:"client_id"`
	QoS      byte   `json:"qos"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// SignalConfig describes how to read one boolean/percent signal out of a
// Modbus status map (see powercontrol/signals.go).
type SignalConfig struct {
	Register string   `json:"register"`
	Mask     *int64   `json:"mask,omitempty"`
	Equals   *int64   `json:"equals,omitempty"`
	Scale    float64  `json:"scale"`
	MinPct   *float64 `json:"min_pct,omitempty"`
	MaxPct   *float64 `json:"max_pct,omitempty"`
}

// WriteConfig describes a register to write a derived command to.
type WriteConfig struct {
	Register string  `json:"register"`
	Scale    float64 `json:"scale"`
	On       int     `json:"on"`
	Off      int     `json:"off"`
}

// FeedinRule is one dynamic feed-in-limitation time window.
type FeedinRule struct {
	Start string  `json:"start"` // "HH:MM"
	End   string  `json:"end"`   // "HH:MM"
	Pct   float64 `json:"pct"`
}

// PowerControl configures the DSO/safety precedence layer (C9).
type PowerControl struct {
	Enabled    bool    `json:"enabled"`
	MaxPowerKW float64 `json:"max_power_kw"`
	AutoWrite  bool    `json:"auto_write"`

	Signals struct {
		DSOTrip     *SignalConfig `json:"dso_trip,omitempty"`
		SafetyAlarm *SignalConfig `json:"safety_alarm,omitempty"`
		DSOLimitPct *SignalConfig `json:"dso_limit_pct,omitempty"`
	} `json:"signals"`

	Writes struct {
		RemoteEnable        *WriteConfig `json:"remote_enable,omitempty"`
		ActivePowerSetW      *WriteConfig `json:"active_power_set_w,omitempty"`
		ActivePowerLimitPct  *WriteConfig `json:"active_power_limit_pct,omitempty"`
	} `json:"writes"`

	Feedin struct {
		Mode            string       `json:"mode"` // "fixed" or "dynamic"
		FixedLimitPct   float64      `json:"fixed_limit_pct"`
		PVIntegration   bool         `json:"pv_integration"`
		DynamicRules    []FeedinRule `json:"dynamic_rules"`
		TimezoneName    string       `json:"timezone"`
	} `json:"feedin_limitation"`
}

// Strategies configures the selector and strategy parameters (C7/C8).
type Strategies struct {
	SwitchThreshold       float64 `json:"switch_threshold"`
	MinSpreadEURPerMWh    float64 `json:"min_spread_eur_per_mwh"`
	MinProfitThresholdEUR float64 `json:"min_profit_threshold_eur"`
	GridTariffEURPerKWh   float64 `json:"grid_tariff_eur_per_kwh"`
	FeedinTariffEURPerKWh float64 `json:"feedin_tariff_eur_per_kwh"`
	UseLearnedSelector    bool    `json:"use_learned_selector"`
}

// Prices configures the day-ahead price provider.
type Prices struct {
	Region   string `json:"region"` // "AT" or "DE"
	DemoMode bool   `json:"demo_mode"`
}

// Forecast configures the PV/load forecast providers.
type Forecast struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	WeatherEnabled   bool    `json:"weather_enabled"`
	WeatherUserAgent string  `json:"weather_user_agent"`
	SeasonalLoad     bool    `json:"seasonal_load_enabled"`
}

// History configures the per-site SQLite database.
type History struct {
	Path string `json:"path"` // defaults to history_site_<id>.db when empty
}

// Default returns a Site configuration with sane defaults, mirroring the
// pattern of filling every field explicitly rather than relying on zero
// values to mean something.
func Default(id int) Site {
	return Site{
		ID:   id,
		Name: fmt.Sprintf("site-%d", id),
		EMS: EMS{
			TimestepS:                   2,
			OptimizationIntervalMinutes: 15,
		},
		BESS: BESS{
			PChargeMaxKW:        100,
			PDischargeMaxKW:     100,
			EnergyCapacityKWh:   200,
			SoCMinPercent:       10,
			SoCMaxPercent:       90,
			EfficiencyCharge:    0.95,
			EfficiencyDischarge: 0.95,
		},
		Modbus: Modbus{
			ConnectionType: "tcp",
			Port:           502,
			SlaveID:        1,
			Timeout:        3 * time.Second,
			PollIntervalS:  2,
			Profile:        "hithium_ess_5016",
		},
		MQTT: MQTT{
			QoS: 1,
		},
		Strategies: Strategies{
			SwitchThreshold:       0.15,
			MinSpreadEURPerMWh:    50,
			MinProfitThresholdEUR: 5,
		},
		Prices: Prices{
			Region:   "AT",
			DemoMode: true,
		},
	}
}

// Validate fails fast on configuration that cannot produce a working site.
// supervisor.New calls it for every site and returns an error on the first
// failure, so one invalid site keeps every site from starting.
func (s Site) Validate() error {
	if s.ID == 0 && s.Name == "" {
		return fmt.Errorf("site: id or name must be set")
	}
	if s.BESS.SoCMinPercent < 0 || s.BESS.SoCMinPercent >= s.BESS.SoCMaxPercent || s.BESS.SoCMaxPercent > 100 {
		return fmt.Errorf("site %d: invalid soc bounds [%g, %g]", s.ID, s.BESS.SoCMinPercent, s.BESS.SoCMaxPercent)
	}
	if s.BESS.EfficiencyCharge <= 0 || s.BESS.EfficiencyCharge > 1 {
		return fmt.Errorf("site %d: efficiency_charge must be in (0,1]", s.ID)
	}
	if s.BESS.EfficiencyDischarge <= 0 || s.BESS.EfficiencyDischarge > 1 {
		return fmt.Errorf("site %d: efficiency_discharge must be in (0,1]", s.ID)
	}
	if s.EMS.TimestepS < 0.5 {
		return fmt.Errorf("site %d: timestep_s must be >= 0.5", s.ID)
	}
	if s.Modbus.ConnectionType != "tcp" && s.Modbus.ConnectionType != "rtu" {
		return fmt.Errorf("site %d: modbus connection_type must be tcp or rtu", s.ID)
	}
	return nil
}

// Load reads and parses the configuration document from filename.
func Load(filename string) (*Root, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader parses a configuration document from an io.Reader.
func LoadFromReader(r io.Reader) (*Root, error) {
	var root Root
	dec := json.NewDecoder(r)
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(root.Sites) == 0 {
		return nil, fmt.Errorf("config: no sites defined")
	}
	return &root, nil
}
