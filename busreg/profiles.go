package busreg

// Profile is a named, fixed register/alarm map for one device family.
type Profile struct {
	Key            string
	Label          string
	Manufacturer   string
	Documentation  string
	StatusCodes    map[int]string
	Registers      map[string]Register
	Alarms         map[string]Alarm
}

// Registers addresses and scaling follow "BMS Communication Protocol with
// EMS via Modbus V1.6" for the Hithium container, and the Phoenyra WSTECH
// PCS register mapping for the inverter.

var hithiumESS5016 = Profile{
	Key:           "hithium_ess_5016",
	Label:         "Hithium ESS 5.016/4.180 kWh",
	Manufacturer:  "Hithium",
	Documentation: "BMS Communication Protocol with EMS via Modbus V1.6",
	StatusCodes: map[int]string{
		0: "initializing",
		1: "charging",
		2: "discharging",
		3: "ready",
		5: "charge_locked",
		6: "discharge_locked",
		7: "charge_discharge_locked",
		8: "fault",
	},
	Registers: map[string]Register{
		"soc_percent": {
			Name: "soc_percent", Address: 4, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 1.0, Unit: "%",
			Description: "system state of charge", Category: CategoryTelemetry,
		},
		"soh_percent": {
			Name: "soh_percent", Address: 5, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 1.0, Unit: "%",
			Description: "system state of health", Category: CategoryTelemetry,
		},
		"voltage_v": {
			Name: "voltage_v", Address: 2, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 0.1, Unit: "V",
			Description: "system total voltage", Category: CategoryTelemetry,
		},
		"current_a": {
			Name: "current_a", Address: 3, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 0.1, Offset: -3200.0, Unit: "A",
			Description: "system current, positive = charging", Category: CategoryTelemetry,
		},
		"temperature_c": {
			Name: "temperature_c", Address: 42, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 1.0, Offset: -40.0, Unit: "°C",
			Description: "average system temperature", Category: CategoryTelemetry,
		},
		"max_discharge_power_kw": {
			Name: "max_discharge_power_kw", Address: 32, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 0.1, Unit: "kW",
			Description: "permitted maximum discharge power", Category: CategoryLimit,
		},
		"max_charge_power_kw": {
			Name: "max_charge_power_kw", Address: 33, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 0.1, Unit: "kW",
			Description: "permitted maximum charge power", Category: CategoryLimit,
		},
		"max_discharge_current_a": {
			Name: "max_discharge_current_a", Address: 34, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 0.1, Unit: "A",
			Description: "permitted maximum discharge current", Category: CategoryLimit,
		},
		"max_charge_current_a": {
			Name: "max_charge_current_a", Address: 35, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 0.1, Unit: "A",
			Description: "permitted maximum charge current", Category: CategoryLimit,
		},
		"insulation_resistance_kohm": {
			Name: "insulation_resistance_kohm", Address: 45, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 1.0, Unit: "kΩ",
			Description: "insulation resistance", Category: CategoryDiagnostics,
		},
		"status_code": {
			Name: "status_code", Address: 43, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 1.0,
			Description: "BMS system status", Category: CategoryStatus,
		},
		"pcs_comm_fault": {
			Name: "pcs_comm_fault", Address: 46, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 1.0,
			Description: "PCS<->BMS comm fault, 0=ok 1=fault", Category: CategoryDiagnostics,
		},
		"ems_comm_fault": {
			Name: "ems_comm_fault", Address: 47, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 1.0,
			Description: "EMS<->BMS comm fault, 0=ok 1=fault", Category: CategoryDiagnostics,
		},
	},
	Alarms: map[string]Alarm{
		"charge_prohibited":         {Name: "charge_prohibited", Address: 55, Bit: 0, Description: "charge lock active"},
		"discharge_prohibited":      {Name: "discharge_prohibited", Address: 56, Bit: 0, Description: "discharge lock active"},
		"system_fault":              {Name: "system_fault", Address: 57, Bit: 0, Description: "BMS system fault"},
		"contactor_abnormal_open":   {Name: "contactor_abnormal_open", Address: 53, Bit: 0, Description: "contactor unexpectedly open"},
		"contactor_abnormal_closed": {Name: "contactor_abnormal_closed", Address: 54, Bit: 0, Description: "contactor unexpectedly closed"},
	},
}

var wstechPCS = Profile{
	Key:           "wstech_pcs",
	Label:         "WSTECH PCS (Inverter)",
	Manufacturer:  "WSTECH",
	Documentation: "WSTECH PCS Modbus Register Map",
	Registers: map[string]Register{
		"remote_enable": {
			Name: "remote_enable", Address: 40001, Function: FunctionHoldingRegister,
			Count: 1, DataType: TypeUint16,
			Description: "EMS remote enable, 1=remote 0=local", Category: CategoryControl,
		},
		"operating_mode": {
			Name: "operating_mode", Address: 40002, Function: FunctionHoldingRegister,
			Count: 1, DataType: TypeUint16,
			Description: "operating mode / run-stop", Category: CategoryControl,
		},
		"active_power_set_w": {
			Name: "active_power_set_w", Address: 40010, Function: FunctionHoldingRegister,
			Count: 2, DataType: TypeInt32, Signed: true, Unit: "W",
			Description: "active power setpoint, absolute", Category: CategoryControl,
		},
		"reactive_power_set_var": {
			Name: "reactive_power_set_var", Address: 40012, Function: FunctionHoldingRegister,
			Count: 2, DataType: TypeInt32, Signed: true, Unit: "var",
			Description: "reactive power setpoint, absolute", Category: CategoryControl,
		},
		"active_power_limit_pct": {
			Name: "active_power_limit_pct", Address: 40020, Function: FunctionHoldingRegister,
			Count: 1, DataType: TypeUint16, Scale: 0.1, Unit: "%",
			Description: "active power limit, % of rated power", Category: CategoryControl,
		},
		"keep_alive": {
			Name: "keep_alive", Address: 40030, Function: FunctionHoldingRegister,
			Count: 1, DataType: TypeUint16,
			Description: "heartbeat / keep-alive counter", Category: CategoryControl,
		},
		"pac_now_w": {
			Name: "pac_now_w", Address: 30001, Function: FunctionInputRegister,
			Count: 2, DataType: TypeInt32, Signed: true, Unit: "W",
			Description: "current PCS active power", Category: CategoryTelemetry,
		},
		"qac_now_var": {
			Name: "qac_now_var", Address: 30003, Function: FunctionInputRegister,
			Count: 2, DataType: TypeInt32, Signed: true, Unit: "var",
			Description: "current PCS reactive power", Category: CategoryTelemetry,
		},
		"u_ac_v": {
			Name: "u_ac_v", Address: 30005, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Unit: "V",
			Description: "grid voltage", Category: CategoryTelemetry,
		},
		"f_ac_hz": {
			Name: "f_ac_hz", Address: 30006, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 0.01, Unit: "Hz",
			Description: "grid frequency", Category: CategoryTelemetry,
		},
		"status_word": {
			Name: "status_word", Address: 30010, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16,
			Description: "PCS status word (bitmask)", Category: CategoryStatus,
		},
		"alarm_word": {
			Name: "alarm_word", Address: 30011, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16,
			Description: "PCS alarm word (bitmask)", Category: CategoryAlarm,
		},
		"ems_comm_state": {
			Name: "ems_comm_state", Address: 30020, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16,
			Description: "EMS<->PCS comm status", Category: CategoryDiagnostics,
		},
		"soc_from_bess": {
			Name: "soc_from_bess", Address: 30030, Function: FunctionInputRegister,
			Count: 1, DataType: TypeUint16, Scale: 0.1, Unit: "%",
			Description: "SoC reported by BESS, if provided via PCS", Category: CategoryTelemetry,
		},
	},
	Alarms: map[string]Alarm{},
}

var profiles = map[string]Profile{
	hithiumESS5016.Key: hithiumESS5016,
	wstechPCS.Key:      wstechPCS,
}

// LookupProfile returns a copy-safe reference to a built-in profile by key.
func LookupProfile(key string) (Profile, bool) {
	p, ok := profiles[key]
	return p, ok
}

// ProfileKeys lists the built-in profile keys, for config validation and CLI help.
func ProfileKeys() []string {
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	return keys
}
