// Package mqttingest subscribes to a site's telemetry topic and maps JSON
// payloads onto telemetry samples, mirroring the Modbus poller's
// onSample contract so either path can feed the same plant state store.
package mqttingest

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/devskill-org/bess-ems/config"
	"github.com/devskill-org/bess-ems/telemetry"
)

// Ingestor owns one MQTT subscription and republishes decoded payloads as
// telemetry samples via onSample, same as modbuspoll.Poller.
type Ingestor struct {
	cfg      config.MQTT
	logger   *log.Logger
	onSample func(telemetry.Sample)
	client   mqtt.Client
}

// New builds an Ingestor for cfg. onSample is invoked from the MQTT
// client's own callback goroutine; callers must not block in it.
func New(cfg config.MQTT, logger *log.Logger, onSample func(telemetry.Sample)) *Ingestor {
	return &Ingestor{cfg: cfg, logger: logger, onSample: onSample}
}

// Start connects to the broker and subscribes to the configured topic. A
// no-op if the ingestor is disabled.
func (in *Ingestor) Start() error {
	if !in.cfg.Enabled {
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(in.cfg.Broker).
		SetClientID(in.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(in.onConnect).
		SetConnectionLostHandler(in.onConnectionLost)
	if in.cfg.Username != "" {
		opts.SetUsername(in.cfg.Username)
		opts.SetPassword(in.cfg.Password)
	}

	in.client = mqtt.NewClient(opts)
	token := in.client.Connect()
	token.Wait()
	return token.Error()
}

// Stop disconnects from the broker, if connected.
func (in *Ingestor) Stop() {
	if in.client != nil && in.client.IsConnected() {
		in.client.Disconnect(250)
	}
}

func (in *Ingestor) onConnect(client mqtt.Client) {
	token := client.Subscribe(in.cfg.Topic, in.cfg.QoS, in.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil && in.logger != nil {
		in.logger.Printf("mqtt: subscribe to %s failed: %v", in.cfg.Topic, err)
	}
}

func (in *Ingestor) onConnectionLost(_ mqtt.Client, err error) {
	if in.logger != nil {
		in.logger.Printf("mqtt: connection lost: %v", err)
	}
}

func (in *Ingestor) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		if in.logger != nil {
			in.logger.Printf("mqtt: payload on %s is not valid JSON: %v", msg.Topic(), err)
		}
		return
	}

	sample := decode(payload)
	if in.onSample != nil {
		in.onSample(sample)
	}
}

// decode maps a raw JSON payload onto a telemetry sample per the
// first-hit-wins field table; values that cannot be coerced to a number
// are ignored rather than rejecting the whole message.
func decode(payload map[string]any) telemetry.Sample {
	sample := telemetry.Sample{Timestamp: time.Now().UTC(), Source: telemetry.SourceMQTT}

	if v, ok := firstFloat(payload, "soc", "sys_soc"); ok {
		sample.BatterySoCPct = telemetry.F64(v)
	}
	if v, ok := firstFloat(payload, "bat_p", "sys_bat_p"); ok {
		sample.BatteryPowerKW = telemetry.F64(v / 1000.0)
	}
	if v, ok := firstFloat(payload, "sys_pv_p"); ok {
		sample.PVPowerKW = telemetry.F64(v / 1000.0)
	}
	if v, ok := firstFloat(payload, "sys_load_p"); ok {
		sample.LoadPowerKW = telemetry.F64(v / 1000.0)
	}
	if v, ok := firstFloat(payload, "sys_grid_p", "grid_on_p"); ok {
		sample.GridPowerKW = telemetry.F64(v / 1000.0)
	}
	if v, ok := firstFloat(payload, "voltage", "bat_v", "sys_dc_v"); ok {
		sample.VoltageV = telemetry.F64(v)
	}
	if v, ok := firstFloat(payload, "temperature", "bat_temp", "cell_temp"); ok {
		sample.TemperatureC = telemetry.F64(v)
	}

	if s, ok := firstString(payload, "bat_sts"); ok {
		sample.StatusText = &s
	}
	if s, ok := firstString(payload, "status_bits", "fault_code"); ok {
		sample.StatusBits = &s
	}

	return sample
}

// firstFloat returns the first key present in payload whose value can be
// coerced to float64, trying each candidate key in order.
func firstFloat(payload map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		raw, present := payload[k]
		if !present {
			continue
		}
		if v, ok := toFloat(raw); ok {
			return v, true
		}
	}
	return 0, false
}

func firstString(payload map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		raw, present := payload[k]
		if !present {
			continue
		}
		switch v := raw.(type) {
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
