package modbuspoll

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/devskill-org/bess-ems/busreg"
	"github.com/devskill-org/bess-ems/config"
	"github.com/devskill-org/bess-ems/internal/periodic"
	"github.com/devskill-org/bess-ems/telemetry"
)

var errNotConnected = errors.New("modbuspoll: no active client connection")

// State is the poller's connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StatePolling      State = "polling"
	StateError        State = "error"
)

// Poller owns a Modbus connection to one device and republishes its
// register map as telemetry samples on a fixed cadence, reconnecting after
// any read/write failure.
type Poller struct {
	cfg     config.Modbus
	profile busreg.Profile
	logger  *log.Logger

	mu      sync.RWMutex
	state   State
	lastErr error
	client  *Client

	onSample func(telemetry.Sample)

	task *periodic.Task
}

// New builds a Poller for the given Modbus configuration and device
// profile. onSample is invoked from the poll goroutine with each decoded
// sample; callers must not block in it.
func New(cfg config.Modbus, profile busreg.Profile, logger *log.Logger, onSample func(telemetry.Sample)) *Poller {
	p := &Poller{
		cfg:      cfg,
		profile:  profile,
		logger:   logger,
		state:    StateDisconnected,
		onSample: onSample,
	}
	p.task = &periodic.Task{
		Name:     "modbus-poller",
		Interval: time.Duration(cfg.PollIntervalS * float64(time.Second)),
		RunFunc:  p.tick,
	}
	return p
}

// State returns the poller's current connection state.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Profile returns the device register profile this poller was built with.
func (p *Poller) Profile() busreg.Profile { return p.profile }

// LastError returns the most recent poll or connect error, if any.
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// WithClient runs fn with the poller's current client under the poller's
// lock, so command writes from the Site Controller serialize with the
// poller's own connect/poll cycle against the same connection. Returns an
// error without calling fn if no client is currently connected.
func (p *Poller) WithClient(fn func(*Client) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return errNotConnected
	}
	return fn(p.client)
}

func (p *Poller) setState(s State, err error) {
	p.mu.Lock()
	p.state = s
	p.lastErr = err
	p.mu.Unlock()
}

// Run blocks, polling until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.task.Run(ctx, p.logger)
}

// Stop signals Run to return.
func (p *Poller) Stop() {
	p.task.Stop()
	p.mu.Lock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	p.state = StateDisconnected
	p.mu.Unlock()
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	if client == nil {
		p.setState(StateConnecting, nil)
		c, err := p.connect()
		if err != nil {
			p.setState(StateError, err)
			if p.logger != nil {
				p.logger.Printf("modbus connect failed: %v", err)
			}
			return
		}
		p.mu.Lock()
		p.client = c
		p.mu.Unlock()
		p.setState(StateConnected, nil)
		client = c
		if err := c.SyncTime(time.Now().UTC()); err != nil && p.logger != nil {
			p.logger.Printf("modbus rtc sync failed: %v", err)
		}
	}

	p.setState(StatePolling, nil)
	sample, err := p.poll(client)
	if err != nil {
		p.setState(StateError, err)
		if p.logger != nil {
			p.logger.Printf("modbus poll failed: %v", err)
		}
		p.mu.Lock()
		if p.client != nil {
			p.client.Close()
			p.client = nil
		}
		p.mu.Unlock()
		return
	}

	p.setState(StateConnected, nil)
	if p.onSample != nil {
		p.onSample(sample)
	}
}

func (p *Poller) connect() (*Client, error) {
	if p.cfg.ConnectionType == "rtu" {
		return DialRTU(p.cfg.Device, p.cfg.BaudRate, p.cfg.Parity, p.cfg.SlaveID, p.cfg.Timeout)
	}
	addr := p.cfg.Host
	if p.cfg.Port != 0 {
		addr = addrWithPort(p.cfg.Host, p.cfg.Port)
	}
	return DialTCP(addr, p.cfg.SlaveID, p.cfg.Timeout)
}

func addrWithPort(host string, port int) string {
	if host == "" {
		host = "localhost"
	}
	return host + ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// poll reads every register in the profile and assembles a telemetry
// sample, mapping well-known register names onto the sample's typed
// fields while keeping every decoded value in Raw for diagnostics.
func (p *Poller) poll(client *Client) (telemetry.Sample, error) {
	sample := telemetry.Sample{
		Timestamp: time.Now().UTC(),
		Source:    telemetry.SourceModbus,
		Raw:       make(map[string]int64, len(p.profile.Registers)),
	}

	for name, reg := range p.profile.Registers {
		raw, words, err := client.ReadRegister(reg)
		if err != nil {
			return telemetry.Sample{}, err
		}
		sample.Raw[name] = raw

		switch name {
		case "soc_percent", "soc_from_bess":
			v := reg.Decode(words)
			sample.BatterySoCPct = &v
		case "pac_now_w":
			v := reg.Decode(words) / 1000.0
			sample.BatteryPowerKW = &v
		}
	}

	for name, alarm := range p.profile.Alarms {
		reg := busreg.Register{
			Name: name, Address: alarm.Address, Function: busreg.FunctionDiscreteInput,
			Count: 1, ZeroBased: alarm.ZeroBased,
		}
		raw, _, err := client.ReadRegister(reg)
		if err != nil {
			continue // alarm registers are best-effort; a missing alarm bit is not fatal
		}
		sample.Raw[name] = raw
		if alarm.IsSet(raw) && name == "system_fault" {
			sample.BMSAlarm = telemetry.Bool(true)
		}
	}

	return sample, nil
}
