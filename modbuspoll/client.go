// Package modbuspoll connects to a BMS/PCS device over Modbus and polls its
// register map on a fixed cadence into telemetry samples.
package modbuspoll

import (
	"fmt"
	"time"

	"github.com/goburrow/modbus"

	"github.com/devskill-org/bess-ems/busreg"
)

// Client wraps a goburrow/modbus connection for one device, reading and
// writing registers by busreg.Register rather than raw address/count pairs.
type Client struct {
	client     modbus.Client
	rtuHandler *modbus.RTUClientHandler
	tcpHandler *modbus.TCPClientHandler
}

// DialTCP opens a Modbus TCP connection to host:port.
func DialTCP(address string, slaveID byte, timeout time.Duration) (*Client, error) {
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = slaveID
	if timeout > 0 {
		handler.Timeout = timeout
	}
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("modbus tcp connect %s: %w", address, err)
	}
	return &Client{client: modbus.NewClient(handler), tcpHandler: handler}, nil
}

// DialRTU opens a Modbus RTU connection over a serial device.
func DialRTU(device string, baudRate int, parity string, slaveID byte, timeout time.Duration) (*Client, error) {
	handler := modbus.NewRTUClientHandler(device)
	handler.BaudRate = baudRate
	handler.DataBits = 8
	if parity == "" {
		parity = "N"
	}
	handler.Parity = parity
	handler.StopBits = 1
	handler.SlaveId = slaveID
	if timeout > 0 {
		handler.Timeout = timeout
	}
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("modbus rtu connect %s: %w", device, err)
	}
	return &Client{client: modbus.NewClient(handler), rtuHandler: handler}, nil
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	if c.rtuHandler != nil {
		return c.rtuHandler.Close()
	}
	if c.tcpHandler != nil {
		return c.tcpHandler.Close()
	}
	return nil
}

// ReadRegister reads one register's words from the device and returns its
// raw (unscaled) integer value plus the words themselves, for alarm bit
// decoding.
func (c *Client) ReadRegister(r busreg.Register) (raw int64, words []uint16, err error) {
	count := r.Count
	if count == 0 {
		count = 1
	}
	address := busreg.NormalizeAddress(r.Address, r.Function, r.ZeroBased)

	var bytes []byte
	switch r.Function {
	case busreg.FunctionInputRegister:
		bytes, err = c.client.ReadInputRegisters(uint16(address), uint16(count))
	case busreg.FunctionHoldingRegister:
		bytes, err = c.client.ReadHoldingRegisters(uint16(address), uint16(count))
	case busreg.FunctionDiscreteInput:
		bytes, err = c.client.ReadDiscreteInputs(uint16(address), uint16(count))
		if err == nil {
			raw = 0
			if len(bytes) > 0 && bytes[0]&0x01 != 0 {
				raw = 1
			}
			return raw, nil, nil
		}
	default:
		return 0, nil, fmt.Errorf("unsupported function code %d for register %s", r.Function, r.Name)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("read %s: %w", r.Name, err)
	}

	words = make([]uint16, count)
	for i := 0; i < count; i++ {
		words[i] = uint16(bytes[i*2])<<8 | uint16(bytes[i*2+1])
	}
	return r.DecodeRaw(words), words, nil
}

// WriteRegister writes an engineering-unit value to a holding register,
// converting it to raw words with the register's scale and offset
// (EncodeWords). Only function code 3 registers are writable.
func (c *Client) WriteRegister(r busreg.Register, value float64) error {
	if r.Function != busreg.FunctionHoldingRegister {
		return fmt.Errorf("register %s (function %d) is not writable", r.Name, r.Function)
	}
	address := busreg.NormalizeAddress(r.Address, r.Function, r.ZeroBased)
	words := r.EncodeWords(value)

	if len(words) == 1 {
		_, err := c.client.WriteSingleRegister(uint16(address), words[0])
		if err != nil {
			return fmt.Errorf("write %s: %w", r.Name, err)
		}
		return nil
	}

	buf := make([]byte, len(words)*2)
	for i, w := range words {
		buf[i*2] = byte(w >> 8)
		buf[i*2+1] = byte(w)
	}
	_, err := c.client.WriteMultipleRegisters(uint16(address), uint16(len(words)), buf)
	if err != nil {
		return fmt.Errorf("write %s: %w", r.Name, err)
	}
	return nil
}

// SyncTime writes the BMS real-time clock via its RTC registers (year,
// month, day, hour, minute, second at consecutive holding addresses
// starting at 524), matching the Hithium RTC synchronization sequence.
func (c *Client) SyncTime(t time.Time) error {
	y := t.Year() - 2000
	if y < 0 {
		y = 0
	}
	if y > 100 {
		y = 100
	}
	fields := []struct {
		addr  int
		value uint16
	}{
		{524, uint16(y)},
		{525, uint16(t.Month())},
		{526, uint16(t.Day())},
		{527, uint16(t.Hour())},
		{528, uint16(t.Minute())},
		{529, uint16(t.Second())},
	}
	for _, f := range fields {
		if _, err := c.client.WriteSingleRegister(uint16(f.addr), f.value); err != nil {
			return fmt.Errorf("sync_time register %d: %w", f.addr, err)
		}
	}
	return nil
}
