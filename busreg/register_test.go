package busreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name    string
		address int
		fn      Function
		zero    bool
		want    int
	}{
		{"holding modicon offset", 40010, FunctionHoldingRegister, false, 9},
		{"input modicon offset", 30001, FunctionInputRegister, false, 0},
		{"discrete modicon offset", 10001, FunctionDiscreteInput, false, 0},
		{"already zero based", 4, FunctionInputRegister, true, 4},
		{"bare one-based fallback", 5, FunctionInputRegister, false, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAddress(tt.address, tt.fn, tt.zero))
		})
	}
}

func TestRegisterDecode_SignedOffset(t *testing.T) {
	// current_a: scale 0.1, offset -3200.0 -> raw 32000 means (32000*0.1)-3200 = 0A
	r := hithiumESS5016.Registers["current_a"]
	got := r.Decode([]uint16{32000})
	assert.InDelta(t, 0.0, got, 1e-9)
}

func TestRegisterDecode_Int32TwoWords(t *testing.T) {
	r := wstechPCS.Registers["pac_now_w"]
	// -1000 as int32 split into two big-endian 16-bit words
	raw := int32(-1000)
	hi := uint16(uint32(raw) >> 16)
	lo := uint16(uint32(raw) & 0xFFFF)
	got := r.Decode([]uint16{hi, lo})
	assert.Equal(t, -1000.0, got)
}

func TestRegisterEncodeWords_RoundTrip(t *testing.T) {
	r := wstechPCS.Registers["active_power_limit_pct"]
	words := r.EncodeWords(55.5) // scale 0.1
	got := r.Decode(words)
	assert.InDelta(t, 55.5, got, 1e-6)
}

func TestAlarmIsSet(t *testing.T) {
	a := hithiumESS5016.Alarms["system_fault"]
	assert.True(t, a.IsSet(1))
	assert.False(t, a.IsSet(0))
}

func TestLookupProfile(t *testing.T) {
	_, ok := LookupProfile("hithium_ess_5016")
	assert.True(t, ok)
	_, ok = LookupProfile("nonexistent")
	assert.False(t, ok)
}
