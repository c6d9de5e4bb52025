package growatt_modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestU32BERoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xFFFF, 0x10000, 30000, 0xDEADBEEF, 0xFFFFFFFF} {
		hi, lo := EncodeU32BE(v)
		assert.Equal(t, v, DecodeU32BE(hi, lo))
	}
}

func TestDecodeU32BEWordOrder(t *testing.T) {
	// high word first
	assert.Equal(t, uint32(30000), DecodeU32BE(0, 30000))
	assert.Equal(t, uint32(0x00010000), DecodeU32BE(1, 0))
}

func TestDecodeS16(t *testing.T) {
	assert.Equal(t, int16(-32768), DecodeS16(0x8000))
	assert.Equal(t, int16(32767), DecodeS16(0x7FFF))
	assert.Equal(t, int16(1), DecodeS16(0x0001))
	assert.Equal(t, int16(-1), DecodeS16(0xFFFF))
	assert.Equal(t, int16(-500), DecodeS16(0xFE0C))
}

func TestEncodeU16(t *testing.T) {
	assert.Equal(t, uint16(0), EncodeU16(0))
	assert.Equal(t, uint16(100), EncodeU16(100))
	assert.Equal(t, uint16(0xFFFF), EncodeU16(0x1FFFF))
}

func TestTOUConfigRoundTrip(t *testing.T) {
	cases := []struct {
		enabled      bool
		mode         TOUMode
		hour, minute uint8
	}{
		{true, TOUModeBatteryFirst, 0, 0},
		{true, TOUModeLoadFirst, 23, 59},
		{false, TOUModeGridFirst, 6, 30},
		{true, TOUModeLoadFirst, 12, 1},
	}
	for _, c := range cases {
		w := PackTOUConfig(c.enabled, c.mode, c.hour, c.minute)
		enabled, mode, hour, minute := UnpackTOUConfig(w)
		assert.Equal(t, c.enabled, enabled)
		assert.Equal(t, c.mode, mode)
		assert.Equal(t, c.hour, hour)
		assert.Equal(t, c.minute, minute)
	}
}

func TestTOUConfigBits(t *testing.T) {
	w := PackTOUConfig(true, TOUModeBatteryFirst, 6, 30)
	assert.Equal(t, uint16(1), w>>15, "bit 15 is the enable flag")
	assert.Equal(t, uint16(TOUModeBatteryFirst), (w>>13)&0x3, "bits 14-13 are the mode")
	assert.Equal(t, PackTOUTime(6, 30), w&0x1FFF, "low 13 bits are the packed start time")

	// clearing the enable bit must not disturb the rest of the config
	disabled := w &^ uint16(1<<15)
	enabled, mode, hour, minute := UnpackTOUConfig(disabled)
	assert.False(t, enabled)
	assert.Equal(t, TOUModeBatteryFirst, mode)
	assert.Equal(t, uint8(6), hour)
	assert.Equal(t, uint8(30), minute)
}
