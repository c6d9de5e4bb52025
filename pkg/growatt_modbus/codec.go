package growatt_modbus

// Register codec. Pure word-level conversions; callers are responsible for
// supplying exactly the declared number of words (the bus session already
// fails a read that returns fewer words than requested).

// DecodeU32BE combines two big-endian register words into a uint32.
func DecodeU32BE(hi, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}

// EncodeU32BE splits a uint32 into two big-endian register words.
func EncodeU32BE(v uint32) (hi, lo uint16) {
	return uint16(v >> 16), uint16(v)
}

// DecodeS16 reinterprets a register word as a two's-complement signed value.
func DecodeS16(w uint16) int16 {
	return int16(w)
}

// EncodeU16 masks an integer to a single register word.
func EncodeU16(v int) uint16 {
	return uint16(v & 0xFFFF)
}

// TOUMode is the operating priority encoded in a TOU window config word.
type TOUMode uint16

const (
	TOUModeLoadFirst    TOUMode = 0
	TOUModeBatteryFirst TOUMode = 1
	TOUModeGridFirst    TOUMode = 2
)

func (m TOUMode) String() string {
	switch m {
	case TOUModeLoadFirst:
		return "load_first"
	case TOUModeBatteryFirst:
		return "battery_first"
	case TOUModeGridFirst:
		return "grid_first"
	}
	return "unknown"
}

// TOU window config word layout: bit 15 = enabled, bits 14-13 = mode,
// low 13 bits = start time packed as hour<<8 | minute. The end word holds
// only a packed time.
const (
	touEnabledBit  uint16 = 1 << 15
	touModeShift          = 13
	touModeMask    uint16 = 0x3 << touModeShift
	touTimeMask    uint16 = 0x1FFF
	touMinuteMask  uint16 = 0x00FF
	touHourShift          = 8
	touHourPartial uint16 = 0x1F
)

// PackTOUConfig builds a TOU window config word.
func PackTOUConfig(enabled bool, mode TOUMode, hour, minute uint8) uint16 {
	w := PackTOUTime(hour, minute)
	w |= (uint16(mode) << touModeShift) & touModeMask
	if enabled {
		w |= touEnabledBit
	}
	return w
}

// PackTOUTime packs a wall-clock time into the low 13 bits of a word.
func PackTOUTime(hour, minute uint8) uint16 {
	return (uint16(hour)<<touHourShift | uint16(minute)) & touTimeMask
}

// UnpackTOUConfig splits a TOU window config word into its fields.
func UnpackTOUConfig(w uint16) (enabled bool, mode TOUMode, hour, minute uint8) {
	enabled = w&touEnabledBit != 0
	mode = TOUMode((w & touModeMask) >> touModeShift)
	hour = uint8((w >> touHourShift) & touHourPartial)
	minute = uint8(w & touMinuteMask)
	return
}
