package growatt_modbus

// Register map for Growatt hybrid inverters (MIN/TL-XH 3000 series).
// All registers are big-endian 16-bit words; 32-bit quantities span two
// consecutive words, high word first.

// Input registers (telemetry, read-only).
const (
	RegInputPVPower       uint16 = 3001 // u32, 0.1 W
	RegInputNominalPower  uint16 = 3005 // u32, 0.1 W, fallback for RegHoldingNominalPower
	RegInputSOC           uint16 = 3010 // u16, percent; 0 means "no reading yet"
	RegInputGridPower     uint16 = 3048 // s16, 0.1 W
	RegInputBatteryStatus uint16 = 3169 // u16 voltage 0.1 V, s16 current 0.1 A, u16 BMS SOC percent
	RegInputBMSSOC        uint16 = 3171 // u16, percent, BMS-reported fallback for RegInputSOC
	RegInputBatteryPower  uint16 = 3178 // u32 discharge 0.1 W, u32 charge 0.1 W
)

// Holding registers (configuration, read-write).
const (
	RegHoldingNominalPower     uint16 = 10   // u16, W or 0.1 W depending on firmware scale band
	RegHoldingChargeRate       uint16 = 3036 // u16, percent of battery power base
	RegHoldingDischargeRate    uint16 = 3037 // u16, percent of battery power base
	RegHoldingTOUWindow1       uint16 = 3038 // cfg word + end word
	RegHoldingTOUWindow2       uint16 = 3040
	RegHoldingTOUWindow3       uint16 = 3042
	RegHoldingGridChargeEnable uint16 = 3049 // 0/1
)

const touWindowCount = 3

// touWindowAddr returns the cfg-word address of TOU window n (1-based).
func touWindowAddr(n int) uint16 {
	return RegHoldingTOUWindow1 + uint16(n-1)*2
}

// Raw register scale factors.
const (
	scalePower   = 0.1 // 0.1 W per LSB
	scaleVoltage = 0.1 // 0.1 V per LSB
)
