package growatt_modbus

// Telemetry is one cycle's decoded reading. It has no identity beyond
// "latest"; a new value is produced on every successful poll.
type Telemetry struct {
	BatterySOC       int     // percent, 0-100
	BatteryPowerWatt float64 // signed, positive = charging
	PVPowerWatt      float64 // non-negative
	GridPowerWatt    float64 // positive = import (see phase factor note on CreateInverterClient)
	HouseLoadWatt    float64 // signed: grid + pv - battery
	NominalPowerKW   float64 // 0 until resolved, informational only
}

// BatterySnapshot gates whether control is safe to attempt.
type BatterySnapshot struct {
	Online             bool
	VoltageVolt        float64
	SOC                int
	ChargePowerWatt    float64
	DischargePowerWatt float64
}

// Below this the battery converter is considered absent rather than merely idle.
const minMeaningfulVoltage = 10.0

func (b BatterySnapshot) meaningful() bool {
	return b.VoltageVolt >= minMeaningfulVoltage ||
		b.SOC > 0 ||
		b.ChargePowerWatt > 0 ||
		b.DischargePowerWatt > 0
}

// ControlMode selects which TOU rewrite the actuator performs.
type ControlMode uint8

const (
	// ModeLoadFirst serves the house load first; discharge rate limits how
	// hard the battery backs the load.
	ModeLoadFirst ControlMode = iota
	// ModeChargeGridBatteryFirst charges the battery first, allowing grid
	// power to charge it.
	ModeChargeGridBatteryFirst
)

func (m ControlMode) String() string {
	switch m {
	case ModeLoadFirst:
		return "load_first"
	case ModeChargeGridBatteryFirst:
		return "charge_grid_battery_first"
	}
	return "unknown"
}

// ControlAction is the desired operating state derived from a remote
// directive.
type ControlAction struct {
	Mode        ControlMode
	TargetWatts int
}

// ActionSignature identifies an applied action so unchanged directives are
// not re-applied on every cycle. Reset on process restart, updated only on a
// fully verified apply.
type ActionSignature struct {
	Mode  ControlMode
	Watts int
}

// Signature returns the idempotence key for an action.
func (a ControlAction) Signature() ActionSignature {
	return ActionSignature{Mode: a.Mode, Watts: a.TargetWatts}
}
