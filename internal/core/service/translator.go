package service

import (
	"math"

	"github.com/spock-ems/growatt2spock/internal/core/domain"
	"github.com/spock-ems/growatt2spock/pkg/growatt_modbus"
)

// TranslateDirective maps a remote directive onto the inverter action to
// apply this cycle. A nil result means "leave the inverter alone".
//
// Unknown or absent operation modes fall back to discharging at
// defaultWatts, so a misbehaving remote side degrades to self-consumption
// instead of freezing the last commanded mode.
func TranslateDirective(d *domain.RemoteDirective, defaultWatts int) *growatt_modbus.ControlAction {
	if d == nil {
		return nil
	}
	if d.Status != "" && d.Status != domain.DirectiveStatusOK {
		return nil
	}

	watts := 0
	if d.ActionWatts != nil {
		watts = int(math.Round(*d.ActionWatts))
	}

	switch d.OperationMode {
	case domain.DirectiveModeCharge:
		if watts == 0 {
			return &growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: 0}
		}
		return &growatt_modbus.ControlAction{Mode: growatt_modbus.ModeChargeGridBatteryFirst, TargetWatts: watts}
	case domain.DirectiveModeDischarge:
		return &growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: watts}
	default:
		return &growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: defaultWatts}
	}
}
