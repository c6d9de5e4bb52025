package service

import (
	"testing"

	"github.com/spock-ems/growatt2spock/internal/core/domain"
	"github.com/spock-ems/growatt2spock/pkg/growatt_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDefaultWatts = 5000

func directive(mode string, watts *float64) *domain.RemoteDirective {
	return &domain.RemoteDirective{
		Status:        domain.DirectiveStatusOK,
		OperationMode: mode,
		ActionWatts:   watts,
	}
}

func watts(v float64) *float64 {
	return &v
}

func TestTranslateDirective(t *testing.T) {
	cases := []struct {
		name      string
		directive *domain.RemoteDirective
		want      *growatt_modbus.ControlAction
	}{
		{
			"nil directive means no action",
			nil,
			nil,
		},
		{
			"failed status means no action",
			&domain.RemoteDirective{Status: "error", OperationMode: domain.DirectiveModeCharge, ActionWatts: watts(2000)},
			nil,
		},
		{
			"empty status is treated as ok",
			&domain.RemoteDirective{OperationMode: domain.DirectiveModeDischarge, ActionWatts: watts(1500)},
			&growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: 1500},
		},
		{
			"charge request",
			directive(domain.DirectiveModeCharge, watts(2500)),
			&growatt_modbus.ControlAction{Mode: growatt_modbus.ModeChargeGridBatteryFirst, TargetWatts: 2500},
		},
		{
			"charge at zero watts stands down to load first",
			directive(domain.DirectiveModeCharge, watts(0)),
			&growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: 0},
		},
		{
			"discharge request",
			directive(domain.DirectiveModeDischarge, watts(1800)),
			&growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: 1800},
		},
		{
			"discharge at zero watts",
			directive(domain.DirectiveModeDischarge, watts(0)),
			&growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: 0},
		},
		{
			"missing action watts is zero",
			directive(domain.DirectiveModeDischarge, nil),
			&growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: 0},
		},
		{
			"auto falls back to default discharge",
			directive(domain.DirectiveModeAuto, watts(9999)),
			&growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: testDefaultWatts},
		},
		{
			"none falls back to default discharge",
			directive(domain.DirectiveModeNone, nil),
			&growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: testDefaultWatts},
		},
		{
			"unknown mode falls back to default discharge",
			directive("turbo", watts(4)),
			&growatt_modbus.ControlAction{Mode: growatt_modbus.ModeLoadFirst, TargetWatts: testDefaultWatts},
		},
		{
			"fractional watts are rounded half away from zero",
			directive(domain.DirectiveModeCharge, watts(2499.5)),
			&growatt_modbus.ControlAction{Mode: growatt_modbus.ModeChargeGridBatteryFirst, TargetWatts: 2500},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TranslateDirective(tc.directive, testDefaultWatts)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}
}
