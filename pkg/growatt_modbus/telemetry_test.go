package growatt_modbus

import (
	"errors"
	"testing"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTelemetry(bus *fakeBus) {
	// PV = 3000 W (raw u32 30000 x 0.1)
	bus.input[RegInputPVPower] = 0
	bus.input[RegInputPVPower+1] = 30000
	// grid raw s16 = -500 -> -50.0 W, |.| x phase factor 1.0 = 50 W import
	bus.input[RegInputGridPower] = 0xFE0C
	bus.input[RegInputSOC] = 45
	// battery: discharge 200 W, charge 0 -> net -200 W
	hi, lo := EncodeU32BE(2000)
	bus.input[RegInputBatteryPower] = hi
	bus.input[RegInputBatteryPower+1] = lo
	// nominal power 6000 W
	bus.holding[RegHoldingNominalPower] = 6000
}

func TestReadTelemetryScenario(t *testing.T) {
	require := require.New(t)

	bus := newFakeBus()
	seedTelemetry(bus)
	client := newTestGrowattClient(bus, 1)

	telemetry, err := client.ReadTelemetry()
	require.NoError(err)

	assert.Equal(t, 45, telemetry.BatterySOC)
	assert.InDelta(t, 3000, telemetry.PVPowerWatt, 0.01)
	assert.InDelta(t, 50, telemetry.GridPowerWatt, 0.01)
	assert.InDelta(t, -200, telemetry.BatteryPowerWatt, 0.01)
	assert.InDelta(t, 3250, telemetry.HouseLoadWatt, 0.01, "load = grid + pv - battery")
	assert.InDelta(t, 6.0, telemetry.NominalPowerKW, 0.001)
}

func TestReadTelemetrySOCFallbackToBMS(t *testing.T) {
	bus := newFakeBus()
	seedTelemetry(bus)
	bus.input[RegInputSOC] = 0 // "no reading yet"
	bus.input[RegInputBMSSOC] = 67

	client := newTestGrowattClient(bus, 1)
	telemetry, err := client.ReadTelemetry()
	require.NoError(t, err)
	assert.Equal(t, 67, telemetry.BatterySOC)
}

func TestReadTelemetrySOCClampedTo100(t *testing.T) {
	bus := newFakeBus()
	seedTelemetry(bus)
	bus.input[RegInputSOC] = 255 // misreporting firmware

	client := newTestGrowattClient(bus, 1)
	telemetry, err := client.ReadTelemetry()
	require.NoError(t, err)
	assert.Equal(t, 100, telemetry.BatterySOC)

	bus.input[RegInputSOC] = 0
	bus.input[RegInputBMSSOC] = 120
	telemetry, err = client.ReadTelemetry()
	require.NoError(t, err)
	assert.Equal(t, 100, telemetry.BatterySOC, "fallback path is clamped too")
}

func TestNominalPowerScaleBands(t *testing.T) {
	// 0.1 W band
	bus := newFakeBus()
	seedTelemetry(bus)
	bus.holding[RegHoldingNominalPower] = 60000
	client := newTestGrowattClient(bus, 1)
	telemetry, err := client.ReadTelemetry()
	require.NoError(t, err)
	assert.InDelta(t, 6.0, telemetry.NominalPowerKW, 0.001)

	// outside both bands: fall back to the input register pair
	bus = newFakeBus()
	seedTelemetry(bus)
	bus.holding[RegHoldingNominalPower] = 123
	hi, lo := EncodeU32BE(60000) // 6000 W raw
	bus.input[RegInputNominalPower] = hi
	bus.input[RegInputNominalPower+1] = lo
	client = newTestGrowattClient(bus, 1)
	telemetry, err = client.ReadTelemetry()
	require.NoError(t, err)
	assert.InDelta(t, 6.0, telemetry.NominalPowerKW, 0.001)
}

func TestNominalPowerResolvedOnce(t *testing.T) {
	bus := newFakeBus()
	seedTelemetry(bus)
	client := newTestGrowattClient(bus, 1)

	_, err := client.ReadTelemetry()
	require.NoError(t, err)

	// the hardware value never changes; a changed register must not be re-read
	bus.holding[RegHoldingNominalPower] = 5000
	telemetry, err := client.ReadTelemetry()
	require.NoError(t, err)
	assert.InDelta(t, 6.0, telemetry.NominalPowerKW, 0.001)
}

func TestReadTelemetryProtocolErrorAbortsCycle(t *testing.T) {
	bus := newFakeBus()
	seedTelemetry(bus)
	bus.failReads[RegInputPVPower] = modbus.ErrIllegalDataAddress

	client := newTestGrowattClient(bus, 1)
	_, err := client.ReadTelemetry()
	require.Error(t, err)

	var protoErr *ProtocolError
	assert.True(t, errors.As(err, &protoErr))
}

func TestReadTelemetryConnectFailure(t *testing.T) {
	bus := newFakeBus()
	bus.openErr = errors.New("connection refused")

	client := newTestGrowattClient(bus, 1)
	_, err := client.ReadTelemetry()
	require.Error(t, err)

	var connErr *ConnectionError
	assert.True(t, errors.As(err, &connErr))
}

func TestAddressingConventionFallback(t *testing.T) {
	bus := newFakeBus()
	seedTelemetry(bus)
	// the device ignores requests addressed to the configured id
	bus.rejectUnits[5] = modbus.ErrRequestTimedOut

	client := newTestGrowattClient(bus, 5)
	telemetry, err := client.ReadTelemetry()
	require.NoError(t, err)
	assert.Equal(t, 45, telemetry.BatterySOC)

	// after the first success the working convention is pinned: the last
	// request of the cycle must not have retried the dead unit id first
	assert.Equal(t, uint8(1), bus.unitIDs[len(bus.unitIDs)-1])
}
