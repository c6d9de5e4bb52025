package growatt_modbus

import (
	"fmt"
	"math"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// InverterClient is the device-facing surface of the bridge: one telemetry
// poll, one safety-guarded control apply, both serialized on the same
// session.
type InverterClient interface {
	Open() error
	Close() error
	ReadTelemetry() (*Telemetry, error)
	// Apply executes a control action against the device. It returns false
	// with a nil error when the action matches the last applied signature
	// and is skipped.
	Apply(action ControlAction) (bool, error)
	LastApplied() *ActionSignature
}

// GrowattClient drives a Growatt hybrid inverter over Modbus TCP.
type GrowattClient struct {
	session *session
	logger  *zap.Logger

	// site calibration: multiplier applied to the raw grid power magnitude
	// (single phase 1.0, some three-phase CT setups need sqrt(3) or a
	// metered correction factor).
	phaseFactor float64

	// battery power base in watts, the 100% reference for charge and
	// discharge rate percentages.
	batteryMaxWatt int

	verifyRetries int
	verifyDelay   time.Duration

	// nominal power is hardware-fixed, resolved at most once per process.
	nominalPowerKW float64

	lastApplied *ActionSignature
}

const (
	defaultVerifyRetries = 8
	defaultVerifyDelay   = 400 * time.Millisecond
)

// CreateInverterClient connects the client to a device endpoint. The TCP
// session itself is established lazily on first use.
func CreateInverterClient(host string, port uint, unitID uint8, timeout time.Duration,
	phaseFactor float64, batteryMaxWatt int, logger *zap.Logger) (InverterClient, error) {

	bus, err := newTCPBus(fmt.Sprintf("tcp://%s:%d", host, port), timeout)
	if err != nil {
		return nil, err
	}
	return &GrowattClient{
		session:        newSession(bus, unitID, logger),
		logger:         logger,
		phaseFactor:    phaseFactor,
		batteryMaxWatt: batteryMaxWatt,
		verifyRetries:  defaultVerifyRetries,
		verifyDelay:    defaultVerifyDelay,
	}, nil
}

func (c *GrowattClient) Open() error {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	return c.session.ensureOpen()
}

func (c *GrowattClient) Close() error {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	return c.session.close()
}

func (c *GrowattClient) LastApplied() *ActionSignature {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	if c.lastApplied == nil {
		return nil
	}
	sig := *c.lastApplied
	return &sig
}

// ReadTelemetry runs one full poll cycle. The session lock is held for the
// whole cycle so a concurrent control apply can never interleave with the
// reads. Any register error aborts the cycle; no partial telemetry is ever
// returned.
func (c *GrowattClient) ReadTelemetry() (*Telemetry, error) {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	if err := c.session.ensureOpen(); err != nil {
		return nil, err
	}

	// nominal power is informational; failure to resolve it is non-fatal
	// and retried next cycle.
	c.resolveNominalPower()

	pvRegs, err := c.session.read(modbus.INPUT_REGISTER, RegInputPVPower, 2)
	if err != nil {
		return nil, err
	}
	pvPower := float64(DecodeU32BE(pvRegs[0], pvRegs[1])) * scalePower

	gridRegs, err := c.session.read(modbus.INPUT_REGISTER, RegInputGridPower, 1)
	if err != nil {
		return nil, err
	}
	gridRaw := float64(DecodeS16(gridRegs[0])) * scalePower
	gridPower := math.Abs(gridRaw) * c.phaseFactor // positive = import

	soc, err := c.readSOC()
	if err != nil {
		return nil, err
	}

	batRegs, err := c.session.read(modbus.INPUT_REGISTER, RegInputBatteryPower, 4)
	if err != nil {
		return nil, err
	}
	dischargeW := float64(DecodeU32BE(batRegs[0], batRegs[1])) * scalePower
	chargeW := float64(DecodeU32BE(batRegs[2], batRegs[3])) * scalePower
	batteryPower := chargeW - dischargeW

	return &Telemetry{
		BatterySOC:       soc,
		BatteryPowerWatt: batteryPower,
		PVPowerWatt:      pvPower,
		GridPowerWatt:    gridPower,
		HouseLoadWatt:    gridPower + pvPower - batteryPower,
		NominalPowerKW:   c.nominalPowerKW,
	}, nil
}

// readSOC reads the primary SOC register, falling back to the BMS register
// when the primary reports 0 ("no reading yet", not "empty").
func (c *GrowattClient) readSOC() (int, error) {
	regs, err := c.session.read(modbus.INPUT_REGISTER, RegInputSOC, 1)
	if err != nil {
		return 0, err
	}
	soc := int(regs[0])
	if soc == 0 {
		bms, err := c.session.read(modbus.INPUT_REGISTER, RegInputBMSSOC, 1)
		if err != nil {
			return 0, err
		}
		soc = int(bms[0])
	}
	// misreporting firmware has been seen returning values above 100
	if soc > 100 {
		soc = 100
	}
	return soc, nil
}

// resolveNominalPower reads the hardware nominal power once per process
// lifetime. The holding register value is accepted only when it falls in one
// of two known scale bands; otherwise the input register pair is tried.
// Best-effort: on failure the cache stays unset for the next cycle.
func (c *GrowattClient) resolveNominalPower() {
	if c.nominalPowerKW > 0 {
		return
	}
	if regs, err := c.session.read(modbus.HOLDING_REGISTER, RegHoldingNominalPower, 1); err == nil {
		val := int(regs[0])
		switch {
		case val >= 5000 && val <= 7000: // watts
			c.nominalPowerKW = float64(val) / 1000.0
		case val >= 50000 && val <= 70000: // 0.1 watts
			c.nominalPowerKW = float64(val) / 10000.0
		}
	}
	if c.nominalPowerKW > 0 {
		c.logger.Info("growatt: nominal power resolved", zap.Float64("kw", c.nominalPowerKW))
		return
	}
	if regs, err := c.session.read(modbus.INPUT_REGISTER, RegInputNominalPower, 2); err == nil {
		c.nominalPowerKW = float64(DecodeU32BE(regs[0], regs[1])) * scalePower / 1000.0
		if c.nominalPowerKW > 0 {
			c.logger.Info("growatt: nominal power resolved from input register",
				zap.Float64("kw", c.nominalPowerKW))
		}
	}
}

// readBatterySnapshot reads the converter state used to gate control writes.
// Caller must hold the session lock.
func (c *GrowattClient) readBatterySnapshot() (*BatterySnapshot, error) {
	statusRegs, err := c.session.read(modbus.INPUT_REGISTER, RegInputBatteryStatus, 3)
	if err != nil {
		return nil, err
	}
	powerRegs, err := c.session.read(modbus.INPUT_REGISTER, RegInputBatteryPower, 4)
	if err != nil {
		return nil, err
	}
	snap := BatterySnapshot{
		VoltageVolt:        float64(statusRegs[0]) * scaleVoltage,
		SOC:                int(statusRegs[2]),
		DischargePowerWatt: float64(DecodeU32BE(powerRegs[0], powerRegs[1])) * scalePower,
		ChargePowerWatt:    float64(DecodeU32BE(powerRegs[2], powerRegs[3])) * scalePower,
	}
	snap.Online = snap.meaningful()
	return &snap, nil
}
