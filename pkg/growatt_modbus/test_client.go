package growatt_modbus

import "sync"

// CreateTestInverterClient returns an in-memory InverterClient for wiring
// the bridge without a device on the bench.
func CreateTestInverterClient() *TestInverterClient {
	return &TestInverterClient{
		Telemetry: Telemetry{
			BatterySOC:       45,
			BatteryPowerWatt: -200,
			PVPowerWatt:      3000,
			GridPowerWatt:    50,
			HouseLoadWatt:    3250,
			NominalPowerKW:   6,
		},
	}
}

// TestInverterClient is a canned-data stand-in for a real inverter.
type TestInverterClient struct {
	mu sync.Mutex

	Telemetry    Telemetry
	TelemetryErr error
	ApplyErr     error

	Applied     []ControlAction
	lastApplied *ActionSignature
}

func (c *TestInverterClient) Open() error  { return nil }
func (c *TestInverterClient) Close() error { return nil }

func (c *TestInverterClient) ReadTelemetry() (*Telemetry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TelemetryErr != nil {
		return nil, c.TelemetryErr
	}
	t := c.Telemetry
	return &t, nil
}

func (c *TestInverterClient) Apply(action ControlAction) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sig := action.Signature()
	if c.lastApplied != nil && *c.lastApplied == sig {
		return false, nil
	}
	if c.ApplyErr != nil {
		return false, c.ApplyErr
	}
	c.Applied = append(c.Applied, action)
	c.lastApplied = &sig
	return true, nil
}

func (c *TestInverterClient) LastApplied() *ActionSignature {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastApplied == nil {
		return nil
	}
	sig := *c.lastApplied
	return &sig
}
