package growatt_modbus

import "fmt"

// ConnectionError reports a TCP-level failure (connect, timeout, broken
// session). Fatal for the current cycle; the next cycle reconnects.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("growatt: connection failed during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports the device answering a register operation with an
// error frame, under every known addressing convention.
type ProtocolError struct {
	Op   string
	Addr uint16
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("growatt: %s at register %d failed: %v", e.Op, e.Addr, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// BatteryOfflineError aborts a control apply when the battery converter is
// not reporting meaningful voltage/SOC/power, before or after the write
// sequence.
type BatteryOfflineError struct {
	Stage   string // "precheck" or "postcheck"
	Battery BatterySnapshot
}

func (e *BatteryOfflineError) Error() string {
	return fmt.Sprintf("growatt: battery offline at %s (voltage=%.1fV soc=%d%%)",
		e.Stage, e.Battery.VoltageVolt, e.Battery.SOC)
}

// VerificationError reports a strict write whose read-back never converged
// to the written value.
type VerificationError struct {
	Addr uint16
	Want []uint16
	Got  []uint16
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("growatt: write verification failed at register %d: wrote %v, read back %v",
		e.Addr, e.Want, e.Got)
}
