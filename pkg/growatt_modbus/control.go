package growatt_modbus

import (
	"math"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Apply state machine, entirely inside one session lock acquisition:
//
//	CONNECT -> BACKUP -> PRECHECK -> APPLY -> POSTCHECK -> COMMIT | ROLLBACK
//
// BACKUP snapshots every register the apply step may touch. PRECHECK and
// POSTCHECK confirm the battery converter is online. Any failure between
// BACKUP and COMMIT restores the backed-up values best-effort and leaves the
// last-applied signature untouched.

type backupEntry struct {
	addr   uint16
	values []uint16
}

type registerBackup struct {
	entries []backupEntry
}

func (b *registerBackup) add(addr uint16, values []uint16) {
	b.entries = append(b.entries, backupEntry{addr: addr, values: values})
}

func (b *registerBackup) valueAt(addr uint16) (uint16, bool) {
	for _, e := range b.entries {
		if addr >= e.addr && int(addr-e.addr) < len(e.values) {
			return e.values[addr-e.addr], true
		}
	}
	return 0, false
}

// Apply executes a control action. Unchanged actions (same signature as the
// last committed apply) are skipped without touching the device.
func (c *GrowattClient) Apply(action ControlAction) (bool, error) {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	sig := action.Signature()
	if c.lastApplied != nil && *c.lastApplied == sig {
		c.logger.Debug("growatt: action unchanged, skipping apply",
			zap.String("mode", action.Mode.String()),
			zap.Int("watts", action.TargetWatts))
		return false, nil
	}

	if err := c.session.ensureOpen(); err != nil {
		return false, err
	}

	backup, err := c.backupControlRegisters()
	if err != nil {
		return false, err
	}

	pre, err := c.readBatterySnapshot()
	if err != nil {
		return false, err
	}
	if !pre.Online {
		return false, &BatteryOfflineError{Stage: "precheck", Battery: *pre}
	}

	if err := c.applyAction(action, backup); err != nil {
		c.rollback(backup)
		return false, err
	}

	post, err := c.readBatterySnapshot()
	if err != nil {
		c.rollback(backup)
		return false, err
	}
	if !post.Online {
		c.rollback(backup)
		return false, &BatteryOfflineError{Stage: "postcheck", Battery: *post}
	}

	c.lastApplied = &sig
	c.logger.Info("growatt: control action applied",
		zap.String("mode", action.Mode.String()),
		zap.Int("watts", action.TargetWatts))
	return true, nil
}

// backupControlRegisters reads the pre-action value of every register the
// apply step may modify, before anything is written.
func (c *GrowattClient) backupControlRegisters() (*registerBackup, error) {
	var backup registerBackup

	enable, err := c.session.read(modbus.HOLDING_REGISTER, RegHoldingGridChargeEnable, 1)
	if err != nil {
		return nil, err
	}
	backup.add(RegHoldingGridChargeEnable, enable)

	rates, err := c.session.read(modbus.HOLDING_REGISTER, RegHoldingChargeRate, 2)
	if err != nil {
		return nil, err
	}
	backup.add(RegHoldingChargeRate, rates[:1])
	backup.add(RegHoldingDischargeRate, rates[1:2])

	for n := 1; n <= touWindowCount; n++ {
		window, err := c.session.read(modbus.HOLDING_REGISTER, touWindowAddr(n), 2)
		if err != nil {
			return nil, err
		}
		backup.add(touWindowAddr(n), window)
	}
	return &backup, nil
}

func (c *GrowattClient) applyAction(action ControlAction, backup *registerBackup) error {
	switch action.Mode {
	case ModeChargeGridBatteryFirst:
		return c.applyChargeGridBatteryFirst(action.TargetWatts, backup)
	default:
		return c.applyLoadFirst(action.TargetWatts, backup)
	}
}

// applyChargeGridBatteryFirst rewrites the TOU configuration so the battery
// charges first, grid charging allowed, at the requested rate.
func (c *GrowattClient) applyChargeGridBatteryFirst(targetWatts int, backup *registerBackup) error {
	// disable any other active TOU windows so window 1 rules the whole day
	for n := 2; n <= touWindowCount; n++ {
		cfg, ok := backup.valueAt(touWindowAddr(n))
		if !ok || cfg&touEnabledBit == 0 {
			continue
		}
		if err := c.writeVerified(touWindowAddr(n), []uint16{cfg &^ touEnabledBit}, false); err != nil {
			return err
		}
	}

	// window 1: full day, battery first
	window1 := []uint16{
		PackTOUConfig(true, TOUModeBatteryFirst, 0, 0),
		PackTOUTime(23, 59),
	}
	if err := c.writeVerified(RegHoldingTOUWindow1, window1, false); err != nil {
		return err
	}

	if err := c.writeVerified(RegHoldingGridChargeEnable, []uint16{1}, false); err != nil {
		return err
	}

	// grid charging never accepts a 0% rate
	percent := WattsToPercent(targetWatts, c.batteryMaxWatt, false)
	return c.writeVerified(RegHoldingChargeRate, []uint16{EncodeU16(percent)}, true)
}

// applyLoadFirst rewrites the TOU configuration so the house load is served
// first, with the discharge rate capped at the requested level and grid
// charging disabled.
func (c *GrowattClient) applyLoadFirst(targetWatts int, backup *registerBackup) error {
	window1 := []uint16{
		PackTOUConfig(true, TOUModeLoadFirst, 0, 0),
		PackTOUTime(23, 59),
	}
	if err := c.writeVerified(RegHoldingTOUWindow1, window1, false); err != nil {
		return err
	}

	// 0% is a valid full stop for discharge
	percent := WattsToPercent(targetWatts, c.batteryMaxWatt, true)
	prev, hasPrev := backup.valueAt(RegHoldingDischargeRate)
	if !hasPrev || prev != EncodeU16(percent) {
		if err := c.writeVerified(RegHoldingDischargeRate, []uint16{EncodeU16(percent)}, true); err != nil {
			// restore the previous rate before the caller unwinds the rest
			if hasPrev {
				if werr := c.session.write(RegHoldingDischargeRate, []uint16{prev}); werr != nil {
					c.logger.Warn("growatt: could not restore previous discharge rate", zap.Error(werr))
				}
			}
			return err
		}
	}

	return c.writeVerified(RegHoldingGridChargeEnable, []uint16{0}, false)
}

// writeVerified writes values with the "write multiple registers" function
// and confirms them by read-back with bounded retries. Non-strict writes log
// a failed verification and continue; strict writes return a
// VerificationError that triggers full rollback.
func (c *GrowattClient) writeVerified(addr uint16, values []uint16, strict bool) error {
	if err := c.session.write(addr, values); err != nil {
		return err
	}

	var got []uint16
	for attempt := 0; attempt < c.verifyRetries; attempt++ {
		if attempt > 0 && c.verifyDelay > 0 {
			time.Sleep(c.verifyDelay)
		}
		regs, err := c.session.read(modbus.HOLDING_REGISTER, addr, uint16(len(values)))
		if err != nil {
			return err
		}
		got = regs
		if wordsEqual(regs, values) {
			return nil
		}
	}

	if strict {
		return &VerificationError{Addr: addr, Want: values, Got: got}
	}
	c.logger.Warn("growatt: write verification did not converge, continuing",
		zap.Uint16("addr", addr),
		zap.Uint16s("want", values),
		zap.Uint16s("got", got))
	return nil
}

// rollback restores every backed-up register in reverse dependency order.
// Individual failures are logged and never prevent the remaining restores
// from being attempted.
func (c *GrowattClient) rollback(backup *registerBackup) {
	restored := 0
	for i := len(backup.entries) - 1; i >= 0; i-- {
		entry := backup.entries[i]
		if err := c.session.write(entry.addr, entry.values); err != nil {
			c.logger.Warn("growatt: rollback write failed",
				zap.Uint16("addr", entry.addr),
				zap.Error(err))
			continue
		}
		restored++
	}
	c.logger.Info("growatt: rollback finished",
		zap.Int("restored", restored),
		zap.Int("total", len(backup.entries)))
}

// WattsToPercent converts a power target to a rate percentage of the battery
// power base, clamped to [1,100] (or [0,100] when zero is allowed) regardless
// of input sign or magnitude.
func WattsToPercent(watts, baseWatts int, allowZero bool) int {
	percent := 0
	if baseWatts > 0 {
		percent = int(math.Round(float64(watts) / float64(baseWatts) * 100))
	}
	floor := 1
	if allowZero {
		floor = 0
	}
	if percent < floor {
		return floor
	}
	if percent > 100 {
		return 100
	}
	return percent
}

func wordsEqual(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
