package growatt_modbus

import (
	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type fakeWrite struct {
	addr   uint16
	values []uint16
}

// fakeBus is an in-memory register map with failure injection, standing in
// for the modbus TCP client.
type fakeBus struct {
	holding map[uint16]uint16
	input   map[uint16]uint16

	opened  bool
	openErr error
	unitID  uint8
	unitIDs []uint8

	writes      []fakeWrite
	failReads   map[uint16]error
	failWrites  map[uint16]error
	rejectUnits map[uint8]error
	// reads of these holding addresses return a stale value, simulating a
	// device that never accepts the written value
	verifyFails map[uint16]uint16

	onWrite func(b *fakeBus, addr uint16)
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		holding:     map[uint16]uint16{},
		input:       map[uint16]uint16{},
		failReads:   map[uint16]error{},
		failWrites:  map[uint16]error{},
		rejectUnits: map[uint8]error{},
		verifyFails: map[uint16]uint16{},
	}
}

func (b *fakeBus) Open() error {
	if b.openErr != nil {
		return b.openErr
	}
	b.opened = true
	return nil
}

func (b *fakeBus) Close() error {
	b.opened = false
	return nil
}

func (b *fakeBus) SetUnitId(id uint8) error {
	b.unitID = id
	b.unitIDs = append(b.unitIDs, id)
	return nil
}

func (b *fakeBus) ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	if err := b.rejectUnits[b.unitID]; err != nil {
		return nil, err
	}
	if err := b.failReads[addr]; err != nil {
		return nil, err
	}
	bank := b.holding
	if regType == modbus.INPUT_REGISTER {
		bank = b.input
	}
	words := make([]uint16, quantity)
	for i := range words {
		a := addr + uint16(i)
		if stale, ok := b.verifyFails[a]; ok && regType == modbus.HOLDING_REGISTER {
			words[i] = stale
			continue
		}
		words[i] = bank[a]
	}
	return words, nil
}

func (b *fakeBus) WriteRegisters(addr uint16, values []uint16) error {
	if err := b.rejectUnits[b.unitID]; err != nil {
		return err
	}
	if err := b.failWrites[addr]; err != nil {
		return err
	}
	for i, v := range values {
		b.holding[addr+uint16(i)] = v
	}
	b.writes = append(b.writes, fakeWrite{addr: addr, values: append([]uint16(nil), values...)})
	if b.onWrite != nil {
		b.onWrite(b, addr)
	}
	return nil
}

func (b *fakeBus) writesTo(addr uint16) int {
	n := 0
	for _, w := range b.writes {
		if w.addr == addr {
			n++
		}
	}
	return n
}

// newTestGrowattClient wires a GrowattClient onto a fake bus with retry
// delays removed.
func newTestGrowattClient(bus *fakeBus, unitID uint8) *GrowattClient {
	logger := zap.NewNop()
	return &GrowattClient{
		session:        newSession(bus, unitID, logger),
		logger:         logger,
		phaseFactor:    1.0,
		batteryMaxWatt: 9000,
		verifyRetries:  2,
		verifyDelay:    0,
	}
}

// batteryOnline seeds input registers so pre/postchecks pass.
func (b *fakeBus) batteryOnline() {
	b.input[RegInputBatteryStatus] = 512 // 51.2 V
	b.input[RegInputBatteryStatus+2] = 45
	hi, lo := EncodeU32BE(2000) // 200 W discharge
	b.input[RegInputBatteryPower] = hi
	b.input[RegInputBatteryPower+1] = lo
}

func (b *fakeBus) batteryOffline() {
	b.input[RegInputBatteryStatus] = 0
	b.input[RegInputBatteryStatus+2] = 0
	b.input[RegInputBatteryPower] = 0
	b.input[RegInputBatteryPower+1] = 0
	b.input[RegInputBatteryPower+2] = 0
	b.input[RegInputBatteryPower+3] = 0
}
