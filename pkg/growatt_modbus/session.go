package growatt_modbus

import (
	"errors"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// regBus is the subset of the underlying modbus client the session needs.
// Kept as an interface so device logic can be tested against an in-memory
// register map.
type regBus interface {
	Open() error
	Close() error
	SetUnitId(id uint8) error
	ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error)
	WriteRegisters(addr uint16, values []uint16) error
}

// addressConvention is one historical way of selecting the target device on
// the wire. Growatt dataloggers have shipped expecting the configured unit
// id, the fixed id 1, or id 0, depending on firmware generation; the session
// tries them in that order and pins the first one that answers.
type addressConvention struct {
	name   string
	unitID uint8
}

// session owns the single device connection. Every read/write goes through
// one mutex, and the mutex is held for the entire multi-register operation
// (a full poll or a full control apply), never per register.
type session struct {
	mu          sync.Mutex
	bus         regBus
	conventions []addressConvention
	pinned      int // index into conventions, -1 until a request succeeds
	open        bool
	logger      *zap.Logger
}

func newSession(bus regBus, unitID uint8, logger *zap.Logger) *session {
	conventions := []addressConvention{
		{name: "device_id", unitID: unitID},
	}
	if unitID != 1 {
		conventions = append(conventions, addressConvention{name: "slave_1", unitID: 1})
	}
	if unitID != 0 {
		conventions = append(conventions, addressConvention{name: "unit_0", unitID: 0})
	}
	return &session{
		bus:         bus,
		conventions: conventions,
		pinned:      -1,
		logger:      logger,
	}
}

// ensureOpen establishes the TCP session if it is not already up.
// Must be called with the session lock held.
func (s *session) ensureOpen() error {
	if s.open {
		return nil
	}
	if err := s.bus.Open(); err != nil {
		return &ConnectionError{Op: "connect", Err: err}
	}
	s.open = true
	return nil
}

// close tears the session down. Idempotent.
func (s *session) close() error {
	if !s.open {
		return nil
	}
	s.open = false
	return s.bus.Close()
}

// dropSession marks the connection dead so the next cycle reconnects.
func (s *session) dropSession() {
	if s.open {
		s.open = false
		_ = s.bus.Close()
	}
}

// read performs a register read, negotiating the addressing convention.
func (s *session) read(kind modbus.RegType, addr uint16, count uint16) ([]uint16, error) {
	var lastErr error
	for _, i := range s.conventionOrder() {
		conv := s.conventions[i]
		if err := s.bus.SetUnitId(conv.unitID); err != nil {
			lastErr = err
			continue
		}
		words, err := s.bus.ReadRegisters(addr, count, kind)
		if err == nil {
			if len(words) < int(count) {
				return nil, &ProtocolError{Op: "read", Addr: addr, Err: errors.New("short register response")}
			}
			s.pin(i)
			return words, nil
		}
		lastErr = err
		if !isDeviceError(err) {
			s.dropSession()
			return nil, &ConnectionError{Op: "read", Err: err}
		}
	}
	return nil, &ProtocolError{Op: "read", Addr: addr, Err: lastErr}
}

// write performs a "write multiple registers" operation, negotiating the
// addressing convention. Single-register writes are deliberately never used.
func (s *session) write(addr uint16, values []uint16) error {
	var lastErr error
	for _, i := range s.conventionOrder() {
		conv := s.conventions[i]
		if err := s.bus.SetUnitId(conv.unitID); err != nil {
			lastErr = err
			continue
		}
		if err := s.bus.WriteRegisters(addr, values); err != nil {
			lastErr = err
			if !isDeviceError(err) {
				s.dropSession()
				return &ConnectionError{Op: "write", Err: err}
			}
			continue
		}
		s.pin(i)
		return nil
	}
	return &ProtocolError{Op: "write", Addr: addr, Err: lastErr}
}

// conventionOrder yields convention indices, pinned one first.
func (s *session) conventionOrder() []int {
	order := make([]int, 0, len(s.conventions))
	if s.pinned >= 0 {
		order = append(order, s.pinned)
	}
	for i := range s.conventions {
		if i != s.pinned {
			order = append(order, i)
		}
	}
	return order
}

func (s *session) pin(i int) {
	if s.pinned != i {
		s.logger.Debug("growatt: pinned addressing convention",
			zap.String("convention", s.conventions[i].name),
			zap.Uint8("unit_id", s.conventions[i].unitID))
		s.pinned = i
	}
}

// isDeviceError reports whether the error is a device-level reply (exception
// frame or silence) rather than a broken transport. Device-level errors are
// worth retrying under another addressing convention.
func isDeviceError(err error) bool {
	for _, sentinel := range []error{
		modbus.ErrIllegalFunction,
		modbus.ErrIllegalDataAddress,
		modbus.ErrIllegalDataValue,
		modbus.ErrServerDeviceFailure,
		modbus.ErrGWTargetFailedToRespond,
		modbus.ErrGWPathUnavailable,
		modbus.ErrRequestTimedOut,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// newTCPBus builds the real modbus TCP client used outside tests.
func newTCPBus(url string, timeout time.Duration) (regBus, error) {
	return modbus.NewClient(&modbus.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
}
