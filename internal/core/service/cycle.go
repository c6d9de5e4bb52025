package service

import (
	"time"

	"github.com/spock-ems/growatt2spock/internal/core/domain"
	"github.com/spock-ems/growatt2spock/pkg/growatt_modbus"

	"go.uber.org/zap"
)

// DirectivePublisher pushes one snapshot upstream and returns the directive
// for this cycle, or nil when there is none.
type DirectivePublisher interface {
	Push(snapshot *growatt_modbus.Telemetry) *domain.RemoteDirective
}

// CycleService runs one full poll-publish-act cycle against the inverter.
type CycleService struct {
	inverter     growatt_modbus.InverterClient
	publisher    DirectivePublisher
	defaultWatts int
	logger       *zap.Logger
}

func NewCycleService(inverter growatt_modbus.InverterClient, publisher DirectivePublisher,
	defaultWatts int, logger *zap.Logger) *CycleService {
	return &CycleService{
		inverter:     inverter,
		publisher:    publisher,
		defaultWatts: defaultWatts,
		logger:       logger,
	}
}

// Run executes one cycle. A telemetry read failure aborts the cycle; publish
// and apply failures are contained in the result so the next cycle still
// runs on schedule.
func (s *CycleService) Run() domain.CycleResult {
	start := time.Now()

	snapshot, err := s.inverter.ReadTelemetry()
	if err != nil {
		s.logger.Error("telemetry read failed", zap.Error(err))
		return domain.CycleResult{Err: err, Duration: time.Since(start)}
	}
	s.logger.Debug("telemetry",
		zap.Int("battery_soc", snapshot.BatterySOC),
		zap.Float64("battery_power", snapshot.BatteryPowerWatt),
		zap.Float64("pv_power", snapshot.PVPowerWatt),
		zap.Float64("grid_power", snapshot.GridPowerWatt),
		zap.Float64("house_load", snapshot.HouseLoadWatt))

	directive := s.publisher.Push(snapshot)

	result := domain.CycleResult{Snapshot: snapshot, Duration: time.Since(start)}

	action := TranslateDirective(directive, s.defaultWatts)
	if action == nil {
		result.Duration = time.Since(start)
		return result
	}
	result.Action = action

	applied, err := s.inverter.Apply(*action)
	if err != nil {
		s.logger.Error("action apply failed",
			zap.String("mode", action.Mode.String()),
			zap.Int("target_watts", action.TargetWatts),
			zap.Error(err))
		result.ApplyErr = err
	} else if applied {
		s.logger.Info("action applied",
			zap.String("mode", action.Mode.String()),
			zap.Int("target_watts", action.TargetWatts))
	}
	result.Applied = applied
	result.Duration = time.Since(start)
	return result
}
