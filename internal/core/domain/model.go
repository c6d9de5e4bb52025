package domain

import (
	"time"

	"github.com/spock-ems/growatt2spock/pkg/growatt_modbus"
)

const (
	ACTOR_ID_BRIDGE = "bridge"
	ACTOR_ID_MQTT   = "mqtt"
)

// RemoteDirective is the optional reply parsed from the EMS push endpoint.
type RemoteDirective struct {
	Status        string
	OperationMode string
	// target magnitude in watts; nil when absent or null in the reply
	ActionWatts *float64
}

// Directive operation modes the EMS is known to send.
const (
	DirectiveModeCharge    = "charge"
	DirectiveModeDischarge = "discharge"
	DirectiveModeAuto      = "auto"
	DirectiveModeNone      = "none"

	DirectiveStatusOK = "ok"
)

// CycleTick asks the bridge to run one poll-publish-apply cycle. Sent by the
// scheduler; dropped when a cycle is already running.
type CycleTick struct{}

// CycleResult is the outcome of one cycle, piped back to the bridge actor.
type CycleResult struct {
	Snapshot *growatt_modbus.Telemetry
	Action   *growatt_modbus.ControlAction
	Applied  bool
	// ApplyErr is a contained control failure: the cycle's telemetry still
	// counts, rollback has already been attempted.
	ApplyErr error
	// Err is a telemetry failure: the whole cycle failed, no snapshot exists.
	Err      error
	Duration time.Duration
}

type GetSnapshotRequest struct {
	ActorRequestMixIn
}

type GetSnapshotResponse struct {
	ActorResponseMixIn
	Snapshot  *growatt_modbus.Telemetry
	CycleTime time.Time
}

type PublishSnapshotRequest struct {
	ActorRequestMixIn
	Snapshot growatt_modbus.Telemetry
}

type PublishSnapshotResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
