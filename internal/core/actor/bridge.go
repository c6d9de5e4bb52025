package actor

import (
	"fmt"
	"time"

	adactor "github.com/spock-ems/growatt2spock/internal/adapter/actor"
	"github.com/spock-ems/growatt2spock/internal/config"
	"github.com/spock-ems/growatt2spock/internal/core/domain"
	"github.com/spock-ems/growatt2spock/internal/core/service"
	. "github.com/spock-ems/growatt2spock/internal/util/actorutil"
	"github.com/spock-ems/growatt2spock/pkg/growatt_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type MQTTActorProvider func() *adactor.MQTTActor

// BridgeActor owns the cycle: it reacts to scheduler ticks, runs one
// poll-publish-apply cycle in a background task and fans the snapshot out to
// MQTT. Ticks arriving while a cycle is in flight are dropped, never queued.
type BridgeActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	inverter          growatt_modbus.InverterClient
	cycleService      *service.CycleService
	mqttActorProvider MQTTActorProvider
	mqttActor         *actor.PID

	lastSnapshot  *growatt_modbus.Telemetry
	lastCycleTime time.Time
	lastCycleErr  error

	currentHealthCheck healthCheckResult
	logger             *zap.Logger
}

type healthCheckResult struct {
	mqttActorHealthy bool
	checksReceived   int
	respondTo        *actor.PID
}

func NewBridgeActor(config config.Config, inverter growatt_modbus.InverterClient,
	cycleService *service.CycleService, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *BridgeActor {
	act := &BridgeActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		inverter:          inverter,
		cycleService:      cycleService,
		mqttActorProvider: mqttActorProvider,
		logger:            ActorLogger(domain.ACTOR_ID_BRIDGE, logger),
	}
	act.behavior.Become(act.IdleReceive)
	return act
}

func (state *BridgeActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *BridgeActor) IdleReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("bridge@idle started")

		if err := state.inverter.Open(); err != nil {
			// the session reopens lazily on the first cycle
			state.logger.Warn("bridge@idle inverter not reachable yet", zap.Error(err))
		}

		if state.config.MQTT.Enable {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID
		}
	case *actor.Stopping:
		state.logger.Debug("bridge@idle stopping")
		_ = state.inverter.Close()
	case domain.CycleTick:
		state.logger.Debug("bridge@idle tick")
		state.startCycle(ctx)
		state.behavior.Become(state.RunningReceive)
	case domain.GetSnapshotRequest:
		state.respondSnapshot(ctx, msg)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, "idle")
	case domain.PublishSnapshotResponse:
		if msg.HasResponseError() {
			state.logger.Warn("bridge@idle publish failed", zap.Error(msg.GetResponseError()))
		}
	default:
		state.logger.Debug("bridge@idle ignore", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *BridgeActor) RunningReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Stopping:
		state.logger.Debug("bridge@running stopping")
		_ = state.inverter.Close()
	case domain.CycleTick:
		// a cycle is still in flight, never run two against the same device
		state.logger.Warn("bridge@running cycle still running, skipping tick")
	case domain.CycleResult:
		state.finishCycle(ctx, msg)
		state.behavior.Become(state.IdleReceive)
		state.stash.UnstashAll(ctx)
	case domain.GetSnapshotRequest:
		state.respondSnapshot(ctx, msg)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, "running")
	default:
		state.logger.Debug("bridge@running stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *BridgeActor) startCycle(ctx actor.Context) {
	svc := state.cycleService
	NewBackgroundTaskNoError(ctx, func() *domain.CycleResult {
		result := svc.Run()
		return &result
	}).PipeTo(ctx.Self())
}

func (state *BridgeActor) finishCycle(ctx actor.Context, result domain.CycleResult) {
	state.lastCycleTime = time.Now()
	state.lastCycleErr = result.Err
	if result.Err != nil {
		state.logger.Error("bridge@running cycle failed",
			zap.Duration("duration", result.Duration), zap.Error(result.Err))
		return
	}
	state.lastSnapshot = result.Snapshot
	state.logger.Debug("bridge@running cycle done",
		zap.Duration("duration", result.Duration),
		zap.Bool("applied", result.Applied))

	if state.mqttActor != nil {
		ctx.Request(state.mqttActor, domain.PublishSnapshotRequest{
			Snapshot: *result.Snapshot,
		})
	}
}

func (state *BridgeActor) respondSnapshot(ctx actor.Context, msg domain.GetSnapshotRequest) {
	ForRequest(msg).Respond(ctx, domain.GetSnapshotResponse{
		Snapshot:  state.lastSnapshot,
		CycleTime: state.lastCycleTime,
	})
}

func (state *BridgeActor) respondHealth(ctx actor.Context, stateName string) {
	if state.mqttActor == nil {
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_BRIDGE,
			Healthy: state.lastCycleErr == nil,
			State:   stateName,
		})
		return
	}

	state.currentHealthCheck = healthCheckResult{respondTo: ctx.Sender()}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
		}
	})
	ctx.SetReceiveTimeout(1 * time.Second)
	state.behavior.BecomeStacked(state.HealthCheckReceive(stateName))
}

func (state *BridgeActor) HealthCheckReceive(stateName string) func(actor.Context) {
	return func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.ReceiveTimeout:
			// child did not answer in time, assume not healthy
			state.respondHealthResult(ctx, stateName)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		case domain.ActorHealthResponse:
			state.currentHealthCheck.checksReceived++
			if msg.Id == domain.ACTOR_ID_MQTT && msg.Healthy {
				state.currentHealthCheck.mqttActorHealthy = true
			}
			state.respondHealthResult(ctx, stateName)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		default:
			state.logger.Debug("bridge@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
			state.stash.Stash(ctx, msg)
		}
	}
}

func (state *BridgeActor) respondHealthResult(ctx actor.Context, stateName string) {
	ctx.CancelReceiveTimeout()
	healthy := state.lastCycleErr == nil && state.currentHealthCheck.mqttActorHealthy
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_BRIDGE,
		Healthy: healthy,
		State:   stateName,
	}
	if state.currentHealthCheck.respondTo != nil {
		ctx.Send(state.currentHealthCheck.respondTo, resp)
	}
}

func (state *BridgeActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider()
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}
