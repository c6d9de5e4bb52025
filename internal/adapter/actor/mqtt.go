package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spock-ems/growatt2spock/internal/config"
	"github.com/spock-ems/growatt2spock/internal/core/domain"
	"github.com/spock-ems/growatt2spock/internal/events"
	"github.com/spock-ems/growatt2spock/internal/mqtt"
	"github.com/spock-ems/growatt2spock/internal/util/actorutil"
	"github.com/spock-ems/growatt2spock/pkg/growatt_modbus"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   *mqtt.MQTTClient
	logger   *zap.Logger

	inverterDevice events.Device
	bridgeDevice   events.Device
}

type MQTTConnected struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	Error error
}

type publishBatchDone struct {
	ReplyTo *actor.PID
}

func NewMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:         config,
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
		inverterDevice: events.InverterDevice(config.InverterModbusTcp.Host, config.InverterModbusTcp.UnitId),
		bridgeDevice:   events.BridgeDevice(config.MQTT.BaseTopic),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		if state.config.MQTT.HADiscoveryEnable {
			if err := state.publishHomeAssistantDiscovery(); err != nil {
				state.logger.Error("mqtt@starting discovery error", zap.Error(err))
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case domain.PublishSnapshotRequest:
		state.logger.Debug("mqtt@default PublishSnapshotRequest")
		state.publishSnapshot(ctx, msg.Snapshot, actorutil.ForRequest(msg).ReplyTo(ctx))
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default ignore", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// publishSnapshot fans the snapshot out to one state topic per sensor. The
// actor stays in a publishing state until every in-flight publish has
// reported back, stashing anything else that arrives meanwhile.
func (state *MQTTActor) publishSnapshot(ctx actor.Context, snapshot growatt_modbus.Telemetry, replyTo *actor.PID) {
	values := []struct {
		id       string
		value    float64
		decimals uint
	}{
		{events.SENSOR_ID_BATTERY_SOC, float64(snapshot.BatterySOC), 0},
		{events.SENSOR_ID_BATTERY_POWER, snapshot.BatteryPowerWatt, 0},
		{events.SENSOR_ID_PV_POWER, snapshot.PVPowerWatt, 0},
		{events.SENSOR_ID_GRID_POWER, snapshot.GridPowerWatt, 0},
		{events.SENSOR_ID_HOUSE_LOAD, snapshot.HouseLoadWatt, 0},
		{events.SENSOR_ID_NOMINAL_POWER, snapshot.NominalPowerKW, 1},
	}

	pending := len(values)
	for _, v := range values {
		topic := state.client.SensorStateTopic(v.id)
		payload := fmt.Sprintf(fmt.Sprintf("%%.%df", v.decimals), v.value)
		state.client.Publish(topic, payload, 1, false, func(err error) {
			ctx.Send(ctx.Self(), publishResult{Error: err})
		}, 5*time.Second)
	}

	self := ctx.Self()
	state.behavior.BecomeStacked(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case publishResult:
			if msg.Error != nil {
				state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
			}
			pending--
			if pending == 0 {
				ctx.Send(self, publishBatchDone{ReplyTo: replyTo})
			}
		case publishBatchDone:
			if msg.ReplyTo != nil {
				ctx.Send(msg.ReplyTo, domain.PublishSnapshotResponse{})
			}
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		default:
			state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
			state.stash.Stash(ctx, msg)
		}
	})
}

func (state *MQTTActor) publishHomeAssistantDiscovery() error {
	sensors := events.InverterSensors(state.inverterDevice)
	sensors = append(sensors, events.BridgeSensors(state.bridgeDevice)...)
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoverySensorTopic(state.config.MQTT.HADiscoveryTopic, sensors[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case domain.PublishSnapshotRequest:
		if ctx.Sender() != nil {
			ctx.Respond(domain.PublishSnapshotResponse{})
		}
	default:
		_ = msg
	}
}
