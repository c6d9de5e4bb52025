package mqtt

import (
	"testing"

	"github.com/spock-ems/growatt2spock/internal/config"
	"github.com/spock-ems/growatt2spock/internal/events"

	"github.com/stretchr/testify/assert"
)

func testMQTTClient() *MQTTClient {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "growatt2spock",
		},
	}
	return CreateMQTTClient(cfg, OptsFromConfig(cfg), nil, nil)
}

func TestHADiscoverySensorTopic(t *testing.T) {

	assert := assert.New(t)

	device := events.InverterDevice("192.168.1.40", 1)
	sensors := events.InverterSensors(device)

	topic := HADiscoverySensorTopic("homeassistant", sensors[0])
	assert.Equal("homeassistant/sensor/"+device.Id+"/battery_soc/config", topic)
}

func TestGenericSensorToHADiscoveryMessage(t *testing.T) {

	assert := assert.New(t)

	client := testMQTTClient()
	device := events.InverterDevice("192.168.1.40", 1)
	sensors := events.InverterSensors(device)

	msg := GenericSensorToHADiscoveryMessage(client, sensors[0])
	assert.Equal("growatt2spock/sensor/battery_soc/state", msg.StateTopic)
	assert.Equal("growatt2spock/bridge/state", msg.AvTopic)
	assert.Equal(events.DEVICE_CLASS_BATTERY, msg.DeviceClass)
	assert.Equal([]string{device.Id}, msg.Device.Id)
}

func TestBridgeStateDiscoveryUsesAvailabilityPayloads(t *testing.T) {

	assert := assert.New(t)

	client := testMQTTClient()
	bridge := events.BridgeDevice("growatt2spock")
	sensors := events.BridgeSensors(bridge)

	msg := GenericSensorToHADiscoveryMessage(client, sensors[0])
	assert.Equal("growatt2spock/bridge/state", msg.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Equal(MQTT_PAYLOAD_OFFLINE, msg.PayloadOff)
}
