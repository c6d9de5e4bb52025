package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE    = "bridge"
	SENSOR_ID_BATTERY_SOC     = "battery_soc"
	SENSOR_ID_BATTERY_POWER   = "battery_power"
	SENSOR_ID_PV_POWER        = "pv_power"
	SENSOR_ID_GRID_POWER      = "grid_power"
	SENSOR_ID_HOUSE_LOAD      = "house_load"
	SENSOR_ID_NOMINAL_POWER   = "nominal_power"
	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_BATTERY      = "battery"
	DEVICE_CLASS_POWER        = "power"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("growatt2spock_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "SpockEMS",
		Model:        "Growatt2Spock",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Growatt2Spock %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(host string, unitId uint) Device {
	key := fmt.Sprintf("%s#%d", host, unitId)
	return Device{
		Id:           fmt.Sprintf("growatt_inverter_%s", md5HashShort(key)),
		Manufacturer: "Growatt",
		Model:        "Storage inverter",
		Name:         fmt.Sprintf("Growatt %s", md5HashShort(key)),
	}
}

func InverterSensors(inverterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Battery SoC
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_BATTERY_SOC,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery SoC",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_BATTERY_SOC),
	})

	// Battery power flow (positive = charging)
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_BATTERY_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_BATTERY_POWER),
	})

	// PV power
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_PV_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "PV power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:solar-power",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_PV_POWER),
	})

	// Grid power (positive = import)
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_GRID_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:transmission-tower",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_GRID_POWER),
	})

	// House load
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_HOUSE_LOAD,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "House load",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:home-lightning-bolt",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_HOUSE_LOAD),
	})

	// Nominal power
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_NOMINAL_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Nominal power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "kW",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_NOMINAL_POWER),
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
