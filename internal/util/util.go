package util

import (
	"github.com/spock-ems/growatt2spock/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		InverterModbusTcp: config.InverterModbusTCPConfig{
			Host:          "-.-.-.-",
			Port:          502,
			UnitId:        1,
			TimeoutMillis: 2000,
		},
		Spock: config.SpockConfig{
			Endpoint: "http://localhost:9999/push",
			APIToken: "test-token",
			SpockId:  "test-spock",
			PlantId:  "test-plant",
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "growatt2spock",
		},
		GridConfig: config.GridConfig{
			PhaseFactor: 1.0,
		},
		BatteryConfig: config.BatteryConfig{
			MaxPowerWatt:      9000,
			DefaultActionWatt: 5000,
		},
		PollConfig: config.PollConfig{
			ScanIntervalSeconds: 30,
		},
		Port: 8080,
	}
}
