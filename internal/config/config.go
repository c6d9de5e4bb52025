package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel          zapcore.Level
	InverterModbusTcp InverterModbusTCPConfig `mapstructure:"inverter_modbus_tcp"`
	Spock             SpockConfig             `mapstructure:"spock"`
	MQTT              MQTTConfig              `mapstructure:"mqtt"`

	GridConfig    GridConfig    `mapstructure:"grid"`
	BatteryConfig BatteryConfig `mapstructure:"battery"`
	PollConfig    PollConfig    `mapstructure:"poll"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type InverterModbusTCPConfig struct {
	Host          string
	Port          uint
	UnitId        uint `mapstructure:"unit_id"`
	TimeoutMillis uint `mapstructure:"timeout_millis"`
}

type SpockConfig struct {
	Endpoint string
	APIToken string `mapstructure:"api_token"`
	SpockId  string `mapstructure:"spock_id"`
	PlantId  string `mapstructure:"plant_id"`
}

type GridConfig struct {
	PhaseFactor float64 `mapstructure:"phase_factor"`
}

type BatteryConfig struct {
	MaxPowerWatt      uint32 `mapstructure:"max_power_watt"`
	DefaultActionWatt uint32 `mapstructure:"default_action_watt"`
}

type PollConfig struct {
	ScanIntervalSeconds uint32 `mapstructure:"scan_interval_seconds"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	Enable            bool   `mapstructure:"enable"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
