package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/spock-ems/growatt2spock/internal/adapter/actor"
	"github.com/spock-ems/growatt2spock/internal/config"
	"github.com/spock-ems/growatt2spock/internal/core/actor"
	"github.com/spock-ems/growatt2spock/internal/core/domain"
	"github.com/spock-ems/growatt2spock/internal/core/service"
	"github.com/spock-ems/growatt2spock/internal/server"
	"github.com/spock-ems/growatt2spock/internal/spock"
	"github.com/spock-ems/growatt2spock/internal/util/actorutil"
	"github.com/spock-ems/growatt2spock/pkg/growatt_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, scheduler quartz.Scheduler, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	scheduler.Stop()

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	inverter, err := growatt_modbus.CreateInverterClient(cfg.InverterModbusTcp.Host,
		cfg.InverterModbusTcp.Port, uint8(cfg.InverterModbusTcp.UnitId),
		time.Duration(cfg.InverterModbusTcp.TimeoutMillis)*time.Millisecond,
		cfg.GridConfig.PhaseFactor, int(cfg.BatteryConfig.MaxPowerWatt), logger)
	if err != nil {
		panic(fmt.Sprintf("inverter client error: %s", err))
	}

	publisher := spock.NewClient(cfg.Spock.Endpoint, cfg.Spock.APIToken,
		cfg.Spock.SpockId, cfg.Spock.PlantId, logger)

	cycleService := service.NewCycleService(inverter, publisher,
		int(cfg.BatteryConfig.DefaultActionWatt), logger)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewBridgeActor(*cfg, inverter, cycleService, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_BRIDGE)
	if err != nil {
		return
	}

	scheduler, err := startCycleScheduler(cfg, ctx, pid)
	if err != nil {
		panic(fmt.Sprintf("scheduler error: %s", err))
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, scheduler, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func startCycleScheduler(cfg *config.Config, ctx *pactor.RootContext, bridge *pactor.PID) (quartz.Scheduler, error) {
	scheduler := quartz.NewStdScheduler()
	scheduler.Start(context.Background())

	tickJob := job.NewFunctionJob(func(_ context.Context) (int, error) {
		ctx.Send(bridge, domain.CycleTick{})
		return 0, nil
	})
	interval := time.Duration(cfg.PollConfig.ScanIntervalSeconds) * time.Second
	err := scheduler.ScheduleJob(quartz.NewJobDetail(tickJob, quartz.NewJobKey("cycle_tick")),
		quartz.NewSimpleTrigger(interval))
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}

func initConfig() (*config.Config, error) {

	// alias PORT => GROWATT2SPOCK_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("GROWATT2SPOCK_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("growatt2spock")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if cfg.InverterModbusTcp.Host == "" {
		return nil, errors.New("config param inverter_modbus_tcp.host is required")
	}
	if cfg.Spock.Endpoint == "" {
		return nil, errors.New("config param spock.endpoint is required")
	}

	if cfg.MQTT.Enable {
		// check and fix base topic
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic

		// check and fix homeassistant discovery topic
		hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
		if err != nil {
			return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.HADiscoveryTopic = hadBaseTopic
	}

	// check bounds
	if cfg.PollConfig.ScanIntervalSeconds < 5 {
		return nil, errors.New("config param poll.scan_interval_seconds should be >= 5")
	}
	if cfg.BatteryConfig.MaxPowerWatt == 0 {
		return nil, errors.New("config param battery.max_power_watt should be > 0")
	}
	if cfg.GridConfig.PhaseFactor <= 0 {
		return nil, errors.New("config param grid.phase_factor should be > 0")
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("inverter_modbus_tcp.port", 502)
	viper.SetDefault("inverter_modbus_tcp.unit_id", 1)
	viper.SetDefault("inverter_modbus_tcp.timeout_millis", 2000)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "growatt2spock")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("grid.phase_factor", 1.0)
	viper.SetDefault("battery.max_power_watt", 9000)
	viper.SetDefault("battery.default_action_watt", 5000)
	viper.SetDefault("poll.scan_interval_seconds", 30)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Spock.APIToken = "*redacted*"
	slog.Info("Using", "config", cfg)
}
