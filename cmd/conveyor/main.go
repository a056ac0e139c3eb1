// Conveyor Core - garment conveyor control
//
// This is the main entry point for the conveyor control service. It owns
// the slot ledger, talks to the conveyor PLC, ingests the POS export and
// serves the counter stations over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/conveyor-core/migrations"

	"github.com/nerrad567/conveyor-core/internal/api"
	"github.com/nerrad567/conveyor-core/internal/audit"
	"github.com/nerrad567/conveyor-core/internal/auth"
	"github.com/nerrad567/conveyor-core/internal/bridges/modbus"
	"github.com/nerrad567/conveyor-core/internal/bridges/opcua"
	"github.com/nerrad567/conveyor-core/internal/conveyor"
	"github.com/nerrad567/conveyor-core/internal/events"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/config"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/database"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/logging"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/conveyor-core/internal/scan"
	"github.com/nerrad567/conveyor-core/internal/slots"
	"github.com/nerrad567/conveyor-core/internal/spot"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// seedUsername is the operator created on a fresh ledger.
	seedUsername = "supervisor"

	occupancyInterval = 15 * time.Second
	linkPollInterval  = time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Startup wiring reads top to bottom
	log := logging.Default()
	log.Info("starting Conveyor Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// A .env next to the binary is optional; real environment wins.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("reading .env file", "error", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		return fmt.Errorf("loading site timezone %q: %w", cfg.Site.Timezone, err)
	}

	// Ledger
	db, err := database.Open(database.Config{
		Driver:       cfg.Database.Driver,
		Path:         cfg.Database.Path,
		DSN:          cfg.Database.DSN,
		WALMode:      cfg.Database.WALMode,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConn,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "driver", db.Driver())

	engine := slots.NewEngine(db, slots.Config{MaxAttempts: cfg.Slots.ReserveAttempts}, log.Component("slots"))
	added, err := engine.Provision(ctx, cfg.Slots.Count)
	if err != nil {
		return fmt.Errorf("provisioning slots: %w", err)
	}
	log.Info("slots provisioned", "count", cfg.Slots.Count, "added", added)

	authSvc := auth.NewService(db, cfg.Security.JWT.Secret, time.Duration(cfg.Security.JWT.TokenTTL)*time.Minute, log.Component("auth"))
	if _, err := auth.SeedOperator(ctx, authSvc, seedUsername, log.Logger); err != nil {
		return fmt.Errorf("seeding operator: %w", err)
	}

	// Optional sinks
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	// Interfaces stay nil when their client is absent.
	bridgeDeps := events.Deps{Broadcaster: hub, Logger: log.Component("events")}
	if mqttClient != nil {
		bridgeDeps.Publisher = mqttClient
	}
	if influxClient != nil {
		bridgeDeps.Telemetry = influxClient
	}
	bridge := events.NewBridge(bridgeDeps)
	go bridge.Run(ctx)
	go bridge.SampleOccupancy(ctx, engine, occupancyInterval)
	engine.AddObserver(bridge)

	// Conveyor PLC
	var (
		commands *conveyor.Commands
		manager  *opcua.Manager
		sensor   *conveyor.SensorLoop
	)
	if cfg.OPCUA.Enabled {
		manager = opcua.NewManager(opcua.Config{
			Endpoint:             cfg.OPCUA.Endpoint,
			ReconnectInterval:    time.Duration(cfg.OPCUA.ReconnectInterval) * time.Second,
			SubscriptionInterval: time.Duration(cfg.OPCUA.SubscriptionInterval) * time.Millisecond,
		}, opcua.ClientDialer{
			RequestTimeout: time.Duration(cfg.OPCUA.RequestTimeout) * time.Millisecond,
		}, log.Component("opcua"))
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if closeErr := manager.Close(closeCtx); closeErr != nil {
				log.Error("error closing OPC-UA session", "error", closeErr)
			}
		}()
		go manager.RunReconnectLoop(ctx)
		go bridge.WatchLink(ctx, conveyor.DeviceOPCUA, manager, linkPollInterval)

		var fieldbus conveyor.FieldBus
		if cfg.Modbus.Enabled {
			fieldbus = conveyor.ObservedFieldBus{
				FieldBus: modbus.NewClient(modbus.Config{
					Host:    cfg.Modbus.Host,
					Port:    cfg.Modbus.Port,
					SlaveID: cfg.Modbus.SlaveID,
					Timeout: time.Duration(cfg.Modbus.Timeout) * time.Millisecond,
				}, log.Component("modbus")),
				Observe: bridge.DeviceOp,
			}
		}

		commands = conveyor.NewCommands(
			conveyor.ObservedDevice{Device: manager, Observe: bridge.DeviceOp},
			nodesFromConfig(cfg.OPCUA.Nodes),
			fieldbus,
			conveyor.FieldBusMap{SlotRegister: cfg.Modbus.SlotRegister, CommandCoil: cfg.Modbus.CommandCoil},
		)

		sensor = conveyor.NewSensorLoop(commands, conveyor.SensorConfig{
			PollInterval:  time.Duration(cfg.Sensor.PollInterval) * time.Millisecond,
			HangerTimeout: time.Duration(cfg.Sensor.HangerTimeout) * time.Second,
			HangerCadence: time.Duration(cfg.Sensor.HangerCadence) * time.Millisecond,
		}, log.Component("sensor"))
		go sensor.Run(ctx)
		go conveyor.Watch(ctx, manager, commands.Nodes().HangerSensor, log.Component("sensor"), bridge.HangerChanged)

		log.Info("conveyor PLC configured", "endpoint", cfg.OPCUA.Endpoint, "fieldbus", cfg.Modbus.Enabled)
	} else {
		log.Warn("OPC-UA disabled, conveyor will not move")
	}

	// Workflow
	scanDeps := scan.Deps{DB: db, Slots: engine, Logger: log.Component("scan")}
	if commands != nil {
		scanDeps.Router = commands
		scanDeps.Hanger = sensor
	}
	if cfg.Spot.OutputDir != "" {
		scanDeps.Output = conveyor.NewOutputWriter(cfg.Spot.OutputDir)
	}
	controller := scan.NewController(scanDeps)
	controller.OnEvent(bridge.ScanEvent)

	ingestor := spot.NewIngestor(db, spot.Policy(cfg.Spot.BatchPolicy), loc, log.Component("spot"))
	ingestor.OnReport(bridge.SpotReport)
	if cfg.Spot.Enabled {
		watcher := spot.NewWatcher(spot.WatcherConfig{
			Dir:          cfg.Spot.InputDir,
			Filename:     cfg.Spot.Filename,
			PollInterval: time.Duration(cfg.Spot.PollInterval) * time.Second,
		}, ingestor, log.Component("spot"))
		go watcher.Run(ctx)
		log.Info("POS watcher started", "path", watcher.Path(), "policy", cfg.Spot.BatchPolicy)
	}

	if mqttClient != nil {
		var jogger events.Jogger
		if commands != nil {
			jogger = commands
		}
		listener := events.NewCommandListener(controller, jogger, engine, log.Component("commands"))
		listener.SetAuditor(audit.NewRepository(db))
		if err := listener.Listen(ctx, mqttClient); err != nil {
			return fmt.Errorf("subscribing to remote commands: %w", err)
		}
	}

	// HTTP API
	apiDeps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		DB:      db,
		Slots:   engine,
		Scan:    controller,
		Spot:    ingestor,
		Auth:    authSvc,
		Hub:     hub,
		Version: version,
	}
	if commands != nil {
		apiDeps.Device = commands
		apiDeps.Link = manager
		apiDeps.Sensor = sensor
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns CONVEYOR_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("CONVEYOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func nodesFromConfig(n config.OPCUANodesConfig) opcua.Nodes {
	node := func(id uint32) opcua.NodeID {
		return opcua.NodeID{Namespace: n.Namespace, ID: id}
	}
	return opcua.Nodes{
		Jog:          node(n.Jog),
		RunRequest:   node(n.RunRequest),
		TargetSlot:   node(n.TargetSlot),
		HangerSensor: node(n.HangerSensor),
	}
}

// healthCheck verifies the connections that must be up at startup. The PLC
// is not among them; the reconnect loop keeps trying in the background.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
