package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the conveyor core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	Slots     SlotsConfig     `yaml:"slots"`
	OPCUA     OPCUAConfig     `yaml:"opcua"`
	Modbus    ModbusConfig    `yaml:"modbus"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Spot      SpotConfig      `yaml:"spot"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies the store running this conveyor.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains ledger database settings.
type DatabaseConfig struct {
	// Driver is "sqlite3" (default) or "pgx".
	Driver string `yaml:"driver"`

	// Path is the SQLite file path. Ignored for pgx.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string. Ignored for sqlite3.
	DSN string `yaml:"dsn"`

	WALMode     bool `yaml:"wal_mode"`
	BusyTimeout int  `yaml:"busy_timeout"`
	MaxOpenConn int  `yaml:"max_open_conns"`
}

// SlotsConfig describes the physical slot array.
type SlotsConfig struct {
	// Count is the number of physical slots on the conveyor, numbered 1..Count.
	Count int `yaml:"count"`

	// ReserveAttempts bounds how many lost reservation races are tolerated
	// before reporting that no slot is available.
	ReserveAttempts int `yaml:"reserve_attempts"`
}

// OPCUAConfig contains the supervisory controller session settings.
type OPCUAConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the server URL, e.g. "opc.tcp://192.168.1.200:4840".
	Endpoint string `yaml:"endpoint"`

	// ReconnectInterval is the supervising loop period in seconds.
	ReconnectInterval int `yaml:"reconnect_interval"`

	// RequestTimeout bounds a single read or write in milliseconds.
	RequestTimeout int `yaml:"request_timeout"`

	// SubscriptionInterval is the publishing interval for monitored items in milliseconds.
	SubscriptionInterval int `yaml:"subscription_interval"`

	Nodes OPCUANodesConfig `yaml:"nodes"`
}

// OPCUANodesConfig maps conveyor signals to numeric node identifiers.
type OPCUANodesConfig struct {
	Namespace    uint16 `yaml:"namespace"`
	Jog          uint32 `yaml:"jog"`
	RunRequest   uint32 `yaml:"run_request"`
	TargetSlot   uint32 `yaml:"target_slot"`
	HangerSensor uint32 `yaml:"hanger_sensor"`
}

// ModbusConfig contains the field-bus controller settings.
type ModbusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	SlaveID byte   `yaml:"slave_id"`

	// Timeout is the per-request timeout in milliseconds.
	Timeout int `yaml:"timeout"`

	// SlotRegister is the holding register reporting the slot at the load station.
	SlotRegister uint16 `yaml:"slot_register"`

	// CommandCoil is the coil that latches a conveyor command.
	CommandCoil uint16 `yaml:"command_coil"`
}

// SensorConfig contains hanger sensor timing.
type SensorConfig struct {
	// PollInterval is the sensor loop period in milliseconds.
	PollInterval int `yaml:"poll_interval"`

	// HangerTimeout is the overall hanger wait in seconds.
	HangerTimeout int `yaml:"hanger_timeout"`

	// HangerCadence is how often the hanger wait re-checks the flag, in milliseconds.
	HangerCadence int `yaml:"hanger_cadence"`
}

// SpotConfig contains POS file exchange settings.
type SpotConfig struct {
	Enabled bool `yaml:"enabled"`

	// InputDir is polled for Filename.
	InputDir string `yaml:"input_dir"`
	Filename string `yaml:"filename"`

	// PollInterval is in seconds.
	PollInterval int `yaml:"poll_interval"`

	// BatchPolicy is "skip_line" or "abort_batch".
	BatchPolicy string `yaml:"batch_policy"`

	// OutputDir receives the conveyor.csv feed back to the POS.
	OutputDir string `yaml:"output_dir"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
// An empty list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains operator token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// TokenTTL is the operator token lifetime in minutes. A shift is long.
	TokenTTL int `yaml:"token_ttl"`
}

// Batch policies for POS ingestion.
const (
	BatchPolicySkipLine   = "skip_line"
	BatchPolicyAbortBatch = "abort_batch"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CONVEYOR_SECTION_KEY
// For example: CONVEYOR_DATABASE_PATH, CONVEYOR_OPCUA_ENDPOINT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config matching the installed conveyor hardware.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "store-001",
			Name:     "Conveyor",
			Timezone: "Local",
		},
		Database: DatabaseConfig{
			Driver:      "sqlite3",
			Path:        "./data/conveyor.db",
			WALMode:     true,
			BusyTimeout: 5,
			MaxOpenConn: 10,
		},
		Slots: SlotsConfig{
			Count:           500,
			ReserveAttempts: 10,
		},
		OPCUA: OPCUAConfig{
			Enabled:              true,
			Endpoint:             "opc.tcp://192.168.1.200:4840",
			ReconnectInterval:    3,
			RequestTimeout:       2000,
			SubscriptionInterval: 100,
			Nodes: OPCUANodesConfig{
				Namespace:    1,
				Jog:          81,
				RunRequest:   83,
				TargetSlot:   267,
				HangerSensor: 26,
			},
		},
		Modbus: ModbusConfig{
			Host:         "192.168.1.210",
			Port:         502,
			SlaveID:      1,
			Timeout:      2000,
			SlotRegister: 116,
			CommandCoil:  5,
		},
		Sensor: SensorConfig{
			PollInterval:  10,
			HangerTimeout: 10,
			HangerCadence: 20,
		},
		Spot: SpotConfig{
			Enabled:      true,
			InputDir:     "./spot/in",
			Filename:     "spot.csv",
			PollInterval: 5,
			BatchPolicy:  BatchPolicySkipLine,
			OutputDir:    "./spot/out",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "conveyor-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 720,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CONVEYOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CONVEYOR_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CONVEYOR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CONVEYOR_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Slots
	if v := os.Getenv("CONVEYOR_SLOTS_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Slots.Count = n
		}
	}

	// Devices
	if v := os.Getenv("CONVEYOR_OPCUA_ENDPOINT"); v != "" {
		cfg.OPCUA.Endpoint = v
	}
	if v := os.Getenv("CONVEYOR_MODBUS_HOST"); v != "" {
		cfg.Modbus.Host = v
	}

	// POS exchange
	if v := os.Getenv("CONVEYOR_SPOT_INPUT_DIR"); v != "" {
		cfg.Spot.InputDir = v
	}
	if v := os.Getenv("CONVEYOR_SPOT_OUTPUT_DIR"); v != "" {
		cfg.Spot.OutputDir = v
	}
	if v := os.Getenv("CONVEYOR_SPOT_BATCH_POLICY"); v != "" {
		cfg.Spot.BatchPolicy = v
	}

	// MQTT
	if v := os.Getenv("CONVEYOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CONVEYOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CONVEYOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CONVEYOR_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("CONVEYOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("CONVEYOR_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite3")
		}
	case "pgx":
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for pgx")
		}
	default:
		errs = append(errs, "database.driver must be sqlite3 or pgx")
	}

	if c.Slots.Count < 1 {
		errs = append(errs, "slots.count must be at least 1")
	}
	if c.Slots.ReserveAttempts < 1 {
		errs = append(errs, "slots.reserve_attempts must be at least 1")
	}

	if c.OPCUA.Enabled {
		if c.OPCUA.Endpoint == "" {
			errs = append(errs, "opcua.endpoint is required when opcua is enabled")
		}
		if c.OPCUA.ReconnectInterval < 1 {
			errs = append(errs, "opcua.reconnect_interval must be at least 1 second")
		}
	}

	if c.Modbus.Enabled {
		if c.Modbus.Host == "" {
			errs = append(errs, "modbus.host is required when modbus is enabled")
		}
		if c.Modbus.Port < 1 || c.Modbus.Port > 65535 {
			errs = append(errs, "modbus.port must be between 1 and 65535")
		}
	}

	if c.Sensor.PollInterval < 1 {
		errs = append(errs, "sensor.poll_interval must be at least 1 ms")
	}
	if c.Sensor.HangerTimeout < 1 {
		errs = append(errs, "sensor.hanger_timeout must be at least 1 second")
	}

	if c.Spot.Enabled {
		if c.Spot.InputDir == "" || c.Spot.Filename == "" {
			errs = append(errs, "spot.input_dir and spot.filename are required when spot is enabled")
		}
		if c.Spot.PollInterval < 1 {
			errs = append(errs, "spot.poll_interval must be at least 1 second")
		}
	}
	if c.Spot.BatchPolicy != BatchPolicySkipLine && c.Spot.BatchPolicy != BatchPolicyAbortBatch {
		errs = append(errs, "spot.batch_policy must be skip_line or abort_batch")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Operator tokens authorise physical conveyor movement.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set CONVEYOR_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// ReconnectInterval returns the OPC UA supervising loop period.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.OPCUA.ReconnectInterval) * time.Second
}

// SensorPollInterval returns the hanger sensor loop period.
func (c *Config) SensorPollInterval() time.Duration {
	return time.Duration(c.Sensor.PollInterval) * time.Millisecond
}

// HangerTimeout returns the overall hanger wait.
func (c *Config) HangerTimeout() time.Duration {
	return time.Duration(c.Sensor.HangerTimeout) * time.Second
}

// HangerCadence returns the hanger wait re-check period.
func (c *Config) HangerCadence() time.Duration {
	return time.Duration(c.Sensor.HangerCadence) * time.Millisecond
}

// SpotPollInterval returns the POS directory poll period.
func (c *Config) SpotPollInterval() time.Duration {
	return time.Duration(c.Spot.PollInterval) * time.Second
}

// TokenTTL returns the operator token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.TokenTTL) * time.Minute
}
