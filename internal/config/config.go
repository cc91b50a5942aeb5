package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/fujitsud/internal/climate"
)

// Config represents the application configuration
type Config struct {
	Device          DeviceConfig      `yaml:"device"`
	Climate         ClimateConfig     `yaml:"climate"`
	MQTT            MQTTConfig        `yaml:"mqtt"`
	HTTP            HTTPConfig        `yaml:"http"`
	InfluxDB        InfluxDBConfig    `yaml:"influxdb"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Script          string            `yaml:"script"`           // Optional Lua automation script
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig contains heat pump driver settings
type DeviceConfig struct {
	Driver       string            `yaml:"driver"`        // Registered driver name (default: sim)
	Port         string            `yaml:"port"`          // Transport address, e.g. /dev/ttyUSB0
	Secondary    bool              `yaml:"secondary"`     // Connect as secondary wired controller
	FrameTimeout Duration          `yaml:"frame_timeout"` // Max wait for one device frame (default: 1s)
	SettleDelay  Duration          `yaml:"settle_delay"`  // Pause after a frame before sending (default: 60ms)
	LockTimeout  Duration          `yaml:"lock_timeout"`  // Bounded wait on shared buffers (default: 200ms)
	Params       map[string]string `yaml:"params"`        // Driver-specific settings

	// Connect retry settings
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // Minimum backoff between connect attempts (default: 1s)
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // Maximum backoff between connect attempts (default: 30s)
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // Backoff multiplier (default: 2.0)
}

// ClimateConfig contains climate entity settings
type ClimateConfig struct {
	Name           string   `yaml:"name"`
	UpdateInterval Duration `yaml:"update_interval"` // Poll interval (default: 500ms, max: 9s)
	Modes          []string `yaml:"modes"`           // Supported HVAC modes (default: all)
	FanModes       []string `yaml:"fan_modes"`       // Supported fan modes (default: all)
	SwingModes     []string `yaml:"swing_modes"`     // Supported swing modes (default: off, vertical)
}

// MQTTConfig contains MQTT broker and Home Assistant settings
type MQTTConfig struct {
	Enabled         bool                `yaml:"enabled"`
	Broker          MQTTBrokerConfig    `yaml:"broker"`
	Auth            MQTTAuthConfig      `yaml:"auth"`
	QoS             int                 `yaml:"qos"`
	Reconnect       MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix     string              `yaml:"topic_prefix"`     // default: fujitsud
	DiscoveryPrefix string              `yaml:"discovery_prefix"` // default: homeassistant
	NodeID          string              `yaml:"node_id"`          // default: heatpump
	CommandRate     float64             `yaml:"command_rate"`     // Commands per second accepted from MQTT (default: 5)
}

// MQTTBrokerConfig contains MQTT broker connection details
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings
type MQTTReconnectConfig struct {
	InitialDelay Duration `yaml:"initial_delay"` // default: 1s
	MaxDelay     Duration `yaml:"max_delay"`     // default: 1m
}

// HTTPConfig contains the control API settings
type HTTPConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Host        string  `yaml:"host"`
	Port        int     `yaml:"port"`
	CommandRate float64 `yaml:"command_rate"` // Commands per second accepted (default: 5)
}

// InfluxDBConfig contains telemetry sink settings
type InfluxDBConfig struct {
	Enabled       bool     `yaml:"enabled"`
	URL           string   `yaml:"url"`
	Token         string   `yaml:"token"`
	Org           string   `yaml:"org"`
	Bucket        string   `yaml:"bucket"`
	Measurement   string   `yaml:"measurement"`    // default: climate
	BatchSize     int      `yaml:"batch_size"`     // default: 100
	FlushInterval Duration `yaml:"flush_interval"` // default: 10s
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
}

// LedgerConfig contains audit ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding environment
// variables and applying defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./fujitsud.sqlite"
	}

	// Device defaults
	if cfg.Device.Driver == "" {
		cfg.Device.Driver = "sim"
	}
	if cfg.Device.FrameTimeout == 0 {
		cfg.Device.FrameTimeout = Duration(1 * time.Second)
	}
	if cfg.Device.SettleDelay == 0 {
		cfg.Device.SettleDelay = Duration(60 * time.Millisecond)
	}
	if cfg.Device.LockTimeout == 0 {
		cfg.Device.LockTimeout = Duration(200 * time.Millisecond)
	}
	if cfg.Device.MinRetryBackoff == 0 {
		cfg.Device.MinRetryBackoff = Duration(1 * time.Second)
	}
	if cfg.Device.MaxRetryBackoff == 0 {
		cfg.Device.MaxRetryBackoff = Duration(30 * time.Second)
	}
	if cfg.Device.RetryMultiplier == 0 {
		cfg.Device.RetryMultiplier = 2.0
	}

	// Climate defaults
	if cfg.Climate.Name == "" {
		cfg.Climate.Name = "Heat Pump"
	}
	if cfg.Climate.UpdateInterval == 0 {
		cfg.Climate.UpdateInterval = Duration(500 * time.Millisecond)
	}

	// MQTT defaults
	if cfg.MQTT.Broker.Host == "" {
		cfg.MQTT.Broker.Host = "localhost"
	}
	if cfg.MQTT.Broker.Port == 0 {
		cfg.MQTT.Broker.Port = 1883
	}
	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = "fujitsud"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "fujitsud"
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if cfg.MQTT.NodeID == "" {
		cfg.MQTT.NodeID = "heatpump"
	}
	if cfg.MQTT.Reconnect.InitialDelay == 0 {
		cfg.MQTT.Reconnect.InitialDelay = Duration(1 * time.Second)
	}
	if cfg.MQTT.Reconnect.MaxDelay == 0 {
		cfg.MQTT.Reconnect.MaxDelay = Duration(1 * time.Minute)
	}
	if cfg.MQTT.CommandRate == 0 {
		cfg.MQTT.CommandRate = 5
	}

	// HTTP defaults
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.CommandRate == 0 {
		cfg.HTTP.CommandRate = 5
	}

	// InfluxDB defaults
	if cfg.InfluxDB.Measurement == "" {
		cfg.InfluxDB.Measurement = "climate"
	}
	if cfg.InfluxDB.BatchSize == 0 {
		cfg.InfluxDB.BatchSize = 100
	}
	if cfg.InfluxDB.FlushInterval == 0 {
		cfg.InfluxDB.FlushInterval = Duration(10 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// MaxUpdateInterval is the longest accepted climate poll interval.
const MaxUpdateInterval = 9 * time.Second

// Validate checks value ranges that defaults cannot fix.
func (cfg *Config) Validate() error {
	var errs []error

	if d := cfg.Climate.UpdateInterval.Duration(); d < 0 || d > MaxUpdateInterval {
		errs = append(errs, fmt.Errorf("climate.update_interval %s out of range (0, %s]", d, MaxUpdateInterval))
	}
	if cfg.Device.LockTimeout.Duration() < 0 {
		errs = append(errs, errors.New("device.lock_timeout must be positive"))
	}
	if cfg.Device.FrameTimeout.Duration() < 0 {
		errs = append(errs, errors.New("device.frame_timeout must be positive"))
	}
	if cfg.Device.SettleDelay.Duration() < 0 {
		errs = append(errs, errors.New("device.settle_delay must not be negative"))
	}
	if cfg.Ledger.CleanupInterval.Duration() <= 0 {
		errs = append(errs, errors.New("ledger.cleanup_interval must be positive"))
	}
	if cfg.Ledger.RetentionDays <= 0 {
		errs = append(errs, errors.New("ledger.retention_days must be positive"))
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", cfg.MQTT.QoS))
	}
	for _, m := range cfg.Climate.Modes {
		if _, err := climate.ParseHVACMode(m); err != nil {
			errs = append(errs, fmt.Errorf("climate.modes: %w", err))
		}
	}
	for _, f := range cfg.Climate.FanModes {
		if _, err := climate.ParseFanMode(f); err != nil {
			errs = append(errs, fmt.Errorf("climate.fan_modes: %w", err))
		}
	}
	for _, s := range cfg.Climate.SwingModes {
		if _, err := climate.ParseSwingMode(s); err != nil {
			errs = append(errs, fmt.Errorf("climate.swing_modes: %w", err))
		}
	}
	if cfg.InfluxDB.Enabled && (cfg.InfluxDB.URL == "" || cfg.InfluxDB.Bucket == "") {
		errs = append(errs, errors.New("influxdb.url and influxdb.bucket are required when influxdb is enabled"))
	}

	return errors.Join(errs...)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
