package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Serial Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Serial   SerialConfig   `yaml:"serial"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Polling  PollingConfig  `yaml:"polling"`
	Forward  ForwardConfig  `yaml:"forward"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BridgeConfig contains bridge identity and topic settings.
type BridgeConfig struct {
	// ID identifies this bridge in status payloads and the MQTT client ID default.
	ID string `yaml:"id"`

	// TopicPrefix is the base for all published topics (e.g., "serial/data").
	TopicPrefix string `yaml:"topic_prefix"`

	// HealthInterval is how often the bridge publishes its status, in seconds.
	// 0 disables periodic health reporting.
	HealthInterval int `yaml:"health_interval"`
}

// SerialConfig contains serial port settings.
type SerialConfig struct {
	// Device is the serial device path (e.g., "/dev/ttyUSB1").
	Device string `yaml:"device"`

	// Baud is the line speed in bits per second.
	Baud int `yaml:"baud"`

	// Parity is one of "none", "even", "odd".
	Parity string `yaml:"parity"`

	// StopBits is 1 or 2.
	StopBits int `yaml:"stop_bits"`

	// ReadTimeout is the maximum time a single line read blocks, in milliseconds.
	ReadTimeout int `yaml:"read_timeout"`

	// FlowControl selects software flow control ("xonxoff" or "none").
	// The machine side expects XON/XOFF; see serialport package notes on
	// library support.
	FlowControl string `yaml:"flow_control"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Retain    bool                `yaml:"retain"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`

	// KeepAlive is the MQTT keepalive interval in seconds.
	KeepAlive int `yaml:"keepalive"`
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

// PollingConfig contains Q-code poll scheduler settings.
type PollingConfig struct {
	// Codes is the ordered list of command codes requested each cycle.
	// Omitted means the built-in default list; an explicitly empty list
	// disables requests and each cycle is just the idle interval.
	Codes []string `yaml:"codes"`

	// CycleInterval is the idle time between poll cycles, in seconds.
	CycleInterval int `yaml:"cycle_interval"`

	// PerCodeWait is the idle time after each request, in seconds,
	// giving the machine time to answer on the read path.
	PerCodeWait int `yaml:"per_code_wait"`
}

// ForwardConfig contains line-forwarding personality settings.
type ForwardConfig struct {
	// Topic is the single topic raw lines are published to.
	Topic string `yaml:"topic"`

	// LineEnding is one of "strip", "keep", "crlf", "lf".
	LineEnding string `yaml:"line_ending"`

	// RateLimit is the minimum interval between publishes, in milliseconds.
	// 0 disables rate limiting.
	RateLimit int `yaml:"rate_limit"`
}

// InfluxDBConfig contains the optional telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HistoryConfig contains the optional SQLite reading log settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// RetentionDays prunes readings older than this many days at
	// startup. Zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SERIALBRIDGE_SECTION_KEY
// For example: SERIALBRIDGE_SERIAL_DEVICE, SERIALBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
//
// The defaults match the machine-side expectations: 38400 baud 8N1 with a
// one-second read timeout, local Mosquitto broker, and the standard
// serial/data topic prefix.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "serialbridge",
			TopicPrefix:    "serial/data",
			HealthInterval: 30,
		},
		Serial: SerialConfig{
			Device:      "/dev/ttyUSB1",
			Baud:        38400,
			Parity:      "none",
			StopBits:    1,
			ReadTimeout: 1000,
			FlowControl: "xonxoff",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:      "localhost",
				Port:      1883,
				ClientID:  "serialbridge",
				KeepAlive: 60,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
		},
		Polling: PollingConfig{
			CycleInterval: 30,
			PerCodeWait:   2,
		},
		Forward: ForwardConfig{
			Topic:      "serial/data",
			LineEnding: "strip",
		},
		History: HistoryConfig{
			Path:        "./data/readings.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SERIALBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Serial
	if v := os.Getenv("SERIALBRIDGE_SERIAL_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}
	if v := os.Getenv("SERIALBRIDGE_SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Serial.Baud = baud
		}
	}

	// MQTT
	if v := os.Getenv("SERIALBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SERIALBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SERIALBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SERIALBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Serial.Device == "" {
		errs = append(errs, "serial.device is required")
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, "serial.baud must be positive")
	}
	switch strings.ToLower(c.Serial.Parity) {
	case "none", "even", "odd":
	default:
		errs = append(errs, "serial.parity must be none, even, or odd")
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		errs = append(errs, "serial.stop_bits must be 1 or 2")
	}

	if c.Bridge.TopicPrefix == "" {
		errs = append(errs, "bridge.topic_prefix is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Polling.CycleInterval < 0 {
		errs = append(errs, "polling.cycle_interval must not be negative")
	}
	if c.Polling.PerCodeWait < 0 {
		errs = append(errs, "polling.per_code_wait must not be negative")
	}

	switch strings.ToLower(c.Forward.LineEnding) {
	case "strip", "keep", "crlf", "lf":
	default:
		errs = append(errs, "forward.line_ending must be strip, keep, crlf, or lf")
	}
	if c.Forward.RateLimit < 0 {
		errs = append(errs, "forward.rate_limit must not be negative")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetCycleInterval returns the poll cycle idle time as a Duration.
func (c *Config) GetCycleInterval() time.Duration {
	return time.Duration(c.Polling.CycleInterval) * time.Second
}

// GetPerCodeWait returns the per-code wait as a Duration.
func (c *Config) GetPerCodeWait() time.Duration {
	return time.Duration(c.Polling.PerCodeWait) * time.Second
}

// GetReadTimeout returns the serial read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeout) * time.Millisecond
}

// GetRateLimit returns the forward rate limit as a Duration.
func (c *Config) GetRateLimit() time.Duration {
	return time.Duration(c.Forward.RateLimit) * time.Millisecond
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}
