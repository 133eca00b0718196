package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when VIDEOSTREAM_CONFIG is unset.
// A missing file at this path is not an error.
const DefaultPath = "configs/videostream.yaml"

// DotEnvPath is the optional dotenv file loaded before the environment is read.
const DotEnvPath = ".env"

// Config is the root configuration structure for the video-stream bridge.
// Values come from defaults, an optional YAML file and environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Stream   StreamConfig   `yaml:"stream"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Database DatabaseConfig `yaml:"database"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the host:port the HTTP server binds to.
	// Default: "[::]:80"
	ListenAddress string `yaml:"listen_address"`

	// MaxConnections caps the number of simultaneously open client connections.
	// Default: 1024
	MaxConnections int `yaml:"max_connections"`

	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig          `yaml:"cors"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
// Streaming endpoints clear the write deadline for their own responses.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StreamConfig contains device session settings.
type StreamConfig struct {
	// FrameBudget is how many frames a session reads before it expires.
	FrameBudget int `yaml:"frame_budget"`

	// FrameInterval is the pause after each frame.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// DialTimeout bounds the TCP connect to the device.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// IOTimeout bounds each read and write on the device stream.
	IOTimeout time.Duration `yaml:"io_timeout"`

	// ReaperInterval is how often dead registry entries are removed.
	ReaperInterval time.Duration `yaml:"reaper_interval"`
}

// SecurityConfig contains API access settings.
type SecurityConfig struct {
	// APIKeySHA256 is the lowercase hex SHA-256 of the API key. The hash of
	// the empty string effectively disables the key.
	APIKeySHA256 string `yaml:"api_key_sha256"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`

	// BatchSize is the number of points buffered before a write.
	// Default: 60 (one minute of frames from one camera)
	BatchSize int `yaml:"batch_size"`

	// FlushInterval is the longest a point waits in the buffer, in seconds.
	// Default: 5
	FlushInterval int `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite session-history settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how long finished sessions are kept. 0 keeps them forever.
	HistoryRetention time.Duration `yaml:"history_retention"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. The .env file, if present (never overrides variables already set)
//  3. YAML file values, if path is non-empty
//  4. Environment variables
//
// A missing file is tolerated only when path is DefaultPath.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for none
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If a file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(DotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", DotEnvPath, err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:  "[::]:80",
			MaxConnections: 1024,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Stream: StreamConfig{
			FrameBudget:    600,
			FrameInterval:  time.Second,
			DialTimeout:    5 * time.Second,
			IOTimeout:      5 * time.Second,
			ReaperInterval: time.Minute,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				Burst:             20,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "videostream",
			},
			QoS:         1,
			TopicPrefix: "videostream",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     60,
			FlushInterval: 5,
		},
		Database: DatabaseConfig{
			Path:             "./data/videostream.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 30 * 24 * time.Hour,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
//
// The BAMBORVIDEOSTREAM_* variables keep their historical names; everything
// else follows VIDEOSTREAM_SECTION_KEY.
func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("BAMBORVIDEOSTREAM_SOCKADDR"); ok {
		cfg.Server.ListenAddress = v
	}
	if v, ok := os.LookupEnv("BAMBORVIDEOSTREAM_CONNMAX"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BAMBORVIDEOSTREAM_CONNMAX %q: %w", v, err)
		}
		cfg.Server.MaxConnections = n
	}
	if v, ok := os.LookupEnv("BAMBORVIDEOSTREAM_APIKEYSHA256"); ok {
		cfg.Security.APIKeySHA256 = v
	}

	// Logging
	if v := os.Getenv("VIDEOSTREAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VIDEOSTREAM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// MQTT
	if v := os.Getenv("VIDEOSTREAM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("VIDEOSTREAM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VIDEOSTREAM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("VIDEOSTREAM_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
		cfg.InfluxDB.Enabled = true
	}
	if v := os.Getenv("VIDEOSTREAM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("VIDEOSTREAM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
		cfg.Database.Enabled = true
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.ListenAddress == "" {
		errs = append(errs, "server.listen_address is required")
	}
	if c.Server.MaxConnections < 1 {
		errs = append(errs, "server.max_connections must be at least 1")
	}

	// Stream validation
	if c.Stream.FrameBudget < 1 {
		errs = append(errs, "stream.frame_budget must be at least 1")
	}
	if c.Stream.FrameInterval <= 0 {
		errs = append(errs, "stream.frame_interval must be positive")
	}
	if c.Stream.IOTimeout <= 0 || c.Stream.DialTimeout <= 0 {
		errs = append(errs, "stream.dial_timeout and stream.io_timeout must be positive")
	}
	if c.Stream.ReaperInterval <= 0 {
		errs = append(errs, "stream.reaper_interval must be positive")
	}

	// Security validation - the key hash is REQUIRED. Operators who want an
	// open API configure the hash of the empty string explicitly.
	if c.Security.APIKeySHA256 == "" {
		errs = append(errs, "security.api_key_sha256 is required (set BAMBORVIDEOSTREAM_APIKEYSHA256 environment variable)")
	} else if !isLowerSHA256Hex(c.Security.APIKeySHA256) {
		errs = append(errs, "security.api_key_sha256 must be 64 lowercase hex characters")
	}
	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be at least 1")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func isLowerSHA256Hex(s string) bool {
	if len(s) != 64 || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// GetReadTimeout returns the server read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the server write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}
