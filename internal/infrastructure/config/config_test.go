package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// emptyKeyHash is the SHA-256 of the empty string.
const emptyKeyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// validKeyHash is the SHA-256 of "test-key".
const validKeyHash = "62af8704764faf8ea82fc61ce9c4c3908b6cb97d463a634e9e587d7c885db0ef"

// clearEnv makes sure the variables read by applyEnvOverrides are unset for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BAMBORVIDEOSTREAM_SOCKADDR",
		"BAMBORVIDEOSTREAM_CONNMAX",
		"BAMBORVIDEOSTREAM_APIKEYSHA256",
		"VIDEOSTREAM_LOG_LEVEL",
		"VIDEOSTREAM_LOG_FORMAT",
		"VIDEOSTREAM_MQTT_HOST",
		"VIDEOSTREAM_MQTT_USERNAME",
		"VIDEOSTREAM_MQTT_PASSWORD",
		"VIDEOSTREAM_INFLUXDB_URL",
		"VIDEOSTREAM_INFLUXDB_TOKEN",
		"VIDEOSTREAM_DATABASE_PATH",
	} {
		t.Setenv(key, "") // restores the original value on cleanup
		os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "videostream.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:8081"
  max_connections: 64
stream:
  frame_budget: 120
  frame_interval: 500ms
  io_timeout: 2s
security:
  api_key_sha256: "`+validKeyHash+`"
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:8081" {
		t.Errorf("Server.ListenAddress = %q, want %q", cfg.Server.ListenAddress, "127.0.0.1:8081")
	}
	if cfg.Server.MaxConnections != 64 {
		t.Errorf("Server.MaxConnections = %d, want 64", cfg.Server.MaxConnections)
	}
	if cfg.Stream.FrameBudget != 120 {
		t.Errorf("Stream.FrameBudget = %d, want 120", cfg.Stream.FrameBudget)
	}
	if cfg.Stream.FrameInterval != 500*time.Millisecond {
		t.Errorf("Stream.FrameInterval = %v, want 500ms", cfg.Stream.FrameInterval)
	}
	if cfg.Stream.IOTimeout != 2*time.Second {
		t.Errorf("Stream.IOTimeout = %v, want 2s", cfg.Stream.IOTimeout)
	}
	// Unset in the file, so the default survives.
	if cfg.Stream.DialTimeout != 5*time.Second {
		t.Errorf("Stream.DialTimeout = %v, want 5s", cfg.Stream.DialTimeout)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("BAMBORVIDEOSTREAM_APIKEYSHA256", emptyKeyHash)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenAddress != "[::]:80" {
		t.Errorf("Server.ListenAddress = %q, want %q", cfg.Server.ListenAddress, "[::]:80")
	}
	if cfg.Server.MaxConnections != 1024 {
		t.Errorf("Server.MaxConnections = %d, want 1024", cfg.Server.MaxConnections)
	}
}

func TestLoad_MissingDefaultFileTolerated(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("BAMBORVIDEOSTREAM_APIKEYSHA256", validKeyHash)

	if _, err := Load(DefaultPath); err != nil {
		t.Errorf("Load(DefaultPath) error = %v, want nil when the file is absent", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("BAMBORVIDEOSTREAM_APIKEYSHA256", validKeyHash)

	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() expected error for missing api key hash, got nil")
	}
	if !strings.Contains(err.Error(), "BAMBORVIDEOSTREAM_APIKEYSHA256") {
		t.Errorf("error %q does not name the environment variable", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	dotenv := "BAMBORVIDEOSTREAM_APIKEYSHA256=" + validKeyHash + "\nBAMBORVIDEOSTREAM_CONNMAX=32\n"
	if err := os.WriteFile(filepath.Join(dir, DotEnvPath), []byte(dotenv), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	// The real environment wins over the file.
	t.Setenv("BAMBORVIDEOSTREAM_SOCKADDR", "127.0.0.1:9000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.APIKeySHA256 != validKeyHash {
		t.Errorf("Security.APIKeySHA256 = %q, want value from .env", cfg.Security.APIKeySHA256)
	}
	if cfg.Server.MaxConnections != 32 {
		t.Errorf("Server.MaxConnections = %d, want 32", cfg.Server.MaxConnections)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:9000" {
		t.Errorf("Server.ListenAddress = %q, want %q", cfg.Server.ListenAddress, "127.0.0.1:9000")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.APIKeySHA256 = validKeyHash
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid config", modify: func(*Config) {}},
		{name: "empty key hash allowed", modify: func(c *Config) { c.Security.APIKeySHA256 = emptyKeyHash }},
		{name: "missing key hash", modify: func(c *Config) { c.Security.APIKeySHA256 = "" }, wantErr: true},
		{name: "uppercase key hash", modify: func(c *Config) { c.Security.APIKeySHA256 = strings.ToUpper(validKeyHash) }, wantErr: true},
		{name: "short key hash", modify: func(c *Config) { c.Security.APIKeySHA256 = validKeyHash[:63] }, wantErr: true},
		{name: "non-hex key hash", modify: func(c *Config) { c.Security.APIKeySHA256 = strings.Repeat("z", 64) }, wantErr: true},
		{name: "missing listen address", modify: func(c *Config) { c.Server.ListenAddress = "" }, wantErr: true},
		{name: "zero max connections", modify: func(c *Config) { c.Server.MaxConnections = 0 }, wantErr: true},
		{name: "zero frame budget", modify: func(c *Config) { c.Stream.FrameBudget = 0 }, wantErr: true},
		{name: "zero frame interval", modify: func(c *Config) { c.Stream.FrameInterval = 0 }, wantErr: true},
		{name: "zero io timeout", modify: func(c *Config) { c.Stream.IOTimeout = 0 }, wantErr: true},
		{name: "zero reaper interval", modify: func(c *Config) { c.Stream.ReaperInterval = 0 }, wantErr: true},
		{name: "invalid QoS", modify: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "mqtt enabled without host", modify: func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker.Host = ""
		}, wantErr: true},
		{name: "influxdb enabled without bucket", modify: func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.URL = "http://localhost:8086"
		}, wantErr: true},
		{name: "database enabled without path", modify: func(c *Config) {
			c.Database.Enabled = true
			c.Database.Path = ""
		}, wantErr: true},
		{name: "rate limit without rate", modify: func(c *Config) { c.Security.RateLimit.RequestsPerMinute = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = ""
	cfg.MQTT.QoS = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"server.listen_address", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	cfg := defaultConfig()

	t.Setenv("BAMBORVIDEOSTREAM_SOCKADDR", "0.0.0.0:8080")
	t.Setenv("BAMBORVIDEOSTREAM_CONNMAX", "16")
	t.Setenv("BAMBORVIDEOSTREAM_APIKEYSHA256", validKeyHash)
	t.Setenv("VIDEOSTREAM_LOG_LEVEL", "debug")
	t.Setenv("VIDEOSTREAM_MQTT_HOST", "mqtt.example.com")
	t.Setenv("VIDEOSTREAM_MQTT_USERNAME", "testuser")
	t.Setenv("VIDEOSTREAM_MQTT_PASSWORD", "testpass")
	t.Setenv("VIDEOSTREAM_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("VIDEOSTREAM_DATABASE_PATH", "/custom/path.db")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:8080" {
		t.Errorf("Server.ListenAddress = %q, want %q", cfg.Server.ListenAddress, "0.0.0.0:8080")
	}
	if cfg.Server.MaxConnections != 16 {
		t.Errorf("Server.MaxConnections = %d, want 16", cfg.Server.MaxConnections)
	}
	if cfg.Security.APIKeySHA256 != validKeyHash {
		t.Errorf("Security.APIKeySHA256 = %q, want %q", cfg.Security.APIKeySHA256, validKeyHash)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" || !cfg.MQTT.Enabled {
		t.Errorf("MQTT = %+v, want enabled with host mqtt.example.com", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v, want testuser/testpass", cfg.MQTT.Auth)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Database.Path != "/custom/path.db" || !cfg.Database.Enabled {
		t.Errorf("Database.Path = %q (enabled=%v), want /custom/path.db enabled", cfg.Database.Path, cfg.Database.Enabled)
	}
}

func TestApplyEnvOverrides_InvalidConnMax(t *testing.T) {
	clearEnv(t)
	t.Setenv("BAMBORVIDEOSTREAM_CONNMAX", "lots")

	if err := applyEnvOverrides(defaultConfig()); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric CONNMAX, got nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.ListenAddress != "[::]:80" {
		t.Errorf("defaultConfig Server.ListenAddress = %q, want [::]:80", cfg.Server.ListenAddress)
	}
	if cfg.Server.MaxConnections != 1024 {
		t.Errorf("defaultConfig Server.MaxConnections = %d, want 1024", cfg.Server.MaxConnections)
	}
	if cfg.Stream.FrameBudget != 600 {
		t.Errorf("defaultConfig Stream.FrameBudget = %d, want 600", cfg.Stream.FrameBudget)
	}
	if cfg.Stream.FrameInterval != time.Second {
		t.Errorf("defaultConfig Stream.FrameInterval = %v, want 1s", cfg.Stream.FrameInterval)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
