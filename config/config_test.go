package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		config   map[string]interface{}
		wantErr  bool
		validate func(*testing.T, *Config)
	}{
		{
			name: "Minimal mqtt config",
			config: map[string]interface{}{
				"mqtt": map[string]interface{}{
					"endpoint": "wss://broker.example.com:443/mqtt",
					"username": "device",
					"password": "secret",
				},
			},
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, TransportMQTT, c.Transport)
				assert.Equal(t, "wss://broker.example.com:443/mqtt", c.MQTT.Endpoint)
				assert.Equal(t, "info", c.Logging.Level)
				assert.Equal(t, "stdout", c.Logging.OutputPath)
				assert.Equal(t, "json", c.Logging.Encoding)
				assert.Equal(t, 100, c.Logging.MaxSize)
				assert.Equal(t, 3, c.Logging.MaxBackups)
				assert.Equal(t, 28, c.Logging.MaxAge)
				assert.Equal(t, ":2112", c.Metrics.Address)
				assert.Equal(t, "/metrics", c.Metrics.Path)
				assert.Equal(t, "15s", c.Metrics.UpdateInterval)
				assert.Equal(t, time.Second, c.TelemetryInterval())
			},
		},
		{
			name: "NATS transport",
			config: map[string]interface{}{
				"transport": "nats",
				"nats": map[string]interface{}{
					"url": "nats://localhost:4222",
				},
			},
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, TransportNATS, c.Transport)
				assert.Equal(t, "nats://localhost:4222", c.NATS.URL)
			},
		},
		{
			name:    "Missing endpoint",
			config:  map[string]interface{}{},
			wantErr: true,
		},
		{
			name: "Unknown transport",
			config: map[string]interface{}{
				"transport": "amqp",
			},
			wantErr: true,
		},
		{
			name: "TLS without files",
			config: map[string]interface{}{
				"mqtt": map[string]interface{}{
					"endpoint": "ssl://localhost:8883",
					"tls":      map[string]interface{}{"enable": true},
				},
			},
			wantErr: true,
		},
		{
			name: "Invalid log level",
			config: map[string]interface{}{
				"mqtt":    map[string]interface{}{"endpoint": "tcp://localhost:1883"},
				"logging": map[string]interface{}{"level": "verbose"},
			},
			wantErr: true,
		},
		{
			name: "Invalid telemetry interval",
			config: map[string]interface{}{
				"mqtt":      map[string]interface{}{"endpoint": "tcp://localhost:1883"},
				"telemetry": map[string]interface{}{"interval": "-1s"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tmpDir, "config.json")
			configData, err := json.Marshal(tt.config)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(configPath, configData, 0644))

			cfg, err := Load(configPath)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
mqtt:
  endpoint: tcp://localhost:1883
  clientId: sensor-1
logging:
  level: debug
  encoding: console
telemetry:
  interval: 250ms
`)
	require.NoError(t, os.WriteFile(configPath, data, 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Endpoint)
	assert.Equal(t, "sensor-1", cfg.MQTT.ClientID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Encoding)
	assert.Equal(t, 250*time.Millisecond, cfg.TelemetryInterval())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name              string
		transport         string
		endpoint          string
		username          string
		password          string
		metricsAddr       string
		metricsPath       string
		metricsInterval   time.Duration
		telemetryInterval time.Duration
		validate          func(*testing.T, *Config)
	}{
		{
			name:              "Override all values",
			transport:         TransportMQTT,
			endpoint:          "tcp://other:1883",
			username:          "user",
			password:          "pass",
			metricsAddr:       ":3000",
			metricsPath:       "/prometheus",
			metricsInterval:   30 * time.Second,
			telemetryInterval: 5 * time.Second,
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "tcp://other:1883", c.MQTT.Endpoint)
				assert.Equal(t, "user", c.MQTT.Username)
				assert.Equal(t, "pass", c.MQTT.Password)
				assert.Equal(t, ":3000", c.Metrics.Address)
				assert.Equal(t, "/prometheus", c.Metrics.Path)
				assert.Equal(t, "30s", c.Metrics.UpdateInterval)
				assert.Equal(t, "5s", c.Telemetry.Interval)
			},
		},
		{
			name:      "Endpoint goes to nats url",
			transport: TransportNATS,
			endpoint:  "nats://other:4222",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "nats://other:4222", c.NATS.URL)
				assert.Equal(t, "tcp://localhost:1883", c.MQTT.Endpoint)
			},
		},
		{
			name:      "No overrides",
			transport: TransportMQTT,
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "tcp://localhost:1883", c.MQTT.Endpoint)
				assert.Equal(t, ":2112", c.Metrics.Address)
				assert.Equal(t, "1s", c.Telemetry.Interval)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Transport: tt.transport,
				MQTT:      MQTTConfig{Endpoint: "tcp://localhost:1883"},
			}
			cfg.setDefaults()
			cfg.ApplyOverrides(tt.endpoint, tt.username, tt.password,
				tt.metricsAddr, tt.metricsPath, tt.metricsInterval, tt.telemetryInterval)
			tt.validate(t, cfg)
		})
	}
}
