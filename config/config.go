package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds
const (
	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

type Config struct {
	Transport string          `json:"transport" yaml:"transport"`
	MQTT      MQTTConfig      `json:"mqtt" yaml:"mqtt"`
	NATS      NATSConfig      `json:"nats" yaml:"nats"`
	Logging   LogConfig       `json:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

type MQTTConfig struct {
	Endpoint string    `json:"endpoint" yaml:"endpoint"`
	ClientID string    `json:"clientId" yaml:"clientId"`
	Username string    `json:"username" yaml:"username"`
	Password string    `json:"password" yaml:"password"`
	TLS      TLSConfig `json:"tls" yaml:"tls"`
}

type TLSConfig struct {
	Enable   bool   `json:"enable" yaml:"enable"`
	CertFile string `json:"certFile" yaml:"certFile"`
	KeyFile  string `json:"keyFile" yaml:"keyFile"`
	CAFile   string `json:"caFile" yaml:"caFile"`
}

type NATSConfig struct {
	URL      string `json:"url" yaml:"url"`
	ClientID string `json:"clientId" yaml:"clientId"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`           // debug, info, warn, error
	OutputPath string `json:"outputPath" yaml:"outputPath"` // file path, "stdout" or "stderr"
	Encoding   string `json:"encoding" yaml:"encoding"`     // json or console

	// Rotation, used when OutputPath is a file.
	MaxSize    int  `json:"maxSize" yaml:"maxSize"` // megabytes
	MaxBackups int  `json:"maxBackups" yaml:"maxBackups"`
	MaxAge     int  `json:"maxAge" yaml:"maxAge"` // days
	Compress   bool `json:"compress" yaml:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Address        string `json:"address" yaml:"address"`
	Path           string `json:"path" yaml:"path"`
	UpdateInterval string `json:"updateInterval" yaml:"updateInterval"` // Duration string
}

type TelemetryConfig struct {
	Interval string `json:"interval" yaml:"interval"` // Duration string
}

// Load reads and parses the configuration file. Files ending in .yaml or .yml
// are decoded as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.setDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Transport == "" {
		c.Transport = TransportMQTT
	}

	// Set defaults for logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 28
	}

	// Set defaults for metrics
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == "" {
		c.Metrics.UpdateInterval = "15s"
	}

	if c.Telemetry.Interval == "" {
		c.Telemetry.Interval = "1s"
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	switch cfg.Transport {
	case TransportMQTT:
		if cfg.MQTT.Endpoint == "" {
			return fmt.Errorf("mqtt endpoint is required")
		}
		if cfg.MQTT.TLS.Enable {
			if cfg.MQTT.TLS.CertFile == "" {
				return fmt.Errorf("tls cert file is required when tls is enabled")
			}
			if cfg.MQTT.TLS.KeyFile == "" {
				return fmt.Errorf("tls key file is required when tls is enabled")
			}
			if cfg.MQTT.TLS.CAFile == "" {
				return fmt.Errorf("tls ca file is required when tls is enabled")
			}
		}
	case TransportNATS:
		if cfg.NATS.URL == "" {
			return fmt.Errorf("nats url is required")
		}
	default:
		return fmt.Errorf("invalid transport: %s", cfg.Transport)
	}

	// Validate logging config
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	// Validate metrics config
	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	interval, err := time.ParseDuration(cfg.Telemetry.Interval)
	if err != nil {
		return fmt.Errorf("invalid telemetry interval: %w", err)
	}
	if interval <= 0 {
		return fmt.Errorf("telemetry interval must be greater than 0")
	}

	return nil
}

// TelemetryInterval returns the parsed publish interval.
func (c *Config) TelemetryInterval() time.Duration {
	d, err := time.ParseDuration(c.Telemetry.Interval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(endpoint, username, password, metricsAddr, metricsPath string, metricsInterval, telemetryInterval time.Duration) {
	if endpoint != "" {
		switch c.Transport {
		case TransportNATS:
			c.NATS.URL = endpoint
		default:
			c.MQTT.Endpoint = endpoint
		}
	}
	if username != "" {
		c.MQTT.Username = username
		c.NATS.Username = username
	}
	if password != "" {
		c.MQTT.Password = password
		c.NATS.Password = password
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
	if metricsInterval > 0 {
		c.Metrics.UpdateInterval = metricsInterval.String()
	}
	if telemetryInterval > 0 {
		c.Telemetry.Interval = telemetryInterval.String()
	}
}
