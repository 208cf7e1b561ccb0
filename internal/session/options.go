package session

import (
	"net/url"
	"strings"
	"time"

	"sensor-link/internal/logger"
	"sensor-link/internal/metrics"
	"sensor-link/internal/stats"
	"sensor-link/internal/transport"
)

// ConnectOptions are the caller-facing connect parameters. Empty strings and
// zero durations mean "not set".
type ConnectOptions struct {
	Username       string
	Password       string
	CleanSession   bool
	Reconnect      bool
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// secureSchemes are endpoint schemes that imply TLS.
var secureSchemes = map[string]bool{
	"wss":   true,
	"ssl":   true,
	"tls":   true,
	"mqtts": true,
}

// useSSL derives the TLS flag from the endpoint scheme.
func useSSL(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return secureSchemes[strings.ToLower(u.Scheme)]
}

// nativeConnectOptions translates caller options into the transport's native
// option object. Handlers are attached separately.
func nativeConnectOptions(opts ConnectOptions, secure bool) (*transport.ConnectOptions, error) {
	native := &transport.ConnectOptions{
		CleanSession: opts.CleanSession,
		Reconnect:    opts.Reconnect,
		UseSSL:       secure,
		MQTTVersion:  transport.MQTTVersion,
	}

	if opts.Username != "" {
		username := opts.Username
		native.UserName = &username
	}
	if opts.Password != "" {
		password := opts.Password
		native.Password = &password
	}

	if opts.KeepAlive != 0 {
		secs, err := transport.Seconds(opts.KeepAlive)
		if err != nil {
			return nil, err
		}
		native.KeepAliveInterval = secs
	}
	if opts.ConnectTimeout != 0 {
		secs, err := transport.Seconds(opts.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		native.Timeout = secs
	}

	return native, nil
}

func nativeSubscribeOptions(filter string, qos transport.QoS, timeout time.Duration) (*transport.SubscribeOptions, error) {
	if err := transport.ValidateFilter(filter); err != nil {
		return nil, err
	}
	if !qos.Valid() {
		return nil, transport.ErrInvalidQoS
	}

	native := &transport.SubscribeOptions{QoS: qos.Level()}
	if timeout != 0 {
		secs, err := transport.Seconds(timeout)
		if err != nil {
			return nil, err
		}
		native.Timeout = secs
	}
	return native, nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager.
func WithLogger(log *logger.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.logger = log
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithStats enables stats counting.
func WithStats(s *stats.StatsCollector) Option {
	return func(m *Manager) {
		m.stats = s
	}
}
