// Package lifecycle drives a session through connect, subscribe and run,
// reporting every transition to an observer and forwarding decoded commands.
package lifecycle

import (
	"errors"
	"slices"
	"sync"
	"time"

	"sensor-link/internal/command"
	"sensor-link/internal/logger"
	"sensor-link/internal/metrics"
	"sensor-link/internal/session"
	"sensor-link/internal/stats"
	"sensor-link/internal/transport"
)

// Operational constants.
const (
	TelemetryTopic   = "sensor"
	TelemetryQoS     = transport.QoS1
	SubscribeQoS     = transport.QoS0
	SubscribeTimeout = 5 * time.Second
	KeepAlive        = 2 * time.Second
	ConnectTimeout   = 5 * time.Second
)

// Prefixes of Disconnected reasons.
const (
	reasonConnectFailed   = "Failed to connect: "
	reasonSubscribeFailed = "Failed to subscribe: "
	reasonConnectionLost  = "Disconnected: "
)

// ErrStopped is returned by Send after Stop.
var ErrStopped = errors.New("orchestrator stopped")

// Options are the observer hooks and credentials.
type Options struct {
	Username string
	Password string

	// OnState receives every state transition, starting with Connecting.
	OnState func(State)
	// OnCommand receives each successfully decoded command.
	OnCommand func(command.Command)
}

// Option configures ambient dependencies.
type Option func(*Orchestrator)

func WithLogger(log *logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.logger = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithStats(s *stats.StatsCollector) Option {
	return func(o *Orchestrator) {
		o.stats = s
	}
}

// Orchestrator owns one session and its state machine.
type Orchestrator struct {
	opts    Options
	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.StatsCollector
	decoder *command.Decoder

	// mu guards every call on session.
	mu      sync.Mutex
	session *session.Manager

	stateMu sync.RWMutex
	state   State

	stopOnce sync.Once
}

// New enters Connecting, notifies the observer and issues the connect.
// A connect that cannot be set up moves straight to Disconnected.
func New(t transport.Transport, opts Options, extra ...Option) *Orchestrator {
	o := &Orchestrator{
		opts:   opts,
		logger: logger.NewNop(),
		state:  State{Kind: Connecting},
	}
	for _, opt := range extra {
		opt(o)
	}

	o.decoder = command.NewDecoder(
		command.WithLogger(o.logger),
		command.WithMetrics(o.metrics),
		command.WithStats(o.stats))

	o.session = session.New(t,
		session.WithLogger(o.logger),
		session.WithMetrics(o.metrics),
		session.WithStats(o.stats))
	o.session.SetOnMessageArrived(o.handleMessage)
	o.session.SetOnConnectionLost(o.handleConnectionLost)

	o.notify(o.State())

	o.mu.Lock()
	err := o.session.Connect(session.ConnectOptions{
		Username:       opts.Username,
		Password:       opts.Password,
		CleanSession:   true,
		Reconnect:      true,
		KeepAlive:      KeepAlive,
		ConnectTimeout: ConnectTimeout,
	}, o.handleConnected, o.handleConnectFailed)
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn("connect setup failed", "error", err)
		o.handleConnectFailed(err.Error())
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

// Send publishes payload on the telemetry topic. It is safe to call from
// any goroutine.
func (o *Orchestrator) Send(payload []byte) error {
	if o.State().Kind == Stopped {
		return ErrStopped
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.Publish(TelemetryTopic, payload, TelemetryQoS, false)
}

// Stop disconnects if connected and enters Stopped. Later transport events
// are ignored. Stop is idempotent.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		o.session.Close()
		o.mu.Unlock()

		o.stateMu.Lock()
		o.state = State{Kind: Stopped}
		o.stateMu.Unlock()

		o.logger.Info("session stopped")
		o.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncStateTransition(Stopped.Name()) })
		o.notify(State{Kind: Stopped})
	})
}

func (o *Orchestrator) handleConnected() {
	if !o.transition(State{Kind: Subscribing}, Connecting) {
		return
	}

	o.mu.Lock()
	err := o.session.Subscribe(command.InboxFilter, SubscribeQoS, SubscribeTimeout,
		o.handleSubscribed, o.handleSubscribeFailed)
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn("subscribe setup failed", "error", err)
		o.handleSubscribeFailed(err.Error())
	}
}

func (o *Orchestrator) handleConnectFailed(reason string) {
	o.transition(disconnected(reasonConnectFailed, reason), Connecting)
}

func (o *Orchestrator) handleSubscribed() {
	o.transition(State{Kind: Running}, Subscribing)
}

func (o *Orchestrator) handleSubscribeFailed(reason string) {
	o.transition(disconnected(reasonSubscribeFailed, reason), Subscribing)
}

func (o *Orchestrator) handleConnectionLost(reason string) {
	o.transition(disconnected(reasonConnectionLost, reason))
}

func (o *Orchestrator) handleMessage(msg transport.Message) {
	if o.State().Kind == Stopped {
		return
	}
	if o.stats != nil {
		o.stats.IncReceived()
	}
	o.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncMessagesTotal("received") })

	cmd, ok := o.decoder.Handle(msg)
	if !ok {
		return
	}
	if o.opts.OnCommand != nil {
		o.opts.OnCommand(cmd)
	}
}

// transition moves to next unless already Stopped. When from is non-empty the
// current state must be one of them, otherwise the event is stale and dropped.
func (o *Orchestrator) transition(next State, from ...Kind) bool {
	o.stateMu.Lock()
	prev := o.state
	if prev.Kind == Stopped {
		o.stateMu.Unlock()
		o.logger.Debug("ignoring event after stop", "state", next.String())
		return false
	}
	if len(from) > 0 && !slices.Contains(from, prev.Kind) {
		o.stateMu.Unlock()
		o.logger.Debug("ignoring out-of-state event",
			"current", prev.String(),
			"event", next.String())
		return false
	}
	o.state = next
	o.stateMu.Unlock()

	o.logger.Info("state changed",
		"from", prev.Kind.Name(),
		"to", next.Kind.Name(),
		"state", next.String())
	o.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncStateTransition(next.Kind.Name()) })
	o.notify(next)
	return true
}

func (o *Orchestrator) notify(s State) {
	if o.opts.OnState != nil {
		o.opts.OnState(s)
	}
}

func (o *Orchestrator) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if o.metrics != nil {
		fn(o.metrics)
	}
}
