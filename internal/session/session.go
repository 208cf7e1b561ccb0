// Package session wraps an asynchronous MQTT transport. It marshals caller
// options into the transport's native form, owns completion handles while a
// request is in flight and renders native errors as text.
package session

import (
	"sync"
	"time"

	"sensor-link/internal/logger"
	"sensor-link/internal/metrics"
	"sensor-link/internal/stats"
	"sensor-link/internal/transport"
)

// Manager exposes connect, subscribe and publish on top of a Transport.
type Manager struct {
	transport transport.Transport
	logger    *logger.Logger
	metrics   *metrics.Metrics
	stats     *stats.StatsCollector
	useSSL    bool
	pending   *pendingTable

	handlerMu sync.RWMutex
	onMessage func(transport.Message)
	onLost    func(reason string)

	closeOnce sync.Once
	closedMu  sync.RWMutex
	closed    bool
}

// New creates a Manager bound to t. The message and connection-lost
// trampolines are installed on the transport immediately.
func New(t transport.Transport, opts ...Option) *Manager {
	m := &Manager{
		transport: t,
		logger:    logger.NewNop(),
		useSSL:    useSSL(t.Endpoint()),
		pending:   newPendingTable(),
	}
	for _, opt := range opts {
		opt(m)
	}

	t.SetOnMessageArrived(m.handleMessage)
	t.SetOnConnectionLost(m.handleConnectionLost)

	m.logger.Debug("session created",
		"endpoint", t.Endpoint(),
		"useSSL", m.useSSL)
	return m
}

// Connect issues an asynchronous connect. Exactly one of onSuccess or
// onFailure runs later, at most once. A returned error means nothing was
// handed to the transport and neither handler will run.
func (m *Manager) Connect(opts ConnectOptions, onSuccess func(), onFailure func(reason string)) error {
	if m.isClosed() {
		return &SetupError{Op: "connect", Err: ErrClosed}
	}

	native, err := nativeConnectOptions(opts, m.useSSL)
	if err != nil {
		return &SetupError{Op: "connect", Err: err}
	}

	h, err := m.register(requestConnect, onSuccess, onFailure)
	if err != nil {
		return &SetupError{Op: "connect", Err: err}
	}

	if err := native.Attach(m.completion(h.id), m.failure(h.id)); err != nil {
		m.release(h.id)
		return &SetupError{Op: "connect", Err: err}
	}

	m.logger.Info("connecting",
		"endpoint", m.transport.Endpoint(),
		"cleanSession", native.CleanSession,
		"reconnect", native.Reconnect,
		"keepAlive", native.KeepAlive(),
		"timeout", native.ConnectTimeout())

	m.transport.Connect(native)
	return nil
}

// Subscribe issues an asynchronous subscribe with the same completion
// contract as Connect. A zero timeout leaves the transport default in place.
func (m *Manager) Subscribe(filter string, qos transport.QoS, timeout time.Duration, onSuccess func(), onFailure func(reason string)) error {
	if m.isClosed() {
		return &SetupError{Op: "subscribe", Err: ErrClosed}
	}

	native, err := nativeSubscribeOptions(filter, qos, timeout)
	if err != nil {
		return &SetupError{Op: "subscribe", Err: err}
	}

	h, err := m.register(requestSubscribe, onSuccess, onFailure)
	if err != nil {
		return &SetupError{Op: "subscribe", Err: err}
	}

	if err := native.Attach(m.completion(h.id), m.failure(h.id)); err != nil {
		m.release(h.id)
		return &SetupError{Op: "subscribe", Err: err}
	}

	m.logger.Info("subscribing",
		"filter", filter,
		"qos", qos.Level(),
		"timeout", native.SubscribeTimeout())

	m.transport.Subscribe(filter, native)
	return nil
}

// Publish forwards a publication to the transport. Failures are reported
// as *TransportError.
func (m *Manager) Publish(topic string, payload []byte, qos transport.QoS, retain bool) error {
	if err := transport.ValidateTopicName(topic); err != nil {
		return err
	}
	if !qos.Valid() {
		return transport.ErrInvalidQoS
	}

	if err := m.transport.Publish(topic, payload, qos, retain); err != nil {
		reason := ConvertError(err)
		m.logger.Error("publish failed",
			"topic", topic,
			"qos", qos.Level(),
			"error", reason)
		m.safeMetricsUpdate(func(mt *metrics.Metrics) { mt.IncPublishTotal("error") })
		if m.stats != nil {
			m.stats.IncPublishErrors()
		}
		return &TransportError{Op: "publish", Reason: reason}
	}

	m.logger.Debug("published",
		"topic", topic,
		"qos", qos.Level(),
		"retain", retain,
		"size", len(payload))
	m.safeMetricsUpdate(func(mt *metrics.Metrics) { mt.IncPublishTotal("success") })
	if m.stats != nil {
		m.stats.IncPublished()
	}
	return nil
}

// IsConnected reports the transport's connection state.
func (m *Manager) IsConnected() bool {
	return m.transport.IsConnected()
}

// SetOnMessageArrived replaces the delivery handler. nil removes it.
func (m *Manager) SetOnMessageArrived(handler func(transport.Message)) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onMessage = handler
}

// SetOnConnectionLost replaces the connection-lost handler. nil removes it.
func (m *Manager) SetOnConnectionLost(handler func(reason string)) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onLost = handler
}

// Pending returns the number of requests awaiting completion.
func (m *Manager) Pending() int {
	return m.pending.count()
}

// UseSSL reports whether connects are marked as TLS.
func (m *Manager) UseSSL() bool {
	return m.useSSL
}

// Close disconnects the transport if it is connected. Errors are logged and
// discarded. Pending handles stay registered so a late completion still
// finds its handler. Close is idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.closedMu.Lock()
		m.closed = true
		m.closedMu.Unlock()

		if !m.transport.IsConnected() {
			return
		}
		if err := m.transport.Disconnect(); err != nil {
			m.logger.Debug("disconnect during close failed",
				"error", ConvertError(err))
		}
		m.safeMetricsUpdate(func(mt *metrics.Metrics) { mt.SetConnectionStatus(false) })
	})
}

func (m *Manager) isClosed() bool {
	m.closedMu.RLock()
	defer m.closedMu.RUnlock()
	return m.closed
}

func (m *Manager) register(kind requestKind, onSuccess func(), onFailure func(string)) (*pendingHandle, error) {
	if onSuccess == nil || onFailure == nil {
		return nil, transport.ErrMissingHandler
	}
	h, err := m.pending.insert(kind, onSuccess, onFailure)
	if err != nil {
		return nil, err
	}
	m.safeMetricsUpdate(func(mt *metrics.Metrics) { mt.SetPendingHandles(m.pending.count()) })
	return h, nil
}

func (m *Manager) release(id uint64) (*pendingHandle, bool) {
	h, ok := m.pending.take(id)
	if ok {
		m.safeMetricsUpdate(func(mt *metrics.Metrics) { mt.SetPendingHandles(m.pending.count()) })
	}
	return h, ok
}

func (m *Manager) completion(id uint64) func() {
	return func() {
		h, ok := m.release(id)
		if !ok {
			m.logger.Debug("ignoring repeated completion", "request", id)
			return
		}
		m.logger.Debug("request succeeded", "request", id, "kind", h.kind.String())
		if h.kind == requestConnect {
			m.safeMetricsUpdate(func(mt *metrics.Metrics) { mt.SetConnectionStatus(true) })
		}
		h.onSuccess()
	}
}

func (m *Manager) failure(id uint64) func(reason any) {
	return func(reason any) {
		h, ok := m.release(id)
		if !ok {
			m.logger.Debug("ignoring repeated completion", "request", id)
			return
		}
		text := ConvertError(reason)
		m.logger.Warn("request failed",
			"request", id,
			"kind", h.kind.String(),
			"reason", text)
		h.onFailure(text)
	}
}

func (m *Manager) handleMessage(msg transport.Message) {
	m.handlerMu.RLock()
	handler := m.onMessage
	m.handlerMu.RUnlock()

	if handler == nil {
		m.logger.Debug("dropping message without handler", "topic", msg.Topic)
		return
	}
	handler(msg)
}

func (m *Manager) handleConnectionLost(reason any) {
	text := ConvertError(reason)
	m.logger.Warn("connection lost", "reason", text)
	m.safeMetricsUpdate(func(mt *metrics.Metrics) {
		mt.SetConnectionStatus(false)
		mt.IncConnectionLost()
	})
	if m.stats != nil {
		m.stats.IncConnectionLost()
	}

	m.handlerMu.RLock()
	handler := m.onLost
	m.handlerMu.RUnlock()

	if handler != nil {
		handler(text)
	}
}

func (m *Manager) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if m.metrics != nil {
		fn(m.metrics)
	}
}
