// Package nats implements transport.Transport over a NATS connection, mapping
// MQTT topics onto NATS subjects.
package nats

import (
	"crypto/tls"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"sensor-link/internal/logger"
	"sensor-link/internal/transport"
)

const (
	defaultFlushTimeout = 5 * time.Second
	reconnectWait       = 2 * time.Second
	dispatchQueueSize   = 256
)

// Transport is a NATS-backed transport.Transport. NATS has no QoS, retained
// messages or persistent sessions; those options are accepted and ignored.
type Transport struct {
	url       string
	name      string
	tlsConfig *tls.Config
	logger    *logger.Logger

	events *transport.Dispatcher

	mu        sync.RWMutex
	conn      *nats.Conn
	subs      []*nats.Subscription
	onMessage func(transport.Message)
	onLost    func(reason any)
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithName sets the connection name reported to the server.
func WithName(name string) Option {
	return func(t *Transport) {
		if name != "" {
			t.name = name
		}
	}
}

// WithTLSConfig sets the TLS configuration used when a connect requests SSL.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *Transport) {
		t.tlsConfig = cfg
	}
}

// WithLogger sets the transport logger.
func WithLogger(log *logger.Logger) Option {
	return func(t *Transport) {
		if log != nil {
			t.logger = log
		}
	}
}

// New creates a transport for the server at url.
func New(url string, opts ...Option) (*Transport, error) {
	if url == "" {
		return nil, transport.ErrEndpointRequired
	}

	t := &Transport{
		url:    url,
		name:   uuid.NewString(),
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.events = transport.NewDispatcher(dispatchQueueSize, func(r any) {
		t.logger.Error("panic in transport handler", "panic", r)
	})

	return t, nil
}

func (t *Transport) Endpoint() string {
	return t.url
}

// Connect dials the server in the background.
func (t *Transport) Connect(opts *transport.ConnectOptions) {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		opts.OnFailure(transport.ErrTransportClosed)
		return
	}

	natsOpts := t.natsOptions(opts)
	t.logger.Info("connecting to NATS server", "url", t.url)

	go func() {
		conn, err := nats.Connect(t.url, natsOpts...)
		if err == nil {
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				conn.Close()
				opts.OnFailure(transport.ErrTransportClosed)
				return
			}
			previous := t.conn
			t.conn = conn
			t.subs = nil
			t.mu.Unlock()
			if previous != nil {
				previous.Close()
			}
			t.logger.Info("connected to NATS server", "url", conn.ConnectedUrl())
		}

		t.complete(opts.OnSuccess, opts.OnFailure, err)
	}()
}

func (t *Transport) natsOptions(opts *transport.ConnectOptions) []nats.Option {
	natsOpts := []nats.Option{
		nats.Name(t.name),
		nats.DisconnectErrHandler(t.handleDisconnect),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			t.logger.Info("reconnected to NATS server", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			t.logger.Debug("NATS connection closed")
		}),
	}

	if opts.Reconnect {
		natsOpts = append(natsOpts, nats.MaxReconnects(-1), nats.ReconnectWait(reconnectWait))
	} else {
		natsOpts = append(natsOpts, nats.NoReconnect())
	}
	if opts.UserName != nil {
		var password string
		if opts.Password != nil {
			password = *opts.Password
		}
		natsOpts = append(natsOpts, nats.UserInfo(*opts.UserName, password))
	}
	if timeout := opts.ConnectTimeout(); timeout > 0 {
		natsOpts = append(natsOpts, nats.Timeout(timeout))
	}
	if keepAlive := opts.KeepAlive(); keepAlive > 0 {
		natsOpts = append(natsOpts, nats.PingInterval(keepAlive))
	}
	if opts.UseSSL {
		cfg := t.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		natsOpts = append(natsOpts, nats.Secure(cfg))
	}

	return natsOpts
}

// Disconnect unsubscribes everything and closes the connection.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	subs := t.subs
	t.conn = nil
	t.subs = nil
	t.mu.Unlock()

	if conn == nil {
		return transport.ErrNotConnected
	}

	t.logger.Info("disconnecting from NATS server")
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Debug("unsubscribe failed", "subject", sub.Subject, "error", err)
		}
	}
	conn.Close()
	return nil
}

// Subscribe registers interest in filter. Success is reported once the
// server has processed the subscription, bounded by the timeout in opts.
func (t *Transport) Subscribe(filter string, opts *transport.SubscribeOptions) {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()

	if conn == nil {
		t.complete(opts.OnSuccess, opts.OnFailure, transport.ErrNotConnected)
		return
	}

	subject := ToNATSSubject(filter)
	sub, err := conn.Subscribe(subject, t.handleMessage)
	if err != nil {
		t.complete(opts.OnSuccess, opts.OnFailure, err)
		return
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	timeout := opts.SubscribeTimeout()
	if timeout <= 0 {
		timeout = defaultFlushTimeout
	}

	t.logger.Debug("subscribed to NATS subject", "filter", filter, "subject", subject)

	go func() {
		t.complete(opts.OnSuccess, opts.OnFailure, conn.FlushTimeout(timeout))
	}()
}

// Publish sends payload on the subject for topic. qos and retained have no
// NATS equivalent.
func (t *Transport) Publish(topic string, payload []byte, _ transport.QoS, _ bool) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()

	if conn == nil {
		return transport.ErrNotConnected
	}
	return conn.Publish(ToNATSSubject(topic), payload)
}

func (t *Transport) SetOnMessageArrived(handler func(transport.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = handler
}

func (t *Transport) SetOnConnectionLost(handler func(reason any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = handler
}

func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	return conn != nil && conn.IsConnected()
}

// Close disconnects and stops the dispatcher.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	_ = t.Disconnect()
	t.events.Close()
}

// complete reports a request outcome on the event loop. Once the loop is
// closed the request fails inline with ErrTransportClosed so that its
// handlers still fire.
func (t *Transport) complete(onSuccess func(), onFailure func(reason any), err error) {
	ok := t.events.Dispatch(func() {
		if err != nil {
			onFailure(err)
			return
		}
		onSuccess()
	})
	if !ok {
		t.logger.Debug("completing request after close", "error", err)
		onFailure(transport.ErrTransportClosed)
	}
}

func (t *Transport) dispatch(fn func()) {
	if !t.events.Dispatch(fn) {
		t.logger.Debug("dropping event after close")
	}
}

func (t *Transport) handleMessage(msg *nats.Msg) {
	if msg == nil {
		t.logger.Warn("dropping message", "error", transport.ErrInvalidMessage)
		return
	}

	m := transport.Message{
		Topic:   ToMQTTTopic(msg.Subject),
		Payload: append([]byte(nil), msg.Data...),
	}
	t.dispatch(func() {
		t.mu.RLock()
		handler := t.onMessage
		t.mu.RUnlock()
		if handler != nil {
			handler(m)
		}
	})
}

// handleDisconnect reports unexpected disconnects. A nil error means the
// connection was closed on purpose.
func (t *Transport) handleDisconnect(_ *nats.Conn, err error) {
	if err == nil {
		return
	}
	t.logger.Error("disconnected from NATS server", "error", err)

	t.dispatch(func() {
		t.mu.RLock()
		handler := t.onLost
		t.mu.RUnlock()
		if handler != nil {
			handler(err)
		}
	})
}
