// Package mqtt implements transport.Transport on top of the Eclipse Paho client.
package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"sensor-link/internal/logger"
	"sensor-link/internal/transport"
)

const (
	disconnectQuiesce = 250 // milliseconds
	subackFailure     = 0x80
	dispatchQueueSize = 256
)

// Paho transport errors
var (
	ErrSubscribeTimeout  = errors.New("subscribe timed out")
	ErrSubscribeRejected = errors.New("subscription rejected by broker")
)

// Transport is a paho-backed transport.Transport. Token completions and
// client callbacks are funnelled through a single dispatcher goroutine so
// handlers never run concurrently.
type Transport struct {
	endpoint  string
	clientID  string
	tlsConfig *tls.Config
	logger    *logger.Logger
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	events *transport.Dispatcher

	mu        sync.RWMutex
	client    pahomqtt.Client
	onMessage func(transport.Message)
	onLost    func(reason any)
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithClientID sets the MQTT client identifier. A random UUID is used otherwise.
func WithClientID(id string) Option {
	return func(t *Transport) {
		if id != "" {
			t.clientID = id
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

// withClientFactory replaces pahomqtt.NewClient, for tests.
func withClientFactory(fn func(*pahomqtt.ClientOptions) pahomqtt.Client) Option {
	return func(t *Transport) {
		t.newClient = fn
	}
}

// New creates a transport for endpoint. No network activity happens until Connect.
func New(endpoint string, opts ...Option) (*Transport, error) {
	if endpoint == "" {
		return nil, transport.ErrEndpointRequired
	}

	t := &Transport{
		endpoint:  endpoint,
		clientID:  uuid.NewString(),
		logger:    logger.NewNop(),
		newClient: pahomqtt.NewClient,
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
	return t.endpoint
}

// ClientID returns the MQTT client identifier.
func (t *Transport) ClientID() string {
	return t.clientID
}

// Connect builds a fresh paho client from opts and starts connecting.
func (t *Transport) Connect(opts *transport.ConnectOptions) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		opts.OnFailure(transport.ErrTransportClosed)
		return
	}
	previous := t.client
	client := t.newClient(t.clientOptions(opts))
	t.client = client
	t.mu.Unlock()

	if previous != nil && previous.IsConnected() {
		previous.Disconnect(0)
	}

	t.logger.Debug("paho connect issued",
		"broker", t.endpoint,
		"clientId", t.clientID)

	token := client.Connect()
	go t.complete(token, 0, func() error { return nil }, opts.OnSuccess, opts.OnFailure)
}

func (t *Transport) clientOptions(opts *transport.ConnectOptions) *pahomqtt.ClientOptions {
	co := pahomqtt.NewClientOptions().
		AddBroker(t.endpoint).
		SetClientID(t.clientID).
		SetCleanSession(opts.CleanSession).
		SetAutoReconnect(opts.Reconnect).
		SetConnectRetry(false).
		SetOrderMatters(true)

	if opts.UserName != nil {
		co.SetUsername(*opts.UserName)
	}
	if opts.Password != nil {
		co.SetPassword(*opts.Password)
	}
	if keepAlive := opts.KeepAlive(); keepAlive > 0 {
		co.SetKeepAlive(keepAlive)
	}
	if timeout := opts.ConnectTimeout(); timeout > 0 {
		co.SetConnectTimeout(timeout)
	}
	if opts.MQTTVersion > 0 {
		co.SetProtocolVersion(uint(opts.MQTTVersion))
	}
	if opts.UseSSL {
		cfg := t.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		co.SetTLSConfig(cfg)
	}

	co.SetDefaultPublishHandler(t.handleMessage)
	co.SetConnectionLostHandler(t.handleConnectionLost)
	co.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		t.logger.Info("mqtt client reconnecting", "broker", t.endpoint)
	})

	return co
}

// Disconnect closes the current connection, waiting briefly for in-flight work.
func (t *Transport) Disconnect() error {
	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()

	if client == nil || !client.IsConnectionOpen() {
		return transport.ErrNotConnected
	}

	t.logger.Info("disconnecting from mqtt broker", "broker", t.endpoint)
	client.Disconnect(disconnectQuiesce)
	return nil
}

// Subscribe subscribes the current client to filter. The outcome is reported
// when the broker acknowledges or the timeout in opts elapses.
func (t *Transport) Subscribe(filter string, opts *transport.SubscribeOptions) {
	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()

	if client == nil {
		if !t.events.Dispatch(func() { opts.OnFailure(transport.ErrNotConnected) }) {
			opts.OnFailure(transport.ErrTransportClosed)
		}
		return
	}

	token := client.Subscribe(filter, byte(opts.QoS), t.handleMessage)
	check := func() error {
		st, ok := token.(*pahomqtt.SubscribeToken)
		if !ok {
			return nil
		}
		if code, ok := st.Result()[filter]; ok && code == subackFailure {
			return fmt.Errorf("%w: %s", ErrSubscribeRejected, filter)
		}
		return nil
	}
	go t.complete(token, opts.SubscribeTimeout(), check, opts.OnSuccess, opts.OnFailure)
}

// Publish hands the message to paho. Only errors paho reports without a
// network round trip are returned.
func (t *Transport) Publish(topic string, payload []byte, qos transport.QoS, retained bool) error {
	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()

	if client == nil {
		return transport.ErrNotConnected
	}

	token := client.Publish(topic, byte(qos), retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
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
	client := t.client
	t.mu.RUnlock()
	return client != nil && client.IsConnected()
}

// Close disconnects if needed and stops the dispatcher. Completions that
// finish after this fail with ErrTransportClosed.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	client := t.client
	t.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectQuiesce)
	}
	t.events.Close()
}

// complete waits for token off the caller's goroutine and reports the result
// on the dispatcher. A zero timeout waits indefinitely.
func (t *Transport) complete(token pahomqtt.Token, timeout time.Duration, check func() error,
	onSuccess func(), onFailure func(any)) {
	var err error
	if timeout > 0 {
		if !token.WaitTimeout(timeout) {
			err = ErrSubscribeTimeout
		}
	} else {
		token.Wait()
	}
	if err == nil {
		err = token.Error()
	}
	if err == nil {
		err = check()
	}

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

func (t *Transport) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	if msg == nil {
		t.logger.Warn("dropping message", "error", transport.ErrInvalidMessage)
		return
	}

	m := transport.Message{
		Topic:   msg.Topic(),
		Payload: append([]byte(nil), msg.Payload()...),
	}

	t.events.Dispatch(func() {
		t.mu.RLock()
		handler := t.onMessage
		t.mu.RUnlock()
		if handler != nil {
			handler(m)
		}
	})
}

func (t *Transport) handleConnectionLost(_ pahomqtt.Client, err error) {
	t.logger.Error("mqtt connection lost", "error", err)

	t.events.Dispatch(func() {
		t.mu.RLock()
		handler := t.onLost
		t.mu.RUnlock()
		if handler != nil {
			handler(err)
		}
	})
}
