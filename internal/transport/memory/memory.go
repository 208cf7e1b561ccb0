// Package memory provides an in-process Transport whose completions and
// events are driven explicitly by the caller. It lets the session, decoder and
// lifecycle be exercised without a broker.
package memory

import (
	"errors"
	"sync"

	"sensor-link/internal/transport"
)

// ErrNothingPending is returned when a completion is requested but no
// matching request is outstanding.
var ErrNothingPending = errors.New("no pending request")

// Subscription records a Subscribe call.
type Subscription struct {
	Filter string
	QoS    int
	Opts   *transport.SubscribeOptions
}

// Publication records a successful Publish call.
type Publication struct {
	Topic    string
	Payload  []byte
	QoS      transport.QoS
	Retained bool
}

// Transport is an in-memory transport.Transport.
type Transport struct {
	mu sync.Mutex

	endpoint    string
	connected   bool
	connects    []*transport.ConnectOptions
	subscribes  []Subscription
	pendingConn []*transport.ConnectOptions
	pendingSub  []*transport.SubscribeOptions
	published   []Publication
	disconnects int

	onMessage func(transport.Message)
	onLost    func(any)

	// PublishErr, when set, is returned by Publish.
	PublishErr error
	// DisconnectErr, when set, is returned by Disconnect.
	DisconnectErr error
}

var _ transport.Transport = (*Transport)(nil)

func New(endpoint string) *Transport {
	return &Transport{endpoint: endpoint}
}

func (t *Transport) Endpoint() string {
	return t.endpoint
}

func (t *Transport) Connect(opts *transport.ConnectOptions) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects = append(t.connects, opts)
	t.pendingConn = append(t.pendingConn, opts)
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	t.connected = false
	return t.DisconnectErr
}

func (t *Transport) Subscribe(filter string, opts *transport.SubscribeOptions) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribes = append(t.subscribes, Subscription{Filter: filter, QoS: opts.QoS, Opts: opts})
	t.pendingSub = append(t.pendingSub, opts)
}

func (t *Transport) Publish(topic string, payload []byte, qos transport.QoS, retained bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.PublishErr != nil {
		return t.PublishErr
	}
	if !t.connected {
		return transport.ErrNotConnected
	}
	t.published = append(t.published, Publication{
		Topic:    topic,
		Payload:  append([]byte(nil), payload...),
		QoS:      qos,
		Retained: retained,
	})
	return nil
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
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// CompleteConnect finishes the oldest outstanding connect. A nil reason
// succeeds and marks the transport connected; anything else fails with that
// native reason.
func (t *Transport) CompleteConnect(reason any) error {
	t.mu.Lock()
	if len(t.pendingConn) == 0 {
		t.mu.Unlock()
		return ErrNothingPending
	}
	opts := t.pendingConn[0]
	t.pendingConn = t.pendingConn[1:]
	if reason == nil {
		t.connected = true
	}
	t.mu.Unlock()

	if reason == nil {
		opts.OnSuccess()
	} else {
		opts.OnFailure(reason)
	}
	return nil
}

// CompleteSubscribe finishes the oldest outstanding subscribe.
func (t *Transport) CompleteSubscribe(reason any) error {
	t.mu.Lock()
	if len(t.pendingSub) == 0 {
		t.mu.Unlock()
		return ErrNothingPending
	}
	opts := t.pendingSub[0]
	t.pendingSub = t.pendingSub[1:]
	t.mu.Unlock()

	if reason == nil {
		opts.OnSuccess()
	} else {
		opts.OnFailure(reason)
	}
	return nil
}

// Deliver hands a message to the installed delivery handler, if any.
func (t *Transport) Deliver(topic string, payload []byte) {
	t.mu.Lock()
	handler := t.onMessage
	t.mu.Unlock()

	if handler != nil {
		handler(transport.Message{Topic: topic, Payload: payload})
	}
}

// LoseConnection marks the transport disconnected and reports reason to the
// installed connection-lost handler.
func (t *Transport) LoseConnection(reason any) {
	t.mu.Lock()
	t.connected = false
	handler := t.onLost
	t.mu.Unlock()

	if handler != nil {
		handler(reason)
	}
}

// SetConnected forces the connection flag.
func (t *Transport) SetConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = connected
}

// Connects returns the option objects of every Connect call.
func (t *Transport) Connects() []*transport.ConnectOptions {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*transport.ConnectOptions(nil), t.connects...)
}

// Subscriptions returns every Subscribe call.
func (t *Transport) Subscriptions() []Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Subscription(nil), t.subscribes...)
}

// Published returns every accepted publication.
func (t *Transport) Published() []Publication {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Publication(nil), t.published...)
}

// Disconnects returns the number of Disconnect calls.
func (t *Transport) Disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnects
}
