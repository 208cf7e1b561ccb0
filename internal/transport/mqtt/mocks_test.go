package mqtt

import (
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements pahomqtt.Token. It stays pending until complete is called.
type MockToken struct {
	mu   sync.Mutex
	err  error
	done chan struct{}
	once sync.Once
}

func NewMockToken() *MockToken {
	return &MockToken{done: make(chan struct{})}
}

// NewDoneToken returns a token that has already completed with err.
func NewDoneToken(err error) *MockToken {
	t := NewMockToken()
	t.complete(err)
	return t
}

func (t *MockToken) complete(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *MockToken) Wait() bool {
	<-t.done
	return true
}

func (t *MockToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *MockToken) Done() <-chan struct{} { return t.done }

func (t *MockToken) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// MockClient implements pahomqtt.Client for testing
type MockClient struct {
	opts      *pahomqtt.ClientOptions
	connected atomic.Bool

	connectToken  *MockToken
	subscribeFunc func(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	publishFunc   func(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token

	mu          sync.Mutex
	disconnects []uint
}

func NewMockClient(opts *pahomqtt.ClientOptions) *MockClient {
	return &MockClient{
		opts:         opts,
		connectToken: NewMockToken(),
		subscribeFunc: func(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
			return NewDoneToken(nil)
		},
		publishFunc: func(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
			return NewMockToken()
		},
	}
}

func (m *MockClient) Connect() pahomqtt.Token { return m.connectToken }

func (m *MockClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, quiesce)
	m.connected.Store(false)
}

func (m *MockClient) Disconnects() []uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint(nil), m.disconnects...)
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	return m.publishFunc(topic, qos, retained, payload)
}

func (m *MockClient) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	return m.subscribeFunc(topic, qos, callback)
}

func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	return NewDoneToken(nil)
}

func (m *MockClient) Unsubscribe(topics ...string) pahomqtt.Token       { return NewDoneToken(nil) }
func (m *MockClient) AddRoute(topic string, callback pahomqtt.MessageHandler) {}
func (m *MockClient) IsConnected() bool                                 { return m.connected.Load() }
func (m *MockClient) IsConnectionOpen() bool                            { return m.connected.Load() }

func (m *MockClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.NewOptionsReader(m.opts)
}

// MockMessage implements pahomqtt.Message for testing
type MockMessage struct {
	topic   string
	payload []byte
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 0 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 1 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}

// mockFactory hands out MockClients and remembers them.
type mockFactory struct {
	mu      sync.Mutex
	clients []*MockClient
	setup   func(*MockClient)
}

func (f *mockFactory) newClient(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	c := NewMockClient(opts)
	if f.setup != nil {
		f.setup(c)
	}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c
}

func (f *mockFactory) last() *MockClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}
