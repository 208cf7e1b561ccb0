// Package transport defines the capability a session needs from an MQTT client
// implementation, plus the native option objects exchanged with it.
package transport

import (
	"errors"
	"fmt"
)

// Transport errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrInvalidQoS       = errors.New("invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidFilter    = errors.New("invalid topic filter")
	ErrInvalidTopic     = errors.New("invalid topic name")
	ErrMissingHandler   = errors.New("completion handler is nil")
	ErrHandlerAttached  = errors.New("completion handler already attached")
	ErrInvalidDuration  = errors.New("duration must not be negative")
	ErrInvalidMessage   = errors.New("failed to convert message")
	ErrTransportClosed  = errors.New("transport closed")
	ErrEndpointRequired = errors.New("endpoint is required")
)

// Transport is the asynchronous MQTT client capability.
//
// Connect and Subscribe return immediately; their outcome is reported exactly
// once through the OnSuccess or OnFailure handler attached to the option
// object. All handlers, including the message and connection-lost handlers,
// are invoked one at a time in event arrival order.
type Transport interface {
	// Endpoint returns the broker URL the transport was created for.
	Endpoint() string

	Connect(opts *ConnectOptions)
	Disconnect() error
	Subscribe(filter string, opts *SubscribeOptions)

	// Publish hands the message to the client and reports only failures the
	// client can detect locally.
	Publish(topic string, payload []byte, qos QoS, retained bool) error

	// SetOnMessageArrived installs the delivery handler, replacing any previous one.
	SetOnMessageArrived(handler func(Message))

	// SetOnConnectionLost installs the connection-lost handler, replacing any
	// previous one. The reason is transport-native.
	SetOnConnectionLost(handler func(reason any))

	IsConnected() bool
}

// Message is a delivered publication.
type Message struct {
	Topic   string
	Payload []byte
}

// QoS is an MQTT delivery guarantee level.
type QoS byte

const (
	QoS0 QoS = 0 // at most once
	QoS1 QoS = 1 // at least once
	QoS2 QoS = 2 // exactly once
)

// Valid reports whether q is one of 0, 1 or 2.
func (q QoS) Valid() bool {
	return q <= QoS2
}

// Level returns the native integer level.
func (q QoS) Level() int {
	return int(q)
}

func (q QoS) String() string {
	return fmt.Sprintf("QoS%d", q)
}

// ParseQoS maps a native integer level back onto QoS.
func ParseQoS(level int) (QoS, error) {
	switch level {
	case 0:
		return QoS0, nil
	case 1:
		return QoS1, nil
	case 2:
		return QoS2, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidQoS, level)
	}
}
