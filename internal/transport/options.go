package transport

import (
	"time"
)

// MQTTVersion is the protocol level sent on connect (3.1.1).
const MQTTVersion = 4

// ConnectOptions is the transport-native connect option object.
type ConnectOptions struct {
	UserName          *string  `json:"userName,omitempty"`
	Password          *string  `json:"password,omitempty"`
	CleanSession      bool     `json:"cleanSession"`
	Reconnect         bool     `json:"reconnect"`
	KeepAliveInterval *float64 `json:"keepAliveInterval,omitempty"` // seconds
	Timeout           *float64 `json:"timeout,omitempty"`           // seconds
	UseSSL            bool     `json:"useSSL"`
	MQTTVersion       int      `json:"mqttVersion"`

	OnSuccess func()           `json:"-"`
	OnFailure func(reason any) `json:"-"`
}

// Attach sets the completion pair. It fails if either handler is nil or a
// pair is already attached.
func (o *ConnectOptions) Attach(onSuccess func(), onFailure func(reason any)) error {
	return attach(&o.OnSuccess, &o.OnFailure, onSuccess, onFailure)
}

// KeepAlive returns the keep-alive interval, zero when unset.
func (o *ConnectOptions) KeepAlive() time.Duration {
	return Duration(o.KeepAliveInterval)
}

// ConnectTimeout returns the connect timeout, zero when unset.
func (o *ConnectOptions) ConnectTimeout() time.Duration {
	return Duration(o.Timeout)
}

// SubscribeOptions is the transport-native subscribe option object.
type SubscribeOptions struct {
	QoS     int      `json:"qos"`
	Timeout *float64 `json:"timeout,omitempty"` // seconds

	OnSuccess func()           `json:"-"`
	OnFailure func(reason any) `json:"-"`
}

// Attach sets the completion pair. It fails if either handler is nil or a
// pair is already attached.
func (o *SubscribeOptions) Attach(onSuccess func(), onFailure func(reason any)) error {
	return attach(&o.OnSuccess, &o.OnFailure, onSuccess, onFailure)
}

// SubscribeTimeout returns the subscribe timeout, zero when unset.
func (o *SubscribeOptions) SubscribeTimeout() time.Duration {
	return Duration(o.Timeout)
}

func attach(dstSuccess *func(), dstFailure *func(any), onSuccess func(), onFailure func(any)) error {
	if onSuccess == nil || onFailure == nil {
		return ErrMissingHandler
	}
	if *dstSuccess != nil || *dstFailure != nil {
		return ErrHandlerAttached
	}
	*dstSuccess = onSuccess
	*dstFailure = onFailure
	return nil
}

// Seconds converts d into the floating-point seconds used on the wire.
func Seconds(d time.Duration) (*float64, error) {
	if d < 0 {
		return nil, ErrInvalidDuration
	}
	s := d.Seconds()
	return &s, nil
}

// Duration converts wire seconds back into a time.Duration.
func Duration(secs *float64) time.Duration {
	if secs == nil || *secs <= 0 {
		return 0
	}
	return time.Duration(*secs * float64(time.Second))
}
