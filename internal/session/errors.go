package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Session errors
var (
	ErrRequestPending = errors.New("a request of the same kind is already pending")
	ErrClosed         = errors.New("session closed")
)

// unknownError is reported when a native error has no textual rendering.
const unknownError = "<unknown>"

// SetupError reports a connect or subscribe attempt that was aborted before
// anything was handed to the transport.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s setup failed: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// TransportError is a failure reported by the transport, already rendered as text.
type TransportError struct {
	Op     string
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Reason)
}

// ConvertError renders a transport-native error value as text. Plain strings
// (and errors and Stringers) are used as-is, anything else is rendered as
// JSON, and values that cannot be rendered become "<unknown>".
func ConvertError(v any) string {
	switch e := v.(type) {
	case nil:
		return unknownError
	case string:
		return e
	case error:
		return e.Error()
	case fmt.Stringer:
		return e.String()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return unknownError
	}
	return string(data)
}
