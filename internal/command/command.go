// Package command decodes inbound command payloads delivered on the command
// inbox topic.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// Command errors
var (
	ErrDecode      = errors.New("failed to decode command")
	ErrMissingKind = errors.New("command kind is required")
	ErrNoCommand   = errors.New("payload carries no recognizable command")
)

// Command is the canonical command schema.
type Command struct {
	Kind   string                 `json:"kind"`
	Target string                 `json:"target,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Validate checks the fields the canonical schema requires.
func (c Command) Validate() error {
	if strings.TrimSpace(c.Kind) == "" {
		return ErrMissingKind
	}
	return nil
}

func (c Command) String() string {
	if c.Target == "" {
		return c.Kind
	}
	return fmt.Sprintf("%s@%s", c.Kind, c.Target)
}

// Metadata is auxiliary information the legacy shape may carry alongside a
// command. It is never forwarded.
type Metadata struct {
	ID        string
	Device    string
	Timestamp string
}
