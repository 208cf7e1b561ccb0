package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sensor-link/internal/logger"
	"sensor-link/internal/metrics"
	"sensor-link/internal/stats"
	"sensor-link/internal/transport"
)

const (
	// InboxFilter is the subscription filter for inbound commands.
	InboxFilter = "command/inbox/#"

	// InboxPrefix is the topic prefix a delivered message must carry to be
	// decoded. The empty segment after "inbox" is intentional.
	InboxPrefix = "command/inbox//"
)

// Strategy names
const (
	StrategyStrict = "strict"
	StrategyLoose  = "loose"
)

// strategy is one step of the decode chain.
type strategy struct {
	name   string
	decode func(payload []byte) (Command, error)
}

// Result is a successfully decoded command and the strategy that produced it.
type Result struct {
	Command  Command
	Strategy string
}

// Decoder filters delivered messages by topic and decodes their payloads by
// trying each strategy in order until one succeeds.
type Decoder struct {
	strategies []strategy
	logger     *logger.Logger
	metrics    *metrics.Metrics
	stats      *stats.StatsCollector
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the decoder logger.
func WithLogger(log *logger.Logger) Option {
	return func(d *Decoder) {
		if log != nil {
			d.logger = log
		}
	}
}

// WithMetrics enables decode metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Decoder) {
		d.metrics = m
	}
}

// WithStats enables decode counters.
func WithStats(s *stats.StatsCollector) Option {
	return func(d *Decoder) {
		d.stats = s
	}
}

// NewDecoder creates a decoder with the strict-then-loose chain.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		logger: logger.NewNop(),
		strategies: []strategy{
			{name: StrategyStrict, decode: decodeStrict},
			{name: StrategyLoose, decode: decodeLoose},
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Matches reports whether topic is a command inbox topic.
func Matches(topic string) bool {
	return strings.HasPrefix(topic, InboxPrefix)
}

// Handle filters and decodes a delivered message. Messages outside the
// command inbox are ignored without logging. Decode failures are logged
// and reported as false.
func (d *Decoder) Handle(msg transport.Message) (Command, bool) {
	if !Matches(msg.Topic) {
		d.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncMessagesTotal("ignored") })
		if d.stats != nil {
			d.stats.IncIgnored()
		}
		return Command{}, false
	}

	res, err := d.Decode(msg.Payload)
	if err != nil {
		d.logger.Warn("dropping command",
			"topic", msg.Topic,
			"size", len(msg.Payload),
			"error", err)
		d.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncMessagesTotal("dropped") })
		if d.stats != nil {
			d.stats.IncDropped()
		}
		return Command{}, false
	}

	d.logger.Debug("command decoded",
		"topic", msg.Topic,
		"kind", res.Command.Kind,
		"strategy", res.Strategy)
	d.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("decoded")
		m.IncCommandsTotal(res.Strategy)
	})
	if d.stats != nil {
		d.stats.IncDecoded()
	}
	return res.Command, true
}

// Decode runs the strategy chain over payload, stopping at the first success.
func (d *Decoder) Decode(payload []byte) (Result, error) {
	var errs []error
	for _, s := range d.strategies {
		cmd, err := s.decode(payload)
		if err == nil {
			return Result{Command: cmd, Strategy: s.name}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return Result{}, fmt.Errorf("%w: %w", ErrDecode, errors.Join(errs...))
}

// decodeStrict accepts only the canonical schema: known fields, a kind, and
// nothing after the object.
func decodeStrict(payload []byte) (Command, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var cmd Command
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, err
	}
	if dec.More() {
		return Command{}, errors.New("unexpected data after command")
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// decodeLoose parses any JSON value and maps legacy shapes onto a Command.
// Metadata carried by the legacy shape is dropped.
func decodeLoose(payload []byte) (Command, error) {
	var generic interface{}
	if err := json.Unmarshal(payload, &generic); err != nil {
		return Command{}, err
	}

	cmd, _, ok := fromLegacy(generic)
	if !ok {
		return Command{}, ErrNoCommand
	}
	return cmd, nil
}

func (d *Decoder) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if d.metrics != nil {
		fn(d.metrics)
	}
}
