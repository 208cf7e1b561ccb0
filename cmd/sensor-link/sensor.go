package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"sensor-link/internal/command"
	"sensor-link/internal/logger"
)

// Bounds accepted by set_interval.
const (
	minInterval        = 10 * time.Millisecond
	maxIntervalSeconds = 24 * 60 * 60
)

// reading is one simulated telemetry sample.
type reading struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
}

// sender is the publish side of the orchestrator.
type sender interface {
	Send(payload []byte) error
}

// sensor publishes readings at a fixed interval and reacts to commands.
type sensor struct {
	out      sender
	logger   *logger.Logger
	interval time.Duration
	commands chan command.Command
	rng      *rand.Rand

	temperature float64
	humidity    float64
}

func newSensor(out sender, log *logger.Logger, interval time.Duration) *sensor {
	return &sensor{
		out:         out,
		logger:      log,
		interval:    interval,
		commands:    make(chan command.Command, 16),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		temperature: 21,
		humidity:    45,
	}
}

// Handle queues cmd for the run loop. Commands are dropped if the queue is full.
func (s *sensor) Handle(cmd command.Command) {
	select {
	case s.commands <- cmd:
	default:
		s.logger.Warn("command queue full, dropping command", "kind", cmd.Kind)
	}
}

func (s *sensor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish()
		case cmd := <-s.commands:
			s.apply(cmd, ticker)
		}
	}
}

func (s *sensor) apply(cmd command.Command, ticker *time.Ticker) {
	s.logger.Info("command received",
		"kind", cmd.Kind,
		"target", cmd.Target,
		"params", cmd.Params)

	switch cmd.Kind {
	case "ping", "read":
		s.publish()
	case "set_interval":
		secs, ok := cmd.Params["seconds"].(float64)
		if !ok || !(secs > 0 && secs <= maxIntervalSeconds) {
			s.logger.Warn("set_interval requires seconds in range",
				"min", minInterval, "maxSeconds", maxIntervalSeconds)
			return
		}
		interval := time.Duration(secs * float64(time.Second))
		if interval < minInterval {
			s.logger.Warn("set_interval below minimum, ignoring",
				"interval", interval, "min", minInterval)
			return
		}
		s.interval = interval
		ticker.Reset(s.interval)
		s.logger.Info("telemetry interval changed", "interval", s.interval)
	default:
		s.logger.Debug("ignoring unsupported command", "kind", cmd.Kind)
	}
}

func (s *sensor) next() reading {
	s.temperature += (s.rng.Float64() - 0.5) * 0.4
	s.humidity += (s.rng.Float64() - 0.5) * 1.0
	if s.humidity < 0 {
		s.humidity = 0
	}
	if s.humidity > 100 {
		s.humidity = 100
	}
	return reading{
		Timestamp:   time.Now().UTC(),
		Temperature: s.temperature,
		Humidity:    s.humidity,
	}
}

func (s *sensor) publish() {
	payload, err := json.Marshal(s.next())
	if err != nil {
		s.logger.Error("failed to encode reading", "error", err)
		return
	}
	if err := s.out.Send(payload); err != nil {
		s.logger.Warn("failed to publish reading", "error", err)
	}
}
