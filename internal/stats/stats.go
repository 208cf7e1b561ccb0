package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// StatsCollector tracks session-wide message counters.
type StatsCollector struct {
	StartTime        time.Time
	MessagesReceived uint64
	MessagesIgnored  uint64
	CommandsDecoded  uint64
	CommandsDropped  uint64
	Published        uint64
	PublishErrors    uint64
	ConnectionLost   uint64
	lastUpdate       atomic.Int64
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	s := &StatsCollector{
		StartTime: time.Now(),
	}
	s.touch()
	return s
}

func (s *StatsCollector) touch() {
	s.lastUpdate.Store(time.Now().UnixNano())
}

func (s *StatsCollector) IncReceived() {
	atomic.AddUint64(&s.MessagesReceived, 1)
	s.touch()
}

func (s *StatsCollector) IncIgnored() {
	atomic.AddUint64(&s.MessagesIgnored, 1)
	s.touch()
}

func (s *StatsCollector) IncDecoded() {
	atomic.AddUint64(&s.CommandsDecoded, 1)
	s.touch()
}

func (s *StatsCollector) IncDropped() {
	atomic.AddUint64(&s.CommandsDropped, 1)
	s.touch()
}

func (s *StatsCollector) IncPublished() {
	atomic.AddUint64(&s.Published, 1)
	s.touch()
}

func (s *StatsCollector) IncPublishErrors() {
	atomic.AddUint64(&s.PublishErrors, 1)
	s.touch()
}

func (s *StatsCollector) IncConnectionLost() {
	atomic.AddUint64(&s.ConnectionLost, 1)
	s.touch()
}

// LastUpdate returns the time of the most recent counter change.
func (s *StatsCollector) LastUpdate() time.Time {
	return time.Unix(0, s.lastUpdate.Load())
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	uptime := time.Since(s.StartTime)
	return map[string]interface{}{
		"uptime":            uptime.String(),
		"messages_received": atomic.LoadUint64(&s.MessagesReceived),
		"messages_ignored":  atomic.LoadUint64(&s.MessagesIgnored),
		"commands_decoded":  atomic.LoadUint64(&s.CommandsDecoded),
		"commands_dropped":  atomic.LoadUint64(&s.CommandsDropped),
		"published":         atomic.LoadUint64(&s.Published),
		"publish_errors":    atomic.LoadUint64(&s.PublishErrors),
		"connection_lost":   atomic.LoadUint64(&s.ConnectionLost),
		"last_update":       s.LastUpdate(),
	}
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// CalculateRate calculates the average delivered-message rate per second
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.MessagesReceived)) / uptime
}
