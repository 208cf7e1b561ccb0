package metrics

import (
	"sync"
	"time"

	"sensor-link/internal/stats"
)

// MetricsCollector periodically copies derived stats into gauges.
type MetricsCollector struct {
	metrics  *Metrics
	stats    *stats.StatsCollector
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewMetricsCollector(m *Metrics, s *stats.StatsCollector, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MetricsCollector{
		metrics:  m,
		stats:    s,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (c *MetricsCollector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts collection and waits for the loop to exit. Safe to call twice.
func (c *MetricsCollector) Stop() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}

func (c *MetricsCollector) collect() {
	c.metrics.SetMessageRate(c.stats.CalculateRate())
	c.metrics.SetUptime(time.Since(c.stats.StartTime).Seconds())
}
