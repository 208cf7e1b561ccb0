package stats

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewStatsCollector verifies the initialization of a new StatsCollector
func TestNewStatsCollector(t *testing.T) {
	collector := NewStatsCollector()

	assert.NotNil(t, collector, "StatsCollector should be created")
	assert.WithinDuration(t, time.Now(), collector.StartTime, 100*time.Millisecond, "StartTime should be close to current time")
	assert.WithinDuration(t, time.Now(), collector.LastUpdate(), 100*time.Millisecond, "LastUpdate should be close to current time")

	assert.Zero(t, collector.MessagesReceived, "MessagesReceived should be zero")
	assert.Zero(t, collector.MessagesIgnored, "MessagesIgnored should be zero")
	assert.Zero(t, collector.CommandsDecoded, "CommandsDecoded should be zero")
	assert.Zero(t, collector.CommandsDropped, "CommandsDropped should be zero")
	assert.Zero(t, collector.Published, "Published should be zero")
	assert.Zero(t, collector.PublishErrors, "PublishErrors should be zero")
}

func TestIncrements(t *testing.T) {
	collector := NewStatsCollector()
	before := collector.LastUpdate()
	time.Sleep(time.Millisecond)

	collector.IncReceived()
	collector.IncReceived()
	collector.IncIgnored()
	collector.IncDecoded()
	collector.IncDropped()
	collector.IncPublished()
	collector.IncPublishErrors()
	collector.IncConnectionLost()

	assert.Equal(t, uint64(2), collector.MessagesReceived)
	assert.Equal(t, uint64(1), collector.MessagesIgnored)
	assert.Equal(t, uint64(1), collector.CommandsDecoded)
	assert.Equal(t, uint64(1), collector.CommandsDropped)
	assert.Equal(t, uint64(1), collector.Published)
	assert.Equal(t, uint64(1), collector.PublishErrors)
	assert.Equal(t, uint64(1), collector.ConnectionLost)
	assert.True(t, collector.LastUpdate().After(before), "LastUpdate should be more recent")
}

func TestConcurrentIncrements(t *testing.T) {
	collector := NewStatsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.IncPublished()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1000), collector.GetStats()["published"])
}

// TestGetStatsJSON verifies JSON marshaling of stats
func TestGetStatsJSON(t *testing.T) {
	c := NewStatsCollector()
	c.IncReceived()
	c.IncDecoded()

	jsonStats, err := c.GetStatsJSON()
	require.NoError(t, err, "GetStatsJSON should not return an error")

	var statsMap map[string]interface{}
	require.NoError(t, json.Unmarshal(jsonStats, &statsMap))

	assert.Equal(t, float64(1), statsMap["messages_received"])
	assert.Equal(t, float64(1), statsMap["commands_decoded"])
	assert.Equal(t, float64(0), statsMap["commands_dropped"])
	assert.Contains(t, statsMap, "uptime")
	assert.Contains(t, statsMap, "last_update")
}

// TestCalculateRate verifies message rate calculation
func TestCalculateRate(t *testing.T) {
	testCases := []struct {
		name           string
		received       uint64
		processingTime time.Duration
		expectedRange  struct {
			min float64
			max float64
		}
	}{
		{
			name:           "Zero messages",
			received:       0,
			processingTime: 1 * time.Second,
			expectedRange:  struct{ min, max float64 }{0, 0.001},
		},
		{
			name:           "Normal rate",
			received:       100,
			processingTime: 10 * time.Second,
			expectedRange:  struct{ min, max float64 }{9.9, 10.1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			collector := &StatsCollector{
				StartTime:        time.Now().Add(-tc.processingTime),
				MessagesReceived: tc.received,
			}

			rate := collector.CalculateRate()

			assert.GreaterOrEqual(t, rate, tc.expectedRange.min)
			assert.LessOrEqual(t, rate, tc.expectedRange.max)
		})
	}
}
