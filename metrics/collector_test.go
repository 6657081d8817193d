package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorAggregatesByKey(t *testing.T) {
	c := NewCollector(4)
	key := Key{Method: "GET", Endpoint: "/users/{id}"}

	c.Record(key, Outcome{Time: time.Unix(0, 0), Status: 200, Success: true, Elapsed: 10 * time.Millisecond})
	c.Record(key, Outcome{Time: time.Unix(1, 0), Status: 500, Success: false, Elapsed: 20 * time.Millisecond})

	report := c.Report()[key]
	assert.Equal(t, int64(2), report.Total)
	assert.Equal(t, int64(1), report.Success)
	assert.Equal(t, int64(1), report.C2xx)
	assert.Equal(t, int64(1), report.C5xx)
	assert.Equal(t, 15*time.Millisecond, report.AverageLatency)
	assert.Equal(t, 20*time.Millisecond, report.MaxLatency)
}

func TestCollectorTimelineIsBoundedByLRU(t *testing.T) {
	c := NewCollector(2)
	key := Key{Method: "GET", Endpoint: "/users"}

	for i := 0; i < 5; i++ {
		c.Record(key, Outcome{Time: time.Unix(int64(i), 0), Status: 200, Success: true})
	}

	report := c.Report()[key]
	assert.Equal(t, int64(5), report.Total, "counters keep growing even once the timeline is full")
	assert.Len(t, report.Timeline, 2, "timeline never exceeds the configured bound")
}

func TestCollectorSeparatesKeysByMethodAndEndpoint(t *testing.T) {
	c := NewCollector(4)
	getKey := Key{Method: "GET", Endpoint: "/users"}
	postKey := Key{Method: "POST", Endpoint: "/users"}

	c.Record(getKey, Outcome{Status: 200, Success: true})
	c.Record(postKey, Outcome{Status: 201, Success: true})
	c.Record(postKey, Outcome{Status: 201, Success: true})

	reports := c.Report()
	assert.Equal(t, int64(1), reports[getKey].Total)
	assert.Equal(t, int64(2), reports[postKey].Total)
}
