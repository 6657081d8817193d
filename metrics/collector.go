// Package metrics collects per (method, unformatted-endpoint) counters,
// latency aggregates, and a bounded timeline of recent outcomes.
package metrics

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one logical endpoint's metrics bucket.
type Key struct {
	Method   string
	Endpoint string
}

// Outcome is one terminal pipeline execution, recorded into the bounded
// timeline for reporting.
type Outcome struct {
	Time      time.Time
	Status    int
	Success   bool
	Retried   bool
	Throttled bool
	Replay    bool
	Aborted   bool
	Elapsed   time.Duration
}

type endpointStats struct {
	mu sync.Mutex

	total     int64
	success   int64
	c2xx      int64
	c3xx      int64
	c4xx      int64
	c5xx      int64
	aborted   int64
	retried   int64
	throttled int64
	replay    int64

	sumElapsed time.Duration
	maxElapsed time.Duration
	first      time.Time
	last       time.Time

	timeline *lru.Cache[int64, Outcome]
	seq      int64
}

// Report is the aggregate view of one endpoint's metrics.
type Report struct {
	Key            Key
	Total          int64
	Success        int64
	C2xx, C3xx, C4xx, C5xx int64
	Aborted        int64
	Retried        int64
	Throttled      int64
	Replay         int64
	SuccessRate    float64
	AverageLatency time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
	Timeline       []Outcome
}

// Collector is the concrete MetricsCollector. It is safe for concurrent use.
type Collector struct {
	mu           sync.Mutex
	stats        map[Key]*endpointStats
	timelineSize int
}

// NewCollector builds a Collector whose per-endpoint timeline keeps the
// most recent timelineSize outcomes (a bounded LRU instead of an
// unbounded slice, so a long-lived client doesn't leak memory).
func NewCollector(timelineSize int) *Collector {
	if timelineSize <= 0 {
		timelineSize = 256
	}
	return &Collector{stats: make(map[Key]*endpointStats), timelineSize: timelineSize}
}

func (c *Collector) statsFor(key Key) *endpointStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stats[key]
	if !ok {
		cache, _ := lru.New[int64, Outcome](c.timelineSize)
		s = &endpointStats{timeline: cache}
		c.stats[key] = s
	}
	return s
}

// Record stores one terminal outcome under key. Exactly one call happens
// per pipeline execution.
func (c *Collector) Record(key Key, outcome Outcome) {
	s := c.statsFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if outcome.Success {
		s.success++
	}
	switch {
	case outcome.Aborted:
		s.aborted++
	case outcome.Status >= 200 && outcome.Status < 300:
		s.c2xx++
	case outcome.Status >= 300 && outcome.Status < 400:
		s.c3xx++
	case outcome.Status >= 400 && outcome.Status < 500:
		s.c4xx++
	case outcome.Status >= 500 && outcome.Status < 600:
		s.c5xx++
	}
	if outcome.Retried {
		s.retried++
	}
	if outcome.Throttled {
		s.throttled++
	}
	if outcome.Replay {
		s.replay++
	}

	s.sumElapsed += outcome.Elapsed
	if outcome.Elapsed > s.maxElapsed {
		s.maxElapsed = outcome.Elapsed
	}
	if s.first.IsZero() {
		s.first = outcome.Time
	}
	s.last = outcome.Time

	s.seq++
	s.timeline.Add(s.seq, outcome)
}

// Report computes the aggregate view for every recorded key.
func (c *Collector) Report() map[Key]Report {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.stats))
	entries := make([]*endpointStats, 0, len(c.stats))
	for k, s := range c.stats {
		keys = append(keys, k)
		entries = append(entries, s)
	}
	c.mu.Unlock()

	out := make(map[Key]Report, len(keys))
	for i, k := range keys {
		s := entries[i]
		s.mu.Lock()
		r := Report{
			Key:       k,
			Total:     s.total,
			Success:   s.success,
			C2xx:      s.c2xx,
			C3xx:      s.c3xx,
			C4xx:      s.c4xx,
			C5xx:      s.c5xx,
			Aborted:   s.aborted,
			Retried:   s.retried,
			Throttled: s.throttled,
			Replay:    s.replay,
			MaxLatency: s.maxElapsed,
		}
		if s.total > 0 {
			r.SuccessRate = float64(s.success) / float64(s.total)
			r.AverageLatency = s.sumElapsed / time.Duration(s.total)
		}
		if !s.first.IsZero() && !s.last.IsZero() && s.last.After(s.first) {
			secs := s.last.Sub(s.first).Seconds()
			if secs > 0 {
				r.RequestsPerSec = float64(s.total) / secs
			}
		}
		for _, key := range s.timeline.Keys() {
			if v, ok := s.timeline.Peek(key); ok {
				r.Timeline = append(r.Timeline, v)
			}
		}
		s.mu.Unlock()
		out[k] = r
	}
	return out
}
