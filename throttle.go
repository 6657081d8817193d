package gracy

import (
	"context"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/guilatrova/gracy/internal/convert"
	"github.com/guilatrova/gracy/internal/logging"
)

// ThrottleRule matches requests by a regex over the formatted URL and caps
// them to a request budget within a sliding window.
type ThrottleRule struct {
	Name        string
	URLPattern  *regexp.Regexp
	MaxRequests int
	PerTime     time.Duration

	LogLimitReached logging.Event
	LogWaitOver     logging.Event
}

// compileThrottlePattern compiles a user-supplied regex pattern for a
// declarative ThrottleRule.
func compileThrottlePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(pattern)
}

// Matches reports whether this rule applies to formattedURL.
func (r ThrottleRule) Matches(formattedURL string) bool {
	if r.URLPattern == nil {
		return false
	}
	return r.URLPattern.MatchString(formattedURL)
}

// throttleState is one ThrottleRule's sliding window of recent admission
// timestamps plus whether its "limit reached" log has already fired for
// the current saturation event.
type throttleState struct {
	rule      ThrottleRule
	mu        sync.Mutex
	timestamps []time.Time
	saturated bool
}

// wait returns how long a new request must wait to fit in the window,
// discarding timestamps that have aged out. Zero means "admit now".
func (s *throttleState) wait(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldestAllowed := now.Add(-s.rule.PerTime)
	i := 0
	for i < len(s.timestamps) && !s.timestamps[i].After(oldestAllowed) {
		i++
	}
	s.timestamps = s.timestamps[i:]

	if len(s.timestamps) < s.rule.MaxRequests {
		return 0
	}
	return s.timestamps[0].Add(s.rule.PerTime).Sub(now)
}

func (s *throttleState) record(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timestamps = append(s.timestamps, now)
}

// ThrottleController owns one throttleState per rule and a single
// coordination lock serializing admission decisions.
// A per-rule semaphore alone is insufficient: per_time is a sliding
// window, not a token bucket refilled on a fixed cadence, so admission
// must be decided and recorded atomically under one lock.
type ThrottleController struct {
	admissionMu sync.Mutex
	states      []*throttleState
	logger      logging.Logger
	now         func() time.Time
}

// NewThrottleController builds a controller for the given rules.
func NewThrottleController(rules []ThrottleRule, logger logging.Logger) *ThrottleController {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	states := convert.Slice(rules, func(r ThrottleRule) *throttleState {
		return &throttleState{rule: r}
	})
	return &ThrottleController{states: states, logger: logger, now: time.Now}
}

// matchingStates returns every state whose rule matches formattedURL.
func (c *ThrottleController) matchingStates(formattedURL string) []*throttleState {
	var matched []*throttleState
	for _, s := range c.states {
		if s.rule.Matches(formattedURL) {
			matched = append(matched, s)
		}
	}
	return matched
}

// Await blocks until formattedURL is admitted by every matching rule (AND
// semantics), restarting the wait computation each time it wakes up.
func (c *ThrottleController) Await(ctx context.Context, formattedURL string) error {
	matched := c.matchingStates(formattedURL)
	if len(matched) == 0 {
		return nil
	}

	for {
		c.admissionMu.Lock()
		now := c.now()

		var maxWait time.Duration
		for _, s := range matched {
			if w := s.wait(now); w > maxWait {
				maxWait = w
			}
		}

		if maxWait <= 0 {
			for _, s := range matched {
				s.record(now)
				s.mu.Lock()
				wasSaturated := s.saturated
				s.saturated = false
				s.mu.Unlock()
				if wasSaturated {
					logging.Emit(c.logger, s.rule.LogWaitOver, throttlePlaceholders(s.rule))
				}
			}
			c.admissionMu.Unlock()
			return nil
		}

		for _, s := range matched {
			s.mu.Lock()
			already := s.saturated
			s.saturated = true
			s.mu.Unlock()
			if !already {
				logging.Emit(c.logger, s.rule.LogLimitReached, throttlePlaceholders(s.rule))
			}
		}
		c.admissionMu.Unlock()

		if err := sleepCtx(ctx, maxWait); err != nil {
			return err
		}
	}
}

func throttlePlaceholders(rule ThrottleRule) map[logging.Placeholder]string {
	return map[logging.Placeholder]string{
		logging.PlaceholderThrottleLimit:   strconv.Itoa(rule.MaxRequests),
		logging.PlaceholderThrottleTime:    rule.PerTime.String(),
		logging.PlaceholderThrottleTimeRng: rule.PerTime.String(),
	}
}
