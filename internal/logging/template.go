package logging

import "strings"

// Placeholder is one of the well-known tokens a LogEvent template may use.
// Unknown placeholders are left literal, per the log placeholder vocabulary.
type Placeholder string

const (
	PlaceholderURL              Placeholder = "{URL}"
	PlaceholderUnformattedURL   Placeholder = "{UURL}"
	PlaceholderEndpoint         Placeholder = "{ENDPOINT}"
	PlaceholderUnformattedEP    Placeholder = "{UENDPOINT}"
	PlaceholderMethod           Placeholder = "{METHOD}"
	PlaceholderStatus           Placeholder = "{STATUS}"
	PlaceholderElapsed          Placeholder = "{ELAPSED}"
	PlaceholderReplay           Placeholder = "{REPLAY}"
	PlaceholderIsReplay         Placeholder = "{IS_REPLAY}"
	PlaceholderRetryDelay       Placeholder = "{RETRY_DELAY}"
	PlaceholderRetryCause       Placeholder = "{RETRY_CAUSE}"
	PlaceholderCurAttempt       Placeholder = "{CUR_ATTEMPT}"
	PlaceholderMaxAttempt       Placeholder = "{MAX_ATTEMPT}"
	PlaceholderThrottleLimit    Placeholder = "{THROTTLE_LIMIT}"
	PlaceholderThrottleTime     Placeholder = "{THROTTLE_TIME}"
	PlaceholderThrottleTimeRng Placeholder = "{THROTTLE_TIME_RANGE}"
)

// Render replaces every known placeholder found in values from template.
// Placeholders with no matching entry in values are left untouched so that
// callers can compose templates referencing a subset of the vocabulary.
func Render(template string, values map[Placeholder]string) string {
	if template == "" || len(values) == 0 {
		return template
	}
	out := template
	for ph, v := range values {
		out = strings.ReplaceAll(out, string(ph), v)
	}
	return out
}

// Event is a user-suppliable log template plus the level it should be
// emitted at. A zero Event is treated as "do not log this event".
type Event struct {
	Template string
	Level    Level
}

// Level mirrors the four Logger methods.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Enabled reports whether the event carries a template worth rendering.
func (e Event) Enabled() bool { return e.Template != "" }

// Emit renders the event's template against values and dispatches it to
// logger at the event's configured level. A zero/unset Event is a no-op.
func Emit(logger Logger, e Event, values map[Placeholder]string) {
	if logger == nil || !e.Enabled() {
		return
	}
	msg := Render(e.Template, values)
	switch e.Level {
	case LevelInfo:
		logger.Info(msg)
	case LevelWarn:
		logger.Warn(msg)
	case LevelError:
		logger.Error(msg)
	default:
		logger.Debug(msg)
	}
}
