package gracy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guilatrova/gracy/internal/logging"
	"github.com/guilatrova/gracy/internal/optional"
)

// Declaration is the YAML-facing declaration style for endpoints and
// namespaces: a base URL, a settings block mapping onto GracyConfig, a
// request timeout, and a set of namespaces each declaring their own
// endpoints and settings overrides.
type Declaration struct {
	BaseURL        string                     `yaml:"base_url"`
	RequestTimeout time.Duration              `yaml:"request_timeout"`
	Settings       SettingsDeclaration        `yaml:"settings"`
	Namespaces     map[string]NamespaceDecl   `yaml:"namespaces"`
}

// SettingsDeclaration is the YAML-friendly, non-trinary mirror of
// GracyConfig: every field is a plain value, and any field a user omits is
// treated as unset (never "explicitly disabled" — YAML has no sentinel for
// that, so disabling an inherited field requires the programmatic
// optional.Disable API instead).
type SettingsDeclaration struct {
	StrictStatusCode  []int         `yaml:"strict_status_code"`
	AllowedStatusCode []int         `yaml:"allowed_status_code"`
	Retry             *RetryDecl    `yaml:"retry"`
	Throttling        []ThrottleDecl `yaml:"throttling"`
	ConcurrentRequests *ConcurrencyDecl `yaml:"concurrent_requests"`
}

// RetryDecl is RetryPolicy's YAML shape, minus the RetryOn/Overrides/log
// fields: retry_on sets and parser/validator callbacks are Go values with
// no sensible YAML encoding, so callers attach those programmatically
// after loading.
type RetryDecl struct {
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxAttempts   int           `yaml:"max_attempts"`
	DelayModifier float64       `yaml:"delay_modifier"`
	Behavior      string        `yaml:"behavior"`
}

// ThrottleDecl is ThrottleRule's YAML shape. URLPattern is compiled from
// Pattern at load time.
type ThrottleDecl struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	MaxRequests int    `yaml:"max_requests"`
	PerTime     time.Duration `yaml:"per_time"`
}

// ConcurrencyDecl is ConcurrencyPolicy's YAML shape.
type ConcurrencyDecl struct {
	Limit  int  `yaml:"limit"`
	Global bool `yaml:"global"`
}

// NamespaceDecl declares one namespace's settings override plus its
// endpoints.
type NamespaceDecl struct {
	Settings  SettingsDeclaration        `yaml:"settings"`
	Endpoints map[string]EndpointDecl    `yaml:"endpoints"`
}

// EndpointDecl declares one endpoint's template plus its settings override.
type EndpointDecl struct {
	Template string              `yaml:"template"`
	Settings SettingsDeclaration `yaml:"settings"`
}

// LoadDeclaration parses a Declaration from YAML bytes.
func LoadDeclaration(data []byte) (*Declaration, error) {
	var decl Declaration
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, fmt.Errorf("gracy: parse declaration: %w", err)
	}
	return &decl, nil
}

// LoadDeclarationFile reads and parses a Declaration from path.
func LoadDeclarationFile(path string) (*Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gracy: read declaration: %w", err)
	}
	return LoadDeclaration(data)
}

// toGracyConfig converts the YAML-friendly SettingsDeclaration into a
// GracyConfig. Fields absent from the declaration stay optional.None, so
// Merge still inherits them from whatever layer this config gets applied
// onto.
func (s SettingsDeclaration) toGracyConfig(logger logging.Logger) GracyConfig {
	var cfg GracyConfig

	if len(s.StrictStatusCode) > 0 {
		cfg.StrictStatusCode = optional.Of(NewStatusSet(s.StrictStatusCode...))
	}
	if len(s.AllowedStatusCode) > 0 {
		cfg.AllowedStatusCode = optional.Of(NewStatusSet(s.AllowedStatusCode...))
	}
	if s.Retry != nil {
		cfg.Retry = optional.Of(s.Retry.toRetryPolicy())
	}
	if len(s.Throttling) > 0 {
		rules := make([]ThrottleRule, 0, len(s.Throttling))
		for _, t := range s.Throttling {
			rule, err := t.toThrottleRule()
			if err != nil {
				logger.Warn("skipping invalid throttle rule", "name", t.Name, "error", err)
				continue
			}
			rules = append(rules, rule)
		}
		cfg.Throttling = optional.Of(rules)
	}
	if s.ConcurrentRequests != nil {
		cfg.ConcurrentRequests = optional.Of(ConcurrencyPolicy{
			Limit:  s.ConcurrentRequests.Limit,
			Global: s.ConcurrentRequests.Global,
		})
	}

	return cfg
}

func (r RetryDecl) toRetryPolicy() RetryPolicy {
	behavior := RetryBreak
	if r.Behavior == "pass" {
		behavior = RetryPass
	}
	return RetryPolicy{
		BaseDelay:     r.BaseDelay,
		MaxAttempts:   r.MaxAttempts,
		DelayModifier: r.DelayModifier,
		Behavior:      behavior,
	}
}

func (t ThrottleDecl) toThrottleRule() (ThrottleRule, error) {
	pattern, err := compileThrottlePattern(t.Pattern)
	if err != nil {
		return ThrottleRule{}, err
	}
	return ThrottleRule{
		Name:        t.Name,
		URLPattern:  pattern,
		MaxRequests: t.MaxRequests,
		PerTime:     t.PerTime,
	}, nil
}

// Build materializes this Declaration into a ready-to-use ClientRoot,
// registering every declared namespace and endpoint with its merged
// config.
func (d *Declaration) Build(logger logging.Logger, opts ...Option) (*ClientRoot, error) {
	if logger == nil {
		logger = logging.NoopLogger{}
	}

	rootConfig := d.Settings.toGracyConfig(logger)
	allOpts := append([]Option{WithRootConfig(rootConfig), WithLogger(logger)}, opts...)
	client := New(d.BaseURL, allOpts...)

	for nsName, nsDecl := range d.Namespaces {
		ns := client.Namespace(nsName, nsDecl.Settings.toGracyConfig(logger))
		for epName, epDecl := range nsDecl.Endpoints {
			if epDecl.Template == "" {
				return nil, fmt.Errorf("gracy: endpoint %q.%q missing template", nsName, epName)
			}
			ns.Endpoint(epName, epDecl.Template, epDecl.Settings.toGracyConfig(logger))
		}
	}

	return client, nil
}
