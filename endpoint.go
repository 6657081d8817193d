package gracy

import (
	"strings"
)

// Endpoint is a registered logical call: a URL template with named
// `{PLACEHOLDER}` slots plus whatever GracyConfig narrows behavior for
// calls through it.
type Endpoint struct {
	Template string
	Config   GracyConfig
}

// Namespace groups endpoints under a shared config layer, the middle tier
// of the client → namespace → endpoint inheritance chain.
type Namespace struct {
	config    GracyConfig
	endpoints map[string]Endpoint
}

func newNamespace(config GracyConfig) *Namespace {
	return &Namespace{config: config, endpoints: make(map[string]Endpoint)}
}

// Endpoint registers name under this namespace with the given template and
// per-endpoint config override, returning the namespace for chaining.
func (n *Namespace) Endpoint(name, template string, config GracyConfig) *Namespace {
	n.endpoints[name] = Endpoint{Template: template, Config: config}
	return n
}

// resolvedEndpoint is everything call needs once a dotted endpoint key has
// been looked up and its three config layers merged.
type resolvedEndpoint struct {
	unformattedEndpoint string
	template            string
	config              GracyConfig
}

// splitEndpointKey splits "namespace.endpoint" into its parts; a key with
// no dot addresses the client's root namespace directly.
func splitEndpointKey(key string) (namespace, name string) {
	if i := strings.IndexByte(key, '.'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// formatTemplate substitutes every `{NAME}` placeholder in template with
// its value from substitutions, leaving unmatched placeholders untouched
// so a caller's mistake surfaces as a literal in the resulting URL rather
// than as a panic.
func formatTemplate(template string, substitutions map[string]string) string {
	out := template
	for k, v := range substitutions {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
