// Package testutil provides httptest.Server builders shared across the
// transport/pipeline test suites.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// NewServer starts an httptest.Server running handler and registers its
// Close with t.Cleanup.
func NewServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

// JSONHandler returns a handler that always answers with statusCode and body,
// tagged as application/json.
func JSONHandler(statusCode int, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		w.Write(body)
	}
}

// SequenceHandler answers with a different status/body pair on each
// request in order, repeating the last one once exhausted. Used to
// exercise retry behavior against a real HTTP server.
func SequenceHandler(steps ...struct {
	Status int
	Body   []byte
}) http.HandlerFunc {
	i := 0
	return func(w http.ResponseWriter, r *http.Request) {
		step := steps[i]
		if i < len(steps)-1 {
			i++
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(step.Status)
		w.Write(step.Body)
	}
}
