// Package replay implements a fingerprinted (request, response) exchange
// store: record mode captures exchanges, replay mode later substitutes one
// for a live HTTP dispatch.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by Store.Load when no exchange matches the
// fingerprint, or when the matching exchange was discarded because its
// status fell outside the caller's success set.
var ErrNotFound = errors.New("replay: no exchange found")

// Exchange is one captured (request fingerprint, response) pair.
type Exchange struct {
	Method          string
	URL             string
	RequestHeaders  http.Header
	RequestBody     []byte
	Status          int
	ResponseHeaders http.Header
	ResponseBody    []byte
	RecordedAt      time.Time

	// DiscardOnBadStatus marks this exchange as replayable only while its
	// Status is inside the caller's success set at load time.
	DiscardOnBadStatus bool
}

// Store is the backend collaborator: record every completed exchange in
// record mode, and substitute one for a live dispatch in replay mode.
type Store interface {
	Record(ctx context.Context, fp string, exchange Exchange) error
	// Load returns the stored exchange for fp. isSuccess reports whether a
	// given status is in the caller's effective success set, used to honor
	// DiscardOnBadStatus. ErrNotFound is returned both for a true miss and
	// for a discarded bad-status exchange.
	Load(ctx context.Context, fp string, isSuccess func(status int) bool) (*Exchange, error)
}

// HeaderAllowlist is the set of request headers that participate in a
// fingerprint; everything else (e.g. Authorization, User-Agent) is
// excluded so two functionally-identical requests made by different
// credentials still hit the same recorded exchange.
var HeaderAllowlist = map[string]struct{}{
	"Content-Type": {},
	"Accept":       {},
}

// Fingerprint canonicalizes (method, URL, sorted query, body hash, selected
// headers) into a stable key, stable across record/replay runs of the
// same logical request.
func Fingerprint(method, rawURL string, headers http.Header, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{0})

	u, err := url.Parse(rawURL)
	if err == nil {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		u.RawQuery = ""
		h.Write([]byte(u.String()))
		h.Write([]byte{0})
		for _, k := range keys {
			vs := q[k]
			sort.Strings(vs)
			h.Write([]byte(k))
			for _, v := range vs {
				h.Write([]byte{'='})
				h.Write([]byte(v))
			}
			h.Write([]byte{0})
		}
	} else {
		h.Write([]byte(rawURL))
		h.Write([]byte{0})
	}

	bodySum := sha256.Sum256(body)
	h.Write(bodySum[:])

	if headers != nil {
		names := make([]string, 0, len(headers))
		for name := range headers {
			if _, ok := HeaderAllowlist[http.CanonicalHeaderKey(name)]; ok {
				names = append(names, http.CanonicalHeaderKey(name))
			}
		}
		sort.Strings(names)
		for _, name := range names {
			h.Write([]byte(name))
			for _, v := range headers.Values(name) {
				h.Write([]byte{'='})
				h.Write([]byte(v))
			}
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
