package gracy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/guilatrova/gracy/internal/errutil"
)

// Transport is the swappable collaborator that actually moves bytes: the
// core never touches connection pooling, TLS, or HTTP/1.1-vs-2
// negotiation, it only needs something that can send a request and hand
// back a response.
type Transport interface {
	Send(ctx context.Context, req TransportRequest) (*Response, error)
}

// TransportRequest is the fully-resolved request a Transport executes.
type TransportRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Query   url.Values
	Body    []byte
	Timeout time.Duration
}

// Response is a captured HTTP response: status, headers, and a body that
// has already been read into memory so it can be inspected repeatedly (by
// validators, parsers, hooks, and the replay recorder) without consuming a
// stream exactly once.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Text returns the response body decoded as UTF-8 text.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// JSON decodes the response body into v.
func (r *Response) JSON(v interface{}) error {
	if r == nil {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// httpTransport adapts a *http.Client into a Transport. It performs no
// retries or rate limiting of its own — those concerns belong to the
// RequestPipeline, never to the transport.
type httpTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps client (or http.DefaultClient if nil) as a Transport.
func NewHTTPTransport(client *http.Client) Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpTransport{client: client}
}

func (t *httpTransport) Send(ctx context.Context, req TransportRequest) (*Response, error) {
	fullURL := req.URL
	if len(req.Query) > 0 {
		u, err := url.Parse(req.URL)
		if err != nil {
			return nil, errutil.Transport(req.Method, "", req.URL, err)
		}
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		fullURL = u.String()
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, errutil.Transport(req.Method, "", fullURL, err)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errutil.Timeout(req.Method, "", fullURL, err)
		}
		if ctx.Err() == context.Canceled {
			return nil, errutil.Cancelled(req.Method, "", fullURL, err)
		}
		return nil, errutil.Transport(req.Method, "", fullURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errutil.Transport(req.Method, "", fullURL, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}
