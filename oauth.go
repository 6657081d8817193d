package gracy

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// HeaderProvider injects headers onto every outgoing request, e.g. a
// bearer token. It runs once per attempt, right before dispatch.
type HeaderProvider func(ctx context.Context) (map[string]string, error)

// OAuth2HeaderProvider returns a HeaderProvider that keeps an OAuth2 bearer
// token fresh via ts, refreshing it transparently on expiry.
func OAuth2HeaderProvider(ts oauth2.TokenSource) HeaderProvider {
	reuse := oauth2.ReuseTokenSource(nil, ts)
	return func(ctx context.Context) (map[string]string, error) {
		tok, err := reuse.Token()
		if err != nil {
			return nil, fmt.Errorf("oauth2 token refresh failed: %w", err)
		}
		return map[string]string{
			"Authorization": tok.Type() + " " + tok.AccessToken,
		}, nil
	}
}
