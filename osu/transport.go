package osu

import (
	"fmt"
	"net/http"
)

// authTransport is an http.RoundTripper that authenticates API requests with
// a bearer token from a TokenProvider.
type authTransport struct {
	base      http.RoundTripper
	tokens    TokenProvider
	userAgent string
}

// RoundTrip obtains a token for the request's context, attaches it, and
// delegates to the base transport. Token failures are reported as
// ErrCredentials.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokens.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}
