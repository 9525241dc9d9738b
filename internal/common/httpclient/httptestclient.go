package httpclient

import (
	"net/http"
	"time"
)

// RoundTripFunc adapts a function to http.RoundTripper so tests can serve
// canned responses without a network listener.
type RoundTripFunc func(req *http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// TestConfig is a minimal Configurator for tests.
type TestConfig struct {
	BaseURL     string
	Token       string
	TokenExpiry time.Time
}

// GetBaseURL returns the configured base URL.
func (c TestConfig) GetBaseURL() string {
	return c.BaseURL
}

// GetToken returns the configured token.
func (c TestConfig) GetToken() string {
	return c.Token
}

// GetTokenExpiry returns the configured token expiry.
func (c TestConfig) GetTokenExpiry() time.Time {
	return c.TokenExpiry
}
