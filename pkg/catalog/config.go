package catalog

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/httpclient"
)

// AuthProvider supplies the bearer token attached to requests. A zero-value
// expiry means the token does not expire (or its expiry is unknown).
type AuthProvider interface {
	Token() string
	TokenExpiry() time.Time
}

// StaticTokenProvider is an AuthProvider for a fixed token. When the token is
// a JWT, its exp claim is read (without signature verification; the client is
// not the token's audience) so an expired token can be dropped from requests.
type StaticTokenProvider struct {
	token  string
	expiry time.Time
}

// NewStaticTokenProvider creates a provider for the given token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	p := &StaticTokenProvider{token: token}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		p.expiry = claims.ExpiresAt.Time
	}
	return p
}

// Token returns the configured token.
func (p *StaticTokenProvider) Token() string {
	return p.token
}

// TokenExpiry returns the token's exp claim, or zero for opaque tokens.
func (p *StaticTokenProvider) TokenExpiry() time.Time {
	return p.expiry
}

// Config configures a Client. BaseURL is the only required field; everything
// else has a safe default. The default retry policy performs no retries so
// failure semantics stay deterministic.
type Config struct {
	// BaseURL is the root URL of the catalog service.
	BaseURL string `validate:"required,url"`

	// Auth optionally supplies bearer tokens for authenticated operations.
	Auth AuthProvider

	// Retry opts in to retrying transient failures. Zero value: no retry.
	Retry httpclient.RetryPolicy

	// Timeout bounds each request. Zero value: transport default.
	Timeout time.Duration

	// MetadataStaleTime is how long slow-changing metadata (datasets,
	// properties, dictionaries) is served from cache. Default five minutes.
	// Job-status reads always use a zero stale time regardless of this
	// setting; the two defaults are intentionally different.
	MetadataStaleTime time.Duration

	// Logger overrides the client's component logger.
	Logger *zerolog.Logger

	// Transport overrides the HTTP transport. Used by tests.
	Transport http.RoundTripper

	// DisableCertValidation skips TLS verification. Development only.
	DisableCertValidation bool
}

const defaultMetadataStaleTime = 5 * time.Minute

var validate = validator.New()

// Validate checks the configuration before a client is constructed.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return ErrValidation.MsgErr("invalid client configuration", err)
	}
	return nil
}

// configurator adapts Config to the transport's Configurator interface.
type configurator struct {
	cfg Config
}

func (c configurator) GetBaseURL() string {
	return c.cfg.BaseURL
}

func (c configurator) GetToken() string {
	if c.cfg.Auth == nil {
		return ""
	}
	return c.cfg.Auth.Token()
}

func (c configurator) GetTokenExpiry() time.Time {
	if c.cfg.Auth == nil {
		return time.Time{}
	}
	return c.cfg.Auth.TokenExpiry()
}
