// Package oauth2 obtains access tokens from an OAuth2 token endpoint for
// calls this service makes on its own behalf.
//
// [TokenEndpoint] performs the client credentials, authorization code and
// refresh token grants with HTTP Basic client authentication.
// [ClientTokenProvider] caches the client credentials token for a fixed
// time-to-live so that outbound calls do not each hit the identity
// provider. [Transport] and [PerRPCCredentials] attach the cached token to
// outbound HTTP requests and gRPC calls.
//
// # Usage
//
//	cfg := oauth2.DefaultClientCredentialsConfig()
//	cfg.TokenEndpoint = "https://idp.example.com/oauth2/token"
//	cfg.ClientID = "case-service"
//	cfg.ClientSecret = oauth2.Secret(os.Getenv("CLIENT_SECRET"))
//
//	provider, err := oauth2.NewClientTokenProvider(*cfg)
//	if err != nil {
//	    return err
//	}
//	client := &http.Client{Transport: oauth2.NewTransport(provider, nil)}
package oauth2

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this
// package.
const tracerName = "github.com/StricklySoft/stricklysoft-oidc/pkg/oauth2"

// DefaultCacheTTL is how long a client credentials token is reused.
const DefaultCacheTTL = 60 * time.Second

// Secret is a string that redacts itself when printed or serialized. Use
// [Secret.Value] to read the real value.
type Secret string

const redacted = "[REDACTED]"

// String returns "[REDACTED]".
func (s Secret) String() string {
	return redacted
}

// GoString returns "[REDACTED]" so %#v does not leak the value.
func (s Secret) GoString() string {
	return redacted
}

// Value returns the actual secret string.
func (s Secret) Value() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler, returning "[REDACTED]".
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// ClientCredentialsConfig identifies this service to the token endpoint.
type ClientCredentialsConfig struct {
	// TokenEndpoint is the URL of the OAuth2 token endpoint.
	TokenEndpoint string `json:"token-endpoint" yaml:"token-endpoint" env:"TOKEN_ENDPOINT" required:"true"`

	ClientID string `json:"client-id" yaml:"client-id" env:"CLIENT_ID" required:"true"`

	ClientSecret Secret `json:"client-secret" yaml:"client-secret" env:"CLIENT_SECRET"`

	// Scopes are requested with the client credentials grant.
	Scopes []string `json:"scopes,omitempty" yaml:"scopes,omitempty" env:"SCOPES"`

	// CacheTTL is how long an issued token is reused. Zero disables reuse.
	CacheTTL time.Duration `json:"cache-ttl" yaml:"cache-ttl" env:"CACHE_TTL" envDefault:"60s"`
}

// DefaultClientCredentialsConfig returns a config with the default cache
// TTL and no client.
func DefaultClientCredentialsConfig() *ClientCredentialsConfig {
	return &ClientCredentialsConfig{CacheTTL: DefaultCacheTTL}
}

// Validate checks the config. It does not apply defaults: a zero CacheTTL
// is meaningful.
func (c *ClientCredentialsConfig) Validate() error {
	if c.TokenEndpoint == "" {
		return sserr.New(sserr.CodeValidationRequired, `oauth2: configuration property "token-endpoint" is required`)
	}
	u, err := url.Parse(c.TokenEndpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return sserr.New(sserr.CodeValidationFormat, `oauth2: configuration property "token-endpoint" must be an absolute URL`)
	}
	if c.ClientID == "" {
		return sserr.New(sserr.CodeValidationRequired, `oauth2: configuration property "client-id" is required`)
	}
	if c.CacheTTL < 0 {
		return sserr.Configurationf("oauth2: cache-ttl must not be negative, got %s", c.CacheTTL)
	}
	return nil
}

// Option configures the components in this package.
type Option func(*options)

type options struct {
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time
}

func buildOptions(opts []Option) options {
	o := options{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tracer:     otel.Tracer(tracerName),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHTTPClient sets the client used to call the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTracerProvider sets the provider used to create spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets the logger. Tokens and secrets are never logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
