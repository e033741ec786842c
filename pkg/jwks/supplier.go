// Package jwks resolves the key that signed an access token.
//
// A [KeySupplier] turns a token header into key material suitable for
// signature verification. [RemoteKeySupplier] reads a published JSON Web Key
// Set over HTTP; [CachedKeySupplier] wraps any supplier with a per-kid
// time-to-live cache; [SharedKeySupplier] adds a Redis tier so replicas of
// a service share resolved keys.
//
// Every resolution failure is returned as a *[sserr.Error] with code
// [sserr.CodeAuthenticationKey]. Callers must propagate it: it is the reason
// a request is rejected with 401.
package jwks

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the OpenTelemetry instrumentation scope name for key
// resolution spans.
const tracerName = "github.com/StricklySoft/stricklysoft-oidc/pkg/jwks"

// DefaultCacheTTL is how long a resolved signing key is reused before the
// key set is consulted again.
const DefaultCacheTTL = 5 * time.Minute

// maxKeySetSize bounds the key set document read from the network (1 MB).
const maxKeySetSize = 1 << 20

// Header is the part of a token header needed to select a key.
type Header struct {
	// KeyID is the "kid" header. It may be empty when the key set holds a
	// single key.
	KeyID string

	// Algorithm is the "alg" header.
	Algorithm string
}

// KeySupplier resolves the verification key for a token header. The
// returned key is one of *rsa.PublicKey, *ecdsa.PublicKey,
// ed25519.PublicKey or []byte for symmetric algorithms.
type KeySupplier interface {
	Key(ctx context.Context, header Header) (any, error)
}

// KeySupplierFunc adapts a function to [KeySupplier].
type KeySupplierFunc func(ctx context.Context, header Header) (any, error)

// Key calls f(ctx, header).
func (f KeySupplierFunc) Key(ctx context.Context, header Header) (any, error) {
	return f(ctx, header)
}

// HTTPClient abstracts the client used to download key sets. The standard
// [http.Client] satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures the suppliers in this package.
type Option func(*options)

type options struct {
	httpClient HTTPClient
	tracer     trace.Tracer
	logger     *slog.Logger
	ttl        time.Duration
	now        func() time.Time
}

func defaultOptions() options {
	return options{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tracer:     otel.Tracer(tracerName),
		logger:     slog.Default(),
		ttl:        DefaultCacheTTL,
		now:        time.Now,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHTTPClient sets the client used to download the key set.
func WithHTTPClient(c HTTPClient) Option {
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

// WithLogger sets the logger. Key material is never logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCacheTTL sets how long a resolved key is cached. A zero or negative
// value selects the cache package default of 30 seconds.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
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

// finishSpan records err on span and marks it failed.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
