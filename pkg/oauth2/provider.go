package oauth2

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/StricklySoft/stricklysoft-oidc/pkg/cache"
	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// cacheKey is the single entry of a provider's cache.
const cacheKey = "client_credentials"

// ClientCredentialsSource issues client credentials tokens.
// [*TokenEndpoint] is the production implementation.
type ClientCredentialsSource interface {
	ClientCredentials(ctx context.Context) (*Token, error)
}

var _ ClientCredentialsSource = (*TokenEndpoint)(nil)

// ClientCredentialsSourceFunc adapts a function to [ClientCredentialsSource].
type ClientCredentialsSourceFunc func(ctx context.Context) (*Token, error)

// ClientCredentials calls f(ctx).
func (f ClientCredentialsSourceFunc) ClientCredentials(ctx context.Context) (*Token, error) {
	return f(ctx)
}

// AccessTokenSource returns an access token to present on outbound calls.
type AccessTokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// ClientTokenProvider caches the client credentials token of one client.
// A cached token is returned until its TTL elapses, after which the next
// call fetches a new one. Concurrent fetches are coalesced, a caller whose
// context ends stops waiting without failing the others, and failures are
// never cached.
//
// The TTL is independent of the token's own expiry and should be shorter.
type ClientTokenProvider struct {
	source ClientCredentialsSource
	tokens *cache.Cache[string]
	group  singleflight.Group
	tracer trace.Tracer
	logger *slog.Logger
}

var _ AccessTokenSource = (*ClientTokenProvider)(nil)

// NewClientTokenProvider creates a provider fetching tokens from the
// endpoint in cfg and caching them for cfg.CacheTTL.
func NewClientTokenProvider(cfg ClientCredentialsConfig, opts ...Option) (*ClientTokenProvider, error) {
	endpoint, err := NewTokenEndpoint(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return NewCachedClientTokenProvider(endpoint, cfg.CacheTTL, opts...)
}

// NewCachedClientTokenProvider caches tokens from source for ttl. A zero
// ttl disables reuse: every call fetches, although concurrent calls still
// share one fetch.
func NewCachedClientTokenProvider(source ClientCredentialsSource, ttl time.Duration, opts ...Option) (*ClientTokenProvider, error) {
	if source == nil {
		return nil, sserr.Configuration("oauth2: client credentials source must not be nil")
	}
	if ttl < 0 {
		return nil, sserr.Configurationf("oauth2: cache-ttl must not be negative, got %s", ttl)
	}
	o := buildOptions(opts)
	p := &ClientTokenProvider{
		source: source,
		tracer: o.tracer,
		logger: o.logger,
	}
	if ttl > 0 {
		p.tokens = cache.New[string](ttl, cache.WithClock(o.now))
	}
	return p, nil
}

// AccessToken returns the cached token or fetches a new one. Fetch
// failures carry [sserr.CodeAuthenticationToken] and leave the cache
// empty.
func (p *ClientTokenProvider) AccessToken(ctx context.Context) (string, error) {
	ctx, span := p.tracer.Start(ctx, "oauth2.ClientToken")
	defer span.End()

	if tok, ok := p.cached(); ok {
		span.SetAttributes(attribute.Bool("oauth2.cache_hit", true))
		return tok, nil
	}
	span.SetAttributes(attribute.Bool("oauth2.cache_hit", false))

	// Callers share one fetch that outlives any single caller's
	// cancellation; each caller waits only as long as its own ctx.
	fetchCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(cacheKey, func() (any, error) {
		if tok, ok := p.cached(); ok {
			return tok, nil
		}
		tok, err := p.source.ClientCredentials(fetchCtx)
		if err != nil {
			return "", err
		}
		if tok == nil || tok.AccessToken == "" {
			return "", sserr.New(sserr.CodeAuthenticationToken, "oauth2: token response has no access token")
		}
		if p.tokens != nil {
			p.tokens.Set(cacheKey, tok.AccessToken)
		}
		return tok.AccessToken, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		res.Err = ctx.Err()
	case res = <-ch:
	}
	if err := res.Err; err != nil {
		if _, ok := sserr.AsError(err); !ok {
			err = sserr.Wrap(err, sserr.CodeAuthenticationToken, "oauth2: client token fetch failed")
		}
		finishSpan(span, err)
		return "", err
	}
	if res.Shared {
		p.logger.DebugContext(ctx, "oauth2: client token fetch shared between callers")
	}
	return res.Val.(string), nil
}

// Invalidate drops the cached token, for example after a downstream
// service rejected it.
func (p *ClientTokenProvider) Invalidate() {
	if p.tokens != nil {
		p.tokens.Delete(cacheKey)
	}
}

func (p *ClientTokenProvider) cached() (string, bool) {
	if p.tokens == nil {
		return "", false
	}
	return p.tokens.Get(cacheKey)
}
