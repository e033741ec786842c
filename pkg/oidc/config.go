package oidc

import (
	"context"
	"io"
	"net/http"
	"slices"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"

	"github.com/StricklySoft/stricklysoft-oidc/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
	"github.com/StricklySoft/stricklysoft-oidc/pkg/jwks"
	"github.com/StricklySoft/stricklysoft-oidc/pkg/token"
)

// DefaultKeyCacheTTL is how long resolved signing keys are reused.
const DefaultKeyCacheTTL = jwks.DefaultCacheTTL

var _ HealthChecker = (*redis.Client)(nil)

// Config configures a resource server guard. Env tags are relative; load
// it with a prefix such as "OIDC" so that JWKSetURI reads OIDC_JWK_SET_URI.
type Config struct {
	// Issuer is the identity provider's issuer URL. When set, endpoints
	// left empty are discovered from its OpenID configuration and tokens
	// must carry a matching iss claim.
	Issuer string `json:"issuer,omitempty" yaml:"issuer,omitempty" env:"ISSUER"`

	// JWKSetURI is the URL of the published signing key set.
	JWKSetURI string `json:"jwk-set-uri" yaml:"jwk-set-uri" env:"JWK_SET_URI"`

	// UserInfoURI is the URL of the user-info endpoint.
	UserInfoURI string `json:"user-info-uri" yaml:"user-info-uri" env:"USER_INFO_URI"`

	// OpenIDScope is the scope that marks a token as issued to a user.
	OpenIDScope string `json:"openid-scope" yaml:"openid-scope" env:"OPENID_SCOPE" envDefault:"openid"`

	Claims ClaimsConfig `json:"claims" yaml:"claims" env:"CLAIMS"`

	// KeyCacheTTL is how long a resolved signing key is reused.
	KeyCacheTTL time.Duration `json:"key-cache-ttl" yaml:"key-cache-ttl" env:"KEY_CACHE_TTL" envDefault:"5m"`

	// AllowedAlgorithms restricts token signature algorithms. Empty means
	// [token.DefaultAlgorithms].
	AllowedAlgorithms []string `json:"allowed-algorithms,omitempty" yaml:"allowed-algorithms,omitempty" env:"ALLOWED_ALGORITHMS"`

	// ClockSkew is tolerated when checking exp and nbf.
	ClockSkew time.Duration `json:"clock-skew,omitempty" yaml:"clock-skew,omitempty" env:"CLOCK_SKEW"`

	// AccessTokenHeader is the header carrying the bearer token.
	AccessTokenHeader string `json:"access-token-header" yaml:"access-token-header" env:"ACCESS_TOKEN_HEADER" envDefault:"Authorization"`

	// AccessTokenCookie, when set, is read if the header carries no token.
	AccessTokenCookie string `json:"access-token-cookie,omitempty" yaml:"access-token-cookie,omitempty" env:"ACCESS_TOKEN_COOKIE"`

	// Redis configures the key store shared between replicas.
	Redis redis.Config `json:"redis" yaml:"redis" env:"REDIS"`
}

// DefaultConfig returns a Config with every default applied and no
// endpoints.
func DefaultConfig() *Config {
	return &Config{
		OpenIDScope:       DefaultOpenIDScope,
		Claims:            ClaimsConfig{Names: DefaultClaimNames()},
		KeyCacheTTL:       DefaultKeyCacheTTL,
		AccessTokenHeader: DefaultAccessTokenHeader,
		Redis:             *redis.DefaultConfig(),
	}
}

// Validate applies defaults to zero-valued fields and checks the rest.
// Endpoints may only be omitted when Issuer is set.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.Issuer != "" {
		if err := requireAbsoluteURL("issuer", c.Issuer); err != nil {
			return err
		}
	}
	for _, ep := range []struct{ name, value string }{
		{"jwk-set-uri", c.JWKSetURI},
		{"user-info-uri", c.UserInfoURI},
	} {
		if ep.value == "" && c.Issuer != "" {
			continue
		}
		if err := requireAbsoluteURL(ep.name, ep.value); err != nil {
			return err
		}
	}

	if err := c.Claims.Validate(); err != nil {
		return err
	}
	if c.KeyCacheTTL < 0 {
		return sserr.Configurationf("oidc: key-cache-ttl must not be negative, got %s", c.KeyCacheTTL)
	}
	if c.ClockSkew < 0 {
		return sserr.Configurationf("oidc: clock-skew must not be negative, got %s", c.ClockSkew)
	}
	if slices.Contains(c.AllowedAlgorithms, "none") {
		return sserr.Configuration(`oidc: allowed-algorithms must not contain "none"`)
	}
	if c.Redis.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeInternalConfiguration, "oidc: invalid redis configuration")
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.OpenIDScope == "" {
		c.OpenIDScope = DefaultOpenIDScope
	}
	defaults := DefaultClaimNames()
	names := &c.Claims.Names
	if names.Sub == "" {
		names.Sub = defaults.Sub
	}
	if names.Name == "" {
		names.Name = defaults.Name
	}
	if names.Email == "" {
		names.Email = defaults.Email
	}
	if names.Roles == "" {
		names.Roles = defaults.Roles
	}
	if names.Organisations == "" {
		names.Organisations = defaults.Organisations
	}
	if c.KeyCacheTTL == 0 {
		c.KeyCacheTTL = DefaultKeyCacheTTL
	}
	if c.AccessTokenHeader == "" {
		c.AccessTokenHeader = DefaultAccessTokenHeader
	}
}

// Discover fills JWKSetURI and UserInfoURI, where empty, from the
// issuer's OpenID configuration document.
func (c *Config) Discover(ctx context.Context, opts ...Option) error {
	if c.Issuer == "" {
		return sserr.New(sserr.CodeValidationRequired, `oidc: configuration property "issuer" is required for discovery`)
	}
	o := buildOptions(opts)
	if hc, ok := o.httpClient.(*http.Client); ok {
		ctx = gooidc.ClientContext(ctx, hc)
	}

	provider, err := gooidc.NewProvider(ctx, c.Issuer)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "oidc: discovery failed for issuer %q", c.Issuer)
	}
	var discovery struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&discovery); err != nil {
		return sserr.Wrap(err, sserr.CodeInternalConfiguration, "oidc: failed to decode discovery document")
	}

	if c.JWKSetURI == "" {
		c.JWKSetURI = discovery.JWKSURI
	}
	if c.UserInfoURI == "" {
		c.UserInfoURI = provider.UserInfoEndpoint()
	}
	o.logger.DebugContext(ctx, "oidc: discovered provider endpoints",
		"issuer", c.Issuer,
		"jwk_set_uri", c.JWKSetURI,
		"user_info_uri", c.UserInfoURI,
	)
	return nil
}

// WithKeyStore shares resolved signing keys between replicas through
// store. It takes precedence over Config.Redis.
func WithKeyStore(store jwks.KeyStore) Option {
	return func(o *options) {
		o.keyStore = store
	}
}

// NewResourceServerGuard builds a complete guard from cfg:
//
//   - tokens are read from the configured header, then the cookie if set
//   - signing keys come from the key set at JWKSetURI, cached in process
//     for KeyCacheTTL and, when a key store is configured, shared through
//     it
//   - tokens carrying the OpenID scope are resolved against UserInfoURI
//
// Configuration problems, including failed discovery, are reported here
// and never per request. When Config.Redis is enabled the guard owns the
// Redis client and [Guard.Close] releases it.
func NewResourceServerGuard(ctx context.Context, cfg Config, opts ...Option) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Issuer != "" && (cfg.JWKSetURI == "" || cfg.UserInfoURI == "") {
		if err := cfg.Discover(ctx, opts...); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	o := buildOptions(opts)
	jwksOpts := []jwks.Option{
		jwks.WithHTTPClient(o.httpClient),
		jwks.WithTracerProvider(o.tp),
		jwks.WithLogger(o.logger),
		jwks.WithCacheTTL(cfg.KeyCacheTTL),
		jwks.WithClock(o.now),
	}

	remote, err := jwks.NewRemoteKeySupplier(cfg.JWKSetURI, jwksOpts...)
	if err != nil {
		return nil, err
	}
	var keys jwks.KeySupplier = remote

	var closers []io.Closer
	store, prefix := o.keyStore, cfg.Redis.KeyPrefix
	if store == nil && cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		store, prefix = client, client.KeyPrefix()
		closers = append(closers, client)
	}
	var checks []func(context.Context) error
	if store != nil {
		keys = jwks.NewSharedKeySupplier(keys, store, prefix, jwksOpts...)
		if hc, ok := store.(HealthChecker); ok {
			checks = append(checks, hc.Health)
		}
	}
	keys = jwks.NewCachedKeySupplier(keys, jwksOpts...)

	verifierOpts := []token.Option{
		token.WithAlgorithms(cfg.AllowedAlgorithms...),
		token.WithLeeway(cfg.ClockSkew),
		token.WithClock(o.now),
		token.WithTracerProvider(o.tp),
		token.WithLogger(o.logger),
	}
	if cfg.Issuer != "" {
		verifierOpts = append(verifierOpts, token.WithIssuer(cfg.Issuer))
	}
	verifier, err := token.NewVerifier(keys, verifierOpts...)
	if err != nil {
		return nil, closeAll(closers, err)
	}

	retriever, err := NewHTTPUserInfoRetriever(cfg.UserInfoURI, opts...)
	if err != nil {
		return nil, closeAll(closers, err)
	}
	users, err := NewUserInfoClaimsSupplier(retriever, cfg.Claims)
	if err != nil {
		return nil, closeAll(closers, err)
	}
	resolver, err := NewResolver(verifier, users, append(slices.Clone(opts), WithOpenIDScope(cfg.OpenIDScope))...)
	if err != nil {
		return nil, closeAll(closers, err)
	}

	var tokens AccessTokenSupplier = HeaderTokenSupplier{Name: cfg.AccessTokenHeader}
	if cfg.AccessTokenCookie != "" {
		tokens = FirstTokenSupplier(tokens, CookieTokenSupplier{Name: cfg.AccessTokenCookie})
	}

	guard, err := NewGuard(tokens, resolver, opts...)
	if err != nil {
		return nil, closeAll(closers, err)
	}
	guard.closers = closers
	guard.checks = checks
	return guard, nil
}

func closeAll(closers []io.Closer, err error) error {
	for _, c := range closers {
		_ = c.Close()
	}
	return err
}
