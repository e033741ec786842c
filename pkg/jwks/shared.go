package jwks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/StricklySoft/stricklysoft-oidc/pkg/clients/redis"
)

// KeyStore is the remote store shared by every replica. [*redis.Client]
// satisfies it.
type KeyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

var _ KeyStore = (*redis.Client)(nil)

// SharedKeySupplier stores resolved keys as JWK JSON in a [KeyStore] so
// that replicas behind a load balancer resolve each kid against the key set
// once per TTL rather than once per replica. Only public keys are written
// or accepted from the store; symmetric and private keys always come from
// the wrapped supplier. The store is best effort: a store failure is logged
// and the wrapped supplier is used instead.
type SharedKeySupplier struct {
	next   KeySupplier
	store  KeyStore
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ KeySupplier = (*SharedKeySupplier)(nil)

// NewSharedKeySupplier wraps next with store. Keys are written under
// prefix+kid and expire after the TTL (default [DefaultCacheTTL]).
func NewSharedKeySupplier(next KeySupplier, store KeyStore, prefix string, opts ...Option) *SharedKeySupplier {
	o := buildOptions(opts)
	ttl := o.ttl
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SharedKeySupplier{
		next:   next,
		store:  store,
		prefix: prefix,
		ttl:    ttl,
		logger: o.logger,
	}
}

// Key returns the stored key for header.KeyID or resolves it through the
// wrapped supplier and stores it.
func (s *SharedKeySupplier) Key(ctx context.Context, header Header) (any, error) {
	storeKey := s.prefix + header.KeyID

	raw, err := s.store.Get(ctx, storeKey)
	switch {
	case err == nil:
		var jwk jose.JSONWebKey
		uerr := jwk.UnmarshalJSON([]byte(raw))
		if uerr == nil && jwk.IsPublic() {
			return jwk.Key, nil
		}
		if uerr == nil {
			uerr = errors.New("shared key is not a public key")
		}
		s.logger.WarnContext(ctx, "jwks: discarding unusable shared key",
			"kid", header.KeyID,
			"error", uerr,
		)
	case errors.Is(err, redis.ErrNil):
	default:
		s.logger.WarnContext(ctx, "jwks: shared key store read failed",
			"kid", header.KeyID,
			"error", err,
		)
	}

	key, err := s.next.Key(ctx, header)
	if err != nil {
		return nil, err
	}

	jwk := jose.JSONWebKey{Key: key, KeyID: header.KeyID, Algorithm: header.Algorithm}
	if !jwk.IsPublic() {
		s.logger.DebugContext(ctx, "jwks: not sharing non-public key", "kid", header.KeyID)
		return key, nil
	}
	data, err := jwk.MarshalJSON()
	if err != nil {
		s.logger.WarnContext(ctx, "jwks: key cannot be encoded for the shared store",
			"kid", header.KeyID,
			"error", err,
		)
		return key, nil
	}
	if err := s.store.Set(ctx, storeKey, string(data), s.ttl); err != nil {
		s.logger.WarnContext(ctx, "jwks: shared key store write failed",
			"kid", header.KeyID,
			"error", err,
		)
	}
	return key, nil
}
