package jwks

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/StricklySoft/stricklysoft-oidc/pkg/cache"
)

// CachedKeySupplier caches keys resolved by another supplier under their
// kid. A hit never reaches the wrapped supplier; a miss calls it once and
// stores the result for the configured TTL. Concurrent misses for the same
// kid share a single call to the wrapped supplier, made without any one
// caller's cancellation; a caller whose context ends stops waiting and gets
// its context error. Failures are not cached.
//
// CachedKeySupplier is safe for concurrent use.
type CachedKeySupplier struct {
	next   KeySupplier
	keys   *cache.Cache[any]
	group  singleflight.Group
	logger *slog.Logger
}

var _ KeySupplier = (*CachedKeySupplier)(nil)

// NewCachedKeySupplier wraps next with a key cache. The TTL defaults to
// [DefaultCacheTTL]; see [WithCacheTTL] and [WithClock].
func NewCachedKeySupplier(next KeySupplier, opts ...Option) *CachedKeySupplier {
	o := buildOptions(opts)
	return &CachedKeySupplier{
		next:   next,
		keys:   cache.New[any](o.ttl, cache.WithClock(o.now)),
		logger: o.logger,
	}
}

// TTL returns how long resolved keys are cached.
func (s *CachedKeySupplier) TTL() time.Duration {
	return s.keys.TTL()
}

// Key returns the cached key for header.KeyID or resolves it through the
// wrapped supplier.
func (s *CachedKeySupplier) Key(ctx context.Context, header Header) (any, error) {
	if key, ok := s.keys.Get(header.KeyID); ok {
		return key, nil
	}

	// The shared fetch must not inherit one caller's cancellation; each
	// caller stops waiting when its own context is done.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(header.KeyID, func() (any, error) {
		// A concurrent caller may have filled the cache while we waited.
		if key, ok := s.keys.Get(header.KeyID); ok {
			return key, nil
		}
		key, err := s.next.Key(fetchCtx, header)
		if err != nil {
			return nil, err
		}
		return s.keys.Set(header.KeyID, key), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.DebugContext(ctx, "jwks: coalesced key resolution", "kid", header.KeyID)
		}
		return res.Val, nil
	}
}

// Invalidate drops the cached key for kid so the next resolution consults
// the wrapped supplier.
func (s *CachedKeySupplier) Invalidate(kid string) {
	s.keys.Delete(kid)
}
