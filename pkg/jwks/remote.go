package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-jose/go-jose/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// RemoteKeySupplier downloads a JSON Web Key Set on every call and selects
// the key named by the token header. It performs no caching; wrap it in a
// [CachedKeySupplier].
//
// RemoteKeySupplier is safe for concurrent use.
type RemoteKeySupplier struct {
	url    string
	client HTTPClient
	tracer trace.Tracer
	logger *slog.Logger
}

var _ KeySupplier = (*RemoteKeySupplier)(nil)

// NewRemoteKeySupplier creates a supplier for the key set published at
// jwksURL. The URL must be absolute.
func NewRemoteKeySupplier(jwksURL string, opts ...Option) (*RemoteKeySupplier, error) {
	if jwksURL == "" {
		return nil, sserr.Configuration("jwks: key set URL must not be empty")
	}
	u, err := url.Parse(jwksURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, sserr.Configurationf("jwks: key set URL %q is not an absolute URL", jwksURL)
	}

	o := buildOptions(opts)
	return &RemoteKeySupplier{
		url:    jwksURL,
		client: o.httpClient,
		tracer: o.tracer,
		logger: o.logger,
	}, nil
}

// URL returns the key set location.
func (s *RemoteKeySupplier) URL() string {
	return s.url
}

// Key fetches the key set and returns the verification key for header.
func (s *RemoteKeySupplier) Key(ctx context.Context, header Header) (any, error) {
	jwk, err := s.JSONWebKey(ctx, header)
	if err != nil {
		return nil, err
	}
	return jwk.Key, nil
}

// JSONWebKey fetches the key set and returns the matching key in its JWK
// form. When header has no kid the set must contain exactly one signing key.
func (s *RemoteKeySupplier) JSONWebKey(ctx context.Context, header Header) (*jose.JSONWebKey, error) {
	keys, err := s.Fetch(ctx)
	if err != nil {
		return nil, sserr.KeyResolution(err, header.KeyID)
	}

	if header.KeyID == "" {
		if len(keys) == 1 {
			return &keys[0], nil
		}
		return nil, sserr.KeyResolution(
			fmt.Errorf("jwks: token has no kid and key set holds %d keys", len(keys)), "")
	}

	for i := range keys {
		if keys[i].KeyID == header.KeyID {
			return &keys[i], nil
		}
	}
	return nil, sserr.KeyResolution(
		fmt.Errorf("jwks: key ID %q not found in key set", header.KeyID), header.KeyID)
}

// Fetch downloads and decodes the key set. Keys that cannot be decoded, are
// not public or symmetric verification keys, or are marked for encryption
// are skipped individually; one malformed entry does not invalidate the rest.
func (s *RemoteKeySupplier) Fetch(ctx context.Context) ([]jose.JSONWebKey, error) {
	ctx, span := s.tracer.Start(ctx, "jwks.Fetch",
		trace.WithAttributes(attribute.String("jwks.url", s.url)))
	defer span.End()

	keys, err := s.fetch(ctx)
	if err != nil {
		finishSpan(span, err)
		s.logger.WarnContext(ctx, "jwks: key set fetch failed",
			"url", s.url,
			"error", err,
		)
		return nil, err
	}
	span.SetAttributes(attribute.Int("jwks.keys", len(keys)))
	return keys, nil
}

func (s *RemoteKeySupplier) fetch(ctx context.Context) ([]jose.JSONWebKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to create key set request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks: key set request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks: key set endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to read key set response: %w", err)
	}

	return s.decode(ctx, body)
}

// rawKeySet defers decoding of each key so a single bad entry can be
// skipped.
type rawKeySet struct {
	Keys []json.RawMessage `json:"keys"`
}

func (s *RemoteKeySupplier) decode(ctx context.Context, body []byte) ([]jose.JSONWebKey, error) {
	var raw rawKeySet
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("jwks: failed to parse key set JSON: %w", err)
	}

	keys := make([]jose.JSONWebKey, 0, len(raw.Keys))
	for i, entry := range raw.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(entry); err != nil {
			s.logger.DebugContext(ctx, "jwks: skipping malformed key", "index", i, "error", err)
			continue
		}
		if jwk.Use == "enc" {
			continue
		}
		if !jwk.IsPublic() {
			if _, symmetric := jwk.Key.([]byte); !symmetric {
				// Private key published by mistake; verify with its public half.
				pub := jwk.Public()
				if !pub.Valid() {
					continue
				}
				jwk = pub
			}
		}
		keys = append(keys, jwk)
	}
	return keys, nil
}
