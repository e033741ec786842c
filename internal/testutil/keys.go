package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// SigningKey is a key pair used to mint test tokens and publish the
// matching verification key.
type SigningKey struct {
	KID     string
	Method  jwt.SigningMethod
	Private any
	Public  any
}

var (
	rsaOnce sync.Once
	rsaKey  *rsa.PrivateKey
	rsaErr  error
)

// NewRSAKey returns an RS256 signing key identified by kid. The RSA key
// material is generated once per test binary and shared.
func NewRSAKey(t testing.TB, kid string) *SigningKey {
	t.Helper()
	rsaOnce.Do(func() {
		rsaKey, rsaErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, rsaErr, "failed to generate RSA key")
	return &SigningKey{KID: kid, Method: jwt.SigningMethodRS256, Private: rsaKey, Public: &rsaKey.PublicKey}
}

// NewFreshRSAKey returns an RS256 key with its own key material, for tests
// that need two distinct keys.
func NewFreshRSAKey(t testing.TB, kid string) *SigningKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return &SigningKey{KID: kid, Method: jwt.SigningMethodRS256, Private: k, Public: &k.PublicKey}
}

// NewECKey returns an ES256 signing key identified by kid.
func NewECKey(t testing.TB, kid string) *SigningKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "failed to generate EC key")
	return &SigningKey{KID: kid, Method: jwt.SigningMethodES256, Private: k, Public: &k.PublicKey}
}

// NewHMACKey returns an HS256 key identified by kid.
func NewHMACKey(kid string, secret []byte) *SigningKey {
	return &SigningKey{KID: kid, Method: jwt.SigningMethodHS256, Private: secret, Public: secret}
}

// JWK returns the verification half of k as a JSON Web Key.
func (k *SigningKey) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       k.Public,
		KeyID:     k.KID,
		Algorithm: k.Method.Alg(),
		Use:       "sig",
	}
}

// Sign mints a compact token carrying claims, with the kid header set
// when k.KID is not empty.
func (k *SigningKey) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(k.Method, claims)
	if k.KID != "" {
		tok.Header["kid"] = k.KID
	}
	s, err := tok.SignedString(k.Private)
	require.NoError(t, err, "failed to sign token")
	return s
}

// Claims returns a claim set for sub with the given space-separated scope
// and an expiry one hour from now. Pass an empty scope to omit the claim.
func Claims(sub, scope string) jwt.MapClaims {
	c := jwt.MapClaims{
		"sub": sub,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if scope != "" {
		c["scope"] = scope
	}
	return c
}

// KeySetJSON encodes the verification keys as a JWKS document.
func KeySetJSON(t testing.TB, keys ...*SigningKey) []byte {
	t.Helper()
	set := jose.JSONWebKeySet{}
	for _, k := range keys {
		set.Keys = append(set.Keys, k.JWK())
	}
	data, err := json.Marshal(set)
	require.NoError(t, err, "failed to encode key set")
	return data
}

// KeySetServer serves a JWKS document and counts requests.
type KeySetServer struct {
	*httptest.Server

	hits atomic.Int64
	mu   sync.RWMutex
	body []byte
}

// NewKeySetServer starts a server publishing keys at /jwks. It is closed
// when the test ends.
func NewKeySetServer(t testing.TB, keys ...*SigningKey) *KeySetServer {
	t.Helper()
	s := &KeySetServer{body: KeySetJSON(t, keys...)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if r.URL.Path != "/jwks" {
			http.NotFound(w, r)
			return
		}
		s.mu.RLock()
		body := s.body
		s.mu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

// JWKSURL returns the key set location.
func (s *KeySetServer) JWKSURL() string {
	return s.URL + "/jwks"
}

// Hits returns how many requests the server has received.
func (s *KeySetServer) Hits() int64 {
	return s.hits.Load()
}

// SetBody replaces the served document.
func (s *KeySetServer) SetBody(body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}
