package oidc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/StricklySoft/stricklysoft-oidc/internal/testutil"
)

// fakeProvider is an identity provider serving discovery, a key set and
// a user-info endpoint.
type fakeProvider struct {
	*httptest.Server

	keySetHits   atomic.Int64
	userInfoHits atomic.Int64

	mu        sync.Mutex
	keySet    []byte
	userInfo  map[string]any
	lastToken string
}

func newFakeProvider(t *testing.T, keys ...*testutil.SigningKey) *fakeProvider {
	t.Helper()
	p := &fakeProvider{keySet: testutil.KeySetJSON(t, keys...), userInfo: map[string]any{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"issuer":                 p.URL,
			"jwks_uri":               p.URL + "/jwks",
			"userinfo_endpoint":      p.URL + "/userinfo",
			"token_endpoint":         p.URL + "/token",
			"authorization_endpoint": p.URL + "/authorize",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		p.keySetHits.Add(1)
		p.mu.Lock()
		body := p.keySet
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		p.userInfoHits.Add(1)
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		p.mu.Lock()
		p.lastToken = strings.TrimPrefix(auth, "Bearer ")
		info := p.userInfo
		p.mu.Unlock()
		writeJSON(w, info)
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakeProvider) setUserInfo(info map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfo = info
}

func (p *fakeProvider) bearer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastToken
}

func (p *fakeProvider) config() Config {
	cfg := DefaultConfig()
	cfg.JWKSetURI = p.URL + "/jwks"
	cfg.UserInfoURI = p.URL + "/userinfo"
	return *cfg
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
