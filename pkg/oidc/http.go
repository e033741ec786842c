package oidc

import (
	"context"
	"net/http"
)

// HTTPErrorHandler writes the response for a request the guard rejected.
type HTTPErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Error401 replies 401 Unauthorized with a "WWW-Authenticate: Bearer"
// challenge and an empty body, whatever the error.
func Error401(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
}

// HTTPMiddleware returns middleware running guard on every request. On
// success the Authentication is stored in the request context and next is
// served. On failure onError writes the response; nil means [Error401].
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/api/cases", handleCases)
//	handler := oidc.HTTPMiddleware(guard, nil)(mux)
//	http.ListenAndServe(":8080", handler)
func HTTPMiddleware(guard *Guard, onError HTTPErrorHandler) func(http.Handler) http.Handler {
	if onError == nil {
		onError = Error401
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guard.Run(r.Context(), HTTPRequest(r),
				func(ctx context.Context) {
					next.ServeHTTP(w, r.WithContext(ctx))
				},
				func(_ context.Context, _ Request, err error) {
					onError(w, r, err)
				},
			)
		})
	}
}
