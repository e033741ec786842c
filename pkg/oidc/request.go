package oidc

import (
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Request gives token suppliers read access to an inbound request.
type Request interface {
	// Header returns the first value of the named header, or "".
	Header(name string) string

	// Cookie returns the value of the named cookie.
	Cookie(name string) (string, bool)
}

// HTTPRequest adapts an [*http.Request] to [Request].
func HTTPRequest(r *http.Request) Request {
	return httpRequest{r: r}
}

type httpRequest struct {
	r *http.Request
}

func (h httpRequest) Header(name string) string {
	return h.r.Header.Get(name)
}

func (h httpRequest) Cookie(name string) (string, bool) {
	c, err := h.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// MetadataRequest adapts incoming gRPC metadata to [Request]. Header
// names are matched case-insensitively; cookies are read from the
// "cookie" metadata key.
func MetadataRequest(md metadata.MD) Request {
	return metadataRequest{md: md}
}

type metadataRequest struct {
	md metadata.MD
}

func (m metadataRequest) Header(name string) string {
	if v := m.md.Get(strings.ToLower(name)); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (m metadataRequest) Cookie(name string) (string, bool) {
	header := http.Header{}
	for _, v := range m.md.Get("cookie") {
		header.Add("Cookie", v)
	}
	c, err := (&http.Request{Header: header}).Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}
