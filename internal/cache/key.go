package cache

import (
	"net/http"
	"strings"
)

// Key identifies a cacheable request by method and request-target, both as
// received. Scheme and host are not part of the key, so the same path and
// method reached through the proxy for two different origins share an entry.
type Key struct {
	Method string
	URI    string
}

// KeyFromRequest derives the cache key of an inbound request.
func KeyFromRequest(r *http.Request) Key {
	uri := r.RequestURI
	if uri == "" && r.URL != nil {
		uri = r.URL.RequestURI()
	}
	return Key{Method: r.Method, URI: uri}
}

// String renders the key for logs: m=<METHOD>|u=<URI>.
func (k Key) String() string {
	var b strings.Builder
	b.Grow(len(k.Method) + len(k.URI) + 5)
	b.WriteString("m=")
	b.WriteString(k.Method)
	b.WriteString("|u=")
	b.WriteString(k.URI)
	return b.String()
}
