package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?url=https://example.test/api/v1", nil)

	key := KeyFromRequest(req)

	assert.Equal(t, Key{Method: "GET", URI: "/?url=https://example.test/api/v1"}, key)
	assert.Equal(t, "m=GET|u=/?url=https://example.test/api/v1", key.String())
}

func TestKeyIgnoresHostAndHeaders(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "http://one.test/p?url=x", nil)
	a.Header.Set("Accept", "text/plain")
	b := httptest.NewRequest(http.MethodGet, "http://two.test/p?url=x", nil)

	// httptest keeps the absolute form in RequestURI; strip it the way the
	// server does for origin-form requests.
	a.RequestURI, b.RequestURI = "", ""

	assert.Equal(t, KeyFromRequest(a), KeyFromRequest(b))
}

func TestKeyIsCaseSensitive(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
	}{
		{name: "method", a: Key{Method: "GET", URI: "/x"}, b: Key{Method: "get", URI: "/x"}},
		{name: "uri", a: Key{Method: "GET", URI: "/X"}, b: Key{Method: "GET", URI: "/x"}},
		{name: "query", a: Key{Method: "GET", URI: "/?url=A"}, b: Key{Method: "GET", URI: "/?url=a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, tt.a, tt.b)

			m := map[Key]int{tt.a: 1}
			_, ok := m[tt.b]
			assert.False(t, ok)
		})
	}
}
