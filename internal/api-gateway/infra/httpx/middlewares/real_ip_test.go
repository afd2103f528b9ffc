package middlewares

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func seenRemoteAddr(t *testing.T, trusted []netip.Prefix, remote, forwarded string) string {
	t.Helper()
	var seen string
	h := TrustedRealIP(trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = r.RemoteAddr
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	req.Header.Set("X-Forwarded-For", forwarded)
	h.ServeHTTP(httptest.NewRecorder(), req)
	return seen
}

func TestTrustedRealIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name    string
		trusted []netip.Prefix
		remote  string
		want    string
	}{
		{"no trusted proxies ignores header", nil, "198.51.100.4:5000", "198.51.100.4:5000"},
		{"untrusted peer ignores header", proxies, "198.51.100.4:5000", "198.51.100.4:5000"},
		{"trusted peer honours header", proxies, "10.1.2.3:5000", "203.0.113.50"},
		{"mapped ipv4 peer is matched", proxies, "[::ffff:10.1.2.3]:5000", "203.0.113.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, seenRemoteAddr(t, tt.trusted, tt.remote, "203.0.113.50"))
		})
	}
}
