package upstream

import (
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/paddockhq/paddock/internal/version"
)

var (
	proxiedByHeader string
	viaHeader       string
)

func init() {
	proxiedByHeader = version.Name + "/" + version.Version
	viaHeader = "1.1 " + version.ShortName + "/" + version.Version
}

// GetProxiedByHeader returns the X-Proxied-By header value
func GetProxiedByHeader() string {
	return proxiedByHeader
}

// GetViaHeader returns the Via header value
func GetViaHeader() string {
	return viaHeader
}

// PrepareProxyHeaders builds the header set forwarded to the backend from an
// inbound request. Hop-by-hop headers are dropped per RFC 2616 section 13.5.1
// and client credentials are stripped so they never reach the backend.
func PrepareProxyHeaders(r *http.Request) http.Header {
	headers := make(http.Header, len(r.Header))

	for header, values := range r.Header {
		if isHopByHopHeader(header) {
			continue
		}

		// Strip credential-bearing headers; the backend is local and unauthenticated
		normalisedHeader := http.CanonicalHeaderKey(header)
		if normalisedHeader == "Authorization" ||
			normalisedHeader == "Cookie" ||
			normalisedHeader == "X-Api-Key" ||
			normalisedHeader == "X-Auth-Token" ||
			normalisedHeader == "Proxy-Authorization" {
			continue
		}

		headers[normalisedHeader] = values
	}

	headers.Set("X-Proxied-By", GetProxiedByHeader())

	// Via header tracks the request path through proxies (RFC 7230 section 5.7.1)
	if via := r.Header.Get("Via"); via != "" {
		headers.Set("Via", via+", "+GetViaHeader())
	} else {
		headers.Set("Via", GetViaHeader())
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP == "" {
		if ip := extractClientIP(r); ip != "" {
			headers.Set("X-Real-IP", ip)
		}
	}

	updateForwardedHeaders(headers, r)

	return headers
}

// CopyResponseHeaders relays backend response headers to the client, minus
// hop-by-hop entries.
func CopyResponseHeaders(dst http.Header, src http.Header) {
	for header, values := range src {
		if isHopByHopHeader(header) {
			continue
		}
		for _, value := range values {
			dst.Add(header, value)
		}
	}
}

// updateForwardedHeaders maintains the X-Forwarded-* chain. Each proxy
// appends the peer it received the request from, not the original client.
func updateForwardedHeaders(headers http.Header, r *http.Request) {
	peerIP := remoteAddrHost(r)

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if peerIP != "" {
			headers.Set("X-Forwarded-For", forwarded+", "+peerIP)
		} else {
			headers.Set("X-Forwarded-For", forwarded)
		}
	} else if peerIP != "" {
		headers.Set("X-Forwarded-For", peerIP)
	}

	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "" {
		if r.TLS != nil {
			headers.Set("X-Forwarded-Proto", "https")
		} else {
			headers.Set("X-Forwarded-Proto", "http")
		}
	}

	if host := r.Header.Get("X-Forwarded-Host"); host == "" && r.Host != "" {
		headers.Set("X-Forwarded-Host", r.Host)
	}
}

// extractClientIP is a best-effort lookup for the forwarding chain. The
// security-sensitive variant that honours trusted proxies is util.GetClientIP.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return remoteAddrHost(r)
}

func remoteAddrHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return host
}

// isHopByHopHeader checks if a header is hop-by-hop
func isHopByHopHeader(header string) bool {
	hopByHopHeaders := []string{
		"Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"TE",
		"Trailers",
		"Transfer-Encoding",
		"Upgrade",
	}
	return slices.ContainsFunc(hopByHopHeaders, func(h string) bool {
		return strings.EqualFold(h, header)
	})
}
