package util

import (
	"fmt"
	"net"
	"strings"
)

// IPInCIDRs reports whether ip falls inside any of the given networks. Used
// both for trusted-proxy checks and the ingress allow-list.
func IPInCIDRs(ip net.IP, cidrs []*net.IPNet) bool {
	for _, cidr := range cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// ParseCIDRs parses a list of CIDR strings, skipping blanks. A bare IP
// (no /prefix) is accepted and treated as a single-host network.
func ParseCIDRs(cidrStrings []string) ([]*net.IPNet, error) {
	if len(cidrStrings) == 0 {
		return nil, nil
	}

	var cidrs []*net.IPNet
	for _, cidrStr := range cidrStrings {
		cidrStr = strings.TrimSpace(cidrStr)
		if cidrStr == "" {
			continue
		}

		if !strings.Contains(cidrStr, "/") {
			if ip := net.ParseIP(cidrStr); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				cidrStr = fmt.Sprintf("%s/%d", cidrStr, bits)
			}
		}

		_, network, err := net.ParseCIDR(cidrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidrStr, err)
		}
		cidrs = append(cidrs, network)
	}

	return cidrs, nil
}

// NormaliseBaseURL ensures the base URL ends without a trailing slash
func NormaliseBaseURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	if len(baseURL) > 1 && baseURL[len(baseURL)-1] == '/' {
		return baseURL[:len(baseURL)-1]
	}
	return baseURL
}

// IsPortAvailable checks if a port is available by attempting to bind to it
func IsPortAvailable(host string, port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return false
	}
	defer listener.Close()
	return true
}
