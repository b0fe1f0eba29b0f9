package util

import (
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
)

func GenerateRequestID() string {
	actions := []string{
		"grazing", "trotting", "cantering", "fenced", "haltered",
		"stabled", "saddled", "yarded", "mustered", "shod",
		"watered", "groomed", "tethered", "gated", "penned",
	}
	herd := []string{
		"brumby", "shetland", "clydesdale", "mustang", "palomino",
		"dapple", "chestnut", "piebald", "skewbald", "roan",
		"steady", "swift", "gentle", "wily", "placid",
	}

	mount := herd[rand.Intn(len(herd))]
	action := actions[rand.Intn(len(actions))]
	suffix := fmt.Sprintf("%04x", rand.Intn(65536))

	return fmt.Sprintf("%s_%s_%s", mount, action, suffix)
}

func GetClientIP(r *http.Request, trustProxyHeaders bool, trustedCIDRs []*net.IPNet) string {
	if !trustProxyHeaders {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}

	sourceIP := getSourceIP(r)
	if sourceIP == nil || !IPInCIDRs(sourceIP, trustedCIDRs) {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}

	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func getSourceIP(r *http.Request) net.IP {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(ip)
	}
	return net.ParseIP(r.RemoteAddr)
}
