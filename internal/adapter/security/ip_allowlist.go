package security

/*
				Paddock Security Adapter - IP Allowlist Validator
	IPAllowlistValidator gates every request on the client address before any
	other validator runs. An empty allowlist admits everyone, which keeps the
	default localhost deployment zero-config; once CIDRs are configured the
	gate fails closed, including on unparseable addresses.

	The allowlist is parsed once at config validation, so per-request work is
	a linear scan over a handful of networks.
*/

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/constants"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
	"github.com/paddockhq/paddock/internal/util"
)

// contextKey keeps middleware context values collision-free.
type contextKey string

// ClientIPKey carries the resolved client address so later middleware and
// handlers don't re-derive it from proxy headers.
const ClientIPKey contextKey = constants.ContextClientIPKey

type IPAllowlistValidator struct {
	metrics           ports.SecurityMetricsService
	logger            logger.StyledLogger
	allowlist         []*net.IPNet
	trustedCIDRs      []*net.IPNet
	trustProxyHeaders bool
}

func NewIPAllowlistValidator(allowlist []*net.IPNet, limits config.ServerRateLimits, metrics ports.SecurityMetricsService, logger logger.StyledLogger) *IPAllowlistValidator {
	return &IPAllowlistValidator{
		allowlist:         allowlist,
		trustProxyHeaders: limits.TrustProxyHeaders,
		trustedCIDRs:      limits.TrustedProxyCIDRsParsed,
		metrics:           metrics,
		logger:            logger,
	}
}

func (ia *IPAllowlistValidator) Name() string {
	return "ip_allowlist"
}

// Validate admits the request when no allowlist is configured or the client
// address falls inside a configured network. Unparseable addresses are
// rejected once an allowlist exists.
func (ia *IPAllowlistValidator) Validate(ctx context.Context, req ports.SecurityRequest) (ports.SecurityResult, error) {
	if len(ia.allowlist) == 0 {
		return ports.SecurityResult{Allowed: true}, nil
	}

	ip := net.ParseIP(req.ClientID)
	if ip == nil {
		return ports.SecurityResult{
			Allowed: false,
			Reason:  "Client address could not be parsed",
		}, nil
	}

	if !util.IPInCIDRs(ip, ia.allowlist) {
		return ports.SecurityResult{
			Allowed: false,
			Reason:  "Client address not in allowlist",
		}, nil
	}

	return ports.SecurityResult{Allowed: true}, nil
}

func (ia *IPAllowlistValidator) CreateMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := util.GetClientIP(r, ia.trustProxyHeaders, ia.trustedCIDRs)

			req := ports.SecurityRequest{
				ClientID: clientIP,
				Endpoint: r.URL.Path,
				Method:   r.Method,
			}

			result, err := ia.Validate(r.Context(), req)
			if err != nil {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if !result.Allowed {
				if ia.metrics != nil {
					violation := ports.SecurityViolation{
						ClientID:      clientIP,
						ViolationType: ports.ViolationIPDenied,
						Endpoint:      r.URL.Path,
						Timestamp:     time.Now(),
					}
					_ = ia.metrics.RecordViolation(r.Context(), violation)
				}

				ia.logger.Warn("Request denied by IP allowlist",
					"client_ip", clientIP,
					"method", r.Method,
					"path", r.URL.Path)

				writeIPDenied(w)
				return
			}

			ctx := context.WithValue(r.Context(), ClientIPKey, clientIP)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeIPDenied rejects in the native error shape. The gate runs before the
// request dialect is known, so every denial speaks the same body.
func writeIPDenied(w http.ResponseWriter) {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(domain.NativeErrorResponse{
		Error:   domain.ErrKindIPDenied,
		Type:    domain.ErrKindIPDenied,
		Message: "client address is not permitted",
	})
}
