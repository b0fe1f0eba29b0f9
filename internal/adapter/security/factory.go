package security

import (
	"net/http"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
)

type Services struct {
	Chain   *ports.SecurityChain
	Metrics ports.SecurityMetricsService
}

type Adapters struct {
	IPGate         *IPAllowlistValidator
	RateLimit      *RateLimitValidator
	SizeValidation *SizeValidator
	Metrics        *MetricsAdapter
	Chain          *ports.SecurityChain
}

// NewSecurityServices creates and wires security validators so they're easy to chain and consume
func NewSecurityServices(cfg *config.Config, statsCollector ports.StatsCollector, logger logger.StyledLogger) (*Services, *Adapters) {
	metricsAdapter := NewSecurityMetricsAdapter(statsCollector, logger)
	ipGateValidator := NewIPAllowlistValidator(cfg.IPAllowlistParsed, cfg.Server.RateLimits, metricsAdapter, logger)
	rateLimitValidator := NewRateLimitValidator(cfg.Server.RateLimits, metricsAdapter, logger)
	sizeValidator := NewSizeValidator(cfg.Server.RequestLimits, metricsAdapter, logger)

	chain := ports.NewSecurityChain(
		ipGateValidator,    /* the gate decides who gets in at all */
		rateLimitValidator, /* then how often they may knock */
		sizeValidator,      /* then how much they may carry */
	)

	services := &Services{
		Chain:   chain,
		Metrics: metricsAdapter,
	}

	adapters := &Adapters{
		IPGate:         ipGateValidator,
		RateLimit:      rateLimitValidator,
		SizeValidation: sizeValidator,
		Metrics:        metricsAdapter,
		Chain:          chain,
	}

	return services, adapters
}

func (sa *Adapters) Stop() {
	if sa.RateLimit != nil {
		sa.RateLimit.Stop()
	}
}

// CreateChainMiddleware composes the validators in chain order: ip gate
// outermost, then rate limit, then size limit.
func (sa *Adapters) CreateChainMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := sa.SizeValidation.CreateMiddleware()(next)
		handler = sa.RateLimit.CreateMiddleware()(handler)
		handler = sa.IPGate.CreateMiddleware()(handler)
		return handler
	}
}

func (sa *Adapters) CreateRateLimitMiddleware() func(http.Handler) http.Handler {
	if sa.RateLimit != nil {
		return sa.RateLimit.CreateMiddleware()
	}
	return func(next http.Handler) http.Handler {
		return next
	}
}
