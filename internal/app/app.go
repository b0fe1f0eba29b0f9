// Package app wires the guard proxy together: config, scan pipelines,
// verdict cache, admission controller, upstream client and the HTTP surface
// that orchestrates them per request.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/paddockhq/paddock/internal/adapter/admission"
	"github.com/paddockhq/paddock/internal/adapter/cache"
	"github.com/paddockhq/paddock/internal/adapter/guard"
	"github.com/paddockhq/paddock/internal/adapter/scanner"
	"github.com/paddockhq/paddock/internal/adapter/security"
	"github.com/paddockhq/paddock/internal/adapter/stats"
	"github.com/paddockhq/paddock/internal/adapter/translator"
	"github.com/paddockhq/paddock/internal/adapter/upstream"
	"github.com/paddockhq/paddock/internal/app/middleware"
	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
	"github.com/paddockhq/paddock/internal/router"
	"github.com/paddockhq/paddock/internal/util"
	"github.com/paddockhq/paddock/internal/version"
	"github.com/paddockhq/paddock/pkg/eventbus"
)

// Application owns every long-lived component and the HTTP server that
// fronts them. Components are constructed once here and handed to the
// handlers as fields; none of them reach back into the Application.
type Application struct {
	configMu sync.RWMutex
	config   *config.Config

	logger   logger.StyledLogger
	registry *router.RouteRegistry
	server   *http.Server

	upstream   ports.UpstreamClient
	monitor    *upstream.Monitor
	cache      ports.ScanCache
	inputPipe  *scanner.Pipeline
	outputPipe *scanner.Pipeline
	admission  ports.AdmissionController
	guard      *guard.Guard
	translate  *translator.Translator
	collector  ports.StatsCollector
	subscriber *stats.Subscriber
	events     *eventbus.EventBus[domain.GuardEvent]
	security   *security.Adapters

	errCh     chan error
	StartTime time.Time
}

// New loads configuration, wires the application and registers the config
// hot-reload hook.
func New(ctx context.Context, startTime time.Time, log logger.StyledLogger) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewWithConfig(ctx, startTime, cfg, log)
	if err != nil {
		return nil, err
	}

	config.Watch(app.applyConfig)
	return app, nil
}

// NewWithConfig wires the application around an already validated config.
// Tests use it directly to stay off the process-global viper state.
func NewWithConfig(ctx context.Context, startTime time.Time, cfg *config.Config, log logger.StyledLogger) (*Application, error) {
	collector := stats.NewCollector(log)
	events := eventbus.New[domain.GuardEvent]()
	subscriber := stats.NewSubscriber(collector, log)

	verdictCache, err := cache.New(cfg.Cache, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan cache: %w", err)
	}

	registry := scanner.NewRegistry(log)
	inputPipe, outputPipe, err := registry.BuildPipelines(ctx, cfg.Scan)
	if err != nil {
		_ = verdictCache.Close()
		return nil, fmt.Errorf("failed to build scanner pipelines: %w", err)
	}

	upstreamClient, err := upstream.NewClient(cfg.Upstream, cfg.Timeout, log)
	if err != nil {
		_ = verdictCache.Close()
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	translate := translator.New(log)
	guardPipeline, err := guard.New(guard.ConfigurationFrom(cfg), inputPipe, outputPipe, verdictCache, events, translate, log)
	if err != nil {
		upstreamClient.Close()
		_ = verdictCache.Close()
		return nil, fmt.Errorf("failed to create guard: %w", err)
	}

	_, securityAdapters := security.NewSecurityServices(cfg, collector, log)

	app := &Application{
		config:     cfg,
		logger:     log,
		registry:   router.NewRouteRegistry(log),
		upstream:   upstreamClient,
		monitor:    upstream.NewMonitor(cfg.Upstream.BaseURL, cfg.Upstream.HealthInterval, log),
		cache:      verdictCache,
		inputPipe:  inputPipe,
		outputPipe: outputPipe,
		admission:  admission.New(cfg.Admission, log),
		guard:      guardPipeline,
		translate:  translate,
		collector:  collector,
		subscriber: subscriber,
		events:     events,
		security:   securityAdapters,
		errCh:      make(chan error, 1),
		StartTime:  startTime,
	}

	app.server = &http.Server{
		Addr:         cfg.Bind.GetAddress(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// Start begins serving. The route table is wired here rather than in New so
// tests can mount the handler on their own listeners.
func (a *Application) Start(ctx context.Context) error {
	cfg := a.getConfig()

	if !util.IsPortAvailable(cfg.Bind.Host, cfg.Bind.Port) {
		return fmt.Errorf("bind address %s is already in use", cfg.Bind.GetAddress())
	}

	a.subscriber.Start(ctx, a.events)
	a.monitor.Start(ctx)

	a.server.Handler = a.buildHandler()

	go func() {
		a.logger.Info("Starting web server", "bind", a.server.Addr, "upstream", a.upstream.BaseURL())
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", "error", err)
			a.errCh <- err
		}
	}()

	go func() {
		select {
		case err := <-a.errCh:
			a.logger.Error("Server startup error", "error", err)
		case <-ctx.Done():
		}
	}()

	a.logger.Info(version.Name+" is guarding",
		"bind", cfg.Bind.GetAddress(),
		"upstream", cfg.Upstream.BaseURL,
		"input_scanners", len(a.inputPipe.Scanners()),
		"output_scanners", len(a.outputPipe.Scanners()),
		"cache_backend", cfg.Cache.Backend)
	return nil
}

// buildHandler assembles the route table with the security chain on the
// client-facing routes and the admin rate budget on the rest.
func (a *Application) buildHandler() http.Handler {
	a.registerRoutes()

	mux := http.NewServeMux()
	a.registry.WireUpWithSecurityChain(mux, a.security)

	var handler http.Handler = mux
	if a.getConfig().Server.RequestLogging {
		handler = middleware.RequestLoggingMiddleware(a.logger)(handler)
	}
	return handler
}

// Stop shuts the surface down first so no request arrives at a component
// that is already closing, then releases the components upstream-to-cache.
func (a *Application) Stop(ctx context.Context) error {
	cfg := a.getConfig()
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	a.monitor.Stop()
	a.security.Stop()
	if err := a.admission.Close(); err != nil {
		a.logger.Warn("Admission controller close failed", "error", err)
	}
	a.upstream.Close()
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("Scan cache close failed", "error", err)
	}
	a.events.Shutdown()
	a.subscriber.Stop()

	return shutdownErr
}

// applyConfig is the hot-reload hook. Only the runtime-safe subset takes
// effect: scan policy knobs, per-scanner toggles, admission overrides and
// rate limits follow the file; structural settings wait for a restart.
func (a *Application) applyConfig(fresh *config.Config) {
	previous := a.getConfig()
	a.setConfig(fresh)

	a.guard.ApplyScanConfig(fresh.Scan)
	a.inputPipe.ApplyToggles(fresh.Scan.InputScanners)
	a.outputPipe.ApplyToggles(fresh.Scan.OutputScanners)

	for model, override := range fresh.Admission.Overrides {
		if prev, ok := previous.Admission.Overrides[model]; ok && prev == override {
			continue
		}
		a.admission.UpdateLimits(model, override.ParallelLimit, override.QueueLimit)
	}

	if previous.Upstream.BaseURL != fresh.Upstream.BaseURL {
		a.logger.Warn("upstream.base_url changed on disk; restart required to apply",
			"running", previous.Upstream.BaseURL, "configured", fresh.Upstream.BaseURL)
	}
	if previous.Bind.GetAddress() != fresh.Bind.GetAddress() {
		a.logger.Warn("bind address changed on disk; restart required to apply",
			"running", previous.Bind.GetAddress(), "configured", fresh.Bind.GetAddress())
	}

	a.logger.InfoConfigChange(fresh.Filename)
}

func (a *Application) getConfig() *config.Config {
	a.configMu.RLock()
	defer a.configMu.RUnlock()
	return a.config
}

func (a *Application) setConfig(cfg *config.Config) {
	a.configMu.Lock()
	defer a.configMu.Unlock()
	a.config = cfg
}
