package upstream

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/paddockhq/paddock/internal/core/constants"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/logger"
	"github.com/paddockhq/paddock/internal/util"
)

const (
	DefaultHealthInterval = 30 * time.Second
	DefaultCheckTimeout   = 5 * time.Second

	healthCheckBodyLimit = 4 * 1024
)

// Monitor polls the backend version endpoint and tracks its last observed
// state. The state is advisory: a down reading never blocks a request, it
// only feeds /health and log output.
type Monitor struct {
	client   *http.Client
	logger   logger.StyledLogger
	checkURL string
	interval time.Duration

	mu     sync.RWMutex
	health domain.UpstreamHealth

	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(baseURL string, interval time.Duration, log logger.StyledLogger) *Monitor {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}

	return &Monitor{
		client:   &http.Client{Timeout: DefaultCheckTimeout},
		logger:   log,
		checkURL: baseURL + constants.PathAPIVersion,
		interval: interval,
		health:   domain.UpstreamHealth{Status: domain.StatusUnknown, StatusText: domain.StatusUnknown.String()},
	}
}

// Start launches the polling loop. Failed checks back off linearly so a dead
// backend is not hammered every tick.
func (m *Monitor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		m.check(runCtx)

		for {
			interval := m.interval
			if failures := m.Health().ConsecutiveFailures; failures > 0 {
				if backoff := util.CalculateConnectionRetryBackoff(failures); backoff > interval {
					interval = backoff
				}
			}

			select {
			case <-runCtx.Done():
				return
			case <-time.After(interval):
				m.check(runCtx)
			}
		}
	}()
}

// Stop halts the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

// Health returns the last observed backend state.
func (m *Monitor) Health() domain.UpstreamHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

func (m *Monitor) check(ctx context.Context) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.checkURL, nil)
	if err != nil {
		m.record(domain.StatusUnhealthy, "", time.Since(start))
		return
	}

	resp, err := m.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		m.record(domain.StatusUnhealthy, "", latency)
		return
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.record(domain.StatusUnhealthy, "", latency)
		return
	}

	version := ""
	if body, rerr := io.ReadAll(io.LimitReader(resp.Body, healthCheckBodyLimit)); rerr == nil {
		version = gjson.GetBytes(body, "version").String()
	}

	m.record(domain.StatusHealthy, version, latency)
}

// record updates the stored state and logs transitions only, so a steady
// backend stays quiet in the logs.
func (m *Monitor) record(status domain.UpstreamStatus, version string, latency time.Duration) {
	m.mu.Lock()

	previous := m.health.Status

	failures := 0
	if status != domain.StatusHealthy {
		failures = m.health.ConsecutiveFailures + 1
	}

	m.health = domain.UpstreamHealth{
		CheckedAt:           time.Now(),
		Status:              status,
		StatusText:          status.String(),
		BackendVersion:      version,
		Latency:             latency,
		LatencyMs:           latency.Milliseconds(),
		ConsecutiveFailures: failures,
	}
	m.mu.Unlock()

	if previous != status {
		m.logger.InfoUpstreamStatus("Backend", m.checkURL, status,
			"latency_ms", latency.Milliseconds(),
			"backend_version", version)
	}
}
