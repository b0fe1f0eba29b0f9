package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
)

type Backend string

const (
	BackendAuto       Backend = "auto"
	BackendLocalOnly  Backend = "local-only"
	BackendRemoteOnly Backend = "remote-only"
)

const (
	DefaultLocalMaxEntries = 1000
	DefaultTTL             = time.Hour
	DefaultRemotePoolSize  = 50
	DefaultHealthInterval  = 30 * time.Second

	remoteWriteQueueSize = 256
	remoteWriteTimeout   = 2 * time.Second
	remotePingTimeout    = 2 * time.Second
	startupPingTimeout   = 5 * time.Second
)

// LayeredCache implements ports.ScanCache over a local LRU tier and an
// optional Redis tier. Verdicts are read local-first with promotion on a
// remote hit; stores hit the local tier synchronously and the remote tier
// through a single async writer, so the request path never waits on Redis.
type LayeredCache struct {
	mode   Backend
	local  *localTier
	remote *remoteTier
	logger logger.StyledLogger

	flights singleflight.Group

	remoteHealthy  atomic.Bool
	healthInterval time.Duration

	stores        atomic.Int64
	coalesced     atomic.Int64
	droppedWrites atomic.Int64

	remoteWrites chan remoteWrite
	stopWriter   chan struct{}
	writerDone   chan struct{}

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}

	closed atomic.Bool
}

type remoteWrite struct {
	fingerprint string
	verdict     *domain.ScanResult
}

// New builds the cache for the configured backend mode. In auto mode a dead
// or absent Redis degrades to local-only and a background monitor promotes
// it back; remote-only refuses to start without a reachable Redis.
func New(cfg config.CacheConfig, log logger.StyledLogger) (*LayeredCache, error) {
	mode := Backend(cfg.Backend)
	if mode == "" {
		mode = BackendAuto
	}

	ttl := cfg.TTL()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	maxEntries := cfg.LocalMaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultLocalMaxEntries
	}

	healthInterval := cfg.Remote.HealthInterval
	if healthInterval <= 0 {
		healthInterval = DefaultHealthInterval
	}

	c := &LayeredCache{
		mode:           mode,
		logger:         log,
		healthInterval: healthInterval,
	}

	if mode != BackendRemoteOnly {
		c.local = newLocalTier(maxEntries, ttl)
	}

	wantRemote := mode == BackendRemoteOnly || (mode == BackendAuto && cfg.Remote.Host != "")
	if !wantRemote {
		if mode == BackendAuto {
			log.Debug("No remote cache configured, verdicts stay local", "local_max_entries", maxEntries)
		}
		return c, nil
	}

	c.remote = newRemoteTier(cfg.Remote, ttl)

	pingCtx, cancel := context.WithTimeout(context.Background(), startupPingTimeout)
	err := c.remote.ping(pingCtx)
	cancel()

	switch {
	case err == nil:
		c.remoteHealthy.Store(true)
		log.Info("Remote cache tier connected", "addr", c.remote.addr(), "db", cfg.Remote.DB)
	case mode == BackendRemoteOnly:
		_ = c.remote.close()
		return nil, fmt.Errorf("remote cache unreachable at %s: %w", c.remote.addr(), err)
	default:
		c.remoteHealthy.Store(false)
		log.Warn("Remote cache tier unreachable, serving local only", "addr", c.remote.addr(), "error", err)
	}

	c.remoteWrites = make(chan remoteWrite, remoteWriteQueueSize)
	c.stopWriter = make(chan struct{})
	c.writerDone = make(chan struct{})
	go c.remoteWriter()

	if mode == BackendAuto {
		monitorCtx, monitorCancel := context.WithCancel(context.Background())
		c.monitorCancel = monitorCancel
		c.monitorDone = make(chan struct{})
		go c.monitor(monitorCtx)
	}

	return c, nil
}

// Lookup reads local-first, then remote. A remote hit is promoted into the
// local tier so repeat traffic stops paying the network round trip.
func (c *LayeredCache) Lookup(ctx context.Context, fingerprint string) (*domain.ScanResult, bool) {
	if c.local != nil {
		if verdict, ok := c.local.get(fingerprint); ok {
			return verdict, true
		}
	}

	if !c.remoteUsable() {
		return nil, false
	}

	verdict, err := c.remote.get(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.noteRemoteFailure(err)
		}
		return nil, false
	}

	c.markRemoteHealthy()
	if c.local != nil {
		c.local.set(fingerprint, verdict)
	}
	return verdict, true
}

// Store writes the local tier synchronously and queues the remote write.
// A full write queue sheds the entry rather than stalling the caller.
func (c *LayeredCache) Store(ctx context.Context, fingerprint string, verdict *domain.ScanResult) {
	if verdict == nil {
		return
	}
	c.stores.Add(1)

	if c.local != nil {
		c.local.set(fingerprint, verdict)
	}

	if c.remote == nil || !c.remoteUsable() || c.closed.Load() {
		return
	}

	select {
	case c.remoteWrites <- remoteWrite{fingerprint: fingerprint, verdict: verdict}:
	default:
		c.droppedWrites.Add(1)
	}
}

// GetOrCompute coalesces concurrent misses for one fingerprint onto a single
// compute call. A waiter whose context ends detaches and returns ctx.Err();
// the shared computation keeps running and its result is still stored.
func (c *LayeredCache) GetOrCompute(ctx context.Context, fingerprint string, compute func(context.Context) (*domain.ScanResult, error)) (*domain.ScanResult, error) {
	if verdict, ok := c.Lookup(ctx, fingerprint); ok {
		return verdict, nil
	}

	ch := c.flights.DoChan(fingerprint, func() (any, error) {
		// Detached from the waiters so one client's disconnect cannot kill
		// a scan other requests are queued on.
		flightCtx := context.WithoutCancel(ctx)

		if verdict, ok := c.Lookup(flightCtx, fingerprint); ok {
			return verdict, nil
		}

		verdict, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		c.Store(flightCtx, fingerprint, verdict)
		return verdict, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.coalesced.Add(1)
		}
		return res.Val.(*domain.ScanResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Clear empties every tier. Remote failures surface to the caller since this
// is an admin operation, not the request path.
func (c *LayeredCache) Clear(ctx context.Context) error {
	if c.local != nil {
		c.local.purge()
	}

	if c.remote == nil {
		return nil
	}
	if err := c.remote.clear(ctx); err != nil {
		c.noteRemoteFailure(err)
		return err
	}
	c.markRemoteHealthy()
	return nil
}

// Cleanup drops local entries that expired but have not been collected yet.
// The remote tier expires server-side, nothing to do there.
func (c *LayeredCache) Cleanup(_ context.Context) (int, error) {
	if c.local == nil {
		return 0, nil
	}
	return c.local.cleanup(), nil
}

func (c *LayeredCache) Stats() ports.CacheStats {
	stats := ports.CacheStats{
		Backend:       string(c.mode),
		Stores:        c.stores.Load(),
		Coalesced:     c.coalesced.Load(),
		DroppedWrites: c.droppedWrites.Load(),
		RemoteHealthy: c.remote != nil && c.remoteHealthy.Load(),
	}

	if c.local != nil {
		stats.LocalEntries = c.local.size()
		stats.LocalHits = c.local.hits.Load()
		stats.LocalMisses = c.local.misses.Load()
		stats.Evictions = c.local.evictions.Load()
	}
	if c.remote != nil {
		stats.RemoteHits = c.remote.hits.Load()
		stats.RemoteMisses = c.remote.misses.Load()
		stats.RemoteErrors = c.remote.failures.Load()
	}
	return stats
}

// Close stops the monitor and writer, then releases the Redis pool. Queued
// remote writes are shed; verdicts are reproducible so losing them is safe.
func (c *LayeredCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if c.monitorCancel != nil {
		c.monitorCancel()
		<-c.monitorDone
	}

	if c.remote == nil {
		return nil
	}

	close(c.stopWriter)
	<-c.writerDone
	return c.remote.close()
}

// remoteUsable reports whether remote reads/writes should be attempted.
// Auto mode skips a degraded Redis entirely; remote-only always tries so the
// health state tracks live traffic.
func (c *LayeredCache) remoteUsable() bool {
	if c.remote == nil {
		return false
	}
	return c.mode == BackendRemoteOnly || c.remoteHealthy.Load()
}

func (c *LayeredCache) noteRemoteFailure(err error) {
	if c.remoteHealthy.CompareAndSwap(true, false) {
		c.logger.Warn("Remote cache tier degraded, serving local only", "addr", c.remote.addr(), "error", err)
	}
}

func (c *LayeredCache) markRemoteHealthy() {
	if c.remoteHealthy.CompareAndSwap(false, true) {
		c.logger.Info("Remote cache tier recovered", "addr", c.remote.addr())
	}
}

// remoteWriter drains the write queue. One writer is enough: verdict entries
// are small and Redis round trips dominate, so batching buys nothing here.
func (c *LayeredCache) remoteWriter() {
	defer close(c.writerDone)

	for {
		select {
		case <-c.stopWriter:
			return
		case write := <-c.remoteWrites:
			ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
			err := c.remote.set(ctx, write.fingerprint, write.verdict)
			cancel()

			if err != nil {
				c.noteRemoteFailure(err)
			} else {
				c.markRemoteHealthy()
			}
		}
	}
}

// monitor pings a degraded Redis on an interval and promotes it back when it
// answers. Healthy periods are skipped so the monitor adds no load.
func (c *LayeredCache) monitor(ctx context.Context) {
	defer close(c.monitorDone)

	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.remoteHealthy.Load() {
				continue
			}

			pingCtx, cancel := context.WithTimeout(ctx, remotePingTimeout)
			err := c.remote.ping(pingCtx)
			cancel()

			if err == nil {
				c.markRemoteHealthy()
			}
		}
	}
}
