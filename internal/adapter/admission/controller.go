// Package admission bounds per-model concurrency. Each model gets a lazily
// created queue with a parallel limit and a bounded FIFO wait list; requests
// beyond both are rejected so load sheds at the door instead of piling onto
// the backend.
package admission

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
	"github.com/paddockhq/paddock/internal/util/pattern"
	"github.com/paddockhq/paddock/pkg/format"
)

type Controller struct {
	queues *xsync.Map[string, *modelQueue]

	mu        sync.RWMutex
	defaults  domain.QueueLimits
	overrides map[string]domain.QueueLimits
	globKeys  []string

	memory domain.MemoryReport
	logger logger.StyledLogger
	closed atomic.Bool
}

func New(cfg config.AdmissionConfig, log logger.StyledLogger) *Controller {
	parallel, auto := cfg.ParallelSetting()
	report := detectMemory()
	if auto {
		parallel = report.AutoParallel
		log.Info("Admission parallel limit auto-sized",
			"limit", parallel,
			"available", format.Bytes(report.AvailableBytes),
			"source", report.Source)
	}
	if parallel < 1 {
		parallel = 1
	}

	queueLimit := cfg.DefaultQueueLimit
	if queueLimit < 0 {
		queueLimit = 0
	}

	c := &Controller{
		queues: xsync.NewMap[string, *modelQueue](),
		defaults: domain.QueueLimits{
			ParallelLimit: parallel,
			QueueLimit:    queueLimit,
		},
		overrides: make(map[string]domain.QueueLimits, len(cfg.Overrides)),
		memory:    report,
		logger:    log,
	}

	for key, override := range cfg.Overrides {
		limits := domain.QueueLimits{
			ParallelLimit: override.ParallelLimit,
			QueueLimit:    override.QueueLimit,
		}
		if limits.ParallelLimit < 1 {
			limits.ParallelLimit = parallel
		}
		if limits.QueueLimit < 0 {
			limits.QueueLimit = queueLimit
		}
		c.overrides[key] = limits
	}
	c.rebuildGlobKeysLocked()

	return c
}

// Acquire admits one generation request for model, blocking FIFO behind the
// model's parallel limit. The retry loop only spins when an admin reset
// retires the queue mid-acquire.
func (c *Controller) Acquire(ctx context.Context, model string) (ports.AdmissionTicket, error) {
	if c.closed.Load() {
		return nil, domain.ErrAdmissionClosed
	}

	for {
		t, err := c.queueFor(model).acquire(ctx)
		if err != nil {
			if errors.Is(err, errQueueRetired) {
				continue
			}
			return nil, err
		}
		return t, nil
	}
}

func (c *Controller) queueFor(model string) *modelQueue {
	q, _ := c.queues.LoadOrCompute(model, func() (*modelQueue, bool) {
		limits := c.limitsFor(model)
		c.logger.Debug("Model queue created",
			"model", model,
			"parallel_limit", limits.ParallelLimit,
			"queue_limit", limits.QueueLimit)
		return newModelQueue(model, limits), false
	})
	return q
}

// limitsFor resolves a model's limits: exact override, then glob overrides
// in lexicographic order, then the defaults.
func (c *Controller) limitsFor(model string) domain.QueueLimits {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limits, ok := c.overrides[model]; ok {
		return limits
	}
	for _, key := range c.globKeys {
		if pattern.MatchesGlob(model, key) {
			return c.overrides[key]
		}
	}
	return c.defaults
}

// UpdateLimits overrides one model's limits at runtime and applies them to
// matching live queues. The key may be a glob. parallel < 1 keeps the
// current parallel limit; queueLimit < 0 keeps the current queue limit.
func (c *Controller) UpdateLimits(model string, parallel, queueLimit int) domain.QueueLimits {
	current := c.limitsFor(model)
	if q, ok := c.queues.Load(model); ok {
		current = q.snapshotLimits()
	}

	next := current
	if parallel >= 1 {
		next.ParallelLimit = parallel
	}
	if queueLimit >= 0 {
		next.QueueLimit = queueLimit
	}

	c.mu.Lock()
	c.overrides[model] = next
	c.rebuildGlobKeysLocked()
	c.mu.Unlock()

	c.queues.Range(func(name string, q *modelQueue) bool {
		if pattern.MatchesGlob(name, model) {
			q.setLimits(next)
		}
		return true
	})

	c.logger.Info("Model queue limits updated",
		"model", model,
		"parallel_limit", next.ParallelLimit,
		"queue_limit", next.QueueLimit)
	return next
}

// Reset removes idle queues and zeroes the counters of busy ones. Overrides
// survive, so a removed queue comes back with the same limits.
func (c *Controller) Reset() int {
	removed := 0
	c.queues.Range(func(name string, q *modelQueue) bool {
		if q.tryRetire() {
			c.queues.Delete(name)
			removed++
			return true
		}
		q.resetCounters()
		return true
	})

	c.logger.Info("Admission queues reset", "removed", removed)
	return removed
}

func (c *Controller) Snapshot() []domain.ModelQueueStats {
	stats := make([]domain.ModelQueueStats, 0, c.queues.Size())
	c.queues.Range(func(_ string, q *modelQueue) bool {
		stats = append(stats, q.stats())
		return true
	})
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Model < stats[j].Model
	})
	return stats
}

func (c *Controller) Memory() domain.MemoryReport {
	return c.memory
}

// Close stops new admissions. In-flight requests finish on their own;
// waiters resolve through their request contexts during server shutdown.
func (c *Controller) Close() error {
	c.closed.Store(true)
	return nil
}

// rebuildGlobKeysLocked recomputes the ordered glob override keys. Callers
// hold c.mu; New calls it before the controller is shared.
func (c *Controller) rebuildGlobKeysLocked() {
	c.globKeys = c.globKeys[:0]
	for key := range c.overrides {
		if strings.Contains(key, "*") {
			c.globKeys = append(c.globKeys, key)
		}
	}
	sort.Strings(c.globKeys)
}

var _ ports.AdmissionController = (*Controller)(nil)
