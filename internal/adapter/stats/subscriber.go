package stats

import (
	"context"
	"sync"

	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
	"github.com/paddockhq/paddock/pkg/eventbus"
)

// Subscriber drains guard events into the collector off the request path.
// Publishers never wait on it; when the bus buffer fills, events are
// dropped and the counters undercount rather than the relay stalling.
type Subscriber struct {
	collector   ports.StatsCollector
	logger      logger.StyledLogger
	unsubscribe func()
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

func NewSubscriber(collector ports.StatsCollector, logger logger.StyledLogger) *Subscriber {
	return &Subscriber{
		collector: collector,
		logger:    logger,
	}
}

// Start subscribes to the bus and drains until Stop or ctx cancellation.
func (s *Subscriber) Start(ctx context.Context, bus *eventbus.EventBus[domain.GuardEvent]) {
	events, unsubscribe := bus.Subscribe(ctx)
	s.unsubscribe = unsubscribe

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for event := range events {
			s.apply(event)
		}
	}()
}

// Stop unsubscribes and waits for already-delivered events to be applied.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
	s.wg.Wait()
}

// apply maps the event taxonomy onto collector counters. Request totals
// are not fed from here: handlers record those directly because only they
// see the final HTTP status.
func (s *Subscriber) apply(event domain.GuardEvent) {
	switch event.Type {
	case domain.GuardEventScan:
		s.collector.RecordScan(event.Side, event.Duration, event.Allowed, event.ScannerErrors)
	case domain.GuardEventViolation:
		s.collector.RecordBlocked(event.Side)
	}
}
