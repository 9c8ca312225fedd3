package trigger

import (
	"context"
	"time"

	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/metrics"
	"github.com/printlapse/printlapse/types"
)

// IntervalSource emits IntervalTick events on a fixed period, independent
// of hardware state. It runs even when no print is active and may run
// concurrently with hardware-triggered capture; both write into the same
// open session.
type IntervalSource struct {
	interval  time.Duration
	events    chan<- types.TriggerEvent
	logger    *log.Logger
	collector *metrics.Collector
}

// NewIntervalSource creates an interval source with the given period.
func NewIntervalSource(interval time.Duration, events chan<- types.TriggerEvent, logger *log.Logger, collector *metrics.Collector) *IntervalSource {
	return &IntervalSource{
		interval:  interval,
		events:    events,
		logger:    logger,
		collector: collector,
	}
}

// Run ticks until ctx is canceled. Blocking; run in its own goroutine.
func (s *IntervalSource) Run(ctx context.Context) {
	s.logger.Info("interval source started", map[string]any{
		"interval": s.interval.String(),
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("interval source stopped", nil)
			return
		case now := <-ticker.C:
			s.collector.IncIntervalTick()
			if !Emit(s.events, types.TriggerEvent{Kind: types.TriggerIntervalTick, At: now}, s.collector) {
				s.logger.Debug("interval tick dropped, capture in flight", nil)
			}
		}
	}
}
