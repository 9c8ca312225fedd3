// Package trigger provides the two capture trigger sources: an
// edge-triggered hardware-line listener and a fixed-interval timer.
//
// Both sources run as independent goroutines and emit TriggerEvents into a
// single shared channel consumed by the capture coordinator. Sends are
// non-blocking: while the coordinator is busy capturing it is not
// receiving, so a concurrent trigger arrival is discarded rather than
// queued (drop-if-busy). A slow capture never builds a request backlog.
package trigger

import (
	"github.com/printlapse/printlapse/metrics"
	"github.com/printlapse/printlapse/types"
)

// Emit performs a non-blocking send of ev into events.
// Returns false if the coordinator was busy and the event was dropped.
func Emit(events chan<- types.TriggerEvent, ev types.TriggerEvent, collector *metrics.Collector) bool {
	select {
	case events <- ev:
		return true
	default:
		collector.IncEventDropped()
		return false
	}
}
