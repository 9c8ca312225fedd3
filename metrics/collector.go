// Package metrics provides service-lifetime counter collection.
//
// The Collector accumulates counters while the service runs. It is a leaf
// package with no internal dependencies. All increment methods are
// nil-receiver safe so call sites never need nil checks.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Triggers
	EdgesAccepted  int64
	EdgesDebounced int64
	IntervalTicks  int64
	EventsDropped  int64 // drop-if-busy discards

	// Captures
	CapturesStarted   int64
	CapturesSucceeded int64
	CapturesFailed    int64

	// Compilations
	CompilesStarted   int64
	CompilesSucceeded int64
	CompilesFailed    int64

	// Transfers
	TransferAttempts  int64
	TransferSuccesses int64
	TransferExhausted int64

	// Connect snapshots
	SnapshotsUploaded int64
	SnapshotsFailed   int64
}

// Fields renders the snapshot as structured log fields. Zero counters are
// included so shutdown summaries always carry the full counter set.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"edges_accepted":     s.EdgesAccepted,
		"edges_debounced":    s.EdgesDebounced,
		"interval_ticks":     s.IntervalTicks,
		"events_dropped":     s.EventsDropped,
		"captures_started":   s.CapturesStarted,
		"captures_succeeded": s.CapturesSucceeded,
		"captures_failed":    s.CapturesFailed,
		"compiles_started":   s.CompilesStarted,
		"compiles_succeeded": s.CompilesSucceeded,
		"compiles_failed":    s.CompilesFailed,
		"transfer_attempts":  s.TransferAttempts,
		"transfer_successes": s.TransferSuccesses,
		"transfer_exhausted": s.TransferExhausted,
		"snapshots_uploaded": s.SnapshotsUploaded,
		"snapshots_failed":   s.SnapshotsFailed,
	}
}

// Collector accumulates counters for the running service.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	edgesAccepted  int64
	edgesDebounced int64
	intervalTicks  int64
	eventsDropped  int64

	capturesStarted   int64
	capturesSucceeded int64
	capturesFailed    int64

	compilesStarted   int64
	compilesSucceeded int64
	compilesFailed    int64

	transferAttempts  int64
	transferSuccesses int64
	transferExhausted int64

	snapshotsUploaded int64
	snapshotsFailed   int64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// inc increments a counter under the mutex. Callers perform the nil check.
func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Triggers ---

// IncEdgeAccepted records an accepted hardware edge.
func (c *Collector) IncEdgeAccepted() {
	if c == nil {
		return
	}
	c.inc(&c.edgesAccepted)
}

// IncEdgeDebounced records a hardware edge discarded by the debounce window.
func (c *Collector) IncEdgeDebounced() {
	if c == nil {
		return
	}
	c.inc(&c.edgesDebounced)
}

// IncIntervalTick records an interval timer tick.
func (c *Collector) IncIntervalTick() {
	if c == nil {
		return
	}
	c.inc(&c.intervalTicks)
}

// IncEventDropped records a trigger event discarded by drop-if-busy.
func (c *Collector) IncEventDropped() {
	if c == nil {
		return
	}
	c.inc(&c.eventsDropped)
}

// --- Captures ---

// IncCaptureStarted records a capture invocation.
func (c *Collector) IncCaptureStarted() {
	if c == nil {
		return
	}
	c.inc(&c.capturesStarted)
}

// IncCaptureSucceeded records a successful capture.
func (c *Collector) IncCaptureSucceeded() {
	if c == nil {
		return
	}
	c.inc(&c.capturesSucceeded)
}

// IncCaptureFailed records a failed or timed-out capture.
func (c *Collector) IncCaptureFailed() {
	if c == nil {
		return
	}
	c.inc(&c.capturesFailed)
}

// --- Compilations ---

// IncCompileStarted records a compilation job start.
func (c *Collector) IncCompileStarted() {
	if c == nil {
		return
	}
	c.inc(&c.compilesStarted)
}

// IncCompileSucceeded records a successful compilation.
func (c *Collector) IncCompileSucceeded() {
	if c == nil {
		return
	}
	c.inc(&c.compilesSucceeded)
}

// IncCompileFailed records a failed compilation.
func (c *Collector) IncCompileFailed() {
	if c == nil {
		return
	}
	c.inc(&c.compilesFailed)
}

// --- Transfers ---

// IncTransferAttempt records one transfer attempt.
func (c *Collector) IncTransferAttempt() {
	if c == nil {
		return
	}
	c.inc(&c.transferAttempts)
}

// IncTransferSuccess records a terminal transfer success.
func (c *Collector) IncTransferSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.transferSuccesses)
}

// IncTransferExhausted records transfer retry exhaustion.
func (c *Collector) IncTransferExhausted() {
	if c == nil {
		return
	}
	c.inc(&c.transferExhausted)
}

// --- Connect snapshots ---

// IncSnapshotUploaded records a successful live snapshot upload.
func (c *Collector) IncSnapshotUploaded() {
	if c == nil {
		return
	}
	c.inc(&c.snapshotsUploaded)
}

// IncSnapshotFailed records a failed live snapshot upload.
func (c *Collector) IncSnapshotFailed() {
	if c == nil {
		return
	}
	c.inc(&c.snapshotsFailed)
}

// Snapshot returns a point-in-time copy of all counters.
// Nil-receiver safe: returns a zero Snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		EdgesAccepted:     c.edgesAccepted,
		EdgesDebounced:    c.edgesDebounced,
		IntervalTicks:     c.intervalTicks,
		EventsDropped:     c.eventsDropped,
		CapturesStarted:   c.capturesStarted,
		CapturesSucceeded: c.capturesSucceeded,
		CapturesFailed:    c.capturesFailed,
		CompilesStarted:   c.compilesStarted,
		CompilesSucceeded: c.compilesSucceeded,
		CompilesFailed:    c.compilesFailed,
		TransferAttempts:  c.transferAttempts,
		TransferSuccesses: c.transferSuccesses,
		TransferExhausted: c.transferExhausted,
		SnapshotsUploaded: c.snapshotsUploaded,
		SnapshotsFailed:   c.snapshotsFailed,
	}
}
