package metrics

import (
	"sync"
	"testing"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.IncEdgeAccepted()
	c.IncEdgeAccepted()
	c.IncEdgeDebounced()
	c.IncIntervalTick()
	c.IncEventDropped()
	c.IncCaptureStarted()
	c.IncCaptureSucceeded()
	c.IncCaptureFailed()
	c.IncCompileStarted()
	c.IncCompileSucceeded()
	c.IncCompileFailed()
	c.IncTransferAttempt()
	c.IncTransferSuccess()
	c.IncTransferExhausted()
	c.IncSnapshotUploaded()
	c.IncSnapshotFailed()

	snap := c.Snapshot()
	if snap.EdgesAccepted != 2 {
		t.Errorf("expected 2 accepted edges, got %d", snap.EdgesAccepted)
	}
	if snap.EdgesDebounced != 1 || snap.IntervalTicks != 1 || snap.EventsDropped != 1 {
		t.Errorf("unexpected trigger counters %+v", snap)
	}
	if snap.CapturesStarted != 1 || snap.CapturesSucceeded != 1 || snap.CapturesFailed != 1 {
		t.Errorf("unexpected capture counters %+v", snap)
	}
	if snap.TransferAttempts != 1 || snap.TransferSuccesses != 1 || snap.TransferExhausted != 1 {
		t.Errorf("unexpected transfer counters %+v", snap)
	}
	if snap.SnapshotsUploaded != 1 || snap.SnapshotsFailed != 1 {
		t.Errorf("unexpected snapshot counters %+v", snap)
	}
}

func TestSnapshot_Fields(t *testing.T) {
	c := NewCollector()
	c.IncEdgeAccepted()
	c.IncCaptureSucceeded()
	c.IncCaptureSucceeded()

	fields := c.Snapshot().Fields()
	if got := fields["edges_accepted"]; got != int64(1) {
		t.Errorf("expected edges_accepted 1, got %v", got)
	}
	if got := fields["captures_succeeded"]; got != int64(2) {
		t.Errorf("expected captures_succeeded 2, got %v", got)
	}
	// Zero counters stay present so a shutdown summary is complete.
	if got, ok := fields["transfer_exhausted"]; !ok || got != int64(0) {
		t.Errorf("expected transfer_exhausted 0 present, got %v (ok=%v)", got, ok)
	}
	if len(fields) != 15 {
		t.Errorf("expected 15 fields, got %d", len(fields))
	}
}

func TestCollector_NilReceiverSafe(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.IncEdgeAccepted()
	c.IncEventDropped()
	c.IncCaptureStarted()
	c.IncCompileFailed()
	c.IncTransferExhausted()
	c.IncSnapshotUploaded()

	if snap := c.Snapshot(); snap != (Snapshot{}) {
		t.Errorf("nil collector snapshot must be zero, got %+v", snap)
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncCaptureSucceeded()
			}
		}()
	}
	wg.Wait()

	if got := c.Snapshot().CapturesSucceeded; got != 5000 {
		t.Fatalf("expected 5000, got %d", got)
	}
}
