package trigger

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/metrics"
	"github.com/printlapse/printlapse/types"
)

func testLogger() *log.Logger {
	return log.NewLogger("test").WithOutput(io.Discard)
}

func TestEmit_DeliversToWaitingReceiver(t *testing.T) {
	events := make(chan types.TriggerEvent)
	got := make(chan types.TriggerEvent, 1)
	go func() { got <- <-events }()

	// Give the receiver a moment to block on the channel.
	time.Sleep(10 * time.Millisecond)

	ev := types.TriggerEvent{Kind: types.TriggerHardwareEdge, At: time.Now()}
	if !Emit(events, ev, nil) {
		t.Fatal("emit must succeed with a waiting receiver")
	}

	select {
	case received := <-got:
		if received.Kind != types.TriggerHardwareEdge {
			t.Errorf("unexpected kind %s", received.Kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEmit_DropsWithoutReceiver(t *testing.T) {
	events := make(chan types.TriggerEvent)
	collector := metrics.NewCollector()

	ev := types.TriggerEvent{Kind: types.TriggerIntervalTick, At: time.Now()}
	if Emit(events, ev, collector) {
		t.Fatal("emit must drop with no receiver")
	}
	if collector.Snapshot().EventsDropped != 1 {
		t.Error("drop must be counted")
	}
}

func TestIntervalSource_EmitsTicks(t *testing.T) {
	events := make(chan types.TriggerEvent)
	collector := metrics.NewCollector()
	src := NewIntervalSource(20*time.Millisecond, events, testLogger(), collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			if ev.Kind != types.TriggerIntervalTick {
				t.Fatalf("unexpected kind %s", ev.Kind)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for tick")
		}
	}

	if collector.Snapshot().IntervalTicks < 2 {
		t.Error("ticks must be counted")
	}
}

func TestIntervalSource_StopsOnCancel(t *testing.T) {
	events := make(chan types.TriggerEvent)
	src := NewIntervalSource(10*time.Millisecond, events, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("interval source did not stop")
	}
}
