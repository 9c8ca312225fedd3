package capture

import (
	"context"
	"time"

	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/metrics"
	"github.com/printlapse/printlapse/session"
	"github.com/printlapse/printlapse/types"
)

// CompileDispatch launches a compilation for a session directory. The
// coordinator calls it from its own goroutine after closing the session;
// the implementation runs the pipeline as an independent task per request.
type CompileDispatch func(sessionDir string)

// FrameObserver is notified after each successfully captured frame.
// Used by the Connect snapshot uploader; must not block.
type FrameObserver func(path string)

// Config tunes the coordinator.
type Config struct {
	// Debounce is the window after an accepted hardware edge during which
	// further edges are discarded silently. The window is anchored to the
	// last accepted edge; rejected edges do not slide it.
	Debounce time.Duration
	// LayerMode enables hardware-edge capture.
	LayerMode bool
	// LayerDelay is an optional settle delay between an accepted edge and
	// the capture invocation.
	LayerDelay time.Duration
	// TimeMode enables interval capture.
	TimeMode bool
}

// Coordinator is the single serialization point for the camera. It
// receives TriggerEvents from all sources over one channel and processes
// them one at a time, so no two capture invocations ever overlap. While a
// capture is in flight the coordinator is not receiving and trigger
// sources drop their events (drop-if-busy), never queue them.
type Coordinator struct {
	cfg       Config
	camera    Camera
	sessions  *session.Manager
	dispatch  CompileDispatch
	onFrame   FrameObserver
	events    chan types.TriggerEvent
	logger    *log.Logger
	collector *metrics.Collector

	lastAccepted time.Time
}

// NewCoordinator creates a coordinator. dispatch may be nil if compilation
// is handled elsewhere; onFrame may be nil.
func NewCoordinator(cfg Config, camera Camera, sessions *session.Manager, dispatch CompileDispatch, logger *log.Logger, collector *metrics.Collector) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		camera:    camera,
		sessions:  sessions,
		dispatch:  dispatch,
		events:    make(chan types.TriggerEvent),
		logger:    logger,
		collector: collector,
	}
}

// SetFrameObserver registers a per-frame callback. Call before Run.
func (c *Coordinator) SetFrameObserver(fn FrameObserver) {
	c.onFrame = fn
}

// Events returns the shared trigger channel. The channel is unbuffered:
// a send only succeeds while the coordinator is waiting for work.
func (c *Coordinator) Events() chan<- types.TriggerEvent {
	return c.events
}

// Run processes trigger events until ctx is canceled. Per-event failures
// are logged and absorbed; the coordinator always returns to its
// listening state.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Info("capture coordinator started", map[string]any{
		"debounce":   c.cfg.Debounce.String(),
		"layer_mode": c.cfg.LayerMode,
		"time_mode":  c.cfg.TimeMode,
	})

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("capture coordinator stopped", nil)
			return
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// handle processes one trigger event.
func (c *Coordinator) handle(ctx context.Context, ev types.TriggerEvent) {
	switch ev.Kind {
	case types.TriggerHardwareEdge:
		c.handleEdge(ctx, ev)
	case types.TriggerIntervalTick:
		if !c.cfg.TimeMode {
			return
		}
		c.capture(ctx, ev)
	case types.TriggerCompileRequest:
		c.handleCompile(ev)
	}
}

// handleEdge applies the debounce window, then captures.
// At most one accepted edge per window: an edge within the window of the
// last accepted edge is discarded silently, producing no frame and no error.
func (c *Coordinator) handleEdge(ctx context.Context, ev types.TriggerEvent) {
	if !c.cfg.LayerMode {
		c.logger.Debug("layer mode disabled, ignoring edge", nil)
		return
	}

	if !c.lastAccepted.IsZero() && ev.At.Sub(c.lastAccepted) < c.cfg.Debounce {
		c.collector.IncEdgeDebounced()
		return
	}
	c.lastAccepted = ev.At
	c.collector.IncEdgeAccepted()

	// Let the print head move clear of the part before capturing.
	if c.cfg.LayerDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.LayerDelay):
		}
	}

	c.capture(ctx, ev)
}

// capture invokes the camera into the next frame slot of the open session.
// A single failed capture never aborts the run or the session.
func (c *Coordinator) capture(ctx context.Context, ev types.TriggerEvent) {
	s, err := c.sessions.EnsureOpen(ev.At)
	if err != nil {
		c.logger.Error("cannot open session", map[string]any{"error": err.Error()})
		return
	}
	slog := c.logger.WithSession(s.ID)

	seq, path, err := c.sessions.ReserveFrame(s)
	if err != nil {
		slog.Error("cannot reserve frame", map[string]any{"error": err.Error()})
		return
	}

	c.collector.IncCaptureStarted()
	if err := c.camera.Capture(ctx, path); err != nil {
		c.collector.IncCaptureFailed()
		slog.Error("capture failed", map[string]any{
			"seq":     seq,
			"trigger": string(ev.Kind),
			"error":   err.Error(),
		})
		return
	}

	capturedAt := time.Now()
	if err := c.sessions.Append(s, types.Frame{Seq: seq, Path: path, CapturedAt: capturedAt}); err != nil {
		slog.Error("cannot append frame", map[string]any{"seq": seq, "error": err.Error()})
		return
	}

	c.collector.IncCaptureSucceeded()
	slog.Info("frame captured", map[string]any{
		"seq":     seq,
		"trigger": string(ev.Kind),
	})

	if c.onFrame != nil {
		c.onFrame(path)
	}
}

// handleCompile closes the target session and launches a compilation.
// Processing happens in the coordinator loop, so a compile request is
// naturally serialized after any in-flight capture: close never observes
// a partially appended frame list.
func (c *Coordinator) handleCompile(ev types.TriggerEvent) {
	dir := ev.SessionDir

	if open := c.sessions.Open(); open != nil && (dir == "" || dir == open.Dir) {
		closed := c.sessions.Close()
		dir = closed.Dir
	}

	if dir == "" {
		recent, err := c.sessions.MostRecent()
		if err != nil {
			c.logger.Warn("compile requested but no session found", map[string]any{
				"error": err.Error(),
			})
			return
		}
		dir = recent
	}

	if c.dispatch == nil {
		c.logger.Warn("compile requested but no pipeline configured", map[string]any{"dir": dir})
		return
	}

	c.logger.Info("compile dispatched", map[string]any{"dir": dir})
	go c.dispatch(dir)
}
