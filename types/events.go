package types

import "time"

// TriggerKind discriminates trigger event variants.
type TriggerKind string

const (
	// TriggerHardwareEdge is an accepted transition on the hardware
	// trigger line (one per print layer, pulsed by operator G-code).
	TriggerHardwareEdge TriggerKind = "hardware_edge"
	// TriggerIntervalTick is a periodic wake from the interval timer.
	TriggerIntervalTick TriggerKind = "interval_tick"
	// TriggerCompileRequest asks the coordinator to close the open
	// session and compile it into a video.
	TriggerCompileRequest TriggerKind = "compile_request"
)

// TriggerEvent is a capture or compile request emitted by a trigger source.
type TriggerEvent struct {
	// Kind is the variant discriminator.
	Kind TriggerKind
	// At is the trigger timestamp.
	At time.Time
	// SessionDir optionally names the session to compile. Empty means
	// the currently open session, or most-recent discovery if none is open.
	// Only meaningful for TriggerCompileRequest.
	SessionDir string
}
