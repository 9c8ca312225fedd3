// Package adapter defines the out-of-band integration boundary.
//
// Adapters publish compilation completion notifications to downstream
// systems and, where the transport allows it, accept compile triggers from
// them. The service owns adapter lifecycle; users provide configuration
// only.
package adapter

import (
	"context"
	"time"

	"github.com/printlapse/printlapse/types"
)

// CompileCompletedEvent is the payload published when a compilation job
// reaches a terminal state.
type CompileCompletedEvent struct {
	EventType   string `json:"event_type"` // always "compile_completed"
	JobID       string `json:"job_id"`
	SessionID   string `json:"session_id"`
	SessionDir  string `json:"session_dir"`
	Status      string `json:"status"` // success or failed
	OutputPath  string `json:"output_path,omitempty"`
	OutputBytes int64  `json:"output_bytes,omitempty"`
	FrameCount  int    `json:"frame_count"`
	Transfer    string `json:"transfer"` // skipped, success, exhausted_retries
	Message     string `json:"message,omitempty"`
	Timestamp   string `json:"timestamp"` // ISO 8601
}

// FromOutcome builds the completion event for a finished job.
func FromOutcome(job *types.CompilationJob, outcome *types.JobOutcome) *CompileCompletedEvent {
	return &CompileCompletedEvent{
		EventType:   "compile_completed",
		JobID:       job.JobID,
		SessionID:   job.SessionID,
		SessionDir:  job.SessionDir,
		Status:      string(outcome.Status),
		OutputPath:  outcome.OutputPath,
		OutputBytes: outcome.OutputBytes,
		FrameCount:  outcome.FrameCount,
		Transfer:    string(outcome.Transfer),
		Message:     outcome.Message,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// Adapter publishes compilation completion events to a downstream system.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *CompileCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
