package types

import "time"

// JobStatus is the terminal status of a compilation job.
type JobStatus string

const (
	// JobSuccess means the encoder produced a video file.
	JobSuccess JobStatus = "success"
	// JobFailed means gathering or encoding failed. Encoder failure is
	// terminal for the job; compilation is re-runnable by the operator,
	// never auto-retried.
	JobFailed JobStatus = "failed"
)

// TransferStatus is the terminal status of the transfer retry loop.
type TransferStatus string

const (
	// TransferSkipped means network upload was not configured.
	TransferSkipped TransferStatus = "skipped"
	// TransferSuccess means one attempt copied the video to the remote.
	TransferSuccess TransferStatus = "success"
	// TransferExhausted means all attempts failed. Non-fatal to the
	// process; the local video stays in place for manual recovery.
	TransferExhausted TransferStatus = "exhausted_retries"
)

// JobOutcome is the terminal outcome of a compilation job.
type JobOutcome struct {
	// Status is the terminal job status.
	Status JobStatus
	// OutputPath is the produced video path (success only).
	OutputPath string
	// OutputBytes is the video size in bytes (success only).
	OutputBytes int64
	// FrameCount is the number of frames fed to the encoder.
	FrameCount int
	// Transfer is the transfer loop outcome.
	Transfer TransferStatus
	// Message is a human-readable description, set on failure.
	Message string
}

// CompilationJob is the unit of work converting one session's frames into
// one video artifact.
type CompilationJob struct {
	// JobID is a unique identifier for this job.
	JobID string
	// SessionID is the identifier of the session being compiled.
	SessionID string
	// SessionDir is the session directory holding the frames.
	SessionDir string
	// StartedAt is the job start time. Output filename tokens are
	// resolved from this time, not from capture time.
	StartedAt time.Time
}
