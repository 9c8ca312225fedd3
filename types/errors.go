package types

import "errors"

// Error taxonomy. Per-event errors (capture, single transfer attempt) are
// logged and absorbed locally; the orchestrator always returns to its
// listening state. Only ErrConfig is fatal, and only at startup.
var (
	// ErrCaptureTimeout means the capture process exceeded its bounded timeout.
	ErrCaptureTimeout = errors.New("capture timeout")
	// ErrCaptureProcess means the capture process failed or produced no file.
	ErrCaptureProcess = errors.New("capture process error")
	// ErrNoImages means a session directory contains zero capturable images.
	ErrNoImages = errors.New("no images in session")
	// ErrEncode means the encoder failed. Terminal for the job, no retry.
	ErrEncode = errors.New("encode error")
	// ErrTransfer means a single transfer attempt failed. Recoverable by retry.
	ErrTransfer = errors.New("transfer failure")
	// ErrTransferExhausted means all transfer attempts failed. Terminal per
	// job, non-fatal to the process.
	ErrTransferExhausted = errors.New("transfer retries exhausted")
	// ErrConfig means the configuration is invalid. Fatal at startup only.
	ErrConfig = errors.New("invalid configuration")
	// ErrSessionClosed means a frame append was attempted on a closed session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrCompileInFlight means a session already has an active compilation.
	ErrCompileInFlight = errors.New("compilation already in flight for session")
)
