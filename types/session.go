// Package types defines core domain types for the printlapse service.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"path/filepath"
	"time"
)

// SessionState is the lifecycle state of a capture session.
type SessionState string

const (
	// SessionOpen accepts new frames. Exactly one session may be open
	// at a time.
	SessionOpen SessionState = "open"
	// SessionClosed is immutable to new frames. A capture event after
	// closure opens a fresh session.
	SessionClosed SessionState = "closed"
)

// Session is the set of frames and metadata for one print run's timelapse.
//
// A session is identified by its creation timestamp at second resolution
// and owns an ordered, append-only sequence of frames. Directory naming is
// <base>/<YYYY-MM-DD>/<HHMMSS>/, fixed-width zero-padded so that lexical
// order of session directories equals chronological order.
type Session struct {
	// ID is "<date>/<time>", e.g. "2026-08-25/143052".
	ID string
	// Dir is the absolute session directory.
	Dir string
	// StartedAt is the session creation time.
	StartedAt time.Time
	// State is the lifecycle state.
	State SessionState
	// Frames is the ordered, append-only frame sequence.
	Frames []Frame
	// NextSeq is the sequence number assigned to the next frame, starts at 0.
	NextSeq int
}

// NewSession creates an open session rooted under base at the given time.
func NewSession(base string, now time.Time) *Session {
	date := now.Format("2006-01-02")
	clock := now.Format("150405")
	return &Session{
		ID:        date + "/" + clock,
		Dir:       filepath.Join(base, date, clock),
		StartedAt: now,
		State:     SessionOpen,
	}
}

// Frame is one captured image within a session.
//
// Frames are immutable once written and owned by exactly one session.
// The zero-padded sequence number in the filename guarantees that lexical
// order equals capture order; the encoder consumes files in lexical order
// and treats that order as time order.
type Frame struct {
	// Seq is the monotonically increasing sequence number, starts at 0.
	Seq int
	// Path is the absolute path of the image file.
	Path string
	// CapturedAt is the capture completion time.
	CapturedAt time.Time
}

// FrameFilename returns the canonical frame filename for a sequence number.
func FrameFilename(seq int) string {
	return fmt.Sprintf("frame_%05d.jpg", seq)
}
