package types

import (
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func TestNewSession_DirNaming(t *testing.T) {
	now := time.Date(2026, 8, 25, 9, 5, 3, 0, time.Local)
	s := NewSession("/data/timelapse", now)

	if s.Dir != filepath.Join("/data/timelapse", "2026-08-25", "090503") {
		t.Errorf("unexpected dir %q", s.Dir)
	}
	if s.ID != "2026-08-25/090503" {
		t.Errorf("unexpected id %q", s.ID)
	}
	if s.State != SessionOpen {
		t.Error("new session must be open")
	}
	if s.NextSeq != 0 {
		t.Errorf("new session must start at seq 0, got %d", s.NextSeq)
	}
}

func TestFrameFilename_LexicalOrderEqualsCaptureOrder(t *testing.T) {
	// Zero padding keeps lexical order equal to numeric order well past
	// any realistic session length.
	names := []string{
		FrameFilename(0),
		FrameFilename(9),
		FrameFilename(10),
		FrameFilename(99),
		FrameFilename(100),
		FrameFilename(12345),
	}

	if !sort.StringsAreSorted(names) {
		t.Fatalf("frame filenames not lexically ordered: %v", names)
	}
	if names[0] != "frame_00000.jpg" {
		t.Errorf("unexpected first filename %q", names[0])
	}
}
