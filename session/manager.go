// Package session owns capture-session lifecycle and directory naming.
//
// Exactly one session may be open at a time. Session directories are named
// <base>/<YYYY-MM-DD>/<HHMMSS>/ with fixed-width zero-padded fields, so a
// lexical sort of directory names equals chronological order. The
// most-recent-session discovery used by ad-hoc compilation depends on this.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/types"
)

// metadataFile is the per-session metadata sidecar.
const metadataFile = "metadata.json"

// Metadata is the JSON sidecar written into each session directory.
type Metadata struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time,omitempty"`
	TotalImages int    `json:"total_images,omitempty"`
}

// Manager owns the open session and serializes all session mutation.
// The capture coordinator and compile dispatch share this serialization
// domain: a compile request never observes a partially appended frame list.
type Manager struct {
	base   string
	logger *log.Logger

	mu        sync.Mutex
	open      *types.Session
	compiling map[string]struct{}
}

// NewManager creates a session manager rooted at base.
func NewManager(base string, logger *log.Logger) *Manager {
	return &Manager{
		base:      base,
		logger:    logger,
		compiling: make(map[string]struct{}),
	}
}

// EnsureOpen returns the open session, creating a new timestamped session
// directory if none exists. A capture request always targets the open
// session, creating one lazily.
func (m *Manager) EnsureOpen(now time.Time) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open != nil {
		return m.open, nil
	}

	s := types.NewSession(m.base, now)
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir %q: %w", s.Dir, err)
	}

	meta := Metadata{StartTime: s.StartedAt.Format(time.RFC3339)}
	if err := writeMetadata(s.Dir, meta); err != nil {
		m.logger.Warn("failed to write session metadata", map[string]any{
			"dir":   s.Dir,
			"error": err.Error(),
		})
	}

	m.open = s
	m.logger.Info("session opened", map[string]any{
		"session_id": s.ID,
		"dir":        s.Dir,
	})
	return s, nil
}

// Open returns the currently open session, or nil.
func (m *Manager) Open() *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// ReserveFrame allocates the next sequence number and frame path for the
// open session. A failed capture burns the number; gaps do not break the
// lexical-order invariant.
func (m *Manager) ReserveFrame(s *types.Session) (seq int, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.State != types.SessionOpen {
		return 0, "", types.ErrSessionClosed
	}
	seq = s.NextSeq
	s.NextSeq++
	return seq, filepath.Join(s.Dir, types.FrameFilename(seq)), nil
}

// Append records a successfully captured frame on the open session.
func (m *Manager) Append(s *types.Session, frame types.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.State != types.SessionOpen {
		return types.ErrSessionClosed
	}
	s.Frames = append(s.Frames, frame)
	return nil
}

// Close transitions the open session to Closed and returns it, updating
// the metadata sidecar. Returns nil if no session is open. A subsequent
// capture event opens a fresh session rather than reusing the closed one.
func (m *Manager) Close() *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.open
	if s == nil {
		return nil
	}
	s.State = types.SessionClosed
	m.open = nil

	meta, err := readMetadata(s.Dir)
	if err != nil {
		meta = Metadata{StartTime: s.StartedAt.Format(time.RFC3339)}
	}
	meta.EndTime = time.Now().Format(time.RFC3339)
	meta.TotalImages = len(s.Frames)
	if err := writeMetadata(s.Dir, meta); err != nil {
		m.logger.Warn("failed to update session metadata", map[string]any{
			"dir":   s.Dir,
			"error": err.Error(),
		})
	}

	m.logger.Info("session closed", map[string]any{
		"session_id": s.ID,
		"frames":     len(s.Frames),
	})
	return s
}

// BeginCompile marks a session directory as having an active compilation.
// Returns ErrCompileInFlight if one is already running for that directory;
// compilations for different sessions may run concurrently.
func (m *Manager) BeginCompile(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.compiling[dir]; busy {
		return fmt.Errorf("%w: %s", types.ErrCompileInFlight, dir)
	}
	m.compiling[dir] = struct{}{}
	return nil
}

// EndCompile clears the active-compilation mark for a session directory.
func (m *Manager) EndCompile(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.compiling, dir)
}

// MostRecent returns the most recently created session directory under the
// base path, by lexical ordering of the date and time components.
func (m *Manager) MostRecent() (string, error) {
	dates, err := sortedSubdirs(m.base)
	if err != nil {
		return "", fmt.Errorf("scan session base %q: %w", m.base, err)
	}
	// Walk dates newest-first; skip date dirs with no session subdirs.
	for i := len(dates) - 1; i >= 0; i-- {
		dateDir := filepath.Join(m.base, dates[i])
		times, err := sortedSubdirs(dateDir)
		if err != nil {
			return "", fmt.Errorf("scan date dir %q: %w", dateDir, err)
		}
		if len(times) > 0 {
			return filepath.Join(dateDir, times[len(times)-1]), nil
		}
	}
	return "", fmt.Errorf("no session directories under %s", m.base)
}

// Info is a thin session listing entry.
type Info struct {
	ID         string `json:"id"`
	Dir        string `json:"dir"`
	FrameCount int    `json:"frame_count"`
	HasVideo   bool   `json:"has_video"`
}

// List returns all session directories under the base path in
// chronological order with frame counts.
func (m *Manager) List() ([]Info, error) {
	dates, err := sortedSubdirs(m.base)
	if err != nil {
		return nil, fmt.Errorf("scan session base %q: %w", m.base, err)
	}

	var infos []Info
	for _, date := range dates {
		dateDir := filepath.Join(m.base, date)
		times, err := sortedSubdirs(dateDir)
		if err != nil {
			return nil, err
		}
		for _, clock := range times {
			dir := filepath.Join(dateDir, clock)
			frames, video := scanSessionDir(dir)
			infos = append(infos, Info{
				ID:         date + "/" + clock,
				Dir:        dir,
				FrameCount: frames,
				HasVideo:   video,
			})
		}
	}
	return infos, nil
}

// scanSessionDir counts frame images and checks for a compiled video.
func scanSessionDir(dir string) (frames int, hasVideo bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasPrefix(name, "frame_") && strings.HasSuffix(name, ".jpg"):
			frames++
		case strings.HasSuffix(name, ".mp4"):
			hasVideo = true
		}
	}
	return frames, hasVideo
}

// sortedSubdirs returns the lexically sorted subdirectory names of dir.
func sortedSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func writeMetadata(dir string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metadataFile), data, 0o644)
}

func readMetadata(dir string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}
