package compile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/types"
)

// fakeEncoderScript writes a shell script standing in for ffmpeg. The
// output path is always the last argument.
func fakeEncoderScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func videoConfig(command string) config.VideoConfig {
	return config.VideoConfig{
		Command:    command,
		Framerate:  30,
		Codec:      "libx264",
		Preset:     "medium",
		CRF:        23,
		Resolution: "source",
	}
}

func testFrames(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	frames := make([]string, n)
	for i := range frames {
		frames[i] = filepath.Join(dir, types.FrameFilename(i))
		if err := os.WriteFile(frames[i], []byte("jpeg"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return frames
}

func TestEncode_ProducesVideoAtomically(t *testing.T) {
	script := fakeEncoderScript(t, `printf mp4-data > "$last"`)
	enc := NewFFmpegEncoder(videoConfig(script), testLogger())

	out := filepath.Join(t.TempDir(), "timelapse.mp4")
	if err := enc.Encode(context.Background(), testFrames(t, 3), out); err != nil {
		t.Fatalf("encode: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("video missing: %v", err)
	}
	if string(data) != "mp4-data" {
		t.Errorf("unexpected video content %q", data)
	}
	if _, err := os.Stat(out + ".part"); !os.IsNotExist(err) {
		t.Error("temporary video file left behind")
	}
	if _, err := os.Stat(out + ".frames.txt"); !os.IsNotExist(err) {
		t.Error("concat list left behind")
	}
}

func TestEncode_NoFrames(t *testing.T) {
	enc := NewFFmpegEncoder(videoConfig("true"), testLogger())
	err := enc.Encode(context.Background(), nil, filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, types.ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
}

func TestEncode_ProcessFailure(t *testing.T) {
	script := fakeEncoderScript(t, `echo "unknown encoder" >&2; exit 1`)
	enc := NewFFmpegEncoder(videoConfig(script), testLogger())

	out := filepath.Join(t.TempDir(), "out.mp4")
	err := enc.Encode(context.Background(), testFrames(t, 2), out)
	if !errors.Is(err, types.ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown encoder") {
		t.Errorf("error must carry process output, got %q", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("failed encode must not leave a video")
	}
}

func TestEncode_EmptyOutputIsFailure(t *testing.T) {
	script := fakeEncoderScript(t, `: > "$last"`)
	enc := NewFFmpegEncoder(videoConfig(script), testLogger())

	err := enc.Encode(context.Background(), testFrames(t, 2), filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, types.ErrEncode) {
		t.Fatalf("expected ErrEncode for empty video, got %v", err)
	}
}

func TestEncode_InvalidResolution(t *testing.T) {
	cfg := videoConfig("true")
	cfg.Resolution = "vertical"
	enc := NewFFmpegEncoder(cfg, testLogger())

	err := enc.Encode(context.Background(), testFrames(t, 1), filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, types.ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", err)
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "frames.txt")
	frames := []string{
		filepath.Join(dir, "frame_00000.jpg"),
		filepath.Join(dir, "it's.jpg"),
	}

	if err := writeConcatList(listPath, frames); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "file '") {
		t.Errorf("unexpected line format %q", lines[0])
	}
	// Single quotes in paths are escaped for the concat demuxer.
	if !strings.Contains(lines[1], `it'\''s.jpg`) {
		t.Errorf("quote not escaped: %q", lines[1])
	}
}

func TestLetterboxFilter(t *testing.T) {
	got := letterboxFilter(1920, 1080)
	want := "scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTail(t *testing.T) {
	if got := tail([]byte("short"), 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := tail([]byte("a long error message"), 7); got != "...message" {
		t.Errorf("unexpected %q", got)
	}
}
