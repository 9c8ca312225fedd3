package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/types"
)

// fakeCaptureScript writes a shell script standing in for rpicam-still.
// The output path arrives as the argument after -o, which is always $2.
func fakeCaptureScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-camera")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func cameraConfig(command string) config.CameraConfig {
	cfg := config.CameraConfig{
		Command:    command,
		Resolution: "max",
		Quality:    85,
	}
	cfg.Timeout.Duration = 5 * time.Second
	return cfg
}

func TestCapture_WritesFrameAtomically(t *testing.T) {
	script := fakeCaptureScript(t, `printf jpeg-data > "$2"`)
	cam := NewCommandCamera(cameraConfig(script), testLogger())

	out := filepath.Join(t.TempDir(), "frame_00000.jpg")
	if err := cam.Capture(context.Background(), out); err != nil {
		t.Fatalf("capture: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("frame missing: %v", err)
	}
	if string(data) != "jpeg-data" {
		t.Errorf("unexpected frame content %q", data)
	}
	// The temporary name must be gone after the rename.
	if _, err := os.Stat(out + ".part"); !os.IsNotExist(err) {
		t.Error("temporary capture file left behind")
	}
}

func TestCapture_ProcessFailure(t *testing.T) {
	script := fakeCaptureScript(t, `echo "no camera detected" >&2; exit 1`)
	cam := NewCommandCamera(cameraConfig(script), testLogger())

	out := filepath.Join(t.TempDir(), "frame_00000.jpg")
	err := cam.Capture(context.Background(), out)
	if !errors.Is(err, types.ErrCaptureProcess) {
		t.Fatalf("expected ErrCaptureProcess, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("failed capture must not produce a frame")
	}
}

func TestCapture_EmptyOutputIsFailure(t *testing.T) {
	script := fakeCaptureScript(t, `: > "$2"`)
	cam := NewCommandCamera(cameraConfig(script), testLogger())

	out := filepath.Join(t.TempDir(), "frame_00000.jpg")
	if err := cam.Capture(context.Background(), out); !errors.Is(err, types.ErrCaptureProcess) {
		t.Fatalf("expected ErrCaptureProcess for empty image, got %v", err)
	}
}

func TestCapture_Timeout(t *testing.T) {
	script := fakeCaptureScript(t, `sleep 5`)
	cfg := cameraConfig(script)
	cfg.Timeout.Duration = 50 * time.Millisecond
	cam := NewCommandCamera(cfg, testLogger())

	out := filepath.Join(t.TempDir(), "frame_00000.jpg")
	if err := cam.Capture(context.Background(), out); !errors.Is(err, types.ErrCaptureTimeout) {
		t.Fatalf("expected ErrCaptureTimeout, got %v", err)
	}
}

func TestCapture_ResolutionArgs(t *testing.T) {
	// The script records its arguments so the test can assert on them.
	argsFile := filepath.Join(t.TempDir(), "args")
	script := fakeCaptureScript(t, `echo "$@" > `+argsFile+`; printf jpeg > "$2"`)

	cfg := cameraConfig(script)
	cfg.Resolution = "1920x1080"
	cfg.Rotation = 180
	cfg.HFlip = true
	cam := NewCommandCamera(cfg, testLogger())

	out := filepath.Join(t.TempDir(), "frame_00000.jpg")
	if err := cam.Capture(context.Background(), out); err != nil {
		t.Fatalf("capture: %v", err)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"--width 1920", "--height 1080", "--rotation 180", "--hflip", "--quality 85"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("missing %q in args: %s", want, args)
		}
	}
}

func TestWarmup_RunsRequestedCaptures(t *testing.T) {
	countFile := filepath.Join(t.TempDir(), "count")
	script := fakeCaptureScript(t, `echo run >> `+countFile+`; printf jpeg > "$2"`)
	cam := NewCommandCamera(cameraConfig(script), testLogger())

	cam.Warmup(context.Background(), 2)

	data, err := os.ReadFile(countFile)
	if err != nil {
		t.Fatalf("warmup never invoked the camera: %v", err)
	}
	if got := strings.Count(string(data), "run"); got != 2 {
		t.Errorf("expected 2 warmup captures, got %d", got)
	}
}

func TestWarmup_AbsorbsFailures(t *testing.T) {
	countFile := filepath.Join(t.TempDir(), "count")
	script := fakeCaptureScript(t, `echo run >> `+countFile+`; exit 1`)
	cam := NewCommandCamera(cameraConfig(script), testLogger())

	// Failing warmup captures must not panic or stop the loop early.
	cam.Warmup(context.Background(), 3)

	data, err := os.ReadFile(countFile)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "run"); got != 3 {
		t.Errorf("expected 3 attempts despite failures, got %d", got)
	}
}

func TestCapture_InvalidResolution(t *testing.T) {
	cfg := cameraConfig("true")
	cfg.Resolution = "wide"
	cam := NewCommandCamera(cfg, testLogger())

	if err := cam.Capture(context.Background(), filepath.Join(t.TempDir(), "f.jpg")); !errors.Is(err, types.ErrCaptureProcess) {
		t.Fatalf("expected ErrCaptureProcess, got %v", err)
	}
}
