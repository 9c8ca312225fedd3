// Package capture owns the camera resource: it serializes trigger events,
// debounces spurious hardware edges, invokes the external capture process
// and records frames into the active session.
package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/types"
)

// Camera abstracts the external capture process for testing.
// Capture writes one image file to outputPath or fails.
type Camera interface {
	Capture(ctx context.Context, outputPath string) error
}

// CommandCamera invokes a still-capture binary (rpicam-still or
// libcamera-still). Exit code 0 plus a non-empty output file means success.
type CommandCamera struct {
	cfg    config.CameraConfig
	logger *log.Logger
}

// NewCommandCamera creates a camera backed by the configured capture command.
func NewCommandCamera(cfg config.CameraConfig, logger *log.Logger) *CommandCamera {
	return &CommandCamera{cfg: cfg, logger: logger}
}

// Capture runs one bounded capture into outputPath. The image is written
// to a temporary name and renamed only after the process succeeds, so a
// killed capture never leaves a partial frame that would be silently
// reused on restart.
func (c *CommandCamera) Capture(ctx context.Context, outputPath string) error {
	tmpPath := outputPath + ".part"

	args := []string{"-o", tmpPath, "-n", "-t", "1"}
	if c.cfg.Resolution != "max" {
		width, height, err := config.ParseResolution(c.cfg.Resolution)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrCaptureProcess, err)
		}
		args = append(args, "--width", strconv.Itoa(width), "--height", strconv.Itoa(height))
	}
	args = append(args, "--quality", strconv.Itoa(c.cfg.Quality))
	if c.cfg.Rotation != 0 {
		args = append(args, "--rotation", strconv.Itoa(c.cfg.Rotation))
	}
	if c.cfg.HFlip {
		args = append(args, "--hflip")
	}
	if c.cfg.VFlip {
		args = append(args, "--vflip")
	}

	captureCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout.Duration)
	defer cancel()

	cmd := exec.CommandContext(captureCtx, c.cfg.Command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(tmpPath)
		if captureCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s exceeded %s", types.ErrCaptureTimeout, c.cfg.Command, c.cfg.Timeout.Duration)
		}
		return fmt.Errorf("%w: %s: %v: %s", types.ErrCaptureProcess, c.cfg.Command, err, truncate(output, 200))
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %s exited 0 but produced no image", types.ErrCaptureProcess, c.cfg.Command)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename frame: %v", types.ErrCaptureProcess, err)
	}

	return nil
}

// Warmup performs throwaway low-resolution captures so the sensor can
// settle exposure before the first real frame. Failures are logged and
// absorbed; warmup is best effort.
func (c *CommandCamera) Warmup(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	c.logger.Info("warming up camera", map[string]any{"captures": count})

	warmupPath := filepath.Join(os.TempDir(), "printlapse_warmup.jpg")
	for i := 0; i < count; i++ {
		warmupCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout.Duration)
		cmd := exec.CommandContext(warmupCtx, c.cfg.Command,
			"-o", warmupPath, "-n", "-t", "1", "--width", "640", "--height", "480")
		if _, err := cmd.CombinedOutput(); err != nil {
			c.logger.Warn("warmup capture failed", map[string]any{
				"attempt": i + 1,
				"error":   err.Error(),
			})
		}
		cancel()
		if ctx.Err() != nil {
			break
		}
	}
	_ = os.Remove(warmupPath)
}

// truncate clips process output for log embedding.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Camera = (*CommandCamera)(nil)
