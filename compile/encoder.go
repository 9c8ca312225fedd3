// Package compile turns a session's frames into one video artifact.
package compile

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/iox"
	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/types"
)

// Encoder abstracts the external encoder process. Given an ordered list of
// image files and an output path, it produces a video file or fails.
type Encoder interface {
	Encode(ctx context.Context, frames []string, outputPath string) error
}

// FFmpegEncoder invokes ffmpeg with the configured codec parameters.
// The encoder is unbounded by a timeout but monitored via process
// completion; a canceled context kills it.
type FFmpegEncoder struct {
	cfg    config.VideoConfig
	logger *log.Logger
}

// NewFFmpegEncoder creates an encoder from video configuration.
func NewFFmpegEncoder(cfg config.VideoConfig, logger *log.Logger) *FFmpegEncoder {
	return &FFmpegEncoder{cfg: cfg, logger: logger}
}

// Encode runs ffmpeg over the frame list in the given order. The frame
// order is the caller's contract; this encoder feeds files to ffmpeg via a
// concat script so the input order is exactly the list order. Output is
// written to a temporary name and renamed after ffmpeg exits cleanly, so
// an interrupted encode never leaves a partial video behind.
func (e *FFmpegEncoder) Encode(ctx context.Context, frames []string, outputPath string) error {
	if len(frames) == 0 {
		return types.ErrNoImages
	}

	listPath := outputPath + ".frames.txt"
	if err := writeConcatList(listPath, frames); err != nil {
		return fmt.Errorf("%w: write frame list: %v", types.ErrEncode, err)
	}
	defer iox.RemoveQuiet(listPath)

	tmpPath := outputPath + ".part"
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-r", strconv.Itoa(e.cfg.Framerate),
		"-i", listPath,
		"-c:v", e.cfg.Codec,
		"-preset", e.cfg.Preset,
		"-crf", strconv.Itoa(e.cfg.CRF),
		"-pix_fmt", "yuv420p",
	}
	if e.cfg.Resolution != "source" {
		width, height, err := config.ParseResolution(e.cfg.Resolution)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrEncode, err)
		}
		args = append(args, "-vf", letterboxFilter(width, height))
	}
	args = append(args, "-f", "mp4", tmpPath)

	e.logger.Debug("invoking encoder", map[string]any{
		"command": e.cfg.Command,
		"frames":  len(frames),
		"output":  outputPath,
	})

	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		iox.RemoveQuiet(tmpPath)
		return fmt.Errorf("%w: %s: %v: %s", types.ErrEncode, e.cfg.Command, err, tail(output, 300))
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		iox.RemoveQuiet(tmpPath)
		return fmt.Errorf("%w: %s exited 0 but produced no video", types.ErrEncode, e.cfg.Command)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		iox.RemoveQuiet(tmpPath)
		return fmt.Errorf("%w: rename video: %v", types.ErrEncode, err)
	}

	return nil
}

// writeConcatList writes an ffmpeg concat demuxer script naming each frame
// in list order.
func writeConcatList(path string, frames []string) error {
	var b strings.Builder
	for _, frame := range frames {
		abs, err := filepath.Abs(frame)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// letterboxFilter scales into the target box preserving aspect ratio and
// pads the remainder, centering the image.
func letterboxFilter(width, height int) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height,
	)
}

// tail clips process output for error embedding, keeping the end where
// ffmpeg reports its failure.
func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return "..." + string(b[len(b)-n:])
}

var _ Encoder = (*FFmpegEncoder)(nil)
