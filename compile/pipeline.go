package compile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/metrics"
	"github.com/printlapse/printlapse/session"
	"github.com/printlapse/printlapse/types"
)

// State is a pipeline stage, logged as the job progresses.
// Terminal outcomes only; there are no intermediate retries inside
// compilation itself; retries apply only to transfer.
type State string

const (
	StateGathering      State = "gathering"
	StateEncoding       State = "encoding"
	StateTransferring   State = "transferring"
	StateTransferFailed State = "transfer_failed"
	StateCleanup        State = "cleanup"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Transferer runs the transfer retry loop for one local file.
// Satisfied by transfer.Retryer.
type Transferer interface {
	Send(ctx context.Context, localPath string) types.TransferStatus
}

// Notifier is told about finished jobs. Satisfied by the adapters; may be
// nil. Called from the pipeline goroutine after the outcome is terminal.
type Notifier func(job *types.CompilationJob, outcome *types.JobOutcome)

// Options tune one pipeline instance.
type Options struct {
	// OutputPattern names the video file; {date} and {time} tokens are
	// substituted at compile time, not capture time.
	OutputPattern string
	// DeleteImages discards source frames after a successful encode.
	// Cleanup never runs when encoding failed, preserving frames for a retry.
	DeleteImages bool
	// DeleteAfterUpload removes the local video, gated strictly on a
	// terminal Success outcome of the transfer loop.
	DeleteAfterUpload bool
}

// Pipeline compiles closed sessions into videos. Each Run call is one
// CompilationJob; jobs for different sessions may run concurrently, but a
// session with an active job rejects a second concurrent request.
type Pipeline struct {
	opts      Options
	encoder   Encoder
	transfer  Transferer // nil when network upload is disabled
	sessions  *session.Manager
	notify    Notifier
	logger    *log.Logger
	collector *metrics.Collector
}

// NewPipeline creates a compilation pipeline. transfer may be nil when
// upload is disabled; notify may be nil.
func NewPipeline(opts Options, encoder Encoder, transfer Transferer, sessions *session.Manager, notify Notifier, logger *log.Logger, collector *metrics.Collector) *Pipeline {
	return &Pipeline{
		opts:      opts,
		encoder:   encoder,
		transfer:  transfer,
		sessions:  sessions,
		notify:    notify,
		logger:    logger,
		collector: collector,
	}
}

// Run executes one compilation job for a session directory and returns its
// terminal outcome. force re-runs a session that already has a compiled
// video; without it, a previously successful session is skipped so a job
// is never re-run automatically.
//
// The returned error is non-nil only for job-level failures the caller may
// want to surface (CLI exit code); the process-level contract is that no
// compilation failure is fatal.
func (p *Pipeline) Run(ctx context.Context, sessionDir string, force bool) (*types.JobOutcome, error) {
	job := &types.CompilationJob{
		JobID:      uuid.NewString(),
		SessionID:  sessionID(sessionDir),
		SessionDir: sessionDir,
		StartedAt:  time.Now(),
	}
	jlog := p.logger.WithSession(job.SessionID).Sugar().With("job_id", job.JobID)

	if err := p.sessions.BeginCompile(sessionDir); err != nil {
		jlog.Warnf("compile rejected: %v", err)
		return nil, err
	}
	defer p.sessions.EndCompile(sessionDir)

	p.collector.IncCompileStarted()
	outcome, execErr := p.execute(ctx, job, jlog, force)

	switch outcome.Status {
	case types.JobSuccess:
		p.collector.IncCompileSucceeded()
	case types.JobFailed:
		p.collector.IncCompileFailed()
	}

	if p.notify != nil {
		p.notify(job, outcome)
	}

	if outcome.Status == types.JobFailed {
		return outcome, fmt.Errorf("compilation failed: %w", execErr)
	}
	return outcome, nil
}

// execute walks the state machine to a terminal outcome. The returned
// error carries the failure cause for a failed outcome and is nil
// otherwise.
func (p *Pipeline) execute(ctx context.Context, job *types.CompilationJob, jlog *log.SugaredLogger, force bool) (*types.JobOutcome, error) {
	// Gathering
	jlog.Debugf("state=%s", StateGathering)
	frames, err := gatherFrames(job.SessionDir)
	if err != nil {
		jlog.Errorf("state=%s: %v", StateFailed, err)
		return &types.JobOutcome{
			Status:   types.JobFailed,
			Transfer: types.TransferSkipped,
			Message:  err.Error(),
		}, err
	}

	outputPath := filepath.Join(job.SessionDir, ResolvePattern(p.opts.OutputPattern, job.StartedAt))
	// The output name carries the compile timestamp, so the skip check
	// looks for any compiled video in the session dir, not the new name.
	if !force {
		if existing, size := existingVideo(job.SessionDir); existing != "" {
			jlog.Infof("session already compiled, skipping (use force to re-run): %s", existing)
			return &types.JobOutcome{
				Status:      types.JobSuccess,
				OutputPath:  existing,
				OutputBytes: size,
				FrameCount:  len(frames),
				Transfer:    types.TransferSkipped,
			}, nil
		}
	}

	// Encoding. Failure is terminal for the job, no retry: compilation is
	// deterministic and re-runnable by the operator.
	jlog.Infof("state=%s frames=%d output=%s", StateEncoding, len(frames), outputPath)
	if err := p.encoder.Encode(ctx, frames, outputPath); err != nil {
		jlog.Errorf("state=%s: %v", StateFailed, err)
		return &types.JobOutcome{
			Status:     types.JobFailed,
			FrameCount: len(frames),
			Transfer:   types.TransferSkipped,
			Message:    err.Error(),
		}, err
	}

	outcome := &types.JobOutcome{
		Status:     types.JobSuccess,
		OutputPath: outputPath,
		FrameCount: len(frames),
		Transfer:   types.TransferSkipped,
	}
	if info, err := os.Stat(outputPath); err == nil {
		outcome.OutputBytes = info.Size()
	}

	// Transferring. Exhaustion is negative only for the "uploaded"
	// outcome; the job still reports the local video as produced.
	if p.transfer != nil {
		jlog.Infof("state=%s", StateTransferring)
		outcome.Transfer = p.transfer.Send(ctx, outputPath)
		if outcome.Transfer == types.TransferExhausted {
			jlog.Errorf("state=%s: video retained at %s", StateTransferFailed, outputPath)
		}
		if outcome.Transfer == types.TransferSuccess && p.opts.DeleteAfterUpload {
			if err := os.Remove(outputPath); err != nil {
				jlog.Warnf("cannot delete uploaded video: %v", err)
			} else {
				jlog.Infof("local video deleted after upload")
			}
		}
	}

	// Cleanup runs only after a non-failed encode.
	if p.opts.DeleteImages {
		jlog.Debugf("state=%s", StateCleanup)
		removed := 0
		for _, frame := range frames {
			if err := os.Remove(frame); err == nil {
				removed++
			}
		}
		jlog.Infof("removed %d source frames", removed)
	}

	jlog.Infof("state=%s frames=%d output=%s bytes=%d transfer=%s",
		StateDone, outcome.FrameCount, outcome.OutputPath, outcome.OutputBytes, outcome.Transfer)
	return outcome, nil
}

// existingVideo returns the path and size of a compiled video already
// present in the session directory, or "" when none exists.
func existingVideo(sessionDir string) (string, int64) {
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		return "", 0
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mp4") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		return filepath.Join(sessionDir, e.Name()), info.Size()
	}
	return "", 0
}

// gatherFrames returns the session's frame files sorted lexically.
// Zero-padded frame filenames make lexical order equal capture order, so
// the encoder's input list is sorted identically to capture order.
func gatherFrames(sessionDir string) ([]string, error) {
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		return nil, fmt.Errorf("read session dir %q: %w", sessionDir, err)
	}

	var frames []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "frame_") && strings.HasSuffix(name, ".jpg") {
			frames = append(frames, filepath.Join(sessionDir, name))
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNoImages, sessionDir)
	}

	sort.Strings(frames)
	return frames, nil
}

// ResolvePattern substitutes the {date} (YYYYMMDD) and {time} (HHMMSS)
// tokens in an output filename pattern at compile time.
func ResolvePattern(pattern string, at time.Time) string {
	resolved := strings.ReplaceAll(pattern, "{date}", at.Format("20060102"))
	return strings.ReplaceAll(resolved, "{time}", at.Format("150405"))
}

// sessionID derives the "<date>/<time>" identifier from a session directory.
func sessionID(dir string) string {
	return filepath.Join(filepath.Base(filepath.Dir(dir)), filepath.Base(dir))
}
