package compile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/metrics"
	"github.com/printlapse/printlapse/session"
	"github.com/printlapse/printlapse/types"
)

// stubEncoder records the frame list and writes a placeholder video.
type stubEncoder struct {
	mu     sync.Mutex
	frames []string
	calls  int
	fail   bool
}

func (e *stubEncoder) Encode(_ context.Context, frames []string, outputPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.frames = frames
	if e.fail {
		return types.ErrEncode
	}
	return os.WriteFile(outputPath, []byte("mp4"), 0o644)
}

// stubTransferer reports a fixed terminal status.
type stubTransferer struct {
	status types.TransferStatus
	sent   []string
}

func (t *stubTransferer) Send(_ context.Context, localPath string) types.TransferStatus {
	t.sent = append(t.sent, localPath)
	return t.status
}

func testLogger() *log.Logger {
	return log.NewLogger("test").WithOutput(io.Discard)
}

// newSessionDir creates a session directory with n frame files.
func newSessionDir(t *testing.T, n int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "2026-08-25", "140210")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err := os.WriteFile(filepath.Join(dir, types.FrameFilename(i)), []byte("jpeg"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestPipeline(t *testing.T, opts Options, enc Encoder, tr Transferer, notify Notifier) *Pipeline {
	t.Helper()
	if opts.OutputPattern == "" {
		opts.OutputPattern = "timelapse_{date}_{time}.mp4"
	}
	sessions := session.NewManager(t.TempDir(), testLogger())
	return NewPipeline(opts, enc, tr, sessions, notify, testLogger(), metrics.NewCollector())
}

func TestRun_Success(t *testing.T) {
	dir := newSessionDir(t, 5)
	enc := &stubEncoder{}
	p := newTestPipeline(t, Options{}, enc, nil, nil)

	outcome, err := p.Run(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Status != types.JobSuccess {
		t.Fatalf("expected success, got %s: %s", outcome.Status, outcome.Message)
	}
	if outcome.FrameCount != 5 {
		t.Errorf("expected 5 frames, got %d", outcome.FrameCount)
	}
	if outcome.Transfer != types.TransferSkipped {
		t.Errorf("expected skipped transfer, got %s", outcome.Transfer)
	}
	if outcome.OutputBytes == 0 {
		t.Error("expected non-zero output size")
	}
	if _, err := os.Stat(outcome.OutputPath); err != nil {
		t.Fatalf("output video missing: %v", err)
	}
}

func TestRun_FramesOrderedLexically(t *testing.T) {
	dir := newSessionDir(t, 12)
	enc := &stubEncoder{}
	p := newTestPipeline(t, Options{}, enc, nil, nil)

	if _, err := p.Run(context.Background(), dir, false); err != nil {
		t.Fatalf("run: %v", err)
	}

	for i, frame := range enc.frames {
		if filepath.Base(frame) != types.FrameFilename(i) {
			t.Fatalf("frame %d out of order: %q", i, frame)
		}
	}
}

func TestRun_NoImages(t *testing.T) {
	dir := newSessionDir(t, 0)
	p := newTestPipeline(t, Options{}, &stubEncoder{}, nil, nil)

	outcome, err := p.Run(context.Background(), dir, false)
	if !errors.Is(err, types.ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
	if outcome.Status != types.JobFailed {
		t.Errorf("expected failed outcome, got %s", outcome.Status)
	}
}

func TestRun_EncodeFailureIsTerminalAndKeepsFrames(t *testing.T) {
	dir := newSessionDir(t, 3)
	enc := &stubEncoder{fail: true}
	tr := &stubTransferer{status: types.TransferSuccess}
	p := newTestPipeline(t, Options{DeleteImages: true}, enc, tr, nil)

	outcome, err := p.Run(context.Background(), dir, false)
	if !errors.Is(err, types.ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", err)
	}
	if outcome.Status != types.JobFailed {
		t.Errorf("expected failed outcome, got %s", outcome.Status)
	}
	if len(tr.sent) != 0 {
		t.Error("failed encode must not transfer")
	}

	// Cleanup never runs after a failed encode; the frames survive for a
	// manual re-run.
	for i := 0; i < 3; i++ {
		if _, err := os.Stat(filepath.Join(dir, types.FrameFilename(i))); err != nil {
			t.Fatalf("frame %d deleted after failed encode: %v", i, err)
		}
	}
}

func TestRun_CleanupAfterSuccess(t *testing.T) {
	dir := newSessionDir(t, 3)
	p := newTestPipeline(t, Options{DeleteImages: true}, &stubEncoder{}, nil, nil)

	outcome, err := p.Run(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Status != types.JobSuccess {
		t.Fatalf("expected success, got %s", outcome.Status)
	}

	for i := 0; i < 3; i++ {
		if _, err := os.Stat(filepath.Join(dir, types.FrameFilename(i))); !os.IsNotExist(err) {
			t.Fatalf("frame %d not cleaned up", i)
		}
	}
	if _, err := os.Stat(outcome.OutputPath); err != nil {
		t.Fatal("cleanup must not touch the video")
	}
}

func TestRun_TransferExhaustionKeepsVideoAndJobSucceeds(t *testing.T) {
	dir := newSessionDir(t, 3)
	tr := &stubTransferer{status: types.TransferExhausted}
	p := newTestPipeline(t, Options{DeleteAfterUpload: true}, &stubEncoder{}, tr, nil)

	outcome, err := p.Run(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("transfer exhaustion must not fail the job: %v", err)
	}
	if outcome.Status != types.JobSuccess {
		t.Fatalf("expected success, got %s", outcome.Status)
	}
	if outcome.Transfer != types.TransferExhausted {
		t.Errorf("expected exhausted transfer, got %s", outcome.Transfer)
	}
	if _, err := os.Stat(outcome.OutputPath); err != nil {
		t.Fatal("video must be retained after transfer exhaustion")
	}
}

func TestRun_DeleteAfterUploadGatedOnSuccess(t *testing.T) {
	dir := newSessionDir(t, 3)
	tr := &stubTransferer{status: types.TransferSuccess}
	p := newTestPipeline(t, Options{DeleteAfterUpload: true}, &stubEncoder{}, tr, nil)

	outcome, err := p.Run(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(outcome.OutputPath); !os.IsNotExist(err) {
		t.Fatal("video must be deleted after successful upload")
	}
}

func TestRun_LocalVideoKeptWithoutDeleteAfterUpload(t *testing.T) {
	dir := newSessionDir(t, 3)
	tr := &stubTransferer{status: types.TransferSuccess}
	p := newTestPipeline(t, Options{}, &stubEncoder{}, tr, nil)

	outcome, err := p.Run(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(outcome.OutputPath); err != nil {
		t.Fatal("video must be kept when delete_after_upload is off")
	}
}

func TestRun_SkipsAlreadyCompiledSession(t *testing.T) {
	dir := newSessionDir(t, 3)
	enc := &stubEncoder{}
	p := newTestPipeline(t, Options{}, enc, nil, nil)

	if _, err := p.Run(context.Background(), dir, false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	outcome, err := p.Run(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if outcome.Status != types.JobSuccess {
		t.Fatalf("expected success, got %s", outcome.Status)
	}
	if enc.calls != 1 {
		t.Fatalf("second run must not re-encode, encoder calls = %d", enc.calls)
	}
}

func TestRun_ForceReencodes(t *testing.T) {
	dir := newSessionDir(t, 3)
	enc := &stubEncoder{}
	p := newTestPipeline(t, Options{}, enc, nil, nil)

	if _, err := p.Run(context.Background(), dir, false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := p.Run(context.Background(), dir, true); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if enc.calls != 2 {
		t.Fatalf("force must re-encode, encoder calls = %d", enc.calls)
	}
}

func TestRun_NotifierSeesTerminalOutcome(t *testing.T) {
	dir := newSessionDir(t, 3)
	var gotJob *types.CompilationJob
	var gotOutcome *types.JobOutcome
	notify := func(job *types.CompilationJob, outcome *types.JobOutcome) {
		gotJob, gotOutcome = job, outcome
	}
	p := newTestPipeline(t, Options{}, &stubEncoder{}, nil, notify)

	if _, err := p.Run(context.Background(), dir, false); err != nil {
		t.Fatalf("run: %v", err)
	}
	if gotJob == nil || gotJob.JobID == "" {
		t.Fatal("notifier must receive the job with its id")
	}
	if gotOutcome == nil || gotOutcome.Status != types.JobSuccess {
		t.Fatal("notifier must receive the terminal outcome")
	}
}

func TestResolvePattern(t *testing.T) {
	at := time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC)
	got := ResolvePattern("timelapse_{date}_{time}.mp4", at)
	if got != "timelapse_20260825_153000.mp4" {
		t.Errorf("unexpected resolved name %q", got)
	}
}

func TestSessionID(t *testing.T) {
	if got := sessionID("/data/timelapse/2026-08-25/140210"); got != "2026-08-25/140210" {
		t.Errorf("unexpected session id %q", got)
	}
}
