// Package stream serves a live MJPEG view of the camera over HTTP.
//
// Each viewer connection spawns the camera's video command emitting MJPEG
// to stdout, splits the byte stream on JPEG frame markers, and relays the
// frames as a multipart/x-mixed-replace response. The camera device is
// exclusive, so at most one viewer streams at a time.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/log"
)

// boundary separates frames in the multipart response.
const boundary = "FRAME"

// minFrameBytes discards obviously truncated frames.
const minFrameBytes = 100

// Server is the MJPEG livestream HTTP server.
type Server struct {
	cfg    config.StreamConfig
	logger *log.Logger

	// active guards the camera device; only one stream runs at a time.
	active atomic.Bool
}

// NewServer creates a livestream server from stream configuration.
func NewServer(cfg config.StreamConfig, logger *log.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream", s.handleStream)

	srv := &http.Server{
		Addr:    net.JoinHostPort("", strconv.Itoa(s.cfg.Port)),
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("livestream server listening", map[string]any{
		"port":       s.cfg.Port,
		"resolution": fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"fps":        s.cfg.FPS,
	})

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("livestream server: %w", err)
	}
}

// handleIndex serves a minimal viewer page embedding the stream.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, viewerPage, s.cfg.Width, s.cfg.Height, s.cfg.FPS, s.cfg.Port)
}

// handleStream relays camera MJPEG output to the client until it
// disconnects or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.active.CompareAndSwap(false, true) {
		http.Error(w, "stream already in use", http.StatusConflict)
		return
	}
	defer s.active.Store(false)

	s.logger.Info("stream started", map[string]any{"client": r.RemoteAddr})

	h := w.Header()
	h.Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)

	if err := s.streamTo(r.Context(), w); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("stream ended with error", map[string]any{
			"client": r.RemoteAddr,
			"error":  err.Error(),
		})
		return
	}
	s.logger.Info("stream ended", map[string]any{"client": r.RemoteAddr})
}

// streamTo runs the camera video command and forwards frames. The request
// context kills the subprocess when the viewer disconnects.
func (s *Server) streamTo(ctx context.Context, w http.ResponseWriter) error {
	cmd := exec.CommandContext(ctx, s.cfg.Command,
		"--width", strconv.Itoa(s.cfg.Width),
		"--height", strconv.Itoa(s.cfg.Height),
		"--framerate", strconv.Itoa(s.cfg.FPS),
		"--codec", "mjpeg",
		"--quality", strconv.Itoa(s.cfg.Quality),
		"-t", "0",
		"-n",
		"-o", "-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.cfg.Command, err)
	}
	defer func() { _ = cmd.Wait() }()

	flusher, _ := w.(http.Flusher)
	reader := bufio.NewReaderSize(stdout, 1<<20)

	for {
		frame, err := readFrame(reader)
		if err != nil {
			return err
		}
		if len(frame) < minFrameBytes {
			continue
		}

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(frame)); err != nil {
			return nil // viewer gone
		}
		if _, err := w.Write(frame); err != nil {
			return nil
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return nil
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// readFrame scans the MJPEG byte stream for the next complete JPEG,
// delimited by the SOI and EOI markers.
func readFrame(r *bufio.Reader) ([]byte, error) {
	// Sync to the start-of-image marker.
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != jpegSOI[0] {
			continue
		}
		next, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if next == jpegSOI[1] {
			break
		}
	}

	frame := bytes.NewBuffer(nil)
	frame.Write(jpegSOI)

	// Accumulate until the end-of-image marker.
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		frame.WriteByte(b)
		if b == jpegEOI[1] && frame.Len() >= 4 {
			tail := frame.Bytes()
			if tail[len(tail)-2] == jpegEOI[0] {
				return frame.Bytes(), nil
			}
		}
	}
}

const viewerPage = `<!DOCTYPE html>
<html>
<head>
  <title>Printer Camera Stream</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <style>
    body { margin: 0; padding: 20px; background: #1a1a1a; color: #fff;
           font-family: sans-serif; display: flex; flex-direction: column;
           align-items: center; }
    img { max-width: 100%%; border-radius: 8px; }
    .info { margin-top: 16px; font-size: 14px; color: #aaa; }
  </style>
</head>
<body>
  <h1>Printer Camera Stream</h1>
  <img src="/stream" alt="Camera Stream">
  <div class="info">%dx%d @ %d fps, stream URL: http://&lt;host&gt;:%d/stream</div>
</body>
</html>
`
