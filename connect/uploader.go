// Package connect uploads live snapshots to the Prusa Connect camera API
// so the printer page shows a current view of the print.
//
// Uploads ride on frames the coordinator already captured; this package
// never touches the camera itself. Failures are logged and absorbed; live
// monitoring is best effort and never affects the timelapse.
package connect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/iox"
	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/metrics"
)

// Uploader rate-limits snapshot uploads to the configured interval and
// runs them off the coordinator goroutine so a slow upload never delays
// the next capture.
type Uploader struct {
	cfg       config.ConnectConfig
	client    *http.Client
	logger    *log.Logger
	collector *metrics.Collector

	mu         sync.Mutex
	lastUpload time.Time
	inflight   bool
}

// NewUploader creates an uploader. Returns an error if the token is missing.
func NewUploader(cfg config.ConnectConfig, logger *log.Logger, collector *metrics.Collector) (*Uploader, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("connect uploader requires a token")
	}
	return &Uploader{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout.Duration},
		logger:    logger,
		collector: collector,
	}, nil
}

// Offer submits a freshly captured frame for upload. Returns immediately;
// the frame is skipped when the minimum upload interval has not elapsed or
// an upload is already in flight.
func (u *Uploader) Offer(path string) {
	u.mu.Lock()
	now := time.Now()
	if u.inflight || now.Sub(u.lastUpload) < u.cfg.UploadInterval.Duration {
		u.mu.Unlock()
		return
	}
	u.inflight = true
	u.mu.Unlock()

	go func() {
		err := u.upload(path)

		u.mu.Lock()
		u.inflight = false
		if err == nil {
			u.lastUpload = time.Now()
		}
		u.mu.Unlock()

		if err != nil {
			u.collector.IncSnapshotFailed()
			u.logger.Warn("snapshot upload failed", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			return
		}
		u.collector.IncSnapshotUploaded()
		u.logger.Debug("snapshot uploaded", map[string]any{"path": path})
	}()
}

// upload PUTs the raw image bytes to the snapshot endpoint.
func (u *Uploader) upload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer iox.DiscardClose(f)

	ctx, cancel := context.WithTimeout(context.Background(), u.cfg.Timeout.Duration)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.cfg.URL, f)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Token", u.cfg.Token)
	req.Header.Set("Content-Type", "image/jpg")
	if u.cfg.Fingerprint != "" {
		req.Header.Set("Fingerprint", u.cfg.Fingerprint)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}
