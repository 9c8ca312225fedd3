// Package transfer ships compiled videos to network storage.
//
// Two transport variants are supported, SMB and NFS, selected by
// configuration. Both satisfy the same contract: copy one local file to
// the configured destination or report failure. The retry loop around the
// transport is bounded; exhausting it is an error for the job but never
// fatal to the process, and the local file is left in place for manual
// recovery on anything but terminal success.
package transfer

import (
	"context"
	"time"

	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/metrics"
	"github.com/printlapse/printlapse/types"
)

// Transport copies a local file to a protocol-specific destination.
type Transport interface {
	// Name identifies the protocol for logging ("smb", "nfs").
	Name() string
	// Transfer copies localPath to the destination. Attempt-level
	// timeouts are the transport's own concern.
	Transfer(ctx context.Context, localPath string) error
}

// Retryer runs the bounded retry loop over a Transport.
type Retryer struct {
	transport Transport
	attempts  int
	delay     time.Duration
	logger    *log.Logger
	collector *metrics.Collector
}

// NewRetryer creates a retry loop with the given attempt budget and fixed
// inter-attempt delay.
func NewRetryer(transport Transport, attempts int, delay time.Duration, logger *log.Logger, collector *metrics.Collector) *Retryer {
	return &Retryer{
		transport: transport,
		attempts:  attempts,
		delay:     delay,
		logger:    logger,
		collector: collector,
	}
}

// Send attempts the transfer up to the configured attempt budget with a
// fixed delay between attempts; the first success terminates the loop.
// Returns TransferSuccess or TransferExhausted, never an error: exhaustion
// is logged here and absorbed by the caller.
func (r *Retryer) Send(ctx context.Context, localPath string) types.TransferStatus {
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				r.logger.Warn("transfer canceled", map[string]any{"path": localPath})
				r.collector.IncTransferExhausted()
				return types.TransferExhausted
			case <-time.After(r.delay):
			}
		}

		r.collector.IncTransferAttempt()
		lastErr = r.transport.Transfer(ctx, localPath)
		if lastErr == nil {
			r.collector.IncTransferSuccess()
			r.logger.Info("transfer succeeded", map[string]any{
				"path":     localPath,
				"protocol": r.transport.Name(),
				"attempt":  attempt,
			})
			return types.TransferSuccess
		}

		r.logger.Warn("transfer attempt failed", map[string]any{
			"path":     localPath,
			"protocol": r.transport.Name(),
			"attempt":  attempt,
			"of":       r.attempts,
			"error":    lastErr.Error(),
		})
	}

	r.collector.IncTransferExhausted()
	r.logger.Error("transfer retries exhausted, keeping local file", map[string]any{
		"path":     localPath,
		"protocol": r.transport.Name(),
		"attempts": r.attempts,
		"error":    lastErr.Error(),
	})
	return types.TransferExhausted
}
