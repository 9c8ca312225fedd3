package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/printlapse/printlapse/adapter"
	redisadapter "github.com/printlapse/printlapse/adapter/redis"
	webhookadapter "github.com/printlapse/printlapse/adapter/webhook"
	"github.com/printlapse/printlapse/capture"
	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/compile"
	"github.com/printlapse/printlapse/connect"
	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/metrics"
	"github.com/printlapse/printlapse/session"
	"github.com/printlapse/printlapse/stream"
	"github.com/printlapse/printlapse/transfer"
	"github.com/printlapse/printlapse/transfer/nfs"
	"github.com/printlapse/printlapse/transfer/smb"
	"github.com/printlapse/printlapse/trigger"
	"github.com/printlapse/printlapse/types"
)

// RunCommand returns the run command, the long-lived capture service.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Run the capture service",
		Flags:  []cli.Flag{ConfigFlag},
		Action: runAction,
	}
}

// runAction wires the whole service. Failures here are startup failures
// and exit non-zero; once running, per-event errors are absorbed and the
// service exits zero on SIGINT/SIGTERM.
func runAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("printlapse: %v", err), 1)
	}

	logger := log.NewLogger("printlapse")
	collector := metrics.NewCollector()
	sessions := session.NewManager(cfg.Storage.BaseDir, log.NewLogger("session"))
	camera := capture.NewCommandCamera(cfg.Camera, log.NewLogger("camera"))

	pipeline, err := buildPipeline(cfg, sessions, collector)
	if err != nil {
		return cli.Exit(fmt.Sprintf("printlapse: %v", err), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Compilations outlive service shutdown: an encode in flight when
	// SIGTERM arrives runs to completion rather than leaving a .part file.
	dispatch := func(sessionDir string) {
		_, _ = pipeline.Run(context.Background(), sessionDir, false)
	}

	coord := capture.NewCoordinator(capture.Config{
		Debounce:   cfg.GPIO.Debounce.Duration,
		LayerMode:  cfg.Capture.LayerMode.Enabled,
		LayerDelay: cfg.Capture.LayerMode.CaptureDelay.Duration,
		TimeMode:   cfg.Capture.TimeMode.Enabled,
	}, camera, sessions, dispatch, log.NewLogger("capture"), collector)

	if cfg.Connect.Enabled {
		uploader, err := connect.NewUploader(cfg.Connect, log.NewLogger("connect"), collector)
		if err != nil {
			return cli.Exit(fmt.Sprintf("printlapse: %v", err), 1)
		}
		coord.SetFrameObserver(uploader.Offer)
	}

	// Warm up before any trigger source is live, so the first real edge
	// never lands while the sensor is still settling exposure.
	if cfg.Camera.WarmupCaptures > 0 {
		camera.Warmup(ctx, cfg.Camera.WarmupCaptures)
	}

	if cfg.Capture.LayerMode.Enabled {
		gpioSrc, err := trigger.NewGPIOSource(cfg.GPIO, coord.Events(), log.NewLogger("gpio"), collector)
		if err != nil {
			return cli.Exit(fmt.Sprintf("printlapse: gpio: %v", err), 1)
		}
		defer gpioSrc.Close()
	}

	if cfg.Capture.TimeMode.Enabled {
		interval := trigger.NewIntervalSource(cfg.Capture.TimeMode.Interval.Duration, coord.Events(), log.NewLogger("interval"), collector)
		go interval.Run(ctx)
	}

	if cfg.Stream.Enabled {
		server := stream.NewServer(cfg.Stream, log.NewLogger("stream"))
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("livestream server failed", map[string]any{"error": err.Error()})
			}
		}()
	}

	if cfg.Adapter.Type == "redis" {
		listener, err := buildRedisAdapter(cfg.Adapter)
		if err != nil {
			return cli.Exit(fmt.Sprintf("printlapse: adapter: %v", err), 1)
		}
		defer func() { _ = listener.Close() }()
		go func() {
			// Blocking send: a compile request waits for an in-flight
			// capture rather than being dropped like a trigger edge.
			err := listener.Listen(ctx, func(sessionDir string) {
				coord.Events() <- types.TriggerEvent{
					Kind:       types.TriggerCompileRequest,
					At:         time.Now(),
					SessionDir: sessionDir,
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("redis listener failed", map[string]any{"error": err.Error()})
			}
		}()
	}

	logger.Info("service started", map[string]any{
		"version":    types.Version,
		"layer_mode": cfg.Capture.LayerMode.Enabled,
		"time_mode":  cfg.Capture.TimeMode.Enabled,
		"storage":    cfg.Storage.BaseDir,
	})

	coord.Run(ctx)

	// Shutdown: seal the open session so its metadata records the end
	// time. No automatic compile; the operator re-runs `compile` at will.
	if closed := sessions.Close(); closed != nil {
		logger.Info("session closed on shutdown", map[string]any{
			"session": closed.ID,
			"frames":  len(closed.Frames),
		})
	}

	logger.Info("service stopped", collector.Snapshot().Fields())
	return nil
}

// buildPipeline assembles the compilation pipeline with its optional
// transfer and notification legs.
func buildPipeline(cfg *config.Config, sessions *session.Manager, collector *metrics.Collector) (*compile.Pipeline, error) {
	encoder := compile.NewFFmpegEncoder(cfg.Video, log.NewLogger("encoder"))

	var transferer compile.Transferer
	if cfg.Transfer.Enabled {
		transport, err := buildTransport(cfg.Transfer)
		if err != nil {
			return nil, err
		}
		transferer = transfer.NewRetryer(transport, cfg.Transfer.Retries, cfg.Transfer.RetryDelay.Duration, log.NewLogger("transfer"), collector)
	}

	notify, err := buildNotifier(cfg.Adapter)
	if err != nil {
		return nil, err
	}

	opts := compile.Options{
		OutputPattern:     cfg.Video.OutputPattern,
		DeleteImages:      cfg.Video.DeleteImages,
		DeleteAfterUpload: cfg.Transfer.DeleteAfterUpload,
	}
	return compile.NewPipeline(opts, encoder, transferer, sessions, notify, log.NewLogger("compile"), collector), nil
}

// buildTransport selects the configured transfer protocol.
func buildTransport(cfg config.TransferConfig) (transfer.Transport, error) {
	switch cfg.Protocol {
	case "smb":
		return smb.New(cfg.SMB), nil
	case "nfs":
		return nfs.New(cfg.NFS), nil
	default:
		return nil, fmt.Errorf("%w: unknown transfer protocol %q", types.ErrConfig, cfg.Protocol)
	}
}

// buildNotifier creates the completion notifier for the configured
// adapter, or nil when none is configured.
func buildNotifier(cfg config.AdapterConfig) (compile.Notifier, error) {
	var ad adapter.Adapter
	var err error

	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "redis":
		ad, err = buildRedisAdapter(cfg)
	case "webhook":
		retries := webhookadapter.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		ad, err = webhookadapter.New(webhookadapter.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("%w: unknown adapter type %q", types.ErrConfig, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logger := log.NewLogger("adapter")
	return func(job *types.CompilationJob, outcome *types.JobOutcome) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ad.Publish(ctx, adapter.FromOutcome(job, outcome)); err != nil {
			logger.Warn("completion publish failed", map[string]any{
				"job_id": job.JobID,
				"error":  err.Error(),
			})
		}
	}, nil
}

// buildRedisAdapter creates the redis adapter used both for publishing
// completions and for listening to compile requests.
func buildRedisAdapter(cfg config.AdapterConfig) (*redisadapter.Adapter, error) {
	retries := redisadapter.DefaultRetries
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	return redisadapter.New(redisadapter.Config{
		URL:     cfg.URL,
		Channel: cfg.Channel,
		Timeout: cfg.Timeout.Duration,
		Retries: retries,
	})
}
