// Package redis implements a Redis pub/sub adapter.
//
// Publishes compilation completion events as JSON to a configurable
// channel and, unlike the webhook adapter, can also listen for compile
// trigger messages so other services on the print farm can request a
// compilation without touching the GPIO line.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/printlapse/printlapse/adapter"
)

// DefaultChannel is the default completion pub/sub channel name.
const DefaultChannel = "printlapse:compile_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the completion channel name (default: printlapse:compile_completed).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// Adapter publishes completion events via Redis PUBLISH and subscribes
// for compile trigger messages.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis pub/sub adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event as a JSON PUBLISH to the configured channel.
// Retries with exponential backoff on failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.CompileCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	var lastErr error
	// attempts = 1 initial + retries
	attempts := 1 + a.config.Retries

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: context canceled: %w", err)
		}

		// Exponential backoff before retries (not before first attempt)
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("redis: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		lastErr = a.client.Publish(publishCtx, a.config.Channel, body).Err()
		cancel()

		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

// triggerMessage is the inbound compile request payload. An empty
// session_dir means "compile the most recent session".
type triggerMessage struct {
	SessionDir string `json:"session_dir"`
}

// TriggerChannel derives the inbound trigger channel from the completion
// channel name. "printlapse:compile_completed" listens on
// "printlapse:compile_request".
func (a *Adapter) TriggerChannel() string {
	if idx := strings.LastIndex(a.config.Channel, ":"); idx > 0 {
		return a.config.Channel[:idx] + ":compile_request"
	}
	return a.config.Channel + ":compile_request"
}

// Listen subscribes to the trigger channel and invokes handle for each
// well-formed message. Blocks until the context is canceled. Malformed
// payloads are ignored; a plain non-JSON string is accepted as a bare
// session directory for operator convenience.
func (a *Adapter) Listen(ctx context.Context, handle func(sessionDir string)) error {
	sub := a.client.Subscribe(ctx, a.TriggerChannel())
	defer func() { _ = sub.Close() }()

	// Fail fast on an unreachable broker instead of on the first message.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", a.TriggerChannel(), err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var trigger triggerMessage
			if err := json.Unmarshal([]byte(msg.Payload), &trigger); err != nil {
				if strings.ContainsAny(msg.Payload, "{}") {
					continue
				}
				trigger.SessionDir = strings.TrimSpace(msg.Payload)
			}
			handle(trigger.SessionDir)
		}
	}
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)
