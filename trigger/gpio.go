package trigger

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/metrics"
	"github.com/printlapse/printlapse/types"
)

// GPIOSource listens for edges on the hardware trigger line via the Linux
// GPIO character device. Each configured transition emits a HardwareEdge
// event; the capture coordinator applies the debounce window, so this
// source tolerates both single-shot and multi-pulse-per-layer wiring.
type GPIOSource struct {
	line   *gpiocdev.Line
	logger *log.Logger
}

// NewGPIOSource requests the configured line and starts event delivery.
// Fails if the GPIO chip or line is unavailable; the caller decides whether
// that is fatal (layer mode required) or degraded (time mode only).
func NewGPIOSource(cfg config.GPIOConfig, events chan<- types.TriggerEvent, logger *log.Logger, collector *metrics.Collector) (*GPIOSource, error) {
	handler := func(evt gpiocdev.LineEvent) {
		if !Emit(events, types.TriggerEvent{Kind: types.TriggerHardwareEdge, At: time.Now()}, collector) {
			logger.Debug("hardware edge dropped, capture in flight", nil)
		}
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithEventHandler(handler),
	}

	switch cfg.Edge {
	case "rising":
		opts = append(opts, gpiocdev.WithRisingEdge)
	case "falling":
		opts = append(opts, gpiocdev.WithFallingEdge)
	case "both":
		opts = append(opts, gpiocdev.WithBothEdges)
	default:
		return nil, fmt.Errorf("%w: unknown gpio edge %q", types.ErrConfig, cfg.Edge)
	}

	switch cfg.Pull {
	case "up":
		opts = append(opts, gpiocdev.WithPullUp)
	case "down":
		opts = append(opts, gpiocdev.WithPullDown)
	case "none":
		opts = append(opts, gpiocdev.WithBiasDisabled)
	default:
		return nil, fmt.Errorf("%w: unknown gpio pull %q", types.ErrConfig, cfg.Pull)
	}

	line, err := gpiocdev.RequestLine(cfg.Chip, cfg.Pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request gpio line %s:%d: %w", cfg.Chip, cfg.Pin, err)
	}

	logger.Info("gpio trigger configured", map[string]any{
		"chip": cfg.Chip,
		"pin":  cfg.Pin,
		"edge": cfg.Edge,
	})

	return &GPIOSource{line: line, logger: logger}, nil
}

// Close releases the GPIO line and stops event delivery.
func (s *GPIOSource) Close() error {
	return s.line.Close()
}
