package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/printlapse/printlapse/types"
)

// Config represents a printlapse.yaml configuration file.
// Loaded once at process start; invalid configuration is fatal at startup
// and never at runtime.
type Config struct {
	GPIO     GPIOConfig     `yaml:"gpio"`
	Capture  CaptureConfig  `yaml:"capture"`
	Camera   CameraConfig   `yaml:"camera"`
	Storage  StorageConfig  `yaml:"storage"`
	Video    VideoConfig    `yaml:"video"`
	Transfer TransferConfig `yaml:"transfer"`
	Connect  ConnectConfig  `yaml:"connect"`
	Stream   StreamConfig   `yaml:"stream"`
	Adapter  AdapterConfig  `yaml:"adapter"`
}

// GPIOConfig configures the hardware trigger line.
type GPIOConfig struct {
	// Chip is the GPIO character device name (default gpiochip0).
	Chip string `yaml:"chip"`
	// Pin is the BCM line offset of the trigger input (default 17).
	Pin int `yaml:"pin"`
	// Edge selects the active transition: rising, falling or both.
	Edge string `yaml:"edge"`
	// Pull selects the line bias: up, down or none.
	Pull string `yaml:"pull"`
	// Debounce is the window after an accepted edge during which further
	// edges are discarded. Matches the G-code pulse debounce delay.
	Debounce Duration `yaml:"debounce"`
}

// CaptureConfig configures the two trigger sources. Both modes may be
// enabled simultaneously; this is supported, not a misconfiguration.
type CaptureConfig struct {
	LayerMode LayerModeConfig `yaml:"layer_mode"`
	TimeMode  TimeModeConfig  `yaml:"time_mode"`
}

// LayerModeConfig configures hardware-edge (per-layer) capture.
type LayerModeConfig struct {
	Enabled bool `yaml:"enabled"`
	// CaptureDelay is an optional settle delay between the accepted edge
	// and the capture invocation (lets the print head move clear).
	CaptureDelay Duration `yaml:"capture_delay"`
}

// TimeModeConfig configures fixed-interval capture.
type TimeModeConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval is the period between ticks (default 30s). The timer runs
	// even when no print is active; used for continuous monitoring.
	Interval Duration `yaml:"interval"`
}

// CameraConfig configures the external capture process.
type CameraConfig struct {
	// Command is the capture binary (default rpicam-still).
	Command string `yaml:"command"`
	// Resolution is "max" or "WIDTHxHEIGHT".
	Resolution string `yaml:"resolution"`
	// Quality is the JPEG quality factor 1..100 (default 85).
	Quality int `yaml:"quality"`
	// Rotation is the image rotation in degrees (0, 90, 180, 270).
	Rotation int `yaml:"rotation"`
	HFlip    bool `yaml:"hflip"`
	VFlip    bool `yaml:"vflip"`
	// Timeout bounds one capture invocation (default 10s).
	Timeout Duration `yaml:"timeout"`
	// WarmupCaptures is the number of throwaway startup captures that let
	// the sensor settle exposure (default 2).
	WarmupCaptures int `yaml:"warmup_captures"`
}

// StorageConfig configures the local frame/video store.
type StorageConfig struct {
	// BaseDir is the root under which session directories are created.
	BaseDir string `yaml:"base_dir"`
}

// VideoConfig configures the external encoder.
type VideoConfig struct {
	// Command is the encoder binary (default ffmpeg).
	Command string `yaml:"command"`
	// Framerate is the output frame rate (default 30).
	Framerate int `yaml:"framerate"`
	// Codec is the output codec (default libx264).
	Codec string `yaml:"codec"`
	// Preset is the encoder preset (default medium).
	Preset string `yaml:"preset"`
	// CRF is the constant rate factor quality setting (default 23).
	CRF int `yaml:"crf"`
	// Resolution is "source" or "WIDTHxHEIGHT". A fixed resolution is
	// applied by scale-and-letterbox preserving aspect ratio.
	Resolution string `yaml:"resolution"`
	// OutputPattern names the output file; {date} (YYYYMMDD) and {time}
	// (HHMMSS) tokens are substituted at compile time.
	OutputPattern string `yaml:"output_pattern"`
	// DeleteImages discards source frames after a successful encode.
	DeleteImages bool `yaml:"delete_images"`
}

// TransferConfig configures the network upload of compiled videos.
type TransferConfig struct {
	Enabled bool `yaml:"enabled"`
	// Protocol selects the transport: smb or nfs.
	Protocol string `yaml:"protocol"`
	// Retries is the maximum number of attempts (default 3).
	Retries int `yaml:"retries"`
	// RetryDelay is the fixed inter-attempt delay (default 5s).
	RetryDelay Duration `yaml:"retry_delay"`
	// DeleteAfterUpload removes the local video, gated strictly on a
	// terminal Success outcome of the retry loop.
	DeleteAfterUpload bool `yaml:"delete_after_upload"`

	SMB SMBConfig `yaml:"smb"`
	NFS NFSConfig `yaml:"nfs"`
}

// SMBConfig is the SMB destination addressing.
type SMBConfig struct {
	Server   string `yaml:"server"`
	Share    string `yaml:"share"`
	Path     string `yaml:"path"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Domain   string `yaml:"domain"`
}

// NFSConfig is the NFS destination addressing.
type NFSConfig struct {
	Server string `yaml:"server"`
	Export string `yaml:"export"`
	Path   string `yaml:"path"`
}

// ConnectConfig configures the Prusa Connect live snapshot upload.
type ConnectConfig struct {
	Enabled bool `yaml:"enabled"`
	// Token is the camera API token from Prusa Connect.
	Token string `yaml:"token"`
	// Fingerprint is the optional printer fingerprint header.
	Fingerprint string `yaml:"fingerprint"`
	// URL is the snapshot endpoint (default the public Prusa Connect one).
	URL string `yaml:"url"`
	// UploadInterval is the minimum spacing between uploads (default 10s).
	UploadInterval Duration `yaml:"upload_interval"`
	// Timeout is the per-upload HTTP timeout (default 10s).
	Timeout Duration `yaml:"timeout"`
}

// StreamConfig configures the MJPEG livestream server.
type StreamConfig struct {
	Enabled bool `yaml:"enabled"`
	// Command is the streaming camera binary (default rpicam-vid).
	Command string `yaml:"command"`
	Port    int    `yaml:"port"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	FPS     int    `yaml:"fps"`
	Quality int    `yaml:"quality"`
}

// AdapterConfig configures out-of-band compile triggering and completion
// notification.
type AdapterConfig struct {
	// Type is none, redis or webhook.
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Default values applied by ApplyDefaults.
const (
	DefaultChip          = "gpiochip0"
	DefaultPin           = 17
	DefaultDebounce      = 100 * time.Millisecond
	DefaultInterval      = 30 * time.Second
	DefaultCaptureCmd    = "rpicam-still"
	DefaultQuality       = 85
	DefaultTimeout       = 10 * time.Second
	DefaultWarmups       = 2
	DefaultEncoderCmd    = "ffmpeg"
	DefaultFramerate     = 30
	DefaultCodec         = "libx264"
	DefaultPreset        = "medium"
	DefaultCRF           = 23
	DefaultPattern       = "timelapse_{date}_{time}.mp4"
	DefaultRetries       = 3
	DefaultRetryDelay    = 5 * time.Second
	DefaultConnectURL    = "https://connect.prusa3d.com/c/snapshot"
	DefaultUploadEvery   = 10 * time.Second
	DefaultStreamPort    = 8080
	DefaultStreamCmd     = "rpicam-vid"
	DefaultStreamWidth   = 1280
	DefaultStreamHeight  = 720
	DefaultStreamFPS     = 15
	DefaultStreamQuality = 80
)

// ApplyDefaults fills zero-valued fields with documented defaults.
func (c *Config) ApplyDefaults() {
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = DefaultChip
	}
	if c.GPIO.Pin == 0 {
		c.GPIO.Pin = DefaultPin
	}
	if c.GPIO.Edge == "" {
		c.GPIO.Edge = "rising"
	}
	if c.GPIO.Pull == "" {
		c.GPIO.Pull = "down"
	}
	if c.GPIO.Debounce.Duration == 0 {
		c.GPIO.Debounce.Duration = DefaultDebounce
	}
	if c.Capture.TimeMode.Interval.Duration == 0 {
		c.Capture.TimeMode.Interval.Duration = DefaultInterval
	}
	if c.Camera.Command == "" {
		c.Camera.Command = DefaultCaptureCmd
	}
	if c.Camera.Resolution == "" {
		c.Camera.Resolution = "max"
	}
	if c.Camera.Quality == 0 {
		c.Camera.Quality = DefaultQuality
	}
	if c.Camera.Timeout.Duration == 0 {
		c.Camera.Timeout.Duration = DefaultTimeout
	}
	if c.Camera.WarmupCaptures == 0 {
		c.Camera.WarmupCaptures = DefaultWarmups
	}
	if c.Video.Command == "" {
		c.Video.Command = DefaultEncoderCmd
	}
	if c.Video.Framerate == 0 {
		c.Video.Framerate = DefaultFramerate
	}
	if c.Video.Codec == "" {
		c.Video.Codec = DefaultCodec
	}
	if c.Video.Preset == "" {
		c.Video.Preset = DefaultPreset
	}
	if c.Video.CRF == 0 {
		c.Video.CRF = DefaultCRF
	}
	if c.Video.Resolution == "" {
		c.Video.Resolution = "source"
	}
	if c.Video.OutputPattern == "" {
		c.Video.OutputPattern = DefaultPattern
	}
	if c.Transfer.Retries == 0 {
		c.Transfer.Retries = DefaultRetries
	}
	if c.Transfer.RetryDelay.Duration == 0 {
		c.Transfer.RetryDelay.Duration = DefaultRetryDelay
	}
	if c.Connect.URL == "" {
		c.Connect.URL = DefaultConnectURL
	}
	if c.Connect.UploadInterval.Duration == 0 {
		c.Connect.UploadInterval.Duration = DefaultUploadEvery
	}
	if c.Connect.Timeout.Duration == 0 {
		c.Connect.Timeout.Duration = DefaultTimeout
	}
	if c.Stream.Command == "" {
		c.Stream.Command = DefaultStreamCmd
	}
	if c.Stream.Port == 0 {
		c.Stream.Port = DefaultStreamPort
	}
	if c.Stream.Width == 0 {
		c.Stream.Width = DefaultStreamWidth
	}
	if c.Stream.Height == 0 {
		c.Stream.Height = DefaultStreamHeight
	}
	if c.Stream.FPS == 0 {
		c.Stream.FPS = DefaultStreamFPS
	}
	if c.Stream.Quality == 0 {
		c.Stream.Quality = DefaultStreamQuality
	}
	if c.Adapter.Type == "" {
		c.Adapter.Type = "none"
	}
}

// Validate checks the configuration. Violations wrap types.ErrConfig and
// abort the process before any trigger source starts.
func (c *Config) Validate() error {
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("%w: storage.base_dir is required", types.ErrConfig)
	}
	switch c.GPIO.Edge {
	case "rising", "falling", "both":
	default:
		return fmt.Errorf("%w: gpio.edge must be rising, falling or both, got %q", types.ErrConfig, c.GPIO.Edge)
	}
	switch c.GPIO.Pull {
	case "up", "down", "none":
	default:
		return fmt.Errorf("%w: gpio.pull must be up, down or none, got %q", types.ErrConfig, c.GPIO.Pull)
	}
	if c.GPIO.Debounce.Duration < 0 {
		return fmt.Errorf("%w: gpio.debounce must be >= 0", types.ErrConfig)
	}
	if c.Capture.TimeMode.Enabled && c.Capture.TimeMode.Interval.Duration <= 0 {
		return fmt.Errorf("%w: capture.time_mode.interval must be > 0", types.ErrConfig)
	}
	if c.Camera.Resolution != "max" {
		if _, _, err := ParseResolution(c.Camera.Resolution); err != nil {
			return fmt.Errorf("%w: camera.resolution: %v", types.ErrConfig, err)
		}
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		return fmt.Errorf("%w: camera.quality must be in 1..100, got %d", types.ErrConfig, c.Camera.Quality)
	}
	if c.Video.Resolution != "source" {
		if _, _, err := ParseResolution(c.Video.Resolution); err != nil {
			return fmt.Errorf("%w: video.resolution: %v", types.ErrConfig, err)
		}
	}
	if c.Transfer.Enabled {
		switch c.Transfer.Protocol {
		case "smb":
			if c.Transfer.SMB.Server == "" || c.Transfer.SMB.Share == "" {
				return fmt.Errorf("%w: transfer.smb requires server and share", types.ErrConfig)
			}
		case "nfs":
			if c.Transfer.NFS.Server == "" || c.Transfer.NFS.Export == "" {
				return fmt.Errorf("%w: transfer.nfs requires server and export", types.ErrConfig)
			}
		default:
			return fmt.Errorf("%w: transfer.protocol must be smb or nfs, got %q", types.ErrConfig, c.Transfer.Protocol)
		}
		if c.Transfer.Retries < 1 {
			return fmt.Errorf("%w: transfer.retries must be >= 1", types.ErrConfig)
		}
	}
	switch c.Adapter.Type {
	case "none":
	case "redis", "webhook":
		if c.Adapter.URL == "" {
			return fmt.Errorf("%w: adapter.url is required for adapter.type %q", types.ErrConfig, c.Adapter.Type)
		}
	default:
		return fmt.Errorf("%w: adapter.type must be none, redis or webhook, got %q", types.ErrConfig, c.Adapter.Type)
	}
	return nil
}

// ParseResolution parses "WIDTHxHEIGHT" into its dimensions.
func ParseResolution(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("expected WIDTHxHEIGHT, got %q", s)
	}
	width, err = strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width %q", w)
	}
	height, err = strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height %q", h)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("dimensions must be positive, got %dx%d", width, height)
	}
	return width, height, nil
}
