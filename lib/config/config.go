// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for a desktop checkout.
	Development Environment = "development"
	// Production is for the device itself.
	Production Environment = "production"
)

// RuntimeDir is the socket directory used when XDG_RUNTIME_DIR is
// unset, as on a stock Termux install.
const RuntimeDir = "${XDG_RUNTIME_DIR:-/data/data/com.termux/files/usr/tmp/wayland}"

// Config is the bridge configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// Listen is the RFB TCP listen address.
	Listen string `yaml:"listen"`

	// HTTPListen serves the WebSocket viewer endpoint, /metrics and
	// /healthz. Empty disables the HTTP server.
	HTTPListen string `yaml:"http_listen"`

	// ControlSocket is the unix socket of the control protocol. Empty
	// disables it.
	ControlSocket string `yaml:"control_socket"`

	// CompositorSocket is where the compositor connects to deliver
	// frames and receive input.
	CompositorSocket string `yaml:"compositor_socket"`

	// Width and Height are the virtual output size announced in
	// ServerInit before the first frame arrives.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// SourceFormat is the compositor's pixel layout, by name (see
	// pixel.FormatNames).
	SourceFormat string `yaml:"source_format"`

	// MaxFPS caps the publish rate. Frames arriving faster coalesce.
	MaxFPS int `yaml:"max_fps"`

	// InputQueueCapacity bounds the shared input queue.
	InputQueueCapacity int `yaml:"input_queue_capacity"`

	// DamageTracking enables tile diffing. When off, every published
	// frame carries full damage.
	DamageTracking bool `yaml:"damage_tracking"`

	// ViewerWriteTimeout is how long a single update write may block
	// before the viewer is dropped, as a Go duration string.
	ViewerWriteTimeout string `yaml:"viewer_write_timeout"`

	// DesktopName is sent in ServerInit.
	DesktopName string `yaml:"desktop_name"`

	// StatsInterval is how often the bridge logs a stats line. "0"
	// disables it.
	StatsInterval string `yaml:"stats_interval"`

	Recording RecordingConfig `yaml:"recording"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// RecordingConfig configures the optional session recorder.
type RecordingConfig struct {
	// Path of the recording file. Empty disables recording.
	Path string `yaml:"path"`

	// Compression of rectangle pixels: "zstd" or "none".
	Compression string `yaml:"compression"`
}

// ConfigOverrides holds the fields an environment section may
// override. Nil means "keep the base value".
type ConfigOverrides struct {
	Listen             *string `yaml:"listen,omitempty"`
	HTTPListen         *string `yaml:"http_listen,omitempty"`
	MaxFPS             *int    `yaml:"max_fps,omitempty"`
	DamageTracking     *bool   `yaml:"damage_tracking,omitempty"`
	ViewerWriteTimeout *string `yaml:"viewer_write_timeout,omitempty"`
	RecordingPath      *string `yaml:"recording_path,omitempty"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Environment:        Development,
		Listen:             ":5901",
		ControlSocket:      RuntimeDir + "/termuxwc.sock",
		CompositorSocket:   RuntimeDir + "/termuxwc-frames.sock",
		Width:              800,
		Height:             600,
		SourceFormat:       "xrgb8888",
		MaxFPS:             30,
		InputQueueCapacity: 256,
		DamageTracking:     true,
		ViewerWriteTimeout: "10s",
		DesktopName:        "termuxwc",
		StatsInterval:      "60s",
		Recording: RecordingConfig{
			Compression: "zstd",
		},
	}
}

// Load loads the file named by TERMUXWC_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("TERMUXWC_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("TERMUXWC_CONFIG environment variable not set; " +
			"set it to the path of a termuxwc.yaml file, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of Default, applies
// the matching environment section and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.ExpandPaths()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			loopback := "127.0.0.1:5901"
			overrides = &ConfigOverrides{Listen: &loopback}
		}
	}
	if overrides == nil {
		return
	}

	if overrides.Listen != nil {
		c.Listen = *overrides.Listen
	}
	if overrides.HTTPListen != nil {
		c.HTTPListen = *overrides.HTTPListen
	}
	if overrides.MaxFPS != nil {
		c.MaxFPS = *overrides.MaxFPS
	}
	if overrides.DamageTracking != nil {
		c.DamageTracking = *overrides.DamageTracking
	}
	if overrides.ViewerWriteTimeout != nil {
		c.ViewerWriteTimeout = *overrides.ViewerWriteTimeout
	}
	if overrides.RecordingPath != nil {
		c.Recording.Path = *overrides.RecordingPath
	}
}

// ExpandPaths expands ${VAR} and ${VAR:-default} in every path field.
// LoadFile calls it; binaries that start from Default call it
// themselves.
func (c *Config) ExpandPaths() {
	c.ControlSocket = expandVars(c.ControlSocket)
	c.CompositorSocket = expandVars(c.CompositorSocket)
	c.Recording.Path = expandVars(c.Recording.Path)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// WriteTimeout returns ViewerWriteTimeout parsed.
func (c *Config) WriteTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.ViewerWriteTimeout)
	return timeout
}

// StatsEvery returns StatsInterval parsed; zero disables stats logging.
func (c *Config) StatsEvery() time.Duration {
	interval, _ := time.ParseDuration(c.StatsInterval)
	return interval
}

// PixelFormat resolves SourceFormat.
func (c *Config) PixelFormat() (pixel.PixelFormat, error) {
	return pixel.FormatByName(c.SourceFormat)
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.CompositorSocket == "" {
		errs = append(errs, errors.New("compositor_socket is required"))
	}
	if c.Width <= 0 || c.Width > 0xffff || c.Height <= 0 || c.Height > 0xffff {
		errs = append(errs, fmt.Errorf("width and height must be in 1..65535, got %dx%d", c.Width, c.Height))
	}
	if _, err := c.PixelFormat(); err != nil {
		errs = append(errs, fmt.Errorf("source_format: %w (accepted: %v)", err, pixel.FormatNames()))
	}
	if c.MaxFPS <= 0 || c.MaxFPS > 240 {
		errs = append(errs, fmt.Errorf("max_fps must be in 1..240, got %d", c.MaxFPS))
	}
	if c.InputQueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("input_queue_capacity must be positive, got %d", c.InputQueueCapacity))
	}
	if timeout, err := time.ParseDuration(c.ViewerWriteTimeout); err != nil || timeout <= 0 {
		errs = append(errs, fmt.Errorf("viewer_write_timeout must be a positive duration, got %q", c.ViewerWriteTimeout))
	}
	if interval, err := time.ParseDuration(c.StatsInterval); err != nil || interval < 0 {
		errs = append(errs, fmt.Errorf("stats_interval must be a non-negative duration, got %q", c.StatsInterval))
	}
	switch c.Recording.Compression {
	case "zstd", "none":
	default:
		errs = append(errs, fmt.Errorf("recording.compression must be zstd or none, got %q", c.Recording.Compression))
	}

	return errors.Join(errs...)
}
