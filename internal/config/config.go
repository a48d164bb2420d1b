package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/recapcannon/internal/container"
	"github.com/kikiluvv/recapcannon/internal/effects"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	OutputDir string `yaml:"output_dir"`
	TempDir   string `yaml:"temp_dir"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Capture pipeline limits and timings
	Capture CaptureConfig `yaml:"capture"`

	// Default effect parameters
	Effects effects.Parameters `yaml:"effects"`

	// Subtitle settings
	Subtitles SubtitleConfig `yaml:"subtitles"`

	// Overlay settings
	Overlays OverlayConfig `yaml:"overlays"`
}

type FFmpegConfig struct {
	BinaryPath   string `yaml:"binary_path"`
	ProbePath    string `yaml:"probe_path"`
	Threads      int    `yaml:"threads"`
	Preset       string `yaml:"preset"`
	CRF          int    `yaml:"crf"`
	AudioBitrate string `yaml:"audio_bitrate"`
}

type CaptureConfig struct {
	MaxInputBytes int64         `yaml:"max_input_bytes"`
	FPS           int           `yaml:"fps"`
	Timeslice     time.Duration `yaml:"timeslice"`
	Tick          time.Duration `yaml:"tick"`
	StallTicks    int           `yaml:"stall_ticks"`
	Nudge         time.Duration `yaml:"nudge"`
	Grace         time.Duration `yaml:"grace"`
	MetadataWait  time.Duration `yaml:"metadata_wait"`
	StallTimeout  time.Duration `yaml:"stall_timeout"`
	SampleRate    int           `yaml:"sample_rate"`
	Containers    []string      `yaml:"containers"`
}

type SubtitleConfig struct {
	Color  string `yaml:"color"`
	Stroke int    `yaml:"stroke"`
}

type OverlayConfig struct {
	DefaultLogo string            `yaml:"default_logo"`
	Logos       map[string]string `yaml:"logos"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the values a config file can get wrong
func (c *Config) Validate() error {
	if c.Capture.MaxInputBytes <= 0 {
		return fmt.Errorf("capture.max_input_bytes must be positive")
	}
	if c.Capture.FPS <= 0 || c.Capture.FPS > 120 {
		return fmt.Errorf("capture.fps %d out of range", c.Capture.FPS)
	}
	if c.Capture.Tick <= 0 || c.Capture.StallTicks <= 0 {
		return fmt.Errorf("capture.tick and capture.stall_ticks must be positive")
	}
	for _, mime := range c.Capture.Containers {
		if _, ok := container.Lookup(mime); !ok {
			return fmt.Errorf("capture.containers: unknown type %q", mime)
		}
	}
	if err := c.EffectParameters().Validate(); err != nil {
		return fmt.Errorf("effects: %w", err)
	}
	return nil
}

// EffectParameters returns the configured default effects with the
// subtitle style applied
func (c *Config) EffectParameters() effects.Parameters {
	p := c.Effects
	if c.Subtitles.Color != "" {
		p.CaptionStyle.Color = c.Subtitles.Color
	}
	if c.Subtitles.Stroke > 0 {
		p.CaptionStyle.Stroke = c.Subtitles.Stroke
	}
	return p
}

// LogoPath resolves a logo name or path against the overlay table
func (c *Config) LogoPath(nameOrPath string) string {
	if nameOrPath == "" {
		nameOrPath = c.Overlays.DefaultLogo
	}
	if p, ok := c.Overlays.Logos[nameOrPath]; ok {
		return p
	}
	if nameOrPath == "none" {
		return ""
	}
	return nameOrPath
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		OutputDir: "./output",
		TempDir:   os.TempDir(),
		FFmpeg: FFmpegConfig{
			BinaryPath:   "ffmpeg",
			ProbePath:    "ffprobe",
			Threads:      0,
			Preset:       "veryfast",
			CRF:          23,
			AudioBitrate: "128k",
		},
		Capture: CaptureConfig{
			MaxInputBytes: 50 << 20,
			FPS:           30,
			Timeslice:     200 * time.Millisecond,
			Tick:          16 * time.Millisecond,
			StallTicks:    60,
			Nudge:         100 * time.Millisecond,
			Grace:         500 * time.Millisecond,
			MetadataWait:  3 * time.Second,
			StallTimeout:  15 * time.Second,
			SampleRate:    44100,
			Containers:    container.Known(),
		},
		Effects: effects.Defaults(),
		Subtitles: SubtitleConfig{
			Color:  "#FFFF00",
			Stroke: 6,
		},
		Overlays: OverlayConfig{
			DefaultLogo: "none",
			Logos:       make(map[string]string),
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".recapcannon", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
