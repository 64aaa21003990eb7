// Package config holds the harness configuration: where the daemon lives, the
// artifact and channel paths it is launched with, wait windows, analyzer
// thresholds and the optional history/archive sinks.
//
// Configuration is resolved in three layers:
//
//  1. Built-in defaults (Default), matching the paths the daemon uses on a
//     stock Raspberry Pi install.
//  2. An optional YAML file, decoded strictly and validated against an
//     embedded CUE schema.
//  3. Environment variables (CAMCONFORM_*), optionally loaded from a .env file.
//
// A Config is built once by the CLI and passed by value to every component.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "camconform.yaml"

// Config is the complete harness configuration.
type Config struct {
	Daemon     DaemonConfig  `yaml:"daemon"`
	Paths      Paths         `yaml:"paths"`
	Waits      Waits         `yaml:"waits"`
	Thresholds Thresholds    `yaml:"thresholds"`
	Motion     MotionConfig  `yaml:"motion"`
	Defaults   Defaults      `yaml:"defaults"`
	Camera     CameraConfig  `yaml:"camera"`
	Report     ReportConfig  `yaml:"report"`
	History    HistoryConfig `yaml:"history"`
	Archive    ArchiveConfig `yaml:"archive"`
}

// DaemonConfig describes the executable under test.
type DaemonConfig struct {
	Path        string        `yaml:"path"`
	Args        []string      `yaml:"args"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// Paths are the well-known locations shared by the harness and the daemon.
type Paths struct {
	Channel string `yaml:"channel"`
	Still   string `yaml:"still"`
	Video   string `yaml:"video"`
	Preview string `yaml:"preview"`
	Motion  string `yaml:"motion"`
}

// Waits are the fixed wait windows that follow each interaction with the
// daemon. The daemon never acknowledges a command, so these are the only
// synchronization the harness has.
type Waits struct {
	Settle        time.Duration `yaml:"settle"`
	Capture       time.Duration `yaml:"capture"`
	Record        time.Duration `yaml:"record"`
	Stop          time.Duration `yaml:"stop"`
	MotionWarmup  time.Duration `yaml:"motion_warmup"`
	MotionObserve time.Duration `yaml:"motion_observe"`

	// Poll replaces the flat sleep before reading an artifact with a bounded
	// poll that returns as soon as the file is present and its size is stable.
	// The wait window becomes the deadline.
	Poll         bool          `yaml:"poll"`
	PollInterval time.Duration `yaml:"poll_interval"`

	ChannelOpen time.Duration `yaml:"channel_open"`
}

// Thresholds are the minimum statistical differences per analyzer.
type Thresholds struct {
	Brightness   float64 `yaml:"brightness"`
	Contrast     float64 `yaml:"contrast"`
	Saturation   float64 `yaml:"saturation"`
	Sharpness    float64 `yaml:"sharpness"`
	WhiteBalance float64 `yaml:"white_balance"`
}

// MotionConfig controls the motion-detection case.
type MotionConfig struct {
	// RequireOutput fails the md case when no motion output file appears.
	// Off by default: producing it needs something moving in front of the lens.
	RequireOutput bool `yaml:"require_output"`
}

// Defaults are the daemon's power-on stream settings. Cases that change them
// put these values back when they finish.
type Defaults struct {
	Preview PreviewDefaults `yaml:"preview"`
	Video   VideoDefaults   `yaml:"video"`
	Bitrate int             `yaml:"bitrate"`
}

// PreviewDefaults are the pv arguments.
type PreviewDefaults struct {
	Quality int `yaml:"quality"`
	Width   int `yaml:"width"`
	Divider int `yaml:"divider"`
}

// VideoDefaults are the px arguments.
type VideoDefaults struct {
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	FPS         int `yaml:"fps"`
	BoxFPS      int `yaml:"box_fps"`
	ImageWidth  int `yaml:"image_width"`
	ImageHeight int `yaml:"image_height"`
	Divider     int `yaml:"divider"`
}

// Args returns the pv arguments in command order.
func (p PreviewDefaults) Args() []any {
	return []any{p.Quality, p.Width, p.Divider}
}

// Args returns the px arguments in command order.
func (v VideoDefaults) Args() []any {
	return []any{v.Width, v.Height, v.FPS, v.BoxFPS, v.ImageWidth, v.ImageHeight, v.Divider}
}

// CameraConfig controls camera mode discovery.
type CameraConfig struct {
	ListCommand []string `yaml:"list_command"`
}

// ReportConfig controls the persisted report.
type ReportConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig controls the SQLite run history. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// ArchiveConfig controls uploading run outputs to S3-compatible storage.
// An empty endpoint disables archiving.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether an archive endpoint is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != ""
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			Path:        "./build/apps/rpicam-mjpeg",
			StopTimeout: 5 * time.Second,
		},
		Paths: Paths{
			Channel: "/var/www/html/FIFO",
			Still:   "/tmp/cam.jpg",
			Video:   "/tmp/cam.mp4",
			Preview: "/dev/shm/mjpeg/cam.jpg",
			Motion:  "/var/www/html/motion_output.txt",
		},
		Waits: Waits{
			Settle:        2 * time.Second,
			Capture:       2 * time.Second,
			Record:        6 * time.Second,
			Stop:          2 * time.Second,
			MotionWarmup:  5 * time.Second,
			MotionObserve: 10 * time.Second,
			PollInterval:  250 * time.Millisecond,
			ChannelOpen:   5 * time.Second,
		},
		Thresholds: Thresholds{
			Brightness:   5,
			Contrast:     5,
			Saturation:   5,
			Sharpness:    5,
			WhiteBalance: 5,
		},
		Defaults: Defaults{
			Preview: PreviewDefaults{Quality: 25, Width: 512, Divider: 1},
			Video: VideoDefaults{
				Width: 1920, Height: 1080, FPS: 25, BoxFPS: 25,
				ImageWidth: 1920, ImageHeight: 1080, Divider: 1,
			},
			Bitrate: 17000000,
		},
		Camera: CameraConfig{
			ListCommand: []string{"libcamera-hello", "--list-cameras"},
		},
		Report: ReportConfig{
			Path: "testing_report.txt",
		},
		History: HistoryConfig{
			Path: "camconform.db",
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			Bucket: "camconform-runs",
			UseSSL: true,
		},
	}
}

// Load reads a YAML config file on top of the defaults.
//
// A missing file is not an error when path is DefaultPath; an explicitly named
// file must exist. Unknown fields are rejected so typos surface immediately.
// Environment overrides are NOT applied here; see ApplyEnv.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	if err := ValidateSchema(path, data); err != nil {
		return cfg, err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants the schema cannot express.
func (c Config) Validate() error {
	if c.Daemon.Path == "" {
		return fmt.Errorf("daemon.path is required")
	}
	paths := map[string]string{
		"paths.channel": c.Paths.Channel,
		"paths.still":   c.Paths.Still,
		"paths.video":   c.Paths.Video,
		"paths.preview": c.Paths.Preview,
	}
	seen := make(map[string]string, len(paths))
	for _, key := range []string{"paths.channel", "paths.still", "paths.video", "paths.preview"} {
		p := paths[key]
		if p == "" {
			return fmt.Errorf("%s is required", key)
		}
		if other, ok := seen[p]; ok {
			return fmt.Errorf("%s and %s point to the same file %q", other, key, p)
		}
		seen[p] = key
	}
	if c.Waits.Poll && c.Waits.PollInterval <= 0 {
		return fmt.Errorf("waits.poll_interval must be positive when waits.poll is enabled")
	}
	for name, d := range map[string]time.Duration{
		"waits.settle":  c.Waits.Settle,
		"waits.capture": c.Waits.Capture,
		"waits.record":  c.Waits.Record,
		"waits.stop":    c.Waits.Stop,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	d := c.Defaults
	for name, v := range map[string]int{
		"defaults.preview.quality":    d.Preview.Quality,
		"defaults.preview.width":      d.Preview.Width,
		"defaults.preview.divider":    d.Preview.Divider,
		"defaults.video.width":        d.Video.Width,
		"defaults.video.height":       d.Video.Height,
		"defaults.video.fps":          d.Video.FPS,
		"defaults.video.box_fps":      d.Video.BoxFPS,
		"defaults.video.image_width":  d.Video.ImageWidth,
		"defaults.video.image_height": d.Video.ImageHeight,
		"defaults.video.divider":      d.Video.Divider,
		"defaults.bitrate":            d.Bitrate,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Archive.Enabled() && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.endpoint is set")
	}
	return nil
}
