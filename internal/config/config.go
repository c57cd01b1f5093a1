package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// Time-lapse defaults used when the keys are absent from the file. An
// explicit interval_ms: 0 is kept and means no pause between shots.
const (
	DefaultTimeLapseCount      = 20
	DefaultTimeLapseIntervalMs = 500
)

// CameraConfig describes how to reach the camera.
// Type selects a session implementation ("gphoto2" or "mock").
type CameraConfig struct {
	Type   string `yaml:"type"`   // e.g., "gphoto2"
	Binary string `yaml:"binary"` // gphoto2 executable (default "gphoto2")
	Port   string `yaml:"port"`   // e.g., "usb:001,004"; empty = auto-detect
	Model  string `yaml:"model"`  // e.g., "Nikon DSC D90"; empty = first detected
}

// OutputConfig says where downloaded images go.
type OutputConfig struct {
	Dir string `yaml:"dir"` // relative paths are resolved against the executable directory
}

// BracketingConfig holds the default bracketing bounds. The values are
// device choice strings and are not checked here.
type BracketingConfig struct {
	ShutterMin string `yaml:"shutter_min"` // last speed shot, e.g. "1/50"
	ShutterMax string `yaml:"shutter_max"` // first speed shot, e.g. "10.3"
	Aperture   string `yaml:"aperture"`    // optional, e.g. "f/8"
}

// TimeLapseConfig holds the default time-lapse parameters.
type TimeLapseConfig struct {
	Count        int    `yaml:"count"`
	IntervalMs   int    `yaml:"interval_ms"`
	Aperture     string `yaml:"aperture"`      // optional
	ShutterSpeed string `yaml:"shutter_speed"` // optional
}

// IndicatorConfig describes the optional busy light.
type IndicatorConfig struct {
	BusyPin   int  `yaml:"busy_pin"`   // BCM pin number, 0 = no light
	ActiveLow bool `yaml:"active_low"` // light is on when the pin is LOW
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	WebPort    int  `yaml:"web_port"`    // port for the serve command
}

// Config aggregates all application configuration.
type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Output     OutputConfig     `yaml:"output"`
	Bracketing BracketingConfig `yaml:"bracketing"`
	TimeLapse  TimeLapseConfig  `yaml:"timelapse"`
	Indicator  IndicatorConfig  `yaml:"indicator"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files located in a directory
// named "configs" and rejects paths escaping the working directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) && (clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))) {
		return fmt.Errorf("config path %q escapes the working directory", path)
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if fi.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", fi.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Config{TimeLapse: TimeLapseConfig{
		Count:      DefaultTimeLapseCount,
		IntervalMs: DefaultTimeLapseIntervalMs,
	}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	switch cfg.Camera.Type {
	case "":
		return fmt.Errorf("camera.type is required")
	case "gphoto2", "mock":
	default:
		return fmt.Errorf("camera.type must be gphoto2 or mock, got %q", cfg.Camera.Type)
	}
	if cfg.Camera.Binary == "" {
		cfg.Camera.Binary = "gphoto2"
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "captures"
	}

	if cfg.Bracketing.ShutterMin == "" {
		cfg.Bracketing.ShutterMin = "1/50"
	}
	if cfg.Bracketing.ShutterMax == "" {
		cfg.Bracketing.ShutterMax = "10.3"
	}

	if cfg.TimeLapse.Count < 1 {
		return fmt.Errorf("timelapse.count must be >= 1, got %d", cfg.TimeLapse.Count)
	}
	if cfg.TimeLapse.IntervalMs < 0 {
		return fmt.Errorf("timelapse.interval_ms must be >= 0, got %d", cfg.TimeLapse.IntervalMs)
	}

	if cfg.Indicator.BusyPin < 0 {
		return fmt.Errorf("indicator.busy_pin must be >= 0, got %d", cfg.Indicator.BusyPin)
	}

	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}
	if cfg.Defaults.WebPort == 0 {
		cfg.Defaults.WebPort = 8080
	}
	if cfg.Defaults.WebPort < 0 || cfg.Defaults.WebPort > 65535 {
		return fmt.Errorf("web_port must be 1-65535, got %d", cfg.Defaults.WebPort)
	}
	return nil
}

// OutputPath returns the output directory, resolving a relative
// output.dir against baseDir.
func (c *Config) OutputPath(baseDir string) string {
	if filepath.IsAbs(c.Output.Dir) {
		return c.Output.Dir
	}
	return filepath.Join(baseDir, c.Output.Dir)
}

// Interval returns the pause between two time-lapse captures.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.TimeLapse.IntervalMs) * time.Millisecond
}

// IndicatorEnabled reports whether a busy light is wired.
func (c *Config) IndicatorEnabled() bool {
	return c.Indicator.BusyPin > 0
}
