package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}


// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
camera:
  type: "gphoto2"
  binary: "/usr/bin/gphoto2"
  port: "usb:001,004"
  model: "Nikon DSC D90"
output:
  dir: "TestHDR/Test_04"
bracketing:
  shutter_min: "1/60"
  shutter_max: "10.3"
  aperture: "f/8"
timelapse:
  count: 5
  interval_ms: 2000
  shutter_speed: "1/125"
indicator:
  busy_pin: 17
  active_low: true
defaults:
  debug_level: 2
  mock_gpio: true
  web_port: 8980
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.Type != "gphoto2" {
		t.Errorf("camera.type = %q, want %q", cfg.Camera.Type, "gphoto2")
	}
	if cfg.Camera.Port != "usb:001,004" {
		t.Errorf("camera.port = %q", cfg.Camera.Port)
	}
	if cfg.Camera.Model != "Nikon DSC D90" {
		t.Errorf("camera.model = %q", cfg.Camera.Model)
	}
	if cfg.Output.Dir != "TestHDR/Test_04" {
		t.Errorf("output.dir = %q", cfg.Output.Dir)
	}
	if cfg.Bracketing.ShutterMin != "1/60" || cfg.Bracketing.ShutterMax != "10.3" {
		t.Errorf("bracketing = %+v", cfg.Bracketing)
	}
	if cfg.Bracketing.Aperture != "f/8" {
		t.Errorf("bracketing.aperture = %q, want f/8", cfg.Bracketing.Aperture)
	}
	if cfg.TimeLapse.Count != 5 {
		t.Errorf("timelapse.count = %d, want 5", cfg.TimeLapse.Count)
	}
	if cfg.TimeLapse.ShutterSpeed != "1/125" {
		t.Errorf("timelapse.shutter_speed = %q", cfg.TimeLapse.ShutterSpeed)
	}
	if cfg.Indicator.BusyPin != 17 || !cfg.Indicator.ActiveLow {
		t.Errorf("indicator = %+v", cfg.Indicator)
	}
	if cfg.Defaults.WebPort != 8980 {
		t.Errorf("web_port = %d, want 8980", cfg.Defaults.WebPort)
	}
}

func TestLoad_MissingCameraType(t *testing.T) {
	path := writeConfig(t, "output:\n  dir: out\n")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for missing camera.type, got nil")
	}
}

func TestLoad_UnsupportedCameraType(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: \"nikon_d90_gpio\"\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "camera.type") {
		t.Errorf("expected camera.type error, got %v", err)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: mock\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.Binary != "gphoto2" {
		t.Errorf("camera.binary default = %q, want gphoto2", cfg.Camera.Binary)
	}
	if cfg.Output.Dir != "captures" {
		t.Errorf("output.dir default = %q, want captures", cfg.Output.Dir)
	}
	if cfg.Bracketing.ShutterMin != "1/50" {
		t.Errorf("shutter_min default = %q, want 1/50", cfg.Bracketing.ShutterMin)
	}
	if cfg.Bracketing.ShutterMax != "10.3" {
		t.Errorf("shutter_max default = %q, want 10.3", cfg.Bracketing.ShutterMax)
	}
	if cfg.Bracketing.Aperture != "" {
		t.Errorf("aperture default = %q, want empty", cfg.Bracketing.Aperture)
	}
	if cfg.TimeLapse.Count != 20 {
		t.Errorf("timelapse.count default = %d, want 20", cfg.TimeLapse.Count)
	}
	if cfg.TimeLapse.IntervalMs != 500 {
		t.Errorf("timelapse.interval_ms default = %d, want 500", cfg.TimeLapse.IntervalMs)
	}
	if cfg.Defaults.WebPort != 8080 {
		t.Errorf("web_port default = %d, want 8080", cfg.Defaults.WebPort)
	}
	if cfg.IndicatorEnabled() {
		t.Error("indicator should be disabled by default")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"negative_count", "camera:\n  type: mock\ntimelapse:\n  count: -1\n"},
		{"zero_count", "camera:\n  type: mock\ntimelapse:\n  count: 0\n"},
		{"negative_interval", "camera:\n  type: mock\ntimelapse:\n  interval_ms: -5\n"},
		{"negative_pin", "camera:\n  type: mock\nindicator:\n  busy_pin: -2\n"},
		{"debug_too_high", "camera:\n  type: mock\ndefaults:\n  debug_level: 5\n"},
		{"port_too_high", "camera:\n  type: mock\ndefaults:\n  web_port: 70000\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_ZeroIntervalKept(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: mock\ntimelapse:\n  count: 4\n  interval_ms: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TimeLapse.IntervalMs != 0 {
		t.Errorf("interval_ms = %d, want explicit 0 kept", cfg.TimeLapse.IntervalMs)
	}
	if cfg.Interval() != 0 {
		t.Errorf("Interval() = %v, want 0", cfg.Interval())
	}
	if cfg.TimeLapse.Count != 4 {
		t.Errorf("count = %d, want 4", cfg.TimeLapse.Count)
	}
}

func TestLoad_BoundsNotCheckedAgainstDevice(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: mock\nbracketing:\n  shutter_min: \"not a speed\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("bracketing bounds are free-form strings, got error: %v", err)
	}
	if cfg.Bracketing.ShutterMin != "not a speed" {
		t.Errorf("shutter_min = %q", cfg.Bracketing.ShutterMin)
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	data := strings.Repeat("#", MaxConfigFileBytes+1)
	path := writeConfig(t, data)
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for empty config (camera.type missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
camera:
  type: "mock"
lens:
  focal_length_mm: 35.0
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := Load(filepath.Join(cfgDir, "nonexistent.yaml"))
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_RejectsPathOutsideConfigs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camera.yaml")
	if err := os.WriteFile(path, []byte("camera:\n  type: mock\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected path validation error, got nil")
	}
}

// ---------- Helper methods ----------

func TestConfig_OutputPath(t *testing.T) {
	cfg := &Config{Output: OutputConfig{Dir: "TestHDR/Test_04"}}
	if got, want := cfg.OutputPath("/opt/bracketgo"), filepath.Join("/opt/bracketgo", "TestHDR/Test_04"); got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
	cfg.Output.Dir = "/srv/photos"
	if got := cfg.OutputPath("/opt/bracketgo"); got != "/srv/photos" {
		t.Errorf("absolute OutputPath = %q, want /srv/photos", got)
	}
}

func TestConfig_Interval(t *testing.T) {
	cfg := &Config{TimeLapse: TimeLapseConfig{IntervalMs: 1500}}
	if cfg.Interval() != 1500*time.Millisecond {
		t.Errorf("Interval = %v, want 1.5s", cfg.Interval())
	}
}

func TestConfig_IndicatorEnabled(t *testing.T) {
	cfg := &Config{Indicator: IndicatorConfig{BusyPin: 4}}
	if !cfg.IndicatorEnabled() {
		t.Error("busy_pin 4 should enable the indicator")
	}
}
