package gphoto

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/cjeanneret/BracketGo/internal/debug"
)

// Shutter speeds and apertures as listed by a Nikon DSLR, in device order.
var (
	mockShutterSpeeds = []string{
		"30", "25", "20", "15", "13", "10.3", "8", "6.3", "5", "4", "3.2", "2.5", "2",
		"1.6", "1.3", "1", "0.8", "0.6", "0.5", "0.4", "0.3", "1/4", "1/5", "1/6",
		"1/8", "1/10", "1/13", "1/15", "1/20", "1/25", "1/30", "1/40", "1/50",
		"1/60", "1/80", "1/100", "1/125", "1/160", "1/200", "1/250", "1/320",
		"1/400", "1/500", "1/640", "1/800", "1/1000", "1/1250", "1/1600",
		"1/2000", "1/2500", "1/3200", "1/4000", "Bulb",
	}
	mockApertures = []string{
		"f/1.8", "f/2", "f/2.2", "f/2.5", "f/2.8", "f/3.2", "f/3.5", "f/4", "f/4.5",
		"f/5", "f/5.6", "f/6.3", "f/7.1", "f/8", "f/9", "f/10", "f/11", "f/13",
		"f/14", "f/16", "f/18", "f/20", "f/22",
	}
)

// minimal JPEG (SOI + EOI) so downloaded placeholder files are recognisable
var mockJPEG = []byte{0xFF, 0xD8, 0xFF, 0xD9}

// MockSession is a simulated camera used for development without a device.
type MockSession struct {
	mu      sync.Mutex
	open    bool
	counter int
	device  map[string]string // path -> value as the "device" knows it
	files   map[FilePath]bool
}

// NewMockSession creates a simulated Nikon-style camera.
func NewMockSession() *MockSession {
	return &MockSession{
		device: map[string]string{
			"/main/capturesettings/aperture":     "f/5.6",
			"/main/capturesettings/shutterspeed": "1/60",
		},
		files: make(map[FilePath]bool),
	}
}

func (m *MockSession) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	debug.Info("Using MOCK camera session (development mode)")
	m.open = true
	return nil
}

func (m *MockSession) Exit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	debug.Trace("gphoto: mock session exit")
	m.open = false
	return nil
}

func (m *MockSession) GetConfig(ctx context.Context) (*Widget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return nil, ErrNotInitialized
	}

	root := NewWidget("main", TypeWindow)
	settings := root.AddChild(NewWidget("capturesettings", TypeSection))
	settings.Label = "Capture Settings"

	aperture := settings.AddChild(NewWidget("aperture", TypeRadio))
	aperture.Label = "Aperture"
	aperture.Choices = append([]string(nil), mockApertures...)
	aperture.value = m.device[aperture.Path()]

	shutter := settings.AddChild(NewWidget("shutterspeed", TypeRadio))
	shutter.Label = "Shutter Speed"
	shutter.Choices = append([]string(nil), mockShutterSpeeds...)
	shutter.value = m.device[shutter.Path()]

	status := root.AddChild(NewWidget("status", TypeSection))
	model := status.AddChild(NewWidget("cameramodel", TypeText))
	model.Label = "Camera Model"
	model.ReadOnly = true
	model.value = "Mock DSLR"

	return root, nil
}

func (m *MockSession) SetConfig(ctx context.Context, root *Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotInitialized
	}
	for _, w := range root.ChangedLeaves() {
		if len(w.Choices) > 0 && !slices.Contains(w.Choices, w.Value()) {
			return fmt.Errorf("gphoto: %q is not a valid choice for %s", w.Value(), w.Path())
		}
		m.device[w.Path()] = w.Value()
	}
	root.ClearChanged()
	return nil
}

func (m *MockSession) Capture(ctx context.Context) (FilePath, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return FilePath{}, ErrNotInitialized
	}
	m.counter++
	f := FilePath{
		Folder: "/store_00010001/DCIM/100MOCK",
		Name:   fmt.Sprintf("DSC_%04d.JPG", m.counter),
	}
	m.files[f] = true
	return f, nil
}

func (m *MockSession) Download(ctx context.Context, file FilePath, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotInitialized
	}
	if !m.files[file] {
		return fmt.Errorf("gphoto: file %s not found on camera", file)
	}
	return os.WriteFile(target, mockJPEG, 0o644)
}
