package gphoto

import (
	"context"
	"fmt"
)

// FilePath identifies a file on the camera storage.
type FilePath struct {
	Folder string
	Name   string
}

func (p FilePath) String() string {
	return p.Folder + "/" + p.Name
}

// Session is the interface to the camera-control stack. It represents a
// live connection to one device, regardless of how it is implemented
// (gphoto2 command line, bindings, simulator).
type Session interface {
	// Init opens the device session.
	Init(ctx context.Context) error
	// Exit releases the session.
	Exit() error
	// GetConfig fetches the full configuration tree.
	GetConfig(ctx context.Context) (*Widget, error)
	// SetConfig pushes the configuration tree back to the device.
	SetConfig(ctx context.Context, root *Widget) error
	// Capture triggers one image capture and returns where the device
	// stored it.
	Capture(ctx context.Context) (FilePath, error)
	// Download copies a file from the device storage to target.
	Download(ctx context.Context, file FilePath, target string) error
}

// Options selects and configures a Session implementation.
type Options struct {
	Type   string // "gphoto2" or "mock"
	Binary string // gphoto2 executable, default "gphoto2"
	Port   string // e.g. "usb:001,004"; empty = auto
	Model  string // camera model as listed by --auto-detect; empty = auto
}

// NewSession creates a Session based on the chosen type.
func NewSession(opts Options) (Session, error) {
	switch opts.Type {
	case "gphoto2", "":
		return NewCLISession(opts), nil
	case "mock":
		return NewMockSession(), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", opts.Type)
	}
}
