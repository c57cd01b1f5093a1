// Package camera wraps one camera session: exposure settings, single
// captures, bracketing and time-lapse sequences.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cjeanneret/BracketGo/internal/debug"
	"github.com/cjeanneret/BracketGo/internal/hw/gphoto"
	"github.com/cjeanneret/BracketGo/internal/logic/exposure"
)

// Setting names in the gphoto2 configuration tree.
const (
	sectionCaptureSettings = "capturesettings"
	settingAperture        = "aperture"
	settingFNumber         = "f-number" // name used by some bodies instead of "aperture"
	settingShutterSpeed    = "shutterspeed"
)

// Indicator is switched on while a photo is being taken and transferred.
type Indicator interface {
	On() error
	Off() error
}

// Options configure a Camera.
type Options struct {
	OutputDir string    // where downloaded files are written; created by Init
	Indicator Indicator // optional busy light
}

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

// Camera owns the session handle and the last fetched configuration
// snapshot. Setters change the snapshot and push it back immediately.
// A Camera is not safe for concurrent use.
type Camera struct {
	session   gphoto.Session
	config    *gphoto.Widget
	outputDir string
	indicator Indicator
	state     state

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an uninitialized Camera around session.
func New(session gphoto.Session, opts Options) *Camera {
	return &Camera{
		session:   session,
		outputDir: opts.OutputDir,
		indicator: opts.Indicator,
		sleep:     sleepContext,
	}
}

// Open creates a Camera and initializes it.
func Open(ctx context.Context, session gphoto.Session, opts Options) (*Camera, error) {
	c := New(session, opts)
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Init creates the output directory, opens the session and fetches the
// configuration. On failure the session is released and an
// ErrInitialization error is returned; the Camera cannot be reused.
func (c *Camera) Init(ctx context.Context) error {
	if c.state != stateNew {
		return newError(ErrSessionClosed, "init", "", errors.New("already initialized"))
	}
	debug.Verbose("Camera: init (output dir %s)", c.outputDir)

	fail := func(err error) error {
		if exitErr := c.Exit(); exitErr != nil {
			debug.Error(exitErr)
		}
		return newError(ErrInitialization, "init", "", err)
	}

	if c.session == nil {
		return fail(errors.New("no session"))
	}
	if c.outputDir == "" {
		return fail(errors.New("no output directory"))
	}
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return fail(fmt.Errorf("create output dir: %w", err))
	}
	if err := c.session.Init(ctx); err != nil {
		return fail(err)
	}
	cfg, err := c.session.GetConfig(ctx)
	if err != nil {
		return fail(fmt.Errorf("get config: %w", err))
	}
	c.config = cfg
	c.state = stateOpen
	return nil
}

// Exit releases the session. It is safe to call more than once and on a
// Camera whose Init failed or never ran.
func (c *Camera) Exit() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	c.config = nil
	if c.session == nil {
		return nil
	}
	debug.Verbose("Camera: exit")
	return c.session.Exit()
}

// OutputDir returns the directory captured files are written to.
func (c *Camera) OutputDir() string {
	return c.outputDir
}

func (c *Camera) checkOpen(op string) error {
	if c.state != stateOpen {
		return newError(ErrSessionClosed, op, "", nil)
	}
	return nil
}

// Refresh fetches the configuration snapshot from the device again,
// discarding unpushed local changes.
func (c *Camera) Refresh(ctx context.Context) error {
	if err := c.checkOpen("refresh"); err != nil {
		return err
	}
	cfg, err := c.session.GetConfig(ctx)
	if err != nil {
		return newError(ErrConfigPush, "refresh", "", err)
	}
	c.config = cfg
	return nil
}

// Setting returns the node called name inside the capture settings section.
func (c *Camera) Setting(name string) (*gphoto.Widget, error) {
	if err := c.checkOpen("lookup"); err != nil {
		return nil, err
	}
	debug.Trace("Camera: lookup %s/%s", sectionCaptureSettings, name)
	section, err := c.config.ChildByName(sectionCaptureSettings)
	if err != nil {
		return nil, newError(ErrSettingNotFound, "lookup", sectionCaptureSettings, err)
	}
	node, err := section.ChildByName(name)
	if err != nil {
		return nil, newError(ErrSettingNotFound, "lookup", name, err)
	}
	return node, nil
}

func (c *Camera) apertureNode() (*gphoto.Widget, error) {
	node, err := c.Setting(settingAperture)
	if errors.Is(err, ErrSettingNotFound) {
		if alt, altErr := c.Setting(settingFNumber); altErr == nil {
			return alt, nil
		}
	}
	return node, err
}

// Aperture returns the current aperture.
func (c *Camera) Aperture() (string, error) {
	node, err := c.apertureNode()
	if err != nil {
		return "", err
	}
	return node.Value(), nil
}

// SetAperture changes the aperture and pushes the configuration.
func (c *Camera) SetAperture(ctx context.Context, value string) error {
	node, err := c.apertureNode()
	if err != nil {
		return err
	}
	return c.set(ctx, node, value)
}

// ShutterSpeed returns the current shutter speed.
func (c *Camera) ShutterSpeed() (string, error) {
	node, err := c.Setting(settingShutterSpeed)
	if err != nil {
		return "", err
	}
	return node.Value(), nil
}

// SetShutterSpeed changes the shutter speed and pushes the configuration.
func (c *Camera) SetShutterSpeed(ctx context.Context, value string) error {
	node, err := c.Setting(settingShutterSpeed)
	if err != nil {
		return err
	}
	return c.set(ctx, node, value)
}

func (c *Camera) set(ctx context.Context, node *gphoto.Widget, value string) error {
	debug.Live("Camera: %s -> %s", node.Name, value)
	if err := node.SetValue(value); err != nil {
		return newError(ErrConfigPush, "set", node.Name, err)
	}
	return c.Push(ctx)
}

// Push sends the whole configuration snapshot to the device.
func (c *Camera) Push(ctx context.Context) error {
	if err := c.checkOpen("push"); err != nil {
		return err
	}
	if err := c.session.SetConfig(ctx, c.config); err != nil {
		return newError(ErrConfigPush, "push", "", err)
	}
	return nil
}

// Choices lists the non-empty choices of node in device order.
func (c *Camera) Choices(node *gphoto.Widget) []string {
	debug.Verbose("Camera: choices of %s", node.Name)
	var out []string
	for i := 0; i < node.CountChoices(); i++ {
		choice, err := node.Choice(i)
		if err != nil || choice == "" {
			continue
		}
		out = append(out, choice)
	}
	return out
}

// ApertureChoices lists the apertures the device accepts.
func (c *Camera) ApertureChoices() ([]string, error) {
	node, err := c.apertureNode()
	if err != nil {
		return nil, err
	}
	return c.Choices(node), nil
}

// ShutterSpeedChoices lists the shutter speeds the device accepts.
func (c *Camera) ShutterSpeedChoices() ([]string, error) {
	node, err := c.Setting(settingShutterSpeed)
	if err != nil {
		return nil, err
	}
	return c.Choices(node), nil
}

// TakePhoto captures one image and downloads it into the output
// directory under the name the camera gave it. An existing file with
// that name is overwritten. It returns the local path.
func (c *Camera) TakePhoto(ctx context.Context) (string, error) {
	if err := c.checkOpen("capture"); err != nil {
		return "", err
	}
	if c.indicator != nil {
		if err := c.indicator.On(); err != nil {
			debug.Error(fmt.Errorf("busy light on: %w", err))
		}
		defer func() {
			if err := c.indicator.Off(); err != nil {
				debug.Error(fmt.Errorf("busy light off: %w", err))
			}
		}()
	}

	debug.Verbose("Camera: capturing image")
	file, err := c.session.Capture(ctx)
	if err != nil {
		return "", newError(ErrCapture, "capture", "", err)
	}
	debug.Verbose("Camera: file on camera %s", file)

	target := filepath.Join(c.outputDir, filepath.Base(file.Name))
	debug.Verbose("Camera: copying image to %s", target)
	if err := c.session.Download(ctx, file, target); err != nil {
		return "", newError(ErrTransfer, "download", file.String(), err)
	}
	return target, nil
}

// BracketParams defines a shutter-speed bracketing run.
type BracketParams struct {
	ShutterMin string // last speed to shoot
	ShutterMax string // first speed to shoot
	Aperture   string // set once before the run; empty keeps the current one
}

// Bracket takes one photo per shutter speed from ShutterMax to ShutterMin
// as ordered in the device choice list. Either bound missing from the list
// fails before any capture. It returns the local paths of the photos taken,
// including those taken before a failure.
func (c *Camera) Bracket(ctx context.Context, p BracketParams) ([]string, error) {
	if p.Aperture != "" {
		if err := c.SetAperture(ctx, p.Aperture); err != nil {
			return nil, err
		}
	}

	choices, err := c.ShutterSpeedChoices()
	if err != nil {
		return nil, err
	}
	debug.Verbose("Camera: shutter speeds %v", choices)

	speeds, err := exposure.ShutterRange(choices, p.ShutterMin, p.ShutterMax)
	if err != nil {
		var nf *exposure.NotFoundError
		if errors.As(err, &nf) {
			return nil, newError(ErrChoiceNotFound, "bracket", nf.Value, err)
		}
		return nil, newError(ErrChoiceNotFound, "bracket", "", err)
	}
	debug.Plan(speeds)

	aperture := logValue(c.Aperture)
	var paths []string
	for i, speed := range speeds {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		if err := c.SetShutterSpeed(ctx, speed); err != nil {
			return paths, err
		}
		path, err := c.TakePhoto(ctx)
		if err != nil {
			return paths, err
		}
		debug.Shot(i, aperture, speed, path)
		paths = append(paths, path)
	}
	return paths, nil
}

// TimeLapseParams defines a timed capture loop.
type TimeLapseParams struct {
	Count        int
	Interval     time.Duration // pause between two captures
	Aperture     string        // set once before the loop; empty keeps current
	ShutterSpeed string        // set once before the loop; empty keeps current
}

// TimeLapse takes Count photos with Interval between consecutive ones.
// There is no pause after the last photo.
func (c *Camera) TimeLapse(ctx context.Context, p TimeLapseParams) ([]string, error) {
	if p.Aperture != "" {
		if err := c.SetAperture(ctx, p.Aperture); err != nil {
			return nil, err
		}
	}
	if p.ShutterSpeed != "" {
		if err := c.SetShutterSpeed(ctx, p.ShutterSpeed); err != nil {
			return nil, err
		}
	}

	debug.Info("Time-lapse: %d photos every %v", p.Count, p.Interval)
	aperture := logValue(c.Aperture)
	shutter := logValue(c.ShutterSpeed)

	var paths []string
	for i := 0; i < p.Count; i++ {
		if i > 0 {
			if err := c.sleep(ctx, p.Interval); err != nil {
				return paths, err
			}
		}
		path, err := c.TakePhoto(ctx)
		if err != nil {
			return paths, err
		}
		debug.Shot(i, aperture, shutter, path)
		paths = append(paths, path)
	}
	return paths, nil
}

// logValue reads a setting for the per-shot log line. A lookup failure is
// reported and leaves the value empty; the sequence keeps going.
func logValue(get func() (string, error)) string {
	v, err := get()
	if err != nil {
		debug.Error(err)
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
