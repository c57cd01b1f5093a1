package gphoto

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cjeanneret/BracketGo/internal/debug"
)

// ErrNotInitialized is returned by session calls made before Init or after Exit.
var ErrNotInitialized = errors.New("gphoto: session not initialized")

// Runner executes an external program and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the program with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// captureTargetSetting selects internal RAM or the memory card on bodies
// that offer both (/main/settings/capturetarget or
// /main/capturesettings/capturetarget depending on the driver).
const captureTargetSetting = "capturetarget"

// CLISession is a Session implementation driving the gphoto2 command
// line program. Every invocation claims the USB device for its own
// duration, so Init only checks that the camera is reachable.
//
// A file captured to internal RAM is deleted when the capturing process
// exits. Init therefore points the capture target at the memory card; when
// that is not possible, Capture downloads in the same invocation into a
// staging directory and Download moves the staged file into place.
type CLISession struct {
	binary string
	port   string
	model  string
	run    Runner
	open   bool

	cardTarget bool
	stageDir   string
	ownStage   bool
	staged     map[FilePath]string
}

// NewCLISession creates a gphoto2 command line session.
func NewCLISession(opts Options) *CLISession {
	bin := opts.Binary
	if bin == "" {
		bin = "gphoto2"
	}
	return &CLISession{
		binary: bin,
		port:   opts.Port,
		model:  opts.Model,
		run:    ExecRunner,
		staged: make(map[FilePath]string),
	}
}

// WithRunner replaces the command runner (used by tests).
func (s *CLISession) WithRunner(r Runner) *CLISession {
	s.run = r
	return s
}

// WithStageDir sets the directory staged captures are written to. By
// default a temporary directory is created on first use and removed by Exit.
func (s *CLISession) WithStageDir(dir string) *CLISession {
	s.stageDir = dir
	s.ownStage = false
	return s
}

func (s *CLISession) exec(ctx context.Context, args ...string) ([]byte, error) {
	var full []string
	if s.port != "" {
		full = append(full, "--port", s.port)
	}
	if s.model != "" {
		full = append(full, "--camera", s.model)
	}
	full = append(full, args...)
	debug.Command(s.binary, full)

	out, err := s.run(ctx, s.binary, full...)
	if debug.IsEnabled(debug.LevelTrace) {
		debug.Trace("%s output: %s", args[0], strings.TrimSpace(string(out)))
	}
	if err != nil {
		if msg := errorMessage(out); msg != "" {
			return out, fmt.Errorf("%s %s: %w: %s", s.binary, args[0], err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", s.binary, args[0], err)
	}
	return out, nil
}

// Init checks that a camera is detected.
func (s *CLISession) Init(ctx context.Context) error {
	out, err := s.exec(ctx, "--auto-detect")
	if err != nil {
		return err
	}
	cameras := parseAutoDetect(out)
	if len(cameras) == 0 {
		return errors.New("gphoto: no camera detected")
	}
	if s.model != "" {
		found := false
		for _, c := range cameras {
			if strings.HasPrefix(c, s.model) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("gphoto: camera %q not detected (found %v)", s.model, cameras)
		}
	}
	debug.Verbose("gphoto: detected %v", cameras)
	s.cardTarget = s.selectCardTarget(ctx)
	debug.Verbose("gphoto: capture to memory card: %v", s.cardTarget)
	s.open = true
	return nil
}

// selectCardTarget reports whether captures are known to land on the
// memory card, switching the capture target there if needed.
func (s *CLISession) selectCardTarget(ctx context.Context) bool {
	out, err := s.exec(ctx, "--get-config", captureTargetSetting)
	if err != nil {
		debug.Verbose("gphoto: no %s setting: %v", captureTargetSetting, err)
		return false
	}
	w, err := parseSingleConfig(captureTargetSetting, out)
	if err != nil {
		debug.Error(err)
		return false
	}
	card := cardChoice(w.Choices)
	if card == "" {
		return false
	}
	if w.Value() == card {
		return true
	}
	if _, err := s.exec(ctx, "--set-config-value", captureTargetSetting+"="+card); err != nil {
		debug.Error(err)
		return false
	}
	return true
}

func parseSingleConfig(name string, out []byte) (*Widget, error) {
	w := NewWidget(name, "")
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "END" {
			break
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if err := applyField(w, key, strings.TrimPrefix(val, " ")); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func cardChoice(choices []string) string {
	for _, c := range choices {
		if strings.Contains(strings.ToLower(c), "card") {
			return c
		}
	}
	return ""
}

// Exit marks the session closed and drops staged captures. Calling it
// more than once is harmless.
func (s *CLISession) Exit() error {
	s.open = false
	s.staged = make(map[FilePath]string)
	if s.ownStage && s.stageDir != "" {
		err := os.RemoveAll(s.stageDir)
		s.stageDir, s.ownStage = "", false
		return err
	}
	return nil
}

// GetConfig fetches the full configuration tree.
func (s *CLISession) GetConfig(ctx context.Context) (*Widget, error) {
	if !s.open {
		return nil, ErrNotInitialized
	}
	out, err := s.exec(ctx, "--list-all-config")
	if err != nil {
		return nil, err
	}
	return ParseConfigList(out)
}

// SetConfig pushes every changed leaf of root in one invocation.
func (s *CLISession) SetConfig(ctx context.Context, root *Widget) error {
	if !s.open {
		return ErrNotInitialized
	}
	changed := root.ChangedLeaves()
	if len(changed) == 0 {
		return nil
	}
	var args []string
	for _, w := range changed {
		args = append(args, "--set-config-value", w.Path()+"="+w.Value())
	}
	if _, err := s.exec(ctx, args...); err != nil {
		return err
	}
	root.ClearChanged()
	return nil
}

// Capture triggers one capture and returns the file location on the camera.
func (s *CLISession) Capture(ctx context.Context) (FilePath, error) {
	if !s.open {
		return FilePath{}, ErrNotInitialized
	}
	if !s.cardTarget {
		return s.captureStaged(ctx)
	}
	out, err := s.exec(ctx, "--capture-image")
	if err != nil {
		return FilePath{}, err
	}
	return parseCaptureLocation(out)
}

func (s *CLISession) captureStaged(ctx context.Context) (FilePath, error) {
	if s.stageDir == "" {
		dir, err := os.MkdirTemp("", "bracketgo-")
		if err != nil {
			return FilePath{}, fmt.Errorf("gphoto: create staging dir: %w", err)
		}
		s.stageDir, s.ownStage = dir, true
	}
	out, err := s.exec(ctx,
		"--capture-image-and-download",
		"--keep",
		"--filename", filepath.Join(s.stageDir, "%f.%C"),
		"--force-overwrite",
	)
	if err != nil {
		return FilePath{}, err
	}
	file, err := parseCaptureLocation(out)
	if err != nil {
		return FilePath{}, err
	}
	local, err := parseSavedFile(out)
	if err != nil {
		return FilePath{}, err
	}
	s.staged[file] = local
	return file, nil
}

// Download looks up the file number in its folder and fetches it to target.
// An existing target file is overwritten.
func (s *CLISession) Download(ctx context.Context, file FilePath, target string) error {
	if !s.open {
		return ErrNotInitialized
	}
	if local, ok := s.staged[file]; ok {
		if err := moveFile(local, target); err != nil {
			return fmt.Errorf("gphoto: move staged %s: %w", file, err)
		}
		delete(s.staged, file)
		return nil
	}
	out, err := s.exec(ctx, "--folder", file.Folder, "--list-files")
	if err != nil {
		return err
	}
	num, err := findFileNumber(out, file.Name)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx,
		"--folder", file.Folder,
		"--get-file", strconv.Itoa(num),
		"--filename", target,
		"--force-overwrite",
	)
	return err
}

// ParseConfigList builds a configuration tree from the output of
// gphoto2 --list-all-config.
func ParseConfigList(out []byte) (*Widget, error) {
	var root *Widget
	var cur *Widget

	sc := bufio.NewScanner(bytes.NewReader(out))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "/"):
			parts := strings.Split(strings.Trim(line, "/"), "/")
			if root == nil {
				root = NewWidget(parts[0], TypeWindow)
			} else if root.Name != parts[0] {
				return nil, fmt.Errorf("line %d: second root %q in config list", lineNo, parts[0])
			}
			cur = root
			for i, name := range parts[1:] {
				next := childNamed(cur, name)
				if next == nil {
					typ := TypeSection
					if i == len(parts)-2 {
						typ = ""
					}
					next = cur.AddChild(NewWidget(name, typ))
				}
				cur = next
			}
		case line == "END":
			cur = nil
		case cur == nil:
			// Warnings and blank lines between blocks.
		default:
			key, val, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			val = strings.TrimPrefix(val, " ")
			if err := applyField(cur, key, val); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config list: %w", err)
	}
	if root == nil {
		return nil, errors.New("empty config list")
	}
	return root, nil
}

func childNamed(w *Widget, name string) *Widget {
	for _, c := range w.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func applyField(w *Widget, key, val string) error {
	switch key {
	case "Label":
		w.Label = val
	case "Readonly":
		w.ReadOnly = val == "1"
	case "Type":
		w.Type = WidgetType(val)
	case "Current":
		w.value = val
	case "Choice":
		idxStr, choice, _ := strings.Cut(val, " ")
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			return fmt.Errorf("bad choice index %q for %s", idxStr, w.Path())
		}
		for len(w.Choices) <= idx {
			w.Choices = append(w.Choices, "")
		}
		w.Choices[idx] = choice
	case "Bottom", "Top", "Step":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("bad %s %q for %s", strings.ToLower(key), val, w.Path())
		}
		switch key {
		case "Bottom":
			w.Bottom = f
		case "Top":
			w.Top = f
		default:
			w.Step = f
		}
	}
	return nil
}

func parseAutoDetect(out []byte) []string {
	var cameras []string
	pastHeader := false
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "---") {
			pastHeader = true
			continue
		}
		if pastHeader && line != "" {
			cameras = append(cameras, line)
		}
	}
	return cameras
}

var locationRe = regexp.MustCompile(`New file is in location (.+) on the camera`)

func parseCaptureLocation(out []byte) (FilePath, error) {
	m := locationRe.FindSubmatch(out)
	if m == nil {
		return FilePath{}, fmt.Errorf("no file location in capture output: %q", strings.TrimSpace(string(out)))
	}
	dir, name := path.Split(strings.TrimSpace(string(m[1])))
	folder := strings.TrimSuffix(dir, "/")
	if folder == "" {
		folder = "/"
	}
	return FilePath{Folder: folder, Name: name}, nil
}

var savedRe = regexp.MustCompile(`Saving file as (.+)`)

func parseSavedFile(out []byte) (string, error) {
	m := savedRe.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("no saved file in capture output: %q", strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(m[1])), nil
}

// moveFile renames src to dst, copying when they sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

var fileEntryRe = regexp.MustCompile(`^#(\d+)\s+(\S+)`)

func findFileNumber(out []byte, name string) (int, error) {
	for _, line := range strings.Split(string(out), "\n") {
		m := fileEntryRe.FindStringSubmatch(strings.TrimSpace(line))
		if m != nil && m[2] == name {
			return strconv.Atoi(m[1])
		}
	}
	return 0, fmt.Errorf("file %s not listed on camera", name)
}

// errorMessage extracts the text following gphoto2's "*** Error" banner.
func errorMessage(out []byte) string {
	var msgs []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "***") || strings.HasPrefix(line, "For debugging") {
			continue
		}
		msgs = append(msgs, line)
	}
	return strings.Join(msgs, "; ")
}
