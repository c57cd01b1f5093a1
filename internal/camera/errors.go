package camera

import "errors"

// Error kinds. Match them with errors.Is.
var (
	ErrInitialization  = errors.New("initialization failed")
	ErrSettingNotFound = errors.New("setting not found")
	ErrChoiceNotFound  = errors.New("choice not found")
	ErrCapture         = errors.New("capture failed")
	ErrTransfer        = errors.New("transfer failed")
	ErrConfigPush      = errors.New("configuration push failed")
	ErrSessionClosed   = errors.New("session not open")
)

// Error is returned by every Camera operation that fails.
type Error struct {
	Kind    error  // one of the Err* kinds above
	Op      string // operation, e.g. "bracket"
	Setting string // setting or value involved, if any
	Err     error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := "camera: " + e.Op
	if e.Setting != "" {
		msg += " " + e.Setting
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, op, setting string, err error) *Error {
	return &Error{Kind: kind, Op: op, Setting: setting, Err: err}
}

// Fatal reports whether err leaves no usable session behind. Lookup,
// push, capture and transfer failures keep the session open, so the caller
// may retry with other values.
func Fatal(err error) bool {
	return errors.Is(err, ErrInitialization) || errors.Is(err, ErrSessionClosed)
}
