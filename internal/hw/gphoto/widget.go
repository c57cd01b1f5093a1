package gphoto

import (
	"fmt"
	"strings"
)

// WidgetType mirrors the gphoto2 widget types reported by --list-all-config.
type WidgetType string

const (
	TypeWindow  WidgetType = "WINDOW"
	TypeSection WidgetType = "SECTION"
	TypeText    WidgetType = "TEXT"
	TypeRange   WidgetType = "RANGE"
	TypeToggle  WidgetType = "TOGGLE"
	TypeRadio   WidgetType = "RADIO"
	TypeMenu    WidgetType = "MENU"
	TypeDate    WidgetType = "DATE"
	TypeButton  WidgetType = "BUTTON"
)

// Widget is one node of the camera configuration tree.
// Sections hold children; leaves hold a value and, for RADIO and MENU
// widgets, the ordered list of choices the device accepts.
type Widget struct {
	Name     string
	Label    string
	Type     WidgetType
	ReadOnly bool
	Choices  []string

	// Bottom, Top and Step are only meaningful for RANGE widgets.
	Bottom, Top, Step float64

	value    string
	changed  bool
	parent   *Widget
	children []*Widget
}

// NewWidget creates a detached widget.
func NewWidget(name string, typ WidgetType) *Widget {
	return &Widget{Name: name, Type: typ}
}

// AddChild appends c under w and returns c.
func (w *Widget) AddChild(c *Widget) *Widget {
	c.parent = w
	w.children = append(w.children, c)
	return c
}

// Children returns the direct children of w.
func (w *Widget) Children() []*Widget {
	return w.children
}

// Path returns the slash separated path of w from the root, e.g.
// /main/capturesettings/shutterspeed.
func (w *Widget) Path() string {
	var parts []string
	for n := w; n != nil; n = n.parent {
		parts = append(parts, n.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// ChildByName searches the subtree below w depth-first for a widget with
// the given name.
func (w *Widget) ChildByName(name string) (*Widget, error) {
	if c := w.find(name); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("widget %q not found under %s", name, w.Path())
}

func (w *Widget) find(name string) *Widget {
	for _, c := range w.children {
		if c.Name == name {
			return c
		}
		if found := c.find(name); found != nil {
			return found
		}
	}
	return nil
}

// Value returns the current (possibly locally modified) value.
func (w *Widget) Value() string {
	return w.value
}

// SetValue changes the local value. The device only sees it once the
// tree is pushed with Session.SetConfig.
func (w *Widget) SetValue(v string) error {
	if w.ReadOnly {
		return fmt.Errorf("widget %s is read-only", w.Path())
	}
	if w.Type == TypeSection || w.Type == TypeWindow {
		return fmt.Errorf("widget %s is a %s and holds no value", w.Path(), strings.ToLower(string(w.Type)))
	}
	w.value = v
	w.changed = true
	return nil
}

// Changed reports whether the local value differs from what was fetched.
func (w *Widget) Changed() bool {
	return w.changed
}

// CountChoices returns the number of choices, including empty ones.
func (w *Widget) CountChoices() int {
	return len(w.Choices)
}

// Choice returns the choice at index i.
func (w *Widget) Choice(i int) (string, error) {
	if i < 0 || i >= len(w.Choices) {
		return "", fmt.Errorf("choice index %d out of range for %s (%d choices)", i, w.Path(), len(w.Choices))
	}
	return w.Choices[i], nil
}

// ChangedLeaves returns all modified widgets in tree order.
func (w *Widget) ChangedLeaves() []*Widget {
	var out []*Widget
	w.walk(func(n *Widget) {
		if n.changed {
			out = append(out, n)
		}
	})
	return out
}

// ClearChanged resets the changed flag on every widget of the subtree.
func (w *Widget) ClearChanged() {
	w.walk(func(n *Widget) { n.changed = false })
}

func (w *Widget) walk(fn func(*Widget)) {
	fn(w)
	for _, c := range w.children {
		c.walk(fn)
	}
}
