// Package exposure selects the settings a bracketing run goes through.
package exposure

import (
	"fmt"
	"slices"
)

// NotFoundError reports a bound missing from the device choice list.
type NotFoundError struct {
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%q is not in the choice list", e.Value)
}

// ShutterRange returns the choices from max to min inclusive, in the
// order the device lists them. Shutter speeds are listed slowest first on
// the cameras this was tried with, so max is expected before min. When min
// comes first the range is empty; it is not reordered.
func ShutterRange(choices []string, min, max string) ([]string, error) {
	start := slices.Index(choices, max)
	if start < 0 {
		return nil, &NotFoundError{Value: max}
	}
	end := slices.Index(choices, min)
	if end < 0 {
		return nil, &NotFoundError{Value: min}
	}
	if end < start {
		return []string{}, nil
	}
	out := make([]string, end-start+1)
	copy(out, choices[start:end+1])
	return out, nil
}
