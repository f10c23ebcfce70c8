package prescription

import "errors"

// ErrNotFound is returned when no prescription exists for the given id.
var ErrNotFound = errors.New("prescription not found")
