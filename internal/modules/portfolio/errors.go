package portfolio

import "errors"

// ErrNotFound is returned by mutating operations that address a missing portfolio or position.
var ErrNotFound = errors.New("not found")
