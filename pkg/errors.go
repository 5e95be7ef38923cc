package pkg

import "errors"

// ErrNotFound is returned by directory and record lookups when the row does
// not exist.
var ErrNotFound = errors.New("not found")
