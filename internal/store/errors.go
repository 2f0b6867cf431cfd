package store

import "errors"

// ErrNotFound is returned when a requested document snapshot or submission
// does not exist.
var ErrNotFound = errors.New("not found")
