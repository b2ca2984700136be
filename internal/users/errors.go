package users

import "errors"

// ErrUserNotFound is returned when a directory lookup misses.
var ErrUserNotFound = errors.New("user not found")
