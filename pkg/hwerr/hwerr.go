// Package hwerr holds the error taxonomy shared by the bus, sensor and edge
// packages. Every error is fatal at the point of detection; callers match
// them with errors.Is.
package hwerr

import "errors"

var (
	// ErrTransport reports a failed bus or line read/write.
	ErrTransport = errors.New("transport error")
	// ErrIdentityMismatch reports an unexpected WHO_AM_I value during init.
	ErrIdentityMismatch = errors.New("identity mismatch")
	// ErrResourceUnavailable reports a digital line that could not be claimed.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrInvalidArgument reports an out-of-range configuration value.
	ErrInvalidArgument = errors.New("invalid argument")
)
