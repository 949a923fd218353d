package frp

import (
	"errors"
	"syscall"
)

// Error classes returned by the table manager. Callers match them with
// errors.Is; the returned errors carry rule-specific context.
var (
	ErrValidation = errors.New("invalid rule")
	ErrCapacity   = errors.New("insufficient parser table capacity")
	ErrConflict   = errors.New("rule conflict")
	ErrNotFound   = errors.New("rule not found")
	ErrHardware   = errors.New("parser hardware access failed")
)

// Code maps err to the negative errno value reported on the command
// interface. It returns 0 for a nil error.
func Code(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrValidation):
		return -int(syscall.EINVAL)
	case errors.Is(err, ErrCapacity):
		return -int(syscall.ENOSPC)
	case errors.Is(err, ErrConflict):
		return -int(syscall.EEXIST)
	case errors.Is(err, ErrNotFound):
		return -int(syscall.ENOENT)
	default:
		return -int(syscall.EIO)
	}
}
