package types

import "errors"

var (
	// time source errors
	ErrClockUnavailable = errors.New("clock unavailable")

	// acquisition errors
	ErrContended      = errors.New("lock is held by another ticket")
	ErrInvalidTimeout = errors.New("invalid lease timeout")

	// ownership errors
	ErrStaleTicket = errors.New("ticket no longer matches the lock word")

	// wait/wake errors
	ErrWaitFailed = errors.New("wait/wake primitive failed")
)
