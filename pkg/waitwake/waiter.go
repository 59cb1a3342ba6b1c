// Package waitwake lets a blocked acquirer sleep on a lock word until it is
// woken or a deadline passes, instead of spinning.
//
// Wakes can be lost or spurious on every backend, so callers must always pass
// a finite deadline and re-check the word after WaitUntil returns.
package waitwake

import (
	"time"

	"github.com/pixperk/tslock/pkg/atomicword"
)

// Waiter is the wait/wake capability the lock state machine depends on.
type Waiter interface {
	// WaitUntil suspends the caller until the word no longer holds expected,
	// a wake arrives, or deadline passes. Timeouts and spurious returns are not
	// errors; anything else wraps types.ErrWaitFailed.
	WaitUntil(w *atomicword.Word, expected uint64, deadline time.Time) error
	// WakeAll resumes every waiter suspended on w.
	WakeAll(w *atomicword.Word) error
}
