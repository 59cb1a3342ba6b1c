package waitwake

import (
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/pixperk/tslock/pkg/atomicword"
	"github.com/pixperk/tslock/pkg/types"
	"golang.org/x/sys/unix"
)

const (
	futexWait = 0
	futexWake = 1
)

// offset of the word's least significant 32 bits. the futex syscall compares
// 32-bit values, and the low half is the part that changes on every transition
var lowHalf = func() uintptr {
	probe := uint64(1)
	if *(*byte)(unsafe.Pointer(&probe)) == 1 {
		return 0
	}
	return 4
}()

// Futex waits with futex(2). It uses shared (non-private) futexes so waiters
// in different processes mapping the same file wake each other.
type Futex struct{}

func NewFutex() *Futex {
	return &Futex{}
}

func (f *Futex) WaitUntil(w *atomicword.Word, expected uint64, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return nil
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())

	errno := futex(key32(w), futexWait, uint32(expected), &ts)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR, unix.ETIMEDOUT:
		return nil
	default:
		return fmt.Errorf("%w: futex wait: %v", types.ErrWaitFailed, errno)
	}
}

func (f *Futex) WakeAll(w *atomicword.Word) error {
	if errno := futex(key32(w), futexWake, math.MaxInt32, nil); errno != 0 {
		return fmt.Errorf("%w: futex wake: %v", types.ErrWaitFailed, errno)
	}
	return nil
}

func key32(w *atomicword.Word) unsafe.Pointer {
	return unsafe.Add(w.Addr(), lowHalf)
}

func futex(addr unsafe.Pointer, op int, val uint32, ts *unix.Timespec) unix.Errno {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(addr), uintptr(op), uintptr(val), uintptr(unsafe.Pointer(ts)), 0, 0)
	return errno
}
