// Package atomicword exposes a single shared 64-bit word with explicit
// memory-ordering parameters on every operation.
//
// Go's sync/atomic operations are sequentially consistent, which is at least as
// strong as every Order below. The parameters are kept so each call site states
// the ordering its protocol needs; a port to a weaker memory model only has to
// change this package.
package atomicword

import (
	"errors"
	"sync/atomic"
	"unsafe"
)

// ErrMisaligned is returned for addresses that cannot be used atomically.
var ErrMisaligned = errors.New("atomicword: address is not 8-byte aligned")

// Order is a memory-ordering constraint.
type Order uint8

const (
	Relaxed Order = iota
	Acquire
	Release
	AcqRel
	SeqCst
)

func (o Order) String() string {
	switch o {
	case Relaxed:
		return "relaxed"
	case Acquire:
		return "acquire"
	case Release:
		return "release"
	case AcqRel:
		return "acq_rel"
	case SeqCst:
		return "seq_cst"
	default:
		return "invalid"
	}
}

// Word is a 64-bit value that may live in memory shared with other processes.
type Word struct {
	v uint64
}

// New allocates a zeroed word.
func New() *Word {
	return &Word{}
}

// FromPointer views caller-owned memory as a Word. The memory must stay valid
// and at a stable address for as long as the Word is used.
func FromPointer(p *uint64) (*Word, error) {
	if p == nil || uintptr(unsafe.Pointer(p))%8 != 0 {
		return nil, ErrMisaligned
	}
	return (*Word)(unsafe.Pointer(p)), nil
}

// Addr is the word's address, used to key waiters.
func (w *Word) Addr() unsafe.Pointer {
	return unsafe.Pointer(&w.v)
}

func (w *Word) Load(_ Order) uint64 {
	return atomic.LoadUint64(&w.v)
}

func (w *Word) Store(val uint64, _ Order) {
	atomic.StoreUint64(&w.v, val)
}

// CompareAndSwap replaces old with next. success applies when the swap
// commits, failure to the load performed when it does not.
//
// On failure the returned value comes from a load after the failed swap, not
// from the swap itself. It always differs from old: if the word went back to
// old in between, the swap is retried. It may already be stale by the time
// the caller sees it.
func (w *Word) CompareAndSwap(old, next uint64, success, failure Order) (uint64, bool) {
	for {
		if atomic.CompareAndSwapUint64(&w.v, old, next) {
			return old, true
		}
		if observed := atomic.LoadUint64(&w.v); observed != old {
			return observed, false
		}
	}
}

var fence uint64

// Fence is a full sequentially consistent fence. No access before it may be
// reordered after it, or the reverse.
func Fence() {
	// a seq-cst read-modify-write is a full barrier on every supported arch
	atomic.AddUint64(&fence, 0)
}
