package waitwake

import (
	"sync"
	"time"
	"unsafe"

	"github.com/pixperk/tslock/pkg/atomicword"
)

// Parking is an in-process backend: waiters park on a channel keyed by the
// word's address and WakeAll closes it. It cannot see wakes from other
// processes; those waiters fall back to their deadline.
type Parking struct {
	mu      sync.Mutex
	waiters map[unsafe.Pointer]chan struct{}
}

func NewParking() *Parking {
	return &Parking{waiters: make(map[unsafe.Pointer]chan struct{})}
}

func (p *Parking) WaitUntil(w *atomicword.Word, expected uint64, deadline time.Time) error {
	// the value check and the registration share the mutex with WakeAll, so a
	// release that lands after the check always finds this channel
	p.mu.Lock()
	if w.Load(atomicword.Acquire) != expected {
		p.mu.Unlock()
		return nil
	}
	ch, ok := p.waiters[w.Addr()]
	if !ok {
		ch = make(chan struct{})
		p.waiters[w.Addr()] = ch
	}
	p.mu.Unlock()

	d := time.Until(deadline)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ch:
	case <-timer.C:
	}
	return nil
}

func (p *Parking) WakeAll(w *atomicword.Word) error {
	p.mu.Lock()
	if ch, ok := p.waiters[w.Addr()]; ok {
		close(ch)
		delete(p.waiters, w.Addr())
	}
	p.mu.Unlock()
	return nil
}

// number of addresses with parked waiters
func (p *Parking) parked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
