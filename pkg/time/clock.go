package time

import (
	"sync"
	"time"

	"github.com/pixperk/tslock/pkg/types"
)

// source of "now" for every expiry comparison.
// readings are wall-clock seconds since the unix epoch, so every process
// sharing a lock word interprets them the same way. unlike the monotonic
// clock these can jump under clock adjustment; lease timeouts must be sized
// to absorb that and any skew between participants
type Source interface {
	Now() (uint64, error)
}

// reads the system wall clock
type WallClock struct{}

func NewWallClock() WallClock {
	return WallClock{}
}

func (WallClock) Now() (uint64, error) {
	sec := time.Now().Unix()
	// a pre-epoch reading means the clock is unusable, and 0 is the unlocked word
	if sec <= 0 {
		return 0, types.ErrClockUnavailable
	}
	return uint64(sec), nil
}

// absolute expiry second for a lease of the given length starting now
func ExpiresAt(now uint64, lease time.Duration) uint64 {
	return now + Seconds(lease)
}

// whole seconds in d, rounded up so a lease is never shorter than asked
func Seconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	sec := d / time.Second
	if d%time.Second != 0 {
		sec++
	}
	return uint64(sec)
}

// settable clock for tests
type Manual struct {
	mu   sync.Mutex
	now  uint64
	fail bool
}

func NewManual(now uint64) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return 0, types.ErrClockUnavailable
	}
	return m.now, nil
}

func (m *Manual) Set(now uint64) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += Seconds(d)
	m.mu.Unlock()
}

// makes subsequent readings fail until cleared
func (m *Manual) Fail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}
