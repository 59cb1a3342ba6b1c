package lock

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/pixperk/tslock/pkg/atomicword"
	"github.com/pixperk/tslock/pkg/metrics"
	tstime "github.com/pixperk/tslock/pkg/time"
	"github.com/pixperk/tslock/pkg/types"
	"github.com/pixperk/tslock/pkg/waitwake"
	"github.com/rs/zerolog"
)

const (
	// consecutive clock failures a blocking acquire absorbs before giving up
	maxClockRetries = 3
	clockRetryDelay = 10 * time.Millisecond
)

// self-expiring mutex over one shared 64-bit word.
// 0 means unlocked; any other value is the unix second the current lease ends.
// a holder that dies without releasing blocks others only until that second
// has passed
type Lock struct {
	word   *atomicword.Word
	clock  tstime.Source
	waiter waitwake.Waiter
	log    zerolog.Logger
	name   string
	m      *metrics.Lock
}

// binds a lock to caller-owned memory. the word must be zeroed before first
// use and stay at a stable address for the life of the lock
func New(word *uint64, opts ...Option) (*Lock, error) {
	w, err := atomicword.FromPointer(word)
	if err != nil {
		return nil, fmt.Errorf("lock word: %w", err)
	}
	return NewWord(w, opts...), nil
}

func NewWord(w *atomicword.Word, opts ...Option) *Lock {
	l := &Lock{word: w}
	defaults(l)
	for _, opt := range opts {
		opt(l)
	}
	l.finish()
	return l
}

func (l *Lock) Name() string {
	return l.name
}

// single acquire attempt, never blocks.
// on success returns the ticket and whether the previous lease had to expire
// (its holder never released). fails with ErrContended while the lease is
// live or when another contender wins the compare-and-swap
func (l *Lock) TryAcquire(timeout time.Duration) (types.Ticket, bool, error) {
	lease := tstime.Seconds(timeout)
	if lease == 0 {
		return 0, false, types.ErrInvalidTimeout
	}

	now, err := l.now()
	if err != nil {
		l.m.ClockFail.Inc()
		return 0, false, err
	}

	old := l.word.Load(atomicword.Acquire)
	if old >= now {
		l.m.Contended.Inc()
		return 0, false, types.ErrContended
	}

	next := now + lease
	if _, ok := l.word.CompareAndSwap(old, next, atomicword.Acquire, atomicword.Relaxed); !ok {
		l.m.Contended.Inc()
		return 0, false, types.ErrContended
	}

	crash := old != 0
	if crash {
		// no release ever paired with this acquire, so nothing orders the
		// dead holder's writes before ours
		atomicword.Fence()
		l.m.Crashes.Inc()
		l.log.Warn().
			Uint64("expired_at", old).
			Uint64("ticket", next).
			Msg("took over lease from holder that never released")
	}

	l.m.Acquired.Inc()
	return types.Ticket(next), crash, nil
}

// blocks until the lock is acquired.
// while the lease is live the caller sleeps on the word until a release wakes
// it or the lease's expiry second passes, so a lost wake costs at most one
// lease. there is no cancellation: a bounded wait comes from lease sizing
func (l *Lock) Acquire(timeout time.Duration) (types.Ticket, bool, error) {
	start := time.Now()
	clockFailures := 0

	for {
		ticket, crash, err := l.TryAcquire(timeout)
		switch {
		case err == nil:
			l.m.AcquireDur.Observe(time.Since(start).Seconds())
			return ticket, crash, nil

		case errors.Is(err, types.ErrClockUnavailable):
			clockFailures++
			if clockFailures > maxClockRetries {
				return 0, false, err
			}
			time.Sleep(clockRetryDelay)
			continue

		case !errors.Is(err, types.ErrContended):
			return 0, false, err
		}
		clockFailures = 0

		if err := l.wait(); err != nil {
			return 0, false, err
		}
	}
}

// sleeps while the current lease is live
func (l *Lock) wait() error {
	now, err := l.now()
	if err != nil {
		// retried by the caller's next TryAcquire
		return nil
	}

	current := l.word.Load(atomicword.Acquire)
	if types.Classify(current, now) != types.StateHeld {
		// released or expired since the failed attempt, or the race was
		// lost to a contender that has not finished its swap yet
		runtime.Gosched()
		return nil
	}

	// the lease covers its whole expiry second
	deadline := time.Now().Add(time.Duration(current-now+1) * time.Second)
	if err := l.waiter.WaitUntil(l.word, current, deadline); err != nil {
		l.m.WaitFailed.Inc()
		if !errors.Is(err, types.ErrWaitFailed) {
			err = fmt.Errorf("%w: %v", types.ErrWaitFailed, err)
		}
		return err
	}
	l.m.WaitOK.Inc()
	return nil
}

// gives the lock back and wakes blocked acquirers.
// fails with ErrStaleTicket, without touching the word, once the lease has
// expired: the lock may already belong to someone else. a wake failure is
// reported as ErrWaitFailed even though the lock itself was released
func (l *Lock) Release(ticket types.Ticket) error {
	if !ticket.Valid() {
		l.m.ReleaseStale.Inc()
		return types.ErrStaleTicket
	}

	if observed, ok := l.word.CompareAndSwap(uint64(ticket), 0, atomicword.Release, atomicword.Relaxed); !ok {
		l.m.ReleaseStale.Inc()
		l.log.Debug().
			Uint64("ticket", uint64(ticket)).
			Uint64("observed", observed).
			Msg("release with stale ticket")
		return types.ErrStaleTicket
	}

	if err := l.waiter.WakeAll(l.word); err != nil {
		l.m.ReleaseWait.Inc()
		if !errors.Is(err, types.ErrWaitFailed) {
			err = fmt.Errorf("%w: %v", types.ErrWaitFailed, err)
		}
		return err
	}

	l.m.Released.Inc()
	return nil
}

// moves the lease expiry to now+postpone and returns the replacement ticket.
// the new ticket is always greater than the old one, so a refresh never
// shortens a lease and the old ticket can never release it. on failure the
// input ticket is returned unchanged with ErrStaleTicket and must not be used
// again
func (l *Lock) Refresh(ticket types.Ticket, postpone time.Duration) (types.Ticket, error) {
	if !ticket.Valid() {
		l.m.RefreshStale.Inc()
		return ticket, types.ErrStaleTicket
	}

	ext := tstime.Seconds(postpone)
	if ext == 0 {
		return ticket, types.ErrInvalidTimeout
	}

	now, err := l.now()
	if err != nil {
		l.m.RefreshClock.Inc()
		return ticket, err
	}

	next := now + ext
	if next <= uint64(ticket) {
		next = uint64(ticket) + 1
	}

	if _, ok := l.word.CompareAndSwap(uint64(ticket), next, atomicword.AcqRel, atomicword.Relaxed); !ok {
		l.m.RefreshStale.Inc()
		return ticket, types.ErrStaleTicket
	}

	l.m.Refreshed.Inc()
	return types.Ticket(next), nil
}

// current word and its state
func (l *Lock) Inspect() (types.Status, error) {
	now, err := l.now()
	if err != nil {
		return types.Status{}, err
	}
	word := l.word.Load(atomicword.Acquire)
	return types.Status{
		Word:  word,
		State: types.Classify(word, now),
		Now:   now,
	}, nil
}

func (l *Lock) now() (uint64, error) {
	now, err := l.clock.Now()
	if err != nil {
		if errors.Is(err, types.ErrClockUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", types.ErrClockUnavailable, err)
	}
	return now, nil
}
