package lock

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pixperk/tslock/pkg/atomicword"
	tstime "github.com/pixperk/tslock/pkg/time"
	"github.com/pixperk/tslock/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lock over a fresh word driven by a manual clock
func newManualLock(t *testing.T, now uint64, opts ...Option) (*Lock, *uint64, *tstime.Manual) {
	t.Helper()
	word := new(uint64)
	clock := tstime.NewManual(now)
	l, err := New(word, append([]Option{WithClock(clock), WithName("test")}, opts...)...)
	require.NoError(t, err)
	return l, word, clock
}

type failingWaiter struct {
	waitErr error
	wakeErr error
}

func (f failingWaiter) WaitUntil(*atomicword.Word, uint64, time.Time) error { return f.waitErr }
func (f failingWaiter) WakeAll(*atomicword.Word) error                      { return f.wakeErr }

func TestTryAcquireUnlocked(t *testing.T) {
	l, word, _ := newManualLock(t, 1_000)

	ticket, crash, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	assert.Equal(t, types.Ticket(1_010), ticket)
	assert.False(t, crash, "fresh word has no previous holder")
	assert.Equal(t, uint64(1_010), *word)
}

func TestTryAcquireContended(t *testing.T) {
	l, word, clock := newManualLock(t, 1_000)

	ticket, _, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	_, _, err = l.TryAcquire(10 * time.Second)
	assert.ErrorIs(t, err, types.ErrContended)
	assert.Equal(t, uint64(ticket), *word, "contended attempt must not mutate the word")

	// the expiry second itself is still covered
	clock.Set(1_010)
	_, _, err = l.TryAcquire(10 * time.Second)
	assert.ErrorIs(t, err, types.ErrContended)
}

func TestTryAcquireRoundsTimeoutUp(t *testing.T) {
	l, _, _ := newManualLock(t, 1_000)

	ticket, _, err := l.TryAcquire(1500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.Ticket(1_002), ticket)
}

func TestTryAcquireInvalidTimeout(t *testing.T) {
	l, word, _ := newManualLock(t, 1_000)

	_, _, err := l.TryAcquire(0)
	assert.ErrorIs(t, err, types.ErrInvalidTimeout)
	_, _, err = l.TryAcquire(-time.Second)
	assert.ErrorIs(t, err, types.ErrInvalidTimeout)
	assert.Zero(t, *word)
}

func TestTryAcquireClockUnavailable(t *testing.T) {
	l, word, clock := newManualLock(t, 1_000)
	clock.Fail(true)

	_, _, err := l.TryAcquire(time.Second)
	assert.ErrorIs(t, err, types.ErrClockUnavailable)
	assert.Zero(t, *word)
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	l, word, _ := newManualLock(t, 1_000)

	ticket, crash, err := l.Acquire(5 * time.Second)
	require.NoError(t, err)
	assert.False(t, crash)

	require.NoError(t, l.Release(ticket))
	assert.Zero(t, *word, "release must leave the word unlocked")

	// unlocked word is not a crash
	_, crash, err = l.TryAcquire(5 * time.Second)
	require.NoError(t, err)
	assert.False(t, crash)
}

func TestCrashDetection(t *testing.T) {
	l, word, clock := newManualLock(t, 1_000)

	abandoned, _, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	// holder dies; real time passes the ticket
	clock.Set(uint64(abandoned) + 1)

	ticket, crash, err := l.Acquire(10 * time.Second)
	require.NoError(t, err)
	assert.True(t, crash, "expired lease must be reported as a crash")
	assert.Equal(t, types.Ticket(uint64(abandoned)+1+10), ticket)
	assert.Equal(t, uint64(ticket), *word)
}

func TestStaleReleaseIsNoop(t *testing.T) {
	l, word, clock := newManualLock(t, 1_000)

	first, _, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	second, crash, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)
	require.True(t, crash)

	err = l.Release(first)
	assert.ErrorIs(t, err, types.ErrStaleTicket)
	assert.Equal(t, uint64(second), *word, "stale release must not clobber the new holder")

	require.NoError(t, l.Release(second))
	assert.Zero(t, *word)
}

func TestReleaseZeroTicketIsStale(t *testing.T) {
	l, word, _ := newManualLock(t, 1_000)

	assert.ErrorIs(t, l.Release(0), types.ErrStaleTicket)
	assert.Zero(t, *word)

	_, err := l.Refresh(0, time.Second)
	assert.ErrorIs(t, err, types.ErrStaleTicket)
	assert.Zero(t, *word, "refresh with a zero ticket must not acquire")
}

func TestReleaseTwice(t *testing.T) {
	l, _, _ := newManualLock(t, 1_000)

	ticket, _, err := l.TryAcquire(time.Second)
	require.NoError(t, err)

	require.NoError(t, l.Release(ticket))
	assert.ErrorIs(t, l.Release(ticket), types.ErrStaleTicket)
}

func TestRefreshMonotonicity(t *testing.T) {
	l, word, clock := newManualLock(t, 1_000)

	ticket, _, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	refreshed, err := l.Refresh(ticket, 30*time.Second)
	require.NoError(t, err)

	assert.Greater(t, refreshed, ticket)
	assert.Equal(t, types.Ticket(1_035), refreshed)
	assert.Equal(t, uint64(refreshed), *word)

	assert.ErrorIs(t, l.Release(ticket), types.ErrStaleTicket, "old ticket is invalidated")
	assert.Equal(t, uint64(refreshed), *word)

	require.NoError(t, l.Release(refreshed))
	assert.Zero(t, *word)
}

func TestRefreshNeverShortensLease(t *testing.T) {
	l, _, _ := newManualLock(t, 1_000)

	ticket, _, err := l.TryAcquire(60 * time.Second)
	require.NoError(t, err)

	refreshed, err := l.Refresh(ticket, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ticket+1, refreshed)
}

func TestRefreshStaleReturnsInputTicket(t *testing.T) {
	l, word, clock := newManualLock(t, 1_000)

	first, _, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	clock.Advance(15 * time.Second)
	second, _, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	got, err := l.Refresh(first, 10*time.Second)
	assert.ErrorIs(t, err, types.ErrStaleTicket)
	assert.Equal(t, first, got, "failed refresh keeps the caller's ticket, it does not zero it")
	assert.Equal(t, uint64(second), *word)
}

func TestRefreshClockUnavailable(t *testing.T) {
	l, word, clock := newManualLock(t, 1_000)

	ticket, _, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	clock.Fail(true)
	got, err := l.Refresh(ticket, 10*time.Second)
	assert.ErrorIs(t, err, types.ErrClockUnavailable)
	assert.Equal(t, ticket, got)
	assert.Equal(t, uint64(ticket), *word)

	_, err = l.Refresh(ticket, 0)
	assert.ErrorIs(t, err, types.ErrInvalidTimeout)
}

func TestAcquireSurfacesClockFailure(t *testing.T) {
	l, _, clock := newManualLock(t, 1_000)
	clock.Fail(true)

	_, _, err := l.Acquire(time.Second)
	assert.ErrorIs(t, err, types.ErrClockUnavailable)
}

func TestAcquireSurfacesWaitFailure(t *testing.T) {
	l, _, _ := newManualLock(t, 1_000, WithWaiter(failingWaiter{waitErr: errors.New("boom")}))

	_, _, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	_, _, err = l.Acquire(10 * time.Second)
	assert.ErrorIs(t, err, types.ErrWaitFailed)
}

func TestReleaseSurfacesWakeFailure(t *testing.T) {
	l, word, _ := newManualLock(t, 1_000, WithWaiter(failingWaiter{wakeErr: errors.New("boom")}))

	ticket, _, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	err = l.Release(ticket)
	assert.ErrorIs(t, err, types.ErrWaitFailed)
	assert.Zero(t, *word, "the word is released even when the wake fails")
}

func TestInspect(t *testing.T) {
	l, _, clock := newManualLock(t, 1_000)

	st, err := l.Inspect()
	require.NoError(t, err)
	assert.Equal(t, types.StateUnlocked, st.State)

	ticket, _, err := l.TryAcquire(10 * time.Second)
	require.NoError(t, err)

	st, err = l.Inspect()
	require.NoError(t, err)
	assert.Equal(t, types.StateHeld, st.State)
	assert.Equal(t, uint64(ticket), st.Word)

	clock.Advance(11 * time.Second)
	st, err = l.Inspect()
	require.NoError(t, err)
	assert.Equal(t, types.StateExpired, st.State)
}

func TestNewRejectsMisalignedWord(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, atomicword.ErrMisaligned)
}

func TestTryAcquireNeverBlocks(t *testing.T) {
	word := new(uint64)
	l, err := New(word)
	require.NoError(t, err)

	ticket, _, err := l.TryAcquire(time.Minute)
	require.NoError(t, err)
	defer l.Release(ticket)

	start := time.Now()
	for i := 0; i < 1000; i++ {
		_, _, err := l.TryAcquire(time.Minute)
		require.ErrorIs(t, err, types.ErrContended)
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquireWokenByRelease(t *testing.T) {
	word := new(uint64)
	l, err := New(word, WithName("wake"))
	require.NoError(t, err)

	ticket, _, err := l.TryAcquire(30 * time.Second)
	require.NoError(t, err)

	acquired := make(chan time.Duration, 1)
	go func() {
		start := time.Now()
		next, _, err := l.Acquire(30 * time.Second)
		if err == nil {
			_ = l.Release(next)
		}
		acquired <- time.Since(start)
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, l.Release(ticket))

	select {
	case d := <-acquired:
		assert.Less(t, d, 10*time.Second, "waiter should be woken by release, not lease expiry")
	case <-time.After(20 * time.Second):
		t.Fatal("waiter never acquired")
	}
}

func TestAcquireAfterAbandonedLease(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real lease to expire")
	}

	word := new(uint64)
	l, err := New(word)
	require.NoError(t, err)

	abandoned, _, err := l.TryAcquire(time.Second)
	require.NoError(t, err)

	start := time.Now()
	ticket, crash, err := l.Acquire(time.Second)
	require.NoError(t, err)

	assert.True(t, crash)
	assert.Greater(t, ticket, abandoned)
	assert.Less(t, time.Since(start), 5*time.Second, "wait is bounded by the lease expiry")
	require.NoError(t, l.Release(ticket))
}

func TestMutualExclusion(t *testing.T) {
	word := new(uint64)
	l, err := New(word, WithName("exclusion"))
	require.NoError(t, err)

	const (
		workers    = 8
		iterations = 2_000
	)

	var (
		wg         sync.WaitGroup
		counter    uint64
		inside     int
		violations int
	)
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				ticket, _, err := l.Acquire(10 * time.Second)
				if err != nil {
					errs <- err
					return
				}
				inside++
				if inside != 1 {
					violations++
				}
				counter++
				inside--
				if err := l.Release(ticket); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Zero(t, violations, "two holders inside the critical section")
	assert.Equal(t, uint64(workers*iterations), counter)
	assert.Zero(t, *word)
}
