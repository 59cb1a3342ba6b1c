package lock

import (
	"github.com/pixperk/tslock/pkg/metrics"
	tstime "github.com/pixperk/tslock/pkg/time"
	"github.com/pixperk/tslock/pkg/waitwake"
	"github.com/rs/zerolog"
)

type Option func(*Lock)

// time source for expiry comparisons, wall clock by default
func WithClock(src tstime.Source) Option {
	return func(l *Lock) {
		if src != nil {
			l.clock = src
		}
	}
}

// wait/wake backend, waitwake.Default() by default.
// every process sharing a word should use a backend that reaches the others,
// otherwise their waiters only wake at lease expiry
func WithWaiter(w waitwake.Waiter) Option {
	return func(l *Lock) {
		if w != nil {
			l.waiter = w
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Lock) {
		l.log = log
	}
}

// name used in logs and as the lock_name metrics label
func WithName(name string) Option {
	return func(l *Lock) {
		if name != "" {
			l.name = name
		}
	}
}

func defaults(l *Lock) {
	l.clock = tstime.NewWallClock()
	l.waiter = waitwake.Default()
	l.log = zerolog.Nop()
	l.name = "default"
}

func (l *Lock) finish() {
	l.log = l.log.With().Str("lock", l.name).Logger()
	l.m = metrics.ForLock(l.name)
}
