package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixperk/tslock/pkg/lock"
	"github.com/pixperk/tslock/pkg/logging"
	"github.com/pixperk/tslock/pkg/types"
	"github.com/rs/zerolog"
)

var (
	ErrNotHeld        = errors.New("holder does not hold the lock")
	ErrAlreadyStarted = errors.New("holder keep-alive already running")
)

// Holder owns one lease and keeps it alive by refreshing it every ttl/3
// until it is released or ownership is lost
type Holder struct {
	id   uuid.UUID
	lock *lock.Lock
	ttl  time.Duration
	log  zerolog.Logger

	mu      sync.Mutex
	ticket  types.Ticket
	crashed bool
	stopCh  chan struct{}
	done    chan struct{}

	lost chan error
}

func NewHolder(l *lock.Lock, ttl time.Duration, log zerolog.Logger) *Holder {
	id := uuid.New()
	return &Holder{
		id:   id,
		lock: l,
		ttl:  ttl,
		log:  log.With().Str(logging.Holder, id.String()).Str(logging.Lock, l.Name()).Logger(),
		lost: make(chan error, 1),
	}
}

func (h *Holder) ID() uuid.UUID {
	return h.id
}

// blocks until the lease is acquired, then starts the keep-alive loop
func (h *Holder) Start() error {
	if h.running() {
		return ErrAlreadyStarted
	}
	ticket, crash, err := h.lock.Acquire(h.ttl)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	return h.started(ticket, crash)
}

// like Start but fails with types.ErrContended instead of waiting
func (h *Holder) TryStart() error {
	if h.running() {
		return ErrAlreadyStarted
	}
	ticket, crash, err := h.lock.TryAcquire(h.ttl)
	if err != nil {
		return fmt.Errorf("try acquire: %w", err)
	}
	return h.started(ticket, crash)
}

func (h *Holder) running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopCh != nil
}

func (h *Holder) started(ticket types.Ticket, crash bool) error {
	h.mu.Lock()
	if h.stopCh != nil {
		// a concurrent Start won the race, give back what we just took
		h.mu.Unlock()
		if err := h.lock.Release(ticket); err != nil {
			h.log.Warn().Err(err).Uint64(logging.Ticket, uint64(ticket)).Msg("release of duplicate lease failed")
		}
		return ErrAlreadyStarted
	}
	h.ticket = ticket
	h.crashed = crash
	h.stopCh = make(chan struct{})
	h.done = make(chan struct{})
	h.lost = make(chan error, 1)
	stopCh, done, lost := h.stopCh, h.done, h.lost
	h.mu.Unlock()

	h.log.Info().
		Uint64(logging.Ticket, uint64(ticket)).
		Bool("crash", crash).
		Msg("lease acquired")

	go h.keepAlive(stopCh, done, lost)
	return nil
}

func (h *Holder) interval() time.Duration {
	// tickets have one-second resolution, refreshing faster only inflates the lease
	if iv := h.ttl / 3; iv > time.Second {
		return iv
	}
	return time.Second
}

func (h *Holder) keepAlive(stopCh <-chan struct{}, done chan struct{}, lost chan<- error) {
	defer close(done)

	ticker := time.NewTicker(h.interval())
	defer ticker.Stop()

	var failureCount int

	for {
		select {
		case <-ticker.C:
			h.mu.Lock()
			current := h.ticket
			h.mu.Unlock()

			next, err := h.lock.Refresh(current, h.ttl)
			if errors.Is(err, types.ErrStaleTicket) {
				h.log.Error().
					Uint64(logging.Ticket, uint64(current)).
					Msg("lease lost - critical section is no longer protected")
				h.mu.Lock()
				h.ticket = 0
				if h.done == done {
					h.stopCh, h.done = nil, nil
				}
				h.mu.Unlock()
				select {
				case lost <- err:
				default:
				}
				return
			}
			if err != nil {
				failureCount++
				h.log.Warn().Err(err).Int("attempt", failureCount).Msg("lease refresh failed")
				if failureCount >= 2 {
					h.log.Error().
						Uint64(logging.Ticket, uint64(current)).
						Msg("lease may expire soon - refresh failing")
				}
				continue
			}

			h.mu.Lock()
			h.ticket = next
			h.mu.Unlock()

			if failureCount > 0 {
				h.log.Info().Int("failures", failureCount).Msg("lease refresh recovered")
				failureCount = 0
			}

		case <-stopCh:
			return
		}
	}
}

// current ticket, zero when not held
func (h *Holder) Ticket() types.Ticket {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticket
}

// whether the acquire took over an expired lease
func (h *Holder) Crashed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.crashed
}

// receives types.ErrStaleTicket if the current lease is lost while held.
// Each Start replaces the channel, so fetch it after starting.
func (h *Holder) Lost() <-chan error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lost
}

func (h *Holder) stop() types.Ticket {
	h.mu.Lock()
	stopCh, done := h.stopCh, h.done
	h.stopCh, h.done = nil, nil
	h.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	ticket := h.ticket
	h.ticket = 0
	return ticket
}

// stops refreshing and releases the lease
func (h *Holder) Release() error {
	ticket := h.stop()
	if !ticket.Valid() {
		return ErrNotHeld
	}
	if err := h.lock.Release(ticket); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	h.log.Info().Uint64(logging.Ticket, uint64(ticket)).Msg("lease released")
	return nil
}

// stops refreshing without releasing, leaving the lease to expire as if the
// holder had crashed
func (h *Holder) Abandon() types.Ticket {
	ticket := h.stop()
	h.log.Warn().Uint64(logging.Ticket, uint64(ticket)).Msg("lease abandoned")
	return ticket
}
