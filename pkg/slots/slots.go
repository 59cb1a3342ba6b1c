package slots

import (
	"errors"
	"fmt"

	"github.com/pixperk/tslock/pkg/atomicword"
	"github.com/pixperk/tslock/pkg/lock"
	tstime "github.com/pixperk/tslock/pkg/time"
	"github.com/pixperk/tslock/pkg/types"
)

var (
	ErrSlotOutOfRange = errors.New("slot index out of range")
	ErrClosed         = errors.New("slot table is closed")
)

// Table is an array of lock words. It is the owner the lock package expects:
// it zero-initialises the words and keeps them at stable addresses until Close.
// a file-backed table is shared by every process that maps the same file
type Table struct {
	words  []uint64
	path   string
	unmap  func() error
	closed bool
	opts   []lock.Option
}

// in-process table backed by heap memory
func NewAnonymous(n int, opts ...lock.Option) (*Table, error) {
	if n <= 0 {
		return nil, fmt.Errorf("slot count must be greater than 0, got %d", n)
	}
	return &Table{
		words: make([]uint64, n),
		unmap: func() error { return nil },
		opts:  opts,
	}, nil
}

func (t *Table) Len() int {
	return len(t.words)
}

// backing file, empty for anonymous tables
func (t *Table) Path() string {
	return t.path
}

// address of slot i
func (t *Table) Word(i int) (*uint64, error) {
	if t.closed {
		return nil, ErrClosed
	}
	if i < 0 || i >= len(t.words) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrSlotOutOfRange, i, len(t.words))
	}
	return &t.words[i], nil
}

// lock over slot i. table options apply first, then opts
func (t *Table) Lock(i int, opts ...lock.Option) (*lock.Lock, error) {
	word, err := t.Word(i)
	if err != nil {
		return nil, err
	}
	all := make([]lock.Option, 0, len(t.opts)+len(opts)+1)
	all = append(all, lock.WithName(fmt.Sprintf("slot-%d", i)))
	all = append(all, t.opts...)
	all = append(all, opts...)
	return lock.New(word, all...)
}

// state of every slot against one clock reading
func (t *Table) Snapshot(clock tstime.Source) ([]types.Status, error) {
	if t.closed {
		return nil, ErrClosed
	}
	now, err := clock.Now()
	if err != nil {
		return nil, err
	}

	out := make([]types.Status, len(t.words))
	for i := range t.words {
		w, err := atomicword.FromPointer(&t.words[i])
		if err != nil {
			return nil, err
		}
		word := w.Load(atomicword.Acquire)
		out[i] = types.Status{Word: word, State: types.Classify(word, now), Now: now}
	}
	return out, nil
}

// releases the backing memory. locks built from the table must not be used
// afterwards
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.unmap()
	t.words = nil
	return err
}
