//go:build unix

package slots

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/gofrs/flock"
	"github.com/pixperk/tslock/pkg/lock"
	"golang.org/x/sys/unix"
)

const wordSize = 8

var unlockFile = (*flock.Flock).Unlock

// maps a lease table file shared between processes.
// the file is created or grown to hold at least n words; growth extends it
// with zeros, so new slots start unlocked. existing words are never rewritten.
// sizing happens under an flock on path+".lock" so concurrent openers agree
func Open(path string, n int, opts ...lock.Option) (table *Table, err error) {
	if n <= 0 {
		return nil, fmt.Errorf("slot count must be greater than 0, got %d", n)
	}

	guard := flock.New(path + ".lock")
	if err := guard.Lock(); err != nil {
		return nil, fmt.Errorf("lock slot file: %w", err)
	}
	defer func() {
		uerr := unlockFile(guard)
		if uerr == nil {
			return
		}
		uerr = fmt.Errorf("unlock slot file: %w", uerr)
		if err != nil {
			err = errors.Join(err, uerr)
			return
		}
		// other openers would block forever on the leaked flock
		_ = table.Close()
		table, err = nil, uerr
	}()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open slot file: %w", err)
	}
	//the mapping outlives the descriptor
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat slot file: %w", err)
	}
	size := info.Size()
	if size%wordSize != 0 {
		return nil, fmt.Errorf("slot file %s has size %d, not a multiple of %d", path, size, wordSize)
	}
	if want := int64(n) * wordSize; size < want {
		if err := f.Truncate(want); err != nil {
			return nil, fmt.Errorf("grow slot file: %w", err)
		}
		size = want
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap slot file: %w", err)
	}

	// mappings are page aligned, so every word is 8-byte aligned
	words := unsafe.Slice((*uint64)(unsafe.Pointer(&data[0])), len(data)/wordSize)

	return &Table{
		words: words,
		path:  path,
		unmap: func() error { return unix.Munmap(data) },
		opts:  opts,
	}, nil
}
