package types

import "time"

// a ticket is the exact value written into the lock word by a successful
// acquire or refresh. it is the holder's only proof of ownership and stays
// valid only while the word still equals it
type Ticket uint64

// zero is the unlocked word and can never be a ticket
func (t Ticket) Valid() bool {
	return t != 0
}

// the wall-clock second after which the lease is presumed abandoned
func (t Ticket) ExpiresAt() time.Time {
	return time.Unix(int64(t), 0)
}

// time left on the lease relative to now, clamped at zero
func (t Ticket) Remaining(now time.Time) time.Duration {
	left := t.ExpiresAt().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
