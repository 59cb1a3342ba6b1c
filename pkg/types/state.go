package types

import (
	"fmt"
	"time"
)

// lock word states
type State uint8

const (
	StateUnlocked State = iota // word == 0
	StateHeld                  // word >= now
	StateExpired               // word != 0 && word < now
)

func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "unlocked"
	case StateHeld:
		return "held"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unlocked":
		*s = StateUnlocked
	case "held":
		*s = StateHeld
	case "expired":
		*s = StateExpired
	default:
		return fmt.Errorf("unknown lock state %q", text)
	}
	return nil
}

// classifies a word against the current second.
// a word equal to now is still held: the lease covers its whole expiry second
func Classify(word, now uint64) State {
	switch {
	case word == 0:
		return StateUnlocked
	case word >= now:
		return StateHeld
	default:
		return StateExpired
	}
}

// point-in-time view of one lock word
type Status struct {
	Word  uint64 `json:"word"`
	State State  `json:"state"`
	Now   uint64 `json:"now"`
}

// time until the lease ends, zero unless held
func (s Status) Remaining() time.Duration {
	if s.State != StateHeld {
		return 0
	}
	return time.Duration(s.Word-s.Now+1) * time.Second
}
