//go:build !linux

package waitwake

// Default returns the platform backend.
func Default() Waiter {
	return NewParking()
}
