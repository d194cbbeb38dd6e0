//go:build !tinygo

package core

// State holds saved interrupt state on hardware builds. On regular Go there
// is nothing to save.
type State uintptr

// disableInterrupts masks interrupts around a critical section. No-op on
// regular Go, where tests drive tick handlers from the same goroutine.
func disableInterrupts() State {
	return 0
}

// restoreInterrupts restores the mask saved by disableInterrupts.
func restoreInterrupts(State) {}
