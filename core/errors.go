package core

import "errors"

// Errors returned by the clock governor and time base.
var (
	ErrNotInitialized     = errors.New("not initialized")
	ErrInvalidFrequency   = errors.New("frequency level out of range")
	ErrPllLockTimeout     = errors.New("pll lock timeout")
	ErrSwitchTooFast      = errors.New("switch interval not elapsed")
	ErrOscillatorNotFound = errors.New("oscillator not ready")
	ErrModeConflict       = errors.New("operation not allowed in current mode")
)

// Errors returned by the software timer pool.
var (
	ErrInvalidHandle = errors.New("invalid timer handle")
	ErrPoolExhausted = errors.New("timer pool exhausted")
	ErrZeroPeriod    = errors.New("timer period must be nonzero")
	ErrNotRunning    = errors.New("timer not running")
	ErrAlreadyPaused = errors.New("timer already paused")
	ErrNotPaused     = errors.New("timer not paused")
)
