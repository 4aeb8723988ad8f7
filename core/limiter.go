package core

import "sync"

// TurnLimiter enforces the maximum number of assistant turns per conversation.
type TurnLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewTurnLimiter creates a limiter allowing max turns.
// If max <= 0, DefaultMaxTurns applies.
func NewTurnLimiter(max int) *TurnLimiter {
	if max <= 0 {
		max = DefaultMaxTurns
	}
	return &TurnLimiter{max: max}
}

// Allow reports whether another model call may be made. When the cap is
// reached it returns an *ExhaustedError.
func (tl *TurnLimiter) Allow() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.count >= tl.max {
		return &ExhaustedError{Turns: tl.max}
	}
	return nil
}

// Increment records one assistant turn.
func (tl *TurnLimiter) Increment() {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.count++
}

// Reset starts counting from zero with a new cap (DefaultMaxTurns if max <= 0).
func (tl *TurnLimiter) Reset(max int) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if max <= 0 {
		max = DefaultMaxTurns
	}
	tl.max = max
	tl.count = 0
}

// Count returns the number of assistant turns taken so far.
func (tl *TurnLimiter) Count() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.count
}

// Max returns the configured cap.
func (tl *TurnLimiter) Max() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.max
}
