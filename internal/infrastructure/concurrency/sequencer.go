// Package concurrency holds the small primitives used to keep derived state
// race-free: a switch-to-latest token sequencer and a quiet-period debouncer.
package concurrency

import "sync/atomic"

// Token identifies one issued request of a derivation stream
type Token uint64

// Sequencer hands out increasing tokens. Only the most recently issued token
// is current; results carrying any older token must be discarded.
type Sequencer struct {
	latest atomic.Uint64
}

// Issue returns a new token that supersedes every earlier one
func (s *Sequencer) Issue() Token {
	return Token(s.latest.Add(1))
}

// IsCurrent reports whether t is still the latest issued token
func (s *Sequencer) IsCurrent(t Token) bool {
	return s.latest.Load() == uint64(t)
}

// Invalidate supersedes every outstanding token without issuing a new request
func (s *Sequencer) Invalidate() {
	s.latest.Add(1)
}

// Latest returns the most recently issued token
func (s *Sequencer) Latest() Token {
	return Token(s.latest.Load())
}
