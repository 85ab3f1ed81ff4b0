// Package betting covers bet slips, wager limits, session enumeration and
// the display state shown for a session.
package betting

import (
	"math"
	"math/bits"
	"sync"

	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// Slip is a pending bet slip: insertion-ordered, unique by guess, with
// multipliers accumulating on repeat entry.
type Slip struct {
	mu      sync.RWMutex
	entries []models.BetEntry
}

// NewSlip creates an empty slip.
func NewSlip() *Slip {
	return &Slip{}
}

// Add puts multiplier on guess, merging with an existing line. The slip
// total always fits in a uint64; an entry that would overflow it is rejected
// and leaves the slip unchanged.
func (s *Slip) Add(guess, multiplier uint64) error {
	if multiplier == 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "multiplier must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, carry := bits.Add64(s.total(), multiplier, 0); carry != 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "multiplier too large for bet slip")
	}

	for i := range s.entries {
		if s.entries[i].Guess == guess {
			s.entries[i].Multiplier += multiplier
			return nil
		}
	}
	s.entries = append(s.entries, models.BetEntry{Guess: guess, Multiplier: multiplier})
	return nil
}

// Remove deletes the line for guess and reports whether one existed.
func (s *Slip) Remove(guess uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].Guess == guess {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns a copy of the slip lines in insertion order.
func (s *Slip) Entries() []models.BetEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.BetEntry(nil), s.entries...)
}

// TotalMultiplier sums every line's multiplier.
func (s *Slip) TotalMultiplier() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total()
}

// total saturates at MaxUint64 so an oversized slip can never pass the
// wager checks by wrapping.
func (s *Slip) total() uint64 {
	var total uint64
	for _, e := range s.entries {
		sum, carry := bits.Add64(total, e.Multiplier, 0)
		if carry != 0 {
			return math.MaxUint64
		}
		total = sum
	}
	return total
}

// Len returns the number of lines.
func (s *Slip) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear discards every line.
func (s *Slip) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}
