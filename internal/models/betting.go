package models

import (
	"math/big"
	"time"
)

// SessionState is the state enum stored on-chain for a betting session.
type SessionState uint8

const (
	SessionStateOpen            SessionState = 0
	SessionStateResultRequested SessionState = 1
	SessionStateSettled         SessionState = 2
)

// DisplayState is what a user is shown for a session. It overlays the
// stored state with the wall clock and is never written back.
type DisplayState string

const (
	DisplayOpen            DisplayState = "Open"
	DisplayClosed          DisplayState = "Closed"
	DisplayResultRequested DisplayState = "Result Requested"
	DisplaySettled         DisplayState = "Settled"
	DisplayUnknown         DisplayState = "Unknown"
)

// BettingSession is one round of wagering read from the bet manager
type BettingSession struct {
	ID            *big.Int     `json:"id"`
	StartTime     time.Time    `json:"start_time"`
	EndTime       time.Time    `json:"end_time"`
	SubjectID     string       `json:"subject_id"`
	Result        *big.Int     `json:"result"`
	TotalWagered  *big.Int     `json:"total_wagered"`
	State         SessionState `json:"state"`
	CallerWagered *big.Int     `json:"caller_wagered,omitempty"`
}

// BetEntry is one line of a bet slip
type BetEntry struct {
	Guess      uint64 `json:"guess"`
	Multiplier uint64 `json:"multiplier"`
}
