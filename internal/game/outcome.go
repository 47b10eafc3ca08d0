// Package game defines the outcome alphabet and history types shared by
// every strategy and the engine.
package game

import (
	"fmt"
	"time"
)

// Outcome is one realized result at the table.
type Outcome string

const (
	Player Outcome = "P"
	Banker Outcome = "B"
	Tie    Outcome = "T"
)

// Valid reports whether o belongs to the closed label set.
func (o Outcome) Valid() bool {
	switch o {
	case Player, Banker, Tie:
		return true
	}
	return false
}

// ParseOutcome normalizes a raw feed value into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(s)
	if !o.Valid() {
		return "", fmt.Errorf("invalid outcome %q", s)
	}
	return o, nil
}

// Window is the ordered recent history a strategy predicts from,
// oldest outcome first.
type Window []Outcome

// Valid reports whether the window is non-empty, within max length,
// and contains only valid outcomes.
func (w Window) Valid(max int) bool {
	if len(w) == 0 || (max > 0 && len(w) > max) {
		return false
	}
	for _, o := range w {
		if !o.Valid() {
			return false
		}
	}
	return true
}

// Last returns the most recent outcome in the window.
func (w Window) Last() Outcome {
	return w[len(w)-1]
}

// Streak returns the trailing run of identical outcomes and its length.
func (w Window) Streak() (Outcome, int) {
	if len(w) == 0 {
		return "", 0
	}
	last := w.Last()
	n := 0
	for i := len(w) - 1; i >= 0 && w[i] == last; i-- {
		n++
	}
	return last, n
}

// Counts tallies each outcome in the window.
func (w Window) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, 3)
	for _, o := range w {
		counts[o]++
	}
	return counts
}

// Record is one persisted outcome, append-only once written.
type Record struct {
	ID          uint64    `json:"id"`
	Outcome     Outcome   `json:"outcome"`
	Ts          time.Time `json:"ts"`
	SessionID   string    `json:"sessionId"`
	PrevPattern Window    `json:"prevPattern,omitempty"`
}
