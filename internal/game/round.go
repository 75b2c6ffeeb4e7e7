package game

import "fmt"

type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseSettled    Phase = "settled"
)

// RoundState is the controller position: Collecting(n) or Settled(n).
type RoundState struct {
	Round     int  `json:"round"`
	Settled   bool `json:"settled"`
	MaxRounds int  `json:"max_rounds"`
}

func firstRound(maxRounds int) RoundState {
	return RoundState{Round: 1, MaxRounds: maxRounds}
}

func (r RoundState) Phase() Phase {
	if r.Settled {
		return PhaseSettled
	}
	return PhaseCollecting
}

// AcceptingDecisions reports whether buy/borrow/lock are legal.
func (r RoundState) AcceptingDecisions() bool {
	return !r.Settled
}

// Terminal is Settled(MaxRounds).
func (r RoundState) Terminal() bool {
	return r.Settled && r.Round >= r.MaxRounds
}

func (r RoundState) CanSettle() error {
	if r.Settled {
		return fmt.Errorf("%w: round %d", ErrAlreadySettled, r.Round)
	}
	return nil
}

func (r RoundState) CanAdvance() error {
	if r.Round >= r.MaxRounds {
		return fmt.Errorf("%w: round %d of %d", ErrGameComplete, r.Round, r.MaxRounds)
	}
	if !r.Settled {
		return fmt.Errorf("%w: round %d", ErrNotSettled, r.Round)
	}
	return nil
}

func (r RoundState) settled() RoundState {
	r.Settled = true
	return r
}

func (r RoundState) next() RoundState {
	return RoundState{Round: r.Round + 1, MaxRounds: r.MaxRounds}
}
