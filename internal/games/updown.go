package games

import (
	"fmt"

	"github.com/classlab/probsim/internal/rng"
)

// UpdownGame is the number-guessing game: guess a target in [1, MaxValue]
// within as many attempts as there are payout tiers, with UP/DOWN hints.
type UpdownGame struct{}

// Hint values shown after each guess.
const (
	HintUp      = "UP"
	HintDown    = "DOWN"
	HintCorrect = "CORRECT"
)

// UpdownDetail is the structured explanation for one updown round.
type UpdownDetail struct {
	Target   int      `json:"target"`
	Guesses  []int    `json:"guesses"`
	Hints    []string `json:"hints"`
	Attempts int      `json:"attempts"`
	Success  bool     `json:"success"`
}

// GameID implements Detail.
func (UpdownDetail) GameID() string { return "updown" }

// Spec returns metadata about the updown game.
func (g *UpdownGame) Spec() GameSpec {
	return GameSpec{ID: "updown", Name: "Up-Down"}
}

// Resolve scores a full guess trail against the target. A forced win
// retroactively sets the target to the last guess; a forced loss moves the
// target to an unused value and recomputes the hints so the trail stays
// consistent.
func (g *UpdownGame) Resolve(p Params, rs *rng.Stream) (Outcome, error) {
	table := p.tables().Updown
	maxAttempts := len(table.Tiers)
	if maxAttempts == 0 {
		return Outcome{}, fmt.Errorf("updown: no payout tiers configured")
	}

	if len(p.Guesses) == 0 {
		return Outcome{}, fmt.Errorf("updown: at least one guess required")
	}
	if len(p.Guesses) > maxAttempts {
		return Outcome{}, fmt.Errorf("updown: %d guesses exceeds %d attempts", len(p.Guesses), maxAttempts)
	}
	for _, v := range p.Guesses {
		if v < 1 || v > table.MaxValue {
			return Outcome{}, fmt.Errorf("updown: guess %d outside [1, %d]", v, table.MaxValue)
		}
	}

	target := p.Target
	if target <= 0 {
		target = rs.IntN(1, table.MaxValue)
	}

	hit := guessIndex(p.Guesses, target)

	if p.Force != nil {
		switch {
		case p.Force.Result == ResultWin && hit < 0:
			// The last guess becomes the answer.
			target = p.Guesses[len(p.Guesses)-1]
			hit = len(p.Guesses) - 1
		case p.Force.Result == ResultLose && hit >= 0:
			target = unusedValue(p.Guesses, table.MaxValue, rs)
			hit = guessIndex(p.Guesses, target)
		}
	}

	// Hints recomputed against the final target so the trail never
	// contradicts the settled result.
	trail := p.Guesses
	if hit >= 0 {
		trail = p.Guesses[:hit+1]
	}
	hints := make([]string, len(trail))
	for i, v := range trail {
		switch {
		case v == target:
			hints[i] = HintCorrect
		case v < target:
			hints[i] = HintUp
		default:
			hints[i] = HintDown
		}
	}

	detail := UpdownDetail{
		Target:   target,
		Guesses:  trail,
		Hints:    hints,
		Attempts: len(trail),
		Success:  hit >= 0,
	}

	if hit < 0 {
		return Outcome{Result: ResultLose, Multiplier: 0, Detail: detail}, nil
	}
	return Outcome{
		Result:     ResultWin,
		Multiplier: table.Tiers[hit],
		Detail:     detail,
	}, nil
}

// guessIndex returns the index of the first guess equal to target, or -1.
func guessIndex(guesses []int, target int) int {
	for i, v := range guesses {
		if v == target {
			return i
		}
	}
	return -1
}

// unusedValue picks a value in [1, max] not present in guesses. The guess
// budget is far below max, so a candidate always exists.
func unusedValue(guesses []int, max int, rs *rng.Stream) int {
	used := make(map[int]bool, len(guesses))
	for _, v := range guesses {
		used[v] = true
	}
	for i := 0; i < 32; i++ {
		if v := rs.IntN(1, max); !used[v] {
			return v
		}
	}
	// Bounded draw failed: linear scan from a random offset.
	start := rs.IntN(1, max)
	for d := 0; d < max; d++ {
		v := (start+d-1)%max + 1
		if !used[v] {
			return v
		}
	}
	return 1
}
