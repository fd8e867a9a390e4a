package games

import (
	"fmt"

	"github.com/classlab/probsim/internal/rng"
)

// Reconcile regenerates a game's explanatory detail after a bias override so
// the narrative never contradicts the settled result. The overridden outcome
// carries the result the detail must support and the multiplier floor a
// forced win must reach; the returned outcome's multiplier is authoritative
// (a qualifying slot tier or updown attempt tier can exceed the floor).
//
// Horse is the one game where reconciliation is the identity: bias is never
// applied post-hoc to a physics trace.
func Reconcile(gameID string, overridden Outcome, p Params, rs *rng.Stream) (Outcome, error) {
	if gameID == "horse" {
		return overridden, nil
	}

	g, ok := Get(gameID)
	if !ok {
		return Outcome{}, fmt.Errorf("reconcile: unknown game %q", gameID)
	}

	p.Force = &Force{
		Result:        overridden.Result,
		MinMultiplier: overridden.Multiplier,
	}
	out, err := g.Resolve(p, rs)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile %s: %w", gameID, err)
	}
	if out.Result != overridden.Result {
		return Outcome{}, fmt.Errorf("reconcile %s: forced %s but produced %s",
			gameID, overridden.Result, out.Result)
	}
	return out, nil
}
