package games

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/classlab/probsim/internal/rng"
)

// SlotGame is the three-reel slot machine. Symbols are drawn independently
// from a fixed alphabet; the jackpot side draw contributes to a persisted
// pool and triggers independently of the base game.
type SlotGame struct{}

var slotSymbols = []string{"A", "B", "C", "D", "7"}

const slotSpecial = "7"

// Bounded re-roll budget when forcing a losing spin, matching the bounded
// natural-redraw approach used for forced card outcomes.
const slotRerollAttempts = 30

// SlotDetail is the structured explanation for one spin.
type SlotDetail struct {
	Symbols             []string        `json:"symbols"`
	Multiplier          float64         `json:"multiplier"`
	JackpotHit          bool            `json:"jackpot_hit"`
	JackpotContribution decimal.Decimal `json:"jackpot_contribution"`
}

// GameID implements Detail.
func (SlotDetail) GameID() string { return "slot" }

// Spec returns metadata about the slot game.
func (g *SlotGame) Spec() GameSpec {
	return GameSpec{ID: "slot", Name: "Slot Machine"}
}

// Resolve spins the reels. A forced loss re-rolls until a non-winning triple
// appears; a forced win overwrites the reels with the lowest qualifying
// combination at or above the requested multiplier.
func (g *SlotGame) Resolve(p Params, rs *rng.Stream) (Outcome, error) {
	table := p.tables().Slot

	symbols := spinReels(rs)
	multiplier := slotMultiplier(symbols, table)

	// Jackpot draw happens before any forcing: it is independent of the
	// base game outcome by design of the side pool.
	var jackpotHit bool
	contribution := decimal.Zero
	if table.Jackpot.Enabled {
		contribution = p.Bet.Mul(decimal.NewFromFloat(table.Jackpot.ContributionRate))
		jackpotHit = rs.Chance(table.Jackpot.TriggerProb)
	}

	if p.Force != nil {
		switch p.Force.Result {
		case ResultLose:
			for i := 0; i < slotRerollAttempts && multiplier > 0; i++ {
				symbols = spinReels(rs)
				multiplier = slotMultiplier(symbols, table)
			}
			if multiplier > 0 {
				symbols = []string{slotSymbols[0], slotSymbols[1], slotSymbols[2]}
				multiplier = 0
			}
		case ResultWin:
			symbols, multiplier = lowestWinningCombo(p.Force.MinMultiplier, table, rs)
		}
	}

	detail := SlotDetail{
		Symbols:             symbols,
		Multiplier:          multiplier,
		JackpotHit:          jackpotHit,
		JackpotContribution: contribution,
	}

	result := ResultLose
	if multiplier > 0 {
		result = ResultWin
	}
	return Outcome{Result: result, Multiplier: multiplier, Detail: detail}, nil
}

func spinReels(rs *rng.Stream) []string {
	symbols := make([]string, 3)
	for i := range symbols {
		symbols[i] = slotSymbols[rs.IntN(0, len(slotSymbols)-1)]
	}
	return symbols
}

// slotMultiplier maps a symbol triple onto the paytable.
func slotMultiplier(symbols []string, table SlotTable) float64 {
	a, b, c := symbols[0], symbols[1], symbols[2]
	switch {
	case a == slotSpecial && b == slotSpecial && c == slotSpecial:
		return table.TripleSeven
	case a == b && b == c:
		return table.TripleSame
	case a == b || a == c || b == c:
		return table.DoubleSame
	default:
		return 0
	}
}

// lowestWinningCombo picks the cheapest qualifying combination whose tier
// multiplier is ≥ min: double-same, then triple-same, then triple-special.
// The displayed symbols and multiplier match the tier exactly.
func lowestWinningCombo(min float64, table SlotTable, rs *rng.Stream) ([]string, float64) {
	plain := slotSymbols[:len(slotSymbols)-1] // everything but the special

	if table.DoubleSame >= min {
		s := plain[rs.IntN(0, len(plain)-1)]
		other := plain[(indexOf(plain, s)+1)%len(plain)]
		return []string{s, s, other}, table.DoubleSame
	}
	if table.TripleSame >= min {
		s := plain[rs.IntN(0, len(plain)-1)]
		return []string{s, s, s}, table.TripleSame
	}
	return []string{slotSpecial, slotSpecial, slotSpecial}, table.TripleSeven
}

func indexOf(vals []string, v string) int {
	for i, x := range vals {
		if x == v {
			return i
		}
	}
	return 0
}

// JackpotPayout computes what a jackpot hit pays from the current pool.
func JackpotPayout(pool decimal.Decimal) (decimal.Decimal, error) {
	if pool.IsNegative() {
		return decimal.Zero, fmt.Errorf("slot: negative jackpot pool %s", pool)
	}
	return pool, nil
}
