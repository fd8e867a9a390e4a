package race

import "math"

// Odds parameters. Display odds are decimal odds after the house edge.
const (
	DefaultSims      = 300
	DefaultHouseEdge = 0.05
)

// Odds carries Monte-Carlo win probabilities and the quoted payout odds.
type Odds struct {
	WinProbs    []float64 `json:"win_probs"`
	DisplayOdds []float64 `json:"display_odds"`
	HouseEdge   float64   `json:"house_edge"`
	Sims        int       `json:"sims"`
}

// WinOdds estimates each horse's win probability by running sims seeded
// sub-races and quotes decimal odds after the house edge. Deterministic for
// a given (horses, trackKey, seed, sims, edge).
func WinOdds(horses []Horse, trackKey string, seed int64, sims int, edge float64) (*Odds, error) {
	if sims <= 0 {
		sims = DefaultSims
	}
	if edge < 0 || edge >= 1 {
		edge = DefaultHouseEdge
	}

	wins := make([]int, len(horses))
	for i := 0; i < sims; i++ {
		// Each sub-race owns its own derived seed.
		res, err := Run(horses, trackKey, seed*31+int64(i)*7919)
		if err != nil {
			return nil, err
		}
		wins[res.WinnerIndex]++
	}

	odds := &Odds{
		WinProbs:    make([]float64, len(horses)),
		DisplayOdds: make([]float64, len(horses)),
		HouseEdge:   edge,
		Sims:        sims,
	}
	for i, w := range wins {
		// Laplace smoothing keeps every quoted price finite.
		p := (float64(w) + 1) / (float64(sims) + float64(len(horses)))
		odds.WinProbs[i] = p
		odds.DisplayOdds[i] = math.Round((1-edge)/p*100) / 100
	}
	return odds, nil
}
