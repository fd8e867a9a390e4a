package games

// Tables are the per-request payout configuration for every game, supplied
// by the operator and treated as a read-only snapshot during evaluation.
type Tables struct {
	Updown   UpdownTable          `yaml:"updown"`
	Slot     SlotTable            `yaml:"slot"`
	Baccarat BaccaratTable        `yaml:"baccarat"`
	Horse    HorseTable           `yaml:"horse"`
	Limits   map[string]BetLimits `yaml:"limits"`
}

// BetLimits bound the accepted bet for one game, in points. Zero max means
// unbounded.
type BetLimits struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// UpdownTable: tier multipliers indexed by attempt count. The tier count is
// also the guess budget.
type UpdownTable struct {
	Tiers    []float64 `yaml:"tiers"`
	MaxValue int       `yaml:"max_value"`
}

// SlotTable: paytable plus the optional jackpot side game.
type SlotTable struct {
	TripleSeven float64      `yaml:"triple_seven"`
	TripleSame  float64      `yaml:"triple_same"`
	DoubleSame  float64      `yaml:"double_same"`
	Jackpot     JackpotTable `yaml:"jackpot"`
}

// JackpotTable: every spin contributes bet×rate to a persisted pool; the
// trigger draw is independent of the base game outcome.
type JackpotTable struct {
	Enabled          bool    `yaml:"enabled"`
	ContributionRate float64 `yaml:"contribution_rate"`
	TriggerProb      float64 `yaml:"trigger_prob"`
	SeedAmount       float64 `yaml:"seed_amount"`
}

// BaccaratTable: total-return multipliers per winning choice. Banker pays
// 1:1 minus 5% commission.
type BaccaratTable struct {
	Player float64 `yaml:"player"`
	Banker float64 `yaml:"banker"`
	Tie    float64 `yaml:"tie"`
}

// HorseTable: Monte-Carlo sizing for the quoted odds.
type HorseTable struct {
	Sims      int     `yaml:"sims"`
	HouseEdge float64 `yaml:"house_edge"`
}

var defaultTables = DefaultTables()

// DefaultTables returns the stock configuration.
func DefaultTables() *Tables {
	return &Tables{
		Updown: UpdownTable{
			Tiers:    []float64{7, 5, 4, 3, 2},
			MaxValue: 100,
		},
		Slot: SlotTable{
			TripleSeven: 10,
			TripleSame:  5,
			DoubleSame:  1.5,
			Jackpot: JackpotTable{
				Enabled:          false,
				ContributionRate: 0.02,
				TriggerProb:      0.001,
				SeedAmount:       500,
			},
		},
		Baccarat: BaccaratTable{
			Player: 2,
			Banker: 1.95,
			Tie:    8,
		},
		Horse: HorseTable{
			Sims:      300,
			HouseEdge: 0.05,
		},
		Limits: map[string]BetLimits{
			"updown":   {Min: 1, Max: 10000},
			"slot":     {Min: 1, Max: 10000},
			"baccarat": {Min: 1, Max: 10000},
			"horse":    {Min: 1, Max: 10000},
		},
	}
}
