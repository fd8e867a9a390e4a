package race

import (
	"fmt"

	"github.com/classlab/probsim/internal/rng"
)

const (
	// HorseCount is the field size for every race.
	HorseCount = 4

	// StatBudget is the exact sum of the five stats for every horse.
	StatBudget = 300

	// StatFloor is the minimum value of any single stat.
	StatFloor = 20

	// MaxSpeedSpread bounds the gap between the fastest and slowest horse.
	MaxSpeedSpread = 30
)

// Stats are the five immutable attributes of a horse, each ≥ StatFloor and
// summing to exactly StatBudget.
type Stats struct {
	Speed     int `json:"speed"`
	Accel     int `json:"accel"`
	Stamina   int `json:"stamina"`
	Stability int `json:"stability"`
	Cornering int `json:"cornering"`
}

// Sum returns the stat total, which must equal StatBudget.
func (s Stats) Sum() int {
	return s.Speed + s.Accel + s.Stamina + s.Stability + s.Cornering
}

// Tactic is a horse's pacing style for a single race.
type Tactic string

const (
	TacticFront   Tactic = "front"
	TacticStalker Tactic = "stalker"
	TacticCloser  Tactic = "closer"
)

// Traits are per-race modifiers rolled once from the race seed. They are not
// persisted independently of the race record.
type Traits struct {
	HeatResist  float64 `json:"heat_resist"`  // [0.9, 1.2]
	RecoverRate float64 `json:"recover_rate"` // [0.85, 1.1]
	Luck        float64 `json:"luck"`         // [0.8, 1.2]
	Tactic      Tactic  `json:"tactic"`
}

// Horse is an immutable race entrant. Stats never change after generation.
type Horse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stats Stats  `json:"stats"`
}

var horseNames = []string{
	"Comet", "Aurora", "Thunderline", "Seabreeze",
	"Ember", "Zephyr", "Onyx Dash", "Northstar",
	"Ironstride", "Wildcard", "Moonriver", "Redshift",
}

// GenerateHorses produces a balanced pool of HorseCount entrants from a seed.
// Every pool satisfies: stat sum == StatBudget, each stat ≥ StatFloor, and
// speed spread ≤ MaxSpeedSpread.
func GenerateHorses(seed int64) []Horse {
	rs := rng.New(seed, "stats")

	// Base speed band keeps the field competitive; per-horse offsets stay
	// within half the allowed spread in each direction.
	base := rs.IntN(55, 75)
	half := MaxSpeedSpread / 2

	nameIdx := rs.IntN(0, len(horseNames)-1)

	horses := make([]Horse, HorseCount)
	for i := 0; i < HorseCount; i++ {
		speed := base + rs.IntN(-half, half)

		// Clamp before partitioning: leave room for the other four stats at
		// the floor, and never go below the floor ourselves.
		if speed < StatFloor {
			speed = StatFloor
		}
		if max := StatBudget - 4*StatFloor; speed > max {
			speed = max
		}

		rest := partitionBudget(StatBudget-speed, 4, rs)
		rs.Shuffle(len(rest), func(a, b int) { rest[a], rest[b] = rest[b], rest[a] })

		horses[i] = Horse{
			ID:   fmt.Sprintf("h%d", i+1),
			Name: horseNames[(nameIdx+i)%len(horseNames)],
			Stats: Stats{
				Speed:     speed,
				Accel:     rest[0],
				Stamina:   rest[1],
				Stability: rest[2],
				Cornering: rest[3],
			},
		}
	}
	return horses
}

// partitionBudget splits total into n parts, each ≥ StatFloor, via n-1 sorted
// random cut points over the excess above the floors.
func partitionBudget(total, n int, rs *rng.Stream) []int {
	excess := total - n*StatFloor
	if excess < 0 {
		excess = 0
	}

	cuts := make([]int, n-1)
	for i := range cuts {
		cuts[i] = rs.IntN(0, excess)
	}
	sortInts(cuts)

	parts := make([]int, n)
	prev := 0
	for i, c := range cuts {
		parts[i] = StatFloor + (c - prev)
		prev = c
	}
	parts[n-1] = StatFloor + (excess - prev)
	return parts
}

func sortInts(v []int) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

var tactics = []Tactic{TacticFront, TacticStalker, TacticCloser}

// rollTraits derives a horse's per-race modifiers from its own labeled stream.
func rollTraits(rs *rng.Stream) Traits {
	return Traits{
		HeatResist:  rs.Range(0.9, 1.2),
		RecoverRate: rs.Range(0.85, 1.1),
		Luck:        rs.Range(0.8, 1.2),
		Tactic:      tactics[rs.IntN(0, len(tactics)-1)],
	}
}
