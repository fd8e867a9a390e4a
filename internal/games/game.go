package games

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/classlab/probsim/internal/rng"
)

// Result is the settled outcome of a bet.
type Result string

const (
	ResultWin  Result = "win"
	ResultLose Result = "lose"
	ResultTie  Result = "tie"
)

// Outcome is what a provider returns: the result, the payout multiplier and
// a structured, game-specific explanation. Detail is serialized to JSON only
// at the settlement boundary.
type Outcome struct {
	Result     Result  `json:"result"`
	Multiplier float64 `json:"multiplier"`
	Detail     Detail  `json:"detail"`
}

// Detail is the tagged per-game explanation variant.
type Detail interface {
	GameID() string
}

// Force asks a provider to produce a specific result. Providers either
// re-run their draw procedure until the natural outcome matches (baccarat)
// or patch the explanation minimally (updown, slot). Horse ignores it: the
// simulation is the source of truth.
type Force struct {
	Result Result
	// MinMultiplier is the floor the reconciled payout must reach for a
	// forced win; providers pick the lowest qualifying tier at or above it.
	MinMultiplier float64
}

// Params carries one request's inputs. Tables are read-only configuration
// snapshotted per request; nil means defaults.
type Params struct {
	Bet      decimal.Decimal
	Choice   string
	Guesses  []int
	Target   int // updown: 0 means draw from the stream
	Seed     int64
	TrackKey string
	Tables   *Tables
	Force    *Force
}

func (p Params) tables() *Tables {
	if p.Tables != nil {
		return p.Tables
	}
	return defaultTables
}

// GameSpec is provider metadata.
type GameSpec struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Game computes a raw outcome for one request. Implementations must be
// stateless: all randomness comes from the supplied stream, so identical
// (params, stream) inputs produce identical outcomes.
type Game interface {
	Spec() GameSpec
	Resolve(p Params, rs *rng.Stream) (Outcome, error)
}

var registry = make(map[string]Game)

// Register adds a game to the registry.
func Register(g Game) {
	registry[g.Spec().ID] = g
}

// Get retrieves a game by id.
func Get(id string) (Game, bool) {
	g, ok := registry[id]
	return g, ok
}

// List returns the specs of all registered games, ordered by id.
func List() []GameSpec {
	specs := make([]GameSpec, 0, len(registry))
	for _, g := range registry {
		specs = append(specs, g.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

func init() {
	Register(&UpdownGame{})
	Register(&SlotGame{})
	Register(&BaccaratGame{})
	Register(&HorseGame{})
}
