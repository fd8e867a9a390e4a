package games

import (
	"fmt"

	"github.com/classlab/probsim/internal/race"
	"github.com/classlab/probsim/internal/rng"
)

// HorseGame wraps the race simulator. The field, the odds and the race
// itself all derive deterministically from the round seed; the bet is
// settled against the simulated winner. Forcing is ignored: the physics
// trace is the source of truth and is never rewritten after the fact.
type HorseGame struct{}

// HorseDetail is the full race record: enough to replay the round and to
// verify the outcome from the seed alone.
type HorseDetail struct {
	RaceSeed    int64        `json:"race_seed"`
	TrackKey    string       `json:"track_key"`
	TrackLength float64      `json:"track_length"`
	Laps        int          `json:"laps"`
	WinnerID    string       `json:"winner_id"`
	BetChoice   string       `json:"bet_choice"`
	Horses      []race.Horse `json:"horses"`
	FinishTimes []float64    `json:"finish_times"`
	Odds        []float64    `json:"odds"`
	Events      []race.Event `json:"events"`
	Timeline    []race.Frame `json:"timeline"`
}

// GameID implements Detail.
func (HorseDetail) GameID() string { return "horse" }

// Spec returns metadata about the horse race game.
func (g *HorseGame) Spec() GameSpec {
	return GameSpec{ID: "horse", Name: "Horse Race"}
}

// Resolve simulates the race for the round seed and compares the bet choice
// against the winner.
func (g *HorseGame) Resolve(p Params, _ *rng.Stream) (Outcome, error) {
	trackKey := p.TrackKey
	if trackKey == "" {
		trackKey = "oval"
	}
	track, err := race.LookupTrack(trackKey)
	if err != nil {
		return Outcome{}, fmt.Errorf("horse: %w", err)
	}

	horses := race.GenerateHorses(p.Seed)

	picked := -1
	for i, h := range horses {
		if h.ID == p.Choice {
			picked = i
			break
		}
	}
	if picked < 0 {
		return Outcome{}, fmt.Errorf("horse: bet choice %q is not in the field", p.Choice)
	}

	table := p.tables().Horse
	odds, err := race.WinOdds(horses, trackKey, p.Seed, table.Sims, table.HouseEdge)
	if err != nil {
		return Outcome{}, fmt.Errorf("horse: %w", err)
	}

	res, err := race.Run(horses, trackKey, p.Seed)
	if err != nil {
		return Outcome{}, fmt.Errorf("horse: %w", err)
	}

	detail := HorseDetail{
		RaceSeed:    p.Seed,
		TrackKey:    trackKey,
		TrackLength: track.LapLength,
		Laps:        track.Laps,
		WinnerID:    res.WinnerID,
		BetChoice:   p.Choice,
		Horses:      horses,
		FinishTimes: res.FinishTimes,
		Odds:        odds.DisplayOdds,
		Events:      res.Events,
		Timeline:    res.Timeline,
	}

	if res.WinnerID == p.Choice {
		return Outcome{
			Result:     ResultWin,
			Multiplier: odds.DisplayOdds[picked],
			Detail:     detail,
		}, nil
	}
	return Outcome{Result: ResultLose, Multiplier: 0, Detail: detail}, nil
}
