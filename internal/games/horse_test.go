package games

import (
	"testing"

	"github.com/classlab/probsim/internal/race"
)

func TestHorseResolveDeterministic(t *testing.T) {
	g := &HorseGame{}
	p := Params{Choice: "h1", Seed: 42}

	a, err := g.Resolve(p, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b, err := g.Resolve(p, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	da, db := a.Detail.(HorseDetail), b.Detail.(HorseDetail)
	if da.WinnerID != db.WinnerID {
		t.Fatalf("same seed crowned %s then %s", da.WinnerID, db.WinnerID)
	}
	if a.Result != b.Result || a.Multiplier != b.Multiplier {
		t.Errorf("settlement diverged: %s x%v vs %s x%v", a.Result, a.Multiplier, b.Result, b.Multiplier)
	}
}

func TestHorseSettlementMatchesWinner(t *testing.T) {
	g := &HorseGame{}
	for seed := int64(0); seed < 10; seed++ {
		out, err := g.Resolve(Params{Choice: "h2", Seed: seed}, nil)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		d := out.Detail.(HorseDetail)
		if d.WinnerID == "h2" {
			if out.Result != ResultWin {
				t.Errorf("seed %d: winner picked but result %s", seed, out.Result)
			}
			if out.Multiplier < 1 {
				t.Errorf("seed %d: winning odds %v below even money", seed, out.Multiplier)
			}
		} else {
			if out.Result != ResultLose || out.Multiplier != 0 {
				t.Errorf("seed %d: losing pick settled %s x%v", seed, out.Result, out.Multiplier)
			}
		}
	}
}

func TestHorseDetailIsReplayable(t *testing.T) {
	g := &HorseGame{}
	out, err := g.Resolve(Params{Choice: "h1", Seed: 7, TrackKey: "ridge"}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	d := out.Detail.(HorseDetail)

	if d.RaceSeed != 7 || d.TrackKey != "ridge" {
		t.Errorf("detail seed/track = %d/%s", d.RaceSeed, d.TrackKey)
	}
	if len(d.Horses) != race.HorseCount || len(d.FinishTimes) != race.HorseCount || len(d.Odds) != race.HorseCount {
		t.Fatalf("detail arrays sized %d/%d/%d", len(d.Horses), len(d.FinishTimes), len(d.Odds))
	}
	if len(d.Timeline) == 0 {
		t.Error("empty timeline")
	}

	// Replaying the recorded seed reproduces the recorded winner.
	res, err := race.Run(d.Horses, d.TrackKey, d.RaceSeed)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.WinnerID != d.WinnerID {
		t.Errorf("replay winner %s, recorded %s", res.WinnerID, d.WinnerID)
	}
}

func TestHorseIgnoresForce(t *testing.T) {
	g := &HorseGame{}
	plain, err := g.Resolve(Params{Choice: "h1", Seed: 42}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	forced, err := g.Resolve(Params{
		Choice: "h1",
		Seed:   42,
		Force:  &Force{Result: ResultWin, MinMultiplier: 100},
	}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if plain.Result != forced.Result || plain.Multiplier != forced.Multiplier {
		t.Errorf("force changed the race: %s x%v vs %s x%v",
			plain.Result, plain.Multiplier, forced.Result, forced.Multiplier)
	}
}

func TestHorseRejectsUnknownChoiceAndTrack(t *testing.T) {
	g := &HorseGame{}
	if _, err := g.Resolve(Params{Choice: "h9", Seed: 1}, nil); err == nil {
		t.Error("expected error for choice outside the field")
	}
	if _, err := g.Resolve(Params{Choice: "h1", Seed: 1, TrackKey: "volcano"}, nil); err == nil {
		t.Error("expected error for unknown track")
	}
}
