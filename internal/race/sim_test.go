package race

import (
	"reflect"
	"testing"

	"github.com/classlab/probsim/internal/rng"
)

func newTestStream(t *testing.T) *rng.Stream {
	t.Helper()
	return rng.New(1, t.Name())
}

func TestRunDeterministic(t *testing.T) {
	horses := GenerateHorses(0)

	a, err := Run(horses, "oval", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := Run(horses, "oval", 0)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}

	if a.WinnerID != b.WinnerID {
		t.Errorf("winner differs between identical runs: %s vs %s", a.WinnerID, b.WinnerID)
	}
	if !reflect.DeepEqual(a.FinishTimes, b.FinishTimes) {
		t.Errorf("finish times differ: %v vs %v", a.FinishTimes, b.FinishTimes)
	}
	if !reflect.DeepEqual(a.Events, b.Events) {
		t.Errorf("event logs differ: %d vs %d events", len(a.Events), len(b.Events))
	}
	if !reflect.DeepEqual(a.Timeline, b.Timeline) {
		t.Errorf("timelines differ: %d vs %d frames", len(a.Timeline), len(b.Timeline))
	}
}

func TestRunSeedsDiverge(t *testing.T) {
	horses := GenerateHorses(5)
	a, err := Run(horses, "oval", 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := Run(horses, "oval", 2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reflect.DeepEqual(a.FinishTimes, b.FinishTimes) {
		t.Error("different seeds produced identical finish times")
	}
}

func TestRunFinishTimesBounded(t *testing.T) {
	maxTime := float64(MaxTicks) * DT
	for seed := int64(0); seed < 20; seed++ {
		horses := GenerateHorses(seed)
		res, err := Run(horses, "oval", seed)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		for i, ft := range res.FinishTimes {
			if ft <= 0 || ft > maxTime+1e-9 {
				t.Errorf("seed %d horse %d: finish time %v outside (0, %v]", seed, i, ft, maxTime)
			}
		}
	}
}

func TestRunSingleWinnerTieBreak(t *testing.T) {
	horses := GenerateHorses(3)
	res, err := Run(horses, "oval", 3)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	best := res.FinishTimes[res.WinnerIndex]
	for i, ft := range res.FinishTimes {
		if ft < best-1e-6 {
			t.Errorf("horse %d finished at %v, faster than declared winner's %v", i, ft, best)
		}
		// Earlier creation order wins exact ties.
		if ft <= best+1e-6 && ft >= best-1e-6 && i < res.WinnerIndex {
			t.Errorf("tie at %v should have gone to earlier horse %d, not %d", ft, i, res.WinnerIndex)
		}
	}
	if res.WinnerID != horses[res.WinnerIndex].ID {
		t.Errorf("winner id %s does not match index %d", res.WinnerID, res.WinnerIndex)
	}
}

func TestRunStateClampedEveryFrame(t *testing.T) {
	for seed := int64(0); seed < 10; seed++ {
		horses := GenerateHorses(seed)
		res, err := Run(horses, "ridge", seed)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		var prev []float64
		for _, frame := range res.Timeline {
			for i := range frame.Positions {
				if e := frame.Energy[i]; e < 0 || e > 1 {
					t.Fatalf("seed %d t=%v horse %d: energy %v outside [0,1]", seed, frame.T, i, e)
				}
				if h := frame.Heat[i]; h < 0 {
					t.Fatalf("seed %d t=%v horse %d: heat %v negative", seed, frame.T, i, h)
				}
				if frame.Speeds[i] < 0 {
					t.Fatalf("seed %d t=%v horse %d: negative speed", seed, frame.T, i)
				}
				if prev != nil && frame.Positions[i] < prev[i]-1e-9 {
					t.Fatalf("seed %d t=%v horse %d: position regressed %v -> %v",
						seed, frame.T, i, prev[i], frame.Positions[i])
				}
			}
			prev = frame.Positions
		}
	}
}

func TestRunEventLogWellFormed(t *testing.T) {
	horses := GenerateHorses(7)
	res, err := Run(horses, "oval", 7)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	known := map[EventKind]bool{
		EventStumble: true, EventBoost: true, EventContact: true,
		EventSlip: true, EventCornerMiss: true, EventHeatCap: true,
	}
	ids := map[string]bool{}
	for _, h := range horses {
		ids[h.ID] = true
	}
	for _, ev := range res.Events {
		if !known[ev.Kind] {
			t.Errorf("unknown event kind %q", ev.Kind)
		}
		if !ids[ev.HorseID] {
			t.Errorf("event references unknown horse %q", ev.HorseID)
		}
		if ev.T < 0 || ev.T > float64(MaxTicks)*DT {
			t.Errorf("event time %v out of race bounds", ev.T)
		}
	}
}

func TestRunUnknownTrack(t *testing.T) {
	if _, err := Run(GenerateHorses(1), "volcano", 1); err == nil {
		t.Fatal("expected error for unknown track")
	}
}

func TestSeedZeroOvalScenario(t *testing.T) {
	horses := GenerateHorses(0)
	first, err := Run(horses, "oval", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := Run(horses, "oval", 0)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if first.WinnerID != second.WinnerID {
		t.Fatalf("seed 0 oval: winner %s then %s", first.WinnerID, second.WinnerID)
	}
}

func TestTickProb(t *testing.T) {
	if p := tickProb(0); p != 0 {
		t.Errorf("tickProb(0) = %v", p)
	}
	p := tickProb(1.0)
	if p <= 0 || p >= 1 {
		t.Errorf("tickProb(1.0) = %v outside (0,1)", p)
	}
	if tickProb(2.0) <= p {
		t.Error("tickProb not monotonic in rate")
	}
}

func TestRunTimelineStartsAtGate(t *testing.T) {
	horses := GenerateHorses(5)
	res, err := Run(horses, "oval", 5)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Timeline) < 2 {
		t.Fatalf("timeline has %d frames", len(res.Timeline))
	}

	gate := res.Timeline[0]
	if gate.T != 0 {
		t.Errorf("first frame at t=%v, want 0", gate.T)
	}
	for i := range horses {
		if gate.Positions[i] != 0 || gate.Speeds[i] != 0 {
			t.Errorf("horse %d starts at pos=%v v=%v", i, gate.Positions[i], gate.Speeds[i])
		}
		if gate.Energy[i] != 1 {
			t.Errorf("horse %d starts with energy %v", i, gate.Energy[i])
		}
		if gate.Heat[i] != 0 {
			t.Errorf("horse %d starts with heat %v", i, gate.Heat[i])
		}
	}
	if res.Timeline[1].T <= 0 {
		t.Errorf("second frame at t=%v", res.Timeline[1].T)
	}
}
