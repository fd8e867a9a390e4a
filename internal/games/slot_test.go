package games

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/classlab/probsim/internal/rng"
)

func TestSlotMultiplierPaytable(t *testing.T) {
	table := DefaultTables().Slot
	cases := []struct {
		name    string
		symbols []string
		want    float64
	}{
		{"triple seven", []string{"7", "7", "7"}, 10},
		{"triple same", []string{"B", "B", "B"}, 5},
		{"double first two", []string{"A", "A", "C"}, 1.5},
		{"double outer", []string{"A", "C", "A"}, 1.5},
		{"double last two", []string{"C", "A", "A"}, 1.5},
		{"all distinct", []string{"A", "B", "C"}, 0},
	}
	for _, tc := range cases {
		if got := slotMultiplier(tc.symbols, table); got != tc.want {
			t.Errorf("%s: multiplier %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSlotResolveDeterministic(t *testing.T) {
	g := &SlotGame{}
	p := Params{Bet: decimal.NewFromInt(10)}

	a, err := g.Resolve(p, rng.New(7, "slot"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b, err := g.Resolve(p, rng.New(7, "slot"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	da, db := a.Detail.(SlotDetail), b.Detail.(SlotDetail)
	for i := range da.Symbols {
		if da.Symbols[i] != db.Symbols[i] {
			t.Fatalf("same stream spun %v then %v", da.Symbols, db.Symbols)
		}
	}
	if a.Multiplier != b.Multiplier {
		t.Errorf("multiplier diverged: %v vs %v", a.Multiplier, b.Multiplier)
	}
}

func TestSlotForcedLossNeverPays(t *testing.T) {
	g := &SlotGame{}
	for seed := int64(0); seed < 50; seed++ {
		out, err := g.Resolve(Params{
			Bet:   decimal.NewFromInt(5),
			Force: &Force{Result: ResultLose},
		}, rng.New(seed, "slot-lose"))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if out.Result != ResultLose || out.Multiplier != 0 {
			t.Fatalf("seed %d: forced loss paid %s x%v", seed, out.Result, out.Multiplier)
		}
		d := out.Detail.(SlotDetail)
		if m := slotMultiplier(d.Symbols, DefaultTables().Slot); m != 0 {
			t.Fatalf("seed %d: displayed reels %v pay %v", seed, d.Symbols, m)
		}
	}
}

func TestSlotForcedWinTierMatchesReels(t *testing.T) {
	g := &SlotGame{}
	table := DefaultTables().Slot

	cases := []struct {
		name string
		min  float64
		want float64
	}{
		{"floor below double", 0, table.DoubleSame},
		{"floor at double", 1.5, table.DoubleSame},
		{"floor above double", 2, table.TripleSame},
		{"floor above triple", 6, table.TripleSeven},
	}
	for _, tc := range cases {
		out, err := g.Resolve(Params{
			Bet:   decimal.NewFromInt(5),
			Force: &Force{Result: ResultWin, MinMultiplier: tc.min},
		}, rng.New(9, "slot-win"))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if out.Result != ResultWin {
			t.Fatalf("%s: forced win produced %s", tc.name, out.Result)
		}
		if out.Multiplier != tc.want {
			t.Errorf("%s: multiplier %v, want %v", tc.name, out.Multiplier, tc.want)
		}
		d := out.Detail.(SlotDetail)
		if m := slotMultiplier(d.Symbols, table); m != out.Multiplier {
			t.Errorf("%s: reels %v pay %v but outcome says %v", tc.name, d.Symbols, m, out.Multiplier)
		}
	}
}

func TestSlotJackpotContribution(t *testing.T) {
	g := &SlotGame{}
	tables := DefaultTables()
	tables.Slot.Jackpot.Enabled = true
	tables.Slot.Jackpot.ContributionRate = 0.02

	out, err := g.Resolve(Params{
		Bet:    decimal.NewFromInt(100),
		Tables: tables,
	}, rng.New(11, "slot-jackpot"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	d := out.Detail.(SlotDetail)
	if want := decimal.NewFromInt(2); !d.JackpotContribution.Equal(want) {
		t.Errorf("contribution %s, want %s", d.JackpotContribution, want)
	}
}

func TestSlotJackpotDisabledByDefault(t *testing.T) {
	g := &SlotGame{}
	out, err := g.Resolve(Params{Bet: decimal.NewFromInt(100)}, rng.New(12, "slot"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	d := out.Detail.(SlotDetail)
	if d.JackpotHit || !d.JackpotContribution.IsZero() {
		t.Errorf("disabled jackpot produced hit=%v contribution=%s", d.JackpotHit, d.JackpotContribution)
	}
}

func TestJackpotPayout(t *testing.T) {
	pool := decimal.NewFromInt(750)
	got, err := JackpotPayout(pool)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if !got.Equal(pool) {
		t.Errorf("payout %s, want full pool %s", got, pool)
	}
	if _, err := JackpotPayout(decimal.NewFromInt(-1)); err == nil {
		t.Error("negative pool should error")
	}
}
