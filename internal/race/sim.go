package race

import (
	"fmt"
	"math"

	"github.com/classlab/probsim/internal/rng"
)

// Fixed-step integration parameters.
const (
	DT               = 1.0 / 60.0 // seconds per tick
	MaxTicks         = 12000      // ~200s safety cap; hitting it is a forced finish, not an error
	TimelineInterval = 0.2        // seconds between playback frames
)

// Base speed/power parameters. Speeds are in track units per second.
const (
	vmax0 = 10.5 // base top speed
	vmax1 = 7.5  // added top speed at 100 speed stat
	pow0  = 2.2  // base power (accel output)
	pow1  = 2.6  // added power at 100 accel stat
)

// Condition factor noise, scaled by instability.
const (
	condMin      = 0.85
	condMax      = 1.15
	condSigmaMin = 0.02
	condSigmaMax = 0.10
)

// Drag, slipstream and contact.
const (
	dragQuad      = 0.004   // quadratic drag coefficient
	dragCube      = 0.00012 // cubic drag coefficient
	slipRange     = 6.0     // max gap for slipstream
	slipMinGap    = 0.3     // closer than this is contact territory, not slipstream
	slipDragMult  = 0.82
	slipHeatRate  = 0.03
	contactRange  = 1.2
	contactRate   = 0.06 // per-second contact hazard when boxed in
)

// Stochastic event rates (per second).
const (
	stumbleRate      = 0.018
	stumbleChainMult = 5.0 // chained bad luck: stumbling last tick raises the hazard
	boostRate        = 0.012
)

// Cornering.
const (
	latAccelBase    = 3.0
	cornerBrakeK    = 18.0
	cornerMissEdge  = 0.25 // excess over safe speed that triggers a corner miss
	cornerMissSlow  = 0.90
	cornerMissHeat  = 0.08
)

// Overdrive: late-race cap raise gated by stamina and energy.
const (
	overdriveCenter = 0.82
	overdriveSharp  = 14.0
	overdriveCapUp  = 0.10
	satExpBase      = 4.0
	satExpShrink    = 1.8
)

// Energy and heat accumulation.
const (
	energyDrainBase   = 0.0065
	energyDrainCorner = 0.004
	energyDrainOD     = 0.020
	recoverSpeedFrac  = 0.6 // below this fraction of target speed, passive recovery kicks in
	recoverDrainMult  = 0.4
	recoverEnergyRate = 0.02
	heatGainSpeed     = 0.05
	heatGainCorner    = 0.04
	heatGainOD        = 0.12
	heatDecayRate     = 0.04
	heatCapBase       = 1.1
	heatCapThrottle   = 0.6
	slopeAccelK       = 6.0
)

// EventKind labels a discrete stochastic race event.
type EventKind string

const (
	EventStumble    EventKind = "STUMBLE"
	EventBoost      EventKind = "BOOST"
	EventContact    EventKind = "CONTACT"
	EventSlip       EventKind = "SLIP"
	EventCornerMiss EventKind = "CORNER_MISS"
	EventHeatCap    EventKind = "HEATCAP"
)

// Event is one entry in the append-only race event log. Events only narrate
// what already happened to agent state; settlement never re-reads them.
type Event struct {
	T         float64   `json:"t"`
	HorseID   string    `json:"horse_id"`
	Kind      EventKind `json:"kind"`
	Magnitude float64   `json:"mag"`
	Note      string    `json:"note"`
}

// Frame is a fixed-interval snapshot of all runners for client playback.
type Frame struct {
	T         float64   `json:"t"`
	Positions []float64 `json:"positions"`
	Speeds    []float64 `json:"speeds"`
	Energy    []float64 `json:"energy"`
	Heat      []float64 `json:"heat"`
}

// Result is the complete, deterministic output of one race.
type Result struct {
	WinnerIndex int       `json:"winner_index"`
	WinnerID    string    `json:"winner_id"`
	FinishTimes []float64 `json:"finish_times"`
	Conditions  []float64 `json:"conditions"`
	Traits      []Traits  `json:"traits"`
	Events      []Event   `json:"events"`
	Timeline    []Frame   `json:"timeline"`
	Seed        int64     `json:"seed"`
	TrackKey    string    `json:"track_key"`
}

// runner is the mutable per-tick state of one horse. Created at tick 0,
// frozen once finished.
type runner struct {
	horse  Horse
	traits Traits
	rs     *rng.Stream

	cond   float64 // condition multiplier, drawn once
	vmax   float64 // stat-derived speed cap before overdrive
	power  float64 // stat-derived max power output

	pos    float64
	v      float64
	energy float64 // [0,1]
	heat   float64 // ≥ 0

	finished    bool
	finishTime  float64
	stumbled    bool // stumbled last tick
	slipping    bool
	overheated  bool
}

// Run simulates a full race to completion in one call. It is a pure function
// of (horses, trackKey, seed): identical inputs always produce an identical
// winner, event log and timeline.
func Run(horses []Horse, trackKey string, seed int64) (*Result, error) {
	track, err := LookupTrack(trackKey)
	if err != nil {
		return nil, err
	}
	if len(horses) == 0 {
		return nil, fmt.Errorf("race needs at least one horse")
	}

	total := track.TotalLength()
	runners := make([]*runner, len(horses))
	for i, h := range horses {
		rs := rng.New(seed, fmt.Sprintf("horse-%d", i))
		traits := rollTraits(rs)
		instability := float64(100-h.Stats.Stability) / 100
		sigma := lerp(condSigmaMin, condSigmaMax, instability)
		cond := clamp(rs.Normal(1, sigma), condMin, condMax)
		runners[i] = &runner{
			horse:  h,
			traits: traits,
			rs:     rs,
			cond:   cond,
			vmax:   (vmax0 + vmax1*float64(h.Stats.Speed)/100) * cond,
			power:  (pow0 + pow1*float64(h.Stats.Accel)/100) * cond,
			energy: 1.0,
		}
	}

	res := &Result{
		FinishTimes: make([]float64, len(horses)),
		Conditions:  make([]float64, len(horses)),
		Traits:      make([]Traits, len(horses)),
		Seed:        seed,
		TrackKey:    trackKey,
	}
	for i, r := range runners {
		res.Conditions[i] = r.cond
		res.Traits[i] = r.traits
	}

	t := 0.0
	nextSample := TimelineInterval
	finished := 0

	// Playback starts from the gate: all runners at zero, full energy.
	res.Timeline = append(res.Timeline, snapshot(0, runners))

	for tick := 0; tick < MaxTicks && finished < len(runners); tick++ {
		for i, st := range runners {
			if st.finished {
				continue
			}
			stepRunner(st, i, runners, track, total, t, res)
			if st.finished {
				finished++
			}
		}

		t += DT

		if t >= nextSample {
			res.Timeline = append(res.Timeline, snapshot(t, runners))
			nextSample += TimelineInterval
		}
	}

	// Tick cap reached: forced finish, handled identically to a natural one.
	for _, st := range runners {
		if !st.finished {
			st.finished = true
			st.finishTime = t
		}
	}
	for i, st := range runners {
		res.FinishTimes[i] = st.finishTime
	}

	winner := 0
	best := res.FinishTimes[0]
	for i := 1; i < len(res.FinishTimes); i++ {
		if res.FinishTimes[i] < best-1e-6 {
			best = res.FinishTimes[i]
			winner = i
		}
	}
	res.WinnerIndex = winner
	res.WinnerID = horses[winner].ID

	return res, nil
}

// stepRunner advances one runner by a single tick.
func stepRunner(st *runner, idx int, all []*runner, track Track, total, t float64, res *Result) {
	// 1. Track-relative position.
	raceFrac := st.pos / math.Max(total, 1e-9)
	lapFrac := math.Mod(st.pos, track.LapLength) / track.LapLength
	inCorner := track.inCorner(lapFrac)
	grade := track.gradeAt(lapFrac)

	// 2. Tactic target speed. Biases event probabilities and recovery only;
	// never a hard cap.
	vTarget := targetSpeed(st, raceFrac)

	// 7. Overdrive intensity, computed up front because it feeds the power
	// saturation exponent and the effective cap.
	od := overdrive(st, raceFrac)
	vcap := st.vmax * (1 + overdriveCapUp*od)
	satExp := satExpBase - satExpShrink*od

	// 3. Power output, saturated as velocity approaches the cap.
	energyFactor := 0.55 + 0.45*st.energy
	sat := 1 - math.Pow(clamp(st.v/math.Max(vcap, 1e-9), 0, 1), satExp)
	power := st.power * energyFactor * math.Max(sat, 0)

	// 4. Drag with wind, reduced by slipstream.
	wind := 1 + track.WindVariance*(st.rs.Float64()*2-1)*0.5
	drag := (dragQuad*st.v*st.v + dragCube*st.v*st.v*st.v) * wind

	gapAhead := math.Inf(1)
	for _, other := range all {
		if other == st || other.finished {
			continue
		}
		if gap := other.pos - st.pos; gap > 0 && gap < gapAhead {
			gapAhead = gap
		}
	}
	slipstreaming := gapAhead > slipMinGap && gapAhead <= slipRange
	if slipstreaming {
		drag *= slipDragMult
		if !st.slipping {
			res.Events = append(res.Events, Event{
				T: t, HorseID: st.horse.ID, Kind: EventSlip,
				Magnitude: 1 - slipDragMult, Note: "slipstream",
			})
		}
	}
	st.slipping = slipstreaming

	// 5. Stochastic events, Poisson rates converted to per-tick probability.
	dev := (st.v - vTarget) / math.Max(vTarget, 1e-9)
	instability := float64(100-st.horse.Stats.Stability) / 100

	stumbleHazard := stumbleRate * (0.5 + 1.5*instability) * (1 + math.Max(0, dev)*1.5)
	if st.stumbled {
		stumbleHazard *= stumbleChainMult
	}
	stumbledNow := false
	if st.rs.Chance(tickProb(stumbleHazard)) {
		mult := st.rs.Range(0.82, 0.93)
		st.v *= mult
		power *= 0.3
		stumbledNow = true
		res.Events = append(res.Events, Event{
			T: t, HorseID: st.horse.ID, Kind: EventStumble,
			Magnitude: 1 - mult, Note: "stumbled",
		})
	}

	boostHazard := boostRate * st.traits.Luck * (1 + math.Max(0, -dev)*1.5)
	if st.rs.Chance(tickProb(boostHazard)) {
		mult := st.rs.Range(1.03, 1.08)
		st.v *= mult
		power *= 1.5
		res.Events = append(res.Events, Event{
			T: t, HorseID: st.horse.ID, Kind: EventBoost,
			Magnitude: mult - 1, Note: "surge",
		})
	}

	if gapAhead <= contactRange {
		if st.rs.Chance(tickProb(contactRate)) {
			mult := st.rs.Range(0.93, 0.98)
			st.v *= mult
			res.Events = append(res.Events, Event{
				T: t, HorseID: st.horse.ID, Kind: EventContact,
				Magnitude: 1 - mult, Note: "bumped in traffic",
			})
		}
	}
	st.stumbled = stumbledNow

	// 6. Corner braking against the safe cornering speed.
	brake := 0.0
	if inCorner {
		latCap := latAccelBase *
			(0.4 + 0.6*float64(st.horse.Stats.Cornering)/100) *
			(0.7 + 0.3*float64(st.horse.Stats.Stability)/100) /
			(1 + 0.25*st.heat)
		vSafe := math.Sqrt(math.Max(latCap*track.CornerRadius, 1e-9))
		if excess := (st.v - vSafe) / vSafe; excess > 0 {
			brake = cornerBrakeK * excess * excess
			if excess > cornerMissEdge {
				st.v *= cornerMissSlow
				st.heat += cornerMissHeat
				res.Events = append(res.Events, Event{
					T: t, HorseID: st.horse.ID, Kind: EventCornerMiss,
					Magnitude: excess, Note: "ran wide",
				})
			}
		}
	}

	// 8. Heat cap throttle.
	heatCap := heatCapBase * st.traits.HeatResist
	if st.heat > heatCap {
		power *= heatCapThrottle
		if !st.overheated {
			st.overheated = true
			res.Events = append(res.Events, Event{
				T: t, HorseID: st.horse.ID, Kind: EventHeatCap,
				Magnitude: st.heat - heatCap, Note: "overheated",
			})
		}
	} else if st.heat < heatCap*0.95 {
		st.overheated = false
	}

	// 9. Energy and heat accumulation with passive recovery.
	cornerFlag := 0.0
	if inCorner {
		cornerFlag = 1.0
	}
	staminaEff := 0.75 + 0.5*float64(st.horse.Stats.Stamina)/100
	speedFrac := st.v / math.Max(st.vmax, 1e-9)

	drain := (energyDrainBase*speedFrac + energyDrainCorner*cornerFlag + energyDrainOD*od) / staminaEff
	heatGain := heatGainSpeed*speedFrac*speedFrac + heatGainCorner*cornerFlag + heatGainOD*od
	if slipstreaming {
		heatGain += slipHeatRate
	}
	if st.v < recoverSpeedFrac*vTarget {
		drain *= recoverDrainMult
		heatGain *= 0.5
		st.energy += st.traits.RecoverRate * recoverEnergyRate * DT
	}
	st.energy = clamp(st.energy-drain*DT, 0, 1)
	st.heat = math.Max(0, st.heat+heatGain*DT-heatDecayRate*st.heat*DT)

	// 10. Integrate.
	accel := power - drag - brake - slopeAccelK*grade
	st.v += accel * DT
	if st.v < 0 {
		st.v = 0
	}
	stepDist := st.v * DT
	st.pos += stepDist

	if st.pos >= total {
		overshoot := st.pos - total
		frac := 0.0
		if stepDist > 0 {
			frac = clamp(overshoot/stepDist, 0, 1)
		}
		st.finished = true
		st.finishTime = t + DT*(1-frac)
		st.pos = total
	}
}

// targetSpeed is the tactic-dependent pacing target: front-runners fade late,
// closers build to a late surge.
func targetSpeed(st *runner, raceFrac float64) float64 {
	switch st.traits.Tactic {
	case TacticFront:
		return st.vmax * (1.04 - 0.14*raceFrac)
	case TacticCloser:
		return st.vmax * (0.86 + 0.20*raceFrac)
	default: // stalker
		return st.vmax * 0.94
	}
}

// overdrive is a smoothed ramp active only in the race's final ~30%, gated by
// stamina and remaining energy.
func overdrive(st *runner, raceFrac float64) float64 {
	ramp := sigmoid((raceFrac - overdriveCenter) * overdriveSharp)
	staminaGate := clamp((float64(st.horse.Stats.Stamina)-40)/60, 0, 1)
	energyGate := clamp((st.energy-0.25)/0.3, 0, 1)
	return ramp * staminaGate * energyGate
}

func snapshot(t float64, runners []*runner) Frame {
	f := Frame{
		T:         t,
		Positions: make([]float64, len(runners)),
		Speeds:    make([]float64, len(runners)),
		Energy:    make([]float64, len(runners)),
		Heat:      make([]float64, len(runners)),
	}
	for i, r := range runners {
		f.Positions[i] = r.pos
		f.Speeds[i] = r.v
		f.Energy[i] = r.energy
		f.Heat[i] = r.heat
	}
	return f
}

// tickProb converts a per-second Poisson rate to a per-tick probability.
func tickProb(rate float64) float64 {
	return 1 - math.Exp(-rate*DT)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
