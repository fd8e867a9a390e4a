package bias

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/classlab/probsim/internal/games"
	"github.com/classlab/probsim/internal/rng"
)

// Direction states who a rule favors when it fires.
type Direction string

const (
	DirectionHouse  Direction = "house"
	DirectionPlayer Direction = "player"
)

// defaultForceMultiplier is the payout floor for a player-favoring flip when
// the rule does not set its own.
const defaultForceMultiplier = 2.0

// Rule is one outcome-bias policy. All matching fields are optional filters;
// a zero value means "no constraint". ForceMultiplier is a payout floor for
// player flips, not an exact override.
type Rule struct {
	ID          string    `yaml:"id"`
	Enabled     bool      `yaml:"enabled"`
	Direction   Direction `yaml:"direction"`
	Probability float64   `yaml:"probability"`
	Games       []string  `yaml:"games"`
	Priority    int       `yaml:"priority"`

	MinBet    int64  `yaml:"min_bet"`
	MaxBet    int64  `yaml:"max_bet"`
	BetChoice string `yaml:"bet_choice"`

	WinStreak  int `yaml:"win_streak"`
	LoseStreak int `yaml:"lose_streak"`

	RTPTarget    float64 `yaml:"rtp_target"`
	RTPDirection string  `yaml:"rtp_direction"` // "above" or "below"

	CooldownSec     int     `yaml:"cooldown_sec"`
	ForceMultiplier float64 `yaml:"force_multiplier"`

	// Expr is an optional boolean expression over {bet, streak, rtp, choice}.
	Expr string `yaml:"expr"`
}

// Context is the player history snapshot a rule can match against. Streak is
// positive for consecutive wins, negative for consecutive losses. HasRTP is
// false when the player has no settled rounds yet.
type Context struct {
	Streak    int
	RTP       float64
	HasRTP    bool
	BetChoice string
}

// Engine evaluates bias rules against raw outcomes. The cooldown table is the
// only mutable state; everything else is computed per call.
type Engine struct {
	logger *log.Logger
	exprs  *exprCache

	mu        sync.Mutex
	lastFired map[string]time.Time

	now func() time.Time
}

// NewEngine returns a ready engine. The logger receives expression
// evaluation failures.
func NewEngine(logger *log.Logger) *Engine {
	return &Engine{
		logger:    logger,
		exprs:     newExprCache(),
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Apply evaluates the rule set against a raw outcome and returns the possibly
// overridden outcome plus the rule that fired, or nil when none did. Rules
// are tried in descending priority order and the first hit wins; a hit stamps
// the rule's cooldown.
func (e *Engine) Apply(gameID string, bet decimal.Decimal, raw games.Outcome, rules []Rule, ctx Context, rs *rng.Stream) (games.Outcome, *Rule) {
	if len(rules) == 0 {
		return raw, nil
	}

	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	now := e.now()
	for i := range ordered {
		r := &ordered[i]
		if !e.applicable(r, gameID, bet, raw, ctx, now) {
			continue
		}
		if !rs.Chance(r.Probability) {
			continue
		}

		e.stamp(r.ID, now)
		return flip(raw, r), r
	}
	return raw, nil
}

// applicable is a total function over the rule's filters: every reason to
// skip falls through to false, including expression evaluation errors.
func (e *Engine) applicable(r *Rule, gameID string, bet decimal.Decimal, raw games.Outcome, ctx Context, now time.Time) bool {
	if !r.Enabled || r.Probability <= 0 {
		return false
	}

	// A rule can only flip the result it targets.
	switch r.Direction {
	case DirectionHouse:
		if raw.Result != games.ResultWin {
			return false
		}
	case DirectionPlayer:
		if raw.Result != games.ResultLose {
			return false
		}
	default:
		return false
	}

	if len(r.Games) > 0 && !contains(r.Games, gameID) {
		return false
	}
	if r.MinBet > 0 && bet.LessThan(decimal.NewFromInt(r.MinBet)) {
		return false
	}
	if r.MaxBet > 0 && bet.GreaterThan(decimal.NewFromInt(r.MaxBet)) {
		return false
	}
	if r.BetChoice != "" && r.BetChoice != ctx.BetChoice {
		return false
	}
	if r.WinStreak > 0 && ctx.Streak < r.WinStreak {
		return false
	}
	if r.LoseStreak > 0 && -ctx.Streak < r.LoseStreak {
		return false
	}
	if r.RTPDirection != "" {
		if !ctx.HasRTP {
			return false
		}
		switch r.RTPDirection {
		case "above":
			if ctx.RTP <= r.RTPTarget {
				return false
			}
		case "below":
			if ctx.RTP >= r.RTPTarget {
				return false
			}
		default:
			return false
		}
	}
	if r.CooldownSec > 0 && e.coolingDown(r.ID, now, time.Duration(r.CooldownSec)*time.Second) {
		return false
	}
	if r.Expr != "" {
		ok, err := e.exprs.eval(r.Expr, exprEnv{
			Bet:    bet.InexactFloat64(),
			Streak: ctx.Streak,
			RTP:    ctx.RTP,
			Choice: ctx.BetChoice,
		})
		if err != nil {
			e.logger.Printf("bias: rule %s expr error: %v", r.ID, err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// flip overrides the raw outcome in the rule's direction. The detail is left
// untouched; reconciliation regenerates it downstream.
func flip(raw games.Outcome, r *Rule) games.Outcome {
	if r.Direction == DirectionHouse {
		return games.Outcome{Result: games.ResultLose, Multiplier: 0, Detail: raw.Detail}
	}

	floor := r.ForceMultiplier
	if floor <= 0 {
		floor = defaultForceMultiplier
	}
	mult := raw.Multiplier
	if floor > mult {
		mult = floor
	}
	return games.Outcome{Result: games.ResultWin, Multiplier: mult, Detail: raw.Detail}
}

func (e *Engine) coolingDown(ruleID string, now time.Time, d time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastFired[ruleID]
	return ok && now.Sub(last) < d
}

func (e *Engine) stamp(ruleID string, now time.Time) {
	e.mu.Lock()
	e.lastFired[ruleID] = now
	e.mu.Unlock()
}

func contains(vals []string, v string) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}
