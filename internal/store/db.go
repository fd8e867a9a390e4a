package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/classlab/probsim/internal/bias"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// DB represents the persistence interface
type DB interface {
	Close() error
	Migrate() error

	EnsureUser(id string, initial decimal.Decimal) error
	Balance(userID string) (decimal.Decimal, error)

	SaveSession(rec *SessionRecord) error
	UpdateSessionStatus(key, status string) error
	ListSessions(limit int) ([]SessionRecord, error)

	Settle(res *GameResult) error
	GetResult(id string) (*GameResult, error)
	ListResults(query ResultsQuery) ([]GameResult, error)
	RecentResults(userID, gameID string, limit int) ([]GameResult, error)
	ResultBySeed(gameID string, seed int64) (*GameResult, error)

	SaveAdjustment(adj *Adjustment) error
	ListAdjustments(userID string, limit int) ([]Adjustment, error)
	DeleteAdjustments(userID string) error

	GetSettings(gameID string) (bias.GameSettings, error)
	AllSettings() ([]bias.GameSettings, error)
	SaveSettings(s bias.GameSettings) error

	JackpotPool() (decimal.Decimal, error)
	SetJackpotPool(pool decimal.Decimal) error

	Reset() error
}

// Session lifecycle states as recorded in the archive.
const (
	SessionPending   = "pending"
	SessionSettled   = "settled"
	SessionForfeited = "forfeited"
)

// SessionRecord is the audit row for one committed bet. The live in-flight
// lock is process state; this archive is what survives a restart.
type SessionRecord struct {
	Key       string          `json:"session_key"`
	UserID    string          `json:"user_id"`
	GameID    string          `json:"game_id"`
	Bet       decimal.Decimal `json:"bet"`
	BetChoice string          `json:"bet_choice,omitempty"`
	Seed      int64           `json:"seed"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// GameResult is one settled round. Before/After balances are captured inside
// the settlement transaction; Detail is the game's explanation serialized to
// JSON. Seed reproduces seeded games (horse) exactly.
type GameResult struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	GameID        string          `json:"game_id"`
	SessionKey    string          `json:"session_key"`
	Bet           decimal.Decimal `json:"bet"`
	BetChoice     string          `json:"bet_choice"`
	Result        string          `json:"result"`
	Multiplier    float64         `json:"multiplier"`
	Payout        decimal.Decimal `json:"payout"`
	BeforeBalance decimal.Decimal `json:"before_balance"`
	AfterBalance  decimal.Decimal `json:"after_balance"`
	Detail        string          `json:"detail"`
	Seed          int64           `json:"seed"`
	RuleID        string          `json:"rule_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ResultsQuery filters and bounds a results listing.
type ResultsQuery struct {
	UserID string `json:"user_id,omitempty"`
	GameID string `json:"game_id,omitempty"`
	Limit  int    `json:"limit"`
}

// Adjustment is a manual balance correction outside gameplay.
type Adjustment struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

// History summarizes a user's recent rounds for bias context.
type History struct {
	// Streak is positive for consecutive wins, negative for consecutive
	// losses, counted from the most recent round backwards. Ties break the
	// streak.
	Streak int
	// RTP is total payout over total bet across the sampled rounds.
	RTP    float64
	HasRTP bool
}

// HistoryFromResults derives the bias context from a recent-first result
// slice.
func HistoryFromResults(results []GameResult) History {
	var h History

	for _, r := range results {
		switch r.Result {
		case "win":
			if h.Streak < 0 {
				return historyWithRTP(h, results)
			}
			h.Streak++
		case "lose":
			if h.Streak > 0 {
				return historyWithRTP(h, results)
			}
			h.Streak--
		default:
			return historyWithRTP(h, results)
		}
	}
	return historyWithRTP(h, results)
}

func historyWithRTP(h History, results []GameResult) History {
	totalBet := decimal.Zero
	totalPayout := decimal.Zero
	for _, r := range results {
		totalBet = totalBet.Add(r.Bet)
		totalPayout = totalPayout.Add(r.Payout)
	}
	if totalBet.IsPositive() {
		h.RTP = totalPayout.Div(totalBet).InexactFloat64()
		h.HasRTP = true
	}
	return h
}
