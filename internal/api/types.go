package api

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/classlab/probsim/internal/bias"
	"github.com/classlab/probsim/internal/race"
	"github.com/classlab/probsim/internal/store"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

func (e EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Error types
const (
	ErrTypeValidation   = "validation_error"
	ErrTypeGameNotFound = "game_not_found"
	ErrTypeNotFound     = "not_found"
	ErrTypeConflict     = "session_conflict"
	ErrTypeInternal     = "internal_error"
	ErrTypeTimeout      = "timeout"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeConflict:
		return CategoryValidation
	case ErrTypeGameNotFound, ErrTypeNotFound:
		return CategoryGame
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// CreateSessionRequest commits a bet for one round of a game.
type CreateSessionRequest struct {
	UserID    string `json:"user_id"`
	GameID    string `json:"game_id"`
	Bet       int64  `json:"bet"`
	BetChoice string `json:"bet_choice,omitempty"`
	TrackKey  string `json:"track_key,omitempty"`
}

// SessionResponse is returned on session creation and verification. For
// horse sessions the field and quoted odds are included so the bettor can
// inspect them before playing.
type SessionResponse struct {
	SessionKey string           `json:"session_key"`
	GameID     string           `json:"game_id"`
	Bet        int64            `json:"bet"`
	BetChoice  string           `json:"bet_choice,omitempty"`
	Horses     []race.Horse     `json:"horses,omitempty"`
	Odds       []float64        `json:"odds,omitempty"`
	TrackKey   string           `json:"track_key,omitempty"`
	Balance    *decimal.Decimal `json:"balance,omitempty"`
}

// VerifySessionRequest checks a session key before play.
type VerifySessionRequest struct {
	SessionKey string `json:"session_key"`
}

// PlayRequest resolves a committed session. UserID is optional; when set it
// must match the session's owner.
type PlayRequest struct {
	SessionKey string `json:"session_key"`
	UserID     string `json:"user_id,omitempty"`
	Guesses    []int  `json:"guesses,omitempty"`
	Choice     string `json:"choice,omitempty"`
}

// PlayResponse is the settled round.
type PlayResponse struct {
	SessionKey string          `json:"session_key"`
	GameID     string          `json:"game_id"`
	Result     string          `json:"result"`
	Multiplier float64         `json:"multiplier"`
	Bet        decimal.Decimal `json:"bet"`
	Payout     decimal.Decimal `json:"payout"`
	Balance    decimal.Decimal `json:"balance"`
	Detail     interface{}     `json:"detail"`
	ResultID   string          `json:"result_id"`
}

// AdjustmentRequest applies a manual balance correction.
type AdjustmentRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// SettingsResponse lists per-game bias settings.
type SettingsResponse struct {
	Settings []bias.GameSettings `json:"settings"`
}

// ResultsResponse lists settled rounds.
type ResultsResponse struct {
	Results []store.GameResult `json:"results"`
}
