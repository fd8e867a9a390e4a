package api

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/classlab/probsim/internal/bias"
	"github.com/classlab/probsim/internal/games"
	"github.com/classlab/probsim/internal/rng"
	"github.com/classlab/probsim/internal/session"
	"github.com/classlab/probsim/internal/store"
)

// biasHistoryDepth bounds the recent-results sample feeding streak and RTP.
const biasHistoryDepth = 50

// newRoundSeed draws a fresh seed for one round. The seed is recorded with
// the result so seeded games replay exactly.
func newRoundSeed() (int64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("draw round seed: %w", err)
	}
	seed := int64(binary.BigEndian.Uint64(buf[:]))
	if seed < 0 {
		seed = -seed
	}
	return seed, nil
}

// settledRound is the outcome of the full resolution pipeline for one
// session.
type settledRound struct {
	outcome  games.Outcome
	detail   interface{}
	payout   decimal.Decimal
	ruleID   string
	resultID string
	balance  decimal.Decimal
}

// resolveRound runs the pipeline: raw resolve, bias, reconciliation,
// jackpot, settlement. The session is consumed regardless of bias.
func (s *Server) resolveRound(sess session.Session, guesses []int, choice string) (*settledRound, error) {
	if choice == "" {
		choice = sess.BetChoice
	}

	params := games.Params{
		Bet:      sess.Bet,
		Choice:   choice,
		Guesses:  guesses,
		Seed:     sess.Seed,
		TrackKey: sess.TrackKey,
		Tables:   s.tables,
	}

	g, ok := games.Get(sess.GameID)
	if !ok {
		return nil, NewError(ErrTypeGameNotFound, "unknown game").
			WithContext("game", sess.GameID).Build()
	}

	raw, err := g.Resolve(params, rng.New(sess.Seed, "game:"+sess.GameID))
	if err != nil {
		return nil, NewError(ErrTypeValidation, err.Error()).Build()
	}

	outcome, ruleID := s.applyBias(sess, params, raw, choice)

	payout, outcome, err := s.applyJackpot(sess, outcome)
	if err != nil {
		return nil, err
	}

	detailJSON, err := json.Marshal(outcome.Detail)
	if err != nil {
		return nil, fmt.Errorf("marshal detail: %w", err)
	}

	res := &store.GameResult{
		UserID:     sess.UserID,
		GameID:     sess.GameID,
		SessionKey: sess.Key,
		Bet:        sess.Bet,
		BetChoice:  choice,
		Result:     string(outcome.Result),
		Multiplier: outcome.Multiplier,
		Payout:     payout,
		Detail:     string(detailJSON),
		Seed:       sess.Seed,
		RuleID:     ruleID,
	}
	if err := s.db.Settle(res); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	if err := s.db.UpdateSessionStatus(sess.Key, store.SessionSettled); err != nil {
		s.logger.Printf("session_archive_update_failed session=%s err=%v", sess.Key, err)
	}

	return &settledRound{
		outcome:  outcome,
		detail:   outcome.Detail,
		payout:   payout,
		ruleID:   ruleID,
		resultID: res.ID,
		balance:  res.AfterBalance,
	}, nil
}

// applyBias evaluates explicit rules plus settings-derived rules against the
// raw outcome and reconciles the detail when a rule fires. Reconciliation
// failure falls back to the raw outcome.
func (s *Server) applyBias(sess session.Session, params games.Params, raw games.Outcome, choice string) (games.Outcome, string) {
	// Horse settles strictly on the simulated race; the house edge lives in
	// the quoted odds instead.
	if sess.GameID == "horse" {
		return raw, ""
	}

	rules := s.rules
	if settings, err := s.db.AllSettings(); err == nil && len(settings) > 0 {
		rules = append(append([]bias.Rule{}, rules...), bias.RulesFromSettings(settings)...)
	}
	if len(rules) == 0 {
		return raw, ""
	}

	ctx := bias.Context{BetChoice: choice}
	if recent, err := s.db.RecentResults(sess.UserID, sess.GameID, biasHistoryDepth); err == nil {
		h := store.HistoryFromResults(recent)
		ctx.Streak = h.Streak
		ctx.RTP = h.RTP
		ctx.HasRTP = h.HasRTP
	}

	overridden, rule := s.engine.Apply(sess.GameID, sess.Bet, raw, rules, ctx, rng.New(sess.Seed, "bias:"+sess.GameID))
	if rule == nil {
		return raw, ""
	}

	reconciled, err := games.Reconcile(sess.GameID, overridden, params, rng.New(sess.Seed, "reconcile:"+sess.GameID))
	if err != nil {
		s.logger.Printf("reconcile_failed game=%s rule=%s err=%v", sess.GameID, rule.ID, err)
		return raw, ""
	}

	// The jackpot side draw is independent of forcing: keep the raw draw.
	if sd, ok := reconciled.Detail.(games.SlotDetail); ok {
		if rawSd, ok := raw.Detail.(games.SlotDetail); ok {
			sd.JackpotHit = rawSd.JackpotHit
			sd.JackpotContribution = rawSd.JackpotContribution
			reconciled.Detail = sd
		}
	}

	s.logger.Printf("bias_applied game=%s rule=%s direction=%s raw=%s final=%s",
		sess.GameID, rule.ID, rule.Direction, raw.Result, reconciled.Result)
	return reconciled, rule.ID
}

// applyJackpot folds the slot jackpot pool into the payout: every spin adds
// its contribution, and a hit pays the whole pool before it resets to the
// configured seed amount.
func (s *Server) applyJackpot(sess session.Session, outcome games.Outcome) (decimal.Decimal, games.Outcome, error) {
	payout := sess.Bet.Mul(decimal.NewFromFloat(outcome.Multiplier))

	sd, ok := outcome.Detail.(games.SlotDetail)
	if !ok || !s.tables.Slot.Jackpot.Enabled {
		return payout, outcome, nil
	}

	pool, err := s.db.JackpotPool()
	if err != nil {
		return payout, outcome, fmt.Errorf("jackpot pool: %w", err)
	}
	pool = pool.Add(sd.JackpotContribution)

	if sd.JackpotHit {
		prize, err := games.JackpotPayout(pool)
		if err != nil {
			return payout, outcome, err
		}
		payout = payout.Add(prize)
		pool = decimal.NewFromFloat(s.tables.Slot.Jackpot.SeedAmount)
		s.logger.Printf("jackpot_hit user=%s prize=%s", sess.UserID, prize)
	}
	if err := s.db.SetJackpotPool(pool); err != nil {
		return payout, outcome, fmt.Errorf("jackpot pool: %w", err)
	}
	return payout, outcome, nil
}

// RunSweeper forfeits sessions that stopped heartbeating, settling each as a
// loss. It blocks until the context is cancelled.
func (s *Server) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, sess := range s.sessions.Sweep(now, s.heartbeatWindow) {
				s.forfeit(sess)
			}
		}
	}
}

// forfeit settles an abandoned session as a loss of the committed bet.
func (s *Server) forfeit(sess session.Session) {
	res := &store.GameResult{
		UserID:     sess.UserID,
		GameID:     sess.GameID,
		SessionKey: sess.Key,
		Bet:        sess.Bet,
		BetChoice:  sess.BetChoice,
		Result:     string(games.ResultLose),
		Multiplier: 0,
		Payout:     decimal.Zero,
		Detail:     `{"forfeited":true}`,
		Seed:       sess.Seed,
	}
	if err := s.db.Settle(res); err != nil {
		s.logger.Printf("forfeit_failed session=%s user=%s err=%v", sess.Key, sess.UserID, err)
		return
	}
	if err := s.db.UpdateSessionStatus(sess.Key, store.SessionForfeited); err != nil {
		s.logger.Printf("session_archive_update_failed session=%s err=%v", sess.Key, err)
	}
	s.logger.Printf("session_forfeited session=%s user=%s game=%s bet=%s",
		sess.Key, sess.UserID, sess.GameID, sess.Bet)
}
