package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/classlab/probsim/internal/bias"
	"github.com/classlab/probsim/internal/games"
	"github.com/classlab/probsim/internal/race"
	"github.com/classlab/probsim/internal/session"
	"github.com/classlab/probsim/internal/store"
)

// handleListGames returns the registered game specs.
func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"games": games.List()})
}

// handleCreateSession commits a bet: validates limits, enforces the single
// in-flight invariant and, for horse, previews the field and odds derived
// from the fresh round seed.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON body")
		return
	}
	if req.UserID == "" {
		s.errorHandler.HandleValidationError(w, r, "user_id", "user_id is required")
		return
	}
	if _, ok := games.Get(req.GameID); !ok {
		s.writeError(w, r, http.StatusNotFound, ErrTypeGameNotFound, "unknown game "+req.GameID)
		return
	}
	if lim, ok := s.tables.Limits[req.GameID]; ok {
		if req.Bet < lim.Min {
			s.errorHandler.HandleValidationError(w, r, "bet", "bet below minimum")
			return
		}
		if lim.Max > 0 && req.Bet > lim.Max {
			s.errorHandler.HandleValidationError(w, r, "bet", "bet above maximum")
			return
		}
	} else if req.Bet < 1 {
		s.errorHandler.HandleValidationError(w, r, "bet", "bet must be positive")
		return
	}

	if err := s.db.EnsureUser(req.UserID, s.initialBalance); err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	bet := decimal.NewFromInt(req.Bet)
	balance, err := s.db.Balance(req.UserID)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	if balance.LessThan(bet) {
		s.errorHandler.HandleValidationError(w, r, "bet", "insufficient balance")
		return
	}

	seed, err := newRoundSeed()
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	trackKey := req.TrackKey
	if req.GameID == "horse" && trackKey == "" {
		trackKey = "oval"
	}

	now := time.Now()
	sess := session.Session{
		Key:       session.NewKey(),
		UserID:    req.UserID,
		GameID:    req.GameID,
		Bet:       bet,
		BetChoice: req.BetChoice,
		TrackKey:  trackKey,
		Seed:      seed,
		CreatedAt: now,
		LastBeat:  now,
		State:     session.StatePending,
	}
	if err := s.sessions.Put(sess); err == session.ErrInFlight {
		s.writeError(w, r, http.StatusConflict, ErrTypeConflict, "a session for this game is already in flight")
		return
	} else if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	if err := s.db.SaveSession(&store.SessionRecord{
		Key:       sess.Key,
		UserID:    sess.UserID,
		GameID:    sess.GameID,
		Bet:       sess.Bet,
		BetChoice: sess.BetChoice,
		Seed:      sess.Seed,
		Status:    store.SessionPending,
		CreatedAt: now,
	}); err != nil {
		s.sessions.Delete(sess.Key)
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := SessionResponse{
		SessionKey: sess.Key,
		GameID:     sess.GameID,
		Bet:        req.Bet,
		BetChoice:  sess.BetChoice,
		Balance:    &balance,
	}
	if req.GameID == "horse" {
		horses := race.GenerateHorses(seed)
		odds, err := race.WinOdds(horses, trackKey, seed, s.tables.Horse.Sims, s.tables.Horse.HouseEdge)
		if err != nil {
			s.sessions.Delete(sess.Key)
			s.errorHandler.HandleValidationError(w, r, "track_key", err.Error())
			return
		}
		resp.Horses = horses
		resp.Odds = odds.DisplayOdds
		resp.TrackKey = trackKey
	}

	s.writeJSON(w, http.StatusCreated, resp)
}

// handleVerifySession confirms a session key without consuming it.
func (s *Server) handleVerifySession(w http.ResponseWriter, r *http.Request) {
	var req VerifySessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON body")
		return
	}
	sess, ok := s.sessions.Get(req.SessionKey)
	if !ok || sess.State != session.StatePending {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, SessionResponse{
		SessionKey: sess.Key,
		GameID:     sess.GameID,
		Bet:        sess.Bet.IntPart(),
		BetChoice:  sess.BetChoice,
		TrackKey:   sess.TrackKey,
	})
}

// handleHeartbeat keeps a pending session alive.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.sessions.Heartbeat(key, time.Now()); err != nil {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePlay resolves a committed session through the full pipeline and
// returns the settled round.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game")

	var req PlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON body")
		return
	}

	// Claim the session before touching the ledger: concurrent resolves of
	// the same key race to exactly one winner, and the sweeper cannot forfeit
	// a claimed session.
	sess, err := s.sessions.Resolve(req.SessionKey)
	if err == session.ErrNotPending {
		s.writeError(w, r, http.StatusConflict, ErrTypeConflict, "session is already being resolved")
		return
	} else if err != nil {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "session not found")
		return
	}
	if req.UserID != "" && req.UserID != sess.UserID {
		s.sessions.Release(sess.Key, time.Now())
		s.writeError(w, r, http.StatusConflict, ErrTypeConflict, "session belongs to another user")
		return
	}
	if sess.GameID != gameID {
		s.sessions.Release(sess.Key, time.Now())
		s.errorHandler.HandleValidationError(w, r, "game", "session belongs to a different game")
		return
	}

	round, err := s.resolveRound(sess, req.Guesses, req.Choice)
	if err != nil {
		// The claim is released so a corrected request can retry the round.
		s.sessions.Release(sess.Key, time.Now())
		if engineErr, ok := err.(EngineError); ok {
			status := http.StatusBadRequest
			if engineErr.Type == ErrTypeGameNotFound {
				status = http.StatusNotFound
			}
			s.errorHandler.HandleError(w, r, engineErr, status)
			return
		}
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	// The session is consumed win or lose.
	s.sessions.Delete(sess.Key)

	s.writeJSON(w, http.StatusOK, PlayResponse{
		SessionKey: sess.Key,
		GameID:     sess.GameID,
		Result:     string(round.outcome.Result),
		Multiplier: round.outcome.Multiplier,
		Bet:        sess.Bet,
		Payout:     round.payout,
		Balance:    round.balance,
		Detail:     round.detail,
		ResultID:   round.resultID,
	})
}

// handleListSessions returns the archived session ledger, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.db.ListSessions(limit)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": records})
}

// handleHorseHistory lists settled horse rounds.
func (s *Server) handleHorseHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := s.db.ListResults(store.ResultsQuery{GameID: "horse", Limit: limit})
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, ResultsResponse{Results: results})
}

// handleHorseReplay returns the stored race record for one result.
func (s *Server) handleHorseReplay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.db.GetResult(id)
	if err == store.ErrNotFound {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "replay not found")
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	if res.GameID != "horse" {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "result is not a horse round")
		return
	}
	s.writeReplay(w, r, res)
}

// handleHorseReplayBySeed returns the most recent race for a seed, so a
// round can be verified from the seed alone.
func (s *Server) handleHorseReplayBySeed(w http.ResponseWriter, r *http.Request) {
	seed, err := strconv.ParseInt(chi.URLParam(r, "seed"), 10, 64)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "seed", "seed must be an integer")
		return
	}
	res, err := s.db.ResultBySeed("horse", seed)
	if err == store.ErrNotFound {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "replay not found")
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeReplay(w, r, res)
}

func (s *Server) writeReplay(w http.ResponseWriter, r *http.Request, res *store.GameResult) {
	var detail games.HorseDetail
	if err := json.Unmarshal([]byte(res.Detail), &detail); err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"result_id": res.ID,
		"bet":       res.Bet,
		"payout":    res.Payout,
		"result":    res.Result,
		"race":      detail,
	})
}

// handleGetSettings returns per-game bias settings, defaults filling any
// game without a stored row.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	stored, err := s.db.AllSettings()
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	byGame := make(map[string]bias.GameSettings, len(stored))
	for _, gs := range stored {
		byGame[gs.GameID] = gs
	}

	var all []bias.GameSettings
	for _, spec := range games.List() {
		if gs, ok := byGame[spec.ID]; ok {
			all = append(all, gs)
		} else {
			all = append(all, bias.DefaultGameSettings(spec.ID))
		}
	}
	s.writeJSON(w, http.StatusOK, SettingsResponse{Settings: all})
}

// handleSaveSettings upserts per-game bias settings.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON body")
		return
	}
	for _, gs := range req.Settings {
		if _, ok := games.Get(gs.GameID); !ok {
			s.errorHandler.HandleValidationError(w, r, "game_id", "unknown game "+gs.GameID)
			return
		}
		if gs.CasinoAdvantagePercent < 0 || gs.CasinoAdvantagePercent > 100 ||
			gs.PlayerAdvantagePercent < 0 || gs.PlayerAdvantagePercent > 100 {
			s.errorHandler.HandleValidationError(w, r, "advantage_percent", "percent outside [0, 100]")
			return
		}
		if err := s.db.SaveSettings(gs); err != nil {
			s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleResults lists settled rounds with optional user/game filters.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	results, err := s.db.ListResults(store.ResultsQuery{
		UserID: q.Get("user_id"),
		GameID: q.Get("game_id"),
		Limit:  limit,
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, ResultsResponse{Results: results})
}

// handleCreateAdjustment applies a manual balance correction.
func (s *Server) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON body")
		return
	}
	if req.UserID == "" {
		s.errorHandler.HandleValidationError(w, r, "user_id", "user_id is required")
		return
	}
	if req.Amount == 0 {
		s.errorHandler.HandleValidationError(w, r, "amount", "amount must be non-zero")
		return
	}
	if err := s.db.EnsureUser(req.UserID, s.initialBalance); err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	adj := &store.Adjustment{
		UserID: req.UserID,
		Amount: decimal.NewFromInt(req.Amount),
		Reason: req.Reason,
	}
	if err := s.db.SaveAdjustment(adj); err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusCreated, adj)
}

// handleListAdjustments lists corrections, optionally for one user.
func (s *Server) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	list, err := s.db.ListAdjustments(q.Get("user_id"), limit)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"adjustments": list})
}

// handleDeleteAdjustments removes a user's correction history.
func (s *Server) handleDeleteAdjustments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.errorHandler.HandleValidationError(w, r, "user_id", "user_id is required")
		return
	}
	if err := s.db.DeleteAdjustments(userID); err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReset wipes gameplay data.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Reset(); err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.logger.Printf("data_reset requested_by=%s", r.RemoteAddr)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
