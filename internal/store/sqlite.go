package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/classlab/probsim/internal/bias"
)

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations. Monetary amounts are stored as exact
// decimal strings, never floats.
func (s *SQLiteDB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			balance TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS game_results (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			game_id TEXT NOT NULL,
			session_key TEXT NOT NULL,
			bet TEXT NOT NULL,
			bet_choice TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL,
			multiplier REAL NOT NULL,
			payout TEXT NOT NULL,
			before_balance TEXT NOT NULL,
			after_balance TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '{}',
			seed INTEGER NOT NULL DEFAULT 0,
			rule_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_user_game ON game_results(user_id, game_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created_at ON game_results(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_results_game_seed ON game_results(game_id, seed)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_key TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			game_id TEXT NOT NULL,
			bet TEXT NOT NULL,
			bet_choice TEXT NOT NULL DEFAULT '',
			seed INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS financial_adjustments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_adjustments_user ON financial_adjustments(user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS game_settings (
			game_id TEXT PRIMARY KEY,
			risk_enabled INTEGER NOT NULL DEFAULT 1,
			risk_threshold INTEGER NOT NULL DEFAULT 1000,
			casino_advantage_percent REAL NOT NULL DEFAULT 15.0,
			assist_enabled INTEGER NOT NULL DEFAULT 0,
			assist_max_bet INTEGER NOT NULL DEFAULT 50,
			player_advantage_percent REAL NOT NULL DEFAULT 0.0
		)`,
		`CREATE TABLE IF NOT EXISTS jackpot (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			pool TEXT NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	if _, err := s.db.Exec(`INSERT OR IGNORE INTO jackpot (id, pool) VALUES (1, '0')`); err != nil {
		return fmt.Errorf("jackpot seed failed: %w", err)
	}
	return nil
}

// EnsureUser creates the user row with an initial balance if it is missing.
func (s *SQLiteDB) EnsureUser(id string, initial decimal.Decimal) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO users (id, balance) VALUES (?, ?)`,
		id, initial.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// Balance returns a user's current balance.
func (s *SQLiteDB) Balance(userID string) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRow(`SELECT balance FROM users WHERE id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return parseAmount(raw)
}

// SaveSession records a committed bet in the session archive.
func (s *SQLiteDB) SaveSession(rec *SessionRecord) error {
	if rec.Status == "" {
		rec.Status = SessionPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_key, user_id, game_id, bet, bet_choice, seed, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Key, rec.UserID, rec.GameID, rec.Bet.String(), rec.BetChoice,
		rec.Seed, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// UpdateSessionStatus moves an archived session through its lifecycle.
func (s *SQLiteDB) UpdateSessionStatus(key, status string) error {
	res, err := s.db.Exec(`UPDATE sessions SET status = ? WHERE session_key = ?`, status, key)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessions returns archived sessions, newest first.
func (s *SQLiteDB) ListSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT session_key, user_id, game_id, bet, bet_choice, seed, status, created_at
		 FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var bet string
		if err := rows.Scan(&rec.Key, &rec.UserID, &rec.GameID, &bet, &rec.BetChoice,
			&rec.Seed, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if rec.Bet, err = parseAmount(bet); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Settle applies payout-bet to the user's balance and records the result in
// one transaction. It fills the result's ID, balances and timestamp.
func (s *SQLiteDB) Settle(res *GameResult) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow(`SELECT balance FROM users WHERE id = ?`, res.UserID).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	before, err := parseAmount(raw)
	if err != nil {
		return err
	}

	after := before.Add(res.Payout).Sub(res.Bet)
	res.BeforeBalance = before
	res.AfterBalance = after

	if _, err := tx.Exec(`UPDATE users SET balance = ? WHERE id = ?`, after.String(), res.UserID); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO game_results (
		id, user_id, game_id, session_key, bet, bet_choice, result, multiplier,
		payout, before_balance, after_balance, detail, seed, rule_id, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.UserID, res.GameID, res.SessionKey, res.Bet.String(),
		res.BetChoice, res.Result, res.Multiplier, res.Payout.String(),
		before.String(), after.String(), res.Detail, res.Seed, res.RuleID,
		res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	return tx.Commit()
}

const resultColumns = `id, user_id, game_id, session_key, bet, bet_choice,
	result, multiplier, payout, before_balance, after_balance, detail, seed,
	rule_id, created_at`

// GetResult retrieves a result by ID
func (s *SQLiteDB) GetResult(id string) (*GameResult, error) {
	row := s.db.QueryRow(`SELECT `+resultColumns+` FROM game_results WHERE id = ?`, id)
	res, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return res, nil
}

// ResultBySeed retrieves the most recent result for a game and seed.
func (s *SQLiteDB) ResultBySeed(gameID string, seed int64) (*GameResult, error) {
	row := s.db.QueryRow(
		`SELECT `+resultColumns+` FROM game_results
		 WHERE game_id = ? AND seed = ? ORDER BY created_at DESC LIMIT 1`,
		gameID, seed,
	)
	res, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result by seed: %w", err)
	}
	return res, nil
}

// ListResults retrieves results with filtering, newest first.
func (s *SQLiteDB) ListResults(query ResultsQuery) ([]GameResult, error) {
	where := ""
	args := []interface{}{}
	if query.UserID != "" {
		where = "WHERE user_id = ?"
		args = append(args, query.UserID)
	}
	if query.GameID != "" {
		if where == "" {
			where = "WHERE game_id = ?"
		} else {
			where += " AND game_id = ?"
		}
		args = append(args, query.GameID)
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	rows, err := s.db.Query(
		`SELECT `+resultColumns+` FROM game_results `+where+
			` ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	return collectResults(rows)
}

// RecentResults returns a user's latest rounds for one game, newest first.
func (s *SQLiteDB) RecentResults(userID, gameID string, limit int) ([]GameResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+resultColumns+` FROM game_results
		 WHERE user_id = ? AND game_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		userID, gameID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent results: %w", err)
	}
	defer rows.Close()

	return collectResults(rows)
}

// SaveAdjustment records a manual correction and applies it to the balance in
// one transaction.
func (s *SQLiteDB) SaveAdjustment(adj *Adjustment) error {
	if adj.ID == "" {
		adj.ID = uuid.NewString()
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow(`SELECT balance FROM users WHERE id = ?`, adj.UserID).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	before, err := parseAmount(raw)
	if err != nil {
		return err
	}

	after := before.Add(adj.Amount)
	if _, err := tx.Exec(`UPDATE users SET balance = ? WHERE id = ?`, after.String(), adj.UserID); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO financial_adjustments (id, user_id, amount, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		adj.ID, adj.UserID, adj.Amount.String(), adj.Reason, adj.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert adjustment: %w", err)
	}

	return tx.Commit()
}

// ListAdjustments returns a user's adjustments, newest first. Empty userID
// lists everyone's.
func (s *SQLiteDB) ListAdjustments(userID string, limit int) ([]Adjustment, error) {
	if limit <= 0 {
		limit = 50
	}
	where := ""
	args := []interface{}{}
	if userID != "" {
		where = "WHERE user_id = ?"
		args = append(args, userID)
	}
	args = append(args, limit)

	rows, err := s.db.Query(
		`SELECT id, user_id, amount, reason, created_at FROM financial_adjustments `+
			where+` ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []Adjustment
	for rows.Next() {
		var adj Adjustment
		var amount string
		if err := rows.Scan(&adj.ID, &adj.UserID, &amount, &adj.Reason, &adj.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		if adj.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

// DeleteAdjustments removes a user's adjustment history. The balance is left
// as-is: deleting the record does not undo the correction.
func (s *SQLiteDB) DeleteAdjustments(userID string) error {
	_, err := s.db.Exec(`DELETE FROM financial_adjustments WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete adjustments: %w", err)
	}
	return nil
}

// GetSettings returns the stored settings for a game, falling back to the
// defaults when no row exists.
func (s *SQLiteDB) GetSettings(gameID string) (bias.GameSettings, error) {
	row := s.db.QueryRow(
		`SELECT game_id, risk_enabled, risk_threshold, casino_advantage_percent,
		        assist_enabled, assist_max_bet, player_advantage_percent
		 FROM game_settings WHERE game_id = ?`, gameID)

	gs, err := scanSettings(row)
	if err == sql.ErrNoRows {
		return bias.DefaultGameSettings(gameID), nil
	}
	if err != nil {
		return bias.GameSettings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return gs, nil
}

// AllSettings returns every stored per-game settings row.
func (s *SQLiteDB) AllSettings() ([]bias.GameSettings, error) {
	rows, err := s.db.Query(
		`SELECT game_id, risk_enabled, risk_threshold, casino_advantage_percent,
		        assist_enabled, assist_max_bet, player_advantage_percent
		 FROM game_settings ORDER BY game_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	var all []bias.GameSettings
	for rows.Next() {
		gs, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settings: %w", err)
		}
		all = append(all, gs)
	}
	return all, rows.Err()
}

// SaveSettings upserts one game's settings row.
func (s *SQLiteDB) SaveSettings(gs bias.GameSettings) error {
	_, err := s.db.Exec(
		`INSERT INTO game_settings (
			game_id, risk_enabled, risk_threshold, casino_advantage_percent,
			assist_enabled, assist_max_bet, player_advantage_percent
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			risk_enabled = excluded.risk_enabled,
			risk_threshold = excluded.risk_threshold,
			casino_advantage_percent = excluded.casino_advantage_percent,
			assist_enabled = excluded.assist_enabled,
			assist_max_bet = excluded.assist_max_bet,
			player_advantage_percent = excluded.player_advantage_percent`,
		gs.GameID, boolInt(gs.RiskEnabled), gs.RiskThreshold, gs.CasinoAdvantagePercent,
		boolInt(gs.AssistEnabled), gs.AssistMaxBet, gs.PlayerAdvantagePercent,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// JackpotPool returns the current jackpot pool.
func (s *SQLiteDB) JackpotPool() (decimal.Decimal, error) {
	var raw string
	if err := s.db.QueryRow(`SELECT pool FROM jackpot WHERE id = 1`).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("failed to read jackpot pool: %w", err)
	}
	return parseAmount(raw)
}

// SetJackpotPool overwrites the jackpot pool.
func (s *SQLiteDB) SetJackpotPool(pool decimal.Decimal) error {
	if _, err := s.db.Exec(`UPDATE jackpot SET pool = ? WHERE id = 1`, pool.String()); err != nil {
		return fmt.Errorf("failed to set jackpot pool: %w", err)
	}
	return nil
}

// Reset wipes gameplay data: results, adjustments, users and the jackpot
// pool. Settings survive a reset.
func (s *SQLiteDB) Reset() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM game_results`,
		`DELETE FROM sessions`,
		`DELETE FROM financial_adjustments`,
		`DELETE FROM users`,
		`UPDATE jackpot SET pool = '0' WHERE id = 1`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row rowScanner) (*GameResult, error) {
	var res GameResult
	var bet, payout, before, after string

	err := row.Scan(
		&res.ID, &res.UserID, &res.GameID, &res.SessionKey, &bet, &res.BetChoice,
		&res.Result, &res.Multiplier, &payout, &before, &after, &res.Detail,
		&res.Seed, &res.RuleID, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if res.Bet, err = parseAmount(bet); err != nil {
		return nil, err
	}
	if res.Payout, err = parseAmount(payout); err != nil {
		return nil, err
	}
	if res.BeforeBalance, err = parseAmount(before); err != nil {
		return nil, err
	}
	if res.AfterBalance, err = parseAmount(after); err != nil {
		return nil, err
	}
	return &res, nil
}

func collectResults(rows *sql.Rows) ([]GameResult, error) {
	var results []GameResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}

func scanSettings(row rowScanner) (bias.GameSettings, error) {
	var gs bias.GameSettings
	var risk, assist int
	err := row.Scan(
		&gs.GameID, &risk, &gs.RiskThreshold, &gs.CasinoAdvantagePercent,
		&assist, &gs.AssistMaxBet, &gs.PlayerAdvantagePercent,
	)
	if err != nil {
		return bias.GameSettings{}, err
	}
	gs.RiskEnabled = risk == 1
	gs.AssistEnabled = assist == 1
	return gs, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt amount %q: %w", raw, err)
	}
	return d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
