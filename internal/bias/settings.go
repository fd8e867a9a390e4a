package bias

// GameSettings are the operator-tunable per-game knobs persisted in the
// settings table. Risk steers big bets toward the house; assist steers small
// bets toward the player. Percentages are 0-100.
type GameSettings struct {
	GameID                 string  `json:"game_id"`
	RiskEnabled            bool    `json:"risk_enabled"`
	RiskThreshold          int64   `json:"risk_threshold"`
	CasinoAdvantagePercent float64 `json:"casino_advantage_percent"`
	AssistEnabled          bool    `json:"assist_enabled"`
	AssistMaxBet           int64   `json:"assist_max_bet"`
	PlayerAdvantagePercent float64 `json:"player_advantage_percent"`
}

// DefaultGameSettings returns the stock settings for a game. Baccarat carries
// a higher casino advantage than the other games.
func DefaultGameSettings(gameID string) GameSettings {
	s := GameSettings{
		GameID:                 gameID,
		RiskEnabled:            true,
		RiskThreshold:          1000,
		CasinoAdvantagePercent: 15.0,
		AssistEnabled:          false,
		AssistMaxBet:           50,
		PlayerAdvantagePercent: 0.0,
	}
	if gameID == "baccarat" {
		s.CasinoAdvantagePercent = 20.0
	}
	return s
}

// RulesFromSettings translates per-game settings into bias rules. Settings
// rules sit at low priority so explicit rules from the rules file can outrank
// them.
func RulesFromSettings(all []GameSettings) []Rule {
	var rules []Rule
	for _, s := range all {
		rules = append(rules,
			Rule{
				ID:          "settings:risk:" + s.GameID,
				Enabled:     s.RiskEnabled && s.CasinoAdvantagePercent > 0,
				Direction:   DirectionHouse,
				Probability: s.CasinoAdvantagePercent / 100,
				Games:       []string{s.GameID},
				Priority:    -10,
				MinBet:      s.RiskThreshold,
			},
			Rule{
				ID:          "settings:assist:" + s.GameID,
				Enabled:     s.AssistEnabled && s.PlayerAdvantagePercent > 0,
				Direction:   DirectionPlayer,
				Probability: s.PlayerAdvantagePercent / 100,
				Games:       []string{s.GameID},
				Priority:    -10,
				MaxBet:      s.AssistMaxBet,
			},
		)
	}
	return rules
}
