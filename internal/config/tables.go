package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/classlab/probsim/internal/bias"
	"github.com/classlab/probsim/internal/games"
)

// TablesFile is the operator-supplied YAML: payout tables for every game
// plus an explicit bias rule list.
type TablesFile struct {
	Tables games.Tables `yaml:"tables"`
	Rules  []bias.Rule  `yaml:"rules"`
}

// LoadTables reads the YAML file and fills gaps with the stock tables. An
// empty path returns the defaults with no rules.
func LoadTables(path string) (*games.Tables, []bias.Rule, error) {
	if path == "" {
		return games.DefaultTables(), nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read tables file: %w", err)
	}

	// Defaults first so a partial file only overrides what it names.
	file := TablesFile{Tables: *games.DefaultTables()}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parse tables file: %w", err)
	}

	if err := validateTables(&file.Tables); err != nil {
		return nil, nil, err
	}
	for _, r := range file.Rules {
		if err := validateRule(r); err != nil {
			return nil, nil, err
		}
	}
	return &file.Tables, file.Rules, nil
}

func validateTables(t *games.Tables) error {
	if len(t.Updown.Tiers) == 0 {
		return fmt.Errorf("tables: updown needs at least one payout tier")
	}
	if t.Updown.MaxValue < len(t.Updown.Tiers) {
		return fmt.Errorf("tables: updown max_value %d below tier count %d",
			t.Updown.MaxValue, len(t.Updown.Tiers))
	}
	if t.Horse.Sims <= 0 {
		return fmt.Errorf("tables: horse sims must be positive")
	}
	if t.Horse.HouseEdge < 0 || t.Horse.HouseEdge >= 1 {
		return fmt.Errorf("tables: horse house_edge %v outside [0, 1)", t.Horse.HouseEdge)
	}
	for game, lim := range t.Limits {
		if lim.Min < 1 {
			return fmt.Errorf("tables: %s min bet %d below 1", game, lim.Min)
		}
		if lim.Max > 0 && lim.Max < lim.Min {
			return fmt.Errorf("tables: %s max bet %d below min %d", game, lim.Max, lim.Min)
		}
	}
	return nil
}

func validateRule(r bias.Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rules: every rule needs an id")
	}
	if r.Direction != bias.DirectionHouse && r.Direction != bias.DirectionPlayer {
		return fmt.Errorf("rules: %s has invalid direction %q", r.ID, r.Direction)
	}
	if r.Probability < 0 || r.Probability > 1 {
		return fmt.Errorf("rules: %s probability %v outside [0, 1]", r.ID, r.Probability)
	}
	if r.RTPDirection != "" && r.RTPDirection != "above" && r.RTPDirection != "below" {
		return fmt.Errorf("rules: %s has invalid rtp_direction %q", r.ID, r.RTPDirection)
	}
	return nil
}
