package games

import (
	"fmt"

	"github.com/classlab/probsim/internal/rng"
)

// BaccaratGame deals a two-deck shoe with standard third-card rules. Forced
// outcomes are obtained by bounded natural redraw: whole shoes are re-dealt
// until the round lands on the requested side, so the displayed hands are
// always rule-consistent face-value cards, never synthetic numbers.
type BaccaratGame struct{}

const (
	baccaratDecks = 2
	// riggedShoeAttempts bounds the forced-outcome redraw loop.
	riggedShoeAttempts = 200
)

// Baccarat bet choices.
const (
	ChoicePlayer = "player"
	ChoiceBanker = "banker"
	ChoiceTie    = "tie"
)

// BaccaratDetail is the structured explanation for one round.
type BaccaratDetail struct {
	PlayerHand  []string `json:"player_hand"`
	BankerHand  []string `json:"banker_hand"`
	PlayerValue int      `json:"player_value"`
	BankerValue int      `json:"banker_value"`
	Outcome     string   `json:"outcome"`
	BetChoice   string   `json:"bet_choice"`
}

// GameID implements Detail.
func (BaccaratDetail) GameID() string { return "baccarat" }

// Spec returns metadata about the baccarat game.
func (g *BaccaratGame) Spec() GameSpec {
	return GameSpec{ID: "baccarat", Name: "Baccarat"}
}

type baccaratRound struct {
	playerHand  []Card
	bankerHand  []Card
	playerValue int
	bankerValue int
	outcome     string
}

// Resolve deals a round and settles it against the bet choice.
func (g *BaccaratGame) Resolve(p Params, rs *rng.Stream) (Outcome, error) {
	switch p.Choice {
	case ChoicePlayer, ChoiceBanker, ChoiceTie:
	default:
		return Outcome{}, fmt.Errorf("baccarat: invalid bet choice %q", p.Choice)
	}

	target := forcedTarget(p.Choice, p.Force)

	var round baccaratRound
	matched := false
	for attempt := 0; attempt < riggedShoeAttempts; attempt++ {
		round = dealRound(newShoe(baccaratDecks, rs))
		if target == "" || round.outcome == target {
			matched = true
			break
		}
	}
	if target != "" && !matched {
		return Outcome{}, fmt.Errorf("baccarat: no %s outcome within %d shoes", target, riggedShoeAttempts)
	}

	table := p.tables().Baccarat
	detail := BaccaratDetail{
		PlayerHand:  cardStrings(round.playerHand),
		BankerHand:  cardStrings(round.bankerHand),
		PlayerValue: round.playerValue,
		BankerValue: round.bankerValue,
		Outcome:     round.outcome,
		BetChoice:   p.Choice,
	}

	switch {
	case round.outcome == ChoiceTie && p.Choice != ChoiceTie:
		// Push: the bet is returned.
		return Outcome{Result: ResultTie, Multiplier: 1, Detail: detail}, nil
	case round.outcome == p.Choice:
		mult := table.Player
		switch p.Choice {
		case ChoiceBanker:
			mult = table.Banker
		case ChoiceTie:
			mult = table.Tie
		}
		return Outcome{Result: ResultWin, Multiplier: mult, Detail: detail}, nil
	default:
		return Outcome{Result: ResultLose, Multiplier: 0, Detail: detail}, nil
	}
}

// forcedTarget translates a forced result into a target outcome relative to
// the bet choice. A forced loss steers the round to the opposing side.
func forcedTarget(choice string, force *Force) string {
	if force == nil {
		return ""
	}
	switch force.Result {
	case ResultWin:
		return choice
	case ResultLose:
		switch choice {
		case ChoicePlayer:
			return ChoiceBanker
		case ChoiceBanker:
			return ChoicePlayer
		default:
			return ChoiceBanker
		}
	default:
		return ChoiceTie
	}
}

// dealRound plays out one round from the top of the shoe.
func dealRound(s *shoe) baccaratRound {
	playerHand := []Card{s.draw(), s.draw()}
	bankerHand := []Card{s.draw(), s.draw()}

	playerValue := handScore(playerHand)
	bankerValue := handScore(bankerHand)

	// Naturals (8 or 9) stop the round before any third card.
	if playerValue < 8 && bankerValue < 8 {
		var playerThird *Card
		if playerValue <= 5 {
			c := s.draw()
			playerHand = append(playerHand, c)
			playerValue = handScore(playerHand)
			playerThird = &c
		}

		draws := false
		if playerThird == nil {
			draws = bankerValue <= 5
		} else {
			draws = bankerShouldDraw(bankerValue, baccaratCardValue(playerThird.Rank))
		}
		if draws {
			bankerHand = append(bankerHand, s.draw())
			bankerValue = handScore(bankerHand)
		}
	}

	outcome := ChoiceTie
	switch {
	case playerValue > bankerValue:
		outcome = ChoicePlayer
	case bankerValue > playerValue:
		outcome = ChoiceBanker
	}

	return baccaratRound{
		playerHand:  playerHand,
		bankerHand:  bankerHand,
		playerValue: playerValue,
		bankerValue: bankerValue,
		outcome:     outcome,
	}
}

// bankerShouldDraw implements the standard banker third-card table.
// bankerScore is the banker's two-card score, playerThird the point value of
// the player's third card.
func bankerShouldDraw(bankerScore, playerThird int) bool {
	switch bankerScore {
	case 0, 1, 2:
		return true
	case 3:
		return playerThird != 8
	case 4:
		return playerThird >= 2 && playerThird <= 7
	case 5:
		return playerThird >= 4 && playerThird <= 7
	case 6:
		return playerThird == 6 || playerThird == 7
	default: // 7
		return false
	}
}

func cardStrings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
