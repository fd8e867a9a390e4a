package games

import "github.com/classlab/probsim/internal/rng"

// Card is a playing card with rank and suit.
type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

// String returns a human-readable card like "♠A" or "♦10".
func (c Card) String() string {
	return c.Suit + c.Rank
}

var cardSuits = []string{"♠", "♥", "♦", "♣"}

var cardRanks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// baccaratCardValue returns the baccarat point value of a card.
// A: 1, 2-9: face value, 10/J/Q/K: 0.
func baccaratCardValue(rank string) int {
	switch rank {
	case "A":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	case "6":
		return 6
	case "7":
		return 7
	case "8":
		return 8
	case "9":
		return 9
	default: // 10, J, Q, K
		return 0
	}
}

// handScore is the baccarat hand value: sum of card values mod 10.
func handScore(cards []Card) int {
	total := 0
	for _, c := range cards {
		total += baccaratCardValue(c.Rank)
	}
	return total % 10
}

// shoe is a shuffled multi-deck stack drawn from the top.
type shoe struct {
	cards []Card
}

// newShoe builds a shuffled shoe of the given deck count from the supplied
// stream.
func newShoe(decks int, rs *rng.Stream) *shoe {
	cards := make([]Card, 0, decks*52)
	for d := 0; d < decks; d++ {
		for _, suit := range cardSuits {
			for _, rank := range cardRanks {
				cards = append(cards, Card{Rank: rank, Suit: suit})
			}
		}
	}
	rs.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	return &shoe{cards: cards}
}

// draw pops the top card. Drawing from an empty shoe is an internal
// invariant violation, never a user-facing condition: a baccarat round uses
// at most 6 cards from a 104-card shoe.
func (s *shoe) draw() Card {
	if len(s.cards) == 0 {
		panic("games: draw from empty shoe")
	}
	c := s.cards[len(s.cards)-1]
	s.cards = s.cards[:len(s.cards)-1]
	return c
}
