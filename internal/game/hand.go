package game

// HandValue is a computed blackjack hand total.
type HandValue struct {
	Value  int  `json:"value"`
	IsSoft bool `json:"isSoft"`
}

// ValueOf totals a hand with standard ace demotion: aces start at 11 and
// drop to 1 one at a time while the total is over 21.
func ValueOf(cards []Card) HandValue {
	total := 0
	aces := 0
	for _, c := range cards {
		total += c.Points()
		if c.IsAce() {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return HandValue{Value: total, IsSoft: aces > 0}
}

// IsBlackjack reports a natural: exactly two cards totalling 21.
func IsBlackjack(cards []Card) bool {
	return len(cards) == 2 && ValueOf(cards).Value == 21
}

func IsBust(cards []Card) bool {
	return ValueOf(cards).Value > 21
}
