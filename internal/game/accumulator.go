package game

// CardAccumulator is the transient per-hand buffer of cards observed on the
// event stream. It is the highest-precedence snapshot source because it is
// the only one guaranteed to have seen every dealt card in order.
type CardAccumulator struct {
	PlayerCards  []Card
	DealerCards  []Card
	DealerHidden *Card
}

// Add routes one card-dealt event into the buffer.
//
// A face-down dealer card arriving while exactly one dealer card is visible
// is the hole card: the chain reveals it out of position at resolution time,
// so it is held aside and spliced back at position 1 by Reveal rather than
// appended at the tail.
func (a *CardAccumulator) Add(card Card, isDealer, faceUp bool) {
	if !isDealer {
		a.PlayerCards = append(a.PlayerCards, card)
		return
	}
	if !faceUp && len(a.DealerCards) == 1 && a.DealerHidden == nil {
		c := card
		a.DealerHidden = &c
		return
	}
	a.DealerCards = append(a.DealerCards, card)
}

// Reveal inserts the held hole card at position 1. No-op when nothing is held.
func (a *CardAccumulator) Reveal() {
	if a.DealerHidden == nil {
		return
	}
	c := *a.DealerHidden
	a.DealerHidden = nil
	if len(a.DealerCards) == 0 {
		a.DealerCards = []Card{c}
		return
	}
	rest := append([]Card(nil), a.DealerCards[1:]...)
	a.DealerCards = append(a.DealerCards[:1:1], c)
	a.DealerCards = append(a.DealerCards, rest...)
}

// HasEnough reports whether the buffer is trustworthy enough to outrank the
// other snapshot sources: at least two player cards or one dealer card.
func (a *CardAccumulator) HasEnough() bool {
	return len(a.PlayerCards) >= 2 || len(a.DealerCards) >= 1
}

// Clear drops everything. Called unconditionally on new hand and dismissal.
func (a *CardAccumulator) Clear() {
	a.PlayerCards = nil
	a.DealerCards = nil
	a.DealerHidden = nil
}
