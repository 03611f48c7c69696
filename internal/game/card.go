package game

// Card is a deck position 0..51, matching the on-chain encoding:
// rank = card%13 + 2 (2..14, ace high), suit = card/13 (c,d,h,s).
type Card uint8

func (c Card) Rank() uint8 { // 2..14
	return uint8(c%13) + 2
}

func (c Card) Suit() uint8 { // 0..3
	return uint8(c / 13)
}

// Points is the blackjack value of the card. Aces count 11 here; hand
// valuation demotes them to 1 as needed (see HandValue).
func (c Card) Points() int {
	r := c.Rank()
	switch {
	case r == 14:
		return 11
	case r >= 10:
		return 10
	default:
		return int(r)
	}
}

func (c Card) IsAce() bool {
	return c.Rank() == 14
}

// IsTen reports whether the card counts ten (T, J, Q, K).
func (c Card) IsTen() bool {
	r := c.Rank()
	return r >= 10 && r <= 13
}

func (c Card) String() string {
	r := c.Rank()
	var rch byte
	switch r {
	case 14:
		rch = 'A'
	case 13:
		rch = 'K'
	case 12:
		rch = 'Q'
	case 11:
		rch = 'J'
	case 10:
		rch = 'T'
	default:
		rch = byte('0' + r)
	}
	s := c.Suit()
	var sch byte
	switch s {
	case 0:
		sch = 'c'
	case 1:
		sch = 'd'
	case 2:
		sch = 'h'
	case 3:
		sch = 's'
	default:
		sch = '?'
	}
	return string([]byte{rch, sch})
}
