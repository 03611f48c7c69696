package game

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// State is the hand lifecycle:
//
//	Idle -> WaitingForResolution -> PlayerTurn -> DealerTurn -> Terminal
//
// Terminal states are never mutated in place; reaching one freezes a
// HandSnapshot and the view returns to Idle only on explicit dismissal.
type State string

const (
	StateIdle                 State = "idle"
	StateWaitingForResolution State = "waitingForResolution"
	StatePlayerTurn           State = "playerTurn"
	StateDealerTurn           State = "dealerTurn"
	StateTerminal             State = "terminal"
)

// Outcome is the result of a terminal hand.
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeLose      Outcome = "lose"
	OutcomePush      Outcome = "push"
	OutcomeBlackjack Outcome = "blackjack"
)

// ParseOutcome maps the on-chain result attribute to an Outcome.
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(s) {
	case OutcomeWin, OutcomeLose, OutcomePush, OutcomeBlackjack:
		return Outcome(s), true
	default:
		return "", false
	}
}

// Bet is a wagered amount in a single token denom.
type Bet struct {
	Amount sdkmath.Int `json:"amount"`
	Token  string      `json:"token"`
}

// BetLimits is the chain-configured wager range for a token.
type BetLimits struct {
	Min sdkmath.Int `json:"min"`
	Max sdkmath.Int `json:"max"`
}

// GameRecord is the authoritative game row as returned by the chain query
// surface. It is the lowest-precedence reconciliation source.
type GameRecord struct {
	Player      string  `json:"player"`
	State       State   `json:"state"`
	PlayerCards []Card  `json:"playerCards"`
	DealerCards []Card  `json:"dealerCards"`
	Bet         Bet     `json:"bet"`
	IsDoubled   bool    `json:"isDoubled"`
	Result      Outcome `json:"result,omitempty"`
	Payout      string  `json:"payout,omitempty"`
	StartedAt   int64   `json:"startedAt,omitempty"` // unix seconds
}

// GameView is the single reconciled value consumers read. It is produced
// only by the reconciler and replaced wholesale on player change.
type GameView struct {
	State              State     `json:"state"`
	PlayerCards        []Card    `json:"playerCards"`
	DealerCards        []Card    `json:"dealerCards"`
	PlayerHandValue    HandValue `json:"playerHandValue"`
	DealerVisibleValue HandValue `json:"dealerVisibleValue"`
	Bet                Bet       `json:"bet"`
	IsDoubled          bool      `json:"isDoubled"`
	Result             *Outcome  `json:"result,omitempty"`
	IsFetching         bool      `json:"isFetching"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand to consumers.
func (v GameView) Clone() GameView {
	out := v
	out.PlayerCards = append([]Card(nil), v.PlayerCards...)
	out.DealerCards = append([]Card(nil), v.DealerCards...)
	if v.Result != nil {
		r := *v.Result
		out.Result = &r
	}
	return out
}
