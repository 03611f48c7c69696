package game

import "time"

// HandSnapshot is an immutable capture of a finished (or about-to-change)
// hand. Once current it takes display priority over the live view until
// explicitly dismissed; creating a new one replaces the old.
type HandSnapshot struct {
	PlayerCards []Card    `json:"playerCards"`
	DealerCards []Card    `json:"dealerCards"`
	PlayerValue HandValue `json:"playerValue"`
	DealerValue HandValue `json:"dealerValue"`
	Bet         Bet       `json:"bet"`
	Result      Outcome   `json:"result"`
	Payout      string    `json:"payout,omitempty"`
	CapturedAt  time.Time `json:"capturedAt"`
}

// Resolution is the decoded terminal event payload.
type Resolution struct {
	Result           Outcome
	Payout           string
	PlayerFinalValue int
	DealerFinalValue int
}

// BuildSnapshot assembles the terminal snapshot from the three sources, in
// fixed precedence order:
//
//  1. the live accumulator, when it holds >=2 player cards or >=1 dealer card;
//  2. the pre-action snapshot taken just before the triggering write;
//  3. the last remote game record.
//
// Each source can independently be empty, stale or incomplete depending on
// event timing, so the fallback chain is evaluated per call, not cached.
func BuildSnapshot(acc *CardAccumulator, preAction *HandSnapshot, record *GameRecord, bet Bet, res Resolution, now time.Time) HandSnapshot {
	snap := HandSnapshot{
		Bet:        bet,
		Result:     res.Result,
		Payout:     res.Payout,
		CapturedAt: now,
	}

	switch {
	case acc != nil && acc.HasEnough():
		acc.Reveal()
		snap.PlayerCards = append([]Card(nil), acc.PlayerCards...)
		snap.DealerCards = append([]Card(nil), acc.DealerCards...)
	case preAction != nil && len(preAction.PlayerCards) > 0:
		snap.PlayerCards = append([]Card(nil), preAction.PlayerCards...)
		snap.DealerCards = append([]Card(nil), preAction.DealerCards...)
		if snap.Bet.Amount.IsNil() {
			snap.Bet = preAction.Bet
		}
	case record != nil:
		snap.PlayerCards = append([]Card(nil), record.PlayerCards...)
		snap.DealerCards = append([]Card(nil), record.DealerCards...)
		if snap.Bet.Amount.IsNil() {
			snap.Bet = record.Bet
		}
	}

	snap.PlayerValue = ValueOf(snap.PlayerCards)
	snap.DealerValue = ValueOf(snap.DealerCards)

	// The resolution event carries the settled totals; trust them over local
	// arithmetic when the card set is visibly incomplete.
	if res.PlayerFinalValue > 0 && snap.PlayerValue.Value < res.PlayerFinalValue {
		snap.PlayerValue = HandValue{Value: res.PlayerFinalValue}
	}
	if res.DealerFinalValue > 0 && snap.DealerValue.Value < res.DealerFinalValue {
		snap.DealerValue = HandValue{Value: res.DealerFinalValue}
	}
	return snap
}
