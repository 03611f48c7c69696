package game

// Event types emitted by the blackjack module, as indexed on-chain.
const (
	EventTypeGameStarted       = "GameStarted"
	EventTypeCardDealt         = "CardDealt"
	EventTypeGameResolved      = "GameResolved"
	EventTypePlayerBusted      = "PlayerBusted"
	EventTypeDealerCardFlipped = "DealerCardFlipped"
	EventTypeBonusAwarded      = "BonusAwarded"
)

// Attribute keys shared by the blackjack events.
const (
	AttrKeyPlayer           = "player"
	AttrKeyCard             = "card"
	AttrKeyIsDealer         = "isDealer"
	AttrKeyFaceUp           = "faceUp"
	AttrKeyResult           = "result"
	AttrKeyPayout           = "payout"
	AttrKeyPlayerFinalValue = "playerFinalValue"
	AttrKeyDealerFinalValue = "dealerFinalValue"
	AttrKeyBonus            = "bonus"
)

// DedupKey identifies one event occurrence: the carrying transaction plus
// the event's position inside it. A transport retry or a multi-event tx must
// never be double counted.
type DedupKey struct {
	TxHash     string
	EventIndex int
}

// CardDealt is one card entering the hand.
type CardDealt struct {
	Key      DedupKey
	Card     Card
	IsDealer bool
	FaceUp   bool
}

// GameResolved is the terminal settlement event.
type GameResolved struct {
	Key        DedupKey
	Resolution Resolution
}

// Advisory events: consumed for presentation timing only, never for
// authoritative state.
type PlayerBusted struct {
	Key   DedupKey
	Value int
}

type DealerCardFlipped struct {
	Key  DedupKey
	Card Card
}

type BonusAwarded struct {
	Key    DedupKey
	Amount string
}
