package chain

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	abci "github.com/cometbft/cometbft/abci/types"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/edsphinx/risejack-sub000/internal/game"
)

// SubscriptionQueries returns the event queries for one player: one per
// event class the watcher consumes. Both may match the same transaction;
// dedup keys make the overlap harmless.
func SubscriptionQueries(player string) []string {
	return []string{
		fmt.Sprintf("tm.event='Tx' AND %s.%s='%s'", game.EventTypeCardDealt, game.AttrKeyPlayer, player),
		fmt.Sprintf("tm.event='Tx' AND %s.%s='%s'", game.EventTypeGameResolved, game.AttrKeyPlayer, player),
	}
}

// DecodeTxEvents extracts the player's typed blackjack events from one
// subscription delivery. Events addressed to other players and event types
// the client does not consume are skipped.
func DecodeTxEvents(ev coretypes.ResultEvent, player string) ([]any, error) {
	dataTx, ok := ev.Data.(cmttypes.EventDataTx)
	if !ok {
		// Block and other non-tx deliveries carry nothing for us.
		return nil, nil
	}
	hash := strings.ToUpper(hex.EncodeToString(cmttypes.Tx(dataTx.Tx).Hash()))

	var out []any
	for i, e := range dataTx.Result.Events {
		if attr(e, game.AttrKeyPlayer) != player {
			continue
		}
		key := game.DedupKey{TxHash: hash, EventIndex: i}
		typed, err := decodeOne(e, key)
		if err != nil {
			return nil, err
		}
		if typed != nil {
			out = append(out, typed)
		}
	}
	return out, nil
}

func decodeOne(e abci.Event, key game.DedupKey) (any, error) {
	switch e.Type {
	case game.EventTypeCardDealt:
		card, err := attrCard(e)
		if err != nil {
			return nil, fmt.Errorf("CardDealt: %w", err)
		}
		return game.CardDealt{
			Key:      key,
			Card:     card,
			IsDealer: attrBool(e, game.AttrKeyIsDealer),
			FaceUp:   attrBool(e, game.AttrKeyFaceUp),
		}, nil

	case game.EventTypeGameResolved:
		result, ok := game.ParseOutcome(attr(e, game.AttrKeyResult))
		if !ok {
			return nil, fmt.Errorf("GameResolved: unknown result %q", attr(e, game.AttrKeyResult))
		}
		return game.GameResolved{
			Key: key,
			Resolution: game.Resolution{
				Result:           result,
				Payout:           attr(e, game.AttrKeyPayout),
				PlayerFinalValue: attrInt(e, game.AttrKeyPlayerFinalValue),
				DealerFinalValue: attrInt(e, game.AttrKeyDealerFinalValue),
			},
		}, nil

	case game.EventTypePlayerBusted:
		return game.PlayerBusted{Key: key, Value: attrInt(e, game.AttrKeyPlayerFinalValue)}, nil

	case game.EventTypeDealerCardFlipped:
		card, err := attrCard(e)
		if err != nil {
			return nil, fmt.Errorf("DealerCardFlipped: %w", err)
		}
		return game.DealerCardFlipped{Key: key, Card: card}, nil

	case game.EventTypeBonusAwarded:
		return game.BonusAwarded{Key: key, Amount: attr(e, game.AttrKeyBonus)}, nil

	default:
		return nil, nil
	}
}

func attr(e abci.Event, key string) string {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func attrBool(e abci.Event, key string) bool {
	return attr(e, key) == "true"
}

func attrInt(e abci.Event, key string) int {
	n, err := strconv.Atoi(attr(e, key))
	if err != nil {
		return 0
	}
	return n
}

func attrCard(e abci.Event) (game.Card, error) {
	raw := attr(e, game.AttrKeyCard)
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil || n > 51 {
		return 0, fmt.Errorf("bad card attribute %q", raw)
	}
	return game.Card(n), nil
}
