package chain

import (
	"encoding/hex"
	"strings"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/edsphinx/risejack-sub000/internal/game"
)

func txDelivery(tx []byte, events ...abci.Event) coretypes.ResultEvent {
	return coretypes.ResultEvent{
		Data: cmttypes.EventDataTx{TxResult: abci.TxResult{
			Tx:     tx,
			Result: abci.ExecTxResult{Events: events},
		}},
	}
}

func evt(typ string, kv ...string) abci.Event {
	e := abci.Event{Type: typ}
	for i := 0; i+1 < len(kv); i += 2 {
		e.Attributes = append(e.Attributes, abci.EventAttribute{Key: kv[i], Value: kv[i+1]})
	}
	return e
}

func TestSubscriptionQueries(t *testing.T) {
	qs := SubscriptionQueries("rjk1alice")
	if len(qs) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(qs))
	}
	for _, q := range qs {
		if !strings.Contains(q, "tm.event='Tx'") || !strings.Contains(q, "rjk1alice") {
			t.Fatalf("malformed query %q", q)
		}
	}
}

func TestDecodeTxEvents_CardDealt(t *testing.T) {
	tx := []byte("tx-payload")
	ev := txDelivery(tx,
		evt(game.EventTypeCardDealt,
			game.AttrKeyPlayer, "rjk1alice",
			game.AttrKeyCard, "12", // Ace of first suit
			game.AttrKeyIsDealer, "false",
			game.AttrKeyFaceUp, "true",
		),
	)
	out, err := DecodeTxEvents(ev, "rjk1alice")
	if err != nil {
		t.Fatalf("DecodeTxEvents: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 event, got %d", len(out))
	}
	dealt, ok := out[0].(game.CardDealt)
	if !ok {
		t.Fatalf("expected CardDealt, got %T", out[0])
	}
	if dealt.Card != game.Card(12) || dealt.IsDealer || !dealt.FaceUp {
		t.Fatalf("unexpected event: %+v", dealt)
	}
	wantHash := strings.ToUpper(hex.EncodeToString(cmttypes.Tx(tx).Hash()))
	if dealt.Key.TxHash != wantHash || dealt.Key.EventIndex != 0 {
		t.Fatalf("unexpected dedup key: %+v", dealt.Key)
	}
}

func TestDecodeTxEvents_FiltersOtherPlayers(t *testing.T) {
	ev := txDelivery([]byte("tx"),
		evt(game.EventTypeCardDealt, game.AttrKeyPlayer, "rjk1bob", game.AttrKeyCard, "3"),
		evt(game.EventTypeGameResolved,
			game.AttrKeyPlayer, "rjk1alice",
			game.AttrKeyResult, "win",
			game.AttrKeyPayout, "100",
			game.AttrKeyPlayerFinalValue, "20",
			game.AttrKeyDealerFinalValue, "19",
		),
	)
	out, err := DecodeTxEvents(ev, "rjk1alice")
	if err != nil {
		t.Fatalf("DecodeTxEvents: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected only alice's event, got %d", len(out))
	}
	res, ok := out[0].(game.GameResolved)
	if !ok {
		t.Fatalf("expected GameResolved, got %T", out[0])
	}
	if res.Resolution.Result != game.OutcomeWin || res.Resolution.PlayerFinalValue != 20 {
		t.Fatalf("unexpected resolution: %+v", res.Resolution)
	}
	// Index-based keys count all tx events, filtered or not.
	if res.Key.EventIndex != 1 {
		t.Fatalf("expected event index 1, got %d", res.Key.EventIndex)
	}
}

func TestDecodeTxEvents_SkipsUnknownTypes(t *testing.T) {
	ev := txDelivery([]byte("tx"),
		evt("pot_raked", game.AttrKeyPlayer, "rjk1alice"),
	)
	out, err := DecodeTxEvents(ev, "rjk1alice")
	if err != nil {
		t.Fatalf("DecodeTxEvents: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no events, got %d", len(out))
	}
}

func TestDecodeTxEvents_BadCard(t *testing.T) {
	ev := txDelivery([]byte("tx"),
		evt(game.EventTypeCardDealt, game.AttrKeyPlayer, "rjk1alice", game.AttrKeyCard, "99"),
	)
	if _, err := DecodeTxEvents(ev, "rjk1alice"); err == nil {
		t.Fatalf("expected error for out-of-range card")
	}
}

func TestDecodeTxEvents_NonTxDelivery(t *testing.T) {
	out, err := DecodeTxEvents(coretypes.ResultEvent{Data: cmttypes.EventDataNewBlock{}}, "rjk1alice")
	if err != nil {
		t.Fatalf("DecodeTxEvents: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil for non-tx delivery")
	}
}

func TestDecodeTxEvents_Advisory(t *testing.T) {
	ev := txDelivery([]byte("tx"),
		evt(game.EventTypePlayerBusted, game.AttrKeyPlayer, "rjk1alice", game.AttrKeyPlayerFinalValue, "23"),
		evt(game.EventTypeDealerCardFlipped, game.AttrKeyPlayer, "rjk1alice", game.AttrKeyCard, "7"),
		evt(game.EventTypeBonusAwarded, game.AttrKeyPlayer, "rjk1alice", game.AttrKeyBonus, "25"),
	)
	out, err := DecodeTxEvents(ev, "rjk1alice")
	if err != nil {
		t.Fatalf("DecodeTxEvents: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 events, got %d", len(out))
	}
	if b, ok := out[0].(game.PlayerBusted); !ok || b.Value != 23 {
		t.Fatalf("unexpected busted event: %#v", out[0])
	}
	if f, ok := out[1].(game.DealerCardFlipped); !ok || f.Card != game.Card(7) {
		t.Fatalf("unexpected flip event: %#v", out[1])
	}
	if a, ok := out[2].(game.BonusAwarded); !ok || a.Amount != "25" {
		t.Fatalf("unexpected bonus event: %#v", out[2])
	}
}
