package watcher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/cometbft/cometbft/libs/bytes"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/edsphinx/risejack-sub000/internal/game"
	"github.com/edsphinx/risejack-sub000/internal/watcher"
)

// fakeStream implements chain.RPC for subscription tests; each Subscribe
// call hands back its own channel that the test feeds directly.
type fakeStream struct {
	mu           sync.Mutex
	channels     []chan coretypes.ResultEvent
	unsubscribes int
}

func (f *fakeStream) Subscribe(_ context.Context, _, _ string, _ ...int) (<-chan coretypes.ResultEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan coretypes.ResultEvent, 8)
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeStream) Unsubscribe(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes++
	return nil
}

func (f *fakeStream) ABCIQuery(context.Context, string, bytes.HexBytes) (*coretypes.ResultABCIQuery, error) {
	return nil, nil
}

func (f *fakeStream) BroadcastTxSync(context.Context, cmttypes.Tx) (*coretypes.ResultBroadcastTx, error) {
	return nil, nil
}

func (f *fakeStream) Tx(context.Context, []byte, bool) (*coretypes.ResultTx, error) {
	return nil, nil
}

func (f *fakeStream) send(i int, ev coretypes.ResultEvent) {
	f.mu.Lock()
	ch := f.channels[i]
	f.mu.Unlock()
	ch <- ev
}

func (f *fakeStream) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		close(ch)
	}
}

func cardDealtDelivery(tx []byte, player string, card uint8) coretypes.ResultEvent {
	return coretypes.ResultEvent{
		Data: cmttypes.EventDataTx{TxResult: abci.TxResult{
			Tx: tx,
			Result: abci.ExecTxResult{Events: []abci.Event{{
				Type: game.EventTypeCardDealt,
				Attributes: []abci.EventAttribute{
					{Key: game.AttrKeyPlayer, Value: player},
					{Key: game.AttrKeyCard, Value: itoa(card)},
					{Key: game.AttrKeyFaceUp, Value: "true"},
				},
			}}},
		}},
	}
}

func itoa(n uint8) string {
	if n >= 10 {
		return string([]byte{'0' + n/10, '0' + n%10})
	}
	return string([]byte{'0' + n})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestWatcherDeliversAndDedups(t *testing.T) {
	rpc := &fakeStream{}
	w := watcher.New(rpc, log.NewNopLogger())

	var mu sync.Mutex
	var dealt []game.CardDealt
	sub, err := w.Start(context.Background(), "rjk1alice", watcher.Handlers{
		CardDealt: func(e game.CardDealt) {
			mu.Lock()
			dealt = append(dealt, e)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer sub.Stop()
	require.True(t, sub.IsConnected())

	// Both query channels deliver the same transaction; the second sighting
	// must be discarded.
	ev := cardDealtDelivery([]byte("tx-1"), "rjk1alice", 5)
	rpc.send(0, ev)
	rpc.send(1, ev)
	rpc.send(0, cardDealtDelivery([]byte("tx-2"), "rjk1alice", 9))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dealt) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, game.Card(5), dealt[0].Card)
	require.Equal(t, game.Card(9), dealt[1].Card)
}

func TestWatcherDedupsAdvisoryEvents(t *testing.T) {
	rpc := &fakeStream{}
	w := watcher.New(rpc, log.NewNopLogger())

	var mu sync.Mutex
	var dealt, advisory int
	sub, err := w.Start(context.Background(), "rjk1alice", watcher.Handlers{
		CardDealt: func(game.CardDealt) {
			mu.Lock()
			dealt++
			mu.Unlock()
		},
		Advisory: func(any) {
			mu.Lock()
			advisory++
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer sub.Stop()

	// A bust transaction carries a card event and a bust notification
	// together, so it matches both subscription queries and arrives on both
	// channels. Each event must still fire exactly once.
	ev := coretypes.ResultEvent{
		Data: cmttypes.EventDataTx{TxResult: abci.TxResult{
			Tx: []byte("tx-bust"),
			Result: abci.ExecTxResult{Events: []abci.Event{
				{
					Type: game.EventTypeCardDealt,
					Attributes: []abci.EventAttribute{
						{Key: game.AttrKeyPlayer, Value: "rjk1alice"},
						{Key: game.AttrKeyCard, Value: "8"},
						{Key: game.AttrKeyFaceUp, Value: "true"},
					},
				},
				{
					Type: game.EventTypePlayerBusted,
					Attributes: []abci.EventAttribute{
						{Key: game.AttrKeyPlayer, Value: "rjk1alice"},
						{Key: game.AttrKeyPlayerFinalValue, Value: "23"},
					},
				},
			}},
		}},
	}
	rpc.send(0, ev)
	rpc.send(1, ev)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dealt == 1 && advisory == 1
	})
	// Give the redelivered copy a chance to (wrongly) fire before checking.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, dealt)
	require.Equal(t, 1, advisory, "redelivered bust notification must be discarded")
}

func TestWatcherIgnoresOtherPlayers(t *testing.T) {
	rpc := &fakeStream{}
	w := watcher.New(rpc, log.NewNopLogger())

	var mu sync.Mutex
	var count int
	sub, err := w.Start(context.Background(), "rjk1alice", watcher.Handlers{
		CardDealt: func(game.CardDealt) {
			mu.Lock()
			count++
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer sub.Stop()

	rpc.send(0, cardDealtDelivery([]byte("tx-bob"), "rjk1bob", 3))
	rpc.send(0, cardDealtDelivery([]byte("tx-alice"), "rjk1alice", 3))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})
}

func TestWatcherDisconnectOnChannelClose(t *testing.T) {
	rpc := &fakeStream{}
	w := watcher.New(rpc, log.NewNopLogger())

	var mu sync.Mutex
	var gotErr error
	sub, err := w.Start(context.Background(), "rjk1alice", watcher.Handlers{
		Disconnected: func(err error) {
			mu.Lock()
			gotErr = err
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	rpc.closeAll()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	})
	require.False(t, sub.IsConnected())
}

func TestWatcherStopUnsubscribes(t *testing.T) {
	rpc := &fakeStream{}
	w := watcher.New(rpc, log.NewNopLogger())

	var disconnected bool
	sub, err := w.Start(context.Background(), "rjk1alice", watcher.Handlers{
		Disconnected: func(error) { disconnected = true },
	})
	require.NoError(t, err)

	sub.Stop()
	require.False(t, sub.IsConnected())
	rpc.mu.Lock()
	defer rpc.mu.Unlock()
	require.Equal(t, 2, rpc.unsubscribes, "one unsubscribe per query")
	require.False(t, disconnected, "deliberate stop is not a disconnect")
}

func TestWatcherEmptyPlayer(t *testing.T) {
	w := watcher.New(&fakeStream{}, log.NewNopLogger())
	_, err := w.Start(context.Background(), "", watcher.Handlers{})
	require.Error(t, err)
}

func TestWatcherFreshDedupPerSubscription(t *testing.T) {
	rpc := &fakeStream{}
	w := watcher.New(rpc, log.NewNopLogger())

	ev := cardDealtDelivery([]byte("tx-replay"), "rjk1alice", 7)

	var mu sync.Mutex
	var count int
	handler := watcher.Handlers{CardDealt: func(game.CardDealt) {
		mu.Lock()
		count++
		mu.Unlock()
	}}

	sub, err := w.Start(context.Background(), "rjk1alice", handler)
	require.NoError(t, err)
	rpc.send(0, ev)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})
	sub.Stop()

	// A new subscription starts with an empty dedup set: the same key is
	// delivered again.
	sub, err = w.Start(context.Background(), "rjk1alice", handler)
	require.NoError(t, err)
	defer sub.Stop()
	rpc.send(2, ev)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	})
}
