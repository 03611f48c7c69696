// Package watcher maintains a live, player-scoped subscription to the
// blackjack event stream and fans typed events into handler callbacks.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cosmossdk.io/log"

	coretypes "github.com/cometbft/cometbft/rpc/core/types"

	"github.com/edsphinx/risejack-sub000/internal/chain"
	"github.com/edsphinx/risejack-sub000/internal/game"
)

// Handlers receives decoded events. CardDealt and GameResolved drive
// authoritative state; Advisory events are presentation hints only.
// Disconnected fires once when the transport drops the subscription.
type Handlers struct {
	CardDealt    func(game.CardDealt)
	GameResolved func(game.GameResolved)
	Advisory     func(any)
	Disconnected func(err error)
}

const unsubscribeTimeout = 5 * time.Second

type Watcher struct {
	rpc    chain.RPC
	logger log.Logger

	seq atomic.Uint64 // distinguishes subscriber ids across restarts
}

func New(rpc chain.RPC, logger log.Logger) *Watcher {
	return &Watcher{rpc: rpc, logger: logger.With("module", "watcher")}
}

// Start subscribes to the player's event queries and pumps deliveries until
// the subscription drops or Stop is called. There is no automatic reconnect:
// a silent resubscribe could race a player change and deliver events against
// a stale filter, so the caller owns restart policy.
func (w *Watcher) Start(ctx context.Context, player string, h Handlers) (*Subscription, error) {
	if player == "" {
		return nil, fmt.Errorf("watcher: empty player")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		watcher:    w,
		player:     player,
		subscriber: fmt.Sprintf("risejack/%s/%d", player, w.seq.Add(1)),
		cancel:     cancel,
		dedup:      map[game.DedupKey]struct{}{},
	}

	queries := chain.SubscriptionQueries(player)
	channels := make([]<-chan coretypes.ResultEvent, 0, len(queries))
	for _, q := range queries {
		ch, err := w.rpc.Subscribe(subCtx, sub.subscriber, q)
		if err != nil {
			cancel()
			sub.teardown(queries[:len(channels)])
			return nil, game.ErrStreamClosed.Wrapf("subscribe %q: %v", q, err)
		}
		channels = append(channels, ch)
	}
	sub.queries = queries
	sub.connected.Store(true)

	sub.wg.Add(1)
	go sub.run(subCtx, channels, h)

	w.logger.Info("event subscription started", "player", player, "subscriber", sub.subscriber)
	return sub, nil
}

// Subscription is one live player-scoped stream. Dedup state lives and dies
// with it; a restart always begins with an empty set.
type Subscription struct {
	watcher    *Watcher
	player     string
	subscriber string
	queries    []string
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	connected  atomic.Bool

	mu    sync.Mutex
	dedup map[game.DedupKey]struct{}
}

func (s *Subscription) IsConnected() bool {
	return s.connected.Load()
}

// Stop tears the subscription down and waits for the pump to exit. All
// listeners are unregistered before Stop returns, so a caller may start a
// new subscription for a different player immediately after.
func (s *Subscription) Stop() {
	s.cancel()
	s.teardown(s.queries)
	s.wg.Wait()
	s.connected.Store(false)
}

func (s *Subscription) teardown(queries []string) {
	// Unsubscribe uses a fresh context: the subscription context is already
	// cancelled by the time we get here.
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	for _, q := range queries {
		if err := s.watcher.rpc.Unsubscribe(ctx, s.subscriber, q); err != nil {
			s.watcher.logger.Debug("unsubscribe failed", "query", q, "err", err)
		}
	}
}

func (s *Subscription) run(ctx context.Context, channels []<-chan coretypes.ResultEvent, h Handlers) {
	defer s.wg.Done()

	// Merge every query channel into one stream; the pump exits when all
	// sources close or the context is cancelled.
	merged := make(chan coretypes.ResultEvent)
	var pumps sync.WaitGroup
	for _, ch := range channels {
		pumps.Add(1)
		go func(ch <-chan coretypes.ResultEvent) {
			defer pumps.Done()
			for ev := range ch {
				select {
				case merged <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		pumps.Wait()
		close(merged)
	}()

	for {
		select {
		case <-ctx.Done():
			s.connected.Store(false)
			return
		case ev, ok := <-merged:
			if !ok {
				// Transport dropped us. Report and stop; the caller decides
				// when a resubscribe makes sense.
				s.connected.Store(false)
				if ctx.Err() == nil && h.Disconnected != nil {
					h.Disconnected(game.ErrStreamClosed.Wrap("subscription channel closed"))
				}
				return
			}
			s.dispatch(ev, h)
		}
	}
}

func (s *Subscription) dispatch(ev coretypes.ResultEvent, h Handlers) {
	typed, err := chain.DecodeTxEvents(ev, s.player)
	if err != nil {
		s.watcher.logger.Error("dropping undecodable delivery", "err", err)
		return
	}
	for _, t := range typed {
		switch e := t.(type) {
		case game.CardDealt:
			if s.seen(e.Key) {
				continue
			}
			if h.CardDealt != nil {
				h.CardDealt(e)
			}
		case game.GameResolved:
			if s.seen(e.Key) {
				continue
			}
			if h.GameResolved != nil {
				h.GameResolved(e)
			}
		case game.PlayerBusted:
			if s.seen(e.Key) {
				continue
			}
			if h.Advisory != nil {
				h.Advisory(e)
			}
		case game.DealerCardFlipped:
			if s.seen(e.Key) {
				continue
			}
			if h.Advisory != nil {
				h.Advisory(e)
			}
		case game.BonusAwarded:
			if s.seen(e.Key) {
				continue
			}
			if h.Advisory != nil {
				h.Advisory(e)
			}
		}
	}
}

// seen records and tests a dedup key. At-least-once transports redeliver;
// second and later sightings are discarded.
func (s *Subscription) seen(key game.DedupKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[key]; ok {
		return true
	}
	s.dedup[key] = struct{}{}
	return false
}
