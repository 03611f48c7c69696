// Package reconciler merges the three views of a blackjack hand (the push
// event stream, the pull query surface, and local pre-action snapshots)
// into one coherent GameView.
package reconciler

import (
	"context"
	"sync"
	"time"

	"cosmossdk.io/log"

	"github.com/edsphinx/risejack-sub000/internal/game"
	"github.com/edsphinx/risejack-sub000/internal/watcher"
)

// GameSource is the pull side of reconciliation: stateless, idempotent
// snapshot reads. *chain.Reader satisfies it.
type GameSource interface {
	GetGame(ctx context.Context, player string) (*game.GameRecord, error)
}

// Config tunes reconciliation timing. The grace window absorbs the observed
// worst-case skew between "cards dealt" and "hand resolved" arriving out of
// order; it is an approximation, not an ordering proof.
type Config struct {
	GraceWindow     time.Duration
	RefreshInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		GraceWindow:     1200 * time.Millisecond,
		RefreshInterval: 2 * time.Second,
	}
}

type Reconciler struct {
	source GameSource
	cfg    Config
	logger log.Logger
	now    func() time.Time

	mu         sync.Mutex
	player     string
	generation uint64

	view       game.GameView
	acc        game.CardAccumulator
	snapshot   *game.HandSnapshot // current terminal snapshot, display priority
	preAction  *game.HandSnapshot // captured just before a risky write
	lastRecord *game.GameRecord
	dismissed  *settledHand // last dismissed settlement, never re-adopted from pull

	lastRefresh time.Time
	fetching    bool

	pendingRes *game.Resolution
	graceTimer *time.Timer
}

// settledHand identifies one settled hand: the chain keeps the terminal row
// until the next bet, so a dismissed settlement stays visible to pull reads
// and must be recognizable when it comes back.
type settledHand struct {
	startedAt int64
	result    game.Outcome
}

func New(source GameSource, cfg Config, logger log.Logger) *Reconciler {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultConfig().GraceWindow
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	return &Reconciler{
		source: source,
		cfg:    cfg,
		logger: logger.With("module", "reconciler"),
		now:    time.Now,
		view:   game.GameView{State: game.StateIdle},
	}
}

// WithClock overrides time for tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// SetPlayer switches the player context: the view is replaced wholesale,
// every transient buffer is cleared, and any in-flight read or grace timer
// targeting the old player is disarmed via the generation counter.
func (r *Reconciler) SetPlayer(player string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	r.player = player
	r.view = game.GameView{State: game.StateIdle, UpdatedAt: r.now()}
	r.acc.Clear()
	r.snapshot = nil
	r.preAction = nil
	r.lastRecord = nil
	r.dismissed = nil
	r.lastRefresh = time.Time{}
	r.fetching = false
	r.pendingRes = nil
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
}

// Handlers returns watcher callbacks bound to this reconciler.
func (r *Reconciler) Handlers() watcher.Handlers {
	return watcher.Handlers{
		CardDealt:    r.OnCardDealt,
		GameResolved: r.OnGameResolved,
	}
}

// OnCardDealt accumulates a streamed card and schedules a coalesced refresh
// so the pull source stays close to the stream. Cards arriving after the
// hand went terminal belong to a state we no longer accumulate for.
func (r *Reconciler) OnCardDealt(e game.CardDealt) {
	r.mu.Lock()
	if r.view.State == game.StateTerminal {
		r.mu.Unlock()
		return
	}
	r.acc.Add(e.Card, e.IsDealer, e.FaceUp)
	if r.view.State == game.StateIdle || r.view.State == game.StateWaitingForResolution {
		r.view.State = game.StatePlayerTurn
	}
	r.applyLiveCardsLocked()
	gen := r.generation
	player := r.player
	r.mu.Unlock()

	// Best-effort, throttled; a failed refresh is retried on the next
	// natural trigger.
	go r.refreshIfCurrent(gen, player, false)
}

// OnGameResolved arms the grace window instead of snapshotting immediately:
// the resolution notification can overtake late card events, and reading
// the accumulator too early would lose them.
func (r *Reconciler) OnGameResolved(e game.GameResolved) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.view.State == game.StateTerminal {
		return
	}
	res := e.Resolution
	r.pendingRes = &res
	gen := r.generation
	if r.graceTimer != nil {
		r.graceTimer.Stop()
	}
	r.graceTimer = time.AfterFunc(r.cfg.GraceWindow, func() {
		r.finalize(gen)
	})
}

// finalize runs after the grace window: builds the terminal snapshot from
// whichever source still has the hand, and freezes the view.
func (r *Reconciler) finalize(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation || r.pendingRes == nil {
		return
	}
	res := *r.pendingRes
	r.pendingRes = nil
	r.graceTimer = nil

	snap := game.BuildSnapshot(&r.acc, r.preAction, r.lastRecord, r.view.Bet, res, r.now())
	r.snapshot = &snap
	r.preAction = nil

	outcome := res.Result
	r.view.State = game.StateTerminal
	r.view.Result = &outcome
	r.view.PlayerCards = append([]game.Card(nil), snap.PlayerCards...)
	r.view.DealerCards = append([]game.Card(nil), snap.DealerCards...)
	r.view.PlayerHandValue = snap.PlayerValue
	r.view.DealerVisibleValue = snap.DealerValue
	r.view.UpdatedAt = r.now()
	r.logger.Info("hand settled", "player", r.player, "result", outcome, "payout", res.Payout)
}

// DismissResult acknowledges a terminal hand: the snapshot loses display
// priority, transient buffers clear, and the view returns to Idle. The
// settled hand is remembered so a later pull of the still-terminal chain
// record does not resurface it.
func (r *Reconciler) DismissResult() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot != nil {
		key := settledHand{result: r.snapshot.Result}
		if r.lastRecord != nil {
			key.startedAt = r.lastRecord.StartedAt
		}
		r.dismissed = &key
	}
	r.snapshot = nil
	r.preAction = nil
	r.acc.Clear()
	r.pendingRes = nil
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
	r.view = game.GameView{State: game.StateIdle, Bet: r.view.Bet, UpdatedAt: r.now()}
}

// PreAction captures the live hand immediately before a risky write, giving
// the snapshot builder its second-tier source if the stream and the last
// read both come up empty afterwards.
func (r *Reconciler) PreAction() {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := game.HandSnapshot{
		PlayerCards: append([]game.Card(nil), r.view.PlayerCards...),
		DealerCards: append([]game.Card(nil), r.view.DealerCards...),
		PlayerValue: r.view.PlayerHandValue,
		DealerValue: r.view.DealerVisibleValue,
		Bet:         r.view.Bet,
		CapturedAt:  r.now(),
	}
	r.preAction = &snap
}

// NewHand clears per-hand buffers when a fresh hand starts (new bet placed).
func (r *Reconciler) NewHand(bet game.Bet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.acc.Clear()
	r.snapshot = nil
	r.pendingRes = nil
	r.dismissed = nil
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
	r.view = game.GameView{
		State:     game.StateWaitingForResolution,
		Bet:       bet,
		UpdatedAt: r.now(),
	}
}

// Refresh pulls the authoritative record. Unforced calls are throttled to
// one per RefreshInterval; a forced call (right after a confirmed local
// write) bypasses the throttle because new state is known to exist.
func (r *Reconciler) Refresh(ctx context.Context, forced bool) {
	r.mu.Lock()
	gen := r.generation
	player := r.player
	r.mu.Unlock()
	r.refresh(ctx, gen, player, forced)
}

func (r *Reconciler) refreshIfCurrent(gen uint64, player string, forced bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.refresh(ctx, gen, player, forced)
}

func (r *Reconciler) refresh(ctx context.Context, gen uint64, player string, forced bool) {
	if player == "" {
		return
	}
	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return
	}
	if !forced && r.now().Sub(r.lastRefresh) < r.cfg.RefreshInterval {
		r.mu.Unlock()
		return
	}
	if r.fetching && !forced {
		r.mu.Unlock()
		return
	}
	r.lastRefresh = r.now()
	r.fetching = true
	r.mu.Unlock()

	rec, err := r.source.GetGame(ctx, player)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetching = false
	if gen != r.generation {
		// Result targets an identity that is no longer current; discard.
		return
	}
	if err != nil {
		// Keep the last good view; the next natural trigger retries.
		r.logger.Debug("game refresh failed", "player", player, "err", err)
		return
	}
	r.lastRecord = rec
	r.applyRecordLocked(rec)
}

// applyRecordLocked folds a pull read into the live view. The accumulator
// outranks the record for card contents; the record owns phase, bet and
// double state. Terminal views are frozen until dismissal.
func (r *Reconciler) applyRecordLocked(rec *game.GameRecord) {
	if r.view.State == game.StateTerminal {
		return
	}
	if rec == nil {
		if len(r.acc.PlayerCards) == 0 && r.pendingRes == nil {
			r.view = game.GameView{State: game.StateIdle, UpdatedAt: r.now()}
		}
		return
	}

	switch rec.State {
	case game.StatePlayerTurn, game.StateDealerTurn, game.StateWaitingForResolution, game.StateIdle:
		// A live (or absent) record means the dismissed settlement's row is
		// gone; the next terminal is a new settlement.
		r.dismissed = nil
		r.view.State = rec.State
	case game.StateTerminal:
		// Terminal via pull alone (stream missed the resolution): adopt it,
		// but only when no grace window is already pending and this is not
		// the settlement the user already dismissed.
		if r.dismissed != nil && r.dismissed.startedAt == rec.StartedAt && r.dismissed.result == rec.Result {
			return
		}
		if r.pendingRes == nil && rec.Result != "" {
			res := game.Resolution{Result: rec.Result, Payout: rec.Payout}
			snap := game.BuildSnapshot(&r.acc, r.preAction, rec, rec.Bet, res, r.now())
			r.snapshot = &snap
			outcome := rec.Result
			r.view.State = game.StateTerminal
			r.view.Result = &outcome
		}
	}
	r.view.Bet = rec.Bet
	r.view.IsDoubled = rec.IsDoubled
	if len(rec.PlayerCards) > len(r.acc.PlayerCards) {
		// Pull saw more than the stream delivered so far; trust it.
		r.acc.PlayerCards = append([]game.Card(nil), rec.PlayerCards...)
	}
	if len(rec.DealerCards) > len(r.acc.DealerCards) {
		r.acc.DealerCards = append([]game.Card(nil), rec.DealerCards...)
	}
	r.applyLiveCardsLocked()
}

func (r *Reconciler) applyLiveCardsLocked() {
	r.view.PlayerCards = append([]game.Card(nil), r.acc.PlayerCards...)
	r.view.DealerCards = append([]game.Card(nil), r.acc.DealerCards...)
	r.view.PlayerHandValue = game.ValueOf(r.view.PlayerCards)
	r.view.DealerVisibleValue = game.ValueOf(r.view.DealerCards)
	r.view.UpdatedAt = r.now()
}

// View returns a copy of the reconciled view.
func (r *Reconciler) View() game.GameView {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.view.Clone()
	v.IsFetching = r.fetching
	return v
}

// Snapshot returns the current terminal snapshot, if one is showing. While
// set it takes display priority over the live view.
func (r *Reconciler) Snapshot() (game.HandSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot == nil {
		return game.HandSnapshot{}, false
	}
	return *r.snapshot, true
}

// ShowingResult reports whether a settled hand is awaiting dismissal.
func (r *Reconciler) ShowingResult() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot != nil
}
