// Package pipeline turns user intents (bet, hit, stand, double, surrender,
// cancel) into signed, submitted, confirmation-tracked chain operations. It
// prefers the delegated session key fast path and falls back to interactive
// wallet signing when the fast path fails to submit.
package pipeline

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	sdkmath "cosmossdk.io/math"

	"github.com/edsphinx/risejack-sub000/internal/chain"
	"github.com/edsphinx/risejack-sub000/internal/credstore"
	"github.com/edsphinx/risejack-sub000/internal/game"
)

// AuthMode records which signing path carried a submission.
type AuthMode string

const (
	AuthFastPath    AuthMode = "fastPath"
	AuthInteractive AuthMode = "interactive"
)

// PendingCommand tracks one in-flight operation for the stuck-game policy.
// It lives only for the duration of a submission; it is never persisted.
type PendingCommand struct {
	Op          string
	SubmittedAt time.Time
	AuthMode    AuthMode
	TxHash      string
}

// Result is the outcome of one submission attempt.
type Result struct {
	TxHash   string
	Status   chain.TxStatus
	AuthMode AuthMode
}

// Credentials is the slice of the credential store the pipeline needs.
type Credentials interface {
	Ensure(ctx context.Context, owner string, scope credstore.Scope) (credstore.Credential, error)
	Invalidate(owner string)
}

// Broadcaster submits envelopes and reports their fate. *chain.Submitter
// satisfies it.
type Broadcaster interface {
	Broadcast(ctx context.Context, env chain.Envelope) (string, error)
	Status(ctx context.Context, hash string) (chain.TxStatus, error)
}

// NonceSource supplies the next per-signer nonce. *chain.Reader satisfies it.
type NonceSource interface {
	GetSession(ctx context.Context, signer string) (chain.SessionInfo, error)
}

// InteractiveSigner performs user-approved wallet signing of an envelope
// whose Nonce and Signer are already set. It returns game.ErrApprovalDenied
// when the user declines.
type InteractiveSigner interface {
	SignEnvelope(ctx context.Context, env chain.Envelope) (chain.Envelope, error)
}

// Config fixes the pipeline's identity, scope and polling cadence.
type Config struct {
	Player string
	Token  string
	Scope  credstore.Scope

	// Limits are supplied (not fetched) so that bet validation never makes
	// a network call.
	Limits game.BetLimits

	ConfirmInterval time.Duration
	ConfirmAttempts int

	// BeforeSubmit runs immediately before a risky write (pre-action
	// snapshot capture); OnConfirmed runs after on-chain confirmation
	// (forced view refresh).
	BeforeSubmit func()
	OnConfirmed  func()
}

const (
	defaultConfirmInterval = 1500 * time.Millisecond
	defaultConfirmAttempts = 20
)

type Pipeline struct {
	cfg         Config
	creds       Credentials
	broadcaster Broadcaster
	nonces      NonceSource
	interactive InteractiveSigner
	logger      log.Logger
	now         func() time.Time

	mu      sync.Mutex
	pending *PendingCommand
}

func New(cfg Config, creds Credentials, broadcaster Broadcaster, nonces NonceSource, interactive InteractiveSigner, logger log.Logger) *Pipeline {
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = defaultConfirmInterval
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = defaultConfirmAttempts
	}
	return &Pipeline{
		cfg:         cfg,
		creds:       creds,
		broadcaster: broadcaster,
		nonces:      nonces,
		interactive: interactive,
		logger:      logger.With("module", "pipeline"),
		now:         time.Now,
	}
}

// WithClock overrides time for tests.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// PlaceBet validates the raw amount locally, then submits blackjack/place_bet.
// Validation failures produce zero network calls.
func (p *Pipeline) PlaceBet(ctx context.Context, rawAmount string) (Result, error) {
	amount, err := p.validateBet(rawAmount)
	if err != nil {
		return Result{}, err
	}
	return p.submit(ctx, chain.TxPlaceBet, chain.PlaceBetTx{
		Player: p.cfg.Player,
		Amount: amount.String(),
		Token:  p.cfg.Token,
	})
}

func (p *Pipeline) Hit(ctx context.Context) (Result, error) {
	return p.submit(ctx, chain.TxHit, chain.HitTx{Player: p.cfg.Player})
}

func (p *Pipeline) Stand(ctx context.Context) (Result, error) {
	return p.submit(ctx, chain.TxStand, chain.StandTx{Player: p.cfg.Player})
}

func (p *Pipeline) Double(ctx context.Context) (Result, error) {
	return p.submit(ctx, chain.TxDouble, chain.DoubleTx{Player: p.cfg.Player})
}

func (p *Pipeline) Surrender(ctx context.Context) (Result, error) {
	return p.submit(ctx, chain.TxSurrender, chain.SurrenderTx{Player: p.cfg.Player})
}

// CancelStuckGame refunds a hand whose dealing never completed. The pending
// command it resolves is cleared on confirmation like any other op.
func (p *Pipeline) CancelStuckGame(ctx context.Context) (Result, error) {
	return p.submit(ctx, chain.TxCancelStuck, chain.CancelStuckTx{Player: p.cfg.Player})
}

// Pending returns the in-flight command, if any, for the stuck-game policy.
func (p *Pipeline) Pending() (PendingCommand, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return PendingCommand{}, false
	}
	return *p.pending, true
}

// PendingPhase classifies the in-flight command against the timeout tiers.
func (p *Pipeline) PendingPhase() game.PendingPhase {
	cmd, ok := p.Pending()
	if !ok {
		return game.PhaseDealing
	}
	return game.ClassifyPendingAt(cmd.SubmittedAt, p.now())
}

func (p *Pipeline) validateBet(raw string) (sdkmath.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return sdkmath.Int{}, game.ErrBetEmpty.Wrap("no amount given")
	}
	amount, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, game.ErrInvalidBet.Wrapf("not a number: %q", raw)
	}
	if !amount.IsPositive() {
		return sdkmath.Int{}, game.ErrBetNotPositive.Wrapf("got %s", amount)
	}
	if !p.cfg.Limits.Min.IsNil() && amount.LT(p.cfg.Limits.Min) {
		return sdkmath.Int{}, game.ErrBetBelowMinimum.Wrapf("minimum is %s", p.cfg.Limits.Min)
	}
	if !p.cfg.Limits.Max.IsNil() && amount.GT(p.cfg.Limits.Max) {
		return sdkmath.Int{}, game.ErrBetAboveMaximum.Wrapf("maximum is %s", p.cfg.Limits.Max)
	}
	return amount, nil
}

// submit runs the two-path submission algorithm for one logical operation.
//
// The interactive fallback fires only when the fast path fails to SUBMIT.
// A fast-path tx that submitted but has not confirmed is never resubmitted
// interactively: the two paths share no client-side nonce dedup, so a blind
// retry would risk double-applying the operation.
func (p *Pipeline) submit(ctx context.Context, txType string, payload any) (Result, error) {
	env, err := chain.NewEnvelope(txType, payload)
	if err != nil {
		return Result{}, game.ErrSubmitFailed.Wrapf("build %s: %v", txType, err)
	}

	if p.cfg.BeforeSubmit != nil {
		p.cfg.BeforeSubmit()
	}

	mode := AuthFastPath
	hash, fastErr := p.submitFastPath(ctx, env)
	if fastErr != nil {
		p.logger.Info("fast path unavailable, falling back to interactive",
			"op", txType, "err", fastErr)
		mode = AuthInteractive
		hash, err = p.submitInteractive(ctx, env)
		if err != nil {
			return Result{}, err
		}
	}

	p.setPending(&PendingCommand{Op: txType, SubmittedAt: p.now(), AuthMode: mode, TxHash: hash})

	status, err := p.awaitConfirmation(ctx, hash)
	res := Result{TxHash: hash, Status: status, AuthMode: mode}
	switch status {
	case chain.TxStatusConfirmed:
		p.setPending(nil)
		if p.cfg.OnConfirmed != nil {
			p.cfg.OnConfirmed()
		}
		return res, nil
	case chain.TxStatusFailed:
		p.setPending(nil)
		return res, game.ErrSubmitFailed.Wrapf("%s rejected on-chain", txType)
	default:
		// Soft failure: the write may still land. The pending command stays
		// set so the stuck-game tiers can take over.
		return res, err
	}
}

// submitFastPath signs with the delegated session key; no user interaction
// beyond an initial scope grant amortized across operations.
func (p *Pipeline) submitFastPath(ctx context.Context, env chain.Envelope) (string, error) {
	cred, err := p.creds.Ensure(ctx, p.cfg.Player, p.cfg.Scope)
	if err != nil {
		return "", err
	}
	session, err := p.nonces.GetSession(ctx, p.cfg.Player)
	if err != nil {
		return "", err
	}
	env.Nonce = strconv.FormatUint(session.NextNonce, 10)
	env.Signer = p.cfg.Player
	env.Sig = cred.Sign(chain.SignBytes(env.Type, env.Value, env.Nonce, env.Signer))

	hash, err := p.broadcaster.Broadcast(ctx, env)
	if err != nil {
		if isCredentialRejection(err) {
			p.logger.Info("session key rejected by chain, invalidating", "owner", p.cfg.Player)
			p.creds.Invalidate(p.cfg.Player)
		}
		return "", err
	}
	return hash, nil
}

// submitInteractive carries the same logical operation through a
// user-approved signing prompt. The payload is the original one, unchanged.
func (p *Pipeline) submitInteractive(ctx context.Context, env chain.Envelope) (string, error) {
	session, err := p.nonces.GetSession(ctx, p.cfg.Player)
	if err != nil {
		return "", game.ErrSubmitFailed.Wrapf("fetch nonce: %v", err)
	}
	env.Nonce = strconv.FormatUint(session.NextNonce, 10)
	env.Signer = p.cfg.Player
	env.Sig = nil

	signed, err := p.interactive.SignEnvelope(ctx, env)
	if err != nil {
		return "", err
	}
	return p.broadcaster.Broadcast(ctx, signed)
}

// awaitConfirmation polls tx status at a fixed interval for a bounded number
// of attempts. Running out of attempts is a soft ErrConfirmTimeout.
func (p *Pipeline) awaitConfirmation(ctx context.Context, hash string) (chain.TxStatus, error) {
	for attempt := 0; attempt < p.cfg.ConfirmAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return chain.TxStatusPending, game.ErrConfirmTimeout.Wrapf("cancelled: %v", ctx.Err())
		case <-time.After(p.cfg.ConfirmInterval):
		}

		status, err := p.broadcaster.Status(ctx, hash)
		if err != nil {
			p.logger.Debug("confirmation poll failed", "hash", hash, "err", err)
			continue
		}
		if status != chain.TxStatusPending {
			return status, nil
		}
	}
	return chain.TxStatusPending, game.ErrConfirmTimeout.Wrapf("tx %s unresolved after %d polls", hash, p.cfg.ConfirmAttempts)
}

func (p *Pipeline) setPending(cmd *PendingCommand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = cmd
}

// isCredentialRejection pattern-matches broadcast failures that indicate the
// session key itself was refused, as opposed to transport faults.
func isCredentialRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"signature", "session key", "expired", "unauthorized", "scope"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
