// Package credstore manages delegated session credentials: time-boxed
// ed25519 keys authorized on-chain to submit a fixed set of blackjack
// operations without per-operation wallet interaction.
package credstore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cosmossdk.io/log"

	"github.com/edsphinx/risejack-sub000/internal/game"
)

// ScopeAll marks a stored credential granted for every blackjack operation;
// it satisfies any requested scope.
const ScopeAll = "ALL"

// Scope records which permission set a credential was granted under. A
// credential must not be reused across incompatible scopes.
type Scope struct {
	Tag          string   `json:"tag"`
	Operations   []string `json:"operations"`
	SpendCeiling string   `json:"spendCeiling"`
	Token        string   `json:"token"`
}

// Compatible reports whether a credential stored under `stored` may serve a
// request for `want`: same tag, or the stored grant is the ALL superset.
func Compatible(stored, want Scope) bool {
	return stored.Tag == ScopeAll || stored.Tag == want.Tag
}

// Credential is a delegated signing credential. PrivKey never leaves the
// store directory.
type Credential struct {
	Owner     string             `json:"owner"`
	PubKey    ed25519.PublicKey  `json:"pubKey"`
	PrivKey   ed25519.PrivateKey `json:"privKey"`
	Scope     Scope              `json:"scope"`
	CreatedAt time.Time          `json:"createdAt"`
	Expiry    time.Time          `json:"expiry"`
}

// Sign signs pre-built sign bytes with the delegated key.
func (c Credential) Sign(msg []byte) []byte {
	return ed25519.Sign(c.PrivKey, msg)
}

// IsValid checks structural completeness and that expiry is strictly in the
// future. A credential expiring exactly now is invalid.
func (c Credential) IsValid(now time.Time) bool {
	if c.Owner == "" {
		return false
	}
	if len(c.PubKey) != ed25519.PublicKeySize || len(c.PrivKey) != ed25519.PrivateKeySize {
		return false
	}
	return c.Expiry.After(now)
}

// CheckUsable reports why a credential cannot serve the requested scope, as
// a typed error, or nil when it can.
func (c Credential) CheckUsable(scope Scope, now time.Time) error {
	if c.Owner == "" || len(c.PubKey) != ed25519.PublicKeySize || len(c.PrivKey) != ed25519.PrivateKeySize {
		return game.ErrNoCredential.Wrap("credential incomplete")
	}
	if !c.Expiry.After(now) {
		return game.ErrCredentialExpired.Wrapf("expired %s", c.Expiry.Format(time.RFC3339))
	}
	if !Compatible(c.Scope, scope) {
		return game.ErrCredentialScope.Wrapf("granted %q, need %q", c.Scope.Tag, scope.Tag)
	}
	return nil
}

// Registrar registers and deregisters the public half with the chain. The
// register call is wallet-signed and therefore interactive.
type Registrar interface {
	RegisterSessionKey(ctx context.Context, cred Credential) error
	RevokeSessionKey(ctx context.Context, cred Credential) error
}

// Approver asks the user to approve granting a session key scope.
type Approver interface {
	ApproveGrant(ctx context.Context, owner string, scope Scope) (bool, error)
}

// Store persists one credential per owner under a directory. It is
// instantiated per process (or per test) rather than held in a package
// global, so concurrent owner contexts never share state.
type Store struct {
	dir       string
	lifetime  time.Duration
	registrar Registrar
	approver  Approver
	logger    log.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]Credential // owner -> credential
}

const defaultLifetime = 24 * time.Hour

type Option func(*Store)

func WithLifetime(d time.Duration) Option {
	return func(s *Store) { s.lifetime = d }
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(dir string, registrar Registrar, approver Approver, logger log.Logger, opts ...Option) *Store {
	s := &Store{
		dir:       dir,
		lifetime:  defaultLifetime,
		registrar: registrar,
		approver:  approver,
		logger:    logger.With("module", "credstore"),
		now:       time.Now,
		cache:     map[string]Credential{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) path(owner string) string {
	return filepath.Join(s.dir, owner+".json")
}

func (s *Store) load(owner string) (Credential, bool, error) {
	if c, ok := s.cache[owner]; ok {
		return c, true, nil
	}
	b, err := os.ReadFile(s.path(owner))
	if err != nil {
		if os.IsNotExist(err) {
			return Credential{}, false, nil
		}
		return Credential{}, false, fmt.Errorf("read credential: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(b, &c); err != nil {
		return Credential{}, false, fmt.Errorf("decode credential: %w", err)
	}
	s.cache[owner] = c
	return c, true, nil
}

func (s *Store) save(c Credential) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("mkdir credential dir: %w", err)
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := os.WriteFile(s.path(c.Owner), b, 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	s.cache[c.Owner] = c
	return nil
}

func (s *Store) deleteLocal(owner string) {
	delete(s.cache, owner)
	_ = os.Remove(s.path(owner))
}

// Ensure returns an unexpired, scope-compatible credential for the owner,
// creating one when none qualifies. Creation cost (one interactive grant)
// is amortized across every subsequent fast-path submission.
func (s *Store) Ensure(ctx context.Context, owner string, scope Scope) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok, err := s.load(owner)
	if err != nil {
		return Credential{}, err
	}
	if ok {
		if reason := c.CheckUsable(scope, s.now()); reason != nil {
			s.logger.Info("stored session key unusable, replacing", "owner", owner, "reason", reason)
			s.deleteLocal(owner)
		} else {
			return c, nil
		}
	}
	return s.createLocked(ctx, owner, scope)
}

// Create unconditionally mints and registers a fresh credential.
func (s *Store) Create(ctx context.Context, owner string, scope Scope) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx, owner, scope)
}

func (s *Store) createLocked(ctx context.Context, owner string, scope Scope) (Credential, error) {
	approved, err := s.approver.ApproveGrant(ctx, owner, scope)
	if err != nil {
		return Credential{}, game.ErrApprovalDenied.Wrapf("grant approval: %v", err)
	}
	if !approved {
		return Credential{}, game.ErrApprovalDenied.Wrap("grant declined")
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Credential{}, fmt.Errorf("generate session key: %w", err)
	}
	now := s.now()
	c := Credential{
		Owner:     owner,
		PubKey:    pub,
		PrivKey:   priv,
		Scope:     scope,
		CreatedAt: now,
		Expiry:    now.Add(s.lifetime),
	}
	if err := s.registrar.RegisterSessionKey(ctx, c); err != nil {
		return Credential{}, fmt.Errorf("register session key: %w", err)
	}
	if err := s.save(c); err != nil {
		return Credential{}, err
	}
	s.logger.Info("session key granted", "owner", owner, "scope", scope.Tag, "expiry", c.Expiry)
	return c, nil
}

// Get returns the stored credential without creating one.
func (s *Store) Get(owner string) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(owner)
}

// Revoke deregisters remotely best-effort, then deletes locally
// unconditionally. A failed remote revoke is logged, not fatal: the key
// still expires on its own.
func (s *Store) Revoke(ctx context.Context, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registrar.RevokeSessionKey(ctx, cred); err != nil {
		s.logger.Warn("remote session key revoke failed", "owner", cred.Owner, "err", err)
	}
	s.deleteLocal(cred.Owner)
	return nil
}

// Invalidate drops the local copy after persistent on-chain rejection.
func (s *Store) Invalidate(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocal(owner)
}
