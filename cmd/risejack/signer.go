package main

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edsphinx/risejack-sub000/internal/chain"
	"github.com/edsphinx/risejack-sub000/internal/credstore"
	"github.com/edsphinx/risejack-sub000/internal/game"
)

// walletKey is the owner wallet key stored under <home>/keys/<player>.json.
type walletKey struct {
	Player  string             `json:"player"`
	PubKey  ed25519.PublicKey  `json:"pubKey"`
	PrivKey ed25519.PrivateKey `json:"privKey"`
}

// fileWalletSigner is the CLI's interactive path: it prompts on the terminal
// and signs with the local wallet key. In a browser deployment this role is
// played by the user's wallet extension.
type fileWalletSigner struct {
	dir    string
	player string
}

func newFileWalletSigner(dir, player string) *fileWalletSigner {
	return &fileWalletSigner{dir: dir, player: player}
}

var _ chain.WalletSigner = (*fileWalletSigner)(nil)

func (s *fileWalletSigner) keyPath() string {
	return filepath.Join(s.dir, s.player+".json")
}

func (s *fileWalletSigner) load() (walletKey, error) {
	b, err := os.ReadFile(s.keyPath())
	if err != nil {
		return walletKey{}, fmt.Errorf("read wallet key (run `risejack keygen` first): %w", err)
	}
	var k walletKey
	if err := json.Unmarshal(b, &k); err != nil {
		return walletKey{}, fmt.Errorf("decode wallet key: %w", err)
	}
	return k, nil
}

// Generate creates and stores a fresh wallet key for the player.
func (s *fileWalletSigner) Generate() (walletKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return walletKey{}, err
	}
	k := walletKey{Player: s.player, PubKey: pub, PrivKey: priv}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return walletKey{}, err
	}
	b, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return walletKey{}, err
	}
	if err := os.WriteFile(s.keyPath(), b, 0o600); err != nil {
		return walletKey{}, err
	}
	return k, nil
}

// SignEnvelope asks for approval on the terminal and signs with the wallet
// key. Declining maps to the authorization error so the pipeline reports it
// with the fixed safe phrasing.
func (s *fileWalletSigner) SignEnvelope(ctx context.Context, env chain.Envelope) (chain.Envelope, error) {
	if env.Signer != s.player {
		return chain.Envelope{}, game.ErrStalePlayer.Wrapf("signing as %s, active player is %s", env.Signer, s.player)
	}
	ok, err := confirm(ctx, fmt.Sprintf("Sign %s as %s?", env.Type, env.Signer))
	if err != nil {
		return chain.Envelope{}, err
	}
	if !ok {
		return chain.Envelope{}, game.ErrApprovalDenied.Wrapf("declined signing %s", env.Type)
	}
	k, err := s.load()
	if err != nil {
		return chain.Envelope{}, err
	}
	env.Sig = ed25519.Sign(k.PrivKey, chain.SignBytes(env.Type, env.Value, env.Nonce, env.Signer))
	return env, nil
}

// terminalApprover gates session key grants.
type terminalApprover struct{}

var _ credstore.Approver = terminalApprover{}

func (terminalApprover) ApproveGrant(ctx context.Context, owner string, scope credstore.Scope) (bool, error) {
	prompt := fmt.Sprintf("Grant session key for %s (scope %s, ceiling %s %s)?",
		owner, scope.Tag, scope.SpendCeiling, scope.Token)
	return confirm(ctx, prompt)
}

func confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
