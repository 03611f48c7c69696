package chain

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cosmossdk.io/log"

	"github.com/edsphinx/risejack-sub000/internal/credstore"
)

// WalletSigner performs user-approved signing with the owner wallet key.
// Session key grants and revocations must be wallet-signed.
type WalletSigner interface {
	SignEnvelope(ctx context.Context, env Envelope) (Envelope, error)
}

// SessionRegistrar registers and revokes delegated session keys on-chain.
// It implements credstore.Registrar.
type SessionRegistrar struct {
	reader    *Reader
	submitter *Submitter
	signer    WalletSigner
	logger    log.Logger
}

var _ credstore.Registrar = (*SessionRegistrar)(nil)

func NewSessionRegistrar(reader *Reader, submitter *Submitter, signer WalletSigner, logger log.Logger) *SessionRegistrar {
	return &SessionRegistrar{
		reader:    reader,
		submitter: submitter,
		signer:    signer,
		logger:    logger.With("module", "chain/session"),
	}
}

func (r *SessionRegistrar) RegisterSessionKey(ctx context.Context, cred credstore.Credential) error {
	env, err := NewEnvelope(TxRegisterSession, RegisterSessionKeyTx{
		Owner:        cred.Owner,
		PubKey:       cred.PubKey,
		Operations:   cred.Scope.Operations,
		SpendCeiling: cred.Scope.SpendCeiling,
		Token:        cred.Scope.Token,
		ExpiresAt:    cred.Expiry.Unix(),
	})
	if err != nil {
		return err
	}
	return r.submitWalletSigned(ctx, env, cred.Owner)
}

func (r *SessionRegistrar) RevokeSessionKey(ctx context.Context, cred credstore.Credential) error {
	env, err := NewEnvelope(TxRevokeSession, RevokeSessionKeyTx{
		Owner:  cred.Owner,
		PubKey: cred.PubKey,
	})
	if err != nil {
		return err
	}
	return r.submitWalletSigned(ctx, env, cred.Owner)
}

func (r *SessionRegistrar) submitWalletSigned(ctx context.Context, env Envelope, owner string) error {
	session, err := r.reader.GetSession(ctx, owner)
	if err != nil {
		return err
	}
	env.Nonce = strconv.FormatUint(session.NextNonce, 10)
	env.Signer = owner

	signed, err := r.signer.SignEnvelope(ctx, env)
	if err != nil {
		return err
	}
	hash, err := r.submitter.Broadcast(ctx, signed)
	if err != nil {
		return err
	}
	return r.awaitCommit(ctx, hash, env.Type)
}

// awaitCommit waits briefly for the grant/revoke to land; session key
// management is rare enough that blocking here keeps callers simple.
func (r *SessionRegistrar) awaitCommit(ctx context.Context, hash, txType string) error {
	const (
		interval = 1500 * time.Millisecond
		attempts = 10
	)
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		status, err := r.submitter.Status(ctx, hash)
		if err != nil {
			continue
		}
		switch status {
		case TxStatusConfirmed:
			r.logger.Info("session key tx committed", "type", txType, "hash", hash)
			return nil
		case TxStatusFailed:
			return fmt.Errorf("%s rejected on-chain (tx %s)", txType, hash)
		}
	}
	return fmt.Errorf("%s unresolved after %d polls (tx %s)", txType, attempts, hash)
}
