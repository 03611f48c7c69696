package chain

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Envelope is the transaction container the chain accepts. Transactions are
// opaque bytes to CometBFT; the blackjack chain uses JSON envelopes with
// ed25519 auth over domain-separated sign bytes.
type Envelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Auth:
	// - Nonce must strictly increase per signer (replay protection).
	// - Signer is the logical signer id: the player address for wallet-signed
	//   txs, or the session key address for delegated fast-path txs.
	// - Sig is an ed25519 signature over SignBytes.
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

const txAuthDomain = "risejack/tx/v1"

// SignBytes builds the signed message for an envelope:
// DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
func SignBytes(typ string, value []byte, nonce, signer string) []byte {
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomain)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomain)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

// NewEnvelope marshals a typed payload into an unsigned envelope.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Value: raw}, nil
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEnvelope(txBytes []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// Tx type names routed by the chain.
const (
	TxPlaceBet        = "blackjack/place_bet"
	TxHit             = "blackjack/hit"
	TxStand           = "blackjack/stand"
	TxDouble          = "blackjack/double"
	TxSurrender       = "blackjack/surrender"
	TxCancelStuck     = "blackjack/cancel_stuck"
	TxRegisterSession = "auth/register_session_key"
	TxRevokeSession   = "auth/revoke_session_key"
)

// ---- Blackjack ----

type PlaceBetTx struct {
	Player string `json:"player"`
	Amount string `json:"amount"` // integer string, base units
	Token  string `json:"token"`
}

type HitTx struct {
	Player string `json:"player"`
}

type StandTx struct {
	Player string `json:"player"`
}

type DoubleTx struct {
	Player string `json:"player"`
}

type SurrenderTx struct {
	Player string `json:"player"`
}

type CancelStuckTx struct {
	Player string `json:"player"`
}

// ---- Auth ----

// RegisterSessionKeyTx grants a time-boxed session key limited to the named
// operations and spend ceiling. The envelope carrying it must be signed by
// the owner wallet; that is the one interactive approval.
type RegisterSessionKeyTx struct {
	Owner        string   `json:"owner"`
	PubKey       []byte   `json:"pubKey"` // 32 bytes, base64 in JSON
	Operations   []string `json:"operations"`
	SpendCeiling string   `json:"spendCeiling"`
	Token        string   `json:"token"`
	ExpiresAt    int64    `json:"expiresAt"` // unix seconds
}

type RevokeSessionKeyTx struct {
	Owner  string `json:"owner"`
	PubKey []byte `json:"pubKey"`
}
