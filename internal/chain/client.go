package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"cosmossdk.io/log"
	sdkmath "cosmossdk.io/math"

	"github.com/cometbft/cometbft/libs/bytes"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/edsphinx/risejack-sub000/internal/game"
)

// RPC is the slice of the CometBFT RPC surface the client uses. The full
// *rpchttp.HTTP client satisfies it; tests substitute fakes.
type RPC interface {
	ABCIQuery(ctx context.Context, path string, data bytes.HexBytes) (*coretypes.ResultABCIQuery, error)
	BroadcastTxSync(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTx, error)
	Tx(ctx context.Context, hash []byte, prove bool) (*coretypes.ResultTx, error)
	Subscribe(ctx context.Context, subscriber, query string, outCapacity ...int) (<-chan coretypes.ResultEvent, error)
	Unsubscribe(ctx context.Context, subscriber, query string) error
}

// Query paths served by the blackjack app.
const (
	queryGamePrefix    = "/blackjack/game/"
	queryLimitsPrefix  = "/blackjack/limits/"
	queryValuePrefix   = "/blackjack/value/"
	querySessionPrefix = "/auth/session/"
	queryAccountPrefix = "/account/"
)

// Reader is the pull-based, idempotent query surface.
type Reader struct {
	rpc    RPC
	logger log.Logger
}

func NewReader(rpc RPC, logger log.Logger) *Reader {
	return &Reader{rpc: rpc, logger: logger.With("module", "chain/reader")}
}

func (r *Reader) query(ctx context.Context, path string) ([]byte, error) {
	res, err := r.rpc.ABCIQuery(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("abci query %s: %w", path, err)
	}
	if res.Response.Code != 0 {
		return nil, fmt.Errorf("abci query %s: code=%d log=%q", path, res.Response.Code, res.Response.Log)
	}
	return res.Response.Value, nil
}

// GetGame returns the player's game record, or nil when no game exists.
func (r *Reader) GetGame(ctx context.Context, player string) (*game.GameRecord, error) {
	res, err := r.rpc.ABCIQuery(ctx, queryGamePrefix+player, nil)
	if err != nil {
		return nil, fmt.Errorf("abci query game: %w", err)
	}
	if res.Response.Code != 0 {
		// "not found" is an answer, not a failure.
		if strings.Contains(res.Response.Log, "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("query game: code=%d log=%q", res.Response.Code, res.Response.Log)
	}
	var rec game.GameRecord
	if err := json.Unmarshal(res.Response.Value, &rec); err != nil {
		return nil, fmt.Errorf("decode game record: %w", err)
	}
	return &rec, nil
}

func (r *Reader) GetBetLimits(ctx context.Context, token string) (game.BetLimits, error) {
	b, err := r.query(ctx, queryLimitsPrefix+token)
	if err != nil {
		return game.BetLimits{}, err
	}
	var lim game.BetLimits
	if err := json.Unmarshal(b, &lim); err != nil {
		return game.BetLimits{}, fmt.Errorf("decode limits: %w", err)
	}
	return lim, nil
}

// CalculateHandValue asks the chain to value a hand; on any query failure it
// falls back to the local arithmetic, which implements the same rules.
func (r *Reader) CalculateHandValue(ctx context.Context, cards []game.Card) (game.HandValue, error) {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = fmt.Sprintf("%d", uint8(c))
	}
	b, err := r.query(ctx, queryValuePrefix+strings.Join(parts, ","))
	if err != nil {
		r.logger.Debug("remote hand value unavailable, using local", "err", err)
		return game.ValueOf(cards), nil
	}
	var hv game.HandValue
	if err := json.Unmarshal(b, &hv); err != nil {
		return game.ValueOf(cards), nil
	}
	return hv, nil
}

// SessionInfo is the chain's per-signer auth row.
type SessionInfo struct {
	Owner     string `json:"owner"`
	NextNonce uint64 `json:"nextNonce"`
	PubKey    []byte `json:"pubKey,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// GetSession returns nonce/key state for a signer. A missing row means the
// signer has never transacted; nonce starts at 1.
func (r *Reader) GetSession(ctx context.Context, signer string) (SessionInfo, error) {
	res, err := r.rpc.ABCIQuery(ctx, querySessionPrefix+signer, nil)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("abci query session: %w", err)
	}
	if res.Response.Code != 0 {
		if strings.Contains(res.Response.Log, "not found") {
			return SessionInfo{Owner: signer, NextNonce: 1}, nil
		}
		return SessionInfo{}, fmt.Errorf("query session: code=%d log=%q", res.Response.Code, res.Response.Log)
	}
	var info SessionInfo
	if err := json.Unmarshal(res.Response.Value, &info); err != nil {
		return SessionInfo{}, fmt.Errorf("decode session: %w", err)
	}
	if info.NextNonce == 0 {
		info.NextNonce = 1
	}
	return info, nil
}

// Account is a bank balance row.
type Account struct {
	Addr    string      `json:"addr"`
	Balance sdkmath.Int `json:"balance"`
}

func (r *Reader) GetAccount(ctx context.Context, addr string) (Account, error) {
	b, err := r.query(ctx, queryAccountPrefix+addr)
	if err != nil {
		return Account{}, err
	}
	var acct Account
	if err := json.Unmarshal(b, &acct); err != nil {
		return Account{}, fmt.Errorf("decode account: %w", err)
	}
	return acct, nil
}

// TxStatus is the eventual status of a broadcast transaction.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// Submitter broadcasts signed envelopes and checks on their fate.
type Submitter struct {
	rpc    RPC
	logger log.Logger
}

func NewSubmitter(rpc RPC, logger log.Logger) *Submitter {
	return &Submitter{rpc: rpc, logger: logger.With("module", "chain/submitter")}
}

// Broadcast submits a signed envelope and returns the tx hash as a
// provisional handle. A non-zero CheckTx code is a submission failure.
func (s *Submitter) Broadcast(ctx context.Context, env Envelope) (string, error) {
	raw, err := env.Marshal()
	if err != nil {
		return "", game.ErrSubmitFailed.Wrapf("encode envelope: %v", err)
	}
	res, err := s.rpc.BroadcastTxSync(ctx, raw)
	if err != nil {
		return "", game.ErrSubmitFailed.Wrapf("broadcast: %v", err)
	}
	if res.Code != 0 {
		return "", game.ErrSubmitFailed.Wrapf("checktx code=%d log=%q", res.Code, res.Log)
	}
	hash := strings.ToUpper(hex.EncodeToString(res.Hash))
	s.logger.Debug("tx broadcast", "type", env.Type, "hash", hash)
	return hash, nil
}

// Status looks up a broadcast tx. A missing tx is still pending: CometBFT
// indexes transactions only once they are committed.
func (s *Submitter) Status(ctx context.Context, hash string) (TxStatus, error) {
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return TxStatusFailed, fmt.Errorf("invalid tx hash %q: %w", hash, err)
	}
	res, err := s.rpc.Tx(ctx, raw, false)
	if err != nil {
		return TxStatusPending, nil
	}
	if res.TxResult.Code != 0 {
		s.logger.Debug("tx failed on-chain", "hash", hash, "code", res.TxResult.Code, "log", res.TxResult.Log)
		return TxStatusFailed, nil
	}
	return TxStatusConfirmed, nil
}
