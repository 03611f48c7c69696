package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/cometbft/cometbft/libs/bytes"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/edsphinx/risejack-sub000/internal/game"
)

// fakeRPC answers with canned responses keyed by query path.
type fakeRPC struct {
	queries   map[string]*coretypes.ResultABCIQuery
	queryErr  error
	broadcast *coretypes.ResultBroadcastTx
	bcastErr  error
	tx        *coretypes.ResultTx
	txErr     error
}

func (f *fakeRPC) ABCIQuery(_ context.Context, path string, _ bytes.HexBytes) (*coretypes.ResultABCIQuery, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if res, ok := f.queries[path]; ok {
		return res, nil
	}
	return &coretypes.ResultABCIQuery{Response: abci.QueryResponse{Code: 1, Log: "not found"}}, nil
}

func (f *fakeRPC) BroadcastTxSync(context.Context, cmttypes.Tx) (*coretypes.ResultBroadcastTx, error) {
	return f.broadcast, f.bcastErr
}

func (f *fakeRPC) Tx(context.Context, []byte, bool) (*coretypes.ResultTx, error) {
	return f.tx, f.txErr
}

func (f *fakeRPC) Subscribe(context.Context, string, string, ...int) (<-chan coretypes.ResultEvent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRPC) Unsubscribe(context.Context, string, string) error { return nil }

func okResponse(t *testing.T, v any) *coretypes.ResultABCIQuery {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &coretypes.ResultABCIQuery{Response: abci.QueryResponse{Value: b}}
}

func TestReaderGetGame_NotFound(t *testing.T) {
	r := NewReader(&fakeRPC{}, log.NewNopLogger())
	rec, err := r.GetGame(context.Background(), "rjk1alice")
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestReaderGetGame_OK(t *testing.T) {
	want := game.GameRecord{Player: "rjk1alice", State: game.StatePlayerTurn}
	rpc := &fakeRPC{queries: map[string]*coretypes.ResultABCIQuery{}}
	rpc.queries[queryGamePrefix+"rjk1alice"] = okResponse(t, want)

	r := NewReader(rpc, log.NewNopLogger())
	rec, err := r.GetGame(context.Background(), "rjk1alice")
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if rec == nil || rec.Player != "rjk1alice" || rec.State != game.StatePlayerTurn {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestReaderGetSession_Defaults(t *testing.T) {
	r := NewReader(&fakeRPC{}, log.NewNopLogger())
	info, err := r.GetSession(context.Background(), "rjk1fresh")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if info.NextNonce != 1 || info.Owner != "rjk1fresh" {
		t.Fatalf("unexpected session: %+v", info)
	}
}

func TestReaderCalculateHandValue_LocalFallback(t *testing.T) {
	// No /blackjack/value/ route registered: the fake answers not-found and
	// the reader must fall back to local arithmetic.
	r := NewReader(&fakeRPC{}, log.NewNopLogger())
	hv, err := r.CalculateHandValue(context.Background(), []game.Card{game.Card(12), game.Card(8)})
	if err != nil {
		t.Fatalf("CalculateHandValue: %v", err)
	}
	if hv.Value != 21 || !hv.IsSoft {
		t.Fatalf("unexpected value: %+v", hv)
	}
}

func TestSubmitterBroadcast_CheckTxFailure(t *testing.T) {
	rpc := &fakeRPC{broadcast: &coretypes.ResultBroadcastTx{Code: 4, Log: "bad nonce"}}
	s := NewSubmitter(rpc, log.NewNopLogger())

	env, err := NewEnvelope(TxHit, HitTx{Player: "rjk1alice"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	_, err = s.Broadcast(context.Background(), env)
	if !errorsmod.IsOf(err, game.ErrSubmitFailed) {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
}

func TestSubmitterBroadcast_OK(t *testing.T) {
	hash := []byte{0xde, 0xad, 0xbe, 0xef}
	rpc := &fakeRPC{broadcast: &coretypes.ResultBroadcastTx{Hash: hash}}
	s := NewSubmitter(rpc, log.NewNopLogger())

	env, err := NewEnvelope(TxStand, StandTx{Player: "rjk1alice"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	got, err := s.Broadcast(context.Background(), env)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	want := strings.ToUpper(hex.EncodeToString(hash))
	if got != want {
		t.Fatalf("hash = %q, want %q", got, want)
	}
}

func TestSubmitterStatus(t *testing.T) {
	cases := []struct {
		name string
		rpc  *fakeRPC
		want TxStatus
	}{
		{"not indexed yet", &fakeRPC{txErr: errors.New("tx not found")}, TxStatusPending},
		{"committed ok", &fakeRPC{tx: &coretypes.ResultTx{TxResult: abci.ExecTxResult{Code: 0}}}, TxStatusConfirmed},
		{"committed failed", &fakeRPC{tx: &coretypes.ResultTx{TxResult: abci.ExecTxResult{Code: 7, Log: "busted"}}}, TxStatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSubmitter(tc.rpc, log.NewNopLogger())
			status, err := s.Status(context.Background(), "DEADBEEF")
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if status != tc.want {
				t.Fatalf("status = %q, want %q", status, tc.want)
			}
		})
	}
}

func TestSubmitterStatus_BadHash(t *testing.T) {
	s := NewSubmitter(&fakeRPC{}, log.NewNopLogger())
	if _, err := s.Status(context.Background(), "not-hex"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}
