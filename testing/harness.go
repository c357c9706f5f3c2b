package stagefundtest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/server"
	"github.com/blockberries/stagefund/types"
)

// GenesisTime is the clock of DefaultGenesis.
var GenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// BlockInterval is how far the harness clock moves per block.
const BlockInterval = 5 * time.Second

// Harness drives an application through the lifecycle the way a host
// would, keeping its own height and clock.
type Harness struct {
	t        *testing.T
	srv      *server.Server
	height   uint64
	executed uint64
	now      time.Time
}

// NewHarness creates a test harness wrapping app.
func NewHarness(t *testing.T, app stagefund.Lifecycle, opts ...server.Option) *Harness {
	t.Helper()
	return &Harness{t: t, srv: server.New(app, opts...), now: GenesisTime}
}

// Server returns the underlying server.
func (h *Harness) Server() *server.Server { return h.srv }

// Height is the last committed height.
func (h *Harness) Height() uint64 { return h.height }

// Now is the time the next block will carry.
func (h *Harness) Now() time.Time { return h.now }

// Advance moves the clock forward without producing a block.
func (h *Harness) Advance(d time.Duration) { h.now = h.now.Add(d) }

// Genesis performs a genesis handshake.
func (h *Harness) Genesis(genesis types.GenesisDoc) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{Genesis: &genesis})
	require.NoError(h.t, err, "genesis handshake")
	h.now = genesis.GenesisTime.ToTime()
	if genesis.InitialHeight > 0 {
		h.height = genesis.InitialHeight - 1
	}
	return resp
}

// GenesisDefault performs a genesis handshake with DefaultGenesis.
func (h *Harness) GenesisDefault() types.HandshakeResponse {
	h.t.Helper()
	return h.Genesis(DefaultGenesis())
}

// Restart performs a restart handshake at block, resuming the clock at
// now.
func (h *Harness) Restart(block types.BlockID, now time.Time) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{LastCommitted: &block})
	require.NoError(h.t, err, "restart handshake")
	h.height, h.now = block.Height, now
	return resp
}

// ExecuteBlock executes a block without committing.
func (h *Harness) ExecuteBlock(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome, err := h.srv.ExecuteBlock(context.Background(), block)
	require.NoError(h.t, err, "execute height %d", block.Height)
	h.executed = block.Height
	return outcome
}

// Commit commits the last executed block.
func (h *Harness) Commit() types.CommitResult {
	h.t.Helper()
	return h.CommitContext(context.Background())
}

// CommitContext commits the last executed block under ctx.
func (h *Harness) CommitContext(ctx context.Context) types.CommitResult {
	h.t.Helper()
	result, err := h.srv.Commit(ctx)
	require.NoError(h.t, err, "commit")
	h.height = h.executed
	return result
}

// ExecuteAndCommit executes and commits block.
func (h *Harness) ExecuteAndCommit(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome := h.ExecuteBlock(block)
	h.Commit()
	return outcome
}

// Run commits the next block holding ops at the current clock, then
// advances the clock by BlockInterval.
func (h *Harness) Run(ops ...types.Op) types.BlockOutcome {
	h.t.Helper()
	txs := make([]types.Tx, len(ops))
	for i, op := range ops {
		txs[i] = MustTx(h.t, op)
	}
	outcome := h.ExecuteAndCommit(types.FinalizedBlock{
		Height: h.height + 1,
		Time:   types.TimeToTimestamp(h.now),
		Txs:    txs,
	})
	h.now = h.now.Add(BlockInterval)
	return outcome
}

// MustRun runs a single op and fails the test unless it succeeds.
func (h *Harness) MustRun(op types.Op) types.TxOutcome {
	h.t.Helper()
	out := h.Run(op).TxOutcomes[0]
	require.True(h.t, out.OK(), "%s: code=%d info=%q", op.Name(), out.Code, out.Info)
	return out
}

// MustFail runs a single op and fails the test unless it is rejected
// with kind.
func (h *Harness) MustFail(op types.Op, kind stagefund.Kind) types.TxOutcome {
	h.t.Helper()
	out := h.Run(op).TxOutcomes[0]
	require.Equal(h.t, uint32(kind), out.Code, "%s: info=%q", op.Name(), out.Info)
	return out
}

// CheckTx gate-checks tx as first seen.
func (h *Harness) CheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(context.Background(), tx, types.MempoolFirstSeen)
	require.NoError(h.t, err, "check tx")
	return verdict
}

// RecheckTx re-validates a previously admitted tx.
func (h *Harness) RecheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(context.Background(), tx, types.MempoolRevalidation)
	require.NoError(h.t, err, "recheck tx")
	return verdict
}

// MustAcceptTx asserts that tx passes the gate check.
func (h *Harness) MustAcceptTx(tx types.Tx) {
	h.t.Helper()
	v := h.CheckTx(tx)
	require.True(h.t, v.Accepted(), "expected tx accepted, got code=%d info=%q", v.Code, v.Info)
}

// MustRejectTx asserts that tx fails the gate check.
func (h *Harness) MustRejectTx(tx types.Tx) {
	h.t.Helper()
	require.False(h.t, h.CheckTx(tx).Accepted(), "expected tx rejected")
}

// Query reads committed state.
func (h *Harness) Query(path types.QueryPath, args types.QueryArgs) types.StateQueryResult {
	h.t.Helper()
	result, err := h.srv.Query(context.Background(), types.StateQuery{Path: path, Data: args.Encode()})
	require.NoError(h.t, err, "query %s", path)
	return result
}

// QueryJSON reads committed state into v, failing the test on a
// non-zero code.
func (h *Harness) QueryJSON(path types.QueryPath, args types.QueryArgs, v any) {
	h.t.Helper()
	res := h.Query(path, args)
	require.Zero(h.t, res.Code, "query %s: %s", path, res.Info)
	require.NoError(h.t, json.Unmarshal(res.Value, v))
}

// DefaultGenesis returns a genesis document with default governance
// parameters and no stakes.
func DefaultGenesis() types.GenesisDoc {
	return types.GenesisDoc{
		ChainID:       "stagefund-test",
		GenesisTime:   types.TimeToTimestamp(GenesisTime),
		InitialHeight: 1,
		Params:        types.DefaultParams(),
	}
}

// MakeBlock creates a block at height with txs, timed BlockInterval per
// height after GenesisTime.
func MakeBlock(height uint64, txs ...types.Tx) types.FinalizedBlock {
	return types.FinalizedBlock{
		Height: height,
		Time:   types.TimeToTimestamp(GenesisTime.Add(time.Duration(height) * BlockInterval)),
		Txs:    txs,
	}
}

// MakeEmptyBlock creates an empty block at height.
func MakeEmptyBlock(height uint64) types.FinalizedBlock {
	return MakeBlock(height)
}
