package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

// testApp is a minimal application, local to avoid an import cycle with
// the stagefundtest package.
type testApp struct {
	caps           types.Capabilities
	handshakeCalls int
	handshakeErr   error
	executeErr     error
	commits        int
}

var _ stagefund.Application = (*testApp)(nil)

func (a *testApp) Handshake(_ context.Context, _ types.HandshakeRequest) (types.HandshakeResponse, error) {
	a.handshakeCalls++
	if a.handshakeErr != nil {
		err := a.handshakeErr
		a.handshakeErr = nil
		return types.HandshakeResponse{}, err
	}
	return types.HandshakeResponse{Capabilities: a.caps}, nil
}

func (a *testApp) CheckTx(_ context.Context, tx types.Tx, _ types.MempoolContext) (types.GateVerdict, error) {
	if len(tx) == 0 {
		return types.GateVerdict{Code: uint32(stagefund.KindValidation), Info: "empty"}, nil
	}
	return types.GateVerdict{}, nil
}

func (a *testApp) ExecuteBlock(_ context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	if a.executeErr != nil {
		return types.BlockOutcome{}, a.executeErr
	}
	outcomes := make([]types.TxOutcome, len(block.Txs))
	for i := range block.Txs {
		outcomes[i] = types.TxOutcome{Index: uint32(i)}
	}
	return types.BlockOutcome{TxOutcomes: outcomes, AppHash: types.AppHash{byte(block.Height)}}, nil
}

func (a *testApp) Commit(_ context.Context) (types.CommitResult, error) {
	a.commits++
	return types.CommitResult{}, nil
}

func (a *testApp) Query(_ context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	return types.StateQueryResult{Value: []byte(req.Path)}, nil
}

func (a *testApp) Simulate(_ context.Context, _ types.Tx) (types.TxOutcome, error) {
	return types.TxOutcome{Info: "simulated"}, nil
}

// lifecycleOnly hides the Simulator method.
type lifecycleOnly struct{ *testApp }

func (lifecycleOnly) Simulate() {}

var genesis = types.HandshakeRequest{Genesis: &types.GenesisDoc{ChainID: "test"}}

func started(t *testing.T, app stagefund.Lifecycle) *Server {
	t.Helper()
	srv := New(app)
	_, err := srv.Handshake(context.Background(), genesis)
	require.NoError(t, err)
	return srv
}

func TestServer_Handshake(t *testing.T) {
	app := &testApp{caps: types.CapSimulation}
	srv := started(t, app)
	require.Equal(t, 1, app.handshakeCalls)
	require.True(t, srv.Capabilities().Has(types.CapSimulation))
	require.Equal(t, "Ready", srv.State())
}

func TestServer_HandshakeFailureRetries(t *testing.T) {
	app := &testApp{handshakeErr: errors.New("disk")}
	srv := New(app)
	_, err := srv.Handshake(context.Background(), genesis)
	require.Error(t, err)
	require.Equal(t, "Init", srv.State())

	_, err = srv.Handshake(context.Background(), genesis)
	require.NoError(t, err)
	require.Equal(t, 2, app.handshakeCalls)
}

func TestServer_UndeclaredCapabilityRejected(t *testing.T) {
	srv := New(lifecycleOnly{&testApp{caps: types.CapSimulation}})
	_, err := srv.Handshake(context.Background(), genesis)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not implement Simulator")
}

func TestServer_ExecuteCommitCycle(t *testing.T) {
	app := &testApp{}
	srv := started(t, app)
	ctx := context.Background()

	out, err := srv.ExecuteBlock(ctx, types.FinalizedBlock{Height: 1, Txs: []types.Tx{{0x01}, {0x02}}})
	require.NoError(t, err)
	require.Len(t, out.TxOutcomes, 2)
	require.NotNil(t, srv.LastOutcome())

	_, err = srv.Commit(ctx)
	require.NoError(t, err)
	require.Nil(t, srv.LastOutcome())
	require.Equal(t, 1, app.commits)
}

func TestServer_ExecuteErrorAllowsRetry(t *testing.T) {
	app := &testApp{executeErr: errors.New("transient")}
	srv := started(t, app)
	ctx := context.Background()

	_, err := srv.ExecuteBlock(ctx, types.FinalizedBlock{Height: 1})
	require.Error(t, err)
	require.Equal(t, "Ready", srv.State())

	app.executeErr = nil
	_, err = srv.ExecuteBlock(ctx, types.FinalizedBlock{Height: 1})
	require.NoError(t, err)
}

func TestServer_HaltStopsSequencing(t *testing.T) {
	app := &testApp{executeErr: stagefund.NewHaltError(4, "invariant broken")}
	srv := started(t, app)
	ctx := context.Background()

	_, err := srv.ExecuteBlock(ctx, types.FinalizedBlock{Height: 4})
	_, isHalt := stagefund.IsHalt(err)
	require.True(t, isHalt)
	require.Equal(t, "Halted", srv.State())

	_, err = srv.ExecuteBlock(ctx, types.FinalizedBlock{Height: 4})
	require.ErrorIs(t, err, ErrHalted)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invariant broken")
	_, err = srv.Commit(ctx)
	require.ErrorIs(t, err, ErrHalted)

	// Reads stay available.
	res, err := srv.Query(ctx, types.StateQuery{Path: "/params"})
	require.NoError(t, err)
	require.Equal(t, "/params", string(res.Value))
}

func TestServer_CheckTxConcurrent(t *testing.T) {
	srv := started(t, &testApp{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := srv.CheckTx(context.Background(), types.Tx{0x01}, types.MempoolFirstSeen)
			assert.NoError(t, err)
			assert.True(t, v.Accepted())
		}()
	}
	wg.Wait()
}

func TestServer_CheckTxBeforeHandshakePanics(t *testing.T) {
	srv := New(&testApp{})
	require.Panics(t, func() {
		_, _ = srv.CheckTx(context.Background(), types.Tx{0x01}, types.MempoolFirstSeen)
	})
}

func TestServer_SimulatorGating(t *testing.T) {
	undeclared := started(t, &testApp{})
	require.Nil(t, undeclared.AsSimulator())

	declared := started(t, &testApp{caps: types.CapSimulation})
	sim := declared.AsSimulator()
	require.NotNil(t, sim)
	out, err := sim.Simulate(context.Background(), types.Tx{0x01})
	require.NoError(t, err)
	require.Equal(t, "simulated", out.Info)
}
