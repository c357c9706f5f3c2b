// Package app is the stagefund application: the escrow ledger, the
// governance engine and the stake registry behind the host Lifecycle.
//
// Every block executes against a fresh copy of the committed state. The
// copy becomes the committed state only at Commit, together with its
// persisted snapshot and the block's events.
package app

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/rs/zerolog"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/journal"
	"github.com/blockberries/stagefund/ledger"
	"github.com/blockberries/stagefund/mirror"
	"github.com/blockberries/stagefund/store"
	"github.com/blockberries/stagefund/types"
)

// Compile-time interface checks.
var (
	_ stagefund.Lifecycle = (*App)(nil)
	_ stagefund.Simulator = (*App)(nil)
)

// Options configure an App. Zero values are usable.
type Options struct {
	// Store persists committed snapshots. Defaults to an in-memory store.
	Store *store.Store
	// Mirror receives committed events. Optional.
	Mirror *mirror.Mirror
	// Payer delivers payouts. Defaults to an in-memory vault.
	Payer stagefund.Payer
	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
	// RetainBlocks is how many committed heights the store keeps.
	// Zero keeps all of them.
	RetainBlocks uint64
	// EventRetain is how many committed events /events can serve.
	// Zero keeps all of them.
	EventRetain int
	// Params apply when the genesis document carries none. Defaults to
	// types.DefaultParams.
	Params *types.GovernanceParams
}

type staged struct {
	machine  *machine
	snapshot types.StateSnapshot
	appHash  types.AppHash
}

// App implements stagefund.Application.
type App struct {
	store        *store.Store
	mirror       *mirror.Mirror
	payer        stagefund.Payer
	log          zerolog.Logger
	retainBlocks uint64
	params       types.GovernanceParams
	journal      *journal.Journal

	mu        sync.RWMutex
	committed *machine
	snapshot  types.StateSnapshot
	appHash   types.AppHash
	staged    *staged
}

// New creates an application. Handshake must be called before use.
func New(opts Options) *App {
	a := &App{
		store:        opts.Store,
		mirror:       opts.Mirror,
		payer:        opts.Payer,
		log:          zerolog.Nop(),
		retainBlocks: opts.RetainBlocks,
		params:       types.DefaultParams(),
		journal:      journal.New(opts.EventRetain),
	}
	if opts.Params != nil {
		a.params = *opts.Params
	}
	if opts.Logger != nil {
		a.log = *opts.Logger
	}
	if a.store == nil {
		a.store = store.NewMem()
	}
	if a.payer == nil {
		a.payer = ledger.NewVault()
	}
	return a
}

// Handshake installs genesis state or restores the last commit.
func (a *App) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if req.LastCommitted == nil {
		return a.genesis(ctx, req.Genesis)
	}

	c, ok, err := a.store.Latest()
	if err != nil {
		return types.HandshakeResponse{}, fmt.Errorf("load latest commit: %w", err)
	}
	if !ok {
		return types.HandshakeResponse{}, fmt.Errorf("host is at height %d but no state is stored", req.LastCommitted.Height)
	}
	m, err := restoreMachine(c.Snapshot, a.payer, a.journal, a.log)
	if err != nil {
		return types.HandshakeResponse{}, fmt.Errorf("restore height %d: %w", c.Height, err)
	}
	a.journal.Reset(c.Snapshot.EventSeq)
	a.committed, a.snapshot, a.appHash = m, c.Snapshot, c.AppHash
	if c.Height != req.LastCommitted.Height {
		a.log.Warn().Uint64("app_height", c.Height).Uint64("host_height", req.LastCommitted.Height).
			Msg("stored height differs from host")
	}
	a.log.Info().Uint64("height", c.Height).Msg("restored committed state")

	h := c.AppHash
	return types.HandshakeResponse{
		LastBlock:    &types.BlockID{Height: c.Height},
		AppHash:      &h,
		Capabilities: types.CapSimulation,
	}, nil
}

func (a *App) genesis(ctx context.Context, doc *types.GenesisDoc) (types.HandshakeResponse, error) {
	params := a.params
	var (
		stakes []types.StakeEntry
		start  time.Time
	)
	if doc != nil {
		start = doc.GenesisTime.ToTime()
		if doc.Params != (types.GovernanceParams{}) {
			params = doc.Params
		}
		stakes = doc.Stakes
	}
	if err := params.Validate(); err != nil {
		return types.HandshakeResponse{}, fmt.Errorf("genesis params: %w", err)
	}

	m, err := newMachine(params, a.payer, a.journal, a.log)
	if err != nil {
		return types.HandshakeResponse{}, err
	}
	a.journal.Begin(0)
	for _, s := range stakes {
		if _, err := m.stakes.Bond(s.Staker, s.Amount); err != nil {
			return types.HandshakeResponse{}, fmt.Errorf("genesis stake %q: %w", s.Staker, err)
		}
	}
	a.journal.Flush()
	if err := a.mirrorEvents(ctx); err != nil {
		return types.HandshakeResponse{}, err
	}

	snap := m.snapshot(0, a.journal.Seq(), start)
	h, err := hashSnapshot(snap)
	if err != nil {
		return types.HandshakeResponse{}, err
	}
	a.committed, a.snapshot, a.appHash = m, snap, h
	a.log.Info().Int("stakes", len(stakes)).Uint32("quorum_bps", params.QuorumBps).Msg("genesis installed")
	return types.HandshakeResponse{AppHash: &h, Capabilities: types.CapSimulation}, nil
}

// CheckTx runs stateless validation only.
func (a *App) CheckTx(_ context.Context, tx types.Tx, _ types.MempoolContext) (types.GateVerdict, error) {
	op, err := types.DecodeOp(tx)
	if err == nil {
		err = op.ValidateBasic()
	}
	if err != nil {
		return types.GateVerdict{Code: uint32(stagefund.KindValidation), Info: err.Error()}, nil
	}
	return types.GateVerdict{Sender: string(op.Sender)}, nil
}

// ExecuteBlock applies the block's ops in order at the block's time.
func (a *App) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.committed == nil {
		return types.BlockOutcome{}, errors.New("execute before handshake")
	}
	m, err := restoreMachine(a.snapshot, a.payer, a.journal, a.log)
	if err != nil {
		return types.BlockOutcome{}, stagefund.NewHaltError(block.Height, err.Error())
	}
	a.journal.Begin(block.Height)
	now := block.Time.ToTime()
	ctx = stagefund.WithBlockHeight(ctx, block.Height)

	outcomes := make([]types.TxOutcome, len(block.Txs))
	for i, tx := range block.Txs {
		before := len(a.journal.Pending())
		out := m.runTx(ctx, now, uint32(i), tx)
		if pending := a.journal.Pending(); len(pending) > before {
			for _, re := range pending[before:] {
				out.Events = append(out.Events, re.Event)
			}
		}
		if !out.OK() {
			a.log.Debug().Uint64("height", block.Height).Uint32("index", out.Index).
				Uint32("code", out.Code).Str("info", out.Info).Msg("op rejected")
		}
		outcomes[i] = out
	}

	if err := m.ledger.CheckInvariants(); err != nil {
		return types.BlockOutcome{}, stagefund.NewHaltError(block.Height, err.Error())
	}

	seq := a.journal.Seq()
	if pending := a.journal.Pending(); len(pending) > 0 {
		seq = pending[len(pending)-1].Seq
	}
	snap := m.snapshot(block.Height, seq, now)
	h, err := hashSnapshot(snap)
	if err != nil {
		return types.BlockOutcome{}, err
	}
	a.staged = &staged{machine: m, snapshot: snap, appHash: h}
	return types.BlockOutcome{TxOutcomes: outcomes, AppHash: h}, nil
}

// Commit persists the executed block and publishes its state and events.
func (a *App) Commit(ctx context.Context) (types.CommitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.staged
	if s == nil {
		return types.CommitResult{}, errors.New("commit without executed block")
	}
	height := s.snapshot.Height
	var retain uint64
	if a.retainBlocks > 0 && height > a.retainBlocks {
		retain = height - a.retainBlocks
	}
	if err := a.store.Save(store.Commit{Height: height, AppHash: s.appHash, Snapshot: s.snapshot}, retain); err != nil {
		return types.CommitResult{}, err
	}

	events := a.journal.Flush()
	a.committed, a.snapshot, a.appHash = s.machine, s.snapshot, s.appHash
	a.staged = nil

	if err := a.mirrorEvents(ctx); err != nil {
		a.log.Error().Err(err).Uint64("height", height).Msg("event mirror is behind")
	}
	a.log.Info().Uint64("height", height).Int("events", len(events)).
		Hex("app_hash", s.appHash[:]).Msg("committed")
	return types.CommitResult{RetainHeight: retain}, nil
}

// mirrorEvents brings the mirror up to the journal. Events a failed
// apply left behind are replayed from the journal's history.
func (a *App) mirrorEvents(ctx context.Context) error {
	if a.mirror == nil {
		return nil
	}
	cursor, _, err := a.mirror.Cursor(ctx)
	if err != nil {
		return err
	}
	if cursor >= a.journal.Seq() {
		return nil
	}
	_, err = a.mirror.Apply(ctx, a.journal.Since(cursor, 0))
	return err
}

// Simulate runs tx against a throwaway copy of the committed state at
// the last block's time. Payouts go to a scratch vault.
func (a *App) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	a.mu.RLock()
	snap, height := a.snapshot, a.snapshot.Height
	ready := a.committed != nil
	a.mu.RUnlock()
	if !ready {
		return types.TxOutcome{}, errors.New("simulate before handshake")
	}

	j := journal.New(0)
	j.Reset(snap.EventSeq)
	j.Begin(height + 1)
	m, err := restoreMachine(snap, ledger.NewVault(), j, zerolog.Nop())
	if err != nil {
		return types.TxOutcome{}, err
	}
	out := m.runTx(ctx, snap.BlockTime.ToTime(), 0, tx)
	for _, re := range j.Pending() {
		out.Events = append(out.Events, re.Event)
	}
	return out, nil
}

// hashSnapshot is the app hash: sha256 over the cramberry encoding.
func hashSnapshot(snap types.StateSnapshot) (types.AppHash, error) {
	data, err := cramberry.Marshal(snap)
	if err != nil {
		return types.AppHash{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return types.AppHash(sha256.Sum256(data)), nil
}
