package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

// ErrHalted is returned for sequential calls after the application
// halted.
var ErrHalted = errors.New("stagefund: application halted")

// Server wraps an application with lifecycle enforcement and
// capability routing. The host talks to the application only through
// a Server.
type Server struct {
	app   stagefund.Lifecycle
	guard *LifecycleGuard
	log   zerolog.Logger
	caps  types.Capabilities

	// Nil if the application does not implement it.
	simulator stagefund.Simulator

	// Held between ExecuteBlock and Commit.
	mu             sync.Mutex
	lastOutcome    *types.BlockOutcome
	lastExecHeight uint64
	halt           *stagefund.HaltError
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a Server wrapping app.
func New(app stagefund.Lifecycle, opts ...Option) *Server {
	s := &Server{
		app:   app,
		guard: NewLifecycleGuard(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Validated against the declared capabilities at handshake.
	s.simulator, _ = app.(stagefund.Simulator)
	return s
}

// Handshake performs the startup handshake and checks the declared
// capabilities.
func (s *Server) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	s.guard.AcquireHandshake()

	resp, err := s.app.Handshake(ctx, req)
	if err != nil {
		s.guard.FailHandshake()
		return resp, err
	}
	if err := s.discoverCapabilities(resp.Capabilities); err != nil {
		s.guard.FailHandshake()
		return resp, err
	}

	s.caps = resp.Capabilities
	s.guard.CompleteHandshake()
	return resp, nil
}

// CheckTx gate-checks an op. Safe for concurrent use.
func (s *Server) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	s.guard.CheckConcurrent()
	return s.app.CheckTx(ctx, tx, mctx)
}

// ExecuteBlock executes a block. A HaltError from the application
// halts the server for good.
func (s *Server) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	if s.guard.IsHalted() {
		return types.BlockOutcome{}, s.haltErr()
	}
	s.guard.AcquireExecute()

	outcome, err := s.app.ExecuteBlock(ctx, block)
	if err != nil {
		if h, ok := stagefund.IsHalt(err); ok {
			s.mu.Lock()
			s.halt = h
			s.mu.Unlock()
			s.log.Error().Uint64("height", h.Height).Str("reason", h.Reason).Msg("application halted")
			s.guard.Halt()
			return outcome, err
		}
		s.guard.FailExecute()
		return outcome, err
	}

	s.mu.Lock()
	s.lastOutcome = &outcome
	s.lastExecHeight = block.Height
	s.mu.Unlock()

	s.guard.CompleteExecute()
	return outcome, nil
}

// Commit persists the last executed block.
func (s *Server) Commit(ctx context.Context) (types.CommitResult, error) {
	if s.guard.IsHalted() {
		return types.CommitResult{}, s.haltErr()
	}
	s.guard.AcquireCommit()

	result, err := s.app.Commit(ctx)

	s.mu.Lock()
	s.lastOutcome = nil
	s.mu.Unlock()

	s.guard.CompleteCommit()
	return result, err
}

// Query reads application state. Safe for concurrent use.
func (s *Server) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	s.guard.CheckConcurrent()
	return s.app.Query(ctx, req)
}

// Simulate delegates to the Simulator if supported. Safe for
// concurrent use.
func (s *Server) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	if s.simulator == nil {
		return types.TxOutcome{}, fmt.Errorf("stagefund: Simulator not supported")
	}
	s.guard.CheckConcurrent()
	return s.simulator.Simulate(ctx, tx)
}

// Capabilities returns the declared capabilities. Only valid after
// Handshake.
func (s *Server) Capabilities() types.Capabilities {
	return s.caps
}

// AsSimulator returns the Simulator if it was declared, else nil.
func (s *Server) AsSimulator() stagefund.Simulator {
	if s.caps.Has(types.CapSimulation) {
		return s.simulator
	}
	return nil
}

// LastOutcome returns the outcome pending commit, or nil.
func (s *Server) LastOutcome() *types.BlockOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}

// State returns the lifecycle state name.
func (s *Server) State() string { return s.guard.State() }

// Close is a no-op for the server wrapper.
func (s *Server) Close() error { return nil }

func (s *Server) haltErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halt != nil {
		return fmt.Errorf("%w: %v", ErrHalted, s.halt)
	}
	return ErrHalted
}

// discoverCapabilities checks the declared capabilities against the
// interfaces the application implements.
func (s *Server) discoverCapabilities(declared types.Capabilities) error {
	_, hasSimulator := s.app.(stagefund.Simulator)
	if declared.Has(types.CapSimulation) && !hasSimulator {
		return fmt.Errorf("stagefund: app declared CapSimulation but does not implement Simulator")
	}
	if !declared.Has(types.CapSimulation) && hasSimulator {
		s.log.Warn().Msg("app implements Simulator but did not declare it; capability will not be used")
	}
	return nil
}
