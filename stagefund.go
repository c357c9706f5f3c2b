// Package stagefund defines the contracts of a milestone-gated
// crowdfunding escrow: the host boundary that feeds ordered operations
// into the application, and the narrow interfaces that let the
// governance engine drive the escrow ledger.
//
// The core [Lifecycle] interface is required. [Simulator] is an
// optional capability discovered via Go type assertion at handshake
// time.
package stagefund

import (
	"context"

	"github.com/blockberries/stagefund/types"
)

// Lifecycle is the interface every stagefund application implements
// toward its host. The host owns sequencing; the application is a
// deterministic state machine over the ops it is handed.
//
// The host guarantees the following call order:
//  1. Handshake is called exactly once, before anything else.
//  2. ExecuteBlock(h) is called exactly once per committed height h.
//  3. Commit is called exactly once after each ExecuteBlock.
//  4. CheckTx, Query may be called concurrently at any time after Handshake.
type Lifecycle interface {
	// Handshake is called once on every startup (cold start or restart).
	//
	// If LastCommitted is nil this is a fresh deployment and Genesis
	// will be populated. Otherwise the application restores its
	// persisted state and reports it so the host can detect divergence.
	Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error)

	// CheckTx gate-checks an op before the host sequences it. It only
	// runs stateless validation.
	//
	// This method MUST be safe for concurrent use.
	CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error)

	// ExecuteBlock executes every op of a block in order, each one
	// atomically, at the block's timestamp. A failed op is reported in
	// its TxOutcome and commits nothing.
	ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error)

	// Commit persists all state changes from the last ExecuteBlock to
	// durable storage and publishes the block's events.
	Commit(ctx context.Context) (types.CommitResult, error)

	// Query reads application state. It MUST be safe for concurrent use.
	Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error)
}

// Simulator dry-runs an op against committed state without persisting
// any change.
//
// Declared via: types.CapSimulation in HandshakeResponse.Capabilities
type Simulator interface {
	Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error)
}

// Application is implemented by apps supporting every capability.
type Application interface {
	Lifecycle
	Simulator
}

// Connection represents a transport-agnostic connection to an
// application. Both gRPC clients and in-process adapters implement this.
type Connection interface {
	Lifecycle

	// Capabilities returns the capabilities discovered at handshake.
	// Must only be called after Handshake completes.
	Capabilities() types.Capabilities

	// AsSimulator returns the Simulator interface if available.
	AsSimulator() Simulator

	// Close terminates the connection.
	Close() error
}

// Capability is an unforgeable token the ledger hands out exactly once.
// The ledger compares pointers, so a token built elsewhere never
// matches the one it issued.
type Capability struct {
	holder string
}

// NewCapability mints a token naming its holder.
func NewCapability(holder string) *Capability {
	return &Capability{holder: holder}
}

// Holder names the component the token was issued to.
func (c *Capability) Holder() string {
	if c == nil {
		return ""
	}
	return c.holder
}

// Escrow is the only view of the ledger the governance engine holds.
// Release and failure are checked against the capability the ledger
// issued to the governance engine.
type Escrow interface {
	Campaign(id types.CampaignID) (types.Campaign, error)
	ReleaseFunds(ctx context.Context, caller *Capability, id types.CampaignID, stage uint32) error
	MarkFailed(ctx context.Context, caller *Capability, id types.CampaignID) error
}

// WeightStrategy decides how much a voter counts on a campaign.
type WeightStrategy interface {
	// Weight is the voter's current weight.
	Weight(c types.Campaign, voter types.Address) (uint64, error)
	// TotalWeight is the eligible weight quorum is measured against.
	TotalWeight(c types.Campaign) (uint64, error)
}

// Payer delivers money out of escrow. A returned error means nothing
// was delivered.
//
// Pay runs while the paying campaign is locked. A Payer that calls back
// into the ledger or the governance engine must pass on the context it
// was given; writes to the same campaign are then rejected with a state
// error instead of blocking.
//
// Payouts happen during ExecuteBlock. A block that is executed again
// after a failed attempt, or replayed after a crash before Commit, pays
// again, so a Payer must treat a repeated (campaign, recipient, amount)
// at the same height as already delivered. [PayoutHeight] carries the
// height.
type Payer interface {
	Pay(ctx context.Context, campaign types.CampaignID, to types.Address, amount types.Amount) error
}

// Recorder receives committed events in order.
type Recorder interface {
	Record(events ...types.Event)
}
