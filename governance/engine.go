// Package governance runs the stage-release vote: proposal lifecycle,
// vote receipts and the quorum-weighted tally. It never touches
// custody state. Releases and failures go through the escrow's
// capability-checked entry points.
package governance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

// Strategies resolves the weight strategy a campaign selected.
type Strategies interface {
	For(c types.Campaign) (stagefund.WeightStrategy, error)
}

// Engine owns every proposal and vote receipt.
type Engine struct {
	escrow     stagefund.Escrow
	token      *stagefund.Capability
	params     types.GovernanceParams
	strategies Strategies
	rec        stagefund.Recorder
	log        zerolog.Logger

	mu        sync.RWMutex
	campaigns map[types.CampaignID]*slot
	index     map[types.ProposalID]types.CampaignID
	nextID    types.ProposalID
}

type slot struct {
	mu    sync.Mutex
	state atomic.Pointer[campaignGov]
}

// lock takes the campaign's governance lock unless ctx is a payout of
// the same campaign, which already holds it further up the call chain.
func (s *slot) lock(ctx context.Context, op string, id types.CampaignID) error {
	if stagefund.InPayout(ctx, id) {
		return stagefund.NewError(stagefund.KindState, op, "payout in progress").ForCampaign(id)
	}
	s.mu.Lock()
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder sets where committed events go.
func WithRecorder(r stagefund.Recorder) Option {
	return func(e *Engine) { e.rec = r }
}

// WithLogger sets the engine's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an engine driving escrow with the capability it issued.
func New(escrow stagefund.Escrow, token *stagefund.Capability, params types.GovernanceParams,
	strategies Strategies, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("governance params: %w", err)
	}
	if token == nil {
		return nil, fmt.Errorf("governance: nil capability")
	}
	e := &Engine{
		escrow:     escrow,
		token:      token,
		params:     params,
		strategies: strategies,
		rec:        discard{},
		log:        zerolog.Nop(),
		campaigns:  make(map[types.CampaignID]*slot),
		index:      make(map[types.ProposalID]types.CampaignID),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Params returns the deployment's governance parameters.
func (e *Engine) Params() types.GovernanceParams { return e.params }

// slotFor returns the campaign's slot, creating it on first use.
func (e *Engine) slotFor(id types.CampaignID) *slot {
	e.mu.RLock()
	s, ok := e.campaigns[id]
	e.mu.RUnlock()
	if ok {
		return s
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok = e.campaigns[id]; ok {
		return s
	}
	s = &slot{}
	s.state.Store(newCampaignGov())
	e.campaigns[id] = s
	return s
}

func (e *Engine) lookup(op string, id types.ProposalID) (types.CampaignID, *slot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cid, ok := e.index[id]
	if !ok {
		return 0, nil, stagefund.NewError(stagefund.KindValidation, op, "unknown proposal").ForProposal(id)
	}
	return cid, e.campaigns[cid], nil
}

// Proposal returns a proposal by id.
func (e *Engine) Proposal(id types.ProposalID) (types.Proposal, error) {
	_, s, err := e.lookup("get_proposal", id)
	if err != nil {
		return types.Proposal{}, err
	}
	return s.state.Load().proposals[id], nil
}

// Receipt returns voter's receipt on a proposal. A voter who has not
// voted gets a receipt with Voted unset.
func (e *Engine) Receipt(id types.ProposalID, voter types.Address) (types.VoteReceipt, error) {
	_, s, err := e.lookup("get_receipt", id)
	if err != nil {
		return types.VoteReceipt{}, err
	}
	if r, ok := s.state.Load().receipts[id][voter]; ok {
		return r, nil
	}
	return types.VoteReceipt{Proposal: id, Voter: voter}, nil
}

// Proposals returns every proposal of a campaign ordered by id.
func (e *Engine) Proposals(campaign types.CampaignID) []types.Proposal {
	e.mu.RLock()
	s, ok := e.campaigns[campaign]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	return s.state.Load().sortedProposals()
}

// Defeats returns how many proposals for a stage were defeated.
func (e *Engine) Defeats(campaign types.CampaignID, stage uint32) uint32 {
	e.mu.RLock()
	s, ok := e.campaigns[campaign]
	e.mu.RUnlock()
	if !ok {
		return 0
	}
	return s.state.Load().defeats[stage]
}

func (g *campaignGov) sortedProposals() []types.Proposal {
	out := make([]types.Proposal, 0, len(g.proposals))
	for _, p := range g.proposals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type discard struct{}

func (discard) Record(...types.Event) {}
