// Package ledger implements the escrow ledger: custody of campaign
// funds, the contribution share table and the stage-release schedule.
//
// Each campaign is a single-writer state machine. Writers serialize on
// a per-campaign mutex, apply their effects to a private copy of the
// campaign state and publish it with one atomic pointer swap once
// every effect, payouts included, has succeeded. Readers load the
// published pointer and never wait on a writer.
package ledger

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

// Compile-time interface check.
var _ stagefund.Escrow = (*Ledger)(nil)

// Ledger owns every campaign's custody state.
type Ledger struct {
	payer stagefund.Payer
	rec   stagefund.Recorder
	log   zerolog.Logger

	mu        sync.RWMutex
	campaigns map[types.CampaignID]*slot
	nextID    types.CampaignID
	governor  *stagefund.Capability
}

// slot is the serialization point of one campaign.
type slot struct {
	mu    sync.Mutex
	state atomic.Pointer[campaignState]
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRecorder sets where committed events go.
func WithRecorder(r stagefund.Recorder) Option {
	return func(l *Ledger) { l.rec = r }
}

// WithLogger sets the ledger's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// New creates an empty ledger paying out through payer.
func New(payer stagefund.Payer, opts ...Option) *Ledger {
	l := &Ledger{
		payer:     payer,
		rec:       discard{},
		log:       zerolog.Nop(),
		campaigns: make(map[types.CampaignID]*slot),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IssueGovernorCapability hands out the token that authorizes
// ReleaseFunds and MarkFailed. It succeeds exactly once per ledger.
func (l *Ledger) IssueGovernorCapability(holder string) (*stagefund.Capability, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.governor != nil {
		return nil, stagefund.NewError(stagefund.KindAuthorization, "issue_capability",
			"governor capability already issued to %s", l.governor.Holder())
	}
	l.governor = stagefund.NewCapability(holder)
	return l.governor, nil
}

func (l *Ledger) authorize(op string, caller *stagefund.Capability) error {
	l.mu.RLock()
	gov := l.governor
	l.mu.RUnlock()
	if gov == nil || caller != gov {
		return stagefund.NewError(stagefund.KindAuthorization, op,
			"caller %q does not hold the governor capability", caller.Holder())
	}
	return nil
}

func (l *Ledger) slot(op string, id types.CampaignID) (*slot, error) {
	l.mu.RLock()
	s, ok := l.campaigns[id]
	l.mu.RUnlock()
	if !ok {
		return nil, stagefund.NewError(stagefund.KindValidation, op, "unknown campaign").ForCampaign(id)
	}
	return s, nil
}

// Campaign returns the campaign header.
func (l *Ledger) Campaign(id types.CampaignID) (types.Campaign, error) {
	s, err := l.slot("get_campaign", id)
	if err != nil {
		return types.Campaign{}, err
	}
	return s.state.Load().header.Clone(), nil
}

// Campaigns returns every campaign header ordered by id.
func (l *Ledger) Campaigns() []types.Campaign {
	l.mu.RLock()
	out := make([]types.Campaign, 0, len(l.campaigns))
	for _, s := range l.campaigns {
		out = append(out, s.state.Load().header.Clone())
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Contribution returns a contributor's share. Unknown contributors have
// a zero share.
func (l *Ledger) Contribution(id types.CampaignID, contributor types.Address) (types.Contribution, error) {
	s, err := l.slot("get_contribution", id)
	if err != nil {
		return types.Contribution{}, err
	}
	return types.Contribution{
		Campaign:    id,
		Contributor: contributor,
		Share:       s.state.Load().shares[contributor],
	}, nil
}

// Contributions returns every non-zero share of a campaign ordered by
// contributor.
func (l *Ledger) Contributions(id types.CampaignID) ([]types.Contribution, error) {
	s, err := l.slot("get_contributions", id)
	if err != nil {
		return nil, err
	}
	return s.state.Load().contributions(), nil
}

// StageAllocation returns one entry of the stage schedule.
func (l *Ledger) StageAllocation(id types.CampaignID, index uint32) (types.StageAllocation, error) {
	s, err := l.slot("get_stage", id)
	if err != nil {
		return types.StageAllocation{}, err
	}
	h := s.state.Load().header
	if index >= h.StageCount() {
		return types.StageAllocation{}, stagefund.NewError(stagefund.KindValidation, "get_stage",
			"stage %d out of range (campaign has %d)", index, h.StageCount()).ForCampaign(id)
	}
	return types.StageAllocation{
		Campaign: id,
		Index:    index,
		Amount:   h.Stages[index],
		Released: h.StageReleased(index),
	}, nil
}

type discard struct{}

func (discard) Record(...types.Event) {}
