package governance

import "github.com/blockberries/stagefund/types"

// campaignGov is the governance state of one campaign. It is immutable
// once published; writers work on a clone.
type campaignGov struct {
	proposals map[types.ProposalID]types.Proposal
	receipts  map[types.ProposalID]map[types.Address]types.VoteReceipt
	// Non-terminal proposal per stage.
	active  map[uint32]types.ProposalID
	defeats map[uint32]uint32
}

func newCampaignGov() *campaignGov {
	return &campaignGov{
		proposals: make(map[types.ProposalID]types.Proposal),
		receipts:  make(map[types.ProposalID]map[types.Address]types.VoteReceipt),
		active:    make(map[uint32]types.ProposalID),
		defeats:   make(map[uint32]uint32),
	}
}

// clone copies the outer maps. Receipt sets are shared until a writer
// replaces one through addReceipt.
func (g *campaignGov) clone() *campaignGov {
	c := &campaignGov{
		proposals: make(map[types.ProposalID]types.Proposal, len(g.proposals)),
		receipts:  make(map[types.ProposalID]map[types.Address]types.VoteReceipt, len(g.receipts)),
		active:    make(map[uint32]types.ProposalID, len(g.active)),
		defeats:   make(map[uint32]uint32, len(g.defeats)),
	}
	for k, v := range g.proposals {
		c.proposals[k] = v
	}
	for k, v := range g.receipts {
		c.receipts[k] = v
	}
	for k, v := range g.active {
		c.active[k] = v
	}
	for k, v := range g.defeats {
		c.defeats[k] = v
	}
	return c
}

func (g *campaignGov) addReceipt(r types.VoteReceipt) {
	old := g.receipts[r.Proposal]
	set := make(map[types.Address]types.VoteReceipt, len(old)+1)
	for k, v := range old {
		set[k] = v
	}
	set[r.Voter] = r
	g.receipts[r.Proposal] = set
}

// finish moves a proposal to a terminal status and frees its stage.
func (g *campaignGov) finish(p types.Proposal, status types.ProposalStatus) types.Proposal {
	p.Status = status
	g.proposals[p.ID] = p
	if g.active[p.Stage] == p.ID {
		delete(g.active, p.Stage)
	}
	if status == types.ProposalDefeated {
		g.defeats[p.Stage]++
	}
	return p
}
