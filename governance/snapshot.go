package governance

import (
	"fmt"
	"sort"

	"github.com/blockberries/stagefund/types"
)

// Snapshot captures every proposal, receipt and defeat counter in a
// deterministic order.
func (e *Engine) Snapshot() types.GovernanceSnapshot {
	e.mu.RLock()
	snap := types.GovernanceSnapshot{NextProposal: e.nextID}
	ids := make([]types.CampaignID, 0, len(e.campaigns))
	states := make(map[types.CampaignID]*campaignGov, len(e.campaigns))
	for id, s := range e.campaigns {
		ids = append(ids, id)
		states[id] = s.state.Load()
	}
	e.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		g := states[id]
		for _, p := range g.sortedProposals() {
			snap.Proposals = append(snap.Proposals, p)
			receipts := make([]types.VoteReceipt, 0, len(g.receipts[p.ID]))
			for _, r := range g.receipts[p.ID] {
				receipts = append(receipts, r)
			}
			sort.Slice(receipts, func(i, j int) bool { return receipts[i].Voter < receipts[j].Voter })
			snap.Receipts = append(snap.Receipts, receipts...)
		}
		stages := make([]uint32, 0, len(g.defeats))
		for st := range g.defeats {
			stages = append(stages, st)
		}
		sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
		for _, st := range stages {
			snap.Defeats = append(snap.Defeats, types.DefeatCount{Campaign: id, Stage: st, Count: g.defeats[st]})
		}
	}
	return snap
}

// Restore replaces the engine's contents with snap.
func (e *Engine) Restore(snap types.GovernanceSnapshot) error {
	states := make(map[types.CampaignID]*campaignGov)
	index := make(map[types.ProposalID]types.CampaignID, len(snap.Proposals))
	get := func(id types.CampaignID) *campaignGov {
		g, ok := states[id]
		if !ok {
			g = newCampaignGov()
			states[id] = g
		}
		return g
	}

	for _, p := range snap.Proposals {
		if p.ID == 0 || p.ID > snap.NextProposal {
			return fmt.Errorf("proposal id %d outside 1..%d", p.ID, snap.NextProposal)
		}
		if _, dup := index[p.ID]; dup {
			return fmt.Errorf("duplicate proposal %d", p.ID)
		}
		g := get(p.Campaign)
		g.proposals[p.ID] = p
		index[p.ID] = p.Campaign
		if p.Status == types.ProposalActive {
			if other, busy := g.active[p.Stage]; busy {
				return fmt.Errorf("campaign %d stage %d has active proposals %d and %d",
					p.Campaign, p.Stage, other, p.ID)
			}
			g.active[p.Stage] = p.ID
		}
	}
	for _, r := range snap.Receipts {
		cid, ok := index[r.Proposal]
		if !ok {
			return fmt.Errorf("receipt for unknown proposal %d", r.Proposal)
		}
		g := states[cid]
		set, ok := g.receipts[r.Proposal]
		if !ok {
			set = make(map[types.Address]types.VoteReceipt)
			g.receipts[r.Proposal] = set
		}
		set[r.Voter] = r
	}
	for _, d := range snap.Defeats {
		get(d.Campaign).defeats[d.Stage] = d.Count
	}

	campaigns := make(map[types.CampaignID]*slot, len(states))
	for id, g := range states {
		s := &slot{}
		s.state.Store(g)
		campaigns[id] = s
	}
	e.mu.Lock()
	e.campaigns = campaigns
	e.index = index
	e.nextID = snap.NextProposal
	e.mu.Unlock()
	return nil
}
