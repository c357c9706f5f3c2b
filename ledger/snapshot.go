package ledger

import (
	"fmt"
	"sort"

	"github.com/blockberries/stagefund/types"
)

// Snapshot captures every campaign in a deterministic order. Campaigns
// are read one published state at a time.
func (l *Ledger) Snapshot() types.LedgerSnapshot {
	l.mu.RLock()
	snap := types.LedgerSnapshot{NextCampaign: l.nextID}
	states := make([]*campaignState, 0, len(l.campaigns))
	for _, s := range l.campaigns {
		states = append(states, s.state.Load())
	}
	l.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].header.ID < states[j].header.ID })
	for _, st := range states {
		snap.Campaigns = append(snap.Campaigns, st.header.Clone())
		snap.Contributions = append(snap.Contributions, st.contributions()...)
	}
	return snap
}

// Restore replaces the ledger's contents with snap. The governor
// capability is left untouched.
func (l *Ledger) Restore(snap types.LedgerSnapshot) error {
	states := make(map[types.CampaignID]*campaignState, len(snap.Campaigns))
	for _, c := range snap.Campaigns {
		if c.ID == 0 || c.ID > snap.NextCampaign {
			return fmt.Errorf("campaign id %d outside 1..%d", c.ID, snap.NextCampaign)
		}
		if _, dup := states[c.ID]; dup {
			return fmt.Errorf("duplicate campaign %d", c.ID)
		}
		states[c.ID] = &campaignState{header: c.Clone(), shares: make(map[types.Address]types.Amount)}
	}
	for _, ct := range snap.Contributions {
		st, ok := states[ct.Campaign]
		if !ok {
			return fmt.Errorf("contribution for unknown campaign %d", ct.Campaign)
		}
		st.shares[ct.Contributor] += ct.Share
	}
	for _, st := range states {
		if err := st.check(); err != nil {
			return err
		}
	}

	campaigns := make(map[types.CampaignID]*slot, len(states))
	for id, st := range states {
		s := &slot{}
		s.state.Store(st)
		campaigns[id] = s
	}
	l.mu.Lock()
	l.campaigns = campaigns
	l.nextID = snap.NextCampaign
	l.mu.Unlock()
	return nil
}

// CheckInvariants verifies the custody invariants of every campaign.
func (l *Ledger) CheckInvariants() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.campaigns {
		if err := s.state.Load().check(); err != nil {
			return err
		}
	}
	return nil
}
