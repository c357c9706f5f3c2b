package ledger

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/blockberries/stagefund/types"
)

// campaignState is immutable once published; writers mutate a clone.
type campaignState struct {
	header types.Campaign
	shares map[types.Address]types.Amount
}

func (s *campaignState) clone() *campaignState {
	c := &campaignState{
		header: s.header.Clone(),
		shares: make(map[types.Address]types.Amount, len(s.shares)),
	}
	for addr, v := range s.shares {
		c.shares[addr] = v
	}
	return c
}

func (s *campaignState) contributions() []types.Contribution {
	out := make([]types.Contribution, 0, len(s.shares))
	for addr, share := range s.shares {
		out = append(out, types.Contribution{Campaign: s.header.ID, Contributor: addr, Share: share})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contributor < out[j].Contributor })
	return out
}

// check verifies the custody invariants of one campaign.
func (s *campaignState) check() error {
	h := s.header
	var stages, shares types.Amount
	for _, a := range h.Stages {
		stages += a
	}
	if stages != h.Goal {
		return fmt.Errorf("campaign %d: stages sum to %d, goal is %d", h.ID, stages, h.Goal)
	}
	for addr, v := range s.shares {
		if v == 0 {
			return fmt.Errorf("campaign %d: zero share kept for %s", h.ID, addr)
		}
		shares += v
	}
	if shares != h.TotalShares {
		return fmt.Errorf("campaign %d: shares sum to %d, total is %d", h.ID, shares, h.TotalShares)
	}
	if h.TotalShares > h.FundsRaised {
		return fmt.Errorf("campaign %d: total shares %d exceed funds raised %d", h.ID, h.TotalShares, h.FundsRaised)
	}
	if h.TotalReleased+h.TotalRefunded > h.FundsRaised {
		return fmt.Errorf("campaign %d: paid out %d of %d raised", h.ID, h.TotalReleased+h.TotalRefunded, h.FundsRaised)
	}
	if h.NextStage > h.StageCount() {
		return fmt.Errorf("campaign %d: stage pointer %d past %d stages", h.ID, h.NextStage, h.StageCount())
	}
	var released types.Amount
	for i := uint32(0); i < h.NextStage; i++ {
		released += h.Stages[i]
	}
	if released != h.TotalReleased {
		return fmt.Errorf("campaign %d: released %d, schedule says %d", h.ID, h.TotalReleased, released)
	}
	return nil
}

// proRata computes balance*share/total without overflowing. share must
// not exceed total, which keeps the quotient within balance.
func proRata(balance, share, total types.Amount) types.Amount {
	if total == 0 || share == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(balance), uint64(share))
	q, _ := bits.Div64(hi, lo, uint64(total))
	return types.Amount(q)
}
