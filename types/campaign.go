package types

import (
	"fmt"
	"time"
)

// WeightStrategy selects how a campaign's voters are weighted.
type WeightStrategy uint8

const (
	// StrategyContribution weights voters by their escrow share.
	StrategyContribution WeightStrategy = 1
	// StrategyStake weights voters by their bond in the stake registry.
	StrategyStake WeightStrategy = 2
)

func (s WeightStrategy) String() string {
	switch s {
	case StrategyContribution:
		return "contribution"
	case StrategyStake:
		return "stake"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseWeightStrategy is the inverse of WeightStrategy.String.
func ParseWeightStrategy(s string) (WeightStrategy, bool) {
	switch s {
	case "contribution":
		return StrategyContribution, true
	case "stake":
		return StrategyStake, true
	default:
		return 0, false
	}
}

// CampaignSpec carries the immutable parameters of a new campaign.
type CampaignSpec struct {
	Owner    Address        `cramberry:"1"`
	Goal     Amount         `cramberry:"2"`
	Deadline Timestamp      `cramberry:"3"`
	Stages   []Amount       `cramberry:"4"`
	Strategy WeightStrategy `cramberry:"5"`
}

// Campaign is the custody header of one funding effort.
//
// NextStage doubles as the released bitmap: stages are released in
// order, so stage i is released iff i < NextStage.
type Campaign struct {
	ID       CampaignID     `cramberry:"1"`
	Owner    Address        `cramberry:"2"`
	Goal     Amount         `cramberry:"3"`
	Deadline Timestamp      `cramberry:"4"`
	Stages   []Amount       `cramberry:"5"`
	Strategy WeightStrategy `cramberry:"6"`

	NextStage     uint32 `cramberry:"7"`
	FundsRaised   Amount `cramberry:"8"`
	TotalReleased Amount `cramberry:"9"`
	TotalRefunded Amount `cramberry:"10"`
	TotalShares   Amount `cramberry:"11"`
	Failed        bool   `cramberry:"12"`
}

// Balance is what the escrow currently holds for the campaign.
func (c Campaign) Balance() Amount {
	return c.FundsRaised - c.TotalReleased - c.TotalRefunded
}

// GoalMet reports whether the funding goal was reached.
func (c Campaign) GoalMet() bool { return c.FundsRaised >= c.Goal }

// DeadlinePassed reports whether now is at or after the funding deadline.
func (c Campaign) DeadlinePassed(now time.Time) bool {
	return c.Deadline.Reached(now)
}

// Refundable reports whether contributors may reclaim their share.
func (c Campaign) Refundable(now time.Time) bool {
	return c.Failed || (c.DeadlinePassed(now) && !c.GoalMet())
}

// StageCount returns the number of stages in the schedule.
func (c Campaign) StageCount() uint32 { return uint32(len(c.Stages)) }

// Completed reports whether every stage has been released.
func (c Campaign) Completed() bool { return c.NextStage >= c.StageCount() }

// StageReleased reports whether stage index i was released.
func (c Campaign) StageReleased(i uint32) bool { return i < c.NextStage }

// Contribution is one contributor's claim on a campaign's escrow.
type Contribution struct {
	Campaign    CampaignID `cramberry:"1"`
	Contributor Address    `cramberry:"2"`
	Share       Amount     `cramberry:"3"`
}

// StageAllocation describes one entry of a campaign's stage schedule.
type StageAllocation struct {
	Campaign CampaignID `cramberry:"1"`
	Index    uint32     `cramberry:"2"`
	Amount   Amount     `cramberry:"3"`
	Released bool       `cramberry:"4"`
}

// StakeEntry is one bond in the stake registry.
type StakeEntry struct {
	Staker Address `cramberry:"1"`
	Amount Amount  `cramberry:"2"`
}

// Clone returns a copy that shares no memory with c.
func (c Campaign) Clone() Campaign {
	out := c
	out.Stages = append([]Amount(nil), c.Stages...)
	return out
}
