package types

import (
	"errors"
	"time"
)

// BasisPoints is the denominator for QuorumBps.
const BasisPoints = 10_000

// GovernanceParams are fixed per deployment.
type GovernanceParams struct {
	VotingPeriod Duration `cramberry:"1"`
	// Fraction of total eligible weight that must vote, in basis points.
	QuorumBps uint32 `cramberry:"2"`
	// Defeats per stage after which the campaign is failed. 0 = unlimited.
	MaxDefeats uint32 `cramberry:"3"`
}

// DefaultParams returns a three-day window, 50% quorum and three
// attempts per stage.
func DefaultParams() GovernanceParams {
	return GovernanceParams{
		VotingPeriod: DurationFromGo(72 * time.Hour),
		QuorumBps:    5_000,
		MaxDefeats:   3,
	}
}

// Validate checks the parameters for internal consistency.
func (p GovernanceParams) Validate() error {
	if p.VotingPeriod.ToGo() <= 0 {
		return errors.New("voting period must be positive")
	}
	if p.QuorumBps > BasisPoints {
		return errors.New("quorum cannot exceed 100%")
	}
	return nil
}
