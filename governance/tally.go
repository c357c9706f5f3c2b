package governance

import (
	"math/bits"

	"github.com/blockberries/stagefund/types"
)

// quorumReached reports whether votes*BasisPoints >= total*bps, compared
// in 128 bits.
func quorumReached(votes, total uint64, bps uint32) bool {
	vh, vl := bits.Mul64(votes, types.BasisPoints)
	th, tl := bits.Mul64(total, uint64(bps))
	if vh != th {
		return vh > th
	}
	return vl >= tl
}

// tally decides a closed proposal. A tie is not a majority.
func tally(p types.Proposal, total uint64, bps uint32) bool {
	votes, carry := bits.Add64(p.VotesFor, p.VotesAgainst, 0)
	if carry != 0 {
		votes = ^uint64(0)
	}
	return quorumReached(votes, total, bps) && p.VotesFor > p.VotesAgainst
}
