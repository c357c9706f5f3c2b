package types

import (
	"fmt"
	"time"
)

// ProposalStatus is the lifecycle state of a stage-release proposal.
type ProposalStatus uint8

const (
	ProposalActive    ProposalStatus = 1
	ProposalExecuted  ProposalStatus = 2
	ProposalDefeated  ProposalStatus = 3
	ProposalCancelled ProposalStatus = 4
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalActive:
		return "active"
	case ProposalExecuted:
		return "executed"
	case ProposalDefeated:
		return "defeated"
	case ProposalCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseProposalStatus is the inverse of ProposalStatus.String.
func ParseProposalStatus(s string) (ProposalStatus, bool) {
	for _, st := range []ProposalStatus{ProposalActive, ProposalExecuted, ProposalDefeated, ProposalCancelled} {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Terminal reports whether no further transition is possible.
func (s ProposalStatus) Terminal() bool { return s != ProposalActive }

// Proposal is a time-boxed request to release one stage.
type Proposal struct {
	ID           ProposalID     `cramberry:"1"`
	Campaign     CampaignID     `cramberry:"2"`
	Stage        uint32         `cramberry:"3"`
	Proposer     Address        `cramberry:"4"`
	Evidence     string         `cramberry:"5"`
	VotingStart  Timestamp      `cramberry:"6"`
	VotingEnd    Timestamp      `cramberry:"7"`
	VotesFor     uint64         `cramberry:"8"`
	VotesAgainst uint64         `cramberry:"9"`
	Status       ProposalStatus `cramberry:"10"`
}

// VotingOpen reports whether now falls inside [VotingStart, VotingEnd).
func (p Proposal) VotingOpen(now time.Time) bool {
	return p.VotingStart.Reached(now) && !p.VotingEnd.Reached(now)
}

// VotingClosed reports whether the voting window has ended.
func (p Proposal) VotingClosed(now time.Time) bool {
	return p.VotingEnd.Reached(now)
}

// VoteReceipt records one voter's participation on one proposal.
// It is written once and never changes.
type VoteReceipt struct {
	Proposal ProposalID `cramberry:"1"`
	Voter    Address    `cramberry:"2"`
	Voted    bool       `cramberry:"3"`
	Support  bool       `cramberry:"4"`
	Weight   uint64     `cramberry:"5"`
}
