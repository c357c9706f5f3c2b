package types

// LedgerSnapshot is the full custody state of the escrow ledger.
// Slices are sorted by id (and contributor) so encoding is deterministic.
type LedgerSnapshot struct {
	NextCampaign  CampaignID     `cramberry:"1"`
	Campaigns     []Campaign     `cramberry:"2"`
	Contributions []Contribution `cramberry:"3"`
}

// DefeatCount tracks failed attempts for one stage.
type DefeatCount struct {
	Campaign CampaignID `cramberry:"1"`
	Stage    uint32     `cramberry:"2"`
	Count    uint32     `cramberry:"3"`
}

// GovernanceSnapshot is the full proposal and receipt state.
type GovernanceSnapshot struct {
	NextProposal ProposalID    `cramberry:"1"`
	Proposals    []Proposal    `cramberry:"2"`
	Receipts     []VoteReceipt `cramberry:"3"`
	Defeats      []DefeatCount `cramberry:"4"`
}

// StateSnapshot is what the app persists on every commit.
type StateSnapshot struct {
	Height     uint64             `cramberry:"1"`
	Params     GovernanceParams   `cramberry:"2"`
	Ledger     LedgerSnapshot     `cramberry:"3"`
	Governance GovernanceSnapshot `cramberry:"4"`
	Stakes     []StakeEntry       `cramberry:"5"`
	// Sequence number of the last journaled event.
	EventSeq uint64 `cramberry:"6"`
	// Time of the block that produced this state.
	BlockTime Timestamp `cramberry:"7"`
}
