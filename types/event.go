package types

import (
	"strconv"
	"time"
)

// Event kinds emitted by the ledger and the governance engine.
const (
	EventCampaignCreated   = "campaign_created"
	EventDonation          = "donation"
	EventGoalReached       = "goal_reached"
	EventProposalCreated   = "proposal_created"
	EventVoteCast          = "vote_cast"
	EventProposalResolved  = "proposal_resolved"
	EventProposalCancelled = "proposal_cancelled"
	EventFundsReleased     = "funds_released"
	EventRefundIssued      = "refund_issued"
	EventCampaignFailed    = "campaign_failed"
	EventStakeBonded       = "stake_bonded"
	EventStakeUnbonded     = "stake_unbonded"
)

// Attribute keys.
const (
	AttrCampaign     = "campaign"
	AttrOwner        = "owner"
	AttrGoal         = "goal"
	AttrDeadline     = "deadline"
	AttrStages       = "stages"
	AttrStrategy     = "strategy"
	AttrDonor        = "donor"
	AttrAmount       = "amount"
	AttrShare        = "share"
	AttrTotalShares  = "total_shares"
	AttrFundsRaised  = "funds_raised"
	AttrReleased     = "total_released"
	AttrRefunded     = "total_refunded"
	AttrStage        = "stage"
	AttrNextStage    = "next_stage"
	AttrRecipient    = "recipient"
	AttrProposal     = "proposal"
	AttrEvidence     = "evidence"
	AttrVotingStart  = "voting_start"
	AttrVotingEnd    = "voting_end"
	AttrVoter        = "voter"
	AttrSupport      = "support"
	AttrWeight       = "weight"
	AttrVotesFor     = "votes_for"
	AttrVotesAgainst = "votes_against"
	AttrStatus       = "status"
	AttrStaker       = "staker"
	AttrBonded       = "bonded"
	AttrTotalBonded  = "total_bonded"
)

// EventAttribute is a single key-value tag within an event.
type EventAttribute struct {
	Key   string `cramberry:"1"`
	Value string `cramberry:"2"`
	Index bool   `cramberry:"3"` // Whether indexers should pick this up.
}

// Event is an application-emitted event.
type Event struct {
	Kind       string           `cramberry:"1"`
	Attributes []EventAttribute `cramberry:"2"`
}

// NewEvent starts an event of the given kind.
func NewEvent(kind string) Event {
	return Event{Kind: kind}
}

// With appends an indexed attribute.
func (e Event) With(key, value string) Event {
	e.Attributes = append(e.Attributes, EventAttribute{Key: key, Value: value, Index: true})
	return e
}

// WithUint appends an indexed numeric attribute.
func (e Event) WithUint(key string, v uint64) Event {
	return e.With(key, strconv.FormatUint(v, 10))
}

// WithTime appends a unix-nanosecond attribute.
func (e Event) WithTime(key string, t time.Time) Event {
	return e.With(key, strconv.FormatInt(t.UnixNano(), 10))
}

// Attr returns the value of the first attribute with key.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Uint parses a numeric attribute. Missing or malformed values yield 0, false.
func (e Event) Uint(key string) (uint64, bool) {
	v, ok := e.Attr(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Time parses an attribute written with WithTime.
func (e Event) Time(key string) (time.Time, bool) {
	v, ok := e.Attr(key)
	if !ok {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, n).UTC(), true
}

// RecordedEvent is an event as committed to the journal.
type RecordedEvent struct {
	Seq    uint64 `cramberry:"1"`
	Height uint64 `cramberry:"2"`
	Event  Event  `cramberry:"3"`
}
