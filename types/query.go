package types

import "github.com/blockberries/cramberry/pkg/cramberry"

// StateQuery is a request to read application state.
type StateQuery struct {
	Path QueryPath `cramberry:"1"`
	// Cramberry-encoded QueryArgs.
	Data []byte `cramberry:"2"`
}

// QueryArgs selects the record a query path addresses. Unused fields
// are ignored.
type QueryArgs struct {
	Campaign CampaignID `cramberry:"1"`
	Proposal ProposalID `cramberry:"2"`
	Address  Address    `cramberry:"3"`
	Stage    uint32     `cramberry:"4"`
	// For /events: return events with Seq > After.
	After uint64 `cramberry:"5"`
}

// StateQueryResult is the application's response to a state query.
// Value is JSON.
type StateQueryResult struct {
	Code   uint32 `cramberry:"1"`
	Key    []byte `cramberry:"2"`
	Value  []byte `cramberry:"3"`
	Height uint64 `cramberry:"4"`
	Info   string `cramberry:"5"`
}

// Encode returns the Data of a StateQuery selecting a.
func (a QueryArgs) Encode() []byte {
	data, _ := cramberry.Marshal(a) // flat struct, always encodable
	return data
}
