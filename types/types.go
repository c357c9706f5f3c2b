// Package types defines the wire and domain types shared by the
// escrow ledger, the governance engine and the host boundary.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. Transport concerns
// (gRPC codec registration) are handled in the transport packages.
package types

import "fmt"

// Hash is a 32-byte cryptographic hash.
type Hash [32]byte

// AppHash is a deterministic fingerprint of the application
// state after execution.
type AppHash [32]byte

// Tx is an encoded operation. The host never inspects its contents.
type Tx []byte

// QueryPath selects a read-only view (e.g., "/campaign").
type QueryPath string

// Address is an opaque caller identity (donor, voter, owner).
type Address string

// CampaignID identifies a campaign. Ids start at 1.
type CampaignID uint64

// ProposalID identifies a stage-release proposal. Ids start at 1.
type ProposalID uint64

// Amount is a quantity of the smallest currency unit.
type Amount uint64

func (a Amount) String() string { return fmt.Sprintf("%d", uint64(a)) }

// BlockID uniquely identifies a point in the host's order.
type BlockID struct {
	Height uint64 `cramberry:"1"`
	Hash   Hash   `cramberry:"2"`
}
