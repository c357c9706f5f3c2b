package types

// MempoolContext tells CheckTx whether an op is new to the host or is
// being re-checked after a commit.
type MempoolContext uint8

const (
	MempoolFirstSeen    MempoolContext = 1
	MempoolRevalidation MempoolContext = 2
)

// GateVerdict is the admission decision for one op.
type GateVerdict struct {
	// 0 = admitted. Otherwise the error kind of the rejection.
	Code uint32 `cramberry:"1"`
	// Rejection reason.
	Info string `cramberry:"2"`
	// Higher is sequenced first. Unused by stagefund, always 0.
	Priority int64 `cramberry:"3"`
	// The op's Sender, for per-caller sequencing.
	Sender string `cramberry:"4"`
}

// Accepted returns true if the op was admitted.
func (v GateVerdict) Accepted() bool { return v.Code == 0 }
