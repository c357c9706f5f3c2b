package types

// TxOutcome is the result of executing a single operation.
type TxOutcome struct {
	// Position of this op in the block (0-indexed).
	Index uint32 `cramberry:"1"`
	// 0 = success, otherwise the stagefund error kind.
	Code uint32 `cramberry:"2"`
	// Human-readable result info (for debugging).
	Info string `cramberry:"3"`
	// Cramberry-encoded op result (deterministic).
	Data []byte `cramberry:"4"`
	// Events committed by this op, in order.
	Events []Event `cramberry:"5"`
}

// OK returns true if the operation executed successfully.
func (t TxOutcome) OK() bool { return t.Code == 0 }

// BlockOutcome is the output of executing a finalized block.
type BlockOutcome struct {
	// Per-operation results, in block order.
	TxOutcomes []TxOutcome `cramberry:"1"`
	// New state root after this block.
	AppHash AppHash `cramberry:"2"`
}

// FinalizedBlock is an ordered batch of operations delivered by the
// host. Time is the clock every operation in the block observes.
type FinalizedBlock struct {
	Height uint64    `cramberry:"1"`
	Time   Timestamp `cramberry:"2"`
	Txs    []Tx      `cramberry:"3"`
}

// CommitResult is returned after the application persists state.
type CommitResult struct {
	// Minimum height the app still needs. 0 = no pruning preference.
	RetainHeight uint64 `cramberry:"1"`
}
