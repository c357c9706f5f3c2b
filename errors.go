package stagefund

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blockberries/stagefund/types"
)

// Kind classifies a rejected operation. It is also the TxOutcome code.
type Kind uint32

const (
	// KindValidation: malformed or out-of-range input.
	KindValidation Kind = iota + 1
	// KindState: operation invalid for the current phase.
	KindState
	// KindAuthorization: caller lacks the required capability.
	KindAuthorization
	// KindTransfer: a payout could not be delivered. Retryable.
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindAuthorization:
		return "authorization"
	case KindTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Sentinels for errors.Is matching on kind alone.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrState         = &Error{Kind: KindState}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrTransfer      = &Error{Kind: KindTransfer}
)

// Error is a rejected operation with its context.
type Error struct {
	Kind     Kind
	Op       string
	Campaign types.CampaignID
	Proposal types.ProposalID
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Campaign != 0 {
		fmt.Fprintf(&b, " campaign=%d", e.Campaign)
	}
	if e.Proposal != 0 {
		fmt.Fprintf(&b, " proposal=%d", e.Proposal)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a sentinel that carries only a Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Reason == "" && t.Err == nil &&
		t.Campaign == 0 && t.Proposal == 0
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// ForCampaign attaches a campaign id.
func (e *Error) ForCampaign(id types.CampaignID) *Error {
	e.Campaign = id
	return e
}

// ForProposal attaches a proposal id.
func (e *Error) ForProposal(id types.ProposalID) *Error {
	e.Proposal = id
	return e
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// HaltError signals that the application detected an irrecoverable
// inconsistency and requests an immediate halt.
//
// When the host receives a HaltError from ExecuteBlock, it must
// stop sequencing, log the error, and not proceed to Commit.
type HaltError struct {
	Reason string
	Height uint64
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("HALT at height %d: %s", e.Height, e.Reason)
}

// NewHaltError creates a new HaltError.
func NewHaltError(height uint64, reason string) *HaltError {
	return &HaltError{Height: height, Reason: reason}
}

// IsHalt checks whether an error is a HaltError and returns it.
func IsHalt(err error) (*HaltError, bool) {
	var h *HaltError
	if errors.As(err, &h) {
		return h, true
	}
	return nil, false
}
