package types

import (
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// Op is a tagged union: Sender plus exactly one operation body.
type Op struct {
	Sender         Address           `cramberry:"1"`
	CreateCampaign *CreateCampaignOp `cramberry:"2"`
	Donate         *DonateOp         `cramberry:"3"`
	Refund         *RefundOp         `cramberry:"4"`
	CreateProposal *CreateProposalOp `cramberry:"5"`
	Vote           *VoteOp           `cramberry:"6"`
	Resolve        *ResolveOp        `cramberry:"7"`
	CancelProposal *CancelProposalOp `cramberry:"8"`
	DeclareFailure *DeclareFailureOp `cramberry:"9"`
	Bond           *BondOp           `cramberry:"10"`
	Unbond         *UnbondOp         `cramberry:"11"`
}

type CreateCampaignOp struct {
	Goal     Amount         `cramberry:"1"`
	Deadline Timestamp      `cramberry:"2"`
	Stages   []Amount       `cramberry:"3"`
	Strategy WeightStrategy `cramberry:"4"`
}

type DonateOp struct {
	Campaign CampaignID `cramberry:"1"`
	Amount   Amount     `cramberry:"2"`
}

type RefundOp struct {
	Campaign CampaignID `cramberry:"1"`
}

type CreateProposalOp struct {
	Campaign CampaignID `cramberry:"1"`
	Stage    uint32     `cramberry:"2"`
	Evidence string     `cramberry:"3"`
}

type VoteOp struct {
	Proposal ProposalID `cramberry:"1"`
	Support  bool       `cramberry:"2"`
}

type ResolveOp struct {
	Proposal ProposalID `cramberry:"1"`
}

type CancelProposalOp struct {
	Proposal ProposalID `cramberry:"1"`
}

type DeclareFailureOp struct {
	Campaign CampaignID `cramberry:"1"`
}

type BondOp struct {
	Amount Amount `cramberry:"1"`
}

type UnbondOp struct {
	Amount Amount `cramberry:"1"`
}

// Name returns the op's body name, or "" if no body is set.
func (op Op) Name() string {
	switch {
	case op.CreateCampaign != nil:
		return "create_campaign"
	case op.Donate != nil:
		return "donate"
	case op.Refund != nil:
		return "refund"
	case op.CreateProposal != nil:
		return "create_proposal"
	case op.Vote != nil:
		return "vote"
	case op.Resolve != nil:
		return "resolve"
	case op.CancelProposal != nil:
		return "cancel_proposal"
	case op.DeclareFailure != nil:
		return "declare_failure"
	case op.Bond != nil:
		return "bond"
	case op.Unbond != nil:
		return "unbond"
	default:
		return ""
	}
}

func (op Op) bodies() int {
	n := 0
	for _, set := range []bool{
		op.CreateCampaign != nil, op.Donate != nil, op.Refund != nil,
		op.CreateProposal != nil, op.Vote != nil, op.Resolve != nil,
		op.CancelProposal != nil, op.DeclareFailure != nil,
		op.Bond != nil, op.Unbond != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// ValidateBasic performs stateless checks.
func (op Op) ValidateBasic() error {
	if op.Sender == "" {
		return errors.New("sender is required")
	}
	if n := op.bodies(); n != 1 {
		return fmt.Errorf("op must carry exactly one body, got %d", n)
	}
	switch {
	case op.CreateCampaign != nil:
		if op.CreateCampaign.Goal == 0 {
			return errors.New("goal must be positive")
		}
		if len(op.CreateCampaign.Stages) == 0 {
			return errors.New("at least one stage is required")
		}
	case op.Donate != nil:
		if op.Donate.Amount == 0 {
			return errors.New("donation must be positive")
		}
	case op.CreateProposal != nil:
		if op.CreateProposal.Evidence == "" {
			return errors.New("evidence reference is required")
		}
	case op.Bond != nil:
		if op.Bond.Amount == 0 {
			return errors.New("bond must be positive")
		}
	case op.Unbond != nil:
		if op.Unbond.Amount == 0 {
			return errors.New("unbond must be positive")
		}
	}
	return nil
}

// EncodeOp serializes an op into a transaction.
func EncodeOp(op Op) (Tx, error) {
	data, err := cramberry.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encode op: %w", err)
	}
	return Tx(data), nil
}

// DecodeOp parses a transaction produced by EncodeOp.
func DecodeOp(tx Tx) (Op, error) {
	if len(tx) == 0 {
		return Op{}, errors.New("empty transaction")
	}
	var op Op
	if err := cramberry.Unmarshal(tx, &op); err != nil {
		return Op{}, fmt.Errorf("decode op: %w", err)
	}
	return op, nil
}

// Op results, carried cramberry-encoded in TxOutcome.Data.

type CreateCampaignResult struct {
	Campaign CampaignID `cramberry:"1"`
}

type DonateResult struct {
	FundsRaised Amount `cramberry:"1"`
}

type RefundResult struct {
	AmountPaid Amount `cramberry:"1"`
}

type CreateProposalResult struct {
	Proposal ProposalID `cramberry:"1"`
}

type VoteResult struct {
	Weight uint64 `cramberry:"1"`
}

type ResolveResult struct {
	Outcome ProposalStatus `cramberry:"1"`
}

type StakeResult struct {
	Bonded Amount `cramberry:"1"`
}
