package stagefundtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/stagefund/types"
)

// MustTx encodes op.
func MustTx(t testing.TB, op types.Op) types.Tx {
	t.Helper()
	tx, err := types.EncodeOp(op)
	require.NoError(t, err, "encode %s", op.Name())
	return tx
}

// CreateCampaign builds a campaign whose goal is the sum of stages.
func CreateCampaign(owner types.Address, deadline time.Time, strategy types.WeightStrategy, stages ...types.Amount) types.Op {
	var goal types.Amount
	for _, s := range stages {
		goal += s
	}
	return types.Op{Sender: owner, CreateCampaign: &types.CreateCampaignOp{
		Goal:     goal,
		Deadline: types.TimeToTimestamp(deadline),
		Stages:   stages,
		Strategy: strategy,
	}}
}

func Donate(donor types.Address, id types.CampaignID, amount types.Amount) types.Op {
	return types.Op{Sender: donor, Donate: &types.DonateOp{Campaign: id, Amount: amount}}
}

func Refund(donor types.Address, id types.CampaignID) types.Op {
	return types.Op{Sender: donor, Refund: &types.RefundOp{Campaign: id}}
}

func CreateProposal(owner types.Address, id types.CampaignID, stage uint32, evidence string) types.Op {
	return types.Op{Sender: owner, CreateProposal: &types.CreateProposalOp{Campaign: id, Stage: stage, Evidence: evidence}}
}

func Vote(voter types.Address, id types.ProposalID, support bool) types.Op {
	return types.Op{Sender: voter, Vote: &types.VoteOp{Proposal: id, Support: support}}
}

func Resolve(caller types.Address, id types.ProposalID) types.Op {
	return types.Op{Sender: caller, Resolve: &types.ResolveOp{Proposal: id}}
}

func CancelProposal(owner types.Address, id types.ProposalID) types.Op {
	return types.Op{Sender: owner, CancelProposal: &types.CancelProposalOp{Proposal: id}}
}

func DeclareFailure(owner types.Address, id types.CampaignID) types.Op {
	return types.Op{Sender: owner, DeclareFailure: &types.DeclareFailureOp{Campaign: id}}
}

func Bond(staker types.Address, amount types.Amount) types.Op {
	return types.Op{Sender: staker, Bond: &types.BondOp{Amount: amount}}
}

func Unbond(staker types.Address, amount types.Amount) types.Op {
	return types.Op{Sender: staker, Unbond: &types.UnbondOp{Amount: amount}}
}
