package app

import (
	"context"
	"fmt"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/rs/zerolog"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/governance"
	"github.com/blockberries/stagefund/ledger"
	"github.com/blockberries/stagefund/types"
	"github.com/blockberries/stagefund/weight"
)

// machine wires one copy of the escrow components together.
type machine struct {
	ledger *ledger.Ledger
	stakes *weight.Registry
	gov    *governance.Engine
}

func newMachine(params types.GovernanceParams, payer stagefund.Payer, rec stagefund.Recorder, log zerolog.Logger) (*machine, error) {
	l := ledger.New(payer, ledger.WithRecorder(rec), ledger.WithLogger(log.With().Str("module", "ledger").Logger()))
	reg := weight.NewRegistry(rec, log.With().Str("module", "stake").Logger())
	token, err := l.IssueGovernorCapability("governance")
	if err != nil {
		return nil, err
	}
	gov, err := governance.New(l, token, params, weight.Set{
		types.StrategyContribution: weight.NewContribution(l),
		types.StrategyStake:        reg,
	}, governance.WithRecorder(rec), governance.WithLogger(log.With().Str("module", "governance").Logger()))
	if err != nil {
		return nil, err
	}
	return &machine{ledger: l, stakes: reg, gov: gov}, nil
}

// restoreMachine builds a machine holding snap.
func restoreMachine(snap types.StateSnapshot, payer stagefund.Payer, rec stagefund.Recorder, log zerolog.Logger) (*machine, error) {
	m, err := newMachine(snap.Params, payer, rec, log)
	if err != nil {
		return nil, err
	}
	if err := m.ledger.Restore(snap.Ledger); err != nil {
		return nil, fmt.Errorf("restore ledger: %w", err)
	}
	if err := m.gov.Restore(snap.Governance); err != nil {
		return nil, fmt.Errorf("restore governance: %w", err)
	}
	if err := m.stakes.Restore(snap.Stakes); err != nil {
		return nil, fmt.Errorf("restore stakes: %w", err)
	}
	return m, nil
}

func (m *machine) snapshot(height, eventSeq uint64, at time.Time) types.StateSnapshot {
	return types.StateSnapshot{
		Height:     height,
		BlockTime:  types.TimeToTimestamp(at),
		Params:     m.gov.Params(),
		Ledger:     m.ledger.Snapshot(),
		Governance: m.gov.Snapshot(),
		Stakes:     m.stakes.Snapshot(),
		EventSeq:   eventSeq,
	}
}

// execute runs one decoded op and returns its cramberry-encoded result.
func (m *machine) execute(ctx context.Context, now time.Time, op types.Op) (any, error) {
	sender := op.Sender
	switch {
	case op.CreateCampaign != nil:
		b := op.CreateCampaign
		id, err := m.ledger.CreateCampaign(ctx, now, types.CampaignSpec{
			Owner:    sender,
			Goal:     b.Goal,
			Deadline: b.Deadline,
			Stages:   b.Stages,
			Strategy: b.Strategy,
		})
		return types.CreateCampaignResult{Campaign: id}, err

	case op.Donate != nil:
		raised, err := m.ledger.Donate(ctx, now, op.Donate.Campaign, sender, op.Donate.Amount)
		return types.DonateResult{FundsRaised: raised}, err

	case op.Refund != nil:
		paid, err := m.ledger.Refund(ctx, now, op.Refund.Campaign, sender)
		return types.RefundResult{AmountPaid: paid}, err

	case op.CreateProposal != nil:
		b := op.CreateProposal
		id, err := m.gov.CreateProposal(ctx, now, sender, b.Campaign, b.Stage, b.Evidence)
		return types.CreateProposalResult{Proposal: id}, err

	case op.Vote != nil:
		w, err := m.gov.Vote(ctx, now, op.Vote.Proposal, sender, op.Vote.Support)
		return types.VoteResult{Weight: w}, err

	case op.Resolve != nil:
		status, err := m.gov.Resolve(ctx, now, op.Resolve.Proposal)
		return types.ResolveResult{Outcome: status}, err

	case op.CancelProposal != nil:
		return nil, m.gov.CancelProposal(ctx, sender, op.CancelProposal.Proposal)

	case op.DeclareFailure != nil:
		return nil, m.gov.DeclareFailure(ctx, sender, op.DeclareFailure.Campaign)

	case op.Bond != nil:
		bonded, err := m.stakes.Bond(sender, op.Bond.Amount)
		return types.StakeResult{Bonded: bonded}, err

	case op.Unbond != nil:
		bonded, err := m.stakes.Unbond(sender, op.Unbond.Amount)
		return types.StakeResult{Bonded: bonded}, err

	default:
		return nil, stagefund.NewError(stagefund.KindValidation, "execute", "op has no body")
	}
}

// CodeInternal marks an op that failed outside the error taxonomy.
const CodeInternal uint32 = 255

// runTx decodes and executes one op. Events are read back from the
// recorder by the caller.
func (m *machine) runTx(ctx context.Context, now time.Time, index uint32, tx types.Tx) types.TxOutcome {
	op, err := types.DecodeOp(tx)
	if err == nil {
		err = op.ValidateBasic()
	}
	if err != nil {
		return types.TxOutcome{Index: index, Code: uint32(stagefund.KindValidation), Info: err.Error()}
	}

	result, err := m.execute(ctx, now, op)
	if err != nil {
		code := uint32(stagefund.KindOf(err))
		if code == 0 {
			code = CodeInternal
		}
		return types.TxOutcome{Index: index, Code: code, Info: err.Error()}
	}

	out := types.TxOutcome{Index: index, Info: op.Name()}
	if result != nil {
		data, err := cramberry.Marshal(result)
		if err != nil {
			return types.TxOutcome{Index: index, Code: CodeInternal, Info: fmt.Sprintf("encode result: %v", err)}
		}
		out.Data = data
	}
	return out
}
