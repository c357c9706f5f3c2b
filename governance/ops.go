package governance

import (
	"context"
	"time"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

// CreateProposal opens a vote on releasing the campaign's next stage.
// Only the campaign owner may propose.
func (e *Engine) CreateProposal(ctx context.Context, now time.Time, caller types.Address,
	id types.CampaignID, stage uint32, evidence string) (types.ProposalID, error) {
	const op = "create_proposal"
	if evidence == "" {
		return 0, stagefund.NewError(stagefund.KindValidation, op, "evidence reference is required").ForCampaign(id)
	}
	c, err := e.escrow.Campaign(id)
	if err != nil {
		return 0, err
	}
	if caller != c.Owner {
		return 0, stagefund.NewError(stagefund.KindAuthorization, op,
			"%q is not the campaign owner", caller).ForCampaign(id)
	}
	if _, err := e.strategies.For(c); err != nil {
		return 0, err
	}

	s := e.slotFor(id)
	if err := s.lock(ctx, op, id); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	// Re-read under the slot lock so the stage checks see the latest release.
	if c, err = e.escrow.Campaign(id); err != nil {
		return 0, err
	}
	cur := s.state.Load()
	switch {
	case c.Failed:
		return 0, stagefund.NewError(stagefund.KindState, op, "campaign has failed").ForCampaign(id)
	case !c.GoalMet():
		return 0, stagefund.NewError(stagefund.KindState, op, "funding goal not reached").ForCampaign(id)
	case stage >= c.StageCount():
		return 0, stagefund.NewError(stagefund.KindValidation, op,
			"stage %d out of range (campaign has %d)", stage, c.StageCount()).ForCampaign(id)
	case c.StageReleased(stage):
		return 0, stagefund.NewError(stagefund.KindState, op, "stage %d already released", stage).ForCampaign(id)
	case stage != c.NextStage:
		return 0, stagefund.NewError(stagefund.KindState, op,
			"stage %d is not next; stage %d is pending", stage, c.NextStage).ForCampaign(id)
	}
	if pid, busy := cur.active[stage]; busy {
		return 0, stagefund.NewError(stagefund.KindState, op,
			"stage %d already has active proposal %d", stage, pid).ForCampaign(id)
	}

	e.mu.Lock()
	e.nextID++
	pid := e.nextID
	e.mu.Unlock()

	p := types.Proposal{
		ID:          pid,
		Campaign:    id,
		Stage:       stage,
		Proposer:    caller,
		Evidence:    evidence,
		VotingStart: types.TimeToTimestamp(now),
		VotingEnd:   types.TimeToTimestamp(now.Add(e.params.VotingPeriod.ToGo())),
		Status:      types.ProposalActive,
	}
	next := cur.clone()
	next.proposals[pid] = p
	next.active[stage] = pid
	s.state.Store(next)

	e.mu.Lock()
	e.index[pid] = id
	e.mu.Unlock()

	e.rec.Record(types.NewEvent(types.EventProposalCreated).
		WithUint(types.AttrProposal, uint64(pid)).
		WithUint(types.AttrCampaign, uint64(id)).
		WithUint(types.AttrStage, uint64(stage)).
		With(types.AttrOwner, string(caller)).
		With(types.AttrEvidence, evidence).
		WithTime(types.AttrVotingStart, p.VotingStart.ToTime()).
		WithTime(types.AttrVotingEnd, p.VotingEnd.ToTime()))
	e.log.Debug().Uint64("proposal", uint64(pid)).Uint64("campaign", uint64(id)).
		Uint32("stage", stage).Msg("proposal created")
	return pid, nil
}

// Vote casts voter's weight for or against a proposal. The weight is
// sampled now and fixed in the receipt.
func (e *Engine) Vote(ctx context.Context, now time.Time, id types.ProposalID,
	voter types.Address, support bool) (uint64, error) {
	const op = "vote"
	cid, s, err := e.lookup(op, id)
	if err != nil {
		return 0, err
	}
	if err := s.lock(ctx, op, cid); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	cur := s.state.Load()
	p := cur.proposals[id]
	switch {
	case p.Status != types.ProposalActive:
		return 0, stagefund.NewError(stagefund.KindState, op, "proposal is %s", p.Status).ForProposal(id)
	case !p.VotingOpen(now):
		return 0, stagefund.NewError(stagefund.KindState, op, "voting window is closed").ForProposal(id)
	}
	if _, voted := cur.receipts[id][voter]; voted {
		return 0, stagefund.NewError(stagefund.KindState, op, "%q already voted", voter).ForProposal(id)
	}

	c, err := e.escrow.Campaign(cid)
	if err != nil {
		return 0, err
	}
	ws, err := e.strategies.For(c)
	if err != nil {
		return 0, err
	}
	w, err := ws.Weight(c, voter)
	if err != nil {
		return 0, err
	}
	if w == 0 {
		return 0, stagefund.NewError(stagefund.KindAuthorization, op,
			"%q has no voting weight", voter).ForProposal(id)
	}

	if support {
		p.VotesFor += w
	} else {
		p.VotesAgainst += w
	}
	next := cur.clone()
	next.proposals[id] = p
	next.addReceipt(types.VoteReceipt{Proposal: id, Voter: voter, Voted: true, Support: support, Weight: w})
	s.state.Store(next)

	e.rec.Record(types.NewEvent(types.EventVoteCast).
		WithUint(types.AttrProposal, uint64(id)).
		WithUint(types.AttrCampaign, uint64(cid)).
		With(types.AttrVoter, string(voter)).
		With(types.AttrSupport, supportString(support)).
		WithUint(types.AttrWeight, w).
		WithUint(types.AttrVotesFor, p.VotesFor).
		WithUint(types.AttrVotesAgainst, p.VotesAgainst))
	return w, nil
}

// Resolve closes a proposal once its window has ended. A passing
// proposal releases its stage. A release that fails to pay out leaves
// the proposal active so resolve can be retried.
func (e *Engine) Resolve(ctx context.Context, now time.Time, id types.ProposalID) (types.ProposalStatus, error) {
	const op = "resolve"
	cid, s, err := e.lookup(op, id)
	if err != nil {
		return 0, err
	}
	if err := s.lock(ctx, op, cid); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	cur := s.state.Load()
	p := cur.proposals[id]
	switch {
	case p.Status != types.ProposalActive:
		return 0, stagefund.NewError(stagefund.KindState, op, "proposal is %s", p.Status).ForProposal(id)
	case !p.VotingClosed(now):
		return 0, stagefund.NewError(stagefund.KindState, op, "voting window is still open").ForProposal(id)
	}

	c, err := e.escrow.Campaign(cid)
	if err != nil {
		return 0, err
	}
	ws, err := e.strategies.For(c)
	if err != nil {
		return 0, err
	}
	total, err := ws.TotalWeight(c)
	if err != nil {
		return 0, err
	}

	status := types.ProposalDefeated
	if tally(p, total, e.params.QuorumBps) {
		err := e.escrow.ReleaseFunds(ctx, e.token, cid, p.Stage)
		switch {
		case err == nil:
			status = types.ProposalExecuted
		case stagefund.KindOf(err) == stagefund.KindTransfer:
			return 0, err
		default:
			e.log.Warn().Err(err).Uint64("proposal", uint64(id)).Msg("passed proposal could not release its stage")
		}
	}

	next := cur.clone()
	p = next.finish(p, status)
	s.state.Store(next)

	e.rec.Record(types.NewEvent(types.EventProposalResolved).
		WithUint(types.AttrProposal, uint64(id)).
		WithUint(types.AttrCampaign, uint64(cid)).
		WithUint(types.AttrStage, uint64(p.Stage)).
		With(types.AttrStatus, status.String()).
		WithUint(types.AttrVotesFor, p.VotesFor).
		WithUint(types.AttrVotesAgainst, p.VotesAgainst))
	e.log.Info().Uint64("proposal", uint64(id)).Str("status", status.String()).
		Uint64("total_weight", total).Msg("proposal resolved")

	if status == types.ProposalDefeated && e.exhausted(next, p.Stage) {
		if err := e.escrow.MarkFailed(ctx, e.token, cid); err != nil {
			e.log.Warn().Err(err).Uint64("campaign", uint64(cid)).Msg("could not fail campaign after repeated defeats")
		}
	}
	return status, nil
}

func (e *Engine) exhausted(g *campaignGov, stage uint32) bool {
	return e.params.MaxDefeats > 0 && g.defeats[stage] >= e.params.MaxDefeats
}

// CancelProposal withdraws an active proposal. Only the campaign owner
// may cancel. The stage is free for a new proposal afterwards.
func (e *Engine) CancelProposal(ctx context.Context, caller types.Address, id types.ProposalID) error {
	const op = "cancel_proposal"
	cid, s, err := e.lookup(op, id)
	if err != nil {
		return err
	}
	c, err := e.escrow.Campaign(cid)
	if err != nil {
		return err
	}
	if caller != c.Owner {
		return stagefund.NewError(stagefund.KindAuthorization, op,
			"%q is not the campaign owner", caller).ForProposal(id)
	}
	if err := s.lock(ctx, op, cid); err != nil {
		return err
	}
	defer s.mu.Unlock()

	cur := s.state.Load()
	p := cur.proposals[id]
	if p.Status != types.ProposalActive {
		return stagefund.NewError(stagefund.KindState, op, "proposal is %s", p.Status).ForProposal(id)
	}
	next := cur.clone()
	next.finish(p, types.ProposalCancelled)
	s.state.Store(next)

	e.rec.Record(types.NewEvent(types.EventProposalCancelled).
		WithUint(types.AttrProposal, uint64(id)).
		WithUint(types.AttrCampaign, uint64(cid)).
		WithUint(types.AttrStage, uint64(p.Stage)).
		With(types.AttrStatus, types.ProposalCancelled.String()))
	return nil
}

// DeclareFailure lets the campaign owner give up, opening refunds.
func (e *Engine) DeclareFailure(ctx context.Context, caller types.Address, id types.CampaignID) error {
	const op = "declare_failure"
	c, err := e.escrow.Campaign(id)
	if err != nil {
		return err
	}
	if caller != c.Owner {
		return stagefund.NewError(stagefund.KindAuthorization, op,
			"%q is not the campaign owner", caller).ForCampaign(id)
	}
	s := e.slotFor(id)
	if err := s.lock(ctx, op, id); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return e.escrow.MarkFailed(ctx, e.token, id)
}

func supportString(support bool) string {
	if support {
		return "for"
	}
	return "against"
}
