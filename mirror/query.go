package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blockberries/stagefund/types"
)

// Campaign rebuilds a campaign header from the mirror.
func (m *Mirror) Campaign(ctx context.Context, id types.CampaignID) (types.Campaign, bool, error) {
	var (
		c                                        types.Campaign
		owner, strategy                          string
		goal, raised, released, refunded, shares uint64
		deadline                                 int64
		next                                     uint32
		failed                                   bool
	)
	err := m.db.QueryRowContext(ctx, `
SELECT owner, goal, deadline, strategy, next_stage, funds_raised, total_released,
       total_refunded, total_shares, failed
FROM campaigns WHERE id = ?`, uint64(id)).Scan(
		&owner, &goal, &deadline, &strategy, &next, &raised, &released, &refunded, &shares, &failed)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Campaign{}, false, nil
	}
	if err != nil {
		return types.Campaign{}, false, fmt.Errorf("get campaign %d: %w", id, err)
	}
	ws, ok := types.ParseWeightStrategy(strategy)
	if !ok {
		return types.Campaign{}, false, fmt.Errorf("campaign %d: unknown strategy %q", id, strategy)
	}
	c = types.Campaign{
		ID:            id,
		Owner:         types.Address(owner),
		Goal:          types.Amount(goal),
		Deadline:      types.TimeToTimestamp(time.Unix(0, deadline)),
		Strategy:      ws,
		NextStage:     next,
		FundsRaised:   types.Amount(raised),
		TotalReleased: types.Amount(released),
		TotalRefunded: types.Amount(refunded),
		TotalShares:   types.Amount(shares),
		Failed:        failed,
	}

	rows, err := m.db.QueryContext(ctx, `SELECT amount FROM stages WHERE campaign_id = ? ORDER BY idx`, uint64(id))
	if err != nil {
		return types.Campaign{}, false, fmt.Errorf("list stages %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var amt uint64
		if err := rows.Scan(&amt); err != nil {
			return types.Campaign{}, false, fmt.Errorf("scan stage: %w", err)
		}
		c.Stages = append(c.Stages, types.Amount(amt))
	}
	if err := rows.Err(); err != nil {
		return types.Campaign{}, false, fmt.Errorf("list stages %d: %w", id, err)
	}
	return c, true, nil
}

// Contributions lists a campaign's non-zero shares ordered by contributor.
func (m *Mirror) Contributions(ctx context.Context, id types.CampaignID) ([]types.Contribution, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT contributor, share FROM contributions WHERE campaign_id = ? ORDER BY contributor`, uint64(id))
	if err != nil {
		return nil, fmt.Errorf("list contributions %d: %w", id, err)
	}
	defer rows.Close()
	var out []types.Contribution
	for rows.Next() {
		var (
			who   string
			share uint64
		)
		if err := rows.Scan(&who, &share); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		out = append(out, types.Contribution{Campaign: id, Contributor: types.Address(who), Share: types.Amount(share)})
	}
	return out, rows.Err()
}

// Proposal rebuilds a proposal from the mirror.
func (m *Mirror) Proposal(ctx context.Context, id types.ProposalID) (types.Proposal, bool, error) {
	var (
		campaign, forVotes, against uint64
		stage                       uint32
		proposer, evidence, status  string
		start, end                  int64
	)
	err := m.db.QueryRowContext(ctx, `
SELECT campaign_id, stage, proposer, evidence, voting_start, voting_end, votes_for, votes_against, status
FROM proposals WHERE id = ?`, uint64(id)).Scan(
		&campaign, &stage, &proposer, &evidence, &start, &end, &forVotes, &against, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Proposal{}, false, nil
	}
	if err != nil {
		return types.Proposal{}, false, fmt.Errorf("get proposal %d: %w", id, err)
	}
	st, ok := types.ParseProposalStatus(status)
	if !ok {
		return types.Proposal{}, false, fmt.Errorf("proposal %d: unknown status %q", id, status)
	}
	return types.Proposal{
		ID:           id,
		Campaign:     types.CampaignID(campaign),
		Stage:        stage,
		Proposer:     types.Address(proposer),
		Evidence:     evidence,
		VotingStart:  types.TimeToTimestamp(time.Unix(0, start)),
		VotingEnd:    types.TimeToTimestamp(time.Unix(0, end)),
		VotesFor:     forVotes,
		VotesAgainst: against,
		Status:       st,
	}, true, nil
}

// Receipt returns a voter's receipt. Voted is false if none exists.
func (m *Mirror) Receipt(ctx context.Context, id types.ProposalID, voter types.Address) (types.VoteReceipt, error) {
	r := types.VoteReceipt{Proposal: id, Voter: voter}
	err := m.db.QueryRowContext(ctx,
		`SELECT support, weight FROM vote_receipts WHERE proposal_id = ? AND voter = ?`,
		uint64(id), string(voter)).Scan(&r.Support, &r.Weight)
	if errors.Is(err, sql.ErrNoRows) {
		return r, nil
	}
	if err != nil {
		return r, fmt.Errorf("get receipt: %w", err)
	}
	r.Voted = true
	return r, nil
}

// Stakes lists every bond ordered by staker.
func (m *Mirror) Stakes(ctx context.Context) ([]types.StakeEntry, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT staker, bonded FROM stakes ORDER BY staker`)
	if err != nil {
		return nil, fmt.Errorf("list stakes: %w", err)
	}
	defer rows.Close()
	var out []types.StakeEntry
	for rows.Next() {
		var (
			who    string
			bonded uint64
		)
		if err := rows.Scan(&who, &bonded); err != nil {
			return nil, fmt.Errorf("scan stake: %w", err)
		}
		out = append(out, types.StakeEntry{Staker: types.Address(who), Amount: types.Amount(bonded)})
	}
	return out, rows.Err()
}
