package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/blockberries/stagefund/types"
)

// attrs reads required event attributes, keeping the first failure.
type attrs struct {
	ev  types.Event
	err error
}

func (a *attrs) str(key string) string {
	v, ok := a.ev.Attr(key)
	if !ok && a.err == nil {
		a.err = fmt.Errorf("missing attribute %q", key)
	}
	return v
}

func (a *attrs) uint(key string) uint64 {
	v, ok := a.ev.Uint(key)
	if !ok && a.err == nil {
		a.err = fmt.Errorf("missing or malformed attribute %q", key)
	}
	return v
}

// amount reads a uint64 attribute as decimal text. SQLite integers are
// signed, so amounts and weights are stored as TEXT.
func (a *attrs) amount(key string) string {
	return strconv.FormatUint(a.uint(key), 10)
}

func (a *attrs) nanos(key string) int64 {
	t, ok := a.ev.Time(key)
	if !ok && a.err == nil {
		a.err = fmt.Errorf("missing or malformed attribute %q", key)
	}
	return t.UnixNano()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// apply writes one event's effects.
func apply(ctx context.Context, tx execer, re types.RecordedEvent) error {
	a := &attrs{ev: re.Event}
	var stmts []stmt

	switch re.Event.Kind {
	case types.EventCampaignCreated:
		id := a.uint(types.AttrCampaign)
		stmts = append(stmts, stmt{
			`INSERT INTO campaigns (id, owner, goal, deadline, strategy, created_height) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{id, a.str(types.AttrOwner), a.amount(types.AttrGoal), a.nanos(types.AttrDeadline),
				a.str(types.AttrStrategy), re.Height},
		})
		amounts, err := parseStages(a.str(types.AttrStages))
		if err != nil && a.err == nil {
			a.err = err
		}
		for i, amt := range amounts {
			stmts = append(stmts, stmt{
				`INSERT INTO stages (campaign_id, idx, amount) VALUES (?, ?, ?)`,
				[]any{id, i, strconv.FormatUint(amt, 10)},
			})
		}

	case types.EventDonation:
		id := a.uint(types.AttrCampaign)
		stmts = append(stmts,
			stmt{`UPDATE campaigns SET funds_raised = ?, total_shares = ? WHERE id = ?`,
				[]any{a.amount(types.AttrFundsRaised), a.amount(types.AttrTotalShares), id}},
			stmt{`INSERT INTO contributions (campaign_id, contributor, share) VALUES (?, ?, ?)
			      ON CONFLICT (campaign_id, contributor) DO UPDATE SET share = excluded.share`,
				[]any{id, a.str(types.AttrDonor), a.amount(types.AttrShare)}},
		)

	case types.EventGoalReached:
		stmts = append(stmts, stmt{`UPDATE campaigns SET goal_reached = 1 WHERE id = ?`,
			[]any{a.uint(types.AttrCampaign)}})

	case types.EventRefundIssued:
		id := a.uint(types.AttrCampaign)
		stmts = append(stmts,
			stmt{`UPDATE campaigns SET total_shares = ?, total_refunded = ? WHERE id = ?`,
				[]any{a.amount(types.AttrTotalShares), a.amount(types.AttrRefunded), id}},
			stmt{`DELETE FROM contributions WHERE campaign_id = ? AND contributor = ?`,
				[]any{id, a.str(types.AttrDonor)}},
		)

	case types.EventFundsReleased:
		id := a.uint(types.AttrCampaign)
		stmts = append(stmts,
			stmt{`UPDATE campaigns SET next_stage = ?, total_released = ? WHERE id = ?`,
				[]any{a.uint(types.AttrNextStage), a.amount(types.AttrReleased), id}},
			stmt{`UPDATE stages SET released = 1, released_height = ? WHERE campaign_id = ? AND idx = ?`,
				[]any{re.Height, id, a.uint(types.AttrStage)}},
		)

	case types.EventCampaignFailed:
		stmts = append(stmts, stmt{`UPDATE campaigns SET failed = 1 WHERE id = ?`,
			[]any{a.uint(types.AttrCampaign)}})

	case types.EventProposalCreated:
		stmts = append(stmts, stmt{
			`INSERT INTO proposals (id, campaign_id, stage, proposer, evidence, voting_start, voting_end, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{a.uint(types.AttrProposal), a.uint(types.AttrCampaign), a.uint(types.AttrStage),
				a.str(types.AttrOwner), a.str(types.AttrEvidence), a.nanos(types.AttrVotingStart),
				a.nanos(types.AttrVotingEnd), types.ProposalActive.String()},
		})

	case types.EventVoteCast:
		pid := a.uint(types.AttrProposal)
		stmts = append(stmts,
			stmt{`INSERT INTO vote_receipts (proposal_id, voter, support, weight) VALUES (?, ?, ?, ?)`,
				[]any{pid, a.str(types.AttrVoter), a.str(types.AttrSupport) == "for", a.amount(types.AttrWeight)}},
			stmt{`UPDATE proposals SET votes_for = ?, votes_against = ? WHERE id = ?`,
				[]any{a.amount(types.AttrVotesFor), a.amount(types.AttrVotesAgainst), pid}},
		)

	case types.EventProposalResolved:
		stmts = append(stmts, stmt{
			`UPDATE proposals SET status = ?, votes_for = ?, votes_against = ? WHERE id = ?`,
			[]any{a.str(types.AttrStatus), a.amount(types.AttrVotesFor), a.amount(types.AttrVotesAgainst),
				a.uint(types.AttrProposal)},
		})

	case types.EventProposalCancelled:
		stmts = append(stmts, stmt{`UPDATE proposals SET status = ? WHERE id = ?`,
			[]any{a.str(types.AttrStatus), a.uint(types.AttrProposal)}})

	case types.EventStakeBonded, types.EventStakeUnbonded:
		staker, bonded := a.str(types.AttrStaker), a.uint(types.AttrBonded)
		if bonded == 0 {
			stmts = append(stmts, stmt{`DELETE FROM stakes WHERE staker = ?`, []any{staker}})
		} else {
			stmts = append(stmts, stmt{
				`INSERT INTO stakes (staker, bonded) VALUES (?, ?)
				 ON CONFLICT (staker) DO UPDATE SET bonded = excluded.bonded`,
				[]any{staker, strconv.FormatUint(bonded, 10)},
			})
		}

	default:
		return fmt.Errorf("unknown event kind %q", re.Event.Kind)
	}

	if a.err != nil {
		return a.err
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return err
		}
	}
	return nil
}

type stmt struct {
	query string
	args  []any
}

func parseStages(s string) ([]uint64, error) {
	if s == "" {
		return nil, fmt.Errorf("empty stage schedule")
	}
	parts := strings.Split(s, ",")
	out := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
