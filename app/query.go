package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

// Query paths.
const (
	PathCampaign     types.QueryPath = "/campaign"
	PathStage        types.QueryPath = "/stage"
	PathContribution types.QueryPath = "/contribution"
	PathProposal     types.QueryPath = "/proposal"
	PathReceipt      types.QueryPath = "/receipt"
	PathStake        types.QueryPath = "/stake"
	PathEvents       types.QueryPath = "/events"
	PathParams       types.QueryPath = "/params"
)

// eventPage caps one /events response.
const eventPage = 500

// CampaignView is the /campaign response.
type CampaignView struct {
	ID            types.CampaignID `json:"id"`
	Owner         types.Address    `json:"owner"`
	Goal          types.Amount     `json:"goal"`
	Deadline      time.Time        `json:"deadline"`
	Stages        []types.Amount   `json:"stages"`
	Strategy      string           `json:"strategy"`
	NextStage     uint32           `json:"next_stage"`
	FundsRaised   types.Amount     `json:"funds_raised"`
	TotalReleased types.Amount     `json:"total_released"`
	TotalRefunded types.Amount     `json:"total_refunded"`
	TotalShares   types.Amount     `json:"total_shares"`
	Balance       types.Amount     `json:"balance"`
	GoalMet       bool             `json:"goal_met"`
	Failed        bool             `json:"failed"`
}

// ProposalView is the /proposal response.
type ProposalView struct {
	ID           types.ProposalID `json:"id"`
	Campaign     types.CampaignID `json:"campaign"`
	Stage        uint32           `json:"stage"`
	Proposer     types.Address    `json:"proposer"`
	Evidence     string           `json:"evidence"`
	VotingStart  time.Time        `json:"voting_start"`
	VotingEnd    time.Time        `json:"voting_end"`
	VotesFor     uint64           `json:"votes_for"`
	VotesAgainst uint64           `json:"votes_against"`
	Status       string           `json:"status"`
}

// StakeView is the /stake response.
type StakeView struct {
	Staker      types.Address `json:"staker"`
	Bonded      types.Amount  `json:"bonded"`
	TotalBonded uint64        `json:"total_bonded"`
}

// EventView is one entry of the /events response.
type EventView struct {
	Seq        uint64            `json:"seq"`
	Height     uint64            `json:"height"`
	Kind       string            `json:"kind"`
	Attributes map[string]string `json:"attributes"`
}

// Query serves read-only JSON views of committed state.
func (a *App) Query(_ context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	a.mu.RLock()
	m, height := a.committed, a.snapshot.Height
	a.mu.RUnlock()
	if m == nil {
		return types.StateQueryResult{Code: uint32(stagefund.KindState), Info: "not initialized"}, nil
	}

	var args types.QueryArgs
	if len(req.Data) > 0 {
		if err := cramberry.Unmarshal(req.Data, &args); err != nil {
			return types.StateQueryResult{Code: uint32(stagefund.KindValidation), Info: "bad query args: " + err.Error(), Height: height}, nil
		}
	}

	value, err := a.view(m, req.Path, args)
	if err != nil {
		code := uint32(stagefund.KindOf(err))
		if code == 0 {
			code = CodeInternal
		}
		return types.StateQueryResult{Code: code, Info: err.Error(), Height: height}, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return types.StateQueryResult{Code: CodeInternal, Info: err.Error(), Height: height}, nil
	}
	return types.StateQueryResult{Key: req.Data, Value: data, Height: height}, nil
}

func (a *App) view(m *machine, path types.QueryPath, args types.QueryArgs) (any, error) {
	switch path {
	case PathCampaign:
		c, err := m.ledger.Campaign(args.Campaign)
		if err != nil {
			return nil, err
		}
		return CampaignView{
			ID:            c.ID,
			Owner:         c.Owner,
			Goal:          c.Goal,
			Deadline:      c.Deadline.ToTime(),
			Stages:        c.Stages,
			Strategy:      c.Strategy.String(),
			NextStage:     c.NextStage,
			FundsRaised:   c.FundsRaised,
			TotalReleased: c.TotalReleased,
			TotalRefunded: c.TotalRefunded,
			TotalShares:   c.TotalShares,
			Balance:       c.Balance(),
			GoalMet:       c.GoalMet(),
			Failed:        c.Failed,
		}, nil

	case PathStage:
		return m.ledger.StageAllocation(args.Campaign, args.Stage)

	case PathContribution:
		return m.ledger.Contribution(args.Campaign, args.Address)

	case PathProposal:
		p, err := m.gov.Proposal(args.Proposal)
		if err != nil {
			return nil, err
		}
		return ProposalView{
			ID:           p.ID,
			Campaign:     p.Campaign,
			Stage:        p.Stage,
			Proposer:     p.Proposer,
			Evidence:     p.Evidence,
			VotingStart:  p.VotingStart.ToTime(),
			VotingEnd:    p.VotingEnd.ToTime(),
			VotesFor:     p.VotesFor,
			VotesAgainst: p.VotesAgainst,
			Status:       p.Status.String(),
		}, nil

	case PathReceipt:
		return m.gov.Receipt(args.Proposal, args.Address)

	case PathStake:
		total, _ := m.stakes.TotalWeight(types.Campaign{})
		return StakeView{Staker: args.Address, Bonded: m.stakes.Stake(args.Address), TotalBonded: total}, nil

	case PathEvents:
		events := a.journal.Since(args.After, eventPage)
		out := make([]EventView, len(events))
		for i, re := range events {
			attrs := make(map[string]string, len(re.Event.Attributes))
			for _, at := range re.Event.Attributes {
				attrs[at.Key] = at.Value
			}
			out[i] = EventView{Seq: re.Seq, Height: re.Height, Kind: re.Event.Kind, Attributes: attrs}
		}
		return out, nil

	case PathParams:
		p := m.gov.Params()
		return struct {
			VotingPeriod string `json:"voting_period"`
			QuorumBps    uint32 `json:"quorum_bps"`
			MaxDefeats   uint32 `json:"max_defeats"`
		}{p.VotingPeriod.ToGo().String(), p.QuorumBps, p.MaxDefeats}, nil

	default:
		return nil, stagefund.NewError(stagefund.KindValidation, "query", "unknown query path %q", path)
	}
}
