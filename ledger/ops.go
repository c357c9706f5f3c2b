package ledger

import (
	"context"
	"time"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

// CreateCampaign registers a campaign and returns its id.
func (l *Ledger) CreateCampaign(_ context.Context, now time.Time, spec types.CampaignSpec) (types.CampaignID, error) {
	const op = "create_campaign"
	if err := validateSpec(op, now, spec); err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	st := &campaignState{
		header: types.Campaign{
			ID:       id,
			Owner:    spec.Owner,
			Goal:     spec.Goal,
			Deadline: spec.Deadline,
			Stages:   append([]types.Amount(nil), spec.Stages...),
			Strategy: spec.Strategy,
		},
		shares: make(map[types.Address]types.Amount),
	}
	s := &slot{}
	s.state.Store(st)
	l.campaigns[id] = s

	// Recorded under the ledger lock so ids and events stay in order.
	l.rec.Record(types.NewEvent(types.EventCampaignCreated).
		WithUint(types.AttrCampaign, uint64(id)).
		With(types.AttrOwner, string(spec.Owner)).
		WithUint(types.AttrGoal, uint64(spec.Goal)).
		WithTime(types.AttrDeadline, spec.Deadline.ToTime()).
		With(types.AttrStages, formatStages(spec.Stages)).
		With(types.AttrStrategy, spec.Strategy.String()))
	l.mu.Unlock()

	l.log.Debug().Uint64("campaign", uint64(id)).Uint64("goal", uint64(spec.Goal)).Msg("campaign created")
	return id, nil
}

func validateSpec(op string, now time.Time, spec types.CampaignSpec) error {
	if spec.Owner == "" {
		return stagefund.NewError(stagefund.KindValidation, op, "owner is required")
	}
	if spec.Goal == 0 {
		return stagefund.NewError(stagefund.KindValidation, op, "goal must be positive")
	}
	if len(spec.Stages) == 0 {
		return stagefund.NewError(stagefund.KindValidation, op, "at least one stage is required")
	}
	var sum types.Amount
	for i, a := range spec.Stages {
		if a == 0 {
			return stagefund.NewError(stagefund.KindValidation, op, "stage %d allocation must be positive", i)
		}
		if sum+a < sum {
			return stagefund.NewError(stagefund.KindValidation, op, "stage allocations overflow")
		}
		sum += a
	}
	if sum != spec.Goal {
		return stagefund.NewError(stagefund.KindValidation, op,
			"stage allocations sum to %d, goal is %d", sum, spec.Goal)
	}
	if !spec.Deadline.ToTime().After(now) {
		return stagefund.NewError(stagefund.KindValidation, op, "deadline must be in the future")
	}
	if spec.Strategy != types.StrategyContribution && spec.Strategy != types.StrategyStake {
		return stagefund.NewError(stagefund.KindValidation, op, "unknown weight strategy %s", spec.Strategy)
	}
	return nil
}

// lock acquires the campaign's writer lock. A write issued from inside
// a payout of the same campaign is re-entrant and rejected; every other
// writer waits its turn.
func (s *slot) lock(ctx context.Context, op string, id types.CampaignID) error {
	if stagefund.InPayout(ctx, id) {
		return stagefund.NewError(stagefund.KindState, op, "payout in progress").ForCampaign(id)
	}
	s.mu.Lock()
	return nil
}

// pay runs the payout under a context marked with the campaign.
func (l *Ledger) pay(ctx context.Context, id types.CampaignID, to types.Address, amount types.Amount) error {
	return l.payer.Pay(stagefund.WithPayout(ctx, id), id, to, amount)
}

// Donate adds amount to the campaign escrow on behalf of donor and
// returns the new funds raised.
func (l *Ledger) Donate(ctx context.Context, now time.Time, id types.CampaignID, donor types.Address, amount types.Amount) (types.Amount, error) {
	const op = "donate"
	if donor == "" {
		return 0, stagefund.NewError(stagefund.KindValidation, op, "donor is required").ForCampaign(id)
	}
	if amount == 0 {
		return 0, stagefund.NewError(stagefund.KindValidation, op, "amount must be positive").ForCampaign(id)
	}
	s, err := l.slot(op, id)
	if err != nil {
		return 0, err
	}
	if err := s.lock(ctx, op, id); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	cur := s.state.Load()
	h := cur.header
	switch {
	case h.Failed:
		return 0, stagefund.NewError(stagefund.KindState, op, "campaign has failed").ForCampaign(id)
	case h.DeadlinePassed(now):
		return 0, stagefund.NewError(stagefund.KindState, op, "funding deadline has passed").ForCampaign(id)
	case h.GoalMet():
		return 0, stagefund.NewError(stagefund.KindState, op, "funding goal already reached").ForCampaign(id)
	}
	if room := h.Goal - h.FundsRaised; amount > room {
		return 0, stagefund.NewError(stagefund.KindValidation, op,
			"amount %d exceeds remaining room %d", amount, room).ForCampaign(id)
	}

	next := cur.clone()
	next.header.FundsRaised += amount
	next.header.TotalShares += amount
	next.shares[donor] += amount
	s.state.Store(next)

	events := []types.Event{types.NewEvent(types.EventDonation).
		WithUint(types.AttrCampaign, uint64(id)).
		With(types.AttrDonor, string(donor)).
		WithUint(types.AttrAmount, uint64(amount)).
		WithUint(types.AttrShare, uint64(next.shares[donor])).
		WithUint(types.AttrTotalShares, uint64(next.header.TotalShares)).
		WithUint(types.AttrFundsRaised, uint64(next.header.FundsRaised))}
	if next.header.GoalMet() {
		events = append(events, types.NewEvent(types.EventGoalReached).
			WithUint(types.AttrCampaign, uint64(id)).
			WithUint(types.AttrFundsRaised, uint64(next.header.FundsRaised)))
	}
	l.rec.Record(events...)
	return next.header.FundsRaised, nil
}

// Refund pays donor its pro-rata share of the current balance and
// zeroes the share. A donor with no share is paid zero.
func (l *Ledger) Refund(ctx context.Context, now time.Time, id types.CampaignID, donor types.Address) (types.Amount, error) {
	const op = "refund"
	s, err := l.slot(op, id)
	if err != nil {
		return 0, err
	}
	if err := s.lock(ctx, op, id); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	cur := s.state.Load()
	h := cur.header
	if !h.Refundable(now) {
		return 0, stagefund.NewError(stagefund.KindState, op,
			"refunds open only after a missed deadline or a failure").ForCampaign(id)
	}
	share := cur.shares[donor]
	if share == 0 {
		return 0, nil
	}

	payout := proRata(h.Balance(), share, h.TotalShares)
	next := cur.clone()
	delete(next.shares, donor)
	next.header.TotalShares -= share
	next.header.TotalRefunded += payout

	if payout > 0 {
		if err := l.pay(ctx, id, donor, payout); err != nil {
			return 0, stagefund.NewError(stagefund.KindTransfer, op,
				"refund of %d to %s", payout, donor).ForCampaign(id).Wrap(err)
		}
	}
	s.state.Store(next)

	l.rec.Record(types.NewEvent(types.EventRefundIssued).
		WithUint(types.AttrCampaign, uint64(id)).
		With(types.AttrDonor, string(donor)).
		WithUint(types.AttrShare, uint64(share)).
		WithUint(types.AttrAmount, uint64(payout)).
		WithUint(types.AttrTotalShares, uint64(next.header.TotalShares)).
		WithUint(types.AttrRefunded, uint64(next.header.TotalRefunded)))
	l.log.Debug().Uint64("campaign", uint64(id)).Str("donor", string(donor)).
		Uint64("amount", uint64(payout)).Msg("refund issued")
	return payout, nil
}

// ReleaseFunds pays the next pending stage to the campaign owner. Only
// the holder of the governor capability may call it.
func (l *Ledger) ReleaseFunds(ctx context.Context, caller *stagefund.Capability, id types.CampaignID, stage uint32) error {
	const op = "release_funds"
	if err := l.authorize(op, caller); err != nil {
		return err
	}
	s, err := l.slot(op, id)
	if err != nil {
		return err
	}
	if err := s.lock(ctx, op, id); err != nil {
		return err
	}
	defer s.mu.Unlock()

	cur := s.state.Load()
	h := cur.header
	switch {
	case stage >= h.StageCount():
		return stagefund.NewError(stagefund.KindValidation, op,
			"stage %d out of range (campaign has %d)", stage, h.StageCount()).ForCampaign(id)
	case !h.GoalMet():
		return stagefund.NewError(stagefund.KindState, op, "funding goal not reached").ForCampaign(id)
	case h.Failed:
		return stagefund.NewError(stagefund.KindState, op, "campaign has failed").ForCampaign(id)
	case h.StageReleased(stage):
		return stagefund.NewError(stagefund.KindState, op, "stage %d already released", stage).ForCampaign(id)
	case stage != h.NextStage:
		return stagefund.NewError(stagefund.KindState, op,
			"stage %d is not next; stage %d is pending", stage, h.NextStage).ForCampaign(id)
	}

	amount := h.Stages[stage]
	next := cur.clone()
	next.header.NextStage++
	next.header.TotalReleased += amount

	if err := l.pay(ctx, id, h.Owner, amount); err != nil {
		return stagefund.NewError(stagefund.KindTransfer, op,
			"stage %d payout of %d", stage, amount).ForCampaign(id).Wrap(err)
	}
	s.state.Store(next)

	l.rec.Record(types.NewEvent(types.EventFundsReleased).
		WithUint(types.AttrCampaign, uint64(id)).
		WithUint(types.AttrStage, uint64(stage)).
		WithUint(types.AttrAmount, uint64(amount)).
		With(types.AttrRecipient, string(h.Owner)).
		WithUint(types.AttrNextStage, uint64(next.header.NextStage)).
		WithUint(types.AttrReleased, uint64(next.header.TotalReleased)))
	l.log.Info().Uint64("campaign", uint64(id)).Uint32("stage", stage).
		Uint64("amount", uint64(amount)).Msg("stage released")
	return nil
}

// MarkFailed permanently fails a campaign, opening refunds. Only the
// holder of the governor capability may call it.
func (l *Ledger) MarkFailed(ctx context.Context, caller *stagefund.Capability, id types.CampaignID) error {
	const op = "mark_failed"
	if err := l.authorize(op, caller); err != nil {
		return err
	}
	s, err := l.slot(op, id)
	if err != nil {
		return err
	}
	if err := s.lock(ctx, op, id); err != nil {
		return err
	}
	defer s.mu.Unlock()

	cur := s.state.Load()
	switch {
	case cur.header.Failed:
		return stagefund.NewError(stagefund.KindState, op, "campaign already failed").ForCampaign(id)
	case cur.header.Completed():
		return stagefund.NewError(stagefund.KindState, op, "every stage has been released").ForCampaign(id)
	}
	next := cur.clone()
	next.header.Failed = true
	s.state.Store(next)

	l.rec.Record(types.NewEvent(types.EventCampaignFailed).
		WithUint(types.AttrCampaign, uint64(id)).
		WithUint(types.AttrReleased, uint64(next.header.TotalReleased)))
	l.log.Info().Uint64("campaign", uint64(id)).Msg("campaign failed")
	return nil
}

func formatStages(stages []types.Amount) string {
	buf := make([]byte, 0, len(stages)*4)
	for i, a := range stages {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, a.String()...)
	}
	return string(buf)
}
