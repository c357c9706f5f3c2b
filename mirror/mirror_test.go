package mirror_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/stagefund/governance"
	"github.com/blockberries/stagefund/journal"
	"github.com/blockberries/stagefund/ledger"
	"github.com/blockberries/stagefund/mirror"
	"github.com/blockberries/stagefund/types"
	"github.com/blockberries/stagefund/weight"
)

var (
	ctx = context.Background()
	t0  = time.Date(2026, 5, 4, 9, 30, 0, 123, time.UTC)
)

func openTemp(t *testing.T) *mirror.Mirror {
	t.Helper()
	m, err := mirror.Open(ctx, filepath.Join(t.TempDir(), "mirror.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := mirror.Open(ctx, " ", zerolog.Nop())
	require.Error(t, err)
}

func TestOpen_MigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	m, err := mirror.Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, m.Close())

	m, err = mirror.Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	defer m.Close()
	seq, _, err := m.Cursor(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)
}

// TestReconstruction drives the ledger, governance and stake registry
// and checks the mirror ends up with the same state.
func TestReconstruction(t *testing.T) {
	j := journal.New(0)
	vault := ledger.NewVault()
	l := ledger.New(vault, ledger.WithRecorder(j))
	reg := weight.NewRegistry(j, zerolog.Nop())
	token, err := l.IssueGovernorCapability("governance")
	require.NoError(t, err)
	params := types.DefaultParams()
	params.VotingPeriod = types.DurationFromGo(time.Hour)
	eng, err := governance.New(l, token, params, weight.Set{
		types.StrategyContribution: weight.NewContribution(l),
		types.StrategyStake:        reg,
	}, governance.WithRecorder(j))
	require.NoError(t, err)

	m := openTemp(t)
	commit := func(height uint64) {
		t.Helper()
		_, err := m.Apply(ctx, j.Flush())
		require.NoError(t, err)
		j.Begin(height + 1)
	}
	j.Begin(1)

	a, err := l.CreateCampaign(ctx, t0, types.CampaignSpec{
		Owner: "owner", Goal: 100, Deadline: types.TimeToTimestamp(t0.Add(48 * time.Hour)),
		Stages: []types.Amount{30, 70}, Strategy: types.StrategyContribution,
	})
	require.NoError(t, err)
	b, err := l.CreateCampaign(ctx, t0, types.CampaignSpec{
		Owner: "owner", Goal: 50, Deadline: types.TimeToTimestamp(t0.Add(time.Hour)),
		Stages: []types.Amount{50}, Strategy: types.StrategyStake,
	})
	require.NoError(t, err)
	_, err = reg.Bond("s1", 10)
	require.NoError(t, err)
	_, err = reg.Bond("s2", 5)
	require.NoError(t, err)
	commit(1)

	for _, d := range []struct {
		who types.Address
		amt types.Amount
	}{{"x", 40}, {"y", 20}, {"x", 20}, {"z", 20}} {
		_, err := l.Donate(ctx, t0, a, d.who, d.amt)
		require.NoError(t, err)
	}
	_, err = l.Donate(ctx, t0, b, "x", 10)
	require.NoError(t, err)
	commit(2)

	pid, err := eng.CreateProposal(ctx, t0, "owner", a, 0, "ipfs://evidence")
	require.NoError(t, err)
	_, err = eng.Vote(ctx, t0, pid, "x", true)
	require.NoError(t, err)
	_, err = eng.Vote(ctx, t0, pid, "z", false)
	require.NoError(t, err)
	_, err = eng.Resolve(ctx, t0.Add(time.Hour), pid)
	require.NoError(t, err)
	cancelled, err := eng.CreateProposal(ctx, t0.Add(time.Hour), "owner", a, 1, "ipfs://next")
	require.NoError(t, err)
	require.NoError(t, eng.CancelProposal(ctx, "owner", cancelled))
	require.NoError(t, eng.DeclareFailure(ctx, "owner", a))
	_, err = l.Refund(ctx, t0.Add(time.Hour), a, "y")
	require.NoError(t, err)
	_, err = l.Refund(ctx, t0.Add(time.Hour), b, "x")
	require.NoError(t, err)
	_, err = reg.Unbond("s2", 5)
	require.NoError(t, err)
	commit(3)

	for _, id := range []types.CampaignID{a, b} {
		want, err := l.Campaign(id)
		require.NoError(t, err)
		got, ok, err := m.Campaign(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)

		wantShares, err := l.Contributions(id)
		require.NoError(t, err)
		gotShares, err := m.Contributions(ctx, id)
		require.NoError(t, err)
		if len(wantShares) == 0 {
			assert.Empty(t, gotShares)
		} else {
			assert.Equal(t, wantShares, gotShares)
		}
	}

	for _, id := range []types.ProposalID{pid, cancelled} {
		want, err := eng.Proposal(id)
		require.NoError(t, err)
		got, ok, err := m.Proposal(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	for _, voter := range []types.Address{"x", "y", "z"} {
		want, err := eng.Receipt(pid, voter)
		require.NoError(t, err)
		got, err := m.Receipt(ctx, pid, voter)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	stakes, err := m.Stakes(ctx)
	require.NoError(t, err)
	assert.Equal(t, reg.Snapshot(), stakes)

	seq, height, err := m.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, j.Seq(), seq)
	assert.Equal(t, uint64(3), height)
}

func TestApply_AmountsAboveInt64(t *testing.T) {
	j := journal.New(0)
	l := ledger.New(ledger.NewVault(), ledger.WithRecorder(j))
	reg := weight.NewRegistry(j, zerolog.Nop())
	token, err := l.IssueGovernorCapability("governance")
	require.NoError(t, err)
	eng, err := governance.New(l, token, types.DefaultParams(), weight.Set{
		types.StrategyContribution: weight.NewContribution(l),
		types.StrategyStake:        reg,
	}, governance.WithRecorder(j))
	require.NoError(t, err)
	m := openTemp(t)
	j.Begin(1)

	const huge = types.Amount(math.MaxUint64)
	id, err := l.CreateCampaign(ctx, t0, types.CampaignSpec{
		Owner: "owner", Goal: huge, Deadline: types.TimeToTimestamp(t0.Add(time.Hour)),
		Stages: []types.Amount{huge - 1, 1}, Strategy: types.StrategyContribution,
	})
	require.NoError(t, err)
	_, err = l.Donate(ctx, t0, id, "whale", huge)
	require.NoError(t, err)
	_, err = reg.Bond("s", huge)
	require.NoError(t, err)
	pid, err := eng.CreateProposal(ctx, t0, "owner", id, 0, "ipfs://evidence")
	require.NoError(t, err)
	_, err = eng.Vote(ctx, t0, pid, "whale", true)
	require.NoError(t, err)

	_, err = m.Apply(ctx, j.Flush())
	require.NoError(t, err)

	want, err := l.Campaign(id)
	require.NoError(t, err)
	got, ok, err := m.Campaign(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	shares, err := m.Contributions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []types.Contribution{{Campaign: id, Contributor: "whale", Share: huge}}, shares)

	r, err := m.Receipt(ctx, pid, "whale")
	require.NoError(t, err)
	assert.Equal(t, uint64(huge), r.Weight)

	stakes, err := m.Stakes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.StakeEntry{{Staker: "s", Amount: huge}}, stakes)
}

func TestApply_Idempotent(t *testing.T) {
	m := openTemp(t)
	ev := []types.RecordedEvent{
		{Seq: 1, Height: 1, Event: types.NewEvent(types.EventStakeBonded).
			With(types.AttrStaker, "s").WithUint(types.AttrAmount, 4).
			WithUint(types.AttrBonded, 4).WithUint(types.AttrTotalBonded, 4)},
	}
	n, err := m.Apply(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.Apply(ctx, ev)
	require.NoError(t, err)
	assert.Zero(t, n)

	stakes, err := m.Stakes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.StakeEntry{{Staker: "s", Amount: 4}}, stakes)
}

func TestApply_RejectsGapAndBadEvents(t *testing.T) {
	m := openTemp(t)
	_, err := m.Apply(ctx, []types.RecordedEvent{{Seq: 2, Height: 1, Event: types.NewEvent(types.EventCampaignFailed)}})
	require.Error(t, err)

	_, err = m.Apply(ctx, []types.RecordedEvent{{Seq: 1, Height: 1, Event: types.NewEvent("bogus")}})
	require.Error(t, err)

	_, err = m.Apply(ctx, []types.RecordedEvent{{Seq: 1, Height: 1, Event: types.NewEvent(types.EventDonation)}})
	require.Error(t, err)

	seq, _, err := m.Cursor(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)
}
