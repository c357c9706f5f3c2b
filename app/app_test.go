package app_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/app"
	"github.com/blockberries/stagefund/ledger"
	"github.com/blockberries/stagefund/mirror"
	"github.com/blockberries/stagefund/store"
	sft "github.com/blockberries/stagefund/testing"
	"github.com/blockberries/stagefund/types"
)

const owner types.Address = "owner"

type fixture struct {
	h     *sft.Harness
	app   *app.App
	vault *ledger.Vault
	store *store.Store
}

func newFixture(t *testing.T, genesis types.GenesisDoc, opts app.Options) *fixture {
	t.Helper()
	f := &fixture{vault: ledger.NewVault(), store: store.NewMem()}
	if opts.Payer == nil {
		opts.Payer = f.vault
	}
	if opts.Store == nil {
		opts.Store = f.store
	}
	f.store = opts.Store
	f.app = app.New(opts)
	f.h = sft.NewHarness(t, f.app)
	f.h.Genesis(genesis)
	return f
}

func decode[T any](t *testing.T, out types.TxOutcome) T {
	t.Helper()
	require.True(t, out.OK(), "code=%d info=%q", out.Code, out.Info)
	var v T
	require.NoError(t, cramberry.Unmarshal(out.Data, &v))
	return v
}

func kinds(events []types.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// funded creates a two-stage campaign (60, 40) funded by alice (60) and
// bob (40), then opens a proposal for stage 0.
func (f *fixture) funded(t *testing.T) (types.CampaignID, types.ProposalID) {
	t.Helper()
	h := f.h
	id := decode[types.CreateCampaignResult](t, h.MustRun(
		sft.CreateCampaign(owner, h.Now().Add(24*time.Hour), types.StrategyContribution, 60, 40))).Campaign
	h.MustRun(sft.Donate("alice", id, 60))
	h.MustRun(sft.Donate("bob", id, 40))
	pid := decode[types.CreateProposalResult](t, h.MustRun(
		sft.CreateProposal(owner, id, 0, "ipfs://stage-0"))).Proposal
	return id, pid
}

func (f *fixture) campaign(id types.CampaignID) app.CampaignView {
	var v app.CampaignView
	f.h.QueryJSON(app.PathCampaign, types.QueryArgs{Campaign: id}, &v)
	return v
}

func (f *fixture) proposal(id types.ProposalID) app.ProposalView {
	var v app.ProposalView
	f.h.QueryJSON(app.PathProposal, types.QueryArgs{Proposal: id}, &v)
	return v
}

func TestCompliance(t *testing.T) {
	sft.RunComplianceSuite(t, func() stagefund.Lifecycle { return app.New(app.Options{}) })
}

func TestGoalReachedOnce(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h

	id := decode[types.CreateCampaignResult](t, h.MustRun(
		sft.CreateCampaign(owner, h.Now().Add(time.Hour), types.StrategyContribution, 100))).Campaign
	require.Equal(t, types.CampaignID(1), id)

	first := h.MustRun(sft.Donate("alice", id, 60))
	assert.Equal(t, []string{types.EventDonation}, kinds(first.Events))
	assert.Equal(t, types.Amount(60), decode[types.DonateResult](t, first).FundsRaised)

	second := h.MustRun(sft.Donate("bob", id, 40))
	assert.Equal(t, []string{types.EventDonation, types.EventGoalReached}, kinds(second.Events))

	h.MustFail(sft.Donate("carol", id, 1), stagefund.KindState)
	c := f.campaign(id)
	assert.True(t, c.GoalMet)
	assert.Equal(t, types.Amount(100), c.FundsRaised)
	assert.Equal(t, types.Amount(100), c.Balance)
}

func TestOverfundingRejected(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h
	h.MustRun(sft.CreateCampaign(owner, h.Now().Add(time.Hour), types.StrategyContribution, 100))
	h.MustRun(sft.Donate("alice", 1, 90))
	h.MustFail(sft.Donate("bob", 1, 11), stagefund.KindValidation)
	assert.Equal(t, types.Amount(90), f.campaign(1).FundsRaised)
}

func TestProposalExecuted(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h
	id, pid := f.funded(t)

	vote := h.MustRun(sft.Vote("alice", pid, true))
	assert.Equal(t, uint64(60), decode[types.VoteResult](t, vote).Weight)

	// Too early.
	h.MustFail(sft.Resolve("anyone", pid), stagefund.KindState)

	h.Advance(72 * time.Hour)
	out := h.MustRun(sft.Resolve("anyone", pid))
	assert.Equal(t, types.ProposalExecuted, decode[types.ResolveResult](t, out).Outcome)
	assert.Equal(t, []string{types.EventFundsReleased, types.EventProposalResolved}, kinds(out.Events))

	assert.Equal(t, types.Amount(60), f.vault.Balance(owner))
	c := f.campaign(id)
	assert.Equal(t, uint32(1), c.NextStage)
	assert.Equal(t, types.Amount(60), c.TotalReleased)
	assert.Equal(t, types.Amount(40), c.Balance)

	p := f.proposal(pid)
	assert.Equal(t, "executed", p.Status)
	assert.Equal(t, uint64(60), p.VotesFor)

	var stage types.StageAllocation
	h.QueryJSON(app.PathStage, types.QueryArgs{Campaign: id, Stage: 0}, &stage)
	assert.True(t, stage.Released)

	// The next stage can now be proposed.
	h.MustRun(sft.CreateProposal(owner, id, 1, "ipfs://stage-1"))
}

func TestProposalDefeated(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h
	id, pid := f.funded(t)

	h.MustRun(sft.Vote("alice", pid, false))
	h.MustRun(sft.Vote("bob", pid, true))
	h.MustFail(sft.Vote("bob", pid, true), stagefund.KindState)
	h.MustFail(sft.Vote("mallory", pid, true), stagefund.KindAuthorization)

	h.Advance(72 * time.Hour)
	out := h.MustRun(sft.Resolve("anyone", pid))
	assert.Equal(t, types.ProposalDefeated, decode[types.ResolveResult](t, out).Outcome)
	assert.Equal(t, []string{types.EventProposalResolved}, kinds(out.Events))

	assert.Zero(t, f.vault.TotalPaid())
	assert.Equal(t, uint32(0), f.campaign(id).NextStage)

	var receipt types.VoteReceipt
	h.QueryJSON(app.PathReceipt, types.QueryArgs{Proposal: pid, Address: "alice"}, &receipt)
	assert.True(t, receipt.Voted)
	assert.False(t, receipt.Support)
	assert.Equal(t, uint64(60), receipt.Weight)

	// A defeated stage can be proposed again.
	h.MustRun(sft.CreateProposal(owner, id, 0, "ipfs://stage-0-v2"))
}

func TestRefundAfterMissedDeadline(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h
	h.MustRun(sft.CreateCampaign(owner, h.Now().Add(time.Hour), types.StrategyContribution, 100))
	h.MustRun(sft.Donate("alice", 1, 70))

	h.MustFail(sft.Refund("alice", 1), stagefund.KindState)
	h.Advance(time.Hour)
	h.MustFail(sft.Donate("bob", 1, 10), stagefund.KindState)

	out := h.MustRun(sft.Refund("alice", 1))
	assert.Equal(t, types.Amount(70), decode[types.RefundResult](t, out).AmountPaid)
	assert.Equal(t, []string{types.EventRefundIssued}, kinds(out.Events))
	assert.Equal(t, types.Amount(70), f.vault.Balance("alice"))

	again := h.MustRun(sft.Refund("alice", 1))
	assert.Zero(t, decode[types.RefundResult](t, again).AmountPaid)
	assert.Empty(t, again.Events)
	assert.Equal(t, types.Amount(70), f.vault.Balance("alice"))

	c := f.campaign(1)
	assert.Equal(t, types.Amount(70), c.TotalRefunded)
	assert.Zero(t, c.Balance)
}

func TestOneActiveProposalPerStage(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h
	id, pid := f.funded(t)

	h.MustFail(sft.CreateProposal(owner, id, 0, "ipfs://dup"), stagefund.KindState)
	h.MustFail(sft.CreateProposal(owner, id, 1, "ipfs://skip"), stagefund.KindState)
	h.MustFail(sft.CreateProposal("alice", id, 0, "ipfs://not-owner"), stagefund.KindAuthorization)
	h.MustFail(sft.CreateProposal(owner, id, 2, "ipfs://range"), stagefund.KindValidation)

	h.MustFail(sft.CancelProposal("alice", pid), stagefund.KindAuthorization)
	out := h.MustRun(sft.CancelProposal(owner, pid))
	assert.Equal(t, []string{types.EventProposalCancelled}, kinds(out.Events))
	assert.Equal(t, "cancelled", f.proposal(pid).Status)

	next := decode[types.CreateProposalResult](t, h.MustRun(sft.CreateProposal(owner, id, 0, "ipfs://retry"))).Proposal
	assert.Equal(t, pid+1, next)
}

func TestTransferFailureIsRetryable(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h
	_, pid := f.funded(t)
	h.MustRun(sft.Vote("alice", pid, true))
	h.Advance(72 * time.Hour)

	f.vault.FailWith(ledger.ErrVaultOffline)
	out := h.MustFail(sft.Resolve("anyone", pid), stagefund.KindTransfer)
	assert.Empty(t, out.Events)
	assert.Equal(t, "active", f.proposal(pid).Status)

	f.vault.FailWith(nil)
	res := h.MustRun(sft.Resolve("anyone", pid))
	assert.Equal(t, types.ProposalExecuted, decode[types.ResolveResult](t, res).Outcome)
	assert.Equal(t, types.Amount(60), f.vault.Balance(owner))
}

func TestMaxDefeatsFailsCampaign(t *testing.T) {
	genesis := sft.DefaultGenesis()
	genesis.Params = types.GovernanceParams{
		VotingPeriod: types.DurationFromGo(time.Hour),
		QuorumBps:    5_000,
		MaxDefeats:   1,
	}
	f := newFixture(t, genesis, app.Options{})
	h := f.h
	id, pid := f.funded(t)

	h.MustRun(sft.Vote("alice", pid, false))
	h.Advance(time.Hour)
	out := h.MustRun(sft.Resolve("anyone", pid))
	assert.Equal(t, []string{types.EventProposalResolved, types.EventCampaignFailed}, kinds(out.Events))
	assert.True(t, f.campaign(id).Failed)

	h.MustFail(sft.CreateProposal(owner, id, 0, "ipfs://again"), stagefund.KindState)
	assert.Equal(t, types.Amount(60), decode[types.RefundResult](t, h.MustRun(sft.Refund("alice", id))).AmountPaid)
	assert.Equal(t, types.Amount(40), decode[types.RefundResult](t, h.MustRun(sft.Refund("bob", id))).AmountPaid)
}

func TestDeclareFailureRefundsRemainder(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h
	id, pid := f.funded(t)
	h.MustRun(sft.Vote("alice", pid, true))
	h.Advance(72 * time.Hour)
	h.MustRun(sft.Resolve("anyone", pid))

	h.MustFail(sft.DeclareFailure("alice", id), stagefund.KindAuthorization)
	h.MustRun(sft.DeclareFailure(owner, id))
	h.MustFail(sft.DeclareFailure(owner, id), stagefund.KindState)

	// 40 left in escrow, split 60:40.
	assert.Equal(t, types.Amount(24), decode[types.RefundResult](t, h.MustRun(sft.Refund("alice", id))).AmountPaid)
	assert.Equal(t, types.Amount(16), decode[types.RefundResult](t, h.MustRun(sft.Refund("bob", id))).AmountPaid)
	assert.Zero(t, f.campaign(id).Balance)
}

func TestStakeWeightedCampaign(t *testing.T) {
	genesis := sft.DefaultGenesis()
	genesis.Stakes = []types.StakeEntry{{Staker: "val1", Amount: 30}, {Staker: "val2", Amount: 70}}
	f := newFixture(t, genesis, app.Options{})
	h := f.h

	id := decode[types.CreateCampaignResult](t, h.MustRun(
		sft.CreateCampaign(owner, h.Now().Add(time.Hour), types.StrategyStake, 50))).Campaign
	h.MustRun(sft.Donate("alice", id, 50))
	pid := decode[types.CreateProposalResult](t, h.MustRun(sft.CreateProposal(owner, id, 0, "ipfs://s"))).Proposal

	h.MustFail(sft.Vote("alice", pid, true), stagefund.KindAuthorization)
	assert.Equal(t, uint64(70), decode[types.VoteResult](t, h.MustRun(sft.Vote("val2", pid, true))).Weight)

	h.MustRun(sft.Bond("val1", 10))
	var stake app.StakeView
	h.QueryJSON(app.PathStake, types.QueryArgs{Address: "val1"}, &stake)
	assert.Equal(t, types.Amount(40), stake.Bonded)
	assert.Equal(t, uint64(110), stake.TotalBonded)

	h.Advance(72 * time.Hour)
	out := h.MustRun(sft.Resolve("anyone", pid))
	assert.Equal(t, types.ProposalExecuted, decode[types.ResolveResult](t, out).Outcome)
}

func TestSimulateDoesNotMutate(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h
	h.MustRun(sft.CreateCampaign(owner, h.Now().Add(time.Hour), types.StrategyContribution, 100))

	sim := h.Server().AsSimulator()
	require.NotNil(t, sim)
	out, err := sim.Simulate(context.Background(), sft.MustTx(t, sft.Donate("alice", 1, 100)))
	require.NoError(t, err)
	require.True(t, out.OK(), out.Info)
	assert.Equal(t, []string{types.EventDonation, types.EventGoalReached}, kinds(out.Events))

	assert.Zero(t, f.campaign(1).FundsRaised)

	var events []app.EventView
	h.QueryJSON(app.PathEvents, types.QueryArgs{}, &events)
	assert.Equal(t, []string{types.EventCampaignCreated}, func() []string {
		out := make([]string, len(events))
		for i, e := range events {
			out[i] = e.Kind
		}
		return out
	}())
}

func TestEventsQueryPages(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h
	f.funded(t)

	var all []app.EventView
	h.QueryJSON(app.PathEvents, types.QueryArgs{}, &all)
	require.Len(t, all, 5)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
	assert.Equal(t, "alice", all[1].Attributes[types.AttrDonor])

	var tail []app.EventView
	h.QueryJSON(app.PathEvents, types.QueryArgs{After: 3}, &tail)
	require.Len(t, tail, 2)
	assert.Equal(t, types.EventGoalReached, tail[0].Kind)
	assert.Equal(t, types.EventProposalCreated, tail[1].Kind)
}

func TestQueryErrors(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	assert.Equal(t, uint32(stagefund.KindValidation), f.h.Query("/nope", types.QueryArgs{}).Code)
	assert.Equal(t, uint32(stagefund.KindValidation), f.h.Query(app.PathProposal, types.QueryArgs{Proposal: 9}).Code)

	var params struct {
		VotingPeriod string `json:"voting_period"`
		QuorumBps    uint32 `json:"quorum_bps"`
		MaxDefeats   uint32 `json:"max_defeats"`
	}
	f.h.QueryJSON(app.PathParams, types.QueryArgs{}, &params)
	assert.Equal(t, "72h0m0s", params.VotingPeriod)
	assert.Equal(t, uint32(5_000), params.QuorumBps)
	assert.Equal(t, uint32(3), params.MaxDefeats)
}

func TestRestartFromStore(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	id, pid := f.funded(t)
	last := f.h.Run(sft.Vote("alice", pid, true))
	height := f.h.Height()

	restarted := app.New(app.Options{Store: f.store, Payer: f.vault})
	h := sft.NewHarness(t, restarted)
	resp := h.Restart(types.BlockID{Height: height}, f.h.Now())
	require.NotNil(t, resp.LastBlock)
	assert.Equal(t, height, resp.LastBlock.Height)
	assert.Equal(t, last.AppHash, *resp.AppHash)

	var c app.CampaignView
	h.QueryJSON(app.PathCampaign, types.QueryArgs{Campaign: id}, &c)
	assert.Equal(t, f.campaign(id), c)

	var events []app.EventView
	h.QueryJSON(app.PathEvents, types.QueryArgs{}, &events)
	assert.Empty(t, events)

	// Sequence numbers continue after the restart.
	h.Advance(72 * time.Hour)
	out := h.MustRun(sft.Resolve("anyone", pid))
	require.Len(t, out.Events, 2)
	h.QueryJSON(app.PathEvents, types.QueryArgs{}, &events)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(7), events[0].Seq)
	assert.Equal(t, types.Amount(60), f.vault.Balance(owner))
}

func TestRetainBlocksPrunesStore(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{RetainBlocks: 2})
	for i := 0; i < 5; i++ {
		f.h.Run()
	}

	_, ok, err := f.store.Load(2)
	require.NoError(t, err)
	assert.False(t, ok)
	c, ok, err := f.store.Load(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), c.Snapshot.Height)

	latest, err := f.store.LatestHeight()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), latest)
}

func TestMirrorTracksCommits(t *testing.T) {
	ctx := context.Background()
	m, err := mirror.Open(ctx, filepath.Join(t.TempDir(), "mirror.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	genesis := sft.DefaultGenesis()
	genesis.Stakes = []types.StakeEntry{{Staker: "val", Amount: 5}}
	f := newFixture(t, genesis, app.Options{Mirror: m})
	id, pid := f.funded(t)
	f.h.MustRun(sft.Vote("bob", pid, true))

	seq, height, err := m.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), seq)
	assert.Equal(t, f.h.Height(), height)

	mc, ok, err := m.Campaign(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.Amount(100), mc.FundsRaised)
	assert.Equal(t, owner, mc.Owner)

	mp, ok, err := m.Proposal(ctx, pid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(40), mp.VotesFor)

	stakes, err := m.Stakes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.StakeEntry{{Staker: "val", Amount: 5}}, stakes)
}

func TestMirrorCatchesUpAfterFailedApply(t *testing.T) {
	ctx := context.Background()
	m, err := mirror.Open(ctx, filepath.Join(t.TempDir(), "mirror.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	f := newFixture(t, sft.DefaultGenesis(), app.Options{Mirror: m})
	h := f.h

	// The mirror cannot be reached while block 1 commits.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	out := h.ExecuteBlock(types.FinalizedBlock{
		Height: h.Height() + 1,
		Time:   types.TimeToTimestamp(h.Now()),
		Txs: []types.Tx{sft.MustTx(t,
			sft.CreateCampaign(owner, h.Now().Add(24*time.Hour), types.StrategyContribution, 60, 40))},
	})
	h.CommitContext(cancelled)
	h.Advance(sft.BlockInterval)
	id := decode[types.CreateCampaignResult](t, out.TxOutcomes[0]).Campaign

	seq, _, err := m.Cursor(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	h.MustRun(sft.Donate("alice", id, 60))
	h.MustRun(sft.Donate("bob", id, 40))

	seq, height, err := m.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)
	assert.Equal(t, h.Height(), height)

	mc, ok, err := m.Campaign(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.Amount(100), mc.FundsRaised)
	assert.Equal(t, []types.Amount{60, 40}, mc.Stages)
}

func TestPayoutsCarryBlockHeight(t *testing.T) {
	f := newFixture(t, sft.DefaultGenesis(), app.Options{})
	h := f.h
	_, pid := f.funded(t)
	h.MustRun(sft.Vote("alice", pid, true))
	h.Advance(72 * time.Hour)

	var heights []uint64
	f.vault.OnPay(func(ctx context.Context, _ types.CampaignID, _ types.Address, _ types.Amount) {
		height, ok := stagefund.PayoutHeight(ctx)
		require.True(t, ok)
		heights = append(heights, height)
	})
	h.MustRun(sft.Resolve("anyone", pid))
	assert.Equal(t, []uint64{h.Height()}, heights)
}
