package stagefundtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

// RunComplianceSuite checks lifecycle behavior every stagefund
// application must show. factory returns a fresh instance per call.
func RunComplianceSuite(t *testing.T, factory func() stagefund.Lifecycle) {
	t.Helper()

	// A funded single-stage campaign: id 1, owner "owner", goal 100.
	fund := func(h *Harness) {
		h.MustRun(CreateCampaign("owner", h.Now().Add(24*time.Hour), types.StrategyContribution, 100))
		h.MustRun(Donate("donor", 1, 100))
	}

	t.Run("genesis_handshake", func(t *testing.T) {
		h := NewHarness(t, factory())
		resp := h.GenesisDefault()
		assert.Nil(t, resp.LastBlock)
		assert.NotNil(t, resp.AppHash)
	})

	t.Run("execute_commit_cycle", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		for i := 0; i < 5; i++ {
			out := h.Run()
			assert.NotEqual(t, types.AppHash{}, out.AppHash, "height %d", h.Height())
		}
	})

	t.Run("deterministic_with_ops", func(t *testing.T) {
		h1 := NewHarness(t, factory())
		h1.GenesisDefault()
		h2 := NewHarness(t, factory())
		h2.GenesisDefault()

		ops := []types.Op{
			CreateCampaign("owner", GenesisTime.Add(time.Hour), types.StrategyContribution, 60, 40),
			Donate("alice", 1, 70),
			Donate("bob", 1, 30),
			Donate("carol", 1, 1),
		}
		o1, o2 := h1.Run(ops...), h2.Run(ops...)
		require.Equal(t, o1.AppHash, o2.AppHash)
		require.Equal(t, o1.TxOutcomes, o2.TxOutcomes)
	})

	t.Run("tx_outcome_indices", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		out := h.Run(Bond("a", 1), Unbond("a", 5), Bond("b", 2))
		require.Len(t, out.TxOutcomes, 3)
		for i, o := range out.TxOutcomes {
			assert.Equal(t, uint32(i), o.Index)
		}
		assert.True(t, out.TxOutcomes[0].OK())
		assert.Equal(t, uint32(stagefund.KindValidation), out.TxOutcomes[1].Code)
		assert.True(t, out.TxOutcomes[2].OK())
	})

	t.Run("failed_op_commits_nothing", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		fund(h)
		out := h.MustFail(Donate("late", 1, 5), stagefund.KindState)
		assert.Empty(t, out.Events)
		assert.Empty(t, out.Data)

		var c struct {
			FundsRaised uint64 `json:"funds_raised"`
		}
		h.QueryJSON("/campaign", types.QueryArgs{Campaign: 1}, &c)
		assert.Equal(t, uint64(100), c.FundsRaised)
	})

	t.Run("garbage_tx_rejected", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		h.MustRejectTx(types.Tx{0xff, 0x00, 0x13})
		h.MustRejectTx(MustTx(t, types.Op{Sender: "nobody"}))
		h.MustAcceptTx(MustTx(t, Bond("a", 1)))

		out := h.ExecuteAndCommit(MakeBlock(h.Height()+1, types.Tx{0xff, 0x00, 0x13}))
		assert.Equal(t, uint32(stagefund.KindValidation), out.TxOutcomes[0].Code)
	})

	t.Run("concurrent_reads_after_handshake", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		fund(h)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := h.Server().CheckTx(context.Background(), MustTx(t, Bond("a", 1)), types.MempoolFirstSeen)
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := h.Server().Query(context.Background(), types.StateQuery{
					Path: "/campaign",
					Data: types.QueryArgs{Campaign: 1}.Encode(),
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	})

	t.Run("query_returns_height", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		fund(h)
		res := h.Query("/campaign", types.QueryArgs{Campaign: 1})
		assert.Zero(t, res.Code, res.Info)
		assert.Equal(t, h.Height(), res.Height)
	})

	t.Run("unknown_campaign_is_validation", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		h.MustFail(Donate("donor", 42, 1), stagefund.KindValidation)
		res := h.Query("/campaign", types.QueryArgs{Campaign: 42})
		assert.Equal(t, uint32(stagefund.KindValidation), res.Code)
	})
}
