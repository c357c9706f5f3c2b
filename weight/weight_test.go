package weight_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
	"github.com/blockberries/stagefund/weight"
)

type shares map[types.Address]types.Amount

func (s shares) Contribution(id types.CampaignID, who types.Address) (types.Contribution, error) {
	return types.Contribution{Campaign: id, Contributor: who, Share: s[who]}, nil
}

type recorder struct{ events []types.Event }

func (r *recorder) Record(events ...types.Event) { r.events = append(r.events, events...) }

func TestContribution(t *testing.T) {
	s := weight.NewContribution(shares{"x": 60, "y": 40})
	c := types.Campaign{ID: 1, FundsRaised: 100, Strategy: types.StrategyContribution}

	w, err := s.Weight(c, "x")
	require.NoError(t, err)
	assert.Equal(t, uint64(60), w)

	w, err = s.Weight(c, "nobody")
	require.NoError(t, err)
	assert.Zero(t, w)

	total, err := s.TotalWeight(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), total)
}

func TestRegistry_BondUnbond(t *testing.T) {
	rec := &recorder{}
	r := weight.NewRegistry(rec, zerolog.Nop())

	bond, err := r.Bond("x", 10)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(10), bond)
	_, err = r.Bond("x", 5)
	require.NoError(t, err)
	_, err = r.Bond("y", 7)
	require.NoError(t, err)

	total, err := r.TotalWeight(types.Campaign{})
	require.NoError(t, err)
	assert.Equal(t, uint64(22), total)

	_, err = r.Unbond("y", 8)
	require.ErrorIs(t, err, stagefund.ErrValidation)

	left, err := r.Unbond("y", 7)
	require.NoError(t, err)
	assert.Zero(t, left)
	assert.Equal(t, []types.StakeEntry{{Staker: "x", Amount: 15}}, r.Snapshot())

	_, err = r.Bond("", 1)
	require.ErrorIs(t, err, stagefund.ErrValidation)
	_, err = r.Bond("x", 0)
	require.ErrorIs(t, err, stagefund.ErrValidation)

	require.Len(t, rec.events, 4)
	assert.Equal(t, types.EventStakeUnbonded, rec.events[3].Kind)
	tb, _ := rec.events[3].Uint(types.AttrTotalBonded)
	assert.Equal(t, uint64(15), tb)
}

func TestRegistry_Restore(t *testing.T) {
	r := weight.NewRegistry(nil, zerolog.Nop())
	require.NoError(t, r.Restore([]types.StakeEntry{{Staker: "a", Amount: 3}, {Staker: "b", Amount: 4}}))
	w, err := r.Weight(types.Campaign{}, "b")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), w)

	require.Error(t, r.Restore([]types.StakeEntry{{Staker: "a", Amount: 0}}))
	require.Error(t, r.Restore([]types.StakeEntry{{Staker: "a", Amount: 1}, {Staker: "a", Amount: 1}}))
}

func TestSet_For(t *testing.T) {
	reg := weight.NewRegistry(nil, zerolog.Nop())
	set := weight.Set{types.StrategyStake: reg}

	ws, err := set.For(types.Campaign{Strategy: types.StrategyStake})
	require.NoError(t, err)
	assert.Same(t, reg, ws)

	_, err = set.For(types.Campaign{ID: 3, Strategy: types.StrategyContribution})
	require.ErrorIs(t, err, stagefund.ErrValidation)
}
