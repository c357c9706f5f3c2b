package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/stagefund/app"
	stagefundtest "github.com/blockberries/stagefund/testing"
	"github.com/blockberries/stagefund/types"
)

func TestConnection_FullCycle(t *testing.T) {
	conn := NewConnection(app.New(app.Options{}))
	defer conn.Close()
	ctx := context.Background()

	genesis := stagefundtest.DefaultGenesis()
	_, err := conn.Handshake(ctx, types.HandshakeRequest{Genesis: &genesis})
	require.NoError(t, err)
	require.True(t, conn.Capabilities().Has(types.CapSimulation))
	require.NotNil(t, conn.AsSimulator())

	out, err := conn.ExecuteBlock(ctx, stagefundtest.MakeBlock(1,
		stagefundtest.MustTx(t, stagefundtest.Bond("val", 40)),
		stagefundtest.MustTx(t, stagefundtest.CreateCampaign("owner",
			stagefundtest.GenesisTime.Add(time.Hour), types.StrategyStake, 10)),
	))
	require.NoError(t, err)
	for _, o := range out.TxOutcomes {
		require.True(t, o.OK(), o.Info)
	}
	_, err = conn.Commit(ctx)
	require.NoError(t, err)

	res, err := conn.Query(ctx, types.StateQuery{
		Path: app.PathStake,
		Data: types.QueryArgs{Address: "val"}.Encode(),
	})
	require.NoError(t, err)
	require.Zero(t, res.Code, res.Info)
	require.JSONEq(t, `{"staker":"val","bonded":40,"total_bonded":40}`, string(res.Value))
}

func TestConnection_CheckTxConcurrent(t *testing.T) {
	conn := NewConnection(app.New(app.Options{}))
	genesis := stagefundtest.DefaultGenesis()
	_, err := conn.Handshake(context.Background(), types.HandshakeRequest{Genesis: &genesis})
	require.NoError(t, err)

	tx := stagefundtest.MustTx(t, stagefundtest.Donate("donor", 1, 5))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := conn.CheckTx(context.Background(), tx, types.MempoolFirstSeen)
			assert.NoError(t, err)
			assert.True(t, v.Accepted())
		}()
	}
	wg.Wait()
}
