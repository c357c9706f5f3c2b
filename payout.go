package stagefund

import (
	"context"

	"github.com/blockberries/stagefund/types"
)

type payoutKey struct{}

type payoutFrame struct {
	campaign types.CampaignID
	parent   *payoutFrame
}

// WithPayout marks ctx as running inside a payout out of campaign's
// escrow. The ledger hands the marked context to the [Payer].
func WithPayout(ctx context.Context, campaign types.CampaignID) context.Context {
	parent, _ := ctx.Value(payoutKey{}).(*payoutFrame)
	return context.WithValue(ctx, payoutKey{}, &payoutFrame{campaign: campaign, parent: parent})
}

// InPayout reports whether ctx descends from a payout out of campaign.
// A write to that campaign from such a context would wait on itself.
func InPayout(ctx context.Context, campaign types.CampaignID) bool {
	f, _ := ctx.Value(payoutKey{}).(*payoutFrame)
	for ; f != nil; f = f.parent {
		if f.campaign == campaign {
			return true
		}
	}
	return false
}

type heightKey struct{}

// WithBlockHeight records the height of the block whose ops run under ctx.
func WithBlockHeight(ctx context.Context, height uint64) context.Context {
	return context.WithValue(ctx, heightKey{}, height)
}

// PayoutHeight returns the block height a payout belongs to, if the
// caller recorded one with [WithBlockHeight].
func PayoutHeight(ctx context.Context) (uint64, bool) {
	h, ok := ctx.Value(heightKey{}).(uint64)
	return h, ok
}
