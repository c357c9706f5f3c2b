// Package weight provides the voting weight strategies a campaign can
// select at creation time.
package weight

import (
	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

// ShareReader is the slice of the ledger the contribution strategy reads.
type ShareReader interface {
	Contribution(id types.CampaignID, contributor types.Address) (types.Contribution, error)
}

// Contribution weights voters by their escrow share.
type Contribution struct {
	shares ShareReader
}

var _ stagefund.WeightStrategy = Contribution{}

// NewContribution returns a strategy reading shares from r.
func NewContribution(r ShareReader) Contribution {
	return Contribution{shares: r}
}

// Weight is the voter's current share.
func (s Contribution) Weight(c types.Campaign, voter types.Address) (uint64, error) {
	ct, err := s.shares.Contribution(c.ID, voter)
	if err != nil {
		return 0, err
	}
	return uint64(ct.Share), nil
}

// TotalWeight is the campaign's funds raised.
func (Contribution) TotalWeight(c types.Campaign) (uint64, error) {
	return uint64(c.FundsRaised), nil
}

// Set maps a campaign's strategy selector to its implementation.
type Set map[types.WeightStrategy]stagefund.WeightStrategy

// For returns the strategy the campaign selected.
func (s Set) For(c types.Campaign) (stagefund.WeightStrategy, error) {
	ws, ok := s[c.Strategy]
	if !ok {
		return nil, stagefund.NewError(stagefund.KindValidation, "weight",
			"no %s strategy configured", c.Strategy).ForCampaign(c.ID)
	}
	return ws, nil
}
