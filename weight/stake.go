package weight

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

// Registry is an independent stake registry. Voters on stake-weighted
// campaigns count by their bond, and quorum is measured against the
// total bonded.
type Registry struct {
	rec stagefund.Recorder
	log zerolog.Logger

	mu     sync.RWMutex
	bonds  map[types.Address]types.Amount
	bonded types.Amount
}

var _ stagefund.WeightStrategy = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(rec stagefund.Recorder, log zerolog.Logger) *Registry {
	if rec == nil {
		rec = discard{}
	}
	return &Registry{rec: rec, log: log, bonds: make(map[types.Address]types.Amount)}
}

// Bond adds amount to staker's bond and returns the new bond.
func (r *Registry) Bond(staker types.Address, amount types.Amount) (types.Amount, error) {
	const op = "bond"
	if staker == "" {
		return 0, stagefund.NewError(stagefund.KindValidation, op, "staker is required")
	}
	if amount == 0 {
		return 0, stagefund.NewError(stagefund.KindValidation, op, "amount must be positive")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bonded+amount < r.bonded {
		return 0, stagefund.NewError(stagefund.KindValidation, op, "total bond overflows")
	}
	r.bonds[staker] += amount
	r.bonded += amount
	bond := r.bonds[staker]

	r.rec.Record(types.NewEvent(types.EventStakeBonded).
		With(types.AttrStaker, string(staker)).
		WithUint(types.AttrAmount, uint64(amount)).
		WithUint(types.AttrBonded, uint64(bond)).
		WithUint(types.AttrTotalBonded, uint64(r.bonded)))
	r.log.Debug().Str("staker", string(staker)).Uint64("bonded", uint64(bond)).Msg("stake bonded")
	return bond, nil
}

// Unbond removes amount from staker's bond and returns what is left.
// Receipts already cast keep their weight.
func (r *Registry) Unbond(staker types.Address, amount types.Amount) (types.Amount, error) {
	const op = "unbond"
	if amount == 0 {
		return 0, stagefund.NewError(stagefund.KindValidation, op, "amount must be positive")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	bond := r.bonds[staker]
	if amount > bond {
		return 0, stagefund.NewError(stagefund.KindValidation, op,
			"unbond %d exceeds bond %d", amount, bond)
	}
	bond -= amount
	if bond == 0 {
		delete(r.bonds, staker)
	} else {
		r.bonds[staker] = bond
	}
	r.bonded -= amount

	r.rec.Record(types.NewEvent(types.EventStakeUnbonded).
		With(types.AttrStaker, string(staker)).
		WithUint(types.AttrAmount, uint64(amount)).
		WithUint(types.AttrBonded, uint64(bond)).
		WithUint(types.AttrTotalBonded, uint64(r.bonded)))
	return bond, nil
}

// Stake returns staker's current bond.
func (r *Registry) Stake(staker types.Address) types.Amount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bonds[staker]
}

// Weight is the voter's bond. The campaign does not matter.
func (r *Registry) Weight(_ types.Campaign, voter types.Address) (uint64, error) {
	return uint64(r.Stake(voter)), nil
}

// TotalWeight is the total bonded.
func (r *Registry) TotalWeight(types.Campaign) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(r.bonded), nil
}

// Snapshot returns every bond ordered by staker.
func (r *Registry) Snapshot() []types.StakeEntry {
	r.mu.RLock()
	out := make([]types.StakeEntry, 0, len(r.bonds))
	for addr, amt := range r.bonds {
		out = append(out, types.StakeEntry{Staker: addr, Amount: amt})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Staker < out[j].Staker })
	return out
}

// Restore replaces the registry's bonds. It records no events.
func (r *Registry) Restore(entries []types.StakeEntry) error {
	bonds := make(map[types.Address]types.Amount, len(entries))
	var total types.Amount
	for _, e := range entries {
		if e.Staker == "" || e.Amount == 0 {
			return fmt.Errorf("invalid stake entry %q=%d", e.Staker, e.Amount)
		}
		if _, dup := bonds[e.Staker]; dup {
			return fmt.Errorf("duplicate stake entry for %q", e.Staker)
		}
		if total+e.Amount < total {
			return fmt.Errorf("stake total overflows")
		}
		bonds[e.Staker] = e.Amount
		total += e.Amount
	}
	r.mu.Lock()
	r.bonds = bonds
	r.bonded = total
	r.mu.Unlock()
	return nil
}

type discard struct{}

func (discard) Record(...types.Event) {}
