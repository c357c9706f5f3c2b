package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/blockberries/stagefund/types"
)

// ErrVaultOffline is returned by a Vault that was switched off.
var ErrVaultOffline = errors.New("vault offline")

// Vault is an in-memory Payer that credits recipient balances. It can
// be switched offline to exercise payout failures.
type Vault struct {
	mu       sync.Mutex
	balances map[types.Address]types.Amount
	paid     types.Amount
	fail     error
	// Called before each payout, outside the vault lock.
	hook func(ctx context.Context, campaign types.CampaignID, to types.Address, amount types.Amount)
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{balances: make(map[types.Address]types.Amount)}
}

// Pay credits amount to to, unless the vault is failing.
func (v *Vault) Pay(ctx context.Context, campaign types.CampaignID, to types.Address, amount types.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	hook, fail := v.hook, v.fail
	v.mu.Unlock()
	if hook != nil {
		hook(ctx, campaign, to, amount)
	}
	if fail != nil {
		return fail
	}
	v.mu.Lock()
	v.balances[to] += amount
	v.paid += amount
	v.mu.Unlock()
	return nil
}

// FailWith makes every following payout return err. A nil err restores
// normal operation.
func (v *Vault) FailWith(err error) {
	v.mu.Lock()
	v.fail = err
	v.mu.Unlock()
}

// OnPay installs a callback run before every payout.
func (v *Vault) OnPay(hook func(ctx context.Context, campaign types.CampaignID, to types.Address, amount types.Amount)) {
	v.mu.Lock()
	v.hook = hook
	v.mu.Unlock()
}

// Balance returns what addr has received.
func (v *Vault) Balance(addr types.Address) types.Amount {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[addr]
}

// TotalPaid returns the sum of every successful payout.
func (v *Vault) TotalPaid() types.Amount {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paid
}
