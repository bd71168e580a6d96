package lending

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// VaultKind distinguishes the custody pools a bank operates.
type VaultKind uint8

const (
	// VaultLiquidity holds deposited tokens backing withdrawals and borrows.
	VaultLiquidity VaultKind = iota
	// VaultInsurance holds the protocol's loss-absorption reserve.
	VaultInsurance
)

func (k VaultKind) String() string {
	switch k {
	case VaultLiquidity:
		return "liquidity"
	case VaultInsurance:
		return "insurance"
	default:
		return "unknown"
	}
}

// Custody moves real tokens between users and bank vaults. The engine keeps
// its own bookkeeping on the Bank record; custody is the settlement layer
// those numbers must reconcile against.
type Custody interface {
	// DepositToVault pulls amount of the asset from the owner into the vault.
	DepositToVault(ctx context.Context, assetID string, kind VaultKind, owner string, amount decimal.Decimal) error
	// WithdrawFromVault pushes amount of the asset from the vault to the owner.
	WithdrawFromVault(ctx context.Context, assetID string, kind VaultKind, owner string, amount decimal.Decimal) error
}

// MemoryCustody is an in-process custody ledger used by the standalone node
// and by tests. Vault balances never go negative.
type MemoryCustody struct {
	mu     sync.Mutex
	vaults map[string]decimal.Decimal
}

// NewMemoryCustody constructs an empty ledger.
func NewMemoryCustody() *MemoryCustody {
	return &MemoryCustody{vaults: make(map[string]decimal.Decimal)}
}

func vaultKey(assetID string, kind VaultKind) string {
	return assetID + "/" + kind.String()
}

// DepositToVault credits the vault ledger.
func (m *MemoryCustody) DepositToVault(_ context.Context, assetID string, kind VaultKind, _ string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := vaultKey(assetID, kind)
	m.vaults[key] = m.vaults[key].Add(amount)
	return nil
}

// WithdrawFromVault debits the vault ledger, refusing to overdraw.
func (m *MemoryCustody) WithdrawFromVault(_ context.Context, assetID string, kind VaultKind, _ string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := vaultKey(assetID, kind)
	held := m.vaults[key]
	if held.LessThan(amount) {
		return fmt.Errorf("%w: vault %s holds %s, need %s", ErrInsufficientLiquidity, key, held, amount)
	}
	m.vaults[key] = held.Sub(amount)
	return nil
}

// VaultBalance reports the ledger balance for inspection in tests.
func (m *MemoryCustody) VaultBalance(assetID string, kind VaultKind) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vaults[vaultKey(assetID, kind)]
}
