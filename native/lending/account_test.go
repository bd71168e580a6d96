package lending

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFindOrCreateBalanceRespectsSlotCap(t *testing.T) {
	account := NewAccount("alice")
	for i := 0; i < MaxBalanceSlots; i++ {
		bal, err := account.findOrCreateBalance(string(rune('A' + i)))
		if err != nil {
			t.Fatalf("slot %d: %v", i, err)
		}
		bal.AssetShares = one
	}
	if _, err := account.findOrCreateBalance("Z"); !errors.Is(err, ErrInsufficientSlots) {
		t.Fatalf("expected ErrInsufficientSlots, got %v", err)
	}
	// An existing bank still resolves even when the account is full.
	if _, err := account.findOrCreateBalance("A"); err != nil {
		t.Fatalf("existing balance lookup failed: %v", err)
	}
}

func TestReclaimEmptySlots(t *testing.T) {
	account := NewAccount("alice")
	bal, err := account.findOrCreateBalance("SOL")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	bal.AssetShares = decimal.Zero

	account.reclaimEmptySlots()
	if account.Balances[0].Active() {
		t.Fatalf("netted slot not reclaimed")
	}
}

func TestIncreaseNetsLiabilityFirst(t *testing.T) {
	bank := NewBank("SOL", testBankConfig(), 0)
	account := NewAccount("alice")

	ba, err := newBankAccount(bank, account, 10)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	// Seed 10 of debt, then credit 15: 10 repays, 5 becomes collateral.
	ba.changeLiability(decimal.NewFromInt(10))
	if err := ba.increase(decimal.NewFromInt(15)); err != nil {
		t.Fatalf("increase: %v", err)
	}

	if !ba.balance.LiabilityShares.IsZero() {
		t.Fatalf("liability not netted: %s", ba.balance.LiabilityShares)
	}
	got := bank.AssetAmount(ba.balance.AssetShares)
	if !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("surplus collateral: got %s, want 5", got)
	}
	if ba.balance.Side() != SideAsset {
		t.Fatalf("side: got %s", ba.balance.Side())
	}
}

func TestDecreaseDrawsAssetFirst(t *testing.T) {
	bank := NewBank("SOL", testBankConfig(), 0)
	// Another depositor keeps utilization legal when alice borrows.
	bank.TotalAssetShares = decimal.NewFromInt(100)
	account := NewAccount("alice")

	ba, err := newBankAccount(bank, account, 10)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	ba.changeAsset(decimal.NewFromInt(10))

	if err := ba.decrease(decimal.NewFromInt(15), true); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if !ba.balance.AssetShares.IsZero() {
		t.Fatalf("asset side not drained: %s", ba.balance.AssetShares)
	}
	owed := bank.LiabilityAmount(ba.balance.LiabilityShares)
	if !owed.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("shortfall debt: got %s, want 5", owed)
	}
}

func TestWithdrawOnlyRejectsShortfall(t *testing.T) {
	bank := NewBank("SOL", testBankConfig(), 0)
	account := NewAccount("alice")

	ba, err := newBankAccount(bank, account, 10)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	ba.changeAsset(decimal.NewFromInt(10))

	if err := ba.withdrawOnly(decimal.NewFromInt(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestRepayOnlyRejectsOverpayment(t *testing.T) {
	bank := NewBank("SOL", testBankConfig(), 0)
	bank.TotalAssetShares = decimal.NewFromInt(100)
	account := NewAccount("alice")

	ba, err := newBankAccount(bank, account, 10)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	ba.changeLiability(decimal.NewFromInt(10))

	if err := ba.repayOnly(decimal.NewFromInt(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ba.repayOnly(decimal.NewFromInt(10)); err != nil {
		t.Fatalf("exact repay: %v", err)
	}
	if !ba.balance.LiabilityShares.IsZero() {
		t.Fatalf("debt remains after full repay: %s", ba.balance.LiabilityShares)
	}
}

func TestDecreaseEnforcesUtilizationCeiling(t *testing.T) {
	bank := NewBank("SOL", testBankConfig(), 0)
	account := NewAccount("alice")

	ba, err := newBankAccount(bank, account, 10)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	ba.changeAsset(decimal.NewFromInt(10))

	// Borrowing past the pool's deposits must fail.
	if err := ba.decrease(decimal.NewFromInt(25), true); !errors.Is(err, ErrIllegalUtilization) {
		t.Fatalf("expected ErrIllegalUtilization, got %v", err)
	}
}
