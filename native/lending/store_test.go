package lending

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"orbitlen/storage"
)

func TestKVStateBankRoundTrip(t *testing.T) {
	state := NewKVState(storage.NewMemDB())

	bank := NewBank("SOL", testBankConfig(), 42)
	bank.TotalAssetShares = decimal.RequireFromString("123.456")
	if err := state.PutBank(bank); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, err := state.GetBank("SOL")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.AssetID != "SOL" || loaded.LastAccrual != 42 {
		t.Fatalf("loaded bank: %+v", loaded)
	}
	if !loaded.TotalAssetShares.Equal(bank.TotalAssetShares) {
		t.Fatalf("shares: got %s", loaded.TotalAssetShares)
	}
	if loaded.Config.PriceFeedRef != bank.Config.PriceFeedRef {
		t.Fatalf("feed ref: got %s", loaded.Config.PriceFeedRef)
	}

	// Mutating the returned copy must not leak into the store.
	loaded.TotalAssetShares = decimal.Zero
	again, err := state.GetBank("SOL")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if !again.TotalAssetShares.Equal(bank.TotalAssetShares) {
		t.Fatalf("store mutated through returned copy")
	}
}

func TestKVStateListBanks(t *testing.T) {
	state := NewKVState(storage.NewMemDB())
	for _, id := range []string{"A", "B", "C"} {
		if err := state.PutBank(NewBank(id, testBankConfig(), 0)); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	banks, err := state.ListBanks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(banks) != 3 {
		t.Fatalf("list: got %d banks", len(banks))
	}
}

func TestKVStateMissingRecords(t *testing.T) {
	state := NewKVState(storage.NewMemDB())
	if _, err := state.GetBank("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := state.GetAccount("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKVStateAccountRoundTrip(t *testing.T) {
	state := NewKVState(storage.NewMemDB())

	account := NewAccount("alice")
	account.Balances[0] = Balance{
		BankID:      "SOL",
		AssetShares: decimal.NewFromInt(10),
		LastUpdate:  7,
	}
	if err := state.PutAccount(account); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, err := state.GetAccount("alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Owner != "alice" {
		t.Fatalf("owner: %s", loaded.Owner)
	}
	if !loaded.Balances[0].AssetShares.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("balance: %+v", loaded.Balances[0])
	}
}
