package amm

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPoolMintsAtQuotedRate(t *testing.T) {
	pool := NewPool("LP")
	if err := pool.SetRate("SOL", decimal.RequireFromString("0.5")); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	minted, err := pool.Deposit(context.Background(), "SOL", decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if pool.ReceiptAssetID() != "LP" {
		t.Fatalf("receipt asset: got %s", pool.ReceiptAssetID())
	}
	if !minted.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("minted: got %s, want 20", minted)
	}

	receipts := pool.Receipts()
	if len(receipts) != 1 {
		t.Fatalf("receipts: got %d", len(receipts))
	}
	if receipts[0].AssetID != "SOL" || !receipts[0].Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("receipt record: %+v", receipts[0])
	}
}

func TestPoolRejectsUnknownAsset(t *testing.T) {
	pool := NewPool("LP")
	if _, err := pool.Deposit(context.Background(), "SOL", decimal.NewFromInt(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
}

func TestPoolRejectsBadRate(t *testing.T) {
	pool := NewPool("LP")
	if err := pool.SetRate("SOL", decimal.Zero); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
}
