// Package amm provides an external liquidity venue that accepts collateral
// and mints a receipt asset against it at a quoted exchange rate.
package amm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedAsset is returned when the pool quotes no rate for the
	// deposited asset.
	ErrUnsupportedAsset = errors.New("amm: unsupported asset")
	// ErrInvalidRate is returned when a quoted exchange rate is not positive.
	ErrInvalidRate = errors.New("amm: invalid exchange rate")
)

// Receipt records one accepted deposit and the receipt tokens minted for it.
type Receipt struct {
	ID            uuid.UUID       `json:"id"`
	AssetID       string          `json:"assetId"`
	Amount        decimal.Decimal `json:"amount"`
	ReceiptAmount decimal.Decimal `json:"receiptAmount"`
}

// Pool is an in-process venue with fixed exchange rates per deposited asset.
// It satisfies the lending engine's LiquidityVenue interface.
type Pool struct {
	receiptAssetID string

	mu       sync.Mutex
	rates    map[string]decimal.Decimal
	receipts []Receipt
}

// NewPool constructs a pool minting receiptAssetID for the quoted assets.
func NewPool(receiptAssetID string) *Pool {
	return &Pool{
		receiptAssetID: receiptAssetID,
		rates:          make(map[string]decimal.Decimal),
	}
}

// ReceiptAssetID is the asset the pool mints.
func (p *Pool) ReceiptAssetID() string { return p.receiptAssetID }

// SetRate quotes how many receipt tokens one unit of assetID mints.
func (p *Pool) SetRate(assetID string, rate decimal.Decimal) error {
	if rate.Sign() <= 0 {
		return ErrInvalidRate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[assetID] = rate
	return nil
}

// Deposit accepts amount of assetID and mints receipt tokens at the quoted
// rate, rounding down in the pool's favor.
func (p *Pool) Deposit(_ context.Context, assetID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: amount %s", ErrInvalidRate, amount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rate, ok := p.rates[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedAsset, assetID)
	}
	minted := amount.Mul(rate).RoundDown(12)
	p.receipts = append(p.receipts, Receipt{
		ID:            uuid.New(),
		AssetID:       assetID,
		Amount:        amount,
		ReceiptAmount: minted,
	})
	return minted, nil
}

// Receipts returns a copy of the deposit log.
func (p *Pool) Receipts() []Receipt {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Receipt, len(p.receipts))
	copy(out, p.receipts)
	return out
}
