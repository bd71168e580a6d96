package lending

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NewBank constructs a bank for the asset with unit share values and empty
// vaults.
func NewBank(assetID string, config BankConfig, now int64) *Bank {
	return &Bank{
		AssetID:                  strings.TrimSpace(assetID),
		VaultBalance:             decimal.Zero,
		InsuranceBalance:         decimal.Zero,
		CollectedFeesOutstanding: decimal.Zero,
		TotalAssetShares:         decimal.Zero,
		TotalLiabilityShares:     decimal.Zero,
		AssetShareValue:          one,
		LiabilityShareValue:      one,
		Config:                   config,
		LastAccrual:              now,
	}
}

// Clone returns a deep copy so handlers can mutate freely before committing.
func (b *Bank) Clone() *Bank {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

// AssetAmount converts deposit shares into a token amount, rounding down.
func (b *Bank) AssetAmount(shares decimal.Decimal) decimal.Decimal {
	return assetAmountFromShares(shares, b.AssetShareValue)
}

// AssetShares converts a token amount into deposit shares, rounding down.
func (b *Bank) AssetShares(amount decimal.Decimal) decimal.Decimal {
	return assetSharesFromAmount(amount, b.AssetShareValue)
}

// LiabilityAmount converts borrow shares into a token amount, rounding up.
func (b *Bank) LiabilityAmount(shares decimal.Decimal) decimal.Decimal {
	return liabilityAmountFromShares(shares, b.LiabilityShareValue)
}

// LiabilityShares converts a token amount into borrow shares, rounding up.
func (b *Bank) LiabilityShares(amount decimal.Decimal) decimal.Decimal {
	return liabilitySharesFromAmount(amount, b.LiabilityShareValue)
}

// TotalAssetAmount is the token value of all outstanding deposit shares.
func (b *Bank) TotalAssetAmount() decimal.Decimal {
	return b.TotalAssetShares.Mul(b.AssetShareValue)
}

// TotalLiabilityAmount is the token value of all outstanding borrow shares.
func (b *Bank) TotalLiabilityAmount() decimal.Decimal {
	return b.TotalLiabilityShares.Mul(b.LiabilityShareValue)
}

// Utilization is the borrowed fraction of deposited value, zero when the
// bank holds no deposits.
func (b *Bank) Utilization() decimal.Decimal {
	deposits := b.TotalAssetAmount()
	if deposits.Sign() <= 0 {
		return decimal.Zero
	}
	return b.TotalLiabilityAmount().Div(deposits)
}

// CheckUtilization enforces that the token value of liabilities never
// exceeds the token value of assets.
func (b *Bank) CheckUtilization() error {
	if b.TotalAssetAmount().LessThan(b.TotalLiabilityAmount()) {
		return ErrIllegalUtilization
	}
	return nil
}

// AccrueInterest advances both share values to now. Re-accruing within the
// same unix second is a no-op, so concurrent accrual calls collapse safely.
// protocolFee is the fraction of borrow interest withheld from depositors.
func (b *Bank) AccrueInterest(now int64, protocolFee decimal.Decimal) {
	delta := now - b.LastAccrual
	if delta <= 0 {
		return
	}
	b.LastAccrual = now

	totalAssets := b.TotalAssetAmount()
	totalLiabilities := b.TotalLiabilityAmount()
	if totalAssets.IsZero() || totalLiabilities.IsZero() {
		return
	}

	utilization := totalLiabilities.Div(totalAssets)
	depositRate, borrowRate := b.Config.Rates(utilization, protocolFee)
	if borrowRate.Sign() <= 0 {
		return
	}

	elapsed := decimal.NewFromInt(delta).Div(decimal.NewFromInt(secondsPerYear))
	b.AssetShareValue = b.AssetShareValue.Mul(one.Add(depositRate.Mul(elapsed)))
	b.LiabilityShareValue = b.LiabilityShareValue.Mul(one.Add(borrowRate.Mul(elapsed)))

	// Borrowers owe interest at the full borrow rate while depositors are
	// credited the deposit rate; the spread is the protocol's claim.
	spread := borrowRate.Mul(utilization).Sub(depositRate)
	if spread.Sign() > 0 {
		fee := totalAssets.Mul(spread).Mul(elapsed).RoundDown(amountScale)
		b.CollectedFeesOutstanding = b.CollectedFeesOutstanding.Add(fee)
	}
}
