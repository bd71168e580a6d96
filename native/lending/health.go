package lending

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLookup resolves a feed reference to a spot price, enforcing the
// caller-supplied staleness budget. Implemented by the oracle adapter.
type PriceLookup interface {
	Price(ref string, maxAge time.Duration) (decimal.Decimal, error)
}

// HealthReport is the valuation of one account at one requirement tier.
type HealthReport struct {
	Requirement RequirementType `json:"requirement"`
	// Assets is the weighted value of all collateral positions.
	Assets decimal.Decimal `json:"assets"`
	// Liabilities is the weighted value of all debt positions.
	Liabilities decimal.Decimal `json:"liabilities"`
}

// Healthy reports whether weighted collateral covers weighted debt.
func (r HealthReport) Healthy() bool {
	return r.Assets.GreaterThanOrEqual(r.Liabilities)
}

// Net is the signed weighted equity.
func (r HealthReport) Net() decimal.Decimal {
	return r.Assets.Sub(r.Liabilities)
}

// computeHealth values every active balance at the requirement tier's
// weights using fresh oracle prices. Each bank's own staleness budget
// applies to its feed.
func computeHealth(account *Account, banks map[string]*Bank, req RequirementType, prices PriceLookup) (HealthReport, error) {
	report := HealthReport{
		Requirement: req,
		Assets:      decimal.Zero,
		Liabilities: decimal.Zero,
	}
	for i := range account.Balances {
		bal := &account.Balances[i]
		if !bal.Active() {
			continue
		}
		bank, ok := banks[bal.BankID]
		if !ok {
			return HealthReport{}, fmt.Errorf("%w: bank %s", ErrNotFound, bal.BankID)
		}
		price, err := prices.Price(bank.Config.PriceFeedRef, bank.Config.OracleMaxAge)
		if err != nil {
			return HealthReport{}, fmt.Errorf("price %s: %w", bank.AssetID, err)
		}
		assetWeight, liabilityWeight := bank.Config.Weights(req)

		if bal.AssetShares.IsPositive() {
			value := bank.AssetAmount(bal.AssetShares).Mul(price).Mul(assetWeight)
			report.Assets = report.Assets.Add(value)
		}
		if bal.LiabilityShares.IsPositive() {
			value := bank.LiabilityAmount(bal.LiabilityShares).Mul(price).Mul(liabilityWeight)
			report.Liabilities = report.Liabilities.Add(value)
		}
	}
	return report, nil
}
