package lending

import "github.com/shopspring/decimal"

// InterestRateConfig defines the two-segment piecewise-linear borrow rate
// curve. Below the optimal utilization the rate climbs linearly to the
// plateau; beyond it the rate climbs to the max at full utilization.
type InterestRateConfig struct {
	OptimalUtilization decimal.Decimal `json:"optimalUtilization"`
	PlateauRate        decimal.Decimal `json:"plateauRate"`
	MaxRate            decimal.Decimal `json:"maxRate"`
}

// Validate rejects curves that are degenerate or non-monotonic.
func (c InterestRateConfig) Validate() error {
	if c.OptimalUtilization.Sign() <= 0 || c.OptimalUtilization.GreaterThanOrEqual(one) {
		return ErrInvalidConfig
	}
	if c.PlateauRate.Sign() <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxRate.LessThanOrEqual(c.PlateauRate) {
		return ErrInvalidConfig
	}
	return nil
}

// BorrowRate evaluates the curve at the given utilization. Rates are
// fractional annualized yields, e.g. 0.10 for 10% APR.
func (c InterestRateConfig) BorrowRate(utilization decimal.Decimal) decimal.Decimal {
	if utilization.Sign() <= 0 {
		return decimal.Zero
	}
	if utilization.LessThanOrEqual(c.OptimalUtilization) {
		// ur / optimal_ur * plateau_ir
		return utilization.Div(c.OptimalUtilization).Mul(c.PlateauRate)
	}
	// (ur - optimal_ur) / (1 - optimal_ur) * (max_ir - plateau_ir) + plateau_ir
	excess := utilization.Sub(c.OptimalUtilization)
	span := one.Sub(c.OptimalUtilization)
	return excess.Div(span).Mul(c.MaxRate.Sub(c.PlateauRate)).Add(c.PlateauRate)
}

// Rates derives both sides of the curve. The deposit rate is the borrow rate
// scaled by utilization less the protocol fee spread, so the gap between the
// two share values is the protocol's revenue.
func (c InterestRateConfig) Rates(utilization, protocolFee decimal.Decimal) (depositRate, borrowRate decimal.Decimal) {
	borrowRate = c.BorrowRate(utilization)
	if borrowRate.Sign() <= 0 {
		return decimal.Zero, decimal.Zero
	}
	keep := one.Sub(protocolFee)
	if keep.IsNegative() {
		keep = decimal.Zero
	}
	depositRate = borrowRate.Mul(utilization).Mul(keep)
	return depositRate, borrowRate
}
