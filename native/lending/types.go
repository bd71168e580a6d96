package lending

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RequirementType selects the risk-weight tier used when valuing an account.
type RequirementType uint8

const (
	// Initial weights gate actions that add risk (borrow, withdraw).
	Initial RequirementType = iota
	// Maintenance weights decide liquidation eligibility.
	Maintenance
	// Equity values positions without any weighting.
	Equity
)

func (r RequirementType) String() string {
	switch r {
	case Initial:
		return "initial"
	case Maintenance:
		return "maintenance"
	case Equity:
		return "equity"
	default:
		return "unknown"
	}
}

// BalanceSide reports which side of a bank an account balance sits on.
type BalanceSide uint8

const (
	SideEmpty BalanceSide = iota
	SideAsset
	SideLiability
)

func (s BalanceSide) String() string {
	switch s {
	case SideAsset:
		return "asset"
	case SideLiability:
		return "liability"
	case SideEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// RiskWeights holds the discount/markup factors applied to collateral and
// debt when computing health. Initial values are stricter than maintenance.
type RiskWeights struct {
	AssetWeightInit      decimal.Decimal `json:"assetWeightInit"`
	AssetWeightMaint     decimal.Decimal `json:"assetWeightMaint"`
	LiabilityWeightInit  decimal.Decimal `json:"liabilityWeightInit"`
	LiabilityWeightMaint decimal.Decimal `json:"liabilityWeightMaint"`
}

// Weights returns the (asset, liability) weight pair for the requirement tier.
func (w RiskWeights) Weights(req RequirementType) (decimal.Decimal, decimal.Decimal) {
	switch req {
	case Initial:
		return w.AssetWeightInit, w.LiabilityWeightInit
	case Maintenance:
		return w.AssetWeightMaint, w.LiabilityWeightMaint
	default:
		return one, one
	}
}

// Validate checks the weight ordering invariants: asset weights are discounts
// in [0, 1] with init ≤ maint, liability weights are markups ≥ 1 with
// maint ≤ init.
func (w RiskWeights) Validate() error {
	if w.AssetWeightInit.IsNegative() || w.AssetWeightInit.GreaterThan(one) {
		return ErrInvalidConfig
	}
	if w.AssetWeightMaint.LessThan(w.AssetWeightInit) || w.AssetWeightMaint.GreaterThan(one) {
		return ErrInvalidConfig
	}
	if w.LiabilityWeightInit.LessThan(one) {
		return ErrInvalidConfig
	}
	if w.LiabilityWeightMaint.GreaterThan(w.LiabilityWeightInit) || w.LiabilityWeightMaint.LessThan(one) {
		return ErrInvalidConfig
	}
	return nil
}

// BankConfig groups the per-bank risk and rate parameters supplied by the
// administrative authority at bank creation.
type BankConfig struct {
	RiskWeights        `json:"riskWeights"`
	InterestRateConfig `json:"interestRateConfig"`

	// PriceFeedRef identifies the oracle feed quoting this bank's asset.
	PriceFeedRef string `json:"priceFeedRef"`
	// OracleMaxAge bounds the accepted feed staleness; zero uses the
	// adapter default.
	OracleMaxAge time.Duration `json:"oracleMaxAge"`
	// LiquidationBonus is the fractional premium a liquidator earns on
	// seized collateral, e.g. 0.05 for 5%.
	LiquidationBonus decimal.Decimal `json:"liquidationBonus"`
}

// Validate checks weights, rate curve, and feed wiring.
func (c BankConfig) Validate() error {
	if err := c.RiskWeights.Validate(); err != nil {
		return err
	}
	if err := c.InterestRateConfig.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.PriceFeedRef) == "" {
		return ErrInvalidConfig
	}
	if c.LiquidationBonus.IsNegative() {
		return ErrInvalidConfig
	}
	return nil
}

// Bank is the per-asset pool: custody bookkeeping, share accounting, and risk
// configuration. Amounts are token quantities, shares are value-weighted
// claims whose unit value grows with accrued interest.
type Bank struct {
	AssetID string `json:"assetId"`

	// VaultBalance is the liquidity custody bookkeeping for this bank.
	// Tokens leave only through withdraw, borrow and external-deposit
	// payout paths.
	VaultBalance decimal.Decimal `json:"vaultBalance"`
	// InsuranceBalance is the insurance custody bookkeeping.
	InsuranceBalance decimal.Decimal `json:"insuranceBalance"`
	// CollectedFeesOutstanding is the protocol's accrued claim on the
	// interest spread, realized in tokens as borrowers repay.
	CollectedFeesOutstanding decimal.Decimal `json:"collectedFeesOutstanding"`

	TotalAssetShares     decimal.Decimal `json:"totalAssetShares"`
	TotalLiabilityShares decimal.Decimal `json:"totalLiabilityShares"`

	// AssetShareValue and LiabilityShareValue start at 1 and only grow.
	AssetShareValue     decimal.Decimal `json:"assetShareValue"`
	LiabilityShareValue decimal.Decimal `json:"liabilityShareValue"`

	Config BankConfig `json:"config"`

	// LastAccrual is the unix timestamp of the last interest update.
	LastAccrual int64 `json:"lastAccrual"`
}

// MaxBalanceSlots caps the number of distinct bank positions per account.
const MaxBalanceSlots = 3

// Balance is one account position against one bank. A populated slot holds a
// net position: asset shares and liability shares are never both non-zero.
type Balance struct {
	BankID          string          `json:"bankId"`
	AssetShares     decimal.Decimal `json:"assetShares"`
	LiabilityShares decimal.Decimal `json:"liabilityShares"`
	LastUpdate      int64           `json:"lastUpdate"`
}

// Active reports whether the slot is occupied.
func (b Balance) Active() bool { return b.BankID != "" }

// Side reports which side of the bank the balance sits on.
func (b Balance) Side() BalanceSide {
	switch {
	case !b.Active():
		return SideEmpty
	case b.LiabilityShares.IsPositive():
		return SideLiability
	case b.AssetShares.IsPositive():
		return SideAsset
	default:
		return SideEmpty
	}
}

// Account is the per-owner ledger of balances across banks.
type Account struct {
	Owner    string                   `json:"owner"`
	Balances [MaxBalanceSlots]Balance `json:"balances"`
}

// NewAccount constructs an empty account for the owner.
func NewAccount(owner string) *Account {
	return &Account{Owner: strings.TrimSpace(owner)}
}
