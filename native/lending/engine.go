package lending

import (
	"context"
	"fmt"
	"strings"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
)

// LiquidityVenue routes collateral to an external pool in exchange for a
// receipt asset. Implemented by the amm package. ReceiptAssetID must be
// stable so handlers can take locks before calling Deposit.
type LiquidityVenue interface {
	ReceiptAssetID() string
	Deposit(ctx context.Context, assetID string, amount decimal.Decimal) (receiptAmount decimal.Decimal, err error)
}

// Engine executes lending operations against persistent state. Handlers
// clone the records they touch, validate the full mutation, and commit only
// when every check passes, so a failed operation leaves no trace.
type Engine struct {
	state     State
	prices    PriceLookup
	custody   Custody
	authority string

	clk         clock.Clock
	locks       *lockTable
	venue       LiquidityVenue
	events      EventSink
	protocolFee decimal.Decimal
}

// NewEngine wires the engine to its state, oracle and custody layers. The
// authority is the only principal allowed to create or reconfigure banks.
func NewEngine(state State, prices PriceLookup, custody Custody, authority string) *Engine {
	return &Engine{
		state:       state,
		prices:      prices,
		custody:     custody,
		authority:   strings.TrimSpace(authority),
		clk:         clock.New(),
		locks:       newLockTable(),
		protocolFee: decimal.Zero,
	}
}

// SetClock overrides the time source, used by tests to drive accrual.
func (e *Engine) SetClock(clk clock.Clock) {
	if clk != nil {
		e.clk = clk
	}
}

// SetVenue installs the external liquidity venue for ExternalDeposit.
func (e *Engine) SetVenue(venue LiquidityVenue) { e.venue = venue }

// SetEvents installs the event sink.
func (e *Engine) SetEvents(sink EventSink) { e.events = sink }

// SetProtocolFee sets the fraction of borrow interest withheld from
// depositors. Values outside [0, 1) are rejected.
func (e *Engine) SetProtocolFee(fee decimal.Decimal) error {
	if fee.IsNegative() || fee.GreaterThanOrEqual(one) {
		return ErrInvalidConfig
	}
	e.protocolFee = fee
	return nil
}

func (e *Engine) now() int64 { return e.clk.Now().Unix() }

func accountKey(owner string) string { return "account/" + owner }
func bankKey(assetID string) string  { return "bank/" + assetID }

// InitializeAccount creates an empty account for the owner.
func (e *Engine) InitializeAccount(ctx context.Context, owner string) (*Account, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: empty owner", ErrInvalidConfig)
	}
	release := e.locks.acquire(accountKey(owner))
	defer release()

	if _, err := e.state.GetAccount(owner); err == nil {
		return nil, fmt.Errorf("%w: account %s", ErrAlreadyExists, owner)
	}
	account := NewAccount(owner)
	if err := e.state.PutAccount(account); err != nil {
		return nil, err
	}
	e.emit(EventTypeAccountCreated, e.now(), AccountEvent{Owner: owner})
	return account.Clone(), nil
}

// AddBank creates a bank for a new asset. Only the configured authority may
// call it.
func (e *Engine) AddBank(ctx context.Context, authority, assetID string, config BankConfig) (*Bank, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if authority != e.authority {
		return nil, ErrUnauthorized
	}
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, fmt.Errorf("%w: empty asset id", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	release := e.locks.acquire(bankKey(assetID))
	defer release()

	if _, err := e.state.GetBank(assetID); err == nil {
		return nil, fmt.Errorf("%w: bank %s", ErrAlreadyExists, assetID)
	}
	now := e.now()
	bank := NewBank(assetID, config, now)
	if err := e.state.PutBank(bank); err != nil {
		return nil, err
	}
	e.emit(EventTypeBankCreated, now, BankEvent{AssetID: assetID, Config: config})
	return bank.Clone(), nil
}

// UpdateRateConfig swaps a bank's interest curve. Interest accrues under the
// old curve up to now before the new one takes effect.
func (e *Engine) UpdateRateConfig(ctx context.Context, authority, assetID string, rates InterestRateConfig) (*Bank, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if authority != e.authority {
		return nil, ErrUnauthorized
	}
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	release := e.locks.acquire(bankKey(assetID))
	defer release()

	bank, err := e.state.GetBank(assetID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	bank.AccrueInterest(now, e.protocolFee)
	bank.Config.InterestRateConfig = rates
	if err := e.state.PutBank(bank); err != nil {
		return nil, err
	}
	e.emit(EventTypeBankUpdated, now, BankEvent{AssetID: assetID, Config: bank.Config})
	return bank.Clone(), nil
}

// Deposit credits amount to the owner's position in the bank, repaying any
// outstanding debt first. No price is consulted: adding collateral or
// repaying debt never increases risk.
func (e *Engine) Deposit(ctx context.Context, owner, assetID string, amount decimal.Decimal) error {
	if e.state == nil {
		return ErrNilState
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	release := e.locks.acquire(accountKey(owner), bankKey(assetID))
	defer release()

	bank, account, err := e.loadPair(owner, assetID)
	if err != nil {
		return err
	}
	now := e.now()
	bank.AccrueInterest(now, e.protocolFee)

	ba, err := newBankAccount(bank, account, now)
	if err != nil {
		return err
	}
	if err := ba.increase(amount); err != nil {
		return err
	}
	account.reclaimEmptySlots()
	bank.VaultBalance = bank.VaultBalance.Add(amount)

	if err := e.custody.DepositToVault(ctx, assetID, VaultLiquidity, owner, amount); err != nil {
		return err
	}
	if err := e.commitPair(bank, account); err != nil {
		return err
	}
	e.emit(EventTypeDeposit, now, FundsEvent{Owner: owner, BankID: assetID, Amount: amount})
	return nil
}

// Withdraw debits amount strictly from the owner's asset position and pays
// it out of the liquidity vault. The account must stay initial-healthy.
func (e *Engine) Withdraw(ctx context.Context, owner, assetID string, amount decimal.Decimal) error {
	return e.debit(ctx, owner, assetID, amount, false, EventTypeWithdraw)
}

// Borrow debits amount from the owner's position, drawing down any asset
// side first and booking the shortfall as debt. The account must stay
// initial-healthy.
func (e *Engine) Borrow(ctx context.Context, owner, assetID string, amount decimal.Decimal) error {
	return e.debit(ctx, owner, assetID, amount, true, EventTypeBorrow)
}

func (e *Engine) debit(ctx context.Context, owner, assetID string, amount decimal.Decimal, allowBorrow bool, eventType string) error {
	if e.state == nil {
		return ErrNilState
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	release := e.locks.acquire(accountKey(owner), bankKey(assetID))
	defer release()

	bank, account, err := e.loadPair(owner, assetID)
	if err != nil {
		return err
	}
	now := e.now()
	bank.AccrueInterest(now, e.protocolFee)

	if bank.VaultBalance.LessThan(amount) {
		return fmt.Errorf("%w: vault %s holds %s, need %s", ErrInsufficientLiquidity, assetID, bank.VaultBalance, amount)
	}

	ba, err := newBankAccount(bank, account, now)
	if err != nil {
		return err
	}
	if err := ba.decrease(amount, allowBorrow); err != nil {
		return err
	}
	account.reclaimEmptySlots()
	bank.VaultBalance = bank.VaultBalance.Sub(amount)

	// Removing collateral or adding debt needs a fresh initial-tier check.
	if err := e.requireHealthy(account, bank, Initial); err != nil {
		return err
	}

	if err := e.custody.WithdrawFromVault(ctx, assetID, VaultLiquidity, owner, amount); err != nil {
		return err
	}
	if err := e.commitPair(bank, account); err != nil {
		return err
	}
	e.emit(eventType, now, FundsEvent{Owner: owner, BankID: assetID, Amount: amount})
	return nil
}

// Repay credits amount strictly against the owner's debt in the bank.
// Paying more than is owed fails rather than flipping the position.
func (e *Engine) Repay(ctx context.Context, owner, assetID string, amount decimal.Decimal) error {
	if e.state == nil {
		return ErrNilState
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	release := e.locks.acquire(accountKey(owner), bankKey(assetID))
	defer release()

	bank, account, err := e.loadPair(owner, assetID)
	if err != nil {
		return err
	}
	now := e.now()
	bank.AccrueInterest(now, e.protocolFee)

	ba, err := newBankAccount(bank, account, now)
	if err != nil {
		return err
	}
	if err := ba.repayOnly(amount); err != nil {
		return err
	}
	account.reclaimEmptySlots()
	bank.VaultBalance = bank.VaultBalance.Add(amount)

	if err := e.custody.DepositToVault(ctx, assetID, VaultLiquidity, owner, amount); err != nil {
		return err
	}
	if err := e.realizeFees(ctx, bank); err != nil {
		return err
	}
	if err := e.commitPair(bank, account); err != nil {
		return err
	}
	e.emit(EventTypeRepay, now, FundsEvent{Owner: owner, BankID: assetID, Amount: amount})
	return nil
}

// realizeFees sweeps the accrued protocol spread from the liquidity vault to
// the insurance vault as far as liquidity allows.
func (e *Engine) realizeFees(ctx context.Context, bank *Bank) error {
	take := minDecimal(bank.CollectedFeesOutstanding, bank.VaultBalance)
	if take.Sign() <= 0 {
		return nil
	}
	if err := e.custody.WithdrawFromVault(ctx, bank.AssetID, VaultLiquidity, e.authority, take); err != nil {
		return err
	}
	if err := e.custody.DepositToVault(ctx, bank.AssetID, VaultInsurance, e.authority, take); err != nil {
		return err
	}
	bank.VaultBalance = bank.VaultBalance.Sub(take)
	bank.InsuranceBalance = bank.InsuranceBalance.Add(take)
	bank.CollectedFeesOutstanding = bank.CollectedFeesOutstanding.Sub(take)
	return nil
}

// Liquidate lets a third party repay part of an unhealthy account's debt in
// exchange for its collateral plus the bank's liquidation bonus. Amounts are
// driven by repayAmount; the collateral seized is clamped to what the
// liquidatee actually holds.
func (e *Engine) Liquidate(ctx context.Context, liquidator, liquidatee, assetBankID, liabBankID string, repayAmount decimal.Decimal) error {
	if e.state == nil {
		return ErrNilState
	}
	if repayAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if liquidator == liquidatee {
		return fmt.Errorf("%w: cannot liquidate own account", ErrUnauthorized)
	}
	if assetBankID == liabBankID {
		return ErrSameBank
	}
	release := e.locks.acquire(
		accountKey(liquidator), accountKey(liquidatee),
		bankKey(assetBankID), bankKey(liabBankID),
	)
	defer release()

	assetBank, err := e.state.GetBank(assetBankID)
	if err != nil {
		return err
	}
	liabBank, err := e.state.GetBank(liabBankID)
	if err != nil {
		return err
	}
	liqee, err := e.state.GetAccount(liquidatee)
	if err != nil {
		return err
	}
	liqor, err := e.state.GetAccount(liquidator)
	if err != nil {
		return err
	}

	now := e.now()
	assetBank.AccrueInterest(now, e.protocolFee)
	liabBank.AccrueInterest(now, e.protocolFee)
	banks := map[string]*Bank{assetBank.AssetID: assetBank, liabBank.AssetID: liabBank}

	preHealth, err := e.healthOf(liqee, banks, Maintenance)
	if err != nil {
		return err
	}
	if preHealth.Healthy() {
		return fmt.Errorf("%w: account %s is maintenance-healthy", ErrNotLiquidatable, liquidatee)
	}

	assetPrice, err := e.prices.Price(assetBank.Config.PriceFeedRef, assetBank.Config.OracleMaxAge)
	if err != nil {
		return fmt.Errorf("price %s: %w", assetBank.AssetID, err)
	}
	liabPrice, err := e.prices.Price(liabBank.Config.PriceFeedRef, liabBank.Config.OracleMaxAge)
	if err != nil {
		return fmt.Errorf("price %s: %w", liabBank.AssetID, err)
	}

	liqeeLiab := liqee.balanceFor(liabBankID)
	if liqeeLiab == nil || !liqeeLiab.LiabilityShares.IsPositive() {
		return fmt.Errorf("%w: %s owes nothing in %s", ErrNotLiquidatable, liquidatee, liabBankID)
	}
	liqeeAsset := liqee.balanceFor(assetBankID)
	if liqeeAsset == nil || !liqeeAsset.AssetShares.IsPositive() {
		return fmt.Errorf("%w: %s holds no %s", ErrNoCollateralRemaining, liquidatee, assetBankID)
	}

	owed := liabBank.LiabilityAmount(liqeeLiab.LiabilityShares)
	repay := minDecimal(repayAmount, owed)

	bonusFactor := one.Add(assetBank.Config.LiquidationBonus)
	assetAmount := repay.Mul(liabPrice).Div(assetPrice).Mul(bonusFactor).RoundDown(amountScale)

	held := assetBank.AssetAmount(liqeeAsset.AssetShares)
	if assetAmount.GreaterThan(held) {
		// Seize everything and scale the repayment back to match.
		assetAmount = held
		repay = assetAmount.Mul(assetPrice).Div(liabPrice).Div(bonusFactor).RoundDown(amountScale)
	}
	if repay.Sign() <= 0 || assetAmount.Sign() <= 0 {
		return fmt.Errorf("%w: nothing to seize", ErrNoCollateralRemaining)
	}

	// Liquidatee: debt shrinks by repay, collateral shrinks by assetAmount.
	liqeeLiabAcct := &bankAccount{bank: liabBank, balance: liqeeLiab, now: now}
	if err := liqeeLiabAcct.repayOnly(repay); err != nil {
		return err
	}
	liqeeAssetAcct := &bankAccount{bank: assetBank, balance: liqeeAsset, now: now}
	if err := liqeeAssetAcct.withdrawOnly(assetAmount); err != nil {
		return err
	}

	// Liquidator: funds the repayment from its own position (borrowing the
	// shortfall) and receives the seized collateral.
	liqorLiabAcct, err := newBankAccount(liabBank, liqor, now)
	if err != nil {
		return err
	}
	if err := liqorLiabAcct.decrease(repay, true); err != nil {
		return err
	}
	liqorAssetAcct, err := newBankAccount(assetBank, liqor, now)
	if err != nil {
		return err
	}
	if err := liqorAssetAcct.increase(assetAmount); err != nil {
		return err
	}
	liqee.reclaimEmptySlots()
	liqor.reclaimEmptySlots()

	postHealth, err := e.healthOf(liqee, banks, Maintenance)
	if err != nil {
		return err
	}
	if postHealth.Net().LessThan(preHealth.Net()) {
		return fmt.Errorf("%w: seizure worsens account %s", ErrNotLiquidatable, liquidatee)
	}
	if err := e.requireHealthyWith(liqor, banks, Initial); err != nil {
		return fmt.Errorf("liquidator: %w", err)
	}

	if err := e.state.PutBank(assetBank); err != nil {
		return err
	}
	if err := e.state.PutBank(liabBank); err != nil {
		return err
	}
	if err := e.state.PutAccount(liqee); err != nil {
		return err
	}
	if err := e.state.PutAccount(liqor); err != nil {
		return err
	}
	e.emit(EventTypeLiquidation, now, LiquidationEvent{
		Liquidator:  liquidator,
		Liquidatee:  liquidatee,
		AssetBankID: assetBankID,
		LiabBankID:  liabBankID,
		RepayAmount: repay,
		AssetAmount: assetAmount,
		PreHealth:   preHealth.Net(),
		PostHealth:  postHealth.Net(),
	})
	return nil
}

// ExternalDeposit routes collateral from a bank to the configured external
// venue and books the returned receipt asset as an ordinary position in the
// receipt bank. The account must stay initial-healthy afterwards.
func (e *Engine) ExternalDeposit(ctx context.Context, owner, sourceBankID string, amount decimal.Decimal) error {
	if e.state == nil {
		return ErrNilState
	}
	if e.venue == nil {
		return ErrVenueNotConfigured
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	receiptAssetID := e.venue.ReceiptAssetID()
	if receiptAssetID == sourceBankID {
		return ErrSameBank
	}
	release := e.locks.acquire(accountKey(owner), bankKey(sourceBankID), bankKey(receiptAssetID))
	defer release()

	source, account, err := e.loadPair(owner, sourceBankID)
	if err != nil {
		return err
	}
	now := e.now()
	source.AccrueInterest(now, e.protocolFee)

	if source.VaultBalance.LessThan(amount) {
		return fmt.Errorf("%w: vault %s holds %s, need %s", ErrInsufficientLiquidity, sourceBankID, source.VaultBalance, amount)
	}
	srcAcct, err := newBankAccount(source, account, now)
	if err != nil {
		return err
	}
	if err := srcAcct.withdrawOnly(amount); err != nil {
		return err
	}
	source.VaultBalance = source.VaultBalance.Sub(amount)

	receiptAmount, err := e.venue.Deposit(ctx, sourceBankID, amount)
	if err != nil {
		return err
	}

	receipt, err := e.state.GetBank(receiptAssetID)
	if err != nil {
		return fmt.Errorf("receipt bank: %w", err)
	}
	receipt.AccrueInterest(now, e.protocolFee)

	rcptAcct, err := newBankAccount(receipt, account, now)
	if err != nil {
		return err
	}
	if err := rcptAcct.increase(receiptAmount); err != nil {
		return err
	}
	receipt.VaultBalance = receipt.VaultBalance.Add(receiptAmount)
	account.reclaimEmptySlots()

	// The receipt position is collateral like any other; the account must
	// still clear the stricter tier after the swap.
	banks := map[string]*Bank{source.AssetID: source, receipt.AssetID: receipt}
	if err := e.requireHealthyWith(account, banks, Initial); err != nil {
		return err
	}

	if err := e.custody.WithdrawFromVault(ctx, sourceBankID, VaultLiquidity, owner, amount); err != nil {
		return err
	}
	if err := e.custody.DepositToVault(ctx, receiptAssetID, VaultLiquidity, owner, receiptAmount); err != nil {
		return err
	}
	if err := e.state.PutBank(source); err != nil {
		return err
	}
	if err := e.state.PutBank(receipt); err != nil {
		return err
	}
	if err := e.state.PutAccount(account); err != nil {
		return err
	}
	e.emit(EventTypeExternalDeposit, now, ExternalDepositEvent{
		Owner:         owner,
		SourceBankID:  sourceBankID,
		ReceiptBankID: receiptAssetID,
		Amount:        amount,
		ReceiptAmount: receiptAmount,
	})
	return nil
}

// GetBank returns the stored bank with interest accrued to now for display.
// The accrual is not persisted.
func (e *Engine) GetBank(assetID string) (*Bank, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	bank, err := e.state.GetBank(assetID)
	if err != nil {
		return nil, err
	}
	bank.AccrueInterest(e.now(), e.protocolFee)
	return bank, nil
}

// ListBanks returns every bank with interest accrued to now for display.
func (e *Engine) ListBanks() ([]*Bank, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	banks, err := e.state.ListBanks()
	if err != nil {
		return nil, err
	}
	now := e.now()
	for _, bank := range banks {
		bank.AccrueInterest(now, e.protocolFee)
	}
	return banks, nil
}

// GetAccount returns the stored account.
func (e *Engine) GetAccount(owner string) (*Account, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.state.GetAccount(owner)
}

// AccountHealth values the account at the requested tier with fresh prices.
func (e *Engine) AccountHealth(owner string, req RequirementType) (HealthReport, error) {
	if e.state == nil {
		return HealthReport{}, ErrNilState
	}
	account, err := e.state.GetAccount(owner)
	if err != nil {
		return HealthReport{}, err
	}
	return e.healthOf(account, nil, req)
}

// loadPair fetches the bank and account a funds operation touches.
func (e *Engine) loadPair(owner, assetID string) (*Bank, *Account, error) {
	bank, err := e.state.GetBank(assetID)
	if err != nil {
		return nil, nil, err
	}
	account, err := e.state.GetAccount(owner)
	if err != nil {
		return nil, nil, err
	}
	return bank, account, nil
}

func (e *Engine) commitPair(bank *Bank, account *Account) error {
	if err := e.state.PutBank(bank); err != nil {
		return err
	}
	return e.state.PutAccount(account)
}

// healthOf values the account, preferring in-flight bank copies from overlay
// before falling back to stored state.
func (e *Engine) healthOf(account *Account, overlay map[string]*Bank, req RequirementType) (HealthReport, error) {
	banks := make(map[string]*Bank)
	for i := range account.Balances {
		bal := &account.Balances[i]
		if !bal.Active() {
			continue
		}
		if overlay != nil {
			if bank, ok := overlay[bal.BankID]; ok {
				banks[bal.BankID] = bank
				continue
			}
		}
		bank, err := e.state.GetBank(bal.BankID)
		if err != nil {
			return HealthReport{}, err
		}
		banks[bal.BankID] = bank
	}
	return computeHealth(account, banks, req, e.prices)
}

// requireHealthy fails with ErrInsolvent when the account does not clear the
// tier. The in-flight bank, when given, shadows its stored copy.
func (e *Engine) requireHealthy(account *Account, inflight *Bank, req RequirementType) error {
	var overlay map[string]*Bank
	if inflight != nil {
		overlay = map[string]*Bank{inflight.AssetID: inflight}
	}
	return e.requireHealthyWith(account, overlay, req)
}

func (e *Engine) requireHealthyWith(account *Account, overlay map[string]*Bank, req RequirementType) error {
	report, err := e.healthOf(account, overlay, req)
	if err != nil {
		return err
	}
	if !report.Healthy() {
		return fmt.Errorf("%w: %s assets %s < liabilities %s",
			ErrInsolvent, report.Requirement, report.Assets, report.Liabilities)
	}
	return nil
}
