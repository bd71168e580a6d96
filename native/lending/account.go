package lending

import "github.com/shopspring/decimal"

// Clone returns a deep copy so handlers can mutate freely before committing.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// balanceFor returns the slot holding the account's position against bankID,
// or nil when the account has none.
func (a *Account) balanceFor(bankID string) *Balance {
	for i := range a.Balances {
		if a.Balances[i].Active() && a.Balances[i].BankID == bankID {
			return &a.Balances[i]
		}
	}
	return nil
}

// findOrCreateBalance returns the existing slot for bankID or claims the
// first empty one. ErrInsufficientSlots when every slot is taken.
func (a *Account) findOrCreateBalance(bankID string) (*Balance, error) {
	if bal := a.balanceFor(bankID); bal != nil {
		return bal, nil
	}
	for i := range a.Balances {
		if !a.Balances[i].Active() {
			a.Balances[i] = Balance{BankID: bankID}
			return &a.Balances[i], nil
		}
	}
	return nil, ErrInsufficientSlots
}

// reclaimEmptySlots frees any slot whose position has been netted to zero so
// the account can take positions against other banks.
func (a *Account) reclaimEmptySlots() {
	for i := range a.Balances {
		if a.Balances[i].Active() && a.Balances[i].Side() == SideEmpty {
			a.Balances[i] = Balance{}
		}
	}
}

// bankAccount couples one bank with one account balance so funds movements
// keep the bank totals and the account position in lockstep.
type bankAccount struct {
	bank    *Bank
	balance *Balance
	now     int64
}

func newBankAccount(bank *Bank, account *Account, now int64) (*bankAccount, error) {
	bal, err := account.findOrCreateBalance(bank.AssetID)
	if err != nil {
		return nil, err
	}
	return &bankAccount{bank: bank, balance: bal, now: now}, nil
}

// increase credits amount to the position, netting outstanding liabilities
// first. Only the surplus beyond the debt becomes an asset position.
func (ba *bankAccount) increase(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	owed := ba.bank.LiabilityAmount(ba.balance.LiabilityShares)
	repay := minDecimal(amount, owed)
	remaining := amount.Sub(repay)

	if repay.Sign() > 0 {
		ba.changeLiability(repay.Neg())
	}
	if remaining.Sign() > 0 {
		ba.changeAsset(remaining)
	}
	ba.balance.LastUpdate = ba.now
	return nil
}

// decrease debits amount from the position, drawing down the asset side
// first. When allowBorrow is false the asset side must cover the full
// amount; otherwise the shortfall becomes new debt, subject to the bank's
// utilization ceiling.
func (ba *bankAccount) decrease(amount decimal.Decimal, allowBorrow bool) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	held := ba.bank.AssetAmount(ba.balance.AssetShares)
	withdraw := minDecimal(amount, held)
	shortfall := amount.Sub(withdraw)

	if shortfall.Sign() > 0 && !allowBorrow {
		return ErrInsufficientBalance
	}

	if withdraw.Sign() > 0 {
		ba.changeAsset(withdraw.Neg())
	}
	if shortfall.Sign() > 0 {
		ba.changeLiability(shortfall)
	}
	if err := ba.bank.CheckUtilization(); err != nil {
		return err
	}
	ba.balance.LastUpdate = ba.now
	return nil
}

// withdrawOnly debits amount strictly from the asset side.
func (ba *bankAccount) withdrawOnly(amount decimal.Decimal) error {
	return ba.decrease(amount, false)
}

// repayOnly credits amount strictly against the liability side, failing when
// the payment exceeds the debt.
func (ba *bankAccount) repayOnly(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	owed := ba.bank.LiabilityAmount(ba.balance.LiabilityShares)
	if amount.GreaterThan(owed) {
		return ErrInsufficientBalance
	}
	ba.changeLiability(amount.Neg())
	ba.balance.LastUpdate = ba.now
	return nil
}

// changeAsset applies a signed token delta to the asset side of both the
// balance and the bank totals, rounding in the protocol's favor.
func (ba *bankAccount) changeAsset(delta decimal.Decimal) {
	if delta.Sign() > 0 {
		shares := ba.bank.AssetShares(delta)
		ba.balance.AssetShares = ba.balance.AssetShares.Add(shares)
		ba.bank.TotalAssetShares = ba.bank.TotalAssetShares.Add(shares)
		return
	}
	amount := delta.Neg()
	held := ba.bank.AssetAmount(ba.balance.AssetShares)
	if amount.GreaterThanOrEqual(held) {
		// Full exit burns every share so dust never strands the slot.
		ba.bank.TotalAssetShares = ba.bank.TotalAssetShares.Sub(ba.balance.AssetShares)
		ba.balance.AssetShares = decimal.Zero
		return
	}
	shares := liabilitySharesFromAmount(amount, ba.bank.AssetShareValue)
	ba.balance.AssetShares = ba.balance.AssetShares.Sub(shares)
	ba.bank.TotalAssetShares = ba.bank.TotalAssetShares.Sub(shares)
}

// changeLiability applies a signed token delta to the liability side.
func (ba *bankAccount) changeLiability(delta decimal.Decimal) {
	if delta.Sign() > 0 {
		shares := ba.bank.LiabilityShares(delta)
		ba.balance.LiabilityShares = ba.balance.LiabilityShares.Add(shares)
		ba.bank.TotalLiabilityShares = ba.bank.TotalLiabilityShares.Add(shares)
		return
	}
	amount := delta.Neg()
	owed := ba.bank.LiabilityAmount(ba.balance.LiabilityShares)
	if amount.GreaterThanOrEqual(owed) {
		ba.bank.TotalLiabilityShares = ba.bank.TotalLiabilityShares.Sub(ba.balance.LiabilityShares)
		ba.balance.LiabilityShares = decimal.Zero
		return
	}
	shares := assetSharesFromAmount(amount, ba.bank.LiabilityShareValue)
	ba.balance.LiabilityShares = ba.balance.LiabilityShares.Sub(shares)
	ba.bank.TotalLiabilityShares = ba.bank.TotalLiabilityShares.Sub(shares)
}
