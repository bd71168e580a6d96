package lending

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventSink receives engine events after a state change commits. Sinks must
// not block; the engine calls them synchronously on the mutating goroutine.
type EventSink interface {
	Emit(event Event)
}

// Event is the envelope every engine event shares.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

const (
	EventTypeBankCreated     = "lending.bank.created"
	EventTypeBankUpdated     = "lending.bank.updated"
	EventTypeAccountCreated  = "lending.account.created"
	EventTypeDeposit         = "lending.deposit"
	EventTypeWithdraw        = "lending.withdraw"
	EventTypeBorrow          = "lending.borrow"
	EventTypeRepay           = "lending.repay"
	EventTypeLiquidation     = "lending.liquidation"
	EventTypeExternalDeposit = "lending.external_deposit"
)

// BankEvent records bank creation and configuration updates.
type BankEvent struct {
	AssetID string     `json:"assetId"`
	Config  BankConfig `json:"config"`
}

// AccountEvent records account creation.
type AccountEvent struct {
	Owner string `json:"owner"`
}

// FundsEvent records deposit, withdraw, borrow and repay flows.
type FundsEvent struct {
	Owner  string          `json:"owner"`
	BankID string          `json:"bankId"`
	Amount decimal.Decimal `json:"amount"`
}

// LiquidationEvent records a third-party liquidation with the health of the
// liquidatee before and after the seizure.
type LiquidationEvent struct {
	Liquidator  string          `json:"liquidator"`
	Liquidatee  string          `json:"liquidatee"`
	AssetBankID string          `json:"assetBankId"`
	LiabBankID  string          `json:"liabBankId"`
	RepayAmount decimal.Decimal `json:"repayAmount"`
	AssetAmount decimal.Decimal `json:"assetAmount"`
	PreHealth   decimal.Decimal `json:"preHealth"`
	PostHealth  decimal.Decimal `json:"postHealth"`
}

// ExternalDepositEvent records collateral routed to an external venue in
// exchange for a receipt position.
type ExternalDepositEvent struct {
	Owner         string          `json:"owner"`
	SourceBankID  string          `json:"sourceBankId"`
	ReceiptBankID string          `json:"receiptBankId"`
	Amount        decimal.Decimal `json:"amount"`
	ReceiptAmount decimal.Decimal `json:"receiptAmount"`
}

func (e *Engine) emit(eventType string, now int64, payload interface{}) {
	if e.events == nil {
		return
	}
	e.events.Emit(Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: now,
		Payload:   payload,
	})
}
