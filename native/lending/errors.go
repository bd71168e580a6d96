package lending

import "errors"

// Sentinel errors returned by the lending engine. Handlers wrap these with
// context; callers match with errors.Is.
var (
	// ErrNilState indicates the engine was constructed without state.
	ErrNilState = errors.New("lending: state unavailable")
	// ErrInvalidAmount rejects zero or negative token amounts.
	ErrInvalidAmount = errors.New("lending: invalid amount")
	// ErrInvalidConfig rejects malformed bank or engine configuration.
	ErrInvalidConfig = errors.New("lending: invalid configuration")
	// ErrAlreadyExists indicates the bank or account is already registered.
	ErrAlreadyExists = errors.New("lending: already exists")
	// ErrNotFound indicates the referenced bank or account does not exist.
	ErrNotFound = errors.New("lending: not found")
	// ErrInsufficientBalance indicates the position cannot cover the request.
	ErrInsufficientBalance = errors.New("lending: insufficient balance")
	// ErrInsufficientLiquidity indicates the vault cannot fund the payout.
	ErrInsufficientLiquidity = errors.New("lending: insufficient liquidity")
	// ErrInsufficientSlots indicates the account holds positions against the
	// maximum number of banks already.
	ErrInsufficientSlots = errors.New("lending: no free balance slots")
	// ErrInsolvent indicates the account fails the required health tier.
	ErrInsolvent = errors.New("lending: account insolvent")
	// ErrNotLiquidatable indicates the account clears the maintenance tier.
	ErrNotLiquidatable = errors.New("lending: account not liquidatable")
	// ErrNoCollateralRemaining indicates there is nothing left to seize.
	ErrNoCollateralRemaining = errors.New("lending: no collateral remaining")
	// ErrIllegalUtilization indicates liabilities would exceed assets.
	ErrIllegalUtilization = errors.New("lending: illegal utilization")
	// ErrUnauthorized rejects administrative calls from other principals.
	ErrUnauthorized = errors.New("lending: unauthorized")
	// ErrSameBank rejects operations that need two distinct banks.
	ErrSameBank = errors.New("lending: same bank on both sides")
	// ErrVenueNotConfigured indicates no external liquidity venue is wired.
	ErrVenueNotConfigured = errors.New("lending: external venue not configured")
)
