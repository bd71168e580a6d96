package lending

import "github.com/shopspring/decimal"

// secondsPerYear converts annualized rates into per-second accrual.
const secondsPerYear = 31_536_000

var one = decimal.NewFromInt(1)

// shareScale bounds the decimal places kept on share quantities so rounding
// direction is well defined.
const shareScale = 12

// amountScale bounds the decimal places kept on token amounts.
const amountScale = 12

// Conversions round in the protocol's favor: down when crediting a user,
// up when charging one.

func assetSharesFromAmount(amount, shareValue decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 || shareValue.Sign() <= 0 {
		return decimal.Zero
	}
	return amount.Div(shareValue).RoundDown(shareScale)
}

func assetAmountFromShares(shares, shareValue decimal.Decimal) decimal.Decimal {
	if shares.Sign() <= 0 || shareValue.Sign() <= 0 {
		return decimal.Zero
	}
	return shares.Mul(shareValue).RoundDown(amountScale)
}

func liabilitySharesFromAmount(amount, shareValue decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 || shareValue.Sign() <= 0 {
		return decimal.Zero
	}
	return amount.Div(shareValue).RoundUp(shareScale)
}

func liabilityAmountFromShares(shares, shareValue decimal.Decimal) decimal.Decimal {
	if shares.Sign() <= 0 || shareValue.Sign() <= 0 {
		return decimal.Zero
	}
	return shares.Mul(shareValue).RoundUp(amountScale)
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
