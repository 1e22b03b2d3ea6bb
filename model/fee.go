package model

import "github.com/shopspring/decimal"

// FeePolicyVersion identifies the schedule below. It is stamped on every
// transaction so PSP and hub postings can be reconciled against one policy.
const FeePolicyVersion = "2024-01"

var (
	feeFixed     = decimal.NewFromInt(500)
	feeRate      = decimal.RequireFromString("0.005")
	feeCap       = decimal.NewFromInt(10_000)
	feeTierLower = decimal.NewFromInt(100_000)
	feeTierUpper = decimal.NewFromInt(1_000_000)
)

// CalculateFee applies the tiered schedule:
//
//	amount < 100,000               -> 500
//	100,000 <= amount <= 1,000,000 -> 0.5%
//	amount > 1,000,000             -> min(0.5%, 10,000)
//
// The rate is applied exactly; fractional rials are kept.
func CalculateFee(amount decimal.Decimal) decimal.Decimal {
	if amount.LessThan(feeTierLower) {
		return feeFixed
	}
	fee := amount.Mul(feeRate)
	if amount.GreaterThan(feeTierUpper) {
		return decimal.Min(fee, feeCap)
	}
	return fee
}
