package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const HighRiskScore = 50

var (
	highValueThreshold = decimal.NewFromInt(500_000_000)
	reportingThreshold = decimal.NewFromInt(100_000_000)
	structuringFloor   = reportingThreshold.Mul(decimal.NewFromFloat(0.95))
)

// RiskAssessment is an advisory score attached to a recorded transaction.
type RiskAssessment struct {
	Score   int      `json:"score"`
	Factors []string `json:"factors,omitempty"`
}

func (r RiskAssessment) HighRisk() bool {
	return r.Score >= HighRiskScore
}

// AssessRisk scores a transaction at submission time.
func AssessRisk(t *Transaction, now time.Time) RiskAssessment {
	var r RiskAssessment

	if t.Amount.GreaterThanOrEqual(highValueThreshold) {
		r.Score += 30
		r.Factors = append(r.Factors, "high_value")
	}

	// just under the reporting threshold
	if t.Amount.GreaterThanOrEqual(structuringFloor) && t.Amount.LessThan(reportingThreshold) {
		r.Score += 40
		r.Factors = append(r.Factors, "near_reporting_threshold")
	}

	if hour := now.Hour(); hour < 6 || hour > 23 {
		r.Score += 15
		r.Factors = append(r.Factors, "unusual_hour")
	}

	if t.TransactionType == TypeCommercial && (t.MerchantID == "" || t.TerminalID == "") {
		r.Score += 25
		r.Factors = append(r.Factors, "incomplete_merchant_details")
	}

	return r
}
