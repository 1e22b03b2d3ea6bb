package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAssessRisk(t *testing.T) {
	noon := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	night := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)

	t.Run("ordinary", func(t *testing.T) {
		r := AssessRisk(&Transaction{Amount: decimal.NewFromInt(1_000_000), TransactionType: TypeNormal}, noon)
		assert.Equal(t, 0, r.Score)
		assert.False(t, r.HighRisk())
	})

	t.Run("high value", func(t *testing.T) {
		r := AssessRisk(&Transaction{Amount: decimal.NewFromInt(600_000_000)}, noon)
		assert.Equal(t, 30, r.Score)
		assert.Contains(t, r.Factors, "high_value")
	})

	t.Run("structuring at night is high risk", func(t *testing.T) {
		r := AssessRisk(&Transaction{Amount: decimal.NewFromInt(98_000_000)}, night)
		assert.Equal(t, 55, r.Score)
		assert.True(t, r.HighRisk())
	})

	t.Run("commercial without terminal", func(t *testing.T) {
		r := AssessRisk(&Transaction{Amount: decimal.NewFromInt(10_000), TransactionType: TypeCommercial, MerchantID: "M-1"}, noon)
		assert.Equal(t, 25, r.Score)
		assert.Contains(t, r.Factors, "incomplete_merchant_details")
	})
}
