package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/hub/config"
	"github.com/blnkfinance/hub/database/mocks"
)

func newTestFraudGate(ds *mocks.MockDataSource) *FraudGate {
	g := NewFraudGate(ds, config.Defaults().Fraud, nil)
	g.now = func() time.Time { return time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestFraudGate_Check(t *testing.T) {
	startOfDay := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	failureWindowStart := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		amount     int64
		card       string
		count      int
		total      int64
		failures   int
		fraudulent bool
		reason     string
		flags      []string
	}{
		{name: "clean", amount: 1000},
		{name: "short card", amount: 1000, card: "603799", fraudulent: true, reason: "Invalid card number"},
		{name: "non numeric card", amount: 1000, card: "6037-9912-3456-78", fraudulent: true, reason: "Invalid card number"},
		{name: "valid card", amount: 1000, card: "6037991234567890"},
		{name: "daily count", amount: 1000, count: 20, fraudulent: true, reason: "Daily transaction count limit of 20 reached"},
		{name: "daily amount", amount: 1000, total: 299_999_500, fraudulent: true, reason: "Daily amount limit of 300000000 exceeded"},
		{name: "recent failures", amount: 1000, failures: 3, fraudulent: true, reason: "3 failed transactions in the last 2h0m0s"},
		{name: "high amount", amount: 150_000_000, flags: []string{"high_amount"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := new(mocks.MockDataSource)
			ds.On("GetAccountActivity", mock.Anything, originator, startOfDay, "txn_1").
				Return(tt.count, decimal.NewFromInt(tt.total), nil).Maybe()
			ds.On("CountFailedTransactions", mock.Anything, originator, failureWindowStart).
				Return(tt.failures, nil).Maybe()

			txn := newTxn("REF-FRAUD-100", tt.amount)
			txn.ID = "txn_1"
			txn.CardNumber = tt.card

			result, err := newTestFraudGate(ds).Check(context.Background(), txn)
			require.NoError(t, err)
			assert.Equal(t, tt.fraudulent, result.IsFraudulent)
			assert.Equal(t, tt.reason, result.Reason)
			assert.Equal(t, tt.flags, result.Flags)
			ds.AssertExpectations(t)
		})
	}
}

func TestFraudGate_DatasourceError(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("GetAccountActivity", mock.Anything, originator, mock.Anything, "txn_1").
		Return(0, decimal.Zero, errors.New("connection refused"))

	txn := newTxn("REF-FRAUD-101", 1000)
	txn.ID = "txn_1"

	_, err := newTestFraudGate(ds).Check(context.Background(), txn)
	assert.EqualError(t, err, "connection refused")
	ds.AssertNotCalled(t, "CountFailedTransactions", mock.Anything, mock.Anything, mock.Anything)
}
