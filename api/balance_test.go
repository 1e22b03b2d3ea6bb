package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/hub/bank"
	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

func TestOpenBalance(t *testing.T) {
	a, ds := setupAPI(t)
	ds.On("CreateBalance", mock.Anything, mock.MatchedBy(func(b *model.AccountBalance) bool {
		return b.AccountID == originator && b.AvailableBalance.Equal(decimal.NewFromInt(1_000_000))
	})).Return(nil)

	w := doRequest(a, http.MethodPost, "/balances", map[string]interface{}{
		"account_id":      originator,
		"opening_balance": "1000000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var b model.AccountBalance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, model.DefaultCurrency, b.Currency)
	assert.True(t, b.CurrentBalance.Equal(decimal.NewFromInt(1_000_000)))

	w = doRequest(a, http.MethodPost, "/balances", map[string]interface{}{
		"account_id":      "short",
		"opening_balance": "-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	msg := decodeError(t, w).Message
	assert.Contains(t, msg, "account_id: the length must be between 10 and 26")
	assert.Contains(t, msg, "opening_balance: cannot be negative")
}

func TestGetBalance(t *testing.T) {
	a, ds := setupAPI(t)
	ds.On("GetBalance", mock.Anything, originator).Return(newFakeUnit(5000).balance, nil)
	ds.On("GetBalance", mock.Anything, destination).
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Balance not found", nil))

	w := doRequest(a, http.MethodGet, "/balances/"+originator, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(a, http.MethodGet, "/balances/"+destination, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(a, http.MethodGet, "/balances/"+originator+"/availability", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// The funds routes are what bank.FundsClient calls when the hub reserves
// money on a remote source-bank deployment.
func TestFundsRoutes_WithFundsClient(t *testing.T) {
	a, ds := setupAPI(t)
	unit := newFakeUnit(1_000_000)
	ds.On("WithAccountLock", mock.Anything, originator, mock.Anything).Return(unit, nil)
	ds.On("GetBalance", mock.Anything, originator).Return(unit.balance, nil)

	srv := httptest.NewServer(a.router)
	defer srv.Close()
	client := bank.NewFundsClient(srv.URL, nil, 5*time.Second)
	ctx := context.Background()

	err := client.Freeze(ctx, originator, decimal.NewFromInt(2_000_000), "txn_big", nil)
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientFunds), "got %v", err)
	assert.Contains(t, err.Error(), "Insufficient funds in account '"+originator+"'")

	require.NoError(t, client.Freeze(ctx, originator, decimal.NewFromInt(400_000), "txn_1", nil))
	assert.True(t, unit.balance.AvailableBalance.Equal(decimal.NewFromInt(600_000)))
	assert.True(t, unit.balance.ReservedBalance.Equal(decimal.NewFromInt(400_000)))

	err = client.Freeze(ctx, originator, decimal.NewFromInt(400_000), "txn_1", nil)
	assert.True(t, apierror.Is(err, apierror.ErrConflict), "got %v", err)

	ok, err := client.CheckAvailability(ctx, originator, decimal.NewFromInt(600_000))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.CheckAvailability(ctx, originator, decimal.NewFromInt(600_001))
	require.NoError(t, err)
	assert.False(t, ok)

	err = client.Release(ctx, originator, "txn_unknown")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound), "got %v", err)

	require.NoError(t, client.Debit(ctx, originator, decimal.NewFromInt(400_000), "txn_1"))
	assert.True(t, unit.balance.ReservedBalance.IsZero())
	assert.True(t, unit.balance.CurrentBalance.Equal(decimal.NewFromInt(600_000)))
	assert.True(t, unit.holds["txn_1"].Used)

	require.NoError(t, client.Credit(ctx, originator, decimal.NewFromInt(50_000)))
	assert.True(t, unit.balance.AvailableBalance.Equal(decimal.NewFromInt(650_000)))

	err = client.Credit(ctx, originator, decimal.Zero)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput), "got %v", err)
}

func TestSettle(t *testing.T) {
	a, ds := setupAPI(t)
	ds.On("GetTransactionByID", mock.Anything, "txn_missing").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Transaction not found", nil))

	w := doRequest(a, http.MethodPost, "/settle", map[string]interface{}{
		"transaction_id": "txn_missing",
		"reference_id":   "REF-API-00080",
		"amount":         "1000",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var result model.SettleResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, "Transaction not found", result.Message)

	w = doRequest(a, http.MethodPost, "/settle", map[string]interface{}{"transaction_id": "txn_missing"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
