package bank

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/hub/internal/apierror"
)

func newTestFundsClient(t *testing.T) *FundsClient {
	c := NewFundsClient("http://bank.local", nil, time.Second)
	httpmock.ActivateNonDefault(c.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestFundsClient_Freeze(t *testing.T) {
	c := newTestFundsClient(t)

	httpmock.RegisterResponder("POST", "http://bank.local/balances/IR0120000000000001/freeze",
		func(req *http.Request) (*http.Response, error) {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "txn_1", body["transaction_id"])
			assert.Equal(t, "1500", body["amount"])
			return httpmock.NewStringResponse(200, `{"success":true}`), nil
		})

	err := c.Freeze(context.Background(), "IR0120000000000001", decimal.NewFromInt(1500), "txn_1", nil)
	assert.NoError(t, err)
}

func TestFundsClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		code   apierror.ErrorCode
	}{
		{http.StatusNotFound, apierror.ErrNotFound},
		{http.StatusConflict, apierror.ErrConflict},
		{http.StatusUnprocessableEntity, apierror.ErrInsufficientFunds},
		{http.StatusBadRequest, apierror.ErrInvalidInput},
		{http.StatusInternalServerError, apierror.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestFundsClient(t)
			httpmock.RegisterResponder("POST", "http://bank.local/balances/ACC-0000000001/debit",
				httpmock.NewStringResponder(tt.status, `{"success":false,"message":"nope"}`))

			err := c.Debit(context.Background(), "ACC-0000000001", decimal.NewFromInt(10), "txn_2")
			require.Error(t, err)
			assert.True(t, apierror.Is(err, tt.code))
			if tt.code != apierror.ErrUpstream {
				assert.Contains(t, err.Error(), "nope")
			}
		})
	}
}

func TestFundsClient_CheckAvailability(t *testing.T) {
	c := newTestFundsClient(t)

	httpmock.RegisterResponderWithQuery("GET", "http://bank.local/balances/ACC-0000000001/availability",
		"amount=250", httpmock.NewStringResponder(200, `{"available":true}`))

	ok, err := c.CheckAvailability(context.Background(), "ACC-0000000001", decimal.NewFromInt(250))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFundsClient_Unreachable(t *testing.T) {
	c := newTestFundsClient(t)
	httpmock.RegisterResponder("POST", "http://bank.local/balances/ACC-0000000001/credit",
		httpmock.NewErrorResponder(assert.AnError))

	err := c.Credit(context.Background(), "ACC-0000000001", decimal.NewFromInt(5))
	assert.True(t, apierror.Is(err, apierror.ErrUpstream))
}
