package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/hub/database/mocks"
	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

func recordBody(ref string) map[string]interface{} {
	return map[string]interface{}{
		"reference_id":          ref,
		"originator_bank_code":  "012",
		"destination_bank_code": "056",
		"originator_account":    originator,
		"destination_account":   destination,
		"amount":                "50000",
	}
}

func TestRecordTransaction(t *testing.T) {
	a, ds := setupAPI(t)
	ds.On("TransactionExistsByRef", mock.Anything, "REF-API-00001").Return(false, nil)
	ds.On("CreateTransaction", mock.Anything, mock.AnythingOfType("*model.Transaction")).Return(nil)

	w := doRequest(a, http.MethodPost, "/transactions", recordBody("REF-API-00001"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var txn model.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txn))
	assert.Equal(t, model.StatusPending, txn.Status)
	assert.True(t, txn.FeeAmount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, model.DefaultCurrency, txn.Currency)
	assert.NotEmpty(t, txn.ID)
	ds.AssertExpectations(t)
}

func TestRecordTransaction_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		body    interface{}
		setup   func(ds *mocks.MockDataSource)
		status  int
		message string
	}{
		{
			name:    "malformed json",
			body:    `{"reference_id":`,
			status:  http.StatusBadRequest,
			message: "unexpected EOF",
		},
		{
			name: "missing fields",
			body: map[string]interface{}{
				"reference_id": "REF-API-00002",
				"amount":       "0",
			},
			status:  http.StatusBadRequest,
			message: "amount: must be greater than zero",
		},
		{
			name: "unknown bank",
			body: func() map[string]interface{} {
				b := recordBody("REF-API-00003")
				b["destination_bank_code"] = "999"
				return b
			}(),
			status:  http.StatusBadRequest,
			message: "Transaction validation failed",
		},
		{
			name: "duplicate reference",
			body: recordBody("REF-API-00004"),
			setup: func(ds *mocks.MockDataSource) {
				ds.On("TransactionExistsByRef", mock.Anything, "REF-API-00004").Return(true, nil)
			},
			status:  http.StatusConflict,
			message: "Transaction with reference 'REF-API-00004' already exists",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ds := setupAPI(t)
			if tt.setup != nil {
				tt.setup(ds)
			}

			w := doRequest(a, http.MethodPost, "/transactions", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, decodeError(t, w).Message, tt.message)
			ds.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
		})
	}
}

func TestGetTransaction(t *testing.T) {
	a, ds := setupAPI(t)
	stored := &model.Transaction{ID: "txn_1", ReferenceID: "REF-API-00010", Status: model.StatusSettled}
	ds.On("GetTransactionByRef", mock.Anything, "REF-API-00010").Return(stored, nil)
	ds.On("GetTransactionByID", mock.Anything, "txn_1").Return(stored, nil)
	ds.On("GetTransactionByRef", mock.Anything, "REF-MISSING-1").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Transaction not found", nil))

	for _, path := range []string{"/transactions/REF-API-00010", "/transactions/txn_1?by=id"} {
		w := doRequest(a, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var txn model.Transaction
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txn))
		assert.Equal(t, "REF-API-00010", txn.ReferenceID)
	}

	w := doRequest(a, http.MethodGet, "/transactions/REF-MISSING-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Code)
}

func TestListTransactions(t *testing.T) {
	a, ds := setupAPI(t)
	ds.On("ListTransactions", mock.Anything, mock.MatchedBy(func(f model.TransactionFilter) bool {
		return f.Status == model.StatusSettled &&
			f.Account == originator &&
			f.Limit == 5 && f.Offset == 10 &&
			f.From.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) &&
			f.To.Equal(time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC))
	})).Return([]model.Transaction{{ReferenceID: "REF-API-00020"}}, nil)

	// legacy status names are accepted
	w := doRequest(a, http.MethodGet, "/transactions?status=successful&account="+originator+"&limit=5&offset=10&from=2024-06-01&to=2024-06-12", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var txns []model.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txns))
	assert.Len(t, txns, 1)

	for _, query := range []string{"?status=DONE", "?limit=-1", "?offset=x", "?from=yesterday", "?from=2024-06-12&to=2024-06-01"} {
		w := doRequest(a, http.MethodGet, "/transactions"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestProcessTransaction_NotFound(t *testing.T) {
	a, ds := setupAPI(t)
	ds.On("GetTransactionByRef", mock.Anything, "REF-API-00030").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Transaction not found", nil))

	w := doRequest(a, http.MethodPost, "/transactions/REF-API-00030/process", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifyTransaction_Validation(t *testing.T) {
	a, _ := setupAPI(t)

	w := doRequest(a, http.MethodPost, "/transactions/REF-API-00040/verify", map[string]interface{}{"verification_code": "ABC"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "bank_code: cannot be blank")
}

func TestCancelTransaction(t *testing.T) {
	a, ds := setupAPI(t)
	ds.On("GetTransactionByRef", mock.Anything, "REF-API-00050").
		Return(&model.Transaction{ID: "txn_50", ReferenceID: "REF-API-00050", Status: model.StatusPending}, nil)
	ds.On("UpdateTransaction", mock.Anything, mock.MatchedBy(func(t *model.Transaction) bool {
		return t.Status == model.StatusCancelled
	})).Return(nil)
	ds.On("GetTransactionByRef", mock.Anything, "REF-API-00051").
		Return(&model.Transaction{ID: "txn_51", ReferenceID: "REF-API-00051", Status: model.StatusAuthorized}, nil)

	w := doRequest(a, http.MethodPost, "/transactions/REF-API-00050/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var outcome model.CancelOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.True(t, outcome.Success)
	assert.Equal(t, model.StatusCancelled, outcome.Transaction.Status)

	w = doRequest(a, http.MethodPost, "/transactions/REF-API-00051/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Transaction is AUTHORIZED and cannot be cancelled", decodeError(t, w).Message)
}

func TestRefundTransaction_Validation(t *testing.T) {
	a, _ := setupAPI(t)

	w := doRequest(a, http.MethodPost, "/transactions/REF-API-00060/refund", map[string]interface{}{"amount": "-10"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "amount: must be greater than zero")
}

func TestUpdateTransactionStatus(t *testing.T) {
	a, ds := setupAPI(t)
	ds.On("GetTransactionByRef", mock.Anything, "REF-API-00070").
		Return(&model.Transaction{ID: "txn_70", ReferenceID: "REF-API-00070", Status: model.StatusPending}, nil)
	ds.On("UpdateTransaction", mock.Anything, mock.AnythingOfType("*model.Transaction")).Return(nil)

	w := doRequest(a, http.MethodPut, "/transactions/REF-API-00070/status", map[string]interface{}{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "unknown transaction status")

	w = doRequest(a, http.MethodPut, "/transactions/REF-API-00070/status", map[string]interface{}{"status": "processing", "detail": "picked up by operator"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var txn model.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txn))
	assert.Equal(t, model.StatusProcessing, txn.Status)
	assert.Equal(t, "picked up by operator", txn.StatusDetail)
}
