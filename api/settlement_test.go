package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

func TestCreateSettlementBatch(t *testing.T) {
	a, ds := setupAPI(t)
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	ds.On("GetSettledUnbatched", mock.Anything, day, day.AddDate(0, 0, 1)).Return([]model.Transaction{}, nil)
	// without a date the previous day is batched
	yesterday := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)
	ds.On("GetSettledUnbatched", mock.Anything, yesterday, yesterday.AddDate(0, 0, 1)).Return([]model.Transaction{}, nil)

	w := doRequest(a, http.MethodPost, "/settlements", map[string]interface{}{"settlement_date": "2024-06-10"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No settled transactions to batch for 2024-06-10", decodeError(t, w).Message)

	w = doRequest(a, http.MethodPost, "/settlements", "{}")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No settled transactions to batch for 2024-06-11", decodeError(t, w).Message)

	w = doRequest(a, http.MethodPost, "/settlements", map[string]interface{}{"settlement_date": "10/06/2024"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "YYYY-MM-DD")
	ds.AssertExpectations(t)
}

func TestSettlementBatchQueries(t *testing.T) {
	a, ds := setupAPI(t)
	batch := &model.SettlementBatch{ID: "batch_1", BatchNumber: "STL-20240612-ABC123", Status: model.SettlementCompleted}
	ds.On("GetSettlementBatch", mock.Anything, "batch_1").Return(batch, nil)
	ds.On("GetSettlementBatch", mock.Anything, "batch_404").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Settlement batch not found", nil))
	ds.On("ListSettlementBatches", mock.Anything, 20, 0).Return([]model.SettlementBatch{*batch}, nil)
	ds.On("ListSettlementBatches", mock.Anything, 5, 5).Return([]model.SettlementBatch{}, nil)

	w := doRequest(a, http.MethodGet, "/settlements/batch_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.SettlementBatch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "STL-20240612-ABC123", got.BatchNumber)

	w = doRequest(a, http.MethodGet, "/settlements/batch_404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// completed batches are returned as they are
	w = doRequest(a, http.MethodPost, "/settlements/batch_1/process", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(a, http.MethodGet, "/settlements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.SettlementBatch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = doRequest(a, http.MethodGet, "/settlements?limit=5&offset=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLedgerQueries(t *testing.T) {
	a, ds := setupAPI(t)
	entries := []model.LedgerEntry{{ID: "entry_1", TransactionID: "txn_1", BankCode: "012", EntryType: model.EntryDebit}}
	ds.On("GetLedgerEntriesByTransaction", mock.Anything, "txn_1").Return(entries, nil)
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	ds.On("GetLedgerEntriesByBank", mock.Anything, "012", from, to).Return(entries, nil)
	// the default window is the last 24 hours
	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	ds.On("GetLedgerEntriesByAccount", mock.Anything, originator, now.Add(-24*time.Hour), now).Return(entries, nil)

	for _, path := range []string{
		"/ledger/transactions/txn_1",
		"/ledger/banks/012?from=2024-06-01&to=2024-06-02T00:00:00Z",
		"/ledger/accounts/" + originator,
	} {
		w := doRequest(a, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		var got []model.LedgerEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Len(t, got, 1)
	}

	w := doRequest(a, http.MethodGet, "/ledger/banks/012?to=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	ds.AssertExpectations(t)
}
