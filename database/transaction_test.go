package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

var transactionColumnNames = []string{"id", "reference_id", "transaction_date", "originator_bank_code", "destination_bank_code",
	"originator_account", "destination_account", "amount", "currency", "fee_amount", "status", "status_detail", "retry_count",
	"next_retry_at", "verification_code", "tracking_code", "bank_reference_id", "funds_frozen", "refunded_amount",
	"transaction_type", "merchant_id", "terminal_id", "card_number", "risk_score", "settlement_batch_id", "meta_data",
	"created_at", "updated_at", "settled_at"}

func fakeTransaction() *model.Transaction {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Transaction{
		ID:                  model.GenerateUUIDWithSuffix("txn"),
		ReferenceID:         "REF-" + gofakeit.Numerify("########"),
		TransactionDate:     now,
		OriginatorBankCode:  "012",
		DestinationBankCode: "056",
		OriginatorAccount:   "IR" + gofakeit.Numerify("################"),
		DestinationAccount:  "IR" + gofakeit.Numerify("################"),
		Amount:              decimal.NewFromInt(500_000),
		Currency:            "IRR",
		FeeAmount:           decimal.NewFromInt(2_500),
		Status:              model.StatusPending,
		TransactionType:     model.TypeNormal,
		MetaData:            map[string]interface{}{"fee_policy_version": model.FeePolicyVersion},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func addTransactionRow(rows *sqlmock.Rows, t *model.Transaction) *sqlmock.Rows {
	meta, _ := json.Marshal(t.MetaData)
	return rows.AddRow(t.ID, t.ReferenceID, t.TransactionDate, t.OriginatorBankCode, t.DestinationBankCode,
		t.OriginatorAccount, t.DestinationAccount, t.Amount.String(), t.Currency, t.FeeAmount.String(), string(t.Status),
		t.StatusDetail, int64(t.RetryCount), nil, t.VerificationCode, t.TrackingCode, t.BankReferenceID, t.FundsFrozen,
		t.RefundedAmount.String(), t.TransactionType, t.MerchantID, t.TerminalID, t.CardNumber, int64(t.RiskScore),
		t.SettlementBatchID, meta, t.CreatedAt, t.UpdatedAt, nil)
}

type memoryCache struct {
	data map[string]model.Transaction
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.data[key] = *value.(*model.Transaction)
	return nil
}

func (m *memoryCache) Get(_ context.Context, key string, dst interface{}) error {
	v, ok := m.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	*dst.(*model.Transaction) = v
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestCreateTransaction(t *testing.T) {
	ds, mock := newMockDatasource(t)
	txn := fakeTransaction()

	mock.ExpectExec("INSERT INTO hub.transactions").
		WithArgs(txn.ID, txn.ReferenceID, txn.TransactionDate, "012", "056", txn.OriginatorAccount, txn.DestinationAccount,
			txn.Amount, "IRR", txn.FeeAmount, "PENDING", sqlmock.AnyArg(), 0, false, txn.RefundedAmount, model.TypeNormal,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0, sqlmock.AnyArg(), txn.CreatedAt, txn.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, ds.CreateTransaction(context.Background(), txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTransaction_DuplicateReference(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec("INSERT INTO hub.transactions").WillReturnError(&pq.Error{Code: "23505", Constraint: "transactions_reference_id_key"})

	err := ds.CreateTransaction(context.Background(), fakeTransaction())
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransactionByRef(t *testing.T) {
	ds, mock := newMockDatasource(t)
	txn := fakeTransaction()

	mock.ExpectQuery(`SELECT .+ FROM hub.transactions WHERE reference_id = \$1`).WithArgs(txn.ReferenceID).
		WillReturnRows(addTransactionRow(sqlmock.NewRows(transactionColumnNames), txn))

	got, err := ds.GetTransactionByRef(context.Background(), txn.ReferenceID)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.True(t, txn.Amount.Equal(got.Amount))
	assert.Nil(t, got.NextRetryAt)
	assert.Equal(t, model.FeePolicyVersion, got.MetaData["fee_policy_version"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransactionByRef_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(`SELECT .+ FROM hub.transactions WHERE reference_id = \$1`).WithArgs("REF-missing").WillReturnError(sql.ErrNoRows)

	_, err := ds.GetTransactionByRef(context.Background(), "REF-missing")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestGetTransactionByRef_CachesOnlyFinalTransactions(t *testing.T) {
	ds, mock := newMockDatasource(t)
	c := &memoryCache{data: map[string]model.Transaction{}}
	ds.Cache = c

	cancelled := fakeTransaction()
	cancelled.Status = model.StatusCancelled
	mock.ExpectQuery(`SELECT .+ FROM hub.transactions`).WithArgs(cancelled.ReferenceID).
		WillReturnRows(addTransactionRow(sqlmock.NewRows(transactionColumnNames), cancelled))

	_, err := ds.GetTransactionByRef(context.Background(), cancelled.ReferenceID)
	require.NoError(t, err)
	assert.Contains(t, c.data, transactionCacheKey(cancelled.ReferenceID))

	// served from cache, no query expected
	got, err := ds.GetTransactionByRef(context.Background(), cancelled.ReferenceID)
	require.NoError(t, err)
	assert.Equal(t, cancelled.ID, got.ID)

	settled := fakeTransaction()
	settled.Status = model.StatusSettled
	mock.ExpectQuery(`SELECT .+ FROM hub.transactions`).WithArgs(settled.ReferenceID).
		WillReturnRows(addTransactionRow(sqlmock.NewRows(transactionColumnNames), settled))
	_, err = ds.GetTransactionByRef(context.Background(), settled.ReferenceID)
	require.NoError(t, err)
	assert.NotContains(t, c.data, transactionCacheKey(settled.ReferenceID))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransaction(t *testing.T) {
	ds, mock := newMockDatasource(t)
	txn := fakeTransaction()
	txn.Status = model.StatusFailed
	txn.RetryCount = 1
	retryAt := time.Now().Add(10 * time.Second)
	txn.NextRetryAt = &retryAt

	mock.ExpectExec("UPDATE hub.transactions").
		WithArgs(txn.ID, "FAILED", sqlmock.AnyArg(), 1, retryAt, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			false, txn.RefundedAmount, 0, sqlmock.AnyArg(), sqlmock.AnyArg(), txn.UpdatedAt, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, ds.UpdateTransaction(context.Background(), txn))

	mock.ExpectExec("UPDATE hub.transactions").WillReturnResult(sqlmock.NewResult(0, 0))
	err := ds.UpdateTransaction(context.Background(), txn)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactions_BuildsFilter(t *testing.T) {
	ds, mock := newMockDatasource(t)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE status = \$1 AND \(originator_bank_code = \$2 OR destination_bank_code = \$2\) AND created_at >= \$3 ORDER BY created_at DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("SETTLED", "012", from, 20, 40).
		WillReturnRows(addTransactionRow(sqlmock.NewRows(transactionColumnNames), fakeTransaction()))

	txns, err := ds.ListTransactions(context.Background(), model.TransactionFilter{
		Status: model.StatusSettled, BankCode: "012", From: from, Offset: 40,
	})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountActivity(t *testing.T) {
	ds, mock := newMockDatasource(t)
	since := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(SUM\(amount\), 0\)`).
		WithArgs("IR0120000000000001", since, "txn_1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(int64(4), "1200000"))

	count, total, err := ds.GetAccountActivity(context.Background(), "IR0120000000000001", since, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.True(t, decimal.NewFromInt(1_200_000).Equal(total))
}

func TestGetDueRetries(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE status = 'FAILED' AND next_retry_at IS NOT NULL`).WithArgs(now, 50).
		WillReturnRows(sqlmock.NewRows(transactionColumnNames))

	txns, err := ds.GetDueRetries(context.Background(), now, 50)
	assert.NoError(t, err)
	assert.Empty(t, txns)
}
