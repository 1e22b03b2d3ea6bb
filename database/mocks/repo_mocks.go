/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package mocks

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/hub/database"
	"github.com/blnkfinance/hub/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Balance methods

func (m *MockDataSource) CreateBalance(ctx context.Context, b *model.AccountBalance) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockDataSource) GetBalance(ctx context.Context, accountID string) (*model.AccountBalance, error) {
	args := m.Called(ctx, accountID)
	if b := args.Get(0); b != nil {
		return b.(*model.AccountBalance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetHold(ctx context.Context, accountID, transactionID string) (*model.FrozenFunds, error) {
	args := m.Called(ctx, accountID, transactionID)
	if h := args.Get(0); h != nil {
		return h.(*model.FrozenFunds), args.Error(1)
	}
	return nil, args.Error(1)
}

// WithAccountLock runs fn against the AccountTx supplied as the first return
// value, or returns the configured error without calling fn.
func (m *MockDataSource) WithAccountLock(ctx context.Context, accountID string, fn func(database.AccountTx) error) error {
	args := m.Called(ctx, accountID, mock.Anything)
	if err := args.Error(1); err != nil {
		return err
	}
	return fn(args.Get(0).(database.AccountTx))
}

// Transaction methods

func (m *MockDataSource) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockDataSource) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	args := m.Called(ctx, id)
	if t := args.Get(0); t != nil {
		return t.(*model.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetTransactionByRef(ctx context.Context, referenceID string) (*model.Transaction, error) {
	args := m.Called(ctx, referenceID)
	if t := args.Get(0); t != nil {
		return t.(*model.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) TransactionExistsByRef(ctx context.Context, referenceID string) (bool, error) {
	args := m.Called(ctx, referenceID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockDataSource) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.Transaction), args.Error(1)
}

func (m *MockDataSource) GetAccountActivity(ctx context.Context, account string, since time.Time, excludeID string) (int, decimal.Decimal, error) {
	args := m.Called(ctx, account, since, excludeID)
	return args.Int(0), args.Get(1).(decimal.Decimal), args.Error(2)
}

func (m *MockDataSource) CountFailedTransactions(ctx context.Context, account string, since time.Time) (int, error) {
	args := m.Called(ctx, account, since)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) GetStuckTransactions(ctx context.Context, updatedBefore time.Time, limit int) ([]model.Transaction, error) {
	args := m.Called(ctx, updatedBefore, limit)
	return args.Get(0).([]model.Transaction), args.Error(1)
}

func (m *MockDataSource) GetDueRetries(ctx context.Context, dueBefore time.Time, limit int) ([]model.Transaction, error) {
	args := m.Called(ctx, dueBefore, limit)
	return args.Get(0).([]model.Transaction), args.Error(1)
}

func (m *MockDataSource) GetSettledUnbatched(ctx context.Context, from, to time.Time) ([]model.Transaction, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]model.Transaction), args.Error(1)
}

// Ledger methods

func (m *MockDataSource) CommitTransactionWithEntries(ctx context.Context, txn *model.Transaction, entries []model.LedgerEntry) error {
	args := m.Called(ctx, txn, entries)
	return args.Error(0)
}

func (m *MockDataSource) AnnotateEntries(ctx context.Context, transactionID string, metadata map[string]interface{}) error {
	args := m.Called(ctx, transactionID, metadata)
	return args.Error(0)
}

func (m *MockDataSource) GetLedgerEntriesByTransaction(ctx context.Context, transactionID string) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetLedgerEntriesByBank(ctx context.Context, bankCode string, from, to time.Time) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, bankCode, from, to)
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetLedgerEntriesByAccount(ctx context.Context, account string, from, to time.Time) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, account, from, to)
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) MarkEntriesReconciled(ctx context.Context, transactionIDs []string) (int64, error) {
	args := m.Called(ctx, transactionIDs)
	return args.Get(0).(int64), args.Error(1)
}

// Settlement methods

func (m *MockDataSource) CreateSettlementBatch(ctx context.Context, batch *model.SettlementBatch, transactionIDs []string) error {
	args := m.Called(ctx, batch, transactionIDs)
	return args.Error(0)
}

func (m *MockDataSource) GetSettlementBatch(ctx context.Context, id string) (*model.SettlementBatch, error) {
	args := m.Called(ctx, id)
	if b := args.Get(0); b != nil {
		return b.(*model.SettlementBatch), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetBatchTransactions(ctx context.Context, batchID string) ([]model.Transaction, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).([]model.Transaction), args.Error(1)
}

func (m *MockDataSource) UpdateSettlementBatch(ctx context.Context, batch *model.SettlementBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockDataSource) ListSettlementBatches(ctx context.Context, limit, offset int) ([]model.SettlementBatch, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.SettlementBatch), args.Error(1)
}

var _ database.IDataSource = (*MockDataSource)(nil)
