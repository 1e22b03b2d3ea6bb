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

package database

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/hub/model"
)

// IDataSource groups the repositories used by the hub and the balance store.
type IDataSource interface {
	balance
	transaction
	ledger
	settlement
}

// AccountTx is the unit of work handed to WithAccountLock. The balance it
// exposes is row-locked until the surrounding transaction ends.
type AccountTx interface {
	Balance() *model.AccountBalance
	Hold(ctx context.Context, transactionID string) (*model.FrozenFunds, error)
	InsertHold(ctx context.Context, hold *model.FrozenFunds) error
	CloseHold(ctx context.Context, holdID string, used bool, at time.Time) error
}

type balance interface {
	CreateBalance(ctx context.Context, b *model.AccountBalance) error
	GetBalance(ctx context.Context, accountID string) (*model.AccountBalance, error)
	GetHold(ctx context.Context, accountID, transactionID string) (*model.FrozenFunds, error)
	WithAccountLock(ctx context.Context, accountID string, fn func(AccountTx) error) error
}

type transaction interface {
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionByRef(ctx context.Context, referenceID string) (*model.Transaction, error)
	TransactionExistsByRef(ctx context.Context, referenceID string) (bool, error)
	UpdateTransaction(ctx context.Context, txn *model.Transaction) error
	ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error)
	GetAccountActivity(ctx context.Context, account string, since time.Time, excludeID string) (int, decimal.Decimal, error)
	CountFailedTransactions(ctx context.Context, account string, since time.Time) (int, error)
	GetStuckTransactions(ctx context.Context, updatedBefore time.Time, limit int) ([]model.Transaction, error)
	GetDueRetries(ctx context.Context, dueBefore time.Time, limit int) ([]model.Transaction, error)
	GetSettledUnbatched(ctx context.Context, from, to time.Time) ([]model.Transaction, error)
}

type ledger interface {
	CommitTransactionWithEntries(ctx context.Context, txn *model.Transaction, entries []model.LedgerEntry) error
	AnnotateEntries(ctx context.Context, transactionID string, metadata map[string]interface{}) error
	GetLedgerEntriesByTransaction(ctx context.Context, transactionID string) ([]model.LedgerEntry, error)
	GetLedgerEntriesByBank(ctx context.Context, bankCode string, from, to time.Time) ([]model.LedgerEntry, error)
	GetLedgerEntriesByAccount(ctx context.Context, account string, from, to time.Time) ([]model.LedgerEntry, error)
	MarkEntriesReconciled(ctx context.Context, transactionIDs []string) (int64, error)
}

type settlement interface {
	CreateSettlementBatch(ctx context.Context, batch *model.SettlementBatch, transactionIDs []string) error
	GetSettlementBatch(ctx context.Context, id string) (*model.SettlementBatch, error)
	GetBatchTransactions(ctx context.Context, batchID string) ([]model.Transaction, error)
	UpdateSettlementBatch(ctx context.Context, batch *model.SettlementBatch) error
	ListSettlementBatches(ctx context.Context, limit, offset int) ([]model.SettlementBatch, error)
}
