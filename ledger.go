package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/hub/model"
)

// CreateLedgerEntries builds the postings for a settled transaction: a debit
// of the originator, a credit of the destination and, when a fee applies, a
// second debit of the originator for the fee.
func CreateLedgerEntries(txn *model.Transaction) []model.LedgerEntry {
	entries := []model.LedgerEntry{
		newEntry(txn, txn.OriginatorBankCode, txn.OriginatorAccount, model.EntryDebit, txn.Amount,
			fmt.Sprintf("Debit for transaction %s", txn.ReferenceID), nil),
		newEntry(txn, txn.DestinationBankCode, txn.DestinationAccount, model.EntryCredit, txn.Amount,
			fmt.Sprintf("Credit for transaction %s", txn.ReferenceID), nil),
	}
	if txn.FeeAmount.IsPositive() {
		entries = append(entries, newEntry(txn, txn.OriginatorBankCode, txn.OriginatorAccount, model.EntryDebit, txn.FeeAmount,
			fmt.Sprintf("Fee for transaction %s", txn.ReferenceID),
			map[string]interface{}{"feeType": model.FeeTypeTransaction}))
	}
	return entries
}

// createRefundEntries reverses amount of a settled transaction.
func createRefundEntries(txn *model.Transaction, amount decimal.Decimal, at time.Time) []model.LedgerEntry {
	debit := newEntry(txn, txn.DestinationBankCode, txn.DestinationAccount, model.EntryDebit, amount,
		fmt.Sprintf("Refund debit for transaction %s", txn.ReferenceID),
		map[string]interface{}{"entry_kind": model.EntryKindRefund})
	credit := newEntry(txn, txn.OriginatorBankCode, txn.OriginatorAccount, model.EntryCredit, amount,
		fmt.Sprintf("Refund credit for transaction %s", txn.ReferenceID),
		map[string]interface{}{"entry_kind": model.EntryKindRefund})
	debit.EntryDate, credit.EntryDate = at, at
	return []model.LedgerEntry{debit, credit}
}

func newEntry(txn *model.Transaction, bankCode, account string, entryType model.EntryType, amount decimal.Decimal, description string, meta map[string]interface{}) model.LedgerEntry {
	return model.LedgerEntry{
		ID:            model.GenerateUUIDWithSuffix("entry"),
		TransactionID: txn.ID,
		BankCode:      bankCode,
		AccountNumber: account,
		EntryType:     entryType,
		Amount:        amount,
		Currency:      txn.Currency,
		EntryDate:     txn.TransactionDate,
		ReferenceID:   txn.ReferenceID,
		Description:   description,
		MetaData:      meta,
	}
}

// AnnotateSettlement stamps the settlement outcome on a transaction's
// entries. Amounts, types and accounts are left alone.
func (h *Hub) AnnotateSettlement(ctx context.Context, transactionID string) error {
	ctx, span := tracer.Start(ctx, "Annotating ledger entries")
	defer span.End()

	err := h.datasource.AnnotateEntries(ctx, transactionID, map[string]interface{}{
		"settlementDate":   h.now().UTC().Format(time.RFC3339),
		"settlementStatus": string(model.StatusSettled),
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (h *Hub) GetLedgerEntriesByTransaction(ctx context.Context, transactionID string) ([]model.LedgerEntry, error) {
	return h.datasource.GetLedgerEntriesByTransaction(ctx, transactionID)
}

func (h *Hub) GetLedgerEntriesByBank(ctx context.Context, bankCode string, from, to time.Time) ([]model.LedgerEntry, error) {
	return h.datasource.GetLedgerEntriesByBank(ctx, bankCode, from, to)
}

func (h *Hub) GetLedgerEntriesByAccount(ctx context.Context, account string, from, to time.Time) ([]model.LedgerEntry, error) {
	return h.datasource.GetLedgerEntriesByAccount(ctx, account, from, to)
}
