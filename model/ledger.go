package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"

	FeeTypeTransaction = "transaction_fee"
	EntryKindRefund    = "refund"
)

// LedgerEntry is an immutable accounting record. Only MetaData and Reconciled
// change after insert.
type LedgerEntry struct {
	ID            string                 `json:"id"`
	TransactionID string                 `json:"transaction_id"`
	BankCode      string                 `json:"bank_code"`
	AccountNumber string                 `json:"account_number"`
	EntryType     EntryType              `json:"entry_type"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      string                 `json:"currency"`
	EntryDate     time.Time              `json:"entry_date"`
	ReferenceID   string                 `json:"reference_id"`
	Description   string                 `json:"description"`
	Reconciled    bool                   `json:"reconciled"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// IsFee reports whether the entry carries the transaction fee.
func (e LedgerEntry) IsFee() bool {
	return e.MetaData != nil && e.MetaData["feeType"] == FeeTypeTransaction
}
