package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SettlementStatus string

const (
	SettlementPending            SettlementStatus = "PENDING"
	SettlementProcessing         SettlementStatus = "PROCESSING"
	SettlementCompleted          SettlementStatus = "COMPLETED"
	SettlementFailed             SettlementStatus = "FAILED"
	SettlementPartiallyCompleted SettlementStatus = "PARTIALLY_COMPLETED"
)

type BankAggregate struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	Count       int             `json:"count"`
}

// SettlementBatch groups settled interbank transactions for end-of-day netting.
type SettlementBatch struct {
	ID                     string                   `json:"id"`
	BatchNumber            string                   `json:"batch_number"`
	Status                 SettlementStatus         `json:"status"`
	TotalAmount            decimal.Decimal          `json:"total_amount"`
	TransactionCount       int                      `json:"transaction_count"`
	SuccessfulTransactions int                      `json:"successful_transactions"`
	FailedTransactions     int                      `json:"failed_transactions"`
	SettlementDate         time.Time                `json:"settlement_date"`
	SettlementReference    string                   `json:"settlement_reference,omitempty"`
	BankSummary            map[string]BankAggregate `json:"bank_summary"`
	FailureReason          string                   `json:"failure_reason,omitempty"`
	MetaData               map[string]interface{}   `json:"meta_data,omitempty"`
	CreatedAt              time.Time                `json:"created_at"`
	UpdatedAt              time.Time                `json:"updated_at"`
	CompletedAt            *time.Time               `json:"completed_at,omitempty"`
}

// SettlementItemResult is the outcome of settling one transaction of a batch.
type SettlementItemResult struct {
	TransactionID string `json:"transaction_id"`
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
}

// Recompute derives the batch totals from its transactions. The bank summary
// is keyed by originator bank code.
func (b *SettlementBatch) Recompute(txns []Transaction) {
	b.TotalAmount = decimal.Zero
	b.TransactionCount = len(txns)
	b.BankSummary = make(map[string]BankAggregate)
	for _, t := range txns {
		b.TotalAmount = b.TotalAmount.Add(t.Amount)
		agg := b.BankSummary[t.OriginatorBankCode]
		agg.TotalAmount = agg.TotalAmount.Add(t.Amount)
		agg.Count++
		b.BankSummary[t.OriginatorBankCode] = agg
	}
}

// ApplyResults counts item outcomes and picks the terminal batch status.
func (b *SettlementBatch) ApplyResults(results []SettlementItemResult) {
	b.SuccessfulTransactions, b.FailedTransactions = 0, 0
	firstFailure := ""
	for _, r := range results {
		if r.Success {
			b.SuccessfulTransactions++
			continue
		}
		b.FailedTransactions++
		if firstFailure == "" {
			firstFailure = r.Message
		}
	}

	switch {
	case b.FailedTransactions == 0:
		b.Status = SettlementCompleted
		b.FailureReason = ""
	case b.SuccessfulTransactions == 0:
		b.Status = SettlementFailed
		b.FailureReason = firstFailure
	default:
		b.Status = SettlementPartiallyCompleted
		b.FailureReason = firstFailure
	}
}
