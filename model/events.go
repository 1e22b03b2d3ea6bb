package model

import "time"

const (
	EventTransactionRecorded           = "transaction.recorded"
	EventTransactionProcessing         = "transaction.processing"
	EventTransactionProcessed          = "transaction.processed"
	EventTransactionProcessingFailed   = "transaction.processing_failed"
	EventTransactionRejected           = "transaction.rejected"
	EventTransactionVerified           = "transaction.verified"
	EventTransactionVerificationFailed = "transaction.verification_failed"
	EventTransactionSettled            = "transaction.settled"
	EventTransactionCancelled          = "transaction.cancelled"
	EventTransactionRefunded           = "transaction.refunded"
	EventTransactionStatusUpdated      = "transaction.status_updated"
	EventSettlementCompleted           = "settlement.completed"
)

// Event is a lifecycle notification for downstream observers.
type Event struct {
	Type          string                 `json:"type"`
	TransactionID string                 `json:"transaction_id,omitempty"`
	ReferenceID   string                 `json:"reference_id,omitempty"`
	Status        string                 `json:"status"`
	Timestamp     time.Time              `json:"timestamp"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

func NewTransactionEvent(eventType string, t *Transaction, data map[string]interface{}) Event {
	return Event{
		Type:          eventType,
		TransactionID: t.ID,
		ReferenceID:   t.ReferenceID,
		Status:        string(t.Status),
		Timestamp:     time.Now().UTC(),
		Data:          data,
	}
}
