package model

import "github.com/shopspring/decimal"

// ProcessRequest is sent to each counter-party during authorization.
type ProcessRequest struct {
	TransactionID    string          `json:"transaction_id"`
	BankCode         string          `json:"bank_code"`
	AccountNumber    string          `json:"account_number"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	ReferenceID      string          `json:"reference_id"`
	VerificationCode string          `json:"verification_code,omitempty"`
	CardNumber       string          `json:"card_number,omitempty"`
	MerchantID       string          `json:"merchant_id,omitempty"`
	TerminalID       string          `json:"terminal_id,omitempty"`
	Signature        string          `json:"signature"`
}

type ProcessResult struct {
	BankReferenceID  string `json:"bank_reference_id"`
	TrackingCode     string `json:"tracking_code,omitempty"`
	VerificationCode string `json:"verification_code,omitempty"`
	Message          string `json:"message,omitempty"`
}

type VerifyRequest struct {
	BankCode         string                 `json:"bank_code"`
	ReferenceID      string                 `json:"reference_id"`
	VerificationCode string                 `json:"verification_code,omitempty"`
	AdditionalData   map[string]interface{} `json:"additional_data,omitempty"`
}

type VerificationResult struct {
	Verified     bool   `json:"verified"`
	Message      string `json:"message,omitempty"`
	TrackingCode string `json:"tracking_code,omitempty"`
}

type SettleRequest struct {
	TransactionID string          `json:"transaction_id"`
	ReferenceID   string          `json:"reference_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type SettleResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PartyVerification is one counter-party's answer during fan-out.
type PartyVerification struct {
	Party  string              `json:"party"`
	Result *VerificationResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// VerificationOutcome is what the hub returns for a verify call.
type VerificationOutcome struct {
	Success      bool                `json:"success"`
	Status       Status              `json:"status"`
	Message      string              `json:"message"`
	TrackingCode string              `json:"tracking_code,omitempty"`
	Parties      []PartyVerification `json:"parties,omitempty"`
	Transaction  *Transaction        `json:"transaction,omitempty"`
}

// CancelOutcome is what the hub returns for a cancel call.
type CancelOutcome struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// FraudResult is the verdict of the pre-authorization gate.
type FraudResult struct {
	IsFraudulent bool     `json:"is_fraudulent"`
	Reason       string   `json:"reason,omitempty"`
	Flags        []string `json:"flags,omitempty"`
}
