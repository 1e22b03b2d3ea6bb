package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/hub/model"
)

type RecordTransaction struct {
	ReferenceID         string                 `json:"reference_id"`
	TransactionDate     *time.Time             `json:"transaction_date,omitempty"`
	OriginatorBankCode  string                 `json:"originator_bank_code"`
	DestinationBankCode string                 `json:"destination_bank_code"`
	OriginatorAccount   string                 `json:"originator_account"`
	DestinationAccount  string                 `json:"destination_account"`
	Amount              decimal.Decimal        `json:"amount"`
	Currency            string                 `json:"currency"`
	TransactionType     string                 `json:"transaction_type"`
	MerchantID          string                 `json:"merchant_id"`
	TerminalID          string                 `json:"terminal_id"`
	CardNumber          string                 `json:"card_number"`
	MetaData            map[string]interface{} `json:"meta_data"`
}

type VerifyTransaction struct {
	BankCode         string                 `json:"bank_code"`
	VerificationCode string                 `json:"verification_code"`
	AdditionalData   map[string]interface{} `json:"additional_data"`
}

type RefundTransaction struct {
	Amount decimal.Decimal `json:"amount"`
}

type UpdateStatus struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func (r *RecordTransaction) ValidateRecordTransaction() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ReferenceID, validation.Required),
		validation.Field(&r.OriginatorBankCode, validation.Required),
		validation.Field(&r.DestinationBankCode, validation.Required),
		validation.Field(&r.OriginatorAccount, validation.Required),
		validation.Field(&r.DestinationAccount, validation.Required),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
	)
}

func (r *RecordTransaction) ToTransaction() *model.Transaction {
	txn := &model.Transaction{
		ReferenceID:         r.ReferenceID,
		OriginatorBankCode:  r.OriginatorBankCode,
		DestinationBankCode: r.DestinationBankCode,
		OriginatorAccount:   r.OriginatorAccount,
		DestinationAccount:  r.DestinationAccount,
		Amount:              r.Amount,
		Currency:            r.Currency,
		TransactionType:     r.TransactionType,
		MerchantID:          r.MerchantID,
		TerminalID:          r.TerminalID,
		CardNumber:          r.CardNumber,
		MetaData:            r.MetaData,
	}
	if r.TransactionDate != nil {
		txn.TransactionDate = *r.TransactionDate
	}
	return txn
}

func (v *VerifyTransaction) ValidateVerifyTransaction() error {
	return validation.ValidateStruct(v,
		validation.Field(&v.BankCode, validation.Required),
	)
}

func (v *VerifyTransaction) ToVerifyRequest(referenceID string) model.VerifyRequest {
	return model.VerifyRequest{
		BankCode:         v.BankCode,
		ReferenceID:      referenceID,
		VerificationCode: v.VerificationCode,
		AdditionalData:   v.AdditionalData,
	}
}

func (r *RefundTransaction) ValidateRefundTransaction() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Amount, validation.By(positiveAmount)),
	)
}

// ValidateUpdateStatus checks the status is known. Whether the move is
// allowed is decided by the hub.
func (u *UpdateStatus) ValidateUpdateStatus() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Status, validation.Required, validation.By(func(value interface{}) error {
			_, err := model.ParseStatus(value.(string))
			return err
		})),
	)
}
