package model

import (
	"encoding/json"
	"errors"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

const (
	TypeNormal     = "NORMAL"
	TypeCommercial = "COMMERCIAL"

	DefaultCurrency = "IRR"
)

var (
	referencePattern = regexp.MustCompile(`^[A-Za-z0-9-]{8,30}$`)
	accountPattern   = regexp.MustCompile(`^[A-Za-z0-9-]{10,26}$`)

	// MaxTransferSize is the largest amount a single transaction may carry.
	MaxTransferSize = decimal.NewFromInt(10_000_000_000)
)

// Transaction is the hub's projection of a cross-bank payment.
type Transaction struct {
	ID                  string                 `json:"id"`
	ReferenceID         string                 `json:"reference_id"`
	TransactionDate     time.Time              `json:"transaction_date"`
	OriginatorBankCode  string                 `json:"originator_bank_code"`
	DestinationBankCode string                 `json:"destination_bank_code"`
	OriginatorAccount   string                 `json:"originator_account"`
	DestinationAccount  string                 `json:"destination_account"`
	Amount              decimal.Decimal        `json:"amount"`
	Currency            string                 `json:"currency"`
	FeeAmount           decimal.Decimal        `json:"fee_amount"`
	Status              Status                 `json:"status"`
	StatusDetail        string                 `json:"status_detail,omitempty"`
	RetryCount          int                    `json:"retry_count"`
	NextRetryAt         *time.Time             `json:"next_retry_at,omitempty"`
	VerificationCode    string                 `json:"verification_code,omitempty"`
	TrackingCode        string                 `json:"tracking_code,omitempty"`
	BankReferenceID     string                 `json:"bank_reference_id,omitempty"`
	FundsFrozen         bool                   `json:"funds_frozen"`
	RefundedAmount      decimal.Decimal        `json:"refunded_amount"`
	TransactionType     string                 `json:"transaction_type"`
	MerchantID          string                 `json:"merchant_id,omitempty"`
	TerminalID          string                 `json:"terminal_id,omitempty"`
	CardNumber          string                 `json:"card_number,omitempty"`
	RiskScore           int                    `json:"risk_score"`
	SettlementBatchID   string                 `json:"settlement_batch_id,omitempty"`
	MetaData            map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
	SettledAt           *time.Time             `json:"settled_at,omitempty"`
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	Status   Status
	BankCode string
	Account  string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

func (t *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// RetryPending reports whether a failed attempt is waiting on a scheduled retry.
func (t *Transaction) RetryPending() bool {
	return t.Status == StatusFailed && t.NextRetryAt != nil
}

// Processable reports whether ProcessTransaction may run side effects.
func (t *Transaction) Processable() bool {
	return t.Status == StatusPending || t.Status == StatusProcessing || t.RetryPending()
}

// CardBIN returns the bank identification number of the card, if any.
func (t *Transaction) CardBIN() string {
	if len(t.CardNumber) < 6 {
		return ""
	}
	return t.CardNumber[:6]
}

// RefundableAmount is what is left to refund.
func (t *Transaction) RefundableAmount() decimal.Decimal {
	return t.Amount.Sub(t.RefundedAmount)
}

// ApplyDefaults fills the optional fields of a freshly submitted transaction.
func (t *Transaction) ApplyDefaults(now time.Time) {
	if t.Currency == "" {
		t.Currency = DefaultCurrency
	}
	if t.TransactionType == "" {
		t.TransactionType = TypeNormal
	}
	if t.TransactionDate.IsZero() {
		t.TransactionDate = now
	}
	if t.MetaData == nil {
		t.MetaData = make(map[string]interface{})
	}
}

// Validate checks the submission rules enforced before a transaction is recorded.
func (t *Transaction) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.ReferenceID, validation.Required, validation.Match(referencePattern).Error("must be 8-30 alphanumeric characters or dashes")),
		validation.Field(&t.OriginatorBankCode, validation.Required, validation.By(bankCodeRule)),
		validation.Field(&t.DestinationBankCode, validation.Required, validation.By(bankCodeRule)),
		validation.Field(&t.OriginatorAccount, validation.Required, validation.Match(accountPattern).Error("must be 10-26 alphanumeric characters or dashes")),
		validation.Field(&t.DestinationAccount, validation.Required, validation.Match(accountPattern).Error("must be 10-26 alphanumeric characters or dashes"),
			validation.By(func(value interface{}) error {
				if value.(string) == t.OriginatorAccount {
					return errors.New("must differ from the originator account")
				}
				return nil
			})),
		validation.Field(&t.Amount, validation.By(amountRule)),
		validation.Field(&t.TransactionType, validation.In(TypeNormal, TypeCommercial)),
		validation.Field(&t.MerchantID, validation.When(t.TransactionType == TypeCommercial, validation.Required)),
	)
}

func bankCodeRule(value interface{}) error {
	code, _ := value.(string)
	if !IsValidBankCode(code) {
		return errors.New("is not a recognised bank code")
	}
	return nil
}

func amountRule(value interface{}) error {
	amount, _ := value.(decimal.Decimal)
	if !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	if amount.GreaterThan(MaxTransferSize) {
		return errors.New("exceeds the maximum transaction amount")
	}
	return nil
}
