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
package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

const dateFormat = "2006-01-02"

type OpenBalance struct {
	AccountID      string          `json:"account_id"`
	Currency       string          `json:"currency"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type FreezeFunds struct {
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}

// HoldAction is the body of unfreeze, debit and credit calls. Which fields
// are required depends on the action.
type HoldAction struct {
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
}

type Settle struct {
	TransactionID string          `json:"transaction_id"`
	ReferenceID   string          `json:"reference_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type CreateSettlementBatch struct {
	SettlementDate string `json:"settlement_date"`
}

func positiveAmount(value interface{}) error {
	amount, _ := value.(decimal.Decimal)
	if !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

func validateDateFormat(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(dateFormat, s); err != nil {
		return errors.New("please format the date as 'YYYY-MM-DD' (e.g., 2024-06-12)")
	}
	return nil
}

func (o *OpenBalance) ValidateOpenBalance() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.AccountID, validation.Required, validation.Length(10, 26)),
		validation.Field(&o.Currency, validation.Length(3, 3)),
		validation.Field(&o.OpeningBalance, validation.By(func(value interface{}) error {
			if value.(decimal.Decimal).IsNegative() {
				return errors.New("cannot be negative")
			}
			return nil
		})),
	)
}

func (f *FreezeFunds) ValidateFreezeFunds() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Amount, validation.By(positiveAmount)),
		validation.Field(&f.TransactionID, validation.Required),
	)
}

func (h *HoldAction) ValidateRelease() error {
	return validation.ValidateStruct(h,
		validation.Field(&h.TransactionID, validation.Required),
	)
}

// ValidateAmount covers debit and credit. A debit without a transaction id
// takes the funds from the available balance.
func (h *HoldAction) ValidateAmount() error {
	return validation.ValidateStruct(h,
		validation.Field(&h.Amount, validation.By(positiveAmount)),
	)
}

func (s *Settle) ValidateSettle() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.TransactionID, validation.Required),
		validation.Field(&s.ReferenceID, validation.Required),
		validation.Field(&s.Amount, validation.By(positiveAmount)),
	)
}

func (c *CreateSettlementBatch) ValidateCreateSettlementBatch() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SettlementDate, validation.By(validateDateFormat)),
	)
}

// Date returns the requested settlement day, or the day before now when none
// was given.
func (c *CreateSettlementBatch) Date(now time.Time) time.Time {
	if c.SettlementDate == "" {
		return now.UTC().AddDate(0, 0, -1)
	}
	d, _ := time.Parse(dateFormat, c.SettlementDate)
	return d
}
