package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrHoldClosed        = errors.New("frozen funds record is already released")
)

// AccountBalance is the source bank's view of a customer account.
// CurrentBalance always equals AvailableBalance plus ReservedBalance.
type AccountBalance struct {
	AccountID        string          `json:"account_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	ReservedBalance  decimal.Decimal `json:"reserved_balance"`
	PendingCredits   decimal.Decimal `json:"pending_credits"`
	PendingDebits    decimal.Decimal `json:"pending_debits"`
	Currency         string          `json:"currency"`
	LastUpdated      time.Time       `json:"last_updated"`
	CreatedAt        time.Time       `json:"created_at"`
}

// FrozenFunds is a hold placed on an account for one transaction.
type FrozenFunds struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	ExpiresAt     time.Time       `json:"expires_at"`
	Released      bool            `json:"released"`
	Used          bool            `json:"used"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (f *FrozenFunds) IsExpired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && now.After(f.ExpiresAt)
}

func NewAccountBalance(accountID, currency string, opening decimal.Decimal) *AccountBalance {
	now := time.Now()
	return &AccountBalance{
		AccountID:        accountID,
		AvailableBalance: opening,
		CurrentBalance:   opening,
		ReservedBalance:  decimal.Zero,
		PendingCredits:   decimal.Zero,
		PendingDebits:    decimal.Zero,
		Currency:         currency,
		LastUpdated:      now,
		CreatedAt:        now,
	}
}

// CheckInvariant verifies current = available + reserved and that neither
// component is negative.
func (b *AccountBalance) CheckInvariant() error {
	if b.AvailableBalance.IsNegative() {
		return fmt.Errorf("account %s: available balance is negative (%s)", b.AccountID, b.AvailableBalance)
	}
	if b.ReservedBalance.IsNegative() {
		return fmt.Errorf("account %s: reserved balance is negative (%s)", b.AccountID, b.ReservedBalance)
	}
	if !b.CurrentBalance.Equal(b.AvailableBalance.Add(b.ReservedBalance)) {
		return fmt.Errorf("account %s: current %s != available %s + reserved %s", b.AccountID, b.CurrentBalance, b.AvailableBalance, b.ReservedBalance)
	}
	return nil
}

func (b *AccountBalance) HasAvailable(amount decimal.Decimal) bool {
	return b.AvailableBalance.GreaterThanOrEqual(amount)
}

// Freeze moves amount from available to reserved.
func (b *AccountBalance) Freeze(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !b.HasAvailable(amount) {
		return ErrInsufficientFunds
	}
	b.AvailableBalance = b.AvailableBalance.Sub(amount)
	b.ReservedBalance = b.ReservedBalance.Add(amount)
	b.PendingDebits = b.PendingDebits.Add(amount)
	b.touch()
	return nil
}

// Unfreeze returns a held amount to available.
func (b *AccountBalance) Unfreeze(amount decimal.Decimal) error {
	if b.ReservedBalance.LessThan(amount) {
		return fmt.Errorf("account %s: cannot release %s, only %s reserved", b.AccountID, amount, b.ReservedBalance)
	}
	b.AvailableBalance = b.AvailableBalance.Add(amount)
	b.ReservedBalance = b.ReservedBalance.Sub(amount)
	b.PendingDebits = decimal.Max(decimal.Zero, b.PendingDebits.Sub(amount))
	b.touch()
	return nil
}

// ConsumeReserved finalises a held amount as a debit.
func (b *AccountBalance) ConsumeReserved(amount decimal.Decimal) error {
	if b.ReservedBalance.LessThan(amount) {
		return fmt.Errorf("account %s: cannot consume %s, only %s reserved", b.AccountID, amount, b.ReservedBalance)
	}
	b.ReservedBalance = b.ReservedBalance.Sub(amount)
	b.CurrentBalance = b.CurrentBalance.Sub(amount)
	b.PendingDebits = decimal.Max(decimal.Zero, b.PendingDebits.Sub(amount))
	b.touch()
	return nil
}

// Debit takes amount straight from available funds.
func (b *AccountBalance) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !b.HasAvailable(amount) {
		return ErrInsufficientFunds
	}
	b.AvailableBalance = b.AvailableBalance.Sub(amount)
	b.CurrentBalance = b.CurrentBalance.Sub(amount)
	b.touch()
	return nil
}

func (b *AccountBalance) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	b.AvailableBalance = b.AvailableBalance.Add(amount)
	b.CurrentBalance = b.CurrentBalance.Add(amount)
	b.touch()
	return nil
}

func (b *AccountBalance) touch() {
	b.LastUpdated = time.Now()
}
