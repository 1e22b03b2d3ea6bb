package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/hub/config"
	"github.com/blnkfinance/hub/database"
	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

// Funds reserves and moves customer money at the source bank. BalanceStore
// implements it in-process and bank.FundsClient over HTTP.
type Funds interface {
	Freeze(ctx context.Context, accountID string, amount decimal.Decimal, transactionID string, expiresAt *time.Time) error
	Release(ctx context.Context, accountID, transactionID string) error
	Debit(ctx context.Context, accountID string, amount decimal.Decimal, transactionID string) error
	Credit(ctx context.Context, accountID string, amount decimal.Decimal) error
	CheckAvailability(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error)
}

// BalanceStore is the source bank's fund reservation engine. Every mutation
// runs under the account's row lock.
type BalanceStore struct {
	datasource   database.IDataSource
	logger       logrus.FieldLogger
	freezeExpiry time.Duration
	now          func() time.Time
}

func NewBalanceStore(ds database.IDataSource, logger logrus.FieldLogger) *BalanceStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BalanceStore{
		datasource:   ds,
		logger:       logger,
		freezeExpiry: time.Duration(config.DEFAULT_FREEZE_EXPIRY_SECONDS) * time.Second,
		now:          time.Now,
	}
}

// OpenAccount creates a balance with an opening amount.
func (s *BalanceStore) OpenAccount(ctx context.Context, accountID, currency string, initial decimal.Decimal) (*model.AccountBalance, error) {
	if initial.IsNegative() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "opening balance cannot be negative", nil)
	}
	if currency == "" {
		currency = model.DefaultCurrency
	}
	b := model.NewAccountBalance(accountID, currency, initial)
	if err := s.datasource.CreateBalance(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BalanceStore) GetBalance(ctx context.Context, accountID string) (*model.AccountBalance, error) {
	return s.datasource.GetBalance(ctx, accountID)
}

func (s *BalanceStore) CheckAvailability(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	b, err := s.datasource.GetBalance(ctx, accountID)
	if err != nil {
		return false, err
	}
	return b.HasAvailable(amount), nil
}

// Freeze reserves amount on the account for transactionID. A second freeze
// for the same pair is a Conflict.
func (s *BalanceStore) Freeze(ctx context.Context, accountID string, amount decimal.Decimal, transactionID string, expiresAt *time.Time) error {
	ctx, span := tracer.Start(ctx, "Freezing funds")
	defer span.End()

	now := s.now()
	expiry := now.Add(s.freezeExpiry)
	if expiresAt != nil {
		expiry = *expiresAt
	}

	err := s.datasource.WithAccountLock(ctx, accountID, func(unit database.AccountTx) error {
		if _, err := unit.Hold(ctx, transactionID); err == nil {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Funds already frozen for transaction '%s'", transactionID), nil)
		} else if !apierror.Is(err, apierror.ErrNotFound) {
			return err
		}

		if err := unit.Balance().Freeze(amount); err != nil {
			return balanceError(err, accountID)
		}
		return unit.InsertHold(ctx, &model.FrozenFunds{
			ID:            model.GenerateUUIDWithSuffix("hold"),
			AccountID:     accountID,
			TransactionID: transactionID,
			Amount:        amount,
			ExpiresAt:     expiry,
			CreatedAt:     now,
		})
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.WithFields(logrus.Fields{"account_id": accountID, "transaction_id": transactionID, "amount": amount.String()}).Info("funds frozen")
	return nil
}

// Release returns the held amount of transactionID to available funds.
func (s *BalanceStore) Release(ctx context.Context, accountID, transactionID string) error {
	ctx, span := tracer.Start(ctx, "Releasing funds")
	defer span.End()

	err := s.datasource.WithAccountLock(ctx, accountID, func(unit database.AccountTx) error {
		hold, err := unit.Hold(ctx, transactionID)
		if err != nil {
			return err
		}
		if hold.Released {
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No active frozen funds for transaction '%s'", transactionID), model.ErrHoldClosed)
		}
		return s.releaseHold(ctx, unit, hold)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.WithFields(logrus.Fields{"account_id": accountID, "transaction_id": transactionID}).Info("funds released")
	return nil
}

// ReleaseExpiredHold releases the hold of transactionID if it has expired and
// is still open. It is a no-op otherwise.
func (s *BalanceStore) ReleaseExpiredHold(ctx context.Context, accountID, transactionID string) error {
	return s.datasource.WithAccountLock(ctx, accountID, func(unit database.AccountTx) error {
		hold, err := unit.Hold(ctx, transactionID)
		if apierror.Is(err, apierror.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if hold.Released || !hold.IsExpired(s.now()) {
			return nil
		}
		s.logger.WithFields(logrus.Fields{"account_id": accountID, "transaction_id": transactionID}).Warn("releasing expired hold")
		return s.releaseHold(ctx, unit, hold)
	})
}

func (s *BalanceStore) releaseHold(ctx context.Context, unit database.AccountTx, hold *model.FrozenFunds) error {
	if err := unit.Balance().Unfreeze(hold.Amount); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Reserved balance is smaller than the hold", err)
	}
	return unit.CloseHold(ctx, hold.ID, false, s.now())
}

// Debit takes money from the account. An open hold for transactionID is
// consumed at its frozen amount and amount is ignored; without one, amount
// comes out of available funds. Debiting a transaction whose hold was
// already used is a no-op.
func (s *BalanceStore) Debit(ctx context.Context, accountID string, amount decimal.Decimal, transactionID string) error {
	ctx, span := tracer.Start(ctx, "Debiting account")
	defer span.End()

	if !amount.IsPositive() {
		return apierror.NewAPIError(apierror.ErrInvalidInput, model.ErrInvalidAmount.Error(), nil)
	}

	err := s.datasource.WithAccountLock(ctx, accountID, func(unit database.AccountTx) error {
		b := unit.Balance()

		hold, err := unit.Hold(ctx, transactionID)
		if err != nil && !apierror.Is(err, apierror.ErrNotFound) {
			return err
		}
		if hold != nil && hold.Used {
			return nil
		}
		if hold == nil || hold.Released {
			return balanceError(b.Debit(amount), accountID)
		}

		if err := b.ConsumeReserved(hold.Amount); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Reserved balance is smaller than the hold", err)
		}
		return unit.CloseHold(ctx, hold.ID, true, s.now())
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.WithFields(logrus.Fields{"account_id": accountID, "transaction_id": transactionID, "amount": amount.String()}).Info("account debited")
	return nil
}

func (s *BalanceStore) Credit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	ctx, span := tracer.Start(ctx, "Crediting account")
	defer span.End()

	err := s.datasource.WithAccountLock(ctx, accountID, func(unit database.AccountTx) error {
		return balanceError(unit.Balance().Credit(amount), accountID)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Settle is the bank side of end-of-day settlement: it consumes the hold
// placed for transactionID provided the amount matches.
func (s *BalanceStore) Settle(ctx context.Context, transactionID, referenceID string, amount decimal.Decimal) (*model.SettleResult, error) {
	ctx, span := tracer.Start(ctx, "Settling transaction")
	defer span.End()

	txn, err := s.datasource.GetTransactionByID(ctx, transactionID)
	if apierror.Is(err, apierror.ErrNotFound) {
		return &model.SettleResult{Success: false, Message: "Transaction not found"}, nil
	}
	if err != nil {
		return nil, err
	}
	if referenceID != "" && txn.ReferenceID != referenceID {
		return &model.SettleResult{Success: false, Message: "Reference mismatch"}, nil
	}

	var result *model.SettleResult
	err = s.datasource.WithAccountLock(ctx, txn.OriginatorAccount, func(unit database.AccountTx) error {
		hold, err := unit.Hold(ctx, transactionID)
		if apierror.Is(err, apierror.ErrNotFound) {
			result = &model.SettleResult{Success: false, Message: "Transaction not found"}
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case hold.Used:
			result = &model.SettleResult{Success: true, Message: "Transaction already settled"}
			return nil
		case hold.Released:
			result = &model.SettleResult{Success: false, Message: "Frozen funds were released"}
			return nil
		case !hold.Amount.Equal(amount):
			result = &model.SettleResult{Success: false, Message: fmt.Sprintf("Amount mismatch: expected %s", hold.Amount)}
			return nil
		}

		if err := unit.Balance().ConsumeReserved(hold.Amount); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Reserved balance is smaller than the hold", err)
		}
		if err := unit.CloseHold(ctx, hold.ID, true, s.now()); err != nil {
			return err
		}
		result = &model.SettleResult{Success: true, Message: "Transaction settled successfully"}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// balanceError maps the arithmetic errors of model.AccountBalance onto the
// error taxonomy. nil passes through.
func balanceError(err error, accountID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrInsufficientFunds):
		return apierror.NewAPIError(apierror.ErrInsufficientFunds, fmt.Sprintf("Insufficient funds in account '%s'", accountID), err)
	case errors.Is(err, model.ErrInvalidAmount):
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	default:
		return apierror.NewAPIError(apierror.ErrInternalServer, err.Error(), err)
	}
}
