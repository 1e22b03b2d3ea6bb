package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

const (
	balanceColumns = `account_id, available_balance, current_balance, reserved_balance, pending_credits, pending_debits, currency, last_updated, created_at`
	holdColumns    = `id, account_id, transaction_id, amount, expires_at, released, used, released_at, created_at`
)

func scanBalance(row rowScanner) (*model.AccountBalance, error) {
	b := &model.AccountBalance{}
	err := row.Scan(&b.AccountID, &b.AvailableBalance, &b.CurrentBalance, &b.ReservedBalance,
		&b.PendingCredits, &b.PendingDebits, &b.Currency, &b.LastUpdated, &b.CreatedAt)
	return b, err
}

func scanHold(row rowScanner) (*model.FrozenFunds, error) {
	h := &model.FrozenFunds{}
	err := row.Scan(&h.ID, &h.AccountID, &h.TransactionID, &h.Amount, &h.ExpiresAt,
		&h.Released, &h.Used, &h.ReleasedAt, &h.CreatedAt)
	return h, err
}

func (d Datasource) CreateBalance(ctx context.Context, b *model.AccountBalance) error {
	ctx, span := tracer.Start(ctx, "CreateBalance")
	defer span.End()

	if err := b.CheckInvariant(); err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO hub.balances (`+balanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.AccountID, b.AvailableBalance, b.CurrentBalance, b.ReservedBalance,
		b.PendingCredits, b.PendingDebits, b.Currency, b.LastUpdated, b.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return dbError(err, fmt.Sprintf("Failed to create balance for account '%s'", b.AccountID))
	}
	return nil
}

func (d Datasource) GetBalance(ctx context.Context, accountID string) (*model.AccountBalance, error) {
	ctx, span := tracer.Start(ctx, "GetBalance")
	defer span.End()

	b, err := scanBalance(d.Conn.QueryRowContext(ctx, `SELECT `+balanceColumns+` FROM hub.balances WHERE account_id = $1`, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account '%s' not found", accountID), err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve balance", err)
	}
	return b, nil
}

func (d Datasource) GetHold(ctx context.Context, accountID, transactionID string) (*model.FrozenFunds, error) {
	h, err := scanHold(d.Conn.QueryRowContext(ctx, `
		SELECT `+holdColumns+` FROM hub.frozen_funds
		WHERE account_id = $1 AND transaction_id = $2`, accountID, transactionID))
	if err != nil {
		return nil, holdError(err, accountID, transactionID)
	}
	return h, nil
}

func holdError(err error, accountID, transactionID string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No frozen funds for transaction '%s' on account '%s'", transactionID, accountID), err)
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve frozen funds", err)
}

// WithAccountLock runs fn while holding the row lock on the account's balance.
// The balance is persisted only if fn succeeds, changed it, and it still
// satisfies the balance invariant. Any other outcome rolls the unit back.
func (d Datasource) WithAccountLock(ctx context.Context, accountID string, fn func(AccountTx) error) error {
	ctx, span := tracer.Start(ctx, "WithAccountLock")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	b, err := scanBalance(tx.QueryRowContext(ctx, `SELECT `+balanceColumns+` FROM hub.balances WHERE account_id = $1 FOR UPDATE`, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account '%s' not found", accountID), err)
		}
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock balance", err)
	}

	before := *b
	unit := &accountTx{tx: tx, balance: b}
	if err := fn(unit); err != nil {
		return err
	}

	if balanceChanged(&before, b) {
		if err := b.CheckInvariant(); err != nil {
			span.RecordError(err)
			return apierror.NewAPIError(apierror.ErrInternalServer, "Balance invariant violated", err)
		}
		if err := updateBalance(ctx, tx, b); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

func balanceChanged(a, b *model.AccountBalance) bool {
	return !a.AvailableBalance.Equal(b.AvailableBalance) ||
		!a.CurrentBalance.Equal(b.CurrentBalance) ||
		!a.ReservedBalance.Equal(b.ReservedBalance) ||
		!a.PendingCredits.Equal(b.PendingCredits) ||
		!a.PendingDebits.Equal(b.PendingDebits)
}

func updateBalance(ctx context.Context, tx *sql.Tx, b *model.AccountBalance) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE hub.balances
		SET available_balance = $2, current_balance = $3, reserved_balance = $4, pending_credits = $5, pending_debits = $6, last_updated = $7
		WHERE account_id = $1`,
		b.AccountID, b.AvailableBalance, b.CurrentBalance, b.ReservedBalance, b.PendingCredits, b.PendingDebits, b.LastUpdated)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update balance", err)
	}
	return nil
}

type accountTx struct {
	tx      *sql.Tx
	balance *model.AccountBalance
}

func (a *accountTx) Balance() *model.AccountBalance {
	return a.balance
}

func (a *accountTx) Hold(ctx context.Context, transactionID string) (*model.FrozenFunds, error) {
	h, err := scanHold(a.tx.QueryRowContext(ctx, `
		SELECT `+holdColumns+` FROM hub.frozen_funds
		WHERE account_id = $1 AND transaction_id = $2
		FOR UPDATE`, a.balance.AccountID, transactionID))
	if err != nil {
		return nil, holdError(err, a.balance.AccountID, transactionID)
	}
	return h, nil
}

func (a *accountTx) InsertHold(ctx context.Context, h *model.FrozenFunds) error {
	_, err := a.tx.ExecContext(ctx, `
		INSERT INTO hub.frozen_funds (id, account_id, transaction_id, amount, expires_at, released, used, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, $6)`,
		h.ID, h.AccountID, h.TransactionID, h.Amount, h.ExpiresAt, h.CreatedAt)
	if err != nil {
		return dbError(err, fmt.Sprintf("Failed to freeze funds for transaction '%s'", h.TransactionID))
	}
	return nil
}

func (a *accountTx) CloseHold(ctx context.Context, holdID string, used bool, at time.Time) error {
	res, err := a.tx.ExecContext(ctx, `
		UPDATE hub.frozen_funds
		SET released = TRUE, used = $2, released_at = $3
		WHERE id = $1 AND released = FALSE`, holdID, used, at)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to close frozen funds", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Frozen funds '%s' already released", holdID), model.ErrHoldClosed)
	}
	return nil
}
