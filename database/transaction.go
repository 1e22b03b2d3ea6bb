package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

const (
	transactionColumns = `id, reference_id, transaction_date, originator_bank_code, destination_bank_code, originator_account, destination_account,
		amount, currency, fee_amount, status, COALESCE(status_detail, ''), retry_count, next_retry_at,
		COALESCE(verification_code, ''), COALESCE(tracking_code, ''), COALESCE(bank_reference_id, ''), funds_frozen, refunded_amount,
		transaction_type, COALESCE(merchant_id, ''), COALESCE(terminal_id, ''), COALESCE(card_number, ''), risk_score,
		COALESCE(settlement_batch_id, ''), COALESCE(meta_data, '{}'::jsonb), created_at, updated_at, settled_at`

	cacheTTL = 10 * time.Minute
)

func transactionCacheKey(referenceID string) string {
	return "hub:txn:" + referenceID
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	t := &model.Transaction{}
	var status string
	var metaDataJSON []byte
	err := row.Scan(&t.ID, &t.ReferenceID, &t.TransactionDate, &t.OriginatorBankCode, &t.DestinationBankCode,
		&t.OriginatorAccount, &t.DestinationAccount, &t.Amount, &t.Currency, &t.FeeAmount, &status, &t.StatusDetail,
		&t.RetryCount, &t.NextRetryAt, &t.VerificationCode, &t.TrackingCode, &t.BankReferenceID, &t.FundsFrozen,
		&t.RefundedAmount, &t.TransactionType, &t.MerchantID, &t.TerminalID, &t.CardNumber, &t.RiskScore,
		&t.SettlementBatchID, &metaDataJSON, &t.CreatedAt, &t.UpdatedAt, &t.SettledAt)
	if err != nil {
		return nil, err
	}
	t.Status = model.Status(status)
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &t.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return t, nil
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	defer func() { _ = rows.Close() }()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate transactions", err)
	}
	return out, nil
}

func (d Datasource) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	metaDataJSON, err := json.Marshal(t.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO hub.transactions (id, reference_id, transaction_date, originator_bank_code, destination_bank_code,
			originator_account, destination_account, amount, currency, fee_amount, status, status_detail, retry_count,
			funds_frozen, refunded_amount, transaction_type, merchant_id, terminal_id, card_number, risk_score,
			meta_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		t.ID, t.ReferenceID, t.TransactionDate, t.OriginatorBankCode, t.DestinationBankCode,
		t.OriginatorAccount, t.DestinationAccount, t.Amount, t.Currency, t.FeeAmount, string(t.Status), nullString(t.StatusDetail), t.RetryCount,
		t.FundsFrozen, t.RefundedAmount, t.TransactionType, nullString(t.MerchantID), nullString(t.TerminalID), nullString(t.CardNumber), t.RiskScore,
		metaDataJSON, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return dbError(err, fmt.Sprintf("Failed to record transaction '%s'", t.ReferenceID))
	}
	return nil
}

func (d Datasource) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "GetTransactionByID")
	defer span.End()

	t, err := scanTransaction(d.Conn.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM hub.transactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return t, nil
}

// GetTransactionByRef serves final transactions from the cache when one is
// configured. Transactions that can still change are always read from the
// database.
func (d Datasource) GetTransactionByRef(ctx context.Context, referenceID string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "GetTransactionByRef")
	defer span.End()

	if d.Cache != nil {
		var cached model.Transaction
		if err := d.Cache.Get(ctx, transactionCacheKey(referenceID), &cached); err == nil && cached.ID != "" {
			return &cached, nil
		}
	}

	t, err := scanTransaction(d.Conn.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM hub.transactions WHERE reference_id = $1`, referenceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with reference '%s' not found", referenceID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}

	if d.Cache != nil && cacheable(t) {
		_ = d.Cache.Set(ctx, transactionCacheKey(referenceID), t, cacheTTL)
	}
	return t, nil
}

// cacheable reports whether no transition can leave t.
func cacheable(t *model.Transaction) bool {
	return t.Status.IsTerminal() && !t.Status.Refundable() && !t.RetryPending()
}

func (d Datasource) TransactionExistsByRef(ctx context.Context, referenceID string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM hub.transactions WHERE reference_id = $1)`, referenceID).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check if transaction exists", err)
	}
	return exists, nil
}

const updateTransactionQuery = `
	UPDATE hub.transactions
	SET status = $2, status_detail = $3, retry_count = $4, next_retry_at = $5, verification_code = $6,
		tracking_code = $7, bank_reference_id = $8, funds_frozen = $9, refunded_amount = $10, risk_score = $11,
		settlement_batch_id = $12, meta_data = $13, updated_at = $14, settled_at = $15
	WHERE id = $1`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func updateTransaction(ctx context.Context, db execer, t *model.Transaction) error {
	metaDataJSON, err := json.Marshal(t.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	res, err := db.ExecContext(ctx, updateTransactionQuery,
		t.ID, string(t.Status), nullString(t.StatusDetail), t.RetryCount, t.NextRetryAt, nullString(t.VerificationCode),
		nullString(t.TrackingCode), nullString(t.BankReferenceID), t.FundsFrozen, t.RefundedAmount, t.RiskScore,
		nullString(t.SettlementBatchID), metaDataJSON, t.UpdatedAt, t.SettledAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", t.ID), nil)
	}
	return nil
}

func (d Datasource) UpdateTransaction(ctx context.Context, t *model.Transaction) error {
	ctx, span := tracer.Start(ctx, "UpdateTransaction")
	defer span.End()

	if err := updateTransaction(ctx, d.Conn, t); err != nil {
		span.RecordError(err)
		return err
	}
	d.evict(ctx, t.ReferenceID)
	return nil
}

func (d Datasource) evict(ctx context.Context, referenceID string) {
	if d.Cache != nil {
		_ = d.Cache.Delete(ctx, transactionCacheKey(referenceID))
	}
}

func (d Datasource) ListTransactions(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "ListTransactions")
	defer span.End()

	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.BankCode != "" {
		args = append(args, f.BankCode)
		conds = append(conds, fmt.Sprintf("(originator_bank_code = $%[1]d OR destination_bank_code = $%[1]d)", len(args)))
	}
	if f.Account != "" {
		args = append(args, f.Account)
		conds = append(conds, fmt.Sprintf("(originator_account = $%[1]d OR destination_account = $%[1]d)", len(args)))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var q strings.Builder
	q.WriteString(`SELECT ` + transactionColumns + ` FROM hub.transactions`)
	if len(conds) > 0 {
		q.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	args = append(args, limit, f.Offset)
	fmt.Fprintf(&q, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := d.Conn.QueryContext(ctx, q.String(), args...)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list transactions", err)
	}
	return scanTransactions(rows)
}

// GetAccountActivity counts the account's outgoing transactions since the
// given time, ignoring failed and cancelled ones and the excluded id.
func (d Datasource) GetAccountActivity(ctx context.Context, account string, since time.Time, excludeID string) (int, decimal.Decimal, error) {
	var (
		count int
		total decimal.Decimal
	)
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM hub.transactions
		WHERE originator_account = $1 AND created_at >= $2 AND id <> $3 AND status NOT IN ('FAILED', 'CANCELLED')`,
		account, since, excludeID).Scan(&count, &total)
	if err != nil {
		return 0, decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load account activity", err)
	}
	return count, total, nil
}

func (d Datasource) CountFailedTransactions(ctx context.Context, account string, since time.Time) (int, error) {
	var count int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM hub.transactions
		WHERE originator_account = $1 AND status = 'FAILED' AND updated_at >= $2`, account, since).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count failed transactions", err)
	}
	return count, nil
}

func (d Datasource) GetStuckTransactions(ctx context.Context, updatedBefore time.Time, limit int) ([]model.Transaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM hub.transactions
		WHERE status IN ('PENDING', 'PROCESSING') AND updated_at < $1
		ORDER BY updated_at LIMIT $2`, updatedBefore, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load stuck transactions", err)
	}
	return scanTransactions(rows)
}

func (d Datasource) GetDueRetries(ctx context.Context, dueBefore time.Time, limit int) ([]model.Transaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM hub.transactions
		WHERE status = 'FAILED' AND next_retry_at IS NOT NULL AND next_retry_at < $1
		ORDER BY next_retry_at LIMIT $2`, dueBefore, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load due retries", err)
	}
	return scanTransactions(rows)
}

func (d Datasource) GetSettledUnbatched(ctx context.Context, from, to time.Time) ([]model.Transaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM hub.transactions
		WHERE status = 'SETTLED' AND settlement_batch_id IS NULL AND settled_at >= $1 AND settled_at < $2
		ORDER BY settled_at`, from, to)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load settled transactions", err)
	}
	return scanTransactions(rows)
}
