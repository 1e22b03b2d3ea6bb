package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

const batchColumns = `id, batch_number, status, total_amount, transaction_count, successful_transactions, failed_transactions,
	settlement_date, COALESCE(settlement_reference, ''), COALESCE(bank_summary, '{}'::jsonb), COALESCE(failure_reason, ''),
	COALESCE(meta_data, '{}'::jsonb), created_at, updated_at, completed_at`

func scanBatch(row rowScanner) (*model.SettlementBatch, error) {
	var (
		b                 model.SettlementBatch
		status            string
		summary, metadata []byte
	)
	err := row.Scan(&b.ID, &b.BatchNumber, &status, &b.TotalAmount, &b.TransactionCount, &b.SuccessfulTransactions,
		&b.FailedTransactions, &b.SettlementDate, &b.SettlementReference, &summary, &b.FailureReason, &metadata,
		&b.CreatedAt, &b.UpdatedAt, &b.CompletedAt)
	if err != nil {
		return nil, err
	}
	b.Status = model.SettlementStatus(status)
	if err := json.Unmarshal(summary, &b.BankSummary); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &b.MetaData); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateSettlementBatch inserts the batch and claims the given transactions
// for it. Fails with a conflict if any transaction was claimed by another batch.
func (d Datasource) CreateSettlementBatch(ctx context.Context, b *model.SettlementBatch, transactionIDs []string) error {
	ctx, span := tracer.Start(ctx, "CreateSettlementBatch")
	defer span.End()

	summary, err := json.Marshal(b.BankSummary)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal bank summary", err)
	}
	metadata, err := json.Marshal(b.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO hub.settlement_batches (id, batch_number, status, total_amount, transaction_count, successful_transactions,
			failed_transactions, settlement_date, bank_summary, meta_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7, $8, $9, $10)`,
		b.ID, b.BatchNumber, string(b.Status), b.TotalAmount, b.TransactionCount, b.SettlementDate, summary, metadata, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return dbError(err, fmt.Sprintf("Failed to create settlement batch '%s'", b.BatchNumber))
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE hub.transactions SET settlement_batch_id = $1, updated_at = $2
		WHERE id = ANY($3) AND settlement_batch_id IS NULL`, b.ID, b.UpdatedAt, pq.Array(transactionIDs))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to assign transactions to batch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if n != int64(len(transactionIDs)) {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%d of %d transactions were already batched", int64(len(transactionIDs))-n, len(transactionIDs)), nil)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

func (d Datasource) GetSettlementBatch(ctx context.Context, id string) (*model.SettlementBatch, error) {
	b, err := scanBatch(d.Conn.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM hub.settlement_batches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Settlement batch '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve settlement batch", err)
	}
	return b, nil
}

func (d Datasource) GetBatchTransactions(ctx context.Context, batchID string) ([]model.Transaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM hub.transactions
		WHERE settlement_batch_id = $1 ORDER BY settled_at`, batchID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load batch transactions", err)
	}
	return scanTransactions(rows)
}

func (d Datasource) UpdateSettlementBatch(ctx context.Context, b *model.SettlementBatch) error {
	summary, err := json.Marshal(b.BankSummary)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal bank summary", err)
	}
	metadata, err := json.Marshal(b.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE hub.settlement_batches
		SET status = $2, total_amount = $3, transaction_count = $4, successful_transactions = $5, failed_transactions = $6,
			settlement_reference = $7, bank_summary = $8, failure_reason = $9, meta_data = $10, updated_at = $11, completed_at = $12
		WHERE id = $1`,
		b.ID, string(b.Status), b.TotalAmount, b.TransactionCount, b.SuccessfulTransactions, b.FailedTransactions,
		nullString(b.SettlementReference), summary, nullString(b.FailureReason), metadata, b.UpdatedAt, b.CompletedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update settlement batch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Settlement batch '%s' not found", b.ID), nil)
	}
	return nil
}

func (d Datasource) ListSettlementBatches(ctx context.Context, limit, offset int) ([]model.SettlementBatch, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+batchColumns+` FROM hub.settlement_batches
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list settlement batches", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.SettlementBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan settlement batch", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate settlement batches", err)
	}
	return out, nil
}
