package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

const ledgerColumns = `id, transaction_id, bank_code, account_number, entry_type, amount, currency, entry_date, reference_id, COALESCE(description, ''), reconciled, metadata, created_at`

func scanLedgerEntries(rows *sql.Rows) ([]model.LedgerEntry, error) {
	defer func() { _ = rows.Close() }()

	var out []model.LedgerEntry
	for rows.Next() {
		var (
			e        model.LedgerEntry
			kind     string
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.BankCode, &e.AccountNumber, &kind, &e.Amount, &e.Currency,
			&e.EntryDate, &e.ReferenceID, &e.Description, &e.Reconciled, &metadata, &e.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger entry", err)
		}
		e.EntryType = model.EntryType(kind)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.MetaData); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate ledger entries", err)
	}
	return out, nil
}

// CommitTransactionWithEntries persists the transaction row and appends its
// ledger entries atomically.
func (d Datasource) CommitTransactionWithEntries(ctx context.Context, t *model.Transaction, entries []model.LedgerEntry) error {
	ctx, span := tracer.Start(ctx, "CommitTransactionWithEntries")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err := updateTransaction(ctx, tx, t); err != nil {
		span.RecordError(err)
		return err
	}

	for _, e := range entries {
		metadata, err := json.Marshal(e.MetaData)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
		}
		if e.MetaData == nil {
			metadata = []byte("{}")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO hub.ledger_entries (id, transaction_id, bank_code, account_number, entry_type, amount, currency, entry_date, reference_id, description, reconciled, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			e.ID, e.TransactionID, e.BankCode, e.AccountNumber, string(e.EntryType), e.Amount, e.Currency,
			e.EntryDate, e.ReferenceID, e.Description, e.Reconciled, metadata, e.CreatedAt)
		if err != nil {
			span.RecordError(err)
			return dbError(err, "Failed to post ledger entry")
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	d.evict(ctx, t.ReferenceID)
	return nil
}

// AnnotateEntries merges metadata into every entry of the transaction. Only
// the metadata column is written.
func (d Datasource) AnnotateEntries(ctx context.Context, transactionID string, metadata map[string]interface{}) error {
	patch, err := json.Marshal(metadata)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}
	_, err = d.Conn.ExecContext(ctx, `
		UPDATE hub.ledger_entries SET metadata = metadata || $2::jsonb
		WHERE transaction_id = $1`, transactionID, patch)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to annotate ledger entries", err)
	}
	return nil
}

func (d Datasource) GetLedgerEntriesByTransaction(ctx context.Context, transactionID string) ([]model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+ledgerColumns+` FROM hub.ledger_entries
		WHERE transaction_id = $1 ORDER BY created_at, id`, transactionID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load ledger entries", err)
	}
	return scanLedgerEntries(rows)
}

func (d Datasource) GetLedgerEntriesByBank(ctx context.Context, bankCode string, from, to time.Time) ([]model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+ledgerColumns+` FROM hub.ledger_entries
		WHERE bank_code = $1 AND entry_date >= $2 AND entry_date < $3 ORDER BY entry_date`, bankCode, from, to)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load ledger entries", err)
	}
	return scanLedgerEntries(rows)
}

func (d Datasource) GetLedgerEntriesByAccount(ctx context.Context, account string, from, to time.Time) ([]model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+ledgerColumns+` FROM hub.ledger_entries
		WHERE account_number = $1 AND entry_date >= $2 AND entry_date < $3 ORDER BY entry_date`, account, from, to)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load ledger entries", err)
	}
	return scanLedgerEntries(rows)
}

func (d Datasource) MarkEntriesReconciled(ctx context.Context, transactionIDs []string) (int64, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE hub.ledger_entries SET reconciled = TRUE
		WHERE transaction_id = ANY($1) AND reconciled = FALSE`, pq.Array(transactionIDs))
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reconcile ledger entries", err)
	}
	return res.RowsAffected()
}
