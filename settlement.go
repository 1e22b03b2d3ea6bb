package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

const settlementConcurrency = 4

// settlementReport is what gets archived for each processed batch.
type settlementReport struct {
	Batch   *model.SettlementBatch       `json:"batch"`
	Results []model.SettlementItemResult `json:"results"`
}

// CreateSettlementBatch groups the day's settled, unbatched transactions.
func (h *Hub) CreateSettlementBatch(ctx context.Context, settlementDate time.Time) (*model.SettlementBatch, error) {
	ctx, span := tracer.Start(ctx, "Creating settlement batch")
	defer span.End()

	from := time.Date(settlementDate.Year(), settlementDate.Month(), settlementDate.Day(), 0, 0, 0, 0, settlementDate.Location())
	to := from.AddDate(0, 0, 1)

	txns, err := h.datasource.GetSettledUnbatched(ctx, from, to)
	if err != nil {
		return nil, logAndRecordError(span, h.logger, "failed to load settled transactions", err)
	}
	if len(txns) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("No settled transactions to batch for %s", from.Format("2006-01-02")), nil)
	}

	now := h.now()
	batch := &model.SettlementBatch{
		ID:             model.GenerateUUIDWithSuffix("batch"),
		BatchNumber:    batchNumber(from),
		Status:         model.SettlementPending,
		SettlementDate: from,
		MetaData:       map[string]interface{}{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	batch.Recompute(txns)

	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}
	if err := h.datasource.CreateSettlementBatch(ctx, batch, ids); err != nil {
		return nil, logAndRecordError(span, h.logger, "failed to create settlement batch", err)
	}

	h.logger.WithFields(logrus.Fields{"batch_number": batch.BatchNumber, "transactions": batch.TransactionCount}).Info("settlement batch created")
	return batch, nil
}

func batchNumber(day time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("STL-%s-%s", day.Format("20060102"), suffix)
}

// ProcessSettlementBatch settles every transaction of a PENDING batch with
// the network and records the outcome. Finished batches are returned as is.
func (h *Hub) ProcessSettlementBatch(ctx context.Context, batchID string) (*model.SettlementBatch, error) {
	ctx, span := tracer.Start(ctx, "Processing settlement batch")
	defer span.End()

	var out *model.SettlementBatch
	err := h.withLock(ctx, "settlement:"+batchID, func() error {
		batch, err := h.datasource.GetSettlementBatch(ctx, batchID)
		if err != nil {
			return err
		}
		switch batch.Status {
		case model.SettlementPending:
		case model.SettlementProcessing:
			return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Batch %s is already processing", batch.BatchNumber), nil)
		default:
			out = batch
			return nil
		}

		batch.Status = model.SettlementProcessing
		batch.UpdatedAt = h.now()
		if err := h.datasource.UpdateSettlementBatch(ctx, batch); err != nil {
			return err
		}

		txns, err := h.datasource.GetBatchTransactions(ctx, batch.ID)
		if err != nil {
			return err
		}
		results := h.settleAll(ctx, txns)
		h.completeBatch(ctx, batch, txns, results)

		if err := h.datasource.UpdateSettlementBatch(ctx, batch); err != nil {
			return err
		}
		h.publish(ctx, model.Event{
			Type:      model.EventSettlementCompleted,
			Status:    string(batch.Status),
			Timestamp: h.now().UTC(),
			Data: map[string]interface{}{
				"batch_id":     batch.ID,
				"batch_number": batch.BatchNumber,
				"successful":   batch.SuccessfulTransactions,
				"failed":       batch.FailedTransactions,
				"total_amount": batch.TotalAmount.String(),
			},
		})
		out = batch
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

func (h *Hub) settleAll(ctx context.Context, txns []model.Transaction) []model.SettlementItemResult {
	results := make([]model.SettlementItemResult, len(txns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(settlementConcurrency)
	for i := range txns {
		i := i
		g.Go(func() error {
			t := txns[i]
			results[i] = model.SettlementItemResult{TransactionID: t.ID}
			res, err := h.network.SettleTransaction(gctx, model.SettleRequest{
				TransactionID: t.ID,
				ReferenceID:   t.ReferenceID,
				Amount:        t.Amount,
			})
			switch {
			case err != nil:
				results[i].Message = err.Error()
			case res == nil:
				results[i].Message = "empty settlement response"
			default:
				results[i].Success = res.Success
				results[i].Message = res.Message
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (h *Hub) completeBatch(ctx context.Context, batch *model.SettlementBatch, txns []model.Transaction, results []model.SettlementItemResult) {
	log := h.logger.WithField("batch_number", batch.BatchNumber)
	now := h.now()

	batch.Recompute(txns)
	batch.ApplyResults(results)
	batch.SettlementReference = fmt.Sprintf("%s-%d", batch.BatchNumber, now.Unix())
	batch.CompletedAt = &now
	batch.UpdatedAt = now
	if batch.MetaData == nil {
		batch.MetaData = map[string]interface{}{}
	}

	var settled, failed []string
	for _, r := range results {
		if r.Success {
			settled = append(settled, r.TransactionID)
		} else {
			failed = append(failed, r.TransactionID)
		}
	}
	if len(failed) > 0 {
		batch.MetaData["failed_transactions"] = failed
	}
	if len(settled) > 0 {
		n, err := h.datasource.MarkEntriesReconciled(ctx, settled)
		if err != nil {
			log.WithError(err).Warn("failed to mark ledger entries reconciled")
		} else {
			batch.MetaData["reconciled_entries"] = n
		}
	}

	if h.archiver != nil {
		body, err := json.Marshal(settlementReport{Batch: batch, Results: results})
		if err == nil {
			key := fmt.Sprintf("settlements/%s/%s.json", batch.SettlementDate.Format("2006-01-02"), batch.BatchNumber)
			var location string
			location, err = h.archiver.Archive(ctx, key, body)
			if err == nil {
				batch.MetaData["report_location"] = location
			}
		}
		if err != nil {
			log.WithError(err).Warn("failed to archive settlement report")
		}
	}

	log.WithFields(logrus.Fields{
		"status":     batch.Status,
		"successful": batch.SuccessfulTransactions,
		"failed":     batch.FailedTransactions,
	}).Info("settlement batch processed")
}

// RunDailySettlement batches and settles the given day. A day with nothing
// to settle is not an error.
func (h *Hub) RunDailySettlement(ctx context.Context, day time.Time) (*model.SettlementBatch, error) {
	batch, err := h.CreateSettlementBatch(ctx, day)
	if apierror.Is(err, apierror.ErrBadRequest) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h.ProcessSettlementBatch(ctx, batch.ID)
}

func (h *Hub) GetSettlementBatch(ctx context.Context, id string) (*model.SettlementBatch, error) {
	return h.datasource.GetSettlementBatch(ctx, id)
}

func (h *Hub) ListSettlementBatches(ctx context.Context, limit, offset int) ([]model.SettlementBatch, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return h.datasource.ListSettlementBatches(ctx, limit, offset)
}
