package hub

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

const sweepBatchSize = 100

// SweepResult counts what one sweep did.
type SweepResult struct {
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`
}

// SweepStuckTransactions reschedules transactions that stalled mid-flight or
// missed their retry, and fails the ones that spent their retry budget.
func (h *Hub) SweepStuckTransactions(ctx context.Context) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "Sweeping stuck transactions")
	defer span.End()

	var result SweepResult
	now := h.now()

	stuck, err := h.datasource.GetStuckTransactions(ctx, now.Add(-h.cfg.Transaction.Timeout()), sweepBatchSize)
	if err != nil {
		return result, logAndRecordError(span, h.logger, "failed to load stuck transactions", err)
	}
	due, err := h.datasource.GetDueRetries(ctx, now, sweepBatchSize)
	if err != nil {
		return result, logAndRecordError(span, h.logger, "failed to load due retries", err)
	}

	for _, txn := range append(stuck, due...) {
		rescheduled, err := h.sweepOne(ctx, txn.ReferenceID)
		if err != nil {
			h.logger.WithField("reference_id", txn.ReferenceID).WithError(err).Warn("sweep skipped transaction")
			continue
		}
		if rescheduled {
			result.Rescheduled++
		} else {
			result.Failed++
		}
	}

	if result.Rescheduled+result.Failed > 0 {
		h.logger.WithFields(logrus.Fields{"rescheduled": result.Rescheduled, "failed": result.Failed}).Info("sweep completed")
	}
	return result, nil
}

func (h *Hub) sweepOne(ctx context.Context, referenceID string) (bool, error) {
	rescheduled := false
	err := h.withLock(ctx, referenceID, func() error {
		txn, err := h.datasource.GetTransactionByRef(ctx, referenceID)
		if err != nil {
			return err
		}
		if !txn.Processable() {
			return apierror.NewAPIError(apierror.ErrConflict, "transaction moved on since it was swept", nil)
		}
		if txn.RetryCount >= h.cfg.Transaction.MaxRetryAttempts {
			return h.failPermanently(ctx, txn, "Retry budget exhausted", model.EventTransactionProcessingFailed)
		}
		rescheduled = true
		return h.scheduler.ScheduleProcessing(ctx, txn, 0)
	})
	return rescheduled, err
}

// ExpireHold releases a hold whose expiry passed, unless its transaction is
// still heading for settlement.
func (h *Hub) ExpireHold(ctx context.Context, accountID, transactionID string) error {
	ctx, span := tracer.Start(ctx, "Expiring hold")
	defer span.End()

	txn, err := h.datasource.GetTransactionByID(ctx, transactionID)
	switch {
	case apierror.Is(err, apierror.ErrNotFound):
	case err != nil:
		return err
	case txn.Status == model.StatusCancelled, txn.Status == model.StatusPending:
	case txn.Status == model.StatusFailed && !txn.RetryPending():
	default:
		return nil
	}

	log := h.logger.WithFields(logrus.Fields{"account_id": accountID, "transaction_id": transactionID})
	if store, ok := h.funds.(*BalanceStore); ok {
		err = store.ReleaseExpiredHold(ctx, accountID, transactionID)
	} else {
		err = h.funds.Release(ctx, accountID, transactionID)
		if apierror.Is(err, apierror.ErrNotFound) {
			err = nil
		}
	}
	if err != nil {
		span.RecordError(err)
		log.WithError(err).Error("failed to expire hold")
		return err
	}
	log.Info("hold expiry processed")
	return nil
}
