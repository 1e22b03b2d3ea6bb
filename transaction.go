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

package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

// RecordTransaction validates, scores and stores a new transaction as
// PENDING, then schedules it for processing.
func (h *Hub) RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Recording transaction")
	defer span.End()

	now := h.now()
	txn.ApplyDefaults(now)
	if err := txn.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Transaction validation failed", err)
	}

	exists, err := h.datasource.TransactionExistsByRef(ctx, txn.ReferenceID)
	if err != nil {
		return nil, logAndRecordError(span, h.logger, "reference check failed", err)
	}
	if exists {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction with reference '%s' already exists", txn.ReferenceID), nil)
	}

	log := h.logger.WithField("reference_id", txn.ReferenceID)

	risk := model.AssessRisk(txn, now)
	txn.RiskScore = risk.Score
	if len(risk.Factors) > 0 {
		txn.MetaData["risk_factors"] = risk.Factors
	}
	if risk.HighRisk() {
		log.WithFields(logrus.Fields{"risk_score": risk.Score, "factors": risk.Factors}).Warn("high risk transaction recorded")
	}

	txn.FeeAmount = model.CalculateFee(txn.Amount)
	txn.MetaData["fee_policy_version"] = model.FeePolicyVersion

	txn.ID = model.GenerateUUIDWithSuffix("txn")
	txn.Status = model.StatusPending
	txn.StatusDetail = "Transaction recorded"
	txn.RetryCount = 0
	txn.NextRetryAt = nil
	txn.FundsFrozen = false
	txn.RefundedAmount = decimal.Zero
	txn.CreatedAt = now
	txn.UpdatedAt = now

	if err := h.datasource.CreateTransaction(ctx, txn); err != nil {
		return nil, logAndRecordError(span, log, "failed to record transaction", err)
	}
	log.WithField("amount", txn.Amount.String()).Info("transaction recorded")

	h.emit(ctx, model.EventTransactionRecorded, txn, map[string]interface{}{"fee_amount": txn.FeeAmount.String(), "risk_score": txn.RiskScore})
	if err := h.scheduler.ScheduleProcessing(ctx, txn, 0); err != nil {
		log.WithError(err).Warn("failed to schedule processing, the sweep will pick it up")
	}
	return txn, nil
}

// ProcessTransaction runs one authorization attempt. Transactions past
// authorization are returned unchanged; permanently failed or cancelled
// ones are rejected. A failed attempt is not an error: the returned
// transaction carries the outcome.
func (h *Hub) ProcessTransaction(ctx context.Context, referenceID string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Processing transaction")
	defer span.End()

	var out *model.Transaction
	err := h.withLock(ctx, referenceID, func() error {
		txn, err := h.datasource.GetTransactionByRef(ctx, referenceID)
		if err != nil {
			return err
		}

		switch {
		case txn.Processable():
		case txn.Status == model.StatusFailed, txn.Status == model.StatusCancelled:
			return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Transaction is %s and cannot be processed", txn.Status), nil)
		default:
			out = txn
			return nil
		}

		out, err = h.process(ctx, txn)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

func (h *Hub) process(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	log := h.logger.WithFields(logrus.Fields{"reference_id": txn.ReferenceID, "account_id": txn.OriginatorAccount})

	if txn.Status == model.StatusPending && txn.RetryCount == 0 {
		verdict, err := h.fraud.Check(ctx, txn)
		if err != nil {
			return nil, err
		}
		if len(verdict.Flags) > 0 {
			txn.MetaData["fraud_flags"] = verdict.Flags
		}
		if verdict.IsFraudulent {
			log.WithField("reason", verdict.Reason).Warn("transaction rejected by fraud check")
			return txn, h.failPermanently(ctx, txn, "Rejected: "+verdict.Reason, model.EventTransactionRejected)
		}
	}

	txn.Status = model.StatusProcessing
	txn.StatusDetail = "Transaction is being processed"
	txn.NextRetryAt = nil
	if err := h.save(ctx, txn); err != nil {
		return nil, err
	}
	h.emit(ctx, model.EventTransactionProcessing, txn, map[string]interface{}{"attempt": txn.RetryCount + 1})

	if !txn.FundsFrozen {
		err := h.funds.Freeze(ctx, txn.OriginatorAccount, txn.Amount, txn.ID, nil)
		switch {
		case err == nil, apierror.Is(err, apierror.ErrConflict):
			txn.FundsFrozen = true
			if err := h.save(ctx, txn); err != nil {
				return nil, err
			}
			expiry := h.now().Add(h.cfg.Transaction.FreezeExpiry())
			if err := h.scheduler.ScheduleHoldExpiry(ctx, txn.OriginatorAccount, txn.ID, expiry); err != nil {
				log.WithError(err).Warn("failed to schedule hold expiry")
			}
		case apierror.Is(err, apierror.ErrInsufficientFunds), apierror.Is(err, apierror.ErrNotFound), apierror.Is(err, apierror.ErrInvalidInput):
			log.WithError(err).Info("funds could not be frozen")
			return txn, h.failPermanently(ctx, txn, err.Error(), model.EventTransactionProcessingFailed)
		default:
			return txn, h.failAttempt(ctx, txn, err)
		}
	}

	results, err := h.authorize(ctx, txn)
	if err != nil {
		log.WithError(err).Warn("authorization failed")
		return txn, h.failAttempt(ctx, txn, err)
	}

	source, network := results[0], results[2]
	txn.BankReferenceID = source.BankReferenceID
	if source.VerificationCode != "" {
		txn.VerificationCode = source.VerificationCode
	}
	if network.TrackingCode != "" {
		txn.TrackingCode = network.TrackingCode
	}
	txn.Status = model.StatusAuthorized
	txn.StatusDetail = "Transaction authorized"
	if err := h.save(ctx, txn); err != nil {
		return nil, err
	}
	log.Info("transaction authorized")
	h.emit(ctx, model.EventTransactionProcessed, txn, map[string]interface{}{"bank_reference_id": txn.BankReferenceID})
	return txn, nil
}

// authorize asks the source bank, the destination bank and the network in
// turn. The first failure aborts the attempt.
func (h *Hub) authorize(ctx context.Context, txn *model.Transaction) ([]*model.ProcessResult, error) {
	if txn.VerificationCode == "" {
		txn.VerificationCode = model.GenerateVerificationCode()
	}

	results := make([]*model.ProcessResult, 0, 3)
	for i, party := range h.parties() {
		res, err := party.ProcessTransaction(ctx, processRequest(txn, i))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", party.Name(), err)
		}
		results = append(results, res)
	}
	return results, nil
}

func processRequest(txn *model.Transaction, party int) model.ProcessRequest {
	req := model.ProcessRequest{
		TransactionID:    txn.ID,
		BankCode:         txn.OriginatorBankCode,
		AccountNumber:    txn.OriginatorAccount,
		Amount:           txn.Amount,
		Currency:         txn.Currency,
		ReferenceID:      txn.ReferenceID,
		VerificationCode: txn.VerificationCode,
		CardNumber:       txn.CardNumber,
		MerchantID:       txn.MerchantID,
		TerminalID:       txn.TerminalID,
		Signature:        txn.HashTxn(),
	}
	if party > 0 {
		req.BankCode = txn.DestinationBankCode
		req.AccountNumber = txn.DestinationAccount
	}
	return req
}

// failAttempt records a failed attempt and schedules the next one while the
// retry budget lasts. Once it is spent the failure becomes permanent.
func (h *Hub) failAttempt(ctx context.Context, txn *model.Transaction, cause error) error {
	txn.RetryCount++
	if txn.RetryCount >= h.cfg.Transaction.MaxRetryAttempts {
		return h.failPermanently(ctx, txn, cause.Error(), model.EventTransactionProcessingFailed)
	}

	delay := h.retryDelay(txn.RetryCount)
	txn.Status = model.StatusFailed
	txn.StatusDetail = cause.Error()
	txn.NextRetryAt = ptr.Time(h.now().Add(delay))
	if err := h.save(ctx, txn); err != nil {
		return err
	}

	h.emit(ctx, model.EventTransactionProcessingFailed, txn, map[string]interface{}{
		"error":         cause.Error(),
		"retry_count":   txn.RetryCount,
		"next_retry_at": txn.NextRetryAt,
	})
	if err := h.scheduler.ScheduleProcessing(ctx, txn, delay); err != nil {
		h.logger.WithField("reference_id", txn.ReferenceID).WithError(err).Warn("failed to schedule retry, the sweep will pick it up")
	}
	return nil
}

// failPermanently marks txn FAILED with no retry and releases its hold.
func (h *Hub) failPermanently(ctx context.Context, txn *model.Transaction, detail, eventType string) error {
	txn.Status = model.StatusFailed
	txn.StatusDetail = detail
	txn.NextRetryAt = nil
	if err := h.save(ctx, txn); err != nil {
		return err
	}
	h.releaseHold(ctx, txn)
	h.emit(ctx, eventType, txn, map[string]interface{}{"error": detail, "retry_count": txn.RetryCount, "permanent": true})
	return nil
}

// retryDelay is base*2^attempt capped at the configured maximum.
func (h *Hub) retryDelay(attempt int) time.Duration {
	base := h.cfg.Transaction.RetryBaseDelay()
	max := h.cfg.Transaction.RetryMaxDelay()
	delay := base
	for i := 0; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

// releaseHold returns the transaction's frozen funds. Failures are reported
// and left for the hold-expiry task.
func (h *Hub) releaseHold(ctx context.Context, txn *model.Transaction) {
	if !txn.FundsFrozen {
		return
	}
	err := h.funds.Release(ctx, txn.OriginatorAccount, txn.ID)
	if err == nil || apierror.Is(err, apierror.ErrNotFound) {
		return
	}
	h.logger.WithFields(logrus.Fields{"reference_id": txn.ReferenceID, "account_id": txn.OriginatorAccount}).WithError(err).Error("failed to release frozen funds")
	h.notify(fmt.Sprintf("Failed to release funds for %s", txn.ReferenceID), err)
}

func (h *Hub) save(ctx context.Context, txn *model.Transaction) error {
	txn.UpdatedAt = h.now()
	return h.datasource.UpdateTransaction(ctx, txn)
}

// CancelTransaction cancels a transaction whose funds are not yet in flight.
func (h *Hub) CancelTransaction(ctx context.Context, referenceID string) (*model.CancelOutcome, error) {
	ctx, span := tracer.Start(ctx, "Cancelling transaction")
	defer span.End()

	var out *model.CancelOutcome
	err := h.withLock(ctx, referenceID, func() error {
		txn, err := h.datasource.GetTransactionByRef(ctx, referenceID)
		if err != nil {
			return err
		}
		if txn.Status == model.StatusCancelled {
			out = &model.CancelOutcome{Success: true, Message: "Transaction was already cancelled", Transaction: txn}
			return nil
		}
		if !txn.Status.Cancellable() {
			return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Transaction is %s and cannot be cancelled", txn.Status), nil)
		}

		if txn.FundsFrozen {
			if err := h.funds.Release(ctx, txn.OriginatorAccount, txn.ID); err != nil && !apierror.Is(err, apierror.ErrNotFound) {
				return err
			}
		}
		txn.Status = model.StatusCancelled
		txn.StatusDetail = "Transaction cancelled"
		txn.NextRetryAt = nil
		if err := h.save(ctx, txn); err != nil {
			return err
		}
		h.emit(ctx, model.EventTransactionCancelled, txn, nil)
		out = &model.CancelOutcome{Success: true, Message: "Transaction cancelled successfully", Transaction: txn}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// RefundTransaction credits the originator back and posts reversing entries.
// A zero amount refunds whatever is left.
func (h *Hub) RefundTransaction(ctx context.Context, referenceID string, amount decimal.Decimal) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Refunding transaction")
	defer span.End()

	var out *model.Transaction
	err := h.withLock(ctx, referenceID, func() error {
		txn, err := h.datasource.GetTransactionByRef(ctx, referenceID)
		if err != nil {
			return err
		}
		if !txn.Status.Refundable() {
			return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Transaction is %s and cannot be refunded", txn.Status), nil)
		}

		remaining := txn.RefundableAmount()
		if amount.IsZero() {
			amount = remaining
		}
		if !amount.IsPositive() || amount.GreaterThan(remaining) {
			return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Refund amount must be between 0 and %s", remaining), nil)
		}

		if err := h.funds.Credit(ctx, txn.OriginatorAccount, amount); err != nil {
			return err
		}

		now := h.now()
		txn.RefundedAmount = txn.RefundedAmount.Add(amount)
		if txn.RefundedAmount.Equal(txn.Amount) {
			txn.Status = model.StatusRefunded
			txn.StatusDetail = "Transaction fully refunded"
		} else {
			txn.Status = model.StatusPartialRefunded
			txn.StatusDetail = fmt.Sprintf("Refunded %s of %s", txn.RefundedAmount, txn.Amount)
		}
		txn.UpdatedAt = now

		if err := h.datasource.CommitTransactionWithEntries(ctx, txn, createRefundEntries(txn, amount, now)); err != nil {
			h.logger.WithField("reference_id", referenceID).WithError(err).Error("refund credited but not recorded")
			h.notify(fmt.Sprintf("Refund of %s credited but not recorded", referenceID), err)
			return err
		}

		h.emit(ctx, model.EventTransactionRefunded, txn, map[string]interface{}{
			"amount":          amount.String(),
			"refunded_amount": txn.RefundedAmount.String(),
		})
		out = txn
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// operatorTargets are the statuses an operator may set directly. Settlement
// and refunds post ledger entries and go through their own operations.
var operatorTargets = map[model.Status]bool{
	model.StatusProcessing: true,
	model.StatusAuthorized: true,
	model.StatusFailed:     true,
	model.StatusCancelled:  true,
}

// UpdateTransactionStatus applies an operator or reconciliation transition.
func (h *Hub) UpdateTransactionStatus(ctx context.Context, referenceID string, status model.Status, detail string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Updating transaction status")
	defer span.End()

	var out *model.Transaction
	err := h.withLock(ctx, referenceID, func() error {
		txn, err := h.datasource.GetTransactionByRef(ctx, referenceID)
		if err != nil {
			return err
		}
		if txn.Status.IsTerminal() {
			return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Transaction is %s and accepts no further transition", txn.Status), nil)
		}
		if !txn.Status.CanTransitionTo(status) || !operatorTargets[status] {
			return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Transition from %s to %s is not allowed", txn.Status, status), nil)
		}

		previous := txn.Status
		txn.Status = status
		txn.StatusDetail = detail
		txn.NextRetryAt = nil
		if err := h.save(ctx, txn); err != nil {
			return err
		}
		if status == model.StatusFailed || status == model.StatusCancelled {
			h.releaseHold(ctx, txn)
		}
		h.emit(ctx, model.EventTransactionStatusUpdated, txn, map[string]interface{}{"previous_status": string(previous), "detail": detail})
		out = txn
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

func (h *Hub) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Fetching transaction")
	defer span.End()
	return h.datasource.GetTransactionByID(ctx, id)
}

func (h *Hub) GetTransactionByRef(ctx context.Context, referenceID string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Fetching transaction by reference")
	defer span.End()
	return h.datasource.GetTransactionByRef(ctx, referenceID)
}

func (h *Hub) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Listing transactions")
	defer span.End()
	return h.datasource.ListTransactions(ctx, filter)
}
