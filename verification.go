package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

const defaultVerificationFailure = "Transaction verification failed"

// VerifyTransaction asks every counter-party to confirm an authorized
// transaction and settles it when all of them do. Transactions that already
// reached an outcome return it without side effects.
func (h *Hub) VerifyTransaction(ctx context.Context, req model.VerifyRequest) (*model.VerificationOutcome, error) {
	ctx, span := tracer.Start(ctx, "Verifying transaction")
	defer span.End()

	var out *model.VerificationOutcome
	err := h.withLock(ctx, req.ReferenceID, func() error {
		txn, err := h.datasource.GetTransactionByRef(ctx, req.ReferenceID)
		if err != nil {
			return err
		}

		if txn.Status.IsTerminal() || txn.Status == model.StatusPartialRefunded {
			out = storedOutcome(txn)
			return nil
		}
		if txn.Status != model.StatusAuthorized {
			return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Transaction is %s and cannot be verified", txn.Status), nil)
		}
		if req.VerificationCode != "" && txn.VerificationCode != "" && req.VerificationCode != txn.VerificationCode {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "Verification code does not match", nil)
		}

		out, err = h.verify(ctx, txn, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

func storedOutcome(txn *model.Transaction) *model.VerificationOutcome {
	success := txn.Status == model.StatusSettled || txn.Status == model.StatusRefunded || txn.Status == model.StatusPartialRefunded
	return &model.VerificationOutcome{
		Success:      success,
		Status:       txn.Status,
		Message:      txn.StatusDetail,
		TrackingCode: txn.TrackingCode,
		Transaction:  txn,
	}
}

func (h *Hub) verify(ctx context.Context, txn *model.Transaction, req model.VerifyRequest) (*model.VerificationOutcome, error) {
	log := h.logger.WithFields(logrus.Fields{"reference_id": txn.ReferenceID, "account_id": txn.OriginatorAccount})
	parties := h.verifyAll(ctx, txn, req)

	for _, p := range parties {
		if p.Error != "" {
			log.WithField("party", p.Party).Warn("verification call failed")
			return h.rejectVerification(ctx, txn, parties, "Verification failed: "+p.Error, model.EventTransactionVerificationFailed)
		}
	}
	for _, p := range parties {
		if !p.Result.Verified {
			msg := p.Result.Message
			if msg == "" {
				msg = defaultVerificationFailure
			}
			log.WithFields(logrus.Fields{"party": p.Party, "message": msg}).Info("verification rejected")
			return h.rejectVerification(ctx, txn, parties, msg, model.EventTransactionVerified)
		}
	}

	if err := h.funds.Debit(ctx, txn.OriginatorAccount, txn.Amount, txn.ID); err != nil {
		log.WithError(err).Warn("debit failed after verification")
		return h.rejectVerification(ctx, txn, parties, "Verification failed: "+err.Error(), model.EventTransactionVerificationFailed)
	}

	now := h.now()
	txn.Status = model.StatusSettled
	txn.StatusDetail = "Transaction verified and settled successfully"
	if tc := parties[2].Result.TrackingCode; tc != "" {
		txn.TrackingCode = tc
	}
	txn.SettledAt = &now
	txn.UpdatedAt = now

	if err := h.datasource.CommitTransactionWithEntries(ctx, txn, CreateLedgerEntries(txn)); err != nil {
		log.WithError(err).Error("funds debited but settlement not recorded")
		h.notify(fmt.Sprintf("Settlement of %s not recorded", txn.ReferenceID), err)
		return nil, err
	}
	if err := h.AnnotateSettlement(ctx, txn.ID); err != nil {
		log.WithError(err).Warn("failed to annotate ledger entries")
	}

	log.Info("transaction settled")
	h.emit(ctx, model.EventTransactionVerified, txn, map[string]interface{}{"parties": parties})
	h.emit(ctx, model.EventTransactionSettled, txn, map[string]interface{}{"tracking_code": txn.TrackingCode})

	return &model.VerificationOutcome{
		Success:      true,
		Status:       txn.Status,
		Message:      txn.StatusDetail,
		TrackingCode: txn.TrackingCode,
		Parties:      parties,
		Transaction:  txn,
	}, nil
}

// verifyAll calls every counter-party concurrently and waits for all of them.
func (h *Hub) verifyAll(ctx context.Context, txn *model.Transaction, req model.VerifyRequest) []model.PartyVerification {
	parties := h.parties()
	out := make([]model.PartyVerification, len(parties))

	code := req.VerificationCode
	if code == "" {
		code = txn.VerificationCode
	}

	var wg sync.WaitGroup
	for i := range parties {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bankCode := txn.DestinationBankCode
			if i == 0 {
				bankCode = txn.OriginatorBankCode
			}
			res, err := parties[i].VerifyTransaction(ctx, model.VerifyRequest{
				BankCode:         bankCode,
				ReferenceID:      txn.ReferenceID,
				VerificationCode: code,
				AdditionalData:   req.AdditionalData,
			})
			out[i] = model.PartyVerification{Party: parties[i].Name(), Result: res}
			if err != nil {
				out[i].Error = err.Error()
			} else if res == nil {
				out[i].Error = "empty verification response"
			}
		}(i)
	}
	wg.Wait()
	return out
}

func (h *Hub) rejectVerification(ctx context.Context, txn *model.Transaction, parties []model.PartyVerification, detail, eventType string) (*model.VerificationOutcome, error) {
	txn.Status = model.StatusFailed
	txn.StatusDetail = detail
	txn.NextRetryAt = nil
	if err := h.save(ctx, txn); err != nil {
		return nil, err
	}
	h.releaseHold(ctx, txn)
	h.emit(ctx, eventType, txn, map[string]interface{}{"verified": false, "parties": parties})

	return &model.VerificationOutcome{
		Success:     false,
		Status:      txn.Status,
		Message:     detail,
		Parties:     parties,
		Transaction: txn,
	}, nil
}
